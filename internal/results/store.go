// Package results persists evaluation runs, episodes, and per-step traces
// to sqlite. One run groups the episodes of a single evaluation session;
// each episode records its rubric progress over time.
package results

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Run is one evaluation session: a task, a policy endpoint, and the
// compositing mode the frames were produced with.
type Run struct {
	RunID       string `json:"run_id"`
	Task        string `json:"task"`
	PolicyURL   string `json:"policy_url,omitempty"`
	MaskMode    string `json:"mask_mode"`
	Notes       string `json:"notes,omitempty"`
	CreatedAtNs int64  `json:"created_at_ns"`
}

// Episode is one rollout within a run.
type Episode struct {
	EpisodeID       string  `json:"episode_id"`
	RunID           string  `json:"run_id"`
	EpisodeIndex    int     `json:"episode_index"`
	Instruction     string  `json:"instruction"`
	Steps           int     `json:"steps"`
	Progress        float64 `json:"progress"`
	Success         bool    `json:"success"`
	Error           string  `json:"error,omitempty"`
	MappingWarnings int     `json:"mapping_warnings"`
	StartedAtNs     int64   `json:"started_at_ns"`
	FinishedAtNs    *int64  `json:"finished_at_ns,omitempty"`
}

// StepRecord is one control step inside an episode.
type StepRecord struct {
	EpisodeID    string          `json:"episode_id"`
	StepIndex    int             `json:"step_index"`
	FrameIndex   uint64          `json:"frame_index"`
	Progress     float64         `json:"progress"`
	Gripper      float64         `json:"gripper"`
	EEX          float64         `json:"ee_x"`
	EEY          float64         `json:"ee_y"`
	EEZ          float64         `json:"ee_z"`
	CriteriaJSON json.RawMessage `json:"criteria_json,omitempty"`
	RecordedAtNs int64           `json:"recorded_at_ns"`
}

// RunSummary aggregates episode outcomes for one run.
type RunSummary struct {
	RunID        string  `json:"run_id"`
	Episodes     int     `json:"episodes"`
	Successes    int     `json:"successes"`
	SuccessRate  float64 `json:"success_rate"`
	MeanProgress float64 `json:"mean_progress"`
}

// Store provides persistence for evaluation results.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store over an already-migrated database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// InsertRun creates a new run. If run.RunID is empty a UUID is generated.
func (s *Store) InsertRun(run *Run) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.CreatedAtNs == 0 {
		run.CreatedAtNs = time.Now().UnixNano()
	}
	_, err := s.db.Exec(`
		INSERT INTO eval_runs (run_id, task, policy_url, mask_mode, notes, created_at_ns)
		VALUES (?, ?, ?, ?, ?, ?)
	`, run.RunID, run.Task, nullString(run.PolicyURL), run.MaskMode, nullString(run.Notes), run.CreatedAtNs)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(runID string) (*Run, error) {
	var run Run
	var policyURL, notes sql.NullString
	err := s.db.QueryRow(`
		SELECT run_id, task, policy_url, mask_mode, notes, created_at_ns
		FROM eval_runs WHERE run_id = ?
	`, runID).Scan(&run.RunID, &run.Task, &policyURL, &run.MaskMode, &notes, &run.CreatedAtNs)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found: %s", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	run.PolicyURL = policyURL.String
	run.Notes = notes.String
	return &run, nil
}

// ListRuns returns all runs, newest first.
func (s *Store) ListRuns() ([]*Run, error) {
	rows, err := s.db.Query(`
		SELECT run_id, task, policy_url, mask_mode, notes, created_at_ns
		FROM eval_runs ORDER BY created_at_ns DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var run Run
		var policyURL, notes sql.NullString
		if err := rows.Scan(&run.RunID, &run.Task, &policyURL, &run.MaskMode, &notes, &run.CreatedAtNs); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.PolicyURL = policyURL.String
		run.Notes = notes.String
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

// InsertEpisode creates a new episode row at the start of a rollout.
// If ep.EpisodeID is empty a UUID is generated.
func (s *Store) InsertEpisode(ep *Episode) error {
	if ep.EpisodeID == "" {
		ep.EpisodeID = uuid.New().String()
	}
	if ep.StartedAtNs == 0 {
		ep.StartedAtNs = time.Now().UnixNano()
	}
	_, err := s.db.Exec(`
		INSERT INTO episodes (
			episode_id, run_id, episode_index, instruction, steps, progress,
			success, error, mapping_warnings, started_at_ns, finished_at_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ep.EpisodeID, ep.RunID, ep.EpisodeIndex, ep.Instruction, ep.Steps, ep.Progress,
		boolToInt(ep.Success), nullString(ep.Error), ep.MappingWarnings, ep.StartedAtNs, nullInt64(ep.FinishedAtNs))
	if err != nil {
		return fmt.Errorf("insert episode: %w", err)
	}
	return nil
}

// FinishEpisode records the final outcome of an episode.
func (s *Store) FinishEpisode(ep *Episode) error {
	now := time.Now().UnixNano()
	if ep.FinishedAtNs == nil {
		ep.FinishedAtNs = &now
	}
	res, err := s.db.Exec(`
		UPDATE episodes
		SET steps = ?, progress = ?, success = ?, error = ?, mapping_warnings = ?, finished_at_ns = ?
		WHERE episode_id = ?
	`, ep.Steps, ep.Progress, boolToInt(ep.Success), nullString(ep.Error),
		ep.MappingWarnings, *ep.FinishedAtNs, ep.EpisodeID)
	if err != nil {
		return fmt.Errorf("finish episode: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("finish episode: episode not found: %s", ep.EpisodeID)
	}
	return nil
}

// ListEpisodes returns the episodes of a run in rollout order.
func (s *Store) ListEpisodes(runID string) ([]*Episode, error) {
	rows, err := s.db.Query(`
		SELECT episode_id, run_id, episode_index, instruction, steps, progress,
		       success, error, mapping_warnings, started_at_ns, finished_at_ns
		FROM episodes WHERE run_id = ? ORDER BY episode_index
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list episodes: %w", err)
	}
	defer rows.Close()

	var eps []*Episode
	for rows.Next() {
		var ep Episode
		var success int
		var errText sql.NullString
		var finished sql.NullInt64
		if err := rows.Scan(&ep.EpisodeID, &ep.RunID, &ep.EpisodeIndex, &ep.Instruction,
			&ep.Steps, &ep.Progress, &success, &errText, &ep.MappingWarnings,
			&ep.StartedAtNs, &finished); err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		ep.Success = success != 0
		ep.Error = errText.String
		if finished.Valid {
			v := finished.Int64
			ep.FinishedAtNs = &v
		}
		eps = append(eps, &ep)
	}
	return eps, rows.Err()
}

// InsertStep appends one step trace to an episode.
func (s *Store) InsertStep(step *StepRecord) error {
	if step.RecordedAtNs == 0 {
		step.RecordedAtNs = time.Now().UnixNano()
	}
	_, err := s.db.Exec(`
		INSERT INTO episode_steps (
			episode_id, step_index, frame_index, progress, gripper,
			ee_x, ee_y, ee_z, criteria_json, recorded_at_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, step.EpisodeID, step.StepIndex, step.FrameIndex, step.Progress, step.Gripper,
		step.EEX, step.EEY, step.EEZ, nullString(string(step.CriteriaJSON)), step.RecordedAtNs)
	if err != nil {
		return fmt.Errorf("insert step: %w", err)
	}
	return nil
}

// ListSteps returns an episode's step trace in order.
func (s *Store) ListSteps(episodeID string) ([]*StepRecord, error) {
	rows, err := s.db.Query(`
		SELECT episode_id, step_index, frame_index, progress, gripper,
		       ee_x, ee_y, ee_z, criteria_json, recorded_at_ns
		FROM episode_steps WHERE episode_id = ? ORDER BY step_index
	`, episodeID)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer rows.Close()

	var steps []*StepRecord
	for rows.Next() {
		var st StepRecord
		var criteria sql.NullString
		if err := rows.Scan(&st.EpisodeID, &st.StepIndex, &st.FrameIndex, &st.Progress,
			&st.Gripper, &st.EEX, &st.EEY, &st.EEZ, &criteria, &st.RecordedAtNs); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		if criteria.Valid && criteria.String != "" {
			st.CriteriaJSON = json.RawMessage(criteria.String)
		}
		steps = append(steps, &st)
	}
	return steps, rows.Err()
}

// Summarize aggregates episode outcomes for a run.
func (s *Store) Summarize(runID string) (*RunSummary, error) {
	var sum RunSummary
	sum.RunID = runID
	var meanProgress sql.NullFloat64
	err := s.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(success), 0), AVG(progress)
		FROM episodes WHERE run_id = ?
	`, runID).Scan(&sum.Episodes, &sum.Successes, &meanProgress)
	if err != nil {
		return nil, fmt.Errorf("summarize run: %w", err)
	}
	if sum.Episodes > 0 {
		sum.SuccessRate = float64(sum.Successes) / float64(sum.Episodes)
	}
	sum.MeanProgress = meanProgress.Float64
	return &sum, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullInt64(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
