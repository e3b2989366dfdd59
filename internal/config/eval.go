// Package config loads evaluation settings from JSON. Fields are pointers
// so partial config files are safe: omitted fields fall back to defaults in
// the Get* accessors.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// EvalConfig is the root configuration for an evaluation session.
type EvalConfig struct {
	// Task and rollout settings
	Task          *string `json:"task,omitempty"`
	Instruction   *string `json:"instruction,omitempty"`
	Episodes      *int    `json:"episodes,omitempty"`
	MaxSteps      *int    `json:"max_steps,omitempty"`
	FrameRetries  *int    `json:"frame_retries,omitempty"`
	StopOnSuccess *bool   `json:"stop_on_success,omitempty"`

	// Frame settings
	MaskMode *string `json:"mask_mode,omitempty"` // "binary" or "alpha"
	Width    *int    `json:"width,omitempty"`
	Height   *int    `json:"height,omitempty"`

	// Identity map file: sim object name -> splat object name
	IdentityMapPath *string `json:"identity_map_path,omitempty"`

	// Splat backend. Empty URL selects the built-in synthetic renderer.
	SplatURL            *string `json:"splat_url,omitempty"`
	SplatRequestTimeout *string `json:"splat_request_timeout,omitempty"` // duration string like "30s"

	// Policy server. Empty URL selects the built-in scripted policy.
	PolicyURL       *string `json:"policy_url,omitempty"`
	PolicyTimeout   *string `json:"policy_timeout,omitempty"` // duration string like "60s"
	PolicyImageSize *int    `json:"policy_image_size,omitempty"`
	OpenLoopHorizon *int    `json:"open_loop_horizon,omitempty"`
	BinarizeGripper *bool   `json:"binarize_gripper,omitempty"`

	// Results database path. Empty disables persistence.
	ResultsDB *string `json:"results_db,omitempty"`

	// Mask coverage plot output directory. Empty disables plotting.
	PlotDir *string `json:"plot_dir,omitempty"`
}

// EmptyEvalConfig returns an EvalConfig with all fields unset.
func EmptyEvalConfig() *EvalConfig {
	return &EvalConfig{}
}

// LoadEvalConfig loads an EvalConfig from a JSON file. The file must have a
// .json extension; omitted fields keep their defaults.
func LoadEvalConfig(path string) (*EvalConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyEvalConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that configured values are usable.
func (c *EvalConfig) Validate() error {
	if c.Episodes != nil && *c.Episodes < 1 {
		return fmt.Errorf("episodes must be positive, got %d", *c.Episodes)
	}
	if c.MaxSteps != nil && *c.MaxSteps < 1 {
		return fmt.Errorf("max_steps must be positive, got %d", *c.MaxSteps)
	}
	if c.FrameRetries != nil && *c.FrameRetries < 0 {
		return fmt.Errorf("frame_retries must be non-negative, got %d", *c.FrameRetries)
	}
	if c.MaskMode != nil {
		if m := *c.MaskMode; m != "binary" && m != "alpha" {
			return fmt.Errorf("mask_mode must be \"binary\" or \"alpha\", got %q", m)
		}
	}
	if c.Width != nil && *c.Width < 1 {
		return fmt.Errorf("width must be positive, got %d", *c.Width)
	}
	if c.Height != nil && *c.Height < 1 {
		return fmt.Errorf("height must be positive, got %d", *c.Height)
	}
	if c.SplatRequestTimeout != nil && *c.SplatRequestTimeout != "" {
		if _, err := time.ParseDuration(*c.SplatRequestTimeout); err != nil {
			return fmt.Errorf("invalid splat_request_timeout '%s': %w", *c.SplatRequestTimeout, err)
		}
	}
	if c.PolicyTimeout != nil && *c.PolicyTimeout != "" {
		if _, err := time.ParseDuration(*c.PolicyTimeout); err != nil {
			return fmt.Errorf("invalid policy_timeout '%s': %w", *c.PolicyTimeout, err)
		}
	}
	if c.OpenLoopHorizon != nil && *c.OpenLoopHorizon < 1 {
		return fmt.Errorf("open_loop_horizon must be positive, got %d", *c.OpenLoopHorizon)
	}
	return nil
}

// GetTask returns the task name or the default.
func (c *EvalConfig) GetTask() string {
	if c.Task == nil {
		return "reach"
	}
	return *c.Task
}

// GetInstruction returns the policy instruction, falling back to the task name.
func (c *EvalConfig) GetInstruction() string {
	if c.Instruction == nil || *c.Instruction == "" {
		return c.GetTask()
	}
	return *c.Instruction
}

// GetEpisodes returns the episode count or the default.
func (c *EvalConfig) GetEpisodes() int {
	if c.Episodes == nil {
		return 10
	}
	return *c.Episodes
}

// GetMaxSteps returns the per-episode step bound or the default.
func (c *EvalConfig) GetMaxSteps() int {
	if c.MaxSteps == nil {
		return 200
	}
	return *c.MaxSteps
}

// GetFrameRetries returns the per-step frame retry budget or the default.
func (c *EvalConfig) GetFrameRetries() int {
	if c.FrameRetries == nil {
		return 0 // fail fast
	}
	return *c.FrameRetries
}

// GetStopOnSuccess returns whether episodes end at first rubric pass.
func (c *EvalConfig) GetStopOnSuccess() bool {
	if c.StopOnSuccess == nil {
		return true
	}
	return *c.StopOnSuccess
}

// GetMaskMode returns the compositing mode or the default.
func (c *EvalConfig) GetMaskMode() string {
	if c.MaskMode == nil {
		return "binary"
	}
	return *c.MaskMode
}

// GetWidth returns the frame width or the default.
func (c *EvalConfig) GetWidth() int {
	if c.Width == nil {
		return 320
	}
	return *c.Width
}

// GetHeight returns the frame height or the default.
func (c *EvalConfig) GetHeight() int {
	if c.Height == nil {
		return 240
	}
	return *c.Height
}

// GetIdentityMapPath returns the identity map file, empty for the built-in map.
func (c *EvalConfig) GetIdentityMapPath() string {
	if c.IdentityMapPath == nil {
		return ""
	}
	return *c.IdentityMapPath
}

// GetSplatURL returns the splat backend URL, empty for the synthetic renderer.
func (c *EvalConfig) GetSplatURL() string {
	if c.SplatURL == nil {
		return ""
	}
	return *c.SplatURL
}

// GetSplatRequestTimeout parses the splat request timeout or the default.
func (c *EvalConfig) GetSplatRequestTimeout() time.Duration {
	if c.SplatRequestTimeout == nil || *c.SplatRequestTimeout == "" {
		return 30 * time.Second
	}
	d, err := time.ParseDuration(*c.SplatRequestTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetPolicyURL returns the policy server URL, empty for the scripted policy.
func (c *EvalConfig) GetPolicyURL() string {
	if c.PolicyURL == nil {
		return ""
	}
	return *c.PolicyURL
}

// GetPolicyTimeout parses the policy timeout or the default.
func (c *EvalConfig) GetPolicyTimeout() time.Duration {
	if c.PolicyTimeout == nil || *c.PolicyTimeout == "" {
		return 60 * time.Second
	}
	d, err := time.ParseDuration(*c.PolicyTimeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// GetPolicyImageSize returns the model input resolution or the default.
func (c *EvalConfig) GetPolicyImageSize() int {
	if c.PolicyImageSize == nil {
		return 224
	}
	return *c.PolicyImageSize
}

// GetOpenLoopHorizon returns the chunk execution horizon or the default.
func (c *EvalConfig) GetOpenLoopHorizon() int {
	if c.OpenLoopHorizon == nil {
		return 8
	}
	return *c.OpenLoopHorizon
}

// GetBinarizeGripper returns whether gripper commands snap to open/closed.
func (c *EvalConfig) GetBinarizeGripper() bool {
	if c.BinarizeGripper == nil {
		return true
	}
	return *c.BinarizeGripper
}

// GetResultsDB returns the results database path, empty for no persistence.
func (c *EvalConfig) GetResultsDB() string {
	if c.ResultsDB == nil {
		return ""
	}
	return *c.ResultsDB
}

// GetPlotDir returns the plot output directory, empty for no plotting.
func (c *EvalConfig) GetPlotDir() string {
	if c.PlotDir == nil {
		return ""
	}
	return *c.PlotDir
}
