package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	_ "modernc.org/sqlite"

	"github.com/parallax-robotics/splatview/internal/report"
	"github.com/parallax-robotics/splatview/internal/results"
)

var (
	dbFile  = flag.String("db", "results.db", "Path to the SQLite results database")
	runID   = flag.String("run", "", "Run ID to report on (empty: latest run)")
	outFile = flag.String("out", "report.html", "Output HTML file")
	list    = flag.Bool("list", false, "List runs and exit")
)

func main() {
	flag.Parse()

	db, err := results.Open(*dbFile)
	if err != nil {
		log.Fatalf("open results db: %v", err)
	}
	defer db.Close()
	store := results.NewStore(db)

	if *list {
		if err := listRuns(store); err != nil {
			log.Fatalf("list runs: %v", err)
		}
		return
	}

	id := *runID
	if id == "" {
		id, err = latestRun(store)
		if err != nil {
			log.Fatalf("%v", err)
		}
	}

	if err := report.GenerateFile(store, id, *outFile); err != nil {
		log.Fatalf("generate report: %v", err)
	}
	fmt.Printf("wrote %s for run %s\n", *outFile, id)
}

func listRuns(store *results.Store) error {
	runs, err := store.ListRuns()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs recorded")
		return nil
	}
	w := os.Stdout
	for _, run := range runs {
		summary, err := store.Summarize(run.RunID)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s  task=%s episodes=%d success_rate=%.1f%% mean_progress=%.2f\n",
			run.RunID, run.Task, summary.Episodes, summary.SuccessRate*100, summary.MeanProgress)
	}
	return nil
}

func latestRun(store *results.Store) (string, error) {
	runs, err := store.ListRuns()
	if err != nil {
		return "", err
	}
	if len(runs) == 0 {
		return "", fmt.Errorf("no runs in database")
	}
	return runs[0].RunID, nil
}
