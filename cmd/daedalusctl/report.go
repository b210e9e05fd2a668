package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"

	"daedalus/internal/storage"
	api "daedalus/pkg/daedalus"
)

func runReport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id to summarize")
	latest := fs.Bool("latest", false, "summarize the most recent run")
	goal := fs.Float64("goal", math.NaN(), "fitness goal; reports the first step reaching it")
	outDir := fs.String("out", "", "directory to write run artifacts into")
	storeKind := fs.String("store", storage.DefaultStoreKind, "store backend: memory|sqlite")
	dbPath := fs.String("db-path", defaultDBPath, "sqlite database path")
	jsonOut := fs.Bool("json", false, "emit report as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("report requires --run-id or --latest")
	}

	client, err := api.New(api.Options{StoreKind: *storeKind, DBPath: *dbPath})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	req := api.ReportRequest{RunID: *runID, Latest: *latest, OutDir: *outDir}
	if !math.IsNaN(*goal) {
		req.Goal = goal
	}

	report, err := client.Report(ctx, req)
	if err != nil {
		return err
	}

	if *jsonOut {
		type reportItem struct {
			RunID        string         `json:"run_id"`
			Summary      api.RunSummary `json:"summary"`
			Goal         *float64       `json:"goal,omitempty"`
			GoalStep     *int           `json:"goal_step,omitempty"`
			ArtifactsDir string         `json:"artifacts_dir,omitempty"`
		}
		item := reportItem{RunID: report.RunID, Summary: report.Summary, Goal: req.Goal, ArtifactsDir: report.ArtifactsDir}
		if report.GoalReached {
			step := report.GoalStep
			item.GoalStep = &step
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(item)
	}

	s := report.Summary
	fmt.Printf("run_id=%s evaluated=%d\n", report.RunID, s.Evaluated)
	if s.Evaluated > 0 {
		fmt.Printf("best step=%d fitness=%.6f sequence=%v\n", s.BestStep, s.BestFitness, s.BestSequence)
		fmt.Printf("fitness mean=%.6f std=%.6f min=%.6f max=%.6f\n", s.MeanFitness, s.StdFitness, s.MinFitness, s.MaxFitness)
		for _, name := range sortedMetricNames(s.MetricMeans) {
			fmt.Printf("metric_mean %s=%.6f\n", name, s.MetricMeans[name])
		}
	}
	if req.Goal != nil {
		if report.GoalReached {
			fmt.Printf("goal=%.6f reached_at_step=%d\n", *req.Goal, report.GoalStep)
		} else {
			fmt.Printf("goal=%.6f reached_at_step=never\n", *req.Goal)
		}
	}
	if report.ArtifactsDir != "" {
		fmt.Printf("artifacts_dir=%s\n", report.ArtifactsDir)
	}
	return nil
}
