// Package search drives architecture search over a model builder,
// recording every evaluated candidate and the best one found.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"daedalus/internal/backend"
	"daedalus/internal/dag"
	"daedalus/internal/model"
	"daedalus/internal/modeler"
	"daedalus/internal/storage"
)

// Evaluator scores one built candidate. Higher fitness is better; callers
// scoring by loss return its negation.
type Evaluator func(ctx context.Context, m backend.Model, seq dag.Sequence) (fitness float64, metrics map[string]float64, err error)

// Meta describes the run being recorded alongside its results.
type Meta struct {
	RunID     string
	Strategy  string
	SpaceSize string
	Dataset   string
	Seed      int64
}

// Random samples architecture sequences uniformly from a layout, builds
// each one, and keeps the fittest. Sequences the builder rejects are
// logged, counted, and skipped; they never abort the run.
type Random struct {
	Builder  modeler.Builder
	Layout   *dag.Layout
	Trials   int
	Rand     *rand.Rand
	Evaluate Evaluator
	Store    storage.Store
	Logger   *slog.Logger
}

// Result reports one finished run.
type Result struct {
	RunID     string
	Best      model.Candidate
	History   []model.Candidate
	Evaluated int
	Skipped   int
}

func (r Random) Run(ctx context.Context, meta Meta) (Result, error) {
	if r.Builder == nil {
		return Result{}, fmt.Errorf("builder is required")
	}
	if r.Layout == nil {
		return Result{}, fmt.Errorf("layout is required")
	}
	if r.Evaluate == nil {
		return Result{}, fmt.Errorf("evaluate function is required")
	}
	if r.Store == nil {
		return Result{}, fmt.Errorf("store is required")
	}
	if r.Trials <= 0 {
		return Result{}, fmt.Errorf("trials must be positive, got %d", r.Trials)
	}

	rng := r.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(meta.Seed))
	}
	log := r.Logger
	if log == nil {
		log = slog.Default()
	}

	runID := meta.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	result := Result{RunID: runID}
	history := make([]model.Candidate, 0, r.Trials)
	var best model.Candidate
	haveBest := false

	for step := 0; step < r.Trials; step++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		seq := r.Layout.Sample(rng)
		m, err := r.Builder.Build(seq)
		if err != nil {
			log.Warn("candidate rejected", "run", runID, "step", step, "sequence", seq, "error", err)
			result.Skipped++
			continue
		}

		fitness, metrics, err := r.Evaluate(ctx, m, seq)
		if err != nil {
			return Result{}, fmt.Errorf("evaluate candidate at step %d: %w", step, err)
		}

		candidate := model.Candidate{
			VersionedRecord: model.VersionedRecord{
				SchemaVersion: storage.CurrentSchemaVersion,
				CodecVersion:  storage.CurrentCodecVersion,
			},
			RunID:    runID,
			Step:     step,
			Sequence: append([]int(nil), seq...),
			Metrics:  metrics,
			Fitness:  fitness,
		}
		history = append(history, candidate)
		result.Evaluated++
		if !haveBest || candidate.Fitness > best.Fitness {
			best = candidate
			haveBest = true
		}
		log.Info("candidate evaluated", "run", runID, "step", step, "fitness", fitness)
	}

	run := model.Run{
		VersionedRecord: model.VersionedRecord{
			SchemaVersion: storage.CurrentSchemaVersion,
			CodecVersion:  storage.CurrentCodecVersion,
		},
		ID:           runID,
		Strategy:     meta.Strategy,
		SpaceLayers:  r.Layout.NumLayers(),
		SpaceSize:    meta.SpaceSize,
		Dataset:      meta.Dataset,
		Seed:         meta.Seed,
		Trials:       r.Trials,
		CreatedAtUTC: time.Now().UTC().Format(time.RFC3339),
	}
	if err := r.Store.SaveRun(ctx, run); err != nil {
		return Result{}, fmt.Errorf("save run %s: %w", runID, err)
	}
	if err := r.Store.SaveHistory(ctx, runID, history); err != nil {
		return Result{}, fmt.Errorf("save history %s: %w", runID, err)
	}
	if haveBest {
		if err := r.Store.SaveBest(ctx, runID, best); err != nil {
			return Result{}, fmt.Errorf("save best %s: %w", runID, err)
		}
	}

	result.Best = best
	result.History = history
	return result, nil
}
