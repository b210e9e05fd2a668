// Package daedalus is the public client API: define a model space, search
// it for architectures, and inspect the recorded runs.
package daedalus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"

	"daedalus/internal/backend"
	"daedalus/internal/dag"
	"daedalus/internal/modeler"
	"daedalus/internal/search"
	"daedalus/internal/space"
	"daedalus/internal/stats"
	"daedalus/internal/storage"
)

const defaultDBPath = "daedalus.db"

// Aliases so library consumers never import internal packages.
type (
	Operation          = space.Operation
	Attrs              = space.Attrs
	ModelSpace         = space.ModelSpace
	BranchedModelSpace = space.BranchedModelSpace
	BuilderSpec        = modeler.BuilderSpec
	RunSummary         = stats.RunSummary
)

func NewOperation(typeName string, attrs Attrs) (Operation, error) {
	return space.NewOperation(typeName, attrs)
}

func MustOperation(typeName string, attrs Attrs) Operation {
	return space.MustOperation(typeName, attrs)
}

func FromLayers(layers [][]Operation) (*ModelSpace, error) {
	return space.FromLayers(layers)
}

func LoadSpace(path string) (*ModelSpace, error) {
	return space.LoadSpace(path)
}

func ParseSpace(data []byte) (*ModelSpace, error) {
	return space.ParseSpace(data)
}

type Options struct {
	StoreKind string
	DBPath    string
	Logger    *slog.Logger
}

type Client struct {
	store storage.Store
	log   *slog.Logger

	initialized bool
}

type SearchRequest struct {
	Space   *ModelSpace
	Inputs  []Operation
	Outputs []Operation
	Builder BuilderSpec

	Trials    int
	Epochs    int
	BatchSize int
	Seed      int64
	RunID     string
	Dataset   string

	X [][]float64
	Y [][]float64
}

type SearchSummary struct {
	RunID        string
	Strategy     string
	SpaceSize    string
	Trials       int
	Evaluated    int
	Skipped      int
	BestStep     int
	BestSequence []int
	BestFitness  float64
	BestMetrics  map[string]float64
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID        string
	CreatedAtUTC string
	Strategy     string
	SpaceLayers  int
	SpaceSize    string
	Dataset      string
	Seed         int64
	Trials       int
}

type HistoryRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

type BestRequest struct {
	RunID  string
	Latest bool
}

type ReportRequest struct {
	RunID  string
	Latest bool

	// Goal, when set, marks the run successful at the first step whose
	// fitness reaches it.
	Goal *float64

	// OutDir, when set, receives run.json/summary.json/history.csv
	// under OutDir/<run id>.
	OutDir string
}

type RunReport struct {
	RunID        string
	Summary      RunSummary
	GoalStep     int
	GoalReached  bool
	ArtifactsDir string
}

type CandidateItem struct {
	Step     int
	Sequence []int
	Fitness  float64
	Metrics  map[string]float64
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{store: store, log: log}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Search(ctx context.Context, req SearchRequest) (SearchSummary, error) {
	if req.Space == nil {
		return SearchSummary{}, errors.New("model space is required")
	}
	if len(req.Inputs) == 0 {
		return SearchSummary{}, errors.New("at least one input operation is required")
	}
	if len(req.Outputs) == 0 {
		return SearchSummary{}, errors.New("at least one output operation is required")
	}
	if len(req.X) == 0 || len(req.X) != len(req.Y) {
		return SearchSummary{}, fmt.Errorf("training data mismatch: %d inputs vs %d targets", len(req.X), len(req.Y))
	}
	if req.Trials <= 0 {
		req.Trials = 10
	}
	if req.Builder.Loss == "" {
		req.Builder.Loss = "mse"
	}

	if err := c.ensureStore(ctx); err != nil {
		return SearchSummary{}, err
	}

	builder, err := modeler.NewFromSpec(req.Builder, modeler.Deps{
		Space:    req.Space,
		Inputs:   req.Inputs,
		Outputs:  req.Outputs,
		Executor: backend.NewDenseExecutor(req.Builder.Seed),
		Logger:   c.log,
	})
	if err != nil {
		return SearchSummary{}, err
	}
	layouter, ok := builder.(interface{ Layout() *dag.Layout })
	if !ok {
		return SearchSummary{}, fmt.Errorf("builder %T does not expose a sequence layout", builder)
	}

	strategy := req.Builder.Kind
	if strategy == "" {
		strategy = modeler.KindDAG
	}

	evaluate := func(ctx context.Context, m backend.Model, _ dag.Sequence) (float64, map[string]float64, error) {
		if req.Epochs > 0 {
			fitCfg := backend.FitConfig{Epochs: req.Epochs, BatchSize: req.BatchSize, Seed: req.Seed}
			if _, err := m.Fit(ctx, req.X, req.Y, fitCfg); err != nil {
				return 0, nil, err
			}
		}
		metrics, err := m.Evaluate(ctx, req.X, req.Y)
		if err != nil {
			return 0, nil, err
		}
		return -metrics["loss"], metrics, nil
	}

	driver := search.Random{
		Builder:  builder,
		Layout:   layouter.Layout(),
		Trials:   req.Trials,
		Rand:     rand.New(rand.NewSource(req.Seed)),
		Evaluate: evaluate,
		Store:    c.store,
		Logger:   c.log,
	}
	result, err := driver.Run(ctx, search.Meta{
		RunID:     req.RunID,
		Strategy:  strategy,
		SpaceSize: req.Space.Size().String(),
		Dataset:   req.Dataset,
		Seed:      req.Seed,
	})
	if err != nil {
		return SearchSummary{}, err
	}

	summary := SearchSummary{
		RunID:     result.RunID,
		Strategy:  strategy,
		SpaceSize: req.Space.Size().String(),
		Trials:    req.Trials,
		Evaluated: result.Evaluated,
		Skipped:   result.Skipped,
	}
	if result.Evaluated > 0 {
		summary.BestStep = result.Best.Step
		summary.BestSequence = append([]int(nil), result.Best.Sequence...)
		summary.BestFitness = result.Best.Fitness
		summary.BestMetrics = result.Best.Metrics
	}
	return summary, nil
}

func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}
	if err := c.ensureStore(ctx); err != nil {
		return nil, err
	}

	runs, err := c.store.ListRuns(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]RunItem, 0, len(runs))
	for i := len(runs) - 1; i >= 0 && len(out) < req.Limit; i-- {
		r := runs[i]
		out = append(out, RunItem{
			RunID:        r.ID,
			CreatedAtUTC: r.CreatedAtUTC,
			Strategy:     r.Strategy,
			SpaceLayers:  r.SpaceLayers,
			SpaceSize:    r.SpaceSize,
			Dataset:      r.Dataset,
			Seed:         r.Seed,
			Trials:       r.Trials,
		})
	}
	return out, nil
}

func (c *Client) History(ctx context.Context, req HistoryRequest) ([]CandidateItem, error) {
	if req.RunID != "" && req.Latest {
		return nil, errors.New("use either run id or latest")
	}
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	if err := c.ensureStore(ctx); err != nil {
		return nil, err
	}

	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest)
	if err != nil {
		return nil, err
	}

	history, ok, err := c.store.GetHistory(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("history not found for run id: %s", runID)
	}
	if req.Limit > 0 && len(history) > req.Limit {
		history = history[:req.Limit]
	}

	out := make([]CandidateItem, 0, len(history))
	for _, candidate := range history {
		out = append(out, CandidateItem{
			Step:     candidate.Step,
			Sequence: append([]int(nil), candidate.Sequence...),
			Fitness:  candidate.Fitness,
			Metrics:  candidate.Metrics,
		})
	}
	return out, nil
}

func (c *Client) Best(ctx context.Context, req BestRequest) (CandidateItem, error) {
	if req.RunID != "" && req.Latest {
		return CandidateItem{}, errors.New("use either run id or latest")
	}
	if err := c.ensureStore(ctx); err != nil {
		return CandidateItem{}, err
	}

	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest)
	if err != nil {
		return CandidateItem{}, err
	}

	best, ok, err := c.store.GetBest(ctx, runID)
	if err != nil {
		return CandidateItem{}, err
	}
	if !ok {
		return CandidateItem{}, fmt.Errorf("best candidate not found for run id: %s", runID)
	}
	return CandidateItem{
		Step:     best.Step,
		Sequence: append([]int(nil), best.Sequence...),
		Fitness:  best.Fitness,
		Metrics:  best.Metrics,
	}, nil
}

// Report summarizes one run's recorded history and optionally writes
// the run artifacts to disk.
func (c *Client) Report(ctx context.Context, req ReportRequest) (RunReport, error) {
	if req.RunID != "" && req.Latest {
		return RunReport{}, errors.New("use either run id or latest")
	}
	if err := c.ensureStore(ctx); err != nil {
		return RunReport{}, err
	}

	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest)
	if err != nil {
		return RunReport{}, err
	}

	run, ok, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return RunReport{}, err
	}
	if !ok {
		return RunReport{}, fmt.Errorf("run not found for run id: %s", runID)
	}
	history, ok, err := c.store.GetHistory(ctx, runID)
	if err != nil {
		return RunReport{}, err
	}
	if !ok {
		return RunReport{}, fmt.Errorf("history not found for run id: %s", runID)
	}

	report := RunReport{RunID: runID, Summary: stats.Summarize(history)}
	if req.Goal != nil {
		report.GoalStep, report.GoalReached = stats.FirstReaching(history, *req.Goal)
	}
	if req.OutDir != "" {
		dir, err := stats.WriteRunArtifacts(req.OutDir, stats.RunArtifacts{
			Run:     run,
			Summary: report.Summary,
			History: history,
		})
		if err != nil {
			return RunReport{}, fmt.Errorf("write run artifacts: %w", err)
		}
		report.ArtifactsDir = dir
	}
	return report, nil
}

func (c *Client) resolveRunID(ctx context.Context, runID string, latest bool) (string, error) {
	if latest {
		runs, err := c.store.ListRuns(ctx)
		if err != nil {
			return "", err
		}
		if len(runs) == 0 {
			return "", errors.New("no runs available")
		}
		return runs[len(runs)-1].ID, nil
	}
	if runID == "" {
		return "", errors.New("run id or latest is required")
	}
	return runID, nil
}

func (c *Client) ensureStore(ctx context.Context) error {
	if c.initialized {
		return nil
	}
	if err := c.store.Init(ctx); err != nil {
		return err
	}
	c.initialized = true
	return nil
}
