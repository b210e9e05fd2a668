package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"

	"github.com/dustin/go-humanize"

	"daedalus/internal/backend"
	"daedalus/internal/dag"
	"daedalus/internal/modeler"
	"daedalus/internal/space"
	"daedalus/internal/storage"
	api "daedalus/pkg/daedalus"
)

const defaultDBPath = "daedalus.db"

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "space":
		return runSpace(ctx, args[1:])
	case "sample":
		return runSample(ctx, args[1:])
	case "build":
		return runBuild(ctx, args[1:])
	case "search":
		return runSearch(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "history":
		return runHistory(ctx, args[1:])
	case "best":
		return runBest(ctx, args[1:])
	case "report":
		return runReport(ctx, args[1:])
	case "dataset":
		return runDataset(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func runSpace(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("space", flag.ContinueOnError)
	file := fs.String("file", "", "model space YAML/JSON path")
	jsonOut := fs.Bool("json", false, "emit space summary as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("space requires --file")
	}

	s, err := space.LoadSpace(*file)
	if err != nil {
		return err
	}

	if *jsonOut {
		type layerItem struct {
			Layer      int      `json:"layer"`
			Candidates []string `json:"candidates"`
		}
		type spaceSummary struct {
			Layers       int         `json:"layers"`
			Combinations string      `json:"combinations"`
			LayerDetail  []layerItem `json:"layer_detail"`
		}
		summary := spaceSummary{Layers: s.Len(), Combinations: s.Size().String()}
		for i := 0; i < s.Len(); i++ {
			ops, err := s.Layer(i)
			if err != nil {
				return err
			}
			item := layerItem{Layer: i}
			for _, op := range ops {
				item.Candidates = append(item.Candidates, op.String())
			}
			summary.LayerDetail = append(summary.LayerDetail, item)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}

	for i := 0; i < s.Len(); i++ {
		ops, err := s.Layer(i)
		if err != nil {
			return err
		}
		fmt.Printf("layer=%d candidates=%d\n", i, len(ops))
		for _, op := range ops {
			fmt.Printf("  %s\n", op)
		}
	}
	fmt.Printf("layers=%d combinations=%s\n", s.Len(), humanize.BigComma(s.Size()))
	return nil
}

func runSample(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("sample", flag.ContinueOnError)
	file := fs.String("file", "", "model space YAML/JSON path")
	n := fs.Int("n", 5, "number of sequences to sample")
	seed := fs.Int64("seed", 1, "rng seed")
	numInputs := fs.Int("inputs", 1, "declared input count for input-block segments")
	inputBlocks := fs.Bool("input-blocks", false, "sample input-block selector bits")
	skip := fs.Bool("skip", false, "sample skip-connection bits")
	outputBlocks := fs.Int("output-blocks", 0, "output nodes with selectable feeders")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("sample requires --file")
	}
	if *n <= 0 {
		return errors.New("n must be > 0")
	}

	s, err := space.LoadSpace(*file)
	if err != nil {
		return err
	}
	layout, err := dag.NewLayout(s, dag.LayoutConfig{
		NumInputs:          *numInputs,
		WithInputBlocks:    *inputBlocks,
		WithSkipConnection: *skip,
		OutputBlocks:       *outputBlocks,
	})
	if err != nil {
		return err
	}

	fmt.Printf("sequence_length=%d layers=%d\n", layout.Len(), layout.NumLayers())
	rng := rand.New(rand.NewSource(*seed))
	for i := 0; i < *n; i++ {
		fmt.Printf("sample=%d sequence=%v\n", i, layout.Sample(rng))
	}
	return nil
}

func runBuild(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	configPath := fs.String("config", "", "search config YAML path")
	seqFlag := fs.String("seq", "", "comma-separated architecture sequence, e.g. 0,1,1")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *configPath == "" {
		return errors.New("build requires --config")
	}
	if *seqFlag == "" {
		return errors.New("build requires --seq")
	}

	cfg, err := loadSearchConfig(*configPath)
	if err != nil {
		return err
	}
	seq, err := parseSequence(*seqFlag)
	if err != nil {
		return err
	}

	builder, err := modeler.NewFromSpec(cfg.Builder, modeler.Deps{
		Space:    cfg.space,
		Inputs:   cfg.inputs,
		Outputs:  cfg.outputs,
		Executor: backend.NewDenseExecutor(cfg.Builder.Seed),
	})
	if err != nil {
		return err
	}
	layouter, ok := builder.(interface{ Layout() *dag.Layout })
	if !ok {
		return fmt.Errorf("builder %T does not expose a sequence layout", builder)
	}
	layout := layouter.Layout()
	if err := layout.Validate(seq); err != nil {
		return err
	}

	if _, err := builder.Build(seq); err != nil {
		return err
	}

	for i := 0; i < layout.NumLayers(); i++ {
		ops, err := cfg.space.Layer(i)
		if err != nil {
			return err
		}
		fmt.Printf("layer=%d op=%s\n", i, ops[layout.OpIndex(seq, i)])
	}
	if grapher, ok := builder.(interface{ Graph() *backend.Graph }); ok {
		fmt.Printf("shared_parameters=%d\n", grapher.Graph().ParamCount())
	}
	if wired, ok := builder.(interface{ NodeDAG() *dag.NodeGraph }); ok {
		if ng := wired.NodeDAG(); ng != nil {
			for _, node := range ng.Inputs {
				fmt.Printf("node %s\n", node)
			}
			for _, node := range ng.Layers {
				fmt.Printf("node %s\n", node)
			}
			for _, node := range ng.Outputs {
				fmt.Printf("node %s\n", node)
			}
		}
	}
	return nil
}

func runSearch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	configPath := fs.String("config", "", "search config YAML path")
	runID := fs.String("run-id", "", "run id override (defaults to config or a fresh id)")
	storeKind := fs.String("store", storage.DefaultStoreKind, "store backend: memory|sqlite")
	dbPath := fs.String("db-path", defaultDBPath, "sqlite database path")
	jsonOut := fs.Bool("json", false, "emit search summary as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *configPath == "" {
		return errors.New("search requires --config")
	}

	cfg, err := loadSearchConfig(*configPath)
	if err != nil {
		return err
	}
	x, y, err := cfg.trainingData()
	if err != nil {
		return err
	}

	client, err := api.New(api.Options{StoreKind: *storeKind, DBPath: *dbPath})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	req := api.SearchRequest{
		Space:     cfg.space,
		Inputs:    cfg.inputs,
		Outputs:   cfg.outputs,
		Builder:   cfg.Builder,
		Trials:    cfg.Trials,
		Epochs:    cfg.Epochs,
		BatchSize: cfg.BatchSize,
		Seed:      cfg.Seed,
		RunID:     cfg.RunID,
		Dataset:   cfg.datasetLabel(),
		X:         x,
		Y:         y,
	}
	if *runID != "" {
		req.RunID = *runID
	}

	summary, err := client.Search(ctx, req)
	if err != nil {
		return err
	}

	if *jsonOut {
		type searchItem struct {
			RunID        string             `json:"run_id"`
			Strategy     string             `json:"strategy"`
			SpaceSize    string             `json:"space_size"`
			Trials       int                `json:"trials"`
			Evaluated    int                `json:"evaluated"`
			Skipped      int                `json:"skipped"`
			BestStep     int                `json:"best_step"`
			BestSequence []int              `json:"best_sequence"`
			BestFitness  float64            `json:"best_fitness"`
			BestMetrics  map[string]float64 `json:"best_metrics,omitempty"`
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(searchItem{
			RunID:        summary.RunID,
			Strategy:     summary.Strategy,
			SpaceSize:    summary.SpaceSize,
			Trials:       summary.Trials,
			Evaluated:    summary.Evaluated,
			Skipped:      summary.Skipped,
			BestStep:     summary.BestStep,
			BestSequence: summary.BestSequence,
			BestFitness:  summary.BestFitness,
			BestMetrics:  summary.BestMetrics,
		})
	}

	fmt.Printf("run_id=%s strategy=%s space_size=%s trials=%d evaluated=%d skipped=%d\n",
		summary.RunID, summary.Strategy, summary.SpaceSize, summary.Trials, summary.Evaluated, summary.Skipped)
	if summary.Evaluated > 0 {
		fmt.Printf("best step=%d fitness=%.6f sequence=%v\n", summary.BestStep, summary.BestFitness, summary.BestSequence)
		for _, name := range sortedMetricNames(summary.BestMetrics) {
			fmt.Printf("metric %s=%.6f\n", name, summary.BestMetrics[name])
		}
	}
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "max runs to list")
	storeKind := fs.String("store", storage.DefaultStoreKind, "store backend: memory|sqlite")
	dbPath := fs.String("db-path", defaultDBPath, "sqlite database path")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	client, err := api.New(api.Options{StoreKind: *storeKind, DBPath: *dbPath})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	items, err := client.Runs(ctx, api.RunsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	if *jsonOut {
		type runsItem struct {
			RunID        string `json:"run_id"`
			CreatedAtUTC string `json:"created_at_utc"`
			Strategy     string `json:"strategy"`
			SpaceLayers  int    `json:"space_layers"`
			SpaceSize    string `json:"space_size"`
			Dataset      string `json:"dataset,omitempty"`
			Seed         int64  `json:"seed"`
			Trials       int    `json:"trials"`
		}
		out := make([]runsItem, 0, len(items))
		for _, item := range items {
			out = append(out, runsItem{
				RunID:        item.RunID,
				CreatedAtUTC: item.CreatedAtUTC,
				Strategy:     item.Strategy,
				SpaceLayers:  item.SpaceLayers,
				SpaceSize:    item.SpaceSize,
				Dataset:      item.Dataset,
				Seed:         item.Seed,
				Trials:       item.Trials,
			})
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	for _, item := range items {
		fmt.Printf("run_id=%s created_at=%s strategy=%s layers=%d space_size=%s dataset=%s seed=%d trials=%d\n",
			item.RunID, item.CreatedAtUTC, item.Strategy, item.SpaceLayers, item.SpaceSize, item.Dataset, item.Seed, item.Trials)
	}
	return nil
}

func runHistory(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id to inspect")
	latest := fs.Bool("latest", false, "inspect the most recent run")
	limit := fs.Int("limit", 0, "max candidates to print (0 prints all)")
	storeKind := fs.String("store", storage.DefaultStoreKind, "store backend: memory|sqlite")
	dbPath := fs.String("db-path", defaultDBPath, "sqlite database path")
	jsonOut := fs.Bool("json", false, "emit history as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("history requires --run-id or --latest")
	}
	if *limit < 0 {
		return errors.New("limit must be >= 0")
	}

	client, err := api.New(api.Options{StoreKind: *storeKind, DBPath: *dbPath})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	items, err := client.History(ctx, api.HistoryRequest{RunID: *runID, Latest: *latest, Limit: *limit})
	if err != nil {
		return err
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(candidateItems(items))
	}

	for _, item := range items {
		fmt.Printf("step=%d fitness=%.6f sequence=%v\n", item.Step, item.Fitness, item.Sequence)
	}
	return nil
}

func runBest(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("best", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id to inspect")
	latest := fs.Bool("latest", false, "inspect the most recent run")
	storeKind := fs.String("store", storage.DefaultStoreKind, "store backend: memory|sqlite")
	dbPath := fs.String("db-path", defaultDBPath, "sqlite database path")
	jsonOut := fs.Bool("json", false, "emit best candidate as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("best requires --run-id or --latest")
	}

	client, err := api.New(api.Options{StoreKind: *storeKind, DBPath: *dbPath})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	item, err := client.Best(ctx, api.BestRequest{RunID: *runID, Latest: *latest})
	if err != nil {
		return err
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(candidateItems([]api.CandidateItem{item})[0])
	}

	fmt.Printf("step=%d fitness=%.6f sequence=%v\n", item.Step, item.Fitness, item.Sequence)
	for _, name := range sortedMetricNames(item.Metrics) {
		fmt.Printf("metric %s=%.6f\n", name, item.Metrics[name])
	}
	return nil
}

type candidateItem struct {
	Step     int                `json:"step"`
	Sequence []int              `json:"sequence"`
	Fitness  float64            `json:"fitness"`
	Metrics  map[string]float64 `json:"metrics,omitempty"`
}

func candidateItems(items []api.CandidateItem) []candidateItem {
	out := make([]candidateItem, 0, len(items))
	for _, item := range items {
		out = append(out, candidateItem{
			Step:     item.Step,
			Sequence: item.Sequence,
			Fitness:  item.Fitness,
			Metrics:  item.Metrics,
		})
	}
	return out
}

func sortedMetricNames(metrics map[string]float64) []string {
	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: daedalusctl <space|sample|build|search|runs|history|best|report|dataset> [flags]", msg)
}
