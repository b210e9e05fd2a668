package modeler

import (
	"fmt"
	"log/slog"

	"daedalus/internal/backend"
	"daedalus/internal/dag"
	"daedalus/internal/space"
)

// DAGConfig configures the generic builder. Output is a single operation;
// multi-output searches go through EnasOutputBlockBuilder.
type DAGConfig struct {
	Space  *space.ModelSpace
	Inputs []space.Operation
	Output space.Operation

	// NumLayers optionally declares the expected depth; a nonzero value
	// that disagrees with the space is a configuration error.
	NumLayers int

	Compile backend.CompileConfig

	// Strategy names a registered dag strategy. Empty selects feedforward.
	Strategy string

	WithInputBlocks    bool
	WithSkipConnection bool

	Graph    *backend.Graph
	Executor backend.Executor
	Seed     int64
	Logger   *slog.Logger
}

// DAGBuilder decodes sequences through a named assembler strategy and
// compiles the result. Every build instantiates fresh parameters; there is
// no sharing.
type DAGBuilder struct {
	strategy dag.Strategy
	compile  backend.CompileConfig
	log      *slog.Logger
}

func NewDAGBuilder(cfg DAGConfig) (*DAGBuilder, error) {
	if err := validateCore(cfg.Space, cfg.Inputs, cfg.Compile); err != nil {
		return nil, err
	}
	if cfg.Output.Type() == "" {
		return nil, fmt.Errorf("%w: output operation is required", ErrBadBuilder)
	}
	if cfg.NumLayers != 0 && cfg.NumLayers != cfg.Space.Len() {
		return nil, fmt.Errorf("%w: declared %d layers but the space has %d", ErrBadBuilder, cfg.NumLayers, cfg.Space.Len())
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("%w: executor is required", ErrBadBuilder)
	}

	name := cfg.Strategy
	if name == "" {
		name = dag.StrategyFeedForward
	}
	strategy, err := dag.New(name, dag.Config{
		Space:              cfg.Space,
		Inputs:             cfg.Inputs,
		Outputs:            []space.Operation{cfg.Output},
		WithInputBlocks:    cfg.WithInputBlocks,
		WithSkipConnection: cfg.WithSkipConnection,
		Graph:              cfg.Graph,
		Executor:           cfg.Executor,
		Seed:               cfg.Seed,
		Logger:             cfg.Logger,
	})
	if err != nil {
		return nil, err
	}
	return &DAGBuilder{
		strategy: strategy,
		compile:  cfg.Compile,
		log:      buildLogger(cfg.Logger),
	}, nil
}

func (b *DAGBuilder) Build(seq dag.Sequence) (backend.Model, error) {
	return buildModel(b.log, b.strategy, seq, b.compile)
}

// Layout exposes the sequence segmentation so search loops can sample
// valid sequences.
func (b *DAGBuilder) Layout() *dag.Layout { return b.strategy.Layout() }
