package modeler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"daedalus/internal/backend"
	"daedalus/internal/dag"
	"daedalus/internal/space"
)

// enasCore is the shared spine of the ENAS builder family: one strategy
// holding the shared parameter graph, plus the compile configuration every
// built model is compiled with.
type enasCore struct {
	strategy dag.Strategy
	trainer  dag.SharedTrainer
	setter   dag.ControllerSetter
	graph    *backend.Graph
	compile  backend.CompileConfig
	log      *slog.Logger
}

func newEnasCore(name string, dcfg dag.Config, compile backend.CompileConfig) (enasCore, error) {
	if dcfg.Graph == nil {
		dcfg.Graph = backend.NewGraph()
	}
	strategy, err := dag.New(name, dcfg)
	if err != nil {
		return enasCore{}, err
	}
	trainer, _ := strategy.(dag.SharedTrainer)
	setter, _ := strategy.(dag.ControllerSetter)
	return enasCore{
		strategy: strategy,
		trainer:  trainer,
		setter:   setter,
		graph:    dcfg.Graph,
		compile:  compile,
		log:      buildLogger(dcfg.Logger),
	}, nil
}

func (c *enasCore) Build(seq dag.Sequence) (backend.Model, error) {
	return buildModel(c.log, c.strategy, seq, c.compile)
}

// SetController rebinds the sequence source used by TrainShared without
// disturbing the shared parameters.
func (c *enasCore) SetController(ctrl dag.Controller) {
	if c.setter != nil {
		c.setter.SetController(ctrl)
	}
}

// TrainShared runs rounds controller-sampled training passes over the
// shared parameters. Samples that decode to unfed architectures are
// skipped, not fatal.
func (c *enasCore) TrainShared(ctx context.Context, x, y [][]float64, rounds int, fit backend.FitConfig) (trained, skipped int, err error) {
	if c.trainer == nil {
		return 0, 0, errors.New("strategy does not share weights")
	}
	return c.trainer.TrainShared(ctx, x, y, rounds, c.compile, fit)
}

// Layout exposes the sequence segmentation so search loops can sample
// valid sequences.
func (c *enasCore) Layout() *dag.Layout { return c.strategy.Layout() }

// Graph exposes the shared parameter graph.
func (c *enasCore) Graph() *backend.Graph { return c.graph }

// EnasAnnConfig configures the node-DAG dense builder. Output is a single
// operation; multi-output searches go through EnasOutputBlockBuilder.
type EnasAnnConfig struct {
	Space  *space.ModelSpace
	Inputs []space.Operation
	Output space.Operation

	Compile backend.CompileConfig

	WithInputBlocks    bool
	WithSkipConnection bool

	L1, L2 float64
	Graph  *backend.Graph
	Seed   int64
	Logger *slog.Logger
}

// EnasAnnBuilder builds dense models over one weight-shared graph and
// keeps a bookkeeping node graph of the most recent architecture, wired
// exactly the way the shared model is wired.
type EnasAnnBuilder struct {
	enasCore
	bookCfg dag.Config
	nodeDAG *dag.NodeGraph
}

func NewEnasAnnBuilder(cfg EnasAnnConfig) (*EnasAnnBuilder, error) {
	if err := validateCore(cfg.Space, cfg.Inputs, cfg.Compile); err != nil {
		return nil, err
	}
	if cfg.Output.Type() == "" {
		return nil, fmt.Errorf("%w: output operation is required", ErrBadBuilder)
	}

	dcfg := dag.Config{
		Space:              cfg.Space,
		Inputs:             cfg.Inputs,
		Outputs:            []space.Operation{cfg.Output},
		WithInputBlocks:    cfg.WithInputBlocks,
		WithSkipConnection: cfg.WithSkipConnection,
		Graph:              cfg.Graph,
		L1:                 cfg.L1,
		L2:                 cfg.L2,
		Seed:               cfg.Seed,
		Logger:             cfg.Logger,
	}
	core, err := newEnasCore(dag.StrategyEnasAnn, dcfg, cfg.Compile)
	if err != nil {
		return nil, err
	}
	dcfg.Graph = core.graph
	return &EnasAnnBuilder{enasCore: core, bookCfg: dcfg}, nil
}

// Build decodes seq against the shared graph and compiles the result. It
// also assembles the bookkeeping node graph for the same sequence, which
// stays retrievable through NodeDAG until the next successful Build.
func (b *EnasAnnBuilder) Build(seq dag.Sequence) (backend.Model, error) {
	ng, err := dag.AssembleNodes(b.bookCfg, seq)
	if err != nil {
		b.log.Error("architecture decode failed",
			"sequence", seq,
			"error", err)
		return nil, fmt.Errorf("%w: %w", ErrBuild, err)
	}
	m, err := b.enasCore.Build(seq)
	if err != nil {
		return nil, err
	}
	b.nodeDAG = ng
	return m, nil
}

// NodeDAG returns the node graph of the most recent successful Build, nil
// before the first.
func (b *EnasAnnBuilder) NodeDAG() *dag.NodeGraph { return b.nodeDAG }

// EnasOutputBlockConfig configures the multi-output dense builder. Every
// named output selects its feeding layers through trailing sequence bits.
type EnasOutputBlockConfig struct {
	Space   *space.ModelSpace
	Inputs  []space.Operation
	Outputs []space.Operation

	Compile backend.CompileConfig

	WithInputBlocks    bool
	WithSkipConnection bool

	L1, L2 float64
	Graph  *backend.Graph
	Seed   int64
	Logger *slog.Logger
}

// EnasOutputBlockBuilder builds weight-shared dense models whose outputs
// are wired per sequence rather than pinned to the final layer.
type EnasOutputBlockBuilder struct {
	enasCore
}

func NewEnasOutputBlockBuilder(cfg EnasOutputBlockConfig) (*EnasOutputBlockBuilder, error) {
	if err := validateCore(cfg.Space, cfg.Inputs, cfg.Compile); err != nil {
		return nil, err
	}
	if len(cfg.Outputs) == 0 {
		return nil, fmt.Errorf("%w: at least one output operation is required", ErrBadBuilder)
	}

	core, err := newEnasCore(dag.StrategyEnasAnn, dag.Config{
		Space:              cfg.Space,
		Inputs:             cfg.Inputs,
		Outputs:            cfg.Outputs,
		WithInputBlocks:    cfg.WithInputBlocks,
		WithSkipConnection: cfg.WithSkipConnection,
		WithOutputBlocks:   true,
		Graph:              cfg.Graph,
		L1:                 cfg.L1,
		L2:                 cfg.L2,
		Seed:               cfg.Seed,
		Logger:             cfg.Logger,
	}, cfg.Compile)
	if err != nil {
		return nil, err
	}
	return &EnasOutputBlockBuilder{enasCore: core}, nil
}

// DAGOptions carries regularization knobs threaded into the shared
// convolutional graph.
type DAGOptions struct {
	L1 float64
	L2 float64
}

// EnasCnnConfig configures the convolutional builder. The single input
// operation must declare a shape attribute of [length, channels].
type EnasCnnConfig struct {
	Space  *space.ModelSpace
	Input  space.Operation
	Output space.Operation

	Compile backend.CompileConfig

	WithSkipConnection bool

	// BatchSize is the default training batch of built models. Zero
	// selects the strategy default.
	BatchSize int

	DAGOptions DAGOptions
	Graph      *backend.Graph
	Seed       int64
	Logger     *slog.Logger
}

// EnasCnnBuilder builds one-dimensional convolutional models over a
// weight-shared graph with per-candidate kernels.
type EnasCnnBuilder struct {
	enasCore
}

func NewEnasCnnBuilder(cfg EnasCnnConfig) (*EnasCnnBuilder, error) {
	if cfg.Input.Type() == "" {
		return nil, fmt.Errorf("%w: input operation is required", ErrBadBuilder)
	}
	if err := validateCore(cfg.Space, []space.Operation{cfg.Input}, cfg.Compile); err != nil {
		return nil, err
	}
	if cfg.Output.Type() == "" {
		return nil, fmt.Errorf("%w: output operation is required", ErrBadBuilder)
	}

	core, err := newEnasCore(dag.StrategyEnasCnn, dag.Config{
		Space:              cfg.Space,
		Inputs:             []space.Operation{cfg.Input},
		Outputs:            []space.Operation{cfg.Output},
		WithSkipConnection: cfg.WithSkipConnection,
		Graph:              cfg.Graph,
		BatchSize:          cfg.BatchSize,
		L1:                 cfg.DAGOptions.L1,
		L2:                 cfg.DAGOptions.L2,
		Seed:               cfg.Seed,
		Logger:             cfg.Logger,
	}, cfg.Compile)
	if err != nil {
		return nil, err
	}
	return &EnasCnnBuilder{enasCore: core}, nil
}
