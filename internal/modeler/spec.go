package modeler

import (
	"fmt"
	"log/slog"

	"daedalus/internal/backend"
	"daedalus/internal/space"
)

// Builder kinds accepted by NewFromSpec.
const (
	KindDAG     = "dag"
	KindEnasAnn = "enas-ann"
	KindEnasCnn = "enas-cnn"
)

// BuilderSpec is the serialized form of a builder configuration, loadable
// from YAML search configs.
type BuilderSpec struct {
	// Kind selects the builder family: "dag", "enas-ann" or "enas-cnn".
	// Empty selects "dag".
	Kind string `yaml:"kind,omitempty"`

	// Strategy names the assembler strategy for kind "dag". Empty selects
	// feedforward.
	Strategy string `yaml:"strategy,omitempty"`

	// UseNodeDAG asks the enas-ann kind for the bookkeeping node-graph
	// variant. It cannot be combined with WithOutputBlocks.
	UseNodeDAG       bool `yaml:"use_node_dag,omitempty"`
	WithOutputBlocks bool `yaml:"with_output_blocks,omitempty"`

	WithInputBlocks    bool `yaml:"with_input_blocks,omitempty"`
	WithSkipConnection bool `yaml:"with_skip_connection,omitempty"`

	BatchSize int     `yaml:"batch_size,omitempty"`
	L1        float64 `yaml:"l1,omitempty"`
	L2        float64 `yaml:"l2,omitempty"`

	Loss         string   `yaml:"loss"`
	Metrics      []string `yaml:"metrics,omitempty"`
	Optimizer    string   `yaml:"optimizer,omitempty"`
	LearningRate float64  `yaml:"learning_rate,omitempty"`

	Seed int64 `yaml:"seed,omitempty"`
}

func (s BuilderSpec) compile() backend.CompileConfig {
	return backend.CompileConfig{
		Optimizer:    s.Optimizer,
		Loss:         s.Loss,
		Metrics:      s.Metrics,
		LearningRate: s.LearningRate,
	}
}

// Deps carries the runtime dependencies a serialized spec cannot express:
// the model space, the input and output operations, and the backend
// plumbing.
type Deps struct {
	Space    *space.ModelSpace
	Inputs   []space.Operation
	Outputs  []space.Operation
	Graph    *backend.Graph
	Executor backend.Executor
	Logger   *slog.Logger
}

// NewFromSpec constructs the builder a spec describes. Node-DAG and
// output-block modes cannot be combined; the conflict is rejected before
// any shared state is allocated.
func NewFromSpec(spec BuilderSpec, deps Deps) (Builder, error) {
	if spec.UseNodeDAG && spec.WithOutputBlocks {
		return nil, ErrSpecConflict
	}

	switch spec.Kind {
	case KindDAG, "":
		out, err := soleOutput(deps.Outputs)
		if err != nil {
			return nil, err
		}
		return NewDAGBuilder(DAGConfig{
			Space:              deps.Space,
			Inputs:             deps.Inputs,
			Output:             out,
			Compile:            spec.compile(),
			Strategy:           spec.Strategy,
			WithInputBlocks:    spec.WithInputBlocks,
			WithSkipConnection: spec.WithSkipConnection,
			Graph:              deps.Graph,
			Executor:           deps.Executor,
			Seed:               spec.Seed,
			Logger:             deps.Logger,
		})
	case KindEnasAnn:
		if spec.WithOutputBlocks {
			return NewEnasOutputBlockBuilder(EnasOutputBlockConfig{
				Space:              deps.Space,
				Inputs:             deps.Inputs,
				Outputs:            deps.Outputs,
				Compile:            spec.compile(),
				WithInputBlocks:    spec.WithInputBlocks,
				WithSkipConnection: spec.WithSkipConnection,
				L1:                 spec.L1,
				L2:                 spec.L2,
				Graph:              deps.Graph,
				Seed:               spec.Seed,
				Logger:             deps.Logger,
			})
		}
		out, err := soleOutput(deps.Outputs)
		if err != nil {
			return nil, err
		}
		return NewEnasAnnBuilder(EnasAnnConfig{
			Space:              deps.Space,
			Inputs:             deps.Inputs,
			Output:             out,
			Compile:            spec.compile(),
			WithInputBlocks:    spec.WithInputBlocks,
			WithSkipConnection: spec.WithSkipConnection,
			L1:                 spec.L1,
			L2:                 spec.L2,
			Graph:              deps.Graph,
			Seed:               spec.Seed,
			Logger:             deps.Logger,
		})
	case KindEnasCnn:
		if len(deps.Inputs) != 1 {
			return nil, fmt.Errorf("%w: exactly one input operation is required, got %d", ErrBadBuilder, len(deps.Inputs))
		}
		out, err := soleOutput(deps.Outputs)
		if err != nil {
			return nil, err
		}
		return NewEnasCnnBuilder(EnasCnnConfig{
			Space:              deps.Space,
			Input:              deps.Inputs[0],
			Output:             out,
			Compile:            spec.compile(),
			WithSkipConnection: spec.WithSkipConnection,
			BatchSize:          spec.BatchSize,
			DAGOptions:         DAGOptions{L1: spec.L1, L2: spec.L2},
			Graph:              deps.Graph,
			Seed:               spec.Seed,
			Logger:             deps.Logger,
		})
	default:
		return nil, fmt.Errorf("%w: unknown builder kind %q", ErrBadBuilder, spec.Kind)
	}
}

func soleOutput(outs []space.Operation) (space.Operation, error) {
	if len(outs) != 1 {
		return space.Operation{}, fmt.Errorf("%w: exactly one output operation is required, got %d", ErrBadBuilder, len(outs))
	}
	return outs[0], nil
}
