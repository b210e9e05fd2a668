package backend

import (
	"context"
	"errors"
	"fmt"

	"daedalus/internal/space"
)

var (
	ErrNotCompiled   = errors.New("model is not compiled")
	ErrBadCompile    = errors.New("invalid compile configuration")
	ErrUnsupportedOp = errors.New("unsupported operation type")
	ErrShape         = errors.New("input shape mismatch")
)

// OptimizerPerturb is the weight-perturbation optimizer every built model
// supports. It is the default when CompileConfig.Optimizer is empty.
const OptimizerPerturb = "perturb"

type CompileConfig struct {
	Optimizer    string
	Loss         string
	Metrics      []string
	LearningRate float64
}

// Validate resolves the loss and metric names and rejects unknown
// optimizers. Losses are mandatory.
func (c CompileConfig) Validate() error {
	if c.Optimizer != "" && c.Optimizer != OptimizerPerturb {
		return fmt.Errorf("%w: optimizer %q", ErrBadCompile, c.Optimizer)
	}
	if c.Loss == "" {
		return fmt.Errorf("%w: loss is required", ErrBadCompile)
	}
	if _, err := GetLoss(c.Loss); err != nil {
		return fmt.Errorf("%w: %v", ErrBadCompile, err)
	}
	for _, m := range c.Metrics {
		if _, err := GetMetric(m); err != nil {
			return fmt.Errorf("%w: %v", ErrBadCompile, err)
		}
	}
	if c.LearningRate < 0 {
		return fmt.Errorf("%w: learning rate must be >= 0", ErrBadCompile)
	}
	return nil
}

type FitConfig struct {
	Epochs    int
	BatchSize int
	Seed      int64
}

// History records per-epoch training loss and metric values.
type History struct {
	Loss    []float64
	Metrics map[string][]float64
}

// Model is a built, runnable network. Compile must succeed before Fit or
// Evaluate. Implementations are not safe for concurrent use.
type Model interface {
	Compile(cfg CompileConfig) error
	Fit(ctx context.Context, x, y [][]float64, cfg FitConfig) (History, error)
	Evaluate(ctx context.Context, x, y [][]float64) (map[string]float64, error)
	Predict(x [][]float64) ([][]float64, error)
}

// Layer applies one operation to a vector.
type Layer interface {
	Name() string
	OutDim() int
	Apply(in []float64) ([]float64, error)
}

// NodeSpec describes one node of an assembled model graph: the operation
// it runs and the names of the nodes feeding it.
type NodeSpec struct {
	Name   string
	Op     space.Operation
	Inputs []string
}

// ModelGraph is the executor-facing description of a decoded architecture.
// Hidden nodes appear in topological order; every name referenced by a
// node must be declared earlier (inputs first).
type ModelGraph struct {
	Inputs  []NodeSpec
	Hidden  []NodeSpec
	Outputs []NodeSpec
}

// Executor materializes operations and assembled graphs into runnable
// layers and models. Parameters are registered in the supplied Graph so
// callers control sharing and naming.
type Executor interface {
	NewLayer(g *Graph, op space.Operation, inDim int) (Layer, error)
	NewModel(g *Graph, mg *ModelGraph) (Model, error)
}
