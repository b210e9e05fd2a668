package dag

import (
	"errors"
	"math/rand"
	"slices"
	"testing"

	"daedalus/internal/backend"
	"daedalus/internal/space"
)

func namedInput(name string, units int) space.Operation {
	return space.MustOperation("input", space.Attrs{"name": name, "units": units})
}

func namedOutput(units int, activation string) space.Operation {
	return space.MustOperation("dense", space.Attrs{"name": "output", "units": units, "activation": activation})
}

func parentNames(n *Node) []string {
	var names []string
	for _, p := range n.Parents() {
		names = append(names, p.Name)
	}
	return names
}

func TestChainWiring(t *testing.T) {
	cfg := Config{
		Space:   denseSpace(t, denseOps(8, 16), denseOps(8, 16), denseOps(8, 16)),
		Inputs:  []space.Operation{namedInput("a", 4), namedInput("b", 4)},
		Outputs: []space.Operation{namedOutput(1, "sigmoid")},
	}
	s, err := newAssembler(cfg, false)
	if err != nil {
		t.Fatalf("newAssembler: %v", err)
	}
	f := s.(*feedForward)

	ng, err := assembleNodes(&f.cfg, f.layout, Sequence{0, 1, 0}, false)
	if err != nil {
		t.Fatalf("assembleNodes: %v", err)
	}
	if got := parentNames(ng.Layers[0]); !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("layer 0 parents = %v", got)
	}
	if got := parentNames(ng.Layers[1]); !slices.Equal(got, []string{"layer_0"}) {
		t.Errorf("layer 1 parents = %v", got)
	}
	if got := parentNames(ng.Layers[2]); !slices.Equal(got, []string{"layer_1"}) {
		t.Errorf("layer 2 parents = %v", got)
	}
	if got := parentNames(ng.Outputs[0]); !slices.Equal(got, []string{"layer_2"}) {
		t.Errorf("output parents = %v", got)
	}
	if got := ng.Layers[1].Op; got.Type() != "dense" {
		t.Errorf("layer 1 op = %s", got)
	}
	if u, _ := ng.Layers[1].Op.IntAttr("units"); u != 16 {
		t.Errorf("layer 1 selected units %d, want 16", u)
	}
}

func TestSkipConnectionWiring(t *testing.T) {
	cfg := Config{
		Space:              denseSpace(t, denseOps(8), denseOps(8), denseOps(8)),
		Inputs:             []space.Operation{namedInput("a", 4)},
		Outputs:            []space.Operation{namedOutput(1, "sigmoid")},
		WithSkipConnection: true,
	}
	s, err := newAssembler(cfg, false)
	if err != nil {
		t.Fatalf("newAssembler: %v", err)
	}
	f := s.(*feedForward)

	// Layer 2 selects layer 0 and redundantly its own predecessor; the
	// predecessor edge must not double up.
	ng, err := assembleNodes(&f.cfg, f.layout, Sequence{0, 0, 0, 0, 1, 1}, false)
	if err != nil {
		t.Fatalf("assembleNodes: %v", err)
	}
	if got := parentNames(ng.Layers[1]); !slices.Equal(got, []string{"layer_0"}) {
		t.Errorf("layer 1 parents = %v", got)
	}
	if got := parentNames(ng.Layers[2]); !slices.Equal(got, []string{"layer_0", "layer_1"}) {
		t.Errorf("layer 2 parents = %v", got)
	}
	if got := parentNames(ng.Outputs[0]); !slices.Equal(got, []string{"layer_2"}) {
		t.Errorf("output parents = %v", got)
	}

	kids := ng.Layers[0].Children()
	if len(kids) != 2 {
		t.Errorf("layer 0 children = %d, want 2", len(kids))
	}
}

func TestInputBlockFallback(t *testing.T) {
	cfg := Config{
		Space:           denseSpace(t, denseOps(8), denseOps(8)),
		Inputs:          []space.Operation{namedInput("a", 4), namedInput("b", 4)},
		Outputs:         []space.Operation{namedOutput(1, "sigmoid")},
		WithInputBlocks: true,
	}
	s, err := newAssembler(cfg, false)
	if err != nil {
		t.Fatalf("newAssembler: %v", err)
	}
	f := s.(*feedForward)

	// No input selected anywhere: the first layer falls back to the first
	// declared input, later layers ride the chain.
	ng, err := assembleNodes(&f.cfg, f.layout, Sequence{0, 0, 0, 0, 0, 0}, false)
	if err != nil {
		t.Fatalf("assembleNodes: %v", err)
	}
	if got := parentNames(ng.Layers[0]); !slices.Equal(got, []string{"a"}) {
		t.Errorf("layer 0 parents = %v", got)
	}
	if got := parentNames(ng.Layers[1]); !slices.Equal(got, []string{"layer_0"}) {
		t.Errorf("layer 1 parents = %v", got)
	}

	// A selected input block lands ahead of the chain edge.
	ng, err = assembleNodes(&f.cfg, f.layout, Sequence{0, 1, 0, 0, 0, 1}, false)
	if err != nil {
		t.Fatalf("assembleNodes: %v", err)
	}
	if got := parentNames(ng.Layers[1]); !slices.Equal(got, []string{"b", "layer_0"}) {
		t.Errorf("layer 1 parents = %v", got)
	}
}

func TestStrictWiring(t *testing.T) {
	cfg := Config{
		Space:              denseSpace(t, denseOps(8), denseOps(8)),
		Inputs:             []space.Operation{namedInput("a", 4), namedInput("b", 4)},
		Outputs:            []space.Operation{namedOutput(1, "sigmoid")},
		WithInputBlocks:    true,
		WithSkipConnection: true,
	}

	ng, err := AssembleNodes(cfg, Sequence{0, 1, 1, 0, 0, 1, 1})
	if err != nil {
		t.Fatalf("AssembleNodes: %v", err)
	}
	if got := parentNames(ng.Layers[0]); !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("layer 0 parents = %v", got)
	}
	if got := parentNames(ng.Layers[1]); !slices.Equal(got, []string{"b", "layer_0"}) {
		t.Errorf("layer 1 parents = %v", got)
	}

	n, ok := ng.ByName("layer_1")
	if !ok || n != ng.Layers[1] {
		t.Error("ByName(layer_1) lookup failed")
	}

	// With both selector groups enabled there are no implicit edges: an
	// unselected layer is an error.
	_, err = AssembleNodes(cfg, Sequence{0, 1, 1, 0, 0, 0, 0})
	if !errors.Is(err, ErrNoInput) {
		t.Fatalf("unfed layer: %v, want ErrNoInput", err)
	}
}

func TestAssembleNodesMirrorsForcedWiring(t *testing.T) {
	// Selector groups disabled: the bookkeeping graph uses the same forced
	// wiring as the weight-shared strategies.
	cfg := Config{
		Space:   denseSpace(t, denseOps(8), denseOps(8)),
		Inputs:  []space.Operation{namedInput("a", 4), namedInput("b", 4)},
		Outputs: []space.Operation{namedOutput(1, "sigmoid")},
	}
	ng, err := AssembleNodes(cfg, Sequence{0, 0})
	if err != nil {
		t.Fatalf("AssembleNodes: %v", err)
	}
	if got := parentNames(ng.Layers[0]); !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("layer 0 parents = %v", got)
	}
	if got := parentNames(ng.Layers[1]); !slices.Equal(got, []string{"layer_0"}) {
		t.Errorf("layer 1 parents = %v", got)
	}

	// Skip connections enabled without input blocks: later layers are
	// wired purely by their skip bits.
	cfg.WithSkipConnection = true
	ng, err = AssembleNodes(cfg, Sequence{0, 0, 1})
	if err != nil {
		t.Fatalf("AssembleNodes with skip: %v", err)
	}
	if got := parentNames(ng.Layers[1]); !slices.Equal(got, []string{"layer_0"}) {
		t.Errorf("layer 1 parents = %v", got)
	}
	if _, err := AssembleNodes(cfg, Sequence{0, 0, 0}); !errors.Is(err, ErrNoInput) {
		t.Fatalf("unfed layer: %v, want ErrNoInput", err)
	}
}

func TestStrictRequiresInputBlocks(t *testing.T) {
	cfg := Config{
		Space:   denseSpace(t, denseOps(8)),
		Inputs:  []space.Operation{namedInput("a", 4)},
		Outputs: []space.Operation{namedOutput(1, "sigmoid")},
	}
	if _, err := New(StrategyInputBlock, cfg); !errors.Is(err, ErrBadConfig) {
		t.Fatalf("New: %v, want ErrBadConfig", err)
	}
}

func TestAssemblerConfigValidation(t *testing.T) {
	base := Config{
		Space:   denseSpace(t, denseOps(8)),
		Inputs:  []space.Operation{namedInput("a", 4)},
		Outputs: []space.Operation{namedOutput(1, "sigmoid")},
	}

	cfg := base
	cfg.Space = nil
	if _, err := New(StrategyFeedForward, cfg); !errors.Is(err, ErrBadConfig) {
		t.Errorf("nil space: %v", err)
	}

	cfg = base
	cfg.Inputs = nil
	if _, err := New(StrategyFeedForward, cfg); !errors.Is(err, ErrBadConfig) {
		t.Errorf("no inputs: %v", err)
	}

	cfg = base
	cfg.Outputs = nil
	if _, err := New(StrategyFeedForward, cfg); !errors.Is(err, ErrBadConfig) {
		t.Errorf("no outputs: %v", err)
	}

	cfg = base
	cfg.WithOutputBlocks = true
	if _, err := New(StrategyFeedForward, cfg); !errors.Is(err, ErrBadConfig) {
		t.Errorf("output blocks: %v", err)
	}

	cfg = base
	cfg.Inputs = []space.Operation{space.MustOperation("input", space.Attrs{"units": 4})}
	if _, err := New(StrategyFeedForward, cfg); !errors.Is(err, ErrBadConfig) {
		t.Errorf("nameless input: %v", err)
	}
}

func TestNodeNameCollision(t *testing.T) {
	clash := []space.Operation{
		space.MustOperation("dense", space.Attrs{"units": 8, "name": "a"}),
	}
	cfg := Config{
		Space:   denseSpace(t, clash),
		Inputs:  []space.Operation{namedInput("a", 4)},
		Outputs: []space.Operation{namedOutput(1, "sigmoid")},
	}
	s, err := newAssembler(cfg, false)
	if err != nil {
		t.Fatalf("newAssembler: %v", err)
	}
	f := s.(*feedForward)
	if _, err := assembleNodes(&f.cfg, f.layout, Sequence{0}, false); !errors.Is(err, ErrNameCollision) {
		t.Fatalf("assembleNodes: %v, want ErrNameCollision", err)
	}
}

func TestFeedForwardDecode(t *testing.T) {
	cfg := Config{
		Space:    denseSpace(t, denseOps(8, 16), denseOps(8, 16)),
		Inputs:   []space.Operation{namedInput("x", 3)},
		Outputs:  []space.Operation{namedOutput(2, "sigmoid")},
		Graph:    backend.NewGraph(),
		Executor: backend.NewDenseExecutor(1),
	}
	s, err := New(StrategyFeedForward, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	seq := s.Layout().Sample(rand.New(rand.NewSource(3)))
	m, err := s.Decode(seq)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	preds, err := m.Predict([][]float64{{0.1, 0.2, 0.3}})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if len(preds) != 1 || len(preds[0]) != 2 {
		t.Fatalf("prediction shape %dx%d, want 1x2", len(preds), len(preds[0]))
	}
}

func TestFeedForwardDecodeNeedsExecutor(t *testing.T) {
	cfg := Config{
		Space:   denseSpace(t, denseOps(8)),
		Inputs:  []space.Operation{namedInput("x", 3)},
		Outputs: []space.Operation{namedOutput(1, "sigmoid")},
	}
	s, err := New(StrategyFeedForward, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := s.Decode(Sequence{0}); !errors.Is(err, ErrBadConfig) {
		t.Fatalf("Decode: %v, want ErrBadConfig", err)
	}
}
