package dag

import (
	"fmt"

	"daedalus/internal/backend"
)

// feedForward is the plain assembler: layers form a chain from the inputs
// to the single output, with optional input-block and skip selections
// adding edges on top. It builds fresh parameters on every decode (no
// weight sharing).
type feedForward struct {
	cfg    Config
	layout *Layout
	strict bool
}

func newFeedForward(cfg Config) (Strategy, error) {
	return newAssembler(cfg, false)
}

// inputBlock is the selector-driven assembler: edges come from the
// sequence's selector bits wherever a group is enabled, with the same
// forced wiring the weight-shared strategies use where a group is
// disabled. A layer whose selectors pick nothing fails the decode. It
// requires input blocks so at least the input edges are explicit.
func newInputBlock(cfg Config) (Strategy, error) {
	if !cfg.WithInputBlocks {
		return nil, fmt.Errorf("%w: selector-driven wiring requires input blocks", ErrBadConfig)
	}
	return newAssembler(cfg, true)
}

func newAssembler(cfg Config, strict bool) (Strategy, error) {
	layout, err := assemblerLayout(&cfg)
	if err != nil {
		return nil, err
	}
	return &feedForward{cfg: cfg, layout: layout, strict: strict}, nil
}

func assemblerLayout(cfg *Config) (*Layout, error) {
	if cfg.Space == nil {
		return nil, fmt.Errorf("%w: model space is required", ErrBadConfig)
	}
	if len(cfg.Inputs) == 0 {
		return nil, fmt.Errorf("%w: at least one input operation is required", ErrBadConfig)
	}
	if len(cfg.Outputs) != 1 {
		return nil, fmt.Errorf("%w: exactly one output operation is required, got %d", ErrBadConfig, len(cfg.Outputs))
	}
	if cfg.WithOutputBlocks {
		return nil, fmt.Errorf("%w: output blocks are not supported by this strategy", ErrBadConfig)
	}
	for _, in := range cfg.Inputs {
		if _, err := inputName(in); err != nil {
			return nil, err
		}
	}
	return NewLayout(cfg.Space, LayoutConfig{
		NumInputs:          len(cfg.Inputs),
		WithInputBlocks:    cfg.WithInputBlocks,
		WithSkipConnection: cfg.WithSkipConnection,
	})
}

func (f *feedForward) Layout() *Layout { return f.layout }

func (f *feedForward) Decode(seq Sequence) (backend.Model, error) {
	if f.cfg.Executor == nil {
		return nil, fmt.Errorf("%w: executor is required", ErrBadConfig)
	}
	ng, err := assembleNodes(&f.cfg, f.layout, seq, f.strict)
	if err != nil {
		return nil, err
	}
	return f.cfg.Executor.NewModel(f.cfg.graph(), toModelGraph(ng))
}

// AssembleNodes decodes seq into a bookkeeping node graph wired exactly
// the way the weight-shared strategies wire it. It needs no executor; the
// builders use it to expose parent/child wiring alongside their own
// decode.
func AssembleNodes(cfg Config, seq Sequence) (*NodeGraph, error) {
	layout, err := assemblerLayout(&cfg)
	if err != nil {
		return nil, err
	}
	return assembleNodes(&cfg, layout, seq, true)
}

func assembleNodes(cfg *Config, layout *Layout, seq Sequence, strict bool) (*NodeGraph, error) {
	if err := layout.Validate(seq); err != nil {
		return nil, err
	}

	ng := newNodeGraph()
	for _, op := range cfg.Inputs {
		name, err := inputName(op)
		if err != nil {
			return nil, err
		}
		n := NewNode(name, op)
		if err := ng.register(n); err != nil {
			return nil, err
		}
		ng.Inputs = append(ng.Inputs, n)
	}

	for i := 0; i < layout.NumLayers(); i++ {
		ops, err := cfg.Space.Layer(i)
		if err != nil {
			return nil, err
		}
		op := ops[layout.OpIndex(seq, i)]
		name, _ := op.StringAttr("name")
		if name == "" {
			name = fmt.Sprintf("layer_%d", i)
		}
		n := NewNode(name, op)
		if err := ng.register(n); err != nil {
			return nil, err
		}

		var parents []*Node
		for k, bit := range layout.InputBits(seq, i) {
			if bit == 1 {
				parents = append(parents, ng.Inputs[k])
			}
		}
		if strict {
			if !cfg.WithInputBlocks && i == 0 {
				parents = append(parents, ng.Inputs...)
			}
			if cfg.WithSkipConnection {
				for j, bit := range layout.SkipBits(seq, i) {
					if bit == 1 {
						parents = append(parents, ng.Layers[j])
					}
				}
			} else if i > 0 {
				parents = append(parents, ng.Layers[i-1])
			}
		} else {
			if i == 0 {
				if !cfg.WithInputBlocks {
					parents = append(parents, ng.Inputs...)
				} else if len(parents) == 0 {
					// Documented fallback: an unselected first layer reads
					// the first declared input.
					parents = []*Node{ng.Inputs[0]}
				}
			} else {
				for j, bit := range layout.SkipBits(seq, i) {
					if bit == 1 && j != i-1 {
						parents = append(parents, ng.Layers[j])
					}
				}
				parents = append(parents, ng.Layers[i-1])
			}
		}
		if len(parents) == 0 {
			return nil, fmt.Errorf("%w: layer %d", ErrNoInput, i)
		}
		for _, p := range parents {
			connect(p, n)
		}
		ng.Layers = append(ng.Layers, n)
	}

	outName, _ := cfg.Outputs[0].StringAttr("name")
	if outName == "" {
		outName = "output"
	}
	out := NewNode(outName, cfg.Outputs[0])
	if err := ng.register(out); err != nil {
		return nil, err
	}
	connect(ng.Layers[len(ng.Layers)-1], out)
	ng.Outputs = append(ng.Outputs, out)
	return ng, nil
}

func toModelGraph(ng *NodeGraph) *backend.ModelGraph {
	mg := &backend.ModelGraph{}
	for _, n := range ng.Inputs {
		mg.Inputs = append(mg.Inputs, backend.NodeSpec{Name: n.Name, Op: n.Op})
	}
	for _, n := range ng.Layers {
		mg.Hidden = append(mg.Hidden, toNodeSpec(n))
	}
	for _, n := range ng.Outputs {
		mg.Outputs = append(mg.Outputs, toNodeSpec(n))
	}
	return mg
}

func toNodeSpec(n *Node) backend.NodeSpec {
	spec := backend.NodeSpec{Name: n.Name, Op: n.Op}
	for _, p := range n.parents {
		spec.Inputs = append(spec.Inputs, p.Name)
	}
	return spec
}
