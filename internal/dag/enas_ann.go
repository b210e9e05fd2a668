package dag

import (
	"context"
	"fmt"
	"math/rand"

	"daedalus/internal/backend"
)

// enasAnn owns one weight-shared dense graph over a model space. All
// parameters are allocated exactly once at construction and registered in
// the backing Graph; Decode re-derives active wiring only, so every model
// it returns trains the same underlying weights.
type enasAnn struct {
	cfg    Config
	layout *Layout
	rng    *rand.Rand

	inputNames []string
	inDims     []int
	maxUnits   []int
	candUnits  [][]int
	candActs   [][]string

	outNames []string
	outUnits []int
	outActs  []string

	wInput [][]*backend.Parameter
	wLayer [][]*backend.Parameter
	bias   []*backend.Parameter
	wOut   [][]*backend.Parameter
	bOut   []*backend.Parameter

	controller Controller
}

func newEnasAnn(cfg Config) (Strategy, error) {
	d := &enasAnn{cfg: cfg, rng: rand.New(rand.NewSource(cfg.Seed))}
	if cfg.Space == nil {
		return nil, fmt.Errorf("%w: model space is required", ErrBadConfig)
	}
	if len(cfg.Inputs) == 0 {
		return nil, fmt.Errorf("%w: at least one input operation is required", ErrBadConfig)
	}
	if len(cfg.Outputs) == 0 {
		return nil, fmt.Errorf("%w: at least one output operation is required", ErrBadConfig)
	}

	for _, in := range cfg.Inputs {
		name, err := inputName(in)
		if err != nil {
			return nil, err
		}
		units, ok := in.IntAttr("units")
		if !ok || units <= 0 {
			return nil, fmt.Errorf("%w: input %s requires positive units", ErrBadConfig, name)
		}
		d.inputNames = append(d.inputNames, name)
		d.inDims = append(d.inDims, units)
	}

	for _, out := range cfg.Outputs {
		name, _ := out.StringAttr("name")
		if name == "" {
			if len(cfg.Outputs) > 1 {
				return nil, fmt.Errorf("%w: multiple outputs need name attributes", ErrBadConfig)
			}
			name = "output"
		}
		units, ok := out.IntAttr("units")
		if !ok || units <= 0 {
			return nil, fmt.Errorf("%w: output %s requires positive units", ErrBadConfig, name)
		}
		act, _ := out.StringAttr("activation")
		if !backend.ValidActivation(act) {
			return nil, fmt.Errorf("%w: output %s activation %q", ErrBadConfig, name, act)
		}
		d.outNames = append(d.outNames, name)
		d.outUnits = append(d.outUnits, units)
		d.outActs = append(d.outActs, act)
	}

	outputBlocks := 0
	if cfg.WithOutputBlocks {
		outputBlocks = len(cfg.Outputs)
	}
	layout, err := NewLayout(cfg.Space, LayoutConfig{
		NumInputs:          len(cfg.Inputs),
		WithInputBlocks:    cfg.WithInputBlocks,
		WithSkipConnection: cfg.WithSkipConnection,
		OutputBlocks:       outputBlocks,
	})
	if err != nil {
		return nil, err
	}
	d.layout = layout

	for i := 0; i < layout.NumLayers(); i++ {
		ops, err := cfg.Space.Layer(i)
		if err != nil {
			return nil, err
		}
		var units []int
		var acts []string
		max := 0
		for _, op := range ops {
			if op.Type() != "dense" {
				return nil, fmt.Errorf("%w: layer %d candidate %s is not dense", ErrBadConfig, i, op.Type())
			}
			u, ok := op.IntAttr("units")
			if !ok || u <= 0 {
				return nil, fmt.Errorf("%w: layer %d dense candidate requires positive units", ErrBadConfig, i)
			}
			act, _ := op.StringAttr("activation")
			if !backend.ValidActivation(act) {
				return nil, fmt.Errorf("%w: layer %d activation %q", ErrBadConfig, i, act)
			}
			units = append(units, u)
			acts = append(acts, act)
			if u > max {
				max = u
			}
		}
		d.candUnits = append(d.candUnits, units)
		d.candActs = append(d.candActs, acts)
		d.maxUnits = append(d.maxUnits, max)
	}

	if err := d.createParams(); err != nil {
		return nil, err
	}
	return d, nil
}

// createParams allocates the shared weights. Candidates with fewer units
// than the layer maximum use the leading slice of each parameter, which is
// what lets differently sized candidates share storage.
func (d *enasAnn) createParams() error {
	g := d.cfg.graph()
	L := d.layout.NumLayers()
	for i := 0; i < L; i++ {
		g.AppendVarScope(fmt.Sprintf("layer_%d", i))

		ws := make([]*backend.Parameter, len(d.inDims))
		if d.cfg.WithInputBlocks || i == 0 {
			for k := range d.inDims {
				w, err := backend.NewParameter("w", d.inDims[k], d.maxUnits[i])
				if err != nil {
					g.StripVarScope()
					return err
				}
				w.InitUniform(d.rng, 0)
				g.AddParam(fmt.Sprintf("w_from_%s", d.inputNames[k]), w)
				ws[k] = w
			}
		}
		d.wInput = append(d.wInput, ws)

		ls := make([]*backend.Parameter, i)
		for j := 0; j < i; j++ {
			if !d.cfg.WithSkipConnection && j != i-1 {
				continue
			}
			w, err := backend.NewParameter("w", d.maxUnits[j], d.maxUnits[i])
			if err != nil {
				g.StripVarScope()
				return err
			}
			w.InitUniform(d.rng, 0)
			g.AddParam(fmt.Sprintf("w_from_layer_%d", j), w)
			ls[j] = w
		}
		d.wLayer = append(d.wLayer, ls)

		b, err := backend.NewParameter("b", d.maxUnits[i])
		if err != nil {
			g.StripVarScope()
			return err
		}
		g.AddParam("b", b)
		d.bias = append(d.bias, b)
		g.StripVarScope()
	}

	for o := range d.outNames {
		g.AppendVarScope(d.outNames[o])
		ws := make([]*backend.Parameter, L)
		for j := 0; j < L; j++ {
			if !d.cfg.WithOutputBlocks && j != L-1 {
				continue
			}
			w, err := backend.NewParameter("w", d.maxUnits[j], d.outUnits[o])
			if err != nil {
				g.StripVarScope()
				return err
			}
			w.InitUniform(d.rng, 0)
			g.AddParam(fmt.Sprintf("w_from_layer_%d", j), w)
			ws[j] = w
		}
		d.wOut = append(d.wOut, ws)
		b, err := backend.NewParameter("b", d.outUnits[o])
		if err != nil {
			g.StripVarScope()
			return err
		}
		g.AddParam("b", b)
		d.bOut = append(d.bOut, b)
		g.StripVarScope()
	}
	return nil
}

func (d *enasAnn) Layout() *Layout { return d.layout }

func (d *enasAnn) SetController(c Controller) { d.controller = c }

// annWiring is the active connectivity decoded from one sequence.
type annWiring struct {
	opIdx    []int
	inputSel [][]bool
	layerSel [][]bool
	outSel   [][]bool
}

// decodeWiring reads a layer's predecessors entirely from its skip bits:
// the chain predecessor is bit 0, not an implicit edge, so all-zero bits
// leave the layer unfed. The cnn strategy uses the opposite convention
// and always wires the chain predecessor.
func (d *enasAnn) decodeWiring(seq Sequence) (*annWiring, error) {
	if err := d.layout.Validate(seq); err != nil {
		return nil, err
	}
	L := d.layout.NumLayers()
	w := &annWiring{}
	for i := 0; i < L; i++ {
		w.opIdx = append(w.opIdx, d.layout.OpIndex(seq, i))

		inSel := make([]bool, len(d.inDims))
		if d.cfg.WithInputBlocks {
			for k, bit := range d.layout.InputBits(seq, i) {
				inSel[k] = bit == 1
			}
		} else if i == 0 {
			for k := range inSel {
				inSel[k] = true
			}
		}
		w.inputSel = append(w.inputSel, inSel)

		laySel := make([]bool, i)
		if d.cfg.WithSkipConnection {
			for j, bit := range d.layout.SkipBits(seq, i) {
				laySel[j] = bit == 1
			}
		} else if i > 0 {
			laySel[i-1] = true
		}
		w.layerSel = append(w.layerSel, laySel)

		active := false
		for _, s := range inSel {
			active = active || s
		}
		for _, s := range laySel {
			active = active || s
		}
		if !active {
			return nil, fmt.Errorf("%w: layer %d", ErrNoInput, i)
		}
	}

	for o := range d.outNames {
		sel := make([]bool, L)
		if d.cfg.WithOutputBlocks {
			any := false
			for j, bit := range d.layout.OutputBits(seq, o) {
				sel[j] = bit == 1
				any = any || sel[j]
			}
			if !any {
				// Documented fallback: an output with no selected feeder
				// reads the final layer.
				sel[L-1] = true
			}
		} else {
			sel[L-1] = true
		}
		w.outSel = append(w.outSel, sel)
	}
	return w, nil
}

func (d *enasAnn) Decode(seq Sequence) (backend.Model, error) {
	wiring, err := d.decodeWiring(seq)
	if err != nil {
		return nil, err
	}
	m := &enasAnnModel{dag: d, wiring: wiring}
	m.coreModel = coreModel{
		fw:       m,
		params:   m.activeParams(),
		rng:      d.rng,
		defBatch: d.cfg.BatchSize,
		l1:       d.cfg.L1,
		l2:       d.cfg.L2,
	}
	return m, nil
}

// TrainShared draws sequences from the bound controller and trains the
// shared weights one round per sample.
func (d *enasAnn) TrainShared(ctx context.Context, x, y [][]float64, rounds int, compile backend.CompileConfig, fit backend.FitConfig) (trained, skipped int, err error) {
	return trainShared(ctx, d, d.controller, x, y, rounds, compile, fit)
}

// enasAnnModel is one decoded architecture over the shared graph. It
// borrows the dag's parameters; Fit mutates them in place.
type enasAnnModel struct {
	coreModel
	dag    *enasAnn
	wiring *annWiring
}

func (m *enasAnnModel) activeParams() []*backend.Parameter {
	d := m.dag
	var params []*backend.Parameter
	for i := range d.maxUnits {
		for k, sel := range m.wiring.inputSel[i] {
			if sel && d.wInput[i][k] != nil {
				params = append(params, d.wInput[i][k])
			}
		}
		for j, sel := range m.wiring.layerSel[i] {
			if sel && d.wLayer[i][j] != nil {
				params = append(params, d.wLayer[i][j])
			}
		}
		params = append(params, d.bias[i])
	}
	for o := range d.outNames {
		for j, sel := range m.wiring.outSel[o] {
			if sel && d.wOut[o][j] != nil {
				params = append(params, d.wOut[o][j])
			}
		}
		params = append(params, d.bOut[o])
	}
	return params
}

func (m *enasAnnModel) inDim() int {
	total := 0
	for _, d := range m.dag.inDims {
		total += d
	}
	return total
}

func (m *enasAnnModel) outDim() int {
	total := 0
	for _, u := range m.dag.outUnits {
		total += u
	}
	return total
}

// forward runs one example; the row is all declared inputs concatenated in
// declaration order.
func (m *enasAnnModel) forward(row []float64) ([]float64, error) {
	d := m.dag
	if len(row) != m.inDim() {
		return nil, fmt.Errorf("%w: got %d values, want %d", backend.ErrShape, len(row), m.inDim())
	}
	xs := make([][]float64, len(d.inDims))
	off := 0
	for k, dim := range d.inDims {
		xs[k] = row[off : off+dim]
		off += dim
	}

	hs := make([][]float64, d.layout.NumLayers())
	for i := range hs {
		op := m.wiring.opIdx[i]
		units := d.candUnits[i][op]
		acc := make([]float64, units)
		copy(acc, d.bias[i].Data[:units])
		for k, sel := range m.wiring.inputSel[i] {
			if !sel {
				continue
			}
			w := d.wInput[i][k]
			for q := 0; q < units; q++ {
				sum := 0.0
				for p := 0; p < len(xs[k]); p++ {
					sum += xs[k][p] * w.At2(p, q)
				}
				acc[q] += sum
			}
		}
		for j, sel := range m.wiring.layerSel[i] {
			if !sel {
				continue
			}
			w := d.wLayer[i][j]
			src := hs[j]
			for q := 0; q < units; q++ {
				sum := 0.0
				for p := 0; p < len(src); p++ {
					sum += src[p] * w.At2(p, q)
				}
				acc[q] += sum
			}
		}
		if err := backend.ApplyActivation(d.candActs[i][op], acc); err != nil {
			return nil, err
		}
		hs[i] = acc
	}

	out := make([]float64, 0, m.outDim())
	for o := range d.outNames {
		units := d.outUnits[o]
		acc := make([]float64, units)
		copy(acc, d.bOut[o].Data)
		for j, sel := range m.wiring.outSel[o] {
			if !sel {
				continue
			}
			w := d.wOut[o][j]
			src := hs[j]
			for q := 0; q < units; q++ {
				sum := 0.0
				for p := 0; p < len(src); p++ {
					sum += src[p] * w.At2(p, q)
				}
				acc[q] += sum
			}
		}
		if err := backend.ApplyActivation(d.outActs[o], acc); err != nil {
			return nil, err
		}
		out = append(out, acc...)
	}
	return out, nil
}

