package dag

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"daedalus/internal/backend"
	"daedalus/internal/space"
)

// defaultConvBatch is the training batch used by decoded convolutional
// models when neither the fit config nor the strategy config names one.
const defaultConvBatch = 128

// cnnCandidate is one resolved layer candidate of a convolutional space.
// Only conv1d candidates carry parameters.
type cnnCandidate struct {
	kind   string
	kernel int
	pool   int
	act    string

	w *backend.Parameter
	b *backend.Parameter
}

// enasCnn owns one weight-shared convolutional graph over a model space.
// Layers form a chain: each layer reads its predecessor and, when skip
// connections are enabled, adds any earlier outputs its sequence bits
// select. Every candidate preserves sequence length (stride 1, same
// padding), so merged tensors always line up.
type enasCnn struct {
	cfg    Config
	layout *Layout
	rng    *rand.Rand

	inName string
	inLen  int
	inCh   int

	channels []int
	cands    [][]cnnCandidate

	outName  string
	outUnits int
	outAct   string
	headW    *backend.Parameter
	headB    *backend.Parameter

	controller Controller
}

func newEnasCnn(cfg Config) (Strategy, error) {
	if cfg.Space == nil {
		return nil, fmt.Errorf("%w: model space is required", ErrBadConfig)
	}
	if cfg.WithInputBlocks {
		return nil, fmt.Errorf("%w: input blocks are not supported for convolutional graphs", ErrBadConfig)
	}
	if cfg.WithOutputBlocks {
		return nil, fmt.Errorf("%w: output blocks are not supported for convolutional graphs", ErrBadConfig)
	}
	if len(cfg.Inputs) != 1 {
		return nil, fmt.Errorf("%w: convolutional graphs take exactly one input, got %d", ErrBadConfig, len(cfg.Inputs))
	}
	if len(cfg.Outputs) != 1 {
		return nil, fmt.Errorf("%w: convolutional graphs take exactly one output, got %d", ErrBadConfig, len(cfg.Outputs))
	}

	d := &enasCnn{cfg: cfg, rng: rand.New(rand.NewSource(cfg.Seed))}

	in := cfg.Inputs[0]
	d.inName, _ = in.StringAttr("name")
	if d.inName == "" {
		d.inName = "input"
	}
	var err error
	d.inLen, d.inCh, err = inputShape(in)
	if err != nil {
		return nil, err
	}

	out := cfg.Outputs[0]
	d.outName, _ = out.StringAttr("name")
	if d.outName == "" {
		d.outName = "output"
	}
	units, ok := out.IntAttr("units")
	if !ok || units <= 0 {
		return nil, fmt.Errorf("%w: output %s requires positive units", ErrBadConfig, d.outName)
	}
	d.outUnits = units
	d.outAct, _ = out.StringAttr("activation")
	if !backend.ValidActivation(d.outAct) {
		return nil, fmt.Errorf("%w: output %s activation %q", ErrBadConfig, d.outName, d.outAct)
	}

	layout, err := NewLayout(cfg.Space, LayoutConfig{
		NumInputs:          1,
		WithSkipConnection: cfg.WithSkipConnection,
	})
	if err != nil {
		return nil, err
	}
	d.layout = layout

	prev := d.inCh
	for i := 0; i < layout.NumLayers(); i++ {
		ops, err := cfg.Space.Layer(i)
		if err != nil {
			return nil, err
		}
		cands, ch, err := resolveConvLayer(i, ops, prev)
		if err != nil {
			return nil, err
		}
		d.cands = append(d.cands, cands)
		d.channels = append(d.channels, ch)
		prev = ch
	}
	if cfg.WithSkipConnection {
		for i := 1; i < len(d.channels); i++ {
			if d.channels[i] != d.channels[0] {
				return nil, fmt.Errorf("%w: skip connections need a uniform channel count, layer %d produces %d vs %d",
					ErrBadConfig, i, d.channels[i], d.channels[0])
			}
		}
	}

	if err := d.createParams(); err != nil {
		return nil, err
	}
	return d, nil
}

// resolveConvLayer checks one layer's candidates and settles the channel
// count every candidate must produce. Weight sharing hangs downstream
// parameters off that count, so candidates may not disagree.
func resolveConvLayer(idx int, ops []space.Operation, inCh int) ([]cnnCandidate, int, error) {
	var cands []cnnCandidate
	outCh := 0
	for _, op := range ops {
		var c cnnCandidate
		ch := inCh
		switch op.Type() {
		case "conv1d":
			f, ok := op.IntAttr("filters")
			if !ok || f <= 0 {
				return nil, 0, fmt.Errorf("%w: layer %d conv1d requires positive filters", ErrBadConfig, idx)
			}
			k, ok := op.IntAttr("kernel_size")
			if !ok || k <= 0 {
				return nil, 0, fmt.Errorf("%w: layer %d conv1d requires positive kernel_size", ErrBadConfig, idx)
			}
			act, _ := op.StringAttr("activation")
			if !backend.ValidActivation(act) {
				return nil, 0, fmt.Errorf("%w: layer %d activation %q", ErrBadConfig, idx, act)
			}
			c = cnnCandidate{kind: op.Type(), kernel: k, act: act}
			ch = f
		case "maxpool1d", "avgpool1d":
			p, ok := op.IntAttr("pool_size")
			if !ok || p <= 0 {
				return nil, 0, fmt.Errorf("%w: layer %d %s requires positive pool_size", ErrBadConfig, idx, op.Type())
			}
			c = cnnCandidate{kind: op.Type(), pool: p}
		case "identity":
			c = cnnCandidate{kind: op.Type()}
		default:
			return nil, 0, fmt.Errorf("%w: layer %d candidate %s is not a convolutional operation", ErrBadConfig, idx, op.Type())
		}
		// Channel-preserving candidates may restate the layer width; it
		// has to match what actually flows through them.
		if op.Type() != "conv1d" {
			if f, ok := op.IntAttr("filters"); ok && f != ch {
				return nil, 0, fmt.Errorf("%w: layer %d %s declares %d filters but receives %d channels",
					ErrBadConfig, idx, op.Type(), f, ch)
			}
		}
		if outCh == 0 {
			outCh = ch
		} else if ch != outCh {
			return nil, 0, fmt.Errorf("%w: layer %d candidates disagree on channels (%d vs %d)", ErrBadConfig, idx, ch, outCh)
		}
		cands = append(cands, c)
	}
	return cands, outCh, nil
}

// inputShape reads the mandatory [length, channels] shape attribute.
func inputShape(op space.Operation) (length, channels int, err error) {
	v, ok := op.Attr("shape")
	if !ok {
		return 0, 0, fmt.Errorf("%w: input requires a shape attribute", ErrBadConfig)
	}
	dims, ok := v.([]any)
	if !ok || len(dims) != 2 {
		return 0, 0, fmt.Errorf("%w: input shape must be [length, channels]", ErrBadConfig)
	}
	var out [2]int
	for i, dim := range dims {
		f, ok := dim.(float64)
		if !ok || f != math.Trunc(f) || f <= 0 {
			return 0, 0, fmt.Errorf("%w: input shape dimensions must be positive integers", ErrBadConfig)
		}
		out[i] = int(f)
	}
	return out[0], out[1], nil
}

// createParams allocates the shared weights: one kernel per conv candidate
// plus a global-average-pool head feeding the output.
func (d *enasCnn) createParams() error {
	g := d.cfg.graph()
	prev := d.inCh
	for i := range d.cands {
		g.AppendVarScope(fmt.Sprintf("layer_%d", i))
		for c := range d.cands[i] {
			cand := &d.cands[i][c]
			if cand.kind != "conv1d" {
				continue
			}
			w, err := backend.NewParameter("w", cand.kernel, prev, d.channels[i])
			if err != nil {
				g.StripVarScope()
				return err
			}
			w.InitUniform(d.rng, 0)
			g.AddParam(fmt.Sprintf("w_cand_%d", c), w)
			cand.w = w

			b, err := backend.NewParameter("b", d.channels[i])
			if err != nil {
				g.StripVarScope()
				return err
			}
			g.AddParam(fmt.Sprintf("b_cand_%d", c), b)
			cand.b = b
		}
		g.StripVarScope()
		prev = d.channels[i]
	}

	g.AppendVarScope(d.outName)
	defer g.StripVarScope()
	w, err := backend.NewParameter("w", d.channels[len(d.channels)-1], d.outUnits)
	if err != nil {
		return err
	}
	w.InitUniform(d.rng, 0)
	g.AddParam("w", w)
	d.headW = w

	b, err := backend.NewParameter("b", d.outUnits)
	if err != nil {
		return err
	}
	g.AddParam("b", b)
	d.headB = b
	return nil
}

func (d *enasCnn) Layout() *Layout { return d.layout }

func (d *enasCnn) SetController(c Controller) { d.controller = c }

// cnnWiring is the active connectivity decoded from one sequence.
type cnnWiring struct {
	opIdx   []int
	skipSel [][]bool
}

func (d *enasCnn) decodeWiring(seq Sequence) (*cnnWiring, error) {
	if err := d.layout.Validate(seq); err != nil {
		return nil, err
	}
	w := &cnnWiring{}
	for i := 0; i < d.layout.NumLayers(); i++ {
		w.opIdx = append(w.opIdx, d.layout.OpIndex(seq, i))
		sel := make([]bool, i)
		if d.cfg.WithSkipConnection {
			for j, bit := range d.layout.SkipBits(seq, i) {
				// The predecessor is always wired; a redundant bit for it
				// is ignored rather than doubled.
				sel[j] = bit == 1 && j != i-1
			}
		}
		w.skipSel = append(w.skipSel, sel)
	}
	return w, nil
}

func (d *enasCnn) Decode(seq Sequence) (backend.Model, error) {
	wiring, err := d.decodeWiring(seq)
	if err != nil {
		return nil, err
	}
	batch := d.cfg.BatchSize
	if batch <= 0 {
		batch = defaultConvBatch
	}
	m := &enasCnnModel{dag: d, wiring: wiring}
	m.coreModel = coreModel{
		fw:       m,
		params:   m.activeParams(),
		rng:      d.rng,
		defBatch: batch,
		l1:       d.cfg.L1,
		l2:       d.cfg.L2,
	}
	return m, nil
}

// TrainShared draws sequences from the bound controller and trains the
// shared weights one round per sample.
func (d *enasCnn) TrainShared(ctx context.Context, x, y [][]float64, rounds int, compile backend.CompileConfig, fit backend.FitConfig) (trained, skipped int, err error) {
	return trainShared(ctx, d, d.controller, x, y, rounds, compile, fit)
}

// enasCnnModel is one decoded architecture over the shared graph. It
// borrows the dag's parameters; Fit mutates them in place.
type enasCnnModel struct {
	coreModel
	dag    *enasCnn
	wiring *cnnWiring
}

func (m *enasCnnModel) activeParams() []*backend.Parameter {
	d := m.dag
	var params []*backend.Parameter
	for i, op := range m.wiring.opIdx {
		cand := d.cands[i][op]
		if cand.w != nil {
			params = append(params, cand.w, cand.b)
		}
	}
	return append(params, d.headW, d.headB)
}

// forward runs one example. The row is the input feature map flattened
// position-major, so value (p, c) lives at row[p*channels+c].
func (m *enasCnnModel) forward(row []float64) ([]float64, error) {
	d := m.dag
	if len(row) != d.inLen*d.inCh {
		return nil, fmt.Errorf("%w: got %d values, want %d", backend.ErrShape, len(row), d.inLen*d.inCh)
	}
	input := make([][]float64, d.inLen)
	for p := range input {
		input[p] = row[p*d.inCh : (p+1)*d.inCh]
	}

	outs := make([][][]float64, len(d.cands))
	for i := range d.cands {
		base := input
		if i > 0 {
			base = outs[i-1]
		}
		merged := base
		cloned := false
		for j, sel := range m.wiring.skipSel[i] {
			if !sel {
				continue
			}
			if !cloned {
				merged = clone2d(base)
				cloned = true
			}
			add2d(merged, outs[j])
		}

		cand := d.cands[i][m.wiring.opIdx[i]]
		var out [][]float64
		var err error
		switch cand.kind {
		case "conv1d":
			out, err = convolve1d(merged, cand.w, cand.b, cand.kernel, d.channels[i], cand.act)
			if err != nil {
				return nil, err
			}
		case "maxpool1d":
			out = pool1d(merged, cand.pool, true)
		case "avgpool1d":
			out = pool1d(merged, cand.pool, false)
		default:
			out = clone2d(merged)
		}
		outs[i] = out
	}

	last := outs[len(outs)-1]
	ch := d.channels[len(d.channels)-1]
	gap := make([]float64, ch)
	for _, pos := range last {
		for c, v := range pos {
			gap[c] += v
		}
	}
	for c := range gap {
		gap[c] /= float64(len(last))
	}

	out := make([]float64, d.outUnits)
	copy(out, d.headB.Data)
	for u := 0; u < d.outUnits; u++ {
		sum := 0.0
		for c := 0; c < ch; c++ {
			sum += gap[c] * d.headW.At2(c, u)
		}
		out[u] += sum
	}
	if err := backend.ApplyActivation(d.outAct, out); err != nil {
		return nil, err
	}
	return out, nil
}

// convolve1d applies a same-padded stride-1 convolution. The weight is
// laid out [kernel][in][out] row-major.
func convolve1d(in [][]float64, w, b *backend.Parameter, kernel, outCh int, act string) ([][]float64, error) {
	inCh := len(in[0])
	pad := (kernel - 1) / 2
	out := make([][]float64, len(in))
	for p := range in {
		acc := make([]float64, outCh)
		copy(acc, b.Data)
		for dk := 0; dk < kernel; dk++ {
			q := p + dk - pad
			if q < 0 || q >= len(in) {
				continue
			}
			for c := 0; c < inCh; c++ {
				v := in[q][c]
				base := (dk*inCh + c) * outCh
				for f := 0; f < outCh; f++ {
					acc[f] += v * w.Data[base+f]
				}
			}
		}
		if err := backend.ApplyActivation(act, acc); err != nil {
			return nil, err
		}
		out[p] = acc
	}
	return out, nil
}

// pool1d applies a same-padded stride-1 pooling window per channel.
// Positions past either end simply fall out of the window.
func pool1d(in [][]float64, size int, usemax bool) [][]float64 {
	ch := len(in[0])
	pad := (size - 1) / 2
	out := make([][]float64, len(in))
	for p := range in {
		acc := make([]float64, ch)
		if usemax {
			for c := range acc {
				acc[c] = math.Inf(-1)
			}
		}
		n := 0
		for dk := 0; dk < size; dk++ {
			q := p + dk - pad
			if q < 0 || q >= len(in) {
				continue
			}
			n++
			for c := 0; c < ch; c++ {
				if usemax {
					if in[q][c] > acc[c] {
						acc[c] = in[q][c]
					}
				} else {
					acc[c] += in[q][c]
				}
			}
		}
		if !usemax {
			for c := range acc {
				acc[c] /= float64(n)
			}
		}
		out[p] = acc
	}
	return out
}

func clone2d(in [][]float64) [][]float64 {
	out := make([][]float64, len(in))
	for i, row := range in {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

func add2d(dst, src [][]float64) {
	for i := range dst {
		for j := range dst[i] {
			dst[i][j] += src[i][j]
		}
	}
}
