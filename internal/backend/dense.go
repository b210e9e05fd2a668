package backend

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"daedalus/internal/space"
)

// DenseExecutor is the reference executor: float64 math on CPU, dense and
// passthrough operations, weight-perturbation training. It exists so the
// builder family is runnable end to end without an external tensor
// runtime.
type DenseExecutor struct {
	Rand *rand.Rand
}

func NewDenseExecutor(seed int64) *DenseExecutor {
	return &DenseExecutor{Rand: rand.New(rand.NewSource(seed))}
}

func (e *DenseExecutor) NewLayer(g *Graph, op space.Operation, inDim int) (Layer, error) {
	if g == nil {
		return nil, errors.New("graph is required")
	}
	if inDim <= 0 {
		return nil, fmt.Errorf("%w: layer %s fed %d values", ErrShape, op.Type(), inDim)
	}
	name, _ := op.StringAttr("name")
	if name == "" {
		name = op.Type()
	}
	switch op.Type() {
	case "dense":
		units, ok := op.IntAttr("units")
		if !ok || units <= 0 {
			return nil, fmt.Errorf("%w: dense requires positive units", ErrUnsupportedOp)
		}
		activation, _ := op.StringAttr("activation")
		if !ValidActivation(activation) {
			return nil, fmt.Errorf("%w: activation %q", ErrUnsupportedOp, activation)
		}
		w, err := NewParameter("w", inDim, units)
		if err != nil {
			return nil, err
		}
		b, err := NewParameter("b", units)
		if err != nil {
			return nil, err
		}
		if e.Rand == nil {
			return nil, errors.New("random source is required")
		}
		w.InitUniform(e.Rand, 0)
		g.AddParam("w", w)
		g.AddParam("b", b)
		return &denseLayer{name: name, w: w, b: b, activation: activation, inDim: inDim, units: units}, nil
	case "input", "identity", "flatten", "dropout":
		// Dropout is a no-op here: perturbation training has no use for
		// stochastic masking at inference scale.
		return &passthroughLayer{name: name, dim: inDim}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedOp, op.Type())
	}
}

type denseLayer struct {
	name       string
	w          *Parameter
	b          *Parameter
	activation string
	inDim      int
	units      int
}

func (l *denseLayer) Name() string { return l.name }
func (l *denseLayer) OutDim() int  { return l.units }

func (l *denseLayer) Apply(in []float64) ([]float64, error) {
	if len(in) != l.inDim {
		return nil, fmt.Errorf("%w: layer %s got %d values, want %d", ErrShape, l.name, len(in), l.inDim)
	}
	out := make([]float64, l.units)
	for j := 0; j < l.units; j++ {
		sum := l.b.Data[j]
		for i := 0; i < l.inDim; i++ {
			sum += in[i] * l.w.At2(i, j)
		}
		out[j] = sum
	}
	if err := ApplyActivation(l.activation, out); err != nil {
		return nil, err
	}
	return out, nil
}

type passthroughLayer struct {
	name string
	dim  int
}

func (l *passthroughLayer) Name() string { return l.name }
func (l *passthroughLayer) OutDim() int  { return l.dim }

func (l *passthroughLayer) Apply(in []float64) ([]float64, error) {
	if len(in) != l.dim {
		return nil, fmt.Errorf("%w: layer %s got %d values, want %d", ErrShape, l.name, len(in), l.dim)
	}
	return append([]float64(nil), in...), nil
}

// NewModel materializes an assembled graph. Hidden nodes must arrive in
// topological order; multiple feeders concatenate. Node names must be
// unique, they key the value table.
func (e *DenseExecutor) NewModel(g *Graph, mg *ModelGraph) (Model, error) {
	if g == nil {
		return nil, errors.New("graph is required")
	}
	if mg == nil || len(mg.Inputs) == 0 {
		return nil, errors.New("model graph needs at least one input")
	}
	if len(mg.Outputs) == 0 {
		return nil, errors.New("model graph needs at least one output")
	}

	m := &denseModel{
		exec:   e,
		inputs: mg.Inputs,
		dims:   make(map[string]int),
		layers: make(map[string]Layer),
	}
	seen := make(map[string]bool)
	for _, in := range mg.Inputs {
		if seen[in.Name] {
			return nil, fmt.Errorf("duplicate node name %q", in.Name)
		}
		seen[in.Name] = true
		units, ok := in.Op.IntAttr("units")
		if !ok || units <= 0 {
			return nil, fmt.Errorf("%w: input %s requires positive units", ErrShape, in.Name)
		}
		m.dims[in.Name] = units
		m.inDim += units
	}

	build := func(node NodeSpec) error {
		if seen[node.Name] {
			return fmt.Errorf("duplicate node name %q", node.Name)
		}
		seen[node.Name] = true
		if len(node.Inputs) == 0 {
			return fmt.Errorf("node %q has no inputs", node.Name)
		}
		inDim := 0
		for _, src := range node.Inputs {
			d, ok := m.dims[src]
			if !ok {
				return fmt.Errorf("node %q feeds from unknown node %q", node.Name, src)
			}
			inDim += d
		}
		g.AppendVarScope(node.Name)
		layer, err := e.NewLayer(g, node.Op, inDim)
		g.StripVarScope()
		if err != nil {
			return fmt.Errorf("node %q: %w", node.Name, err)
		}
		m.layers[node.Name] = layer
		m.dims[node.Name] = layer.OutDim()
		if dl, ok := layer.(*denseLayer); ok {
			m.params = append(m.params, dl.w, dl.b)
		}
		return nil
	}

	for _, node := range mg.Hidden {
		if err := build(node); err != nil {
			return nil, err
		}
		m.order = append(m.order, node)
	}
	for _, node := range mg.Outputs {
		if err := build(node); err != nil {
			return nil, err
		}
		m.order = append(m.order, node)
		m.outputs = append(m.outputs, node.Name)
		m.outDim += m.dims[node.Name]
	}
	return m, nil
}

type denseModel struct {
	exec    *DenseExecutor
	inputs  []NodeSpec
	order   []NodeSpec
	outputs []string
	layers  map[string]Layer
	dims    map[string]int
	params  []*Parameter
	inDim   int
	outDim  int

	compiled bool
	loss     LossFunc
	lossName string
	metrics  []string
	stepSize float64
}

func (m *denseModel) Compile(cfg CompileConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	loss, err := GetLoss(cfg.Loss)
	if err != nil {
		return err
	}
	m.loss = loss
	m.lossName = cfg.Loss
	m.metrics = append([]string(nil), cfg.Metrics...)
	m.stepSize = cfg.LearningRate
	m.compiled = true
	return nil
}

// forward runs one example. The row carries all declared inputs
// concatenated in declaration order.
func (m *denseModel) forward(row []float64) ([]float64, error) {
	if len(row) != m.inDim {
		return nil, fmt.Errorf("%w: got %d values, want %d", ErrShape, len(row), m.inDim)
	}
	values := make(map[string][]float64, len(m.dims))
	off := 0
	for _, in := range m.inputs {
		d := m.dims[in.Name]
		values[in.Name] = row[off : off+d]
		off += d
	}
	for _, node := range m.order {
		in := make([]float64, 0, 16)
		for _, src := range node.Inputs {
			in = append(in, values[src]...)
		}
		out, err := m.layers[node.Name].Apply(in)
		if err != nil {
			return nil, err
		}
		values[node.Name] = out
	}
	out := make([]float64, 0, m.outDim)
	for _, name := range m.outputs {
		out = append(out, values[name]...)
	}
	return out, nil
}

func (m *denseModel) Predict(x [][]float64) ([][]float64, error) {
	out := make([][]float64, len(x))
	for i, row := range x {
		y, err := m.forward(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = y
	}
	return out, nil
}

func (m *denseModel) meanLoss(x, y [][]float64) (float64, error) {
	if len(x) == 0 {
		return 0, errors.New("no examples")
	}
	var sum float64
	for i := range x {
		pred, err := m.forward(x[i])
		if err != nil {
			return 0, err
		}
		if len(y[i]) != len(pred) {
			return 0, fmt.Errorf("%w: target %d has %d values, want %d", ErrShape, i, len(y[i]), len(pred))
		}
		sum += m.loss(y[i], pred)
	}
	return sum / float64(len(x)), nil
}

func (m *denseModel) Fit(ctx context.Context, x, y [][]float64, cfg FitConfig) (History, error) {
	if !m.compiled {
		return History{}, ErrNotCompiled
	}
	if len(x) == 0 || len(x) != len(y) {
		return History{}, fmt.Errorf("%w: %d inputs vs %d targets", ErrShape, len(x), len(y))
	}
	epochs := cfg.Epochs
	if epochs <= 0 {
		epochs = 1
	}
	batch := cfg.BatchSize
	if batch <= 0 || batch > len(x) {
		batch = len(x)
	}
	rng := m.exec.Rand
	if cfg.Seed != 0 {
		rng = rand.New(rand.NewSource(cfg.Seed))
	}

	hist := History{Metrics: make(map[string][]float64)}
	pcfg := PerturbConfig{StepSize: m.stepSize}
	for e := 0; e < epochs; e++ {
		lossFn := func() (float64, error) {
			if batch == len(x) {
				return m.meanLoss(x, y)
			}
			bx := make([][]float64, batch)
			by := make([][]float64, batch)
			for i := 0; i < batch; i++ {
				j := rng.Intn(len(x))
				bx[i], by[i] = x[j], y[j]
			}
			return m.meanLoss(bx, by)
		}
		trace, err := PerturbTrain(ctx, rng, m.params, 1, pcfg, lossFn)
		if err != nil {
			return History{}, err
		}
		hist.Loss = append(hist.Loss, trace[len(trace)-1])
		scores, err := m.Evaluate(ctx, x, y)
		if err != nil {
			return History{}, err
		}
		for _, name := range m.metrics {
			hist.Metrics[name] = append(hist.Metrics[name], scores[name])
		}
	}
	return hist, nil
}

func (m *denseModel) Evaluate(ctx context.Context, x, y [][]float64) (map[string]float64, error) {
	if !m.compiled {
		return nil, ErrNotCompiled
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(x) == 0 || len(x) != len(y) {
		return nil, fmt.Errorf("%w: %d inputs vs %d targets", ErrShape, len(x), len(y))
	}
	loss, err := m.meanLoss(x, y)
	if err != nil {
		return nil, err
	}
	out := map[string]float64{"loss": loss}
	for _, name := range m.metrics {
		fn, err := GetMetric(name)
		if err != nil {
			return nil, err
		}
		var sum float64
		for i := range x {
			pred, err := m.forward(x[i])
			if err != nil {
				return nil, err
			}
			sum += fn(y[i], pred)
		}
		out[name] = sum / float64(len(x))
	}
	return out, nil
}
