package dag

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"daedalus/internal/backend"
)

// SharedTrainer is implemented by weight-sharing strategies that train
// their shared parameters from controller samples.
type SharedTrainer interface {
	TrainShared(ctx context.Context, x, y [][]float64, rounds int, compile backend.CompileConfig, fit backend.FitConfig) (trained, skipped int, err error)
}

// trainShared drives one training round per controller sample. Samples
// that decode to invalid architectures are skipped and counted, never
// fatal.
func trainShared(ctx context.Context, s Strategy, c Controller, x, y [][]float64, rounds int, compile backend.CompileConfig, fit backend.FitConfig) (trained, skipped int, err error) {
	if c == nil {
		return 0, 0, errors.New("no controller bound")
	}
	for r := 0; r < rounds; r++ {
		if err := ctx.Err(); err != nil {
			return trained, skipped, err
		}
		seq, err := c.Sample(ctx)
		if err != nil {
			return trained, skipped, err
		}
		m, err := s.Decode(seq)
		if errors.Is(err, ErrNoInput) {
			skipped++
			continue
		}
		if err != nil {
			return trained, skipped, err
		}
		if err := m.Compile(compile); err != nil {
			return trained, skipped, err
		}
		fit.Epochs = 1
		if _, err := m.Fit(ctx, x, y, fit); err != nil {
			return trained, skipped, err
		}
		trained++
	}
	return trained, skipped, nil
}

type forwarder interface {
	forward(row []float64) ([]float64, error)
}

// coreModel carries the plumbing every decoded weight-shared model needs:
// compile state, perturbation training over the active parameter set, and
// loss/metric evaluation. The embedding type supplies the forward pass.
// Training mutates the shared parameters in place.
type coreModel struct {
	fw       forwarder
	params   []*backend.Parameter
	rng      *rand.Rand
	defBatch int
	l1, l2   float64

	compiled bool
	loss     backend.LossFunc
	metrics  []string
	stepSize float64
}

func (m *coreModel) Compile(cfg backend.CompileConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	loss, err := backend.GetLoss(cfg.Loss)
	if err != nil {
		return err
	}
	m.loss = loss
	m.metrics = append([]string(nil), cfg.Metrics...)
	m.stepSize = cfg.LearningRate
	m.compiled = true
	return nil
}

func (m *coreModel) Predict(x [][]float64) ([][]float64, error) {
	out := make([][]float64, len(x))
	for i, row := range x {
		y, err := m.fw.forward(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = y
	}
	return out, nil
}

func (m *coreModel) meanLoss(x, y [][]float64) (float64, error) {
	var sum float64
	for i := range x {
		pred, err := m.fw.forward(x[i])
		if err != nil {
			return 0, err
		}
		if len(y[i]) != len(pred) {
			return 0, fmt.Errorf("%w: target %d has %d values, want %d", backend.ErrShape, i, len(y[i]), len(pred))
		}
		sum += m.loss(y[i], pred)
	}
	return sum / float64(len(x)), nil
}

func (m *coreModel) regularized(loss float64) float64 {
	if m.l1 == 0 && m.l2 == 0 {
		return loss
	}
	var a1, a2 float64
	for _, p := range m.params {
		for _, w := range p.Data {
			if w < 0 {
				a1 -= w
			} else {
				a1 += w
			}
			a2 += w * w
		}
	}
	return loss + m.l1*a1 + m.l2*a2
}

func (m *coreModel) Fit(ctx context.Context, x, y [][]float64, cfg backend.FitConfig) (backend.History, error) {
	if !m.compiled {
		return backend.History{}, backend.ErrNotCompiled
	}
	if len(x) == 0 || len(x) != len(y) {
		return backend.History{}, fmt.Errorf("%w: %d inputs vs %d targets", backend.ErrShape, len(x), len(y))
	}
	epochs := cfg.Epochs
	if epochs <= 0 {
		epochs = 1
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = m.defBatch
	}
	if batch <= 0 || batch > len(x) {
		batch = len(x)
	}
	rng := m.rng
	if cfg.Seed != 0 {
		rng = rand.New(rand.NewSource(cfg.Seed))
	}

	hist := backend.History{Metrics: make(map[string][]float64)}
	pcfg := backend.PerturbConfig{StepSize: m.stepSize}
	for e := 0; e < epochs; e++ {
		lossFn := func() (float64, error) {
			bx, by := x, y
			if batch < len(x) {
				bx = make([][]float64, batch)
				by = make([][]float64, batch)
				for i := 0; i < batch; i++ {
					j := rng.Intn(len(x))
					bx[i], by[i] = x[j], y[j]
				}
			}
			loss, err := m.meanLoss(bx, by)
			if err != nil {
				return 0, err
			}
			return m.regularized(loss), nil
		}
		trace, err := backend.PerturbTrain(ctx, rng, m.params, 1, pcfg, lossFn)
		if err != nil {
			return backend.History{}, err
		}
		hist.Loss = append(hist.Loss, trace[len(trace)-1])
		if len(m.metrics) > 0 {
			scores, err := m.Evaluate(ctx, x, y)
			if err != nil {
				return backend.History{}, err
			}
			for _, name := range m.metrics {
				hist.Metrics[name] = append(hist.Metrics[name], scores[name])
			}
		}
	}
	return hist, nil
}

func (m *coreModel) Evaluate(ctx context.Context, x, y [][]float64) (map[string]float64, error) {
	if !m.compiled {
		return nil, backend.ErrNotCompiled
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(x) == 0 || len(x) != len(y) {
		return nil, fmt.Errorf("%w: %d inputs vs %d targets", backend.ErrShape, len(x), len(y))
	}
	loss, err := m.meanLoss(x, y)
	if err != nil {
		return nil, err
	}
	out := map[string]float64{"loss": loss}
	for _, name := range m.metrics {
		fn, err := backend.GetMetric(name)
		if err != nil {
			return nil, err
		}
		var sum float64
		for i := range x {
			pred, err := m.fw.forward(x[i])
			if err != nil {
				return nil, err
			}
			sum += fn(y[i], pred)
		}
		out[name] = sum / float64(len(x))
	}
	return out, nil
}
