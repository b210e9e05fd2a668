package backend

import (
	"context"
	"errors"
	"math"
	"math/rand"
)

// PerturbConfig shapes the hill-climbing weight search used as the
// training optimizer: each round perturbs Steps randomly chosen weights
// with annealed spread and keeps the round only when the loss improves.
type PerturbConfig struct {
	Steps          int
	StepSize       float64
	Annealing      float64
	MinImprovement float64
}

func (c PerturbConfig) withDefaults(paramCount int) PerturbConfig {
	if c.Steps <= 0 {
		c.Steps = paramCount
		if c.Steps < 1 {
			c.Steps = 1
		}
	}
	if c.StepSize <= 0 {
		c.StepSize = 0.05
	}
	if c.Annealing <= 0 {
		c.Annealing = 1.0
	}
	return c
}

// PerturbTrain runs `rounds` accept/reject rounds over params, scoring
// with lossFn after each perturbation burst. It mutates the parameters in
// place, which is what propagates training across weight-shared models,
// and returns the per-round best loss trace.
func PerturbTrain(ctx context.Context, rng *rand.Rand, params []*Parameter, rounds int, cfg PerturbConfig, lossFn func() (float64, error)) ([]float64, error) {
	if rng == nil {
		return nil, errors.New("random source is required")
	}
	if lossFn == nil {
		return nil, errors.New("loss function is required")
	}
	if rounds <= 0 {
		rounds = 1
	}

	total := 0
	for _, p := range params {
		total += p.Size()
	}
	cfg = cfg.withDefaults(total)

	best, err := lossFn()
	if err != nil {
		return nil, err
	}

	trace := make([]float64, 0, rounds)
	for r := 0; r < rounds; r++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if total == 0 {
			trace = append(trace, best)
			continue
		}
		snap := snapshotParams(params)
		for s := 0; s < cfg.Steps; s++ {
			p := params[rng.Intn(len(params))]
			idx := rng.Intn(p.Size())
			spread := cfg.StepSize * math.Pow(cfg.Annealing, float64(s))
			p.Data[idx] += (rng.Float64()*2 - 1) * spread
		}
		loss, err := lossFn()
		if err != nil {
			return nil, err
		}
		if loss < best-cfg.MinImprovement {
			best = loss
		} else {
			restoreParams(params, snap)
		}
		trace = append(trace, best)
	}
	return trace, nil
}
