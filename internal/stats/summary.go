// Package stats summarizes recorded search history: aggregate fitness
// statistics, best-so-far traces, and on-disk run artifacts.
package stats

import (
	"math"

	"daedalus/internal/model"
)

// RunSummary aggregates the candidates of one finished run.
type RunSummary struct {
	Evaluated    int                `json:"evaluated"`
	BestStep     int                `json:"best_step"`
	BestSequence []int              `json:"best_sequence,omitempty"`
	BestFitness  float64            `json:"best_fitness"`
	MeanFitness  float64            `json:"mean_fitness"`
	StdFitness   float64            `json:"std_fitness"`
	MinFitness   float64            `json:"min_fitness"`
	MaxFitness   float64            `json:"max_fitness"`
	BestSoFar    []float64          `json:"best_so_far,omitempty"`
	MetricMeans  map[string]float64 `json:"metric_means,omitempty"`
}

// Summarize computes the summary of a run's history in recorded order.
// An empty history yields the zero summary.
func Summarize(history []model.Candidate) RunSummary {
	if len(history) == 0 {
		return RunSummary{}
	}

	fitnesses := make([]float64, len(history))
	for i, c := range history {
		fitnesses[i] = c.Fitness
	}

	summary := RunSummary{
		Evaluated:   len(history),
		MeanFitness: mean(fitnesses),
		StdFitness:  std(fitnesses),
		MinFitness:  fitnesses[0],
		MaxFitness:  fitnesses[0],
		BestSoFar:   make([]float64, len(history)),
	}

	bestIdx := 0
	for i, f := range fitnesses {
		if f < summary.MinFitness {
			summary.MinFitness = f
		}
		if f > summary.MaxFitness {
			summary.MaxFitness = f
			bestIdx = i
		}
		summary.BestSoFar[i] = summary.MaxFitness
	}

	best := history[bestIdx]
	summary.BestStep = best.Step
	summary.BestFitness = best.Fitness
	summary.BestSequence = append([]int(nil), best.Sequence...)
	summary.MetricMeans = metricMeans(history)
	return summary
}

// FirstReaching reports the step of the first candidate whose fitness
// meets goal, in recorded order.
func FirstReaching(history []model.Candidate, goal float64) (int, bool) {
	for _, c := range history {
		if c.Fitness >= goal {
			return c.Step, true
		}
	}
	return 0, false
}

func metricMeans(history []model.Candidate) map[string]float64 {
	sums := map[string]float64{}
	counts := map[string]int{}
	for _, c := range history {
		for name, value := range c.Metrics {
			sums[name] += value
			counts[name]++
		}
	}
	if len(sums) == 0 {
		return nil
	}
	means := make(map[string]float64, len(sums))
	for name, sum := range sums {
		means[name] = sum / float64(counts[name])
	}
	return means
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func std(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	acc := 0.0
	for _, v := range values {
		d := v - m
		acc += d * d
	}
	return math.Sqrt(acc / float64(len(values)))
}
