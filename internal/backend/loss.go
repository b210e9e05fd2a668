package backend

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

var (
	ErrLossExists     = errors.New("loss already registered")
	ErrLossNotFound   = errors.New("loss not found")
	ErrMetricExists   = errors.New("metric already registered")
	ErrMetricNotFound = errors.New("metric not found")
)

// LossFunc scores one example; callers average over a batch. Both slices
// have the output dimensionality of the model.
type LossFunc func(yTrue, yPred []float64) float64

// MetricFunc has the same per-example shape as LossFunc.
type MetricFunc func(yTrue, yPred []float64) float64

var lossRegistry = struct {
	mu sync.RWMutex
	m  map[string]LossFunc
}{
	m: make(map[string]LossFunc),
}

var metricRegistry = struct {
	mu sync.RWMutex
	m  map[string]MetricFunc
}{
	m: make(map[string]MetricFunc),
}

func init() {
	initializeBuiltInLosses()
	initializeBuiltInMetrics()
}

func initializeBuiltInLosses() {
	MustRegisterLoss("mse", mseLoss)
	MustRegisterLoss("binary_crossentropy", bceLoss)
	MustRegisterLoss("bce", bceLoss)
}

func initializeBuiltInMetrics() {
	MustRegisterMetric("mse", MetricFunc(mseLoss))
	MustRegisterMetric("mae", func(yTrue, yPred []float64) float64 {
		var sum float64
		for i := range yTrue {
			sum += math.Abs(yTrue[i] - yPred[i])
		}
		return sum / float64(len(yTrue))
	})
	MustRegisterMetric("acc", accuracyMetric)
}

func mseLoss(yTrue, yPred []float64) float64 {
	var sum float64
	for i := range yTrue {
		d := yTrue[i] - yPred[i]
		sum += d * d
	}
	return sum / float64(len(yTrue))
}

func bceLoss(yTrue, yPred []float64) float64 {
	const eps = 1e-7
	var sum float64
	for i := range yTrue {
		p := math.Min(math.Max(yPred[i], eps), 1-eps)
		sum += -(yTrue[i]*math.Log(p) + (1-yTrue[i])*math.Log(1-p))
	}
	return sum / float64(len(yTrue))
}

// accuracyMetric compares argmax positions for multi-dimensional outputs
// and thresholds at 0.5 for scalar outputs.
func accuracyMetric(yTrue, yPred []float64) float64 {
	if len(yTrue) == 1 {
		pred := 0.0
		if yPred[0] >= 0.5 {
			pred = 1.0
		}
		if pred == yTrue[0] {
			return 1
		}
		return 0
	}
	if argmax(yTrue) == argmax(yPred) {
		return 1
	}
	return 0
}

func argmax(v []float64) int {
	best := 0
	for i, x := range v {
		if x > v[best] {
			best = i
		}
	}
	return best
}

func RegisterLoss(name string, fn LossFunc) error {
	if name == "" {
		return errors.New("loss name is required")
	}
	if fn == nil {
		return errors.New("loss function is required")
	}
	lossRegistry.mu.Lock()
	defer lossRegistry.mu.Unlock()
	if _, exists := lossRegistry.m[name]; exists {
		return fmt.Errorf("%w: %s", ErrLossExists, name)
	}
	lossRegistry.m[name] = fn
	return nil
}

func MustRegisterLoss(name string, fn LossFunc) {
	if err := RegisterLoss(name, fn); err != nil {
		panic(err)
	}
}

func GetLoss(name string) (LossFunc, error) {
	lossRegistry.mu.RLock()
	fn, ok := lossRegistry.m[name]
	lossRegistry.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLossNotFound, name)
	}
	return fn, nil
}

func ListLosses() []string {
	lossRegistry.mu.RLock()
	defer lossRegistry.mu.RUnlock()
	names := make([]string, 0, len(lossRegistry.m))
	for name := range lossRegistry.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func RegisterMetric(name string, fn MetricFunc) error {
	if name == "" {
		return errors.New("metric name is required")
	}
	if fn == nil {
		return errors.New("metric function is required")
	}
	metricRegistry.mu.Lock()
	defer metricRegistry.mu.Unlock()
	if _, exists := metricRegistry.m[name]; exists {
		return fmt.Errorf("%w: %s", ErrMetricExists, name)
	}
	metricRegistry.m[name] = fn
	return nil
}

func MustRegisterMetric(name string, fn MetricFunc) {
	if err := RegisterMetric(name, fn); err != nil {
		panic(err)
	}
}

func GetMetric(name string) (MetricFunc, error) {
	metricRegistry.mu.RLock()
	fn, ok := metricRegistry.m[name]
	metricRegistry.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMetricNotFound, name)
	}
	return fn, nil
}

func ListMetrics() []string {
	metricRegistry.mu.RLock()
	defer metricRegistry.mu.RUnlock()
	names := make([]string, 0, len(metricRegistry.m))
	for name := range metricRegistry.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
