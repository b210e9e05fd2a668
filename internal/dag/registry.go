package dag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"daedalus/internal/backend"
	"daedalus/internal/space"
)

var (
	ErrStrategyExists   = errors.New("dag strategy already registered")
	ErrStrategyNotFound = errors.New("dag strategy not found")
	ErrBadConfig        = errors.New("invalid dag configuration")
)

// Builtin strategy names.
const (
	StrategyFeedForward = "feedforward"
	StrategyInputBlock  = "input-block"
	StrategyEnasAnn     = "enas-ann"
	StrategyEnasCnn     = "enas-cnn"
)

// Config carries everything a strategy needs to interpret sequences over
// one model space. Strategies validate the fields they use.
type Config struct {
	Space              *space.ModelSpace
	Inputs             []space.Operation
	Outputs            []space.Operation
	WithSkipConnection bool
	WithInputBlocks    bool
	WithOutputBlocks   bool

	// Graph receives every parameter the strategy creates. Nil means the
	// strategy opens a fresh private graph.
	Graph    *backend.Graph
	Executor backend.Executor

	// BatchSize is the default training batch for decoded models
	// (convolutional strategies). Zero selects the strategy default.
	BatchSize int
	L1, L2    float64
	Seed      int64
	Logger    *slog.Logger
}

func (c *Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c *Config) graph() *backend.Graph {
	if c.Graph == nil {
		c.Graph = backend.NewGraph()
	}
	return c.Graph
}

// Strategy decodes architecture sequences into runnable models. A
// weight-sharing strategy allocates its parameters once at construction;
// Decode then only re-derives the active wiring.
type Strategy interface {
	Decode(seq Sequence) (backend.Model, error)
	Layout() *Layout
}

// Controller proposes architecture sequences.
type Controller interface {
	Sample(ctx context.Context) (Sequence, error)
}

// ControllerSetter is implemented by strategies that can rebind a live
// controller without rebuilding shared state.
type ControllerSetter interface {
	SetController(c Controller)
}

type Factory func(cfg Config) (Strategy, error)

var strategyRegistry = struct {
	mu sync.RWMutex
	m  map[string]Factory
}{
	m: make(map[string]Factory),
}

func init() {
	initializeBuiltInStrategies()
}

func initializeBuiltInStrategies() {
	MustRegister(StrategyFeedForward, newFeedForward)
	MustRegister(StrategyInputBlock, newInputBlock)
	MustRegister(StrategyEnasAnn, newEnasAnn)
	MustRegister(StrategyEnasCnn, newEnasCnn)
}

func Register(name string, factory Factory) error {
	if name == "" {
		return errors.New("strategy name is required")
	}
	if factory == nil {
		return errors.New("strategy factory is required")
	}

	strategyRegistry.mu.Lock()
	defer strategyRegistry.mu.Unlock()

	if _, exists := strategyRegistry.m[name]; exists {
		return fmt.Errorf("%w: %s", ErrStrategyExists, name)
	}
	strategyRegistry.m[name] = factory
	return nil
}

func MustRegister(name string, factory Factory) {
	if err := Register(name, factory); err != nil {
		panic(err)
	}
}

// New constructs a registered strategy by name.
func New(name string, cfg Config) (Strategy, error) {
	strategyRegistry.mu.RLock()
	factory, ok := strategyRegistry.m[name]
	strategyRegistry.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStrategyNotFound, name)
	}
	return factory(cfg)
}

func List() []string {
	strategyRegistry.mu.RLock()
	defer strategyRegistry.mu.RUnlock()

	names := make([]string, 0, len(strategyRegistry.m))
	for name := range strategyRegistry.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func resetStrategyRegistryForTests() {
	strategyRegistry.mu.Lock()
	strategyRegistry.m = make(map[string]Factory)
	strategyRegistry.mu.Unlock()
	initializeBuiltInStrategies()
}

// inputName extracts the mandatory "name" attribute of a declared input
// or output operation.
func inputName(op space.Operation) (string, error) {
	name, ok := op.StringAttr("name")
	if !ok || name == "" {
		return "", fmt.Errorf("%w: %s operation needs a name attribute", ErrBadConfig, op.Type())
	}
	return name, nil
}
