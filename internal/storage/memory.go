package storage

import (
	"context"
	"sort"
	"sync"

	"daedalus/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	runs        map[string]model.Run
	history     map[string][]model.Candidate
	best        map[string]model.Candidate
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.runs = make(map[string]model.Run)
	s.history = make(map[string][]model.Candidate)
	s.best = make(map[string]model.Candidate)
	return nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[run.ID] = run
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (model.Run, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	return run, ok, nil
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]model.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]model.Run, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAtUTC != runs[j].CreatedAtUTC {
			return runs[i].CreatedAtUTC < runs[j].CreatedAtUTC
		}
		return runs[i].ID < runs[j].ID
	})
	return runs, nil
}

func (s *MemoryStore) SaveHistory(_ context.Context, runID string, history []model.Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history[runID] = copyCandidates(history)
	return nil
}

func (s *MemoryStore) GetHistory(_ context.Context, runID string) ([]model.Candidate, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.history[runID]
	if !ok {
		return nil, false, nil
	}
	return copyCandidates(history), true, nil
}

func (s *MemoryStore) SaveBest(_ context.Context, runID string, best model.Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.best[runID] = copyCandidate(best)
	return nil
}

func (s *MemoryStore) GetBest(_ context.Context, runID string) (model.Candidate, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	best, ok := s.best[runID]
	if !ok {
		return model.Candidate{}, false, nil
	}
	return copyCandidate(best), true, nil
}

func copyCandidate(c model.Candidate) model.Candidate {
	copied := c
	copied.Sequence = append([]int(nil), c.Sequence...)
	if c.Metrics != nil {
		copied.Metrics = make(map[string]float64, len(c.Metrics))
		for name, value := range c.Metrics {
			copied.Metrics[name] = value
		}
	}
	return copied
}

func copyCandidates(candidates []model.Candidate) []model.Candidate {
	copied := make([]model.Candidate, 0, len(candidates))
	for _, candidate := range candidates {
		copied = append(copied, copyCandidate(candidate))
	}
	return copied
}
