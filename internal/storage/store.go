package storage

import (
	"context"

	"daedalus/internal/model"
)

// Store defines persistence operations for search runs, their evaluated
// candidate history, and the best architecture found per run.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run model.Run) error
	GetRun(ctx context.Context, id string) (model.Run, bool, error)
	ListRuns(ctx context.Context) ([]model.Run, error)
	SaveHistory(ctx context.Context, runID string, history []model.Candidate) error
	GetHistory(ctx context.Context, runID string) ([]model.Candidate, bool, error)
	SaveBest(ctx context.Context, runID string, best model.Candidate) error
	GetBest(ctx context.Context, runID string) (model.Candidate, bool, error)
}
