// Package modeler turns architecture sequences into compiled, trainable
// models. A builder binds a model space, input/output operations, and a
// compile configuration to one dag strategy; the ENAS family additionally
// holds a single shared weight graph that every built model trains in
// place.
package modeler

import (
	"errors"
	"fmt"
	"log/slog"

	"daedalus/internal/backend"
	"daedalus/internal/dag"
	"daedalus/internal/space"
)

var (
	ErrBadBuilder   = errors.New("invalid builder configuration")
	ErrBuild        = errors.New("model build failed")
	ErrSpecConflict = errors.New("node-dag and output-block modes are mutually exclusive")
)

// Builder turns one architecture sequence into a compiled model.
type Builder interface {
	Build(seq dag.Sequence) (backend.Model, error)
}

func buildLogger(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}

func validateCore(s *space.ModelSpace, inputs []space.Operation, compile backend.CompileConfig) error {
	if s == nil {
		return fmt.Errorf("%w: model space is required", ErrBadBuilder)
	}
	if len(inputs) == 0 {
		return fmt.Errorf("%w: at least one input operation is required", ErrBadBuilder)
	}
	if err := compile.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrBadBuilder, err)
	}
	return nil
}

// buildModel decodes one sequence through a strategy and compiles the
// result. The offending sequence is logged before any failure is wrapped,
// so invalid architectures stay diagnosable from the log alone.
func buildModel(log *slog.Logger, s dag.Strategy, seq dag.Sequence, compile backend.CompileConfig) (backend.Model, error) {
	m, err := s.Decode(seq)
	if err != nil {
		log.Error("architecture decode failed",
			"sequence", seq,
			"error", err)
		return nil, fmt.Errorf("%w: %w", ErrBuild, err)
	}
	if err := m.Compile(compile); err != nil {
		log.Error("model compile failed",
			"sequence", seq,
			"error", err)
		return nil, fmt.Errorf("%w: %w", ErrBuild, err)
	}
	return m, nil
}
