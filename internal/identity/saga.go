package identity

import (
	"context"

	"go.uber.org/zap"
)

// sagaStep pairs a forward action with its compensation. Steps with no
// meaningful undo leave compensate nil.
type sagaStep struct {
	name       string
	run        func(ctx context.Context) error
	compensate func(ctx context.Context) error
}

// saga executes forward steps in order. When a step fails, compensations of
// the steps that already completed run in reverse order. A compensation
// failure is logged and swallowed: surfacing it would mask the primary
// error, which is the one the caller can act on.
type saga struct {
	logger *zap.Logger
	steps  []sagaStep
}

func (s *saga) execute(ctx context.Context) error {
	completed := make([]sagaStep, 0, len(s.steps))
	for _, step := range s.steps {
		if err := step.run(ctx); err != nil {
			s.rollback(ctx, completed)
			return err
		}
		completed = append(completed, step)
	}
	return nil
}

func (s *saga) rollback(ctx context.Context, completed []sagaStep) {
	for index := len(completed) - 1; index >= 0; index-- {
		step := completed[index]
		if step.compensate == nil {
			continue
		}
		if err := step.compensate(ctx); err != nil {
			s.logger.Error("saga compensation failed",
				zap.String("step", step.name),
				zap.Error(err))
		}
	}
}
