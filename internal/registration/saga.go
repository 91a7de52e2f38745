package registration

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/codes"

	"github.com/xplorixa/portal/internal/telemetry"
)

// Step is one stage of a multi-store write. Undo may be nil.
type Step struct {
	Name string
	Do   func(ctx context.Context) error
	Undo func(ctx context.Context) error
}

// StepError reports which step failed. It unwraps to the step's error.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Saga runs steps in order and stops at the first failure. With compensation enabled
// the completed steps are undone in reverse; otherwise their effects stay in place and
// are logged.
type Saga struct {
	steps      []Step
	compensate bool
	logger     *slog.Logger
}

// NewSaga creates a Saga.
func NewSaga(compensate bool, logger *slog.Logger, steps ...Step) *Saga {
	if logger == nil {
		logger = slog.Default()
	}
	return &Saga{steps: steps, compensate: compensate, logger: logger}
}

// Run executes the saga.
func (s *Saga) Run(ctx context.Context) error {
	for i, step := range s.steps {
		if err := s.run(ctx, step); err != nil {
			s.recover(ctx, s.steps[:i], step.Name, err)
			return &StepError{Step: step.Name, Err: err}
		}
	}
	return nil
}

func (s *Saga) run(ctx context.Context, step Step) error {
	ctx, span := telemetry.Tracer().Start(ctx, "saga."+step.Name)
	defer span.End()

	err := step.Do(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (s *Saga) recover(ctx context.Context, done []Step, failed string, cause error) {
	if len(done) == 0 {
		return
	}
	completed := make([]string, len(done))
	for i, st := range done {
		completed[i] = st.Name
	}

	if !s.compensate {
		s.logger.Warn("saga failed; completed steps left in place",
			"failed_step", failed, "completed_steps", completed, "error", cause)
		return
	}

	// Undo must outlive a canceled request.
	undoCtx := context.WithoutCancel(ctx)
	for i := len(done) - 1; i >= 0; i-- {
		if done[i].Undo == nil {
			continue
		}
		if err := done[i].Undo(undoCtx); err != nil {
			s.logger.Error("saga compensation failed",
				"failed_step", failed, "undo_step", done[i].Name, "error", err)
		}
	}
	s.logger.Info("saga compensated", "failed_step", failed, "undone_steps", completed)
}
