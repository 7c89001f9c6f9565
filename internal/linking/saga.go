package linking

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Step is one unit of a saga. Compensate, when set, undoes a successful
// Execute and runs only if a later step fails.
type Step struct {
	Name       string
	Execute    func(ctx context.Context) error
	Compensate func(ctx context.Context) error
}

type SagaState string

const (
	SagaStatePending      SagaState = "PENDING"
	SagaStateRunning      SagaState = "RUNNING"
	SagaStateCompleted    SagaState = "COMPLETED"
	SagaStateCompensating SagaState = "COMPENSATING"
	SagaStateCompensated  SagaState = "COMPENSATED"
	SagaStateFailed       SagaState = "FAILED"
)

// ErrCompensationFailed marks a saga that could not restore the state it
// started from.
var ErrCompensationFailed = errors.New("saga compensation failed")

// Saga runs its steps in order. Steps are never retried: the first failure
// rolls back the completed steps in reverse and is returned to the caller.
type Saga struct {
	id     string
	name   string
	steps  []Step
	state  SagaState
	undone int
	logger *zap.Logger
}

func NewSaga(name string, logger *zap.Logger) *Saga {
	return &Saga{
		id:     uuid.New().String(),
		name:   name,
		state:  SagaStatePending,
		logger: logger,
	}
}

func (s *Saga) AddStep(step Step) *Saga {
	s.steps = append(s.steps, step)
	return s
}

func (s *Saga) State() SagaState {
	return s.state
}

func (s *Saga) ID() string {
	return s.id
}

// Undone reports how many completed steps were successfully compensated.
func (s *Saga) Undone() int {
	return s.undone
}

func (s *Saga) Execute(ctx context.Context) error {
	s.state = SagaStateRunning
	s.logger.Debug("saga started",
		zap.String("saga_id", s.id),
		zap.String("saga", s.name),
		zap.Int("steps", len(s.steps)),
	)

	for i, step := range s.steps {
		if err := step.Execute(ctx); err != nil {
			s.logger.Error("saga step failed",
				zap.String("saga_id", s.id),
				zap.String("saga", s.name),
				zap.String("step", step.Name),
				zap.Error(err),
			)
			if cerr := s.compensate(ctx, i); cerr != nil {
				s.state = SagaStateFailed
				return fmt.Errorf("%s: step %s: %w (%w)", s.name, step.Name, err, cerr)
			}
			s.state = SagaStateCompensated
			return fmt.Errorf("%s: step %s: %w", s.name, step.Name, err)
		}
	}

	s.state = SagaStateCompleted
	s.logger.Debug("saga completed", zap.String("saga_id", s.id), zap.String("saga", s.name))
	return nil
}

// compensate undoes steps[0:done] in reverse. It keeps going past failed
// compensations and reports them together.
func (s *Saga) compensate(ctx context.Context, done int) error {
	s.state = SagaStateCompensating
	// The caller's context may already be cancelled; rollback must still run.
	ctx = context.WithoutCancel(ctx)

	var errs []error
	for i := done - 1; i >= 0; i-- {
		step := s.steps[i]
		if step.Compensate == nil {
			continue
		}
		if err := step.Compensate(ctx); err != nil {
			s.logger.Error("saga compensation failed",
				zap.String("saga_id", s.id),
				zap.String("step", step.Name),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("undo %s: %w", step.Name, err))
			continue
		}
		s.undone++
	}
	if len(errs) > 0 {
		return errors.Join(append([]error{ErrCompensationFailed}, errs...)...)
	}
	s.logger.Info("saga compensated", zap.String("saga_id", s.id), zap.String("saga", s.name), zap.Int("steps", done))
	return nil
}
