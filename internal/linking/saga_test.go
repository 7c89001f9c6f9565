package linking

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func recordingStep(name string, log *[]string, execErr, compErr error) Step {
	return Step{
		Name: name,
		Execute: func(ctx context.Context) error {
			*log = append(*log, "do "+name)
			return execErr
		},
		Compensate: func(ctx context.Context) error {
			*log = append(*log, "undo "+name)
			return compErr
		},
	}
}

func TestSaga_Completes(t *testing.T) {
	var log []string
	saga := NewSaga("ok", zaptest.NewLogger(t)).
		AddStep(recordingStep("a", &log, nil, nil)).
		AddStep(recordingStep("b", &log, nil, nil))

	require.NoError(t, saga.Execute(context.Background()))
	assert.Equal(t, SagaStateCompleted, saga.State())
	assert.Equal(t, []string{"do a", "do b"}, log)
	assert.NotEmpty(t, saga.ID())
}

func TestSaga_CompensatesInReverse(t *testing.T) {
	var log []string
	boom := errors.New("boom")
	saga := NewSaga("fails", zaptest.NewLogger(t)).
		AddStep(recordingStep("a", &log, nil, nil)).
		AddStep(Step{Name: "no-undo", Execute: func(context.Context) error { log = append(log, "do no-undo"); return nil }}).
		AddStep(recordingStep("b", &log, nil, nil)).
		AddStep(recordingStep("c", &log, boom, nil)).
		AddStep(recordingStep("d", &log, nil, nil))

	err := saga.Execute(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, SagaStateCompensated, saga.State())
	assert.Equal(t, []string{"do a", "do no-undo", "do b", "do c", "undo b", "undo a"}, log)
	assert.Equal(t, 2, saga.Undone())
}

func TestSaga_FirstStepFails(t *testing.T) {
	var log []string
	boom := errors.New("boom")
	saga := NewSaga("early", zaptest.NewLogger(t)).
		AddStep(recordingStep("a", &log, boom, nil)).
		AddStep(recordingStep("b", &log, nil, nil))

	require.ErrorIs(t, saga.Execute(context.Background()), boom)
	assert.Equal(t, SagaStateCompensated, saga.State())
	assert.Equal(t, 0, saga.Undone())
	assert.Equal(t, []string{"do a"}, log)
}

func TestSaga_CompensationFailure(t *testing.T) {
	var log []string
	boom := errors.New("boom")
	stuck := errors.New("stuck")
	saga := NewSaga("stuck", zaptest.NewLogger(t)).
		AddStep(recordingStep("a", &log, nil, nil)).
		AddStep(recordingStep("b", &log, nil, stuck)).
		AddStep(recordingStep("c", &log, boom, nil))

	err := saga.Execute(context.Background())
	require.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, ErrCompensationFailed)
	assert.ErrorIs(t, err, stuck)
	assert.Equal(t, SagaStateFailed, saga.State())
	// a is still undone after b's compensation fails.
	assert.Equal(t, []string{"do a", "do b", "do c", "undo b", "undo a"}, log)
	assert.Equal(t, 1, saga.Undone())
}

func TestSaga_CompensatesAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var undoErr error
	saga := NewSaga("cancelled", zaptest.NewLogger(t)).
		AddStep(Step{
			Name:    "a",
			Execute: func(context.Context) error { return nil },
			Compensate: func(ctx context.Context) error {
				undoErr = ctx.Err()
				return nil
			},
		}).
		AddStep(Step{
			Name: "b",
			Execute: func(ctx context.Context) error {
				cancel()
				return ctx.Err()
			},
		})

	err := saga.Execute(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.NoError(t, undoErr)
}
