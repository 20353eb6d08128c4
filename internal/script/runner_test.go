// File: internal/script/runner_test.go
package script

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/stepwright/stepwright/api/schemas"
	"github.com/stepwright/stepwright/internal/config"
)

// fakeSession scripts per-action results and records dispatch order.
type fakeSession struct {
	results    map[schemas.ActionKind]schemas.StepResult
	dispatched []schemas.ActionKind
}

func (f *fakeSession) Dispatch(ctx context.Context, req *schemas.StepRequest) schemas.StepResult {
	f.dispatched = append(f.dispatched, req.Action)
	if res, ok := f.results[req.Action]; ok {
		return res
	}
	return schemas.StepResult{OK: true}
}

func testScript() *Script {
	return &Script{
		Name: "test",
		Steps: []schemas.StepRequest{
			{Action: schemas.ActionOpen, Params: schemas.StepParams{URL: "https://x.test"}},
			{Action: schemas.ActionFill, Target: &schemas.LocatorSpec{Label: "Q"}, Params: schemas.StepParams{Text: "hi"}},
			{Action: schemas.ActionClick, Target: &schemas.LocatorSpec{Selector: "#go"}},
			{Action: schemas.ActionClose},
		},
	}
}

func TestRunnerRunsStepsInOrder(t *testing.T) {
	sess := &fakeSession{}
	r := NewRunner(config.ScriptConfig{}, zaptest.NewLogger(t))

	outcomes, err := r.Run(context.Background(), sess, testScript())
	require.NoError(t, err)
	require.Len(t, outcomes, 4)
	assert.Equal(t, []schemas.ActionKind{
		schemas.ActionOpen, schemas.ActionFill, schemas.ActionClick, schemas.ActionClose,
	}, sess.dispatched)
	for i, o := range outcomes {
		assert.Equal(t, i+1, o.Index)
		assert.True(t, o.Result.OK)
	}
}

func TestRunnerStopsOnFailure(t *testing.T) {
	sess := &fakeSession{results: map[schemas.ActionKind]schemas.StepResult{
		schemas.ActionFill: schemas.Failure(schemas.NewStepError(
			schemas.ErrNotFound, schemas.ActionFill, nil, "no such field")),
	}}
	r := NewRunner(config.ScriptConfig{}, zaptest.NewLogger(t))

	outcomes, err := r.Run(context.Background(), sess, testScript())
	require.Error(t, err)
	assert.Len(t, outcomes, 2, "the failing step is the last one dispatched")
	assert.NotContains(t, sess.dispatched, schemas.ActionClick)
}

func TestRunnerKeepGoing(t *testing.T) {
	t.Run("continues past recoverable failures", func(t *testing.T) {
		sess := &fakeSession{results: map[schemas.ActionKind]schemas.StepResult{
			schemas.ActionFill: schemas.Failure(schemas.NewStepError(
				schemas.ErrNotFound, schemas.ActionFill, nil, "no such field")),
		}}
		r := NewRunner(config.ScriptConfig{KeepGoing: true}, zaptest.NewLogger(t))

		outcomes, err := r.Run(context.Background(), sess, testScript())
		require.NoError(t, err)
		assert.Len(t, outcomes, 4)
		assert.Contains(t, sess.dispatched, schemas.ActionClose)
	})

	t.Run("fatal failures stop the run regardless", func(t *testing.T) {
		sess := &fakeSession{results: map[schemas.ActionKind]schemas.StepResult{
			schemas.ActionOpen: schemas.Failure(schemas.NewStepError(
				schemas.ErrLaunch, schemas.ActionOpen, nil, "no browser")),
		}}
		r := NewRunner(config.ScriptConfig{KeepGoing: true}, zaptest.NewLogger(t))

		outcomes, err := r.Run(context.Background(), sess, testScript())
		require.Error(t, err)
		assert.Len(t, outcomes, 1)
	})
}

func TestRunnerPacing(t *testing.T) {
	sess := &fakeSession{}
	// 50 steps/second: 4 steps needs at least ~60ms of spacing.
	r := NewRunner(config.ScriptConfig{Pace: 50}, zaptest.NewLogger(t))

	start := time.Now()
	_, err := r.Run(context.Background(), sess, testScript())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestRunnerContextCancellation(t *testing.T) {
	sess := &fakeSession{}
	r := NewRunner(config.ScriptConfig{Pace: 1}, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Run(ctx, sess, testScript())
	assert.Error(t, err)
}
