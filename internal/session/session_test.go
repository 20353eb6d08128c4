// File: internal/session/session_test.go
package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/stepwright/stepwright/api/schemas"
)

func openStep(url string) *schemas.StepRequest {
	return &schemas.StepRequest{
		Action: schemas.ActionOpen,
		Params: schemas.StepParams{URL: url},
	}
}

func stubConnect(page *fakePage) func(headless *bool) (browserStack, error) {
	return func(headless *bool) (browserStack, error) {
		return browserStack{page: page}, nil
	}
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("open launches and navigates", func(t *testing.T) {
		page := &fakePage{}
		s := newTestSession(t, stubConnect(page))
		require.Equal(t, "unopened", s.State())

		res := s.Dispatch(ctx, openStep("https://example.com/login"))
		require.True(t, res.OK, "open failed: %v", res.Error)
		assert.Equal(t, "open", s.State())
		assert.Equal(t, []string{"https://example.com/login"}, page.gotoCalls)
		assert.Equal(t, "https://example.com/login", res.Artifact.URL)
	})

	t.Run("open while open is an invalid state", func(t *testing.T) {
		s := newTestSession(t, stubConnect(&fakePage{}))
		require.True(t, s.Dispatch(ctx, openStep("https://example.com")).OK)

		res := s.Dispatch(ctx, openStep("https://example.com"))
		require.NotNil(t, res.Error)
		assert.Equal(t, schemas.ErrInvalidState, res.Error.Kind)
		assert.Equal(t, "open", s.State(), "failed reopen must not disturb the session")
	})

	t.Run("close is idempotent", func(t *testing.T) {
		s := newTestSession(t, stubConnect(&fakePage{}))

		// Closing before opening is a no-op success.
		res := s.Dispatch(ctx, &schemas.StepRequest{Action: schemas.ActionClose})
		assert.True(t, res.OK)
		assert.Equal(t, "closed", s.State())

		// And again.
		res = s.Dispatch(ctx, &schemas.StepRequest{Action: schemas.ActionClose})
		assert.True(t, res.OK)
	})

	t.Run("open after close is rejected", func(t *testing.T) {
		s := newTestSession(t, stubConnect(&fakePage{}))
		require.True(t, s.Dispatch(ctx, openStep("https://example.com")).OK)
		require.True(t, s.Dispatch(ctx, &schemas.StepRequest{Action: schemas.ActionClose}).OK)

		res := s.Dispatch(ctx, openStep("https://example.com"))
		require.NotNil(t, res.Error)
		assert.Equal(t, schemas.ErrSessionNotReady, res.Error.Kind)
	})

	t.Run("steps before open are rejected", func(t *testing.T) {
		s := newTestSession(t, stubConnect(&fakePage{}))
		res := s.Dispatch(ctx, &schemas.StepRequest{
			Action: schemas.ActionClick,
			Target: &schemas.LocatorSpec{Selector: "#go"},
		})
		require.NotNil(t, res.Error)
		assert.Equal(t, schemas.ErrSessionNotReady, res.Error.Kind)
		assert.Equal(t, "unopened", s.State())
	})

	t.Run("launch failure is fatal", func(t *testing.T) {
		s := newTestSession(t, func(headless *bool) (browserStack, error) {
			return browserStack{}, errors.New("no browser binary")
		})
		res := s.Dispatch(ctx, openStep("https://example.com"))
		require.NotNil(t, res.Error)
		assert.Equal(t, schemas.ErrLaunch, res.Error.Kind)
		assert.True(t, res.Error.Fatal())
		assert.Equal(t, "closed", s.State())

		// The dead session answers later steps instead of hanging.
		res = s.Dispatch(ctx, openStep("https://example.com"))
		require.NotNil(t, res.Error)
		assert.Equal(t, schemas.ErrSessionNotReady, res.Error.Kind)
	})

	t.Run("failed initial navigation leaves the session open", func(t *testing.T) {
		page := &fakePage{gotoErr: errors.New("net::ERR_NAME_NOT_RESOLVED")}
		s := newTestSession(t, stubConnect(page))

		res := s.Dispatch(ctx, openStep("https://no-such-host.invalid"))
		require.NotNil(t, res.Error)
		assert.Equal(t, schemas.ErrNavigation, res.Error.Kind)
		assert.False(t, res.Error.Fatal())
		assert.Equal(t, "open", s.State())
	})

	t.Run("timed out initial navigation is a navigation failure", func(t *testing.T) {
		page := &fakePage{gotoErr: errors.New("Timeout 200ms exceeded.")}
		s := newTestSession(t, stubConnect(page))

		res := s.Dispatch(ctx, openStep("https://slow-host.example"))
		require.NotNil(t, res.Error)
		assert.Equal(t, schemas.ErrNavigation, res.Error.Kind)
		assert.Equal(t, "open", s.State())
	})
}

func TestManagerCloseReachesBrowserOnCanceledContext(t *testing.T) {
	page := &fakePage{}
	s := newTestSession(t, stubConnect(page))
	require.True(t, s.Dispatch(context.Background(), openStep("https://example.com")).OK)

	m := &Manager{
		cfg:      testConfig(),
		log:      zaptest.NewLogger(t),
		sessions: map[string]*Session{s.ID: s},
	}

	// The caller is already past its deadline; teardown must still run.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, m.Close(ctx))
	assert.Equal(t, "closed", s.State())
	assert.Empty(t, m.sessions)
}

func TestSessionDispatchValidation(t *testing.T) {
	s := newTestSession(t, stubConnect(&fakePage{}))

	res := s.Dispatch(context.Background(), &schemas.StepRequest{Action: "warp"})
	require.NotNil(t, res.Error)
	assert.Equal(t, schemas.ErrInvalidRequest, res.Error.Kind)

	res = s.Dispatch(context.Background(), &schemas.StepRequest{Action: schemas.ActionOpen})
	require.NotNil(t, res.Error)
	assert.Equal(t, schemas.ErrInvalidRequest, res.Error.Kind, "open without url must fail validation")
	assert.Equal(t, "unopened", s.State(), "invalid requests must not reach the worker")
}
