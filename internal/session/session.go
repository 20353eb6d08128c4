// File: internal/session/session.go
package session

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/stepwright/stepwright/api/schemas"
	"github.com/stepwright/stepwright/internal/config"
)

// Session lifecycle states. Transitions only ever move forward:
// unopened -> open -> closed.
const (
	stateUnopened int32 = iota
	stateOpen
	stateClosed
)

// releaseTimeout bounds how long we wait for a session worker to exit.
const releaseTimeout = 10 * time.Second

// Session owns one browser page and serializes every step against it.
// All driver access happens on the session's single worker goroutine;
// Dispatch is safe to call from any number of goroutines.
type Session struct {
	ID  string
	cfg *config.Config
	log *zap.Logger

	disp  *dispatcher
	state atomic.Int32

	// connect launches the per-session browser stack. Swappable in tests.
	connect func(headless *bool) (browserStack, error)

	// Driver handles, touched only on the worker goroutine.
	stack browserStack
	exec  *executor
}

// browserStack bundles the per-session driver handles.
type browserStack struct {
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
}

// Dispatch submits one step and blocks until its result. Steps from
// concurrent callers are executed strictly one at a time, in acceptance
// order. Structural validation happens before the step is queued.
func (s *Session) Dispatch(ctx context.Context, req *schemas.StepRequest) schemas.StepResult {
	if err := req.Validate(); err != nil {
		return schemas.Failure(schemas.NewStepError(
			schemas.ErrInvalidRequest, req.Action, err, "%s", err.Error()))
	}
	return s.disp.dispatch(ctx, req)
}

// State reports the lifecycle state for logging and tests.
func (s *Session) State() string {
	switch s.state.Load() {
	case stateOpen:
		return "open"
	case stateClosed:
		return "closed"
	}
	return "unopened"
}

// run executes one task on the worker goroutine. Lifecycle kinds mutate
// session state here; everything else requires an open session.
func (s *Session) run(t *task) schemas.StepResult {
	switch t.req.Action {
	case schemas.ActionOpen:
		return s.open(t)
	case schemas.ActionClose:
		return s.close(t)
	}

	if s.state.Load() != stateOpen {
		return schemas.Failure(schemas.NewStepError(
			schemas.ErrSessionNotReady, t.req.Action, nil,
			"session is %s, step requires an open session", s.State()))
	}
	return s.exec.execute(t)
}

// open launches the browser stack and performs the initial navigation.
// A launch failure is fatal and moves the session straight to closed; a
// failed initial navigation leaves the session open and usable.
func (s *Session) open(t *task) schemas.StepResult {
	switch s.state.Load() {
	case stateOpen:
		return schemas.Failure(schemas.NewStepError(
			schemas.ErrInvalidState, t.req.Action, nil,
			"session is already open"))
	case stateClosed:
		return schemas.Failure(schemas.NewStepError(
			schemas.ErrSessionNotReady, t.req.Action, nil,
			"session was closed and cannot be reopened"))
	}

	start := time.Now()
	stack, err := s.connect(t.req.Params.Headless)
	if err != nil {
		s.state.Store(stateClosed)
		return schemas.Failure(schemas.NewStepError(
			schemas.ErrLaunch, t.req.Action, err,
			"browser launch failed: %s", err.Error()))
	}
	s.stack = stack
	s.exec = &executor{
		page: stack.page,
		res:  &resolver{page: stack.page, poll: s.cfg.Step.DefaultPoll},
		cfg:  s.cfg.Step,
		log:  s.log,
	}
	s.state.Store(stateOpen)
	s.log.Info("session opened",
		zap.String("session_id", s.ID),
		zap.Duration("launch_time", time.Since(start)))

	navTask := *t
	artifact, serr := s.exec.navigate(&navTask, time.Now().Add(s.cfg.Step.NavigationTimeout))
	if serr != nil {
		return schemas.StepResult{OK: false, Error: serr, Elapsed: schemas.Duration(time.Since(start))}
	}
	return schemas.StepResult{OK: true, Artifact: artifact, Elapsed: schemas.Duration(time.Since(start))}
}

// close tears down the browser stack. Closing a session that never opened
// or is already closed is a successful no-op.
func (s *Session) close(t *task) schemas.StepResult {
	if s.state.Load() != stateOpen {
		s.state.Store(stateClosed)
		return schemas.StepResult{OK: true}
	}
	s.state.Store(stateClosed)

	// Teardown errors are logged, never surfaced; the session is closed
	// either way.
	if s.stack.context != nil {
		if err := s.stack.context.Close(); err != nil {
			s.log.Warn("browser context close failed", zap.Error(err))
		}
	}
	if s.stack.browser != nil {
		if err := s.stack.browser.Close(); err != nil {
			s.log.Warn("browser close failed", zap.Error(err))
		}
	}
	s.stack = browserStack{}
	s.exec = nil
	s.log.Info("session closed", zap.String("session_id", s.ID))
	return schemas.StepResult{OK: true}
}

// -- Manager --

// Manager owns the driver runtime and the set of live sessions.
type Manager struct {
	cfg *config.Config
	log *zap.Logger
	pw  *playwright.Playwright

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager starts the driver runtime. When browser.install_driver is set
// it first ensures the bundled browsers are present.
func NewManager(cfg *config.Config, log *zap.Logger) (*Manager, error) {
	opts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}
	if cfg.Browser.InstallDriver {
		if err := playwright.Install(opts); err != nil {
			return nil, fmt.Errorf("failed to install driver browsers: %w", err)
		}
	}
	pw, err := playwright.Run(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to start driver: %w", err)
	}
	return &Manager{
		cfg:      cfg,
		log:      log.Named("session"),
		pw:       pw,
		sessions: make(map[string]*Session),
	}, nil
}

// NewSession creates an unopened session. The browser is not launched
// until the session's first open step.
func (m *Manager) NewSession() *Session {
	s := &Session{
		ID:  uuid.NewString(),
		cfg: m.cfg,
	}
	s.log = m.log.With(zap.String("session_id", s.ID))
	s.connect = m.launch
	s.disp = newDispatcher(m.cfg.Step.QueueSize, s.run, s.log)

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.log.Debug("session created", zap.String("session_id", s.ID))
	return s
}

// launch builds one session's browser stack.
func (m *Manager) launch(headless *bool) (browserStack, error) {
	h := m.cfg.Browser.Headless
	if headless != nil {
		h = *headless
	}
	browser, err := m.pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(h),
		Args:     m.cfg.Browser.Args,
	})
	if err != nil {
		return browserStack{}, fmt.Errorf("failed to launch browser: %w", err)
	}

	ctxOpts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  m.cfg.Browser.ViewportWidth,
			Height: m.cfg.Browser.ViewportHeight,
		},
		IgnoreHttpsErrors: playwright.Bool(m.cfg.Browser.IgnoreTLSErrors),
	}
	if m.cfg.Browser.UserAgent != "" {
		ctxOpts.UserAgent = playwright.String(m.cfg.Browser.UserAgent)
	}
	bctx, err := browser.NewContext(ctxOpts)
	if err != nil {
		browser.Close()
		return browserStack{}, fmt.Errorf("failed to create browser context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		browser.Close()
		return browserStack{}, fmt.Errorf("failed to create page: %w", err)
	}
	page.SetDefaultTimeout(float64(m.cfg.Step.DefaultTimeout.Milliseconds()))

	return browserStack{browser: browser, context: bctx, page: page}, nil
}

// ReleaseSession closes a session's browser if needed and stops its
// worker. The session rejects all dispatches afterwards.
func (m *Manager) ReleaseSession(s *Session) {
	// The close step runs on a fresh context so teardown still reaches the
	// driver when the caller is shutting down on a canceled one. Releasing
	// twice is harmless; close is idempotent.
	s.Dispatch(context.Background(), &schemas.StepRequest{Action: schemas.ActionClose})
	s.disp.release(releaseTimeout)

	m.mu.Lock()
	delete(m.sessions, s.ID)
	m.mu.Unlock()
}

// Close releases every live session concurrently and stops the driver
// runtime.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	live := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		live = append(live, s)
	}
	m.mu.Unlock()

	var g errgroup.Group
	for _, s := range live {
		g.Go(func() error {
			m.ReleaseSession(s)
			return nil
		})
	}
	// Releases never return errors; the group is for fan-out only.
	_ = g.Wait()

	if m.pw != nil {
		if err := m.pw.Stop(); err != nil {
			return fmt.Errorf("failed to stop driver: %w", err)
		}
	}
	m.log.Info("session manager closed", zap.Int("sessions_released", len(live)))
	return nil
}
