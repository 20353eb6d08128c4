// File: internal/session/executor.go
package session

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/stepwright/stepwright/api/schemas"
	"github.com/stepwright/stepwright/internal/config"
)

// executor runs one step against the live page. It only ever executes on
// the session's dispatcher goroutine.
type executor struct {
	page playwright.Page
	res  *resolver
	cfg  config.StepConfig
	log  *zap.Logger
}

// handlerFunc executes one action kind. deadline is the step's total wait
// budget; handlers pass the remaining slice of it to each driver call.
type handlerFunc func(e *executor, t *task, deadline time.Time) (schemas.Artifact, *schemas.StepError)

// handlers is the closed dispatch table for page-level actions. Lifecycle
// kinds (open, close) are handled by the session before execution reaches
// this table.
var handlers = map[schemas.ActionKind]handlerFunc{
	schemas.ActionNavigate:        (*executor).navigate,
	schemas.ActionClick:           (*executor).click,
	schemas.ActionDoubleClick:     (*executor).doubleClick,
	schemas.ActionHover:           (*executor).hover,
	schemas.ActionDrag:            (*executor).drag,
	schemas.ActionScroll:          (*executor).scroll,
	schemas.ActionFill:            (*executor).fill,
	schemas.ActionType:            (*executor).typeText,
	schemas.ActionPress:           (*executor).press,
	schemas.ActionCheck:           (*executor).check,
	schemas.ActionSelect:          (*executor).selectOptions,
	schemas.ActionUpload:          (*executor).upload,
	schemas.ActionFocus:           (*executor).focus,
	schemas.ActionScreenshot:      (*executor).screenshot,
	schemas.ActionWaitForTime:     (*executor).waitForTime,
	schemas.ActionWaitForSelector: (*executor).waitForSelector,
	schemas.ActionWaitForElement:  (*executor).waitForElement,
}

// execute runs one already-validated step on an open session.
func (e *executor) execute(t *task) schemas.StepResult {
	h, ok := handlers[t.req.Action]
	if !ok {
		return schemas.Failure(schemas.NewStepError(
			schemas.ErrInvalidRequest, t.req.Action, nil,
			"no handler for action kind %q", t.req.Action))
	}

	timeout, poll := e.effectiveWait(t.req)
	e.res.poll = poll
	deadline := time.Now().Add(timeout)

	start := time.Now()
	artifact, serr := h(e, t, deadline)
	elapsed := time.Since(start)

	if serr != nil {
		e.log.Debug("step failed",
			zap.String("action", string(t.req.Action)),
			zap.String("kind", string(serr.Kind)),
			zap.Duration("elapsed", elapsed))
		res := schemas.Failure(serr)
		res.Elapsed = schemas.Duration(elapsed)
		return res
	}
	return schemas.StepResult{OK: true, Artifact: artifact, Elapsed: schemas.Duration(elapsed)}
}

// effectiveWait applies session defaults to a request's zero wait fields.
func (e *executor) effectiveWait(req *schemas.StepRequest) (time.Duration, time.Duration) {
	timeout := req.Wait.Timeout.Std()
	if timeout <= 0 {
		timeout = e.cfg.DefaultTimeout
	}
	poll := req.Wait.PollInterval.Std()
	if poll <= 0 {
		poll = e.cfg.DefaultPoll
	}
	return timeout, poll
}

// remainingMs converts what is left of the budget into the millisecond
// timeout the driver expects. A floor keeps a nearly-expired budget from
// turning into "wait forever" (the driver treats 0 as no timeout).
func remainingMs(deadline time.Time) *float64 {
	left := time.Until(deadline)
	if left < time.Millisecond {
		left = time.Millisecond
	}
	return playwright.Float(float64(left.Milliseconds()))
}

// withTarget resolves the step target and runs act against it, retrying
// both when the element detaches mid-action. Other failures are returned
// raw for per-action classification.
func (e *executor) withTarget(t *task, deadline time.Time, act func(playwright.Locator) error) error {
	for {
		res, serr := e.res.resolve(t.req.Target, deadline)
		if serr != nil {
			serr.Action = t.req.Action
			return serr
		}
		// Cardinality all and coordinate specs resolve without a usable
		// locator; a single-element action cannot act on either.
		if res.locator == nil {
			return schemas.NewStepError(schemas.ErrInvalidRequest, t.req.Action, nil,
				"%s needs a target that resolves to a single element", t.req.Action)
		}
		err := act(res.locator)
		if err == nil {
			return nil
		}
		if schemas.IsDriverDetached(err) && time.Now().Add(e.res.poll).Before(deadline) {
			time.Sleep(e.res.poll)
			continue
		}
		return err
	}
}

// classifyInteraction maps a raw driver failure from an element action.
func classifyInteraction(action schemas.ActionKind, err error) *schemas.StepError {
	var se *schemas.StepError
	if ok := asStepError(err, &se); ok {
		return se
	}
	switch {
	case schemas.IsDriverNotInteractable(err):
		return schemas.NewStepError(schemas.ErrNotInteractable, action, err,
			"element never became actionable: %s", err.Error())
	case schemas.IsDriverTimeout(err):
		return schemas.NewStepError(schemas.ErrTimeout, action, err,
			"wait budget exhausted: %s", err.Error())
	case schemas.IsDriverDetached(err):
		return schemas.NewStepError(schemas.ErrTimeout, action, err,
			"element kept detaching until the wait budget ran out")
	}
	return schemas.NewStepError(schemas.ErrNotInteractable, action, err, "%s", err.Error())
}

// -- Navigation --

func (e *executor) navigate(t *task, deadline time.Time) (schemas.Artifact, *schemas.StepError) {
	timeout := e.cfg.NavigationTimeout
	if t.req.Wait.Timeout > 0 {
		timeout = t.req.Wait.Timeout.Std()
	}
	_, err := e.page.Goto(t.req.Params.URL, playwright.PageGotoOptions{
		Timeout:   playwright.Float(float64(timeout.Milliseconds())),
		WaitUntil: playwright.WaitUntilStateLoad,
	})
	if err != nil {
		// A navigation that ran out its bounded timeout is still a
		// navigation failure; the wrapped cause says which it was.
		return schemas.Artifact{}, schemas.NewStepError(schemas.ErrNavigation, t.req.Action, err,
			"navigation to %s failed: %s", t.req.Params.URL, err.Error())
	}
	return schemas.Artifact{URL: e.page.URL()}, nil
}

// -- Pointer Actions --

func (e *executor) click(t *task, deadline time.Time) (schemas.Artifact, *schemas.StepError) {
	if t.req.Target == nil {
		// Bare page click at a viewport position.
		p := t.req.Params.Position
		if err := e.page.Mouse().Click(p.X, p.Y); err != nil {
			return schemas.Artifact{}, classifyInteraction(t.req.Action, err)
		}
		return schemas.Artifact{}, nil
	}
	if t.req.Target.Coordinate != nil {
		c := t.req.Target.Coordinate
		if err := e.page.Mouse().Click(c.X, c.Y); err != nil {
			return schemas.Artifact{}, classifyInteraction(t.req.Action, err)
		}
		return schemas.Artifact{}, nil
	}
	err := e.withTarget(t, deadline, func(loc playwright.Locator) error {
		opts := playwright.LocatorClickOptions{Timeout: remainingMs(deadline)}
		if p := t.req.Params.Position; p != nil {
			opts.Position = &playwright.Position{X: p.X, Y: p.Y}
		}
		return loc.Click(opts)
	})
	if err != nil {
		return schemas.Artifact{}, classifyInteraction(t.req.Action, err)
	}
	return schemas.Artifact{}, nil
}

func (e *executor) doubleClick(t *task, deadline time.Time) (schemas.Artifact, *schemas.StepError) {
	if t.req.Target == nil || t.req.Target.Coordinate != nil {
		p := t.req.Params.Position
		if c := targetCoordinate(t.req); c != nil {
			p = c
		}
		if err := e.page.Mouse().Dblclick(p.X, p.Y); err != nil {
			return schemas.Artifact{}, classifyInteraction(t.req.Action, err)
		}
		return schemas.Artifact{}, nil
	}
	err := e.withTarget(t, deadline, func(loc playwright.Locator) error {
		opts := playwright.LocatorDblclickOptions{Timeout: remainingMs(deadline)}
		if p := t.req.Params.Position; p != nil {
			opts.Position = &playwright.Position{X: p.X, Y: p.Y}
		}
		return loc.Dblclick(opts)
	})
	if err != nil {
		return schemas.Artifact{}, classifyInteraction(t.req.Action, err)
	}
	return schemas.Artifact{}, nil
}

func (e *executor) hover(t *task, deadline time.Time) (schemas.Artifact, *schemas.StepError) {
	if c := targetCoordinate(t.req); c != nil {
		if err := e.page.Mouse().Move(c.X, c.Y); err != nil {
			return schemas.Artifact{}, classifyInteraction(t.req.Action, err)
		}
		return schemas.Artifact{}, nil
	}
	err := e.withTarget(t, deadline, func(loc playwright.Locator) error {
		return loc.Hover(playwright.LocatorHoverOptions{Timeout: remainingMs(deadline)})
	})
	if err != nil {
		return schemas.Artifact{}, classifyInteraction(t.req.Action, err)
	}
	return schemas.Artifact{}, nil
}

func (e *executor) drag(t *task, deadline time.Time) (schemas.Artifact, *schemas.StepError) {
	// Both ends resolve under cardinality one; drag with an ambiguous end
	// is never meaningful.
	err := e.withTarget(t, deadline, func(src playwright.Locator) error {
		dst, serr := e.res.resolve(t.req.Params.DragTarget, deadline)
		if serr != nil {
			serr.Action = t.req.Action
			return serr
		}
		if dst.locator == nil {
			return schemas.NewStepError(schemas.ErrInvalidRequest, t.req.Action, nil,
				"drag needs a drop target that resolves to a single element")
		}
		return src.DragTo(dst.locator, playwright.LocatorDragToOptions{
			Timeout: remainingMs(deadline),
		})
	})
	if err != nil {
		return schemas.Artifact{}, classifyInteraction(t.req.Action, err)
	}
	return schemas.Artifact{}, nil
}

// scroll is best-effort: a scroll that moves nothing is indistinguishable
// from one that hit the end of the content, so driver errors degrade to a
// debug log instead of failing the step.
func (e *executor) scroll(t *task, deadline time.Time) (schemas.Artifact, *schemas.StepError) {
	method := t.req.Params.Method
	if method == "" {
		if t.req.Target != nil {
			method = schemas.ScrollIntoView
		} else {
			method = schemas.ScrollPage
		}
	}

	var err error
	switch method {
	case schemas.ScrollIntoView:
		err = e.withTarget(t, deadline, func(loc playwright.Locator) error {
			return loc.ScrollIntoViewIfNeeded(playwright.LocatorScrollIntoViewIfNeededOptions{
				Timeout: remainingMs(deadline),
			})
		})
	case schemas.ScrollWheel:
		if t.req.Target != nil {
			// Position the pointer over the target so the wheel event lands
			// on the right scroll container.
			err = e.withTarget(t, deadline, func(loc playwright.Locator) error {
				return loc.Hover(playwright.LocatorHoverOptions{Timeout: remainingMs(deadline)})
			})
		}
		if err == nil {
			err = e.page.Mouse().Wheel(t.req.Params.DeltaX, t.req.Params.DeltaY)
		}
	case schemas.ScrollElement:
		err = e.withTarget(t, deadline, func(loc playwright.Locator) error {
			_, evalErr := loc.Evaluate(
				"(el, d) => { el.scrollLeft += d.x; el.scrollTop += d.y; }",
				map[string]any{"x": t.req.Params.DeltaX, "y": t.req.Params.DeltaY},
			)
			return evalErr
		})
	case schemas.ScrollPage:
		_, err = e.page.Evaluate(
			"d => window.scrollBy(d.x, d.y)",
			map[string]any{"x": t.req.Params.DeltaX, "y": t.req.Params.DeltaY},
		)
	}

	if err != nil {
		// Resolution failures still surface; a scroll aimed at a missing
		// element is a request problem, not a scroll problem.
		var se *schemas.StepError
		if asStepError(err, &se) {
			return schemas.Artifact{}, se
		}
		e.log.Debug("scroll degraded to no-op",
			zap.String("method", string(method)), zap.Error(err))
	}
	return schemas.Artifact{}, nil
}

// -- Input Actions --

func (e *executor) fill(t *task, deadline time.Time) (schemas.Artifact, *schemas.StepError) {
	err := e.withTarget(t, deadline, func(loc playwright.Locator) error {
		return loc.Fill(t.req.Params.Text, playwright.LocatorFillOptions{
			Timeout: remainingMs(deadline),
		})
	})
	if err != nil {
		return schemas.Artifact{}, classifyInteraction(t.req.Action, err)
	}
	return schemas.Artifact{}, nil
}

func (e *executor) typeText(t *task, deadline time.Time) (schemas.Artifact, *schemas.StepError) {
	err := e.withTarget(t, deadline, func(loc playwright.Locator) error {
		opts := playwright.LocatorPressSequentiallyOptions{Timeout: remainingMs(deadline)}
		if t.req.Params.Delay > 0 {
			opts.Delay = playwright.Float(float64(t.req.Params.Delay.Std().Milliseconds()))
		}
		return loc.PressSequentially(t.req.Params.Text, opts)
	})
	if err != nil {
		return schemas.Artifact{}, classifyInteraction(t.req.Action, err)
	}
	return schemas.Artifact{}, nil
}

func (e *executor) press(t *task, deadline time.Time) (schemas.Artifact, *schemas.StepError) {
	if t.req.Target == nil {
		// No target means a page-global key chord.
		if err := e.page.Keyboard().Press(t.req.Params.Key); err != nil {
			return schemas.Artifact{}, classifyInteraction(t.req.Action, err)
		}
		return schemas.Artifact{}, nil
	}
	err := e.withTarget(t, deadline, func(loc playwright.Locator) error {
		return loc.Press(t.req.Params.Key, playwright.LocatorPressOptions{
			Timeout: remainingMs(deadline),
		})
	})
	if err != nil {
		return schemas.Artifact{}, classifyInteraction(t.req.Action, err)
	}
	return schemas.Artifact{}, nil
}

func (e *executor) check(t *task, deadline time.Time) (schemas.Artifact, *schemas.StepError) {
	var checked bool
	err := e.withTarget(t, deadline, func(loc playwright.Locator) error {
		if !t.req.Params.AssertOnly {
			if err := loc.Check(playwright.LocatorCheckOptions{
				Timeout: remainingMs(deadline),
			}); err != nil {
				return err
			}
		}
		state, err := loc.IsChecked(playwright.LocatorIsCheckedOptions{
			Timeout: remainingMs(deadline),
		})
		if err != nil {
			return err
		}
		checked = state
		return nil
	})
	if err != nil {
		se := classifyInteraction(t.req.Action, err)
		// The driver rejects check on anything that is not a checkbox or
		// radio; that is a state problem, not a visibility problem.
		if se.Kind == schemas.ErrNotInteractable && !schemas.IsDriverNotInteractable(err) {
			se.Kind = schemas.ErrInvalidState
		}
		return schemas.Artifact{}, se
	}
	return schemas.Artifact{Checked: &checked}, nil
}

func (e *executor) selectOptions(t *task, deadline time.Time) (schemas.Artifact, *schemas.StepError) {
	values, serr := selectValues(t.req)
	if serr != nil {
		return schemas.Artifact{}, serr
	}
	var selected []string
	err := e.withTarget(t, deadline, func(loc playwright.Locator) error {
		got, selErr := loc.SelectOption(values, playwright.LocatorSelectOptionOptions{
			Timeout: remainingMs(deadline),
		})
		if selErr != nil {
			return selErr
		}
		selected = got
		return nil
	})
	if err != nil {
		// The driver waits for missing options until its deadline, so a
		// timeout on an otherwise-present select control means the named
		// option never appeared.
		if schemas.IsDriverTimeout(err) {
			return schemas.Artifact{}, schemas.NewStepError(
				schemas.ErrOptionNotFound, t.req.Action, err,
				"options %v not present in the select control", t.req.Params.Options)
		}
		return schemas.Artifact{}, classifyInteraction(t.req.Action, err)
	}
	if len(selected) < len(t.req.Params.Options) {
		return schemas.Artifact{}, schemas.NewStepError(
			schemas.ErrOptionNotFound, t.req.Action, nil,
			"requested %d options, control accepted %d", len(t.req.Params.Options), len(selected))
	}
	return schemas.Artifact{}, nil
}

// selectValues translates the request's option identifiers into the
// driver's tagged value set.
func selectValues(req *schemas.StepRequest) (playwright.SelectOptionValues, *schemas.StepError) {
	opts := req.Params.Options
	switch req.Params.By {
	case schemas.SelectByLabel:
		return playwright.SelectOptionValues{Labels: &opts}, nil
	case schemas.SelectByIndex:
		indexes := make([]int, 0, len(opts))
		for _, raw := range opts {
			idx, err := strconv.Atoi(raw)
			if err != nil || idx < 0 {
				return playwright.SelectOptionValues{}, schemas.NewStepError(
					schemas.ErrInvalidRequest, req.Action, err,
					"%q is not a valid option index", raw)
			}
			indexes = append(indexes, idx)
		}
		return playwright.SelectOptionValues{Indexes: &indexes}, nil
	default:
		return playwright.SelectOptionValues{Values: &opts}, nil
	}
}

func (e *executor) upload(t *task, deadline time.Time) (schemas.Artifact, *schemas.StepError) {
	// Check the local files before touching the page; a missing file is a
	// caller mistake and should not consume the wait budget.
	for _, f := range t.req.Params.Files {
		if _, err := os.Stat(f); err != nil {
			return schemas.Artifact{}, schemas.NewStepError(
				schemas.ErrFileNotFound, t.req.Action, err,
				"upload file %s is not readable", f)
		}
	}
	err := e.withTarget(t, deadline, func(loc playwright.Locator) error {
		return loc.SetInputFiles(t.req.Params.Files, playwright.LocatorSetInputFilesOptions{
			Timeout: remainingMs(deadline),
		})
	})
	if err != nil {
		return schemas.Artifact{}, classifyInteraction(t.req.Action, err)
	}
	return schemas.Artifact{}, nil
}

func (e *executor) focus(t *task, deadline time.Time) (schemas.Artifact, *schemas.StepError) {
	err := e.withTarget(t, deadline, func(loc playwright.Locator) error {
		return loc.Focus(playwright.LocatorFocusOptions{Timeout: remainingMs(deadline)})
	})
	if err != nil {
		return schemas.Artifact{}, classifyInteraction(t.req.Action, err)
	}
	return schemas.Artifact{}, nil
}

// -- Observation --

func (e *executor) screenshot(t *task, deadline time.Time) (schemas.Artifact, *schemas.StepError) {
	var shot []byte
	var err error
	if t.req.Target != nil {
		// Capture is deliberately single-shot: an element that detaches
		// between resolution and capture is a failed capture, not a
		// retryable hiccup, since the retried frame may show different
		// content than the step observed.
		res, serr := e.res.resolve(t.req.Target, deadline)
		if serr != nil {
			serr.Action = t.req.Action
			return schemas.Artifact{}, serr
		}
		if res.locator == nil {
			return schemas.Artifact{}, schemas.NewStepError(
				schemas.ErrInvalidRequest, t.req.Action, nil,
				"element screenshot needs a target that resolves to a single element")
		}
		opts := playwright.LocatorScreenshotOptions{Timeout: remainingMs(deadline)}
		if t.req.Params.Path != "" {
			opts.Path = playwright.String(t.req.Params.Path)
		}
		shot, err = res.locator.Screenshot(opts)
	} else {
		opts := playwright.PageScreenshotOptions{
			Timeout:  remainingMs(deadline),
			FullPage: playwright.Bool(t.req.Params.FullPage),
		}
		if t.req.Params.Path != "" {
			opts.Path = playwright.String(t.req.Params.Path)
		}
		shot, err = e.page.Screenshot(opts)
	}
	if err != nil {
		var se *schemas.StepError
		if asStepError(err, &se) {
			return schemas.Artifact{}, se
		}
		return schemas.Artifact{}, schemas.NewStepError(
			schemas.ErrCapture, t.req.Action, err, "screenshot failed: %s", err.Error())
	}
	return schemas.Artifact{Screenshot: shot, SavedPath: t.req.Params.Path}, nil
}

// -- Synchronization --

func (e *executor) waitForTime(t *task, _ time.Time) (schemas.Artifact, *schemas.StepError) {
	timer := time.NewTimer(t.req.Params.Duration.Std())
	defer timer.Stop()
	select {
	case <-timer.C:
		return schemas.Artifact{}, nil
	case <-t.ctx.Done():
		return schemas.Artifact{}, schemas.NewStepError(
			schemas.ErrTimeout, t.req.Action, t.ctx.Err(), "wait canceled")
	}
}

func (e *executor) waitForSelector(t *task, deadline time.Time) (schemas.Artifact, *schemas.StepError) {
	_, err := e.page.WaitForSelector(t.req.Params.Selector, playwright.PageWaitForSelectorOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: remainingMs(deadline),
	})
	if err != nil {
		return schemas.Artifact{}, schemas.NewStepError(
			schemas.ErrTimeout, t.req.Action, err,
			"selector %q did not become visible within the wait budget", t.req.Params.Selector)
	}
	return schemas.Artifact{}, nil
}

// waitForElement is the locator-spec counterpart of waitForSelector; it
// also reports the match count for cardinality-all specs.
func (e *executor) waitForElement(t *task, deadline time.Time) (schemas.Artifact, *schemas.StepError) {
	res, serr := e.res.resolve(t.req.Target, deadline)
	if serr != nil {
		// An explicit wait exists to absorb slowness, so "never appeared"
		// reports as an exhausted budget. Ambiguity still fails as such.
		if serr.Kind == schemas.ErrNotFound {
			return schemas.Artifact{}, schemas.NewStepError(
				schemas.ErrTimeout, t.req.Action, serr.Err,
				"element did not appear within the wait budget")
		}
		serr.Action = t.req.Action
		return schemas.Artifact{}, serr
	}
	if res.locator != nil {
		if err := res.locator.WaitFor(playwright.LocatorWaitForOptions{
			State:   playwright.WaitForSelectorStateVisible,
			Timeout: remainingMs(deadline),
		}); err != nil {
			return schemas.Artifact{}, schemas.NewStepError(
				schemas.ErrTimeout, t.req.Action, err,
				"element did not become visible within the wait budget")
		}
	}
	count := res.count
	return schemas.Artifact{MatchCount: &count}, nil
}

// -- Helpers --

// targetCoordinate extracts a fixed-coordinate target, if that is what the
// request addresses.
func targetCoordinate(req *schemas.StepRequest) *schemas.Point {
	if req.Target != nil && req.Target.Coordinate != nil {
		return req.Target.Coordinate
	}
	return nil
}

// asStepError is a local errors.As shim keeping handler call sites short.
func asStepError(err error, out **schemas.StepError) bool {
	var se *schemas.StepError
	if errors.As(err, &se) {
		*out = se
		return true
	}
	return false
}
