package schemas

import "fmt"

// -- Action Vocabulary --

// ActionKind identifies one of the step types the dispatcher understands.
// The set is closed: the executor carries exactly one handler per kind.
type ActionKind string

const (
	// Session lifecycle steps.
	ActionOpen     ActionKind = "open"
	ActionNavigate ActionKind = "navigate"
	ActionClose    ActionKind = "close"

	// Pointer actions.
	ActionClick       ActionKind = "click"
	ActionDoubleClick ActionKind = "double_click"
	ActionHover       ActionKind = "hover"
	ActionDrag        ActionKind = "drag"
	ActionScroll      ActionKind = "scroll"

	// Input actions.
	ActionFill   ActionKind = "fill"
	ActionType   ActionKind = "type"
	ActionPress  ActionKind = "press"
	ActionCheck  ActionKind = "check"
	ActionSelect ActionKind = "select"
	ActionUpload ActionKind = "upload"
	ActionFocus  ActionKind = "focus"

	// Observation and synchronization.
	ActionScreenshot      ActionKind = "screenshot"
	ActionWaitForTime     ActionKind = "wait_for_time"
	ActionWaitForSelector ActionKind = "wait_for_selector"
	ActionWaitForElement  ActionKind = "wait_for_element"
)

// KnownActions lists every dispatchable kind, in documentation order.
var KnownActions = []ActionKind{
	ActionOpen, ActionNavigate, ActionClose,
	ActionClick, ActionDoubleClick, ActionHover, ActionDrag, ActionScroll,
	ActionFill, ActionType, ActionPress, ActionCheck, ActionSelect,
	ActionUpload, ActionFocus,
	ActionScreenshot, ActionWaitForTime, ActionWaitForSelector, ActionWaitForElement,
}

// IsKnownAction reports whether kind is part of the dispatch vocabulary.
func IsKnownAction(kind ActionKind) bool {
	for _, k := range KnownActions {
		if k == kind {
			return true
		}
	}
	return false
}

// -- Locator Specs --

// Cardinality constrains how many elements a locator spec may resolve to.
type Cardinality string

const (
	// CardinalityOne requires exactly one match. Zero matches within the
	// wait budget is NotFoundError, more than one is AmbiguousMatchError.
	CardinalityOne Cardinality = "one"
	// CardinalityAny takes the first match in DOM order.
	CardinalityAny Cardinality = "any"
	// CardinalityAll returns every match; an empty set is not an error.
	CardinalityAll Cardinality = "all"
)

// Point is a fixed viewport coordinate.
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// LocatorSpec is the tagged union of element addressing strategies.
// Exactly one of Selector, Role, Label, or Coordinate must be set.
type LocatorSpec struct {
	// Selector is a CSS selector, matched in DOM order.
	Selector string `json:"selector,omitempty" yaml:"selector,omitempty"`

	// Role addresses via the accessibility tree, optionally narrowed by
	// the accessible Name. Name comparison is exact unless NameContains.
	Role         string `json:"role,omitempty" yaml:"role,omitempty"`
	Name         string `json:"name,omitempty" yaml:"name,omitempty"`
	NameContains bool   `json:"name_contains,omitempty" yaml:"name_contains,omitempty"`

	// Label matches form controls by their visible label text, falling
	// back to aria-label and then placeholder when no label is associated.
	Label string `json:"label,omitempty" yaml:"label,omitempty"`

	// Coordinate bypasses element resolution entirely; the point is handed
	// to the action as-is.
	Coordinate *Point `json:"coordinate,omitempty" yaml:"coordinate,omitempty"`

	// Cardinality defaults to CardinalityOne when empty.
	Cardinality Cardinality `json:"cardinality,omitempty" yaml:"cardinality,omitempty"`
}

// Strategy names the single addressing strategy a spec uses, for logs.
func (l *LocatorSpec) Strategy() string {
	switch {
	case l == nil:
		return "none"
	case l.Selector != "":
		return "selector"
	case l.Role != "":
		return "role"
	case l.Label != "":
		return "label"
	case l.Coordinate != nil:
		return "coordinate"
	}
	return "none"
}

// Validate checks that exactly one strategy is populated.
func (l *LocatorSpec) Validate() error {
	if l == nil {
		return nil
	}
	set := 0
	if l.Selector != "" {
		set++
	}
	if l.Role != "" {
		set++
	}
	if l.Label != "" {
		set++
	}
	if l.Coordinate != nil {
		set++
	}
	if set == 0 {
		return fmt.Errorf("locator spec is empty: one of selector, role, label or coordinate is required")
	}
	if set > 1 {
		return fmt.Errorf("locator spec sets %d strategies, exactly one is allowed", set)
	}
	if l.Name != "" && l.Role == "" {
		return fmt.Errorf("locator name %q requires a role", l.Name)
	}
	switch l.Cardinality {
	case "", CardinalityOne, CardinalityAny, CardinalityAll:
	default:
		return fmt.Errorf("unknown cardinality %q", l.Cardinality)
	}
	return nil
}

// EffectiveCardinality applies the fail-on-ambiguity default.
func (l *LocatorSpec) EffectiveCardinality() Cardinality {
	if l == nil || l.Cardinality == "" {
		return CardinalityOne
	}
	return l.Cardinality
}

// -- Step Parameters --

// ScrollMethod selects how a scroll step moves content.
type ScrollMethod string

const (
	// ScrollIntoView scrolls the target element into the viewport.
	ScrollIntoView ScrollMethod = "into_view"
	// ScrollWheel dispatches mouse-wheel deltas, hovering the target first
	// when one is given.
	ScrollWheel ScrollMethod = "wheel"
	// ScrollElement adjusts the target element's scrollTop/scrollLeft.
	ScrollElement ScrollMethod = "element"
	// ScrollPage scrolls the window by the given offsets.
	ScrollPage ScrollMethod = "page"
)

// SelectBy selects how option identifiers in a select step are interpreted.
type SelectBy string

const (
	SelectByValue SelectBy = "value"
	SelectByLabel SelectBy = "label"
	SelectByIndex SelectBy = "index"
)

// StepParams carries the action-specific parameters of a step. Only the
// fields relevant to the step's kind are consulted.
type StepParams struct {
	// open / navigate
	URL      string `json:"url,omitempty" yaml:"url,omitempty"`
	Headless *bool  `json:"headless,omitempty" yaml:"headless,omitempty"`

	// fill / type
	Text string `json:"text,omitempty" yaml:"text,omitempty"`
	// Delay between key presses for sequential typing.
	Delay Duration `json:"delay,omitempty" yaml:"delay,omitempty"`

	// press
	Key string `json:"key,omitempty" yaml:"key,omitempty"`

	// click / double_click: offset within the element box.
	Position *Point `json:"position,omitempty" yaml:"position,omitempty"`

	// check: read the checked state without toggling it.
	AssertOnly bool `json:"assert_only,omitempty" yaml:"assert_only,omitempty"`

	// select
	Options []string `json:"options,omitempty" yaml:"options,omitempty"`
	By      SelectBy `json:"by,omitempty" yaml:"by,omitempty"`

	// upload
	Files []string `json:"files,omitempty" yaml:"files,omitempty"`

	// scroll
	Method ScrollMethod `json:"method,omitempty" yaml:"method,omitempty"`
	DeltaX float64      `json:"delta_x,omitempty" yaml:"delta_x,omitempty"`
	DeltaY float64      `json:"delta_y,omitempty" yaml:"delta_y,omitempty"`

	// drag: destination locator; the step target is the source.
	DragTarget *LocatorSpec `json:"drag_target,omitempty" yaml:"drag_target,omitempty"`

	// screenshot
	FullPage bool   `json:"full_page,omitempty" yaml:"full_page,omitempty"`
	Path     string `json:"path,omitempty" yaml:"path,omitempty"`

	// wait_for_time / wait_for_selector
	Duration Duration `json:"duration,omitempty" yaml:"duration,omitempty"`
	Selector string   `json:"selector,omitempty" yaml:"selector,omitempty"`
}

// WaitPolicy bounds the readiness polling applied before an action runs.
// The zero value means "use the session defaults".
type WaitPolicy struct {
	// Timeout is the total budget for resolution, readiness polling and
	// transient-failure retries of one step.
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	// PollInterval is the pause between readiness probes.
	PollInterval Duration `json:"poll_interval,omitempty" yaml:"poll_interval,omitempty"`
}

// -- Step Request / Result --

// StepRequest is the unit of work a host workflow hands to the dispatcher.
type StepRequest struct {
	Action ActionKind   `json:"action" yaml:"action"`
	Target *LocatorSpec `json:"target,omitempty" yaml:"target,omitempty"`
	Params StepParams   `json:"params,omitempty" yaml:"params,omitempty"`
	Wait   WaitPolicy   `json:"wait,omitempty" yaml:"wait,omitempty"`
}

// Validate performs driver-independent structural checks. Dispatch rejects
// requests that fail here before any browser work starts.
func (r *StepRequest) Validate() error {
	if !IsKnownAction(r.Action) {
		return fmt.Errorf("unknown action kind %q", r.Action)
	}
	if err := r.Target.Validate(); err != nil {
		return fmt.Errorf("target: %w", err)
	}
	switch r.Action {
	case ActionOpen, ActionNavigate:
		if r.Params.URL == "" {
			return fmt.Errorf("%s requires params.url", r.Action)
		}
	case ActionFill, ActionType:
		if r.Target == nil {
			return fmt.Errorf("%s requires a target", r.Action)
		}
	case ActionPress:
		if r.Params.Key == "" {
			return fmt.Errorf("press requires params.key")
		}
	case ActionClick, ActionDoubleClick:
		if r.Target == nil && r.Params.Position == nil {
			return fmt.Errorf("%s requires a target or a page position", r.Action)
		}
	case ActionHover, ActionCheck, ActionFocus, ActionWaitForElement:
		if r.Target == nil {
			return fmt.Errorf("%s requires a target", r.Action)
		}
	case ActionSelect:
		if r.Target == nil {
			return fmt.Errorf("select requires a target")
		}
		if len(r.Params.Options) == 0 {
			return fmt.Errorf("select requires params.options")
		}
		switch r.Params.By {
		case "", SelectByValue, SelectByLabel, SelectByIndex:
		default:
			return fmt.Errorf("unknown select mode %q", r.Params.By)
		}
	case ActionUpload:
		if r.Target == nil {
			return fmt.Errorf("upload requires a target")
		}
		if len(r.Params.Files) == 0 {
			return fmt.Errorf("upload requires params.files")
		}
	case ActionDrag:
		if r.Target == nil || r.Params.DragTarget == nil {
			return fmt.Errorf("drag requires both a source target and params.drag_target")
		}
		if err := r.Params.DragTarget.Validate(); err != nil {
			return fmt.Errorf("drag_target: %w", err)
		}
	case ActionScroll:
		switch r.Params.Method {
		case "", ScrollIntoView, ScrollWheel, ScrollElement, ScrollPage:
		default:
			return fmt.Errorf("unknown scroll method %q", r.Params.Method)
		}
		if r.Params.Method == ScrollIntoView && r.Target == nil {
			return fmt.Errorf("scroll method %q requires a target", ScrollIntoView)
		}
	case ActionWaitForTime:
		if r.Params.Duration < 0 {
			return fmt.Errorf("wait_for_time duration must be >= 0")
		}
	case ActionWaitForSelector:
		if r.Params.Selector == "" {
			return fmt.Errorf("wait_for_selector requires params.selector")
		}
	}
	return nil
}

// Artifact carries whatever payload a step produced beyond success/failure.
type Artifact struct {
	// Screenshot holds captured image bytes for screenshot steps.
	Screenshot []byte `json:"screenshot,omitempty"`
	// SavedPath is set when a screenshot was also written to disk.
	SavedPath string `json:"saved_path,omitempty"`
	// Checked reports the resolved checkbox/radio state for check steps.
	Checked *bool `json:"checked,omitempty"`
	// MatchCount reports how many elements a cardinality=all spec matched.
	MatchCount *int `json:"match_count,omitempty"`
	// URL is the page URL after navigation-like steps.
	URL string `json:"url,omitempty"`
}

// StepResult is the dispatcher's answer to one StepRequest.
type StepResult struct {
	OK       bool       `json:"ok"`
	Error    *StepError `json:"error,omitempty"`
	Artifact Artifact   `json:"artifact,omitempty"`
	// Elapsed is how long the step held the session's execution context.
	Elapsed Duration `json:"elapsed,omitempty"`
}

// Failure builds a failed StepResult from a classified error.
func Failure(err *StepError) StepResult {
	return StepResult{OK: false, Error: err}
}
