// File: internal/session/resolver.go
package session

import (
	"regexp"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/stepwright/stepwright/api/schemas"
)

// resolution is the outcome of applying a locator spec to the live page.
// Exactly one of locator/all/point is meaningful depending on cardinality.
type resolution struct {
	// locator addresses the single chosen element (cardinality one/any).
	locator playwright.Locator
	// all addresses every match (cardinality all). May be empty.
	all []playwright.Locator
	// count is how many elements matched at resolution time.
	count int
	// point is set for fixed-coordinate specs; no element was resolved.
	point *schemas.Point
}

// resolver maps locator specs onto live driver locators. Specs are resolved
// fresh on every step; nothing is cached across dispatches.
type resolver struct {
	page playwright.Page
	poll time.Duration
}

// buildCandidates returns the driver locators a spec can match through, in
// preference order. Label specs carry a placeholder fallback for controls
// with no associated label text.
func (r *resolver) buildCandidates(spec *schemas.LocatorSpec) []playwright.Locator {
	switch {
	case spec.Selector != "":
		return []playwright.Locator{r.page.Locator(spec.Selector)}
	case spec.Role != "":
		opts := playwright.PageGetByRoleOptions{}
		if spec.Name != "" {
			if spec.NameContains {
				opts.Name = regexp.MustCompile(regexp.QuoteMeta(spec.Name))
			} else {
				opts.Name = spec.Name
				opts.Exact = playwright.Bool(true)
			}
		}
		return []playwright.Locator{r.page.GetByRole(playwright.AriaRole(spec.Role), opts)}
	case spec.Label != "":
		return []playwright.Locator{
			r.page.GetByLabel(spec.Label),
			r.page.GetByPlaceholder(spec.Label),
		}
	}
	return nil
}

// resolve applies a spec under its cardinality rules within the given
// deadline. Zero matches for cardinality one/any are polled until the
// deadline; an ambiguous cardinality-one match fails immediately, since
// waiting cannot make the page less ambiguous.
func (r *resolver) resolve(spec *schemas.LocatorSpec, deadline time.Time) (*resolution, *schemas.StepError) {
	if spec == nil {
		return nil, schemas.NewStepError(schemas.ErrNoTarget, "", nil, "step has no target")
	}
	if spec.Coordinate != nil {
		return &resolution{point: spec.Coordinate, count: 1}, nil
	}

	candidates := r.buildCandidates(spec)
	if len(candidates) == 0 {
		return nil, schemas.NewStepError(schemas.ErrNoTarget, "", nil,
			"locator spec has no usable strategy")
	}

	card := spec.EffectiveCardinality()
	for {
		for ci, loc := range candidates {
			count, err := loc.Count()
			if err != nil {
				if schemas.IsDriverDetached(err) {
					break
				}
				return nil, schemas.NewStepError(schemas.ErrNotFound, "", err,
					"counting matches for %s locator: %s", spec.Strategy(), err.Error())
			}
			switch card {
			case schemas.CardinalityOne:
				if count == 1 {
					return &resolution{locator: loc.First(), count: 1}, nil
				}
				if count > 1 {
					return nil, schemas.NewStepError(schemas.ErrAmbiguousMatch, "", nil,
						"%s locator matched %d elements, expected exactly one",
						spec.Strategy(), count)
				}
			case schemas.CardinalityAny:
				if count >= 1 {
					return &resolution{locator: loc.First(), count: count}, nil
				}
			case schemas.CardinalityAll:
				// A fallback candidate only applies when the preferred one
				// matched nothing; an empty final set is a valid result.
				if count == 0 && ci < len(candidates)-1 {
					continue
				}
				all := make([]playwright.Locator, 0, count)
				for i := 0; i < count; i++ {
					all = append(all, loc.Nth(i))
				}
				return &resolution{all: all, count: count}, nil
			}
		}
		if time.Now().Add(r.poll).After(deadline) {
			return nil, schemas.NewStepError(schemas.ErrNotFound, "", nil,
				"%s locator matched nothing within the wait budget", spec.Strategy())
		}
		time.Sleep(r.poll)
	}
}
