// Package plan defines the shape of a navigation decision returned by the
// oracle and the validation that turns untrusted response text into an
// executable plan.
package plan

import (
	"errors"

	"github.com/go-scripts/uniscrape/internal/types"
)

// Action is the executable core of a plan.
type Action string

const (
	// ActionExtract means records are present directly on the current page.
	ActionExtract Action = "extract"
	// ActionNavigate means load TargetURL and re-plan on the resulting page.
	ActionNavigate Action = "navigate"
	// ActionClick means click Selector and re-plan on the resulting page.
	ActionClick Action = "click"
)

// Validation error taxonomy. All three are page-scoped: the caller skips or
// falls back, it never aborts the run.
var (
	ErrMalformedPlan    = errors.New("malformed plan")
	ErrUnknownAction    = errors.New("unknown action")
	ErrUnusableSelector = errors.New("unusable selector")
)

// Plan is a validated navigation decision. After Validate only the payload
// field matching Action is populated; LinkList survives any action.
type Plan struct {
	Strategy  string
	Action    Action
	Selector  string
	TargetURL string
	LinkList  []string
	Records   []types.EntityRecord
}
