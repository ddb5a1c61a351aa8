package resolver

import (
	"fmt"

	"github.com/DeafMist/news-digest/internal/apperr"
)

// Action is what happened to one item's URL.
type Action string

const (
	ActionLabelMatch Action = "label_match"
	ActionFallback   Action = "fallback"
	ActionNoPool     Action = "pool_empty"
	ActionResolved   Action = "resolved"
	ActionUnchanged  Action = "unchanged"
	ActionFailed     Action = "failed"
	ActionAbandoned  Action = "abandoned"
	ActionVerified   Action = "verified"
	ActionStripped   Action = "stripped"
)

// Outcome records one item's resolution step.
type Outcome struct {
	Index  int
	Before string
	After  string
	Action Action
	Err    error
}

// ResolutionError is a per-URL network failure. It is logged, never returned to callers.
type ResolutionError struct {
	URL string
	Err error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s: %v", e.URL, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// Kind classifies the error for transport mapping.
func (e *ResolutionError) Kind() apperr.Kind { return apperr.KindResolution }
