package shaper

import (
	"errors"
	"fmt"
)

var (
	ErrNoEntries      = errors.New("no entries in peak band")
	ErrMaxIterations  = errors.New("maximum number of iterations reached")
	ErrSingularMatrix = errors.New("singular curvature matrix")
	ErrTooFewPoints   = errors.New("not enough points for the number of parameters")
	ErrPinnedAtBound  = errors.New("parameter pinned at bound")
)

// ConfigurationError represents an invalid analysis setup. It is raised before
// any event is processed.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error in %q: %s", e.Field, e.Reason)
}

func configErrorf(field string, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// FilterInstabilityError represents a numerical failure while shaping a single
// event at a single peaking time.
type FilterInstabilityError struct {
	EventID     int
	PeakingTime float64
	Err         error
}

func (e *FilterInstabilityError) Error() string {
	return fmt.Sprintf("filter unstable on event %d at peaking time %g s: %v", e.EventID, e.PeakingTime, e.Err)
}

func (e *FilterInstabilityError) Unwrap() error {
	return e.Err
}

// FitConvergenceError represents a failed fit, either of one energy histogram
// or of the noise model.
type FitConvergenceError struct {
	Stage       string
	PeakingTime float64
	Err         error
}

func (e *FitConvergenceError) Error() string {
	if e.Stage == StageNoiseModel {
		return fmt.Sprintf("%s fit did not converge: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s fit did not converge at peaking time %g s: %v", e.Stage, e.PeakingTime, e.Err)
}

func (e *FitConvergenceError) Unwrap() error {
	return e.Err
}

const (
	StageResolution = "resolution"
	StageNoiseModel = "noise model"
)

// PhysicalRangeWarning reports a derived quantity that fell outside its
// physical range and was clamped. It is never fatal.
type PhysicalRangeWarning struct {
	Quantity string
	Value    float64
	Clamped  float64
}

func (e *PhysicalRangeWarning) Error() string {
	return fmt.Sprintf("%s = %g outside physical range, clamped to %g", e.Quantity, e.Value, e.Clamped)
}

// EventError records an event rejected before shaping.
type EventError struct {
	EventID int
	Err     error
}

func (e *EventError) Error() string {
	return fmt.Sprintf("event %d rejected: %v", e.EventID, e.Err)
}

func (e *EventError) Unwrap() error {
	return e.Err
}

// RenderError is a failure of the event renderer. The event itself is kept.
type RenderError struct {
	EventID int
	Err     error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("error rendering event %d: %v", e.EventID, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}
