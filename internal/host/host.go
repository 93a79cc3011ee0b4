// Package host abstracts the page the widget is embedded in. The
// engine never touches page internals directly; every trigger and
// lookup goes through this interface so the same engine runs against a
// live bridge integration or the simulated page used in tests.
package host

import "time"

// ScrollSource identifies which input produced a scroll notification.
// Wheel and touch events are tracked separately because inertial
// scrolling does not reliably produce plain scroll events.
type ScrollSource string

const (
	SourceScroll    ScrollSource = "scroll"
	SourceWheel     ScrollSource = "wheel"
	SourceTouchMove ScrollSource = "touchmove"
)

// ClickEvent is delivered to click subscribers.
type ClickEvent interface {
	PreventDefault()
}

// SubmitEvent is delivered when a watched form is submitted.
type SubmitEvent interface {
	// PreventDefault stops the native submission.
	PreventDefault()

	// EmailValue returns the value of an email-typed input inside the
	// form, or "" when the form has none.
	EmailValue() string

	// Resubmit re-triggers the original submission, via the original
	// submit control when available.
	Resubmit()
}

// Host is the page boundary.
type Host interface {
	// URL returns the full href of the current page, falling back to
	// the pathname when no full href is known.
	URL() string

	// ElementExists reports whether a selector currently matches.
	ElementExists(selector string) bool

	// OnClick attaches a click listener to the selector. The returned
	// function detaches it.
	OnClick(selector string, fn func(ClickEvent)) (detach func())

	// OnSubmit attaches a submit listener. An empty selector watches
	// every form on the page.
	OnSubmit(selector string, fn func(SubmitEvent)) (detach func())

	// OnScroll attaches a listener for all three scroll sources.
	OnScroll(fn func(ScrollSource)) (detach func())

	// ScrollPosition returns the current scroll offset, the document
	// height and the viewport height.
	ScrollPosition() (scrolled, documentHeight, viewportHeight float64)

	// After schedules fn on the page's timer. The returned function
	// cancels the timer if it has not fired.
	After(d time.Duration, fn func()) (cancel func())
}
