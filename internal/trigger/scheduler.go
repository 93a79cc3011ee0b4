// Package trigger arms the page event that reveals the widget for a
// winning display rule. Each scheduler is a one-rule state machine:
// Armed -> Fired -> Consumed. Listeners are one-shot; whatever path
// fires must detach everything it attached.
package trigger

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wso2/consent-widget/internal/host"
	"github.com/wso2/consent-widget/internal/rules/model"
	"github.com/wso2/consent-widget/internal/system/constants"
)

// State of the trigger state machine.
type State string

const (
	StateArmed    State = "armed"
	StateFired    State = "fired"
	StateConsumed State = "consumed"
)

// FireContext is handed to the engine when a trigger fires.
type FireContext struct {
	Rule model.DisplayRule

	// PrefillEmail carries an email read from an intercepted form, for
	// the identity-verification flow. Empty otherwise.
	PrefillEmail string

	// Resume re-triggers an intercepted form submission once the
	// consent decision completes. Nil for non-form triggers.
	Resume func()
}

// Scheduler arms one rule's trigger on a page.
type Scheduler struct {
	rule   model.DisplayRule
	page   host.Host
	logger *logrus.Logger

	// hasConsent gates form-submit pass-through: when it reports true,
	// an intercepted submission proceeds natively with no UI.
	hasConsent func() bool
	onFire     func(FireContext)

	mutex     sync.Mutex
	state     State
	detachFns []func()

	throttleWindow  time.Duration
	initialCheckIn  time.Duration
	lastScrollCheck time.Time
	now             func() time.Time
}

// NewScheduler creates a scheduler for the rule. onFire runs apply-rule,
// analytics and render; hasConsent answers whether valid consent
// already covers the page.
func NewScheduler(rule model.DisplayRule, page host.Host, hasConsent func() bool, onFire func(FireContext), logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		rule:           rule,
		page:           page,
		logger:         logger,
		hasConsent:     hasConsent,
		onFire:         onFire,
		state:          StateArmed,
		throttleWindow: constants.ScrollThrottleMillis * time.Millisecond,
		initialCheckIn: constants.ScrollInitialCheckMillis * time.Millisecond,
		now:            time.Now,
	}
}

// SetTimings overrides the scroll throttle and initial-check delay.
// Test hook.
func (s *Scheduler) SetTimings(throttle, initialCheck time.Duration) {
	s.throttleWindow = throttle
	s.initialCheckIn = initialCheck
}

// State returns the current machine state.
func (s *Scheduler) State() State {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.state
}

// Arm attaches the listener or timer for the rule's trigger type.
func (s *Scheduler) Arm() {
	switch s.rule.TriggerType {
	case model.TriggerOnClick:
		s.armClick()
	case model.TriggerOnFormSubmit:
		s.armFormSubmit()
	case model.TriggerOnScroll:
		s.armScroll()
	default:
		// onPageLoad, and the safety net for unknown trigger types.
		s.armPageLoad()
	}
}

// Cancel detaches everything without firing.
func (s *Scheduler) Cancel() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.detachAllLocked()
	s.state = StateConsumed
}

func (s *Scheduler) armPageLoad() {
	delay := time.Duration(s.rule.TriggerDelayMs) * time.Millisecond
	cancel := s.page.After(delay, func() {
		if !s.transition(StateArmed, StateFired) {
			return
		}
		s.fire(FireContext{Rule: s.rule})
	})
	s.track(cancel)
}

func (s *Scheduler) armClick() {
	var detach func()
	detach = s.page.OnClick(s.rule.ElementSelector, func(event host.ClickEvent) {
		if !s.transition(StateArmed, StateFired) {
			return
		}
		event.PreventDefault()
		if detach != nil {
			detach()
		}
		s.fire(FireContext{Rule: s.rule})
	})
	s.track(detach)
}

func (s *Scheduler) armFormSubmit() {
	// An explicit selector targets one form; otherwise every form on
	// the page is intercepted.
	selector := s.rule.ElementSelector
	var detach func()
	var attach func()
	attach = func() {
		detach = s.page.OnSubmit(selector, func(event host.SubmitEvent) {
			if s.hasConsent != nil && s.hasConsent() {
				// Existing consent covers this page: let the native
				// submission through untouched.
				s.mutex.Lock()
				s.state = StateConsumed
				s.mutex.Unlock()
				return
			}
			if !s.transition(StateArmed, StateFired) {
				return
			}
			event.PreventDefault()
			email := event.EmailValue()

			resume := func() {
				if !s.transition(StateFired, StateConsumed) {
					return
				}
				// Detach interception, replay the original submission,
				// then re-attach for later submits on the same page.
				if detach != nil {
					detach()
				}
				event.Resubmit()
				s.mutex.Lock()
				s.state = StateArmed
				s.mutex.Unlock()
				attach()
			}
			s.fire(FireContext{Rule: s.rule, PrefillEmail: email, Resume: resume})
		})
		s.track(detach)
	}
	attach()
}

func (s *Scheduler) armScroll() {
	threshold := float64(s.rule.EffectiveScrollThreshold())

	var detachScroll func()
	check := func() {
		s.mutex.Lock()
		if s.state != StateArmed {
			s.mutex.Unlock()
			return
		}
		if since := s.now().Sub(s.lastScrollCheck); !s.lastScrollCheck.IsZero() && since < s.throttleWindow {
			s.mutex.Unlock()
			return
		}
		s.lastScrollCheck = s.now()
		s.mutex.Unlock()

		if scrollPercent(s.page) < threshold {
			return
		}
		if !s.transition(StateArmed, StateFired) {
			return
		}
		if detachScroll != nil {
			detachScroll()
		}
		s.fire(FireContext{Rule: s.rule})
	}

	detachScroll = s.page.OnScroll(func(host.ScrollSource) { check() })
	s.track(detachScroll)

	// Pages opened mid-document may already be past the threshold.
	cancelInitial := s.page.After(s.initialCheckIn, check)
	s.track(cancelInitial)
}

// scrollPercent computes how far through the scrollable range the page
// is. A document no taller than the viewport counts as fully scrolled.
func scrollPercent(page host.Host) float64 {
	scrolled, documentHeight, viewportHeight := page.ScrollPosition()
	scrollable := documentHeight - viewportHeight
	if scrollable <= 0 {
		return 100
	}
	percent := scrolled / scrollable * 100
	if percent > 100 {
		return 100
	}
	if percent < 0 {
		return 0
	}
	return percent
}

func (s *Scheduler) fire(fc FireContext) {
	s.logger.WithFields(logrus.Fields{
		"ruleId":  fc.Rule.ID,
		"trigger": fc.Rule.TriggerType,
	}).Debug("Display trigger fired")

	s.onFire(fc)

	// Simple triggers are consumed once the fire handler returns; the
	// form-submit path stays Fired until its resume callback runs.
	if fc.Resume == nil {
		s.mutex.Lock()
		if s.state == StateFired {
			s.state = StateConsumed
		}
		s.mutex.Unlock()
	}
}

func (s *Scheduler) transition(from, to State) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.state != from {
		return false
	}
	s.state = to
	return true
}

func (s *Scheduler) track(detach func()) {
	if detach == nil {
		return
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.detachFns = append(s.detachFns, detach)
}

func (s *Scheduler) detachAllLocked() {
	for _, detach := range s.detachFns {
		detach()
	}
	s.detachFns = nil
}
