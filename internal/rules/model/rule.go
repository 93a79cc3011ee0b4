// Package model defines operator-authored display rules: the mapping
// from a URL/trigger condition to a restricted view of the consent
// catalog.
package model

// URLMatchType selects how urlPattern is compared to the page URL.
type URLMatchType string

const (
	MatchExact      URLMatchType = "exact"
	MatchContains   URLMatchType = "contains"
	MatchStartsWith URLMatchType = "startsWith"
	MatchRegex      URLMatchType = "regex"
)

// TriggerType selects which page event reveals the widget.
type TriggerType string

const (
	TriggerOnPageLoad   TriggerType = "onPageLoad"
	TriggerOnClick      TriggerType = "onClick"
	TriggerOnFormSubmit TriggerType = "onFormSubmit"
	TriggerOnScroll     TriggerType = "onScroll"
)

// NoticeOverride replaces widget-level copy for a matched rule. Unset
// fields keep the widget defaults.
type NoticeOverride struct {
	Title   string `json:"title,omitempty"`
	Message string `json:"message,omitempty"`
	HTML    string `json:"html,omitempty"`
}

// DisplayRule is one operator-authored display condition.
type DisplayRule struct {
	ID                 string              `json:"id"`
	URLPattern         string              `json:"urlPattern"`
	URLMatchType       URLMatchType        `json:"urlMatchType"`
	TriggerType        TriggerType         `json:"triggerType"`
	TriggerDelayMs     int                 `json:"triggerDelayMs,omitempty"`
	ElementSelector    string              `json:"elementSelector,omitempty"`
	ScrollThresholdPct *int                `json:"scrollThresholdPct,omitempty"`
	ActivityIDs        []string            `json:"activityIds"`
	ActivityPurposeMap map[string][]string `json:"activityPurposeMap,omitempty"`
	NoticeOverride     *NoticeOverride     `json:"noticeOverride,omitempty"`
	Priority           int                 `json:"priority"`
	IsActive           bool                `json:"isActive"`
}

// IsWildcard reports whether the pattern matches every page. Only the
// two literal wildcards are recognized; anything else is page-scoped.
func (r *DisplayRule) IsWildcard() bool {
	return r.URLPattern == "*" || r.URLPattern == "/*"
}

// EffectiveScrollThreshold returns the scroll threshold, defaulting to
// 50 and clamping into [0,100].
func (r *DisplayRule) EffectiveScrollThreshold() int {
	if r.ScrollThresholdPct == nil {
		return 50
	}
	threshold := *r.ScrollThresholdPct
	if threshold < 0 {
		return 0
	}
	if threshold > 100 {
		return 100
	}
	return threshold
}
