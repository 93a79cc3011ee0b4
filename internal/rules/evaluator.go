// Package rules implements display-rule evaluation and the
// activity/purpose projection a matched rule imposes on the catalog.
package rules

import (
	"regexp"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/wso2/consent-widget/internal/rules/model"
	"github.com/wso2/consent-widget/internal/system/constants"
	"github.com/wso2/consent-widget/internal/system/error/codes"
)

// ElementChecker answers whether a CSS selector currently matches an
// element on the page. host.Host satisfies it.
type ElementChecker interface {
	ElementExists(selector string) bool
}

// Evaluator selects at most one winning display rule for a page.
// Evaluation is stateless; a failure in one rule never aborts the scan.
type Evaluator struct {
	logger *logrus.Logger
}

// NewEvaluator creates a rule evaluator.
func NewEvaluator(logger *logrus.Logger) *Evaluator {
	return &Evaluator{logger: logger}
}

// Evaluate returns the winning rule for the page URL, or nil when no
// rule matches. Rules are scanned in priority-descending order with the
// original configuration order preserved between equal priorities, so
// the outcome is deterministic for any input.
func (e *Evaluator) Evaluate(rules []model.DisplayRule, pageURL string, checker ElementChecker) *model.DisplayRule {
	candidates := make([]model.DisplayRule, 0, len(rules))
	for _, rule := range rules {
		if reason := structuralProblem(&rule); reason != "" {
			e.logger.WithFields(logrus.Fields{
				"ruleId": rule.ID,
				"reason": reason,
				"code":   codes.RuleInvalid,
			}).Warn("Skipping malformed display rule")
			continue
		}
		candidates = append(candidates, rule)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Priority > candidates[j].Priority
	})

	for i := range candidates {
		rule := &candidates[i]
		if !rule.IsActive {
			continue
		}
		if !e.matchesURL(rule, pageURL) {
			continue
		}
		if rule.ElementSelector != "" && checker != nil && !checker.ElementExists(rule.ElementSelector) {
			e.logger.WithFields(logrus.Fields{
				"ruleId":   rule.ID,
				"selector": rule.ElementSelector,
			}).Debug("Rule selector not present on page, trying next rule")
			continue
		}
		winner := *rule
		return &winner
	}
	return nil
}

// structuralProblem returns a non-empty reason when the rule must not
// be evaluated at all. The pattern length cap guards against
// pathological regex input.
func structuralProblem(rule *model.DisplayRule) string {
	if rule.ID == "" {
		return "missing id"
	}
	if len(rule.ID) > constants.MaxRuleIDLength {
		return "id too long"
	}
	if rule.URLPattern == "" {
		return "missing urlPattern"
	}
	if len(rule.URLPattern) > constants.MaxURLPatternLength {
		return "urlPattern too long"
	}
	return ""
}

func (e *Evaluator) matchesURL(rule *model.DisplayRule, pageURL string) bool {
	if rule.IsWildcard() {
		return true
	}
	switch rule.URLMatchType {
	case model.MatchExact:
		return pageURL == rule.URLPattern
	case model.MatchContains:
		return strings.Contains(pageURL, rule.URLPattern)
	case model.MatchStartsWith:
		return strings.HasPrefix(pageURL, rule.URLPattern)
	case model.MatchRegex:
		re, err := regexp.Compile(rule.URLPattern)
		if err != nil {
			// A broken pattern is a non-match, never a thrown failure.
			e.logger.WithError(err).WithField("ruleId", rule.ID).Warn("Display rule regex failed to compile")
			return false
		}
		return re.MatchString(pageURL)
	default:
		e.logger.WithFields(logrus.Fields{
			"ruleId":    rule.ID,
			"matchType": rule.URLMatchType,
		}).Warn("Unknown urlMatchType on display rule")
		return false
	}
}
