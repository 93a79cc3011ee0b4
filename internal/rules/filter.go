package rules

import (
	"github.com/sirupsen/logrus"

	catalogmodel "github.com/wso2/consent-widget/internal/catalog/model"
	"github.com/wso2/consent-widget/internal/rules/model"
)

// FilterResult is the working view of the catalog for one render
// cycle. Suppressed means the fail-closed policy decided nothing may
// render; that is a designed outcome, not an error.
type FilterResult struct {
	Activities     []catalogmodel.Activity
	Notice         *model.NoticeOverride
	Suppressed     bool
	SuppressReason string
}

// ApplyRule projects the canonical catalog down to what the winning
// rule permits. The canonical catalog is never mutated and the working
// set is always re-derived from it, so repeated applications cannot
// compound restrictions.
func ApplyRule(rule *model.DisplayRule, catalog []catalogmodel.Activity, logger *logrus.Logger) FilterResult {
	// A page-scoped rule with no allow-list is almost certainly a
	// configuration omission. Showing the full catalog on a page it was
	// never meant for is the worse failure, so show nothing.
	if !rule.IsWildcard() && len(rule.ActivityIDs) == 0 {
		logger.WithFields(logrus.Fields{
			"ruleId":     rule.ID,
			"urlPattern": rule.URLPattern,
		}).Warn("Page-scoped rule has no activity allow-list; suppressing render")
		return FilterResult{
			Suppressed:     true,
			SuppressReason: "page-scoped rule without activity allow-list",
			Notice:         rule.NoticeOverride,
		}
	}

	working := make([]catalogmodel.Activity, 0, len(catalog))
	if len(rule.ActivityIDs) == 0 {
		for _, activity := range catalog {
			working = append(working, activity.Clone())
		}
	} else {
		for _, activityID := range rule.ActivityIDs {
			activity := catalogmodel.FindActivity(catalog, activityID)
			if activity == nil {
				logger.WithFields(logrus.Fields{
					"ruleId":     rule.ID,
					"activityId": activityID,
				}).Warn("Rule references activity missing from catalog; dropping")
				continue
			}
			working = append(working, activity.Clone())
		}
		if len(working) == 0 {
			logger.WithField("ruleId", rule.ID).Warn("Rule allow-list matched no catalog activities; suppressing render")
			return FilterResult{
				Suppressed:     true,
				SuppressReason: "allow-list matched no catalog activities",
				Notice:         rule.NoticeOverride,
			}
		}
	}

	applyPurposeFilter(rule, working, logger)

	return FilterResult{
		Activities: working,
		Notice:     rule.NoticeOverride,
	}
}

// applyPurposeFilter narrows each activity's purposes to the rule's
// per-activity allow-list. An absent or empty entry keeps all purposes.
// Matching is on the purpose's own identifier.
func applyPurposeFilter(rule *model.DisplayRule, working []catalogmodel.Activity, logger *logrus.Logger) {
	if len(rule.ActivityPurposeMap) == 0 {
		return
	}

	workingIDs := make(map[string]bool, len(working))
	for _, activity := range working {
		workingIDs[activity.ID] = true
	}
	for mappedID := range rule.ActivityPurposeMap {
		// A map key outside the working set is ignored, never trusted.
		if !workingIDs[mappedID] {
			logger.WithFields(logrus.Fields{
				"ruleId":     rule.ID,
				"activityId": mappedID,
			}).Debug("activityPurposeMap key not in working set; ignoring")
		}
	}

	for i := range working {
		allowed := rule.ActivityPurposeMap[working[i].ID]
		if len(allowed) == 0 {
			continue
		}
		allowedSet := make(map[string]bool, len(allowed))
		for _, purposeID := range allowed {
			allowedSet[purposeID] = true
		}
		kept := working[i].Purposes[:0]
		for _, purpose := range working[i].Purposes {
			if allowedSet[purpose.ID] {
				kept = append(kept, purpose)
			}
		}
		working[i].Purposes = kept
	}
}
