// Package submission collects per-activity and per-purpose decisions,
// validates them, and submits the resulting consent record with retry.
package submission

import (
	"github.com/sirupsen/logrus"

	"github.com/wso2/consent-widget/internal/identity/model"
	"github.com/wso2/consent-widget/internal/system/constants"
	"github.com/wso2/consent-widget/internal/system/error/codes"
	"github.com/wso2/consent-widget/internal/system/utils"
)

// Decision is the raw accept/reject selection from the widget UI.
type Decision struct {
	AcceptedActivityIDs          []string            `json:"acceptedActivityIds"`
	RejectedActivityIDs          []string            `json:"rejectedActivityIds"`
	AcceptedPurposeIDsByActivity map[string][]string `json:"acceptedPurposeIdsByActivity,omitempty"`
	RejectedPurposeIDsByActivity map[string][]string `json:"rejectedPurposeIdsByActivity,omitempty"`
}

// Metadata describes the page context of the submission.
type Metadata struct {
	Referrer   string `json:"referrer,omitempty"`
	PageTitle  string `json:"pageTitle,omitempty"`
	CurrentURL string `json:"currentUrl,omitempty"`
}

// Sanitize drops malformed IDs and caps array sizes. Dropping is
// preferred over rejecting the whole submission: a stray bad ID must
// not block an otherwise valid decision.
func (d Decision) Sanitize(logger *logrus.Logger) Decision {
	return Decision{
		AcceptedActivityIDs:          sanitizeIDs(d.AcceptedActivityIDs, "accepted activity", logger),
		RejectedActivityIDs:          sanitizeIDs(d.RejectedActivityIDs, "rejected activity", logger),
		AcceptedPurposeIDsByActivity: sanitizeIDMap(d.AcceptedPurposeIDsByActivity, "accepted purpose", logger),
		RejectedPurposeIDsByActivity: sanitizeIDMap(d.RejectedPurposeIDsByActivity, "rejected purpose", logger),
	}
}

// DeriveStatus computes the aggregate status. A decision with nothing
// accepted and nothing rejected is user-input error, not a submission.
func (d Decision) DeriveStatus() (model.ConsentStatus, bool) {
	accepted := len(d.AcceptedActivityIDs) > 0
	rejected := len(d.RejectedActivityIDs) > 0
	switch {
	case accepted && rejected:
		return model.StatusPartial, true
	case accepted:
		return model.StatusAccepted, true
	case rejected:
		return model.StatusRejected, true
	default:
		return "", false
	}
}

func sanitizeIDs(ids []string, kind string, logger *logrus.Logger) []string {
	kept := make([]string, 0, len(ids))
	for _, id := range ids {
		if !utils.IsValidUUID(id) {
			logger.WithFields(logrus.Fields{
				"kind": kind,
				"id":   id,
			}).Warn("Dropping malformed ID from consent decision")
			continue
		}
		kept = append(kept, id)
		if len(kept) == constants.MaxActivitiesPerSubmission {
			logger.WithFields(logrus.Fields{
				"kind": kind,
				"code": codes.SubmissionTooWide,
			}).Warn("Decision exceeds activity cap; truncating")
			break
		}
	}
	return kept
}

func sanitizeIDMap(byActivity map[string][]string, kind string, logger *logrus.Logger) map[string][]string {
	if len(byActivity) == 0 {
		return nil
	}
	kept := make(map[string][]string, len(byActivity))
	for activityID, purposeIDs := range byActivity {
		if !utils.IsValidUUID(activityID) {
			logger.WithFields(logrus.Fields{
				"kind":       kind,
				"activityId": activityID,
			}).Warn("Dropping purpose decisions keyed by malformed activity ID")
			continue
		}
		validPurposes := sanitizeIDs(purposeIDs, kind, logger)
		if len(validPurposes) > 0 {
			kept[activityID] = validPurposes
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return kept
}

// sanitizeMetadata trims fields, drops empties, and discards a
// currentUrl that does not parse rather than sending it malformed.
func sanitizeMetadata(meta Metadata, logger *logrus.Logger) Metadata {
	cleaned := Metadata{
		Referrer:  utils.SanitizeMetadataValue(meta.Referrer),
		PageTitle: utils.SanitizeMetadataValue(meta.PageTitle),
	}
	currentURL := utils.SanitizeMetadataValue(meta.CurrentURL)
	if currentURL != "" {
		if utils.IsValidURL(currentURL) {
			cleaned.CurrentURL = currentURL
		} else {
			logger.WithField("currentUrl", currentURL).Warn("Dropping unparseable currentUrl from submission metadata")
		}
	}
	return cleaned
}
