// Package model defines the consent record shared between local
// storage and the consent-record service.
package model

import "github.com/wso2/consent-widget/internal/system/utils"

// ConsentStatus is the aggregate outcome of a consent decision.
type ConsentStatus string

const (
	StatusAccepted ConsentStatus = "accepted"
	StatusRejected ConsentStatus = "rejected"
	StatusPartial  ConsentStatus = "partial"
	StatusRevoked  ConsentStatus = "revoked"
)

// ConsentRecord is one full consent decision. A new decision always
// supersedes the previous record; records are never merged.
type ConsentRecord struct {
	ConsentID                    string              `json:"consentId"`
	Status                       ConsentStatus       `json:"status"`
	AcceptedActivityIDs          []string            `json:"acceptedActivityIds"`
	RejectedActivityIDs          []string            `json:"rejectedActivityIds"`
	AcceptedPurposeIDsByActivity map[string][]string `json:"acceptedPurposeIdsByActivity,omitempty"`
	RejectedPurposeIDsByActivity map[string][]string `json:"rejectedPurposeIdsByActivity,omitempty"`
	Timestamp                    int64               `json:"timestamp"`
	ExpiresAt                    int64               `json:"expiresAt,omitempty"`
	VisitorEmailHash             string              `json:"visitorEmailHash,omitempty"`
}

// IsExpired reports whether the record has lapsed at nowMillis. When
// the server returned no explicit expiry, the configured consent
// duration counts from the decision timestamp instead.
func (r *ConsentRecord) IsExpired(nowMillis int64, durationDays int) bool {
	if r.ExpiresAt > 0 {
		return nowMillis > r.ExpiresAt
	}
	if r.Timestamp == 0 {
		return true
	}
	return nowMillis > r.Timestamp+utils.DaysToMillis(durationDays)
}

// HasAnyDecision reports whether the record carries at least one
// accepted or rejected activity. Existing-consent gating treats any
// decision on the device as valid consent; pages whose relevant
// activity set differs may be under-gated by this check (see
// DESIGN.md), but the behavior is kept for compatibility.
func (r *ConsentRecord) HasAnyDecision() bool {
	return len(r.AcceptedActivityIDs) > 0 || len(r.RejectedActivityIDs) > 0
}

// CoversActivities reports whether every given activity has a decision
// in this record. Stricter than HasAnyDecision; available for
// deployments that opt into full re-gating.
func (r *ConsentRecord) CoversActivities(activityIDs []string) bool {
	decided := make(map[string]bool, len(r.AcceptedActivityIDs)+len(r.RejectedActivityIDs))
	for _, id := range r.AcceptedActivityIDs {
		decided[id] = true
	}
	for _, id := range r.RejectedActivityIDs {
		decided[id] = true
	}
	for _, id := range activityIDs {
		if !decided[id] {
			return false
		}
	}
	return true
}

// StatusAuditEntry records one status transition on the local record
// envelope.
type StatusAuditEntry struct {
	PreviousStatus ConsentStatus `json:"previousStatus,omitempty"`
	CurrentStatus  ConsentStatus `json:"currentStatus"`
	ActionTime     int64         `json:"actionTime"`
	Reason         string        `json:"reason,omitempty"`
}

// StoredConsent is the envelope persisted locally: the current record
// plus the audit trail of supersessions.
type StoredConsent struct {
	Record ConsentRecord      `json:"record"`
	Audit  []StatusAuditEntry `json:"audit,omitempty"`
}
