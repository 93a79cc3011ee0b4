package identity

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wso2/consent-widget/internal/identity/model"
	"github.com/wso2/consent-widget/internal/storage"
	"github.com/wso2/consent-widget/internal/system/constants"
	"github.com/wso2/consent-widget/internal/system/utils"
)

// Store owns the visitor's Consent ID and locally cached consent
// record, and reconciles them with the remote consent service.
type Store struct {
	storage      storage.Store
	client       *Client
	durationDays int
	logger       *logrus.Logger
	now          func() time.Time
}

// NewStore creates an identity store. client may be nil for purely
// local operation (no cross-device reconciliation).
func NewStore(backing storage.Store, client *Client, durationDays int, logger *logrus.Logger) *Store {
	if durationDays <= 0 {
		durationDays = constants.DefaultConsentDurationDays
	}
	return &Store{
		storage:      backing,
		client:       client,
		durationDays: durationDays,
		logger:       logger,
		now:          time.Now,
	}
}

// SetClock overrides the time source. Test hook.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// GetOrCreateConsentID returns the persisted Consent ID, generating and
// persisting a fresh one with a 10-year TTL when none (or an invalid
// one) is stored. The ID exists prior to any consent decision.
func (s *Store) GetOrCreateConsentID(ctx context.Context) (string, error) {
	entry, err := s.storage.Get(ctx, constants.StorageKeyVisitorID)
	if err != nil {
		return "", err
	}
	if entry != nil {
		stored := string(entry.Value)
		if IsValidConsentID(stored) {
			return stored, nil
		}
		s.logger.WithField("storedId", stored).Warn("Stored Consent ID is malformed; regenerating")
	}

	id := GenerateConsentID()
	ttl := time.Duration(constants.ConsentIDTTLDays) * 24 * time.Hour
	if err := s.storage.Put(ctx, constants.StorageKeyVisitorID, []byte(id), ttl); err != nil {
		return "", err
	}
	s.logger.WithField("consentId", id).Debug("Generated new Consent ID")
	return id, nil
}

// AdoptConsentID replaces the stored Consent ID with one the visitor
// linked from another device. Callers verify the ID first.
func (s *Store) AdoptConsentID(ctx context.Context, consentID string) error {
	ttl := time.Duration(constants.ConsentIDTTLDays) * 24 * time.Hour
	if err := s.storage.Put(ctx, constants.StorageKeyVisitorID, []byte(consentID), ttl); err != nil {
		return err
	}
	s.logger.WithField("consentId", consentID).Debug("Adopted linked Consent ID")
	return nil
}

// SaveRecord persists a consent record, superseding any previous one
// and appending a status-audit entry for the transition. The entry TTL
// tracks the record's expiry.
func (s *Store) SaveRecord(ctx context.Context, record model.ConsentRecord) error {
	stored := model.StoredConsent{Record: record}

	if previous, err := s.loadStored(ctx); err == nil && previous != nil {
		stored.Audit = append(previous.Audit, model.StatusAuditEntry{
			PreviousStatus: previous.Record.Status,
			CurrentStatus:  record.Status,
			ActionTime:     record.Timestamp,
			Reason:         "Superseded by new decision",
		})
	} else {
		stored.Audit = []model.StatusAuditEntry{{
			CurrentStatus: record.Status,
			ActionTime:    record.Timestamp,
			Reason:        "Initial decision",
		}}
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return err
	}

	var ttl time.Duration
	expiresAt := record.ExpiresAt
	if expiresAt == 0 {
		expiresAt = record.Timestamp + utils.DaysToMillis(s.durationDays)
	}
	if remaining := utils.MillisToTime(expiresAt).Sub(s.now()); remaining > 0 {
		ttl = remaining
	}
	return s.storage.Put(ctx, constants.StorageKeyConsentRecord, data, ttl)
}

// LocalRecord returns the locally stored record, discarding it when
// expired. A discarded or absent record returns nil, nil.
func (s *Store) LocalRecord(ctx context.Context) (*model.ConsentRecord, error) {
	stored, err := s.loadStored(ctx)
	if err != nil || stored == nil {
		return nil, err
	}
	if stored.Record.IsExpired(utils.TimeToMillis(s.now()), s.durationDays) {
		s.logger.Debug("Local consent record expired; discarding")
		if err := s.storage.Delete(ctx, constants.StorageKeyConsentRecord); err != nil {
			s.logger.WithError(err).Warn("Failed to delete expired consent record")
		}
		return nil, nil
	}
	record := stored.Record
	return &record, nil
}

// StoredEnvelope returns the full local envelope (record plus audit
// trail) without expiry side effects. Used for receipt download.
func (s *Store) StoredEnvelope(ctx context.Context) (*model.StoredConsent, error) {
	return s.loadStored(ctx)
}

func (s *Store) loadStored(ctx context.Context) (*model.StoredConsent, error) {
	entry, err := s.storage.Get(ctx, constants.StorageKeyConsentRecord)
	if err != nil || entry == nil {
		return nil, err
	}
	var stored model.StoredConsent
	if err := json.Unmarshal(entry.Value, &stored); err != nil {
		s.logger.WithError(err).Warn("Stored consent record is unreadable; discarding")
		_ = s.storage.Delete(ctx, constants.StorageKeyConsentRecord)
		return nil, nil
	}
	return &stored, nil
}

// Resolve finds the effective consent record for the visitor: a
// non-expired remote record wins (whether found by Consent ID or by
// email-hash cross-device match, the two are equivalent for gating);
// otherwise the local record, subject to expiry.
func (s *Store) Resolve(ctx context.Context, widgetID, visitorID, currentURL string) *model.ConsentRecord {
	if s.client != nil {
		if remote := s.client.CheckConsent(ctx, widgetID, visitorID, currentURL); remote != nil {
			if !remote.IsExpired(utils.TimeToMillis(s.now()), s.durationDays) {
				return remote
			}
			s.logger.Debug("Remote consent record expired; falling back to local")
		}
	}

	local, err := s.LocalRecord(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("Local consent lookup failed")
		return nil
	}
	return local
}

// HasExistingConsent reports whether the resolved record counts as
// valid existing consent for gating.
func (s *Store) HasExistingConsent(ctx context.Context, widgetID, visitorID, currentURL string) bool {
	record := s.Resolve(ctx, widgetID, visitorID, currentURL)
	return record != nil && record.HasAnyDecision()
}
