package submission

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/wso2/consent-widget/internal/identity"
	"github.com/wso2/consent-widget/internal/identity/model"
	"github.com/wso2/consent-widget/internal/system/constants"
	"github.com/wso2/consent-widget/internal/system/error/serviceerror"
	"github.com/wso2/consent-widget/internal/system/httpclient"
	"github.com/wso2/consent-widget/internal/system/utils"
)

// Pipeline validates, submits and persists consent decisions.
type Pipeline struct {
	http         *httpclient.Client
	endpoint     string
	identity     *identity.Store
	durationDays int
	retry        httpclient.RetryPolicy
	logger       *logrus.Logger
	now          func() int64
}

// NewPipeline creates a submission pipeline posting to
// {consentAPIBase}/consent-record.
func NewPipeline(http *httpclient.Client, consentAPIBase string, identityStore *identity.Store, durationDays int, retry httpclient.RetryPolicy, logger *logrus.Logger) *Pipeline {
	if durationDays <= 0 {
		durationDays = constants.DefaultConsentDurationDays
	}
	return &Pipeline{
		http:         http,
		endpoint:     consentAPIBase + "/consent-record",
		identity:     identityStore,
		durationDays: durationDays,
		retry:        retry,
		logger:       logger,
		now:          utils.GetCurrentTimeMillis,
	}
}

// SetClock overrides the time source. Test hook.
func (p *Pipeline) SetClock(now func() int64) {
	p.now = now
}

type submitRequest struct {
	Record   model.ConsentRecord `json:"record"`
	Metadata Metadata            `json:"metadata"`
}

type submitResponse struct {
	ExpiresAt int64 `json:"expiresAt,omitempty"`
}

// Submit aggregates a decision into a consent record, posts it with the
// retry policy, and on success persists it locally. On terminal failure
// nothing is persisted and the caller gets a user-presentable error.
func (p *Pipeline) Submit(ctx context.Context, visitorID string, decision Decision, meta Metadata, emailHash string) (*model.ConsentRecord, *serviceerror.ServiceError) {
	sanitized := decision.Sanitize(p.logger)

	status, ok := sanitized.DeriveStatus()
	if !ok {
		return nil, serviceerror.CustomServiceError(serviceerror.EmptyDecisionError,
			"No valid activity decisions were present in the submission")
	}

	timestamp := p.now()
	record := model.ConsentRecord{
		ConsentID:                    visitorID,
		Status:                       status,
		AcceptedActivityIDs:          sanitized.AcceptedActivityIDs,
		RejectedActivityIDs:          sanitized.RejectedActivityIDs,
		AcceptedPurposeIDsByActivity: sanitized.AcceptedPurposeIDsByActivity,
		RejectedPurposeIDsByActivity: sanitized.RejectedPurposeIDsByActivity,
		Timestamp:                    timestamp,
		VisitorEmailHash:             emailHash,
	}

	request := submitRequest{
		Record:   record,
		Metadata: sanitizeMetadata(meta, p.logger),
	}

	var response submitResponse
	httpStatus, err := p.http.PostJSONRetry(ctx, p.endpoint, request, &response, p.retry)
	if err != nil {
		p.logger.WithError(err).WithFields(logrus.Fields{
			"statusCode": httpStatus,
			"consentId":  visitorID,
		}).Error("Consent submission failed after retries")
		return nil, &serviceerror.SubmissionFailedError
	}

	if response.ExpiresAt > 0 {
		record.ExpiresAt = response.ExpiresAt
	} else {
		record.ExpiresAt = timestamp + utils.DaysToMillis(p.durationDays)
	}

	if err := p.identity.SaveRecord(ctx, record); err != nil {
		// The remote record exists; a local persistence failure must
		// not look like a failed submission to the visitor.
		p.logger.WithError(err).Warn("Consent submitted but local persistence failed")
	}

	p.logger.WithFields(logrus.Fields{
		"consentId": visitorID,
		"status":    record.Status,
		"accepted":  len(record.AcceptedActivityIDs),
		"rejected":  len(record.RejectedActivityIDs),
	}).Info("Consent decision recorded")

	return &record, nil
}
