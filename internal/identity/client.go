package identity

import (
	"context"
	"fmt"
	"net/url"

	"github.com/sirupsen/logrus"

	"github.com/wso2/consent-widget/internal/identity/model"
	"github.com/wso2/consent-widget/internal/system/httpclient"
)

// Client talks to the identity-linking and consent-lookup endpoints.
// Every call degrades: a failure is never surfaced as an error to the
// render path, only as "no consent found" or "unverified user".
type Client struct {
	http    *httpclient.Client
	baseURL string
	logger  *logrus.Logger
}

// NewClient creates an identity client against the consent API base URL.
func NewClient(http *httpclient.Client, baseURL string, logger *logrus.Logger) *Client {
	return &Client{http: http, baseURL: baseURL, logger: logger}
}

type verifyConsentIDRequest struct {
	ConsentID string `json:"consentId"`
}

type verifyConsentIDResponse struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// VerifyConsentID validates a visitor-entered Consent ID. The format is
// checked locally first so malformed input never costs a network call.
// Any network or parse failure is reported as invalid with a generic
// error; this call is never retried.
func (c *Client) VerifyConsentID(ctx context.Context, consentID string) (bool, string) {
	if !IsValidConsentID(consentID) {
		return false, "The Consent ID entered is not in a recognized format"
	}

	var resp verifyConsentIDResponse
	_, err := c.http.PostJSON(ctx, c.baseURL+"/verify-consent-id", verifyConsentIDRequest{ConsentID: consentID}, &resp)
	if err != nil {
		c.logger.WithError(err).Debug("Consent ID verification call failed")
		return false, "We could not verify this Consent ID. Please check it and try again."
	}
	if !resp.Valid {
		if resp.Error != "" {
			return false, resp.Error
		}
		return false, "This Consent ID was not found"
	}
	return true, ""
}

type checkConsentResponse struct {
	HasConsent bool                 `json:"hasConsent"`
	Consent    *model.ConsentRecord `json:"consent,omitempty"`
}

// CheckConsent looks up a remote consent record for the visitor on the
// current page. Failures degrade silently to "no remote consent found".
func (c *Client) CheckConsent(ctx context.Context, widgetID, visitorID, currentURL string) *model.ConsentRecord {
	query := url.Values{}
	query.Set("widgetId", widgetID)
	query.Set("visitorId", visitorID)
	if currentURL != "" {
		query.Set("currentUrl", currentURL)
	}

	var resp checkConsentResponse
	_, err := c.http.GetJSON(ctx, fmt.Sprintf("%s/check-consent?%s", c.baseURL, query.Encode()), &resp)
	if err != nil {
		c.logger.WithError(err).Debug("Remote consent check failed; treating as no consent")
		return nil
	}
	if !resp.HasConsent || resp.Consent == nil {
		return nil
	}
	return resp.Consent
}

type checkUserStatusRequest struct {
	EmailHash  string `json:"emailHash"`
	CompatHash string `json:"compatHash,omitempty"`
}

type checkUserStatusResponse struct {
	Exists    bool   `json:"exists"`
	Verified  bool   `json:"verified"`
	VisitorID string `json:"visitorId,omitempty"`
}

// CheckUserStatus asks whether an email hash maps to a known visitor.
// Both hash forms go out so records written by older widget versions
// still match. Failure means "treat as new user".
func (c *Client) CheckUserStatus(ctx context.Context, emailHash, compatHash string) (exists bool, visitorID string) {
	var resp checkUserStatusResponse
	_, err := c.http.PostJSON(ctx, c.baseURL+"/check-user-status", checkUserStatusRequest{EmailHash: emailHash, CompatHash: compatHash}, &resp)
	if err != nil {
		c.logger.WithError(err).Debug("User status check failed; treating as new user")
		return false, ""
	}
	return resp.Exists, resp.VisitorID
}

type otpRequest struct {
	Email string `json:"email"`
	Code  string `json:"code,omitempty"`
}

type otpResponse struct {
	Sent     bool `json:"sent,omitempty"`
	Verified bool `json:"verified,omitempty"`
}

// SendOTP requests a one-time code for the identity-linking flow.
func (c *Client) SendOTP(ctx context.Context, email string) error {
	var resp otpResponse
	_, err := c.http.PostJSON(ctx, c.baseURL+"/send-otp", otpRequest{Email: email}, &resp)
	if err != nil {
		c.logger.WithError(err).Debug("OTP send failed")
		return fmt.Errorf("could not send verification code: %w", err)
	}
	return nil
}

// VerifyOTP checks a one-time code. Any failure leaves the visitor
// unverified.
func (c *Client) VerifyOTP(ctx context.Context, email, code string) bool {
	var resp otpResponse
	_, err := c.http.PostJSON(ctx, c.baseURL+"/verify-otp", otpRequest{Email: email, Code: code}, &resp)
	if err != nil {
		c.logger.WithError(err).Debug("OTP verification failed; treating as unverified")
		return false
	}
	return resp.Verified
}
