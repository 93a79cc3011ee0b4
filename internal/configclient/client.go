// Package configclient fetches and normalizes the widget configuration
// from the config service. This is the only place the raw wire payload
// is seen; everything downstream gets normalized types.
package configclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	catalogmodel "github.com/wso2/consent-widget/internal/catalog/model"
	rulesmodel "github.com/wso2/consent-widget/internal/rules/model"
	"github.com/wso2/consent-widget/internal/system/constants"
	"github.com/wso2/consent-widget/internal/system/error/serviceerror"
	"github.com/wso2/consent-widget/internal/system/httpclient"
)

// WidgetSettings is the operator-configured widget behavior.
type WidgetSettings struct {
	Title               string `json:"title,omitempty"`
	Message             string `json:"message,omitempty"`
	LanguageCode        string `json:"languageCode,omitempty"`
	ConsentDurationDays int    `json:"consentDurationDays,omitempty"`
}

// WidgetConfig is the normalized configuration for one widget.
type WidgetConfig struct {
	WidgetID     string
	Settings     WidgetSettings
	Theme        map[string]string
	DisplayRules []rulesmodel.DisplayRule
	Activities   []catalogmodel.Activity
}

// ConsentDurationDays returns the configured duration or the default.
func (c *WidgetConfig) ConsentDurationDays() int {
	if c.Settings.ConsentDurationDays > 0 {
		return c.Settings.ConsentDurationDays
	}
	return constants.DefaultConsentDurationDays
}

type rawConfigResponse struct {
	Settings     WidgetSettings             `json:"settings"`
	Theme        map[string]string          `json:"theme,omitempty"`
	DisplayRules []rulesmodel.DisplayRule   `json:"display_rules"`
	Activities   []catalogmodel.RawActivity `json:"activities"`
}

// Client fetches widget configuration.
type Client struct {
	http       *httpclient.Client
	baseURL    string
	retryDelay time.Duration
	logger     *logrus.Logger
}

// NewClient creates a config client. retryDelay is the fixed wait
// before the single bounded retry on 429 or network failure.
func NewClient(http *httpclient.Client, baseURL string, retryDelay time.Duration, logger *logrus.Logger) *Client {
	if retryDelay <= 0 {
		retryDelay = 2 * time.Second
	}
	return &Client{http: http, baseURL: baseURL, retryDelay: retryDelay, logger: logger}
}

// Fetch retrieves and normalizes the configuration for widgetID.
// A 404 is terminal: the widget does not exist and retrying cannot
// change that. A 429 or a network failure gets exactly one retry after
// the fixed delay; any other failure is terminal.
func (c *Client) Fetch(ctx context.Context, widgetID string) (*WidgetConfig, *serviceerror.ServiceError) {
	url := fmt.Sprintf("%s/widget-config/%s", c.baseURL, widgetID)

	raw, serviceErr := c.fetchOnce(ctx, url)
	if serviceErr != nil {
		if !serviceErr.Retryable {
			return nil, serviceErr.Err
		}
		c.logger.WithField("widgetId", widgetID).Warn("Config fetch failed; retrying once")
		select {
		case <-time.After(c.retryDelay):
		case <-ctx.Done():
			return nil, serviceerror.CustomServiceError(serviceerror.ConfigFetchError, ctx.Err().Error())
		}
		raw, serviceErr = c.fetchOnce(ctx, url)
		if serviceErr != nil {
			return nil, serviceErr.Err
		}
	}

	config := &WidgetConfig{
		WidgetID:     widgetID,
		Settings:     raw.Settings,
		Theme:        raw.Theme,
		DisplayRules: raw.DisplayRules,
		Activities:   catalogmodel.NormalizeActivities(raw.Activities),
	}

	c.logger.WithFields(logrus.Fields{
		"widgetId":   widgetID,
		"rules":      len(config.DisplayRules),
		"activities": len(config.Activities),
	}).Info("Widget configuration loaded")
	return config, nil
}

type fetchFailure struct {
	Err       *serviceerror.ServiceError
	Retryable bool
}

func (c *Client) fetchOnce(ctx context.Context, url string) (*rawConfigResponse, *fetchFailure) {
	var raw rawConfigResponse
	status, err := c.http.GetJSON(ctx, url, &raw)
	if err == nil {
		return &raw, nil
	}

	switch status {
	case http.StatusNotFound:
		return nil, &fetchFailure{Err: &serviceerror.WidgetConfigNotFoundError}
	case http.StatusTooManyRequests:
		return nil, &fetchFailure{
			Err:       serviceerror.CustomServiceError(serviceerror.ConfigFetchError, "config service rate limited the request"),
			Retryable: true,
		}
	case 0:
		// Transport-level failure, no response at all.
		return nil, &fetchFailure{
			Err:       serviceerror.CustomServiceError(serviceerror.ConfigFetchError, err.Error()),
			Retryable: true,
		}
	default:
		return nil, &fetchFailure{
			Err: serviceerror.CustomServiceError(serviceerror.ConfigFetchError,
				fmt.Sprintf("config service returned status %d", status)),
		}
	}
}
