// Package translation memoizes widget copy per language. All strings
// for a language are fetched in one batched call; a re-render in an
// already-seen language costs zero network calls.
package translation

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/wso2/consent-widget/internal/system/httpclient"
)

// Client calls the batch translate endpoint.
type Client struct {
	http    *httpclient.Client
	baseURL string
	logger  *logrus.Logger
}

// NewClient creates a translation client.
func NewClient(http *httpclient.Client, baseURL string, logger *logrus.Logger) *Client {
	return &Client{http: http, baseURL: baseURL, logger: logger}
}

type translateRequest struct {
	Texts  []string `json:"texts"`
	Target string   `json:"target"`
	Source string   `json:"source"`
}

type translateResponse struct {
	Translations []string `json:"translations"`
}

// BatchTranslate translates all texts in a single call. The result has
// the same length as the input; callers handle per-item fallback.
func (c *Client) BatchTranslate(ctx context.Context, texts []string, target, source string) ([]string, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var resp translateResponse
	_, err := c.http.PostJSON(ctx, c.baseURL+"/translate", translateRequest{
		Texts:  texts,
		Target: target,
		Source: source,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("batch translate failed: %w", err)
	}
	if len(resp.Translations) != len(texts) {
		c.logger.WithFields(logrus.Fields{
			"requested": len(texts),
			"received":  len(resp.Translations),
		}).Warn("Translate endpoint returned a mismatched batch")
	}
	return resp.Translations, nil
}
