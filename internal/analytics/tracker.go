// Package analytics emits fire-and-forget tracking events. Analytics
// never gates widget behavior: failures are logged and dropped.
package analytics

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wso2/consent-widget/internal/system/httpclient"
	"github.com/wso2/consent-widget/internal/system/utils"
)

// Tracker posts analytics events in the background, deduplicating
// rule-match events per session per rule.
type Tracker struct {
	http      *httpclient.Client
	baseURL   string
	sessionID string
	logger    *logrus.Logger

	mutex sync.Mutex
	seen  map[string]bool

	wg sync.WaitGroup
}

// NewTracker creates a tracker with a fresh session marker.
func NewTracker(http *httpclient.Client, baseURL string, logger *logrus.Logger) *Tracker {
	return &Tracker{
		http:      http,
		baseURL:   baseURL,
		sessionID: utils.GenerateUUID(),
		logger:    logger,
		seen:      make(map[string]bool),
	}
}

type ruleMatchEvent struct {
	SessionID string `json:"sessionId"`
	WidgetID  string `json:"widgetId"`
	RuleID    string `json:"ruleId"`
	PageURL   string `json:"pageUrl,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type consentEvent struct {
	SessionID string `json:"sessionId"`
	WidgetID  string `json:"widgetId"`
	VisitorID string `json:"visitorId"`
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
}

// TrackRuleMatch records that a rule fired for this session. Repeat
// fires of the same rule within the session are suppressed.
func (t *Tracker) TrackRuleMatch(widgetID, ruleID, pageURL string) {
	t.mutex.Lock()
	marker := widgetID + "|" + ruleID
	if t.seen[marker] {
		t.mutex.Unlock()
		return
	}
	t.seen[marker] = true
	t.mutex.Unlock()

	t.post("/analytics/rule-match", ruleMatchEvent{
		SessionID: t.sessionID,
		WidgetID:  widgetID,
		RuleID:    ruleID,
		PageURL:   pageURL,
		Timestamp: utils.GetCurrentTimeMillis(),
	})
}

// TrackConsent records a consent decision event.
func (t *Tracker) TrackConsent(widgetID, visitorID, status string) {
	t.post("/analytics/consent", consentEvent{
		SessionID: t.sessionID,
		WidgetID:  widgetID,
		VisitorID: visitorID,
		Status:    status,
		Timestamp: utils.GetCurrentTimeMillis(),
	})
}

// post dispatches in the background. The detached context mirrors the
// keepalive delivery mode: events outlive the interaction that produced
// them, bounded by their own timeout.
func (t *Tracker) post(path string, event interface{}) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := t.http.PostJSON(ctx, t.baseURL+path, event, nil); err != nil {
			t.logger.WithError(err).WithField("path", path).Debug("Analytics event dropped")
		}
	}()
}

// Flush waits for in-flight events, up to the timeout. Best-effort
// delivery on shutdown.
func (t *Tracker) Flush(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		t.logger.Debug("Analytics flush timed out; dropping remaining events")
	}
}
