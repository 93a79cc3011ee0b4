package widget

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wso2/consent-widget/internal/host"
	identitymodel "github.com/wso2/consent-widget/internal/identity/model"
	"github.com/wso2/consent-widget/internal/storage"
	"github.com/wso2/consent-widget/internal/submission"
	sysconfig "github.com/wso2/consent-widget/internal/system/config"
	"github.com/wso2/consent-widget/internal/system/constants"
	"github.com/wso2/consent-widget/internal/system/error/codes"
	"github.com/wso2/consent-widget/internal/system/utils"
)

const (
	actMarketing = "11111111-1111-4111-8111-111111111111"
	actAnalytics = "22222222-2222-4222-8222-222222222222"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// upstreamServer stands in for every backend service the engine talks
// to: config, consent API, translation and analytics.
func upstreamServer(t *testing.T, configJSON string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/widget-config/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(configJSON))
	})
	mux.HandleFunc("/check-consent", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]bool{"hasConsent": false})
	})
	mux.HandleFunc("/consent-record", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	})
	mux.HandleFunc("/translate", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Texts []string `json:"texts"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		out := make([]string, len(req.Texts))
		for i, text := range req.Texts {
			out[i] = strings.ToUpper(text)
		}
		json.NewEncoder(w).Encode(map[string][]string{"translations": out})
	})
	mux.HandleFunc("/analytics/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return httptest.NewServer(mux)
}

func testConfig(upstream string) *sysconfig.Config {
	return &sysconfig.Config{
		Services: sysconfig.ServicesConfig{
			ConfigServiceBaseURL: upstream,
			ConsentAPIBaseURL:    upstream,
			TranslationBaseURL:   upstream,
			AnalyticsBaseURL:     upstream,
			Timeout:              2 * time.Second,
		},
		Widget: sysconfig.WidgetConfig{ID: "w1", PageURL: "https://example.com/products"},
		Retry: sysconfig.RetryConfig{
			MaxAttempts:           3,
			InitialBackoff:        5 * time.Millisecond,
			AttemptTimeout:        time.Second,
			ConfigFetchRetryDelay: 10 * time.Millisecond,
		},
	}
}

func newTestEngine(t *testing.T, configJSON string) (*Engine, *host.SimulatedPage, storage.Store) {
	t.Helper()
	server := upstreamServer(t, configJSON)
	t.Cleanup(server.Close)

	cfg := testConfig(server.URL)
	page := host.NewSimulatedPage(cfg.Widget.PageURL)
	store := storage.NewMemoryStore()
	engine := New(cfg, page, store, newTestLogger())
	return engine, page, store
}

func catalogJSON() string {
	return `"activities": [
		{"id": "` + actMarketing + `", "name": "Marketing", "purposes": [
			{"purposeId": "pur-email", "purposeName": "Email campaigns", "legalBasis": "consent"}
		]},
		{"id": "` + actAnalytics + `", "name": "Analytics", "purposes": [
			{"purposeId": "pur-usage", "purposeName": "Usage statistics", "legalBasis": "legitimate interest"}
		]}
	]`
}

func TestEngine_NoRulesDefaultsToAutoShow(t *testing.T) {
	configJSON := `{"settings": {"title": "Privacy", "message": "We use cookies"}, "display_rules": [], ` + catalogJSON() + `}`
	engine, _, _ := newTestEngine(t, configJSON)

	require.Nil(t, engine.Init(context.Background()))

	require.Eventually(t, func() bool { return engine.State() == StateVisible }, time.Second, 5*time.Millisecond)
	assert.Len(t, engine.WorkingActivities(), 2, "without rules the full catalog shows")
	assert.Equal(t, "Privacy", engine.Notice().Title)
}

func TestEngine_NoMatchingRuleStaysHidden(t *testing.T) {
	configJSON := `{"settings": {}, "display_rules": [
		{"id": "r1", "urlPattern": "/checkout", "urlMatchType": "contains", "triggerType": "onPageLoad", "isActive": true, "priority": 1, "activityIds": ["` + actMarketing + `"]}
	], ` + catalogJSON() + `}`
	engine, _, _ := newTestEngine(t, configJSON)

	require.Nil(t, engine.Init(context.Background()))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StateHidden, engine.State(), "a configured but unmatched rule set must not render")
}

func TestEngine_PageScopedRuleWithoutAllowListSuppresses(t *testing.T) {
	configJSON := `{"settings": {}, "display_rules": [
		{"id": "r1", "urlPattern": "/products", "urlMatchType": "contains", "triggerType": "onPageLoad", "isActive": true, "priority": 1, "activityIds": []}
	], ` + catalogJSON() + `}`
	engine, _, _ := newTestEngine(t, configJSON)

	require.Nil(t, engine.Init(context.Background()))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StateHidden, engine.State())
}

func TestEngine_MatchedRuleRestrictsActivitiesAndOverridesCopy(t *testing.T) {
	configJSON := `{"settings": {"title": "Default title"}, "display_rules": [
		{"id": "r1", "urlPattern": "/products", "urlMatchType": "contains", "triggerType": "onPageLoad", "isActive": true, "priority": 1,
		 "activityIds": ["` + actMarketing + `"],
		 "noticeOverride": {"title": "Marketing consent"}}
	], ` + catalogJSON() + `}`
	engine, _, _ := newTestEngine(t, configJSON)

	require.Nil(t, engine.Init(context.Background()))

	require.Eventually(t, func() bool { return engine.State() == StateVisible }, time.Second, 5*time.Millisecond)

	working := engine.WorkingActivities()
	require.Len(t, working, 1)
	assert.Equal(t, actMarketing, working[0].ID)
	assert.Equal(t, "Marketing consent", engine.Notice().Title)
}

func TestEngine_ExistingConsentSkipsAutoShow(t *testing.T) {
	configJSON := `{"settings": {}, "display_rules": [], ` + catalogJSON() + `}`
	engine, _, store := newTestEngine(t, configJSON)

	now := utils.GetCurrentTimeMillis()
	stored := identitymodel.StoredConsent{Record: identitymodel.ConsentRecord{
		ConsentID:           "CNST-A2B3-C4D5-E6F7",
		Status:              identitymodel.StatusAccepted,
		AcceptedActivityIDs: []string{actMarketing},
		Timestamp:           now,
		ExpiresAt:           now + utils.DaysToMillis(365),
	}}
	data, err := json.Marshal(stored)
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), constants.StorageKeyConsentRecord, data, 0))

	require.Nil(t, engine.Init(context.Background()))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StateHidden, engine.State(), "a valid prior decision suppresses the prompt")
}

func TestEngine_SubmitDecision(t *testing.T) {
	configJSON := `{"settings": {}, "display_rules": [], ` + catalogJSON() + `}`
	engine, _, _ := newTestEngine(t, configJSON)
	require.Nil(t, engine.Init(context.Background()))

	var events []DecisionEvent
	unsubscribe := engine.OnConsentDecision(func(e DecisionEvent) { events = append(events, e) })
	defer unsubscribe()

	record, serviceErr := engine.SubmitDecision(context.Background(), submission.Decision{
		AcceptedActivityIDs: []string{actMarketing},
		RejectedActivityIDs: []string{actAnalytics},
	}, submission.Metadata{PageTitle: "Products"}, "user@example.com")

	require.Nil(t, serviceErr)
	require.NotNil(t, record)
	assert.Equal(t, identitymodel.StatusPartial, record.Status)
	assert.NotEmpty(t, record.VisitorEmailHash)
	assert.Equal(t, StateSuccess, engine.State())

	require.Len(t, events, 1)
	assert.Equal(t, identitymodel.StatusPartial, events[0].Status)
	assert.Equal(t, []string{actMarketing}, events[0].AcceptedActivityIDs)

	// The decision is now retrievable and downloadable.
	resolved := engine.GetConsent(context.Background())
	require.NotNil(t, resolved)
	assert.Equal(t, record.ConsentID, resolved.ConsentID)

	receipt, serviceErr := engine.DownloadReceipt(context.Background())
	require.Nil(t, serviceErr)
	assert.Contains(t, string(receipt), record.ConsentID)
}

func TestEngine_SubmitDecision_EmptyRejected(t *testing.T) {
	configJSON := `{"settings": {}, "display_rules": [], ` + catalogJSON() + `}`
	engine, _, _ := newTestEngine(t, configJSON)
	require.Nil(t, engine.Init(context.Background()))

	_, serviceErr := engine.SubmitDecision(context.Background(), submission.Decision{}, submission.Metadata{}, "")

	require.NotNil(t, serviceErr)
	assert.Equal(t, codes.EmptyDecision, serviceErr.Code)
}

func TestEngine_SetLanguage(t *testing.T) {
	configJSON := `{"settings": {}, "display_rules": [], ` + catalogJSON() + `}`
	engine, _, _ := newTestEngine(t, configJSON)
	require.Nil(t, engine.Init(context.Background()))
	require.Eventually(t, func() bool { return engine.State() == StateVisible }, time.Second, 5*time.Millisecond)

	bundle, serviceErr := engine.SetLanguage(context.Background(), "fr")

	require.Nil(t, serviceErr)
	assert.Equal(t, "SAVE PREFERENCES", bundle["action.save"])
	assert.Equal(t, "MARKETING", bundle["dynamic.Marketing"], "activity names ride the same batch")

	// The rebuild guard must be released for the next switch.
	_, serviceErr = engine.SetLanguage(context.Background(), "de")
	assert.Nil(t, serviceErr)
}

func TestEngine_SetLanguage_BaseLanguageLocal(t *testing.T) {
	configJSON := `{"settings": {}, "display_rules": [], ` + catalogJSON() + `}`
	engine, _, _ := newTestEngine(t, configJSON)
	require.Nil(t, engine.Init(context.Background()))

	bundle, serviceErr := engine.SetLanguage(context.Background(), "en")

	require.Nil(t, serviceErr)
	assert.Equal(t, "Save preferences", bundle["action.save"])
}

func TestEngine_SetLanguage_OneTranslateCallPerRebuild(t *testing.T) {
	var translateCalls int32
	configJSON := `{"settings": {"title": "Privacy"}, "display_rules": [], ` + catalogJSON() + `}`

	mux := http.NewServeMux()
	mux.HandleFunc("/widget-config/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(configJSON))
	})
	mux.HandleFunc("/check-consent", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]bool{"hasConsent": false})
	})
	mux.HandleFunc("/translate", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&translateCalls, 1)
		var req struct {
			Texts []string `json:"texts"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		out := make([]string, len(req.Texts))
		for i, text := range req.Texts {
			out[i] = strings.ToUpper(text)
		}
		json.NewEncoder(w).Encode(map[string][]string{"translations": out})
	})
	mux.HandleFunc("/analytics/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	cfg := testConfig(server.URL)
	engine := New(cfg, host.NewSimulatedPage(cfg.Widget.PageURL), storage.NewMemoryStore(), newTestLogger())
	require.Nil(t, engine.Init(context.Background()))

	bundle, serviceErr := engine.SetLanguage(context.Background(), "hi")
	require.Nil(t, serviceErr)
	assert.Equal(t, "SAVE PREFERENCES", bundle["action.save"])
	assert.Equal(t, "MARKETING", bundle["dynamic.Marketing"])
	assert.Equal(t, int32(1), atomic.LoadInt32(&translateCalls), "vocabulary and dynamic content share one batch")

	// A repeat rebuild in the same language is served from cache.
	_, serviceErr = engine.SetLanguage(context.Background(), "hi")
	require.Nil(t, serviceErr)
	assert.Equal(t, int32(1), atomic.LoadInt32(&translateCalls))
}

func TestEngine_ClickTriggerFlow(t *testing.T) {
	configJSON := `{"settings": {}, "display_rules": [
		{"id": "r1", "urlPattern": "/products", "urlMatchType": "contains", "triggerType": "onClick", "elementSelector": "#manage-cookies", "isActive": true, "priority": 1, "activityIds": ["` + actAnalytics + `"]}
	], ` + catalogJSON() + `}`
	engine, page, _ := newTestEngine(t, configJSON)
	page.AddElement("#manage-cookies")

	require.Nil(t, engine.Init(context.Background()))
	assert.Equal(t, StateHidden, engine.State())

	page.Click("#manage-cookies")

	require.Eventually(t, func() bool { return engine.State() == StateVisible }, time.Second, 5*time.Millisecond)
	working := engine.WorkingActivities()
	require.Len(t, working, 1)
	assert.Equal(t, actAnalytics, working[0].ID)
}

func TestEngine_FormSubmitInterceptAndResume(t *testing.T) {
	configJSON := `{"settings": {}, "display_rules": [
		{"id": "r1", "urlPattern": "/products", "urlMatchType": "contains", "triggerType": "onFormSubmit", "elementSelector": "#signup", "isActive": true, "priority": 1, "activityIds": ["` + actMarketing + `"]}
	], ` + catalogJSON() + `}`
	engine, page, _ := newTestEngine(t, configJSON)
	form := page.AddForm("#signup", "user@example.com")

	require.Nil(t, engine.Init(context.Background()))

	native := page.SubmitForm("#signup")
	assert.False(t, native, "submission intercepted until a decision lands")
	require.Eventually(t, func() bool { return engine.State() == StateVisible }, time.Second, 5*time.Millisecond)

	record, serviceErr := engine.SubmitDecision(context.Background(), submission.Decision{
		AcceptedActivityIDs: []string{actMarketing},
	}, submission.Metadata{}, "")

	require.Nil(t, serviceErr)
	assert.Equal(t, 1, form.NativeSubmits, "the original submission replays after the decision")

	// The intercepted form's email was captured and hashed.
	assert.NotEmpty(t, record.VisitorEmailHash)
}

func TestEngine_WidgetConfigNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(server.Close)

	cfg := testConfig(server.URL)
	engine := New(cfg, host.NewSimulatedPage(cfg.Widget.PageURL), storage.NewMemoryStore(), newTestLogger())

	serviceErr := engine.Init(context.Background())

	require.NotNil(t, serviceErr)
	assert.Equal(t, codes.WidgetConfigNotFound, serviceErr.Code)
}
