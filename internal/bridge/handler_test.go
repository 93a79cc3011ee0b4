package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wso2/consent-widget/internal/host"
	"github.com/wso2/consent-widget/internal/storage"
	sysconfig "github.com/wso2/consent-widget/internal/system/config"
	"github.com/wso2/consent-widget/internal/system/constants"
	"github.com/wso2/consent-widget/internal/widget"
)

const actID = "33333333-3333-4333-8333-333333333333"

func setupBridgeTestEnvironment(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	configJSON := `{"settings": {"title": "Privacy"}, "display_rules": [], "activities": [
		{"id": "` + actID + `", "name": "Marketing", "purposes": [
			{"purposeId": "pur-1", "purposeName": "Email"}
		]}
	]}`

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
		json.NewEncoder(w).Encode(map[string][]string{"translations": req.Texts})
	})
	mux.HandleFunc("/verify-consent-id", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ConsentID string `json:"consentId"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(map[string]bool{"valid": req.ConsentID == "CNST-A2B3-C4D5-E6F7"})
	})
	mux.HandleFunc("/analytics/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	upstream := httptest.NewServer(mux)
	t.Cleanup(upstream.Close)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := &sysconfig.Config{
		Services: sysconfig.ServicesConfig{
			ConfigServiceBaseURL: upstream.URL,
			ConsentAPIBaseURL:    upstream.URL,
			TranslationBaseURL:   upstream.URL,
			AnalyticsBaseURL:     upstream.URL,
			Timeout:              2 * time.Second,
		},
		Widget: sysconfig.WidgetConfig{ID: "w1", PageURL: "https://example.com/products"},
		Retry: sysconfig.RetryConfig{
			MaxAttempts:    2,
			InitialBackoff: 5 * time.Millisecond,
			AttemptTimeout: time.Second,
		},
	}

	engine := widget.New(cfg, host.NewSimulatedPage(cfg.Widget.PageURL), storage.NewMemoryStore(), logger)
	require.Nil(t, engine.Init(context.Background()))

	return SetupRouter(engine)
}

func TestHealthEndpoint(t *testing.T) {
	router := setupBridgeTestEnvironment(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestStateEndpoint(t *testing.T) {
	router := setupBridgeTestEnvironment(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/widget/v1/state", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var state map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	assert.Contains(t, []interface{}{"hidden", "visible"}, state["state"])
	assert.NotEmpty(t, w.Header().Get(constants.CorrelationIDHeaderName))
}

func TestShowHideEndpoints(t *testing.T) {
	router := setupBridgeTestEnvironment(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/widget/v1/show", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/widget/v1/state", nil))
	assert.Contains(t, w.Body.String(), `"visible"`)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/widget/v1/hide", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestDecisionEndpoint_Success(t *testing.T) {
	router := setupBridgeTestEnvironment(t)

	body, _ := json.Marshal(map[string]interface{}{
		"decision": map[string]interface{}{
			"acceptedActivityIds": []string{actID},
			"rejectedActivityIds": []string{},
		},
		"metadata": map[string]string{"pageTitle": "Products"},
	})
	req := httptest.NewRequest("POST", "/widget/v1/consent/decision", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)

	var record map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &record))
	assert.Equal(t, "accepted", record["status"])
	assert.NotEmpty(t, record["consentId"])
}

func TestDecisionEndpoint_EmptyDecision(t *testing.T) {
	router := setupBridgeTestEnvironment(t)

	body := []byte(`{"decision": {"acceptedActivityIds": [], "rejectedActivityIds": []}}`)
	req := httptest.NewRequest("POST", "/widget/v1/consent/decision", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "empty_decision")
}

func TestDecisionEndpoint_MalformedBody(t *testing.T) {
	router := setupBridgeTestEnvironment(t)

	req := httptest.NewRequest("POST", "/widget/v1/consent/decision", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_request")
}

func TestConsentEndpoint_NotFoundBeforeDecision(t *testing.T) {
	router := setupBridgeTestEnvironment(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/widget/v1/consent", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "resource_not_found")
}

func TestReceiptEndpoint(t *testing.T) {
	router := setupBridgeTestEnvironment(t)

	// No decision yet.
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/widget/v1/consent/receipt", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	body := []byte(`{"decision": {"acceptedActivityIds": ["` + actID + `"]}}`)
	req := httptest.NewRequest("POST", "/widget/v1/consent/decision", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/widget/v1/consent/receipt", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "consent-receipt.json")
	assert.Contains(t, w.Body.String(), "audit")
}

func TestLanguageEndpoint(t *testing.T) {
	router := setupBridgeTestEnvironment(t)

	body := []byte(`{"language": "fr"}`)
	req := httptest.NewRequest("POST", "/widget/v1/language", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Language string            `json:"language"`
		Strings  map[string]string `json:"strings"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "fr", resp.Language)
	assert.NotEmpty(t, resp.Strings["action.save"])

	// Missing language is a client error.
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/widget/v1/language", bytes.NewBufferString(`{}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "validation_error")
}

func TestIdentityLinkEndpoint(t *testing.T) {
	router := setupBridgeTestEnvironment(t)

	body := []byte(`{"consentId": "CNST-A2B3-C4D5-E6F7"}`)
	req := httptest.NewRequest("POST", "/widget/v1/identity/link", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"linked":true`)

	// Unknown IDs come back as a client error.
	body = []byte(`{"consentId": "CNST-ZZZZ-ZZZZ-ZZZZ"}`)
	req = httptest.NewRequest("POST", "/widget/v1/identity/link", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "consent_id_invalid")
}

func TestPrivacyCentreEndpoint(t *testing.T) {
	router := setupBridgeTestEnvironment(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/widget/v1/privacy-centre", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"privacyCentre"`)
	assert.Contains(t, w.Body.String(), "Marketing")
}
