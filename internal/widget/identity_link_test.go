package widget

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wso2/consent-widget/internal/host"
	"github.com/wso2/consent-widget/internal/identity"
	"github.com/wso2/consent-widget/internal/storage"
	"github.com/wso2/consent-widget/internal/system/constants"
	"github.com/wso2/consent-widget/internal/system/error/codes"
	"github.com/wso2/consent-widget/internal/system/utils"
)

const linkedConsentID = "CNST-A2B3-C4D5-E6F7"

// linkingUpstream extends the standard upstream double with the
// identity-linking endpoints.
type linkingUpstream struct {
	server       *httptest.Server
	verifyCalls  int32
	otpSendCalls int32
	knownEmail   string
	knownVisitor string
}

func newLinkingUpstream(t *testing.T, configJSON string) *linkingUpstream {
	t.Helper()
	u := &linkingUpstream{knownVisitor: linkedConsentID}
	u.knownEmail = identity.HashIdentifier("known@example.com")

	mux := http.NewServeMux()
	mux.HandleFunc("/widget-config/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(configJSON))
	})
	mux.HandleFunc("/check-consent", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("visitorId") != linkedConsentID {
			json.NewEncoder(w).Encode(map[string]bool{"hasConsent": false})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"hasConsent": true,
			"consent": map[string]interface{}{
				"consentId":           linkedConsentID,
				"status":              "accepted",
				"acceptedActivityIds": []string{actMarketing},
				"timestamp":           utils.TimeToMillis(time.Now()),
			},
		})
	})
	mux.HandleFunc("/verify-consent-id", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&u.verifyCalls, 1)
		var req struct {
			ConsentID string `json:"consentId"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(map[string]interface{}{"valid": req.ConsentID == linkedConsentID})
	})
	mux.HandleFunc("/check-user-status", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			EmailHash string `json:"emailHash"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.EmailHash != u.knownEmail {
			json.NewEncoder(w).Encode(map[string]bool{"exists": false})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"exists":    true,
			"verified":  true,
			"visitorId": u.knownVisitor,
		})
	})
	mux.HandleFunc("/send-otp", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&u.otpSendCalls, 1)
		json.NewEncoder(w).Encode(map[string]bool{"sent": true})
	})
	mux.HandleFunc("/verify-otp", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Code string `json:"code"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(map[string]bool{"verified": req.Code == "123456"})
	})
	mux.HandleFunc("/analytics/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	u.server = httptest.NewServer(mux)
	t.Cleanup(u.server.Close)
	return u
}

func newLinkingEngine(t *testing.T) (*Engine, *linkingUpstream, storage.Store) {
	t.Helper()
	configJSON := `{"settings": {}, "display_rules": [
		{"id": "r1", "urlPattern": "/checkout", "urlMatchType": "contains", "triggerType": "onPageLoad", "isActive": true, "priority": 1, "activityIds": ["` + actMarketing + `"]}
	], ` + catalogJSON() + `}`
	upstream := newLinkingUpstream(t, configJSON)

	cfg := testConfig(upstream.server.URL)
	store := storage.NewMemoryStore()
	engine := New(cfg, host.NewSimulatedPage(cfg.Widget.PageURL), store, newTestLogger())
	require.Nil(t, engine.Init(context.Background()))
	return engine, upstream, store
}

func storedVisitorID(t *testing.T, store storage.Store) string {
	t.Helper()
	entry, err := store.Get(context.Background(), constants.StorageKeyVisitorID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	return string(entry.Value)
}

func TestLinkConsentID_AdoptsVerifiedID(t *testing.T) {
	engine, _, store := newLinkingEngine(t)

	record, serviceErr := engine.LinkConsentID(context.Background(), linkedConsentID)

	require.Nil(t, serviceErr)
	require.NotNil(t, record, "the linked device's consent follows the ID")
	assert.Equal(t, linkedConsentID, record.ConsentID)
	assert.Equal(t, linkedConsentID, storedVisitorID(t, store))
}

func TestLinkConsentID_MalformedIDNeverHitsNetwork(t *testing.T) {
	engine, upstream, store := newLinkingEngine(t)
	originalID := storedVisitorID(t, store)

	_, serviceErr := engine.LinkConsentID(context.Background(), "not-a-consent-id")

	require.NotNil(t, serviceErr)
	assert.Equal(t, codes.ConsentIDInvalid, serviceErr.Code)
	assert.Equal(t, int32(0), atomic.LoadInt32(&upstream.verifyCalls))
	assert.Equal(t, originalID, storedVisitorID(t, store), "a rejected link must not change the stored ID")
}

func TestLinkConsentID_UnknownIDRejected(t *testing.T) {
	engine, upstream, store := newLinkingEngine(t)
	originalID := storedVisitorID(t, store)

	_, serviceErr := engine.LinkConsentID(context.Background(), "CNST-ZZZZ-ZZZZ-ZZZZ")

	require.NotNil(t, serviceErr)
	assert.Equal(t, codes.ConsentIDInvalid, serviceErr.Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(&upstream.verifyCalls))
	assert.Equal(t, originalID, storedVisitorID(t, store))
}

func TestEmailLinkFlow_AdoptsRemoteVisitorID(t *testing.T) {
	engine, upstream, store := newLinkingEngine(t)

	require.Nil(t, engine.RequestEmailLink(context.Background(), "known@example.com"))
	assert.Equal(t, int32(1), atomic.LoadInt32(&upstream.otpSendCalls))

	record, serviceErr := engine.ConfirmEmailLink(context.Background(), "known@example.com", "123456")

	require.Nil(t, serviceErr)
	require.NotNil(t, record)
	assert.Equal(t, linkedConsentID, record.ConsentID)
	assert.Equal(t, linkedConsentID, storedVisitorID(t, store))
}

func TestRequestEmailLink_UnknownEmailNotFound(t *testing.T) {
	engine, upstream, _ := newLinkingEngine(t)

	serviceErr := engine.RequestEmailLink(context.Background(), "stranger@example.com")

	require.NotNil(t, serviceErr)
	assert.Equal(t, codes.ResourceNotFound, serviceErr.Code)
	assert.Equal(t, int32(0), atomic.LoadInt32(&upstream.otpSendCalls), "no code goes out for an unknown address")
}

func TestConfirmEmailLink_WrongCodeRejected(t *testing.T) {
	engine, _, store := newLinkingEngine(t)
	originalID := storedVisitorID(t, store)

	_, serviceErr := engine.ConfirmEmailLink(context.Background(), "known@example.com", "000000")

	require.NotNil(t, serviceErr)
	assert.Equal(t, codes.OTPInvalid, serviceErr.Code)
	assert.Equal(t, originalID, storedVisitorID(t, store))
}
