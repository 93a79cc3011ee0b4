// Package widget is the engine behind the embeddable consent widget:
// it fetches configuration, evaluates display rules, arms the winning
// trigger, gates on existing consent, and routes decisions through the
// submission pipeline.
package widget

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wso2/consent-widget/internal/analytics"
	catalogmodel "github.com/wso2/consent-widget/internal/catalog/model"
	"github.com/wso2/consent-widget/internal/configclient"
	"github.com/wso2/consent-widget/internal/host"
	"github.com/wso2/consent-widget/internal/identity"
	identitymodel "github.com/wso2/consent-widget/internal/identity/model"
	"github.com/wso2/consent-widget/internal/rules"
	"github.com/wso2/consent-widget/internal/storage"
	"github.com/wso2/consent-widget/internal/submission"
	sysconfig "github.com/wso2/consent-widget/internal/system/config"
	"github.com/wso2/consent-widget/internal/system/error/serviceerror"
	"github.com/wso2/consent-widget/internal/system/httpclient"
	"github.com/wso2/consent-widget/internal/system/utils"
	"github.com/wso2/consent-widget/internal/translation"
	"github.com/wso2/consent-widget/internal/trigger"
)

// DecisionEvent is delivered to host-page integrations when a consent
// decision completes.
type DecisionEvent struct {
	Status              identitymodel.ConsentStatus `json:"status"`
	AcceptedActivityIDs []string                    `json:"acceptedActivityIds"`
	RejectedActivityIDs []string                    `json:"rejectedActivityIds"`
	Timestamp           int64                       `json:"timestamp"`
}

// Engine drives one widget on one page.
type Engine struct {
	cfg    *sysconfig.Config
	page   host.Host
	store  storage.Store
	logger *logrus.Logger

	httpClient   *httpclient.Client
	configClient *configclient.Client
	evaluator    *rules.Evaluator

	identityClient *identity.Client
	identityStore  *identity.Store
	pipeline       *submission.Pipeline
	translator     *translation.Service
	tracker        *analytics.Tracker

	mutex         sync.Mutex
	session       *Session
	scheduler     *trigger.Scheduler
	state         DisplayState
	pendingResume func()
	prefillEmail  string

	nextListenerID int
	listeners      map[int]func(DecisionEvent)
}

// New creates an engine. Init must be called before anything else.
func New(cfg *sysconfig.Config, page host.Host, store storage.Store, logger *logrus.Logger) *Engine {
	httpClient := httpclient.New(cfg.Services.Timeout, logger)
	return &Engine{
		cfg:          cfg,
		page:         page,
		store:        store,
		logger:       logger,
		httpClient:   httpClient,
		configClient: configclient.NewClient(httpClient, cfg.Services.ConfigServiceBaseURL, cfg.Retry.ConfigFetchRetryDelay, logger),
		evaluator:    rules.NewEvaluator(logger),
		state:        StateHidden,
		listeners:    make(map[int]func(DecisionEvent)),
	}
}

// Init fetches configuration, establishes the visitor identity, and
// arms the display trigger. It never blocks on the outcome of a
// trigger; the page keeps running while the engine waits for events.
func (e *Engine) Init(ctx context.Context) *serviceerror.ServiceError {
	ctx = httpclient.ContextWithCorrelationID(ctx, utils.GenerateUUID())

	widgetID := e.cfg.Widget.ID
	widgetConfig, serviceErr := e.configClient.Fetch(ctx, widgetID)
	if serviceErr != nil {
		// A missing widget is terminal: one diagnostic, no retry loop.
		e.logger.WithFields(logrus.Fields{
			"widgetId": widgetID,
			"code":     serviceErr.Code,
		}).Error("Widget cannot start: configuration unavailable")
		return serviceErr
	}

	durationDays := widgetConfig.ConsentDurationDays()
	if e.cfg.Widget.ConsentDurationDays > 0 {
		durationDays = e.cfg.Widget.ConsentDurationDays
	}

	e.identityClient = identity.NewClient(e.httpClient, e.cfg.Services.ConsentAPIBaseURL, e.logger)
	e.identityStore = identity.NewStore(e.store, e.identityClient, durationDays, e.logger)

	retry := httpclient.RetryPolicy{
		MaxAttempts:    e.cfg.Retry.MaxAttempts,
		InitialBackoff: e.cfg.Retry.InitialBackoff,
		AttemptTimeout: e.cfg.Retry.AttemptTimeout,
	}
	if retry.MaxAttempts <= 0 {
		retry = httpclient.DefaultRetryPolicy()
	}
	e.pipeline = submission.NewPipeline(e.httpClient, e.cfg.Services.ConsentAPIBaseURL, e.identityStore, durationDays, retry, e.logger)

	translationClient := translation.NewClient(e.httpClient, e.cfg.Services.TranslationBaseURL, e.logger)
	e.translator = translation.NewService(translationClient, BaseLanguage, baseVocabulary(), e.logger)
	e.tracker = analytics.NewTracker(e.httpClient, e.cfg.Services.AnalyticsBaseURL, e.logger)

	visitorID, err := e.identityStore.GetOrCreateConsentID(ctx)
	if err != nil {
		// Storage trouble must not block display; fall back to an
		// ephemeral ID that lives for this page view only.
		e.logger.WithError(err).Warn("Visitor store unavailable; using ephemeral Consent ID")
		visitorID = identity.GenerateConsentID()
	}

	language := e.cfg.Widget.LanguageCode
	if language == "" {
		language = widgetConfig.Settings.LanguageCode
	}
	if language == "" {
		language = BaseLanguage
	}

	session := &Session{
		WidgetID:  widgetID,
		VisitorID: visitorID,
		Language:  language,
		Config:    widgetConfig,
	}
	session.applyNoticeOverride(nil)

	e.mutex.Lock()
	e.session = session
	e.mutex.Unlock()

	e.armDisplay(session)
	return nil
}

// armDisplay decides whether and how the widget may appear on this
// page. A non-empty rule set that matches nothing is a deliberate
// fail-closed outcome: the widget stays hidden. Only a widget with no
// rules configured at all auto-shows by default.
func (e *Engine) armDisplay(session *Session) {
	ruleSet := session.Config.DisplayRules
	if len(ruleSet) == 0 {
		e.logger.Debug("No display rules configured; default auto-show")
		session.Working = cloneCatalog(session.Config.Activities)
		e.page.After(0, func() {
			if e.hasExistingConsent() {
				e.logger.Debug("Existing consent found; widget stays hidden")
				return
			}
			e.Show()
		})
		return
	}

	winner := e.evaluator.Evaluate(ruleSet, e.page.URL(), e.page)
	if winner == nil {
		e.logger.WithFields(logrus.Fields{
			"rules":   len(ruleSet),
			"pageUrl": e.page.URL(),
		}).Info("No display rule matched this page; widget will not render")
		return
	}

	session.MatchedRule = winner
	scheduler := trigger.NewScheduler(*winner, e.page, e.hasExistingConsent, e.handleFire, e.logger)

	e.mutex.Lock()
	e.scheduler = scheduler
	e.mutex.Unlock()

	scheduler.Arm()
	e.logger.WithFields(logrus.Fields{
		"ruleId":  winner.ID,
		"trigger": winner.TriggerType,
	}).Debug("Display trigger armed")
}

// handleFire runs when the armed trigger fires: apply the rule,
// track the match once per session, then gate on existing consent.
func (e *Engine) handleFire(fc trigger.FireContext) {
	session := e.currentSession()
	if session == nil {
		return
	}

	result := rules.ApplyRule(&fc.Rule, session.Config.Activities, e.logger)
	if result.Suppressed {
		e.logger.WithFields(logrus.Fields{
			"ruleId": fc.Rule.ID,
			"reason": result.SuppressReason,
		}).Info("Render suppressed by fail-closed policy")
		return
	}

	e.mutex.Lock()
	session.Working = result.Activities
	session.applyNoticeOverride(result.Notice)
	e.pendingResume = fc.Resume
	e.prefillEmail = fc.PrefillEmail
	e.mutex.Unlock()

	e.tracker.TrackRuleMatch(session.WidgetID, fc.Rule.ID, e.page.URL())

	// The form-submit path has already established that consent is
	// missing; other triggers check at fire time.
	if fc.Resume == nil && e.hasExistingConsent() {
		e.logger.Debug("Existing consent found at trigger time; widget stays hidden")
		return
	}
	e.Show()
}

func (e *Engine) hasExistingConsent() bool {
	session := e.currentSession()
	if session == nil || e.identityStore == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return e.identityStore.HasExistingConsent(ctx, session.WidgetID, session.VisitorID, e.page.URL())
}

// Show makes the widget visible.
func (e *Engine) Show() {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.state = StateVisible
	e.logger.Debug("Widget shown")
}

// Hide removes the widget from view.
func (e *Engine) Hide() {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.state = StateHidden
	e.logger.Debug("Widget hidden")
}

// State returns the current display state.
func (e *Engine) State() DisplayState {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.state
}

// Session returns a snapshot of the current session, or nil before
// Init.
func (e *Engine) currentSession() *Session {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.session
}

// WorkingActivities returns the filtered activity view for rendering.
func (e *Engine) WorkingActivities() []catalogmodel.Activity {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	if e.session == nil {
		return nil
	}
	return e.session.Working
}

// Notice returns the effective widget copy.
func (e *Engine) Notice() NoticeCopy {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	if e.session == nil {
		return NoticeCopy{}
	}
	return e.session.Notice
}

// SubmitDecision validates and submits a consent decision. email, when
// given, is hashed before it leaves the engine; the prefilled email
// from an intercepted form is used when no explicit one is supplied.
func (e *Engine) SubmitDecision(ctx context.Context, decision submission.Decision, meta submission.Metadata, email string) (*identitymodel.ConsentRecord, *serviceerror.ServiceError) {
	session := e.currentSession()
	if session == nil {
		return nil, serviceerror.CustomServiceError(serviceerror.InvalidRequestError, "Widget is not initialized")
	}

	e.mutex.Lock()
	if email == "" {
		email = e.prefillEmail
	}
	e.mutex.Unlock()

	var emailHash string
	if email != "" {
		emailHash = identity.HashIdentifier(email)
	}

	if meta.CurrentURL == "" {
		meta.CurrentURL = e.page.URL()
	}

	ctx = httpclient.ContextWithCorrelationID(ctx, utils.GenerateUUID())
	record, serviceErr := e.pipeline.Submit(ctx, session.VisitorID, decision, meta, emailHash)
	if serviceErr != nil {
		return nil, serviceErr
	}

	e.tracker.TrackConsent(session.WidgetID, session.VisitorID, string(record.Status))
	e.emitDecision(DecisionEvent{
		Status:              record.Status,
		AcceptedActivityIDs: record.AcceptedActivityIDs,
		RejectedActivityIDs: record.RejectedActivityIDs,
		Timestamp:           record.Timestamp,
	})

	e.mutex.Lock()
	resume := e.pendingResume
	e.pendingResume = nil
	e.state = StateSuccess
	e.mutex.Unlock()

	if resume != nil {
		resume()
	}

	// Success display auto-hides shortly after.
	e.page.After(3*time.Second, func() {
		e.mutex.Lock()
		defer e.mutex.Unlock()
		if e.state == StateSuccess {
			e.state = StateHidden
		}
	})

	return record, nil
}

// GetConsent returns the effective consent record for the visitor,
// preferring a non-expired remote record over the local one.
func (e *Engine) GetConsent(ctx context.Context) *identitymodel.ConsentRecord {
	session := e.currentSession()
	if session == nil || e.identityStore == nil {
		return nil
	}
	return e.identityStore.Resolve(ctx, session.WidgetID, session.VisitorID, e.page.URL())
}

// LinkConsentID adopts a visitor-entered Consent ID after remote
// verification, so choices made on another device follow the visitor
// here. Returns the consent record now effective for this device, if
// one exists.
func (e *Engine) LinkConsentID(ctx context.Context, consentID string) (*identitymodel.ConsentRecord, *serviceerror.ServiceError) {
	session := e.currentSession()
	if session == nil || e.identityClient == nil {
		return nil, serviceerror.CustomServiceError(serviceerror.InvalidRequestError, "Widget is not initialized")
	}

	valid, reason := e.identityClient.VerifyConsentID(ctx, consentID)
	if !valid {
		return nil, serviceerror.CustomServiceError(serviceerror.ConsentIDInvalidError, reason)
	}
	if err := e.identityStore.AdoptConsentID(ctx, consentID); err != nil {
		return nil, serviceerror.CustomServiceError(serviceerror.StorageError, err.Error())
	}

	e.mutex.Lock()
	session.VisitorID = consentID
	e.mutex.Unlock()

	return e.identityStore.Resolve(ctx, session.WidgetID, consentID, e.page.URL()), nil
}

// RequestEmailLink starts the email linking flow: the address must map
// to a known visitor before a one-time code is sent to it.
func (e *Engine) RequestEmailLink(ctx context.Context, email string) *serviceerror.ServiceError {
	session := e.currentSession()
	if session == nil || e.identityClient == nil {
		return serviceerror.CustomServiceError(serviceerror.InvalidRequestError, "Widget is not initialized")
	}
	if email == "" {
		return serviceerror.CustomServiceError(serviceerror.ValidationError, "email is required")
	}

	exists, _ := e.identityClient.CheckUserStatus(ctx, identity.HashIdentifier(email), identity.CompatHashIdentifier(email))
	if !exists {
		return serviceerror.CustomServiceError(serviceerror.ResourceNotFoundError, "No consent profile exists for this email address")
	}
	if err := e.identityClient.SendOTP(ctx, email); err != nil {
		return serviceerror.CustomServiceError(serviceerror.InternalServerError, err.Error())
	}
	return nil
}

// ConfirmEmailLink completes the email linking flow: on a correct code
// the remote visitor ID, when one is returned, replaces the local one.
func (e *Engine) ConfirmEmailLink(ctx context.Context, email, code string) (*identitymodel.ConsentRecord, *serviceerror.ServiceError) {
	session := e.currentSession()
	if session == nil || e.identityClient == nil {
		return nil, serviceerror.CustomServiceError(serviceerror.InvalidRequestError, "Widget is not initialized")
	}

	if !e.identityClient.VerifyOTP(ctx, email, code) {
		return nil, &serviceerror.OTPInvalidError
	}

	if _, visitorID := e.identityClient.CheckUserStatus(ctx, identity.HashIdentifier(email), identity.CompatHashIdentifier(email)); visitorID != "" && identity.IsValidConsentID(visitorID) {
		if err := e.identityStore.AdoptConsentID(ctx, visitorID); err != nil {
			e.logger.WithError(err).Warn("Could not persist linked Consent ID")
		} else {
			e.mutex.Lock()
			session.VisitorID = visitorID
			e.mutex.Unlock()
		}
	}

	e.mutex.Lock()
	visitorID := session.VisitorID
	e.mutex.Unlock()
	return e.identityStore.Resolve(ctx, session.WidgetID, visitorID, e.page.URL()), nil
}

// OpenPrivacyCentre shows the full catalog regardless of the matched
// rule, so the visitor can review and change every choice.
func (e *Engine) OpenPrivacyCentre() {
	session := e.currentSession()
	if session == nil {
		return
	}
	e.mutex.Lock()
	session.Working = cloneCatalog(session.Config.Activities)
	session.applyNoticeOverride(nil)
	e.state = StatePrivacyCentre
	e.mutex.Unlock()
	e.logger.Debug("Privacy centre opened")
}

// DownloadReceipt returns the stored consent envelope as indented JSON.
func (e *Engine) DownloadReceipt(ctx context.Context) ([]byte, *serviceerror.ServiceError) {
	if e.identityStore == nil {
		return nil, serviceerror.CustomServiceError(serviceerror.InvalidRequestError, "Widget is not initialized")
	}
	envelope, err := e.identityStore.StoredEnvelope(ctx)
	if err != nil {
		return nil, serviceerror.CustomServiceError(serviceerror.StorageError, err.Error())
	}
	if envelope == nil {
		return nil, serviceerror.CustomServiceError(serviceerror.ResourceNotFoundError, "No consent has been recorded on this device")
	}
	data, marshalErr := json.MarshalIndent(envelope, "", "  ")
	if marshalErr != nil {
		return nil, serviceerror.CustomServiceError(serviceerror.InternalServerError, marshalErr.Error())
	}
	return data, nil
}

// SetLanguage rebuilds the widget copy in the target language. While a
// rebuild is running further language switches are rejected; the UI
// shows a non-interactive overlay until the rebuild completes.
func (e *Engine) SetLanguage(ctx context.Context, lang string) (map[string]string, *serviceerror.ServiceError) {
	session := e.currentSession()
	if session == nil || e.translator == nil {
		return nil, serviceerror.CustomServiceError(serviceerror.InvalidRequestError, "Widget is not initialized")
	}

	if serviceErr := e.translator.BeginRebuild(); serviceErr != nil {
		return nil, serviceErr
	}
	defer e.translator.EndRebuild()

	// Vocabulary and dynamic content (activity and purpose names,
	// category labels) share one batched call per rebuild.
	dynamic := collectDynamicStrings(e.WorkingActivities())
	bundle, translated := e.translator.Rebuild(ctx, lang, dynamic)
	for i, text := range dynamic {
		bundle["dynamic."+text] = translated[i]
	}

	e.mutex.Lock()
	session.Language = lang
	e.mutex.Unlock()
	return bundle, nil
}

// OnConsentDecision subscribes to decision events. The returned
// function unsubscribes.
func (e *Engine) OnConsentDecision(fn func(DecisionEvent)) func() {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	id := e.nextListenerID
	e.nextListenerID++
	e.listeners[id] = fn
	return func() {
		e.mutex.Lock()
		defer e.mutex.Unlock()
		delete(e.listeners, id)
	}
}

func (e *Engine) emitDecision(event DecisionEvent) {
	e.mutex.Lock()
	fns := make([]func(DecisionEvent), 0, len(e.listeners))
	for _, fn := range e.listeners {
		fns = append(fns, fn)
	}
	e.mutex.Unlock()
	for _, fn := range fns {
		fn(event)
	}
}

// Shutdown flushes best-effort analytics.
func (e *Engine) Shutdown(timeout time.Duration) {
	if e.tracker != nil {
		e.tracker.Flush(timeout)
	}
}

func cloneCatalog(catalog []catalogmodel.Activity) []catalogmodel.Activity {
	cloned := make([]catalogmodel.Activity, 0, len(catalog))
	for _, activity := range catalog {
		cloned = append(cloned, activity.Clone())
	}
	return cloned
}

func collectDynamicStrings(activities []catalogmodel.Activity) []string {
	seen := make(map[string]bool)
	var texts []string
	add := func(text string) {
		if text != "" && !seen[text] {
			seen[text] = true
			texts = append(texts, text)
		}
	}
	for _, activity := range activities {
		add(activity.Name)
		for _, purpose := range activity.Purposes {
			add(purpose.PurposeName)
			add(purpose.LegalBasis)
			for _, category := range purpose.DataCategories {
				add(category.CategoryName)
			}
		}
	}
	return texts
}
