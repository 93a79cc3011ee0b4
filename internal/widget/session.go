package widget

import (
	catalogmodel "github.com/wso2/consent-widget/internal/catalog/model"
	"github.com/wso2/consent-widget/internal/configclient"
	rulesmodel "github.com/wso2/consent-widget/internal/rules/model"
)

// NoticeCopy is the effective widget copy for a render cycle: the
// widget-level defaults with any rule override projected on top.
type NoticeCopy struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	HTML    string `json:"html,omitempty"`
}

// Session is the explicit per-page widget state created at Init and
// passed through the pipeline. Nothing widget-scoped lives in package
// globals; the fail-closed abort paths only ever touch the session.
type Session struct {
	WidgetID  string
	VisitorID string
	Language  string

	Config      *configclient.WidgetConfig
	MatchedRule *rulesmodel.DisplayRule

	// Working is the filtered activity view for the current render
	// cycle, always re-derived from Config.Activities.
	Working []catalogmodel.Activity
	Notice  NoticeCopy
}

// applyNoticeOverride projects rule-level copy onto the widget
// defaults, leaving unset fields untouched.
func (s *Session) applyNoticeOverride(override *rulesmodel.NoticeOverride) {
	s.Notice = NoticeCopy{
		Title:   s.Config.Settings.Title,
		Message: s.Config.Settings.Message,
	}
	if override == nil {
		return
	}
	if override.Title != "" {
		s.Notice.Title = override.Title
	}
	if override.Message != "" {
		s.Notice.Message = override.Message
	}
	if override.HTML != "" {
		s.Notice.HTML = override.HTML
	}
}

// DisplayState is the engine's visible-surface state.
type DisplayState string

const (
	StateHidden        DisplayState = "hidden"
	StateVisible       DisplayState = "visible"
	StateSuccess       DisplayState = "success"
	StatePrivacyCentre DisplayState = "privacyCentre"
)
