package constants

const (
	ContentTypeHeaderName   = "Content-Type"
	CorrelationIDHeaderName = "X-Correlation-ID"
	WidgetIDHeaderName      = "X-Widget-ID"
	ContentTypeJSON         = "application/json"
)

// Display rule limits. Patterns beyond these bounds are treated as
// malformed configuration and are never evaluated.
const (
	MaxRuleIDLength     = 100
	MaxURLPatternLength = 500
)

// Trigger defaults.
const (
	DefaultScrollThresholdPct = 50
	ScrollThrottleMillis      = 100
	ScrollInitialCheckMillis  = 500
)

// Submission limits.
const (
	MaxActivitiesPerSubmission = 100
)

// Consent identity.
const (
	ConsentIDPrefix       = "CNST"
	LegacyVisitorIDPrefix = "vis_"
	// 0, O, 1 and I are excluded so the ID can be read back over the
	// phone without ambiguity.
	ConsentIDAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// Default durations.
const (
	DefaultConsentDurationDays = 365
	ConsentIDTTLDays           = 3650
)

// Storage keys for the visitor-local store.
const (
	StorageKeyVisitorID     = "consent_widget.visitor_id"
	StorageKeyConsentRecord = "consent_widget.consent_record"
)
