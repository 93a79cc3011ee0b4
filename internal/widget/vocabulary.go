package widget

// BaseLanguage is the language of the built-in vocabulary.
const BaseLanguage = "en"

// baseVocabulary is the static base UI vocabulary. Keys are stable;
// the translation service resolves values per language in one batch.
func baseVocabulary() map[string]string {
	return map[string]string{
		"banner.title":          "We value your privacy",
		"banner.message":        "Select which data processing activities you consent to.",
		"action.acceptAll":      "Accept all",
		"action.rejectAll":      "Reject all",
		"action.save":           "Save preferences",
		"action.close":          "Close",
		"privacyCentre.title":   "Privacy Centre",
		"privacyCentre.message": "Review and update your consent choices at any time.",
		"consentId.label":       "Your Consent ID",
		"consentId.hint":        "Use this ID to look up your consent on another device.",
		"success.message":       "Your preferences have been saved.",
		"failure.message":       "We could not save your preferences. Please try again.",
		"otp.invalid":           "That code is not valid. Please try again.",
		"receipt.download":      "Download receipt",
		"purpose.legalBasis":    "Legal basis",
		"purpose.retention":     "Retention period",
		"purpose.dataCategory":  "Data categories",
		"language.switching":    "Updating language…",
	}
}
