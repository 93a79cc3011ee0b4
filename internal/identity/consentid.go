// Package identity manages the visitor's Consent ID and the locally
// persisted consent record. The Consent ID identifies a browser, not a
// decision: it exists before and independent of any consent.
package identity

import (
	"crypto/rand"
	"fmt"
	"regexp"
	"strings"

	"github.com/wso2/consent-widget/internal/system/constants"
)

var (
	consentIDPattern = regexp.MustCompile(`^CNST-[A-HJ-NP-Z2-9]{4}-[A-HJ-NP-Z2-9]{4}-[A-HJ-NP-Z2-9]{4}$`)

	// Older installations issued opaque visitor IDs with a vis_ prefix;
	// those stay valid so existing consent records keep resolving.
	legacyIDPattern = regexp.MustCompile(`^vis_[A-Za-z0-9_-]{8,64}$`)
)

// GenerateConsentID produces a new CNST-XXXX-XXXX-XXXX identifier from
// the unambiguous alphabet.
func GenerateConsentID() string {
	alphabet := constants.ConsentIDAlphabet
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms; the ID is not
		// a security credential either way.
		panic(fmt.Sprintf("consent id entropy unavailable: %v", err))
	}
	var b strings.Builder
	b.WriteString(constants.ConsentIDPrefix)
	for i, by := range buf {
		if i%4 == 0 {
			b.WriteByte('-')
		}
		b.WriteByte(alphabet[int(by)%len(alphabet)])
	}
	return b.String()
}

// IsValidConsentID reports whether the value is a well-formed Consent
// ID in either the current or the legacy format.
func IsValidConsentID(id string) bool {
	return consentIDPattern.MatchString(id) || legacyIDPattern.MatchString(id)
}
