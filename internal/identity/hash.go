package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/wso2/consent-widget/internal/system/utils"
)

// HashIdentifier digests an identifying string (an email address) for
// cheap server-side equality lookup. It is not a security credential.
func HashIdentifier(value string) string {
	normalized := utils.NormalizeIdentifier(value)
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// CompatHashIdentifier is the deterministic multi-accumulator hash used
// by runtimes without a cryptographic digest. Both hash paths normalize
// input identically but their outputs are not cross-compatible; the
// server matches each against its own column.
func CompatHashIdentifier(value string) string {
	normalized := utils.NormalizeIdentifier(value)

	var h1 uint32 = 0x811c9dc5
	var h2 uint32 = 0x01000193
	var h3 uint32 = 0xdeadbeef
	var h4 uint32 = 0x41c64e6d
	for i := 0; i < len(normalized); i++ {
		c := uint32(normalized[i])
		h1 = (h1 ^ c) * 16777619
		h2 = h2*31 + c
		h3 = (h3 << 5) + h3 + c
		h4 = (h4 ^ (c << (uint(i) % 24))) * 1103515245
	}
	return fmt.Sprintf("%08x%08x%08x%08x", h1, h2, h3, h4)
}
