package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Fingerprint derives the deterministic identity of a logical action
// request: a sha256 over the tenant, the action name, and the identity
// fields in sorted key order. Two payloads that differ only in transport
// field ordering, or in fields excluded from the identity set (free-text
// notes, staff preference), hash identically; changing any identity field
// changes the hash.
//
// Values are trimmed and lower-cased so retries that only vary in
// whitespace or letter case still match.
func Fingerprint(tenantID, actionName string, identity map[string]string) string {
	keys := make([]string, 0, len(identity))
	for k := range identity {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	fmt.Fprintf(h, "%s\n%s\n", tenantID, actionName)
	for _, k := range keys {
		v := strings.ToLower(strings.TrimSpace(identity[k]))
		fmt.Fprintf(h, "%s=%s\n", k, v)
	}
	return hex.EncodeToString(h.Sum(nil))
}
