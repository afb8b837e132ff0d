package cache

import (
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"

	"tellus/internal/domain"
)

// fingerprintVersion is baked into the hash input so a change to the
// canonical form invalidates old entries instead of colliding with them.
const fingerprintVersion = "v1"

// Fingerprint derives the cache key for a query. Queries are normalized at
// construction (sorted, deduped sets), so two queries naming the same
// indicators, countries, and years in any order produce the same key. The
// chart hint is presentation-only and deliberately excluded.
func Fingerprint(q domain.Query) string {
	var b strings.Builder
	b.WriteString(fingerprintVersion)
	b.WriteString("|ind=")
	b.WriteString(strings.Join(q.Indicators(), ","))
	b.WriteString("|ctr=")
	b.WriteString(strings.Join(q.Countries(), ","))
	years := q.Years()
	fmt.Fprintf(&b, "|yr=%d-%d", years.Start, years.End)

	sum := blake2b.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
