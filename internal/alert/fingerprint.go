package alert

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Fingerprint digests the alert's identifying content into the dedup
// key. It is a pure function of category, source, title, and tags, so
// identical alerts collide across runs. Timestamps and IDs never enter
// the digest.
func Fingerprint(a Alert) string {
	tags := make([]string, len(a.Tags))
	copy(tags, a.Tags)
	sort.Strings(tags)

	var b strings.Builder
	b.WriteString(a.Category)
	b.WriteByte('|')
	b.WriteString(a.Source)
	b.WriteByte('|')
	b.WriteString(a.Title)
	b.WriteByte('|')
	b.WriteString(strings.Join(tags, ","))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
