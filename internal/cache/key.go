package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"NewsDigest/internal/domain"
)

// KeyPrefix namespaces digest keys in shared media such as Redis.
const KeyPrefix = "digest:"

// Canonical renders the normalized parameters a key is derived from as a JSON
// tuple [topic, max_articles, language, category]; a missing category is null.
func Canonical(q domain.Query) string {
	q = q.Normalize()
	var category *string
	if q.Category != "" {
		category = &q.Category
	}
	// Strings, ints and a nil-able string pointer always encode.
	raw, _ := json.Marshal([]any{strings.ToLower(q.Topic), q.MaxArticles, q.Language, category})
	return string(raw)
}

// Key hashes the canonical form of a query.
func Key(q domain.Query) string {
	sum := sha256.Sum256([]byte(Canonical(q)))
	return KeyPrefix + hex.EncodeToString(sum[:])
}
