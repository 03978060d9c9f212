package ingestion

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// ErrMissingIdentity is returned when an item carries neither a link nor
// a GUID, leaving nothing to hash.
var ErrMissingIdentity = fmt.Errorf("item has no link and no guid")

// ItemHash computes the deduplication key for a feed item from its GUID
// and permalink. The link is canonicalized first so that tracking-param
// variants of the same story collapse to one hash. The result is stable
// across process restarts; it carries no time or host salt.
func ItemHash(guid, link string) string {
	payload := strings.TrimSpace(guid) + "|" + CanonicalURL(link)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// ValidateIdentity checks that an item can be deduplicated at all.
// Items with neither a link nor a GUID are malformed and should be
// skipped and logged, never inserted.
func ValidateIdentity(guid, link string) error {
	if strings.TrimSpace(guid) == "" && strings.TrimSpace(link) == "" {
		return ErrMissingIdentity
	}
	return nil
}
