package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// GenerateKey builds a deterministic key namespaced by scope. Parts are hashed so
// phone numbers never appear in Redis key names.
func GenerateKey(scope string, parts ...interface{}) string {
	h := sha256.New()
	for _, part := range parts {
		fmt.Fprintf(h, "%v:", part)
	}

	return scope + ":" + hex.EncodeToString(h.Sum(nil))
}
