package domain

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashAPIKey hashes a raw partner API key using the same strategy as key
// issuance.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// API key scopes for the partner confirmation channel.
const (
	ScopePresent = "present"
	ScopeConsume = "consume"
)

// HasScope reports whether the key grants the named scope.
func (k *PartnerAPIKey) HasScope(scope string) bool {
	for _, s := range k.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}
