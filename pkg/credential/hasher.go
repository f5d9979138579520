package credential

import (
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

// bcrypt ignores everything past its 72nd input byte and some implementations
// reject longer inputs outright. Secrets are truncated to this limit before
// hashing and before verification, so the cut is transparent to callers.
const maxSecretBytes = 72

// Hasher wraps one-way hashing for passwords and refresh-token secrets.
type Hasher struct {
	cost int
}

// NewHasher returns a Hasher with the given bcrypt cost. A cost of 0 selects
// bcrypt's default.
func NewHasher(cost int) Hasher {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return Hasher{cost: cost}
}

// Hash produces a salted digest of the secret.
func (h Hasher) Hash(secret string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword(truncateSecret(secret), h.cost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

// Verify reports whether secret matches digest. Malformed digests simply
// fail verification.
func (h Hasher) Verify(secret, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), truncateSecret(secret)) == nil
}

// truncateSecret cuts the secret at the 72-byte limit without splitting a
// multi-byte character; a rune straddling the boundary is dropped entirely.
func truncateSecret(secret string) []byte {
	if len(secret) <= maxSecretBytes {
		return []byte(secret)
	}
	cut := maxSecretBytes
	for cut > 0 && !utf8.RuneStart(secret[cut]) {
		cut--
	}
	return []byte(secret[:cut])
}
