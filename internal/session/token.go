package session

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// newToken derives the opaque session token from the person, client and
// creation time, salted with random bytes so equal inputs never collide.
func newToken(personID, ip, userAgent string, now time.Time) (string, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("read token nonce: %w", err)
	}

	h := sha256.New()
	for _, part := range []string{personID, ip, userAgent, strconv.FormatInt(now.UnixNano(), 10)} {
		_, _ = h.Write([]byte(part))
		_, _ = h.Write([]byte{0})
	}
	_, _ = h.Write(nonce)

	return hex.EncodeToString(h.Sum(nil)), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
