package auth

import (
	"crypto/rand"
	"encoding/base64"
)

// RandomToken returns n random bytes, URL-safe base64 encoded. Used for CSRF cookies.
func RandomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
