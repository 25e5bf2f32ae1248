package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// HashPassword returns the hex-encoded SHA-256 digest of the password.
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// CheckPassword reports whether the password matches the stored hash.
func CheckPassword(password, hash string) bool {
	candidate := HashPassword(password)
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(hash)) == 1
}
