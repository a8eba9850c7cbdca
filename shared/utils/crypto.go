package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
)

// HashToken returns the hex-encoded SHA-256 of a raw token. Used for
// verification and reset tokens so only the hash ever touches durable
// storage; the raw value goes out in the email and nowhere else.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// ConstantTimeEquals compares two secrets without leaking their
// divergence point through timing.
func ConstantTimeEquals(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// GenerateRandomString generates a cryptographically secure random string
// using the provided charset and length
func GenerateRandomString(length int, charset string) string {
	b := make([]byte, length)
	for i := range b {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			panic(fmt.Sprintf("failed to generate random string: %v", err))
		}
		b[i] = charset[n.Int64()]
	}
	return string(b)
}

// GenerateOTP generates a numeric one-time code of the given length.
func GenerateOTP(length int) string {
	const digits = "0123456789"
	return GenerateRandomString(length, digits)
}

// GenerateToken returns a url-safe random token suitable for
// email-verification and password-reset links.
func GenerateToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("failed to generate token: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
