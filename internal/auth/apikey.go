package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// KeyPrefix marks every API key this gateway issues.
	KeyPrefix = "tg_"
	// keyBytes is the entropy of the random part.
	keyBytes = 32

	hashPrefixSHA256 = "sha256:"
	hashPrefixBcrypt = "bcrypt:"
)

// GenerateKey returns a fresh API key and the hash to put in the config
// file. The plaintext is shown once and never stored.
func GenerateKey() (plaintext, stored string, err error) {
	buf := make([]byte, keyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	random := strings.TrimRight(base64.URLEncoding.EncodeToString(buf), "=")
	plaintext = KeyPrefix + random
	return plaintext, HashKey(plaintext), nil
}

// HashKey returns the sha256 config form of a key.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hashPrefixSHA256 + hex.EncodeToString(sum[:])
}

// BcryptKey returns the bcrypt config form of a key, for operators who
// prefer a slow hash over the default sha256.
func BcryptKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return hashPrefixBcrypt + string(hash), nil
}

// VerifyKey reports whether key matches a stored hash. sha256 entries are
// compared in constant time; bcrypt entries go through x/crypto/bcrypt.
func VerifyKey(key, stored string) bool {
	switch {
	case strings.HasPrefix(stored, hashPrefixSHA256):
		want, err := hex.DecodeString(strings.TrimPrefix(stored, hashPrefixSHA256))
		if err != nil {
			return false
		}
		sum := sha256.Sum256([]byte(key))
		return subtle.ConstantTimeCompare(sum[:], want) == 1
	case strings.HasPrefix(stored, hashPrefixBcrypt):
		hash := strings.TrimPrefix(stored, hashPrefixBcrypt)
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil
	default:
		return false
	}
}

// ValidKeyFormat reports whether s looks like one of our keys.
func ValidKeyFormat(s string) bool {
	return strings.HasPrefix(s, KeyPrefix) && len(s) >= len(KeyPrefix)+20
}

// FromBearer strips the Bearer scheme from an Authorization header.
func FromBearer(header string) string {
	const scheme = "Bearer "
	if strings.HasPrefix(header, scheme) {
		return strings.TrimPrefix(header, scheme)
	}
	return ""
}
