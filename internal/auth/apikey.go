// Package auth provides authentication primitives for the portal: gateway API key
// generation and validation, session JWTs, and admin resolution for the auth gate.
// See internal/middleware for the request-time logic that uses these primitives.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// APIKeyLength is the length of the random part of the API key in bytes (256 bits).
	APIKeyLength = 32

	// DisplayPrefixLength is the number of leading key characters stored in clear
	// for lookup and display. It is unique across issued keys.
	DisplayPrefixLength = 16

	// BcryptCost is the cost factor for bcrypt hashing
	BcryptCost = 12

	// APIKeyHeader is the request header gateway clients send their key in.
	APIKeyHeader = "x-api-key"
)

// GenerateAPIKey creates a new random API key with the given prefix.
// Returns: full key (to show once), bcrypt hash (to store), display prefix
func GenerateAPIKey(prefix string) (key string, hash string, displayPrefix string, err error) {
	randomBytes := make([]byte, APIKeyLength)
	if _, err = rand.Read(randomBytes); err != nil {
		return "", "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	fullKey := fmt.Sprintf("%s_%s", prefix, base64.RawURLEncoding.EncodeToString(randomBytes))

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(fullKey), BcryptCost)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to hash API key: %w", err)
	}

	return fullKey, string(hashBytes), DisplayPrefix(fullKey), nil
}

// DisplayPrefix returns the stored lookup prefix of a full key.
func DisplayPrefix(key string) string {
	if len(key) > DisplayPrefixLength {
		return key[:DisplayPrefixLength]
	}
	return key
}

// ValidateAPIKey checks if a provided key matches the stored hash
func ValidateAPIKey(providedKey, storedHash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(providedKey)) == nil
}

// ExtractAPIKey returns the trimmed key from an x-api-key header value.
func ExtractAPIKey(header string) (string, error) {
	key := strings.TrimSpace(header)
	if key == "" {
		return "", errors.New("x-api-key header is empty")
	}
	if len(key) <= DisplayPrefixLength {
		return "", errors.New("API key is malformed")
	}
	return key, nil
}

// ExtractBearerToken extracts the token from an Authorization header.
// Expected format: "Bearer <token>"
func ExtractBearerToken(header string) (string, error) {
	if header == "" {
		return "", errors.New("authorization header is empty")
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return "", errors.New("authorization header must start with 'Bearer '")
	}

	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return "", errors.New("token is empty after Bearer prefix")
	}
	return token, nil
}
