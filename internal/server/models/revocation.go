package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/formvault/formvault/internal/common"
)

// RevokedTokenEntry blocklists a session credential until its natural
// expiry. Keyed by an irreversible hash so the blocklist itself cannot
// leak credentials. Entries past ExpiresAt are prunable: the token would
// be rejected by expiry anyway.
type RevokedTokenEntry struct {
	TokenHash string
	RevokedAt time.Time
	ExpiresAt time.Time
}

// HashToken returns the hex SHA-256 of a raw token, the blocklist key.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// NewRevokedTokenEntry builds a blocklist entry for a token expiring at
// expiresAt. Tokens already past expiry have nothing to blocklist and are
// rejected here so callers can treat them as a no-op.
func NewRevokedTokenEntry(token string, expiresAt time.Time) (*RevokedTokenEntry, error) {
	if token == "" {
		return nil, common.ErrorValidation
	}
	now := time.Now().UTC()
	if !expiresAt.After(now) {
		return nil, common.ErrTokenExpired
	}
	return &RevokedTokenEntry{
		TokenHash: HashToken(token),
		RevokedAt: now,
		ExpiresAt: expiresAt,
	}, nil
}
