// Package models defines the server-side persistence entities: users and
// their keys, secrets and their version chain, per-recipient ciphertext,
// access permissions, and the operation audit log.
package models

import "time"

// User is created once and never deleted; only its keys and permissions
// change over time.
type User struct {
	ID        int64
	Username  string
	CreatedAt time.Time
}

// UserKey is one public key belonging to a user. A user may hold several
// simultaneously active keys. A revoked or expired key is never selected as
// an encryption target for new ciphertext; ciphertext already encrypted
// under it remains readable for whoever holds the private key.
type UserKey struct {
	ID         int64
	UserID     int64
	KeyID      string // stable uuid identifier, exposed to clients
	Name       string
	PublicKey  string // PEM SPKI
	IsActive   bool
	LastUsedAt *time.Time
	ExpiresAt  *time.Time
	RevokedAt  *time.Time
	CreatedAt  time.Time
}

// Usable reports whether the key may be targeted by new ciphertext at time t.
func (k *UserKey) Usable(t time.Time) bool {
	if !k.IsActive || k.RevokedAt != nil {
		return false
	}
	if k.ExpiresAt != nil && !k.ExpiresAt.After(t) {
		return false
	}
	return true
}
