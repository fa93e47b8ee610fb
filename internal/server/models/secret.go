package models

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/secretvault/internal/common"
)

// Secret is the immutable identity of a versioned confidential resource.
// It never carries plaintext or ciphertext itself. The external UID is an
// opaque uuid so secret ids cannot be enumerated.
type Secret struct {
	ID          int64
	UID         string
	Name        string
	Description string
	DeletedAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// LatestVersion is populated on reads that join the version chain.
	LatestVersion int64
}

// SecretVersion is an immutable snapshot in a secret's chain. Version
// numbers start at 1 and are strictly increasing with no gaps; the store
// enforces uniqueness of (SecretID, Version).
type SecretVersion struct {
	ID        int64
	SecretID  int64
	Version   int64
	Metadata  Metadata
	CreatedAt time.Time
}

// EncryptedSecretData is one ciphertext copy of one version's plaintext,
// encrypted for one user's one key. (SecretVersionID, UserID, UserKeyID)
// is unique.
type EncryptedSecretData struct {
	ID              int64
	SecretVersionID int64
	UserID          int64
	UserKeyID       int64
	EncryptedData   string // base64 RSA-OAEP ciphertext
	CreatedAt       time.Time
}

// Metadata is the typed key/value structure attached to a version. Only the
// recognized keys below are accepted and values are length-capped; unknown
// keys are rejected at the boundary rather than trusted implicitly.
type Metadata map[string]string

const metadataValueLimit = 1024

var recognizedMetadataKeys = map[string]struct{}{
	"filename":     {},
	"content_type": {},
	"environment":  {},
	"comment":      {},
	"source":       {},
}

// Validate checks every key against the recognized set and every value
// against the length cap.
func (m Metadata) Validate() error {
	for k, v := range m {
		if _, ok := recognizedMetadataKeys[k]; !ok {
			return fmt.Errorf("%w: unrecognized metadata key %q", common.ErrValidation, k)
		}
		if len(v) > metadataValueLimit {
			return fmt.Errorf("%w: metadata value for %q too long", common.ErrValidation, k)
		}
	}
	return nil
}
