package ciphertexts

import (
	"context"

	"github.com/dmitrijs2005/secretvault/internal/server/models"
)

type Repository interface {
	// Create stores one ciphertext row. If a row already exists for the
	// same (version, user, key) triple, the existing row is kept untouched
	// and created reports false; fan-out is idempotent and never
	// overwrites ciphertext.
	Create(ctx context.Context, data *models.EncryptedSecretData) (created bool, err error)
	// GetForUser returns the recipient's ciphertext for a version,
	// preferring the newest key it was encrypted under.
	GetForUser(ctx context.Context, versionID, userID int64) (*models.EncryptedSecretData, error)
	// RecipientUserIDs returns the distinct users holding ciphertext for a
	// version.
	RecipientUserIDs(ctx context.Context, versionID int64) ([]int64, error)
}
