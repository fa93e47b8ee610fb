package userkeys

import (
	"context"

	"github.com/dmitrijs2005/secretvault/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, key *models.UserKey) (*models.UserKey, error)
	GetByKeyID(ctx context.Context, keyID string) (*models.UserKey, error)
	// ActiveByUserID returns the user's keys that are usable as encryption
	// targets: active, not revoked, not expired.
	ActiveByUserID(ctx context.Context, userID int64) ([]*models.UserKey, error)
	// Revoke marks the key inactive and stamps revoked_at. Revoking an
	// already-revoked key affects zero rows and is not an error.
	Revoke(ctx context.Context, keyID string) (*models.UserKey, error)
	TouchLastUsed(ctx context.Context, id int64) error
}
