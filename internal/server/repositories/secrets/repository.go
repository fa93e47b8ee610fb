package secrets

import (
	"context"

	"github.com/dmitrijs2005/secretvault/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, secret *models.Secret) (*models.Secret, error)
	// GetByUID returns the secret with its latest committed version number.
	// Soft-deleted secrets are only visible when includeDeleted is set.
	GetByUID(ctx context.Context, uid string, includeDeleted bool) (*models.Secret, error)
	// ListVisible returns non-deleted secrets the user holds an approved
	// permission on, with their latest version numbers.
	ListVisible(ctx context.Context, userID int64) ([]*models.Secret, error)
	SoftDelete(ctx context.Context, id int64) error
	Restore(ctx context.Context, id int64) error
}
