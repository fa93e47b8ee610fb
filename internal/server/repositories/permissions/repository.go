package permissions

import (
	"context"

	"github.com/dmitrijs2005/secretvault/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, perm *models.AccessPermission) (*models.AccessPermission, error)
	GetByID(ctx context.Context, id int64) (*models.AccessPermission, error)
	GetByUserAndSecret(ctx context.Context, userID, secretID int64) (*models.AccessPermission, error)
	// UpdateStatus transitions the row to status and stamps responded_at
	// plus the operation reference.
	UpdateStatus(ctx context.Context, id int64, status models.PermissionStatus, responseOpID int64) error
	// Reinvite flips an existing (user, secret) row back to pending with a
	// new inviter; the unique constraint means re-invitation reuses the
	// row, never creates a duplicate.
	Reinvite(ctx context.Context, id, invitedBy, grantOpID int64) error
	ListBySecret(ctx context.Context, secretID int64) ([]*models.AccessPermission, error)
	// ApprovedUserIDs returns users whose permission on the secret is
	// approved; this is the fan-out recipient set.
	ApprovedUserIDs(ctx context.Context, secretID int64) ([]int64, error)
	CountApproved(ctx context.Context, secretID int64) (int64, error)
	Delete(ctx context.Context, id int64) error
}
