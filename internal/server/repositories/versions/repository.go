package versions

import (
	"context"

	"github.com/dmitrijs2005/secretvault/internal/server/models"
)

type Repository interface {
	// Create inserts the next version row. A duplicate (secret_id, version)
	// or a serialization failure is reported as common.ErrVersionConflict:
	// at most one caller wins a given version number, losers must re-read
	// the latest version and retry.
	Create(ctx context.Context, version *models.SecretVersion) (*models.SecretVersion, error)
	MaxVersion(ctx context.Context, secretID int64) (int64, error)
	GetByVersion(ctx context.Context, secretID, version int64) (*models.SecretVersion, error)
	ListBySecret(ctx context.Context, secretID int64) ([]*models.SecretVersion, error)
}
