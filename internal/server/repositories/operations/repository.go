package operations

import (
	"context"

	"github.com/dmitrijs2005/secretvault/internal/server/models"
)

// Repository is append-only by design: there is no update or delete. The
// audit log is the source of truth for "who did what, when".
type Repository interface {
	Create(ctx context.Context, op *models.Operation) (*models.Operation, error)
	ListBySecret(ctx context.Context, secretID int64) ([]*models.Operation, error)
	ListAll(ctx context.Context) ([]*models.Operation, error)
}
