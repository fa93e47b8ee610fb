package httpapi

import (
	"context"

	"github.com/dmitrijs2005/secretvault/internal/server/models"
	"github.com/dmitrijs2005/secretvault/internal/server/services"
)

// The handler layer depends on narrow interfaces instead of the concrete
// services so tests can substitute fakes.

type UserAPI interface {
	Register(ctx context.Context, username, publicKeyPEM string, prov models.Provenance) (*models.User, *models.UserKey, string, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}

type KeyAPI interface {
	RegisterKey(ctx context.Context, userID int64, publicKeyPEM, name string, prov models.Provenance) (*models.UserKey, error)
	RevokeKey(ctx context.Context, actorID int64, keyID string, prov models.Provenance) error
	ActiveKeysFor(ctx context.Context, userID int64) ([]*models.UserKey, error)
}

type SecretAPI interface {
	CreateSecret(ctx context.Context, creatorID int64, name, description string, metadata models.Metadata, entries []services.CiphertextEntry, prov models.Provenance) (*models.Secret, error)
	CreateVersion(ctx context.Context, uid string, actorID int64, metadata models.Metadata, entries []services.CiphertextEntry, prov models.Provenance) (*models.SecretVersion, error)
	GetSecret(ctx context.Context, uid string, callerID int64) (*models.Secret, error)
	ListSecrets(ctx context.Context, callerID int64) ([]*models.Secret, error)
	GetEncryptedData(ctx context.Context, uid string, callerID, version int64, prov models.Provenance) (*models.EncryptedSecretData, int64, error)
	ListRecipientKeys(ctx context.Context, uid string, callerID int64) ([]*services.RecipientKeys, error)
	SubmitReencrypted(ctx context.Context, uid string, actorID int64, targetUsername string, version int64, entries []services.CiphertextEntry, prov models.Provenance) (int, error)
	DeleteSecret(ctx context.Context, uid string, actorID int64, prov models.Provenance) error
	RestoreSecret(ctx context.Context, uid string, actorID int64, prov models.Provenance) error
}

type AccessAPI interface {
	Invite(ctx context.Context, uid string, inviterID int64, inviteeUsername string, prov models.Provenance) (*models.AccessPermission, error)
	Approve(ctx context.Context, permissionID, actorID int64, prov models.Provenance) (*models.AccessPermission, error)
	Reject(ctx context.Context, permissionID, actorID int64, prov models.Provenance) (*models.AccessPermission, error)
	Revoke(ctx context.Context, permissionID, actorID int64, prov models.Provenance) error
	ListPermissions(ctx context.Context, uid string, callerID int64) ([]*models.AccessPermission, error)
}

type AuditAPI interface {
	ListForSecret(ctx context.Context, secretID int64) ([]*models.Operation, error)
	Export(ctx context.Context) (string, error)
}
