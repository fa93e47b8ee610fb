package services

import (
	"context"
	"database/sql"
	"errors"

	"github.com/dmitrijs2005/secretvault/internal/common"
	"github.com/dmitrijs2005/secretvault/internal/cryptox"
	"github.com/dmitrijs2005/secretvault/internal/dbx"
	"github.com/dmitrijs2005/secretvault/internal/logging"
	"github.com/dmitrijs2005/secretvault/internal/server/models"
	"github.com/dmitrijs2005/secretvault/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// KeyService is the key registry: it owns public-key lifecycle for users.
// Multiple simultaneously active keys per user are allowed. Revocation only
// stops a key from being a target for new ciphertext; data already
// encrypted under it stays valid for whoever holds the private key.
type KeyService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
}

func NewKeyService(db *sql.DB, m repomanager.RepositoryManager, l logging.Logger) *KeyService {
	return &KeyService{db: db, repomanager: m, logger: l.With("module", "keys")}
}

// RegisterKey adds a new active key for the user, independent of any
// existing keys, and records add_user_key.
func (s *KeyService) RegisterKey(ctx context.Context, userID int64, publicKeyPEM, name string, prov models.Provenance) (*models.UserKey, error) {
	if _, err := cryptox.ParsePublicKey(publicKeyPEM); err != nil {
		return nil, err
	}

	key := &models.UserKey{
		UserID:    userID,
		KeyID:     uuid.NewString(),
		Name:      name,
		PublicKey: publicKeyPEM,
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := s.repomanager.UserKeys(tx).Create(ctx, key); err != nil {
			return err
		}
		_, err := s.repomanager.Operations(tx).Create(ctx, &models.Operation{
			Type:      models.OpAddUserKey,
			UserID:    userID,
			UserKeyID: &key.ID,
			Details:   map[string]any{"key_id": key.KeyID, "name": name},
			IPAddress: prov.IPAddress,
			UserAgent: prov.UserAgent,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "key registered", "user_id", userID, "key_id", key.KeyID)
	return key, nil
}

// RevokeKey marks the key revoked and inactive. Only the owner may revoke.
// Revoking an already-revoked key is a no-op, not an error.
func (s *KeyService) RevokeKey(ctx context.Context, actorID int64, keyID string, prov models.Provenance) error {
	key, err := s.repomanager.UserKeys(s.db).GetByKeyID(ctx, keyID)
	if err != nil {
		return err
	}
	if key.UserID != actorID {
		// another user's key must be indistinguishable from a missing one
		return common.ErrNotFound
	}
	if key.RevokedAt != nil {
		return nil // idempotent
	}

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		revoked, err := s.repomanager.UserKeys(tx).Revoke(ctx, keyID)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return nil // lost a race with another revoke; same outcome
			}
			return err
		}
		_, err = s.repomanager.Operations(tx).Create(ctx, &models.Operation{
			Type:      models.OpRevokeUserKey,
			UserID:    actorID,
			UserKeyID: &revoked.ID,
			Details:   map[string]any{"key_id": keyID},
			IPAddress: prov.IPAddress,
			UserAgent: prov.UserAgent,
		})
		return err
	})
}

// ActiveKeysFor returns the user's usable encryption-target keys.
func (s *KeyService) ActiveKeysFor(ctx context.Context, userID int64) ([]*models.UserKey, error) {
	return s.repomanager.UserKeys(s.db).ActiveByUserID(ctx, userID)
}
