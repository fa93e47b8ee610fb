package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/secretvault/internal/common"
	"github.com/dmitrijs2005/secretvault/internal/cryptox"
	"github.com/dmitrijs2005/secretvault/internal/dbx"
	"github.com/dmitrijs2005/secretvault/internal/logging"
	"github.com/dmitrijs2005/secretvault/internal/server/auth"
	sc "github.com/dmitrijs2005/secretvault/internal/server/config"
	"github.com/dmitrijs2005/secretvault/internal/server/models"
	"github.com/dmitrijs2005/secretvault/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// UserService handles user registration and identity-token issuance.
type UserService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	config      *sc.Config
	logger      logging.Logger
}

func NewUserService(db *sql.DB, m repomanager.RepositoryManager, cfg *sc.Config, l logging.Logger) *UserService {
	return &UserService{db: db, repomanager: m, config: cfg, logger: l.With("module", "users")}
}

// Register creates a user together with their first active key in one
// transaction and records the add_user_key operation. Returns the created
// user, the key, and a signed identity token.
func (s *UserService) Register(ctx context.Context, username, publicKeyPEM string, prov models.Provenance) (*models.User, *models.UserKey, string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, nil, "", fmt.Errorf("%w: username required", common.ErrValidation)
	}
	if _, err := cryptox.ParsePublicKey(publicKeyPEM); err != nil {
		return nil, nil, "", err
	}

	user := &models.User{Username: username}
	key := &models.UserKey{KeyID: uuid.NewString(), PublicKey: publicKeyPEM}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		created, err := s.repomanager.Users(tx).Create(ctx, user)
		if err != nil {
			return err
		}
		user = created

		key.UserID = user.ID
		if _, err := s.repomanager.UserKeys(tx).Create(ctx, key); err != nil {
			return err
		}

		_, err = s.repomanager.Operations(tx).Create(ctx, &models.Operation{
			Type:      models.OpAddUserKey,
			UserID:    user.ID,
			UserKeyID: &key.ID,
			Details:   map[string]any{"key_id": key.KeyID, "initial": true},
			IPAddress: prov.IPAddress,
			UserAgent: prov.UserAgent,
		})
		return err
	})
	if err != nil {
		return nil, nil, "", err
	}

	token, err := auth.GenerateToken(user.ID, []byte(s.config.SecretKey), s.config.TokenValidityDuration)
	if err != nil {
		return nil, nil, "", common.ErrInternal
	}

	s.logger.Info(ctx, "user registered", "username", username, "user_id", user.ID)
	return user, key, token, nil
}

// Token mints a fresh identity token for an existing user.
func (s *UserService) Token(ctx context.Context, userID int64) (string, error) {
	if _, err := s.repomanager.Users(s.db).GetByID(ctx, userID); err != nil {
		return "", err
	}
	return auth.GenerateToken(userID, []byte(s.config.SecretKey), s.config.TokenValidityDuration)
}

// GetByUsername resolves a username to a user.
func (s *UserService) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.repomanager.Users(s.db).GetByUsername(ctx, username)
}
