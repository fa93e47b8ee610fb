package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/secretvault/internal/common"
	"github.com/dmitrijs2005/secretvault/internal/dbx"
	"github.com/dmitrijs2005/secretvault/internal/logging"
	"github.com/dmitrijs2005/secretvault/internal/server/models"
	"github.com/dmitrijs2005/secretvault/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// CiphertextEntry is one submitted ciphertext blob, addressed by the uuid of
// the recipient key it was encrypted under. The key uuid alone identifies
// the recipient: a key belongs to exactly one user.
type CiphertextEntry struct {
	KeyID         string
	EncryptedData string
}

// RecipientKeys groups one approved recipient with their usable keys; the
// client uses it to fan out encryption before pushing a version.
type RecipientKeys struct {
	UserID   int64
	Username string
	Keys     []*models.UserKey
}

// SecretService owns secret identity, the version chain, and the recipient
// ciphertext fan-out. The server only ever handles opaque ciphertext; every
// plaintext operation happens on a client.
type SecretService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
}

func NewSecretService(db *sql.DB, m repomanager.RepositoryManager, l logging.Logger) *SecretService {
	return &SecretService{db: db, repomanager: m, logger: l.With("module", "secrets")}
}

// CreateSecret atomically creates the secret identity, version 1, one
// ciphertext row per active creator key, and the creator's approved
// permission. This is the only path that brings a secret into existence
// with zero prior access grants.
func (s *SecretService) CreateSecret(ctx context.Context, creatorID int64, name, description string, metadata models.Metadata, entries []CiphertextEntry, prov models.Provenance) (*models.Secret, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name required", common.ErrValidation)
	}
	if err := metadata.Validate(); err != nil {
		return nil, err
	}

	activeKeys, err := s.repomanager.UserKeys(s.db).ActiveByUserID(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	if len(activeKeys) == 0 {
		return nil, fmt.Errorf("%w: no active keys registered", common.ErrValidation)
	}
	coverage, err := matchEntriesToKeys(entries, activeKeys)
	if err != nil {
		return nil, err
	}

	secret := &models.Secret{UID: uuid.NewString(), Name: name, Description: description}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := s.repomanager.Secrets(tx).Create(ctx, secret); err != nil {
			return err
		}

		version := &models.SecretVersion{SecretID: secret.ID, Version: 1, Metadata: metadata}
		if _, err := s.repomanager.Versions(tx).Create(ctx, version); err != nil {
			return err
		}

		for key, data := range coverage {
			if _, err := s.repomanager.Ciphertexts(tx).Create(ctx, &models.EncryptedSecretData{
				SecretVersionID: version.ID,
				UserID:          key.UserID,
				UserKeyID:       key.ID,
				EncryptedData:   data,
			}); err != nil {
				return err
			}
		}

		op, err := s.repomanager.Operations(tx).Create(ctx, &models.Operation{
			Type:            models.OpCreateSecret,
			UserID:          creatorID,
			SecretID:        &secret.ID,
			SecretVersionID: &version.ID,
			Details:         map[string]any{"name": name},
			IPAddress:       prov.IPAddress,
			UserAgent:       prov.UserAgent,
		})
		if err != nil {
			return err
		}

		_, err = s.repomanager.Permissions(tx).Create(ctx, &models.AccessPermission{
			SecretID:         secret.ID,
			UserID:           creatorID,
			Status:           models.PermissionApproved,
			InvitedBy:        creatorID,
			GrantOperationID: &op.ID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	secret.LatestVersion = 1
	s.logger.Info(ctx, "secret created", "uid", secret.UID, "name", name)
	return secret, nil
}

// CreateVersion appends the next version to the chain. The version number is
// assigned as max(existing)+1 inside a SERIALIZABLE transaction; at most one
// of N concurrent callers wins a given number, the rest observe
// ErrVersionConflict and must retry after re-reading the latest version.
// The same transaction stores one ciphertext row per approved recipient per
// active key, so a version is never observable without full coverage.
func (s *SecretService) CreateVersion(ctx context.Context, uid string, actorID int64, metadata models.Metadata, entries []CiphertextEntry, prov models.Provenance) (*models.SecretVersion, error) {
	if err := metadata.Validate(); err != nil {
		return nil, err
	}

	secret, err := s.visibleSecret(ctx, uid, actorID)
	if err != nil {
		return nil, err
	}

	required, err := s.requiredCoverage(ctx, secret.ID)
	if err != nil {
		return nil, err
	}
	coverage, err := matchEntriesToKeys(entries, required)
	if err != nil {
		return nil, err
	}

	version := &models.SecretVersion{SecretID: secret.ID, Metadata: metadata}

	err = dbx.WithSerializableTx(ctx, s.db, func(ctx context.Context, tx dbx.DBTX) error {
		max, err := s.repomanager.Versions(tx).MaxVersion(ctx, secret.ID)
		if err != nil {
			return err
		}
		version.Version = max + 1

		if _, err := s.repomanager.Versions(tx).Create(ctx, version); err != nil {
			return err
		}

		for key, data := range coverage {
			if _, err := s.repomanager.Ciphertexts(tx).Create(ctx, &models.EncryptedSecretData{
				SecretVersionID: version.ID,
				UserID:          key.UserID,
				UserKeyID:       key.ID,
				EncryptedData:   data,
			}); err != nil {
				return err
			}
		}

		_, err = s.repomanager.Operations(tx).Create(ctx, &models.Operation{
			Type:            models.OpUpdateSecret,
			UserID:          actorID,
			SecretID:        &secret.ID,
			SecretVersionID: &version.ID,
			Details:         map[string]any{"version": version.Version},
			IPAddress:       prov.IPAddress,
			UserAgent:       prov.UserAgent,
		})
		return err
	})
	if err != nil {
		if dbx.IsSerializationFailure(err) {
			return nil, common.ErrVersionConflict
		}
		return nil, err
	}

	s.logger.Info(ctx, "version created", "uid", uid, "version", version.Version)
	return version, nil
}

// GetSecret returns the secret if the caller holds an approved permission.
// Missing secret and missing permission are indistinguishable.
func (s *SecretService) GetSecret(ctx context.Context, uid string, callerID int64) (*models.Secret, error) {
	return s.visibleSecret(ctx, uid, callerID)
}

// ListSecrets returns every non-deleted secret the caller can read.
func (s *SecretService) ListSecrets(ctx context.Context, callerID int64) ([]*models.Secret, error) {
	return s.repomanager.Secrets(s.db).ListVisible(ctx, callerID)
}

// GetEncryptedData serves the caller's own ciphertext for the requested
// version (0 selects the latest) and records an access_secret operation.
func (s *SecretService) GetEncryptedData(ctx context.Context, uid string, callerID, versionNumber int64, prov models.Provenance) (*models.EncryptedSecretData, int64, error) {
	secret, err := s.visibleSecret(ctx, uid, callerID)
	if err != nil {
		return nil, 0, err
	}
	if versionNumber == 0 {
		versionNumber = secret.LatestVersion
	}

	version, err := s.repomanager.Versions(s.db).GetByVersion(ctx, secret.ID, versionNumber)
	if err != nil {
		return nil, 0, err
	}

	data, err := s.repomanager.Ciphertexts(s.db).GetForUser(ctx, version.ID, callerID)
	if err != nil {
		return nil, 0, err
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.UserKeys(tx).TouchLastUsed(ctx, data.UserKeyID); err != nil {
			return err
		}
		_, err := s.repomanager.Operations(tx).Create(ctx, &models.Operation{
			Type:            models.OpAccessSecret,
			UserID:          callerID,
			SecretID:        &secret.ID,
			SecretVersionID: &version.ID,
			IPAddress:       prov.IPAddress,
			UserAgent:       prov.UserAgent,
		})
		return err
	})
	if err != nil {
		return nil, 0, err
	}

	return data, version.Version, nil
}

// ListRecipientKeys returns, for every approved recipient of the secret,
// the keys a pushed version must be encrypted under.
func (s *SecretService) ListRecipientKeys(ctx context.Context, uid string, callerID int64) ([]*RecipientKeys, error) {
	secret, err := s.visibleSecret(ctx, uid, callerID)
	if err != nil {
		return nil, err
	}

	userIDs, err := s.repomanager.Permissions(s.db).ApprovedUserIDs(ctx, secret.ID)
	if err != nil {
		return nil, err
	}

	var result []*RecipientKeys
	for _, userID := range userIDs {
		user, err := s.repomanager.Users(s.db).GetByID(ctx, userID)
		if err != nil {
			return nil, err
		}
		keys, err := s.repomanager.UserKeys(s.db).ActiveByUserID(ctx, userID)
		if err != nil {
			return nil, err
		}
		if len(keys) == 0 {
			s.logger.Warn(ctx, "approved recipient has no active keys", "uid", uid, "username", user.Username)
		}
		result = append(result, &RecipientKeys{UserID: userID, Username: user.Username, Keys: keys})
	}
	return result, nil
}

// SubmitReencrypted stores re-encrypted ciphertext produced by an authorized
// holder for a target user: the final step of the re-encryption protocol.
// The actor must be approved; the target must hold a pending or approved
// permission and own every addressed key. Submissions are idempotent; an
// existing row for a (version, user, key) triple is never overwritten.
// A self-targeted submission is a key rotation and is audited as such.
func (s *SecretService) SubmitReencrypted(ctx context.Context, uid string, actorID int64, targetUsername string, versionNumber int64, entries []CiphertextEntry, prov models.Provenance) (int, error) {
	secret, err := s.visibleSecret(ctx, uid, actorID)
	if err != nil {
		return 0, err
	}

	target, err := s.repomanager.Users(s.db).GetByUsername(ctx, targetUsername)
	if err != nil {
		return 0, err
	}

	if target.ID != actorID {
		perm, err := s.repomanager.Permissions(s.db).GetByUserAndSecret(ctx, target.ID, secret.ID)
		if err != nil {
			return 0, err
		}
		if perm.Status == models.PermissionRejected {
			return 0, fmt.Errorf("%w: target rejected access", common.ErrPermissionDenied)
		}
	}

	if versionNumber == 0 {
		versionNumber = secret.LatestVersion
	}
	version, err := s.repomanager.Versions(s.db).GetByVersion(ctx, secret.ID, versionNumber)
	if err != nil {
		return 0, err
	}

	targetKeys, err := s.repomanager.UserKeys(s.db).ActiveByUserID(ctx, target.ID)
	if err != nil {
		return 0, err
	}
	keysByID := make(map[string]*models.UserKey, len(targetKeys))
	for _, k := range targetKeys {
		keysByID[k.KeyID] = k
	}

	opType := models.OpGrantAccess
	if target.ID == actorID {
		opType = models.OpRotateKey
	}

	stored := 0
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for _, entry := range entries {
			key, ok := keysByID[entry.KeyID]
			if !ok {
				return fmt.Errorf("%w: key %s is not an active key of %s", common.ErrValidation, entry.KeyID, targetUsername)
			}
			if entry.EncryptedData == "" {
				return fmt.Errorf("%w: empty ciphertext", common.ErrValidation)
			}
			created, err := s.repomanager.Ciphertexts(tx).Create(ctx, &models.EncryptedSecretData{
				SecretVersionID: version.ID,
				UserID:          target.ID,
				UserKeyID:       key.ID,
				EncryptedData:   entry.EncryptedData,
			})
			if err != nil {
				return err
			}
			if created {
				stored++
			}
		}

		_, err := s.repomanager.Operations(tx).Create(ctx, &models.Operation{
			Type:            opType,
			UserID:          actorID,
			TargetUserID:    &target.ID,
			SecretID:        &secret.ID,
			SecretVersionID: &version.ID,
			Details:         map[string]any{"action": "reencrypt", "stored": stored},
			IPAddress:       prov.IPAddress,
			UserAgent:       prov.UserAgent,
		})
		return err
	})
	if err != nil {
		return 0, err
	}

	return stored, nil
}

// DeleteSecret soft-deletes the secret. Permissions are retained so a
// restore returns the secret to its prior access state; the deletion itself
// is recorded as an operation.
func (s *SecretService) DeleteSecret(ctx context.Context, uid string, actorID int64, prov models.Provenance) error {
	secret, err := s.visibleSecret(ctx, uid, actorID)
	if err != nil {
		return err
	}

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Secrets(tx).SoftDelete(ctx, secret.ID); err != nil {
			return err
		}
		_, err := s.repomanager.Operations(tx).Create(ctx, &models.Operation{
			Type:      models.OpDeleteSecret,
			UserID:    actorID,
			SecretID:  &secret.ID,
			IPAddress: prov.IPAddress,
			UserAgent: prov.UserAgent,
		})
		return err
	})
}

// RestoreSecret reverses a soft delete. History is never rewritten: the
// restore is a new operation, the delete operation stays in the log.
func (s *SecretService) RestoreSecret(ctx context.Context, uid string, actorID int64, prov models.Provenance) error {
	secret, err := s.repomanager.Secrets(s.db).GetByUID(ctx, uid, true)
	if err != nil {
		return err
	}
	if err := s.requireApproved(ctx, secret.ID, actorID); err != nil {
		return err
	}
	if secret.DeletedAt == nil {
		return nil // nothing to restore
	}

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Secrets(tx).Restore(ctx, secret.ID); err != nil {
			return err
		}
		_, err := s.repomanager.Operations(tx).Create(ctx, &models.Operation{
			Type:      models.OpRestoreSecret,
			UserID:    actorID,
			SecretID:  &secret.ID,
			IPAddress: prov.IPAddress,
			UserAgent: prov.UserAgent,
		})
		return err
	})
}

// visibleSecret resolves uid for a caller holding an approved permission.
// Both an unknown uid and a missing permission come back as ErrNotFound so
// responses do not leak which secrets exist.
func (s *SecretService) visibleSecret(ctx context.Context, uid string, callerID int64) (*models.Secret, error) {
	if _, err := uuid.Parse(uid); err != nil {
		return nil, fmt.Errorf("%w: malformed secret id", common.ErrValidation)
	}
	secret, err := s.repomanager.Secrets(s.db).GetByUID(ctx, uid, false)
	if err != nil {
		return nil, err
	}
	if err := s.requireApproved(ctx, secret.ID, callerID); err != nil {
		return nil, err
	}
	return secret, nil
}

func (s *SecretService) requireApproved(ctx context.Context, secretID, userID int64) error {
	perm, err := s.repomanager.Permissions(s.db).GetByUserAndSecret(ctx, userID, secretID)
	if err != nil {
		return err
	}
	if perm.Status != models.PermissionApproved {
		return common.ErrNotFound
	}
	return nil
}

// requiredCoverage collects every usable key of every approved recipient of
// the secret. Recipients with zero active keys are skipped: they stay
// pending in practice until they upload a key, and the access checks keep
// them from decrypting anything meanwhile.
func (s *SecretService) requiredCoverage(ctx context.Context, secretID int64) ([]*models.UserKey, error) {
	userIDs, err := s.repomanager.Permissions(s.db).ApprovedUserIDs(ctx, secretID)
	if err != nil {
		return nil, err
	}

	var keys []*models.UserKey
	for _, userID := range userIDs {
		userKeys, err := s.repomanager.UserKeys(s.db).ActiveByUserID(ctx, userID)
		if err != nil {
			return nil, err
		}
		if len(userKeys) == 0 {
			s.logger.Warn(ctx, "skipping recipient with no active keys", "user_id", userID)
			continue
		}
		keys = append(keys, userKeys...)
	}
	return keys, nil
}

// matchEntriesToKeys pairs submitted ciphertext entries with required keys.
// The entries must cover the key set exactly: a missing key means a version
// with incomplete fan-out, an unknown or duplicated key means a submission
// for something that is not a usable target.
func matchEntriesToKeys(entries []CiphertextEntry, required []*models.UserKey) (map[*models.UserKey]string, error) {
	now := time.Now()
	byKeyID := make(map[string]*models.UserKey, len(required))
	for _, k := range required {
		if !k.Usable(now) {
			continue
		}
		byKeyID[k.KeyID] = k
	}

	coverage := make(map[*models.UserKey]string, len(byKeyID))
	for _, entry := range entries {
		key, ok := byKeyID[entry.KeyID]
		if !ok {
			return nil, fmt.Errorf("%w: key %s is not a fan-out target", common.ErrValidation, entry.KeyID)
		}
		if _, dup := coverage[key]; dup {
			return nil, fmt.Errorf("%w: duplicate ciphertext for key %s", common.ErrValidation, entry.KeyID)
		}
		if entry.EncryptedData == "" {
			return nil, fmt.Errorf("%w: empty ciphertext for key %s", common.ErrValidation, entry.KeyID)
		}
		coverage[key] = entry.EncryptedData
	}

	if len(coverage) != len(byKeyID) {
		return nil, fmt.Errorf("%w: fan-out incomplete, got %d of %d required ciphertexts",
			common.ErrValidation, len(coverage), len(byKeyID))
	}
	return coverage, nil
}
