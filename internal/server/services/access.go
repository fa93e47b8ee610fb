package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/secretvault/internal/common"
	"github.com/dmitrijs2005/secretvault/internal/dbx"
	"github.com/dmitrijs2005/secretvault/internal/logging"
	"github.com/dmitrijs2005/secretvault/internal/server/models"
	"github.com/dmitrijs2005/secretvault/internal/server/repositories/repomanager"
)

// AccessService is the access-control ledger: it owns the pending ->
// {approved, rejected} state machine and its transition history.
//
// Revocation is deliberately non-retroactive: ciphertext issued for past
// versions stays with the revoked holder until the secret is rotated to a
// new version. Flagged for security review; do not "fix" silently.
type AccessService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
}

func NewAccessService(db *sql.DB, m repomanager.RepositoryManager, l logging.Logger) *AccessService {
	return &AccessService{db: db, repomanager: m, logger: l.With("module", "access")}
}

// Invite creates (or re-opens) the invitee's pending permission on the
// secret. The inviter must already hold approved status. A pair that was
// rejected before is flipped back to pending on the same row; a pending or
// approved pair cannot be invited again.
func (s *AccessService) Invite(ctx context.Context, uid string, inviterID int64, inviteeUsername string, prov models.Provenance) (*models.AccessPermission, error) {
	secret, err := s.visibleSecretForAdmin(ctx, uid, inviterID)
	if err != nil {
		return nil, err
	}

	invitee, err := s.repomanager.Users(s.db).GetByUsername(ctx, inviteeUsername)
	if err != nil {
		return nil, err
	}

	existing, err := s.repomanager.Permissions(s.db).GetByUserAndSecret(ctx, invitee.ID, secret.ID)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}
	if existing != nil && existing.Status != models.PermissionRejected {
		return nil, fmt.Errorf("%w: user already invited", common.ErrConflict)
	}

	var perm *models.AccessPermission
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		op, err := s.repomanager.Operations(tx).Create(ctx, &models.Operation{
			Type:         models.OpGrantAccess,
			UserID:       inviterID,
			TargetUserID: &invitee.ID,
			SecretID:     &secret.ID,
			Details:      map[string]any{"action": "invite"},
			IPAddress:    prov.IPAddress,
			UserAgent:    prov.UserAgent,
		})
		if err != nil {
			return err
		}

		if existing != nil {
			if err := s.repomanager.Permissions(tx).Reinvite(ctx, existing.ID, inviterID, op.ID); err != nil {
				return err
			}
			perm, err = s.repomanager.Permissions(tx).GetByID(ctx, existing.ID)
			return err
		}

		perm, err = s.repomanager.Permissions(tx).Create(ctx, &models.AccessPermission{
			SecretID:         secret.ID,
			UserID:           invitee.ID,
			Status:           models.PermissionPending,
			InvitedBy:        inviterID,
			GrantOperationID: &op.ID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "access invited", "uid", uid, "invitee", inviteeUsername)
	return perm, nil
}

// Approve transitions the invitee's own pending permission to approved.
// Ciphertext for existing versions only appears once an authorized holder
// runs the re-encryption protocol for the new recipient; approval alone
// cannot produce it because the server cannot decrypt.
func (s *AccessService) Approve(ctx context.Context, permissionID, actorID int64, prov models.Provenance) (*models.AccessPermission, error) {
	return s.respond(ctx, permissionID, actorID, models.PermissionApproved, prov)
}

// Reject transitions the invitee's own pending permission to rejected.
func (s *AccessService) Reject(ctx context.Context, permissionID, actorID int64, prov models.Provenance) (*models.AccessPermission, error) {
	return s.respond(ctx, permissionID, actorID, models.PermissionRejected, prov)
}

func (s *AccessService) respond(ctx context.Context, permissionID, actorID int64, status models.PermissionStatus, prov models.Provenance) (*models.AccessPermission, error) {
	perm, err := s.repomanager.Permissions(s.db).GetByID(ctx, permissionID)
	if err != nil {
		return nil, err
	}
	if perm.UserID != actorID {
		// only the invitee may answer their own invite; do not reveal whose it is
		return nil, common.ErrNotFound
	}
	if perm.Status != models.PermissionPending {
		return nil, fmt.Errorf("%w: invite already answered", common.ErrConflict)
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		op, err := s.repomanager.Operations(tx).Create(ctx, &models.Operation{
			Type:         models.OpGrantAccess,
			UserID:       actorID,
			TargetUserID: &perm.UserID,
			SecretID:     &perm.SecretID,
			Details:      map[string]any{"action": "respond", "status": string(status)},
			IPAddress:    prov.IPAddress,
			UserAgent:    prov.UserAgent,
		})
		if err != nil {
			return err
		}
		return s.repomanager.Permissions(tx).UpdateStatus(ctx, perm.ID, status, op.ID)
	})
	if err != nil {
		return nil, err
	}

	return s.repomanager.Permissions(s.db).GetByID(ctx, perm.ID)
}

// Revoke removes a permission. Only an approved holder of the same secret
// may revoke, and revoking the last approved permission is rejected: a
// secret must never be left without anyone able to read and re-share it.
// The guard count and the delete share one SERIALIZABLE transaction, so two
// concurrent revokes cannot both see two remaining holders and strand the
// secret; the loser gets a retryable conflict.
func (s *AccessService) Revoke(ctx context.Context, permissionID, actorID int64, prov models.Provenance) error {
	target, err := s.repomanager.Permissions(s.db).GetByID(ctx, permissionID)
	if err != nil {
		return err
	}
	if err := s.requireApproved(ctx, target.SecretID, actorID); err != nil {
		return err
	}

	err = dbx.WithSerializableTx(ctx, s.db, func(ctx context.Context, tx dbx.DBTX) error {
		perm, err := s.repomanager.Permissions(tx).GetByID(ctx, permissionID)
		if err != nil {
			return err
		}
		if perm.Status == models.PermissionApproved {
			approved, err := s.repomanager.Permissions(tx).CountApproved(ctx, perm.SecretID)
			if err != nil {
				return err
			}
			if approved <= 1 {
				return common.ErrLastAdministrator
			}
		}

		if err := s.repomanager.Permissions(tx).Delete(ctx, perm.ID); err != nil {
			return err
		}
		_, err = s.repomanager.Operations(tx).Create(ctx, &models.Operation{
			Type:         models.OpRevokeAccess,
			UserID:       actorID,
			TargetUserID: &perm.UserID,
			SecretID:     &perm.SecretID,
			Details:      map[string]any{"permission_id": perm.ID},
			IPAddress:    prov.IPAddress,
			UserAgent:    prov.UserAgent,
		})
		return err
	})
	if dbx.IsSerializationFailure(err) {
		return fmt.Errorf("%w: concurrent permission change, retry", common.ErrConflict)
	}
	return err
}

// ListPermissions returns the ledger rows of a secret the caller can see.
func (s *AccessService) ListPermissions(ctx context.Context, uid string, callerID int64) ([]*models.AccessPermission, error) {
	secret, err := s.visibleSecretForAdmin(ctx, uid, callerID)
	if err != nil {
		return nil, err
	}
	return s.repomanager.Permissions(s.db).ListBySecret(ctx, secret.ID)
}

func (s *AccessService) visibleSecretForAdmin(ctx context.Context, uid string, userID int64) (*models.Secret, error) {
	secret, err := s.repomanager.Secrets(s.db).GetByUID(ctx, uid, false)
	if err != nil {
		return nil, err
	}
	if err := s.requireApproved(ctx, secret.ID, userID); err != nil {
		return nil, err
	}
	return secret, nil
}

func (s *AccessService) requireApproved(ctx context.Context, secretID, userID int64) error {
	perm, err := s.repomanager.Permissions(s.db).GetByUserAndSecret(ctx, userID, secretID)
	if err != nil {
		return err
	}
	if perm.Status != models.PermissionApproved {
		return common.ErrNotFound
	}
	return nil
}
