package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrijs2005/secretvault/internal/common"
	"github.com/dmitrijs2005/secretvault/internal/server/models"
	"github.com/dmitrijs2005/secretvault/internal/server/services"
	"github.com/go-chi/chi/v5"
)

// --- wire DTOs ---

type ciphertextEntryDTO struct {
	KeyID         string `json:"keyId"`
	EncryptedData string `json:"encryptedData"`
}

type keyDTO struct {
	KeyID     string    `json:"keyId"`
	Name      string    `json:"name,omitempty"`
	PublicKey string    `json:"publicKey"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

type secretDTO struct {
	UID           string `json:"uid"`
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	LatestVersion int64  `json:"latestVersion"`
}

type permissionDTO struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"userId"`
	Status      string     `json:"status"`
	InvitedBy   int64      `json:"invitedBy,omitempty"`
	InvitedAt   time.Time  `json:"invitedAt"`
	RespondedAt *time.Time `json:"respondedAt,omitempty"`
}

func toEntries(dtos []ciphertextEntryDTO) []services.CiphertextEntry {
	entries := make([]services.CiphertextEntry, 0, len(dtos))
	for _, d := range dtos {
		entries = append(entries, services.CiphertextEntry{KeyID: d.KeyID, EncryptedData: d.EncryptedData})
	}
	return entries
}

func toKeyDTOs(keys []*models.UserKey) []keyDTO {
	result := make([]keyDTO, 0, len(keys))
	for _, k := range keys {
		result = append(result, keyDTO{
			KeyID: k.KeyID, Name: k.Name, PublicKey: k.PublicKey,
			IsActive: k.IsActive, CreatedAt: k.CreatedAt,
		})
	}
	return result
}

func toSecretDTO(s *models.Secret) secretDTO {
	return secretDTO{UID: s.UID, Name: s.Name, Description: s.Description, LatestVersion: s.LatestVersion}
}

func toPermissionDTO(p *models.AccessPermission) permissionDTO {
	return permissionDTO{
		ID: p.ID, UserID: p.UserID, Status: string(p.Status),
		InvitedBy: p.InvitedBy, InvitedAt: p.InvitedAt, RespondedAt: p.RespondedAt,
	}
}

// --- users and keys ---

func (s *Server) handleRegisterUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username  string `json:"username"`
		PublicKey string `json:"publicKey"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, key, token, err := s.users.Register(r.Context(), req.Username, req.PublicKey, provenance(r))
	if err != nil {
		s.logger.Error(r.Context(), "register user", "error", err.Error())
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":       user.ID,
		"username": user.Username,
		"keyId":    key.KeyID,
		"token":    token,
	})
}

func (s *Server) handleUserKeys(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	user, err := s.users.GetByUsername(r.Context(), username)
	if err != nil {
		writeError(w, err)
		return
	}
	keys, err := s.keys.ActiveKeysFor(r.Context(), user.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"username": user.Username, "keys": toKeyDTOs(keys)})
}

func (s *Server) handleRegisterKey(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PublicKey string `json:"publicKey"`
		Name      string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	key, err := s.keys.RegisterKey(r.Context(), callerID(r), req.PublicKey, req.Name, provenance(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toKeyDTOs([]*models.UserKey{key})[0])
}

func (s *Server) handleRevokeKey(w http.ResponseWriter, r *http.Request) {
	if err := s.keys.RevokeKey(r.Context(), callerID(r), chi.URLParam(r, "keyID"), provenance(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- secrets ---

func (s *Server) handleListSecrets(w http.ResponseWriter, r *http.Request) {
	list, err := s.secrets.ListSecrets(r.Context(), callerID(r))
	if err != nil {
		writeError(w, err)
		return
	}

	result := make([]secretDTO, 0, len(list))
	for _, secret := range list {
		result = append(result, toSecretDTO(secret))
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCreateSecret(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string               `json:"name"`
		Description string               `json:"description"`
		Metadata    models.Metadata      `json:"metadata"`
		Entries     []ciphertextEntryDTO `json:"entries"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	secret, err := s.secrets.CreateSecret(r.Context(), callerID(r),
		req.Name, req.Description, req.Metadata, toEntries(req.Entries), provenance(r))
	if err != nil {
		s.logger.Error(r.Context(), "create secret", "error", err.Error())
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toSecretDTO(secret))
}

func (s *Server) handleGetSecret(w http.ResponseWriter, r *http.Request) {
	secret, err := s.secrets.GetSecret(r.Context(), chi.URLParam(r, "uid"), callerID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSecretDTO(secret))
}

func (s *Server) handlePushVersion(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Metadata models.Metadata      `json:"metadata"`
		Entries  []ciphertextEntryDTO `json:"entries"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	version, err := s.secrets.CreateVersion(r.Context(), chi.URLParam(r, "uid"), callerID(r),
		req.Metadata, toEntries(req.Entries), provenance(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"version": version.Version})
}

func (s *Server) handleDeleteSecret(w http.ResponseWriter, r *http.Request) {
	if err := s.secrets.DeleteSecret(r.Context(), chi.URLParam(r, "uid"), callerID(r), provenance(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRestoreSecret(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")
	if err := s.secrets.RestoreSecret(r.Context(), uid, callerID(r), provenance(r)); err != nil {
		writeError(w, err)
		return
	}
	secret, err := s.secrets.GetSecret(r.Context(), uid, callerID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSecretDTO(secret))
}

func (s *Server) handleEncryptedData(w http.ResponseWriter, r *http.Request) {
	var version int64
	if v := r.URL.Query().Get("version"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil || parsed < 1 {
			writeError(w, fmt.Errorf("%w: version must be a positive integer", common.ErrValidation))
			return
		}
		version = parsed
	}

	data, resolvedVersion, err := s.secrets.GetEncryptedData(r.Context(), chi.URLParam(r, "uid"), callerID(r), version, provenance(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"encryptedData": data.EncryptedData,
		"version":       resolvedVersion,
	})
}

func (s *Server) handleRecipientKeys(w http.ResponseWriter, r *http.Request) {
	recipients, err := s.secrets.ListRecipientKeys(r.Context(), chi.URLParam(r, "uid"), callerID(r))
	if err != nil {
		writeError(w, err)
		return
	}

	type recipientDTO struct {
		Username string   `json:"username"`
		Keys     []keyDTO `json:"keys"`
	}
	result := make([]recipientDTO, 0, len(recipients))
	for _, rec := range recipients {
		result = append(result, recipientDTO{Username: rec.Username, Keys: toKeyDTOs(rec.Keys)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"recipients": result})
}

func (s *Server) handleReencrypt(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string               `json:"username"`
		Version  int64                `json:"version"`
		Entries  []ciphertextEntryDTO `json:"entries"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	stored, err := s.secrets.SubmitReencrypted(r.Context(), chi.URLParam(r, "uid"), callerID(r),
		req.Username, req.Version, toEntries(req.Entries), provenance(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"stored": stored})
}

// --- permissions ---

func (s *Server) handleInvite(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	perm, err := s.access.Invite(r.Context(), chi.URLParam(r, "uid"), callerID(r), req.Username, provenance(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPermissionDTO(perm))
}

func (s *Server) handleListPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := s.access.ListPermissions(r.Context(), chi.URLParam(r, "uid"), callerID(r))
	if err != nil {
		writeError(w, err)
		return
	}

	result := make([]permissionDTO, 0, len(perms))
	for _, p := range perms {
		result = append(result, toPermissionDTO(p))
	}
	writeJSON(w, http.StatusOK, result)
}

func permissionID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("%w: malformed permission id", common.ErrValidation)
	}
	return id, nil
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	s.handleRespond(w, r, s.access.Approve)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	s.handleRespond(w, r, s.access.Reject)
}

func (s *Server) handleRespond(w http.ResponseWriter, r *http.Request, respond func(ctx context.Context, permissionID, actorID int64, prov models.Provenance) (*models.AccessPermission, error)) {
	id, err := permissionID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	perm, err := respond(r.Context(), id, callerID(r), provenance(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPermissionDTO(perm))
}

func (s *Server) handleRevokePermission(w http.ResponseWriter, r *http.Request) {
	id, err := permissionID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := s.access.Revoke(r.Context(), id, callerID(r), provenance(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- audit ---

func (s *Server) handleOperations(w http.ResponseWriter, r *http.Request) {
	secret, err := s.secrets.GetSecret(r.Context(), chi.URLParam(r, "uid"), callerID(r))
	if err != nil {
		writeError(w, err)
		return
	}

	ops, err := s.audit.ListForSecret(r.Context(), secret.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	type operationDTO struct {
		ID        int64          `json:"id"`
		Type      string         `json:"type"`
		UserID    int64          `json:"userId"`
		TargetID  *int64         `json:"targetUserId,omitempty"`
		Details   map[string]any `json:"details,omitempty"`
		CreatedAt time.Time      `json:"createdAt"`
	}
	result := make([]operationDTO, 0, len(ops))
	for _, op := range ops {
		result = append(result, operationDTO{
			ID: op.ID, Type: string(op.Type), UserID: op.UserID,
			TargetID: op.TargetUserID, Details: op.Details, CreatedAt: op.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleExportOperations(w http.ResponseWriter, r *http.Request) {
	url, err := s.audit.Export(r.Context())
	if err != nil {
		s.logger.Error(r.Context(), "export operations", "error", err.Error())
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"url": url})
}
