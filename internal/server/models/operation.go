package models

import "time"

// OperationType enumerates the auditable state-changing actions.
type OperationType string

const (
	OpCreateSecret  OperationType = "create_secret"
	OpUpdateSecret  OperationType = "update_secret"
	OpRotateKey     OperationType = "rotate_key"
	OpAddUserKey    OperationType = "add_user_key"
	OpRevokeUserKey OperationType = "revoke_user_key"
	OpGrantAccess   OperationType = "grant_access"
	OpRevokeAccess  OperationType = "revoke_access"
	OpAccessSecret  OperationType = "access_secret"
	OpDeleteSecret  OperationType = "delete_secret"
	OpRestoreSecret OperationType = "restore_secret"
)

// Operation is one immutable audit record. The log is append-only: nothing
// updates or deletes rows, and a restore is itself a new Operation rather
// than a mutation of history. The access ledger's current state is
// derivable by replaying these records.
type Operation struct {
	ID              int64
	Type            OperationType
	UserID          int64
	TargetUserID    *int64
	UserKeyID       *int64
	SecretID        *int64
	SecretVersionID *int64
	Details         map[string]any
	IPAddress       string
	UserAgent       string
	CreatedAt       time.Time
}

// Provenance carries request-level caller attribution into the audit log.
type Provenance struct {
	IPAddress string
	UserAgent string
}
