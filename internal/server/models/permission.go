package models

import "time"

// PermissionStatus is the authorization state of a (user, secret) pair.
type PermissionStatus string

const (
	PermissionPending  PermissionStatus = "pending"
	PermissionApproved PermissionStatus = "approved"
	PermissionRejected PermissionStatus = "rejected"
)

// AccessPermission is the single authorization row per (UserID, SecretID).
// A re-invitation after rejection flips the same row back to pending; a new
// row is never created for an existing pair.
type AccessPermission struct {
	ID                  int64
	SecretID            int64
	UserID              int64
	Status              PermissionStatus
	InvitedBy           int64
	InvitedAt           time.Time
	RespondedAt         *time.Time
	GrantOperationID    *int64
	ResponseOperationID *int64
	CreatedAt           time.Time
	UpdatedAt           time.Time
}
