package services

import (
	"context"
	"errors"
	"testing"

	"github.com/dmitrijs2005/secretvault/internal/common"
	"github.com/dmitrijs2005/secretvault/internal/server/models"
	"github.com/google/uuid"
)

// testPublicKeyPEM is generated once; 4096-bit generation per test is too
// slow and the registry does not care about modulus size.
var testPublicKeyPEM = newTestPublicKeyPEM()

func TestRegisterKey_Success(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectCommit()

	rm := newFakeRepoManager()
	s := NewKeyService(db, rm, testLogger())

	key, err := s.RegisterKey(context.Background(), 1, testPublicKeyPEM, "laptop", testProv)
	if err != nil {
		t.Fatalf("RegisterKey error: %v", err)
	}
	if _, err := uuid.Parse(key.KeyID); err != nil {
		t.Fatalf("key id is not a uuid: %q", key.KeyID)
	}
	if !key.IsActive {
		t.Fatal("new key must be active")
	}
	if got := rm.operations.lastType(); got != models.OpAddUserKey {
		t.Fatalf("want add_user_key operation, got %q", got)
	}
}

func TestRegisterKey_RejectsBadPEM(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	s := NewKeyService(db, newFakeRepoManager(), testLogger())

	_, err := s.RegisterKey(context.Background(), 1, "not a key", "laptop", testProv)
	if !errors.Is(err, common.ErrValidation) {
		t.Fatalf("want ErrValidation, got %v", err)
	}
}

func TestRevokeKey_ForeignKeyLooksLikeMissing(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	rm := newFakeRepoManager()
	key := rm.userKeys.add(1, uuid.NewString(), true)

	s := NewKeyService(db, rm, testLogger())

	// someone else's key id must answer exactly like an unknown one, so
	// probing cannot confirm the key exists
	err := s.RevokeKey(context.Background(), 2, key.KeyID, testProv)
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	unknown := s.RevokeKey(context.Background(), 2, uuid.NewString(), testProv)
	if !errors.Is(unknown, common.ErrNotFound) || err.Error() != unknown.Error() {
		t.Fatalf("foreign and unknown key must be indistinguishable: %v vs %v", err, unknown)
	}
	if key.RevokedAt != nil {
		t.Fatal("foreign revoke must not touch the key")
	}
}

func TestRevokeKey_Idempotent(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectCommit()

	rm := newFakeRepoManager()
	key := rm.userKeys.add(1, uuid.NewString(), true)

	s := NewKeyService(db, rm, testLogger())

	if err := s.RevokeKey(context.Background(), 1, key.KeyID, testProv); err != nil {
		t.Fatalf("first RevokeKey error: %v", err)
	}
	if key.RevokedAt == nil || key.IsActive {
		t.Fatalf("key not revoked: %+v", key)
	}
	opCount := len(rm.operations.ops)

	// second revoke: no error, no new operation
	if err := s.RevokeKey(context.Background(), 1, key.KeyID, testProv); err != nil {
		t.Fatalf("second RevokeKey error: %v", err)
	}
	if len(rm.operations.ops) != opCount {
		t.Fatal("idempotent revoke must not append operations")
	}
}

func TestActiveKeysFor_ExcludesRevoked(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	rm := newFakeRepoManager()
	active := rm.userKeys.add(1, uuid.NewString(), true)
	rm.userKeys.add(1, uuid.NewString(), false)

	s := NewKeyService(db, rm, testLogger())

	keys, err := s.ActiveKeysFor(context.Background(), 1)
	if err != nil {
		t.Fatalf("ActiveKeysFor error: %v", err)
	}
	if len(keys) != 1 || keys[0].KeyID != active.KeyID {
		t.Fatalf("unexpected keys: %+v", keys)
	}
}
