package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/secretvault/internal/common"
	"github.com/dmitrijs2005/secretvault/internal/server/auth"
	sc "github.com/dmitrijs2005/secretvault/internal/server/config"
)

func TestRegister_CreatesUserKeyAndToken(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectCommit()

	rm := newFakeRepoManager()
	cfg := &sc.Config{SecretKey: "test-secret", TokenValidityDuration: time.Hour}
	s := NewUserService(db, rm, cfg, testLogger())

	user, key, token, err := s.Register(context.Background(), "alice", testPublicKeyPEM, testProv)
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if user.ID == 0 || user.Username != "alice" {
		t.Fatalf("unexpected user: %+v", user)
	}
	if key.UserID != user.ID {
		t.Fatalf("key not bound to user: %+v", key)
	}

	gotID, err := auth.GetUserIDFromToken(token, []byte("test-secret"))
	if err != nil || gotID != user.ID {
		t.Fatalf("token does not resolve to user: id=%d err=%v", gotID, err)
	}

	if len(rm.operations.ops) != 1 {
		t.Fatalf("want one operation, got %d", len(rm.operations.ops))
	}
}

func TestRegister_EmptyUsername(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	cfg := &sc.Config{SecretKey: "k", TokenValidityDuration: time.Hour}
	s := NewUserService(db, newFakeRepoManager(), cfg, testLogger())

	_, _, _, err := s.Register(context.Background(), "  ", testPublicKeyPEM, testProv)
	if !errors.Is(err, common.ErrValidation) {
		t.Fatalf("want ErrValidation, got %v", err)
	}
}

func TestRegister_BadPublicKey(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	cfg := &sc.Config{SecretKey: "k", TokenValidityDuration: time.Hour}
	s := NewUserService(db, newFakeRepoManager(), cfg, testLogger())

	_, _, _, err := s.Register(context.Background(), "alice", "garbage", testProv)
	if !errors.Is(err, common.ErrValidation) {
		t.Fatalf("want ErrValidation, got %v", err)
	}
}

func TestToken_UnknownUser(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	cfg := &sc.Config{SecretKey: "k", TokenValidityDuration: time.Hour}
	s := NewUserService(db, newFakeRepoManager(), cfg, testLogger())

	_, err := s.Token(context.Background(), 99)
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}
