package services

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"database/sql"
	"encoding/pem"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/secretvault/internal/common"
	"github.com/dmitrijs2005/secretvault/internal/dbx"
	"github.com/dmitrijs2005/secretvault/internal/logging"
	"github.com/dmitrijs2005/secretvault/internal/server/models"
	ciphertextsrepo "github.com/dmitrijs2005/secretvault/internal/server/repositories/ciphertexts"
	operationsrepo "github.com/dmitrijs2005/secretvault/internal/server/repositories/operations"
	permissionsrepo "github.com/dmitrijs2005/secretvault/internal/server/repositories/permissions"
	secretsrepo "github.com/dmitrijs2005/secretvault/internal/server/repositories/secrets"
	userkeysrepo "github.com/dmitrijs2005/secretvault/internal/server/repositories/userkeys"
	usersrepo "github.com/dmitrijs2005/secretvault/internal/server/repositories/users"
	versionsrepo "github.com/dmitrijs2005/secretvault/internal/server/repositories/versions"
)

// In-memory repository fakes. The DBTX handed to the manager is ignored:
// transactional boundaries are asserted separately through sqlmock's
// ExpectBegin/ExpectCommit.

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db, mock
}

func testLogger() logging.Logger {
	return logging.NewJSON(io.Discard)
}

// newTestPublicKeyPEM returns a small throwaway SPKI public key in PEM form.
func newTestPublicKeyPEM() string {
	priv, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		panic(err)
	}
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		panic(err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

// --- users ---

type fakeUsers struct {
	seq   int64
	byID  map[int64]*models.User
	byNam map[string]*models.User

	createErr error
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: map[int64]*models.User{}, byNam: map[string]*models.User{}}
}

func (f *fakeUsers) add(id int64, username string) *models.User {
	u := &models.User{ID: id, Username: username, CreatedAt: time.Now()}
	f.byID[id] = u
	f.byNam[username] = u
	return u
}

func (f *fakeUsers) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.seq++
	user.ID = f.seq
	f.byID[user.ID] = user
	f.byNam[user.Username] = user
	return user, nil
}

func (f *fakeUsers) GetByID(ctx context.Context, id int64) (*models.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	u, ok := f.byNam[username]
	if !ok {
		return nil, common.ErrNotFound
	}
	return u, nil
}

// --- user keys ---

type fakeUserKeys struct {
	seq  int64
	keys []*models.UserKey

	touched []int64
}

func (f *fakeUserKeys) add(userID int64, keyID string, active bool) *models.UserKey {
	f.seq++
	k := &models.UserKey{ID: f.seq, UserID: userID, KeyID: keyID, IsActive: active, CreatedAt: time.Now()}
	if !active {
		now := time.Now()
		k.RevokedAt = &now
	}
	f.keys = append(f.keys, k)
	return k
}

func (f *fakeUserKeys) Create(ctx context.Context, key *models.UserKey) (*models.UserKey, error) {
	f.seq++
	key.ID = f.seq
	key.IsActive = true
	f.keys = append(f.keys, key)
	return key, nil
}

func (f *fakeUserKeys) GetByKeyID(ctx context.Context, keyID string) (*models.UserKey, error) {
	for _, k := range f.keys {
		if k.KeyID == keyID {
			return k, nil
		}
	}
	return nil, common.ErrNotFound
}

func (f *fakeUserKeys) ActiveByUserID(ctx context.Context, userID int64) ([]*models.UserKey, error) {
	var out []*models.UserKey
	now := time.Now()
	for _, k := range f.keys {
		if k.UserID == userID && k.Usable(now) {
			out = append(out, k)
		}
	}
	return out, nil
}

func (f *fakeUserKeys) Revoke(ctx context.Context, keyID string) (*models.UserKey, error) {
	for _, k := range f.keys {
		if k.KeyID == keyID && k.RevokedAt == nil {
			now := time.Now()
			k.RevokedAt = &now
			k.IsActive = false
			return k, nil
		}
	}
	return nil, common.ErrNotFound
}

func (f *fakeUserKeys) TouchLastUsed(ctx context.Context, id int64) error {
	f.touched = append(f.touched, id)
	return nil
}

// --- secrets ---

type fakeSecrets struct {
	seq     int64
	secrets []*models.Secret
}

func (f *fakeSecrets) add(uid string, latest int64) *models.Secret {
	f.seq++
	s := &models.Secret{ID: f.seq, UID: uid, Name: "s" + uid[:4], LatestVersion: latest}
	f.secrets = append(f.secrets, s)
	return s
}

func (f *fakeSecrets) Create(ctx context.Context, secret *models.Secret) (*models.Secret, error) {
	f.seq++
	secret.ID = f.seq
	f.secrets = append(f.secrets, secret)
	return secret, nil
}

func (f *fakeSecrets) GetByUID(ctx context.Context, uid string, includeDeleted bool) (*models.Secret, error) {
	for _, s := range f.secrets {
		if s.UID == uid {
			if s.DeletedAt != nil && !includeDeleted {
				return nil, common.ErrNotFound
			}
			return s, nil
		}
	}
	return nil, common.ErrNotFound
}

func (f *fakeSecrets) ListVisible(ctx context.Context, userID int64) ([]*models.Secret, error) {
	return f.secrets, nil
}

func (f *fakeSecrets) SoftDelete(ctx context.Context, id int64) error {
	for _, s := range f.secrets {
		if s.ID == id {
			now := time.Now()
			s.DeletedAt = &now
			return nil
		}
	}
	return common.ErrNotFound
}

func (f *fakeSecrets) Restore(ctx context.Context, id int64) error {
	for _, s := range f.secrets {
		if s.ID == id {
			s.DeletedAt = nil
			return nil
		}
	}
	return common.ErrNotFound
}

// --- versions ---

// fakeVersions is safe for concurrent use so tests can race writers against
// each other; the mutex guards the slice, not whole call sequences, so a
// MaxVersion/Create pair still interleaves like two real transactions.
type fakeVersions struct {
	mu       sync.Mutex
	seq      int64
	versions []*models.SecretVersion

	createErr error
}

func (f *fakeVersions) add(secretID, version int64) *models.SecretVersion {
	f.seq++
	v := &models.SecretVersion{ID: f.seq, SecretID: secretID, Version: version}
	f.versions = append(f.versions, v)
	return v
}

func (f *fakeVersions) Create(ctx context.Context, version *models.SecretVersion) (*models.SecretVersion, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range f.versions {
		if v.SecretID == version.SecretID && v.Version == version.Version {
			return nil, common.ErrVersionConflict
		}
	}
	f.seq++
	version.ID = f.seq
	f.versions = append(f.versions, version)
	return version, nil
}

func (f *fakeVersions) MaxVersion(ctx context.Context, secretID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var max int64
	for _, v := range f.versions {
		if v.SecretID == secretID && v.Version > max {
			max = v.Version
		}
	}
	return max, nil
}

func (f *fakeVersions) GetByVersion(ctx context.Context, secretID, version int64) (*models.SecretVersion, error) {
	for _, v := range f.versions {
		if v.SecretID == secretID && v.Version == version {
			return v, nil
		}
	}
	return nil, common.ErrNotFound
}

func (f *fakeVersions) ListBySecret(ctx context.Context, secretID int64) ([]*models.SecretVersion, error) {
	var out []*models.SecretVersion
	for _, v := range f.versions {
		if v.SecretID == secretID {
			out = append(out, v)
		}
	}
	return out, nil
}

// --- ciphertexts ---

type fakeCiphertexts struct {
	mu   sync.Mutex
	seq  int64
	rows []*models.EncryptedSecretData
}

func (f *fakeCiphertexts) Create(ctx context.Context, data *models.EncryptedSecretData) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.SecretVersionID == data.SecretVersionID && r.UserID == data.UserID && r.UserKeyID == data.UserKeyID {
			return false, nil
		}
	}
	f.seq++
	data.ID = f.seq
	f.rows = append(f.rows, data)
	return true, nil
}

func (f *fakeCiphertexts) GetForUser(ctx context.Context, versionID, userID int64) (*models.EncryptedSecretData, error) {
	for _, r := range f.rows {
		if r.SecretVersionID == versionID && r.UserID == userID {
			return r, nil
		}
	}
	return nil, common.ErrNotFound
}

func (f *fakeCiphertexts) RecipientUserIDs(ctx context.Context, versionID int64) ([]int64, error) {
	seen := map[int64]bool{}
	var out []int64
	for _, r := range f.rows {
		if r.SecretVersionID == versionID && !seen[r.UserID] {
			seen[r.UserID] = true
			out = append(out, r.UserID)
		}
	}
	return out, nil
}

// --- permissions ---

type fakePermissions struct {
	seq   int64
	perms []*models.AccessPermission

	deleteErr error
}

func (f *fakePermissions) add(secretID, userID int64, status models.PermissionStatus) *models.AccessPermission {
	f.seq++
	p := &models.AccessPermission{ID: f.seq, SecretID: secretID, UserID: userID, Status: status, InvitedAt: time.Now()}
	f.perms = append(f.perms, p)
	return p
}

func (f *fakePermissions) Create(ctx context.Context, perm *models.AccessPermission) (*models.AccessPermission, error) {
	f.seq++
	perm.ID = f.seq
	f.perms = append(f.perms, perm)
	return perm, nil
}

func (f *fakePermissions) GetByID(ctx context.Context, id int64) (*models.AccessPermission, error) {
	for _, p := range f.perms {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, common.ErrNotFound
}

func (f *fakePermissions) GetByUserAndSecret(ctx context.Context, userID, secretID int64) (*models.AccessPermission, error) {
	for _, p := range f.perms {
		if p.UserID == userID && p.SecretID == secretID {
			return p, nil
		}
	}
	return nil, common.ErrNotFound
}

func (f *fakePermissions) UpdateStatus(ctx context.Context, id int64, status models.PermissionStatus, responseOpID int64) error {
	p, err := f.GetByID(ctx, id)
	if err != nil {
		return err
	}
	now := time.Now()
	p.Status = status
	p.RespondedAt = &now
	p.ResponseOperationID = &responseOpID
	return nil
}

func (f *fakePermissions) Reinvite(ctx context.Context, id, invitedBy, grantOpID int64) error {
	p, err := f.GetByID(ctx, id)
	if err != nil {
		return err
	}
	p.Status = models.PermissionPending
	p.InvitedBy = invitedBy
	p.GrantOperationID = &grantOpID
	p.RespondedAt = nil
	return nil
}

func (f *fakePermissions) ListBySecret(ctx context.Context, secretID int64) ([]*models.AccessPermission, error) {
	var out []*models.AccessPermission
	for _, p := range f.perms {
		if p.SecretID == secretID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakePermissions) ApprovedUserIDs(ctx context.Context, secretID int64) ([]int64, error) {
	var out []int64
	for _, p := range f.perms {
		if p.SecretID == secretID && p.Status == models.PermissionApproved {
			out = append(out, p.UserID)
		}
	}
	return out, nil
}

func (f *fakePermissions) CountApproved(ctx context.Context, secretID int64) (int64, error) {
	ids, _ := f.ApprovedUserIDs(ctx, secretID)
	return int64(len(ids)), nil
}

func (f *fakePermissions) Delete(ctx context.Context, id int64) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	for i, p := range f.perms {
		if p.ID == id {
			f.perms = append(f.perms[:i], f.perms[i+1:]...)
			return nil
		}
	}
	return common.ErrNotFound
}

// --- operations ---

type fakeOperations struct {
	mu  sync.Mutex
	seq int64
	ops []*models.Operation
}

func (f *fakeOperations) Create(ctx context.Context, op *models.Operation) (*models.Operation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	op.ID = f.seq
	op.CreatedAt = time.Now()
	f.ops = append(f.ops, op)
	return op, nil
}

func (f *fakeOperations) ListBySecret(ctx context.Context, secretID int64) ([]*models.Operation, error) {
	var out []*models.Operation
	for _, op := range f.ops {
		if op.SecretID != nil && *op.SecretID == secretID {
			out = append(out, op)
		}
	}
	return out, nil
}

func (f *fakeOperations) ListAll(ctx context.Context) ([]*models.Operation, error) {
	return f.ops, nil
}

func (f *fakeOperations) lastType() models.OperationType {
	if len(f.ops) == 0 {
		return ""
	}
	return f.ops[len(f.ops)-1].Type
}

// --- manager ---

type fakeRepoManager struct {
	users       *fakeUsers
	userKeys    *fakeUserKeys
	secrets     *fakeSecrets
	versions    *fakeVersions
	ciphertexts *fakeCiphertexts
	permissions *fakePermissions
	operations  *fakeOperations
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{
		users:       newFakeUsers(),
		userKeys:    &fakeUserKeys{},
		secrets:     &fakeSecrets{},
		versions:    &fakeVersions{},
		ciphertexts: &fakeCiphertexts{},
		permissions: &fakePermissions{},
		operations:  &fakeOperations{},
	}
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error       { return nil }
func (m *fakeRepoManager) Users(db dbx.DBTX) usersrepo.Repository             { return m.users }
func (m *fakeRepoManager) UserKeys(db dbx.DBTX) userkeysrepo.Repository       { return m.userKeys }
func (m *fakeRepoManager) Secrets(db dbx.DBTX) secretsrepo.Repository         { return m.secrets }
func (m *fakeRepoManager) Versions(db dbx.DBTX) versionsrepo.Repository       { return m.versions }
func (m *fakeRepoManager) Ciphertexts(db dbx.DBTX) ciphertextsrepo.Repository { return m.ciphertexts }
func (m *fakeRepoManager) Permissions(db dbx.DBTX) permissionsrepo.Repository { return m.permissions }
func (m *fakeRepoManager) Operations(db dbx.DBTX) operationsrepo.Repository   { return m.operations }
