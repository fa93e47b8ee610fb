// Package config manages the client's identity file: who the user is on the
// server, which key pair this machine holds, and how to reach the endpoint.
//
// The identity lives at ~/.secrets-vault/config.json. The private key is
// stored either as plain PEM or sealed under a passphrase; the sealed form
// is preferred and the plain form exists for scripted use.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/secretvault/internal/common"
	"github.com/dmitrijs2005/secretvault/internal/cryptox"
	"github.com/dmitrijs2005/secretvault/internal/filex"
)

const (
	dirName  = ".secrets-vault"
	fileName = "config.json"

	// DefaultServerAddr is used when the identity file does not override it.
	DefaultServerAddr = "http://127.0.0.1:8080"
)

var ErrNoIdentity = errors.New("no identity found, run login first")

// Identity is the persisted client state.
type Identity struct {
	ServerAddr       string `json:"serverAddr"`
	Username         string `json:"username"`
	UserID           int64  `json:"userId"`
	KeyID            string `json:"keyId"`
	Token            string `json:"token"`
	PublicKeyPEM     string `json:"publicKey"`
	PrivateKeyPEM    string `json:"privateKey,omitempty"`
	SealedPrivateKey []byte `json:"sealedPrivateKey,omitempty"`
}

// Sealed reports whether the private key requires a passphrase to use.
func (i *Identity) Sealed() bool {
	return len(i.SealedPrivateKey) > 0
}

// PrivateKey returns the PEM private key, unsealing it with passphrase when
// the stored form is sealed. For a sealed identity an empty passphrase is an
// error before any crypto is attempted.
func (i *Identity) PrivateKey(passphrase []byte) (string, error) {
	if !i.Sealed() {
		return i.PrivateKeyPEM, nil
	}
	if len(passphrase) == 0 {
		return "", fmt.Errorf("%w: passphrase required", common.ErrCrypto)
	}
	return cryptox.OpenPrivateKey(i.SealedPrivateKey, passphrase)
}

// Dir returns the identity directory, creating nothing.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, dirName), nil
}

func path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, fileName), nil
}

// Load reads the identity file. A missing file is ErrNoIdentity.
func Load() (*Identity, error) {
	p, err := path()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoIdentity
		}
		return nil, err
	}

	var id Identity
	if err := json.Unmarshal(data, &id); err != nil {
		return nil, fmt.Errorf("identity file corrupted: %w", err)
	}
	if id.ServerAddr == "" {
		id.ServerAddr = DefaultServerAddr
	}
	return &id, nil
}

// Save writes the identity atomically with owner-only permissions.
func Save(id *Identity) error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	if err := filex.EnsureDir(dir); err != nil {
		return err
	}

	data, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return err
	}
	return filex.WriteFileAtomic(filepath.Join(dir, fileName), data, 0o600)
}
