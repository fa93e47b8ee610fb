package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/dmitrijs2005/secretvault/internal/client/api"
	"github.com/dmitrijs2005/secretvault/internal/client/config"
	"github.com/dmitrijs2005/secretvault/internal/client/vaultcfg"
	"github.com/dmitrijs2005/secretvault/internal/common"
	"github.com/dmitrijs2005/secretvault/internal/cryptox"
	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// session loads the stored identity and builds an authenticated client.
func session() (*config.Identity, *api.Client, error) {
	id, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	addr := id.ServerAddr
	if serverAddr != "" {
		addr = serverAddr
	}
	return id, api.NewClient(addr, id.Token), nil
}

// anonClient builds an unauthenticated client for registration.
func anonClient() *api.Client {
	addr := serverAddr
	if addr == "" {
		addr = config.DefaultServerAddr
	}
	return api.NewClient(addr, "")
}

// privateKey returns the identity's PEM private key, prompting for the
// passphrase when the stored key is sealed.
func privateKey(id *config.Identity) (string, error) {
	if !id.Sealed() {
		return id.PrivateKeyPEM, nil
	}

	pw, err := promptPassword("Enter passphrase: ")
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(pw)

	return id.PrivateKey(pw)
}

func promptPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, err
	}
	return pw, nil
}

// selection loads the secret binding of the current working directory.
func selection() (*vaultcfg.Selection, string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return nil, "", err
	}
	sel, err := vaultcfg.Load(dir)
	if err != nil {
		return nil, "", err
	}
	return sel, dir, nil
}

// encryptForKeys produces one ciphertext entry per active key. Inactive
// keys in the input are skipped.
func encryptForKeys(plaintext []byte, keys []api.Key) ([]api.CiphertextEntry, error) {
	entries := make([]api.CiphertextEntry, 0, len(keys))
	for _, k := range keys {
		if !k.IsActive {
			continue
		}
		ct, err := cryptox.EncryptWithPublicKey(plaintext, k.PublicKey)
		if err != nil {
			return nil, err
		}
		entries = append(entries, api.CiphertextEntry{KeyID: k.KeyID, EncryptedData: ct})
	}
	return entries, nil
}

// fanout encrypts plaintext for every active key of every recipient.
func fanout(plaintext []byte, recipients []api.Recipient) ([]api.CiphertextEntry, error) {
	var entries []api.CiphertextEntry
	for _, r := range recipients {
		chunk, err := encryptForKeys(plaintext, r.Keys)
		if err != nil {
			return nil, err
		}
		entries = append(entries, chunk...)
	}
	return entries, nil
}

// parseMetadata converts repeated name=value flags into a metadata map.
func parseMetadata(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	m := make(map[string]string, len(pairs))
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("metadata must be name=value, got %q", p)
		}
		m[name] = value
	}
	return m, nil
}
