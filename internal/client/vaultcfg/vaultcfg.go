// Package vaultcfg persists the per-directory secret selection: which secret
// the current working directory is bound to and the last version pulled.
package vaultcfg

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/secretvault/internal/filex"
)

// FileName is the selection file written into the working directory.
const FileName = ".secret-vault.json"

var ErrNotBound = errors.New("directory not bound to a secret, run init first")

// Selection binds a directory to one secret.
type Selection struct {
	UID         string `json:"uid"`
	Name        string `json:"name"`
	LastVersion int64  `json:"lastVersion,omitempty"`
}

// Load reads the selection from dir. A missing file is ErrNotBound.
func Load(dir string) (*Selection, error) {
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotBound
		}
		return nil, err
	}

	var sel Selection
	if err := json.Unmarshal(data, &sel); err != nil {
		return nil, fmt.Errorf("selection file corrupted: %w", err)
	}
	if sel.UID == "" {
		return nil, ErrNotBound
	}
	return &sel, nil
}

// Save writes the selection into dir.
func Save(dir string, sel *Selection) error {
	data, err := json.MarshalIndent(sel, "", "  ")
	if err != nil {
		return err
	}
	return filex.WriteFileAtomic(filepath.Join(dir, FileName), data, 0o600)
}
