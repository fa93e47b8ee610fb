package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/dmitrijs2005/secretvault/internal/client/cache"
	"github.com/dmitrijs2005/secretvault/internal/client/vaultcfg"
	"github.com/dmitrijs2005/secretvault/internal/common"
	"github.com/dmitrijs2005/secretvault/internal/cryptox"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	pullVersion int64
	loadVersion int64
)

func init() {
	pullCmd.Flags().Int64VarP(&pullVersion, "version", "v", 0, "version to pull (default: latest)")
	loadCmd.Flags().Int64VarP(&loadVersion, "version", "v", 0, "version to load (default: last pulled)")
	rootCmd.AddCommand(pullCmd, loadCmd)
}

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Fetch your ciphertext for the bound secret into the local cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, client, err := session()
		if err != nil {
			return err
		}
		sel, dir, err := selection()
		if err != nil {
			return err
		}

		ct, version, err := client.EncryptedData(cmd.Context(), sel.UID, pullVersion)
		if err != nil {
			return err
		}

		c, err := cache.New()
		if err != nil {
			return err
		}
		if err := c.Put(sel.UID, version, ct); err != nil {
			return err
		}

		if version > sel.LastVersion {
			sel.LastVersion = version
			if err := vaultcfg.Save(dir, sel); err != nil {
				return err
			}
		}

		fmt.Println(color.GreenString("✓") + fmt.Sprintf(" Pulled version %d of %s", version, sel.Name))
		return nil
	},
}

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Decrypt the bound secret and write the plaintext to stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, client, err := session()
		if err != nil {
			return err
		}
		sel, dir, err := selection()
		if err != nil {
			return err
		}

		version := loadVersion
		if version == 0 {
			version = sel.LastVersion
		}

		c, err := cache.New()
		if err != nil {
			return err
		}

		var ciphertext string
		if version > 0 {
			ciphertext, err = c.Get(sel.UID, version)
			if err != nil && !errors.Is(err, cache.ErrMiss) {
				return err
			}
		}
		if ciphertext == "" {
			ciphertext, version, err = client.EncryptedData(cmd.Context(), sel.UID, version)
			if err != nil {
				return err
			}
			_ = c.Put(sel.UID, version, ciphertext)
			if version > sel.LastVersion {
				sel.LastVersion = version
				_ = vaultcfg.Save(dir, sel)
			}
		}

		privPEM, err := privateKey(id)
		if err != nil {
			return err
		}
		plaintext, err := cryptox.DecryptWithPrivateKey(ciphertext, privPEM)
		if err != nil {
			return err
		}
		defer common.WipeByteArray(plaintext)

		_, err = os.Stdout.Write(plaintext)
		return err
	},
}
