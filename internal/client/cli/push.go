package cli

import (
	"fmt"
	"os"

	"github.com/dmitrijs2005/secretvault/internal/client/cache"
	"github.com/dmitrijs2005/secretvault/internal/client/vaultcfg"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	pushFile     string
	pushMetadata []string
)

func init() {
	pushCmd.Flags().StringVarP(&pushFile, "file", "f", "", "file to encrypt and upload")
	pushCmd.Flags().StringArrayVarP(&pushMetadata, "metadata", "m", nil, "metadata name=value (repeatable)")
	_ = pushCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(pushCmd)
}

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Upload a new version encrypted for every approved recipient",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, client, err := session()
		if err != nil {
			return err
		}
		sel, dir, err := selection()
		if err != nil {
			return err
		}

		metadata, err := parseMetadata(pushMetadata)
		if err != nil {
			return err
		}

		plaintext, err := os.ReadFile(pushFile)
		if err != nil {
			return err
		}

		recipients, err := client.RecipientKeys(cmd.Context(), sel.UID)
		if err != nil {
			return err
		}
		entries, err := fanout(plaintext, recipients)
		if err != nil {
			return err
		}

		version, err := client.PushVersion(cmd.Context(), sel.UID, metadata, entries)
		if err != nil {
			return err
		}

		sel.LastVersion = version
		if err := vaultcfg.Save(dir, sel); err != nil {
			return err
		}

		// warm the cache with our own ciphertext so load works offline
		if ct, v, err := client.EncryptedData(cmd.Context(), sel.UID, version); err == nil {
			if c, cerr := cache.New(); cerr == nil {
				_ = c.Put(sel.UID, v, ct)
			}
		}

		fmt.Println(color.GreenString("✓") + fmt.Sprintf(" Pushed version %d of %s", version, sel.Name))
		return nil
	},
}
