package cli

import (
	"fmt"
	"os"

	"github.com/dmitrijs2005/secretvault/internal/client/vaultcfg"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	createFile        string
	createName        string
	createDescription string
	createMetadata    []string
)

func init() {
	createCmd.Flags().StringVarP(&createFile, "file", "f", "", "file to encrypt")
	createCmd.Flags().StringVarP(&createName, "name", "n", "", "secret name")
	createCmd.Flags().StringVarP(&createDescription, "description", "d", "", "secret description")
	createCmd.Flags().StringArrayVarP(&createMetadata, "metadata", "m", nil, "metadata name=value (repeatable)")
	_ = createCmd.MarkFlagRequired("file")
	_ = createCmd.MarkFlagRequired("name")
	rootCmd.AddCommand(createCmd)
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Encrypt a file and store it as a new secret",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, client, err := session()
		if err != nil {
			return err
		}

		metadata, err := parseMetadata(createMetadata)
		if err != nil {
			return err
		}

		plaintext, err := os.ReadFile(createFile)
		if err != nil {
			return err
		}

		keys, err := client.UserKeys(cmd.Context(), id.Username)
		if err != nil {
			return err
		}
		entries, err := encryptForKeys(plaintext, keys)
		if err != nil {
			return err
		}

		secret, err := client.CreateSecret(cmd.Context(), createName, createDescription, metadata, entries)
		if err != nil {
			return err
		}

		dir, err := os.Getwd()
		if err != nil {
			return err
		}
		sel := &vaultcfg.Selection{UID: secret.UID, Name: secret.Name, LastVersion: 1}
		if err := vaultcfg.Save(dir, sel); err != nil {
			return err
		}

		fmt.Println(color.GreenString("✓") + " Created secret " + color.YellowString(secret.Name) +
			" (" + secret.UID + "), bound to this directory")
		return nil
	},
}
