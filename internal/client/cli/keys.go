package cli

import (
	"fmt"

	"github.com/dmitrijs2005/secretvault/internal/client/config"
	"github.com/dmitrijs2005/secretvault/internal/cryptox"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var keysAddName string

func init() {
	keysAddCmd.Flags().StringVarP(&keysAddName, "name", "n", "", "label for the new key")
	keysCmd.AddCommand(keysAddCmd, keysListCmd, keysRevokeCmd)
	rootCmd.AddCommand(keysCmd)
}

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage this account's public keys",
}

var keysAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Generate and register a new key pair, replacing the local one",
	Long: `Generates a fresh key pair, registers the public key on the server and
makes it this machine's key. Ciphertexts encrypted for the old key stay on
the server; run 'vault grant <your-username>' per secret to re-encrypt the
latest version for the new key.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, client, err := session()
		if err != nil {
			return err
		}

		fmt.Println("Generating 4096-bit key pair, this can take a moment...")
		pair, err := cryptox.GenerateKeyPair()
		if err != nil {
			return err
		}

		key, err := client.RegisterKey(cmd.Context(), pair.PublicKeyPEM, keysAddName)
		if err != nil {
			return err
		}

		// The old private key is replaced only after registration succeeds.
		id.KeyID = key.KeyID
		id.PublicKeyPEM = pair.PublicKeyPEM
		if id.Sealed() {
			pw, err := promptPassword("Choose a passphrase for the new key: ")
			if err != nil {
				return err
			}
			sealed, err := cryptox.SealPrivateKey(pair.PrivateKeyPEM, pw)
			if err != nil {
				return err
			}
			id.SealedPrivateKey = sealed
			id.PrivateKeyPEM = ""
		} else {
			id.PrivateKeyPEM = pair.PrivateKeyPEM
		}
		if err := config.Save(id); err != nil {
			return err
		}

		fmt.Println(color.GreenString("✓") + " Registered key " + key.KeyID)
		fmt.Println(color.CyanString("→") + " Run " + color.YellowString("vault grant "+id.Username) +
			" inside each secret's directory to re-encrypt for the new key")
		return nil
	},
}

var keysListCmd = &cobra.Command{
	Use:   "list [username]",
	Short: "List a user's active public keys (default: your own)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, client, err := session()
		if err != nil {
			return err
		}

		username := id.Username
		if len(args) == 1 {
			username = args[0]
		}

		keys, err := client.UserKeys(cmd.Context(), username)
		if err != nil {
			return err
		}

		if len(keys) == 0 {
			fmt.Println("no active keys")
			return nil
		}
		for _, k := range keys {
			marker := " "
			if k.KeyID == id.KeyID {
				marker = color.GreenString("*")
			}
			name := k.Name
			if name == "" {
				name = "-"
			}
			fmt.Printf("%s %s  %-20s %s\n", marker, k.KeyID, name, k.CreatedAt.Format("2006-01-02"))
		}
		return nil
	},
}

var keysRevokeCmd = &cobra.Command{
	Use:   "revoke <key-id>",
	Short: "Revoke one of your keys",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, client, err := session()
		if err != nil {
			return err
		}
		if err := client.RevokeKey(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Println(color.GreenString("✓") + " Revoked key " + args[0])
		return nil
	},
}
