package cli

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/secretvault/internal/client/api"
	"github.com/dmitrijs2005/secretvault/internal/common"
	"github.com/dmitrijs2005/secretvault/internal/cryptox"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(grantCmd)
}

var grantCmd = &cobra.Command{
	Use:   "grant <username>",
	Short: "Invite a user and re-encrypt the latest version for their keys",
	Long: `Invites the user to the bound secret, then performs the re-encryption
locally: your ciphertext is downloaded, decrypted with your private key, and
encrypted under each of the target's active public keys. The plaintext never
leaves this machine.

Granting to yourself skips the invite and re-encrypts for your own keys,
which is how a newly added key gains access to existing secrets.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, client, err := session()
		if err != nil {
			return err
		}
		sel, _, err := selection()
		if err != nil {
			return err
		}
		target := args[0]

		if target != id.Username {
			_, err := client.Invite(cmd.Context(), sel.UID, target)
			// an existing invite is fine, the point is the re-encryption
			if err != nil && !errors.Is(err, common.ErrVersionConflict) {
				return err
			}
		}

		ciphertext, version, err := client.EncryptedData(cmd.Context(), sel.UID, 0)
		if err != nil {
			return err
		}

		keys, err := client.UserKeys(cmd.Context(), target)
		if err != nil {
			return err
		}
		if len(keys) == 0 {
			return fmt.Errorf("%s has no active keys", target)
		}

		privPEM, err := privateKey(id)
		if err != nil {
			return err
		}

		entries := make([]api.CiphertextEntry, 0, len(keys))
		for _, k := range keys {
			if !k.IsActive {
				continue
			}
			ct, err := cryptox.ReEncryptForKey(ciphertext, privPEM, k.PublicKey)
			if err != nil {
				return err
			}
			entries = append(entries, api.CiphertextEntry{KeyID: k.KeyID, EncryptedData: ct})
		}

		stored, err := client.Reencrypt(cmd.Context(), sel.UID, target, version, entries)
		if err != nil {
			return err
		}

		fmt.Println(color.GreenString("✓") +
			fmt.Sprintf(" Re-encrypted version %d for %s (%d new ciphertexts)", version, target, stored))
		if target != id.Username {
			fmt.Println(color.CyanString("→") + " " + target + " must approve the invite before the secret appears in their list")
		}
		return nil
	},
}
