package cli

import (
	"fmt"
	"os"

	"github.com/dmitrijs2005/secretvault/internal/client/cache"
	"github.com/dmitrijs2005/secretvault/internal/client/vaultcfg"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(initCmd, listCmd)
}

var initCmd = &cobra.Command{
	Use:   "init <uid>",
	Short: "Bind the current directory to a secret and warm the cache",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, client, err := session()
		if err != nil {
			return err
		}

		secret, err := client.GetSecret(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		sel := &vaultcfg.Selection{UID: secret.UID, Name: secret.Name}

		ct, version, err := client.EncryptedData(cmd.Context(), secret.UID, 0)
		if err == nil {
			c, cerr := cache.New()
			if cerr == nil {
				_ = c.Put(secret.UID, version, ct)
			}
			sel.LastVersion = version
		}

		dir, err := os.Getwd()
		if err != nil {
			return err
		}
		if err := vaultcfg.Save(dir, sel); err != nil {
			return err
		}

		fmt.Println(color.GreenString("✓") + " Bound to " + color.YellowString(secret.Name) +
			fmt.Sprintf(" (version %d)", sel.LastVersion))
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List secrets you can access",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, client, err := session()
		if err != nil {
			return err
		}

		secrets, err := client.ListSecrets(cmd.Context())
		if err != nil {
			return err
		}

		if len(secrets) == 0 {
			fmt.Println("no secrets")
			return nil
		}
		for _, s := range secrets {
			fmt.Printf("%s  %-24s v%-4d %s\n", s.UID, s.Name, s.LatestVersion, s.Description)
		}
		return nil
	},
}
