package cli

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/secretvault/internal/client/config"
	"github.com/dmitrijs2005/secretvault/internal/common"
	"github.com/dmitrijs2005/secretvault/internal/cryptox"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	loginUsername string
	loginNoSeal   bool
)

func init() {
	loginCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "username to register")
	loginCmd.Flags().BoolVar(&loginNoSeal, "no-passphrase", false, "store the private key unencrypted (for scripted use)")
	_ = loginCmd.MarkFlagRequired("username")
	rootCmd.AddCommand(loginCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Register on the server and create this machine's key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := config.Load(); err == nil {
			return errors.New("identity already exists, remove ~/.secrets-vault to start over")
		}

		fmt.Println("Generating 4096-bit key pair, this can take a moment...")
		pair, err := cryptox.GenerateKeyPair()
		if err != nil {
			return err
		}

		id := &config.Identity{
			ServerAddr:   config.DefaultServerAddr,
			Username:     loginUsername,
			PublicKeyPEM: pair.PublicKeyPEM,
		}
		if serverAddr != "" {
			id.ServerAddr = serverAddr
		}

		if loginNoSeal {
			id.PrivateKeyPEM = pair.PrivateKeyPEM
		} else {
			pw, err := promptPassword("Choose a passphrase: ")
			if err != nil {
				return err
			}
			defer common.WipeByteArray(pw)
			again, err := promptPassword("Repeat passphrase: ")
			if err != nil {
				return err
			}
			defer common.WipeByteArray(again)
			if !bytes.Equal(pw, again) {
				return errors.New("passphrases do not match")
			}

			sealed, err := cryptox.SealPrivateKey(pair.PrivateKeyPEM, pw)
			if err != nil {
				return err
			}
			id.SealedPrivateKey = sealed
		}

		res, err := anonClient().RegisterUser(cmd.Context(), loginUsername, pair.PublicKeyPEM)
		if err != nil {
			return err
		}

		id.UserID = res.ID
		id.KeyID = res.KeyID
		id.Token = res.Token
		if err := config.Save(id); err != nil {
			return err
		}

		fmt.Println(color.GreenString("✓") + " Registered as " + color.YellowString(res.Username) +
			" with key " + res.KeyID)
		return nil
	},
}
