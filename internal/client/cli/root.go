// Package cli implements the vault command-line client. All cryptography
// happens here, on the user's machine: plaintext and private keys never
// reach the server.
package cli

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var serverAddr string

var rootCmd = &cobra.Command{
	Use:   "vault",
	Short: "Client for the Secret Vault server",
	Long: `vault stores encrypted secrets on a shared server. Every secret is
encrypted on this machine for each recipient's public keys before upload;
the server only ever sees ciphertext.

Typical flow:
  vault login -u alice        register and create a key pair
  vault create -f .env -n db  encrypt a file as a new secret
  vault init <uid>            bind the current directory to a secret
  vault load                  decrypt the bound secret to stdout
  vault push -f .env          upload a new version for all recipients
  vault grant bob             invite bob and re-encrypt for his keys`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", "", "server address (overrides the identity file)")
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("✗ ")+err.Error())
		os.Exit(1)
	}
}
