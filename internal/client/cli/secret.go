package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(deleteCmd, restoreCmd, logCmd)
}

var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Soft-delete the bound secret",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, client, err := session()
		if err != nil {
			return err
		}
		sel, _, err := selection()
		if err != nil {
			return err
		}
		if err := client.DeleteSecret(cmd.Context(), sel.UID); err != nil {
			return err
		}
		fmt.Println(color.GreenString("✓") + " Deleted " + sel.Name + " (restorable with 'vault restore')")
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore the bound secret after a soft delete",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, client, err := session()
		if err != nil {
			return err
		}
		sel, _, err := selection()
		if err != nil {
			return err
		}
		secret, err := client.RestoreSecret(cmd.Context(), sel.UID)
		if err != nil {
			return err
		}
		fmt.Println(color.GreenString("✓") + " Restored " + secret.Name)
		return nil
	},
}

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show the audit trail of the bound secret",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, client, err := session()
		if err != nil {
			return err
		}
		sel, _, err := selection()
		if err != nil {
			return err
		}

		ops, err := client.Operations(cmd.Context(), sel.UID)
		if err != nil {
			return err
		}

		for _, op := range ops {
			target := ""
			if op.TargetUserID != nil {
				target = fmt.Sprintf(" target=%d", *op.TargetUserID)
			}
			fmt.Printf("%s  %-16s user=%d%s\n",
				op.CreatedAt.Format("2006-01-02 15:04:05"), op.Type, op.UserID, target)
		}
		return nil
	},
}
