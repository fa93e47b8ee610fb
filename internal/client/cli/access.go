package cli

import (
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(permissionsCmd, approveCmd, rejectCmd, revokeCmd)
}

func permissionArg(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("permission id must be a positive number, got %q", arg)
	}
	return id, nil
}

var permissionsCmd = &cobra.Command{
	Use:   "permissions",
	Short: "List who has (or was offered) access to the bound secret",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, client, err := session()
		if err != nil {
			return err
		}
		sel, _, err := selection()
		if err != nil {
			return err
		}

		perms, err := client.Permissions(cmd.Context(), sel.UID)
		if err != nil {
			return err
		}

		for _, p := range perms {
			status := p.Status
			switch status {
			case "approved":
				status = color.GreenString(status)
			case "pending":
				status = color.YellowString(status)
			case "rejected":
				status = color.RedString(status)
			}
			fmt.Printf("%-6d user %-6d %s  invited %s\n", p.ID, p.UserID, status, p.InvitedAt.Format("2006-01-02"))
		}
		return nil
	},
}

var approveCmd = &cobra.Command{
	Use:   "approve <permission-id>",
	Short: "Accept an invite addressed to you",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := permissionArg(args[0])
		if err != nil {
			return err
		}
		_, client, err := session()
		if err != nil {
			return err
		}
		if _, err := client.Approve(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Println(color.GreenString("✓") + " Invite approved")
		return nil
	},
}

var rejectCmd = &cobra.Command{
	Use:   "reject <permission-id>",
	Short: "Decline an invite addressed to you",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := permissionArg(args[0])
		if err != nil {
			return err
		}
		_, client, err := session()
		if err != nil {
			return err
		}
		if _, err := client.Reject(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Println(color.GreenString("✓") + " Invite rejected")
		return nil
	},
}

var revokeCmd = &cobra.Command{
	Use:   "revoke <permission-id>",
	Short: "Remove a user's access to the bound secret",
	Long: `Removes the permission row. Already stored ciphertexts are not deleted;
push a new version afterwards so future versions exclude the removed user.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := permissionArg(args[0])
		if err != nil {
			return err
		}
		_, client, err := session()
		if err != nil {
			return err
		}
		if err := client.RevokePermission(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Println(color.GreenString("✓") + " Access revoked")
		return nil
	},
}
