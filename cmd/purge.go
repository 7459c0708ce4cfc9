package cmd

import (
	"context"
	"fmt"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
)

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove every document, embedding and record of a tenant",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		includeAudit, _ := cmd.Flags().GetBool("include-audit")
		return withTenant(cmd, func(ctx context.Context, a *app, tenantID string) error {
			if !yes {
				prompt := promptui.Prompt{
					Label:     fmt.Sprintf("Delete all documents of %s", tenantID),
					IsConfirm: true,
				}
				if _, err := prompt.Run(); err != nil {
					fmt.Println("Aborted.")
					return nil
				}
			}
			if err := a.manager.Purge(ctx, tenantID); err != nil {
				return err
			}
			if includeAudit {
				n, err := a.audit.DeleteTenant(ctx, tenantID)
				if err != nil {
					return err
				}
				fmt.Printf("Removed %d audit entries\n", n)
			}
			fmt.Printf("Purged all data for %s\n", tenantID)
			return nil
		})
	},
}

func init() {
	purgeCmd.Flags().String("tenant", "", "tenant (user id) to purge")
	purgeCmd.Flags().BoolP("yes", "y", false, "skip the confirmation prompt")
	purgeCmd.Flags().Bool("include-audit", false, "also delete the tenant's audit trail")
	_ = purgeCmd.MarkFlagRequired("tenant")
	rootCmd.AddCommand(purgeCmd)
}
