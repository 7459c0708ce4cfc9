package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/ziadkadry99/docqa/internal/audit"
	"github.com/ziadkadry99/docqa/internal/auth"
	"github.com/ziadkadry99/docqa/internal/db"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage API users",
}

var usersCreateCmd = &cobra.Command{
	Use:   "create <username>",
	Short: "Create a user; admins may upload, process and delete documents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		role, _ := cmd.Flags().GetString("role")
		fullName, _ := cmd.Flags().GetString("full-name")
		password, _ := cmd.Flags().GetString("password")

		if password == "" {
			prompt := promptui.Prompt{Label: "Password", Mask: '*'}
			p, err := prompt.Run()
			if err != nil {
				return fmt.Errorf("password prompt: %w", err)
			}
			password = p
		}

		return withUsers(func(ctx context.Context, users *auth.Store, auditStore *audit.Store) error {
			u, err := users.Create(ctx, args[0], password, fullName, auth.Role(role))
			if err != nil {
				return err
			}
			_ = auditStore.Log(ctx, audit.Entry{
				TenantID: u.Username,
				ActorID:  audit.SystemActor,
				Action:   audit.ActionRegister,
				Outcome:  string(u.Role),
			})
			fmt.Printf("Created %s (%s)\n", u.Username, u.Role)
			return nil
		})
	},
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withUsers(func(ctx context.Context, users *auth.Store, _ *audit.Store) error {
			list, err := users.List(ctx)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "USERNAME\tROLE\tFULL NAME\tCREATED")
			for _, u := range list {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", u.Username, u.Role, u.FullName, u.CreatedAt.Format("2006-01-02"))
			}
			return tw.Flush()
		})
	},
}

var usersDeleteCmd = &cobra.Command{
	Use:   "delete <username>",
	Short: "Delete a user (documents are kept; see purge)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withUsers(func(ctx context.Context, users *auth.Store, _ *audit.Store) error {
			if err := users.Delete(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted %s\n", args[0])
			return nil
		})
	},
}

// withUsers opens only the database; user management needs no embedder or LLM.
func withUsers(fn func(ctx context.Context, users *auth.Store, auditStore *audit.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	database, err := db.Open(cfg.DatabasePath())
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer database.Close()
	return fn(context.Background(), auth.NewStore(database), audit.NewStore(database))
}

func init() {
	usersCreateCmd.Flags().String("role", string(auth.RoleReader), "role: admin or reader")
	usersCreateCmd.Flags().String("full-name", "", "display name")
	usersCreateCmd.Flags().String("password", "", "password (prompted when empty)")
	usersCmd.AddCommand(usersCreateCmd, usersListCmd, usersDeleteCmd)
	rootCmd.AddCommand(usersCmd)
}
