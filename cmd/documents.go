package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/docqa/internal/audit"
	"github.com/ziadkadry99/docqa/internal/ingest"
	"github.com/ziadkadry99/docqa/internal/tenant"
)

var documentsCmd = &cobra.Command{
	Use:     "documents",
	Aliases: []string{"docs"},
	Short:   "List, process or delete a tenant's documents",
}

var documentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List staged and processed documents",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTenant(cmd, func(ctx context.Context, a *app, tenantID string) error {
			files, err := a.manager.List(ctx, tenantID)
			if err != nil {
				return err
			}
			if jsonFlag(cmd) {
				return printJSON(files)
			}
			if len(files) == 0 {
				fmt.Println("No documents.")
				return nil
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "FILENAME\tSTAGE\tSTATE\tCHUNKS\tSIZE\tMODIFIED")
			for _, f := range files {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
					f.Filename, f.Stage, f.State, f.ChunkCount, f.Size, f.ModifiedAt.Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		})
	},
}

var documentsProcessCmd = &cobra.Command{
	Use:   "process <filename>...",
	Short: "Index files that are already staged",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTenant(cmd, func(ctx context.Context, a *app, tenantID string) error {
			report, err := a.manager.Process(ctx, tenantID, args)
			if err != nil {
				return err
			}
			if jsonFlag(cmd) {
				return printJSON(report)
			}
			for _, f := range report.Files {
				fmt.Printf("  %-40s %s %s\n", f.Filename, f.Status, f.Message)
			}
			fmt.Println(report.OverallMessage)
			return nil
		})
	},
}

var documentsDeleteCmd = &cobra.Command{
	Use:   "delete <filename>...",
	Short: "Delete files and their embeddings",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTenant(cmd, func(ctx context.Context, a *app, tenantID string) error {
			report, err := a.manager.Delete(ctx, tenantID, args)
			if err != nil {
				return err
			}
			if jsonFlag(cmd) {
				return printJSON(report)
			}
			for _, f := range report.Files {
				fmt.Printf("  %-40s %s", f.Filename, f.Status)
				if f.Status == ingest.StatusDeleted {
					fmt.Printf(" (%d chunk(s))", f.ChunksRemoved)
				}
				fmt.Println()
			}
			fmt.Println(report.OverallMessage)
			return nil
		})
	},
}

// withTenant validates --tenant, opens the app and runs fn with the audit
// actor set to the tenant.
func withTenant(cmd *cobra.Command, fn func(ctx context.Context, a *app, tenantID string) error) error {
	tenantID, _ := cmd.Flags().GetString("tenant")
	if err := tenant.Validate(tenantID); err != nil {
		return err
	}
	ctx, a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(audit.WithActor(ctx, tenantID), a, tenantID)
}

func jsonFlag(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func init() {
	for _, c := range []*cobra.Command{documentsListCmd, documentsProcessCmd, documentsDeleteCmd} {
		c.Flags().String("tenant", "", "tenant (user id) that owns the documents")
		c.Flags().Bool("json", false, "output as JSON")
		_ = c.MarkFlagRequired("tenant")
		documentsCmd.AddCommand(c)
	}
	rootCmd.AddCommand(documentsCmd)
}
