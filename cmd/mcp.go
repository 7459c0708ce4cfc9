package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ziadkadry99/docqa/internal/mcp"
	"github.com/ziadkadry99/docqa/internal/tenant"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve a tenant's documents to AI agents over MCP (stdio)",
	Long: `Starts an MCP server on stdio exposing search_documents, ask_documents and
list_documents for one tenant. Logs go to stderr.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tenantID, _ := cmd.Flags().GetString("tenant")
		if err := tenant.Validate(tenantID); err != nil {
			return err
		}

		ctx, a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.store.Count(ctx, tenantID)
		if err != nil {
			a.log.Warn("counting indexed chunks", zap.Error(err))
		}
		a.log.Info("docqa MCP server started on stdio",
			zap.String("tenant", tenantID),
			zap.Int("chunks", n),
			zap.Bool("llm_configured", a.answerer.Configured()),
		)

		answerer := a.answerer
		if !answerer.Configured() {
			answerer = nil
		}
		return mcp.NewServer(tenantID, a.store, answerer, a.manager).Serve()
	},
}

func init() {
	mcpCmd.Flags().String("tenant", "", "tenant (user id) whose documents are served")
	_ = mcpCmd.MarkFlagRequired("tenant")
	rootCmd.AddCommand(mcpCmd)
}
