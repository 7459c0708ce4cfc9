package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/docqa/internal/audit"
	"github.com/ziadkadry99/docqa/internal/tenant"
	"github.com/ziadkadry99/docqa/internal/vectordb"
)

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Ask a question about a tenant's documents",
	Long: `Retrieves the most relevant chunks from the tenant's index and asks the
configured LLM to answer from them, listing the sources it was given.
With --search-only the retrieved chunks are printed instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().String("tenant", "", "tenant (user id) whose documents are searched")
	queryCmd.Flags().Int("top-k", 0, "number of chunks to retrieve (0 uses retrieval.default_top_k)")
	queryCmd.Flags().Bool("search-only", false, "print retrieved chunks without calling the LLM")
	queryCmd.Flags().Bool("json", false, "output the answer as JSON")
	_ = queryCmd.MarkFlagRequired("tenant")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	question := args[0]
	tenantID, _ := cmd.Flags().GetString("tenant")
	topK, _ := cmd.Flags().GetInt("top-k")
	searchOnly, _ := cmd.Flags().GetBool("search-only")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	if err := tenant.Validate(tenantID); err != nil {
		return err
	}

	ctx, a, err := openApp(context.Background())
	if err != nil {
		return err
	}
	defer a.Close()

	if searchOnly {
		if topK <= 0 {
			topK = a.cfg.Retrieval.DefaultTopK
		}
		results, err := a.store.Search(ctx, tenantID, question, min(topK, a.cfg.Retrieval.MaxTopK))
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}
		if jsonOutput {
			return printJSON(results)
		}
		fmt.Print(vectordb.FormatResults(results))
		return nil
	}

	ans, err := a.answerer.Answer(ctx, tenantID, question, topK)
	if err != nil {
		return err
	}

	_ = a.audit.Log(ctx, audit.Entry{
		TenantID: tenantID,
		ActorID:  tenantID,
		Action:   audit.ActionQuery,
		Outcome:  outcomeOf(ans.ConfigurationError),
	})

	if jsonOutput {
		return printJSON(ans)
	}

	fmt.Println(ans.Answer)
	if len(ans.Sources) > 0 {
		fmt.Println("\nSources:")
		for _, s := range ans.Sources {
			fmt.Printf("  - %s\n", describeCitation(s.Filename, s.Page, s.SectionTitle, s.TableChunkIndex))
		}
	}
	return nil
}

func describeCitation(filename string, page *int, section string, tableChunk *int) string {
	out := filename
	if page != nil {
		out += fmt.Sprintf(", page %d", *page)
	}
	if section != "" {
		out += ", section " + section
	}
	if tableChunk != nil {
		out += fmt.Sprintf(", table chunk %d", *tableChunk)
	}
	return out
}

func outcomeOf(configError bool) string {
	if configError {
		return "not_configured"
	}
	return "answered"
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
