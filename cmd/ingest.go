package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/docqa/internal/audit"
	"github.com/ziadkadry99/docqa/internal/ingest"
	"github.com/ziadkadry99/docqa/internal/progress"
	"github.com/ziadkadry99/docqa/internal/tenant"
	"github.com/ziadkadry99/docqa/internal/walker"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <path|dir|glob>...",
	Short: "Stage and index documents for a tenant",
	Long: `Collects documents from files, directories and doublestar globs such as
"docs/**/*.pdf", stages them for the tenant and processes them into the
tenant's vector index. Use --stage-only to upload without processing.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().String("tenant", "", "tenant (user id) that owns the documents")
	ingestCmd.Flags().StringSlice("exclude", nil, "doublestar patterns to skip")
	ingestCmd.Flags().Bool("stage-only", false, "stage files without processing them")
	ingestCmd.Flags().Bool("json", false, "print the processing report as JSON")
	_ = ingestCmd.MarkFlagRequired("tenant")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	tenantID, _ := cmd.Flags().GetString("tenant")
	exclude, _ := cmd.Flags().GetStringSlice("exclude")
	stageOnly, _ := cmd.Flags().GetBool("stage-only")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	if err := tenant.Validate(tenantID); err != nil {
		return err
	}

	ctx, a, err := openApp(context.Background())
	if err != nil {
		return err
	}
	defer a.Close()
	ctx = audit.WithActor(ctx, tenantID)

	found, err := walker.Collect(walker.Config{
		Patterns:    args,
		Exclude:     exclude,
		Extensions:  a.cfg.Ingest.AllowedExtensions,
		MaxFileSize: a.cfg.Ingest.MaxUploadBytes,
	})
	if err != nil {
		return err
	}
	for _, s := range found.Skipped {
		fmt.Fprintf(os.Stderr, "skipping %s: %s\n", s.Path, s.Reason)
	}
	if len(found.Files) == 0 {
		return fmt.Errorf("no documents to ingest")
	}

	staged := make([]string, 0, len(found.Files))
	reporter := progress.NewReporter(os.Stderr, "Staging")
	reporter.Start(len(found.Files))
	for i, f := range found.Files {
		if err := stageFile(ctx, a.manager, tenantID, f); err != nil {
			reporter.Finish()
			return fmt.Errorf("staging %s: %w", f.Path, err)
		}
		staged = append(staged, f.Name)
		reporter.Update(i+1, f.Name)
	}
	reporter.Finish()

	if stageOnly {
		fmt.Printf("Staged %d file(s) for %s\n", len(staged), tenantID)
		return nil
	}

	// One file per Process call so the bar moves as each file finishes.
	report := &ingest.ProcessReport{TenantID: tenantID}
	reporter = progress.NewReporter(os.Stderr, "Indexing")
	reporter.Start(len(staged))
	for i, name := range staged {
		r, err := a.manager.Process(ctx, tenantID, []string{name})
		if err != nil {
			reporter.Finish()
			return err
		}
		report.Files = append(report.Files, r.Files...)
		report.TotalChunks += r.TotalChunks
		report.TableChunks += r.TableChunks
		report.TextSections += r.TextSections
		reporter.Update(i+1, name)
	}
	reporter.Finish()

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	failed := 0
	for _, f := range report.Files {
		mark := "ok"
		if f.Status != ingest.StatusProcessed {
			mark = string(f.Status)
			failed++
		}
		fmt.Printf("  %-40s %-28s %d chunk(s)", f.Filename, mark, f.TotalChunks)
		if f.Message != "" && f.Status != ingest.StatusProcessed {
			fmt.Printf("  %s", f.Message)
		}
		fmt.Println()
	}
	fmt.Printf("\n%d file(s), %d chunk(s) (%d text section(s), %d table chunk(s))\n",
		len(report.Files), report.TotalChunks, report.TextSections, report.TableChunks)
	if failed > 0 {
		return fmt.Errorf("%d file(s) were not indexed", failed)
	}
	return nil
}

func stageFile(ctx context.Context, m *ingest.Manager, tenantID string, f walker.FileInfo) error {
	r, err := os.Open(f.Path)
	if err != nil {
		return err
	}
	defer r.Close()
	_, err = m.Upload(ctx, tenantID, f.Name, r)
	return err
}
