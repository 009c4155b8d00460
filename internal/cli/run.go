package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/factharvest/internal/model"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline once",
	Long: `Run discovers the detail pages of the listing, harvests one record
per page, writes the batch artifact and merges new records into the corpus.

Example:
  factharvest run
  factharvest run --listing-url https://www.politifact.com/factchecks/list/ --pages 3
  factharvest run --workers 4 --timeout 10m --store-path ./data_full.csv`,
	Args: cobra.NoArgs,
	RunE: runOnce,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("listing-url", "", "listing page URL")
	runCmd.Flags().Int("pages", 0, "number of listing pages to follow")
	runCmd.Flags().Int("workers", 0, "concurrent detail page fetches")
	runCmd.Flags().Duration("timeout", 0, "deadline for discovery and harvest")
	runCmd.Flags().String("store-path", "", "corpus CSV path (file store)")
	runCmd.Flags().String("artifact-dir", "", "directory for batch artifacts")
	runCmd.Flags().Bool("no-cache", false, "disable the detail page cache")
	runCmd.Flags().Bool("insecure", false, "skip TLS certificate verification")

	bindFlag(runCmd, "listing.url", "listing-url")
	bindFlag(runCmd, "listing.pages", "pages")
	bindFlag(runCmd, "concurrency.workers", "workers")
	bindFlag(runCmd, "run.timeout", "timeout")
	bindFlag(runCmd, "store.path", "store-path")
	bindFlag(runCmd, "run.artifact_dir", "artifact-dir")
	bindFlag(runCmd, "http.insecure_tls", "insecure")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	_ = viper.BindPFlag(key, cmd.Flags().Lookup(flag))
}

func runOnce(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	if noCache, _ := cmd.Flags().GetBool("no-cache"); noCache {
		cfg.Cache.Enabled = false
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if verbose {
		fmt.Fprintf(os.Stderr, "Listing: %s\n", cfg.Listing.URL)
		fmt.Fprintf(os.Stderr, "Workers: %d\n", cfg.Concurrency.Workers)
		fmt.Fprintf(os.Stderr, "Store:   %s\n\n", cfg.Store.Backend)
	}

	outcome, runErr := a.runner.Run(ctx, model.TriggerManual)
	if outcome != nil {
		renderOutcome(os.Stdout, outcome)
	}
	if runErr != nil {
		return fmt.Errorf("run failed: %w", runErr)
	}
	return nil
}

func renderOutcome(out io.Writer, o *model.RunOutcome) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleRounded)
	t.SetTitle("Run %s", o.RunID)
	t.AppendHeader(table.Row{"Field", "Value"})
	t.AppendRows([]table.Row{
		{"State", o.State},
		{"Trigger", o.Trigger},
		{"Listing", o.ListingURL},
		{"URLs discovered", o.URLsDiscovered},
		{"Records harvested", o.RecordsHarvested},
		{"Records degraded", o.RecordsDegraded},
		{"Records appended", o.RecordsAppended},
		{"Duplicates", o.Duplicates},
		{"Corpus size", o.CorpusSize},
		{"Duration", o.Duration().Round(time.Millisecond)},
	})
	if o.ArtifactPath != "" {
		t.AppendRow(table.Row{"Artifact", o.ArtifactPath})
	}
	if !o.Succeeded() {
		t.AppendSeparator()
		t.AppendRow(table.Row{"Failed stage", o.Stage})
		t.AppendRow(table.Row{"Error", o.Error})
	}
	t.Render()
}
