package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/maltedev/amazon-review-scraper/internal/batch"
	"github.com/maltedev/amazon-review-scraper/internal/export"
	"github.com/maltedev/amazon-review-scraper/internal/input"
)

func newRunCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Scrape the jobs in an input file and export the results",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJobs(cmd, v)
		},
	}

	flags := cmd.Flags()
	flags.StringP("input", "i", "", "job file (JSON or YAML)")
	flags.StringP("format", "f", "json", "export format: json, ndjson, csv or excel")
	flags.StringP("outdir", "o", "out", "directory for exported files")
	flags.Int("max-pages", 0, "override max pages per ASIN")
	flags.String("sort", "", "override sort strategy: recent or helpful")
	flags.String("domain", "", "default marketplace for jobs without domainCode")
	flags.Int("workers", 5, "jobs run concurrently")
	flags.String("order", "input", "result order: input or arrival")
	flags.Bool("mock", false, "serve every job from synthetic pages, no network")
	_ = cmd.MarkFlagRequired("input")

	_ = v.BindPFlag("output.format", flags.Lookup("format"))
	_ = v.BindPFlag("output.dir", flags.Lookup("outdir"))
	_ = v.BindPFlag("scraper.concurrent_limit", flags.Lookup("workers"))
	_ = v.BindPFlag("scraper.result_order", flags.Lookup("order"))

	return cmd
}

func runJobs(cmd *cobra.Command, v *viper.Viper) error {
	if mock, _ := cmd.Flags().GetBool("mock"); mock {
		v.Set("scraper.transport", "mock")
	}

	cfg, err := loadConfig(cmd, v)
	if err != nil {
		return err
	}

	// stdout carries only the path of the exported file.
	logger := cfg.Logging.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	format, err := export.ParseFormat(cfg.Output.Format)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	inputPath, _ := flags.GetString("input")
	maxPages, _ := flags.GetInt("max-pages")
	sortStrategy, _ := flags.GetString("sort")
	domain, _ := flags.GetString("domain")

	jobs, err := input.NewLoader(logger).LoadFile(inputPath, input.Overrides{
		DomainCode:   domain,
		MaxPages:     maxPages,
		SortStrategy: sortStrategy,
	})
	if err != nil {
		logger.Error("failed to load jobs", "input", inputPath, "error", err)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		return err
	}
	defer a.Close()

	records := batch.Collect(a.orchestrator.Run(ctx, jobs))

	if a.publisher != nil {
		published := a.publisher.PublishAll(context.WithoutCancel(ctx), records)
		logger.Info("results published", "published", published, "total", len(records))
	}

	if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	name := fmt.Sprintf("amazon_reviews_%s%s", time.Now().UTC().Format("20060102T150405Z"), format.Extension())
	path := filepath.Join(cfg.Output.Dir, name)
	if err := export.WriteFile(path, format, records); err != nil {
		logger.Error("failed to export results", "path", path, "error", err)
		return err
	}

	summary := batch.Summarize(records)
	logger.Info("export complete",
		"path", path,
		"jobs", summary.Total,
		"succeeded", summary.Succeeded,
		"reviews", summary.Reviews,
		"statuses", summary.ByStatus)

	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}
