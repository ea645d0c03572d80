// Command pipeline extracts, normalizes and validates financial statements
// from spreadsheets, HTML or Markdown filings, or market-data APIs.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"
	"valuation_data/pkg/core/config"
	"valuation_data/pkg/core/extract"
	"valuation_data/pkg/core/logging"
	"valuation_data/pkg/core/pipeline"
	"valuation_data/pkg/models"

	"github.com/joho/godotenv"
	"github.com/phuslu/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
)

var (
	cfg    *config.Config
	logger *log.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "pipeline",
	Short:         "Financial statement extraction, normalization and validation",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		envFile, _ := cmd.Flags().GetString("env-file")
		if err := godotenv.Load(envFile); err != nil && cmd.Flags().Changed("env-file") {
			return fmt.Errorf("failed to load %s: %w", envFile, err)
		}

		configFile, _ := cmd.Flags().GetString("config")
		var err error
		if cfg, err = config.Load(configFile); err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if level, _ := cmd.Flags().GetString("log-level"); level != "" {
			cfg.Logging.Level = level
		}
		logger = logging.New(cfg.Logging)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "YAML config file (defaults plus VALDATA_* env when empty)")
	rootCmd.PersistentFlags().String("env-file", ".env", "dotenv file loaded before the config")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd, runCmd, batchCmd, cacheCmd, sourcesCmd, configCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().Int("years", 0, "most recent fiscal years to keep (default from config)")
	cmd.Flags().StringSlice("analyses", nil, "downstream analyses: dcf, lbo, comps, wacc")
	cmd.Flags().String("context", "", `unit hint, e.g. "USD in thousands"`)
	cmd.Flags().String("company", "", "company name when the source does not carry one")
	cmd.Flags().Bool("strict", false, "exit non-zero when validation fails")
}

func runOptions(cmd *cobra.Command) (pipeline.RunOptions, error) {
	years, _ := cmd.Flags().GetInt("years")
	names, _ := cmd.Flags().GetStringSlice("analyses")
	hint, _ := cmd.Flags().GetString("context")
	company, _ := cmd.Flags().GetString("company")

	opts := pipeline.RunOptions{Years: years, ContextHint: hint, Company: models.Company{Name: company}}
	for _, n := range names {
		a, err := models.ParseAnalysis(n)
		if err != nil {
			return opts, err
		}
		opts.Analyses = append(opts.Analyses, a)
	}
	return opts, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// --- Version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	PersistentPreRunE: func(*cobra.Command, []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("pipeline %s (%s)\n", version, commit)
	},
}

// --- Run ---

var runCmd = &cobra.Command{
	Use:   "run <file-or-ticker>",
	Short: "Run the pipeline for one source",
	Long: `Run extraction, scale normalization and validation for one source.

Examples:
  pipeline run reports/acme_10k.xlsx --analyses dcf,comps
  pipeline run filing.html --context "USD in thousands"
  pipeline run AAPL --years 5`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := runOptions(cmd)
		if err != nil {
			return err
		}
		ctx, stop := signalContext()
		defer stop()

		p, closeFn, err := pipeline.Build(ctx, cfg, logger, nil)
		if err != nil {
			return err
		}
		defer closeFn()

		res, err := p.Run(ctx, args[0], opts)
		if err != nil {
			return err
		}
		if err := printJSON(res); err != nil {
			return err
		}
		if strict, _ := cmd.Flags().GetBool("strict"); strict && !res.Validation.IsValid {
			return fmt.Errorf("validation failed with %d hard issues", len(res.Validation.HardIssues()))
		}
		return nil
	},
}

// --- Batch ---

var batchCmd = &cobra.Command{
	Use:   "batch <file-or-ticker>...",
	Short: "Run the pipeline for several sources concurrently",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := runOptions(cmd)
		if err != nil {
			return err
		}
		ctx, stop := signalContext()
		defer stop()

		reg := prometheus.NewRegistry()
		if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
			srv := &http.Server{Addr: addr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), ReadHeaderTimeout: 5 * time.Second}
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error().Err(err).Str("addr", addr).Msg("metrics server failed")
				}
			}()
			defer srv.Close()
		}

		p, closeFn, err := pipeline.Build(ctx, cfg, logger, reg)
		if err != nil {
			return err
		}
		defer closeFn()

		items, err := p.RunBatch(ctx, args, opts)
		if perr := printJSON(items); perr != nil {
			return perr
		}
		if err != nil {
			return err
		}

		strict, _ := cmd.Flags().GetBool("strict")
		failed := 0
		for _, it := range items {
			if it.Err != nil || (strict && !it.Result.Validation.IsValid) {
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d sources failed", failed, len(items))
		}
		return nil
	},
}

// --- Cache ---

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the extraction cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached extraction",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		c, closeFn, err := pipeline.OpenCache(ctx, cfg.Cache, logger)
		if err != nil {
			return err
		}
		defer closeFn()
		if c == nil {
			fmt.Println("cache disabled, nothing to clear")
			return nil
		}
		if err := c.Clear(ctx); err != nil {
			return err
		}
		fmt.Printf("cleared %s cache\n", cfg.Cache.Backend)
		return nil
	},
}

// --- Sources ---

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List the extractors configured for each source kind",
	RunE: func(cmd *cobra.Command, args []string) error {
		available := pipeline.Extractors(cfg, logger)
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KIND\tORDER\tEXTRACTOR\tNETWORK\tCREDENTIALS\tDESCRIPTION")
		for _, kind := range []extract.Kind{extract.KindExcel, extract.KindHTML, extract.KindMarkdown, extract.KindAPI} {
			for i, name := range cfg.Chain(kind) {
				x, ok := available[name]
				if !ok {
					continue
				}
				req := x.Requirements()
				creds := strings.Join(req.Credentials, ",")
				if creds == "" {
					creds = "-"
				}
				fmt.Fprintf(w, "%s\t%d\t%s\t%t\t%s\t%s\n", kind, i+1, name, req.NeedsNetwork, creds, req.Description)
			}
		}
		return w.Flush()
	},
}

// --- Config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Print(cfg.Summary())
	},
}

func init() {
	addRunFlags(runCmd)
	addRunFlags(batchCmd)
	batchCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address while the batch runs")
}
