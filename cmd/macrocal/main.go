// Command macrocal is the economic calendar client.
//
// Main CLI entrypoint using cobra command framework.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/seenimoa/macrocal/api"
	"github.com/seenimoa/macrocal/internal/app"
	"github.com/seenimoa/macrocal/internal/client"
	"github.com/seenimoa/macrocal/internal/config"
	"github.com/seenimoa/macrocal/internal/controller"
	"github.com/seenimoa/macrocal/internal/filter"
	"github.com/seenimoa/macrocal/internal/logger"
	"github.com/seenimoa/macrocal/internal/notify"
	"github.com/seenimoa/macrocal/internal/storage"
	"github.com/seenimoa/macrocal/pkg/models"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Global config and logger, set up before every command.
var (
	cfg       *config.Config
	log       *logrus.Logger
	logCloser io.Closer
)

func main() {
	err := rootCmd.Execute()
	if logCloser != nil {
		logCloser.Close()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "macrocal",
	Short: "macrocal: today's economic calendar and AI market summary",
	Long: `macrocal fetches today's economic events and the AI market summary
from the calendar service, normalizes and filters them, and keeps the last
good snapshot so that something useful is shown when the service is down.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		configFile, _ := cmd.Flags().GetString("config")
		if configFile != "" {
			cfg, err = config.LoadFromFile(configFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
			cfg.Logging.Level = lvl
		}

		log, logCloser, err = logger.New(logger.Options{
			Level:  cfg.Logging.Level,
			Format: cfg.Logging.Format,
			File:   cfg.Logging.File,
		})
		if err != nil {
			return fmt.Errorf("failed to set up logging: %w", err)
		}
		api.Version = version
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(filtersCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serveCmd)
}

// newApp wires the pipeline with toasts printed to stderr.
func newApp(ctx context.Context) (*app.App, error) {
	return app.New(ctx, cfg, log, notify.NewWriter(os.Stderr))
}

// loadErr turns a load error into the command result: having something to
// show (live or cached) is success, having nothing is not.
func loadErr(err error) error {
	if err == nil || !client.IsKind(err, client.KindOfflineNoCache) {
		return nil
	}
	return fmt.Errorf("%s", client.MsgOfflineNoCache)
}

// --- Version Command ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("macrocal %s\n", version)
		fmt.Printf("  commit:  %s\n", commit)
		fmt.Printf("  built:   %s\n", date)
	},
}

// --- Status Command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the calendar service and show configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		fmt.Println("═══════════════════════════════════════")
		fmt.Println("  macrocal: System Status")
		fmt.Println("═══════════════════════════════════════")
		fmt.Printf("  Version:       %s (%s)\n", version, commit)

		info, err := a.CheckServer(ctx)
		switch {
		case err != nil:
			fmt.Printf("  Service:       ❌ unreachable (%s)\n", client.UserMessage(err))
		case info.Healthy:
			fmt.Printf("  Service:       ✅ %s (mode: %s)\n", info.Status, info.Mode)
		default:
			fmt.Printf("  Service:       ⚠️  %s (mode: %s)\n", info.Status, info.Mode)
		}
		if err == nil {
			fmt.Printf("  AI Analysis:   %v\n", info.AIEnabled)
		}
		fmt.Println()

		fmt.Println("  Configuration:")
		fmt.Printf("    API:           %s\n", cfg.API.BaseURL)
		fmt.Printf("    Storage:       %s\n", cfg.Storage.Backend)
		fmt.Printf("    View Server:   %s\n", cfg.ServerAddr())
		fmt.Printf("    Retry:         %d × %s\n", cfg.Retry.Attempts, cfg.Retry.Delay)
		fmt.Println()

		fmt.Println("  Credentials:")
		for _, k := range config.CheckSecrets(cfg) {
			status := "not set"
			if k.IsSet {
				status = fmt.Sprintf("✅ set (%s: %s)", k.Source, k.Masked)
			}
			fmt.Printf("    %-16s %s\n", k.Name+":", status)
		}
		fmt.Println("═══════════════════════════════════════")
		return nil
	},
}

// --- Events Command ---

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show today's events",
	Long: `Show today's economic events. Filter flags apply to this run only and
default to the saved selection (see "macrocal filters").

Examples:
  macrocal events
  macrocal events --importance high --sort importance
  macrocal events --currency USD --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := loadErr(a.Events.Load(ctx)); err != nil {
			return err
		}
		v := a.Events.View()

		f := v.Filters
		if cmd.Flags().Changed("importance") {
			f.Importance, _ = cmd.Flags().GetString("importance")
		}
		if cmd.Flags().Changed("currency") {
			f.Currency, _ = cmd.Flags().GetString("currency")
		}
		if cmd.Flags().Changed("country") {
			f.Country, _ = cmd.Flags().GetString("country")
		}
		f = f.WithDefaults()
		if _, ok := models.ImportanceLevel(f.Importance); !ok && f.Importance != models.FilterAll {
			return fmt.Errorf("invalid importance %q (all, high, medium, low)", f.Importance)
		}
		sortFlag, _ := cmd.Flags().GetString("sort")
		key, ok := models.ParseSortKey(sortFlag)
		if !ok {
			return fmt.Errorf("invalid sort key %q (time, importance, country)", sortFlag)
		}

		events := filter.Apply(a.Events.All(), f, key)

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(events)
		}
		renderEvents(os.Stdout, events, v.Server, v.FromCache)
		return nil
	},
}

func init() {
	eventsCmd.Flags().String("importance", "", "importance filter: all, high, medium, low")
	eventsCmd.Flags().String("currency", "", "currency filter, e.g. USD")
	eventsCmd.Flags().String("country", "", "country filter, e.g. US")
	eventsCmd.Flags().String("sort", "time", "sort by: time, importance, country")
	eventsCmd.Flags().Bool("json", false, "print normalized events as JSON")
}

// --- Summary Command ---

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show today's AI market summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := loadErr(a.Summary.Load(ctx)); err != nil {
			return err
		}
		if html, _ := cmd.Flags().GetBool("html"); html {
			fmt.Println(a.Summary.HTML())
			return nil
		}
		renderSummary(os.Stdout, a.Summary.View())
		return nil
	},
}

func init() {
	summaryCmd.Flags().Bool("html", false, "render the summary as HTML")
}

// --- Refresh Command ---

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Ask the service to regenerate today's data",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Events.Refresh(ctx); err != nil {
			return fmt.Errorf("refresh failed: %w", err)
		}
		fmt.Printf("✅ %d events loaded\n", len(a.Events.All()))
		return nil
	},
}

// --- Filters Command ---

var filtersCmd = &cobra.Command{
	Use:   "filters",
	Short: "Show or change the saved filter selection",
}

var filtersShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the saved filter selection",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := storage.Open(ctx, cfg.Storage)
		if err != nil {
			return err
		}
		defer store.Close()

		f := models.DefaultFilters()
		if _, err := storage.GetJSON(ctx, store, controller.KeyFilters, &f); err != nil {
			return err
		}
		f = f.WithDefaults()
		fmt.Printf("  importance: %s\n", f.Importance)
		fmt.Printf("  currency:   %s\n", f.Currency)
		fmt.Printf("  country:    %s\n", f.Country)
		return nil
	},
}

var filtersSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change the saved filter selection",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		f := models.DefaultFilters()
		if _, err := storage.GetJSON(ctx, a.Store, controller.KeyFilters, &f); err != nil {
			return err
		}
		for _, dim := range []string{controller.DimImportance, controller.DimCurrency, controller.DimCountry} {
			if !cmd.Flags().Changed(dim) {
				continue
			}
			val, _ := cmd.Flags().GetString(dim)
			switch dim {
			case controller.DimImportance:
				f.Importance = val
			case controller.DimCurrency:
				f.Currency = strings.ToUpper(val)
			case controller.DimCountry:
				f.Country = strings.ToUpper(val)
			}
		}
		if err := a.Events.SetFilters(ctx, f); err != nil {
			return err
		}
		fmt.Println("✅ filters saved")
		return nil
	},
}

var filtersResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget the saved filter selection",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		a.Events.ResetFilters(ctx)
		return nil
	},
}

func init() {
	filtersSetCmd.Flags().String(controller.DimImportance, "", "all, high, medium, low")
	filtersSetCmd.Flags().String(controller.DimCurrency, "", "all or a currency code")
	filtersSetCmd.Flags().String(controller.DimCountry, "", "all or a country code")
	filtersCmd.AddCommand(filtersShowCmd, filtersSetCmd, filtersResetCmd)
}

// --- Cache Command ---

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the offline snapshot",
}

var cacheShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the offline snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		snap := a.Cache.LoadSnapshot(ctx)
		if snap.IsEmpty() {
			fmt.Println("(cache is empty)")
			return nil
		}
		saved := "unknown"
		if !snap.Timestamp.IsZero() {
			saved = snap.Timestamp.Local().Format("2006-01-02 15:04:05")
		}
		fmt.Printf("  saved at: %s\n", saved)
		fmt.Printf("  events:   %d\n", len(snap.Events))
		fmt.Printf("  summary:  %d chars\n", len([]rune(snap.Summary)))
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the offline snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.Cache.Clear(ctx); err != nil {
			return err
		}
		fmt.Println("✅ cache cleared")
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheShowCmd, cacheClearCmd)
}

// --- Config Command ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration with secrets masked",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := yaml.Marshal(config.Redacted(cfg))
		if err != nil {
			return err
		}
		fmt.Print(string(out))
		return nil
	},
}

// --- Serve Command (view server) ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local view server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := app.New(ctx, cfg, log, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		if _, err := a.CheckServer(ctx); err != nil {
			log.WithError(err).Warn("calendar service not reachable at startup")
		}
		if err := a.Events.Load(ctx); err != nil {
			log.WithError(err).Warn("initial event load incomplete")
		}
		if err := a.Summary.Load(ctx); err != nil {
			log.WithError(err).Warn("initial summary load incomplete")
		}
		a.Events.StartClock()

		fmt.Printf("🌐 Starting macrocal view server on %s\n", cfg.ServerAddr())
		return api.NewServer(a).ListenAndServe(cfg.ServerAddr())
	},
}
