package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/TobiSchelling/autonews/internal/collect"
	"github.com/TobiSchelling/autonews/internal/config"
	"github.com/TobiSchelling/autonews/internal/database"
	"github.com/TobiSchelling/autonews/internal/pipeline"
	"github.com/TobiSchelling/autonews/internal/server"
	"github.com/spf13/cobra"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	envPath    string
	cfg        *config.Config
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "autonews",
	Short:   "Rewrite top headlines and publish them to WordPress.com",
	Long:    "autonews fetches top headlines per topic, rewrites them with an LLM and publishes each one with its image as a WordPress.com post.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		if err := config.LoadDotEnv(envPath); err != nil {
			return err
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		// Only the run command talks to the outside world.
		if cmd.Name() == "run" {
			if err := cfg.ResolveSecrets(os.Getenv); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&envPath, "env-file", "", "Path to .env file (default ./.env)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("autonews", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/autonews/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Set NEWS_API_KEY, OPENAI_API_KEY and WP_ACCESS_TOKEN in the environment or a .env file.")
		return nil
	},
}

// --- run command ---

var dryRun bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch, rewrite and publish today's headlines",
	RunE: func(cmd *cobra.Command, args []string) error {
		db := openHistory(cfg)
		if db != nil {
			defer db.Close()
		}

		pipe := pipeline.New(cfg, db)

		var result *pipeline.Result
		if dryRun {
			result = pipe.DryRun(cmd.Context())
		} else {
			result = pipe.Run(cmd.Context())
		}

		printResult(result)
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Fetch headlines and show what would be published")
}

// openHistory returns nil when history is disabled or cannot be opened.
// A broken history store never blocks publishing.
func openHistory(c *config.Config) *database.DB {
	if !c.History.Enabled {
		return nil
	}
	db, err := database.OpenInDir(c.GetDataDir())
	if err != nil {
		log.Printf("Run history unavailable, continuing without it: %v", err)
		return nil
	}
	return db
}

func printResult(r *pipeline.Result) {
	fmt.Printf("\nRun %s\n", r.RunID)
	if r.DryRun {
		fmt.Println("  [dry-run] nothing was rewritten or published")
	}

	fmt.Println("\nFetched:")
	for _, b := range collect.Buckets {
		line := fmt.Sprintf("  %-9s %d", b, r.Fetched[b])
		if err, ok := r.SourceErrors[b]; ok {
			line += fmt.Sprintf("  (error: %v)", err)
		}
		fmt.Println(line)
	}

	if len(r.Outcomes) == 0 {
		fmt.Println("\nNo articles to process.")
		return
	}

	fmt.Println("\nArticles:")
	for _, o := range r.Outcomes {
		fmt.Printf("  [%s #%d] %s: %s\n", o.Bucket, o.Index, o.Status, o.Title)
		if o.Degraded {
			fmt.Println("      published with fallback text")
		}
		if o.PostURL != "" {
			fmt.Printf("      %s\n", o.PostURL)
		}
		if o.Reason != "" && o.Status != pipeline.StatusPublished {
			fmt.Printf("      %s\n", o.Reason)
		}
	}

	if !r.DryRun {
		fmt.Printf("\nPublished %d, skipped %d, failed %d.\n", r.Published(), r.Skipped(), r.Failed())
	}
}

// --- history command ---

var (
	historyLimit int
	historyRun   string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent runs, or the articles of one run",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		if historyRun != "" {
			return showRun(db, historyRun)
		}

		runs, err := db.GetRecentRuns(historyLimit)
		if err != nil {
			return fmt.Errorf("getting runs: %w", err)
		}
		if len(runs) == 0 {
			fmt.Println("No runs recorded yet. Start one with: autonews run")
			return nil
		}

		for _, r := range runs {
			mode := ""
			if r.DryRun {
				mode = " (dry-run)"
			}
			fmt.Printf("%s  %s%s\n", r.StartedAt, r.ID, mode)
			fmt.Printf("    fetched %d, published %d, skipped %d, failed %d\n", r.Fetched, r.Published, r.Skipped, r.Failed)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "Number of runs to show (0 for all)")
	historyCmd.Flags().StringVar(&historyRun, "run", "", "Show the articles of one run")
}

func showRun(db *database.DB, runID string) error {
	run, err := db.GetRun(runID)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("run %s not found", runID)
	}

	fmt.Printf("Run %s\n", run.ID)
	fmt.Printf("  Started:  %s\n", run.StartedAt)
	fmt.Printf("  Finished: %s\n", run.FinishedAt)
	if run.DryRun {
		fmt.Println("  Dry run")
	}

	sourceErrors, err := db.GetRunSourceErrors(runID)
	if err != nil {
		return err
	}
	for _, e := range sourceErrors {
		fmt.Printf("  %s source failed: %s\n", e.Bucket, e.Message)
	}

	outcomes, err := db.GetRunOutcomes(runID)
	if err != nil {
		return err
	}
	fmt.Println()
	for _, o := range outcomes {
		fmt.Printf("  [%s #%d] %s: %s\n", o.Bucket, o.Index, o.Status, o.Title)
		if o.PostURL != "" {
			fmt.Printf("      %s\n", o.PostURL)
		}
		if o.Reason != "" {
			fmt.Printf("      %s\n", o.Reason)
		}
	}
	return nil
}

// --- status command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration and publishing totals",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("Configuration:")
		fmt.Printf("  Provider: %s\n", cfg.Rewrite.Provider)
		fmt.Printf("  Site: %s\n", cfg.Publish.SiteID)
		fmt.Printf("  On rewrite failure: %s\n", cfg.Rewrite.OnFailure)
		fmt.Printf("  Temp dir: %s\n", cfg.GetTempDir())
		secrets := []string{cfg.Sources.NewsAPI.APIKeyEnv, cfg.Publish.TokenEnv}
		if cfg.UsesOpenAI() {
			secrets = append(secrets, cfg.Rewrite.APIKeyEnv)
		}
		for _, name := range secrets {
			state := "set"
			if os.Getenv(name) == "" {
				state = "missing"
			}
			fmt.Printf("  %s: %s\n", name, state)
		}

		if !cfg.History.Enabled {
			fmt.Println("\nRun history is disabled.")
			return nil
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Println("\nHistory:")
		fmt.Printf("  Database: %s\n", db.Path())
		if version, err := db.SchemaVersion(); err == nil {
			fmt.Printf("  Schema: v%d\n", version)
		}
		fmt.Printf("  Runs: %d\n", stats.Runs)
		fmt.Printf("  Published: %d\n", stats.Published)
		fmt.Printf("  Skipped: %d\n", stats.Skipped)
		fmt.Printf("  Failed: %d\n", stats.Failed)
		if stats.LastRunAt != "" {
			fmt.Printf("  Last run: %s\n", stats.LastRunAt)
		}
		return nil
	},
}

// --- serve command ---

var (
	servePort  int
	serveLimit int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Browse run history in a local web page",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		fmt.Printf("Starting server at http://localhost:%d\n", servePort)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(db, servePort, serveLimit)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
	serveCmd.Flags().IntVarP(&serveLimit, "limit", "n", 50, "Number of runs to list")
}

func openDB() (*database.DB, error) {
	return database.OpenInDir(cfg.GetDataDir())
}
