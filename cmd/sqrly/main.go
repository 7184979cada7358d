package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/primowaterSFMC/sqrly/internal/ai"
	"github.com/primowaterSFMC/sqrly/internal/breakdown"
	"github.com/primowaterSFMC/sqrly/internal/calendar"
	"github.com/primowaterSFMC/sqrly/internal/config"
	"github.com/primowaterSFMC/sqrly/internal/db"
	"github.com/primowaterSFMC/sqrly/internal/mcp"
	"github.com/primowaterSFMC/sqrly/internal/planner"
	"github.com/primowaterSFMC/sqrly/internal/session"
	"github.com/primowaterSFMC/sqrly/pkg/models"
)

var (
	configPath  string
	dbPath      string
	archivePath string
	verbose     bool

	cfg    *config.Config
	logger *zap.Logger
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "sqrly",
		Short:         "Task planning around quadrants, energy and honest workload limits",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(configPath)
			if err != nil {
				return err
			}
			if dbPath != "" {
				cfg.DBPath = dbPath
			}

			if verbose {
				logger, err = zap.NewDevelopment()
			} else {
				logger, err = zap.NewProduction()
			}
			if err != nil {
				return fmt.Errorf("failed to build logger: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "sqrly.yaml", "Path to config file")
	root.PersistentFlags().StringVar(&dbPath, "db-path", "", "Path to database file (overrides config)")
	root.PersistentFlags().StringVar(&archivePath, "archive-path", "", "Path to JSONL archive; enables auto-export")
	root.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable verbose logging")

	root.AddCommand(initCmd(), mcpCmd(), statusCmd(), listTasksCmd(), exportCmd(), importCmd())
	return root
}

func openDatabase(ctx context.Context) (*db.DB, error) {
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := database.Init(ctx); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if archivePath != "" {
		database.EnableAutoExport(archivePath)
	}
	return database, nil
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the database, importing an existing archive if one is present",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			database, err := openDatabase(ctx)
			if err != nil {
				return err
			}
			defer database.Close()

			fmt.Printf("✓ Initialized database at %s\n", cfg.DBPath)

			if archivePath != "" {
				if _, err := os.Stat(archivePath); err == nil {
					if err := database.ImportArchive(ctx, archivePath); err != nil {
						return fmt.Errorf("failed to import archive: %w", err)
					}
					fmt.Printf("✓ Imported archive from %s\n", archivePath)
				}
			}
			return nil
		},
	}
}

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the planning tools over MCP on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			database, err := openDatabase(ctx)
			if err != nil {
				return err
			}
			defer database.Close()

			provider, err := buildProvider(ctx)
			if err != nil {
				return err
			}
			if provider != nil {
				defer provider.Close()
			}

			orch := breakdown.New(provider, cfg.Breakdown, cfg.AI, logger)
			sessions := session.NewManager(orch, database, cfg.Session, logger)

			// Expire idle sessions even while no turns arrive.
			go func() {
				ticker := time.NewTicker(time.Minute)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						if n := sessions.Sweep(ctx); n > 0 {
							logger.Info("swept idle sessions", zap.Int("count", n))
						}
					}
				}
			}()

			s := mcp.NewServer(&mcp.Deps{
				DB:         database,
				Config:     cfg,
				Classifier: planner.NewClassifier(cfg.Quadrant.Threshold),
				Matcher:    planner.NewMatcher(cfg.Energy.Tolerance),
				Detector:   planner.NewDetector(cfg.Overwhelm),
				Breakdown:  orch,
				Sessions:   sessions,
				Calendar:   buildCalendar(ctx),
				Logger:     logger,
			})
			return mcp.Serve(s)
		},
	}
}

// buildProvider constructs the configured AI provider. "none" and an
// unset key both mean no provider, which is a fully working setup on the
// fallback path.
func buildProvider(ctx context.Context) (ai.Provider, error) {
	if cfg.AI.Provider == "" || cfg.AI.Provider == "none" {
		return nil, nil
	}

	apiKey := ""
	if cfg.AI.APIKeyEnv != "" {
		apiKey = os.Getenv(cfg.AI.APIKeyEnv)
	}
	if apiKey == "" {
		logger.Warn("AI provider configured but no API key found, using fallback breakdowns",
			zap.String("provider", cfg.AI.Provider),
			zap.String("api_key_env", cfg.AI.APIKeyEnv))
		return nil, nil
	}

	switch cfg.AI.Provider {
	case "gemini":
		return ai.NewGeminiProvider(ctx, apiKey, cfg.AI.Model)
	case "anthropic":
		return ai.NewAnthropicProvider(apiKey, cfg.AI.Model)
	default:
		return nil, fmt.Errorf("unknown AI provider: %s", cfg.AI.Provider)
	}
}

// buildCalendar returns the Google source when configured, otherwise the
// fixed workday. A calendar that fails to initialize degrades the same way.
func buildCalendar(ctx context.Context) calendar.Source {
	if !cfg.Calendar.Enabled || cfg.Calendar.CredentialsFile == "" {
		return calendar.Fixed{Hours: cfg.Calendar.WorkdayHours}
	}

	src, err := calendar.NewGoogleSource(ctx, cfg.Calendar.CredentialsFile, cfg.Calendar.CalendarID, cfg.Calendar.WorkdayHours)
	if err != nil {
		logger.Warn("calendar unavailable, using fixed workday", zap.Error(err))
		return calendar.Fixed{Hours: cfg.Calendar.WorkdayHours}
	}
	return src
}

func statusCmd() *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show a user's workload at a glance",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			database, err := openDatabase(ctx)
			if err != nil {
				return err
			}
			defer database.Close()

			tasks, err := database.ListTasks(ctx, user, nil)
			if err != nil {
				return err
			}
			goals, err := database.ListGoals(ctx, user)
			if err != nil {
				return err
			}

			statusCounts := make(map[models.TaskStatus]int)
			quadrantCounts := make(map[int]int)
			overdue := 0
			now := time.Now()
			for _, t := range tasks {
				statusCounts[t.Status]++
				if t.Active() {
					quadrantCounts[t.Quadrant]++
				}
				if t.Overdue(now) {
					overdue++
				}
			}

			fmt.Println("Sqrly Status")
			fmt.Println("============")
			fmt.Printf("Goals:       %d\n", len(goals))
			fmt.Printf("Total Tasks: %d\n", len(tasks))
			fmt.Printf("Overdue:     %d\n", overdue)

			fmt.Println("\nBy Status:")
			fmt.Printf("  Pending:     %d\n", statusCounts[models.TaskStatusPending])
			fmt.Printf("  In Progress: %d\n", statusCounts[models.TaskStatusInProgress])
			fmt.Printf("  Completed:   %d\n", statusCounts[models.TaskStatusCompleted])
			fmt.Printf("  Skipped:     %d\n", statusCounts[models.TaskStatusSkipped])

			fmt.Println("\nActive by Quadrant:")
			for q := 1; q <= 4; q++ {
				fmt.Printf("  Q%d %-22s %d\n", q, models.QuadrantName(q)+":", quadrantCounts[q])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "default", "User to report on")
	return cmd
}

func listTasksCmd() *cobra.Command {
	var user, statusFilter string
	cmd := &cobra.Command{
		Use:   "list-tasks",
		Short: "List a user's tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			database, err := openDatabase(ctx)
			if err != nil {
				return err
			}
			defer database.Close()

			var status *models.TaskStatus
			if statusFilter != "" {
				s := models.TaskStatus(statusFilter)
				status = &s
			}

			tasks, err := database.ListTasks(ctx, user, status)
			if err != nil {
				return err
			}

			fmt.Printf("%-30s %-3s %-7s %-12s %-20s\n", "TITLE", "Q", "ENERGY", "STATUS", "DUE")
			fmt.Println("---------------------------------------------------------------------------")
			for _, t := range tasks {
				due := ""
				if t.DueDate != nil {
					due = t.DueDate.Format("2006-01-02 15:04")
				}
				fmt.Printf("%-30s %-3d %-7d %-12s %-20s\n", t.Title, t.Quadrant, t.RequiredEnergy, t.Status, due)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "default", "User whose tasks to list")
	cmd.Flags().StringVar(&statusFilter, "status", "", "Filter by status (pending, in_progress, completed, skipped)")
	return cmd
}

func exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <path>",
		Short: "Write the full dataset to a JSONL archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			database, err := openDatabase(ctx)
			if err != nil {
				return err
			}
			defer database.Close()

			if err := database.ExportArchive(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("✓ Exported archive to %s\n", args[0])
			return nil
		},
	}
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <path>",
		Short: "Merge a JSONL archive into the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			database, err := openDatabase(ctx)
			if err != nil {
				return err
			}
			defer database.Close()

			if err := database.ImportArchive(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("✓ Imported archive from %s\n", args[0])
			return nil
		},
	}
}
