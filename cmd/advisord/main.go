// Command advisord runs the recommendation agent service for a budget
// tracking application: it keeps the semantic transaction index warm and
// generates per-user recommendation batches on a daily schedule.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ledgerwise/advisor/advisor"
	"github.com/ledgerwise/advisor/engine"
	"github.com/ledgerwise/advisor/scheduler"
	"github.com/ledgerwise/advisor/search"
	"github.com/ledgerwise/advisor/search/embedder/openai"
	"github.com/ledgerwise/advisor/search/index"
	"github.com/ledgerwise/advisor/store"
)

// Version is set via ldflags at build time.
var Version = "dev"

var dbPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "advisord",
		Short: "Recommendation agent for budget tracking",
		Long: `advisord runs an autonomous recommendation agent over a budget
tracker's transaction data. A language model investigates each user's
spending through a semantic search tool and a category aggregation tool,
then synthesizes a small set of evidence-based recommendations.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// .env is optional; system env vars win either way.
			_ = godotenv.Load()
		},
	}
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "advisor.db", "path to the SQLite database")

	rootCmd.AddCommand(newServeCmd(), newGenerateCmd(), newHousekeepCmd(), newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the background indexer and daily recommendation scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp()
			if err != nil {
				return err
			}
			defer app.store.Close()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			if err := app.indexer.Warm(ctx); err != nil {
				return fmt.Errorf("warm index: %w", err)
			}
			app.indexer.Start(ctx)
			app.scheduler.Start(ctx)
			log.Printf("[ADVISORD] serving (version %s, db %s)", Version, dbPath)

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			<-sig
			log.Printf("[ADVISORD] shutting down")
			return nil
		},
	}
}

func newGenerateCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Run the recommendation agent once for a single user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return fmt.Errorf("--user is required")
			}
			app, err := buildApp()
			if err != nil {
				return err
			}
			defer app.store.Close()

			ctx := context.Background()
			if err := app.indexer.Warm(ctx); err != nil {
				return fmt.Errorf("warm index: %w", err)
			}
			// Index anything the background loop has not reached yet.
			if _, err := app.indexer.RunOnce(ctx); err != nil {
				log.Printf("[ADVISORD] indexing pass failed: %v", err)
			}

			batch, err := app.agent.Generate(ctx, userID)
			if err != nil {
				return err
			}
			if len(batch) == 0 {
				fmt.Println("no recommendations generated")
				return nil
			}
			out, err := json.MarshalIndent(batch, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id to generate recommendations for")
	return cmd
}

func newHousekeepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "housekeep",
		Short: "Expire overdue recommendations and purge old ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.Open(dbPath)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := context.Background()
			now := time.Now().UTC()
			expired, err := st.ExpireOverdue(ctx, now)
			if err != nil {
				return err
			}
			purged, err := st.PurgeOlderThan(ctx, now.Add(-30*24*time.Hour))
			if err != nil {
				return err
			}
			fmt.Printf("expired %d, purged %d\n", expired, purged)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(Version)
		},
	}
}

// app bundles the wired components.
type app struct {
	store     *store.SQLiteStore
	indexer   *search.Indexer
	agent     *advisor.Agent
	scheduler *scheduler.Scheduler
}

// buildApp wires the full component graph from environment configuration.
func buildApp() (*app, error) {
	anthropicKey := os.Getenv("ANTHROPIC_API_KEY")
	if anthropicKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is required")
	}

	st, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}

	embedder, err := openai.New(openai.Config{
		APIKey:  os.Getenv("EMBEDDINGS_API_KEY"),
		BaseURL: os.Getenv("EMBEDDINGS_BASE_URL"),
		Model:   os.Getenv("EMBEDDINGS_MODEL"),
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	ix := index.New()
	searchEngine, err := search.NewEngine(embedder, ix)
	if err != nil {
		st.Close()
		return nil, err
	}
	indexer := search.NewIndexer(st, embedder, ix)

	registry, err := engine.NewToolRegistry(
		advisor.NewSearchTransactionsTool(searchEngine),
		advisor.NewCategorySpendingTool(st),
	)
	if err != nil {
		st.Close()
		return nil, err
	}

	client := anthropic.NewClient(option.WithAPIKey(anthropicKey))
	var engineOpts []engine.Option
	if model := os.Getenv("ADVISOR_MODEL"); model != "" {
		engineOpts = append(engineOpts, engine.WithModel(model))
	}
	eng := engine.New(&client.Messages, registry, engineOpts...)

	agent := advisor.New(eng, st, st, advisor.Config{})
	var schedCfg scheduler.Config
	if hour, ok := envHour("ADVISOR_RUN_HOUR"); ok {
		schedCfg.RunHourUTC = &hour
	}
	sched := scheduler.New(agent, st, st, schedCfg)

	return &app{store: st, indexer: indexer, agent: agent, scheduler: sched}, nil
}

// envHour reads a 0-23 hour from the environment. Unset or invalid values
// leave the scheduler default in place.
func envHour(name string) (int, bool) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, false
	}
	var n int
	if _, err := fmt.Sscanf(raw, "%d", &n); err != nil || n < 0 || n > 23 {
		log.Printf("[ADVISORD] invalid %s=%q, using the default run hour", name, raw)
		return 0, false
	}
	return n, true
}
