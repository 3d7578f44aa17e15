package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"cryptorafts/api/internal/app"
	"cryptorafts/api/internal/config"
	"cryptorafts/api/internal/gitrepo"
	"cryptorafts/api/internal/logger"
	"cryptorafts/api/internal/search"
	"cryptorafts/api/internal/store"
)

var (
	reviewerID   string
	demoPassword string
	rollbackOne  bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withEnv(cmd.Context(), func(env *adminEnv) error {
			if rollbackOne {
				m, ok, err := store.RollbackMigration(env.ctx, env.db, env.cfg.MigrationsDir)
				if err != nil {
					return fmt.Errorf("rollback: %w", err)
				}
				if !ok {
					fmt.Println("nothing to roll back")
					return nil
				}
				fmt.Printf("rolled back %s\n", m.ID())
				return nil
			}
			states, err := store.MigrationStatus(env.ctx, env.db, env.cfg.MigrationsDir)
			if err != nil {
				return fmt.Errorf("migration status: %w", err)
			}
			for _, s := range states {
				applied := "pending"
				if s.AppliedAt != nil {
					applied = s.AppliedAt.Format(time.RFC3339)
				}
				fmt.Printf("%-40s %s\n", s.ID(), applied)
			}
			return nil
		})
	},
}

var approveAllCmd = &cobra.Command{
	Use:   "approve-all",
	Short: "Verify every pending KYC and KYB submission",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withEnv(cmd.Context(), func(env *adminEnv) error {
			result, err := env.service.ApproveAll(env.ctx, reviewerID)
			if err != nil {
				return fmt.Errorf("approve all: %w", err)
			}
			return printJSON(result)
		})
	},
}

var seedDemoCmd = &cobra.Command{
	Use:   "seed-demo",
	Short: "Create a demo founder with submitted and analysed projects",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withEnv(cmd.Context(), func(env *adminEnv) error {
			result, err := env.service.SeedDemo(env.ctx, demoPassword)
			if err != nil {
				return fmt.Errorf("seed demo: %w", err)
			}
			return printJSON(result)
		})
	},
}

var setRoleCmd = &cobra.Command{
	Use:   "set-role <user-id> <role>",
	Short: "Assign a role to a user",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEnv(cmd.Context(), func(env *adminEnv) error {
			if err := env.service.SetUserRole(env.ctx, args[0], args[1]); err != nil {
				return fmt.Errorf("set role: %w", err)
			}
			fmt.Printf("%s is now %s\n", args[0], args[1])
			return nil
		})
	},
}

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Push every project and published post to the search index",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withEnv(cmd.Context(), func(env *adminEnv) error {
			counts, err := env.search.ReindexAll(env.ctx)
			if err != nil {
				return fmt.Errorf("reindex: %w", err)
			}
			return printJSON(counts)
		})
	},
}

var publishScheduledCmd = &cobra.Command{
	Use:   "publish-scheduled",
	Short: "Publish blog posts whose scheduled time has passed",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withEnv(cmd.Context(), func(env *adminEnv) error {
			n, err := env.service.Publisher().PublishDue(env.ctx)
			if err != nil {
				return fmt.Errorf("publish scheduled: %w", err)
			}
			fmt.Printf("published %d post(s)\n", n)
			return nil
		})
	},
}

func init() {
	approveAllCmd.Flags().StringVar(&reviewerID, "reviewer", "admin-cli", "reviewer id recorded on each decision")
	migrateCmd.Flags().BoolVar(&rollbackOne, "down", false, "roll back the most recent migration after applying pending ones")
	seedDemoCmd.Flags().StringVar(&demoPassword, "password", "demo-password", "password for the demo founder account")
}

type adminEnv struct {
	ctx     context.Context
	cfg     config.Config
	log     *logger.Logger
	db      *sql.DB
	search  *search.Service
	service *app.Service
}

// withEnv opens the database, applies migrations and builds the service
// graph without any network listeners.
func withEnv(parent context.Context, fn func(env *adminEnv) error) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	log, err := logger.New(cfg.Env)
	if err != nil {
		return err
	}
	defer log.Sync()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()
	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}
	if err := os.MkdirAll(cfg.ReposDir, 0o755); err != nil {
		return err
	}

	var meili *search.Meili
	if cfg.MeiliURL != "" {
		meili = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, log)
		defer meili.Close()
	}
	searchService := search.NewService(meili, search.NewPgFTS(db), log)
	defer searchService.Wait()

	service := app.New(cfg, app.Deps{
		Store:  store.NewPostgresStore(db),
		Git:    gitrepo.New(cfg.ReposDir),
		Search: searchService,
		Log:    log,
	})
	return fn(&adminEnv{
		ctx:     ctx,
		cfg:     cfg,
		log:     log,
		db:      db,
		search:  searchService,
		service: service,
	})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
