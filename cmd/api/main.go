package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cryptorafts/api/internal/app"
	"cryptorafts/api/internal/blob"
	"cryptorafts/api/internal/config"
	"cryptorafts/api/internal/email"
	"cryptorafts/api/internal/export"
	"cryptorafts/api/internal/gitrepo"
	"cryptorafts/api/internal/logger"
	"cryptorafts/api/internal/notify"
	"cryptorafts/api/internal/pitch"
	"cryptorafts/api/internal/raftai"
	"cryptorafts/api/internal/search"
	"cryptorafts/api/internal/session"
	"cryptorafts/api/internal/store"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("database connection failed", "error", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatal("migrations failed", "error", err)
	}
	if err := os.MkdirAll(cfg.ReposDir, 0o755); err != nil {
		log.Fatal("failed to create repos dir", "error", err)
	}

	dataStore := store.NewPostgresStore(db)
	deps := app.Deps{
		Store:  dataStore,
		Git:    gitrepo.New(cfg.ReposDir),
		Export: export.NewService(export.NewChromeRenderer()),
		Log:    log,
	}

	var meili *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meili = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, log)
		defer meili.Close()
	}
	searchService := search.NewService(meili, search.NewPgFTS(db), log)
	deps.Search = searchService

	// Refresh tokens and unread counters live in Redis when it is configured.
	var counter notify.Counter
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatal("redis connection failed", "error", err)
		}
		defer redisStore.Close()
		deps.Sessions = redisStore
		counter = notify.NewRedisCounter(redisStore.Client())
		log.Info("using redis for sessions and unread counters")
	} else {
		log.Info("using postgres for sessions")
	}
	deps.Notifier = notify.New(dataStore, counter, log)

	tables := pitch.DefaultTables()
	if cfg.PitchTablesPath != "" {
		if tables, err = pitch.LoadTables(cfg.PitchTablesPath); err != nil {
			log.Fatal("pitch tables invalid", "path", cfg.PitchTablesPath, "error", err)
		}
	}
	var llm raftai.Completer
	if cfg.OpenAIAPIKey != "" {
		client, err := raftai.NewClient(raftai.Config{
			APIKey:     cfg.OpenAIAPIKey,
			BaseURL:    cfg.OpenAIBaseURL,
			Model:      cfg.OpenAIModel,
			Timeout:    cfg.OpenAITimeout,
			MaxRetries: cfg.OpenAIMaxRetries,
		}, log)
		if err != nil {
			log.Fatal("raftai client setup failed", "error", err)
		}
		llm = client
	} else {
		log.Warn("OPENAI_API_KEY not set; RaftAI answers from data only")
	}
	deps.Analyzer = raftai.NewAnalyzer(llm, pitch.NewEngine(tables), log)
	deps.Assistant = raftai.NewAssistant(llm, log)

	if cfg.MinioEndpoint != "" {
		minio, err := blob.NewMinio(ctx, blob.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			log.Fatal("object storage setup failed", "error", err)
		}
		deps.Blob = minio
	} else {
		log.Warn("MINIO_ENDPOINT not set; uploads are kept in memory")
	}

	deps.Email = email.NewService(email.Config{
		Host:      cfg.SMTPHost,
		Port:      cfg.SMTPPort,
		Username:  cfg.SMTPUsername,
		Password:  cfg.SMTPPassword,
		From:      cfg.SMTPFrom,
		FromName:  cfg.SMTPFromName,
		EnableTLS: true,
		APIKey:    cfg.SendGridAPIKey,
	})

	service := app.New(cfg, deps)
	publisher := service.Publisher()
	publisher.Start(ctx)
	defer publisher.Stop()

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("CryptoRafts API listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", "error", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}
	searchService.Wait()
}
