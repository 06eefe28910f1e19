package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ce-fello/barter-service/src/internal/api"
	"github.com/ce-fello/barter-service/src/internal/auth"
	"github.com/ce-fello/barter-service/src/internal/config"
	"github.com/ce-fello/barter-service/src/internal/model"
	"github.com/ce-fello/barter-service/src/internal/notify"
	"github.com/ce-fello/barter-service/src/internal/service"
	"github.com/ce-fello/barter-service/src/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	migDir := flag.String("migrations", cfg.MigrationsDir, "migrations directory")
	flag.Parse()

	logger := newLogger(cfg)
	defer func() { _ = logger.Sync() }()
	sugar := logger.Sugar()

	if err := cfg.Validate(); err != nil {
		sugar.Fatalf("invalid config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := openRepository(ctx, cfg, *migDir, logger)
	if err != nil {
		sugar.Fatalf("store init failed: %v", err)
	}
	defer closeRepo()

	dispatcher := notify.NewDispatcher(notify.NewStoreSink(repo), cfg.NotifyWorkers, cfg.NotifyQueueSize, logger)
	svc := service.NewService(repo, repo, repo, dispatcher, logger)
	h := api.NewHandler(svc, logger, cfg.RequestTimeout)

	r := chi.NewRouter()
	r.Use(api.RequestIDMiddleware, api.LoggerMiddleware(logger), api.Recoverer(logger))
	api.RegisterRoutes(r, h, auth.NewTokenService(cfg.JWTSecret))

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		sugar.Fatalf("listen %s: %v", srv.Addr, err)
	}
	sugar.Infof("listening on %s (store=%s)", srv.Addr, cfg.StoreDriver)

	if err := runServer(ctx, srv, ln, dispatcher, sugar); err != nil {
		sugar.Errorf("stopped with error: %v", err)
		return
	}
	sugar.Info("server stopped")
}

func newLogger(cfg config.Config) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Development() {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func openRepository(ctx context.Context, cfg config.Config, migDir string, logger *zap.Logger) (store.Repository, func(), error) {
	if cfg.StoreDriver == config.DriverMemory {
		mem := store.NewMemory(logger)
		for _, sk := range demoSkills {
			mem.PutSkill(sk)
		}
		logger.Warn("using in-memory store; data is lost on restart")
		return mem, func() {}, nil
	}

	sugar := logger.Sugar()
	db, err := connectDBWithRetry(cfg.DatabaseURL, 15, 2*time.Second, sugar)
	if err != nil {
		return nil, nil, err
	}
	if err := runMigrations(cfg.DatabaseURL, migDir, sugar); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("migrations failed: %w", err)
	}
	sugar.Info("migrations applied")

	closeDB := func() {
		if err := db.Close(); err != nil {
			sugar.Errorf("failed to close db: %v", err)
		}
	}
	repo := store.NewRepositories(db, logger)

	// The skills table is a local mirror of the external skill catalog.
	// SEED_DEMO_SKILLS fills it for local runs.
	if cfg.SeedDemoSkills {
		for _, sk := range demoSkills {
			if err := repo.UpsertSkill(ctx, sk); err != nil {
				closeDB()
				return nil, nil, fmt.Errorf("seed skills: %w", err)
			}
		}
		sugar.Infof("seeded %d demo skills", len(demoSkills))
	}
	return repo, closeDB, nil
}

var demoSkills = []model.Skill{
	{SkillID: "demo-guitar", OwnerID: "alice", Title: "Guitar lessons", IsActive: true},
	{SkillID: "demo-spanish", OwnerID: "bob", Title: "Spanish conversation", IsActive: true},
	{SkillID: "demo-chess", OwnerID: "bob", Title: "Chess openings", IsActive: true},
	{SkillID: "demo-painting", OwnerID: "carol", Title: "Watercolor painting", IsActive: true},
}

func connectDBWithRetry(dsn string, attempts int, delay time.Duration, sugar *zap.SugaredLogger) (*sqlx.DB, error) {
	var db *sqlx.DB
	var err error

	for i := 0; i < attempts; i++ {
		db, err = sqlx.Open("postgres", dsn)
		if err == nil {
			if err = db.Ping(); err == nil {
				return db, nil
			}
			_ = db.Close()
		}
		sugar.Warnf("db ping error: %v (attempt %d/%d)", err, i+1, attempts)
		time.Sleep(delay)
	}
	return nil, fmt.Errorf("db connect failed: %w", err)
}

func runMigrations(dsn, migrationsDir string, sugar *zap.SugaredLogger) error {
	sugar.Infof("running migrations from %s", migrationsDir)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("migration open db: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsDir, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migration init: %w", err)
	}

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		sugar.Info("no new migrations, already up to date")
		return nil
	}
	if err != nil {
		return fmt.Errorf("migration up: %w", err)
	}
	return nil
}
