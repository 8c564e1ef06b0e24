// judged is the programming-exercise judge daemon: it serves the exercise
// catalog, grades submissions inside sandboxed containers, and tracks user
// progress and achievements.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"code-judge/internal/api"
	"code-judge/internal/auth"
	"code-judge/internal/cache"
	"code-judge/internal/catalog"
	"code-judge/internal/config"
	"code-judge/internal/db"
	"code-judge/internal/fixtures"
	"code-judge/internal/grader"
	"code-judge/internal/logging"
	"code-judge/internal/progress"
	"code-judge/internal/runner"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// .env is optional; real deployments configure through the environment.
	if err := godotenv.Load(); err != nil {
		godotenv.Load("../.env")
	}

	logging.Init()
	defer logging.Sync()
	log := logging.L()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal("configuration rejected", zap.Error(err))
	}

	database, err := db.NewDatabase(cfg)
	if err != nil {
		log.Fatal("database connection failed", zap.Error(err))
	}
	defer database.Close()

	if err := database.RunSeeds(); err != nil {
		log.Warn("seeding had issues", zap.Error(err))
	}

	catalogStore := catalog.NewStore(database.DB)

	fixtureStore, err := fixtures.NewStore(database.DB, cfg.FixturesDir)
	if err != nil {
		log.Fatal("fixture store setup failed", zap.Error(err))
	}

	runnerCfg := &runner.Config{
		TempRoot:        cfg.TempRoot,
		ImageTag:        cfg.ExecutionImageTag,
		MemoryLimit:     cfg.ContainerMemory,
		PidsLimit:       cfg.ContainerPids,
		DefaultTimeout:  cfg.PerTestTimeout,
		MaxParallel:     cfg.MaxParallelRuns,
		MaxOutputSize:   1024 * 1024,
		RuntimeBinary:   "docker",
		RuntimeFallback: "podman",
	}
	run, err := runner.NewRunner(runnerCfg, catalogStore, fixtureStore)
	if err != nil {
		// The judge cannot grade without a container runtime. Fail loudly
		// instead of serving a catalog that can never be submitted against.
		log.Fatal("container runtime probe failed", zap.Error(err))
	}
	log.Info("container runtime resolved", zap.String("binary", run.Runtime()))

	grade := grader.New(run, cfg.PerTestTimeout)
	progressEngine := progress.NewEngine(database.DB)
	authService := auth.NewService(database.DB, cfg.JWTSecret, cfg.AdminEmails)
	listingCache := cache.New(cfg.RedisURL)
	defer listingCache.Close()

	server := api.NewServer(cfg, catalogStore, fixtureStore, run, grade, progressEngine, authService, listingCache)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()
	log.Info("judge listening", zap.String("port", cfg.Port), zap.String("environment", cfg.Environment))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		log.Fatal("server failed", zap.Error(err))
	case sig := <-quit:
		log.Info("shutting down", zap.String("signal", sig.String()))
	}

	// Drain in-flight requests; running containers finish or hit their own
	// per-test deadlines.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", zap.Error(err))
	}
	log.Info("shutdown complete")
}
