package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"dailypost/internal/adapters/downloader"
	"dailypost/internal/adapters/generation"
	"dailypost/internal/adapters/imaging"
	"dailypost/internal/adapters/localstorage"
	"dailypost/internal/adapters/publisher"
	"dailypost/internal/adapters/sessioncache"
	"dailypost/internal/config"
	"dailypost/internal/core/ports"
	"dailypost/internal/logging"
	"dailypost/internal/service"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	configPath := flag.String("config", "dailypost.yaml", "Path to the YAML config file (optional)")
	dataDir := flag.String("data-dir", "", "Base directory for run records (overrides config)")
	once := flag.Bool("once", false, "Run the pipeline once and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}

	logger, err := logging.Open(cfg.LogFile, cfg.Debug)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer logger.Close()

	logger.Infof("=== dailypost ===")
	logger.Infof("account: %s", cfg.Username)
	logger.Infof("generator: %s, data dir: %s", cfg.Generate.Kind, cfg.DataDir)
	logger.Debugf("prompt: %s", logging.Preview(cfg.Prompt, 80))

	loc, err := cfg.Location()
	if err != nil {
		logger.Errorf("invalid timezone: %v", err)
		os.Exit(1)
	}

	// Initialize adapters
	cache, closeCache, err := newSessionCache(cfg, logger)
	if err != nil {
		logger.Errorf("Failed to initialize session cache: %v", err)
		os.Exit(1)
	}
	defer closeCache()

	pub, err := publisher.NewClient(cfg.Publish.BaseURL, &http.Client{Timeout: 2 * time.Minute})
	if err != nil {
		logger.Errorf("Failed to initialize publisher: %v", err)
		os.Exit(1)
	}

	gen, err := newGenerator(cfg)
	if err != nil {
		logger.Errorf("Failed to initialize generator: %v", err)
		os.Exit(1)
	}

	storage := localstorage.NewLocalStorage(cfg.DataDir)
	sessions := service.NewSessionStore(cache, pub, logger)
	executor := service.NewJobExecutor(gen, imaging.NewNormalizer(cfg.Image.Quality), pub, sessions, storage, logger, service.ExecutorOptions{
		Credentials:     cfg.Credentials(),
		Constraints:     cfg.Constraints(),
		WaitBudget:      cfg.Generate.WaitBudget,
		AcquireDeadline: cfg.Generate.AcquireDeadline,
		KeepArtifacts:   cfg.KeepArtifacts,
	})

	captions, err := service.NewCaptionPolicy(cfg.CaptionMode, cfg.Captions, nil)
	if err != nil {
		logger.Errorf("Invalid caption settings: %v", err)
		os.Exit(1)
	}

	scheduler, err := service.NewDailyScheduler(service.SchedulerOptions{
		Count:           cfg.Schedule.PostCount,
		WindowStart:     cfg.Schedule.WindowStart,
		WindowEnd:       cfg.Schedule.WindowEnd,
		MissedSlotGrace: cfg.Schedule.MissedSlotGrace,
		Location:        loc,
	}, logger)
	if err != nil {
		logger.Errorf("Invalid schedule: %v", err)
		os.Exit(1)
	}

	orchestrator := service.NewOrchestrator(executor, scheduler, captions, cfg.Prompt, cfg.Schedule.PollInterval, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Infof("received %s, stopping after the current job", sig)
		cancel()
	}()

	if *once {
		run := orchestrator.RunStartup(ctx)
		fmt.Println("\n=== Run Summary ===")
		fmt.Printf("Run ID:   %s\n", run.ID)
		fmt.Printf("Status:   %s\n", run.Status)
		if !run.Succeeded() {
			fmt.Printf("Stage:    %s\n", run.FailedStage)
			fmt.Printf("Reason:   %s\n", run.Reason)
			fmt.Printf("Record:   %s\n", filepath.Join(storage.GetRunPath(run.ID), "run.json"))
			os.Exit(1)
		}
		fmt.Printf("Media ID: %s\n", run.Ack.MediaID)
		fmt.Printf("Caption:  %s\n", run.Caption)
		return
	}

	if err := orchestrator.Run(ctx); err != nil {
		logger.Errorf("orchestrator stopped: %v", err)
		os.Exit(1)
	}
}

func newSessionCache(cfg config.Config, logger *logging.Logger) (ports.SessionCache, func(), error) {
	if cfg.Publish.RedisURL == "" {
		logger.Infof("session cache: %s", cfg.Publish.SessionCachePath)
		return sessioncache.NewFileCache(cfg.Publish.SessionCachePath), func() {}, nil
	}
	rc, err := sessioncache.NewRedisCache(cfg.Publish.RedisURL, cfg.Publish.RedisKey, 30*24*time.Hour)
	if err != nil {
		return nil, nil, err
	}
	logger.Infof("session cache: redis key %s", cfg.Publish.RedisKey)
	return rc, func() { _ = rc.Close() }, nil
}

func newGenerator(cfg config.Config) (ports.GenerationService, error) {
	switch cfg.Generate.Kind {
	case config.GeneratorHTTP:
		return generation.NewHTTPGenerator(generation.HTTPOptions{
			BaseURL:      cfg.Generate.BaseURL,
			APIToken:     cfg.Generate.APIToken,
			PollInterval: cfg.Generate.PollInterval,
			Downloader:   downloader.NewHTTPDownloader(int64(cfg.Image.MaxBytes) * 4),
		})
	case config.GeneratorBrowser:
		opts := generation.BrowserOptions{
			Command:    cfg.Generate.DriverCommand,
			ProfileDir: cfg.Generate.ProfileDir,
			Headless:   cfg.Generate.Headless,
		}
		if cfg.Debug {
			opts.DebugDir = filepath.Join(cfg.DataDir, "debug")
		}
		return generation.NewBrowserGenerator(opts)
	default:
		return nil, fmt.Errorf("unknown generator %q", cfg.Generate.Kind)
	}
}
