package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bobarin/habitcast/internal/api"
	"github.com/bobarin/habitcast/internal/config"
	"github.com/bobarin/habitcast/internal/db"
	"github.com/bobarin/habitcast/internal/generation"
	"github.com/bobarin/habitcast/internal/narrator"
	"github.com/bobarin/habitcast/internal/queue"
	"github.com/bobarin/habitcast/internal/schedule"
	"github.com/bobarin/habitcast/internal/scheduler"
	"github.com/bobarin/habitcast/internal/services"
	"github.com/bobarin/habitcast/internal/storage"
	"github.com/bobarin/habitcast/internal/worker"
)

func main() {
	log.Println("Starting Habitcast API...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	database, err := db.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()
	log.Println("Connected to database")

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = database.Migrate(migrateCtx)
	migrateCancel()
	if err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	stor := storage.New(cfg.ProjectRoot, cfg.AudioOutputDir, cfg.SampleDir)
	log.Printf("Clips stored under %s", cfg.AudioOutputDir)

	narrators := narrator.NewService(database, stor)
	habits := schedule.NewResolver(database, cfg.GenerationLocation)

	var scripts services.ScriptGenerator
	switch cfg.ScriptProvider {
	case "gemini":
		scripts = services.NewGeminiScriptGenerator(cfg.GeminiKey, cfg.GeminiScriptModel, cfg.ScriptRequestTimeout)
		log.Printf("Script provider: Gemini (model: %s)", cfg.GeminiScriptModel)
	default:
		scripts = services.NewOpenAIScriptGenerator(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.ScriptModel, cfg.ScriptRequestTimeout)
		log.Printf("Script provider: OpenAI (model: %s)", cfg.ScriptModel)
	}

	tts := services.NewTTSServerService(services.TTSConfig{
		BaseURL:        cfg.TTSBaseURL,
		GeneratePath:   cfg.TTSGeneratePath,
		VoicesDir:      cfg.TTSVoicesDir,
		ProjectRoot:    cfg.ProjectRoot,
		WarmupAttempts: cfg.TTSWarmupAttempts,
		WarmupDelay:    cfg.TTSWarmupDelay,
		FileTimeout:    cfg.TTSFileTimeout,
		FilePoll:       cfg.TTSFilePoll,
		RequestTimeout: cfg.TTSRequestTimeout,
	})
	log.Printf("TTS server: %s%s (voices: %s)", cfg.TTSBaseURL, cfg.TTSGeneratePath, cfg.TTSVoicesDir)

	orchestrator := generation.NewOrchestrator(narrators, habits, scripts, tts, database, stor)
	sched := scheduler.New(orchestrator, database, cfg.GenerationSchedule, cfg.GenerationLocation, cfg.GenerationNarratorID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.GenerationEnabled {
		if err := sched.Start(ctx); err != nil {
			log.Fatalf("Failed to start scheduler: %v", err)
		}
	} else {
		log.Println("Nightly generation disabled")
	}

	deps := api.HandlerDeps{
		Generator: sched,
		Narrators: narrators,
		Clips:     database,
		Jobs:      database,
		Files:     stor,
		Location:  cfg.GenerationLocation,
		SampleDir: cfg.SampleDir,
	}

	workerDone := make(chan struct{})
	if cfg.RedisURL != "" {
		q, err := queue.New(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect to queue: %v", err)
		}
		defer q.Close()
		log.Println("Connected to Redis queue")
		deps.Queue = q

		if cfg.WorkerEnabled {
			w := worker.New(q, sched)
			go func() {
				defer close(workerDone)
				if err := w.Start(ctx, cfg.MaxConcurrentJobs); err != nil {
					log.Printf("Worker stopped: %v", err)
				}
			}()
		} else {
			close(workerDone)
		}
	} else {
		log.Println("No REDIS_URL set, asynchronous generation disabled")
		close(workerDone)
	}

	router := api.NewRouter(api.NewHandler(deps), api.RouterConfig{
		BackendAPIKey:      cfg.BackendAPIKey,
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
	})

	if cfg.BackendAPIKey != "" {
		log.Println("API key authentication enabled")
	} else {
		log.Println("WARNING: No BACKEND_API_KEY set, API is unprotected (dev mode)")
	}

	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	go func() {
		log.Printf("API server listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	cancel()
	<-sched.Stop().Done()
	<-workerDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
