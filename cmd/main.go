// jobwire-scraper-service
//
// Polls Telegram channels for job postings, extracts structured fields with
// regex heuristics, upserts them into Postgres, enriches stored postings via
// Gemini, and generates résumé artifacts per job.
//
// Operator surface: JSON API (see internal/server). Background work: scrape
// monitor (30m pass / 60s error backoff / 5m idle) and a cron enrichment
// sweep.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"jobwire/scraper-service/internal/config"
	"jobwire/scraper-service/internal/db"
	"jobwire/scraper-service/internal/enrich"
	"jobwire/scraper-service/internal/gemini"
	"jobwire/scraper-service/internal/messaging"
	"jobwire/scraper-service/internal/resume"
	"jobwire/scraper-service/internal/scheduler"
	"jobwire/scraper-service/internal/scrape"
	"jobwire/scraper-service/internal/server"
	"jobwire/scraper-service/internal/store"
)

const version = "1.0.0"

func main() {
	_ = godotenv.Load()

	// ── Config ──────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[scraper-service] Config error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── PostgreSQL ──────────────────────────────────────────────────────────
	log.Println("[scraper-service] Connecting to PostgreSQL…")
	pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("[scraper-service] PostgreSQL: %v", err)
	}
	defer pool.Close()

	// ── Redis ───────────────────────────────────────────────────────────────
	log.Println("[scraper-service] Connecting to Redis…")
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("[scraper-service] Redis: %v", err)
	}
	defer rdb.Close()

	// ── Telegram ────────────────────────────────────────────────────────────
	tele, err := messaging.NewTelegram(cfg.TelegramAPIID, cfg.TelegramAPIHash,
		cfg.TelegramPhone, cfg.TelegramSessionDir)
	if err != nil {
		log.Fatalf("[scraper-service] Telegram: %v", err)
	}
	log.Println("[scraper-service] Connecting to Telegram…")
	switch err := tele.Connect(ctx); {
	case err == nil:
		log.Println("[scraper-service] Telegram session authorized")
	case errors.Is(err, messaging.ErrAuthRequired):
		log.Println("[scraper-service] Telegram verification pending — POST /telegram/verify with the code")
	default:
		log.Fatalf("[scraper-service] Telegram connect: %v", err)
	}
	defer tele.Close()

	// ── Services ────────────────────────────────────────────────────────────
	st := store.New(pool)
	orch := scrape.New(tele, st, rdb, cfg.ScrapeMessageLimit)

	var (
		enricher *enrich.Processor
		resumes  *resume.Service
	)
	if cfg.GeminiAPIKey != "" {
		gem, err := gemini.New(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			log.Fatalf("[scraper-service] Gemini: %v", err)
		}
		enricher = enrich.New(st, gem, rdb, cfg.EnrichBatchSize)
		resumes = resume.New(st, gem)
	} else {
		log.Println("[scraper-service] GEMINI_API_KEY not set — enrichment and resume generation disabled")
	}

	// ── Background work ─────────────────────────────────────────────────────
	monitor := scheduler.NewMonitor(orch, time.Duration(cfg.ScrapeIntervalMinutes)*time.Minute)
	monitor.Start(ctx)
	defer monitor.Stop()

	if enricher != nil {
		sweeper := scheduler.NewSweeper(enricher, cfg.EnrichIntervalMinutes)
		if err := sweeper.Start(ctx); err != nil {
			log.Fatalf("[scraper-service] Sweeper: %v", err)
		}
		defer sweeper.Stop()
	}

	// ── HTTP server ─────────────────────────────────────────────────────────
	handler := &server.Handler{
		Version:  version,
		Orch:     orch,
		Store:    st,
		Telegram: tele,
		Enricher: enricher,
		Resumes:  resumes,
	}
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		log.Printf("[scraper-service] Listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[scraper-service] HTTP server: %v", err)
		}
	}()

	// ── Graceful shutdown ───────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("[scraper-service] Shutting down…")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[scraper-service] HTTP shutdown: %v", err)
	}
}
