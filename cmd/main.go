// autoradar matcher-service
//
// Alert-matching engine for scraped vehicle listings:
//   - deduplicates incoming listings (insert vs merge vs flagged duplicate)
//   - scores listings against user alerts with weighted criteria
//   - gates notifications (daily caps, idempotency, quiet hours)
//   - queues notification drafts and announces them on Redis for the
//     delivery collaborator
//
// Runs as a cron-driven batch job with an HTTP surface for scrapers
// (ingest hook) and admins (run trigger, run log, deferred sweep).
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"autoradar/matcher-service/internal/config"
	"autoradar/matcher-service/internal/db"
	"autoradar/matcher-service/internal/dedup"
	"autoradar/matcher-service/internal/gate"
	"autoradar/matcher-service/internal/httpapi"
	"autoradar/matcher-service/internal/ingest"
	"autoradar/matcher-service/internal/match"
	"autoradar/matcher-service/internal/notify"
	"autoradar/matcher-service/internal/runner"
	"autoradar/matcher-service/internal/scheduler"
	"autoradar/matcher-service/internal/store"
)

const version = "1.0.0"

func main() {
	// ── Config ──────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[matcher] Config error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Migrations ───────────────────────────────────────────────────────────
	log.Println("[matcher] Applying migrations…")
	if err := db.Migrate(ctx, cfg.DatabaseURL); err != nil {
		log.Fatalf("[matcher] Migrations: %v", err)
	}

	// ── PostgreSQL ───────────────────────────────────────────────────────────
	log.Println("[matcher] Connecting to PostgreSQL…")
	pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("[matcher] PostgreSQL: %v", err)
	}
	defer pool.Close()
	log.Println("[matcher] PostgreSQL connected ✓")

	// ── Redis ────────────────────────────────────────────────────────────────
	log.Println("[matcher] Connecting to Redis…")
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("[matcher] Redis: %v", err)
	}
	defer rdb.Close()
	log.Println("[matcher] Redis connected ✓")

	// ── Pipeline wiring ──────────────────────────────────────────────────────
	st := store.New(pool)

	scorer := match.NewScorer(match.Config{
		MatchThreshold:    cfg.MatchThreshold,
		PerfectThreshold:  cfg.PerfectThreshold,
		PriceTolerancePct: cfg.PriceTolerancePct,
		YearTolerance:     cfg.YearTolerance,
		NoCriteriaScore:   0.1,
	})
	g := gate.New(st, gate.Config{
		DefaultUserMaxPerDay:  cfg.DefaultUserMaxPerDay,
		DefaultAlertMaxPerDay: cfg.DefaultAlertMaxPerDay,
	})
	emitter := notify.New(st, st, g, notify.NewRedisPublisher(rdb))
	run := runner.New(st, st, st, scorer, emitter, runner.Config{
		Workers:     cfg.Workers,
		Lookback:    time.Duration(cfg.LookbackMinutes) * time.Minute,
		MaxListings: cfg.MaxListingsPerRun,
	})
	deduper := dedup.New(st, dedup.Config{FuzzyMileageWindowKM: cfg.FuzzyMileageWindowKM})
	ingester := ingest.New(deduper, run)

	// ── Scheduler ────────────────────────────────────────────────────────────
	sched := scheduler.New(
		func(ctx context.Context) {
			if _, err := run.Run(ctx, runner.Options{}); err != nil {
				log.Printf("[matcher] Scheduled run error: %v", err)
			}
		},
		emitter, st,
		scheduler.Config{
			MatchInterval: time.Duration(cfg.MatchIntervalMinutes) * time.Minute,
			StaleAfter:    time.Duration(cfg.StaleAfterDays) * 24 * time.Hour,
			Retention:     time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		},
	)
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("[matcher] Scheduler: %v", err)
	}
	defer sched.Stop()

	// ── HTTP server ──────────────────────────────────────────────────────────
	handler := httpapi.NewHandler(run, ingester, emitter, st, st)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      handler.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		log.Printf("[matcher] v%s listening on :%s", version, cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[matcher] HTTP server error: %v", err)
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[matcher] Shutting down…")
	cancel() // aborts an in-flight run between pair evaluations

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[matcher] Shutdown error: %v", err)
	}
	log.Println("[matcher] Stopped.")
}
