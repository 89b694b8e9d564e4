package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/fitledger/internal/config"
	"example.com/fitledger/internal/outbox"
)

const batchSize = 50

func main() {
	if err := run(); err != nil {
		log.Fatalf("dlq manager: %v", err)
	}
}

func run() error {
	cfg, err := config.LoadWithFile(os.Getenv("LEDGER_CONFIG"))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	manager := outbox.NewDLQManager(pool, cfg.DLQMaxRetries, cfg.DLQBaseDelay)

	metricsSrv := &http.Server{Addr: cfg.MetricsAddress, Handler: promhttp.Handler(), ReadHeaderTimeout: 2 * time.Second}
	go func() {
		log.Printf("dlq manager metrics listening on %s", cfg.MetricsAddress)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("metrics server error: %v", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			log.Printf("metrics server shutdown error: %v", err)
		}
	}()

	log.Printf("replaying ledger DLQ every %s (max retries %d)", cfg.DLQPollInterval, cfg.DLQMaxRetries)
	ticker := time.NewTicker(cfg.DLQPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("dlq manager shutting down")
			return nil
		case <-ticker.C:
			requeued, err := manager.RunOnce(ctx, batchSize)
			if err != nil {
				log.Printf("dlq pass finished with errors: %v", err)
			}
			if requeued > 0 {
				log.Printf("requeued %d ledger events", requeued)
			}
		}
	}
}
