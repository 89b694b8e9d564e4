package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"example.com/fitledger/internal/cache"
	"example.com/fitledger/internal/config"
	"example.com/fitledger/internal/consumer"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("consumer: %v", err)
	}
}

func run() error {
	cfg, err := config.LoadWithFile(os.Getenv("LEDGER_CONFIG"))
	if err != nil {
		return err
	}
	if len(cfg.ConsumerTopics) == 0 {
		return errors.New("CONSUMER_TOPICS is empty")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	// Audit first so a cache outage never loses the event log entry.
	handler := consumer.Fanout{
		consumer.NewPersistenceHandler(pool),
		consumer.NewCacheHandler(cache.New(cfg.CacheInvalidationURL, cfg.CacheInvalidationToken, cfg.HTTPTimeout)),
	}

	metricsSrv := &http.Server{Addr: cfg.MetricsAddress, Handler: promhttp.Handler(), ReadHeaderTimeout: 2 * time.Second}
	go func() {
		log.Printf("consumer metrics listening on %s", cfg.MetricsAddress)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("metrics server error: %v", err)
		}
	}()

	failures := consumer.NewFailureStore(pool)
	// A processor that cannot park a failed event stops the whole consumer so it restarts from
	// the last committed offset.
	fatal := make(chan error, len(cfg.ConsumerTopics))

	var wg sync.WaitGroup
	for _, topic := range cfg.ConsumerTopics {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:         cfg.KafkaBrokers,
			GroupID:         cfg.ConsumerGroupID,
			Topic:           topic,
			MinBytes:        1,
			MaxBytes:        1 << 20,
			CommitInterval:  time.Second,
			ReadLagInterval: -1,
		})
		proc := consumer.NewProcessor(reader, handler,
			consumer.WithLogger(log.New(log.Writer(), "[consumer "+topic+"] ", log.LstdFlags|log.Lshortfile)),
			consumer.WithRetry(cfg.ConsumerRetries, cfg.ConsumerRetryBackoff),
			consumer.WithDeadLetter(failures),
		)

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer reader.Close()

			log.Printf("consuming %s as %s", topic, cfg.ConsumerGroupID)
			if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("consumer for %s stopped: %v", topic, err)
				fatal <- fmt.Errorf("topic %s: %w", topic, err)
				stop()
			}
		}()
	}

	<-ctx.Done()
	log.Println("consumer shutdown requested")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("metrics server shutdown error: %v", err)
	}

	wg.Wait()
	close(fatal)
	return <-fatal
}
