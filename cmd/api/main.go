package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/fitledger/internal/api"
	"example.com/fitledger/internal/auth"
	"example.com/fitledger/internal/config"
	"example.com/fitledger/internal/domain"
	"example.com/fitledger/internal/outbox"
	"example.com/fitledger/internal/persistence/postgres"
	"example.com/fitledger/internal/persistence/sqlite"
	httptransport "example.com/fitledger/internal/transport/http"
)

func main() {
	configPath := flag.String("config", os.Getenv("LEDGER_CONFIG"), "optional YAML config overlay")
	flag.Parse()

	cfg, err := config.LoadWithFile(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	service, closer, dispatcher, err := openLedger(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to open ledger: %v", err)
	}
	defer closer.Close()

	handler := api.NewHandler(service)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}, auth.ReadOnlySkipper)
	accessLog := log.New(log.Writer(), "[http] ", log.LstdFlags)

	server := httptransport.NewServer(
		httptransport.DefaultServerConfig(cfg.HTTPAddress),
		httptransport.RequestLogger(accessLog, httptransport.CORS(cfg.CORSOrigins, authMiddleware.Wrap(mux))),
	)

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("fitledger api listening on %s (store=%s)", cfg.HTTPAddress, cfg.StoreDriver)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	if dispatcher != nil {
		dispatcher.Wait()
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// openLedger restores the ledger from the configured store. Only the postgres driver
// publishes events, so the dispatcher is nil for the other drivers.
func openLedger(ctx context.Context, cfg config.Config) (*domain.Service, io.Closer, *outbox.Dispatcher, error) {
	genesis := cfg.Genesis.DomainGenesis()

	switch cfg.StoreDriver {
	case config.StorePostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		service, err := domain.Open(ctx, postgres.NewStore(pool), genesis)
		if err != nil {
			pool.Close()
			return nil, nil, nil, err
		}

		producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
		registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
		dispatcher := outbox.NewDispatcher(pool, producer, registry, cfg.OutboxPollInterval, cfg.OutboxBatchSize)
		go dispatcher.Start(ctx)

		closer := closerFunc(func() error {
			err := producer.Close()
			pool.Close()
			return err
		})
		return service, closer, dispatcher, nil

	case config.StoreSQLite:
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		service, err := domain.Open(ctx, store, genesis)
		if err != nil {
			_ = store.Close()
			return nil, nil, nil, err
		}
		return service, store, nil, nil

	case config.StoreMemory:
		service, err := domain.New(genesis.Owners, genesis.MinActiveMinutes, genesis.MinSteps)
		if err != nil {
			return nil, nil, nil, err
		}
		return service, closerFunc(func() error { return nil }), nil, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
