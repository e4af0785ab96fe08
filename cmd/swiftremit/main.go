package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"github.com/hman38705/SwiftRemit/internal/auth"
	"github.com/hman38705/SwiftRemit/internal/config"
	"github.com/hman38705/SwiftRemit/internal/escrow"
	"github.com/hman38705/SwiftRemit/internal/gateway"
	"github.com/hman38705/SwiftRemit/internal/token"
	"github.com/hman38705/SwiftRemit/pkg/clock"
	"github.com/hman38705/SwiftRemit/pkg/messaging"
	"github.com/hman38705/SwiftRemit/pkg/store"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		kv  store.Store
		tok token.Service
	)

	switch cfg.StoreBackend {
	case "postgres":
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		if err := db.PingContext(ctx); err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}

		kv, err = store.NewPostgres(db, "escrow_state")
		if err != nil {
			log.Fatalf("Failed to create store: %v", err)
		}
		tok, err = token.NewPGLedger(db)
		if err != nil {
			log.Fatalf("Failed to create token ledger: %v", err)
		}

	case "redis":
		rs, err := store.NewRedis(cfg.RedisURL, "swiftremit:")
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		kv = rs
		tok = token.NewMemLedger()

	default:
		kv = store.NewMemory()
		tok = token.NewMemLedger()
	}

	natsClient, err := messaging.NewClient(cfg.NATSURL, messaging.ClientOptions{
		Name:          "swiftremit",
		ReconnectWait: time.Second,
		MaxReconnects: 5,
	})
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer natsClient.Close()

	escrowService := escrow.NewService(cfg.ContractAddress, kv, clock.System{}, tok, natsClient)
	authService := auth.NewService(cfg.JWTSecret, 0)

	feed, err := gateway.NewFeed(natsClient)
	if err != nil {
		log.Fatalf("Failed to start event feed: %v", err)
	}

	gw := gateway.NewGateway(escrowService, authService, feed)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: gw.Handler(),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("SwiftRemit listening on :%s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		natsClient.Drain()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
