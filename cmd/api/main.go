package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"nexteach.org/internal/authz"
	"nexteach.org/internal/config"
	"nexteach.org/internal/httpapi"
	"nexteach.org/internal/obs"
	"nexteach.org/internal/store/pg"
)

var version = "0.3.1"

func main() {
	obs.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.Database.DSN == "" {
		log.Fatal("database.dsn is required (NEXTEACH_DATABASE_DSN)")
	}

	store, err := pg.Open(cfg.Database.DSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}

	catalog, err := authz.NewCatalog(store)
	if err != nil {
		log.Fatalf("catalog: %v", err)
	}
	roles, err := authz.NewRoleService(store, catalog)
	if err != nil {
		log.Fatalf("role service: %v", err)
	}
	assignments, err := authz.NewAssignmentService(store)
	if err != nil {
		log.Fatalf("assignment service: %v", err)
	}
	resolver, err := authz.NewResolver(store)
	if err != nil {
		log.Fatalf("resolver: %v", err)
	}
	keys, err := authz.NewAPIKeyService(store)
	if err != nil {
		log.Fatalf("api key service: %v", err)
	}
	sessions := httpapi.NewSessionVerifier(cfg.Session.Secret, cfg.Session.Issuer)

	api := httpapi.New(httpapi.ReadyProbe{DB: store.DB()}, version, httpapi.Options{
		MaxBodyBytes:    cfg.Server.MaxBodyBytes,
		RateLimitPerSec: cfg.Server.RateLimitPerSec,
		RateLimitBurst:  cfg.Server.RateLimitBurst,
	}, catalog, roles, assignments, resolver, keys, sessions)

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	log.Printf("Starting nexteach-authz %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	_ = srv.Shutdown(ctx)
	_ = store.Close()
	log.Println("Stopped")
}
