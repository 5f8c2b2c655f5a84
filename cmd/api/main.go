package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"keyward.io/internal/audit"
	"keyward.io/internal/auth"
	"keyward.io/internal/config"
	"keyward.io/internal/httpapi"
	"keyward.io/internal/obs"
	"keyward.io/internal/store/memory"
	"keyward.io/internal/store/pg"
)

var version = "0.3.1"

func main() {
	configPath := flag.String("config", os.Getenv("KEYWARD_CONFIG"), "Path to config file")
	flag.Parse()

	obs.Init()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var (
		dirStore   auth.DirectoryStore
		auditStore audit.Store
		db         *sql.DB
	)
	switch cfg.Database.Type {
	case "postgres":
		store, err := pg.Open(cfg.Database.DSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer store.Close()
		dirStore, auditStore, db = store, store, store.DB()
	default:
		dirStore = memory.NewDirectory()
		auditStore = memory.NewAuditLog()
	}

	codec, err := auth.NewCodec(cfg.Auth.TokenSecret,
		auth.WithTTL(cfg.Auth.TokenTTL),
		auth.WithIssuer(cfg.Auth.Issuer))
	if err != nil {
		log.Fatalf("token codec: %v", err)
	}

	directory := auth.NewDirectory(dirStore)
	if err := directory.EnsureDefaultRoles(context.Background()); err != nil {
		log.Fatalf("ensure roles: %v", err)
	}

	recorder := audit.NewRecorder(auditStore,
		audit.WithQueueSize(cfg.Audit.QueueSize),
		audit.WithWorkers(cfg.Audit.Workers))

	service := auth.NewService(directory, codec, recorder)

	api := httpapi.New(service, directory, codec, recorder,
		httpapi.ReadyProbe{DB: db},
		httpapi.Options{
			RateLimitEnabled: cfg.RateLimit.Enabled,
			RatePerSecond:    cfg.RateLimit.PerSecond,
			RateBurst:        cfg.RateLimit.Burst,
			MaxBodyBytes:     cfg.Server.MaxBodyBytes,
		},
		version)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	log.Printf("Starting keyward-api %s on %s", version, srv.Addr)

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
	// Drain pending audit events before the store goes away.
	recorder.Close()
	log.Println("Stopped")
}
