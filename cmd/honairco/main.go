package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/pgrootkop-cmyk/honairco/internal/auth"
	"github.com/pgrootkop-cmyk/honairco/internal/config"
	"github.com/pgrootkop-cmyk/honairco/internal/device"
	"github.com/pgrootkop-cmyk/honairco/internal/hon"
	"github.com/pgrootkop-cmyk/honairco/internal/poll"
	"github.com/pgrootkop-cmyk/honairco/internal/rate"
	"github.com/pgrootkop-cmyk/honairco/internal/server"
)

func main() {
	_ = godotenv.Load()

	log, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer log.Sync()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatal("configuration", zap.Error(err))
	}

	var blob auth.BlobStore
	if cfg.BlobEnabled() {
		store, err := auth.NewS3Store(cfg.Blob)
		if err != nil {
			log.Fatal("blob store", zap.Error(err))
		}
		blob = store
	}

	session, err := auth.NewSession(auth.Config{
		AuthBaseURL:  cfg.AuthBaseURL,
		AuthorizeURL: cfg.AuthorizeURL,
		TokenURL:     cfg.TokenURL,
		ClientID:     cfg.ClientID,
		AppVersion:   hon.AppVersion,
		Account:      cfg.Account,
		StatePath:    cfg.StatePath,
	}, blob, log)
	if err != nil {
		log.Fatal("session init", zap.Error(err))
	}
	session.SeedRefreshToken(cfg.RefreshToken)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := bootstrap(ctx, session, cfg, log); err != nil {
		log.Fatal("authentication", zap.Error(err))
	}

	client := hon.NewClient(cfg.APIBaseURL, session, log)

	appliances, err := client.Appliances(ctx)
	if err != nil {
		log.Fatal("list appliances", zap.Error(err))
	}
	if len(appliances) == 0 {
		log.Warn("no air conditioners on this account")
	}

	devices := make([]*device.Device, 0, len(appliances))
	for _, app := range appliances {
		def, err := client.CommandSchema(ctx, app)
		if err != nil {
			log.Error("command schema, skipping appliance", zap.String("mac", app.MacAddress), zap.Error(err))
			continue
		}
		d := device.New(app, client, def, device.Options{
			PollInterval: cfg.PollInterval,
			SettleDelay:  cfg.SettleDelay,
		}, log)
		d.Start(ctx)
		devices = append(devices, d)
		log.Info("device registered",
			zap.String("mac", app.MacAddress),
			zap.String("model", app.ModelName),
			zap.String("nickname", app.Nickname))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(auth.MetricsCollectors()...)
	registry.MustRegister(hon.MetricsCollectors()...)
	registry.MustRegister(poll.MetricsCollectors()...)
	registry.MustRegister(rate.MetricsCollectors()...)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", server.HealthHandler)
	mux.Handle("/metrics", server.MetricsHandler(registry))
	mux.Handle("/devices", server.DevicesHandler(devices))

	httpServer := server.NewHTTPServer(cfg.HTTPAddr, mux)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http serve", zap.Error(err))
		}
	}()
	log.Info("serving", zap.String("addr", cfg.HTTPAddr), zap.Int("devices", len(devices)))

	<-ctx.Done()
	log.Info("shutting down")
	for _, d := range devices {
		d.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
}

// bootstrap establishes a usable credential set: persisted or seeded refresh
// token first, interactive login as the fallback when credentials allow it.
func bootstrap(ctx context.Context, session *auth.Session, cfg config.Config, log *zap.Logger) error {
	err := session.EnsureAuthenticated(ctx)
	if err == nil {
		return nil
	}
	if cfg.Username == "" || cfg.Password == "" {
		return err
	}
	log.Info("refresh bootstrap failed, attempting interactive login", zap.Error(err))
	return session.FullLogin(ctx, cfg.Username, cfg.Password)
}
