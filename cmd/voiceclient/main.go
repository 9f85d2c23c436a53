package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/satriahrh/scenery-voice/adapters/store"
	"github.com/satriahrh/scenery-voice/adapters/transport"
	"github.com/satriahrh/scenery-voice/domain/repositories"
	"github.com/satriahrh/scenery-voice/internal/auth"
	"github.com/satriahrh/scenery-voice/internal/config"
	"github.com/satriahrh/scenery-voice/internal/logging"
	"github.com/satriahrh/scenery-voice/internal/metrics"
	"github.com/satriahrh/scenery-voice/internal/voice"
	"github.com/satriahrh/scenery-voice/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("Voice client failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	repo, closeStore, err := openStore(cfg.Store, logger)
	if err != nil {
		return err
	}
	defer closeStore()
	sessions := usecase.NewSessionService(repo, logger)

	transportCfg := transport.Config{Endpoint: cfg.Endpoint}
	if cfg.Auth.Secret != "" {
		signer, err := auth.NewSigner(cfg.Auth.Secret, cfg.Auth.TokenTTL)
		if err != nil {
			return err
		}
		transportCfg.Tokens = signer
	}
	dialer, err := transport.NewDialer(transportCfg, logger)
	if err != nil {
		return err
	}

	capture, playback, closeDevices, err := openDevices(cfg.Audio, logger)
	if err != nil {
		return fmt.Errorf("failed to open audio devices: %w", err)
	}
	defer closeDevices()

	registry := metrics.NewRegistry()
	if cfg.MetricsAddr != "" {
		stopMetrics := serveMetrics(cfg.MetricsAddr, registry, logger)
		defer stopMetrics()
	}

	client, err := voice.NewClient(voice.Options{
		Dialer:    dialer,
		Sessions:  sessions,
		Capture:   capture,
		Playback:  playback,
		Presenter: newTerminalPresenter(os.Stdout),
		Logger:    logger,
		Metrics:   metrics.NewClient(registry),
		Policy: voice.Policy{
			ShortReconnectDelay:  cfg.Timing.ShortReconnect,
			LongReconnectDelay:   cfg.Timing.LongReconnect,
			ProcessingResetDelay: cfg.Timing.ProcessingReset,
		},
	})
	if err != nil {
		return err
	}
	defer client.Dispose()

	if err := client.Connect(ctx); err != nil {
		return err
	}
	logger.Info("Voice client started",
		zap.String("endpoint", cfg.Endpoint),
		zap.String("session_id", client.SessionID()))

	fmt.Println("commands: r = record, s = stop, n = new session, q = quit")
	return runCommands(ctx, os.Stdin, &session{client: client, sessions: sessions}, logger)
}

// openStore builds the configured session repository
func openStore(cfg config.StoreConfig, logger *zap.Logger) (repositories.SessionRepository, func(), error) {
	switch cfg.Kind {
	case config.StoreRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		logger.Info("Using Redis session store", zap.String("addr", cfg.RedisAddr), zap.String("profile", cfg.Profile))
		return store.NewRedisStore(rdb, cfg.Profile), func() { rdb.Close() }, nil

	case config.StoreMongo:
		client, err := store.ConnectMongo(context.Background(), cfg.MongoURI, logger)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			client.Disconnect(ctx)
		}
		return store.NewMongoStore(client.Database(cfg.MongoDatabase), cfg.Profile), closeFn, nil

	case config.StoreMemory:
		return store.NewMemoryStore(), func() {}, nil

	default:
		path := cfg.ProfilePath
		if path == "" {
			p, err := store.DefaultProfilePath()
			if err != nil {
				return nil, nil, err
			}
			path = p
		}
		logger.Info("Using profile file", zap.String("path", path))
		return store.NewFileStore(path, logger), func() {}, nil
	}
}

// serveMetrics exposes registry on addr and returns a shutdown func
func serveMetrics(addr string, registry prometheus.Gatherer, logger *zap.Logger) func() {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	go func() {
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()
	logger.Info("Serving metrics", zap.String("addr", addr))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		e.Shutdown(ctx)
	}
}
