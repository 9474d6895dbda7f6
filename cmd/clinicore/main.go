package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"clinicore/internal/config"
	"clinicore/internal/infrastructure"
	"clinicore/internal/license"
	"clinicore/internal/middleware"
	"clinicore/internal/registry"
	"clinicore/internal/security"
	"clinicore/internal/services"
	transport "clinicore/internal/transport/http"
	"clinicore/internal/websocket"
)

func main() {
	if err := run(); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer infrastructure.CloseLogFile()

	telemetry, err := infrastructure.InitializeTelemetry("clinicore", cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	provider := security.NewSystemInfoProvider()
	engine := security.NewFingerprintEngine(provider, logger)
	sealer := security.NewSealer(security.MachineSealerSecret(provider))
	codec := license.NewKeyCodec(license.SigningKey())
	store := license.NewStore(cfg.Paths.LicenseFile, sealer, logger)

	reg, err := registry.Open(cfg.Paths.RegistryFile, logger)
	if err != nil {
		return fmt.Errorf("failed to open license registry: %w", err)
	}
	defer reg.Close()

	guard := license.NewGuard(store, reg, engine, codec, license.GuardConfig{
		WarningDays:     cfg.License.WarningDays,
		CheckInterval:   cfg.License.CheckInterval,
		ActivationRPS:   cfg.License.ActivationRPS,
		ActivationBurst: cfg.License.ActivationBurst,
	}, logger)

	metrics, err := license.NewMetrics(otel.Meter("clinicore/license"))
	if err != nil {
		return fmt.Errorf("failed to create license metrics: %w", err)
	}
	guard.SetMetrics(metrics)

	hub := websocket.NewHub(cfg.WebSocket, logger)
	guard.SetStatusListener(hub.BroadcastLicenseStatus)

	service := services.NewActivationService(guard, logger)
	gate := middleware.NewLicenseGate(guard, logger)

	router := transport.NewRouter(transport.RouterDeps{
		Service: service,
		Gate:    gate,
		Hub:     hub,
		Logger:  logger,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Info("server starting",
			slog.String("addr", server.Addr),
			slog.Duration("license_check_interval", cfg.License.CheckInterval),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		if err := guard.Run(ctx); err != nil && err != context.Canceled {
			return fmt.Errorf("license guard stopped: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		logger.Info("shutting down")
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
		}
		return nil
	})

	if err := group.Wait(); err != nil && err != context.Canceled {
		return err
	}

	logger.Info("shutdown complete", slog.Time("at", time.Now()))
	return nil
}
