// cmd/circulationd/main.go
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"openshelf/internal/audit"
	"openshelf/internal/circulation"
	"openshelf/internal/clock"
	"openshelf/internal/config"
	"openshelf/internal/inventory"
	"openshelf/internal/membership"
	"openshelf/internal/reservation"
	"openshelf/internal/store"
	"openshelf/internal/sweeper"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := initTracing(ctx, cfg)
	if err != nil {
		logger.Error("tracing setup failed", "error", err)
		os.Exit(1)
	}
	defer shutdownTracing()

	db, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	migrateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.Migrate(migrateCtx); err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}

	clk := clock.System()
	emitter := audit.NewEmitter(clk)

	ledger := inventory.NewLedger(db, emitter, clk, logger)
	members := membership.NewService(db, emitter, clk, logger)

	loanRepo := circulation.NewPostgresRepository(db, ledger, emitter)
	loans := circulation.NewService(loanRepo, members, clk, logger)

	holdRepo := reservation.NewPostgresRepository(db, ledger, emitter)
	holds := reservation.NewService(holdRepo, loans, members, clk, logger)

	swp := sweeper.New(
		sweeper.NewPostgresStore(db, ledger, emitter),
		clk, logger, cfg.HoldSweepInterval, cfg.OverdueSweepInterval,
	)
	go swp.Run(ctx)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Group(inventory.NewHandler(ledger).Routes)
	r.Group(membership.NewHandler(members).Routes)
	r.Group(circulation.NewHandler(loans).Routes)
	r.Group(reservation.NewHandler(holds).Routes)
	r.Group(sweeper.NewHandler(swp).Routes)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("circulationd listening", "port", cfg.Port, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
}

// initTracing wires the OTLP trace exporter when an endpoint is configured;
// otherwise spans stay no-ops through the global provider.
func initTracing(ctx context.Context, cfg config.App) (func(), error) {
	if cfg.OTLPEndpoint == "" {
		return func() {}, nil
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.OTLPEndpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", "circulationd"),
			attribute.String("deployment.environment", cfg.Env),
		)),
	)
	otel.SetTracerProvider(tp)

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			slog.Error("trace provider shutdown failed", "error", err)
		}
	}, nil
}
