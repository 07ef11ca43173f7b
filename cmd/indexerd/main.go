// Command indexerd is the boot harness for the governance indexer: it
// loads configuration, wires telemetry, opens the checkpoint store, builds
// one ChainClient + governor.Spec per registered indexer, and runs the
// indexer driver registry until an OS signal requests shutdown. Structured
// the way services/otc-gateway/main.go boots its own service in the
// teacher repo.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/proposalsapp/govindexer/internal/chain"
	"github.com/proposalsapp/govindexer/internal/config"
	"github.com/proposalsapp/govindexer/internal/governor"
	"github.com/proposalsapp/govindexer/internal/indexer"
	"github.com/proposalsapp/govindexer/internal/schedule"
	"github.com/proposalsapp/govindexer/internal/store"
	"github.com/proposalsapp/govindexer/observability/logging"
	telemetry "github.com/proposalsapp/govindexer/observability/otel"
	metricsreg "github.com/proposalsapp/govindexer/observability/metrics"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logging.Setup("indexerd", cfg.Env)

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "indexerd",
		Environment: cfg.Env,
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    cfg.OTLPInsecure,
		Headers:     cfg.OTLPHeaders,
		Metrics:     true,
		Traces:      true,
	})
	if err != nil {
		log.Fatalf("init telemetry: %v", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	metricsreg.MustRegisterAll(prometheus.DefaultRegisterer)

	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	if err := store.AutoMigrate(db); err != nil {
		log.Fatalf("migrate database: %v", err)
	}
	checkpointStore := store.New(db)

	registry := indexer.NewRegistry(slog.Default())

	for _, gc := range cfg.Governors {
		client, err := chain.Dial(context.Background(), chain.Config{Endpoint: gc.RPCEndpoint, ChainID: gc.ChainID})
		if err != nil {
			log.Fatalf("dial chain client for %s: %v", gc.Name, err)
		}

		var spec governor.Spec
		switch strings.ToLower(gc.Variant) {
		case "nomination":
			spec, err = governor.NewNominationSpec(gc.ContractAddress, gc.ChainID)
		case "treasury":
			spec, err = governor.NewTreasurySpec(gc.ContractAddress, gc.ChainID)
		default:
			log.Fatalf("unknown governor variant %q for %s", gc.Variant, gc.Name)
		}
		if err != nil {
			log.Fatalf("build governor spec for %s: %v", gc.Name, err)
		}

		daoID, err := uuid.Parse(gc.DAOID)
		if err != nil {
			log.Fatalf("parse dao id for %s: %v", gc.Name, err)
		}

		indexerID, err := ensureCursor(context.Background(), db, gc, spec, daoID, cfg.MinSpeed)
		if err != nil {
			log.Fatalf("ensure cursor row for %s: %v", gc.Name, err)
		}

		cursor, err := checkpointStore.LoadCursor(context.Background(), indexerID)
		if err != nil {
			log.Fatalf("load cursor for %s: %v", gc.Name, err)
		}

		registry.Register(indexer.Indexer{
			Name:      gc.Name,
			ID:        indexerID,
			DAOID:     daoID,
			Client:    client,
			Spec:      spec,
			Sched:     schedule.New(cursor.CursorBlock, cursor.Speed, cfg.MinSpeed, cfg.MaxSpeed),
			Timestamp: chain.NewTimestampEstimator(client, cfg.AvgBlockTimeMS),
			Store:     checkpointStore,
			Interval:  cfg.TickInterval,
			Timeout:   cfg.TickTimeout,
		})
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: otelhttp.NewHandler(r, "indexerd.metrics"),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server stopped", slog.String("error", err.Error()))
		}
	}()

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("indexerd running", slog.Int("indexers", len(cfg.Governors)))
	registry.Run(rootCtx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
	slog.Info("indexerd stopped")
}

// ensureCursor returns the uuid for gc's cursor row, creating one with
// CursorBlock=0 and the configured minimum speed if none exists yet.
// Cursor rows are otherwise created administratively (section 3); this is
// the one-time bootstrap path for a freshly configured indexer.
func ensureCursor(ctx context.Context, db *gorm.DB, gc config.GovernorConfig, spec governor.Spec, daoID uuid.UUID, minSpeed uint64) (uuid.UUID, error) {
	var existing store.Cursor
	err := db.WithContext(ctx).
		Where("variant = ? AND dao_id = ?", string(spec.Variant), daoID).
		First(&existing).Error
	if err == nil {
		return existing.ID, nil
	}
	if err != gorm.ErrRecordNotFound {
		return uuid.Nil, err
	}

	row := store.Cursor{
		ID:          uuid.New(),
		Variant:     string(spec.Variant),
		CursorBlock: 0,
		Speed:       minSpeed,
		DAOID:       daoID,
		Enabled:     true,
	}
	if err := db.WithContext(ctx).Create(&row).Error; err != nil {
		return uuid.Nil, err
	}
	return row.ID, nil
}
