package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"relay/internal/blob"
	"relay/internal/realtime"
	"relay/internal/registry"
	"relay/internal/store"
)

// App owns every long-lived component and the wiring between them.
type App struct {
	cfg Config
	log *slog.Logger

	store    store.Store
	blobs    blob.Store
	blobDisk *blob.Disk
	dbPool   *pgxpool.Pool

	reg        *registry.Registry
	identities *registry.Identities

	metricsReg *prometheus.Registry
	metrics    *realtime.Metrics

	presence *realtime.Presence
	fanout   *realtime.Fanout
	coord    *realtime.Coordinator
	gateway  *realtime.Gateway
}

// New assembles the application. Without RELAY_DATABASE_URL it runs on the
// in-memory store, which is enough for local development and tests.
func New(ctx context.Context, cfg Config, log *slog.Logger) (*App, error) {
	a := &App{cfg: cfg, log: log}

	if cfg.DatabaseURL != "" {
		pool, err := NewDBPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.dbPool = pool
		pg, err := store.NewPostgres(pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		a.store = pg
		log.Info("app.store", "backend", "postgres")
	} else {
		a.store = store.NewMemory()
		log.Info("app.store", "backend", "memory")
	}

	if cfg.BlobDir != "" {
		disk, err := blob.NewDisk(cfg.BlobDir, cfg.BlobBaseURL)
		if err != nil {
			return nil, err
		}
		a.blobDisk = disk
		a.blobs = disk
		log.Info("app.blob", "dir", cfg.BlobDir, "base_url", cfg.BlobBaseURL)
	} else {
		a.blobs = blob.Unconfigured{}
		log.Info("app.blob", "backend", "unconfigured")
	}

	a.reg = registry.New()
	a.identities = registry.NewIdentities()

	a.metricsReg = prometheus.NewRegistry()
	a.metricsReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = realtime.NewMetrics(a.metricsReg)

	a.coord = realtime.NewCoordinator(log, a.reg, a.store,
		realtime.WithCloseTimeout(cfg.DrainCloseTimeout),
		realtime.WithDeadline(cfg.DrainDeadline),
		realtime.WithExitFunc(os.Exit),
	)
	a.presence = realtime.NewPresence(log, a.reg, a.coord, a.metrics)
	a.fanout = realtime.NewFanout(log, a.reg, a.store, a.metrics)

	a.gateway = realtime.NewGateway(log, a.reg, a.identities, a.store,
		a.presence, a.fanout, a.coord, a.metrics, realtime.GatewayConfig{
			AllowGuests:        cfg.AllowGuests,
			AllowedOriginHosts: cfg.WSAllowedOrigins,
			WriteTimeout:       cfg.WSWriteTimeout,
			ReadIdleTimeout:    cfg.WSReadIdle,
			SendQueueSize:      cfg.WSSendQueue,
			RateFrames:         cfg.WSRateFrames,
			RateWindow:         cfg.WSRateWindow,
		})

	return a, nil
}

// Handler builds the full HTTP handler, request logging included.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	a.registerHTTP(mux)
	return WithRequestLogging(a.log, mux)
}

// Run serves HTTP until ctx is cancelled, then drains live sessions and
// shuts the server down.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: a.cfg.ReadHeaderTimeout,
		ReadTimeout:       a.cfg.ReadTimeout,
		WriteTimeout:      a.cfg.WriteTimeout,
		IdleTimeout:       a.cfg.IdleTimeout,
		MaxHeaderBytes:    a.cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("app.listen", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.log.Info("app.shutdown.begin")
	a.coord.Drain()

	shutCtx, cancel := context.WithTimeout(context.Background(), a.cfg.DrainDeadline)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		a.log.Warn("app.shutdown.http.fail", "err", err)
	}

	if a.dbPool != nil {
		a.dbPool.Close()
	}

	a.log.Info("app.shutdown.done")
	return nil
}
