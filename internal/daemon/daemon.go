package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tutu-network/learnquest/internal/api"
	"github.com/tutu-network/learnquest/internal/app/engagement"
	"github.com/tutu-network/learnquest/internal/health"
	"github.com/tutu-network/learnquest/internal/infra/rediscache"
	"github.com/tutu-network/learnquest/internal/infra/store"
	"github.com/tutu-network/learnquest/internal/infra/telemetry"
	"github.com/tutu-network/learnquest/internal/logger"
)

// Daemon is the core LearnQuest runtime. It wires together all services.
type Daemon struct {
	Config    Config
	Log       *logger.Logger
	Store     *store.DB
	Cache     *rediscache.Cache // nil when no Redis is configured
	Engine    *engagement.Engine
	Server    *api.Server
	Health    *health.Checker
	Refresher *Refresher

	shutdownTracing telemetry.Shutdown
	cancel          context.CancelFunc
}

// NewFromFile loads the config and creates a Daemon with all services
// wired. An empty path uses $LEARNQUEST_HOME/config.toml.
func NewFromFile(path string) (*Daemon, error) {
	cfg, err := LoadConfigFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return NewWithConfig(context.Background(), cfg)
}

// NewWithConfig creates a Daemon with the given configuration.
func NewWithConfig(ctx context.Context, cfg Config) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	loc, err := cfg.Engine.Location()
	if err != nil {
		return nil, err
	}
	targets, err := cfg.Leaderboard.Targets()
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Logging.Mode, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	d := &Daemon{Config: cfg, Log: log}

	d.shutdownTracing, err = telemetry.Setup(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.Tracing,
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		SampleRatio: cfg.Telemetry.SampleRatio,
		Version:     api.Version,
	}, log)
	if err != nil {
		log.Warn("tracing disabled", "error", err)
	}

	d.Store, err = store.OpenDriver(ctx, cfg.Storage.Driver, cfg.Storage.Dir, cfg.Storage.DSN)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("open database: %w", err)
	}

	engineCfg := engagement.Config{
		Location:        loc,
		EnrollmentBonus: cfg.Engine.EnrollmentBonus,
		Logger:          log,
	}
	// The engine treats zero as "use the default"; in the config it means none.
	if cfg.Engine.EnrollmentBonus == 0 {
		engineCfg.EnrollmentBonus = -1
	}

	// A missing cache degrades to direct reads.
	if cfg.Cache.RedisAddr != "" {
		cache, err := rediscache.New(ctx, rediscache.Config{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
			TTL:      parseDuration(cfg.Cache.TTL, rediscache.DefaultTTL),
		})
		if err != nil {
			log.Warn("leaderboard cache unavailable", "addr", cfg.Cache.RedisAddr, "error", err)
		} else {
			d.Cache = cache
			engineCfg.Cache = cache
		}
	}

	d.Engine = engagement.NewEngine(d.Store, engineCfg)

	opts := health.Options{Store: d.Store, Logger: log}
	if d.Cache != nil {
		opts.Cache = d.Cache
	}
	if cfg.Storage.Driver == store.DriverSQLite {
		opts.DataDir = cfg.Storage.Dir
	}
	d.Health = health.NewChecker(opts)

	d.Server = api.NewServer(d.Engine, d.Store, log)
	d.Server.SetCatalog(d.Store)
	d.Server.SetHealth(d.Health)
	d.Server.SetDefaultLimit(cfg.Leaderboard.DefaultLimit)
	d.Server.SetTimeout(parseDuration(cfg.API.RequestTimeout, 30*time.Second))
	if cfg.Telemetry.Prometheus {
		d.Server.EnableMetrics()
	}

	d.Refresher = NewRefresher(d.Engine.Leaderboards(), targets, cfg.Leaderboard.DefaultLimit, loc, log)

	log.Info("daemon initialized",
		"driver", d.Store.Driver(),
		"cache", d.Cache != nil,
		"timezone", loc.String(),
	)
	return d, nil
}

// Serve starts the HTTP server and blocks until shutdown.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	go d.Health.Run(ctx)

	// Warming only pays off when there is a cache to fill.
	if d.Cache != nil && d.Config.Leaderboard.RefreshSchedule != "" {
		if err := d.Refresher.Start(ctx, d.Config.Leaderboard.RefreshSchedule); err != nil {
			return err
		}
	}

	addr := fmt.Sprintf("%s:%d", d.Config.API.Host, d.Config.API.Port)

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      d.Server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	// Graceful shutdown on signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
			d.Log.Info("shutdown signal received")
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			d.Log.Warn("http shutdown", "error", err)
		}
	}()

	d.Log.Info("LearnQuest serving", "addr", "http://"+addr)
	if d.Config.Telemetry.Prometheus {
		d.Log.Info("metrics enabled", "url", "http://"+addr+"/metrics")
	}

	err := httpServer.ListenAndServe()
	d.Close()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close shuts down all daemon resources. It is safe to call twice.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.Refresher != nil {
		d.Refresher.Stop()
		d.Refresher = nil
	}
	if d.shutdownTracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := d.shutdownTracing(ctx); err != nil {
			d.Log.Warn("tracing shutdown", "error", err)
		}
		cancel()
		d.shutdownTracing = nil
	}
	if d.Cache != nil {
		_ = d.Cache.Close()
		d.Cache = nil
	}
	if d.Store != nil {
		_ = d.Store.Close()
		d.Store = nil
	}
	if d.Log != nil {
		d.Log.Sync()
	}
}
