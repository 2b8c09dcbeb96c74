// Package app assembles the gateway from configuration: the device session,
// the executor and coordinator in front of it, the job store and the optional
// delivery history. Commands build one App and run it.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/jmehdipour/router-sms-gateway/internal/config"
	"github.com/jmehdipour/router-sms-gateway/internal/db"
	"github.com/jmehdipour/router-sms-gateway/internal/device"
	"github.com/jmehdipour/router-sms-gateway/internal/device/browser"
	"github.com/jmehdipour/router-sms-gateway/internal/device/cgi"
	"github.com/jmehdipour/router-sms-gateway/internal/dispatcher"
	"github.com/jmehdipour/router-sms-gateway/internal/jobs"
	"github.com/jmehdipour/router-sms-gateway/internal/repository"
)

type App struct {
	Executor    *dispatcher.Executor
	Coordinator *dispatcher.Coordinator
	Jobs        jobs.Store
	History     repository.HistoryRepository // nil unless mysql.dsn is set

	log     *zap.Logger
	janitor *cron.Cron
	closers []func() error
}

// New wires every component. With device.warmup the router session is opened
// before New returns and a failure to do so is fatal.
func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	a := &App{log: log}

	breaker := dispatcher.NewMicroBreaker(
		cfg.Dispatcher.Breaker.FailThreshold,
		time.Duration(cfg.Dispatcher.Breaker.OpenForMs)*time.Millisecond,
	)
	a.Executor = dispatcher.NewExecutor(DeviceFactory(cfg, log.Named("device")), cfg.Dispatcher.MaxRetries, breaker, log.Named("executor"))
	a.closers = append(a.closers, a.Executor.Close)

	if cfg.Device.Warmup {
		if err := a.Executor.Warmup(ctx, cfg.Device.StartupRetries); err != nil {
			_ = a.Close()
			return nil, err
		}
	}

	store, closeStore, err := JobStore(cfg)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Jobs = store
	a.closers = append(a.closers, closeStore)

	var rec dispatcher.Recorder
	if cfg.MySQL.DSN != "" {
		sqlDB, err := db.NewMySQLConnection(cfg.MySQL.DSN, MySQLOpts(cfg))
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("mysql connect: %w", err)
		}
		a.closers = append(a.closers, sqlDB.Close)
		a.History = repository.NewHistoryRepository(sqlDB)
		rec = a.History
	}

	a.Coordinator = dispatcher.NewCoordinator(a.Executor, store, dispatcher.Options{
		MaxQueue:      cfg.Dispatcher.MaxQueue,
		Recorder:      rec,
		RecordTimeout: time.Duration(cfg.Dispatcher.RecordTimeoutMs) * time.Millisecond,
		Log:           log.Named("coordinator"),
	})

	a.janitor, err = jobs.StartJanitor(store, cfg.Jobs.SweepSchedule, log.Named("jobs"))
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	log.Info("gateway assembled",
		zap.String("device_mode", string(cfg.Device.Mode)),
		zap.String("jobs_backend", cfg.Jobs.Backend),
		zap.Bool("history", a.History != nil),
	)
	return a, nil
}

// Run drives the coordinator until ctx ends.
func (a *App) Run(ctx context.Context) error {
	return a.Coordinator.Run(ctx)
}

// Close releases everything New acquired, the device session included.
// Call it after Run has returned.
func (a *App) Close() error {
	if a.janitor != nil {
		<-a.janitor.Stop().Done()
		a.janitor = nil
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// DeviceFactory picks the session implementation for device.mode.
func DeviceFactory(cfg config.Config, log *zap.Logger) device.Factory {
	bc := BrowserConfig(cfg)
	if cfg.Device.Mode == config.ModeCGI {
		return cgi.NewFactory(cgi.Config{BaseURL: cfg.Device.BaseURL, Timeout: cfg.Device.RequestTimeout}, bc, log)
	}
	return browser.NewFactory(bc, log)
}

func BrowserConfig(cfg config.Config) browser.Config {
	return browser.Config{
		BaseURL:        cfg.Device.BaseURL,
		Password:       cfg.Device.Password,
		Headless:       cfg.Device.Headless,
		NoSandbox:      cfg.Device.NoSandbox,
		ExecPath:       cfg.Device.ExecPath,
		ElementTimeout: cfg.Device.ElementTimeout,
		ConfirmTimeout: cfg.Device.ConfirmTimeout,
		SettleDelay:    cfg.Device.SettleDelay,
	}
}

// JobStore opens the configured job backend.
func JobStore(cfg config.Config) (jobs.Store, func() error, error) {
	switch cfg.Jobs.Backend {
	case "", "memory":
		return jobs.NewMemoryStore(cfg.Jobs.TTL, cfg.Jobs.MaxEntries), func() error { return nil }, nil
	case "redis":
		rdb, err := db.NewRedisClient(db.RedisOpts{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			DialTimeout: cfg.Redis.DialTimeout,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("redis connect: %w", err)
		}
		return jobs.NewRedisStore(rdb, cfg.Jobs.TTL), rdb.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown jobs backend %q", cfg.Jobs.Backend)
	}
}

func MySQLOpts(cfg config.Config) db.MySQLOpts {
	return db.MySQLOpts{
		MaxOpenConns:    cfg.MySQL.MaxOpenConns,
		MaxIdleConns:    cfg.MySQL.MaxIdleConns,
		ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
		PingTimeout:     cfg.MySQL.PingTimeout,
	}
}
