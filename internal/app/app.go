// Package app wires the storage, locking and attendance backends selected by
// the configuration into an occupancy registry.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"comlab-status-backend/config"
	"comlab-status-backend/internal/attendance"
	"comlab-status-backend/internal/db"
	"comlab-status-backend/internal/history"
	"comlab-status-backend/internal/lock"
	"comlab-status-backend/internal/notification"
	"comlab-status-backend/internal/occupancy"
	"comlab-status-backend/internal/reconcile"
	"comlab-status-backend/internal/sheets"
	"comlab-status-backend/internal/store"
)

// App is the assembled service graph.
type App struct {
	Config   *config.Config
	Log      zerolog.Logger
	DB       *gorm.DB
	Store    store.Store
	Locker   lock.Locker
	Journal  attendance.Journal
	Source   attendance.Source
	Registry *occupancy.Registry
	History  *history.Service
	WebPush  *webpush.Options
	// Pool is nil when push is disabled or not requested.
	Pool *notification.WorkerPool

	redis redis.UniversalClient
}

// Options tweaks Build for callers that do not run the full daemon.
type Options struct {
	// Notifications builds the push worker pool when VAPID keys are set.
	Notifications bool
	// DB replaces the connection opened from cfg.Database.
	DB *gorm.DB
}

// Build opens every backend named by cfg.
func Build(ctx context.Context, cfg *config.Config, log zerolog.Logger, opts Options) (*App, error) {
	a := &App{Config: cfg, Log: log}

	gdb := opts.DB
	if gdb == nil {
		var err error
		gdb, err = db.Init(&cfg.Database, log)
		if err != nil {
			return nil, err
		}
	}
	a.DB = gdb
	a.Store = store.NewGormStore(gdb)

	switch cfg.Lock.Backend {
	case config.LockRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			a.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Address, err)
		}
		a.redis = client
		a.Locker = lock.NewRedisLocker(client, "comlab:lock:")
	default:
		a.Locker = lock.NewMemoryLocker()
	}

	loc := cfg.Labs.Location()
	switch cfg.Attendance.Backend {
	case config.AttendanceSheets:
		client, err := sheets.NewFromCredentialsFile(ctx, cfg.Attendance.Sheets, loc, log)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Journal, a.Source = client, client
	default:
		journal := attendance.NewDBJournal(a.Store)
		a.Journal, a.Source = journal, journal
	}

	if cfg.Push.Enabled() {
		a.WebPush = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		if opts.Notifications {
			a.Pool = notification.NewWorkerPool(cfg.WorkerPool.Size, gdb, a.WebPush, log)
		}
	}

	regOpts := occupancy.Options{
		Journal: a.Journal,
		LockTTL: cfg.Lock.TTL(),
		Logger:  log,
	}
	if a.Pool != nil {
		regOpts.Notifier = a.Pool
	}
	a.Registry = occupancy.New(a.Store, a.Locker, regOpts)
	a.History = history.NewService(a.Source, reconcile.New(loc), log)

	log.Info().
		Str("lock", cfg.Lock.Backend).
		Str("attendance", cfg.Attendance.Backend).
		Bool("push", a.WebPush != nil).
		Msg("services assembled")
	return a, nil
}

// Close releases the connections Build opened.
func (a *App) Close() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	return errors.Join(errs...)
}
