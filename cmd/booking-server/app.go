package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/medbook/booking/internal/config"
	"github.com/medbook/booking/internal/domain/scheduling"
	"github.com/medbook/booking/internal/platform/db"
	"github.com/medbook/booking/internal/platform/events"
	"github.com/medbook/booking/internal/platform/keylock"
	"github.com/medbook/booking/internal/platform/sandbox"
)

// app holds the wired stores and services shared by every subcommand.
type app struct {
	cfg    *config.Config
	loc    *time.Location
	logger zerolog.Logger

	pool      *pgxpool.Pool
	rdb       *redis.Client
	publisher events.Publisher

	hospitals scheduling.HospitalRepository
	doctors   scheduling.DoctorRepository
	appts     scheduling.AppointmentRepository
	overrides scheduling.OverrideStore
	locker    keylock.Locker

	svc       *scheduling.Service
	reminders *scheduling.ReminderJob

	closers []func()
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func poolOptions(cfg *config.Config) db.PoolOptions {
	return db.PoolOptions{
		MaxConns:         cfg.DBMaxConns,
		MinConns:         cfg.DBMinConns,
		Timezone:         cfg.Timezone,
		StatementTimeout: cfg.DBStmtTimeout,
		ApplicationName:  "booking-server",
	}
}

// buildApp connects the configured backends. Call close when done.
func buildApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, loc: loc, logger: logger}

	if err := a.initStorage(ctx); err != nil {
		a.close()
		return nil, err
	}
	if err := a.initLocker(ctx); err != nil {
		a.close()
		return nil, err
	}
	a.initPublisher()

	resolver := scheduling.NewResolver(a.overrides, logger)
	lifecycle := scheduling.NewLifecycle(a.doctors, a.appts, a.overrides, resolver, a.locker, a.publisher, logger)
	if a.pool != nil {
		lifecycle.WithTx(a.inTx)
	}
	a.svc = scheduling.NewService(a.hospitals, a.doctors, a.appts, a.overrides, resolver, lifecycle, a.locker, logger)
	a.reminders = scheduling.NewReminderJob(a.appts, a.publisher, loc, logger)
	return a, nil
}

func (a *app) initStorage(ctx context.Context) error {
	var doctors scheduling.DoctorRepository
	switch a.cfg.StorageDriver {
	case config.StorageMemory:
		a.hospitals = scheduling.NewMemoryHospitalRepo()
		doctors = scheduling.NewMemoryDoctorRepo()
		a.appts = scheduling.NewMemoryAppointmentRepo()
		a.overrides = scheduling.NewMemoryOverrideStore()
		a.logger.Warn().Msg("using in-memory storage; data is lost on exit")
	case config.StoragePostgres:
		pool, err := db.NewPool(ctx, a.cfg.DatabaseURL, poolOptions(a.cfg))
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		a.pool = pool
		a.closers = append(a.closers, pool.Close)
		a.hospitals = scheduling.NewHospitalRepoPG(pool)
		doctors = scheduling.NewDoctorRepoPG(pool)
		a.appts = scheduling.NewAppointmentRepoPG(pool, a.loc)
		a.overrides = scheduling.NewPGOverrideStore(pool, a.loc)
		a.logger.Info().Msg("connected to database")
	default:
		return fmt.Errorf("unknown storage driver %q", a.cfg.StorageDriver)
	}

	a.doctors = doctors
	if a.cfg.DoctorCacheSize > 0 {
		cached, err := scheduling.NewCachedDoctorRepository(doctors, a.cfg.DoctorCacheSize)
		if err != nil {
			return err
		}
		a.doctors = cached
	}
	return nil
}

func (a *app) initLocker(ctx context.Context) error {
	if a.cfg.RedisURL == "" {
		a.locker = keylock.NewMemoryLocker()
		return nil
	}
	rdb, err := keylock.NewRedisClient(ctx, a.cfg.RedisURL)
	if err != nil {
		return err
	}
	a.rdb = rdb
	a.closers = append(a.closers, func() { _ = rdb.Close() })
	a.locker = keylock.NewRedisLocker(rdb, a.cfg.LockTTL, "booking")
	a.logger.Info().Dur("ttl", a.cfg.LockTTL).Msg("using redis slot locks")
	return nil
}

func (a *app) initPublisher() {
	brokers := a.cfg.Brokers()
	if len(brokers) == 0 {
		a.publisher = events.NewLogPublisher(a.logger)
		return
	}
	kp := events.NewKafkaPublisher(brokers, a.cfg.KafkaTopic)
	a.publisher = kp
	a.closers = append(a.closers, func() {
		if err := kp.Close(); err != nil {
			a.logger.Error().Err(err).Msg("close kafka writer")
		}
	})
	a.logger.Info().Strs("brokers", brokers).Str("topic", a.cfg.KafkaTopic).Msg("publishing events to kafka")
}

// inTx runs fn in a database transaction when storage is Postgres.
func (a *app) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if a.pool == nil {
		return fn(ctx)
	}
	return db.InTx(ctx, a.pool, fn)
}

func (a *app) seeder() *sandbox.Seeder {
	return sandbox.NewSeeder(a.hospitals, a.doctors, a.overrides, a.svc, a.inTx, a.loc, a.logger)
}

// healthChecks probes every external backend in use.
func (a *app) healthChecks() map[string]db.Check {
	checks := map[string]db.Check{}
	if a.rdb != nil {
		rdb := a.rdb
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	return checks
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
