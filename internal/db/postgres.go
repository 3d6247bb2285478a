package db

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/mrohitth/data-observability-platform/internal/config"
	"github.com/mrohitth/data-observability-platform/internal/logger"
	"github.com/mrohitth/data-observability-platform/internal/retry"
)

// Source is pooled, retrying access to one configured database. Structural
// pool mutation (open, drain, rebuild) happens under mu; concurrent
// Acquire/Execute callers only contend on pool slots.
type Source struct {
	name   string
	cfg    config.DatabaseConfig
	policy *retry.Policy
	log    *logger.Logger

	mu sync.Mutex
	db *gorm.DB

	healthInterval  time.Duration
	maxFailedChecks int
	lastHealthCheck time.Time
	failedChecks    int

	// ping runs the health probe and connect opens the underlying handle.
	// Both are swapped out in tests.
	ping    func(ctx context.Context) error
	connect func() (*gorm.DB, error)
}

// Status is a point-in-time snapshot of one source's pool.
type Status struct {
	Source             string    `json:"source"`
	MaxConnections     int       `json:"max_connections"`
	OpenConnections    int       `json:"open_connections"`
	InUseConnections   int       `json:"in_use_connections"`
	IdleConnections    int       `json:"idle_connections"`
	FailedHealthChecks int       `json:"failed_health_checks"`
	LastHealthCheck    time.Time `json:"last_health_check"`
}

func NewSource(name string, cfg config.DatabaseConfig, mon config.MonitoringConfig, policy *retry.Policy, baseLog *logger.Logger) (*Source, error) {
	s := &Source{
		name:            name,
		cfg:             cfg,
		policy:          policy,
		log:             baseLog.With("source", name),
		healthInterval:  mon.HealthCheckInterval,
		maxFailedChecks: mon.MaxFailedHealthChecks,
	}
	s.ping = s.pingQuery
	s.connect = s.dial
	if err := s.open(); err != nil {
		return nil, err
	}
	s.log.Info("Database source initialized", "pool_size", cfg.PoolSize)
	return s, nil
}

func (s *Source) open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openLocked()
}

func (s *Source) dial() (*gorm.DB, error) {
	return gorm.Open(postgres.Open(s.cfg.DSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
}

func (s *Source) openLocked() error {
	gdb, err := s.connect()
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", s.name, err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return fmt.Errorf("failed to access %s pool: %w", s.name, err)
	}
	sqlDB.SetMaxOpenConns(s.cfg.PoolSize)
	sqlDB.SetMaxIdleConns(s.cfg.PoolSize)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	s.db = gdb
	return nil
}

func (s *Source) gorm() *gorm.DB {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db
}

// DB exposes the underlying gorm handle for repo construction.
func (s *Source) DB() *gorm.DB {
	return s.gorm()
}

func (s *Source) Name() string { return s.name }

// Database reports the configured database name, recorded alongside
// baselines so rows stay attributable after a config change.
func (s *Source) Database() string { return s.cfg.Name }

// Acquire checks a connection out of the pool for exclusive use. It blocks
// until a slot frees up or the context deadline elapses. The returned
// release function is safe to call on every exit path.
func (s *Source) Acquire(ctx context.Context) (*sql.Conn, func(), error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}
	sqlDB, err := s.gorm().DB()
	if err != nil {
		return nil, nil, err
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, fmt.Errorf("%w: %s", ErrPoolTimeout, s.name)
		}
		return nil, nil, err
	}
	var once sync.Once
	release := func() {
		once.Do(func() {
			if err := conn.Close(); err != nil {
				s.log.Warn("Failed to return connection to pool", "error", err)
			}
		})
	}
	return conn, release, nil
}

// Execute runs op under the retry policy. Transient connectivity failures
// are retried with backoff and jitter; anything else propagates on the
// first attempt.
func (s *Source) Execute(ctx context.Context, op func(tx *gorm.DB) error) error {
	return s.policy.Do(ctx, IsTransient, func() error {
		return op(s.gorm().WithContext(ctx))
	})
}

// pingQuery probes on a dedicated connection so a poisoned pooled conn
// cannot satisfy the check.
func (s *Source) pingQuery(ctx context.Context) error {
	conn, release, err := s.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	var one int
	return conn.QueryRowContext(ctx, "SELECT 1").Scan(&one)
}

// HealthCheck probes the database at most once per interval. Consecutive
// failures past the ceiling drain and rebuild the pool and reset the
// counter. Throttled calls report the source as healthy.
func (s *Source) HealthCheck(ctx context.Context) bool {
	s.mu.Lock()
	if time.Since(s.lastHealthCheck) < s.healthInterval {
		s.mu.Unlock()
		return true
	}
	s.lastHealthCheck = time.Now()
	s.mu.Unlock()

	if err := s.ping(ctx); err != nil {
		s.mu.Lock()
		s.failedChecks++
		failed := s.failedChecks
		s.mu.Unlock()
		s.log.Warn("Connection health check failed", "error", err, "consecutive_failures", failed)

		if failed >= s.maxFailedChecks {
			s.log.Error("Too many connection failures, reinitializing pool")
			if err := s.reinitialize(); err != nil {
				s.log.Error("Failed to reinitialize pool", "error", err)
			}
		}
		return false
	}

	s.mu.Lock()
	s.failedChecks = 0
	s.mu.Unlock()
	return true
}

func (s *Source) reinitialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		if sqlDB, err := s.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if err := s.openLocked(); err != nil {
		return err
	}
	s.failedChecks = 0
	s.log.Info("Connection pool reinitialized")
	return nil
}

func (s *Source) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		Source:             s.name,
		MaxConnections:     s.cfg.PoolSize,
		FailedHealthChecks: s.failedChecks,
		LastHealthCheck:    s.lastHealthCheck,
	}
	if s.db != nil {
		if sqlDB, err := s.db.DB(); err == nil {
			pool := sqlDB.Stats()
			st.OpenConnections = pool.OpenConnections
			st.InUseConnections = pool.InUse
			st.IdleConnections = pool.Idle
		}
	}
	return st
}

func (s *Source) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return
	}
	if sqlDB, err := s.db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			s.log.Error("Error closing connection pool", "error", err)
		}
	}
	s.db = nil
	s.log.Info("Connection pool closed")
}
