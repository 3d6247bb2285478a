package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mrohitth/data-observability-platform/internal/logger"
	"github.com/mrohitth/data-observability-platform/internal/utils"
)

// Database source names. Every component that needs a connection asks the
// db.Manager for one of these, never for a DSN.
const (
	SourceBatch = "batch"
	SourceCDC   = "cdc"
)

type DatabaseConfig struct {
	Host       string
	Port       int
	Name       string
	User       string
	Password   string
	Timeout    time.Duration
	PoolSize   int
	SSLEnabled bool
}

func (c DatabaseConfig) DSN() string {
	sslMode := "disable"
	if c.SSLEnabled {
		sslMode = "require"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s", c.User, c.Password, c.Host, c.Port, c.Name, sslMode)
}

type RetryConfig struct {
	MaxAttempts   int
	BackoffFactor float64
	InitialDelay  time.Duration
	MaxDelay      time.Duration
}

type MonitoringConfig struct {
	VolumeAnomalyThreshold    float64
	FreshnessThresholdMinutes int
	ProfileDaysBack           int
	ProfileHoursBack          int
	SampleSize                int
	AlertSeverity             string
	DedupWindow               time.Duration
	HealthCheckInterval       time.Duration
	MaxFailedHealthChecks     int
}

type PerformanceConfig struct {
	ConcurrentWorkers int
	BatchSize         int
}

type NotifierConfig struct {
	Enabled   bool
	RedisAddr string
	Channel   string
}

type ServerConfig struct {
	Enabled bool
	Addr    string
}

type Config struct {
	BatchDB     DatabaseConfig
	CDCDB       DatabaseConfig
	Retry       RetryConfig
	Monitoring  MonitoringConfig
	Performance PerformanceConfig
	Notifier    NotifierConfig
	Server      ServerConfig
}

func loadDatabase(prefix string, log *logger.Logger) DatabaseConfig {
	return DatabaseConfig{
		Host:       utils.GetEnv(prefix+"_HOST", "localhost", log),
		Port:       utils.GetEnvAsInt(prefix+"_PORT", 5432, log),
		Name:       utils.GetEnv(prefix+"_NAME", "", log),
		User:       utils.GetEnv(prefix+"_USER", "", log),
		Password:   utils.GetEnv(prefix+"_PASSWORD", "", log),
		Timeout:    time.Duration(utils.GetEnvAsInt("DB_TIMEOUT", 30, log)) * time.Second,
		PoolSize:   utils.GetEnvAsInt("DB_POOL_SIZE", 5, log),
		SSLEnabled: utils.GetEnvAsBool("ENABLE_SSL", false, log),
	}
}

// Load reads the full platform configuration from the environment. Missing
// values fall back to defaults; Validate decides which are fatal.
func Load(log *logger.Logger) Config {
	return Config{
		BatchDB: loadDatabase("BATCH_DB", log),
		CDCDB:   loadDatabase("CDC_DB", log),
		Retry: RetryConfig{
			MaxAttempts:   utils.GetEnvAsInt("MAX_RETRY_ATTEMPTS", 3, log),
			BackoffFactor: utils.GetEnvAsFloat("RETRY_BACKOFF_FACTOR", 2.0, log),
			InitialDelay:  time.Duration(utils.GetEnvAsFloat("INITIAL_RETRY_DELAY", 1.0, log) * float64(time.Second)),
			MaxDelay:      time.Duration(utils.GetEnvAsFloat("MAX_RETRY_DELAY", 60.0, log) * float64(time.Second)),
		},
		Monitoring: MonitoringConfig{
			VolumeAnomalyThreshold:    utils.GetEnvAsFloat("VOLUME_ANOMALY_THRESHOLD", 3.0, log),
			FreshnessThresholdMinutes: utils.GetEnvAsInt("FRESHNESS_THRESHOLD_MINUTES", 30, log),
			ProfileDaysBack:           utils.GetEnvAsInt("PROFILE_DAYS_BACK", 30, log),
			ProfileHoursBack:          utils.GetEnvAsInt("PROFILE_HOURS_BACK", 24, log),
			SampleSize:                utils.GetEnvAsInt("SAMPLING_SIZE", 100, log),
			AlertSeverity:             utils.GetEnv("ALERT_SEVERITY", "CRITICAL", log),
			DedupWindow:               time.Duration(utils.GetEnvAsInt("ALERT_DEDUP_WINDOW_MINUTES", 60, log)) * time.Minute,
			HealthCheckInterval:       time.Duration(utils.GetEnvAsInt("HEALTH_CHECK_INTERVAL", 60, log)) * time.Second,
			MaxFailedHealthChecks:     utils.GetEnvAsInt("MAX_FAILED_HEALTH_CHECKS", 5, log),
		},
		Performance: PerformanceConfig{
			ConcurrentWorkers: utils.GetEnvAsInt("CONCURRENT_WORKERS", 4, log),
			BatchSize:         utils.GetEnvAsInt("BATCH_SIZE", 1000, log),
		},
		Notifier: NotifierConfig{
			Enabled:   utils.GetEnvAsBool("ALERT_BUS_ENABLED", false, log),
			RedisAddr: utils.GetEnv("REDIS_ADDR", "", log),
			Channel:   utils.GetEnv("ALERT_CHANNEL", "alerts", log),
		},
		Server: ServerConfig{
			Enabled: utils.GetEnvAsBool("STATUS_SERVER_ENABLED", false, log),
			Addr:    utils.GetEnv("STATUS_SERVER_ADDR", ":8090", log),
		},
	}
}

// Validate collects every configuration problem rather than stopping at the
// first, so a broken deployment surfaces all of them in one run.
func (c Config) Validate() error {
	var problems []string

	checkDB := func(prefix string, db DatabaseConfig) {
		if db.Name == "" {
			problems = append(problems, prefix+"_NAME is required")
		}
		if db.User == "" {
			problems = append(problems, prefix+"_USER is required")
		}
		if db.Password == "" {
			problems = append(problems, prefix+"_PASSWORD is required")
		}
	}
	checkDB("BATCH_DB", c.BatchDB)
	checkDB("CDC_DB", c.CDCDB)

	if c.Retry.MaxAttempts < 1 {
		problems = append(problems, "MAX_RETRY_ATTEMPTS must be >= 1")
	}
	if c.Retry.BackoffFactor <= 1 {
		problems = append(problems, "RETRY_BACKOFF_FACTOR must be > 1")
	}
	if c.Monitoring.VolumeAnomalyThreshold <= 0 {
		problems = append(problems, "VOLUME_ANOMALY_THRESHOLD must be > 0")
	}
	if c.Monitoring.FreshnessThresholdMinutes <= 0 {
		problems = append(problems, "FRESHNESS_THRESHOLD_MINUTES must be > 0")
	}
	if c.Monitoring.DedupWindow <= 0 {
		problems = append(problems, "ALERT_DEDUP_WINDOW_MINUTES must be > 0")
	}
	if c.Performance.ConcurrentWorkers < 1 {
		problems = append(problems, "CONCURRENT_WORKERS must be >= 1")
	}
	if c.Notifier.Enabled && c.Notifier.RedisAddr == "" {
		problems = append(problems, "REDIS_ADDR is required when ALERT_BUS_ENABLED is set")
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}
