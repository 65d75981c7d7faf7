package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"frycast/internal/broadcast"
	"frycast/internal/database"
	"frycast/internal/engine"
	"frycast/internal/forecast"
	"frycast/internal/models"
	"frycast/internal/publish"
)

// Config represents the application configuration
type Config struct {
	LogLevel  string          `yaml:"log_level"`
	LogFormat string          `yaml:"log_format"`
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Planner   PlannerConfig   `yaml:"planner"`
	Policy    forecast.Policy `yaml:"policy"`
	NATS      NATSConfig      `yaml:"nats"`

	// Profile replaces the sample business profile at startup when set
	Profile *models.BusinessProfile `yaml:"business_profile"`
}

// ServerConfig configures the HTTP listeners
type ServerConfig struct {
	Port        int      `yaml:"port"`
	MetricsPort int      `yaml:"metrics_port"`
	MetricsPath string   `yaml:"metrics_path"`
	CORSOrigins []string `yaml:"cors_origins"`
	JWTSecret   string   `yaml:"jwt_secret"`
}

// DatabaseConfig selects the durable store
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	URL    string `yaml:"url"`
}

// AnalyticsConfig configures the sampling loop and the in-memory ring
type AnalyticsConfig struct {
	SampleIntervalSec float64 `yaml:"sample_interval_sec"`
	MemoryPoints      int     `yaml:"memory_points"`
	SnapshotStaleSec  float64 `yaml:"snapshot_stale_sec"`
}

// PlannerConfig holds the planning policy knobs
type PlannerConfig struct {
	ForecastHorizonMin  float64 `yaml:"forecast_horizon_min"`
	DropCadenceMin      float64 `yaml:"drop_cadence_min"`
	DecisionIntervalSec float64 `yaml:"decision_interval_sec"`
	CookTimeSec         float64 `yaml:"cook_time_sec"`
	AvgTicketUSD        float64 `yaml:"avg_ticket_usd"`
	UrgencyMediumRatio  float64 `yaml:"urgency_medium_ratio"`
	UrgencyHighRatio    float64 `yaml:"urgency_high_ratio"`
}

// NATSConfig enables the optional analytics fan-out
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

const (
	defaultDBPath          = "data/analytics.db"
	minDecisionIntervalSec = 5.0
	minCookTimeSec         = 30.0
	minSampleIntervalSec   = 0.5
)

// Default returns the configuration used when no file is present
func Default() Config {
	return Config{
		LogLevel:  "info",
		LogFormat: "json",
		Server: ServerConfig{
			Port:        8080,
			MetricsPort: 9090,
			MetricsPath: "/metrics",
			CORSOrigins: []string{"*"},
		},
		Database: DatabaseConfig{
			Driver: database.DriverSQLite,
			URL:    defaultDBPath,
		},
		Analytics: AnalyticsConfig{
			SampleIntervalSec: 1,
			MemoryPoints:      broadcast.DefaultCapacity,
			SnapshotStaleSec:  10,
		},
		Planner: PlannerConfig{
			ForecastHorizonMin:  8,
			DropCadenceMin:      4,
			DecisionIntervalSec: 30,
			AvgTicketUSD:        10.5,
			UrgencyMediumRatio:  0.25,
			UrgencyHighRatio:    0.5,
		},
		Policy: forecast.DefaultPolicy(),
		NATS:   NATSConfig{Subject: publish.DefaultSubject},
	}
}

// Load reads path over the defaults, applies environment overrides and normalizes the
// result. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	c.LogLevel = getenv("LOG_LEVEL", c.LogLevel)
	c.Server.Port = getenvInt("PORT", c.Server.Port)
	c.Server.JWTSecret = getenv("JWT_SECRET", c.Server.JWTSecret)
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		c.Server.CORSOrigins = splitList(origins)
	}

	c.Database.Driver = getenv("DATABASE_DRIVER", c.Database.Driver)
	c.Database.URL = getenv("ANALYTICS_DB_PATH", c.Database.URL)
	c.Database.URL = getenv("DATABASE_URL", c.Database.URL)

	c.Analytics.SampleIntervalSec = getenvFloat("ANALYTICS_SAMPLE_INTERVAL_SEC", c.Analytics.SampleIntervalSec)
	c.Analytics.MemoryPoints = getenvInt("ANALYTICS_MEMORY_POINTS", c.Analytics.MemoryPoints)

	c.Planner.ForecastHorizonMin = getenvFloat("RECO_FORECAST_HORIZON_MIN", c.Planner.ForecastHorizonMin)
	c.Planner.DropCadenceMin = getenvFloat("RECO_DROP_CADENCE_MIN", c.Planner.DropCadenceMin)
	c.Planner.DecisionIntervalSec = getenvFloat("RECO_DECISION_INTERVAL_SEC", c.Planner.DecisionIntervalSec)
	c.Planner.CookTimeSec = getenvFloat("RECO_COOK_TIME_SEC", c.Planner.CookTimeSec)
	c.Planner.AvgTicketUSD = getenvFloat("AVG_TICKET_USD", c.Planner.AvgTicketUSD)
	c.Planner.UrgencyMediumRatio = getenvFloat("RECO_URGENCY_MEDIUM_RATIO", c.Planner.UrgencyMediumRatio)
	c.Planner.UrgencyHighRatio = getenvFloat("RECO_URGENCY_HIGH_RATIO", c.Planner.UrgencyHighRatio)

	c.NATS.URL = getenv("NATS_URL", c.NATS.URL)
}

func (c *Config) normalize() error {
	defaults := Default()

	switch c.Database.Driver {
	case "", database.DriverSQLite:
		c.Database.Driver = database.DriverSQLite
		if c.Database.URL == "" {
			c.Database.URL = defaultDBPath
		}
	case database.DriverPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required for the %s driver", c.Database.Driver)
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	if c.Server.Port <= 0 {
		c.Server.Port = defaults.Server.Port
	}
	if c.Server.MetricsPath == "" {
		c.Server.MetricsPath = defaults.Server.MetricsPath
	}

	if c.Analytics.SampleIntervalSec <= 0 {
		c.Analytics.SampleIntervalSec = defaults.Analytics.SampleIntervalSec
	}
	c.Analytics.SampleIntervalSec = max(minSampleIntervalSec, c.Analytics.SampleIntervalSec)
	if c.Analytics.MemoryPoints <= 0 {
		c.Analytics.MemoryPoints = defaults.Analytics.MemoryPoints
	}
	c.Analytics.MemoryPoints = max(broadcast.MinCapacity, c.Analytics.MemoryPoints)
	if c.Analytics.SnapshotStaleSec <= 0 {
		c.Analytics.SnapshotStaleSec = defaults.Analytics.SnapshotStaleSec
	}

	p := &c.Planner
	if p.ForecastHorizonMin <= 0 {
		p.ForecastHorizonMin = defaults.Planner.ForecastHorizonMin
	}
	if p.DropCadenceMin <= 0 {
		p.DropCadenceMin = defaults.Planner.DropCadenceMin
	}
	if p.DecisionIntervalSec <= 0 {
		p.DecisionIntervalSec = defaults.Planner.DecisionIntervalSec
	}
	p.DecisionIntervalSec = max(minDecisionIntervalSec, p.DecisionIntervalSec)
	if p.CookTimeSec > 0 {
		p.CookTimeSec = max(minCookTimeSec, p.CookTimeSec)
	}
	if p.AvgTicketUSD <= 0 {
		p.AvgTicketUSD = defaults.Planner.AvgTicketUSD
	}
	th := forecast.NewThresholds(p.UrgencyMediumRatio, p.UrgencyHighRatio)
	p.UrgencyMediumRatio, p.UrgencyHighRatio = th.Medium, th.High

	if c.NATS.Subject == "" {
		c.NATS.Subject = publish.DefaultSubject
	}
	return nil
}

// EngineOptions converts the planner and policy sections into engine options
func (c *Config) EngineOptions() engine.Options {
	return engine.Options{
		HorizonMin:       c.Planner.ForecastHorizonMin,
		DropCadenceMin:   c.Planner.DropCadenceMin,
		DecisionInterval: seconds(c.Planner.DecisionIntervalSec),
		CookTime:         seconds(c.Planner.CookTimeSec),
		AvgTicketUSD:     c.Planner.AvgTicketUSD,
		UrgencyMedium:    c.Planner.UrgencyMediumRatio,
		UrgencyHigh:      c.Planner.UrgencyHighRatio,
		Policy:           c.Policy,
	}
}

// BusinessProfile returns the configured profile or the sample one
func (c *Config) BusinessProfile() models.BusinessProfile {
	if c.Profile != nil {
		return *c.Profile
	}
	return models.SampleBusinessProfile(c.Planner.DropCadenceMin, c.Planner.AvgTicketUSD)
}

// SampleInterval returns the sampling interval
func (c *Config) SampleInterval() time.Duration {
	return seconds(c.Analytics.SampleIntervalSec)
}

// SnapshotStaleAfter returns how long an ingested snapshot stays fresh
func (c *Config) SnapshotStaleAfter() time.Duration {
	return seconds(c.Analytics.SnapshotStaleSec)
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return n
}

func getenvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return def
	}
	return f
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
