package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config struct to hold the configuration settings
type Config struct {
	Postgres     PostgresConfig     `yaml:"postgres"`
	Strava       StravaConfig       `yaml:"strava"`
	Routes       RoutesConfig       `yaml:"routes"`
	Verification VerificationConfig `yaml:"verification"`
	Ops          OpsConfig          `yaml:"ops"`
}

// PostgresConfig holds Postgres configuration.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// StravaConfig holds Strava API credentials and client limits.
type StravaConfig struct {
	ClientID          string        `yaml:"client_id"`
	ClientSecret      string        `yaml:"client_secret"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	RefreshMargin     time.Duration `yaml:"refresh_margin"`
}

// RoutesConfig holds the source route file settings.
type RoutesConfig struct {
	Dir                string  `yaml:"dir"`
	SimplifyToleranceM float64 `yaml:"simplify_tolerance_m"`
}

// VerificationConfig holds the matching thresholds and pass scheduling.
type VerificationConfig struct {
	SimilarityThreshold  float64       `yaml:"similarity_threshold"`
	MaxDeviationM        float64       `yaml:"max_deviation_m"`
	MinDistanceM         float64       `yaml:"min_distance_m"`
	Cadence              time.Duration `yaml:"cadence"`
	WindowStartHour      int           `yaml:"window_start_hour"`
	WindowEndHour        int           `yaml:"window_end_hour"`
	Timezone             string        `yaml:"timezone"`
	WorkerCount          int           `yaml:"worker_count"`
	ParticipantTimeout   time.Duration `yaml:"participant_timeout"`
	LookbackDays         int           `yaml:"lookback_days"`
	CursorOverlap        time.Duration `yaml:"cursor_overlap"`
	ReattemptDataErrors  bool          `yaml:"reattempt_data_errors"`
}

// OpsConfig holds the operational HTTP server settings.
type OpsConfig struct {
	Addr string `yaml:"addr"`
}

// LoadConfig loads the configuration from a YAML file.
func LoadConfig(filename string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(filename)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	// --- OVERRIDE WITH ENV VARS IF PRESENT ---
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := os.Getenv("STRAVA_CLIENT_ID"); v != "" {
		cfg.Strava.ClientID = v
	}
	if v := os.Getenv("STRAVA_CLIENT_SECRET"); v != "" {
		cfg.Strava.ClientSecret = v
	}
	if v := os.Getenv("STRAVA_REQUESTS_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Strava.RequestsPerMinute = n
		}
	}
	if v := os.Getenv("STRAVA_REFRESH_MARGIN"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Strava.RefreshMargin = d
		}
	}
	if v := os.Getenv("SOURCE_GPX_DIR"); v != "" {
		cfg.Routes.Dir = v
	}
	if v := os.Getenv("ROUTE_SIMPLIFY_TOLERANCE_M"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Routes.SimplifyToleranceM = f
		}
	}
	if v := os.Getenv("ROUTE_SIMILARITY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Verification.SimilarityThreshold = f
		}
	}
	if v := os.Getenv("GPS_MAX_DEVIATION_METERS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Verification.MaxDeviationM = f
		}
	}
	if v := os.Getenv("MIN_ACTIVITY_DISTANCE_M"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Verification.MinDistanceM = f
		}
	}
	if v := os.Getenv("VERIFICATION_CADENCE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Verification.Cadence = d
		}
	}
	if v := os.Getenv("VERIFICATION_TIMEZONE"); v != "" {
		cfg.Verification.Timezone = v
	}
	if v := os.Getenv("OPS_ADDR"); v != "" {
		cfg.Ops.Addr = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Strava: StravaConfig{
			RequestsPerMinute: 100,
			RefreshMargin:     5 * time.Minute,
		},
		Routes: RoutesConfig{
			Dir:                "data",
			SimplifyToleranceM: 10.0,
		},
		Verification: VerificationConfig{
			SimilarityThreshold: 0.8,
			MaxDeviationM:       20.0,
			MinDistanceM:        100_000,
			Cadence:             2 * time.Hour,
			WindowStartHour:     6,
			WindowEndHour:       22,
			Timezone:            "Europe/Warsaw",
			WorkerCount:         4,
			ParticipantTimeout:  2 * time.Minute,
			LookbackDays:        30,
			CursorOverlap:       24 * time.Hour,
		},
		Ops: OpsConfig{
			Addr: ":8090",
		},
	}
}

// Validate checks the configuration for values that would make the engine
// misjudge activities. Failures here abort startup.
func (c *Config) Validate() error {
	if c.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn is required (set DATABASE_URL)")
	}
	if t := c.Verification.SimilarityThreshold; t <= 0 || t > 1 {
		return fmt.Errorf("verification.similarity_threshold must be in (0,1], got %v", t)
	}
	if c.Verification.MaxDeviationM <= 0 {
		return fmt.Errorf("verification.max_deviation_m must be positive, got %v", c.Verification.MaxDeviationM)
	}
	if c.Verification.MinDistanceM < 0 {
		return fmt.Errorf("verification.min_distance_m must not be negative, got %v", c.Verification.MinDistanceM)
	}
	if c.Routes.SimplifyToleranceM <= 0 {
		return fmt.Errorf("routes.simplify_tolerance_m must be positive, got %v", c.Routes.SimplifyToleranceM)
	}
	if s, e := c.Verification.WindowStartHour, c.Verification.WindowEndHour; s < 0 || s > 23 || e < 1 || e > 24 || s >= e {
		return fmt.Errorf("verification window [%d,%d) is not a valid hour range", s, e)
	}
	if _, err := time.LoadLocation(c.Verification.Timezone); err != nil {
		return fmt.Errorf("invalid verification.timezone %q: %w", c.Verification.Timezone, err)
	}
	if c.Verification.WorkerCount <= 0 {
		c.Verification.WorkerCount = 4
	}
	return nil
}
