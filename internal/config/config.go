// Package config loads signallab configuration with viper.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"signal-replay-lab/internal/clock"
	"signal-replay-lab/internal/domain"
)

// EnvPrefix prefixes environment overrides, e.g. SIGNALLAB_STORAGE_POSTGRES_DSN.
const EnvPrefix = "SIGNALLAB"

type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Storage StorageConfig `mapstructure:"storage"`
	Archive ArchiveConfig `mapstructure:"archive"`
	Replay  ReplayConfig  `mapstructure:"replay"`
	Study   StudyConfig   `mapstructure:"study"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type LogConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

type StorageConfig struct {
	UseMemory     bool   `mapstructure:"use_memory"`
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	ClickHouseDSN string `mapstructure:"clickhouse_dsn"`
}

type ArchiveConfig struct {
	Type string   `mapstructure:"type"` // "localfs" or "s3"
	Path string   `mapstructure:"path"` // For localfs
	S3   S3Config `mapstructure:"s3"`   // For S3
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

// ReplayConfig holds single-replay defaults.
type ReplayConfig struct {
	Seed       uint64 `mapstructure:"seed"`
	Resolution string `mapstructure:"resolution"` // ms, s, m or h
	Interval   string `mapstructure:"interval"`   // candle interval
}

// StudyConfig holds validation study settings.
type StudyConfig struct {
	TrainDays int           `mapstructure:"train_days"`
	TestDays  int           `mapstructure:"test_days"`
	StepDays  int           `mapstructure:"step_days"`
	Workers   int           `mapstructure:"workers"` // 0 = runtime.NumCPU()
	Timeout   time.Duration `mapstructure:"timeout"`
	ErrorMode string        `mapstructure:"error_mode"` // "collect" or "fail-fast"
	Lanes     []string      `mapstructure:"lanes"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	Path    string `mapstructure:"path"`
}

// Load reads configuration from file. Values missing from the file keep
// their Defaults; environment variables override both.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Defaults())

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("log.development", d.Log.Development)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("storage.use_memory", d.Storage.UseMemory)
	v.SetDefault("storage.postgres_dsn", d.Storage.PostgresDSN)
	v.SetDefault("storage.clickhouse_dsn", d.Storage.ClickHouseDSN)
	v.SetDefault("archive.type", d.Archive.Type)
	v.SetDefault("archive.path", d.Archive.Path)
	v.SetDefault("archive.s3.bucket", d.Archive.S3.Bucket)
	v.SetDefault("archive.s3.endpoint", d.Archive.S3.Endpoint)
	v.SetDefault("archive.s3.region", d.Archive.S3.Region)
	v.SetDefault("archive.s3.access_key", d.Archive.S3.AccessKey)
	v.SetDefault("archive.s3.secret_key", d.Archive.S3.SecretKey)
	v.SetDefault("archive.s3.prefix", d.Archive.S3.Prefix)
	v.SetDefault("replay.seed", d.Replay.Seed)
	v.SetDefault("replay.resolution", d.Replay.Resolution)
	v.SetDefault("replay.interval", d.Replay.Interval)
	v.SetDefault("study.train_days", d.Study.TrainDays)
	v.SetDefault("study.test_days", d.Study.TestDays)
	v.SetDefault("study.step_days", d.Study.StepDays)
	v.SetDefault("study.workers", d.Study.Workers)
	v.SetDefault("study.timeout", d.Study.Timeout)
	v.SetDefault("study.error_mode", d.Study.ErrorMode)
	v.SetDefault("study.lanes", d.Study.Lanes)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.addr", d.Metrics.Addr)
	v.SetDefault("metrics.path", d.Metrics.Path)
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	return &Config{
		Log: LogConfig{
			Level: "info",
		},
		Storage: StorageConfig{
			UseMemory: true,
		},
		Archive: ArchiveConfig{
			Type: "localfs",
			Path: "./artifacts",
		},
		Replay: ReplayConfig{
			Seed:       42,
			Resolution: string(clock.ResolutionSecond),
			Interval:   string(domain.Interval1m),
		},
		Study: StudyConfig{
			TrainDays: 14,
			TestDays:  7,
			StepDays:  7,
			Timeout:   30 * time.Minute,
			ErrorMode: string(domain.ErrorModeCollect),
			Lanes:     []string{domain.LaneBaseline, domain.LaneFeeShock, domain.LaneSlippageShock, domain.LaneLatencyShock, domain.LaneStopGap},
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":9090",
			Path:    "/metrics",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if !c.Storage.UseMemory {
		if c.Storage.PostgresDSN == "" {
			return domain.WrapError(domain.ErrConfiguration,
				fmt.Errorf("storage.postgres_dsn required when use_memory is false"))
		}
		if c.Storage.ClickHouseDSN == "" {
			return domain.WrapError(domain.ErrConfiguration,
				fmt.Errorf("storage.clickhouse_dsn required when use_memory is false"))
		}
	}

	switch c.Archive.Type {
	case "localfs":
		if c.Archive.Path == "" {
			return domain.WrapError(domain.ErrConfiguration,
				fmt.Errorf("archive.path required for localfs"))
		}
	case "s3":
		if c.Archive.S3.Bucket == "" {
			return domain.WrapError(domain.ErrConfiguration,
				fmt.Errorf("archive.s3.bucket required for s3"))
		}
	default:
		return domain.WrapError(domain.ErrConfiguration,
			fmt.Errorf("archive.type must be localfs or s3, got %q", c.Archive.Type))
	}

	if _, err := clock.ParseResolution(c.Replay.Resolution); err != nil {
		return err
	}
	if !domain.Interval(c.Replay.Interval).Valid() {
		return domain.WrapError(domain.ErrConfiguration,
			fmt.Errorf("replay.interval %q is not supported", c.Replay.Interval))
	}

	if c.Study.TrainDays <= 0 || c.Study.TestDays <= 0 || c.Study.StepDays <= 0 {
		return domain.WrapError(domain.ErrConfiguration,
			fmt.Errorf("study train/test/step days must be positive, got %d/%d/%d",
				c.Study.TrainDays, c.Study.TestDays, c.Study.StepDays))
	}
	if c.Study.Workers < 0 {
		return domain.WrapError(domain.ErrConfiguration,
			fmt.Errorf("study.workers cannot be negative, got %d", c.Study.Workers))
	}
	if _, err := domain.ParseErrorMode(c.Study.ErrorMode); err != nil {
		return err
	}
	for _, name := range c.Study.Lanes {
		if _, ok := domain.LaneByName(name); !ok {
			return domain.WrapError(domain.ErrConfiguration,
				fmt.Errorf("unknown stress lane %q", name))
		}
	}

	return nil
}

// StudyLanes resolves the configured lane names.
func (c *Config) StudyLanes() []domain.StressLane {
	lanes := make([]domain.StressLane, 0, len(c.Study.Lanes))
	for _, name := range c.Study.Lanes {
		if lane, ok := domain.LaneByName(name); ok {
			lanes = append(lanes, lane)
		}
	}
	return lanes
}
