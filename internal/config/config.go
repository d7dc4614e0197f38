package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/disaster-gis/internal/simplify"
)

// Config holds the full application configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Upload   UploadConfig   `yaml:"upload" mapstructure:"upload"`
	Ingest   IngestConfig   `yaml:"ingest" mapstructure:"ingest"`
	Simplify SimplifyConfig `yaml:"simplify" mapstructure:"simplify"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// DatabaseConfig configures the PostGIS destination.
type DatabaseConfig struct {
	URL             string        `yaml:"url" mapstructure:"url"`
	ConnectAttempts int           `yaml:"connect_attempts" mapstructure:"connect_attempts"`
	ConnectBackoff  time.Duration `yaml:"connect_backoff" mapstructure:"connect_backoff"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	MaxUploadMB    int64    `yaml:"max_upload_mb" mapstructure:"max_upload_mb"`
}

// UploadConfig configures staging of uploaded files.
type UploadConfig struct {
	TempDir string `yaml:"temp_dir" mapstructure:"temp_dir"`
}

// IngestConfig configures the ingestion pipeline.
type IngestConfig struct {
	SampleSize     int     `yaml:"sample_size" mapstructure:"sample_size"`
	ProgressBuffer int     `yaml:"progress_buffer" mapstructure:"progress_buffer"`
	ProgressRate   float64 `yaml:"progress_rate" mapstructure:"progress_rate"`
}

// SimplifyConfig holds the calibration bounds and the default algorithm.
type SimplifyConfig struct {
	simplify.CalibrationConfig `yaml:",inline" mapstructure:",squash"`
	Algorithm                  string `yaml:"algorithm" mapstructure:"algorithm"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("GIS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	cal := simplify.DefaultCalibration()
	v.SetDefault("database.url", "")
	v.SetDefault("database.connect_attempts", 5)
	v.SetDefault("database.connect_backoff", "1s")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.max_upload_mb", 512)
	v.SetDefault("upload.temp_dir", "")
	v.SetDefault("ingest.sample_size", 50)
	v.SetDefault("ingest.progress_buffer", 64)
	v.SetDefault("ingest.progress_rate", 0)
	v.SetDefault("simplify.tolerance_low", cal.ToleranceLow)
	v.SetDefault("simplify.tolerance_high", cal.ToleranceHigh)
	v.SetDefault("simplify.max_iterations", cal.MaxIterations)
	v.SetDefault("simplify.convergence", cal.Convergence)
	v.SetDefault("simplify.algorithm", string(simplify.DouglasPeucker))
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs before it runs.
func (c *Config) Validate(command string) error {
	var problems []string
	needsDB := false

	switch command {
	case "serve":
		needsDB = true
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			problems = append(problems, "server.port must be > 0 and <= 65535")
		}
		if c.Server.MaxUploadMB <= 0 {
			problems = append(problems, "server.max_upload_mb must be > 0")
		}
	case "ingest", "migrate", "runs":
		needsDB = true
	case "analyze", "simplify":
	default:
		return eris.Errorf("config: unknown mode %q", command)
	}

	if needsDB && c.Database.URL == "" {
		problems = append(problems, "database.url is required")
	}
	if c.Database.ConnectAttempts < 0 {
		problems = append(problems, "database.connect_attempts must be >= 0")
	}
	if c.Ingest.ProgressBuffer < 0 {
		problems = append(problems, "ingest.progress_buffer must be >= 0")
	}
	if c.Ingest.ProgressRate < 0 {
		problems = append(problems, "ingest.progress_rate must be >= 0")
	}
	if _, err := simplify.ParseAlgorithm(c.Simplify.Algorithm); err != nil {
		problems = append(problems, fmt.Sprintf("simplify.algorithm %q is not supported", c.Simplify.Algorithm))
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid for %s: %s", command, strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
