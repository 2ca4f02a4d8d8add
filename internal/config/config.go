package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

const (
	// EnvPrefix namespaces every environment variable, e.g. CINE_SERVER_PORT
	EnvPrefix = "CINE"
	// ConfigFileEnv names the YAML file to overlay on the defaults
	ConfigFileEnv = "CINE_CONFIG_FILE"
	// DefaultConfigFile is read when ConfigFileEnv is unset and the file exists
	DefaultConfigFile = "config.yaml"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Pipeline  PipelineConfig  `yaml:"pipeline" envconfig:"PIPELINE"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
	Upload    UploadConfig    `yaml:"upload" envconfig:"UPLOAD"`
	RateLimit RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
	WebSocket WebSocketConfig `yaml:"websocket" envconfig:"WEBSOCKET"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host" envconfig:"HOST"`
	Port            int           `yaml:"port" envconfig:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	AllowedOrigins  []string      `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL"`
	Format   string `yaml:"format" envconfig:"FORMAT"`
	Output   string `yaml:"output" envconfig:"OUTPUT"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// PipelineConfig holds the analysis defaults and stage policy
type PipelineConfig struct {
	ClusterK             int           `yaml:"cluster_k" envconfig:"CLUSTER_K"`
	ClusterSeed          int64         `yaml:"cluster_seed" envconfig:"CLUSTER_SEED"`
	ClusterRestarts      int           `yaml:"cluster_restarts" envconfig:"CLUSTER_RESTARTS"`
	ClusterMaxIterations int           `yaml:"cluster_max_iterations" envconfig:"CLUSTER_MAX_ITERATIONS"`
	ARIMAP               int           `yaml:"arima_p" envconfig:"ARIMA_P"`
	ARIMAD               int           `yaml:"arima_d" envconfig:"ARIMA_D"`
	ARIMAQ               int           `yaml:"arima_q" envconfig:"ARIMA_Q"`
	Horizon              int           `yaml:"horizon" envconfig:"HORIZON"`
	StageTimeout         time.Duration `yaml:"stage_timeout" envconfig:"STAGE_TIMEOUT"`
	InvalidateOnReload   bool          `yaml:"invalidate_on_reload" envconfig:"INVALIDATE_ON_RELOAD"`
	StopWords            []string      `yaml:"stop_words" envconfig:"STOP_WORDS"`
	TopTokens            int           `yaml:"top_tokens" envconfig:"TOP_TOKENS"`
}

// TelemetryConfig controls OpenTelemetry exporters
type TelemetryConfig struct {
	ServiceName    string  `yaml:"service_name" envconfig:"SERVICE_NAME"`
	Environment    string  `yaml:"environment" envconfig:"ENVIRONMENT"`
	EnableTracing  bool    `yaml:"enable_tracing" envconfig:"ENABLE_TRACING"`
	EnableMetrics  bool    `yaml:"enable_metrics" envconfig:"ENABLE_METRICS"`
	TraceExporter  string  `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER"`
	MetricExporter string  `yaml:"metric_exporter" envconfig:"METRIC_EXPORTER"`
	SampleRatio    float64 `yaml:"sample_ratio" envconfig:"SAMPLE_RATIO"`
}

// UploadConfig bounds payload uploads
type UploadConfig struct {
	MaxBytes int64 `yaml:"max_bytes" envconfig:"MAX_BYTES"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS"`
	Burst   int     `yaml:"burst" envconfig:"BURST"`
}

// WebSocketConfig contains WebSocket configuration
type WebSocketConfig struct {
	ReadBufferSize  int           `yaml:"read_buffer_size" envconfig:"READ_BUFFER_SIZE"`
	WriteBufferSize int           `yaml:"write_buffer_size" envconfig:"WRITE_BUFFER_SIZE"`
	PingPeriod      time.Duration `yaml:"ping_period" envconfig:"PING_PERIOD"`
	PongWait        time.Duration `yaml:"pong_wait" envconfig:"PONG_WAIT"`
}

// Load builds the configuration from defaults, the optional YAML file and
// the CINE_* environment, in increasing order of precedence.
func Load() (*Config, error) {
	cfg := Default()

	if path := configFilePath(); path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file %s: %w", path, err)
		}
	}

	// No default tags: unset variables leave the file or default value alone
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFromFile overlays YAML values onto cfg
func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func configFilePath() string {
	if path := os.Getenv(ConfigFileEnv); path != "" {
		return path
	}
	if _, err := os.Stat(DefaultConfigFile); err == nil {
		return DefaultConfigFile
	}
	return ""
}

// Validate checks ranges and normalizes enumerations
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server read and write timeouts must be positive")
	}

	c.Logging.Format = "json"
	switch strings.ToLower(c.Logging.Output) {
	case "console", "file", "both":
		c.Logging.Output = strings.ToLower(c.Logging.Output)
	default:
		return fmt.Errorf("invalid logging output %q: want console, file or both", c.Logging.Output)
	}
	if c.Logging.Output != "console" && c.Logging.FilePath == "" {
		return fmt.Errorf("logging file path is required for output %q", c.Logging.Output)
	}

	p := c.Pipeline
	if p.ClusterK < 1 {
		return fmt.Errorf("pipeline cluster_k must be at least 1, got %d", p.ClusterK)
	}
	if p.ClusterRestarts < 1 || p.ClusterMaxIterations < 1 {
		return fmt.Errorf("pipeline cluster restarts and iterations must be positive")
	}
	if p.ARIMAP < 0 || p.ARIMAD < 0 || p.ARIMAQ < 0 || p.ARIMAP+p.ARIMAQ == 0 {
		return fmt.Errorf("invalid pipeline ARIMA order (%d,%d,%d)", p.ARIMAP, p.ARIMAD, p.ARIMAQ)
	}
	if p.Horizon < 1 {
		return fmt.Errorf("pipeline horizon must be at least 1, got %d", p.Horizon)
	}
	if p.StageTimeout < 0 {
		return fmt.Errorf("pipeline stage timeout must not be negative")
	}
	if p.TopTokens < 1 {
		return fmt.Errorf("pipeline top_tokens must be at least 1, got %d", p.TopTokens)
	}

	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry sample ratio must be within [0, 1]")
	}
	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("upload max bytes must be positive")
	}
	if c.RateLimit.Enabled && (c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0) {
		return fmt.Errorf("rate limit rps and burst must be positive when enabled")
	}
	return nil
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    2 * time.Minute,
			IdleTimeout:     60 * time.Second,
			MaxHeaderBytes:  1 << 20,
			ShutdownTimeout: 30 * time.Second,
			AllowedOrigins:  []string{"http://localhost:8080"},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "console",
			FilePath: "logs/cinepulse.log",
		},
		Pipeline: PipelineConfig{
			ClusterK:             4,
			ClusterSeed:          42,
			ClusterRestarts:      10,
			ClusterMaxIterations: 300,
			ARIMAP:               5,
			ARIMAD:               1,
			ARIMAQ:               0,
			Horizon:              10,
			StageTimeout:         2 * time.Minute,
			TopTokens:            30,
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "cinepulse",
			Environment:    "development",
			EnableTracing:  false,
			EnableMetrics:  true,
			TraceExporter:  "stdout",
			MetricExporter: "prometheus",
			SampleRatio:    1.0,
		},
		Upload: UploadConfig{
			MaxBytes: 32 << 20,
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			RPS:     50,
			Burst:   100,
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			PingPeriod:      30 * time.Second,
			PongWait:        60 * time.Second,
		},
	}
}
