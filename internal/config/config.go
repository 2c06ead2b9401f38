package config

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/guided-traffic/payload-gateway/internal/payload"
	"github.com/spf13/viper"
)

// TLSConfig holds TLS configuration
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// MonitoringConfig holds monitoring configuration
type MonitoringConfig struct {
	Enabled     bool   `mapstructure:"enabled"`      // Enable/disable monitoring
	BindAddress string `mapstructure:"bind_address"` // Address to bind monitoring server (default: :9090)
	MetricsPath string `mapstructure:"metrics_path"` // Path for metrics endpoint (default: /metrics)
}

// PayloadConfig holds payload parsing options. Empty fields of a route's
// payload block inherit the top-level defaults.
type PayloadConfig struct {
	MaxBytes   int64    `mapstructure:"max_bytes"`
	Output     string   `mapstructure:"output"`      // "data" (default), "stream" or "file"
	Parse      string   `mapstructure:"parse"`       // "parse" (default), "raw" or "gunzip"
	FailAction string   `mapstructure:"fail_action"` // "error" (default), "log" or "ignore"
	Uploads    string   `mapstructure:"uploads"`     // Directory for file output (default: OS temp dir)
	Allow      []string `mapstructure:"allow"`       // Allowed mime types, empty allows all
	Override   string   `mapstructure:"override"`    // Content-type used instead of the request header
}

// RouteConfig binds payload options to a path
type RouteConfig struct {
	Path    string        `mapstructure:"path"`
	Methods []string      `mapstructure:"methods"`
	Payload PayloadConfig `mapstructure:"payload"`
}

// Config holds the application configuration
type Config struct {
	// Server configuration
	BindAddress       string    `mapstructure:"bind_address"`
	LogLevel          string    `mapstructure:"log_level"`
	LogFormat         string    `mapstructure:"log_format"` // "text" (default) or "json"
	LogHealthRequests bool      `mapstructure:"log_health_requests"`
	ShutdownTimeout   int       `mapstructure:"shutdown_timeout"` // Graceful shutdown timeout in seconds
	ClientTimeout     int       `mapstructure:"client_timeout"`   // Data-mode payload read timeout in seconds, 0 disables it
	TLS               TLSConfig `mapstructure:"tls"`

	// Monitoring configuration
	Monitoring MonitoringConfig `mapstructure:"monitoring"`

	// Payload defaults and routes
	Payload PayloadConfig `mapstructure:"payload"`
	Routes  []RouteConfig `mapstructure:"routes"`
}

// InitConfig initializes the configuration system
func InitConfig(cfgFile string) {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			os.Exit(1)
		}

		// Search config in home directory with name ".payload-gateway" (without extension)
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".payload-gateway")
	}

	// Environment variable configuration
	viper.SetEnvPrefix("PGW") // Payload GateWay
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Set defaults
	setDefaults()

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// Load loads the configuration from viper
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate required fields
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("bind_address", "0.0.0.0:8080")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_format", "text")
	viper.SetDefault("log_health_requests", false)
	viper.SetDefault("shutdown_timeout", 30)
	viper.SetDefault("client_timeout", 10)

	// TLS defaults
	viper.SetDefault("tls.enabled", false)

	// Monitoring defaults
	viper.SetDefault("monitoring.enabled", false)
	viper.SetDefault("monitoring.bind_address", ":9090")
	viper.SetDefault("monitoring.metrics_path", "/metrics")

	// Payload defaults
	viper.SetDefault("payload.max_bytes", payload.DefaultMaxBytes) // 1MB default
	viper.SetDefault("payload.output", string(payload.OutputData))
	viper.SetDefault("payload.parse", string(payload.ParseModeParse))
	viper.SetDefault("payload.fail_action", string(payload.FailActionError))
	viper.SetDefault("payload.uploads", os.TempDir())
}

// validate validates the configuration
func validate(cfg *Config) error {
	switch cfg.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("log_format must be 'text' or 'json', got '%s'", cfg.LogFormat)
	}

	if cfg.ClientTimeout < 0 {
		return fmt.Errorf("client_timeout must not be negative, got %d", cfg.ClientTimeout)
	}

	// Validate TLS configuration
	if cfg.TLS.Enabled {
		if cfg.TLS.CertFile == "" {
			return fmt.Errorf("tls.cert_file is required when TLS is enabled")
		}
		if cfg.TLS.KeyFile == "" {
			return fmt.Errorf("tls.key_file is required when TLS is enabled")
		}

		// Check if certificate files exist
		if _, err := os.Stat(cfg.TLS.CertFile); os.IsNotExist(err) {
			return fmt.Errorf("TLS certificate file does not exist: %s", cfg.TLS.CertFile)
		}
		if _, err := os.Stat(cfg.TLS.KeyFile); os.IsNotExist(err) {
			return fmt.Errorf("TLS key file does not exist: %s", cfg.TLS.KeyFile)
		}
	}

	if err := validatePayload("payload", cfg.Payload); err != nil {
		return err
	}

	seen := make(map[string]bool)
	for i, route := range cfg.Routes {
		if route.Path == "" {
			return fmt.Errorf("routes[%d].path is required", i)
		}
		if !strings.HasPrefix(route.Path, "/") {
			return fmt.Errorf("routes[%d].path must start with '/', got '%s'", i, route.Path)
		}
		if seen[route.Path] {
			return fmt.Errorf("duplicate route path: %s", route.Path)
		}
		seen[route.Path] = true

		for _, method := range route.Methods {
			if !isValidMethod(method) {
				return fmt.Errorf("routes[%d].methods contains unknown method '%s'", i, method)
			}
		}

		if err := validatePayload(fmt.Sprintf("routes[%d].payload", i), cfg.RouteOptions(route)); err != nil {
			return err
		}
	}

	return nil
}

func validatePayload(prefix string, pc PayloadConfig) error {
	if err := pc.options(0).Validate(); err != nil {
		return fmt.Errorf("%s: %w", prefix, err)
	}

	if payload.Output(pc.Output) == payload.OutputFile || pc.Uploads != "" {
		dir := pc.Uploads
		if dir == "" {
			dir = os.TempDir()
		}
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("%s.uploads directory is not accessible: %w", prefix, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("%s.uploads is not a directory: %s", prefix, dir)
		}
	}

	return nil
}

func isValidMethod(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
		http.MethodPatch, http.MethodDelete, http.MethodOptions:
		return true
	default:
		return false
	}
}

// RouteOptions merges a route's payload block over the top-level defaults
func (cfg *Config) RouteOptions(route RouteConfig) PayloadConfig {
	merged := cfg.Payload
	pc := route.Payload

	if pc.MaxBytes > 0 {
		merged.MaxBytes = pc.MaxBytes
	}
	if pc.Output != "" {
		merged.Output = pc.Output
	}
	if pc.Parse != "" {
		merged.Parse = pc.Parse
	}
	if pc.FailAction != "" {
		merged.FailAction = pc.FailAction
	}
	if pc.Uploads != "" {
		merged.Uploads = pc.Uploads
	}
	if len(pc.Allow) > 0 {
		merged.Allow = pc.Allow
	}
	if pc.Override != "" {
		merged.Override = pc.Override
	}

	return merged
}

// PayloadOptions returns the parser options for a route
func (cfg *Config) PayloadOptions(route RouteConfig) payload.Options {
	return cfg.RouteOptions(route).options(time.Duration(cfg.ClientTimeout) * time.Second)
}

// DefaultPayloadOptions returns the parser options for routes without their own block
func (cfg *Config) DefaultPayloadOptions() payload.Options {
	return cfg.Payload.options(time.Duration(cfg.ClientTimeout) * time.Second)
}

func (pc PayloadConfig) options(timeout time.Duration) payload.Options {
	allow := make([]string, 0, len(pc.Allow))
	for _, mime := range pc.Allow {
		allow = append(allow, strings.ToLower(strings.TrimSpace(mime)))
	}

	return payload.Options{
		MaxBytes:   pc.MaxBytes,
		Allow:      allow,
		Output:     payload.Output(strings.ToLower(pc.Output)),
		Parse:      payload.ParseMode(strings.ToLower(pc.Parse)),
		FailAction: payload.FailAction(strings.ToLower(pc.FailAction)),
		Uploads:    pc.Uploads,
		Override:   pc.Override,
		Timeout:    timeout,
	}
}
