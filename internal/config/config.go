// Package config loads go-digits configuration.
//
// Values are resolved in this order, later sources winning:
// defaults, YAML file, environment variables, command-line flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-digits/pkg/raster"
)

// Defaults.
const (
	DefaultPort           = "8080"
	DefaultPredictorURL   = "http://localhost:8000"
	DefaultLogLevel       = "info"
	DefaultResampler      = "catmullrom"
	DefaultMaxUploadBytes = 5 * 1024 * 1024
)

// Config holds everything the server and CLI need.
type Config struct {
	Port           string `yaml:"port"`
	PredictorURL   string `yaml:"predictor_url"`
	PublicURL      string `yaml:"public_url"`
	LogLevel       string `yaml:"log_level"`
	LogFormat      string `yaml:"log_format"`
	Resampler      string `yaml:"resampler"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
	Debug          bool   `yaml:"debug"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Port:           DefaultPort,
		PredictorURL:   DefaultPredictorURL,
		LogLevel:       DefaultLogLevel,
		Resampler:      DefaultResampler,
		MaxUploadBytes: DefaultMaxUploadBytes,
	}
}

// LoadFile merges a YAML file into c. Missing keys keep their current value.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// LoadEnv merges environment overrides into c using lookup (os.LookupEnv
// in production).
func (c *Config) LoadEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	str("PORT", &c.Port)
	str("PREDICTOR_URL", &c.PredictorURL)
	str("PUBLIC_URL", &c.PublicURL)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)
	str("RESAMPLER", &c.Resampler)

	if v, ok := lookup("MAX_UPLOAD_BYTES"); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("config: MAX_UPLOAD_BYTES: %w", err)
		}
		c.MaxUploadBytes = n
	}
	if v, ok := lookup("DEBUG"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: DEBUG: %w", err)
		}
		c.Debug = b
	}
	return nil
}

// RegisterFlags binds flags on fs that override c after fs.Parse.
// Flag defaults are c's current values, so unset flags change nothing.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Port, "port", c.Port, "HTTP server port")
	fs.StringVar(&c.PredictorURL, "predictor", c.PredictorURL, "Prediction service base URL")
	fs.StringVar(&c.PublicURL, "public-url", c.PublicURL, "URL the UI is reachable at (used for the QR code)")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level: debug, info, warn, error")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "Log format: text or json")
	fs.StringVar(&c.Resampler, "resampler", c.Resampler, "Resampling filter: catmullrom, lanczos, bilinear")
	fs.Int64Var(&c.MaxUploadBytes, "max-upload", c.MaxUploadBytes, "Maximum upload size in bytes")
	fs.BoolVar(&c.Debug, "debug", c.Debug, "Enable request logging")
}

// Resolved returns PublicURL, falling back to localhost on the configured port.
func (c *Config) Resolved() string {
	if c.PublicURL != "" {
		return c.PublicURL
	}
	return "http://localhost:" + c.Port
}

// Validate checks the configuration for obvious mistakes and rewrites the
// resampler to its canonical name.
func (c *Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.PredictorURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("config: invalid predictor_url %q", c.PredictorURL))
	}
	if p, err := strconv.Atoi(c.Port); err != nil || p <= 0 || p > 65535 {
		errs = append(errs, fmt.Errorf("config: invalid port %q", c.Port))
	}
	if r, err := raster.ParseResampler(c.Resampler); err != nil {
		errs = append(errs, fmt.Errorf("config: unknown resampler %q", c.Resampler))
	} else {
		c.Resampler = string(r)
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("config: max_upload_bytes must be positive"))
	}
	return errors.Join(errs...)
}

// Load resolves the full configuration for a command: defaults, the YAML
// file named by -config or DIGITS_CONFIG, the environment, then args.
func Load(name string, args []string) (*Config, error) {
	cfg := Default()

	path := configPath(args)
	if path == "" {
		path = os.Getenv("DIGITS_CONFIG")
	}
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.LoadEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.String("config", path, "Path to a YAML config file")
	cfg.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// configPath pulls -config out of args before the real parse so the file
// can be applied underneath the other flags.
func configPath(args []string) string {
	for i, a := range args {
		a = strings.TrimLeft(a, "-")
		if a == "config" && i+1 < len(args) {
			return args[i+1]
		}
		if strings.HasPrefix(a, "config=") {
			return strings.TrimPrefix(a, "config=")
		}
	}
	return ""
}
