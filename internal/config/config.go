package config

import (
	"io/fs"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"codeberg.org/mutker/apcupsd-exporter/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultHost            = "localhost"
	DefaultPort            = 3551
	DefaultListenAddress   = "0.0.0.0"
	DefaultMetricsPort     = 8080
	DefaultMetricsPath     = "/metrics"
	DefaultInterval        = 10
	DefaultTimeout         = 15
	DefaultMaxFrameSize    = 4096
	DefaultScrapeRateLimit = 0.0
	DefaultTrustForwarded  = false
	DefaultLogLevel        = LogLevelInfo
	DefaultConfigFile      = "/etc/apcupsd_exporter/apcupsd_exporter.toml"

	ConfigFileEnv = "APCUPSD_EXPORTER_CONFIG"

	maxPort      = 65535
	maxFrameSize = 65535
)

// metricsPathPattern admits literal paths only, so the value can never turn
// into a wildcard or subtree route.
var metricsPathPattern = regexp.MustCompile(`^(/[A-Za-z0-9._~-]+)+$`)

type Config struct {
	Host            string  `mapstructure:"host"`
	Port            int     `mapstructure:"port"`
	ListenAddress   string  `mapstructure:"listen_address"`
	MetricsPort     int     `mapstructure:"metrics_port"`
	MetricsPath     string  `mapstructure:"metrics_path"`
	Interval        int     `mapstructure:"interval"`
	Timeout         int     `mapstructure:"timeout"`
	MaxFrameSize    int     `mapstructure:"max_frame_size"`
	ScrapeRateLimit float64 `mapstructure:"scrape_rate_limit"`
	// TrustForwardedFor keys the scrape rate limit on X-Forwarded-For.
	TrustForwardedFor bool     `mapstructure:"trust_forwarded_for"`
	LogLevel          LogLevel `mapstructure:"log_level"`

	// ConfigFile is the file the values were read from, empty if none.
	ConfigFile string `mapstructure:"-"`
}

type setting struct {
	key   string
	flag  string
	env   string
	value any
	usage string
}

var settings = []setting{
	{"host", "host", "APCUPSD_HOST", DefaultHost, "apcupsd NIS host"},
	{"port", "port", "APCUPSD_PORT", DefaultPort, "apcupsd NIS port"},
	{"listen_address", "listen-address", "LISTEN_ADDRESS", DefaultListenAddress, "HTTP bind address"},
	{"metrics_port", "metrics-port", "METRICS_PORT", DefaultMetricsPort, "HTTP port"},
	{"metrics_path", "metrics-path", "METRICS_PATH", DefaultMetricsPath, "scrape path"},
	{"interval", "interval", "INTERVAL", DefaultInterval, "poll interval in seconds"},
	{"timeout", "timeout", "TIMEOUT", DefaultTimeout, "connect and read timeout in seconds"},
	{"max_frame_size", "max-frame-size", "MAX_FRAME_SIZE", DefaultMaxFrameSize, "largest accepted NIS frame in bytes"},
	{"scrape_rate_limit", "scrape-rate-limit", "SCRAPE_RATE_LIMIT", DefaultScrapeRateLimit, "scrapes per second per client, 0 disables"},
	{"trust_forwarded_for", "trust-forwarded-for", "TRUST_FORWARDED_FOR", DefaultTrustForwarded, "rate limit by X-Forwarded-For (only behind a trusted proxy)"},
	{"log_level", "log-level", "LOG_LEVEL", string(DefaultLogLevel), "log level (debug, info, warning, error)"},
}

// Load reads the configuration with precedence flags > environment > config
// file > defaults, then validates it.
func Load(args []string, opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := options{}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, err
		}
	}

	flags := newFlagSet()
	if err := flags.Parse(args); err != nil {
		return nil, errFactory.Wrap(errors.ErrParseFlags, err)
	}

	v := viper.New()
	for _, s := range settings {
		v.SetDefault(s.key, s.value)
		if err := v.BindEnv(s.key, s.env); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
		if err := v.BindPFlag(s.key, flags.Lookup(s.flag)); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	path, explicit := configPath(flags, o)
	loaded, err := readConfigFile(v, path, explicit)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}
	cfg.LogLevel = LogLevel(strings.ToLower(strings.TrimSpace(string(cfg.LogLevel))))
	if loaded {
		cfg.ConfigFile = path
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func newFlagSet() *pflag.FlagSet {
	flags := pflag.NewFlagSet("apcupsd_exporter", pflag.ContinueOnError)
	flags.SortFlags = false

	for _, s := range settings {
		switch def := s.value.(type) {
		case string:
			flags.String(s.flag, def, s.usage)
		case int:
			flags.Int(s.flag, def, s.usage)
		case float64:
			flags.Float64(s.flag, def, s.usage)
		case bool:
			flags.Bool(s.flag, def, s.usage)
		}
	}
	flags.String("config", "", "path to a TOML config file (env "+ConfigFileEnv+")")

	return flags
}

func configPath(flags *pflag.FlagSet, o options) (string, bool) {
	if path, _ := flags.GetString("config"); path != "" {
		return path, true
	}
	if path := os.Getenv(ConfigFileEnv); path != "" {
		return path, true
	}
	if o.configPath != "" {
		return o.configPath, true
	}

	return DefaultConfigFile, false
}

// readConfigFile loads path into v. A missing default file is not an error.
func readConfigFile(v *viper.Viper, path string, explicit bool) (bool, error) {
	if _, err := os.Stat(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, errors.New().Wrap(errors.ErrReadConfig, err)
	}

	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return false, errors.New().Wrap(errors.ErrReadConfig, err)
	}

	return true, nil
}

// Validate checks every field and reports the first invalid one.
func (c *Config) Validate() error {
	if fe := c.firstInvalid(); fe != nil {
		return errors.New().Wrap(errors.ErrInvalidConfig, fe)
	}

	return nil
}

func (c *Config) firstInvalid() *FieldError {
	switch {
	case strings.TrimSpace(c.Host) == "":
		return &FieldError{errors.ErrInvalidHost, "host", c.Host, "must not be empty"}
	case c.Port < 1 || c.Port > maxPort:
		return &FieldError{errors.ErrInvalidPort, "port", c.Port, "must be between 1 and 65535"}
	case c.MetricsPort < 1 || c.MetricsPort > maxPort:
		return &FieldError{errors.ErrInvalidPort, "metrics_port", c.MetricsPort, "must be between 1 and 65535"}
	case !metricsPathPattern.MatchString(c.MetricsPath):
		return &FieldError{errors.ErrInvalidConfig, "metrics_path", c.MetricsPath, "must be a plain absolute path without a trailing slash"}
	case c.MetricsPath == "/healthz" || c.MetricsPath == "/readyz":
		return &FieldError{errors.ErrInvalidConfig, "metrics_path", c.MetricsPath, "is reserved"}
	case c.Interval <= 0:
		return &FieldError{errors.ErrInvalidInterval, "interval", c.Interval, "must be positive"}
	case c.Timeout <= 0:
		return &FieldError{errors.ErrInvalidTimeout, "timeout", c.Timeout, "must be positive"}
	case c.MaxFrameSize < 1 || c.MaxFrameSize > maxFrameSize:
		return &FieldError{errors.ErrInvalidConfig, "max_frame_size", c.MaxFrameSize, "must be between 1 and 65535"}
	case c.ScrapeRateLimit < 0:
		return &FieldError{errors.ErrInvalidConfig, "scrape_rate_limit", c.ScrapeRateLimit, "must not be negative"}
	case !c.LogLevel.IsValid():
		return &FieldError{errors.ErrInvalidLogLevel, "log_level", c.LogLevel, "must be one of debug, info, warning, error"}
	}

	return nil
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Interval) * time.Second
}

// PollTimeout bounds both the connect and every frame read.
func (c *Config) PollTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.ListenAddress, strconv.Itoa(c.MetricsPort))
}
