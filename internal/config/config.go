package config

import (
	"bytes"
	_ "embed"
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var defaults []byte

// ---- Root ----

type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Device     DeviceConfig     `mapstructure:"device"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher"`
	Jobs       JobsConfig       `mapstructure:"jobs"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Redis      RedisConfig      `mapstructure:"redis"`
	MySQL      DatabaseConfig   `mapstructure:"mysql"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
}

// ---- Leaf structs ----

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type HTTPConfig struct {
	Addr   string `mapstructure:"addr"`
	APIKey string `mapstructure:"api_key"`
}

type DeviceMode string

const (
	ModeBrowser DeviceMode = "browser"
	ModeCGI     DeviceMode = "cgi"
)

type DeviceConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Password       string        `mapstructure:"password"`
	Mode           DeviceMode    `mapstructure:"mode"`
	Headless       bool          `mapstructure:"headless"`
	NoSandbox      bool          `mapstructure:"no_sandbox"`
	ExecPath       string        `mapstructure:"exec_path"`
	ElementTimeout time.Duration `mapstructure:"element_timeout"`
	ConfirmTimeout time.Duration `mapstructure:"confirm_timeout"`
	SettleDelay    time.Duration `mapstructure:"settle_delay"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Warmup         bool          `mapstructure:"warmup"`
	StartupRetries int           `mapstructure:"startup_retries"`
}

type DispatcherConfig struct {
	MaxRetries      int           `mapstructure:"max_retries"`
	MaxQueue        int           `mapstructure:"max_queue"`
	RecordTimeoutMs int           `mapstructure:"record_timeout_ms"`
	Breaker         BreakerConfig `mapstructure:"breaker"`
}

type BreakerConfig struct {
	FailThreshold int `mapstructure:"fail_threshold" yaml:"fail_threshold"`
	OpenForMs     int `mapstructure:"open_for_ms"    yaml:"open_for_ms"`
}

type JobsConfig struct {
	Backend       string        `mapstructure:"backend"` // memory|redis
	TTL           time.Duration `mapstructure:"ttl"`
	MaxEntries    int           `mapstructure:"max_entries"`
	SweepSchedule string        `mapstructure:"sweep_schedule"`
}

type RateLimitConfig struct {
	RPS   int `mapstructure:"rps"`
	Burst int `mapstructure:"burst"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idletime"`
	PingTimeout     time.Duration `mapstructure:"ping_timeout"`
}

type KafkaConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Brokers        []string `mapstructure:"brokers"`
	Topic          string   `mapstructure:"topic"`
	GroupID        string   `mapstructure:"group_id"`
	MinBytes       int      `mapstructure:"min_bytes"`
	MaxBytes       int      `mapstructure:"max_bytes"`
	CommitInterval int      `mapstructure:"commit_interval_ms"`
}

var (
	ErrMissingBaseURL  = errors.New("BASE_URL environment variable not set")
	ErrMissingPassword = errors.New("PASSWORD environment variable not set")
	ErrMissingAPIKey   = errors.New("API_KEY environment variable not set")
)

// legacy env names used by existing deployments, in addition to SMSGW_*.
var legacyEnv = map[string]string{
	"device.base_url": "BASE_URL",
	"device.password": "PASSWORD",
	"http.api_key":    "API_KEY",
}

// Load reads embedded defaults, merges user YAML (if provided), loads .env,
// and applies env overrides (SMSGW_* plus the legacy BASE_URL/PASSWORD/API_KEY).
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	// embedded defaults
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		_ = v.MergeInConfig()
	}

	// env override (SMSGW_*)
	v.SetEnvPrefix("SMSGW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		envKey := "SMSGW_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envKey, legacy); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	cfg.Device.BaseURL = NormalizeBaseURL(cfg.Device.BaseURL)
	return cfg, nil
}

// NormalizeBaseURL prefixes http:// when no scheme is given and trims trailing slashes.
func NormalizeBaseURL(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if !strings.HasPrefix(s, "http") {
		s = "http://" + s
	}
	return strings.TrimRight(s, "/")
}

// ValidateDevice checks the settings needed to reach the router.
func (c Config) ValidateDevice() error {
	if c.Device.BaseURL == "" {
		return ErrMissingBaseURL
	}
	if c.Device.Password == "" {
		return ErrMissingPassword
	}
	switch c.Device.Mode {
	case ModeBrowser, ModeCGI:
		return nil
	default:
		return errors.New("device.mode must be browser or cgi, got " + string(c.Device.Mode))
	}
}

// Validate fails fast on settings the service cannot start without.
func (c Config) Validate() error {
	if err := c.ValidateDevice(); err != nil {
		return err
	}
	if c.HTTP.APIKey == "" {
		return ErrMissingAPIKey
	}
	switch c.Jobs.Backend {
	case "memory", "redis":
	default:
		return errors.New("jobs.backend must be memory or redis, got " + c.Jobs.Backend)
	}
	return nil
}
