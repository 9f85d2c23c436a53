package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/satriahrh/scenery-voice/usecase"
)

// Store kinds
const (
	StoreFile   = "file"
	StoreRedis  = "redis"
	StoreMemory = "memory"
	StoreMongo  = "mongo"
)

// Environment variables read by Load
const (
	EnvConfigFile      = "VOICE_CONFIG"
	EnvEndpoint        = "VOICE_ENDPOINT"
	EnvLogLevel        = "VOICE_LOG_LEVEL"
	EnvStore           = "VOICE_STORE"
	EnvProfilePath     = "VOICE_PROFILE_PATH"
	EnvRedisAddr       = "VOICE_REDIS_ADDR"
	EnvRedisPassword   = "VOICE_REDIS_PASSWORD"
	EnvRedisDB         = "VOICE_REDIS_DB"
	EnvProfile         = "VOICE_PROFILE"
	EnvMongoURI        = "MONGODB_URI"
	EnvMongoDatabase   = "MONGODB_DATABASE"
	EnvJWTSecret       = "VOICE_JWT_SECRET"
	EnvTokenTTL        = "VOICE_TOKEN_TTL"
	EnvMetricsAddr     = "VOICE_METRICS_ADDR"
	EnvInputWAV        = "VOICE_INPUT_WAV"
	EnvOutputDir       = "VOICE_OUTPUT_DIR"
	EnvPort            = "PORT"
	EnvIdleTimeout     = "VOICE_IDLE_TIMEOUT"
	EnvShortReconnect  = "VOICE_SHORT_RECONNECT"
	EnvLongReconnect   = "VOICE_LONG_RECONNECT"
	EnvProcessingReset = "VOICE_PROCESSING_RESET"
)

// Config is the configuration of the voice client and the stub endpoint
type Config struct {
	Endpoint string `yaml:"endpoint"`
	LogLevel string `yaml:"log_level"`
	// MetricsAddr serves the client's /metrics when set
	MetricsAddr string `yaml:"metrics_addr"`

	Store  StoreConfig  `yaml:"store"`
	Auth   AuthConfig   `yaml:"auth"`
	Timing TimingConfig `yaml:"timing"`
	Audio  AudioConfig  `yaml:"audio"`
	Stub   StubConfig   `yaml:"stub"`
}

// StoreConfig selects where the session identifier is persisted
type StoreConfig struct {
	Kind          string `yaml:"kind"`
	ProfilePath   string `yaml:"profile_path"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	Profile       string `yaml:"profile"`
	MongoURI      string `yaml:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database"`
}

// AuthConfig enables bearer tokens on the stream when Secret is set
type AuthConfig struct {
	Secret   string        `yaml:"secret"`
	TokenTTL time.Duration `yaml:"token_ttl"`
}

// TimingConfig overrides the client's reconnect and reset delays
type TimingConfig struct {
	ShortReconnect  time.Duration `yaml:"short_reconnect"`
	LongReconnect   time.Duration `yaml:"long_reconnect"`
	ProcessingReset time.Duration `yaml:"processing_reset"`
}

// AudioConfig replaces the sound devices with WAV files when set
type AudioConfig struct {
	InputWAV  string `yaml:"input_wav"`
	OutputDir string `yaml:"output_dir"`
}

// StubConfig configures the stub voice endpoint
type StubConfig struct {
	Port        string          `yaml:"port"`
	IdleTimeout time.Duration   `yaml:"idle_timeout"`
	Script      *usecase.Script `yaml:"script"`
}

// Default returns the configuration used when nothing is set
func Default() Config {
	return Config{
		Endpoint: "ws://localhost:8080/voice/stream",
		LogLevel: "info",
		Store: StoreConfig{
			Kind:          StoreFile,
			RedisAddr:     "localhost:6379",
			Profile:       "default",
			MongoURI:      "mongodb://localhost:27017",
			MongoDatabase: "scenery_voice",
		},
		Stub: StubConfig{
			Port:        "8080",
			IdleTimeout: 5 * time.Minute,
		},
	}
}

// Load reads .env, the optional YAML file named by VOICE_CONFIG and the
// environment, in increasing precedence.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()
	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) {
		v, ok := os.LookupEnv(key)
		if !ok {
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = d
	}

	str(EnvEndpoint, &c.Endpoint)
	str(EnvLogLevel, &c.LogLevel)
	str(EnvMetricsAddr, &c.MetricsAddr)
	str(EnvStore, &c.Store.Kind)
	str(EnvProfilePath, &c.Store.ProfilePath)
	str(EnvRedisAddr, &c.Store.RedisAddr)
	str(EnvRedisPassword, &c.Store.RedisPassword)
	str(EnvProfile, &c.Store.Profile)
	str(EnvMongoURI, &c.Store.MongoURI)
	str(EnvMongoDatabase, &c.Store.MongoDatabase)
	str(EnvJWTSecret, &c.Auth.Secret)
	str(EnvInputWAV, &c.Audio.InputWAV)
	str(EnvOutputDir, &c.Audio.OutputDir)
	str(EnvPort, &c.Stub.Port)
	dur(EnvTokenTTL, &c.Auth.TokenTTL)
	dur(EnvIdleTimeout, &c.Stub.IdleTimeout)
	dur(EnvShortReconnect, &c.Timing.ShortReconnect)
	dur(EnvLongReconnect, &c.Timing.LongReconnect)
	dur(EnvProcessingReset, &c.Timing.ProcessingReset)

	if v, ok := os.LookupEnv(EnvRedisDB); ok {
		db, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvRedisDB, err))
		} else {
			c.Store.RedisDB = db
		}
	}

	return errors.Join(errs...)
}

// Validate reports every invalid setting
func (c Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.Endpoint)
	switch {
	case c.Endpoint == "":
		errs = append(errs, errors.New("endpoint is required"))
	case err != nil:
		errs = append(errs, fmt.Errorf("endpoint: %w", err))
	case u.Scheme != "ws" && u.Scheme != "wss":
		errs = append(errs, fmt.Errorf("endpoint scheme must be ws or wss, got %q", u.Scheme))
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log level %q", c.LogLevel))
	}

	switch c.Store.Kind {
	case StoreFile, StoreMemory:
	case StoreRedis:
		if c.Store.RedisAddr == "" {
			errs = append(errs, errors.New("redis store requires redis_addr"))
		}
		if c.Store.Profile == "" {
			errs = append(errs, errors.New("redis store requires a profile"))
		}
	case StoreMongo:
		if c.Store.MongoURI == "" || c.Store.MongoDatabase == "" {
			errs = append(errs, errors.New("mongo store requires mongo_uri and mongo_database"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store kind %q", c.Store.Kind))
	}

	if c.Auth.TokenTTL < 0 {
		errs = append(errs, errors.New("token_ttl must not be negative"))
	}
	if c.Timing.ShortReconnect < 0 || c.Timing.LongReconnect < 0 || c.Timing.ProcessingReset < 0 {
		errs = append(errs, errors.New("timings must not be negative"))
	}
	if c.Stub.Port == "" {
		errs = append(errs, errors.New("stub port is required"))
	} else if _, err := strconv.Atoi(c.Stub.Port); err != nil {
		errs = append(errs, fmt.Errorf("stub port %q is not a number", c.Stub.Port))
	}

	return errors.Join(errs...)
}
