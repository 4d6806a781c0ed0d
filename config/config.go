// Package config contains code to set the default values and read
// config files to be used throughout the whole application
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/spf13/pflag"
	v "github.com/spf13/viper"
)

var (
	configPath        = pflag.String("config", ".", "Directory containing config.toml")
	validLogLevels    = []string{"debug", "info", "warn", "error", "fatal"}
	validStorageTypes = []string{"local", "s3", "r2"}
	validDBTypes      = []string{"sqlite", "postgres"}
	validCacheStores  = []string{"memory", "redis"}
)

type App struct {
	LogLevel      string `mapstructure:"log_level"`
	LogPath       string `mapstructure:"log_path"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups"`
	LogMaxAgeDays int    `mapstructure:"log_max_age_days"`
	LogCompress   bool   `mapstructure:"log_compress"`
}

type Host struct {
	Port        int      `mapstructure:"port"`
	CorsOrigins []string `mapstructure:"cors_origins"`
	SSLEnabled  bool     `mapstructure:"ssl_enabled"`
}

type Database struct {
	Type string `mapstructure:"type"`
	Path string `mapstructure:"path"`
	DSN  string `mapstructure:"dsn"`
}

type Storage struct {
	Type            string `mapstructure:"type"`
	MediaPath       string `mapstructure:"media_path"`
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	AccountID       string `mapstructure:"account_id"`
}

type Upload struct {
	// MaxSize is in bytes once Setup returns
	MaxSize int64 `mapstructure:"max_size"`
}

type Cache struct {
	Path       string `mapstructure:"path"`
	Locale     string `mapstructure:"locale"`
	Expiration int    `mapstructure:"expiration"`
	Store      string `mapstructure:"store"`
	RedisAddr  string `mapstructure:"redis_addr"`
}

type Security struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	RateLimit int    `mapstructure:"rate_limit"`

	// AnonTTLHours removes anonymous users and their uploads after this
	// many hours. 0 keeps them forever.
	AnonTTLHours int `mapstructure:"anon_ttl_hours"`
}

type Turnstile struct {
	Enabled     bool   `mapstructure:"enabled"`
	SecretToken string `mapstructure:"secret_token"`
}

type Convert struct {
	Workers int `mapstructure:"workers"`
	MaxJobs int `mapstructure:"max_jobs"`
}

// Config is the validated, typed view of config.toml + environment.
// It is handed to constructors at startup; nothing reads viper afterwards.
type Config struct {
	App       App       `mapstructure:"app"`
	Host      Host      `mapstructure:"host"`
	Database  Database  `mapstructure:"database"`
	Storage   Storage   `mapstructure:"storage"`
	Upload    Upload    `mapstructure:"upload"`
	Cache     Cache     `mapstructure:"cache"`
	Security  Security  `mapstructure:"security"`
	Turnstile Turnstile `mapstructure:"turnstile"`
	Convert   Convert   `mapstructure:"convert"`
}

func genSecret() string {
	b := make([]byte, 64)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// SetDefaults registers every default value on the given viper instance.
func SetDefaults(vp *v.Viper) {
	vp.SetDefault("app.log_level", "info")
	vp.SetDefault("app.log_max_size_mb", 100)
	vp.SetDefault("app.log_max_backups", 5)
	vp.SetDefault("app.log_max_age_days", 30)
	vp.SetDefault("app.log_compress", true)

	vp.SetDefault("host.port", 8080)
	vp.SetDefault("host.cors_origins", []string{"http://localhost:5173"})
	vp.SetDefault("host.ssl_enabled", false)

	vp.SetDefault("database.type", "sqlite")
	vp.SetDefault("database.path", "database.db")

	vp.SetDefault("storage.type", "local")
	vp.SetDefault("storage.media_path", "./media")

	vp.SetDefault("upload.max_size", 50)

	vp.SetDefault("cache.path", "/tmp/cache")
	vp.SetDefault("cache.locale", "EN")
	vp.SetDefault("cache.expiration", 86400)
	vp.SetDefault("cache.store", "memory")

	vp.SetDefault("security.rate_limit", 10)
	vp.SetDefault("security.anon_ttl_hours", 0)

	vp.SetDefault("turnstile.enabled", false)

	vp.SetDefault("convert.workers", 2)
	vp.SetDefault("convert.max_jobs", 16)
}

func bindEnvs(vp *v.Viper) {
	vp.BindEnv("app.log_level", "app_log_level")
	vp.BindEnv("app.log_path", "app_log_path")

	vp.BindEnv("host.port", "host_port")
	vp.BindEnv("host.ssl_enabled", "host_ssl_enabled")

	vp.BindEnv("database.type", "database_type")
	vp.BindEnv("database.path", "database_path")
	vp.BindEnv("database.dsn", "database_dsn")

	vp.BindEnv("storage.type", "storage_type")
	vp.BindEnv("storage.media_path", "storage_media_path")
	vp.BindEnv("storage.bucket", "storage_bucket")
	vp.BindEnv("storage.region", "storage_region")
	vp.BindEnv("storage.access_key_id", "storage_access_key_id")
	vp.BindEnv("storage.secret_access_key", "storage_secret_access_key")
	vp.BindEnv("storage.account_id", "storage_account_id")

	vp.BindEnv("upload.max_size", "upload_max_size")

	vp.BindEnv("cache.path", "cache_path")
	vp.BindEnv("cache.locale", "cache_locale")
	vp.BindEnv("cache.expiration", "cache_expiration")
	vp.BindEnv("cache.store", "cache_store")
	vp.BindEnv("cache.redis_addr", "cache_redis_addr")

	vp.BindEnv("security.jwt_secret", "security_jwt_secret")
	vp.BindEnv("security.rate_limit", "security_rate_limit")
	vp.BindEnv("security.anon_ttl_hours", "security_anon_ttl_hours")

	vp.BindEnv("turnstile.enabled", "turnstile_enabled")
	vp.BindEnv("turnstile.secret_token", "turnstile_secret_token")

	vp.BindEnv("convert.workers", "convert_workers")
	vp.BindEnv("convert.max_jobs", "convert_max_jobs")
}

// Setup prepares everything config-related so that the app can
// start working. Function will return an error if something
// is critically wrong and the application can't run because of
// that.
func Setup() (*Config, error) {
	pflag.Parse()

	vp := v.New()
	vp.BindPFlags(pflag.CommandLine)

	vp.SetConfigName("config")
	vp.SetConfigType("toml")
	vp.AddConfigPath(*configPath)

	vp.AutomaticEnv()

	bindEnvs(vp)
	SetDefaults(vp)

	if err := vp.ReadInConfig(); err != nil {
		if _, ok := err.(v.ConfigFileNotFoundError); ok {
			return nil, errors.New("config.toml file is missing")
		}

		return nil, fmt.Errorf("failed to read config file, %w", err)
	}

	cfg, err := Load(vp)
	if err != nil {
		return nil, err
	}

	if cfg.Security.JWTSecret == "" {
		fmt.Println("WARNING: You haven't set a JWT secret, so it has been generated for you. Please set it as an environment variable or in the config.toml file.\nYour random JWT secret:\n\n" + genSecret() + "\n\nPaste it into your config.toml file.")
		os.Exit(0)
	}

	if !cfg.Turnstile.Enabled {
		fmt.Println("[WARNING]: Cloudflare's turnstile is disabled. Anonymous uploads won't be guarded against bots")
	}

	return cfg, nil
}

// Load decodes and validates the values held by vp.
func Load(vp *v.Viper) (*Config, error) {
	var cfg Config
	if err := vp.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config, %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	cfg.Upload.MaxSize <<= 20
	return &cfg, nil
}

func (c *Config) validate() error {
	if !slices.Contains(validLogLevels, c.App.LogLevel) {
		return errors.New("invalid log level provided")
	}

	if c.Host.Port <= 0 {
		return errors.New("invalid port provided")
	}

	if c.Upload.MaxSize <= 0 {
		return errors.New("upload.max_size must be bigger than 0")
	}

	if !slices.Contains(validDBTypes, c.Database.Type) {
		return errors.New("invalid database type provided")
	}

	if c.Database.Type == "postgres" && c.Database.DSN == "" {
		return errors.New("database.dsn can't be empty when using postgres")
	}

	if !slices.Contains(validStorageTypes, c.Storage.Type) {
		return errors.New("invalid storage type provided")
	}

	switch c.Storage.Type {
	case "local":
		if c.Storage.MediaPath == "" {
			return errors.New("storage.media_path can't be empty")
		}
	case "s3", "r2":
		if c.Storage.Type == "r2" && c.Storage.AccountID == "" {
			return errors.New("account id can't be empty")
		}
		if c.Storage.Type == "s3" && c.Storage.Region == "" {
			return errors.New("region can't be empty")
		}
		if c.Storage.AccessKeyID == "" {
			return errors.New("account access id can't be empty")
		}
		if c.Storage.SecretAccessKey == "" {
			return errors.New("secret access key can't be empty")
		}
		if c.Storage.Bucket == "" {
			return errors.New("bucket can't be empty")
		}
	}

	if c.Cache.Path == "" {
		return errors.New("cache.path can't be empty")
	}

	if c.Cache.Expiration <= 0 {
		return errors.New("cache.expiration must be bigger than 0")
	}

	if !slices.Contains(validCacheStores, c.Cache.Store) {
		return errors.New("invalid cache store provided")
	}

	if c.Cache.Store == "redis" && c.Cache.RedisAddr == "" {
		return errors.New("cache.redis_addr can't be empty when using redis")
	}

	if c.Security.AnonTTLHours < 0 {
		return errors.New("security.anon_ttl_hours can't be negative")
	}

	if c.Turnstile.Enabled && c.Turnstile.SecretToken == "" {
		return errors.New("turnstile secret token is missing")
	}

	if c.Convert.Workers <= 0 {
		return errors.New("convert.workers must be bigger than 0")
	}

	if c.Convert.MaxJobs < 0 {
		return errors.New("convert.max_jobs can't be negative")
	}

	return nil
}
