package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Cache     CacheConfig     `mapstructure:"cache"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Invite    InviteConfig    `mapstructure:"invite"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Settings  SettingsConfig  `mapstructure:"settings"`
	Cleanup   CleanupConfig   `mapstructure:"cleanup"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	SMTP      SMTPConfig      `mapstructure:"smtp"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Host                    string        `mapstructure:"host"`
	Port                    int           `mapstructure:"port"`
	Mode                    string        `mapstructure:"mode"`
	ReadTimeout             time.Duration `mapstructure:"read_timeout"`
	WriteTimeout            time.Duration `mapstructure:"write_timeout"`
	GracefulShutdownTimeout time.Duration `mapstructure:"graceful_shutdown_timeout"`
	// ClientIPHeader is consulted before X-Forwarded-For when resolving the caller address.
	ClientIPHeader string `mapstructure:"client_ip_header"`
}

type DatabaseConfig struct {
	Driver   string         `mapstructure:"driver"` // "postgres" | "mysql" | "memory"
	Postgres PostgresConfig `mapstructure:"postgres"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	DB              string        `mapstructure:"db"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LockTimeout     time.Duration `mapstructure:"lock_timeout"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

type MySQLConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	DB              string        `mapstructure:"db"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// CacheConfig selects where the code list cache and the deferred task queue live.
type CacheConfig struct {
	Backend string `mapstructure:"backend"` // "redis" | "memory"
	Prefix  string `mapstructure:"prefix"`
}

type JWTConfig struct {
	SigningKey string        `mapstructure:"signing_key"`
	Issuer     string        `mapstructure:"issuer"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
}

type AdminConfig struct {
	UserIDs []string `mapstructure:"user_ids"`
}

type InviteConfig struct {
	// CodePepper keys the code hash. Changing it orphans every stored code.
	CodePepper      string        `mapstructure:"code_pepper"`
	DefaultRole     string        `mapstructure:"default_role"`
	RequireCode     bool          `mapstructure:"require_code"`
	DefaultPrefix   string        `mapstructure:"default_prefix"`
	BulkMax         int           `mapstructure:"bulk_max"`
	BulkRetryBudget int           `mapstructure:"bulk_retry_budget"`
	ListCacheTTL    time.Duration `mapstructure:"list_cache_ttl"`
}

type RateLimitConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	MaxAttempts int  `mapstructure:"max_attempts"`
	// WindowMinutes is the trailing window over which failed attempts are counted.
	WindowMinutes      int  `mapstructure:"window_minutes"`
	LimitUnknownOrigin bool `mapstructure:"limit_unknown_origin"`
}

type SettingsConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type CleanupConfig struct {
	Delay        time.Duration `mapstructure:"delay"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
}

type NotifyConfig struct {
	Exhausted bool          `mapstructure:"exhausted"`
	Email     string        `mapstructure:"email"`
	SiteName  string        `mapstructure:"site_name"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type SMTPConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	Username      string `mapstructure:"username"`
	Password      string `mapstructure:"password"`
	FromEmail     string `mapstructure:"from_email"`
	FromName      string `mapstructure:"from_name"`
	UseSTARTTLS   bool   `mapstructure:"use_starttls"`
	SkipTLSVerify bool   `mapstructure:"skip_tls_verify"`
}

type TelegramConfig struct {
	BotToken string  `mapstructure:"bot_token"`
	ChatIDs  []int64 `mapstructure:"chat_ids"`
}

type CORSConfig struct {
	AllowedOrigins   []string      `mapstructure:"allowed_origins"`
	AllowedMethods   []string      `mapstructure:"allowed_methods"`
	AllowedHeaders   []string      `mapstructure:"allowed_headers"`
	AllowCredentials bool          `mapstructure:"allow_credentials"`
	MaxAge           time.Duration `mapstructure:"max_age"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.graceful_shutdown_timeout", 15*time.Second)
	v.SetDefault("server.client_ip_header", "X-Client-IP")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.sslmode", "disable")
	v.SetDefault("database.postgres.lock_timeout", 5*time.Second)
	v.SetDefault("database.mysql.port", 3306)
	v.SetDefault("database.redis.port", 6379)

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.prefix", "invitehub:")

	v.SetDefault("jwt.issuer", "invitehub")
	v.SetDefault("jwt.token_ttl", 24*time.Hour)

	v.SetDefault("invite.default_role", "subscriber")
	v.SetDefault("invite.require_code", true)
	v.SetDefault("invite.default_prefix", "INV")
	v.SetDefault("invite.bulk_max", 1000)
	v.SetDefault("invite.bulk_retry_budget", 32)
	v.SetDefault("invite.list_cache_ttl", 5*time.Minute)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.max_attempts", 3)
	v.SetDefault("rate_limit.window_minutes", 60)

	v.SetDefault("settings.cache_ttl", 30*time.Second)

	v.SetDefault("cleanup.delay", 24*time.Hour)
	v.SetDefault("cleanup.poll_interval", time.Minute)
	v.SetDefault("cleanup.batch_size", 100)

	v.SetDefault("notify.exhausted", true)
	v.SetDefault("notify.site_name", "invitehub")
	v.SetDefault("notify.timeout", 30*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load reads config.yaml, overlays environment variables, and returns Config.
// A missing file is tolerated when path is empty so env-only deployments work.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Environment variable override: DATABASE_POSTGRES_HOST -> database.postgres.host
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Invite.BulkMax <= 0 || c.Invite.BulkMax > 1000 {
		return fmt.Errorf("invite.bulk_max must be within 1..1000")
	}
	if c.RateLimit.MaxAttempts <= 0 {
		return fmt.Errorf("rate_limit.max_attempts must be positive")
	}
	if c.RateLimit.WindowMinutes <= 0 {
		return fmt.Errorf("rate_limit.window_minutes must be positive")
	}
	if len(c.Invite.CodePepper) > 64 {
		return fmt.Errorf("invite.code_pepper must be at most 64 bytes")
	}
	return nil
}
