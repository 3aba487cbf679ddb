package config

import (
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env       string          `yaml:"env" env-default:"local"`
	Logger    LoggerConfig    `yaml:"logger"`
	HTTP      HTTPConfig      `yaml:"http"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	Tokens    TokensConfig    `yaml:"tokens"`
	Publish   PublishConfig   `yaml:"publish"`
	Providers ProvidersConfig `yaml:"providers"`
}

type LoggerConfig struct {
	Level  string `yaml:"level" env-default:"info"`
	JSON   bool   `yaml:"json" env-default:"true"`
	Source bool   `yaml:"source" env-default:"false"`
}

type HTTPConfig struct {
	Port    int           `yaml:"port" env-default:"8001"`
	Timeout time.Duration `yaml:"timeout" env-default:"90s"`
	// BaseURL is the externally reachable address callbacks and staged
	// media URLs are built from.
	BaseURL string `yaml:"base_url" env:"BASE_CALLBACK_URL" env-default:"http://localhost:8001"`
}

type PostgresConfig struct {
	Host      string `yaml:"host" env-default:"localhost"`
	Port      string `yaml:"port" env-default:"5432"`
	Username  string `yaml:"username" env:"POSTGRES_USER"`
	Password  string `yaml:"password" env:"POSTGRES_PASSWORD"`
	Database  string `yaml:"database" env-default:"social_oauth"`
	ConnRetry int    `yaml:"conn_retry" env-default:"5"`
}

type RedisConfig struct {
	Host      string `yaml:"host" env-default:"localhost"`
	Port      string `yaml:"port" env-default:"6379"`
	Password  string `yaml:"password" env:"REDIS_PASSWORD"`
	Database  int    `yaml:"database" env-default:"0"`
	ConnRetry int    `yaml:"conn_retry" env-default:"5"`
}

type TokensConfig struct {
	// EncryptionKey is the process-wide fernet key; secrets never reach
	// storage unencrypted. Missing key is fatal at startup.
	EncryptionKey           string `yaml:"encryption_key" env:"ENCRYPTION_KEY" env-required:"true"`
	RefreshThresholdMinutes int    `yaml:"refresh_threshold_minutes" env-default:"10"`
}

type PublishConfig struct {
	MaxRetries     int `yaml:"max_retries" env-default:"3"`
	BackoffSeconds int `yaml:"backoff_seconds" env-default:"60"`
}

type ProvidersConfig struct {
	Twitter   TwitterConfig  `yaml:"twitter"`
	Facebook  PlatformConfig `yaml:"facebook"`
	Instagram PlatformConfig `yaml:"instagram"`
}

type PlatformConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURI  string `yaml:"redirect_uri"`
}

type TwitterConfig struct {
	PlatformConfig `yaml:",inline"`
	// ConsumerKey/ConsumerSecret sign the OAuth1 media upload calls; the
	// bearer credential above cannot.
	ConsumerKey    string `yaml:"consumer_key" env:"TWITTER_API_KEY"`
	ConsumerSecret string `yaml:"consumer_secret" env:"TWITTER_API_SECRET"`
}

func MustLoad() *Config {
	path := fetchConfigPath()
	if path == "" {
		panic("config path is required")
	}
	return MustLoadByPath(path)
}

func MustLoadByPath(configPath string) *Config {

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("config file does not exist: " + configPath)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		panic("failed to read config: " + err.Error())
	}

	return &cfg

}

// fetchConfigPath returns the path of the config file from the environment variable or comand line flag.
// Priority: command line flag > environment variable > default value
// Default value: empty string.
func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to the config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}
	return res
}

// LogValue exposes the non-secret part of the config for startup logging.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("env", c.Env),
		slog.Int("http_port", c.HTTP.Port),
		slog.String("base_url", c.HTTP.BaseURL),
		slog.String("postgres_host", c.Postgres.Host),
		slog.String("redis_host", c.Redis.Host),
		slog.Int("refresh_threshold_minutes", c.Tokens.RefreshThresholdMinutes),
		slog.Int("publish_max_retries", c.Publish.MaxRetries),
	)
}
