package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Database  DatabaseConfig  `yaml:"database" mapstructure:"database"`
	Minio     MinioConfig     `yaml:"minio" mapstructure:"minio"`
	AI        AIConfig        `yaml:"ai" mapstructure:"ai"`
	Ingest    IngestConfig    `yaml:"ingest" mapstructure:"ingest"`
	Auth      AuthConfig      `yaml:"auth" mapstructure:"auth"`
	RateLimit RateLimitConfig `yaml:"rateLimit" mapstructure:"ratelimit"`
	CORS      CORSConfig      `yaml:"cors" mapstructure:"cors"`
}

type ServerConfig struct {
	Port               int `yaml:"port" mapstructure:"port"`
	ReadTimeoutSecs    int `yaml:"readTimeoutSecs" mapstructure:"readtimeoutsecs"`
	WriteTimeoutSecs   int `yaml:"writeTimeoutSecs" mapstructure:"writetimeoutsecs"`
	IdleTimeoutSecs    int `yaml:"idleTimeoutSecs" mapstructure:"idletimeoutsecs"`
	RequestTimeoutSecs int `yaml:"requestTimeoutSecs" mapstructure:"requesttimeoutsecs"`
	ShutdownGraceSecs  int `yaml:"shutdownGraceSecs" mapstructure:"shutdowngracesecs"`
}

type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// StoreConfig picks the SQL backend. DSN wins over the database section.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DSN         string `yaml:"dsn" mapstructure:"dsn"`
	AutoMigrate bool   `yaml:"autoMigrate" mapstructure:"automigrate"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Name     string `yaml:"name" mapstructure:"name"`
	SSLMode  string `yaml:"sslMode" mapstructure:"sslmode"`
}

type MinioConfig struct {
	Endpoint      string `yaml:"endpoint" mapstructure:"endpoint"`
	AccessKey     string `yaml:"accessKey" mapstructure:"accesskey"`
	SecretKey     string `yaml:"secretKey" mapstructure:"secretkey"`
	BucketName    string `yaml:"bucketName" mapstructure:"bucketname"`
	Region        string `yaml:"region" mapstructure:"region"`
	UseSSL        bool   `yaml:"useSSL" mapstructure:"usessl"`
	PublicBaseURL string `yaml:"publicBaseURL" mapstructure:"publicbaseurl"`
}

type AIConfig struct {
	Provider    string `yaml:"provider" mapstructure:"provider"`
	APIKey      string `yaml:"apiKey" mapstructure:"apikey"`
	BaseURL     string `yaml:"baseURL" mapstructure:"baseurl"`
	Model       string `yaml:"model" mapstructure:"model"`
	MaxTokens   int    `yaml:"maxTokens" mapstructure:"maxtokens"`
	TimeoutSecs int    `yaml:"timeoutSecs" mapstructure:"timeoutsecs"`
	MaxAttempts int    `yaml:"maxAttempts" mapstructure:"maxattempts"`
}

type IngestConfig struct {
	MaxBytes       int64 `yaml:"maxBytes" mapstructure:"maxbytes"`
	FetchAttempts  int   `yaml:"fetchAttempts" mapstructure:"fetchattempts"`
	FetchBackoffMS int   `yaml:"fetchBackoffMS" mapstructure:"fetchbackoffms"`
	Concurrency    int   `yaml:"concurrency" mapstructure:"concurrency"`
}

// AuthConfig holds bearer token verification. Static tokens are a list and
// not a map because viper lower-cases map keys. IdentityURL enables
// verification against a hosted auth server.
type AuthConfig struct {
	Tokens         []StaticToken `yaml:"tokens" mapstructure:"tokens"`
	IdentityURL    string        `yaml:"identityURL" mapstructure:"identityurl"`
	IdentityAPIKey string        `yaml:"identityAPIKey" mapstructure:"identityapikey"`
}

type StaticToken struct {
	Token  string `yaml:"token" mapstructure:"token"`
	UserID string `yaml:"userId" mapstructure:"userid"`
}

// TokenMap indexes static tokens by value.
func (a AuthConfig) TokenMap() map[string]string {
	m := make(map[string]string, len(a.Tokens))
	for _, t := range a.Tokens {
		if t.Token != "" && t.UserID != "" {
			m[t.Token] = t.UserID
		}
	}
	return m
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps" mapstructure:"rps"`
	Burst int     `yaml:"burst" mapstructure:"burst"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowedOrigins" mapstructure:"allowedorigins"`
}

// Load reads configuration from file and environment. An empty path looks
// for config.yaml in the working directory and tolerates its absence.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("UXNAREAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readtimeoutsecs", 15)
	v.SetDefault("server.writetimeoutsecs", 75)
	v.SetDefault("server.idletimeoutsecs", 60)
	v.SetDefault("server.requesttimeoutsecs", 60)
	v.SetDefault("server.shutdowngracesecs", 30)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.automigrate", true)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "uxnareal")
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.accesskey", "")
	v.SetDefault("minio.secretkey", "")
	v.SetDefault("minio.bucketname", "screenshots")
	v.SetDefault("minio.region", "us-east-1")
	v.SetDefault("minio.usessl", false)
	v.SetDefault("minio.publicbaseurl", "")

	v.SetDefault("ai.provider", "openai")
	v.SetDefault("ai.apikey", "")
	v.SetDefault("ai.baseurl", "")
	v.SetDefault("ai.model", "gpt-4o-mini")
	v.SetDefault("ai.maxtokens", 4000)
	v.SetDefault("ai.timeoutsecs", 60)
	v.SetDefault("ai.maxattempts", 3)

	v.SetDefault("ingest.maxbytes", 5<<20)
	v.SetDefault("ingest.fetchattempts", 3)
	v.SetDefault("ingest.fetchbackoffms", 1000)
	v.SetDefault("ingest.concurrency", 4)

	v.SetDefault("auth.tokens", []map[string]string{})
	v.SetDefault("auth.identityurl", "")
	v.SetDefault("auth.identityapikey", "")

	v.SetDefault("ratelimit.rps", 2.0)
	v.SetDefault("ratelimit.burst", 10)

	v.SetDefault("cors.allowedorigins", []string{"*"})
}

// Validate rejects values the server cannot start with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite", "postgres", "mysql":
	default:
		return eris.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	switch c.AI.Provider {
	case "openai", "anthropic", "mock":
	default:
		return eris.Errorf("config: unknown ai provider %q", c.AI.Provider)
	}
	if c.AI.MaxTokens < 1000 || c.AI.MaxTokens > 4000 {
		return eris.Errorf("config: ai.maxTokens must be within [1000,4000], got %d", c.AI.MaxTokens)
	}
	if c.Ingest.MaxBytes <= 0 {
		return eris.New("config: ingest.maxBytes must be positive")
	}
	if c.Ingest.Concurrency <= 0 {
		return eris.New("config: ingest.concurrency must be positive")
	}
	return nil
}

// DSN returns store.dsn or builds one for the driver from the database section.
func (c *Config) DSN() string {
	if c.Store.DSN != "" {
		return c.Store.DSN
	}
	switch c.Store.Driver {
	case "mysql":
		return c.MySQLDSN()
	case "postgres":
		return c.PostgresDSN()
	default:
		return "file:uxnareal.db"
	}
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// PostgresDSN builds a lib/pq URL.
func (c *Config) PostgresDSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Database.User, c.Database.Password),
		Host:     fmt.Sprintf("%s:%d", c.Database.Host, c.Database.Port),
		Path:     "/" + c.Database.Name,
		RawQuery: "sslmode=" + c.Database.SSLMode,
	}
	return u.String()
}

func (c *Config) AITimeout() time.Duration {
	return time.Duration(c.AI.TimeoutSecs) * time.Second
}

func (c *Config) FetchBackoff() time.Duration {
	return time.Duration(c.Ingest.FetchBackoffMS) * time.Millisecond
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSecs) * time.Second
}

const redacted = "[redacted]"

// Redacted returns a copy with credentials masked.
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return redacted
	}
	c.Database.Password = mask(c.Database.Password)
	c.Minio.SecretKey = mask(c.Minio.SecretKey)
	c.AI.APIKey = mask(c.AI.APIKey)
	c.Auth.IdentityAPIKey = mask(c.Auth.IdentityAPIKey)
	if c.Store.DSN != "" {
		c.Store.DSN = redacted
	}
	tokens := make([]StaticToken, len(c.Auth.Tokens))
	for i, t := range c.Auth.Tokens {
		tokens[i] = StaticToken{Token: mask(t.Token), UserID: t.UserID}
	}
	c.Auth.Tokens = tokens
	return c
}

// YAML renders the configuration with secrets masked.
func (c *Config) YAML() ([]byte, error) {
	out, err := yaml.Marshal(c.Redacted())
	if err != nil {
		return nil, eris.Wrap(err, "config: marshal yaml")
	}
	return out, nil
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
