package config

import (
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/lamallamadel/outbound-gateway/pkg/logger"
	"github.com/pkg/errors"
)

const ConfigTagName = "env"
const ConfigDefaultTagName = "default"

var config *Config

// Configuration This struct holds config envs and values
// which are used across the gateway. Only this struct must be used
// to hold any configuration values, no direct access to
// env, ini or any other config source should be made
type Config struct {
	AppEnv              string `env:"APP_ENV" default:"dev"`
	AppName             string `env:"APP_NAME" default:"outbound_gateway"`
	AppDebug            bool   `env:"APP_DEBUG" default:"1"`
	AppDebugMetricsAddr string `env:"APP_DEBUG_METRIC_ADDR"`
	AppDebugMetricsURI  string `env:"APP_DEBUG_METRIC_URI"`
	AppBaseUrl          string `env:"APP_BASE_URL"`

	HttpListenAddr            string `env:"HTTP_LISTEN_ADDR" validation:"mustExists"`
	HttpBaseRequestUrl        string `env:"HTTP_BASE_REQUEST_URI" validation:"mustExists"`
	HttpServerReadTimeout     int    `env:"HTTP_SERVER_READ_TIMEOUT"`
	HttpServerWriteTimeout    int    `env:"HTTP_SERVER_WRITE_TIMEOUT"`
	HttpServerReadBufferSize  int    `env:"HTTP_SERVER_READ_BUFFER_SIZE"`
	HttpServerWriteBufferSize int    `env:"HTTP_SERVER_WRITE_BUFFER_SIZE"`

	AdminToken string `env:"ADMIN_TOKEN"`

	PostgresReadHost     string `env:"POSTGRES_READ_HOST"`
	PostgresReadPort     string `env:"POSTGRES_READ_PORT"`
	PostgresReadUser     string `env:"POSTGRES_READ_USER"`
	PostgresReadPassword string `env:"POSTGRES_READ_PASSWORD"`
	PostgresReadDatabase string `env:"POSTGRES_READ_DBNAME"`

	PostgresWriteHost     string `env:"POSTGRES_WRITE_HOST"`
	PostgresWritePort     string `env:"POSTGRES_WRITE_PORT"`
	PostgresWriteUser     string `env:"POSTGRES_WRITE_USER"`
	PostgresWritePassword string `env:"POSTGRES_WRITE_PASSWORD"`
	PostgresWriteDatabase string `env:"POSTGRES_WRITE_DBNAME"`

	RedisAddr               string `env:"REDIS_ADDR"`
	RedisUsername           string `env:"REDIS_USER"`
	RedisPassword           string `env:"REDIS_PASS"`
	RedisDatabase           int    `env:"REDIS_DATABASE"`
	RedisUniversalKeyPrefix string `env:"REDIS_UNIVERSAL_KEY_PREFIX"`

	PromNamespace string `env:"PROM_NAMESPACE"`

	ProfilerEnable bool `env:"PROFILER_ENABLE"`
	ProfilerPort   int  `env:"PROFILER_PORT"`

	LogLevel []string `env:"LOG_LEVEL"`

	DefaultMaxAttempts int `env:"MESSAGE_MAX_ATTEMPTS" default:"5"`

	DispatchPollInterval   time.Duration `env:"DISPATCH_POLL_INTERVAL" default:"1s"`
	DispatchBatchSize      int           `env:"DISPATCH_BATCH_SIZE" default:"50"`
	DispatchWorkers        int           `env:"DISPATCH_WORKERS" default:"10"`
	DispatchStaleThreshold time.Duration `env:"DISPATCH_STALE_THRESHOLD" default:"5m"`

	BackoffBase   time.Duration `env:"BACKOFF_BASE" default:"30s"`
	BackoffFactor float64       `env:"BACKOFF_FACTOR" default:"2"`
	BackoffCap    time.Duration `env:"BACKOFF_CAP" default:"1h"`
	BackoffJitter float64       `env:"BACKOFF_JITTER" default:"0.2"`

	WhatsAppQuotaLimit  int64         `env:"WHATSAPP_QUOTA_LIMIT" default:"1000"`
	WhatsAppQuotaWindow time.Duration `env:"WHATSAPP_QUOTA_WINDOW" default:"1h"`

	ProviderWhatsAppUrl string        `env:"PROVIDER_WHATSAPP_URL"`
	ProviderSmsUrl      string        `env:"PROVIDER_SMS_URL"`
	ProviderEmailUrl    string        `env:"PROVIDER_EMAIL_URL"`
	ProviderTimeout     time.Duration `env:"PROVIDER_TIMEOUT" default:"10s"`
	ProviderMaxConns    int           `env:"PROVIDER_MAX_CONNS" default:"512"`

	CircuitBreakerThreshold int           `env:"CIRCUIT_BREAKER_THRESHOLD" default:"5"`
	CircuitBreakerTimeout   time.Duration `env:"CIRCUIT_BREAKER_TIMEOUT" default:"30s"`
}

func Load(path string) error {
	logger.Info("loading configs..", "path", path)
	c := &Config{}
	var err error
	if path != "" {
		logger.Info("trying to publish env from file", "path", path)
		err = godotenv.Load(path)
		if err != nil {
			return errors.New("failed to load configuration file " + path + " error: " + err.Error())
		}
	}

	_, err = env.UnmarshalFromEnviron(c)

	if err != nil {
		return errors.New("failed to map env variables to Configuration object " + " error: " + err.Error())
	}

	config = c
	return nil
}

func Get() *Config {
	if config == nil {
		logger.Panic("Config is not initialized")
	}
	return config
}
