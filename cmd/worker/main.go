package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lamallamadel/outbound-gateway/internal/config"
	"github.com/lamallamadel/outbound-gateway/internal/dispatch"
	gateway "github.com/lamallamadel/outbound-gateway/internal/gateways"
	"github.com/lamallamadel/outbound-gateway/internal/model"
	"github.com/lamallamadel/outbound-gateway/internal/ratelimit"
	"github.com/lamallamadel/outbound-gateway/internal/repository"
	"github.com/lamallamadel/outbound-gateway/internal/services"
	"github.com/lamallamadel/outbound-gateway/pkg/logger"
	"github.com/lamallamadel/outbound-gateway/pkg/pg"
	"github.com/lamallamadel/outbound-gateway/pkg/prom"
	"github.com/lamallamadel/outbound-gateway/pkg/redis"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {

	err := config.Load(argContainsEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}

	readConf := pg.Config{
		User:     config.Get().PostgresReadUser,
		Host:     config.Get().PostgresReadHost,
		Port:     config.Get().PostgresReadPort,
		Password: config.Get().PostgresReadPassword,
		Database: config.Get().PostgresReadDatabase,
	}
	writeConf := pg.Config{
		User:     config.Get().PostgresWriteUser,
		Host:     config.Get().PostgresWriteHost,
		Port:     config.Get().PostgresWritePort,
		Password: config.Get().PostgresWritePassword,
		Database: config.Get().PostgresWriteDatabase,
	}

	pgDebug := false
	if config.Get().AppEnv == "dev" {
		pgDebug = true
	}
	db, err := pg.CreateReadWrite(readConf, writeConf, pgDebug)
	if err != nil {
		logger.Error("failed connecting to pg", "error", err)
		return
	}

	redisAdap, err := redis.NewRedisAdapter("default", config.Get().RedisUniversalKeyPrefix, &redis.Options{
		Addrs:      []string{config.Get().RedisAddr},
		ClientName: "default",
		DB:         config.Get().RedisDatabase,
		Username:   config.Get().RedisUsername,
		Password:   config.Get().RedisPassword,
	})
	if err != nil {
		logger.Error("failed connecting to redis", "error", err)
		return
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Kill, os.Interrupt, syscall.SIGTERM)

	endpoints := map[model.Channel]string{}
	if url := config.Get().ProviderWhatsAppUrl; url != "" {
		endpoints[model.ChannelWhatsApp] = url
	}
	if url := config.Get().ProviderSmsUrl; url != "" {
		endpoints[model.ChannelSMS] = url
	}
	if url := config.Get().ProviderEmailUrl; url != "" {
		endpoints[model.ChannelEmail] = url
	}
	client, err := gateway.NewClient(&gateway.Config{
		Endpoints:               endpoints,
		Timeout:                 config.Get().ProviderTimeout,
		MaxConns:                config.Get().ProviderMaxConns,
		CircuitBreakerThreshold: int32(config.Get().CircuitBreakerThreshold),
		CircuitBreakerTimeout:   config.Get().CircuitBreakerTimeout,
	})
	if err != nil {
		logger.Error("failed to create provider client", "error", err)
		return
	}

	messageRepo := repository.NewMessageRepository(db)
	attemptRepo := repository.NewAttemptRepository(db)
	sessionRepo := repository.NewSessionWindowRepository(db)

	sessionService := services.NewSessionService(sessionRepo)
	quota := ratelimit.NewWhatsAppQuota(redisAdap, config.Get().WhatsAppQuotaLimit, config.Get().WhatsAppQuotaWindow)

	dispatcher := dispatch.NewDispatcher(messageRepo, attemptRepo, sessionService, quota, client, dispatch.BackoffPolicy{
		Base:   config.Get().BackoffBase,
		Factor: config.Get().BackoffFactor,
		Cap:    config.Get().BackoffCap,
		Jitter: config.Get().BackoffJitter,
	})

	w := dispatch.NewWorker(dispatch.WorkerConfig{
		PollInterval:   config.Get().DispatchPollInterval,
		BatchSize:      config.Get().DispatchBatchSize,
		Workers:        config.Get().DispatchWorkers,
		StaleThreshold: config.Get().DispatchStaleThreshold,
	}, messageRepo, dispatcher)

	var hostname string
	hostname, err = os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	err = prom.Create(hostname, config.Get().AppEnv, config.Get().PromNamespace)
	if err != nil {
		logger.Error("failed to create prometheus metrics", "error", err)
		return
	}

	go func() {
		prom.ListenAndServer(":9100", "/metrics")
	}()

	go func() {
		if err := w.Start(); err != nil {
			logger.Error("failed to start dispatch worker", "error", err)
		}
	}()

	logger.Info("dispatch worker running",
		"version", version,
		"poll_interval", config.Get().DispatchPollInterval,
		"started_at", time.Now().Format(time.RFC3339))

	select {
	case <-c:
		w.Stop()
	}
}

func argContainsEnvPath() string {
	for _, v := range os.Args {
		if strings.Contains(v, "--env=") {
			s := strings.Split(v, "=")
			if _, err := os.Open(s[1]); err != nil {
				logger.Error("failed to open the passed env file, got error" + err.Error())
				return ""
			}
			return s[1]
		}
	}
	return ""
}
