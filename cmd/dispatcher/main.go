package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"chapter-hub/internal/adapters/push"
	"chapter-hub/internal/adapters/storage"
	"chapter-hub/internal/domain"
	"chapter-hub/internal/infra/cache"
	"chapter-hub/internal/infra/config"
	applog "chapter-hub/internal/infra/log"
	"chapter-hub/internal/infra/metrics"
	"chapter-hub/internal/usecase/notify"
	"chapter-hub/internal/usecase/users"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)
	log.Logger = logger

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := storage.Open(ctx, cfg, applog.Component(logger, "storage"))
	if err != nil {
		log.Fatal().Err(err).Msg("dispatcher: нет подключения к хранилищу")
	}
	defer backend.Close()
	if backend.InProcess {
		log.Warn().Msg("dispatcher: хранилище в памяти пусто, рассылать нечего; задайте PG_DSN")
	}

	var claimer domain.NotificationClaimer
	if cfg.RedisAddr != "" {
		client, err := cache.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			log.Fatal().Err(err).Msg("dispatcher: нет подключения к Redis")
		}
		defer client.Close()
		claimer = cache.NewRedis(client)
	}

	sender, provider, closeSender, err := push.New(cfg, applog.Component(logger, "push"))
	if err != nil {
		log.Fatal().Err(err).Msg("dispatcher: не удалось создать отправителя push")
	}
	defer closeSender()

	directory := users.NewDirectory(backend.Users, applog.Component(logger, "users"))
	if err := directory.Initialize(ctx); err != nil {
		log.Warn().Err(err).Msg("dispatcher: не удалось прогреть кэш пользователей")
	}
	dispatcher := notify.NewDispatcher(backend.Notifications, backend.Items, directory, sender, claimer, backend.Analytics, notify.DispatcherConfig{
		Interval:    cfg.Notify.Interval,
		Batch:       cfg.Notify.Batch,
		CallTimeout: cfg.Notify.RemoteTimeout,
		ClaimTTL:    cfg.Notify.ClaimTTL,
		Provider:    provider,
	}, applog.Component(logger, "dispatcher"))

	metrics.StartServer(ctx, applog.Component(logger, "metrics"), cfg.MetricsAddr)
	go clearDirectory(ctx, directory, directoryTTL)
	dispatcher.Run(ctx)
}

// directoryTTL ограничивает время, в течение которого диспетчер видит устаревший push-токен,
// обновлённый через API другого процесса.
const directoryTTL = 10 * time.Minute

func clearDirectory(ctx context.Context, directory *users.Directory, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			directory.Clear()
			if err := directory.Initialize(ctx); err != nil {
				log.Warn().Err(err).Msg("dispatcher: не удалось перезагрузить кэш пользователей")
			}
		}
	}
}
