package main

import (
	"context"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"chapter-hub/internal/adapters/httpapi"
	"chapter-hub/internal/adapters/push"
	"chapter-hub/internal/adapters/storage"
	"chapter-hub/internal/infra/config"
	httpinfra "chapter-hub/internal/infra/http"
	applog "chapter-hub/internal/infra/log"
	"chapter-hub/internal/infra/metrics"
	"chapter-hub/internal/usecase/channels"
	"chapter-hub/internal/usecase/feed"
	"chapter-hub/internal/usecase/items"
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
		log.Fatal().Err(err).Msg("api: нет подключения к хранилищу")
	}
	defer backend.Close()

	directory := users.NewDirectory(backend.Users, applog.Component(logger, "users"))
	if err := directory.Initialize(ctx); err != nil {
		log.Warn().Err(err).Msg("api: не удалось прогреть кэш пользователей")
	}

	feedService := feed.NewService(backend.Items, nil, nil, applog.Component(logger, "feed"))
	scheduler := notify.NewScheduler(backend.Notifications, backend.Analytics, cfg.Notify.ReminderLead, applog.Component(logger, "scheduler"))
	itemsService := items.NewService(backend.Items, feedService, scheduler, backend.Analytics, applog.Component(logger, "items"))
	handler := httpapi.NewHandler(feedService, itemsService, directory, channels.NewService(0), cfg.Feed.PageSize, applog.Component(logger, "api"))

	// Хранилище в памяти не разделяется между процессами, поэтому рассылка запускается здесь же.
	if backend.InProcess {
		sender, provider, closeSender, err := push.New(cfg, applog.Component(logger, "push"))
		if err != nil {
			log.Fatal().Err(err).Msg("api: не удалось создать отправителя push")
		}
		defer closeSender()
		dispatcher := notify.NewDispatcher(backend.Notifications, backend.Items, directory, sender, nil, backend.Analytics, notify.DispatcherConfig{
			Interval:    cfg.Notify.Interval,
			Batch:       cfg.Notify.Batch,
			CallTimeout: cfg.Notify.RemoteTimeout,
			ClaimTTL:    cfg.Notify.ClaimTTL,
			Provider:    provider,
		}, applog.Component(logger, "dispatcher"))
		go dispatcher.Run(ctx)
	}

	server := httpinfra.NewServer(applog.Component(logger, "http"))
	handler.Mount(server.Router)

	metrics.StartServer(ctx, applog.Component(logger, "metrics"), cfg.MetricsAddr)
	go func() {
		if err := server.Start(":" + strconv.Itoa(cfg.Port)); err != nil {
			log.Error().Err(err).Msg("api: сервер остановлен")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("api: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}
