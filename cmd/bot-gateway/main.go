package main

import (
	"context"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"chapter-hub/internal/adapters/bot"
	"chapter-hub/internal/adapters/storage"
	"chapter-hub/internal/infra/config"
	httpinfra "chapter-hub/internal/infra/http"
	applog "chapter-hub/internal/infra/log"
	"chapter-hub/internal/infra/metrics"
	"chapter-hub/internal/usecase/feed"
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
		log.Fatal().Err(err).Msg("bot-gateway: нет подключения к хранилищу")
	}
	defer backend.Close()
	if backend.InProcess {
		log.Warn().Msg("bot-gateway: без PG_DSN привязки не увидят API и диспетчер")
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.Push.TelegramKey)
	if err != nil {
		log.Fatal().Err(err).Msg("bot-gateway: не удалось создать бота")
	}

	directory := users.NewDirectory(backend.Users, applog.Component(logger, "users"))
	feedService := feed.NewService(backend.Items, nil, nil, applog.Component(logger, "feed"))
	h := bot.NewHandler(botAPI, applog.Component(logger, "bot"), directory, feedService)

	server := httpinfra.NewServer(applog.Component(logger, "http"))
	server.Router.Post("/bot/webhook", h.Webhook)

	metrics.StartServer(ctx, applog.Component(logger, "metrics"), cfg.MetricsAddr)
	go func() {
		if err := server.Start(":" + strconv.Itoa(cfg.Port)); err != nil {
			log.Error().Err(err).Msg("bot-gateway: сервер остановлен")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("bot-gateway: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}
