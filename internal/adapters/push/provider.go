package push

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"chapter-hub/internal/domain"
	"chapter-hub/internal/infra/config"
	"chapter-hub/internal/infra/queue"
)

const (
	ProviderExpo     = "expo"
	ProviderTelegram = "telegram"
	ProviderRabbitMQ = "rabbitmq"
	ProviderLog      = "log"
)

// New выбирает отправителя по PUSH_PROVIDER. Возвращаемая функция освобождает
// соединения отправителя.
func New(cfg config.AppConfig, logger zerolog.Logger) (domain.PushSender, string, func(), error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Push.Provider))
	noop := func() {}
	switch provider {
	case ProviderExpo:
		return NewExpo(cfg.Push.ExpoURL, WithAccessToken(cfg.Push.ExpoToken)), provider, noop, nil
	case ProviderTelegram:
		sender, err := NewTelegramFromToken(cfg.Push.TelegramKey)
		if err != nil {
			return nil, provider, noop, err
		}
		return sender, provider, noop, nil
	case ProviderRabbitMQ:
		q, err := queue.NewRabbitPushQueue(cfg.Push.RabbitURL, cfg.Push.Queue)
		if err != nil {
			return nil, provider, noop, err
		}
		return q, provider, func() { _ = q.Close() }, nil
	case ProviderLog, "":
		return NewLog(logger), ProviderLog, noop, nil
	}
	return nil, provider, noop, fmt.Errorf("неизвестный PUSH_PROVIDER %q", cfg.Push.Provider)
}
