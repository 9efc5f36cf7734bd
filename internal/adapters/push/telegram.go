package push

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"chapter-hub/internal/domain"
	"chapter-hub/internal/infra/metrics"
)

type botSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram доставляет напоминания сообщением бота. Токеном получателя служит chat id,
// допускается префикс "tg:".
type Telegram struct {
	bot botSender
}

var _ domain.PushSender = (*Telegram)(nil)

// NewTelegram создаёт отправителя поверх клиента бота.
func NewTelegram(bot botSender) *Telegram {
	return &Telegram{bot: bot}
}

// NewTelegramFromToken подключается к Bot API.
func NewTelegramFromToken(token string) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return NewTelegram(bot), nil
}

// Send реализует domain.PushSender.
func (t *Telegram) Send(ctx context.Context, msg domain.PushMessage) error {
	chatID, err := parseChatID(msg.Token)
	if err != nil {
		return err
	}
	text := msg.Body
	if msg.Title != "" {
		text = msg.Title + "\n\n" + msg.Body
	}
	for _, part := range SplitMessage(text, telegramMessageLimit) {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrPushDeliveryFailed, err)
		}
		start := time.Now()
		_, err := t.bot.Send(tgbotapi.NewMessage(chatID, part))
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(chatID, 10), start, err)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrPushDeliveryFailed, err)
		}
	}
	return nil
}

func parseChatID(token string) (int64, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(token), "tg:")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: invalid chat id %q", domain.ErrPushDeliveryFailed, token)
	}
	return id, nil
}
