package bot

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"chapter-hub/internal/adapters/push"
	"chapter-hub/internal/domain"
	"chapter-hub/internal/infra/metrics"
)

// TokenPrefix помечает push-токен, который является chat id Telegram.
const TokenPrefix = "tg:"

const upcomingWindow = 7 * 24 * time.Hour

type botSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type profiles interface {
	GetUser(ctx context.Context, id string) (domain.User, bool, error)
	UpdateUser(ctx context.Context, id string, patch domain.UserPatch) error
}

type calendar interface {
	GetEvents(ctx context.Context, start, end time.Time, forceRefresh bool) ([]domain.Event, error)
	GetTasks(ctx context.Context, userID string, status domain.TaskStatus) ([]domain.Task, error)
}

// Handler обслуживает вебхук бота: привязку чата к профилю и просмотр ближайших событий и задач.
type Handler struct {
	bot      botSender
	log      zerolog.Logger
	users    profiles
	calendar calendar
	now      func() time.Time
}

// NewHandler создаёт обработчик.
func NewHandler(bot botSender, log zerolog.Logger, users profiles, cal calendar) *Handler {
	return &Handler{bot: bot, log: log, users: users, calendar: cal, now: time.Now}
}

// Webhook принимает апдейт от Telegram.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	var update tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.HandleUpdate(r.Context(), update)
	w.WriteHeader(http.StatusOK)
}

// HandleUpdate обрабатывает входящий апдейт.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message != nil {
		h.handleMessage(ctx, upd.Message)
	}
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	text := strings.TrimSpace(msg.Text)
	chatID := msg.Chat.ID
	switch {
	case strings.HasPrefix(text, "/start"), strings.HasPrefix(text, "/help"):
		h.reply(chatID, helpText)
	case strings.HasPrefix(text, "/link"):
		h.handleLink(ctx, chatID, strings.TrimSpace(strings.TrimPrefix(text, "/link")))
	case strings.HasPrefix(text, "/unlink"):
		h.handleUnlink(ctx, chatID, strings.TrimSpace(strings.TrimPrefix(text, "/unlink")))
	case strings.HasPrefix(text, "/events"):
		h.handleEvents(ctx, chatID)
	case strings.HasPrefix(text, "/tasks"):
		h.handleTasks(ctx, chatID, strings.TrimSpace(strings.TrimPrefix(text, "/tasks")))
	default:
		h.reply(chatID, "Unknown command. Use /help")
	}
}

const helpText = "Commands:\n" +
	"/link <member id> - receive event reminders in this chat\n" +
	"/unlink <member id> - stop reminders in this chat\n" +
	"/events - events in the next 7 days\n" +
	"/tasks <member id> - open tasks"

func (h *Handler) handleLink(ctx context.Context, chatID int64, userID string) {
	if userID == "" {
		h.reply(chatID, "Usage: /link <member id>")
		return
	}
	token := TokenPrefix + strconv.FormatInt(chatID, 10)
	if err := h.users.UpdateUser(ctx, userID, domain.UserPatch{PushToken: &token}); err != nil {
		h.replyError(chatID, userID, err)
		return
	}
	h.log.Info().Str("user", userID).Int64("chat", chatID).Msg("bot: чат привязан к профилю")
	h.reply(chatID, "Reminders for "+userID+" will arrive here.")
}

func (h *Handler) handleUnlink(ctx context.Context, chatID int64, userID string) {
	if userID == "" {
		h.reply(chatID, "Usage: /unlink <member id>")
		return
	}
	u, ok, err := h.users.GetUser(ctx, userID)
	if err != nil {
		h.replyError(chatID, userID, err)
		return
	}
	if !ok {
		h.replyError(chatID, userID, domain.ErrNotFound)
		return
	}
	if u.PushToken != TokenPrefix+strconv.FormatInt(chatID, 10) {
		h.reply(chatID, "This chat is not linked to "+userID+".")
		return
	}
	empty := ""
	if err := h.users.UpdateUser(ctx, userID, domain.UserPatch{PushToken: &empty}); err != nil {
		h.replyError(chatID, userID, err)
		return
	}
	h.reply(chatID, "Reminders for "+userID+" are off.")
}

func (h *Handler) handleEvents(ctx context.Context, chatID int64) {
	now := h.now().UTC()
	events, err := h.calendar.GetEvents(ctx, now, now.Add(upcomingWindow), false)
	if err != nil {
		h.log.Error().Err(err).Msg("bot: не удалось получить события")
		h.reply(chatID, "Events are unavailable right now, try later.")
		return
	}
	h.replyHTML(chatID, FormatEvents(events))
}

func (h *Handler) handleTasks(ctx context.Context, chatID int64, userID string) {
	if userID == "" {
		h.reply(chatID, "Usage: /tasks <member id>")
		return
	}
	tasks, err := h.calendar.GetTasks(ctx, userID, "")
	if err != nil {
		h.log.Error().Err(err).Str("user", userID).Msg("bot: не удалось получить задачи")
		h.reply(chatID, "Tasks are unavailable right now, try later.")
		return
	}
	h.replyHTML(chatID, FormatTasks(tasks))
}

func (h *Handler) replyError(chatID int64, userID string, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		h.reply(chatID, "Member "+userID+" not found.")
		return
	}
	h.log.Error().Err(err).Str("user", userID).Msg("bot: ошибка обновления профиля")
	h.reply(chatID, "Something went wrong, try later.")
}

func (h *Handler) reply(chatID int64, text string) {
	h.send(chatID, text, "")
}

func (h *Handler) replyHTML(chatID int64, text string) {
	h.send(chatID, text, tgbotapi.ModeHTML)
}

func (h *Handler) send(chatID int64, text, mode string) {
	for _, part := range push.SplitMessage(text, 4096) {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = mode
		start := time.Now()
		_, err := h.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(chatID, 10), start, err)
		if err != nil {
			h.log.Error().Err(err).Msg("bot: не удалось отправить сообщение")
			return
		}
	}
}
