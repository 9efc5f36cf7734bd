package bot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"chapter-hub/internal/domain"
)

type stubBot struct {
	sent []tgbotapi.MessageConfig
}

func (s *stubBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	s.sent = append(s.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

func (s *stubBot) last() string {
	if len(s.sent) == 0 {
		return ""
	}
	return s.sent[len(s.sent)-1].Text
}

type stubProfiles struct {
	users map[string]domain.User
}

func (s *stubProfiles) GetUser(_ context.Context, id string) (domain.User, bool, error) {
	u, ok := s.users[id]
	return u, ok, nil
}

func (s *stubProfiles) UpdateUser(_ context.Context, id string, patch domain.UserPatch) error {
	u, ok := s.users[id]
	if !ok {
		return domain.ErrNotFound
	}
	patch.Apply(&u)
	s.users[id] = u
	return nil
}

type stubCalendar struct {
	events []domain.Event
	tasks  []domain.Task
	from   time.Time
}

func (s *stubCalendar) GetEvents(_ context.Context, start, _ time.Time, _ bool) ([]domain.Event, error) {
	s.from = start
	return s.events, nil
}

func (s *stubCalendar) GetTasks(context.Context, string, domain.TaskStatus) ([]domain.Task, error) {
	return s.tasks, nil
}

func message(chatID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID}, Text: text}}
}

func TestLinkAndUnlink(t *testing.T) {
	bot := &stubBot{}
	profiles := &stubProfiles{users: map[string]domain.User{"u1": {ID: "u1"}}}
	h := NewHandler(bot, zerolog.Nop(), profiles, &stubCalendar{})

	h.HandleUpdate(context.Background(), message(777, "/link u1"))
	if profiles.users["u1"].PushToken != "tg:777" {
		t.Fatalf("ожидали токен tg:777, получили %q", profiles.users["u1"].PushToken)
	}

	h.HandleUpdate(context.Background(), message(888, "/unlink u1"))
	if profiles.users["u1"].PushToken != "tg:777" {
		t.Fatalf("чужой чат не может отвязать профиль")
	}
	h.HandleUpdate(context.Background(), message(777, "/unlink u1"))
	if profiles.users["u1"].PushToken != "" {
		t.Fatalf("ожидали пустой токен после отвязки")
	}

	h.HandleUpdate(context.Background(), message(777, "/link ghost"))
	if !strings.Contains(bot.last(), "not found") {
		t.Fatalf("ожидали сообщение об отсутствии участника, получили %q", bot.last())
	}
	h.HandleUpdate(context.Background(), message(777, "/link"))
	if !strings.HasPrefix(bot.last(), "Usage") {
		t.Fatalf("ожидали подсказку, получили %q", bot.last())
	}
}

func TestEventsCommand(t *testing.T) {
	bot := &stubBot{}
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	cal := &stubCalendar{events: []domain.Event{
		{ItemBase: domain.ItemBase{Title: "Formal <black tie>", Channel: domain.ChannelSocial}, EventDetails: domain.EventDetails{StartDate: now.Add(24 * time.Hour), Location: "Hall"}},
	}}
	h := NewHandler(bot, zerolog.Nop(), &stubProfiles{}, cal)
	h.now = func() time.Time { return now }

	h.HandleUpdate(context.Background(), message(1, "/events"))
	if !cal.from.Equal(now) {
		t.Fatalf("окно должно начинаться с текущего момента")
	}
	got := bot.last()
	if !strings.Contains(got, "Formal &lt;black tie&gt;") || !strings.Contains(got, "Social") || !strings.Contains(got, "@ Hall") {
		t.Fatalf("неожиданный текст: %q", got)
	}
	if bot.sent[0].ParseMode != tgbotapi.ModeHTML {
		t.Fatalf("ожидали HTML-разметку")
	}
}

func TestFormatTasks(t *testing.T) {
	deadline := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	got := FormatTasks([]domain.Task{
		{ItemBase: domain.ItemBase{Title: "Dues"}, TaskDetails: domain.TaskDetails{Deadline: &deadline, Status: domain.TaskInProgress}},
		{ItemBase: domain.ItemBase{Title: "Done"}, TaskDetails: domain.TaskDetails{Status: domain.TaskCompleted}},
	})
	if got != "☑️ <b>Dues</b> until 2025-04-01 (in progress)" {
		t.Fatalf("неожиданный текст: %q", got)
	}
	if FormatTasks(nil) != "No open tasks." {
		t.Fatalf("ожидали заглушку для пустого списка")
	}
	if FormatEvents(nil) != "No events in the next 7 days." {
		t.Fatalf("ожидали заглушку для пустого списка событий")
	}
}

func TestUnknownCommand(t *testing.T) {
	bot := &stubBot{}
	h := NewHandler(bot, zerolog.Nop(), &stubProfiles{}, &stubCalendar{})
	h.HandleUpdate(context.Background(), message(1, "hello"))
	if !strings.Contains(bot.last(), "/help") {
		t.Fatalf("ожидали подсказку, получили %q", bot.last())
	}
}

func TestWebhook(t *testing.T) {
	bot := &stubBot{}
	h := NewHandler(bot, zerolog.Nop(), &stubProfiles{}, &stubCalendar{})

	body := `{"update_id":1,"message":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"},"text":"/help"}}`
	rec := httptest.NewRecorder()
	h.Webhook(rec, httptest.NewRequest(http.MethodPost, "/bot/webhook", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("ожидали 200, получили %d", rec.Code)
	}
	if len(bot.sent) != 1 || bot.sent[0].ChatID != 42 {
		t.Fatalf("ожидали ответ в чат 42: %+v", bot.sent)
	}

	rec = httptest.NewRecorder()
	h.Webhook(rec, httptest.NewRequest(http.MethodPost, "/bot/webhook", strings.NewReader("{")))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("ожидали 400, получили %d", rec.Code)
	}
}
