package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"chapter-hub/internal/domain"
)

type dispatchFixture struct {
	notifications *stubNotifications
	events        *stubEvents
	users         stubUsers
	sender        *stubSender
	analytics     *stubAnalytics
}

func newDispatchFixture(t *testing.T) *dispatchFixture {
	t.Helper()
	f := &dispatchFixture{
		notifications: &stubNotifications{},
		events: &stubEvents{events: map[string]domain.Event{
			"e1": {
				ItemBase:     domain.ItemBase{ID: "e1", Title: "Chapter Meeting"},
				EventDetails: domain.EventDetails{StartDate: baseNow.Add(2 * time.Hour), AssignedMembers: []string{"u1", "u2", "u3", "u1"}},
			},
		}},
		users: stubUsers{
			"u1": {ID: "u1", PushToken: "tok-1"},
			"u2": {ID: "u2", PushToken: "tok-2"},
			"u3": {ID: "u3"},
		},
		sender:    &stubSender{},
		analytics: &stubAnalytics{},
	}
	s := NewScheduler(f.notifications, nil, DefaultReminderLead, zerolog.Nop()).WithClock(fixedClock(baseNow))
	if _, ok, err := s.Schedule(context.Background(), f.events.events["e1"]); err != nil || !ok {
		t.Fatalf("подготовка: %v %v", ok, err)
	}
	return f
}

func (f *dispatchFixture) dispatcher(claimer domain.NotificationClaimer, now time.Time) *Dispatcher {
	return NewDispatcher(f.notifications, f.events, f.users, f.sender, claimer, f.analytics, DispatcherConfig{Provider: "test"}, zerolog.Nop()).
		WithClock(fixedClock(now))
}

func TestSweepSendsToMembersWithTokens(t *testing.T) {
	f := newDispatchFixture(t)
	d := f.dispatcher(nil, baseNow.Add(91*time.Minute))

	stats, err := d.Sweep(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if stats.Due != 1 || stats.Dispatched != 1 || stats.PushSent != 2 {
		t.Fatalf("неожиданная статистика: %+v", stats)
	}
	if len(f.sender.sent) != 2 {
		t.Fatalf("ожидали два push, получили %d", len(f.sender.sent))
	}
	for _, msg := range f.sender.sent {
		if msg.Title != "Chapter Meeting" || msg.Body != `Event "Chapter Meeting" starts in 30 minutes!` {
			t.Fatalf("неожиданное сообщение: %+v", msg)
		}
	}
	if !f.notifications.sent("n1") {
		t.Fatalf("запись должна быть отмечена отправленной")
	}
	if len(f.analytics.events) != 1 || f.analytics.events[0] != domain.BusinessMetricEventNotificationDispatched {
		t.Fatalf("ожидали бизнес-метрику, получили %v", f.analytics.events)
	}

	stats, err = d.Sweep(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if stats.Due != 0 || len(f.sender.sent) != 2 {
		t.Fatalf("отправленная запись не должна выбираться повторно: %+v", stats)
	}
}

func TestSweepBeforeScheduledTime(t *testing.T) {
	f := newDispatchFixture(t)
	stats, err := f.dispatcher(nil, baseNow.Add(89*time.Minute)).Sweep(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if stats.Due != 0 || len(f.sender.sent) != 0 || f.notifications.sent("n1") {
		t.Fatalf("рано для рассылки: %+v", stats)
	}
}

func TestSweepMarksSentDespitePushFailure(t *testing.T) {
	f := newDispatchFixture(t)
	f.sender.failFor = map[string]bool{"tok-1": true}

	stats, err := f.dispatcher(nil, baseNow.Add(2*time.Hour)).Sweep(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if stats.PushFailed != 1 || stats.PushSent != 1 {
		t.Fatalf("неожиданная статистика: %+v", stats)
	}
	if !f.notifications.sent("n1") {
		t.Fatalf("сбой доставки не должен оставлять запись неотправленной")
	}
}

func TestSweepDeletedEventMarksSent(t *testing.T) {
	f := newDispatchFixture(t)
	delete(f.events.events, "e1")

	stats, err := f.dispatcher(nil, baseNow.Add(2*time.Hour)).Sweep(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if stats.Dispatched != 1 || len(f.sender.sent) != 0 {
		t.Fatalf("неожиданная статистика: %+v", stats)
	}
	if !f.notifications.sent("n1") {
		t.Fatalf("запись удалённого события должна быть закрыта")
	}
}

func TestSweepStoreErrorLeavesRecordUnsent(t *testing.T) {
	f := newDispatchFixture(t)
	f.events.failGet = domain.ErrStoreUnavailable
	claimer := newStubClaimer()

	stats, err := f.dispatcher(claimer, baseNow.Add(2*time.Hour)).Sweep(context.Background())
	if err != nil {
		t.Fatalf("сбой одной записи не должен прерывать проход: %v", err)
	}
	if stats.Skipped != 1 || f.notifications.sent("n1") {
		t.Fatalf("запись должна остаться неотправленной: %+v", stats)
	}
	if len(claimer.released) != 1 || claimer.released[0] != "n1" {
		t.Fatalf("захват должен быть снят: %v", claimer.released)
	}

	f.events.failGet = nil
	stats, err = f.dispatcher(claimer, baseNow.Add(2*time.Hour)).Sweep(context.Background())
	if err != nil || stats.Dispatched != 1 {
		t.Fatalf("повторный проход должен разослать: %+v %v", stats, err)
	}
}

func TestSweepMarkFailureReleasesClaim(t *testing.T) {
	f := newDispatchFixture(t)
	f.notifications.failMark = domain.ErrStoreUnavailable
	claimer := newStubClaimer()

	stats, err := f.dispatcher(claimer, baseNow.Add(2*time.Hour)).Sweep(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if stats.Skipped != 1 || len(claimer.released) != 1 {
		t.Fatalf("неожиданная статистика: %+v, снятые захваты %v", stats, claimer.released)
	}
}

func TestSweepSkipsClaimedRecords(t *testing.T) {
	f := newDispatchFixture(t)
	claimer := newStubClaimer()
	claimer.held["n1"] = true

	stats, err := f.dispatcher(claimer, baseNow.Add(2*time.Hour)).Sweep(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if stats.Skipped != 1 || len(f.sender.sent) != 0 || f.notifications.sent("n1") {
		t.Fatalf("чужой захват должен пропускаться: %+v", stats)
	}
}

func TestSweepDueQueryFailure(t *testing.T) {
	f := newDispatchFixture(t)
	f.notifications.failList = domain.ErrStoreUnavailable

	_, err := f.dispatcher(nil, baseNow.Add(2*time.Hour)).Sweep(context.Background())
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("ожидали ErrStoreUnavailable, получили %v", err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newDispatchFixture(t)
	d := NewDispatcher(f.notifications, f.events, f.users, f.sender, nil, nil, DispatcherConfig{Interval: 5 * time.Millisecond, Provider: "test"}, zerolog.Nop()).
		WithClock(fixedClock(baseNow.Add(2 * time.Hour)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for !f.notifications.sent("n1") {
		select {
		case <-deadline:
			cancel()
			t.Fatalf("запись не была разослана в фоне")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run не остановился после отмены контекста")
	}
}
