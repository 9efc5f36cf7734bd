package notify

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"chapter-hub/internal/domain"
)

type stubNotifications struct {
	mu       sync.Mutex
	records  []domain.NotificationRecord
	failList error
	failMark error
}

func (s *stubNotifications) CreateNotification(_ context.Context, n domain.NotificationRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n.ID = fmt.Sprintf("n%d", len(s.records)+1)
	s.records = append(s.records, n)
	return n.ID, nil
}

func (s *stubNotifications) ListDueNotifications(_ context.Context, now time.Time, limit int) ([]domain.NotificationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failList != nil {
		return nil, s.failList
	}
	var out []domain.NotificationRecord
	for _, r := range s.records {
		if r.Due(now) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ScheduledTime.Before(out[j].ScheduledTime) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *stubNotifications) MarkNotificationSent(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failMark != nil {
		return s.failMark
	}
	for i := range s.records {
		if s.records[i].ID == id {
			s.records[i].Sent = true
			return nil
		}
	}
	return domain.ErrNotFound
}

func (s *stubNotifications) sent(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.ID == id {
			return r.Sent
		}
	}
	return false
}

type stubEvents struct {
	events  map[string]domain.Event
	failGet error
}

func (s *stubEvents) ListRecentItems(context.Context, domain.ItemKind, []domain.Channel, int) ([]domain.FeedItem, error) {
	return nil, nil
}

func (s *stubEvents) ListEventsStartingBetween(context.Context, time.Time, time.Time) ([]domain.Event, error) {
	return nil, nil
}

func (s *stubEvents) ListTasksForMember(context.Context, string, domain.TaskStatus) ([]domain.Task, error) {
	return nil, nil
}

func (s *stubEvents) GetEvent(_ context.Context, id string) (domain.Event, error) {
	if s.failGet != nil {
		return domain.Event{}, s.failGet
	}
	ev, ok := s.events[id]
	if !ok {
		return domain.Event{}, domain.ErrNotFound
	}
	return ev, nil
}

func (s *stubEvents) CreateItem(context.Context, domain.FeedItem) (string, error) { return "", nil }

func (s *stubEvents) UpdateItem(context.Context, domain.ItemKind, string, domain.ItemPatch) error {
	return nil
}

func (s *stubEvents) DeleteItem(context.Context, domain.ItemKind, string) error { return nil }

type stubUsers map[string]domain.User

func (s stubUsers) GetUser(_ context.Context, id string) (domain.User, bool, error) {
	u, ok := s[id]
	return u, ok, nil
}

type stubSender struct {
	mu      sync.Mutex
	sent    []domain.PushMessage
	failFor map[string]bool
}

func (s *stubSender) Send(_ context.Context, msg domain.PushMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFor[msg.Token] {
		return domain.ErrPushDeliveryFailed
	}
	s.sent = append(s.sent, msg)
	return nil
}

type stubClaimer struct {
	mu       sync.Mutex
	held     map[string]bool
	released []string
}

func newStubClaimer() *stubClaimer { return &stubClaimer{held: map[string]bool{}} }

func (c *stubClaimer) Claim(_ context.Context, id string, _ time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.held[id] {
		return false, nil
	}
	c.held[id] = true
	return true, nil
}

func (c *stubClaimer) Release(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.held, id)
	c.released = append(c.released, id)
	return nil
}

type stubAnalytics struct {
	mu     sync.Mutex
	events []string
}

func (a *stubAnalytics) RecordBusinessMetric(_ context.Context, m domain.BusinessMetric) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, m.Event)
	return nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
