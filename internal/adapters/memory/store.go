package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"chapter-hub/internal/domain"
)

// Store хранит все коллекции в памяти процесса. Используется в dev-окружении
// без PG_DSN и в сценарных тестах.
type Store struct {
	mu            sync.RWMutex
	items         map[domain.ItemKind]map[string]domain.FeedItem
	users         map[string]domain.User
	notifications map[string]domain.NotificationRecord
	metrics       []domain.BusinessMetric
	fail          error
}

var (
	_ domain.ItemRepo           = (*Store)(nil)
	_ domain.UserRepo           = (*Store)(nil)
	_ domain.NotificationRepo   = (*Store)(nil)
	_ domain.BusinessMetricRepo = (*Store)(nil)
)

// New создаёт пустое хранилище.
func New() *Store {
	items := make(map[domain.ItemKind]map[string]domain.FeedItem, len(domain.FeedKinds))
	for _, kind := range domain.FeedKinds {
		items[kind] = map[string]domain.FeedItem{}
	}
	return &Store{
		items:         items,
		users:         map[string]domain.User{},
		notifications: map[string]domain.NotificationRecord{},
	}
}

// SetFailure заставляет все операции возвращать ErrStoreUnavailable, пока не передан nil.
func (s *Store) SetFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

func (s *Store) failed() error {
	if s.fail == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, s.fail)
}

// ListRecentItems реализует domain.ItemRepo.
func (s *Store) ListRecentItems(ctx context.Context, kind domain.ItemKind, channels []domain.Channel, limit int) ([]domain.FeedItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failed(); err != nil {
		return nil, err
	}
	collection, ok := s.items[kind]
	if !ok {
		return nil, domain.ErrUnknownKind
	}
	wanted := make(map[domain.Channel]struct{}, len(channels))
	for _, ch := range channels {
		wanted[ch] = struct{}{}
	}
	var out []domain.FeedItem
	for _, item := range collection {
		if _, ok := wanted[item.Channel]; ok {
			out = append(out, cloneItem(item))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListEventsStartingBetween реализует domain.ItemRepo.
func (s *Store) ListEventsStartingBetween(ctx context.Context, start, end time.Time) ([]domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failed(); err != nil {
		return nil, err
	}
	var out []domain.Event
	for _, item := range s.items[domain.KindEvent] {
		ev, ok := cloneItem(item).AsEvent()
		if !ok {
			continue
		}
		if ev.StartDate.Before(start) || ev.StartDate.After(end) {
			continue
		}
		out = append(out, ev)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

// ListTasksForMember реализует domain.ItemRepo.
func (s *Store) ListTasksForMember(ctx context.Context, userID string, status domain.TaskStatus) ([]domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failed(); err != nil {
		return nil, err
	}
	var out []domain.Task
	for _, item := range s.items[domain.KindTask] {
		task, ok := cloneItem(item).AsTask()
		if !ok || !contains(task.AssignedMembers, userID) {
			continue
		}
		if status != "" && task.Status != status {
			continue
		}
		out = append(out, task)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Deadline, out[j].Deadline
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return a.Before(*b)
	})
	return out, nil
}

// GetEvent реализует domain.ItemRepo.
func (s *Store) GetEvent(ctx context.Context, id string) (domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failed(); err != nil {
		return domain.Event{}, err
	}
	item, ok := s.items[domain.KindEvent][id]
	if !ok {
		return domain.Event{}, fmt.Errorf("%w: events %s", domain.ErrNotFound, id)
	}
	ev, _ := cloneItem(item).AsEvent()
	return ev, nil
}

// CreateItem реализует domain.ItemRepo.
func (s *Store) CreateItem(ctx context.Context, item domain.FeedItem) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failed(); err != nil {
		return "", err
	}
	collection, ok := s.items[item.Kind]
	if !ok {
		return "", domain.ErrUnknownKind
	}
	item = cloneItem(item)
	item.ID = uuid.NewString()
	collection[item.ID] = item
	return item.ID, nil
}

// UpdateItem реализует domain.ItemRepo.
func (s *Store) UpdateItem(ctx context.Context, kind domain.ItemKind, id string, patch domain.ItemPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failed(); err != nil {
		return err
	}
	collection, ok := s.items[kind]
	if !ok {
		return domain.ErrUnknownKind
	}
	item, ok := collection[id]
	if !ok {
		return fmt.Errorf("%w: %s %s", domain.ErrNotFound, kind.Collection(), id)
	}
	item = cloneItem(item)
	applyPatch(&item, patch)
	if item.Event != nil && item.Event.StartDate.After(item.Event.EndDate) {
		return domain.ErrInvalidEventRange
	}
	item.UpdatedAt = time.Now().UTC()
	collection[id] = item
	return nil
}

// DeleteItem реализует domain.ItemRepo.
func (s *Store) DeleteItem(ctx context.Context, kind domain.ItemKind, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failed(); err != nil {
		return err
	}
	collection, ok := s.items[kind]
	if !ok {
		return domain.ErrUnknownKind
	}
	if _, ok := collection[id]; !ok {
		return fmt.Errorf("%w: %s %s", domain.ErrNotFound, kind.Collection(), id)
	}
	delete(collection, id)
	return nil
}

// ListUsers реализует domain.UserRepo.
func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failed(); err != nil {
		return nil, err
	}
	out := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetUser реализует domain.UserRepo.
func (s *Store) GetUser(ctx context.Context, id string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failed(); err != nil {
		return domain.User{}, err
	}
	u, ok := s.users[id]
	if !ok {
		return domain.User{}, fmt.Errorf("%w: users %s", domain.ErrNotFound, id)
	}
	return u, nil
}

// CreateUser реализует domain.UserRepo.
func (s *Store) CreateUser(ctx context.Context, u domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failed(); err != nil {
		return err
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	s.users[u.ID] = u
	return nil
}

// UpdateUser реализует domain.UserRepo.
func (s *Store) UpdateUser(ctx context.Context, id string, patch domain.UserPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failed(); err != nil {
		return err
	}
	u, ok := s.users[id]
	if !ok {
		return fmt.Errorf("%w: users %s", domain.ErrNotFound, id)
	}
	patch.Apply(&u)
	s.users[id] = u
	return nil
}

// CreateNotification реализует domain.NotificationRepo.
func (s *Store) CreateNotification(ctx context.Context, n domain.NotificationRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failed(); err != nil {
		return "", err
	}
	n.ID = uuid.NewString()
	s.notifications[n.ID] = n
	return n.ID, nil
}

// ListDueNotifications реализует domain.NotificationRepo.
func (s *Store) ListDueNotifications(ctx context.Context, now time.Time, limit int) ([]domain.NotificationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failed(); err != nil {
		return nil, err
	}
	var out []domain.NotificationRecord
	for _, n := range s.notifications {
		if n.Due(now) {
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ScheduledTime.Before(out[j].ScheduledTime) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MarkNotificationSent реализует domain.NotificationRepo.
func (s *Store) MarkNotificationSent(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failed(); err != nil {
		return err
	}
	n, ok := s.notifications[id]
	if !ok {
		return fmt.Errorf("%w: notifications %s", domain.ErrNotFound, id)
	}
	n.Sent = true
	s.notifications[id] = n
	return nil
}

// Notifications возвращает все записи напоминаний.
func (s *Store) Notifications() []domain.NotificationRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.NotificationRecord, 0, len(s.notifications))
	for _, n := range s.notifications {
		out = append(out, n)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ScheduledTime.Before(out[j].ScheduledTime) })
	return out
}

// RecordBusinessMetric реализует domain.BusinessMetricRepo.
func (s *Store) RecordBusinessMetric(ctx context.Context, metric domain.BusinessMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if metric.OccurredAt.IsZero() {
		metric.OccurredAt = time.Now().UTC()
	}
	s.metrics = append(s.metrics, metric)
	return nil
}

// BusinessMetrics возвращает сохранённые бизнес-события.
func (s *Store) BusinessMetrics() []domain.BusinessMetric {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.BusinessMetric(nil), s.metrics...)
}

func applyPatch(item *domain.FeedItem, p domain.ItemPatch) {
	if p.Title != nil {
		item.Title = *p.Title
	}
	if p.Description != nil {
		item.Description = *p.Description
	}
	if p.Channel != nil {
		item.Channel = *p.Channel
	}
	if ev := item.Event; ev != nil {
		if p.StartDate != nil {
			ev.StartDate = *p.StartDate
		}
		if p.EndDate != nil {
			ev.EndDate = *p.EndDate
		}
		if p.Location != nil {
			ev.Location = *p.Location
		}
		if p.RequiredMembers != nil {
			n := *p.RequiredMembers
			ev.RequiredMembers = &n
		}
		if p.AssignedMembers != nil {
			ev.AssignedMembers = append([]string(nil), (*p.AssignedMembers)...)
		}
	}
	if task := item.Task; task != nil {
		if p.Deadline != nil {
			d := *p.Deadline
			task.Deadline = &d
		}
		if p.Status != nil {
			task.Status = *p.Status
		}
		if p.AssignedMembers != nil {
			task.AssignedMembers = append([]string(nil), (*p.AssignedMembers)...)
		}
	}
}

// cloneItem копирует вложенные структуры, чтобы вызывающий код не менял хранимое состояние.
func cloneItem(item domain.FeedItem) domain.FeedItem {
	if item.Event != nil {
		ev := *item.Event
		ev.AssignedMembers = append([]string(nil), ev.AssignedMembers...)
		if ev.RequiredMembers != nil {
			n := *ev.RequiredMembers
			ev.RequiredMembers = &n
		}
		item.Event = &ev
	}
	if item.Task != nil {
		task := *item.Task
		task.AssignedMembers = append([]string(nil), task.AssignedMembers...)
		if task.Deadline != nil {
			d := *task.Deadline
			task.Deadline = &d
		}
		item.Task = &task
	}
	return item
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
