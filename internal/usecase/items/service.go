package items

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"chapter-hub/internal/domain"
)

// Service создаёт, изменяет и удаляет элементы ленты.
//
// Создание сбрасывает кэш ленты. Изменение и удаление кэши не трогают: после них
// вызывающая сторона сама сбрасывает ленту и календарь.
type Service struct {
	repo      domain.ItemRepo
	feed      domain.FeedInvalidator
	scheduler domain.EventScheduler
	analytics domain.BusinessMetricRepo
	now       func() time.Time
	log       zerolog.Logger
}

// NewService создаёт сервис. scheduler и analytics могут быть nil.
func NewService(repo domain.ItemRepo, feed domain.FeedInvalidator, scheduler domain.EventScheduler, analytics domain.BusinessMetricRepo, logger zerolog.Logger) *Service {
	return &Service{repo: repo, feed: feed, scheduler: scheduler, analytics: analytics, now: time.Now, log: logger}
}

// WithClock подменяет источник текущего времени.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreateAnnouncement сохраняет объявление и возвращает присвоенный идентификатор.
func (s *Service) CreateAnnouncement(ctx context.Context, a domain.Announcement) (string, error) {
	return s.create(ctx, domain.AnnouncementItem(a))
}

// CreateTask сохраняет задачу. Пустой статус превращается в pending.
func (s *Service) CreateTask(ctx context.Context, t domain.Task) (string, error) {
	if t.Status == "" {
		t.Status = domain.TaskPending
	}
	if !t.Status.Valid() {
		return "", domain.ErrFieldNotApplicable
	}
	return s.create(ctx, domain.TaskItem(t))
}

// CreateEvent сохраняет событие и планирует напоминание. Ошибка планирования
// только логируется: событие уже создано.
func (s *Service) CreateEvent(ctx context.Context, e domain.Event) (string, error) {
	if !e.StartDate.IsZero() && !e.EndDate.IsZero() && e.StartDate.After(e.EndDate) {
		return "", domain.ErrInvalidEventRange
	}
	id, err := s.create(ctx, domain.EventItem(e))
	if err != nil {
		return "", err
	}
	if s.scheduler == nil {
		return id, nil
	}
	e.ID = id
	if _, _, err := s.scheduler.Schedule(ctx, e); err != nil {
		s.log.Error().Err(err).Str("event", id).Msg("items: не удалось запланировать напоминание")
	}
	return id, nil
}

func (s *Service) create(ctx context.Context, item domain.FeedItem) (string, error) {
	if !item.Channel.Valid() {
		return "", domain.ErrUnknownChannel
	}
	now := s.now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now

	id, err := s.repo.CreateItem(ctx, item)
	if err != nil {
		return "", fmt.Errorf("создание %s: %w", item.Kind, err)
	}
	s.feed.InvalidateFeed()
	s.record(ctx, domain.BusinessMetric{
		Event:    domain.BusinessMetricEventItemCreated,
		UserID:   item.AuthorID,
		ItemID:   id,
		Metadata: map[string]any{"kind": string(item.Kind), "channel": string(item.Channel)},
	})
	s.log.Info().Str("kind", string(item.Kind)).Str("id", id).Msg("items: элемент создан")
	return id, nil
}

// UpdateItem применяет патч к элементу вида kind.
func (s *Service) UpdateItem(ctx context.Context, kind domain.ItemKind, id string, patch domain.ItemPatch) error {
	if err := patch.Validate(kind); err != nil {
		return err
	}
	if patch.Empty() {
		return nil
	}
	if err := s.repo.UpdateItem(ctx, kind, id, patch); err != nil {
		return fmt.Errorf("обновление %s %s: %w", kind, id, err)
	}
	return nil
}

// DeleteItem удаляет элемент вида kind.
func (s *Service) DeleteItem(ctx context.Context, kind domain.ItemKind, id string) error {
	if !kind.Valid() {
		return domain.ErrUnknownKind
	}
	if err := s.repo.DeleteItem(ctx, kind, id); err != nil {
		return fmt.Errorf("удаление %s %s: %w", kind, id, err)
	}
	s.record(ctx, domain.BusinessMetric{
		Event:    domain.BusinessMetricEventItemDeleted,
		ItemID:   id,
		Metadata: map[string]any{"kind": string(kind)},
	})
	return nil
}

func (s *Service) record(ctx context.Context, metric domain.BusinessMetric) {
	if s.analytics == nil {
		return
	}
	if metric.OccurredAt.IsZero() {
		metric.OccurredAt = s.now().UTC()
	}
	if err := s.analytics.RecordBusinessMetric(ctx, metric); err != nil {
		s.log.Debug().Err(err).Str("event", metric.Event).Msg("items: не удалось сохранить бизнес-метрику")
	}
}
