package feed

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"chapter-hub/internal/domain"
	"chapter-hub/internal/infra/metrics"
)

// DefaultPageSize используется, если размер страницы не задан.
const DefaultPageSize = 20

// Query описывает запрос ленты.
type Query struct {
	Channels     []domain.Channel
	Kind         domain.ItemKind
	PageSize     int
	ForceRefresh bool
}

// Service агрегирует коллекции элементов в общую ленту и отвечает за запросы календаря и задач.
type Service struct {
	items  domain.ItemRepo
	feed   *FeedCache
	events *EventCache
	log    zerolog.Logger
}

var _ domain.FeedInvalidator = (*Service)(nil)

// NewService создаёт сервис ленты.
func NewService(items domain.ItemRepo, feed *FeedCache, events *EventCache, logger zerolog.Logger) *Service {
	if feed == nil {
		feed = NewFeedCache()
	}
	if events == nil {
		events = NewEventCache()
	}
	return &Service{items: items, feed: feed, events: events, log: logger}
}

// GetFeedItems возвращает ленту, отсортированную по CreatedAt по убыванию.
// При попадании в кэш возвращается общий срез; вызывающий не должен его изменять.
//
// Лимит применяется к каждой коллекции отдельно, затем объединённый набор
// снова обрезается до PageSize, поэтому при неравномерном распределении
// видов страница может оказаться неполной.
func (s *Service) GetFeedItems(ctx context.Context, q Query) ([]domain.FeedItem, error) {
	cached, gen, ok := s.feed.Get()
	if ok && !q.ForceRefresh {
		metrics.ObserveCache("feed", true)
		s.log.Debug().Int("items", len(cached)).Msg("feed: отдаём ленту из кэша")
		return cached, nil
	}
	metrics.ObserveCache("feed", false)

	pageSize := q.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	kinds := domain.FeedKinds
	if q.Kind != "" {
		if !q.Kind.Valid() {
			return nil, domain.ErrUnknownKind
		}
		kinds = []domain.ItemKind{q.Kind}
	}

	var merged []domain.FeedItem
	if len(q.Channels) > 0 {
		results := make([][]domain.FeedItem, len(kinds))
		g, gctx := errgroup.WithContext(ctx)
		for i, kind := range kinds {
			g.Go(func() error {
				items, err := s.items.ListRecentItems(gctx, kind, q.Channels, pageSize)
				if err != nil {
					return fmt.Errorf("получение %s: %w", kind.Collection(), err)
				}
				for j := range items {
					items[j].Kind = kind
				}
				results[i] = items
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		for _, items := range results {
			merged = append(merged, items...)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool { return merged[i].CreatedAt.After(merged[j].CreatedAt) })
	if len(merged) > pageSize {
		merged = merged[:pageSize]
	}
	feedItems := make([]domain.FeedItem, 0, len(merged))
	for _, item := range merged {
		feedItems = append(feedItems, normalizeItem(item))
	}

	s.log.Debug().Int("items", len(feedItems)).Int("page_size", pageSize).Msg("feed: лента пересчитана")
	if !s.feed.SetIfGeneration(gen, feedItems) {
		s.log.Debug().Msg("feed: кэш сброшен во время расчёта, результат не сохраняем")
	}
	return feedItems, nil
}

// GetEvents возвращает события с началом в [start, end], отсортированные по StartDate.
// Повторный вызов с теми же границами отдаёт результат из кэша.
func (s *Service) GetEvents(ctx context.Context, start, end time.Time, forceRefresh bool) ([]domain.Event, error) {
	key := RangeKey(start, end)
	cached, gen, ok := s.events.Get(key)
	if ok && !forceRefresh {
		metrics.ObserveCache("events", true)
		return cached, nil
	}
	metrics.ObserveCache("events", false)

	events, err := s.items.ListEventsStartingBetween(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("получение событий: %w", err)
	}
	out := make([]domain.Event, 0, len(events))
	for _, ev := range events {
		ev.ItemBase = normalizeBase(ev.ItemBase)
		ev.StartDate = ev.StartDate.UTC()
		ev.EndDate = ev.EndDate.UTC()
		out = append(out, ev)
	}
	s.events.SetIfGeneration(gen, key, out)
	return out, nil
}

// GetTasks возвращает задачи участника по возрастанию дедлайна. Результат не кэшируется.
func (s *Service) GetTasks(ctx context.Context, userID string, status domain.TaskStatus) ([]domain.Task, error) {
	if status != "" && !status.Valid() {
		return nil, domain.ErrFieldNotApplicable
	}
	tasks, err := s.items.ListTasksForMember(ctx, userID, status)
	if err != nil {
		return nil, fmt.Errorf("получение задач: %w", err)
	}
	for i := range tasks {
		tasks[i].ItemBase = normalizeBase(tasks[i].ItemBase)
		if tasks[i].Deadline != nil {
			deadline := tasks[i].Deadline.UTC()
			tasks[i].Deadline = &deadline
		}
	}
	return tasks, nil
}

// InvalidateFeed сбрасывает кэш ленты.
func (s *Service) InvalidateFeed() {
	s.feed.Invalidate()
}

// ClearEventsCache сбрасывает все диапазоны календаря.
func (s *Service) ClearEventsCache() {
	s.events.Clear()
}

func normalizeItem(item domain.FeedItem) domain.FeedItem {
	item.ItemBase = normalizeBase(item.ItemBase)
	switch item.Kind {
	case domain.KindEvent:
		if item.Event != nil {
			details := *item.Event
			details.StartDate = details.StartDate.UTC()
			details.EndDate = details.EndDate.UTC()
			item.Event = &details
		}
		item.Task = nil
	case domain.KindTask:
		if item.Task != nil {
			details := *item.Task
			if details.Deadline != nil {
				deadline := details.Deadline.UTC()
				details.Deadline = &deadline
			}
			item.Task = &details
		}
		item.Event = nil
	default:
		item.Event = nil
		item.Task = nil
	}
	return item
}

func normalizeBase(base domain.ItemBase) domain.ItemBase {
	if !base.CreatedAt.IsZero() {
		base.CreatedAt = base.CreatedAt.UTC()
	}
	if !base.UpdatedAt.IsZero() {
		base.UpdatedAt = base.UpdatedAt.UTC()
	}
	return base
}
