package feed

import (
	"sync"
	"time"

	"chapter-hub/internal/domain"
)

// isoMillis повторяет формат Date.toISOString: UTC с миллисекундами.
const isoMillis = "2006-01-02T15:04:05.000Z"

// FeedCache хранит последнюю вычисленную ленту. Кэш не параметризован запросом:
// при наличии записи она отдаётся для любых каналов, вида и размера страницы.
//
// Каждое Invalidate увеличивает поколение. Запись через SetIfGeneration
// отбрасывается, если с момента начала расчёта кэш успели сбросить.
type FeedCache struct {
	mu    sync.Mutex
	items []domain.FeedItem
	ok    bool
	gen   uint64
}

// NewFeedCache создаёт пустой кэш ленты.
func NewFeedCache() *FeedCache {
	return &FeedCache{}
}

// Get возвращает закэшированную ленту и текущее поколение. Срез общий для всех
// читателей: менять его элементы или порядок нельзя.
func (c *FeedCache) Get() ([]domain.FeedItem, uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.items, c.gen, c.ok
}

// SetIfGeneration сохраняет ленту, только если поколение не изменилось.
func (c *FeedCache) SetIfGeneration(gen uint64, items []domain.FeedItem) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	c.items = items
	c.ok = true
	return true
}

// Invalidate отбрасывает запись и начинает новое поколение.
func (c *FeedCache) Invalidate() {
	c.mu.Lock()
	c.items = nil
	c.ok = false
	c.gen++
	c.mu.Unlock()
}

// EventCache хранит события по точной паре границ диапазона.
// Clear начинает новое поколение, как и FeedCache.Invalidate.
type EventCache struct {
	mu      sync.RWMutex
	entries map[string][]domain.Event
	gen     uint64
}

// NewEventCache создаёт пустой кэш событий.
func NewEventCache() *EventCache {
	return &EventCache{entries: make(map[string][]domain.Event)}
}

// RangeKey строит ключ кэша из границ диапазона.
func RangeKey(start, end time.Time) string {
	return start.UTC().Format(isoMillis) + "-" + end.UTC().Format(isoMillis)
}

// Get возвращает события по ключу и текущее поколение. Срез только для чтения.
func (c *EventCache) Get(key string) ([]domain.Event, uint64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	events, ok := c.entries[key]
	return events, c.gen, ok
}

// SetIfGeneration сохраняет события под ключом, если после чтения не было Clear.
func (c *EventCache) SetIfGeneration(gen uint64, key string, events []domain.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	c.entries[key] = events
	return true
}

// Clear удаляет все ключи.
func (c *EventCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string][]domain.Event)
	c.gen++
	c.mu.Unlock()
}

// Len возвращает количество закэшированных диапазонов.
func (c *EventCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
