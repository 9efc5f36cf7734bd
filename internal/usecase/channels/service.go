package channels

import (
	"errors"
	"fmt"
	"strings"

	"chapter-hub/internal/domain"
)

var (
	ErrChannelLimit = errors.New("превышен лимит каналов")
	ErrNoChannels   = errors.New("не указан ни один канал")
)

// Service разбирает выбор каналов пользователя.
type Service struct {
	limit int
}

// NewService создаёт сервис каналов. limit <= 0 снимает ограничение на число каналов в запросе.
func NewService(limit int) *Service {
	return &Service{limit: limit}
}

// Catalogue возвращает фиксированный список каналов.
func (s *Service) Catalogue() []domain.Channel {
	return domain.Channels()
}

// Parse приводит значения из запроса к списку каналов. Значения могут быть
// перечислены через запятую; регистр не важен, повторы отбрасываются.
func (s *Service) Parse(raw []string) ([]domain.Channel, error) {
	names := NormalizeNames(raw)
	if len(names) == 0 {
		return nil, ErrNoChannels
	}
	out := make([]domain.Channel, 0, len(names))
	for _, name := range names {
		ch, err := domain.ParseChannel(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", err, name)
		}
		out = append(out, ch)
	}
	if s.limit > 0 && len(out) > s.limit {
		return nil, ErrChannelLimit
	}
	return out, nil
}

// ParseOrAll работает как Parse, но пустой ввод означает все каналы.
func (s *Service) ParseOrAll(raw []string) ([]domain.Channel, error) {
	chs, err := s.Parse(raw)
	if errors.Is(err, ErrNoChannels) {
		return s.Catalogue(), nil
	}
	return chs, err
}

// NormalizeNames разбивает значения по запятым, удаляет пустые и дублирующиеся
// без учёта регистра, сохраняя порядок.
func NormalizeNames(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	cleaned := make([]string, 0, len(values))
	for _, value := range values {
		for _, name := range strings.Split(value, ",") {
			trimmed := strings.TrimSpace(name)
			if trimmed == "" {
				continue
			}
			key := strings.ToLower(trimmed)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			cleaned = append(cleaned, trimmed)
		}
	}
	return cleaned
}
