package push

import (
	"context"

	"github.com/rs/zerolog"

	"chapter-hub/internal/domain"
)

// Log только пишет сообщения в журнал. Используется в dev-окружении.
type Log struct {
	log zerolog.Logger
}

var _ domain.PushSender = (*Log)(nil)

func NewLog(logger zerolog.Logger) *Log {
	return &Log{log: logger}
}

// Send реализует domain.PushSender.
func (l *Log) Send(_ context.Context, msg domain.PushMessage) error {
	l.log.Info().Str("token", msg.Token).Str("title", msg.Title).Str("body", msg.Body).Msg("push: сообщение")
	return nil
}
