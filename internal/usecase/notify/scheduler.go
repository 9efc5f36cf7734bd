package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"chapter-hub/internal/domain"
	"chapter-hub/internal/infra/metrics"
)

// DefaultReminderLead: за сколько до начала события отправляется напоминание.
const DefaultReminderLead = 30 * time.Minute

// Scheduler сохраняет напоминание для только что созданного события.
type Scheduler struct {
	repo      domain.NotificationRepo
	analytics domain.BusinessMetricRepo
	lead      time.Duration
	now       func() time.Time
	log       zerolog.Logger
}

var _ domain.EventScheduler = (*Scheduler)(nil)

// NewScheduler создаёт планировщик. analytics может быть nil.
func NewScheduler(repo domain.NotificationRepo, analytics domain.BusinessMetricRepo, lead time.Duration, logger zerolog.Logger) *Scheduler {
	if lead <= 0 {
		lead = DefaultReminderLead
	}
	return &Scheduler{repo: repo, analytics: analytics, lead: lead, now: time.Now, log: logger}
}

// WithClock подменяет источник текущего времени.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// Schedule вычисляет время напоминания и сохраняет запись, если оно ещё не наступило.
// События, начинающиеся раньше чем через lead, напоминания не получают, это не ошибка.
// Ошибка записи не повторяется.
func (s *Scheduler) Schedule(ctx context.Context, event domain.Event) (domain.NotificationRecord, bool, error) {
	if event.StartDate.IsZero() {
		return domain.NotificationRecord{}, false, nil
	}
	reminderAt := event.StartDate.Add(-s.lead)
	if !reminderAt.After(s.now()) {
		s.log.Debug().Str("event", event.ID).Time("start", event.StartDate).Msg("scheduler: событие слишком близко, напоминание не нужно")
		return domain.NotificationRecord{}, false, nil
	}

	record := domain.NotificationRecord{
		EventID:       event.ID,
		Title:         event.Title,
		Body:          ReminderBody(event.Title, s.lead),
		ScheduledTime: reminderAt.UTC(),
		Sent:          false,
	}
	id, err := s.repo.CreateNotification(ctx, record)
	if err != nil {
		return domain.NotificationRecord{}, false, fmt.Errorf("сохранение напоминания: %w", err)
	}
	record.ID = id
	metrics.NotificationsScheduled.Inc()
	recordMetric(ctx, s.analytics, s.log, domain.BusinessMetric{
		Event:    domain.BusinessMetricEventNotificationScheduled,
		ItemID:   event.ID,
		Metadata: map[string]any{"notification_id": id, "scheduled_time": record.ScheduledTime},
	})
	s.log.Info().Str("event", event.ID).Str("notification", id).Time("scheduled_time", record.ScheduledTime).Msg("scheduler: напоминание запланировано")
	return record, true, nil
}

func recordMetric(ctx context.Context, repo domain.BusinessMetricRepo, logger zerolog.Logger, metric domain.BusinessMetric) {
	if repo == nil {
		return
	}
	if err := repo.RecordBusinessMetric(ctx, metric); err != nil {
		logger.Debug().Err(err).Str("event", metric.Event).Msg("notify: не удалось сохранить бизнес-метрику")
	}
}
