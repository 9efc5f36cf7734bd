package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"chapter-hub/internal/domain"
	"chapter-hub/internal/infra/metrics"
)

// DispatcherConfig задаёт параметры периодической рассылки.
type DispatcherConfig struct {
	Interval    time.Duration
	Batch       int
	CallTimeout time.Duration
	ClaimTTL    time.Duration
	Provider    string
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.Batch <= 0 {
		c.Batch = 100
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 10 * time.Second
	}
	if c.ClaimTTL <= 0 {
		c.ClaimTTL = 5 * time.Minute
	}
	if c.Provider == "" {
		c.Provider = "unknown"
	}
	return c
}

// SweepStats описывает результат одного прохода.
type SweepStats struct {
	Due        int
	Dispatched int
	Skipped    int
	PushSent   int
	PushFailed int
}

// Dispatcher периодически находит наступившие напоминания, рассылает push участникам
// события и помечает записи отправленными.
//
// Доставка at-least-once: если процесс упадёт между отправкой и отметкой, следующий проход
// повторит рассылку всем получателям записи.
type Dispatcher struct {
	notifications domain.NotificationRepo
	events        domain.ItemRepo
	users         domain.UserLookup
	sender        domain.PushSender
	claimer       domain.NotificationClaimer
	analytics     domain.BusinessMetricRepo
	cfg           DispatcherConfig
	now           func() time.Time
	log           zerolog.Logger
}

// NewDispatcher создаёт диспетчер. claimer и analytics могут быть nil; без claimer
// предполагается единственный экземпляр диспетчера.
func NewDispatcher(notifications domain.NotificationRepo, events domain.ItemRepo, users domain.UserLookup, sender domain.PushSender, claimer domain.NotificationClaimer, analytics domain.BusinessMetricRepo, cfg DispatcherConfig, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		notifications: notifications,
		events:        events,
		users:         users,
		sender:        sender,
		claimer:       claimer,
		analytics:     analytics,
		cfg:           cfg.withDefaults(),
		now:           time.Now,
		log:           logger,
	}
}

// WithClock подменяет источник текущего времени.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// Run выполняет проходы с фиксированным интервалом до отмены контекста.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	d.log.Info().Dur("interval", d.cfg.Interval).Int("batch", d.cfg.Batch).Msg("dispatcher: запущен")
	for {
		select {
		case <-ctx.Done():
			d.log.Info().Msg("dispatcher: остановлен")
			return
		case <-ticker.C:
			stats, err := d.Sweep(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					continue
				}
				d.log.Error().Err(err).Msg("dispatcher: проход завершился ошибкой")
				continue
			}
			if stats.Due > 0 {
				d.log.Info().
					Int("due", stats.Due).
					Int("dispatched", stats.Dispatched).
					Int("skipped", stats.Skipped).
					Int("push_sent", stats.PushSent).
					Int("push_failed", stats.PushFailed).
					Msg("dispatcher: проход завершён")
			}
		}
	}
}

// Sweep выполняет один проход рассылки. Записи обрабатываются последовательно
// в порядке выборки.
func (d *Dispatcher) Sweep(ctx context.Context) (SweepStats, error) {
	start := time.Now()
	defer func() { metrics.DispatchSweepSeconds.Observe(time.Since(start).Seconds()) }()

	var stats SweepStats
	callCtx, cancel := d.callCtx(ctx)
	due, err := d.notifications.ListDueNotifications(callCtx, d.now(), d.cfg.Batch)
	cancel()
	if err != nil {
		return stats, fmt.Errorf("выборка напоминаний: %w", err)
	}
	stats.Due = len(due)

	for _, record := range due {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if d.dispatch(ctx, record, &stats) {
			stats.Dispatched++
		} else {
			stats.Skipped++
		}
	}
	return stats, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, record domain.NotificationRecord, stats *SweepStats) bool {
	logger := d.log.With().Str("notification", record.ID).Str("event", record.EventID).Logger()

	if d.claimer != nil {
		callCtx, cancel := d.callCtx(ctx)
		claimed, err := d.claimer.Claim(callCtx, record.ID, d.cfg.ClaimTTL)
		cancel()
		if err != nil {
			logger.Error().Err(err).Msg("dispatcher: не удалось захватить напоминание")
			return false
		}
		if !claimed {
			logger.Debug().Msg("dispatcher: напоминание обрабатывает другой экземпляр")
			return false
		}
	}

	recipients, err := d.recipients(ctx, record)
	if err != nil {
		logger.Error().Err(err).Msg("dispatcher: не удалось получить событие, повторим в следующем проходе")
		d.release(ctx, record.ID, logger)
		return false
	}

	for _, userID := range recipients {
		d.sendTo(ctx, record, userID, stats, logger)
	}

	callCtx, cancel := d.callCtx(ctx)
	err = d.notifications.MarkNotificationSent(callCtx, record.ID)
	cancel()
	if err != nil {
		logger.Error().Err(err).Msg("dispatcher: не удалось отметить напоминание, рассылка может повториться")
		d.release(ctx, record.ID, logger)
		return false
	}
	metrics.NotificationsDispatched.Inc()
	recordMetric(ctx, d.analytics, logger, domain.BusinessMetric{
		Event:    domain.BusinessMetricEventNotificationDispatched,
		ItemID:   record.EventID,
		Metadata: map[string]any{"notification_id": record.ID, "recipients": len(recipients)},
	})
	return true
}

// recipients возвращает участников события без повторов. Удалённое событие
// означает отсутствие получателей.
func (d *Dispatcher) recipients(ctx context.Context, record domain.NotificationRecord) ([]string, error) {
	callCtx, cancel := d.callCtx(ctx)
	event, err := d.events.GetEvent(callCtx, record.EventID)
	cancel()
	if errors.Is(err, domain.ErrNotFound) {
		d.log.Warn().Str("notification", record.ID).Str("event", record.EventID).Msg("dispatcher: событие не найдено, отправлять некому")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(event.AssignedMembers))
	out := make([]string, 0, len(event.AssignedMembers))
	for _, id := range event.AssignedMembers {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

func (d *Dispatcher) sendTo(ctx context.Context, record domain.NotificationRecord, userID string, stats *SweepStats, logger zerolog.Logger) {
	logger = logger.With().Str("user", userID).Logger()

	callCtx, cancel := d.callCtx(ctx)
	user, ok, err := d.users.GetUser(callCtx, userID)
	cancel()
	if err != nil {
		stats.PushFailed++
		logger.Error().Err(err).Msg("dispatcher: не удалось получить получателя")
		return
	}
	if !ok || user.PushToken == "" {
		return
	}

	callCtx, cancel = d.callCtx(ctx)
	err = d.sender.Send(callCtx, domain.PushMessage{Token: user.PushToken, Title: record.Title, Body: record.Body})
	cancel()
	metrics.ObservePush(d.cfg.Provider, err)
	if err != nil {
		stats.PushFailed++
		logger.Error().Err(err).Msg("dispatcher: не удалось отправить push")
		return
	}
	stats.PushSent++
}

func (d *Dispatcher) release(ctx context.Context, id string, logger zerolog.Logger) {
	if d.claimer == nil {
		return
	}
	callCtx, cancel := d.callCtx(ctx)
	defer cancel()
	if err := d.claimer.Release(callCtx, id); err != nil {
		logger.Warn().Err(err).Msg("dispatcher: не удалось снять захват")
	}
}

func (d *Dispatcher) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d.cfg.CallTimeout)
}
