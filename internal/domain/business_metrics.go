package domain

import (
	"context"
	"time"
)

// BusinessMetric описывает бизнесовое событие, которое сохраняется для последующего анализа.
type BusinessMetric struct {
	Event      string
	UserID     string
	ItemID     string
	Metadata   map[string]any
	OccurredAt time.Time
}

const (
	// BusinessMetricEventItemCreated фиксирует создание элемента ленты.
	BusinessMetricEventItemCreated = "item_created"
	// BusinessMetricEventItemDeleted фиксирует удаление элемента ленты.
	BusinessMetricEventItemDeleted = "item_deleted"
	// BusinessMetricEventNotificationScheduled фиксирует постановку напоминания.
	BusinessMetricEventNotificationScheduled = "notification_scheduled"
	// BusinessMetricEventNotificationDispatched фиксирует завершение рассылки напоминания.
	BusinessMetricEventNotificationDispatched = "notification_dispatched"
)

// BusinessMetricRepo сохраняет бизнесовые события.
type BusinessMetricRepo interface {
	RecordBusinessMetric(ctx context.Context, metric BusinessMetric) error
}
