package domain

import (
	"context"
	"time"
)

// ItemRepo: контракт хранилища элементов ленты (коллекции announcements, events, tasks).
type ItemRepo interface {
	// ListRecentItems возвращает не более limit элементов вида kind из указанных каналов,
	// упорядоченных по CreatedAt по убыванию.
	ListRecentItems(ctx context.Context, kind ItemKind, channels []Channel, limit int) ([]FeedItem, error)
	// ListEventsStartingBetween возвращает события с StartDate в [start, end] по возрастанию StartDate.
	ListEventsStartingBetween(ctx context.Context, start, end time.Time) ([]Event, error)
	// ListTasksForMember возвращает задачи, где userID входит в AssignedMembers, по возрастанию дедлайна.
	// Пустой status означает любой статус.
	ListTasksForMember(ctx context.Context, userID string, status TaskStatus) ([]Task, error)
	GetEvent(ctx context.Context, id string) (Event, error)
	CreateItem(ctx context.Context, item FeedItem) (string, error)
	UpdateItem(ctx context.Context, kind ItemKind, id string, patch ItemPatch) error
	DeleteItem(ctx context.Context, kind ItemKind, id string) error
}

// UserRepo: контракт хранилища профилей.
type UserRepo interface {
	ListUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, id string) (User, error)
	CreateUser(ctx context.Context, user User) error
	UpdateUser(ctx context.Context, id string, patch UserPatch) error
}

// NotificationRepo: контракт хранилища запланированных напоминаний.
type NotificationRepo interface {
	CreateNotification(ctx context.Context, n NotificationRecord) (string, error)
	// ListDueNotifications возвращает не более limit записей с ScheduledTime <= now и Sent = false.
	ListDueNotifications(ctx context.Context, now time.Time, limit int) ([]NotificationRecord, error)
	MarkNotificationSent(ctx context.Context, id string) error
}

// PushSender доставляет push-сообщение по токену устройства.
type PushSender interface {
	Send(ctx context.Context, msg PushMessage) error
}

// NotificationClaimer захватывает запись перед рассылкой, чтобы несколько
// экземпляров диспетчера не обработали её одновременно.
type NotificationClaimer interface {
	// Claim возвращает true, если захват получен этим вызовом.
	Claim(ctx context.Context, notificationID string, ttl time.Duration) (bool, error)
	// Release снимает захват записи, которую не удалось обработать.
	Release(ctx context.Context, notificationID string) error
}

// FeedInvalidator сбрасывает кэш ленты.
type FeedInvalidator interface {
	InvalidateFeed()
}

// EventScheduler планирует напоминание для только что созданного события.
type EventScheduler interface {
	Schedule(ctx context.Context, event Event) (NotificationRecord, bool, error)
}

// UserLookup разрешает получателей рассылки.
type UserLookup interface {
	GetUser(ctx context.Context, id string) (User, bool, error)
}
