package domain

import "time"

// ItemKind различает варианты элемента ленты.
type ItemKind string

const (
	KindAnnouncement ItemKind = "announcement"
	KindEvent        ItemKind = "event"
	KindTask         ItemKind = "task"
)

// FeedKinds перечисляет все виды элементов ленты в порядке опроса коллекций.
var FeedKinds = []ItemKind{KindAnnouncement, KindEvent, KindTask}

// Collection возвращает имя коллекции хранилища для вида элемента.
func (k ItemKind) Collection() string {
	return string(k) + "s"
}

// Valid сообщает, является ли вид известным.
func (k ItemKind) Valid() bool {
	switch k {
	case KindAnnouncement, KindEvent, KindTask:
		return true
	}
	return false
}

// KindFromCollection восстанавливает вид элемента по имени коллекции.
func KindFromCollection(collection string) (ItemKind, error) {
	for _, kind := range FeedKinds {
		if kind.Collection() == collection {
			return kind, nil
		}
	}
	return "", ErrUnknownKind
}

// TaskStatus описывает состояние задачи.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in-progress"
	TaskCompleted  TaskStatus = "completed"
)

// Valid сообщает, является ли статус известным.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskPending, TaskInProgress, TaskCompleted:
		return true
	}
	return false
}

// ItemBase содержит поля, общие для всех элементов ленты.
type ItemBase struct {
	ID          string    `json:"id"`
	AuthorID    string    `json:"authorId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Channel     Channel   `json:"channelId"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// EventDetails содержит поля, специфичные для события.
type EventDetails struct {
	StartDate       time.Time `json:"startDate"`
	EndDate         time.Time `json:"endDate"`
	Location        string    `json:"location,omitempty"`
	RequiredMembers *int      `json:"requiredMembers,omitempty"`
	AssignedMembers []string  `json:"assignedMembers,omitempty"`
}

// TaskDetails содержит поля, специфичные для задачи.
type TaskDetails struct {
	Deadline        *time.Time `json:"deadline"`
	Status          TaskStatus `json:"status"`
	AssignedMembers []string   `json:"assignedMembers,omitempty"`
}

// Announcement: объявление.
type Announcement struct {
	ItemBase
}

// Event: событие календаря.
type Event struct {
	ItemBase
	EventDetails
}

// Task: задача, назначенная участникам.
type Task struct {
	ItemBase
	TaskDetails
}

// FeedItem: элемент агрегированной ленты. Kind определяет, какое из
// полей Event или Task заполнено.
type FeedItem struct {
	Kind ItemKind `json:"type"`
	ItemBase
	Event *EventDetails `json:"event,omitempty"`
	Task  *TaskDetails  `json:"task,omitempty"`
}

// AnnouncementItem оборачивает объявление в элемент ленты.
func AnnouncementItem(a Announcement) FeedItem {
	return FeedItem{Kind: KindAnnouncement, ItemBase: a.ItemBase}
}

// EventItem оборачивает событие в элемент ленты.
func EventItem(e Event) FeedItem {
	details := e.EventDetails
	return FeedItem{Kind: KindEvent, ItemBase: e.ItemBase, Event: &details}
}

// TaskItem оборачивает задачу в элемент ленты.
func TaskItem(t Task) FeedItem {
	details := t.TaskDetails
	return FeedItem{Kind: KindTask, ItemBase: t.ItemBase, Task: &details}
}

// AsEvent возвращает событие, если элемент им является.
func (f FeedItem) AsEvent() (Event, bool) {
	if f.Kind != KindEvent || f.Event == nil {
		return Event{}, false
	}
	return Event{ItemBase: f.ItemBase, EventDetails: *f.Event}, true
}

// AsTask возвращает задачу, если элемент ею является.
func (f FeedItem) AsTask() (Task, bool) {
	if f.Kind != KindTask || f.Task == nil {
		return Task{}, false
	}
	return Task{ItemBase: f.ItemBase, TaskDetails: *f.Task}, true
}

// ItemPatch описывает частичное обновление элемента. Nil-поля не меняются.
type ItemPatch struct {
	Title           *string     `json:"title,omitempty"`
	Description     *string     `json:"description,omitempty"`
	Channel         *Channel    `json:"channelId,omitempty"`
	StartDate       *time.Time  `json:"startDate,omitempty"`
	EndDate         *time.Time  `json:"endDate,omitempty"`
	Location        *string     `json:"location,omitempty"`
	RequiredMembers *int        `json:"requiredMembers,omitempty"`
	AssignedMembers *[]string   `json:"assignedMembers,omitempty"`
	Deadline        *time.Time  `json:"deadline,omitempty"`
	Status          *TaskStatus `json:"status,omitempty"`
}

// Empty сообщает, что патч ничего не меняет.
func (p ItemPatch) Empty() bool {
	return p == ItemPatch{}
}

// Validate проверяет, что патч задаёт только поля, применимые к виду элемента.
func (p ItemPatch) Validate(kind ItemKind) error {
	eventFields := p.StartDate != nil || p.EndDate != nil || p.Location != nil || p.RequiredMembers != nil
	taskFields := p.Deadline != nil || p.Status != nil
	switch kind {
	case KindAnnouncement:
		if eventFields || taskFields || p.AssignedMembers != nil {
			return ErrFieldNotApplicable
		}
	case KindEvent:
		if taskFields {
			return ErrFieldNotApplicable
		}
		if p.StartDate != nil && p.EndDate != nil && p.StartDate.After(*p.EndDate) {
			return ErrInvalidEventRange
		}
	case KindTask:
		if eventFields {
			return ErrFieldNotApplicable
		}
		if p.Status != nil && !p.Status.Valid() {
			return ErrFieldNotApplicable
		}
	default:
		return ErrUnknownKind
	}
	if p.Channel != nil && !p.Channel.Valid() {
		return ErrUnknownChannel
	}
	return nil
}

// User описывает участника организации.
type User struct {
	ID              string     `json:"id"`
	FirstName       string     `json:"firstName"`
	LastName        string     `json:"lastName"`
	Email           string     `json:"email"`
	BirthDate       time.Time  `json:"birthDate"`
	PledgingSession string     `json:"pledgingSession"`
	Aka             string     `json:"aka"`
	Status          UserStatus `json:"status"`
	Exec            ExecRole   `json:"exec"`
	CreatedAt       time.Time  `json:"createdAt"`
	LastLoginAt     time.Time  `json:"lastLoginAt"`
	PushToken       string     `json:"expoPushToken,omitempty"`
}

// UserPatch описывает частичное обновление профиля. Nil-поля не меняются.
type UserPatch struct {
	FirstName       *string     `json:"firstName,omitempty"`
	LastName        *string     `json:"lastName,omitempty"`
	Email           *string     `json:"email,omitempty"`
	BirthDate       *time.Time  `json:"birthDate,omitempty"`
	PledgingSession *string     `json:"pledgingSession,omitempty"`
	Aka             *string     `json:"aka,omitempty"`
	Status          *UserStatus `json:"status,omitempty"`
	Exec            *ExecRole   `json:"exec,omitempty"`
	LastLoginAt     *time.Time  `json:"lastLoginAt,omitempty"`
	PushToken       *string     `json:"expoPushToken,omitempty"`
}

// Apply переносит заданные поля патча в профиль.
func (p UserPatch) Apply(u *User) {
	if p.FirstName != nil {
		u.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		u.LastName = *p.LastName
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.BirthDate != nil {
		u.BirthDate = *p.BirthDate
	}
	if p.PledgingSession != nil {
		u.PledgingSession = *p.PledgingSession
	}
	if p.Aka != nil {
		u.Aka = *p.Aka
	}
	if p.Status != nil {
		u.Status = *p.Status
	}
	if p.Exec != nil {
		u.Exec = *p.Exec
	}
	if p.LastLoginAt != nil {
		u.LastLoginAt = *p.LastLoginAt
	}
	if p.PushToken != nil {
		u.PushToken = *p.PushToken
	}
}

// NotificationRecord: запланированное push-напоминание о событии.
// Sent переходит из false в true ровно один раз.
type NotificationRecord struct {
	ID            string    `json:"id"`
	EventID       string    `json:"eventId"`
	Title         string    `json:"title"`
	Body          string    `json:"body"`
	ScheduledTime time.Time `json:"scheduledTime"`
	Sent          bool      `json:"sent"`
}

// Due сообщает, должна ли запись попасть в выборку рассылки на момент now.
func (n NotificationRecord) Due(now time.Time) bool {
	return !n.Sent && !n.ScheduledTime.After(now)
}

// PushMessage: одно push-сообщение получателю.
type PushMessage struct {
	Token string `json:"token"`
	Title string `json:"title"`
	Body  string `json:"body"`
}
