package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"chapter-hub/internal/domain"
	"chapter-hub/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.ItemRepo           = (*Postgres)(nil)
	_ domain.UserRepo           = (*Postgres)(nil)
	_ domain.NotificationRepo   = (*Postgres)(nil)
	_ domain.BusinessMetricRepo = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return p.connCtx()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// storeErr приводит ошибку драйвера к доменной.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, op)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23514" {
		return fmt.Errorf("%w: %s", domain.ErrInvalidEventRange, op)
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrStoreUnavailable, op, err)
}

func tableFor(kind domain.ItemKind) (string, error) {
	if !kind.Valid() {
		return "", domain.ErrUnknownKind
	}
	return kind.Collection(), nil
}

const (
	baseColumns  = "id, author_id, title, description, channel, created_at, updated_at"
	eventColumns = baseColumns + ", start_date, end_date, location, required_members, assigned_members"
	taskColumns  = baseColumns + ", deadline, status, assigned_members"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBase(b *domain.ItemBase, extra ...any) []any {
	return append([]any{&b.ID, &b.AuthorID, &b.Title, &b.Description, &b.Channel, &b.CreatedAt, &b.UpdatedAt}, extra...)
}

func scanEvent(row rowScanner) (domain.Event, error) {
	var (
		ev       domain.Event
		location sql.NullString
		required sql.NullInt32
	)
	if err := row.Scan(scanBase(&ev.ItemBase, &ev.StartDate, &ev.EndDate, &location, &required, &ev.AssignedMembers)...); err != nil {
		return domain.Event{}, err
	}
	ev.Location = location.String
	if required.Valid {
		n := int(required.Int32)
		ev.RequiredMembers = &n
	}
	return ev, nil
}

func scanTask(row rowScanner) (domain.Task, error) {
	var (
		task     domain.Task
		deadline sql.NullTime
	)
	if err := row.Scan(scanBase(&task.ItemBase, &deadline, &task.Status, &task.AssignedMembers)...); err != nil {
		return domain.Task{}, err
	}
	if deadline.Valid {
		ts := deadline.Time
		task.Deadline = &ts
	}
	return task, nil
}

// ListRecentItems реализует domain.ItemRepo.
func (p *Postgres) ListRecentItems(ctx context.Context, kind domain.ItemKind, channels []domain.Channel, limit int) ([]domain.FeedItem, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	columns := baseColumns
	switch kind {
	case domain.KindEvent:
		columns = eventColumns
	case domain.KindTask:
		columns = taskColumns
	}
	names := make([]string, 0, len(channels))
	for _, ch := range channels {
		names = append(names, string(ch))
	}

	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT `+columns+` FROM `+table+`
WHERE channel = ANY($1)
ORDER BY created_at DESC
LIMIT $2`, names, limit)
	metrics.ObserveNetworkRequest("postgres", table+"_list_recent", table, start, err)
	if err != nil {
		return nil, storeErr(table+"_list_recent", err)
	}
	defer rows.Close()

	var items []domain.FeedItem
	for rows.Next() {
		switch kind {
		case domain.KindEvent:
			ev, err := scanEvent(rows)
			if err != nil {
				return nil, storeErr(table+"_scan", err)
			}
			items = append(items, domain.EventItem(ev))
		case domain.KindTask:
			task, err := scanTask(rows)
			if err != nil {
				return nil, storeErr(table+"_scan", err)
			}
			items = append(items, domain.TaskItem(task))
		default:
			var a domain.Announcement
			if err := rows.Scan(scanBase(&a.ItemBase)...); err != nil {
				return nil, storeErr(table+"_scan", err)
			}
			items = append(items, domain.AnnouncementItem(a))
		}
	}
	return items, storeErr(table+"_list_recent", rows.Err())
}

// ListEventsStartingBetween реализует domain.ItemRepo.
func (p *Postgres) ListEventsStartingBetween(ctx context.Context, from, to time.Time) ([]domain.Event, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT `+eventColumns+` FROM events
WHERE start_date >= $1 AND start_date <= $2
ORDER BY start_date ASC`, from.UTC(), to.UTC())
	metrics.ObserveNetworkRequest("postgres", "events_list_range", "events", start, err)
	if err != nil {
		return nil, storeErr("events_list_range", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, storeErr("events_scan", err)
		}
		events = append(events, ev)
	}
	return events, storeErr("events_list_range", rows.Err())
}

// ListTasksForMember реализует domain.ItemRepo.
func (p *Postgres) ListTasksForMember(ctx context.Context, userID string, status domain.TaskStatus) ([]domain.Task, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT `+taskColumns+` FROM tasks
WHERE $1 = ANY(assigned_members) AND ($2 = '' OR status = $2)
ORDER BY deadline ASC NULLS LAST`, userID, string(status))
	metrics.ObserveNetworkRequest("postgres", "tasks_list_member", "tasks", start, err)
	if err != nil {
		return nil, storeErr("tasks_list_member", err)
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, storeErr("tasks_scan", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, storeErr("tasks_list_member", rows.Err())
}

// GetEvent реализует domain.ItemRepo.
func (p *Postgres) GetEvent(ctx context.Context, id string) (domain.Event, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	ev, err := scanEvent(p.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id=$1`, id))
	metrics.ObserveNetworkRequest("postgres", "events_get", "events", start, ignoreNoRows(err))
	if err != nil {
		return domain.Event{}, storeErr("events_get", err)
	}
	return ev, nil
}

// CreateItem реализует domain.ItemRepo. Идентификатор присваивается хранилищем.
func (p *Postgres) CreateItem(ctx context.Context, item domain.FeedItem) (string, error) {
	table, err := tableFor(item.Kind)
	if err != nil {
		return "", err
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	id := uuid.NewString()
	base := []any{id, item.AuthorID, item.Title, item.Description, string(item.Channel), item.CreatedAt.UTC(), item.UpdatedAt.UTC()}

	var (
		query string
		args  []any
	)
	switch item.Kind {
	case domain.KindEvent:
		details := domain.EventDetails{}
		if item.Event != nil {
			details = *item.Event
		}
		query = `INSERT INTO events (` + eventColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), $11, $12)`
		args = append(base, details.StartDate.UTC(), details.EndDate.UTC(), details.Location, details.RequiredMembers, members(details.AssignedMembers))
	case domain.KindTask:
		details := domain.TaskDetails{Status: domain.TaskPending}
		if item.Task != nil {
			details = *item.Task
		}
		query = `INSERT INTO tasks (` + taskColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
		args = append(base, details.Deadline, string(details.Status), members(details.AssignedMembers))
	default:
		query = `INSERT INTO announcements (` + baseColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`
		args = base
	}

	start := time.Now()
	_, err = p.pool.Exec(ctx, query, args...)
	metrics.ObserveNetworkRequest("postgres", table+"_insert", table, start, err)
	if err != nil {
		return "", storeErr(table+"_insert", err)
	}
	return id, nil
}

// UpdateItem реализует domain.ItemRepo.
func (p *Postgres) UpdateItem(ctx context.Context, kind domain.ItemKind, id string, patch domain.ItemPatch) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}
	set, args := itemPatchSet(patch)
	if len(set) == 0 {
		return nil
	}
	set = append(set, "updated_at = now()")
	args = append(args, id)

	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	res, err := p.pool.Exec(ctx, `UPDATE `+table+` SET `+strings.Join(set, ", ")+` WHERE id=$`+strconv.Itoa(len(args)), args...)
	metrics.ObserveNetworkRequest("postgres", table+"_update", table, start, err)
	if err != nil {
		return storeErr(table+"_update", err)
	}
	if res.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s %s", domain.ErrNotFound, table, id)
	}
	return nil
}

// itemPatchSet строит SET-часть запроса из заданных полей патча.
func itemPatchSet(patch domain.ItemPatch) ([]string, []any) {
	b := &setBuilder{}
	if patch.Title != nil {
		b.add("title", *patch.Title)
	}
	if patch.Description != nil {
		b.add("description", *patch.Description)
	}
	if patch.Channel != nil {
		b.add("channel", string(*patch.Channel))
	}
	if patch.StartDate != nil {
		b.add("start_date", patch.StartDate.UTC())
	}
	if patch.EndDate != nil {
		b.add("end_date", patch.EndDate.UTC())
	}
	if patch.Location != nil {
		b.add("location", *patch.Location)
	}
	if patch.RequiredMembers != nil {
		b.add("required_members", *patch.RequiredMembers)
	}
	if patch.AssignedMembers != nil {
		b.add("assigned_members", members(*patch.AssignedMembers))
	}
	if patch.Deadline != nil {
		b.add("deadline", patch.Deadline.UTC())
	}
	if patch.Status != nil {
		b.add("status", string(*patch.Status))
	}
	return b.set, b.args
}

type setBuilder struct {
	set  []string
	args []any
}

func (b *setBuilder) add(column string, value any) {
	b.args = append(b.args, value)
	b.set = append(b.set, column+" = $"+strconv.Itoa(len(b.args)))
}

func members(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

// DeleteItem реализует domain.ItemRepo.
func (p *Postgres) DeleteItem(ctx context.Context, kind domain.ItemKind, id string) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	res, err := p.pool.Exec(ctx, `DELETE FROM `+table+` WHERE id=$1`, id)
	metrics.ObserveNetworkRequest("postgres", table+"_delete", table, start, err)
	if err != nil {
		return storeErr(table+"_delete", err)
	}
	if res.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s %s", domain.ErrNotFound, table, id)
	}
	return nil
}

const userColumns = "id, first_name, last_name, email, birth_date, pledging_session, aka, status, exec, push_token, created_at, last_login_at"

func scanUser(row rowScanner) (domain.User, error) {
	var (
		u         domain.User
		birthDate sql.NullTime
		pushToken sql.NullString
		lastLogin sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &birthDate, &u.PledgingSession, &u.Aka, &u.Status, &u.Exec, &pushToken, &u.CreatedAt, &lastLogin); err != nil {
		return domain.User{}, err
	}
	if birthDate.Valid {
		u.BirthDate = birthDate.Time
	}
	if lastLogin.Valid {
		u.LastLoginAt = lastLogin.Time
	}
	u.PushToken = pushToken.String
	return u, nil
}

// ListUsers реализует domain.UserRepo.
func (p *Postgres) ListUsers(ctx context.Context) ([]domain.User, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY last_name, first_name`)
	metrics.ObserveNetworkRequest("postgres", "users_list", "users", start, err)
	if err != nil {
		return nil, storeErr("users_list", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, storeErr("users_scan", err)
		}
		users = append(users, u)
	}
	return users, storeErr("users_list", rows.Err())
}

// GetUser реализует domain.UserRepo.
func (p *Postgres) GetUser(ctx context.Context, id string) (domain.User, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	u, err := scanUser(p.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id))
	metrics.ObserveNetworkRequest("postgres", "users_get", "users", start, ignoreNoRows(err))
	if err != nil {
		return domain.User{}, storeErr("users_get", err)
	}
	return u, nil
}

// CreateUser реализует domain.UserRepo. Существующий профиль перезаписывается.
func (p *Postgres) CreateUser(ctx context.Context, u domain.User) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO users (`+userColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), $11, $12)
ON CONFLICT (id) DO UPDATE SET first_name = EXCLUDED.first_name, last_name = EXCLUDED.last_name, email = EXCLUDED.email,
  birth_date = EXCLUDED.birth_date, pledging_session = EXCLUDED.pledging_session, aka = EXCLUDED.aka, status = EXCLUDED.status,
  exec = EXCLUDED.exec, push_token = EXCLUDED.push_token, last_login_at = EXCLUDED.last_login_at
`, u.ID, u.FirstName, u.LastName, u.Email, nullTime(u.BirthDate), u.PledgingSession, u.Aka, string(u.Status), string(u.Exec), u.PushToken, u.CreatedAt.UTC(), nullTime(u.LastLoginAt))
	metrics.ObserveNetworkRequest("postgres", "users_upsert", "users", start, err)
	return storeErr("users_upsert", err)
}

// UpdateUser реализует domain.UserRepo.
func (p *Postgres) UpdateUser(ctx context.Context, id string, patch domain.UserPatch) error {
	b := &setBuilder{}
	if patch.FirstName != nil {
		b.add("first_name", *patch.FirstName)
	}
	if patch.LastName != nil {
		b.add("last_name", *patch.LastName)
	}
	if patch.Email != nil {
		b.add("email", *patch.Email)
	}
	if patch.BirthDate != nil {
		b.add("birth_date", nullTime(*patch.BirthDate))
	}
	if patch.PledgingSession != nil {
		b.add("pledging_session", *patch.PledgingSession)
	}
	if patch.Aka != nil {
		b.add("aka", *patch.Aka)
	}
	if patch.Status != nil {
		b.add("status", string(*patch.Status))
	}
	if patch.Exec != nil {
		b.add("exec", string(*patch.Exec))
	}
	if patch.LastLoginAt != nil {
		b.add("last_login_at", nullTime(*patch.LastLoginAt))
	}
	if patch.PushToken != nil {
		b.add("push_token", sql.NullString{String: *patch.PushToken, Valid: *patch.PushToken != ""})
	}
	if len(b.set) == 0 {
		_, err := p.GetUser(ctx, id)
		return err
	}
	args := append(b.args, id)

	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	res, err := p.pool.Exec(ctx, `UPDATE users SET `+strings.Join(b.set, ", ")+` WHERE id=$`+strconv.Itoa(len(args)), args...)
	metrics.ObserveNetworkRequest("postgres", "users_update", "users", start, err)
	if err != nil {
		return storeErr("users_update", err)
	}
	if res.RowsAffected() == 0 {
		return fmt.Errorf("%w: users %s", domain.ErrNotFound, id)
	}
	return nil
}

// CreateNotification реализует domain.NotificationRepo.
func (p *Postgres) CreateNotification(ctx context.Context, n domain.NotificationRecord) (string, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	id := uuid.NewString()
	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO notifications (id, event_id, title, body, scheduled_time, sent)
VALUES ($1, $2, $3, $4, $5, $6)
`, id, n.EventID, n.Title, n.Body, n.ScheduledTime.UTC(), n.Sent)
	metrics.ObserveNetworkRequest("postgres", "notifications_insert", "notifications", start, err)
	if err != nil {
		return "", storeErr("notifications_insert", err)
	}
	return id, nil
}

// ListDueNotifications реализует domain.NotificationRepo.
func (p *Postgres) ListDueNotifications(ctx context.Context, now time.Time, limit int) ([]domain.NotificationRecord, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, event_id, title, body, scheduled_time, sent
FROM notifications
WHERE NOT sent AND scheduled_time <= $1
ORDER BY scheduled_time ASC
LIMIT $2
`, now.UTC(), limit)
	metrics.ObserveNetworkRequest("postgres", "notifications_list_due", "notifications", start, err)
	if err != nil {
		return nil, storeErr("notifications_list_due", err)
	}
	defer rows.Close()

	var out []domain.NotificationRecord
	for rows.Next() {
		var n domain.NotificationRecord
		if err := rows.Scan(&n.ID, &n.EventID, &n.Title, &n.Body, &n.ScheduledTime, &n.Sent); err != nil {
			return nil, storeErr("notifications_scan", err)
		}
		out = append(out, n)
	}
	return out, storeErr("notifications_list_due", rows.Err())
}

// MarkNotificationSent реализует domain.NotificationRepo.
func (p *Postgres) MarkNotificationSent(ctx context.Context, id string) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	res, err := p.pool.Exec(ctx, `UPDATE notifications SET sent = true WHERE id=$1`, id)
	metrics.ObserveNetworkRequest("postgres", "notifications_mark_sent", "notifications", start, err)
	if err != nil {
		return storeErr("notifications_mark_sent", err)
	}
	if res.RowsAffected() == 0 {
		return fmt.Errorf("%w: notifications %s", domain.ErrNotFound, id)
	}
	return nil
}

// RecordBusinessMetric сохраняет бизнесовую метрику в БД.
func (p *Postgres) RecordBusinessMetric(ctx context.Context, metric domain.BusinessMetric) error {
	if metric.Event == "" {
		return nil
	}
	if metric.OccurredAt.IsZero() {
		metric.OccurredAt = time.Now().UTC()
	}

	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var payload []byte
	if metric.Metadata != nil {
		if data, err := json.Marshal(metric.Metadata); err == nil {
			payload = data
		}
	}

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO business_metrics (event, user_id, item_id, metadata, occurred_at)
VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5)
`, metric.Event, metric.UserID, metric.ItemID, payload, metric.OccurredAt)
	metrics.ObserveNetworkRequest("postgres", "business_metrics_insert", "business_metrics", start, err)
	return storeErr("business_metrics_insert", err)
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func ignoreNoRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	return err
}
