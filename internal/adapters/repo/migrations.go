package repo

import (
	"context"
	"fmt"
	"time"

	"chapter-hub/internal/infra/metrics"
)

// migration хранит одну миграцию схемы с её версией.
type migration struct {
	version int
	sql     string
}

// migrations применяются по возрастанию версии, версии идут подряд начиная с 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS announcements (
	id          TEXT PRIMARY KEY,
	author_id   TEXT NOT NULL DEFAULT '',
	title       TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	channel     TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS announcements_channel_created_idx ON announcements (channel, created_at DESC);

CREATE TABLE IF NOT EXISTS events (
	id               TEXT PRIMARY KEY,
	author_id        TEXT NOT NULL DEFAULT '',
	title            TEXT NOT NULL DEFAULT '',
	description      TEXT NOT NULL DEFAULT '',
	channel          TEXT NOT NULL,
	start_date       TIMESTAMPTZ NOT NULL,
	end_date         TIMESTAMPTZ NOT NULL,
	location         TEXT,
	required_members INTEGER,
	assigned_members TEXT[] NOT NULL DEFAULT '{}',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	CHECK (start_date <= end_date)
);
CREATE INDEX IF NOT EXISTS events_channel_created_idx ON events (channel, created_at DESC);
CREATE INDEX IF NOT EXISTS events_start_idx ON events (start_date);

CREATE TABLE IF NOT EXISTS tasks (
	id               TEXT PRIMARY KEY,
	author_id        TEXT NOT NULL DEFAULT '',
	title            TEXT NOT NULL DEFAULT '',
	description      TEXT NOT NULL DEFAULT '',
	channel          TEXT NOT NULL,
	deadline         TIMESTAMPTZ,
	status           TEXT NOT NULL DEFAULT 'pending',
	assigned_members TEXT[] NOT NULL DEFAULT '{}',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS tasks_channel_created_idx ON tasks (channel, created_at DESC);
CREATE INDEX IF NOT EXISTS tasks_assigned_idx ON tasks USING GIN (assigned_members);

CREATE TABLE IF NOT EXISTS users (
	id               TEXT PRIMARY KEY,
	first_name       TEXT NOT NULL DEFAULT '',
	last_name        TEXT NOT NULL DEFAULT '',
	email            TEXT NOT NULL DEFAULT '',
	birth_date       TIMESTAMPTZ,
	pledging_session TEXT NOT NULL DEFAULT '',
	aka              TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL DEFAULT 'Pledge',
	exec             TEXT NOT NULL DEFAULT 'None',
	push_token       TEXT,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_login_at    TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS notifications (
	id             TEXT PRIMARY KEY,
	event_id       TEXT NOT NULL,
	title          TEXT NOT NULL DEFAULT '',
	body           TEXT NOT NULL DEFAULT '',
	scheduled_time TIMESTAMPTZ NOT NULL,
	sent           BOOLEAN NOT NULL DEFAULT false,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS notifications_due_idx ON notifications (scheduled_time) WHERE NOT sent;

CREATE TABLE IF NOT EXISTS business_metrics (
	id          BIGSERIAL PRIMARY KEY,
	event       TEXT NOT NULL,
	user_id     TEXT,
	item_id     TEXT,
	metadata    JSONB,
	occurred_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}

// Migrate применяет недостающие миграции по порядку.
func (p *Postgres) Migrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`)
	metrics.ObserveNetworkRequest("postgres", "schema_version_ensure", "schema_version", start, err)
	if err != nil {
		return fmt.Errorf("создание schema_version: %w", err)
	}

	current := 0
	start = time.Now()
	err = p.pool.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&current)
	metrics.ObserveNetworkRequest("postgres", "schema_version_get", "schema_version", start, err)
	if err != nil {
		return fmt.Errorf("чтение версии схемы: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		start = time.Now()
		_, err := p.pool.Exec(ctx, m.sql)
		metrics.ObserveNetworkRequest("postgres", "migrate", "schema_version", start, err)
		if err != nil {
			return fmt.Errorf("применение миграции v%d: %w", m.version, err)
		}
	}
	return nil
}
