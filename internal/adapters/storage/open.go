package storage

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"chapter-hub/internal/adapters/memory"
	"chapter-hub/internal/adapters/repo"
	"chapter-hub/internal/domain"
	"chapter-hub/internal/infra/config"
	"chapter-hub/internal/infra/db"
)

// Backend объединяет репозитории одного хранилища.
type Backend struct {
	Items         domain.ItemRepo
	Users         domain.UserRepo
	Notifications domain.NotificationRepo
	Analytics     domain.BusinessMetricRepo
	// InProcess означает, что данные живут только в памяти этого процесса.
	InProcess bool
	Close     func()
}

// Open подключает Postgres по PG_DSN и применяет миграции. Без PG_DSN возвращается
// хранилище в памяти.
func Open(ctx context.Context, cfg config.AppConfig, logger zerolog.Logger) (Backend, error) {
	if cfg.PGDSN == "" {
		logger.Warn().Msg("storage: PG_DSN не задан, данные хранятся в памяти процесса")
		store := memory.New()
		return Backend{Items: store, Users: store, Notifications: store, Analytics: store, InProcess: true, Close: func() {}}, nil
	}
	pool, err := db.Connect(cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		return Backend{}, fmt.Errorf("подключение к БД: %w", err)
	}
	pg := repo.NewPostgres(pool)
	if err := pg.Migrate(ctx); err != nil {
		pool.Close()
		return Backend{}, fmt.Errorf("миграции: %w", err)
	}
	return Backend{Items: pg, Users: pg, Notifications: pg, Analytics: pg, Close: pool.Close}, nil
}
