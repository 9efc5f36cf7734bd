package users

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"chapter-hub/internal/domain"
)

// UnknownUserName возвращается GetUserFullName для отсутствующих в кэше пользователей.
const UnknownUserName = "Unknown User"

// Directory: read-through кэш профилей поверх хранилища. Записи не вытесняются
// и не имеют TTL; сброс возможен только через Clear.
type Directory struct {
	repo domain.UserRepo
	log  zerolog.Logger

	mu    sync.RWMutex
	users map[string]domain.User
	// writes и epoch отмечают записи, начатые после чтения из хранилища:
	// такое чтение не попадает в кэш.
	writes map[string]uint64
	epoch  uint64
}

var _ domain.UserLookup = (*Directory)(nil)

// NewDirectory создаёт пустой справочник.
func NewDirectory(repo domain.UserRepo, logger zerolog.Logger) *Directory {
	return &Directory{repo: repo, log: logger, users: make(map[string]domain.User), writes: make(map[string]uint64)}
}

// Initialize загружает всех пользователей из хранилища. Профили, записанные
// во время загрузки, остаются в кэше в своём новом состоянии.
func (d *Directory) Initialize(ctx context.Context) error {
	d.mu.RLock()
	epoch := d.epoch
	writes := make(map[string]uint64, len(d.writes))
	for id, n := range d.writes {
		writes[id] = n
	}
	d.mu.RUnlock()

	all, err := d.repo.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("загрузка пользователей: %w", err)
	}
	d.mu.Lock()
	for _, u := range all {
		if d.epoch != epoch {
			break
		}
		if _, ok := d.users[u.ID]; ok || d.writes[u.ID] != writes[u.ID] {
			continue
		}
		d.users[u.ID] = u
	}
	size := len(d.users)
	d.mu.Unlock()
	d.log.Info().Int("users", size).Msg("users: справочник загружен")
	return nil
}

// GetUser возвращает профиль из кэша либо читает его из хранилища и кэширует.
// Отсутствующий пользователь не считается ошибкой.
func (d *Directory) GetUser(ctx context.Context, id string) (domain.User, bool, error) {
	d.mu.RLock()
	u, ok := d.users[id]
	epoch, writes := d.epoch, d.writes[id]
	d.mu.RUnlock()
	if ok {
		return u, true, nil
	}

	u, err := d.repo.GetUser(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, false, nil
	}
	if err != nil {
		return domain.User{}, false, fmt.Errorf("получение пользователя: %w", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if cached, ok := d.users[id]; ok {
		return cached, true, nil
	}
	if d.epoch == epoch && d.writes[id] == writes {
		d.users[id] = u
	}
	return u, true, nil
}

// CreateUser записывает профиль в хранилище и в кэш.
func (d *Directory) CreateUser(ctx context.Context, user domain.User) error {
	if user.ID == "" {
		return fmt.Errorf("создание пользователя: пустой идентификатор")
	}
	d.touch(user.ID)
	if err := d.repo.CreateUser(ctx, user); err != nil {
		return fmt.Errorf("создание пользователя: %w", err)
	}
	d.mu.Lock()
	d.writes[user.ID]++
	d.users[user.ID] = user
	d.mu.Unlock()
	return nil
}

// UpdateUser обновляет профиль в хранилище и дописывает те же поля в кэшированную копию.
func (d *Directory) UpdateUser(ctx context.Context, id string, patch domain.UserPatch) error {
	d.touch(id)
	if err := d.repo.UpdateUser(ctx, id, patch); err != nil {
		return fmt.Errorf("обновление пользователя: %w", err)
	}
	d.mu.Lock()
	d.writes[id]++
	if u, ok := d.users[id]; ok {
		patch.Apply(&u)
		d.users[id] = u
	}
	d.mu.Unlock()
	return nil
}

// GetUserFullName возвращает имя из кэша без обращения к хранилищу.
func (d *Directory) GetUserFullName(id string) string {
	d.mu.RLock()
	u, ok := d.users[id]
	d.mu.RUnlock()
	if !ok {
		return UnknownUserName
	}
	return u.FullName()
}

// Clear полностью очищает кэш.
func (d *Directory) Clear() {
	d.mu.Lock()
	d.users = make(map[string]domain.User)
	d.writes = make(map[string]uint64)
	d.epoch++
	d.mu.Unlock()
}

// touch отмечает начало записи профиля. Вместе с отметкой после записи это не даёт
// параллельному чтению закэшировать профиль в состоянии до записи.
func (d *Directory) touch(id string) {
	d.mu.Lock()
	d.writes[id]++
	d.mu.Unlock()
}

// Len возвращает количество закэшированных профилей.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.users)
}
