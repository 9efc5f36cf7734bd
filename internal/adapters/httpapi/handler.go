package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"chapter-hub/internal/domain"
	"chapter-hub/internal/usecase/calendar"
	"chapter-hub/internal/usecase/channels"
	"chapter-hub/internal/usecase/feed"
	"chapter-hub/internal/usecase/items"
	"chapter-hub/internal/usecase/users"
)

// Handler обслуживает HTTP API ленты, календаря, задач и профилей.
type Handler struct {
	feed     *feed.Service
	items    *items.Service
	users    *users.Directory
	channels *channels.Service
	pageSize int
	log      zerolog.Logger
}

// NewHandler создаёт обработчик. pageSize используется, если клиент не передал page_size.
func NewHandler(feedUC *feed.Service, itemsUC *items.Service, directory *users.Directory, channelUC *channels.Service, pageSize int, logger zerolog.Logger) *Handler {
	if pageSize <= 0 {
		pageSize = feed.DefaultPageSize
	}
	return &Handler{feed: feedUC, items: itemsUC, users: directory, channels: channelUC, pageSize: pageSize, log: logger}
}

// Mount регистрирует маршруты под /api/v1.
func (h *Handler) Mount(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/feed", h.getFeed)
		r.Get("/events", h.getEvents)
		r.Get("/calendar/{year}/{month}", h.getCalendar)
		r.Get("/channels", h.getChannels)

		for _, kind := range domain.FeedKinds {
			collection := "/" + kind.Collection()
			r.Post(collection, h.createItem(kind))
			r.Patch(collection+"/{id}", h.updateItem(kind))
			r.Delete(collection+"/{id}", h.deleteItem(kind))
		}

		r.Post("/users", h.createUser)
		r.Get("/users/{id}", h.getUser)
		r.Patch("/users/{id}", h.updateUser)
		r.Get("/users/{id}/name", h.getUserName)
		r.Get("/users/{id}/tasks", h.getTasks)
	})
}

func (h *Handler) getFeed(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	chs, err := h.channels.ParseOrAll(q["channel"])
	if err != nil {
		h.fail(w, err)
		return
	}
	query := feed.Query{Channels: chs, PageSize: h.pageSize, ForceRefresh: parseBool(q.Get("refresh"))}
	if raw := strings.TrimSpace(q.Get("kind")); raw != "" {
		kind, err := parseKind(raw)
		if err != nil {
			h.fail(w, err)
			return
		}
		query.Kind = kind
	}
	if raw := q.Get("page_size"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size <= 0 {
			writeError(w, http.StatusBadRequest, "page_size must be a positive integer")
			return
		}
		query.PageSize = size
	}
	list, err := h.feed.GetFeedItems(r.Context(), query)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": nonNil(list)})
}

func (h *Handler) getEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, err := time.Parse(time.RFC3339, q.Get("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "start must be RFC3339")
		return
	}
	end, err := time.Parse(time.RFC3339, q.Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "end must be RFC3339")
		return
	}
	h.writeEvents(w, r, start, end, parseBool(q.Get("refresh")))
}

func (h *Handler) getCalendar(w http.ResponseWriter, r *http.Request) {
	year, errYear := strconv.Atoi(chi.URLParam(r, "year"))
	month, errMonth := strconv.Atoi(chi.URLParam(r, "month"))
	if errYear != nil || errMonth != nil {
		writeError(w, http.StatusBadRequest, "year and month must be integers")
		return
	}
	start, end, err := calendar.MonthRange(year, month, r.URL.Query().Get("tz"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeEvents(w, r, start, end, parseBool(r.URL.Query().Get("refresh")))
}

func (h *Handler) writeEvents(w http.ResponseWriter, r *http.Request, start, end time.Time, refresh bool) {
	if start.After(end) {
		writeError(w, http.StatusBadRequest, "start must not be after end")
		return
	}
	events, err := h.feed.GetEvents(r.Context(), start, end, refresh)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": nonNil(events)})
}

func (h *Handler) getChannels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"channels": h.channels.Catalogue()})
}

func (h *Handler) getTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.feed.GetTasks(r.Context(), chi.URLParam(r, "id"), domain.TaskStatus(r.URL.Query().Get("status")))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": nonNil(tasks)})
}

// itemRequest: тело создания элемента любого вида; неприменимые поля игнорируются.
type itemRequest struct {
	AuthorID        string     `json:"authorId"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Channel         string     `json:"channelId"`
	StartDate       time.Time  `json:"startDate"`
	EndDate         time.Time  `json:"endDate"`
	Location        string     `json:"location"`
	RequiredMembers *int       `json:"requiredMembers"`
	AssignedMembers []string   `json:"assignedMembers"`
	Deadline        *time.Time `json:"deadline"`
	Status          string     `json:"status"`
}

func (h *Handler) createItem(kind domain.ItemKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var req itemRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		ch, err := domain.ParseChannel(req.Channel)
		if err != nil {
			h.fail(w, err)
			return
		}
		base := domain.ItemBase{AuthorID: req.AuthorID, Title: req.Title, Description: req.Description, Channel: ch}

		var id string
		switch kind {
		case domain.KindEvent:
			if req.StartDate.IsZero() || req.EndDate.IsZero() {
				writeError(w, http.StatusBadRequest, "startDate and endDate are required")
				return
			}
			id, err = h.items.CreateEvent(r.Context(), domain.Event{ItemBase: base, EventDetails: domain.EventDetails{
				StartDate:       req.StartDate,
				EndDate:         req.EndDate,
				Location:        req.Location,
				RequiredMembers: req.RequiredMembers,
				AssignedMembers: req.AssignedMembers,
			}})
		case domain.KindTask:
			id, err = h.items.CreateTask(r.Context(), domain.Task{ItemBase: base, TaskDetails: domain.TaskDetails{
				Deadline:        req.Deadline,
				Status:          domain.TaskStatus(req.Status),
				AssignedMembers: req.AssignedMembers,
			}})
		default:
			id, err = h.items.CreateAnnouncement(r.Context(), domain.Announcement{ItemBase: base})
		}
		if err != nil {
			h.fail(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"id": id})
	}
}

func (h *Handler) updateItem(kind domain.ItemKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var patch domain.ItemPatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := h.items.UpdateItem(r.Context(), kind, chi.URLParam(r, "id"), patch); err != nil {
			h.fail(w, err)
			return
		}
		h.invalidate(kind)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) deleteItem(kind domain.ItemKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.items.DeleteItem(r.Context(), kind, chi.URLParam(r, "id")); err != nil {
			h.fail(w, err)
			return
		}
		h.invalidate(kind)
		w.WriteHeader(http.StatusNoContent)
	}
}

// invalidate сбрасывает кэши после изменения или удаления элемента.
func (h *Handler) invalidate(kind domain.ItemKind) {
	h.feed.InvalidateFeed()
	if kind == domain.KindEvent {
		h.feed.ClearEventsCache()
	}
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var u domain.User
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(u.ID) == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	u.Status = domain.ParseUserStatus(string(u.Status))
	u.Exec = domain.ParseExecRole(string(u.Exec))
	if err := h.users.CreateUser(r.Context(), u); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": u.ID})
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	u, ok, err := h.users.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var patch domain.UserPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if patch.Status != nil {
		status := domain.ParseUserStatus(string(*patch.Status))
		patch.Status = &status
	}
	if patch.Exec != nil {
		exec := domain.ParseExecRole(string(*patch.Exec))
		patch.Exec = &exec
	}
	if err := h.users.UpdateUser(r.Context(), chi.URLParam(r, "id"), patch); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getUserName(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"name": h.users.GetUserFullName(chi.URLParam(r, "id"))})
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("api: ошибка обработки запроса")
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnknownKind),
		errors.Is(err, domain.ErrUnknownChannel),
		errors.Is(err, domain.ErrInvalidEventRange),
		errors.Is(err, domain.ErrFieldNotApplicable),
		errors.Is(err, channels.ErrChannelLimit):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func parseKind(raw string) (domain.ItemKind, error) {
	if kind := domain.ItemKind(strings.ToLower(raw)); kind.Valid() {
		return kind, nil
	}
	return domain.KindFromCollection(strings.ToLower(raw))
}

func parseBool(raw string) bool {
	v, err := strconv.ParseBool(raw)
	return err == nil && v
}

func nonNil[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}
