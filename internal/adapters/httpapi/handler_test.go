package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"chapter-hub/internal/adapters/memory"
	"chapter-hub/internal/domain"
	"chapter-hub/internal/usecase/channels"
	"chapter-hub/internal/usecase/feed"
	"chapter-hub/internal/usecase/items"
	"chapter-hub/internal/usecase/notify"
	"chapter-hub/internal/usecase/users"
)

type testAPI struct {
	store  *memory.Store
	router chi.Router
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	logger := zerolog.Nop()
	store := memory.New()
	feedUC := feed.NewService(store, nil, nil, logger)
	scheduler := notify.NewScheduler(store, nil, notify.DefaultReminderLead, logger)
	itemsUC := items.NewService(store, feedUC, scheduler, store, logger)
	directory := users.NewDirectory(store, logger)

	r := chi.NewRouter()
	NewHandler(feedUC, itemsUC, directory, channels.NewService(0), 0, logger).Mount(r)
	return &testAPI{store: store, router: r}
}

func (a *testAPI) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("не удалось разобрать ответ %q: %v", rec.Body.String(), err)
	}
	return v
}

type feedResponse struct {
	Items []domain.FeedItem `json:"items"`
}

func TestCreateTaskDeleteAndRefreshFeed(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/v1/tasks", `{"title":"Clean house","channelId":"pledges","assignedMembers":["u1"]}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("ожидали 201, получили %d: %s", rec.Code, rec.Body.String())
	}
	id := decode[map[string]string](t, rec)["id"]

	rec = api.do(t, http.MethodGet, "/api/v1/feed?channel=Pledges", "")
	list := decode[feedResponse](t, rec).Items
	if len(list) != 1 || list[0].ID != id || list[0].Kind != domain.KindTask || list[0].Task.Status != domain.TaskPending {
		t.Fatalf("ожидали созданную задачу в ленте: %+v", list)
	}

	if rec := api.do(t, http.MethodDelete, "/api/v1/tasks/"+id, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("ожидали 204, получили %d", rec.Code)
	}
	rec = api.do(t, http.MethodGet, "/api/v1/feed?channel=Pledges&refresh=true", "")
	if list := decode[feedResponse](t, rec).Items; len(list) != 0 {
		t.Fatalf("задача должна исчезнуть из ленты: %+v", list)
	}
	if rec := api.do(t, http.MethodDelete, "/api/v1/tasks/"+id, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("повторное удаление должно вернуть 404, получили %d", rec.Code)
	}
}

func TestUpdateInvalidatesFeed(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(t, http.MethodPost, "/api/v1/announcements", `{"title":"Dues","channelId":"General"}`)
	id := decode[map[string]string](t, rec)["id"]
	_ = api.do(t, http.MethodGet, "/api/v1/feed", "")

	if rec := api.do(t, http.MethodPatch, "/api/v1/announcements/"+id, `{"title":"Dues reminder"}`); rec.Code != http.StatusNoContent {
		t.Fatalf("ожидали 204, получили %d: %s", rec.Code, rec.Body.String())
	}
	list := decode[feedResponse](t, api.do(t, http.MethodGet, "/api/v1/feed", "")).Items
	if len(list) != 1 || list[0].Title != "Dues reminder" {
		t.Fatalf("после обновления лента должна пересчитаться: %+v", list)
	}

	rec = api.do(t, http.MethodPatch, "/api/v1/announcements/"+id, `{"status":"completed"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("ожидали 400 для поля другого вида, получили %d", rec.Code)
	}
}

func TestCreateEventSchedulesAndCalendar(t *testing.T) {
	api := newTestAPI(t)
	start := time.Now().UTC().Add(3 * time.Hour).Truncate(time.Second)
	body := `{"title":"Formal","channelId":"Social","startDate":"` + start.Format(time.RFC3339) + `","endDate":"` + start.Add(time.Hour).Format(time.RFC3339) + `","assignedMembers":["u1"]}`
	rec := api.do(t, http.MethodPost, "/api/v1/events", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("ожидали 201, получили %d: %s", rec.Code, rec.Body.String())
	}
	if n := len(api.store.Notifications()); n != 1 {
		t.Fatalf("ожидали одно напоминание, получили %d", n)
	}

	path := "/api/v1/events?start=" + start.Add(-time.Hour).Format(time.RFC3339) + "&end=" + start.Add(time.Hour).Format(time.RFC3339)
	rec = api.do(t, http.MethodGet, path, "")
	events := decode[map[string][]domain.Event](t, rec)["events"]
	if len(events) != 1 || events[0].Title != "Formal" {
		t.Fatalf("ожидали событие в диапазоне: %+v", events)
	}

	rec = api.do(t, http.MethodGet, "/api/v1/calendar/"+start.Format("2006")+"/"+strings.TrimLeft(start.Format("01"), "0"), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("ожидали 200, получили %d: %s", rec.Code, rec.Body.String())
	}

	inverted := `{"title":"Bad","channelId":"Social","startDate":"2025-01-02T00:00:00Z","endDate":"2025-01-01T00:00:00Z"}`
	if rec := api.do(t, http.MethodPost, "/api/v1/events", inverted); rec.Code != http.StatusBadRequest {
		t.Fatalf("ожидали 400, получили %d", rec.Code)
	}
}

func TestValidationErrors(t *testing.T) {
	api := newTestAPI(t)
	cases := []struct {
		method, path, body string
		status             int
	}{
		{http.MethodGet, "/api/v1/feed?channel=Bowling", "", http.StatusBadRequest},
		{http.MethodGet, "/api/v1/feed?kind=memo", "", http.StatusBadRequest},
		{http.MethodGet, "/api/v1/feed?page_size=-1", "", http.StatusBadRequest},
		{http.MethodGet, "/api/v1/events?start=yesterday&end=today", "", http.StatusBadRequest},
		{http.MethodGet, "/api/v1/calendar/2025/13", "", http.StatusBadRequest},
		{http.MethodPost, "/api/v1/announcements", `{"title":"x","channelId":"Nope"}`, http.StatusBadRequest},
		{http.MethodPost, "/api/v1/announcements", `not json`, http.StatusBadRequest},
		{http.MethodGet, "/api/v1/users/u1/tasks?status=unknown", "", http.StatusBadRequest},
	}
	for _, tc := range cases {
		if rec := api.do(t, tc.method, tc.path, tc.body); rec.Code != tc.status {
			t.Fatalf("%s %s: ожидали %d, получили %d: %s", tc.method, tc.path, tc.status, rec.Code, rec.Body.String())
		}
	}
}

func TestStoreFailureIs503(t *testing.T) {
	api := newTestAPI(t)
	api.store.SetFailure(domain.ErrStoreUnavailable)
	rec := api.do(t, http.MethodGet, "/api/v1/feed?refresh=true", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("ожидали 503, получили %d", rec.Code)
	}
}

func TestUsersEndpoints(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(t, http.MethodPost, "/api/v1/users", `{"id":"u1","firstName":"Jean","lastName":"Dupont","status":"actif"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("ожидали 201, получили %d: %s", rec.Code, rec.Body.String())
	}

	u := decode[domain.User](t, api.do(t, http.MethodGet, "/api/v1/users/u1", ""))
	if u.Status != domain.StatusActif || u.Exec != domain.ExecNone {
		t.Fatalf("статус и роль должны нормализоваться: %+v", u)
	}

	if rec := api.do(t, http.MethodPatch, "/api/v1/users/u1", `{"expoPushToken":"ExponentPushToken[a]"}`); rec.Code != http.StatusNoContent {
		t.Fatalf("ожидали 204, получили %d", rec.Code)
	}
	u = decode[domain.User](t, api.do(t, http.MethodGet, "/api/v1/users/u1", ""))
	if u.PushToken != "ExponentPushToken[a]" {
		t.Fatalf("токен должен сохраниться: %+v", u)
	}

	name := decode[map[string]string](t, api.do(t, http.MethodGet, "/api/v1/users/u1/name", ""))["name"]
	if name != "Jean Dupont" {
		t.Fatalf("ожидали полное имя, получили %q", name)
	}
	name = decode[map[string]string](t, api.do(t, http.MethodGet, "/api/v1/users/ghost/name", ""))["name"]
	if name != users.UnknownUserName {
		t.Fatalf("ожидали Unknown User, получили %q", name)
	}
	if rec := api.do(t, http.MethodGet, "/api/v1/users/ghost", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("ожидали 404, получили %d", rec.Code)
	}
	if rec := api.do(t, http.MethodPatch, "/api/v1/users/ghost", `{"aka":"x"}`); rec.Code != http.StatusNotFound {
		t.Fatalf("ожидали 404, получили %d", rec.Code)
	}
}

func TestTasksAndChannels(t *testing.T) {
	api := newTestAPI(t)
	_ = api.do(t, http.MethodPost, "/api/v1/tasks", `{"title":"A","channelId":"General","assignedMembers":["u1"],"deadline":"2025-05-01T00:00:00Z"}`)
	_ = api.do(t, http.MethodPost, "/api/v1/tasks", `{"title":"B","channelId":"General","assignedMembers":["u2"]}`)

	tasks := decode[map[string][]domain.Task](t, api.do(t, http.MethodGet, "/api/v1/users/u1/tasks", ""))["tasks"]
	if len(tasks) != 1 || tasks[0].Title != "A" {
		t.Fatalf("ожидали одну задачу участника: %+v", tasks)
	}

	chs := decode[map[string][]domain.Channel](t, api.do(t, http.MethodGet, "/api/v1/channels", ""))["channels"]
	if len(chs) != len(domain.Channels()) {
		t.Fatalf("ожидали весь каталог, получили %v", chs)
	}
}
