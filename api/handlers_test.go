package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/mohdragon010/taskflow/domain"
)

// fakeStore is an in-memory Store with the same semantics as the real one:
// store-assigned IDs and timestamps, per-user isolation, silent deletes.
type fakeStore struct {
	mu    sync.Mutex
	seq   int
	tasks map[string][]domain.Task
	accs  map[string]domain.Account

	createCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tasks: make(map[string][]domain.Task),
		accs:  make(map[string]domain.Account),
	}
}

func (f *fakeStore) CreateTask(ctx context.Context, userID, title string) (domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	f.seq++
	task := domain.Task{
		ID:        fmt.Sprintf("task-%d", f.seq),
		Title:     title,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}
	f.tasks[userID] = append(f.tasks[userID], task)
	return task, nil
}

func (f *fakeStore) UpdateTask(ctx context.Context, userID, id string, patch domain.TaskPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, task := range f.tasks[userID] {
		if task.ID != id {
			continue
		}
		if patch.Title != nil {
			task.Title = *patch.Title
		}
		if patch.Completed != nil {
			task.Completed = *patch.Completed
		}
		f.tasks[userID][i] = task
		return nil
	}
	return domain.ErrTaskNotFound
}

func (f *fakeStore) DeleteTask(ctx context.Context, userID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.tasks[userID]
	for i, task := range list {
		if task.ID == id {
			f.tasks[userID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *fakeStore) FetchTasks(ctx context.Context, userID string) ([]domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Task, len(f.tasks[userID]))
	copy(out, f.tasks[userID])
	domain.SortByCreatedAt(out)
	return out, nil
}

func (f *fakeStore) CreateAccount(ctx context.Context, acc domain.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.accs[acc.Email]; ok {
		return domain.ErrAccountExists
	}
	f.accs[acc.Email] = acc
	return nil
}

func (f *fakeStore) FetchAccountByEmail(ctx context.Context, email string) (domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acc, ok := f.accs[email]
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	return acc, nil
}

func (f *fakeStore) UpdateDisplayName(ctx context.Context, email, displayName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	acc, ok := f.accs[email]
	if !ok {
		return domain.ErrAccountNotFound
	}
	acc.DisplayName = displayName
	f.accs[email] = acc
	return nil
}

// mockAuth treats the bearer token itself as the user ID.
type mockAuth struct{}

func (mockAuth) Principal(_ context.Context, authHeader string) (Principal, error) {
	uid := strings.TrimPrefix(authHeader, "Bearer ")
	if uid == "" || uid == authHeader {
		return Principal{}, errMissingAuthorization
	}
	return Principal{UserID: uid, Email: uid + "@example.com", SessionID: "sid-" + uid}, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.ChangeEvent
}

func (n *recordingNotifier) Publish(_ context.Context, ev domain.ChangeEvent) {
	n.mu.Lock()
	n.events = append(n.events, ev)
	n.mu.Unlock()
}

func (n *recordingNotifier) Events() []domain.ChangeEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]domain.ChangeEvent, len(n.events))
	copy(out, n.events)
	return out
}

func doRequest(e *echo.Echo, method, path, user, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if user != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+user)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func newTestServer(store Store, notifier Notifier) *echo.Echo {
	e := echo.New()
	logger := log.New()
	Register(e, store, mockAuth{}, nil, &stubSessions{}, nil, notifier, NewSnapshotBroker(), logger)
	return e
}

func TestCreateTask(t *testing.T) {
	store := newFakeStore()
	notifier := &recordingNotifier{}
	e := newTestServer(store, notifier)

	rec := doRequest(e, http.MethodPost, "/api/tasks", "user-1", `{"title":"  write tests  "}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}

	var task domain.Task
	if err := sonic.ConfigStd.Unmarshal(rec.Body.Bytes(), &task); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if task.ID == "" {
		t.Fatal("expected server-assigned id")
	}
	if task.Title != "write tests" {
		t.Fatalf("expected trimmed title, got %q", task.Title)
	}
	if task.Completed {
		t.Fatal("new tasks must start incomplete")
	}
	if task.UserID != "user-1" {
		t.Fatalf("unexpected owner: %q", task.UserID)
	}
	if task.CreatedAt.IsZero() {
		t.Fatal("expected server-assigned creation time")
	}

	events := notifier.Events()
	if len(events) != 1 || events[0].Type != domain.TaskCreated || events[0].EntityID != task.ID {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestCreateTaskRejectsBlankTitle(t *testing.T) {
	store := newFakeStore()
	e := newTestServer(store, &recordingNotifier{})

	rec := doRequest(e, http.MethodPost, "/api/tasks", "user-1", `{"title":"   "}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if store.createCalls != 0 {
		t.Fatal("store must not be touched for a blank title")
	}
}

func TestCreateTaskRequiresAuth(t *testing.T) {
	e := newTestServer(newFakeStore(), &recordingNotifier{})
	rec := doRequest(e, http.MethodPost, "/api/tasks", "", `{"title":"x"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func TestToggleTaskTwiceRestoresState(t *testing.T) {
	store := newFakeStore()
	e := newTestServer(store, &recordingNotifier{})

	task, err := store.CreateTask(context.Background(), "user-1", "flip me")
	if err != nil {
		t.Fatalf("seed task: %v", err)
	}

	for i, body := range []string{`{"completed":true}`, `{"completed":false}`} {
		rec := doRequest(e, http.MethodPatch, "/api/tasks/"+task.ID, "user-1", body)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("toggle %d: unexpected status %d", i, rec.Code)
		}
	}

	tasks, _ := store.FetchTasks(context.Background(), "user-1")
	if len(tasks) != 1 || tasks[0].Completed {
		t.Fatalf("expected original completion state, got %+v", tasks)
	}
}

func TestUpdateTaskTitleOnly(t *testing.T) {
	store := newFakeStore()
	e := newTestServer(store, &recordingNotifier{})

	task, _ := store.CreateTask(context.Background(), "user-1", "old title")
	done := domain.TaskPatch{Completed: boolPtr(true)}
	if err := store.UpdateTask(context.Background(), "user-1", task.ID, done); err != nil {
		t.Fatalf("seed completion: %v", err)
	}

	rec := doRequest(e, http.MethodPatch, "/api/tasks/"+task.ID, "user-1", `{"title":"new title"}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("unexpected status: %d", rec.Code)
	}

	tasks, _ := store.FetchTasks(context.Background(), "user-1")
	if tasks[0].Title != "new title" {
		t.Fatalf("title not updated: %q", tasks[0].Title)
	}
	if !tasks[0].Completed {
		t.Fatal("completion state must survive a title-only edit")
	}
}

func TestUpdateTaskEmptyPatch(t *testing.T) {
	e := newTestServer(newFakeStore(), &recordingNotifier{})
	rec := doRequest(e, http.MethodPatch, "/api/tasks/some-id", "user-1", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func TestUpdateTaskNotFound(t *testing.T) {
	e := newTestServer(newFakeStore(), &recordingNotifier{})
	rec := doRequest(e, http.MethodPatch, "/api/tasks/ghost", "user-1", `{"completed":true}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func TestDeleteTaskIdempotent(t *testing.T) {
	store := newFakeStore()
	notifier := &recordingNotifier{}
	e := newTestServer(store, notifier)

	task, _ := store.CreateTask(context.Background(), "user-1", "remove me")

	for i := 0; i < 2; i++ {
		rec := doRequest(e, http.MethodDelete, "/api/tasks/"+task.ID, "user-1", "")
		if rec.Code != http.StatusNoContent {
			t.Fatalf("delete %d: unexpected status %d", i, rec.Code)
		}
	}

	tasks, _ := store.FetchTasks(context.Background(), "user-1")
	if len(tasks) != 0 {
		t.Fatalf("expected no tasks, got %+v", tasks)
	}
	if events := notifier.Events(); len(events) != 2 {
		t.Fatalf("expected an event per delete call, got %d", len(events))
	}
}

func TestGetTasksOwnerIsolation(t *testing.T) {
	store := newFakeStore()
	e := newTestServer(store, &recordingNotifier{})

	if _, err := store.CreateTask(context.Background(), "user-1", "mine"); err != nil {
		t.Fatalf("seed task: %v", err)
	}
	if _, err := store.CreateTask(context.Background(), "user-2", "theirs"); err != nil {
		t.Fatalf("seed task: %v", err)
	}

	rec := doRequest(e, http.MethodGet, "/api/tasks", "user-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var resp tasksResponse
	if err := sonic.ConfigStd.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Tasks) != 1 || resp.Tasks[0].Title != "mine" {
		t.Fatalf("unexpected tasks: %+v", resp.Tasks)
	}
}

func TestGetTasksNewestFirst(t *testing.T) {
	store := newFakeStore()
	e := newTestServer(store, &recordingNotifier{})

	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	store.tasks["user-1"] = []domain.Task{
		{ID: "a", Title: "first", UserID: "user-1", CreatedAt: base},
		{ID: "b", Title: "second", UserID: "user-1", CreatedAt: base.Add(time.Hour)},
	}

	rec := doRequest(e, http.MethodGet, "/api/tasks", "user-1", "")
	var resp tasksResponse
	if err := sonic.ConfigStd.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Tasks[0].ID != "b" || resp.Tasks[1].ID != "a" {
		t.Fatalf("unexpected order: %+v", resp.Tasks)
	}
}

func TestRejectsUnknownFields(t *testing.T) {
	store := newFakeStore()
	e := newTestServer(store, &recordingNotifier{})

	rec := doRequest(e, http.MethodPost, "/api/tasks", "user-1", `{"title":"x","owner":"someone-else"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if store.createCalls != 0 {
		t.Fatal("store must not be touched for an invalid body")
	}
}

func TestHealthz(t *testing.T) {
	e := newTestServer(newFakeStore(), &recordingNotifier{})
	rec := doRequest(e, http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func boolPtr(b bool) *bool { return &b }
