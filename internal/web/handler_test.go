package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/bekhruz1723-collab/sTaskManager/internal/model"
	"github.com/bekhruz1723-collab/sTaskManager/internal/repository"
	"github.com/bekhruz1723-collab/sTaskManager/internal/service"
)

func setupTestServer(t *testing.T) *echo.Echo {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}
	if err := db.AutoMigrate(&model.User{}, &model.Task{}); err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)

	userRepo := repository.NewUserRepository(db)
	taskRepo := repository.NewTaskRepository(db)

	e := echo.New()
	h := NewHandler(
		service.NewAuthService(userRepo),
		service.NewTaskService(taskRepo),
		service.NewStatsService(taskRepo),
		"test_secret",
	)
	Register(e, h)
	return e
}

// do sends one request, attaching the session cookies from an earlier
// response when given.
func do(e *echo.Echo, method, path, body string, auth *http.Response) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if auth != nil {
		for _, cookie := range auth.Cookies() {
			req.AddCookie(cookie)
		}
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func registerUser(t *testing.T, e *echo.Echo, username string) *http.Response {
	t.Helper()
	rec := do(e, http.MethodPost, "/register",
		fmt.Sprintf(`{"username":%q,"password":"correcthorse"}`, username), nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register %s: status %d, body %s", username, rec.Code, rec.Body.String())
	}
	return rec.Result()
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response %s: %v", rec.Body.String(), err)
	}
}

func TestRegisterValidationStatusCodes(t *testing.T) {
	e := setupTestServer(t)

	rec := do(e, http.MethodPost, "/register", `{"username":"","password":"correcthorse"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("blank username: status %d, want 400", rec.Code)
	}
	rec = do(e, http.MethodPost, "/register", `{"username":"alice","password":"short"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("short password: status %d, want 400", rec.Code)
	}

	registerUser(t, e, "alice")
	rec = do(e, http.MethodPost, "/register", `{"username":"alice","password":"correcthorse"}`, nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate username: status %d, want 409", rec.Code)
	}
}

func TestLoginStatusCodes(t *testing.T) {
	e := setupTestServer(t)
	registerUser(t, e, "alice")

	rec := do(e, http.MethodPost, "/login", `{"username":"alice","password":"wrongwrong"}`, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong password: status %d, want 401", rec.Code)
	}
	rec = do(e, http.MethodPost, "/login", `{"username":"alice","password":"correcthorse"}`, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("valid login: status %d, want 200", rec.Code)
	}
}

func TestAPIRequiresSession(t *testing.T) {
	e := setupTestServer(t)

	for _, probe := range []struct{ method, path string }{
		{http.MethodGet, "/api/tasks"},
		{http.MethodPost, "/api/task"},
		{http.MethodGet, "/api/stats/day"},
	} {
		rec := do(e, probe.method, probe.path, "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s without session: status %d, want 401", probe.method, probe.path, rec.Code)
		}
	}
}

func TestCreateAndListTasks(t *testing.T) {
	e := setupTestServer(t)
	auth := registerUser(t, e, "alice")

	rec := do(e, http.MethodPost, "/api/task",
		`{"title":"Release","priority":"high","deadline":"2026-09-30","subtasks":["changelog","","tag"]}`, auth)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status %d, body %s", rec.Code, rec.Body.String())
	}

	rec = do(e, http.MethodGet, "/api/tasks", "", auth)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status %d", rec.Code)
	}
	var tasks []service.TaskWithSubtasks
	decode(t, rec, &tasks)
	if len(tasks) != 1 {
		t.Fatalf("got %d tasks, want 1", len(tasks))
	}
	task := tasks[0]
	if task.Title != "Release" || task.Priority != model.PriorityHigh {
		t.Errorf("unexpected task: %+v", task.Task)
	}
	if len(task.Subtasks) != 2 {
		t.Errorf("got %d subtasks, want 2 (blank dropped)", len(task.Subtasks))
	}
	if task.ComputedStatus != model.StatusNotStarted {
		t.Errorf("computed status = %s", task.ComputedStatus)
	}
	if task.Deadline == nil || task.Deadline.Format("2006-01-02") != "2026-09-30" {
		t.Errorf("deadline not stored: %v", task.Deadline)
	}
}

func TestCreateTaskRejectsBadInput(t *testing.T) {
	e := setupTestServer(t)
	auth := registerUser(t, e, "alice")

	rec := do(e, http.MethodPost, "/api/task", `{"title":"   "}`, auth)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("blank title: status %d, want 400", rec.Code)
	}
	rec = do(e, http.MethodPost, "/api/task", `{"title":"x","deadline":"30/09/2026"}`, auth)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad deadline: status %d, want 400", rec.Code)
	}
}

func TestToggleCascadesOverHTTP(t *testing.T) {
	e := setupTestServer(t)
	auth := registerUser(t, e, "alice")

	rec := do(e, http.MethodPost, "/api/task", `{"title":"Root","subtasks":["a","b"]}`, auth)
	var created struct {
		ID uint `json:"id"`
	}
	decode(t, rec, &created)

	rec = do(e, http.MethodPut, fmt.Sprintf("/api/task/%d", created.ID), `{"action":"toggle"}`, auth)
	if rec.Code != http.StatusOK {
		t.Fatalf("toggle: status %d, body %s", rec.Code, rec.Body.String())
	}
	var toggled struct {
		Status model.Status `json:"status"`
	}
	decode(t, rec, &toggled)
	if toggled.Status != model.StatusDone {
		t.Errorf("status = %s, want %s", toggled.Status, model.StatusDone)
	}

	rec = do(e, http.MethodGet, fmt.Sprintf("/api/task/%d", created.ID), "", auth)
	var view service.TaskWithSubtasks
	decode(t, rec, &view)
	for _, sub := range view.Subtasks {
		if sub.Status != model.StatusDone {
			t.Errorf("subtask %d not cascaded: %s", sub.ID, sub.Status)
		}
	}
}

func TestForeignTaskForbidden(t *testing.T) {
	e := setupTestServer(t)
	alice := registerUser(t, e, "alice")
	mallory := registerUser(t, e, "mallory")

	rec := do(e, http.MethodPost, "/api/task", `{"title":"Private"}`, alice)
	var created struct {
		ID uint `json:"id"`
	}
	decode(t, rec, &created)

	path := fmt.Sprintf("/api/task/%d", created.ID)
	if rec := do(e, http.MethodGet, path, "", mallory); rec.Code != http.StatusForbidden {
		t.Errorf("foreign get: status %d, want 403", rec.Code)
	}
	if rec := do(e, http.MethodPut, path, `{"action":"toggle"}`, mallory); rec.Code != http.StatusForbidden {
		t.Errorf("foreign toggle: status %d, want 403", rec.Code)
	}
	if rec := do(e, http.MethodDelete, path, "", mallory); rec.Code != http.StatusForbidden {
		t.Errorf("foreign delete: status %d, want 403", rec.Code)
	}

	// still intact for the owner
	if rec := do(e, http.MethodGet, path, "", alice); rec.Code != http.StatusOK {
		t.Errorf("owner get after denials: status %d", rec.Code)
	}
}

func TestDeleteTaskOverHTTP(t *testing.T) {
	e := setupTestServer(t)
	auth := registerUser(t, e, "alice")

	rec := do(e, http.MethodPost, "/api/task", `{"title":"Doomed","subtasks":["x"]}`, auth)
	var created struct {
		ID uint `json:"id"`
	}
	decode(t, rec, &created)

	path := fmt.Sprintf("/api/task/%d", created.ID)
	if rec := do(e, http.MethodDelete, path, "", auth); rec.Code != http.StatusOK {
		t.Fatalf("delete: status %d", rec.Code)
	}
	if rec := do(e, http.MethodGet, path, "", auth); rec.Code != http.StatusNotFound {
		t.Errorf("get after delete: status %d, want 404", rec.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	e := setupTestServer(t)
	auth := registerUser(t, e, "alice")

	rec := do(e, http.MethodPost, "/api/task", `{"title":"One"}`, auth)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status %d", rec.Code)
	}

	rec = do(e, http.MethodGet, "/api/stats/day", "", auth)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats: status %d, body %s", rec.Code, rec.Body.String())
	}
	var stats service.Statistics
	decode(t, rec, &stats)
	if stats.Total != 1 || stats.Status.NotStarted != 1 {
		t.Errorf("stats = %+v", stats)
	}

	if rec := do(e, http.MethodGet, "/api/stats/decade", "", auth); rec.Code != http.StatusBadRequest {
		t.Errorf("bad period: status %d, want 400", rec.Code)
	}
}

func TestLogoutEndsSession(t *testing.T) {
	e := setupTestServer(t)
	auth := registerUser(t, e, "alice")

	rec := do(e, http.MethodPost, "/logout", "", auth)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout: status %d", rec.Code)
	}

	// the cleared cookie replaces the authenticated one
	cleared := rec.Result()
	if rec := do(e, http.MethodGet, "/api/tasks", "", cleared); rec.Code != http.StatusUnauthorized {
		t.Errorf("after logout: status %d, want 401", rec.Code)
	}
}

func TestSessionPreferences(t *testing.T) {
	e := setupTestServer(t)

	rec := do(e, http.MethodGet, "/set_lang/ru", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("set_lang ru: status %d", rec.Code)
	}
	rec = do(e, http.MethodGet, "/set_lang/fr", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("set_lang fr: status %d, want 400", rec.Code)
	}

	rec = do(e, http.MethodGet, "/toggle_theme", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("toggle_theme: status %d", rec.Code)
	}
	var theme struct {
		Theme string `json:"theme"`
	}
	decode(t, rec, &theme)
	if theme.Theme != "light" {
		t.Errorf("first toggle = %q, want light (dark is the default)", theme.Theme)
	}
}
