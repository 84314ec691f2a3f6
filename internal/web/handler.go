package web

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/bekhruz1723-collab/sTaskManager/internal/model"
	"github.com/bekhruz1723-collab/sTaskManager/internal/repository"
	"github.com/bekhruz1723-collab/sTaskManager/internal/service"
)

const (
	sessionName    = "taskmanager_session"
	contextUserKey = "userID"
)

// Handler serves the JSON API consumed by the web UI.
type Handler struct {
	auth     *service.AuthService
	tasks    *service.TaskService
	stats    *service.StatsService
	sessions *sessions.CookieStore
}

func NewHandler(auth *service.AuthService, tasks *service.TaskService, stats *service.StatsService, secretKey string) *Handler {
	store := sessions.NewCookieStore([]byte(secretKey))
	store.Options = &sessions.Options{
		Path:     "/",
		HttpOnly: true,
		MaxAge:   7 * 24 * 60 * 60,
	}
	return &Handler{auth: auth, tasks: tasks, stats: stats, sessions: store}
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type createTaskRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Priority    string   `json:"priority"`
	Deadline    string   `json:"deadline"`
	Subtasks    []string `json:"subtasks"`
}

type updateTaskRequest struct {
	Action string `json:"action"`
}

func (h *Handler) Register(c echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON payload")
	}

	user, err := h.auth.Register(c.Request().Context(), req.Username, req.Password)
	switch {
	case err == nil:
		// registration logs the user in right away
	case errors.Is(err, service.ErrUsernameRequired), errors.Is(err, service.ErrPasswordTooShort):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrUsernameTaken):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to register")
	}

	if err := h.saveUserSession(c, user.ID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to start session")
	}
	return c.JSON(http.StatusCreated, echo.Map{"success": true, "id": user.ID})
}

func (h *Handler) Login(c echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON payload")
	}

	user, err := h.auth.Login(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to log in")
	}

	if err := h.saveUserSession(c, user.ID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to start session")
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "id": user.ID})
}

func (h *Handler) Logout(c echo.Context) error {
	sess, _ := h.sessions.Get(c.Request(), sessionName)
	delete(sess.Values, "user_id")
	if err := sess.Save(c.Request(), c.Response()); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to end session")
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

func (h *Handler) ListTasks(c echo.Context) error {
	tasks, err := h.tasks.ListTasks(c.Request().Context(), userID(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list tasks")
	}
	return c.JSON(http.StatusOK, tasks)
}

func (h *Handler) CreateTask(c echo.Context) error {
	var req createTaskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON payload")
	}

	var deadline *time.Time
	if req.Deadline != "" {
		parsed, err := time.Parse("2006-01-02", req.Deadline)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "deadline must be YYYY-MM-DD")
		}
		deadline = &parsed
	}

	task, err := h.tasks.CreateTask(c.Request().Context(), userID(c), service.TaskInput{
		Title:       req.Title,
		Description: req.Description,
		Priority:    model.Priority(req.Priority),
		Deadline:    deadline,
		Subtasks:    req.Subtasks,
	})
	if err != nil {
		if errors.Is(err, service.ErrTitleRequired) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create task")
	}
	return c.JSON(http.StatusCreated, echo.Map{"success": true, "id": task.ID})
}

func (h *Handler) GetTask(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	view, err := h.tasks.GetTaskView(c.Request().Context(), userID(c), id)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, view)
	case errors.Is(err, gorm.ErrRecordNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "task not found")
	case errors.Is(err, repository.ErrAccessDenied):
		return echo.NewHTTPError(http.StatusForbidden, "access denied")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load task")
	}
}

// UpdateTask handles the two toggle actions. in_progress is never a valid
// target: the toggles only move between done and not_started.
func (h *Handler) UpdateTask(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	var req updateTaskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON payload")
	}

	ctx := c.Request().Context()
	var status model.Status
	switch req.Action {
	case "toggle":
		status, err = h.tasks.ToggleRoot(ctx, userID(c), id)
	case "toggle_subtask":
		status, err = h.tasks.ToggleSubtask(ctx, userID(c), id)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "unknown action")
	}

	if err != nil {
		if errors.Is(err, repository.ErrAccessDenied) {
			return echo.NewHTTPError(http.StatusForbidden, "access denied")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to update task")
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "status": status})
}

func (h *Handler) DeleteTask(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	if err := h.tasks.DeleteTask(c.Request().Context(), userID(c), id); err != nil {
		if errors.Is(err, repository.ErrAccessDenied) {
			return echo.NewHTTPError(http.StatusForbidden, "access denied")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to delete task")
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

func (h *Handler) Stats(c echo.Context) error {
	period, ok := service.ParsePeriod(c.Param("period"))
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "period must be one of hour, day, week, month, year")
	}

	stats, err := h.stats.Statistics(c.Request().Context(), userID(c), period, time.Now())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to compute statistics")
	}
	return c.JSON(http.StatusOK, stats)
}

// SetLang stores the UI language in the session. The core never reads it;
// the browser front end picks it up when rendering.
func (h *Handler) SetLang(c echo.Context) error {
	lang := c.Param("lang")
	switch lang {
	case "ru", "en", "uz":
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "unsupported language")
	}

	sess, _ := h.sessions.Get(c.Request(), sessionName)
	sess.Values["lang"] = lang
	if err := sess.Save(c.Request(), c.Response()); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to save session")
	}
	return c.JSON(http.StatusOK, echo.Map{"lang": lang})
}

// ToggleTheme flips the session theme between dark and light.
func (h *Handler) ToggleTheme(c echo.Context) error {
	sess, _ := h.sessions.Get(c.Request(), sessionName)
	theme, _ := sess.Values["theme"].(string)
	if theme == "" {
		theme = "dark"
	}
	if theme == "dark" {
		theme = "light"
	} else {
		theme = "dark"
	}
	sess.Values["theme"] = theme
	if err := sess.Save(c.Request(), c.Response()); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to save session")
	}
	return c.JSON(http.StatusOK, echo.Map{"theme": theme})
}

// requireUser resolves the authenticated user id from the session cookie.
func (h *Handler) requireUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		sess, err := h.sessions.Get(c.Request(), sessionName)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "login required")
		}
		id, ok := sess.Values["user_id"].(int)
		if !ok || id <= 0 {
			return echo.NewHTTPError(http.StatusUnauthorized, "login required")
		}
		c.Set(contextUserKey, uint(id))
		return next(c)
	}
}

func (h *Handler) saveUserSession(c echo.Context, id uint) error {
	sess, _ := h.sessions.Get(c.Request(), sessionName)
	sess.Values["user_id"] = int(id)
	return sess.Save(c.Request(), c.Response())
}

func userID(c echo.Context) uint {
	id, _ := c.Get(contextUserKey).(uint)
	return id
}

func pathID(c echo.Context) (uint, error) {
	raw := c.Param("id")
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "task id must be a number")
	}
	return uint(value), nil
}
