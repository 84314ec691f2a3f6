package web

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Register wires the handler into an Echo instance.
func Register(e *echo.Echo, h *Handler) {
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	e.POST("/register", h.Register)
	e.POST("/login", h.Login)
	e.POST("/logout", h.Logout)
	e.GET("/set_lang/:lang", h.SetLang)
	e.GET("/toggle_theme", h.ToggleTheme)

	api := e.Group("/api", h.requireUser)
	api.GET("/tasks", h.ListTasks)
	api.POST("/task", h.CreateTask)
	api.GET("/task/:id", h.GetTask)
	api.PUT("/task/:id", h.UpdateTask)
	api.DELETE("/task/:id", h.DeleteTask)
	api.GET("/stats/:period", h.Stats)
}
