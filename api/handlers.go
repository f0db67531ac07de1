package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/mohdragon010/taskflow/domain"
)

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, store Store, auth Authenticator, issuer TokenIssuer, sessions SessionStore, federated FederatedVerifier, notifier Notifier, broker *SnapshotBroker, logger *log.Logger) {
	ident := &identityAPI{
		store:     store,
		auth:      auth,
		issuer:    issuer,
		sessions:  sessions,
		federated: federated,
		notifier:  notifier,
		logger:    logger,
	}
	e.POST("/api/signup", ident.signup)
	e.POST("/api/login", ident.login)
	e.POST("/api/federated", ident.federatedLogin)
	e.POST("/api/logout", ident.logout)
	e.GET("/api/session", ident.currentSession)
	e.PATCH("/api/profile", ident.updateProfile)

	e.GET("/api/tasks", getTasks(store, auth, logger))
	e.POST("/api/tasks", createTask(store, auth, notifier))
	e.PATCH("/api/tasks/:id", updateTask(store, auth, notifier))
	e.DELETE("/api/tasks/:id", deleteTask(store, auth, notifier))
	e.GET("/api/tasks/stream", streamTasks(store, auth, broker))
	e.GET("/healthz", healthz())
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func getTasks(store Store, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newTaskRequestMetrics(ctx, logger)
		c.SetRequest(c.Request().WithContext(spanCtx))
		ctx = spanCtx
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		p, authErr := auth.Principal(ctx, c.Request().Header.Get(echo.HeaderAuthorization))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.String(http.StatusUnauthorized, authErr.Error())
			return err
		}

		fetchStart := time.Now()
		tasks, fetchErr := store.FetchTasks(ctx, p.UserID)
		metrics.ObserveFetch(time.Since(fetchStart))
		if fetchErr != nil {
			metrics.SetErrorStage("storage")
			c.Logger().Error(fetchErr)
			err = c.String(http.StatusInternalServerError, fetchErr.Error())
			return err
		}
		metrics.SetTasksReturned(len(tasks))

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, tasksResponse{Tasks: tasks})
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func createTask(store Store, auth Authenticator, notifier Notifier) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		p, err := auth.Principal(ctx, c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var req createTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		title, err := domain.NormalizeTitle(req.Title)
		if err != nil {
			return c.String(http.StatusBadRequest, "title must not be empty")
		}
		task, err := store.CreateTask(ctx, p.UserID, title)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to create task")
		}
		notifier.Publish(ctx, domain.ChangeEvent{UserID: p.UserID, EntityID: task.ID, Type: domain.TaskCreated})
		return c.JSON(http.StatusCreated, task)
	}
}

func updateTask(store Store, auth Authenticator, notifier Notifier) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		p, err := auth.Principal(ctx, c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var req updateTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if req.Title == nil && req.Completed == nil {
			return c.String(http.StatusBadRequest, "empty patch")
		}
		patch := domain.TaskPatch{Completed: req.Completed}
		if req.Title != nil {
			title, err := domain.NormalizeTitle(*req.Title)
			if err != nil {
				return c.String(http.StatusBadRequest, "title must not be empty")
			}
			patch.Title = &title
		}
		id := c.Param("id")
		if err := store.UpdateTask(ctx, p.UserID, id, patch); err != nil {
			if err == domain.ErrTaskNotFound {
				return c.String(http.StatusNotFound, "task not found")
			}
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to update task")
		}
		notifier.Publish(ctx, domain.ChangeEvent{UserID: p.UserID, EntityID: id, Type: domain.TaskUpdated})
		return c.NoContent(http.StatusNoContent)
	}
}

func deleteTask(store Store, auth Authenticator, notifier Notifier) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		p, err := auth.Principal(ctx, c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		id := c.Param("id")
		if err := store.DeleteTask(ctx, p.UserID, id); err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to delete task")
		}
		notifier.Publish(ctx, domain.ChangeEvent{UserID: p.UserID, EntityID: id, Type: domain.TaskDeleted})
		return c.NoContent(http.StatusNoContent)
	}
}
