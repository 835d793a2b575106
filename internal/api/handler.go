// Package api exposes the monitor surface: a small read-only HTTP API an
// instructor can use to watch trainee sandbox state during a session.
package api

import (
	"net/http"
	"sort"

	"github.com/labstack/echo/v4"

	"github.com/labfleet/labfleet/internal/automation"
	"github.com/labfleet/labfleet/internal/userdata"
)

type Handler struct {
	client automation.Client
	store  *userdata.Store
	apiKey string
}

func NewHandler(client automation.Client, store *userdata.Store, apiKey string) *Handler {
	return &Handler{
		client: client,
		store:  store,
		apiKey: apiKey,
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	v1 := e.Group("/v1")

	// Apply Auth Middleware if API Key is configured
	if h.apiKey != "" {
		v1.Use(h.authMiddleware)
	}

	v1.GET("/health", h.health)
	v1.GET("/trainees", h.listTrainees)
}

func (h *Handler) authMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		key := c.Request().Header.Get("X-Labfleet-API-Key")
		if key == "" {
			// Also support Query param for easier debugging/CLI
			key = c.QueryParam("api_key")
		}

		if h.apiKey != "" && key != h.apiKey {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid or missing API key")
		}
		return next(c)
	}
}

func (h *Handler) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type TraineeStatus struct {
	User        string `json:"user"`
	NumericID   string `json:"numeric_id"`
	SandboxID   string `json:"sandbox_id"`
	StudentLink string `json:"student_link"`
	Status      string `json:"status"`
}

func (h *Handler) listTrainees(c echo.Context) error {
	records := h.store.Records()

	trainees := make([]TraineeStatus, 0, len(records))
	for user, record := range records {
		trainee := TraineeStatus{
			User:        user,
			NumericID:   record.NumericID,
			SandboxID:   record.SandboxID,
			StudentLink: record.StudentLink,
			Status:      "unknown",
		}
		if record.SandboxID != "" {
			status, err := h.client.GetReservationStatus(c.Request().Context(), record.SandboxID)
			if err == nil {
				trainee.Status = string(status.Status)
			}
		}
		trainees = append(trainees, trainee)
	}
	sort.Slice(trainees, func(i, j int) bool { return trainees[i].User < trainees[j].User })

	return c.JSON(http.StatusOK, map[string]any{"trainees": trainees})
}
