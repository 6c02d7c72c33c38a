package collector

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/childhealth/fieldsync/internal/domain/child"
	"github.com/childhealth/fieldsync/internal/platform/auth"
	"github.com/childhealth/fieldsync/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the API on api, which is expected to sit behind the
// auth middleware.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/health", h.Health)

	api.POST("/child-records", h.UploadRecord)
	api.GET("/child-records", h.ListRecords)
	api.GET("/child-records/:healthId", h.GetRecord)
	api.GET("/health-booklet/:healthId", h.GetBooklet)
	api.GET("/statistics", h.GetStatistics)

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.DELETE("/child-records", h.DeleteAll)
}

func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":    "OK",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) UploadRecord(c echo.Context) error {
	var rec child.Record
	if err := c.Bind(&rec); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid record body")
	}

	receivedBy := auth.UserIDFromContext(c.Request().Context())
	created, err := h.svc.Upload(c.Request().Context(), &rec, receivedBy)
	if err != nil {
		if errors.Is(err, ErrValidation) {
			return echo.NewHTTPError(http.StatusBadRequest, "Missing required fields")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to upload record")
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return c.JSON(status, map[string]interface{}{
		"success":  true,
		"healthId": rec.HealthID,
		"created":  created,
	})
}

func (h *Handler) ListRecords(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to fetch records")
	}
	if items == nil {
		items = []*StoredRecord{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetRecord(c echo.Context) error {
	rec, err := h.svc.Get(c.Request().Context(), c.Param("healthId"))
	if err != nil {
		return notFoundOr500(err, "Failed to fetch record")
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) GetBooklet(c echo.Context) error {
	b, err := h.svc.Booklet(c.Request().Context(), c.Param("healthId"))
	if err != nil {
		return notFoundOr500(err, "Failed to generate booklet")
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) GetStatistics(c echo.Context) error {
	st, err := h.svc.Statistics(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to generate statistics")
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) DeleteAll(c echo.Context) error {
	n, err := h.svc.DeleteAll(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to delete records")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "All records deleted",
		"deleted": n,
	})
}

func notFoundOr500(err error, msg string) error {
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "Record not found")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, msg)
}
