package terminology

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// Handler provides REST endpoints over the LOINC master table.
type Handler struct {
	svc *Service
}

// NewHandler creates a new terminology handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers the LOINC lookup routes on the API group.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/loinc", h.SearchLOINC)
	api.GET("/loinc/:code", h.GetLOINC)
}

func getLimit(c echo.Context) int {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return limit
}

// SearchLOINC handles GET /api/v1/loinc?q=...
func (h *Handler) SearchLOINC(c echo.Context) error {
	query := c.QueryParam("q")
	if query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query parameter 'q' is required")
	}
	results, err := h.svc.SearchLOINC(c.Request().Context(), query, getLimit(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if results == nil {
		results = []*LOINCCode{}
	}
	return c.JSON(http.StatusOK, results)
}

// GetLOINC handles GET /api/v1/loinc/:code
func (h *Handler) GetLOINC(c echo.Context) error {
	code := c.Param("code")
	result, err := h.svc.LookupLOINC(c.Request().Context(), code)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "loinc code not found: "+code)
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}
