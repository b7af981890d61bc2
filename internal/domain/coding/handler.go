package coding

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/ehr/loinc-coder/internal/domain/annotation"
)

// Annotator runs NER over free text.
type Annotator interface {
	Annotate(ctx context.Context, content string) (*annotation.Payload, error)
}

// Handler exposes document resolution over HTTP.
type Handler struct {
	svc *Service
	ner Annotator
}

// NewHandler creates a coding handler. ner may be nil, in which case the
// text endpoint answers 503.
func NewHandler(svc *Service, ner Annotator) *Handler {
	return &Handler{svc: svc, ner: ner}
}

// RegisterRoutes registers the resolution route on the API group.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/loinc/resolve", h.ResolveDocument)
}

// RegisterTextRoutes registers the free-text endpoint at the server root.
func (h *Handler) RegisterTextRoutes(e *echo.Echo) {
	e.POST("/loinc_output", h.ResolveText)
}

// ResolveDocument handles POST /api/v1/loinc/resolve with a NER payload body.
func (h *Handler) ResolveDocument(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}
	res, err := h.svc.ResolveJSON(c.Request().Context(), body)
	if errors.Is(err, annotation.ErrMalformedDocument) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, res)
}

type textRequest struct {
	Content string `json:"content"`
}

// TextResponse wraps a DocumentResult for the free-text endpoint.
type TextResponse struct {
	Status string          `json:"status"`
	Codes  *DocumentResult `json:"codes"`
}

// ResolveText handles POST /loinc_output: NER over the content, then
// resolution.
func (h *Handler) ResolveText(c echo.Context) error {
	if h.ner == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "ner endpoint is not configured")
	}
	var req textRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Content) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "content is required")
	}

	ctx := c.Request().Context()
	payload, err := h.ner.Annotate(ctx, req.Content)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	res, err := h.svc.Resolve(ctx, payload)
	if errors.Is(err, annotation.ErrMalformedDocument) {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, TextResponse{Status: "COMPLETED", Codes: res})
}
