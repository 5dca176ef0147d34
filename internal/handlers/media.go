package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/zapflowai/zapflow/internal/db"
	"github.com/zapflowai/zapflow/internal/media"
)

// MediaHandler serves protected agent assets through signed links.
type MediaHandler struct {
	media  *media.Service
	signer *media.Signer
	logger *slog.Logger
}

func NewMediaHandler(mediaSvc *media.Service, signer *media.Signer, log *slog.Logger) *MediaHandler {
	return &MediaHandler{
		media:  mediaSvc,
		signer: signer,
		logger: log.With(slog.String("handler", "media")),
	}
}

func (h *MediaHandler) Register(e *echo.Echo) {
	e.GET("/media/:agentID/:key", h.Serve)
}

func (h *MediaHandler) Serve(c echo.Context) error {
	agentID := c.Param("agentID")
	key := c.Param("key")

	if err := h.signer.Verify(agentID, key, c.QueryParam("exp"), c.QueryParam("sig")); err != nil {
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	}

	id, err := db.ParseUUID(agentID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid agent id")
	}
	asset, err := h.media.Lookup(c.Request().Context(), id, key)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "asset not found")
	}
	if asset.URL == "" {
		return echo.NewHTTPError(http.StatusNotFound, "asset has no stored file")
	}
	return c.Redirect(http.StatusFound, asset.URL)
}
