package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jaennil/guide_helper/backend/vtiles/internal/event"
	"github.com/jaennil/guide_helper/backend/vtiles/internal/layer"
	"github.com/jaennil/guide_helper/backend/vtiles/internal/provider"
	"github.com/jaennil/guide_helper/backend/vtiles/internal/tiling"
	"github.com/jaennil/guide_helper/backend/vtiles/internal/usecase"
	"github.com/jaennil/guide_helper/backend/vtiles/pkg/logger"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

const (
	internalServerErrorText = "the server encountered an error and could not process your request"
)

// MapService is what the control API needs from the map. *usecase.MapUseCase
// implements it.
type MapService interface {
	View() tiling.View
	SetView(view tiling.View) error
	Click(ctx context.Context, button event.MouseButton, x, y float64) ([]layer.Hit, error)
	Submit(ctx context.Context, e event.Event) (event.Propagation, error)
	FeaturesAtScreen(x, y float64) []layer.Hit
	FeaturesAtWorld(pos orb.Point) []layer.Hit
	Tiles() []provider.IndexState
	TileGeoJSON(index tiling.TileIndex) (*geojson.FeatureCollection, error)
	InvalidateTile(ctx context.Context, index tiling.TileIndex) error
	Style() *layer.Style
	UpdateStyle(style *layer.Style) error
	Frame() usecase.Frame
	Stats() provider.Stats
}

var _ MapService = (*usecase.MapUseCase)(nil)

type response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type Handler struct {
	validate   *validator.Validate
	mapUseCase MapService
}

func NewHandler(v *validator.Validate, uc MapService) *Handler {
	return &Handler{
		validate:   v,
		mapUseCase: uc,
	}
}

func (h *Handler) RespondWithInternalServerError(c *gin.Context) {
	h.RespondWithJSON(c, http.StatusInternalServerError, internalServerErrorText, nil)
}

func (h *Handler) RespondWithJSON(c *gin.Context, code int, message string, data any) {
	success := code < 400

	r := response{
		Success: success,
		Message: message,
		Data:    data,
	}

	c.JSON(code, r)
}

func (h *Handler) Healthz(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

// requestLogger returns the logger the router middleware stored on c.
func requestLogger(c *gin.Context) logger.Logger {
	if v, ok := c.Get("logger"); ok {
		if l, ok := v.(logger.Logger); ok {
			return l
		}
	}
	return logger.NewNop()
}
