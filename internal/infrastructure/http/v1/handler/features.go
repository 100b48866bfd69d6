package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jaennil/guide_helper/backend/vtiles/internal/infrastructure/http/v1/dto"
	"github.com/jaennil/guide_helper/backend/vtiles/internal/layer"
	"github.com/paulmach/orb"
)

// Features looks up features at a position of the current view. Positions
// are screen pixels unless space=world.
func (h *Handler) Features(c *gin.Context) {
	var q dto.FeaturesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.RespondWithJSON(c, http.StatusBadRequest, "x and y should be numbers", nil)
		return
	}
	if err := h.validate.Struct(q); err != nil {
		h.RespondWithJSON(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	var hits []layer.Hit
	if q.Space == "world" {
		hits = h.mapUseCase.FeaturesAtWorld(orb.Point{q.X, q.Y})
	} else {
		hits = h.mapUseCase.FeaturesAtScreen(q.X, q.Y)
	}
	h.RespondWithJSON(c, http.StatusOK, "features", dto.NewHitsResponse(hits))
}
