package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jaennil/guide_helper/backend/vtiles/internal/tiling"
	"github.com/jaennil/guide_helper/backend/vtiles/internal/usecase"
)

func (h *Handler) Tiles(c *gin.Context) {
	h.RespondWithJSON(c, http.StatusOK, "tiles", h.mapUseCase.Tiles())
}

// Tile answers with a ready tile as GeoJSON in world coordinates.
func (h *Handler) Tile(c *gin.Context) {
	l := requestLogger(c)

	idx, err := tileIndex(c)
	if err != nil {
		l.Warn("invalid tile index", "z", c.Param("z"), "x", c.Param("x"), "y", c.Param("y"))
		h.RespondWithJSON(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	fc, err := h.mapUseCase.TileGeoJSON(idx)
	if errors.Is(err, usecase.ErrTileNotReady) {
		h.RespondWithJSON(c, http.StatusNotFound, err.Error(), nil)
		return
	}
	if err != nil {
		l.Error("failed to export tile", "tile", idx.String(), "error", err)
		h.RespondWithInternalServerError(c)
		return
	}
	c.JSON(http.StatusOK, fc)
}

func (h *Handler) InvalidateTile(c *gin.Context) {
	l := requestLogger(c)

	idx, err := tileIndex(c)
	if err != nil {
		h.RespondWithJSON(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	if err := h.mapUseCase.InvalidateTile(c.Request.Context(), idx); err != nil {
		l.Error("failed to invalidate tile", "tile", idx.String(), "error", err)
		h.RespondWithInternalServerError(c)
		return
	}
	h.RespondWithJSON(c, http.StatusOK, "tile invalidated", nil)
}

func tileIndex(c *gin.Context) (tiling.TileIndex, error) {
	z, err := strconv.Atoi(c.Param("z"))
	if err != nil {
		return tiling.TileIndex{}, ErrInvalidTileIndex
	}
	x, err := strconv.Atoi(c.Param("x"))
	if err != nil {
		return tiling.TileIndex{}, ErrInvalidTileIndex
	}
	y, err := strconv.Atoi(c.Param("y"))
	if err != nil {
		return tiling.TileIndex{}, ErrInvalidTileIndex
	}
	idx := tiling.NewTileIndex(z, x, y)
	if !idx.Valid() {
		return tiling.TileIndex{}, ErrInvalidTileIndex
	}
	return idx, nil
}
