package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jaennil/guide_helper/backend/vtiles/internal/infrastructure/http/v1/dto"
)

func (h *Handler) GetStyle(c *gin.Context) {
	h.RespondWithJSON(c, http.StatusOK, "current style", h.mapUseCase.Style())
}

// SetStyle replaces the whole style. Loaded tiles are kept.
func (h *Handler) SetStyle(c *gin.Context) {
	l := requestLogger(c)

	var req dto.StyleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.RespondWithJSON(c, http.StatusBadRequest, ErrFailedToDecodeRequestBody.Error(), nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		l.Warn("invalid style", "error", err)
		h.RespondWithJSON(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if err := h.mapUseCase.UpdateStyle(req.Style()); err != nil {
		h.RespondWithJSON(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	h.RespondWithJSON(c, http.StatusOK, "style updated", nil)
}
