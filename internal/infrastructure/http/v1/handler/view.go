package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jaennil/guide_helper/backend/vtiles/internal/infrastructure/http/v1/dto"
)

func (h *Handler) GetView(c *gin.Context) {
	h.RespondWithJSON(c, http.StatusOK, "current view", h.mapUseCase.View())
}

func (h *Handler) SetView(c *gin.Context) {
	l := requestLogger(c)

	var req dto.ViewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn("invalid view body", "error", err)
		h.RespondWithJSON(c, http.StatusBadRequest, ErrFailedToDecodeRequestBody.Error(), nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.RespondWithJSON(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	if err := h.mapUseCase.SetView(req.View()); err != nil {
		l.Warn("view rejected", "error", err)
		h.RespondWithJSON(c, http.StatusUnprocessableEntity, err.Error(), nil)
		return
	}
	h.RespondWithJSON(c, http.StatusOK, "view updated", h.mapUseCase.View())
}
