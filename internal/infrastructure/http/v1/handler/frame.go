package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *Handler) Frame(c *gin.Context) {
	h.RespondWithJSON(c, http.StatusOK, "last frame", h.mapUseCase.Frame())
}

func (h *Handler) Stats(c *gin.Context) {
	h.RespondWithJSON(c, http.StatusOK, "provider stats", h.mapUseCase.Stats())
}
