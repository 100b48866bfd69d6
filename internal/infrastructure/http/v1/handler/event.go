package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jaennil/guide_helper/backend/vtiles/internal/event"
	"github.com/jaennil/guide_helper/backend/vtiles/internal/infrastructure/http/v1/dto"
)

// Click queues a click and answers with the features it hit.
func (h *Handler) Click(c *gin.Context) {
	l := requestLogger(c)

	var req dto.ClickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.RespondWithJSON(c, http.StatusBadRequest, ErrFailedToDecodeRequestBody.Error(), nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.RespondWithJSON(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	button, err := event.ParseButton(req.Button)
	if err != nil {
		h.RespondWithJSON(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	hits, err := h.mapUseCase.Click(c.Request.Context(), button, req.X, req.Y)
	if err != nil {
		h.respondDispatchError(c, err)
		return
	}
	l.Debug("click handled", "x", req.X, "y", req.Y, "hits", len(hits))
	h.RespondWithJSON(c, http.StatusOK, "click handled", dto.NewHitsResponse(hits))
}

func (h *Handler) Event(c *gin.Context) {
	var req dto.EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.RespondWithJSON(c, http.StatusBadRequest, ErrFailedToDecodeRequestBody.Error(), nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.RespondWithJSON(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	e, err := req.Event()
	if err != nil {
		h.RespondWithJSON(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	prop, err := h.mapUseCase.Submit(c.Request.Context(), e)
	if err != nil {
		h.respondDispatchError(c, err)
		return
	}
	h.RespondWithJSON(c, http.StatusOK, "event dispatched", dto.EventResponse{Propagation: prop.String()})
}

func (h *Handler) respondDispatchError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, event.ErrQueueFull):
		h.RespondWithJSON(c, http.StatusTooManyRequests, err.Error(), nil)
	case errors.Is(err, event.ErrQueueClosed):
		h.RespondWithJSON(c, http.StatusServiceUnavailable, err.Error(), nil)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		h.RespondWithJSON(c, http.StatusGatewayTimeout, err.Error(), nil)
	default:
		requestLogger(c).Error("failed to dispatch event", "error", err)
		h.RespondWithInternalServerError(c)
	}
}
