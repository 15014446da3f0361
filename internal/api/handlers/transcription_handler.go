package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	mongorepo "github.com/medinote/backend/internal/repositories/mongo"
	"github.com/medinote/backend/internal/services"
	"github.com/medinote/backend/internal/utils"
)

type TranscriptionHandler struct {
	svc    services.TranscriptionService
	chunks mongorepo.ChunkRepository // optional, admin audit endpoint
}

func NewTranscriptionHandler(svc services.TranscriptionService, chunks mongorepo.ChunkRepository) *TranscriptionHandler {
	return &TranscriptionHandler{svc: svc, chunks: chunks}
}

func (h *TranscriptionHandler) GetBySession(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	t, err := h.svc.GetForCaller(c.Request.Context(), userID, callerRole(c), c.Param("session_id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, t)
}

// ListChunks exposes the realtime chunk audit trail. Admin-only; routed
// behind RequireAdmin.
func (h *TranscriptionHandler) ListChunks(c *gin.Context) {
	if h.chunks == nil {
		writeError(c, utils.E(utils.CodeUnavailable, "TranscriptionHandler.ListChunks", "chunk audit trail not configured", nil))
		return
	}

	rows, err := h.chunks.ListBySession(c.Request.Context(), c.Param("session_id"), 0)
	if err != nil {
		writeError(c, utils.E(utils.CodeInternal, "TranscriptionHandler.ListChunks", "failed to list chunks", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"chunks": rows})
}
