package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/medinote/backend/internal/services"
	"github.com/medinote/backend/internal/utils"
	"gorm.io/datatypes"
)

type SessionHandler struct {
	svc services.ClinicSessionService
}

func NewSessionHandler(svc services.ClinicSessionService) *SessionHandler {
	return &SessionHandler{svc: svc}
}

type CreateSessionRequest struct {
	PatientName string         `json:"patient_name" binding:"required"`
	ScheduledAt time.Time      `json:"scheduled_at"`
	Metadata    datatypes.JSON `json:"metadata"`
}

func (h *SessionHandler) Create(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "SessionHandler.Create", "invalid request body", err))
		return
	}

	cs, err := h.svc.Create(c.Request.Context(), userID, req.PatientName, req.ScheduledAt, req.Metadata)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, cs)
}

func (h *SessionHandler) Get(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	cs, err := h.svc.Authorize(c.Request.Context(), userID, callerRole(c), c.Param("session_id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, cs)
}
