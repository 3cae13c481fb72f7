package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/akorolev/Dial/internal/call"
	"github.com/akorolev/Dial/internal/core"
	"github.com/akorolev/Dial/internal/domain"
)

type Controller struct {
	Coord       *call.Coordinator
	Completions core.CompletionStore
}

type startCallRequest struct {
	Peer string `json:"peer" binding:"required"`
}

func (ctl *Controller) StartCall(c *gin.Context) {
	var req startCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "peer is required"})
		return
	}
	peer := domain.PeerID(req.Peer)
	if err := peer.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sid, err := ctl.Coord.Start(c.Request.Context(), peer)
	if err != nil {
		abortWithCallError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session_id": sid.String()})
}

func (ctl *Controller) ActiveCall(c *gin.Context) {
	snap, err := ctl.Coord.Snapshot(c.Request.Context())
	if err != nil {
		abortWithCallError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (ctl *Controller) AcceptCall(c *gin.Context) {
	sid, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}
	if err := ctl.Coord.Accept(c.Request.Context(), sid); err != nil {
		abortWithCallError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (ctl *Controller) EndCall(c *gin.Context) {
	sid, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}
	if err := ctl.Coord.End(c.Request.Context(), sid); err != nil {
		abortWithCallError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type toggleRequest struct {
	Enabled bool `json:"enabled"`
}

func (ctl *Controller) SetMute(c *gin.Context) {
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "enabled is required"})
		return
	}
	if err := ctl.Coord.SetMuted(c.Request.Context(), req.Enabled); err != nil {
		abortWithCallError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (ctl *Controller) SetSpeaker(c *gin.Context) {
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "enabled is required"})
		return
	}
	if err := ctl.Coord.SetSpeaker(c.Request.Context(), req.Enabled); err != nil {
		abortWithCallError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (ctl *Controller) History(c *gin.Context) {
	conv := domain.ConversationID(c.Param("id"))
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	recs, err := ctl.Completions.ListByConversation(c.Request.Context(), conv, limit)
	if err != nil {
		log.Error().Err(err).Str("module", "httpapi").Msg("history query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"completions": recs})
}

func abortWithCallError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrBusy):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrInvalidSessionID):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrUnknownPeer):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrNetworkUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrPermissionDenied):
		status = http.StatusForbidden
	case errors.Is(err, call.ErrCoordinatorClosed):
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
