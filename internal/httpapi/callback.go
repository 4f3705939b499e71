package httpapi

import (
	"errors"
	"net/http"
	"time"

	"click2call-gateway/internal/provider"
	"click2call-gateway/internal/session"
	"click2call-gateway/pkg/logger"

	"github.com/gin-gonic/gin"
)

// callbackPayload is what the provider pushes to the status callback URL
// supplied at call creation. It mirrors the status polling response, so both
// paths converge on the same atomic session update.
type callbackPayload struct {
	CallID    string     `json:"callId"`
	Status    string     `json:"status"`
	Duration  int        `json:"duration,omitempty"`
	StartTime *time.Time `json:"startTime,omitempty"`
	EndTime   *time.Time `json:"endTime,omitempty"`
}

// ProviderCallback handles POST /api/calls/callback.
//
// NOTE: this endpoint should be protected by provider signature validation
// in production.
func (h Handlers) ProviderCallback(c *gin.Context) {
	log := logger.FromGin(c)

	var p callbackPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		respondFail(c, http.StatusBadRequest, "invalid callback payload")
		return
	}
	if p.CallID == "" || p.Status == "" {
		respondFail(c, http.StatusBadRequest, "callId and status are required")
		return
	}

	_, err := h.Calls.ApplyProviderStatus(p.CallID, provider.Status{
		Status:          p.Status,
		DurationSeconds: p.Duration,
		StartTime:       p.StartTime,
		EndTime:         p.EndTime,
	})
	if errors.Is(err, session.ErrNotFound) {
		// Callback for a call we never created or already evicted.
		log.Warn("callback for unknown call", "call_id", p.CallID)
		respondFail(c, http.StatusNotFound, "call not found")
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success"})
}
