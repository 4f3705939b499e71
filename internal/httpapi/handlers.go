package httpapi

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"time"

	"click2call-gateway/internal/lifecycle"
	"click2call-gateway/internal/provider"
	"click2call-gateway/internal/session"
	"click2call-gateway/pkg/logger"

	"github.com/gin-gonic/gin"
)

// CallService is the lifecycle surface the HTTP layer depends on.
// Keep handlers thin: parse/validate input, delegate, translate the result.
type CallService interface {
	Initiate(ctx context.Context, destination, callerID string) (session.CallSession, error)
	RequestEnd(ctx context.Context, id string) (session.CallSession, error)
	SendDigit(ctx context.Context, id, digit string) error
	GetSession(id string) (session.CallSession, error)
	ApplyProviderStatus(id string, st provider.Status) (session.CallSession, error)
}

// Handlers groups HTTP handlers for dependency injection.
type Handlers struct {
	Calls CallService
}

var (
	phoneRe = regexp.MustCompile(`^\+?[1-9]\d{1,14}$`)
	digitRe = regexp.MustCompile(`^[0-9A-D#*]$`)
)

type initiateRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	CallerID    string `json:"callerId,omitempty"`
}

type dtmfRequest struct {
	Digit string `json:"digit"`
}

type callData struct {
	CallID    string     `json:"callId"`
	Status    string     `json:"status"`
	Duration  int        `json:"duration,omitempty"`
	StartTime *time.Time `json:"startTime,omitempty"`
	EndTime   *time.Time `json:"endTime,omitempty"`
	LastError string     `json:"lastError,omitempty"`
}

func toCallData(s session.CallSession) callData {
	return callData{
		CallID:    s.ID,
		Status:    string(s.State),
		Duration:  s.DurationSeconds,
		StartTime: s.StartTime,
		EndTime:   s.EndTime,
		LastError: s.LastError,
	}
}

// InitiateCall handles POST /api/calls/initiate.
func (h Handlers) InitiateCall(c *gin.Context) {
	log := logger.FromGin(c)

	var req initiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondFail(c, http.StatusBadRequest, "invalid json body")
		return
	}
	if !phoneRe.MatchString(req.PhoneNumber) {
		respondFail(c, http.StatusBadRequest, "invalid phone number format, must be E.164")
		return
	}
	if req.CallerID != "" && !phoneRe.MatchString(req.CallerID) {
		respondFail(c, http.StatusBadRequest, "invalid caller id format")
		return
	}

	log.Info("initiating call", "destination", logger.RedactPhone(req.PhoneNumber))

	sess, err := h.Calls.Initiate(c.Request.Context(), req.PhoneNumber, req.CallerID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"status": "success",
		"data":   gin.H{"callId": sess.ID, "status": string(sess.State)},
	})
}

// EndCall handles POST /api/calls/end/:callId.
func (h Handlers) EndCall(c *gin.Context) {
	id := c.Param("callId")

	logger.FromGin(c).Info("ending call", "call_id", id)

	if _, err := h.Calls.RequestEnd(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "call ended successfully"})
}

// SendDTMF handles POST /api/calls/dtmf/:callId.
func (h Handlers) SendDTMF(c *gin.Context) {
	id := c.Param("callId")

	var req dtmfRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondFail(c, http.StatusBadRequest, "invalid json body")
		return
	}
	if !digitRe.MatchString(req.Digit) {
		respondFail(c, http.StatusBadRequest, "invalid dtmf digit")
		return
	}

	logger.FromGin(c).Info("sending dtmf", "call_id", id)

	if err := h.Calls.SendDigit(c.Request.Context(), id, req.Digit); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "dtmf sent successfully"})
}

// GetCallStatus handles GET /api/calls/status/:callId. It reads the
// session store; provider state is discovered by the background poller.
func (h Handlers) GetCallStatus(c *gin.Context) {
	id := c.Param("callId")

	sess, err := h.Calls.GetSession(id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "data": toCallData(sess)})
}

func respondFail(c *gin.Context, status int, message string) {
	body := gin.H{"status": "fail", "message": message}
	if status >= 500 {
		body["status"] = "error"
	}
	c.AbortWithStatusJSON(status, body)
}

// respondError translates service errors into the response envelope:
// 4xx render as "fail", 5xx as "error" (operational vs. upstream problems).
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		respondFail(c, http.StatusNotFound, "call not found")
	case errors.Is(err, lifecycle.ErrInvalidState):
		respondFail(c, http.StatusConflict, "action not allowed in current call state")
	case errors.Is(err, lifecycle.ErrInvalidNumber):
		respondFail(c, http.StatusBadRequest, "invalid phone number format, must be E.164")
	case errors.Is(err, lifecycle.ErrInvalidDigit):
		respondFail(c, http.StatusBadRequest, "invalid dtmf digit")
	default:
		if pe, ok := provider.AsError(err); ok {
			respondFail(c, statusForProviderError(pe), pe.Message)
			return
		}
		respondFail(c, http.StatusInternalServerError, "internal error")
	}
}

func statusForProviderError(pe *provider.Error) int {
	switch pe.Kind {
	case provider.KindNetwork:
		return http.StatusServiceUnavailable
	case provider.KindProviderClient:
		if pe.HTTPStatus >= 400 && pe.HTTPStatus < 500 {
			return pe.HTTPStatus
		}
		return http.StatusBadGateway
	default:
		return http.StatusBadGateway
	}
}
