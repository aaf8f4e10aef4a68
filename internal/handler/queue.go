package handler

import (
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/flashsale-booking/internal/admission"
    "github.com/iliyamo/flashsale-booking/internal/middleware"
)

// QueueHandler exposes the waiting room.
type QueueHandler struct {
    gate *admission.Gate
}

// NewQueueHandler constructs a QueueHandler.
func NewQueueHandler(gate *admission.Gate) *QueueHandler {
    if gate == nil {
        panic("nil gate passed to NewQueueHandler")
    }
    return &QueueHandler{gate: gate}
}

type issueTokenRequest struct {
    UserID string `json:"user_id" validate:"required,max=64"`
}

// Issue handles POST /v1/queue/tokens.  A user asking again gets their
// existing token back, so retries after a timeout are safe.
func (h *QueueHandler) Issue(c echo.Context) error {
    var req issueTokenRequest
    if err := bind(c, &req); err != nil {
        return err
    }
    d, err := h.gate.Issue(c.Request().Context(), req.UserID)
    if err != nil {
        return err
    }
    return c.JSON(http.StatusOK, d)
}

// Status handles GET /v1/queue/tokens/status for the token in X-QUEUE-TOKEN.
func (h *QueueHandler) Status(c echo.Context) error {
    d, err := h.gate.Status(c.Request().Context(), middleware.QueueToken(c))
    if err != nil {
        return err
    }
    return c.JSON(http.StatusOK, d)
}
