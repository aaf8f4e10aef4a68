package handler

import (
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/flashsale-booking/internal/ledger"
)

// PointHandler tops up and reports point balances.
type PointHandler struct {
    ledger *ledger.Service
}

// NewPointHandler constructs a PointHandler.
func NewPointHandler(l *ledger.Service) *PointHandler {
    if l == nil {
        panic("nil ledger passed to NewPointHandler")
    }
    return &PointHandler{ledger: l}
}

type chargeRequest struct {
    UserID string `json:"user_id" validate:"required,max=64"`
    Amount int64  `json:"amount" validate:"required,gt=0"`
}

type balanceResponse struct {
    UserID  string `json:"user_id"`
    Balance int64  `json:"balance"`
}

// Charge handles POST /v1/points/charge.
func (h *PointHandler) Charge(c echo.Context) error {
    var req chargeRequest
    if err := bind(c, &req); err != nil {
        return err
    }
    bal, err := h.ledger.Charge(c.Request().Context(), req.UserID, req.Amount)
    if err != nil {
        return err
    }
    return c.JSON(http.StatusOK, balanceResponse{UserID: req.UserID, Balance: bal})
}

// Balance handles GET /v1/points/:userId.  Unknown users have balance 0.
func (h *PointHandler) Balance(c echo.Context) error {
    userID := c.Param("userId")
    bal, err := h.ledger.Balance(c.Request().Context(), userID)
    if err != nil {
        return err
    }
    return c.JSON(http.StatusOK, balanceResponse{UserID: userID, Balance: bal})
}
