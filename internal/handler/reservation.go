package handler

import (
    "net/http"
    "strings"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/flashsale-booking/internal/apperr"
    "github.com/iliyamo/flashsale-booking/internal/booking"
    "github.com/iliyamo/flashsale-booking/internal/middleware"
    "github.com/iliyamo/flashsale-booking/internal/model"
)

// BookingHandler serves seat holds and payments.  Every mutating route
// needs an ACTIVE queue token issued to the user named in the body.
type BookingHandler struct {
    orch *booking.Orchestrator
}

// NewBookingHandler constructs a BookingHandler.
func NewBookingHandler(orch *booking.Orchestrator) *BookingHandler {
    if orch == nil {
        panic("nil orchestrator passed to NewBookingHandler")
    }
    return &BookingHandler{orch: orch}
}

// Reserve handles POST /v1/reservations and answers 201 with the hold.
func (h *BookingHandler) Reserve(c echo.Context) error {
    var req seatRequest
    if err := bind(c, &req); err != nil {
        return err
    }
    res, err := h.orch.ReserveSeat(c.Request().Context(), middleware.QueueToken(c), req.UserID, req.Date, req.SeatNumber)
    if err != nil {
        return err
    }
    return c.JSON(http.StatusCreated, res)
}

// Release handles DELETE /v1/reservations.
func (h *BookingHandler) Release(c echo.Context) error {
    var req seatRequest
    if err := bind(c, &req); err != nil {
        return err
    }
    if err := h.orch.ReleaseHold(c.Request().Context(), middleware.QueueToken(c), req.UserID, req.Date, req.SeatNumber); err != nil {
        return err
    }
    return c.NoContent(http.StatusNoContent)
}

// Pay handles POST /v1/payments.
func (h *BookingHandler) Pay(c echo.Context) error {
    var req seatRequest
    if err := bind(c, &req); err != nil {
        return err
    }
    res, err := h.orch.ProcessPayment(c.Request().Context(), middleware.QueueToken(c), req.UserID, req.Date, req.SeatNumber)
    if err != nil {
        return err
    }
    return c.JSON(http.StatusOK, res)
}

type reservationItem struct {
    ReservationID uint64     `json:"reservation_id"`
    Date          string     `json:"date"`
    SeatNumber    int        `json:"seat_number"`
    Price         int64      `json:"price"`
    Status        string     `json:"status"`
    ReservedAt    time.Time  `json:"reserved_at"`
    HoldExpiresAt time.Time  `json:"hold_expires_at"`
    ConfirmedAt   *time.Time `json:"confirmed_at,omitempty"`
}

func toReservationItem(r model.Reservation) reservationItem {
    return reservationItem{
        ReservationID: r.ID,
        Date:          r.ConcertDate,
        SeatNumber:    r.SeatNumber,
        Price:         r.Price,
        Status:        r.Status,
        ReservedAt:    r.ReservedAt,
        HoldExpiresAt: r.HoldExpiresAt,
        ConfirmedAt:   r.ConfirmedAt,
    }
}

// List handles GET /v1/reservations?user_id=.
func (h *BookingHandler) List(c echo.Context) error {
    userID := strings.TrimSpace(c.QueryParam("user_id"))
    if userID == "" {
        return apperr.New(apperr.InvalidArgument, "invalid-user-id", "user_id is required")
    }
    list, err := h.orch.Reservations(c.Request().Context(), userID)
    if err != nil {
        return err
    }
    items := make([]reservationItem, 0, len(list))
    for _, r := range list {
        items = append(items, toReservationItem(r))
    }
    return c.JSON(http.StatusOK, echo.Map{"items": items})
}
