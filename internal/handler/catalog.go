package handler

import (
    "net/http"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/flashsale-booking/internal/apperr"
    "github.com/iliyamo/flashsale-booking/internal/inventory"
    "github.com/iliyamo/flashsale-booking/internal/model"
    "github.com/iliyamo/flashsale-booking/internal/repository"
)

// CatalogHandler serves the public concert listings and the admin route
// that creates a concert date.  Listings are read straight from the
// catalog and may be cached briefly; they never gate a booking.
type CatalogHandler struct {
    catalog   repository.Catalog
    inventory *inventory.Service
}

// NewCatalogHandler constructs a CatalogHandler.
func NewCatalogHandler(catalog repository.Catalog, inv *inventory.Service) *CatalogHandler {
    if catalog == nil || inv == nil {
        panic("nil dependency passed to NewCatalogHandler")
    }
    return &CatalogHandler{catalog: catalog, inventory: inv}
}

var errConcertNotFound = apperr.New(apperr.NotFound, "concert-not-found", "no seats for this date")

// Dates handles GET /v1/concerts/dates.
func (h *CatalogHandler) Dates(c echo.Context) error {
    dates, err := h.catalog.ConcertDates(c.Request().Context())
    if err != nil {
        return err
    }
    if dates == nil {
        dates = []model.ConcertDate{}
    }
    return c.JSON(http.StatusOK, echo.Map{"items": dates})
}

type seatItem struct {
    SeatNumber int    `json:"seat_number"`
    Status     string `json:"status"`
    Price      int64  `json:"price"`
}

// Seats handles GET /v1/concerts/:date/seats.  A hold that lapsed but was
// not swept yet is shown as AVAILABLE, which is what the next reserve
// will find.
func (h *CatalogHandler) Seats(c echo.Context) error {
    date := c.Param("date")
    if _, err := time.Parse("2006-01-02", date); err != nil {
        return apperr.New(apperr.InvalidArgument, "invalid-date", "date must be YYYY-MM-DD")
    }
    seats, err := h.catalog.SeatsByDate(c.Request().Context(), date)
    if err != nil {
        return err
    }
    if len(seats) == 0 {
        return errConcertNotFound
    }
    now := time.Now().UTC()
    items := make([]seatItem, 0, len(seats))
    for _, s := range seats {
        status := s.Status
        if s.HoldLapsed(now) {
            status = model.SeatAvailable
        }
        items = append(items, seatItem{SeatNumber: s.SeatNumber, Status: status, Price: s.Price})
    }
    return c.JSON(http.StatusOK, echo.Map{"date": date, "items": items})
}

type createConcertRequest struct {
    Date  string `json:"date" validate:"required,datetime=2006-01-02"`
    Seats int    `json:"seats" validate:"required,gt=0,max=10000"`
    Price int64  `json:"price" validate:"required,gt=0"`
}

// CreateConcert handles POST /v1/admin/concerts.
func (h *CatalogHandler) CreateConcert(c echo.Context) error {
    var req createConcertRequest
    if err := bind(c, &req); err != nil {
        return err
    }
    if err := h.inventory.CreateConcert(c.Request().Context(), req.Date, req.Seats, req.Price); err != nil {
        return err
    }
    return c.JSON(http.StatusCreated, echo.Map{"date": req.Date, "seats": req.Seats, "price": req.Price})
}
