package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/flashsale-booking/internal/handler"
	"github.com/iliyamo/flashsale-booking/internal/middleware"
)

// RegisterQueue registers the waiting room.  Token issuance is rate
// limited since it is the one unauthenticated write at sale start.
func RegisterQueue(e *echo.Echo, h *handler.QueueHandler, rateLimit echo.MiddlewareFunc) {
	g := e.Group("/v1/queue/tokens")
	g.POST("", h.Issue, orPass(rateLimit))
	g.GET("/status", h.Status, middleware.RequireQueueToken)
}

// RegisterBooking registers holds, payments and point balances.  Holds and
// payments require the X-QUEUE-TOKEN header; the gate decides whether the
// token is ACTIVE and belongs to the user.
func RegisterBooking(e *echo.Echo, b *handler.BookingHandler, p *handler.PointHandler) {
	g := e.Group("/v1")
	g.POST("/reservations", b.Reserve, middleware.RequireQueueToken)
	g.DELETE("/reservations", b.Release, middleware.RequireQueueToken)
	g.GET("/reservations", b.List)
	g.POST("/payments", b.Pay, middleware.RequireQueueToken)

	g.POST("/points/charge", p.Charge)
	g.GET("/points/:userId", p.Balance)
}
