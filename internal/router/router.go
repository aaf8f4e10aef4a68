package router // package router defines how HTTP routes are registered for the API

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/flashsale-booking/internal/handler"
	"github.com/iliyamo/flashsale-booking/internal/middleware"
)

// Handlers groups everything the router mounts.
type Handlers struct {
	Queue   *handler.QueueHandler
	Booking *handler.BookingHandler
	Points  *handler.PointHandler
	Catalog *handler.CatalogHandler
	Ranking *handler.RankingHandler
	Health  echo.HandlerFunc
	Metrics http.Handler
}

// Options carries the cross-cutting middleware.  RateLimit and Cache may be
// nil, in which case the routes run without them.
type Options struct {
	JWTSecret string
	RateLimit echo.MiddlewareFunc
	Cache     echo.MiddlewareFunc
	Logger    *logrus.Logger
}

// New builds the echo instance with error rendering, validation, request
// logging and every route registered.
func New(h Handlers, opt Options) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.ErrorHandler(opt.Logger)
	e.Validator = handler.NewValidator()
	e.Use(
		echomw.RequestID(),
		middleware.RequestLogger(opt.Logger, http.StatusInternalServerError),
		echomw.Recover(),
		echomw.BodyLimit("64K"),
	)

	RegisterRoutes(e, h)
	RegisterQueue(e, h.Queue, opt.RateLimit)
	RegisterBooking(e, h.Booking, h.Points)
	RegisterCatalog(e, h.Catalog, h.Ranking, opt.Cache)
	RegisterAdmin(e, h.Catalog, opt.JWTSecret)
	return e
}

// RegisterRoutes registers the operational endpoints: health and metrics.
func RegisterRoutes(e *echo.Echo, h Handlers) {
	if h.Health != nil {
		e.GET("/healthz", h.Health)
	}
	if h.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(h.Metrics))
	}
}

func orPass(mw echo.MiddlewareFunc) echo.MiddlewareFunc {
	if mw == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return mw
}
