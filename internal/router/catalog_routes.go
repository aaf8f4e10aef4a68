package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/flashsale-booking/internal/handler"
	"github.com/iliyamo/flashsale-booking/internal/middleware"
	"github.com/iliyamo/flashsale-booking/internal/utils"
)

// RegisterCatalog registers the public, cacheable concert listings.  The
// ranking route is skipped when rh is nil.
func RegisterCatalog(e *echo.Echo, h *handler.CatalogHandler, rh *handler.RankingHandler, cache echo.MiddlewareFunc) {
	g := e.Group("/v1/concerts", orPass(cache))
	g.GET("/dates", h.Dates)
	g.GET("/:date/seats", h.Seats)
	if rh != nil {
		g.GET("/ranking", rh.Top)
	}
}

// RegisterAdmin registers catalog setup.  All routes require an admin JWT.
func RegisterAdmin(e *echo.Echo, h *handler.CatalogHandler, jwtSecret string) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(utils.RoleAdmin),
	)
	g.POST("/concerts", h.CreateConcert)
}
