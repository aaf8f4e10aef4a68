package middleware

import (
    "github.com/labstack/echo/v4"

    "github.com/iliyamo/flashsale-booking/internal/apperr"
)

var errForbiddenRole = apperr.New(apperr.Forbidden, "forbidden", "role not allowed")

// RequireRole rejects requests whose role claim, set by JWTAuth, is not one
// of roles.
func RequireRole(roles ...string) echo.MiddlewareFunc {
    allowed := make(map[string]bool, len(roles))
    for _, r := range roles {
        allowed[r] = true
    }
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            role, ok := c.Get(ctxRole).(string)
            if !ok || !allowed[role] {
                return errForbiddenRole
            }
            return next(c)
        }
    }
}
