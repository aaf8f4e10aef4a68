package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/flashsale-booking/internal/apperr"
    "github.com/iliyamo/flashsale-booking/internal/utils"
)

// Context keys set by the authentication middleware.
const (
    ctxAdminSubject = "admin_subject"
    ctxRole         = "role"
)

var (
    errMissingBearer = apperr.New(apperr.Unauthenticated, "missing-bearer-token", "admin bearer token required")
    errBadBearer     = apperr.New(apperr.Unauthenticated, "invalid-bearer-token", "admin bearer token is invalid or expired")
)

// JWTAuth validates a Bearer admin token signed with secret and stores the
// subject and role claims in the request context.
func JWTAuth(secret string) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            auth := c.Request().Header.Get(echo.HeaderAuthorization)
            if !strings.HasPrefix(auth, "Bearer ") {
                return errMissingBearer
            }
            claims, err := utils.ParseAdminToken(secret, strings.TrimPrefix(auth, "Bearer "))
            if err != nil {
                return errBadBearer
            }
            c.Set(ctxAdminSubject, claims.Subject)
            c.Set(ctxRole, claims.Role)
            return next(c)
        }
    }
}
