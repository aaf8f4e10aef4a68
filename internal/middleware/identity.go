package middleware

// identity.go carries the caller identity between middleware and handlers:
// the queue token presented in X-QUEUE-TOKEN and, on admin routes, the JWT
// subject.

import (
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/flashsale-booking/internal/apperr"
)

// QueueTokenHeader carries the waiting-room token.
const QueueTokenHeader = "X-QUEUE-TOKEN"

const ctxQueueToken = "queue_token"

var errMissingQueueToken = apperr.New(apperr.Unauthenticated, "missing-queue-token", "X-QUEUE-TOKEN header required")

// RequireQueueToken rejects requests without a queue token header and makes
// the token available through QueueToken.  Whether the token is ACTIVE is
// decided by the admission gate, not here.
func RequireQueueToken(next echo.HandlerFunc) echo.HandlerFunc {
    return func(c echo.Context) error {
        tok := strings.TrimSpace(c.Request().Header.Get(QueueTokenHeader))
        if tok == "" {
            return errMissingQueueToken
        }
        c.Set(ctxQueueToken, tok)
        return next(c)
    }
}

// QueueToken returns the token stored by RequireQueueToken.
func QueueToken(c echo.Context) string {
    s, _ := c.Get(ctxQueueToken).(string)
    return s
}

// AdminSubject returns the admin JWT subject, or "" on public routes.
func AdminSubject(c echo.Context) string {
    s, _ := c.Get(ctxAdminSubject).(string)
    return s
}

// clientID names the caller for rate limiting: the admin subject when
// present, otherwise "anon".
func clientID(c echo.Context) string {
    if s := AdminSubject(c); s != "" {
        return s
    }
    return "anon"
}
