package handler

import (
    "context"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"
)

// Check probes one dependency.
type Check func(ctx context.Context) error

// Health answers GET /healthz with "ok" when every named check passes
// within two seconds, and 503 listing the failing ones otherwise.
func Health(checks map[string]Check) echo.HandlerFunc {
    return func(c echo.Context) error {
        ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
        defer cancel()
        failed := map[string]string{}
        for name, check := range checks {
            if err := check(ctx); err != nil {
                failed[name] = err.Error()
            }
        }
        if len(failed) > 0 {
            return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "unavailable", "failed": failed})
        }
        return c.String(http.StatusOK, "ok")
    }
}
