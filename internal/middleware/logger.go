package middleware

import (
    "time"

    "github.com/labstack/echo/v4"
    "github.com/sirupsen/logrus"
)

// RequestLogger writes one logrus entry per request.  Errors returned by
// the chain are rendered here through echo's error handler so the logged
// status is the one the client saw.  Responses with status >= errorStatus
// are logged at error level, 4xx at warn, the rest at info.
func RequestLogger(logger *logrus.Logger, errorStatus int) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            start := time.Now()
            err := next(c)
            if err != nil {
                c.Error(err)
            }
            req, res := c.Request(), c.Response()
            entry := logger.WithContext(req.Context()).WithFields(logrus.Fields{
                "component":  "http",
                "method":     req.Method,
                "route":      c.Path(),
                "uri":        req.RequestURI,
                "status":     res.Status,
                "latency_ms": time.Since(start).Milliseconds(),
                "remote_ip":  c.RealIP(),
                "bytes_out":  res.Size,
            })
            if id := res.Header().Get(echo.HeaderXRequestID); id != "" {
                entry = entry.WithField("request_id", id)
            }
            if err != nil {
                entry = entry.WithError(err)
            }
            switch {
            case res.Status >= errorStatus:
                entry.Error("request failed")
            case res.Status >= 400:
                entry.Warn("request rejected")
            default:
                entry.Info("request served")
            }
            return nil
        }
    }
}
