package handler

import (
    "errors"
    "net/http"

    "github.com/labstack/echo/v4"
    "github.com/sirupsen/logrus"

    "github.com/iliyamo/flashsale-booking/internal/apperr"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
    Error   string `json:"error"`
    Kind    string `json:"kind"`
    Message string `json:"message"`
}

// ErrorHandler renders errors returned by handlers and middleware.  Typed
// failures keep their code and kind; echo's own errors (unknown route,
// wrong method, malformed body) are mapped by status; anything else is an
// internal error whose detail is logged but not sent to the client.
func ErrorHandler(logger *logrus.Logger) echo.HTTPErrorHandler {
    return func(err error, c echo.Context) {
        if c.Response().Committed {
            return
        }
        status, body := renderError(err)
        if status >= http.StatusInternalServerError {
            logger.WithContext(c.Request().Context()).WithField("component", "http").
                WithField("route", c.Path()).WithError(err).Error("unhandled error")
        }
        var werr error
        if c.Request().Method == http.MethodHead {
            werr = c.NoContent(status)
        } else {
            werr = c.JSON(status, body)
        }
        if werr != nil {
            logger.WithError(werr).Warn("writing error response failed")
        }
    }
}

func renderError(err error) (int, errorBody) {
    if e, ok := apperr.As(err); ok {
        return apperr.HTTPStatus(e), errorBody{Error: e.Code, Kind: string(e.Kind), Message: e.Message}
    }
    var he *echo.HTTPError
    if errors.As(err, &he) {
        msg := http.StatusText(he.Code)
        if s, ok := he.Message.(string); ok {
            msg = s
        }
        switch he.Code {
        case http.StatusNotFound:
            return he.Code, errorBody{Error: "route-not-found", Kind: string(apperr.NotFound), Message: msg}
        case http.StatusMethodNotAllowed:
            return he.Code, errorBody{Error: "method-not-allowed", Kind: string(apperr.InvalidArgument), Message: msg}
        case http.StatusUnsupportedMediaType, http.StatusBadRequest, http.StatusRequestEntityTooLarge:
            return he.Code, errorBody{Error: "invalid-body", Kind: string(apperr.InvalidArgument), Message: msg}
        case http.StatusUnauthorized:
            return he.Code, errorBody{Error: "unauthenticated", Kind: string(apperr.Unauthenticated), Message: msg}
        }
        if he.Code < http.StatusInternalServerError {
            return he.Code, errorBody{Error: "request-failed", Kind: string(apperr.InvalidArgument), Message: msg}
        }
    }
    return http.StatusInternalServerError, errorBody{Error: "internal", Kind: "internal", Message: "internal server error"}
}
