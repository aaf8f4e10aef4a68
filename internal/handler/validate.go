package handler

import (
    "errors"
    "fmt"
    "reflect"
    "strings"

    "github.com/go-playground/validator/v10"
    "github.com/labstack/echo/v4"

    "github.com/iliyamo/flashsale-booking/internal/apperr"
)

// Validator adapts go-playground/validator to echo.Validator.
type Validator struct {
    v *validator.Validate
}

// NewValidator returns a Validator that reports json field names.
func NewValidator() *Validator {
    v := validator.New(validator.WithRequiredStructEnabled())
    v.RegisterTagNameFunc(func(f reflect.StructField) string {
        name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
        if name == "-" {
            return ""
        }
        return name
    })
    return &Validator{v: v}
}

// Validate implements echo.Validator.  The first failing field is reported
// as an invalid-argument failure.
func (cv *Validator) Validate(i interface{}) error {
    err := cv.v.Struct(i)
    if err == nil {
        return nil
    }
    var verrs validator.ValidationErrors
    if errors.As(err, &verrs) && len(verrs) > 0 {
        fe := verrs[0]
        return apperr.New(apperr.InvalidArgument, "invalid-"+strings.ReplaceAll(fe.Field(), "_", "-"), describe(fe))
    }
    return apperr.Wrap(apperr.InvalidArgument, "invalid-request", "request failed validation", err)
}

func describe(fe validator.FieldError) string {
    switch fe.Tag() {
    case "required":
        return fe.Field() + " is required"
    case "gt":
        return fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param())
    case "max":
        return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
    case "datetime":
        return fmt.Sprintf("%s must be a date formatted %s", fe.Field(), fe.Param())
    }
    return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
}

var errBadBody = apperr.New(apperr.InvalidArgument, "invalid-body", "request body is not valid JSON")

// bind decodes the request into dst and validates it.
func bind(c echo.Context, dst interface{}) error {
    if err := c.Bind(dst); err != nil {
        return errBadBody
    }
    return c.Validate(dst)
}

// seatRequest identifies a user's seat on a concert date.
type seatRequest struct {
    UserID     string `json:"user_id" validate:"required,max=64"`
    Date       string `json:"date" validate:"required,datetime=2006-01-02"`
    SeatNumber int    `json:"seat_number" validate:"required,gt=0"`
}
