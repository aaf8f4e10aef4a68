package handler

import (
    "context"
    "net/http"
    "strconv"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/flashsale-booking/internal/apperr"
    "github.com/iliyamo/flashsale-booking/internal/notify"
)

const (
    defaultRankingTop = 10
    maxRankingTop     = 100
)

// RankingReader reads the sold-out leaderboard.
type RankingReader interface {
    Top(ctx context.Context, n int) ([]notify.RankingEntry, error)
}

// RankingHandler serves the dates that sold the most seats.
type RankingHandler struct {
    ranking RankingReader
}

func NewRankingHandler(r RankingReader) *RankingHandler {
    if r == nil {
        panic("nil ranking passed to NewRankingHandler")
    }
    return &RankingHandler{ranking: r}
}

// Top handles GET /v1/concerts/ranking?top=N.
func (h *RankingHandler) Top(c echo.Context) error {
    n := defaultRankingTop
    if raw := c.QueryParam("top"); raw != "" {
        v, err := strconv.Atoi(raw)
        if err != nil || v <= 0 || v > maxRankingTop {
            return apperr.New(apperr.InvalidArgument, "invalid-top", "top must be between 1 and 100")
        }
        n = v
    }
    items, err := h.ranking.Top(c.Request().Context(), n)
    if err != nil {
        return err
    }
    return c.JSON(http.StatusOK, echo.Map{"items": items})
}
