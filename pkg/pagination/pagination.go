package pagination

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params is an offset window over an ordered list.
type Params struct {
	Limit  int
	Offset int
}

// Parse reads ?limit= and ?offset=. A missing or zero limit means DefaultLimit
// and anything above MaxLimit is capped; non-numbers and negatives are a 400.
func Parse(c echo.Context) (Params, error) {
	limit, err := intParam(c, "limit")
	if err != nil {
		return Params{}, err
	}
	offset, err := intParam(c, "offset")
	if err != nil {
		return Params{}, err
	}

	switch {
	case limit == 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}
	return Params{Limit: limit, Offset: offset}, nil
}

func intParam(c echo.Context, name string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("%s must be a non-negative integer", name))
	}
	return n, nil
}

// Slice returns the window of items selected by p. A non-positive limit
// returns everything from the offset on.
func Slice[T any](items []T, p Params) []T {
	if p.Offset >= len(items) {
		return nil
	}
	items = items[p.Offset:]
	if p.Limit > 0 && len(items) > p.Limit {
		items = items[:p.Limit]
	}
	return items
}

// Page is the JSON envelope for list endpoints.
type Page[T any] struct {
	Data       []T  `json:"data"`
	Total      int  `json:"total"`
	Limit      int  `json:"limit"`
	Offset     int  `json:"offset"`
	HasMore    bool `json:"has_more"`
	NextOffset *int `json:"next_offset,omitempty"`
	PrevOffset *int `json:"prev_offset,omitempty"`
}

// New builds the envelope for one page out of total results. Data is never
// null so clients can iterate without a check.
func New[T any](items []T, total int, p Params) Page[T] {
	if items == nil {
		items = []T{}
	}
	out := Page[T]{
		Data:    items,
		Total:   total,
		Limit:   p.Limit,
		Offset:  p.Offset,
		HasMore: p.Offset+p.Limit < total,
	}
	if out.HasMore {
		next := p.Offset + p.Limit
		out.NextOffset = &next
	}
	if p.Offset > 0 {
		prev := p.Offset - p.Limit
		if prev < 0 {
			prev = 0
		}
		out.PrevOffset = &prev
	}
	return out
}
