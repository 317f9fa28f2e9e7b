package echoapi

import (
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/chuo/core"
	"github.com/trezcool/chuo/core/user"
)

var (
	orderingParam = "ordering"
	limitParam    = "limit"
)

type Ordering struct {
	Orderings []core.Ordering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}

	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.Ordering{Field: field, Ascending: !descending})
	}
}

// bindUserFilter reads a user.QueryFilter from the query params. Malformed values are ignored.
func bindUserFilter(ctx echo.Context) user.QueryFilter {
	params := ctx.QueryParams()
	filter := user.QueryFilter{
		Search: params.Get("search"),
		Roles:  params["role"],
	}
	if v, err := strconv.ParseBool(params.Get("is_active")); err == nil {
		filter.IsActive = &v
	}
	if t, err := time.Parse(time.RFC3339, params.Get("created_from")); err == nil {
		filter.CreatedFrom = t
	}
	if t, err := time.Parse(time.RFC3339, params.Get("created_to")); err == nil {
		filter.CreatedTo = t
	}
	filter.Clean()
	return filter
}

// bindLimit reads the `limit` query param; 0 when absent or malformed.
func bindLimit(ctx echo.Context) int {
	n, err := strconv.Atoi(ctx.QueryParam(limitParam))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
