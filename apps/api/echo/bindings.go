package echoapi

import (
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/schoolfees/core"
	"github.com/trezcool/schoolfees/core/fee"
)

var (
	orderingParam = "ordering"
	pageParam     = "page"
	pageSizeParam = "page_size"
)

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// bindPagination reads page & page_size. Listing is unpaginated when neither is sent.
func bindPagination(ctx echo.Context) (core.Pagination, error) {
	var page core.Pagination
	for param, dest := range map[string]*int{pageParam: &page.Page, pageSizeParam: &page.PageSize} {
		val := ctx.QueryParam(param)
		if val == "" {
			continue
		}
		n, err := strconv.Atoi(val)
		if err != nil || n < 1 {
			return core.Pagination{}, core.NewValidationError(nil, core.FieldError{
				Field: param,
				Error: "must be a positive integer",
			})
		}
		*dest = n
	}
	return page, nil
}

// bindFeeFilter reads search, status (repeatable or comma-separated), class, section, paid_from and paid_to.
func bindFeeFilter(ctx echo.Context) (fee.QueryFilter, error) {
	filter := fee.QueryFilter{
		Search:  ctx.QueryParam("search"),
		Class:   ctx.QueryParam("class"),
		Section: ctx.QueryParam("section"),
	}

	for _, val := range ctx.QueryParams()["status"] {
		for _, s := range strings.Split(val, ",") {
			if s = strings.TrimSpace(s); s == "" {
				continue
			}
			st, ok := fee.ParseStatus(s)
			if !ok {
				return fee.QueryFilter{}, core.NewValidationError(nil, core.FieldError{
					Field: fee.FieldStatus,
					Error: "unknown status " + strconv.Quote(s),
				})
			}
			filter.Statuses = append(filter.Statuses, st)
		}
	}

	var err error
	if filter.PaidFrom, err = bindDate(ctx, "paid_from"); err != nil {
		return fee.QueryFilter{}, err
	}
	if filter.PaidTo, err = bindDate(ctx, "paid_to"); err != nil {
		return fee.QueryFilter{}, err
	}
	return filter, nil
}

func bindDate(ctx echo.Context, param string) (time.Time, error) {
	val := strings.TrimSpace(ctx.QueryParam(param))
	if val == "" {
		return time.Time{}, nil
	}
	d, ok := fee.ParseDate(val)
	if !ok {
		return time.Time{}, core.NewValidationError(nil, core.FieldError{
			Field: param,
			Error: "invalid date, expected YYYY-MM-DD",
		})
	}
	return d, nil
}
