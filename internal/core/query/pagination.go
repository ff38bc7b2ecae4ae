package query

import (
	"math"
	"strconv"
	"strings"

	"github.com/zhenhaojia/house/internal/core/domain"
)

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100

	maxPage = math.MaxInt32
)

// DefaultPageSpec is the first page with the default page size.
func DefaultPageSpec() domain.PageSpec {
	return domain.PageSpec{Page: DefaultPage, Limit: DefaultLimit}
}

// ParsePageSpec reads raw page/limit request values. Empty values take the
// defaults; anything else must be an integer.
func ParsePageSpec(page, limit string) (domain.PageSpec, error) {
	spec := DefaultPageSpec()

	if page = strings.TrimSpace(page); page != "" {
		n, err := strconv.Atoi(page)
		if err != nil {
			return domain.PageSpec{}, invalid("page", page, "not an integer")
		}
		spec.Page = n
	}
	if limit = strings.TrimSpace(limit); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil {
			return domain.PageSpec{}, invalid("limit", limit, "not an integer")
		}
		spec.Limit = n
	}
	return spec, nil
}

// PlanPage validates spec and derives the row offset. Limits above MaxLimit
// are capped; page or limit below 1 is rejected.
func PlanPage(spec domain.PageSpec) (domain.Page, error) {
	if spec.Page < 1 {
		return domain.Page{}, invalid("page", strconv.Itoa(spec.Page), "must be >= 1")
	}
	if spec.Page > maxPage {
		return domain.Page{}, invalid("page", strconv.Itoa(spec.Page), "too large")
	}
	if spec.Limit < 1 {
		return domain.Page{}, invalid("limit", strconv.Itoa(spec.Limit), "must be >= 1")
	}
	limit := min(spec.Limit, MaxLimit)

	return domain.Page{
		Page:   spec.Page,
		Limit:  limit,
		Offset: (spec.Page - 1) * limit,
	}, nil
}

// TotalPages is ceil(totalItems / limit).
func TotalPages(totalItems, limit int) int {
	if totalItems <= 0 || limit <= 0 {
		return 0
	}
	return (totalItems + limit - 1) / limit
}
