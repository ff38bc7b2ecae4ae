// Package query turns request input into SQL filter clauses, sort clauses
// and pagination windows.
//
// SQL text is only ever assembled from the fixed templates in this package.
// Caller-supplied values always travel as bound parameters.
package query

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/zhenhaojia/house/internal/core/domain"
)

// ErrValidation is matched by every input validation failure.
var ErrValidation = errors.New("validation error")

// ValidationError describes one rejected input field.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, value, reason string) error {
	return &ValidationError{Field: field, Value: value, Reason: reason}
}

// predicate is the closed set of filters a listing query can use.
type predicate int

const (
	predStatus predicate = iota
	predCity
	predDistrict
	predKeyword
	predPriceMin
	predPriceMax
	predHouseType
	predAreaMin
	predAreaMax
)

type template struct {
	sql string
	// binds is how many times the value is bound. The driver has no named
	// parameters, so a value used twice is passed twice.
	binds int
}

var templates = [...]template{
	predStatus:    {sql: "status = ?", binds: 1},
	predCity:      {sql: "city LIKE ?", binds: 1},
	predDistrict:  {sql: "district LIKE ?", binds: 1},
	predKeyword:   {sql: "(title LIKE ? OR description LIKE ? OR address LIKE ?)", binds: 3},
	predPriceMin:  {sql: "price >= ?", binds: 1},
	predPriceMax:  {sql: "price <= ?", binds: 1},
	predHouseType: {sql: "house_type LIKE ?", binds: 1},
	predAreaMin:   {sql: "area >= ?", binds: 1},
	predAreaMax:   {sql: "area <= ?", binds: 1},
}

// Filter is an ordered list of predicates and the parameters they bind, in
// placeholder order.
type Filter struct {
	Predicates []string
	Params     []any
}

func (f *Filter) add(p predicate, value any) {
	t := templates[p]
	f.Predicates = append(f.Predicates, t.sql)
	for i := 0; i < t.binds; i++ {
		f.Params = append(f.Params, value)
	}
}

// Where renders the filter as a WHERE clause, or "" when there are no
// predicates.
func (f Filter) Where() string {
	if len(f.Predicates) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(f.Predicates, " AND ")
}

// BuildFilter translates spec into predicates in a fixed order: status, city,
// district, keyword, price range, house type, area range.
//
// The status predicate defaults to published. Only an administrative spec
// may ask for another status, or for "all" to drop the predicate.
//
// String filters are substring matches; '%' and '_' in the value are not
// escaped and act as wildcards.
func BuildFilter(spec domain.FilterSpec) (Filter, error) {
	var f Filter

	if err := addStatus(&f, spec); err != nil {
		return Filter{}, err
	}

	if v := strings.TrimSpace(spec.City); v != "" {
		f.add(predCity, contains(v))
	}
	if v := strings.TrimSpace(spec.District); v != "" {
		f.add(predDistrict, contains(v))
	}
	if v := strings.TrimSpace(spec.Keyword); v != "" {
		f.add(predKeyword, contains(v))
	}

	priceMin, hasMin, err := parseInt("priceMin", spec.PriceMin)
	if err != nil {
		return Filter{}, err
	}
	priceMax, hasMax, err := parseInt("priceMax", spec.PriceMax)
	if err != nil {
		return Filter{}, err
	}
	if hasMin && hasMax && priceMin > priceMax {
		return Filter{}, invalid("priceMin", spec.PriceMin, "greater than priceMax")
	}
	if hasMin {
		f.add(predPriceMin, priceMin)
	}
	if hasMax {
		f.add(predPriceMax, priceMax)
	}

	if v := strings.TrimSpace(spec.HouseType); v != "" {
		f.add(predHouseType, contains(v))
	}

	areaMin, hasAreaMin, err := parseFloat("areaMin", spec.AreaMin)
	if err != nil {
		return Filter{}, err
	}
	areaMax, hasAreaMax, err := parseFloat("areaMax", spec.AreaMax)
	if err != nil {
		return Filter{}, err
	}
	if hasAreaMin && hasAreaMax && areaMin > areaMax {
		return Filter{}, invalid("areaMin", spec.AreaMin, "greater than areaMax")
	}
	if hasAreaMin {
		f.add(predAreaMin, areaMin)
	}
	if hasAreaMax {
		f.add(predAreaMax, areaMax)
	}

	return f, nil
}

func addStatus(f *Filter, spec domain.FilterSpec) error {
	raw := strings.TrimSpace(spec.Status)
	status := domain.Status(strings.ToLower(raw))

	switch {
	case status == "":
		f.add(predStatus, string(domain.StatusPublished))
	case status == domain.StatusAll:
		if !spec.Admin {
			f.add(predStatus, string(domain.StatusPublished))
		}
	case !status.Valid():
		return invalid("status", raw, "unknown status")
	case !spec.Admin:
		// Public callers only ever see published listings.
		f.add(predStatus, string(domain.StatusPublished))
	default:
		f.add(predStatus, string(status))
	}
	return nil
}

func contains(v string) string {
	return "%" + v + "%"
}

func parseInt(field, raw string) (int, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, invalid(field, raw, "not an integer")
	}
	if n < 0 {
		return 0, false, invalid(field, raw, "must not be negative")
	}
	return n, true, nil
}

func parseFloat(field, raw string) (float64, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false, nil
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false, invalid(field, raw, "not a number")
	}
	if n < 0 {
		return 0, false, invalid(field, raw, "must not be negative")
	}
	return n, true, nil
}
