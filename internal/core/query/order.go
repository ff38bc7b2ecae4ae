package query

import (
	"strconv"
	"strings"

	"github.com/zhenhaojia/house/internal/core/domain"
)

// Sort is a validated ORDER BY choice.
type Sort struct {
	Column string
	Desc   bool
}

// DefaultSort lists newest listings first.
var DefaultSort = Sort{Column: "created_at", Desc: true}

var sortColumns = map[string]string{
	"created_at": "created_at",
	"createdat":  "created_at",
	"price":      "price",
	"area":       "area",
}

// ParseSort maps request values onto the sortable columns. Empty values take
// DefaultSort.
func ParseSort(by, order string) (Sort, error) {
	s := DefaultSort

	if by = strings.TrimSpace(by); by != "" {
		col, ok := sortColumns[strings.ToLower(by)]
		if !ok {
			return Sort{}, invalid("sortBy", by, "not a sortable column")
		}
		s.Column = col
	}

	switch strings.ToLower(strings.TrimSpace(order)) {
	case "":
	case "asc":
		s.Desc = false
	case "desc":
		s.Desc = true
	default:
		return Sort{}, invalid("order", order, "must be asc or desc")
	}
	return s, nil
}

// OrderBy renders the clause. id breaks ties so pages do not overlap.
func (s Sort) OrderBy() string {
	dir := "ASC"
	if s.Desc {
		dir = "DESC"
	}
	return "ORDER BY " + s.Column + " " + dir + ", id " + dir
}

// Assignment is the SET list of an UPDATE with its bound parameters.
type Assignment struct {
	Columns []string
	Params  []any
}

// SQL renders the SET clause; updated_at is always refreshed.
func (a Assignment) SQL() string {
	return "SET " + strings.Join(append(append([]string(nil), a.Columns...), "updated_at = now()"), ", ")
}

// ErrEmptyUpdate is returned by BuildSetClause when no field was set.
var ErrEmptyUpdate = &ValidationError{Field: "update", Reason: "no fields to update"}

// BuildSetClause turns a partial update into a SET clause over the fixed column
// set, in column order.
func BuildSetClause(u domain.ListingUpdate) (Assignment, error) {
	var a Assignment
	set := func(column string, v any) {
		a.Columns = append(a.Columns, column+" = ?")
		a.Params = append(a.Params, v)
	}

	if u.Title != nil {
		set("title", *u.Title)
	}
	if u.City != nil {
		set("city", *u.City)
	}
	if u.District != nil {
		set("district", *u.District)
	}
	if u.Address != nil {
		set("address", *u.Address)
	}
	if u.Price != nil {
		if *u.Price <= 0 {
			return Assignment{}, invalid("price", strconv.Itoa(*u.Price), "must be > 0")
		}
		set("price", *u.Price)
	}
	if u.Area != nil {
		if *u.Area <= 0 {
			return Assignment{}, invalid("area", strconv.FormatFloat(*u.Area, 'f', -1, 64), "must be > 0")
		}
		set("area", *u.Area)
	}
	if u.HouseType != nil {
		set("house_type", *u.HouseType)
	}
	if u.Description != nil {
		set("description", *u.Description)
	}
	if u.ContactName != nil {
		set("contact_name", *u.ContactName)
	}
	if u.ContactPhone != nil {
		set("contact_phone", *u.ContactPhone)
	}
	if u.ContactWechat != nil {
		set("contact_wechat", *u.ContactWechat)
	}
	if u.Status != nil {
		if !u.Status.Valid() {
			return Assignment{}, invalid("status", string(*u.Status), "unknown status")
		}
		set("status", string(*u.Status))
	}

	if len(a.Columns) == 0 {
		return Assignment{}, ErrEmptyUpdate
	}
	return a, nil
}
