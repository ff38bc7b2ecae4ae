package repository

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/zhenhaojia/house/internal/core/domain"
	"github.com/zhenhaojia/house/internal/core/pool"
)

// listingColumns is the select list decoded by scanListing.
const listingColumns = `id, title, city, district, address, price, area, house_type, description,
	contact_name, contact_phone, contact_wechat, status, created_at, updated_at`

func scanListings(rows []pool.Row) ([]domain.Listing, error) {
	out := make([]domain.Listing, 0, len(rows))
	for _, row := range rows {
		l, err := scanListing(row)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

func scanListing(row pool.Row) (domain.Listing, error) {
	var (
		l   domain.Listing
		err error
	)
	if l.ID, err = asInt64(row["id"]); err != nil {
		return domain.Listing{}, fmt.Errorf("decode id: %w", err)
	}
	price, err := asInt64(row["price"])
	if err != nil {
		return domain.Listing{}, fmt.Errorf("decode price: %w", err)
	}
	l.Price = int(price)
	if l.Area, err = asFloat64(row["area"]); err != nil {
		return domain.Listing{}, fmt.Errorf("decode area: %w", err)
	}
	if l.CreatedAt, err = asTime(row["created_at"]); err != nil {
		return domain.Listing{}, fmt.Errorf("decode created_at: %w", err)
	}
	if l.UpdatedAt, err = asTime(row["updated_at"]); err != nil {
		return domain.Listing{}, fmt.Errorf("decode updated_at: %w", err)
	}

	text := []struct {
		column string
		dst    *string
	}{
		{"title", &l.Title},
		{"city", &l.City},
		{"district", &l.District},
		{"address", &l.Address},
		{"house_type", &l.HouseType},
		{"description", &l.Description},
		{"contact_name", &l.ContactName},
		{"contact_phone", &l.ContactPhone},
		{"contact_wechat", &l.ContactWechat},
	}
	for _, f := range text {
		if *f.dst, err = asString(row[f.column]); err != nil {
			return domain.Listing{}, fmt.Errorf("decode %s: %w", f.column, err)
		}
	}
	status, err := asString(row["status"])
	if err != nil {
		return domain.Listing{}, fmt.Errorf("decode status: %w", err)
	}
	l.Status = domain.Status(status)
	return l, nil
}

// scanCounts decodes rows of (value, count) pairs.
func scanCounts(rows []pool.Row) ([]domain.OptionCount, error) {
	out := make([]domain.OptionCount, 0, len(rows))
	for _, row := range rows {
		n, err := asInt64(row["count"])
		if err != nil {
			return nil, fmt.Errorf("decode count: %w", err)
		}
		v, err := asString(row["value"])
		if err != nil {
			return nil, fmt.Errorf("decode value: %w", err)
		}
		out = append(out, domain.OptionCount{Value: v, Label: v, Count: n})
	}
	return out, nil
}

// asInt64 accepts every integer width the driver produces. NULL is zero.
// A float is only accepted when it holds a whole number in range.
func asInt64(v any) (int64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int:
		return int64(n), nil
	case float64:
		if n != math.Trunc(n) || n < math.MinInt64 || n >= math.MaxInt64 {
			return 0, fmt.Errorf("%v is not a whole int64", n)
		}
		return int64(n), nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	case []byte:
		return strconv.ParseInt(string(n), 10, 64)
	default:
		return 0, fmt.Errorf("unexpected integer type %T", v)
	}
}

func asFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case string:
		return strconv.ParseFloat(n, 64)
	case []byte:
		return strconv.ParseFloat(string(n), 64)
	default:
		return 0, fmt.Errorf("unexpected number type %T", v)
	}
}

// asString also covers CITEXT, which the driver hands back as text or raw
// bytes depending on the wire format.
func asString(v any) (string, error) {
	switch s := v.(type) {
	case nil:
		return "", nil
	case string:
		return s, nil
	case []byte:
		return string(s), nil
	default:
		return "", fmt.Errorf("unexpected text type %T", v)
	}
}

func asTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return t, nil
	case string:
		return time.Parse(time.RFC3339Nano, t)
	default:
		return time.Time{}, fmt.Errorf("unexpected time type %T", v)
	}
}
