package repository

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/zhenhaojia/house/internal/core/database"
	"github.com/zhenhaojia/house/internal/core/domain"
	"github.com/zhenhaojia/house/internal/core/fallback"
	"github.com/zhenhaojia/house/internal/core/pool"
	"github.com/zhenhaojia/house/internal/core/query"
	"github.com/zhenhaojia/house/internal/logger"
)

const (
	suggestionsPerKind = 5
	statsCityLimit     = 10

	defaultPriceMax = 10000
	defaultAreaMax  = 200
)

// SQLListingRepository implements domain.ListingRepository on a
// database.Executor. Read paths fall back to snapshot when the store fails.
type SQLListingRepository struct {
	exec     *database.Executor
	snapshot *fallback.Snapshot
}

// NewListingRepository creates a SQLListingRepository. A nil snapshot uses
// fallback.Default.
func NewListingRepository(exec *database.Executor, snapshot *fallback.Snapshot) *SQLListingRepository {
	if snapshot == nil {
		snapshot = fallback.Default()
	}
	return &SQLListingRepository{exec: exec, snapshot: snapshot}
}

var _ domain.ListingRepository = (*SQLListingRepository)(nil)

// List runs the filtered page query and a count over the same predicates.
func (r *SQLListingRepository) List(ctx context.Context, filter domain.FilterSpec, spec domain.PageSpec) (*domain.ListResult, error) {
	f, err := query.BuildFilter(filter)
	if err != nil {
		return nil, err
	}
	sort, err := query.ParseSort(filter.SortBy, filter.Order)
	if err != nil {
		return nil, err
	}
	page, err := query.PlanPage(spec)
	if err != nil {
		return nil, err
	}

	where := f.Where()
	listSQL := compose("SELECT", listingColumns, "FROM listings", where, sort.OrderBy(), "LIMIT ? OFFSET ?")
	params := append(slices.Clone(f.Params), page.Limit, page.Offset)

	res := r.exec.Execute(ctx, listSQL, params...)
	if !res.Success {
		return r.degrade(ctx, filter, spec, res.Err)
	}
	listings, err := scanListings(res.Rows)
	if err != nil {
		return r.degrade(ctx, filter, spec, err)
	}

	count := r.exec.Execute(ctx, compose("SELECT COUNT(*) AS total FROM listings", where), f.Params...)
	if !count.Success {
		return r.degrade(ctx, filter, spec, count.Err)
	}
	total, err := firstInt(count.Rows, "total")
	if err != nil {
		return r.degrade(ctx, filter, spec, err)
	}

	return &domain.ListResult{
		Listings:   listings,
		TotalItems: int(total),
		TotalPages: query.TotalPages(int(total), page.Limit),
		Page:       page,
	}, nil
}

func (r *SQLListingRepository) degrade(ctx context.Context, filter domain.FilterSpec, spec domain.PageSpec, cause error) (*domain.ListResult, error) {
	logger.FromContext(ctx).Warn().
		Err(cause).
		Str("snapshot_version", r.snapshot.Version()).
		Msg("Listing query failed, serving fallback snapshot")
	return r.snapshot.List(filter, spec)
}

// GetByID returns (nil, nil) when no visible listing has the id.
func (r *SQLListingRepository) GetByID(ctx context.Context, id int64, includeHidden bool) (*domain.Listing, error) {
	sql := compose("SELECT", listingColumns, "FROM listings WHERE id = ?")
	params := []any{id}
	if !includeHidden {
		sql += " AND status = ?"
		params = append(params, string(domain.StatusPublished))
	}

	res := r.exec.Execute(ctx, sql, params...)
	if !res.Success {
		return nil, fmt.Errorf("get listing %d: %w", id, res.Err)
	}
	if len(res.Rows) == 0 {
		return nil, nil
	}
	l, err := scanListing(res.Rows[0])
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// Create inserts l. An empty status stores the listing as published.
func (r *SQLListingRepository) Create(ctx context.Context, l domain.Listing) (*domain.Listing, error) {
	return insertListing(ctx, r.exec, l)
}

// Publish inserts l as published and records the audit entry in the same
// transaction.
func (r *SQLListingRepository) Publish(ctx context.Context, l domain.Listing, actor string) (*domain.Listing, error) {
	l.Status = domain.StatusPublished
	return database.InTransaction(ctx, r.exec, func(ctx context.Context, tx *database.Tx) (*domain.Listing, error) {
		created, err := insertListing(ctx, tx, l)
		if err != nil {
			return nil, err
		}
		if err := insertAudit(ctx, tx, created.ID, "publish", "", actor); err != nil {
			return nil, err
		}
		return created, nil
	})
}

func insertListing(ctx context.Context, q database.Querier, l domain.Listing) (*domain.Listing, error) {
	if l.Status == "" {
		l.Status = domain.StatusPublished
	}
	var area any
	if l.Area > 0 {
		area = l.Area
	}

	sql := compose(
		"INSERT INTO listings (title, city, district, address, price, area, house_type, description,",
		"contact_name, contact_phone, contact_wechat, status)",
		"VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		"RETURNING", listingColumns,
	)
	res := q.Execute(ctx, sql,
		l.Title, l.City, l.District, l.Address, l.Price, area, l.HouseType, l.Description,
		l.ContactName, l.ContactPhone, l.ContactWechat, string(l.Status),
	)
	if !res.Success {
		return nil, fmt.Errorf("insert listing: %w", res.Err)
	}
	if len(res.Rows) == 0 {
		return nil, errors.New("insert listing: no row returned")
	}
	created, err := scanListing(res.Rows[0])
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func insertAudit(ctx context.Context, q database.Querier, listingID int64, action, reason, actor string) error {
	res := q.Execute(ctx,
		"INSERT INTO admin_audit_logs (listing_id, action, reason, actor) VALUES (?, ?, ?, ?)",
		listingID, action, reason, actor,
	)
	if !res.Success {
		return fmt.Errorf("insert audit log: %w", res.Err)
	}
	return nil
}

// Update applies u to a listing that is not deleted.
func (r *SQLListingRepository) Update(ctx context.Context, id int64, u domain.ListingUpdate) (bool, error) {
	set, err := query.BuildSetClause(u)
	if err != nil {
		return false, err
	}

	sql := compose("UPDATE listings", set.SQL(), "WHERE id = ? AND status <> ?")
	params := append(slices.Clone(set.Params), id, string(domain.StatusDeleted))

	res := r.exec.Execute(ctx, sql, params...)
	if !res.Success {
		return false, fmt.Errorf("update listing %d: %w", id, res.Err)
	}
	return res.RowsAffected > 0, nil
}

// SoftDelete marks a listing deleted. Deleting twice reports false.
func (r *SQLListingRepository) SoftDelete(ctx context.Context, id int64) (bool, error) {
	res := r.exec.Execute(ctx,
		"UPDATE listings SET status = ?, updated_at = now() WHERE id = ? AND status <> ?",
		string(domain.StatusDeleted), id, string(domain.StatusDeleted),
	)
	if !res.Success {
		return false, fmt.Errorf("delete listing %d: %w", id, res.Err)
	}
	return res.RowsAffected > 0, nil
}

// Review moves a listing from d.From to d.To and records the decision. The
// status change and the audit entry commit together or not at all.
func (r *SQLListingRepository) Review(ctx context.Context, d domain.ReviewDecision) (bool, error) {
	return database.InTransaction(ctx, r.exec, func(ctx context.Context, tx *database.Tx) (bool, error) {
		res := tx.Execute(ctx,
			"UPDATE listings SET status = ?, updated_at = now() WHERE id = ? AND status = ?",
			string(d.To), d.ListingID, string(d.From),
		)
		if !res.Success {
			return false, fmt.Errorf("review listing %d: %w", d.ListingID, res.Err)
		}
		if res.RowsAffected == 0 {
			return false, nil
		}
		if err := insertAudit(ctx, tx, d.ListingID, d.Action, d.Reason, d.Actor); err != nil {
			return false, err
		}
		return true, nil
	})
}

// Suggestions returns up to five cities then up to five districts.
func (r *SQLListingRepository) Suggestions(ctx context.Context, q string) ([]domain.Suggestion, error) {
	pattern := "%" + strings.TrimSpace(q) + "%"
	published := string(domain.StatusPublished)

	cities := r.exec.Execute(ctx,
		"SELECT DISTINCT city AS value FROM listings WHERE city LIKE ? AND status = ? ORDER BY value LIMIT ?",
		pattern, published, suggestionsPerKind,
	)
	if !cities.Success {
		return nil, fmt.Errorf("city suggestions: %w", cities.Err)
	}
	districts := r.exec.Execute(ctx,
		"SELECT DISTINCT district AS value FROM listings WHERE district LIKE ? AND status = ? AND district <> '' ORDER BY value LIMIT ?",
		pattern, published, suggestionsPerKind,
	)
	if !districts.Success {
		return nil, fmt.Errorf("district suggestions: %w", districts.Err)
	}

	out := make([]domain.Suggestion, 0, len(cities.Rows)+len(districts.Rows))
	for _, row := range cities.Rows {
		city, err := asString(row["value"])
		if err != nil {
			return nil, fmt.Errorf("decode city suggestion: %w", err)
		}
		out = append(out, domain.Suggestion{Type: "city", Value: city, Label: city + "市"})
	}
	for _, row := range districts.Rows {
		district, err := asString(row["value"])
		if err != nil {
			return nil, fmt.Errorf("decode district suggestion: %w", err)
		}
		out = append(out, domain.Suggestion{Type: "district", Value: district, Label: district})
	}
	return out, nil
}

// FilterOptions aggregates published listings. Empty ranges take the
// defaults 0-10000 for price and 0-200 for area.
func (r *SQLListingRepository) FilterOptions(ctx context.Context) (*domain.FilterOptions, error) {
	published := string(domain.StatusPublished)
	var opts domain.FilterOptions

	groups := []struct {
		column string
		dst    *[]domain.OptionCount
	}{
		{"city", &opts.Cities},
		{"district", &opts.Districts},
		{"house_type", &opts.HouseTypes},
	}
	for _, g := range groups {
		res := r.exec.Execute(ctx,
			"SELECT "+g.column+" AS value, COUNT(*) AS count FROM listings WHERE status = ? AND "+g.column+" <> '' GROUP BY "+g.column+" ORDER BY count DESC, value",
			published,
		)
		if !res.Success {
			return nil, fmt.Errorf("%s options: %w", g.column, res.Err)
		}
		counts, err := scanCounts(res.Rows)
		if err != nil {
			return nil, err
		}
		*g.dst = counts
	}

	res := r.exec.Execute(ctx,
		"SELECT MIN(price) AS min_price, MAX(price) AS max_price, MIN(area) AS min_area, MAX(area) AS max_area FROM listings WHERE status = ?",
		published,
	)
	if !res.Success {
		return nil, fmt.Errorf("range options: %w", res.Err)
	}
	opts.PriceRange = domain.IntRange{Min: 0, Max: defaultPriceMax}
	opts.AreaRange = domain.FloatRange{Min: 0, Max: defaultAreaMax}
	if len(res.Rows) > 0 {
		row := res.Rows[0]
		if v, err := asInt64(row["min_price"]); err == nil && v > 0 {
			opts.PriceRange.Min = int(v)
		}
		if v, err := asInt64(row["max_price"]); err == nil && v > 0 {
			opts.PriceRange.Max = int(v)
		}
		if v, err := asFloat64(row["min_area"]); err == nil && v > 0 {
			opts.AreaRange.Min = v
		}
		if v, err := asFloat64(row["max_area"]); err == nil && v > 0 {
			opts.AreaRange.Max = v
		}
	}
	return &opts, nil
}

// HotCities returns the snapshot's counts, flagged true, when the store fails.
func (r *SQLListingRepository) HotCities(ctx context.Context, limit int) ([]domain.OptionCount, bool, error) {
	res := r.exec.Execute(ctx,
		"SELECT city AS value, COUNT(*) AS count FROM listings WHERE status = ? GROUP BY city ORDER BY count DESC, value LIMIT ?",
		string(domain.StatusPublished), limit,
	)
	cause := res.Err
	if res.Success {
		counts, err := scanCounts(res.Rows)
		if err == nil {
			return counts, false, nil
		}
		cause = fmt.Errorf("decode hot cities: %w", err)
	}

	logger.FromContext(ctx).Warn().
		Err(cause).
		Str("snapshot_version", r.snapshot.Version()).
		Msg("Hot cities query failed, serving fallback snapshot")
	return r.snapshot.HotCities(limit), true, nil
}

// priceBands mirrors the buckets shown on the admin dashboard.
const priceBands = `CASE
		WHEN price < 2000 THEN '2000以下'
		WHEN price < 4000 THEN '2000-4000'
		WHEN price < 6000 THEN '4000-6000'
		WHEN price < 8000 THEN '6000-8000'
		ELSE '8000以上'
	END`

// Statistics is the admin overview. The total excludes deleted listings;
// today's count, the city ranking and the price bands cover published ones.
func (r *SQLListingRepository) Statistics(ctx context.Context) (*domain.Statistics, error) {
	published := string(domain.StatusPublished)
	var stats domain.Statistics

	res := r.exec.Execute(ctx, "SELECT COUNT(*) AS total FROM listings WHERE status <> ?", string(domain.StatusDeleted))
	if !res.Success {
		return nil, fmt.Errorf("count listings: %w", res.Err)
	}
	total, err := firstInt(res.Rows, "total")
	if err != nil {
		return nil, err
	}
	stats.TotalListings = total

	res = r.exec.Execute(ctx,
		"SELECT COUNT(*) AS total FROM listings WHERE status = ? AND created_at >= date_trunc('day', now())",
		published,
	)
	if !res.Success {
		return nil, fmt.Errorf("count today's listings: %w", res.Err)
	}
	if stats.TodayListings, err = firstInt(res.Rows, "total"); err != nil {
		return nil, err
	}

	breakdowns := []struct {
		name   string
		sql    string
		params []any
		dst    *[]domain.OptionCount
	}{
		{
			name: "status",
			sql:  "SELECT status AS value, COUNT(*) AS count FROM listings GROUP BY status ORDER BY count DESC, value",
			dst:  &stats.StatusStats,
		},
		{
			name:   "city",
			sql:    "SELECT city AS value, COUNT(*) AS count FROM listings WHERE status = ? GROUP BY city ORDER BY count DESC, value LIMIT ?",
			params: []any{published, statsCityLimit},
			dst:    &stats.CityStats,
		},
		{
			name:   "price",
			sql:    "SELECT " + priceBands + " AS value, COUNT(*) AS count, MIN(price) AS band_floor FROM listings WHERE status = ? GROUP BY 1 ORDER BY band_floor",
			params: []any{published},
			dst:    &stats.PriceDistribution,
		},
	}
	for _, b := range breakdowns {
		res := r.exec.Execute(ctx, b.sql, b.params...)
		if !res.Success {
			return nil, fmt.Errorf("%s statistics: %w", b.name, res.Err)
		}
		counts, err := scanCounts(res.Rows)
		if err != nil {
			return nil, err
		}
		*b.dst = counts
	}
	return &stats, nil
}

func firstInt(rows []pool.Row, column string) (int64, error) {
	if len(rows) == 0 {
		return 0, fmt.Errorf("missing %s row", column)
	}
	return asInt64(rows[0][column])
}

// compose joins the non-empty parts of a statement with single spaces.
func compose(parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}
