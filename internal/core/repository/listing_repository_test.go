package repository_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhenhaojia/house/internal/core/database"
	"github.com/zhenhaojia/house/internal/core/domain"
	"github.com/zhenhaojia/house/internal/core/fallback"
	"github.com/zhenhaojia/house/internal/core/pool"
	"github.com/zhenhaojia/house/internal/core/pool/pooltest"
	"github.com/zhenhaojia/house/internal/core/query"
	"github.com/zhenhaojia/house/internal/core/repository"
)

var created = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func listingRow(id int64, city string) pool.Row {
	return pool.Row{
		"id":             id,
		"title":          "整租两居",
		"city":           city,
		"district":       "朝阳区",
		"address":        "望京",
		"price":          int32(6500),
		"area":           75.5,
		"house_type":     "2室1厅",
		"description":    "近地铁",
		"contact_name":   "王先生",
		"contact_phone":  "13800000000",
		"contact_wechat": nil,
		"status":         "published",
		"created_at":     created,
		"updated_at":     created,
	}
}

func newRepo(t *testing.T, h pooltest.Handler) (*repository.SQLListingRepository, *pooltest.Dialer) {
	t.Helper()
	d := pooltest.NewDialer(h)
	p, err := pool.New(context.Background(), d, pool.Config{MaxConns: 2, AcquireTimeout: 100 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(p.Shutdown)
	return repository.NewListingRepository(database.NewExecutor(p, database.Options{}), nil), d
}

func TestListQueriesPageAndCount(t *testing.T) {
	script := (&pooltest.Script{}).
		On("COUNT(*)", pooltest.Rows(pool.Row{"total": int64(23)})).
		On("FROM listings", pooltest.Rows(listingRow(11, "北京"), listingRow(12, "北京")))
	repo, d := newRepo(t, script.Handle)

	res, err := repo.List(context.Background(),
		domain.FilterSpec{City: "北京", PriceMin: "5000", PriceMax: "10000"},
		domain.PageSpec{Page: 2, Limit: 10},
	)
	require.NoError(t, err)

	assert.False(t, res.Degraded)
	assert.Empty(t, res.SnapshotVersion)
	assert.Equal(t, 23, res.TotalItems)
	assert.Equal(t, 3, res.TotalPages)
	assert.Equal(t, domain.Page{Page: 2, Limit: 10, Offset: 10}, res.Page)
	require.Len(t, res.Listings, 2)

	l := res.Listings[0]
	assert.Equal(t, int64(11), l.ID)
	assert.Equal(t, 6500, l.Price)
	assert.Equal(t, 75.5, l.Area)
	assert.Equal(t, "", l.ContactWechat)
	assert.Equal(t, domain.StatusPublished, l.Status)
	assert.Equal(t, created, l.CreatedAt)

	stmts := d.Statements()
	require.Len(t, stmts, 2)

	page := stmts[0]
	assert.Contains(t, page.SQL, "WHERE status = $1 AND city LIKE $2 AND price >= $3 AND price <= $4")
	assert.Contains(t, page.SQL, "ORDER BY created_at DESC, id DESC LIMIT $5 OFFSET $6")
	assert.Equal(t, []any{"published", "%北京%", 5000, 10000, 10, 10}, page.Args)

	count := stmts[1]
	assert.Equal(t, "SELECT COUNT(*) AS total FROM listings WHERE status = $1 AND city LIKE $2 AND price >= $3 AND price <= $4", count.SQL)
	assert.Equal(t, []any{"published", "%北京%", 5000, 10000}, count.Args)
}

func TestListAdminAllHasNoWhere(t *testing.T) {
	script := (&pooltest.Script{}).On("COUNT(*)", pooltest.Rows(pool.Row{"total": int64(0)}))
	repo, d := newRepo(t, script.Handle)

	res, err := repo.List(context.Background(),
		domain.FilterSpec{Admin: true, Status: "all", SortBy: "price", Order: "asc"},
		query.DefaultPageSpec(),
	)
	require.NoError(t, err)
	assert.Empty(t, res.Listings)
	assert.Zero(t, res.TotalPages)

	for _, sql := range d.SQL() {
		assert.NotContains(t, sql, "WHERE")
	}
	assert.Contains(t, d.SQL()[0], "ORDER BY price ASC, id ASC LIMIT $1 OFFSET $2")
}

func TestListDegradesWhenStoreIsDown(t *testing.T) {
	repo, d := newRepo(t, nil)
	d.FailDials(errors.New("dial tcp: connection refused"))

	var logs bytes.Buffer
	ctx := zerolog.New(&logs).WithContext(context.Background())

	res, err := repo.List(ctx, domain.FilterSpec{}, query.DefaultPageSpec())
	require.NoError(t, err)

	assert.True(t, res.Degraded)
	assert.NotEmpty(t, res.Listings)
	assert.Equal(t, fallback.Default().Version(), res.SnapshotVersion)
	assert.Contains(t, logs.String(), "serving fallback snapshot")
}

func TestListDegradesOnlyOnCity(t *testing.T) {
	repo, _ := newRepo(t, pooltest.Fail(errors.New("relation \"listings\" does not exist")))

	res, err := repo.List(context.Background(),
		domain.FilterSpec{City: "上海", PriceMin: "1", Keyword: "ignored"},
		query.DefaultPageSpec(),
	)
	require.NoError(t, err)
	require.True(t, res.Degraded)
	require.NotEmpty(t, res.Listings)
	for _, l := range res.Listings {
		assert.Equal(t, "上海", l.City)
	}
}

func TestListDegradesWhenCountFails(t *testing.T) {
	script := (&pooltest.Script{}).
		On("COUNT(*)", pooltest.Fail(errors.New("canceling statement due to statement timeout"))).
		On("FROM listings", pooltest.Rows(listingRow(1, "北京")))
	repo, _ := newRepo(t, script.Handle)

	res, err := repo.List(context.Background(), domain.FilterSpec{}, query.DefaultPageSpec())
	require.NoError(t, err)
	assert.True(t, res.Degraded)
}

func TestListDegradedAdminStatusFilterIsEmpty(t *testing.T) {
	repo, d := newRepo(t, nil)
	d.FailDials(errors.New("dial tcp: connection refused"))

	for _, status := range []string{"pending", "rejected", "draft", "deleted"} {
		res, err := repo.List(context.Background(), domain.FilterSpec{Admin: true, Status: status}, query.DefaultPageSpec())
		require.NoError(t, err, status)
		assert.True(t, res.Degraded, status)
		assert.Empty(t, res.Listings, status)
		assert.Zero(t, res.TotalItems, status)
	}

	res, err := repo.List(context.Background(), domain.FilterSpec{Admin: true, Status: "all"}, query.DefaultPageSpec())
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.NotEmpty(t, res.Listings)
}

func TestListValidationDoesNotQuery(t *testing.T) {
	repo, d := newRepo(t, nil)

	_, err := repo.List(context.Background(), domain.FilterSpec{PriceMin: "abc"}, query.DefaultPageSpec())
	assert.ErrorIs(t, err, query.ErrValidation)

	_, err = repo.List(context.Background(), domain.FilterSpec{}, domain.PageSpec{Page: 1, Limit: 0})
	assert.ErrorIs(t, err, query.ErrValidation)

	_, err = repo.List(context.Background(), domain.FilterSpec{SortBy: "contact_phone"}, query.DefaultPageSpec())
	assert.ErrorIs(t, err, query.ErrValidation)

	assert.Zero(t, d.Dials())
}

func TestGetByID(t *testing.T) {
	script := (&pooltest.Script{}).On("WHERE id = $1", func(_ context.Context, _ string, args []any) (pool.Result, error) {
		if args[0] == int64(5) {
			return pool.Result{Rows: []pool.Row{listingRow(5, "北京")}}, nil
		}
		return pool.Result{}, nil
	})
	repo, d := newRepo(t, script.Handle)

	l, err := repo.GetByID(context.Background(), 5, false)
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.Equal(t, int64(5), l.ID)
	assert.Contains(t, d.SQL()[0], "AND status = $2")

	l, err = repo.GetByID(context.Background(), 6, true)
	require.NoError(t, err)
	assert.Nil(t, l)
	assert.NotContains(t, d.SQL()[1], "status =")
}

func TestGetByIDFailureIsAnError(t *testing.T) {
	repo, _ := newRepo(t, pooltest.Fail(errors.New("boom")))

	_, err := repo.GetByID(context.Background(), 1, false)
	assert.ErrorIs(t, err, database.ErrQueryFailure)
}

func TestCreate(t *testing.T) {
	repo, d := newRepo(t, pooltest.Rows(listingRow(99, "杭州")))

	l, err := repo.Create(context.Background(), domain.Listing{Title: "t", City: "杭州", Price: 3000, ContactPhone: "1"})
	require.NoError(t, err)
	assert.Equal(t, int64(99), l.ID)

	stmt := d.Statements()[0]
	assert.True(t, strings.HasPrefix(stmt.SQL, "INSERT INTO listings"))
	assert.Contains(t, stmt.SQL, "RETURNING id")
	require.Len(t, stmt.Args, 12)
	assert.Nil(t, stmt.Args[5], "zero area is stored as NULL")
	assert.Equal(t, "published", stmt.Args[11])
}

func TestCreateFailureSurfaces(t *testing.T) {
	repo, _ := newRepo(t, pooltest.Fail(errors.New(`violates check constraint "listings_price_check"`)))

	_, err := repo.Create(context.Background(), domain.Listing{Title: "t", City: "c", Price: 1})
	assert.ErrorIs(t, err, database.ErrQueryFailure)
	assert.Contains(t, err.Error(), "listings_price_check")
}

func TestPublishWritesAuditInTransaction(t *testing.T) {
	repo, d := newRepo(t, pooltest.Rows(listingRow(7, "成都")))

	l, err := repo.Publish(context.Background(), domain.Listing{Title: "t", City: "成都", Price: 2000, Status: domain.StatusDraft}, "ops")
	require.NoError(t, err)
	assert.Equal(t, int64(7), l.ID)

	sqls := d.SQL()
	require.Len(t, sqls, 4)
	assert.Equal(t, "BEGIN", sqls[0])
	assert.True(t, strings.HasPrefix(sqls[1], "INSERT INTO listings"))
	assert.True(t, strings.HasPrefix(sqls[2], "INSERT INTO admin_audit_logs"))
	assert.Equal(t, "COMMIT", sqls[3])

	stmts := d.Statements()
	assert.Equal(t, "published", stmts[1].Args[11])
	assert.Equal(t, []any{int64(7), "publish", "", "ops"}, stmts[2].Args)
}

func TestPublishRollsBackWhenAuditFails(t *testing.T) {
	script := (&pooltest.Script{}).
		On("admin_audit_logs", pooltest.Fail(errors.New("disk full"))).
		On("INSERT INTO listings", pooltest.Rows(listingRow(7, "成都")))
	repo, d := newRepo(t, script.Handle)

	_, err := repo.Publish(context.Background(), domain.Listing{Title: "t", City: "成都", Price: 2000}, "ops")
	assert.ErrorIs(t, err, database.ErrQueryFailure)
	assert.Equal(t, "ROLLBACK", d.SQL()[len(d.SQL())-1])
}

func TestUpdate(t *testing.T) {
	repo, d := newRepo(t, func(context.Context, string, []any) (pool.Result, error) {
		return pool.Result{RowsAffected: 1}, nil
	})
	price := 7000

	ok, err := repo.Update(context.Background(), 3, domain.ListingUpdate{Price: &price})
	require.NoError(t, err)
	assert.True(t, ok)

	stmt := d.Statements()[0]
	assert.Equal(t, "UPDATE listings SET price = $1, updated_at = now() WHERE id = $2 AND status <> $3", stmt.SQL)
	assert.Equal(t, []any{7000, int64(3), "deleted"}, stmt.Args)

	_, err = repo.Update(context.Background(), 3, domain.ListingUpdate{})
	assert.ErrorIs(t, err, query.ErrValidation)
}

func TestUpdateMissing(t *testing.T) {
	repo, _ := newRepo(t, nil)
	title := "x"

	ok, err := repo.Update(context.Background(), 404, domain.ListingUpdate{Title: &title})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSoftDelete(t *testing.T) {
	repo, d := newRepo(t, func(context.Context, string, []any) (pool.Result, error) {
		return pool.Result{RowsAffected: 1}, nil
	})

	ok, err := repo.SoftDelete(context.Background(), 8)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []any{"deleted", int64(8), "deleted"}, d.Statements()[0].Args)
}

func TestReview(t *testing.T) {
	script := (&pooltest.Script{}).On("UPDATE listings", func(context.Context, string, []any) (pool.Result, error) {
		return pool.Result{RowsAffected: 1}, nil
	})
	repo, d := newRepo(t, script.Handle)

	ok, err := repo.Review(context.Background(), domain.ReviewDecision{
		ListingID: 4, From: domain.StatusPending, To: domain.StatusRejected,
		Action: "reject", Reason: "图片不符", Actor: "admin",
	})
	require.NoError(t, err)
	assert.True(t, ok)

	sqls := d.SQL()
	require.Len(t, sqls, 4)
	assert.Equal(t, []string{"BEGIN", "COMMIT"}, []string{sqls[0], sqls[3]})
	stmts := d.Statements()
	assert.Equal(t, []any{"rejected", int64(4), "pending"}, stmts[1].Args)
	assert.Equal(t, []any{int64(4), "reject", "图片不符", "admin"}, stmts[2].Args)
}

func TestReviewNotPendingWritesNothing(t *testing.T) {
	repo, d := newRepo(t, nil)

	ok, err := repo.Review(context.Background(), domain.ReviewDecision{
		ListingID: 4, From: domain.StatusPending, To: domain.StatusPublished, Action: "approve",
	})
	require.NoError(t, err)
	assert.False(t, ok)
	for _, sql := range d.SQL() {
		assert.NotContains(t, sql, "admin_audit_logs")
	}
}

func TestSuggestions(t *testing.T) {
	script := (&pooltest.Script{}).
		On("DISTINCT city", pooltest.Rows(pool.Row{"value": "北京"})).
		On("DISTINCT district", pooltest.Rows(pool.Row{"value": "北京路"}, pool.Row{"value": "北京东路"}))
	repo, d := newRepo(t, script.Handle)

	got, err := repo.Suggestions(context.Background(), "北京")
	require.NoError(t, err)
	assert.Equal(t, []domain.Suggestion{
		{Type: "city", Value: "北京", Label: "北京市"},
		{Type: "district", Value: "北京路", Label: "北京路"},
		{Type: "district", Value: "北京东路", Label: "北京东路"},
	}, got)
	assert.Equal(t, []any{"%北京%", "published", 5}, d.Statements()[0].Args)
}

func TestFilterOptions(t *testing.T) {
	script := (&pooltest.Script{}).
		On("MIN(price)", pooltest.Rows(pool.Row{"min_price": int32(1500), "max_price": int32(12000), "min_area": nil, "max_area": nil})).
		On("SELECT city", pooltest.Rows(pool.Row{"value": "北京", "count": int64(3)})).
		On("SELECT house_type", pooltest.Rows(pool.Row{"value": "1室1厅", "count": int64(2)}))
	repo, _ := newRepo(t, script.Handle)

	opts, err := repo.FilterOptions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.OptionCount{{Value: "北京", Label: "北京", Count: 3}}, opts.Cities)
	assert.Empty(t, opts.Districts)
	assert.Len(t, opts.HouseTypes, 1)
	assert.Equal(t, domain.IntRange{Min: 1500, Max: 12000}, opts.PriceRange)
	assert.Equal(t, domain.FloatRange{Min: 0, Max: 200}, opts.AreaRange)
}

func TestFilterOptionsEmptyStoreUsesDefaults(t *testing.T) {
	repo, _ := newRepo(t, nil)

	opts, err := repo.FilterOptions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.IntRange{Min: 0, Max: 10000}, opts.PriceRange)
	assert.Equal(t, domain.FloatRange{Min: 0, Max: 200}, opts.AreaRange)
}

func TestHotCities(t *testing.T) {
	repo, _ := newRepo(t, pooltest.Rows(pool.Row{"value": "深圳", "count": int64(9)}))

	hot, degraded, err := repo.HotCities(context.Background(), 6)
	require.NoError(t, err)
	assert.False(t, degraded)
	assert.Equal(t, []domain.OptionCount{{Value: "深圳", Label: "深圳", Count: 9}}, hot)
}

func TestHotCitiesDegrade(t *testing.T) {
	repo, d := newRepo(t, nil)
	d.FailDials(errors.New("no route to host"))

	hot, degraded, err := repo.HotCities(context.Background(), 2)
	require.NoError(t, err)
	assert.True(t, degraded)
	assert.Equal(t, fallback.Default().HotCities(2), hot)
}

func TestHotCitiesLogsDecodeError(t *testing.T) {
	repo, _ := newRepo(t, pooltest.Rows(pool.Row{"value": "深圳", "count": "many"}))

	var logs bytes.Buffer
	ctx := zerolog.New(&logs).WithContext(context.Background())

	hot, degraded, err := repo.HotCities(ctx, 2)
	require.NoError(t, err)
	assert.True(t, degraded)
	assert.Equal(t, fallback.Default().HotCities(2), hot)
	assert.Contains(t, logs.String(), "decode hot cities")
	assert.Contains(t, logs.String(), `"error":`)
}

func TestStatistics(t *testing.T) {
	script := (&pooltest.Script{}).
		On("date_trunc", pooltest.Rows(pool.Row{"total": int64(2)})).
		On("COUNT(*) AS total", pooltest.Rows(pool.Row{"total": int64(40)})).
		On("SELECT status", pooltest.Rows(
			pool.Row{"value": "published", "count": int64(30)},
			pool.Row{"value": "pending", "count": int64(10)},
		)).
		On("SELECT city", pooltest.Rows(pool.Row{"value": "北京", "count": int64(12)})).
		On("CASE", pooltest.Rows(pool.Row{"value": "2000以下", "count": int64(5), "band_floor": int32(900)}))
	repo, _ := newRepo(t, script.Handle)

	stats, err := repo.Statistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(40), stats.TotalListings)
	assert.Equal(t, int64(2), stats.TodayListings)
	assert.Len(t, stats.StatusStats, 2)
	assert.Equal(t, "北京", stats.CityStats[0].Value)
	assert.Equal(t, int64(5), stats.PriceDistribution[0].Count)
}

func TestStatisticsFailure(t *testing.T) {
	repo, _ := newRepo(t, pooltest.Fail(errors.New("boom")))

	_, err := repo.Statistics(context.Background())
	assert.ErrorIs(t, err, database.ErrQueryFailure)
}
