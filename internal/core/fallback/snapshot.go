// Package fallback holds the fixed listing data served by read endpoints
// while the database is unreachable.
package fallback

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/zhenhaojia/house/internal/core/domain"
	"github.com/zhenhaojia/house/internal/core/query"
)

// Snapshot is an immutable, versioned set of listings.
type Snapshot struct {
	version  string
	listings []domain.Listing
}

// New returns a snapshot over a copy of listings, kept in the given order.
func New(version string, listings []domain.Listing) *Snapshot {
	return &Snapshot{version: version, listings: slices.Clone(listings)}
}

// Version identifies the snapshot contents.
func (s *Snapshot) Version() string { return s.version }

// Len is the number of listings in the snapshot, of any status.
func (s *Snapshot) Len() int { return len(s.listings) }

// List pages through the published listings whose city contains
// filter.City, case-insensitively. No other filter field is evaluated.
// An admin filter on any status other than published or all matches
// nothing. The result is always flagged Degraded.
func (s *Snapshot) List(filter domain.FilterSpec, spec domain.PageSpec) (*domain.ListResult, error) {
	page, err := query.PlanPage(spec)
	if err != nil {
		return nil, err
	}

	city := strings.ToLower(strings.TrimSpace(filter.City))
	candidates := s.listings
	if !servesPublished(filter) {
		candidates = nil
	}
	var matched []domain.Listing
	for _, l := range candidates {
		if l.Status != domain.StatusPublished {
			continue
		}
		if city != "" && !strings.Contains(strings.ToLower(l.City), city) {
			continue
		}
		matched = append(matched, l)
	}

	start := min(page.Offset, len(matched))
	end := min(start+page.Limit, len(matched))

	return &domain.ListResult{
		Listings:        slices.Clone(matched[start:end]),
		TotalItems:      len(matched),
		TotalPages:      query.TotalPages(len(matched), page.Limit),
		Page:            page,
		Degraded:        true,
		SnapshotVersion: s.version,
	}, nil
}

// servesPublished reports whether filter can be answered with published
// rows. Other statuses only exist in the database.
func servesPublished(filter domain.FilterSpec) bool {
	if !filter.Admin {
		return true
	}
	switch domain.Status(strings.ToLower(strings.TrimSpace(filter.Status))) {
	case "", domain.StatusAll, domain.StatusPublished:
		return true
	}
	return false
}

// HotCities counts published listings per city, most listings first and
// ties broken by name. limit <= 0 returns every city.
func (s *Snapshot) HotCities(limit int) []domain.OptionCount {
	counts := make(map[string]int64)
	for _, l := range s.listings {
		if l.Status == domain.StatusPublished {
			counts[l.City]++
		}
	}

	out := make([]domain.OptionCount, 0, len(counts))
	for city, n := range counts {
		out = append(out, domain.OptionCount{Value: city, Label: city, Count: n})
	}
	slices.SortFunc(out, func(a, b domain.OptionCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Value, b.Value)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

const defaultVersion = "2024-05-01"

var defaultCreated = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

func listing(id int64, title, city, district, address string, price int, area float64, houseType string) domain.Listing {
	ts := defaultCreated.Add(-time.Duration(id) * time.Hour)
	return domain.Listing{
		ID:           id,
		Title:        title,
		City:         city,
		District:     district,
		Address:      address,
		Price:        price,
		Area:         area,
		HouseType:    houseType,
		Description:  title,
		ContactName:  "客服",
		ContactPhone: "400-000-0000",
		Status:       domain.StatusPublished,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}
}

var defaultSnapshot = New(defaultVersion, []domain.Listing{
	listing(1, "朝阳区精装两居室 近地铁", "北京", "朝阳区", "望京SOHO附近", 6500, 75, "2室1厅"),
	listing(2, "海淀区中关村一居室", "北京", "海淀区", "中关村大街", 5200, 45, "1室1厅"),
	listing(3, "浦东陆家嘴江景三居", "上海", "浦东新区", "陆家嘴环路", 12000, 110, "3室2厅"),
	listing(4, "徐汇区温馨一居", "上海", "徐汇区", "漕河泾开发区", 5800, 50, "1室1厅"),
	listing(5, "天河区CBD公寓", "广州", "天河区", "珠江新城", 4800, 55, "1室1厅"),
	listing(6, "南山区科技园两居", "深圳", "南山区", "科技园南区", 7500, 70, "2室1厅"),
	listing(7, "西湖区湖景房", "杭州", "西湖区", "文三路", 4200, 60, "2室1厅"),
	listing(8, "高新区整租三居", "成都", "高新区", "天府大道", 3500, 95, "3室1厅"),
	listing(9, "东城区胡同小院", "北京", "东城区", "南锣鼓巷", 8800, 80, "2室1厅"),
	listing(10, "福田区地铁口单间", "深圳", "福田区", "车公庙", 3000, 25, "1室0厅"),
})

// Default returns the built-in snapshot.
func Default() *Snapshot { return defaultSnapshot }
