package domain

import "time"

// Status governs who can see a listing. Only published listings are shown
// on public read endpoints.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusPending   Status = "pending"
	StatusRejected  Status = "rejected"
	StatusDeleted   Status = "deleted"

	// StatusAll is the filter sentinel for "any status". Only administrative
	// callers can use it to drop the status filter.
	StatusAll Status = "all"
)

// Valid reports whether s is a storable status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPublished, StatusPending, StatusRejected, StatusDeleted:
		return true
	}
	return false
}

// Listing is one rental offer.
type Listing struct {
	ID            int64     `json:"id"`
	Title         string    `json:"title"`
	City          string    `json:"city"`
	District      string    `json:"district"`
	Address       string    `json:"address"`
	Price         int       `json:"price"`
	Area          float64   `json:"area,omitempty"`
	HouseType     string    `json:"houseType"`
	Description   string    `json:"description"`
	ContactName   string    `json:"contactName"`
	ContactPhone  string    `json:"contactPhone"`
	ContactWechat string    `json:"contactWechat"`
	Status        Status    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// ListingUpdate carries the fields of a partial update. Nil fields are left
// untouched.
type ListingUpdate struct {
	Title         *string
	City          *string
	District      *string
	Address       *string
	Price         *int
	Area          *float64
	HouseType     *string
	Description   *string
	ContactName   *string
	ContactPhone  *string
	ContactWechat *string
	Status        *Status
}

// IsEmpty reports whether u changes nothing.
func (u ListingUpdate) IsEmpty() bool {
	return u == ListingUpdate{}
}

// FilterSpec is the raw, per-request filter input. Numeric fields are kept as
// the caller sent them and validated when the filter is built.
type FilterSpec struct {
	City      string
	District  string
	Keyword   string
	PriceMin  string
	PriceMax  string
	HouseType string
	AreaMin   string
	AreaMax   string
	Status    string

	// Admin marks an administrative caller, the only kind that may list
	// non-published listings.
	Admin bool

	SortBy string
	Order  string
}

// PageSpec is the requested page. Both fields must be >= 1.
type PageSpec struct {
	Page  int
	Limit int
}

// Page is a validated PageSpec plus the derived offset.
type Page struct {
	Page   int
	Limit  int
	Offset int
}

// ListResult is one page of listings. Degraded is true when the rows come
// from the built-in snapshot because the store could not be queried.
type ListResult struct {
	Listings        []Listing
	TotalItems      int
	TotalPages      int
	Page            Page
	Degraded        bool
	SnapshotVersion string
}

// Suggestion is one search-as-you-type entry.
type Suggestion struct {
	Type  string `json:"type"`
	Value string `json:"value"`
	Label string `json:"label"`
}

// OptionCount is a distinct value with the number of listings carrying it.
type OptionCount struct {
	Value string `json:"value"`
	Label string `json:"label"`
	Count int64  `json:"count"`
}

type IntRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

type FloatRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// FilterOptions lists the values a search form can offer.
type FilterOptions struct {
	Cities     []OptionCount `json:"cities"`
	Districts  []OptionCount `json:"districts"`
	HouseTypes []OptionCount `json:"houseTypes"`
	PriceRange IntRange      `json:"priceRange"`
	AreaRange  FloatRange    `json:"areaRange"`
}

// Statistics is the administrative overview.
type Statistics struct {
	TotalListings     int64         `json:"totalListings"`
	TodayListings     int64         `json:"todayListings"`
	StatusStats       []OptionCount `json:"statusStats"`
	CityStats         []OptionCount `json:"cityStats"`
	PriceDistribution []OptionCount `json:"priceDistribution"`
}

// ReviewDecision moves a listing out of review.
type ReviewDecision struct {
	ListingID int64
	From      Status
	To        Status
	Action    string
	Reason    string
	Actor     string
}
