package domain

import "context"

// ListingRepository defines the data-access contract for listings.
// Implementations live in internal/core/repository (Core layer).
// The Logic layer depends on this interface only — never on SQL directly.
type ListingRepository interface {
	// List returns one page of listings matching filter. When the store is
	// unreachable the page comes from the fallback snapshot and is flagged
	// Degraded. Only invalid input yields an error.
	List(ctx context.Context, filter FilterSpec, page PageSpec) (*ListResult, error)

	// GetByID returns the listing with the given id. Unless includeHidden is
	// set only published listings are found.
	// Returns (nil, nil) when no listing matches.
	GetByID(ctx context.Context, id int64, includeHidden bool) (*Listing, error)

	// Create inserts a listing and returns it with the storage-assigned id
	// and timestamps.
	Create(ctx context.Context, l Listing) (*Listing, error)

	// Publish inserts a published listing together with its audit record in
	// one transaction.
	Publish(ctx context.Context, l Listing, actor string) (*Listing, error)

	// Update applies a partial update. Returns false when no listing matches.
	Update(ctx context.Context, id int64, u ListingUpdate) (bool, error)

	// SoftDelete marks a listing deleted. Returns false when no listing matches.
	SoftDelete(ctx context.Context, id int64) (bool, error)

	// Review applies d atomically with its audit record. Returns false when
	// the listing was no longer in d.From.
	Review(ctx context.Context, d ReviewDecision) (bool, error)

	// Suggestions returns cities and districts of published listings that
	// contain q.
	Suggestions(ctx context.Context, q string) ([]Suggestion, error)

	// FilterOptions returns distinct values and ranges over published listings.
	FilterOptions(ctx context.Context) (*FilterOptions, error)

	// HotCities returns the cities with the most published listings. The
	// boolean is true when the counts come from the fallback snapshot.
	HotCities(ctx context.Context, limit int) ([]OptionCount, bool, error)

	// Statistics returns counts over all listings.
	Statistics(ctx context.Context) (*Statistics, error)
}
