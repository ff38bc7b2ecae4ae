package v1

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zhenhaojia/house/internal/core/domain"
	"github.com/zhenhaojia/house/internal/core/query"
	"github.com/zhenhaojia/house/middleware"
)

const (
	minSuggestionQuery = 2
	maxSuggestions     = 10
	defaultHotCities   = 6
	maxHotCities       = 50
)

// Review actions accepted by ListingService.Review.
const (
	ActionApprove = "approve"
	ActionReject  = "reject"
)

// ListingService implements listing business rules.
// It depends on the repository interface (injected via constructor) and
// MUST NOT access the database or SQL directly.
type ListingService struct {
	listings domain.ListingRepository
}

// NewListingService creates a new ListingService with the given repository.
func NewListingService(listings domain.ListingRepository) *ListingService {
	return &ListingService{listings: listings}
}

// List returns one page of published listings. The result may come from the
// fallback snapshot; check ListResult.Degraded.
func (s *ListingService) List(ctx context.Context, filter domain.FilterSpec, page domain.PageSpec) (*domain.ListResult, error) {
	filter.Admin = false
	return s.list(ctx, "listings.list", filter, page)
}

// AdminList lists listings of any status. Status "all" drops the status filter.
func (s *ListingService) AdminList(ctx context.Context, filter domain.FilterSpec, page domain.PageSpec) (*domain.ListResult, error) {
	filter.Admin = true
	return s.list(ctx, "listings.admin_list", filter, page)
}

// PendingQueue lists the listings waiting for review, oldest first.
func (s *ListingService) PendingQueue(ctx context.Context, page domain.PageSpec) (*domain.ListResult, error) {
	filter := domain.FilterSpec{
		Admin:  true,
		Status: string(domain.StatusPending),
		SortBy: "created_at",
		Order:  "asc",
	}
	return s.list(ctx, "listings.pending_queue", filter, page)
}

func (s *ListingService) list(ctx context.Context, name string, filter domain.FilterSpec, page domain.PageSpec) (*domain.ListResult, error) {
	ctx, span := middleware.StartSpan(ctx, name, trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.Int("page", page.Page),
		attribute.Int("limit", page.Limit),
	))
	defer span.End()

	res, err := s.listings.List(ctx, filter, page)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list listings: %w", err)
	}

	span.SetAttributes(
		attribute.Int("listings.total", res.TotalItems),
		attribute.Bool("listings.degraded", res.Degraded),
	)
	if res.Degraded {
		span.AddEvent("listings.degraded", trace.WithAttributes(
			attribute.String("snapshot.version", res.SnapshotVersion),
		))
	}
	return res, nil
}

// Get returns a published listing.
func (s *ListingService) Get(ctx context.Context, id int64) (*domain.Listing, error) {
	ctx, span := middleware.StartSpan(ctx, "listings.get", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.Int64("listing.id", id),
	))
	defer span.End()

	l, err := s.listings.GetByID(ctx, id, false)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("get listing %d: %w", id, err)
	}
	if l == nil {
		return nil, fmt.Errorf("get listing %d: %w", id, ErrListingNotFound)
	}
	return l, nil
}

// Create validates and stores a listing. An empty status publishes it.
func (s *ListingService) Create(ctx context.Context, l domain.Listing) (*domain.Listing, error) {
	ctx, span := middleware.StartSpan(ctx, "listings.create", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("listing.city", l.City),
	))
	defer span.End()

	if l.Status == "" {
		l.Status = domain.StatusPublished
	}
	if err := validateListing(l); err != nil {
		span.SetAttributes(attribute.Bool("listing.valid", false))
		return nil, err
	}

	created, err := s.listings.Create(ctx, l)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("create listing: %w: %w", ErrWriteFailed, err)
	}

	span.SetAttributes(attribute.Int64("listing.id", created.ID))
	span.AddEvent("listing.created")
	return created, nil
}

// Publish stores a listing as published on behalf of an administrator and
// records who did it.
func (s *ListingService) Publish(ctx context.Context, l domain.Listing, actor string) (*domain.Listing, error) {
	ctx, span := middleware.StartSpan(ctx, "listings.publish", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("actor", actor),
	))
	defer span.End()

	l.Status = domain.StatusPublished
	if err := validateListing(l); err != nil {
		return nil, err
	}

	created, err := s.listings.Publish(ctx, l, actor)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("publish listing: %w: %w", ErrWriteFailed, err)
	}

	span.SetAttributes(attribute.Int64("listing.id", created.ID))
	span.AddEvent("listing.published")
	return created, nil
}

// Update applies a partial update to a listing that is not deleted.
func (s *ListingService) Update(ctx context.Context, id int64, u domain.ListingUpdate) error {
	ctx, span := middleware.StartSpan(ctx, "listings.update", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.Int64("listing.id", id),
	))
	defer span.End()

	if u.IsEmpty() {
		return fmt.Errorf("update listing %d: %w", id, ErrNoFieldsToUpdate)
	}

	ok, err := s.listings.Update(ctx, id, u)
	if errors.Is(err, query.ErrValidation) {
		return fmt.Errorf("update listing %d: %w: %w", id, ErrInvalidListing, err)
	}
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("update listing %d: %w: %w", id, ErrWriteFailed, err)
	}
	if !ok {
		return fmt.Errorf("update listing %d: %w", id, ErrListingNotFound)
	}
	return nil
}

// Delete soft-deletes a listing.
func (s *ListingService) Delete(ctx context.Context, id int64) error {
	ctx, span := middleware.StartSpan(ctx, "listings.delete", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.Int64("listing.id", id),
	))
	defer span.End()

	ok, err := s.listings.SoftDelete(ctx, id)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("delete listing %d: %w: %w", id, ErrWriteFailed, err)
	}
	if !ok {
		return fmt.Errorf("delete listing %d: %w", id, ErrListingNotFound)
	}
	return nil
}

// Review approves or rejects a pending listing.
func (s *ListingService) Review(ctx context.Context, id int64, action, reason, actor string) error {
	ctx, span := middleware.StartSpan(ctx, "listings.review", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.Int64("listing.id", id),
		attribute.String("review.action", action),
	))
	defer span.End()

	d := domain.ReviewDecision{
		ListingID: id,
		From:      domain.StatusPending,
		Action:    strings.ToLower(strings.TrimSpace(action)),
		Reason:    strings.TrimSpace(reason),
		Actor:     actor,
	}
	switch d.Action {
	case ActionApprove:
		d.To = domain.StatusPublished
	case ActionReject:
		d.To = domain.StatusRejected
	default:
		return fmt.Errorf("review listing %d: %q: %w", id, action, ErrInvalidReviewAction)
	}

	ok, err := s.listings.Review(ctx, d)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("review listing %d: %w: %w", id, ErrWriteFailed, err)
	}
	if ok {
		span.AddEvent("listing.reviewed")
		return nil
	}

	// Nothing changed: tell a missing listing from one already reviewed.
	l, err := s.listings.GetByID(ctx, id, true)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("review listing %d: %w", id, err)
	}
	if l == nil {
		return fmt.Errorf("review listing %d: %w", id, ErrListingNotFound)
	}
	return fmt.Errorf("review listing %d in status %s: %w", id, l.Status, ErrNotPending)
}

// Suggestions returns at most ten city and district suggestions. Queries
// shorter than two characters return nothing.
func (s *ListingService) Suggestions(ctx context.Context, q string) ([]domain.Suggestion, error) {
	q = strings.TrimSpace(q)
	if utf8.RuneCountInString(q) < minSuggestionQuery {
		return []domain.Suggestion{}, nil
	}

	ctx, span := middleware.StartSpan(ctx, "search.suggestions", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	out, err := s.listings.Suggestions(ctx, q)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("suggestions: %w", err)
	}
	if len(out) > maxSuggestions {
		out = out[:maxSuggestions]
	}
	return out, nil
}

// FilterOptions returns the values a search form can offer.
func (s *ListingService) FilterOptions(ctx context.Context) (*domain.FilterOptions, error) {
	ctx, span := middleware.StartSpan(ctx, "search.filter_options", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	opts, err := s.listings.FilterOptions(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("filter options: %w", err)
	}
	return opts, nil
}

// HotCities returns the busiest cities. limit <= 0 picks the default of six;
// larger limits are capped. The boolean reports degraded data.
func (s *ListingService) HotCities(ctx context.Context, limit int) ([]domain.OptionCount, bool, error) {
	ctx, span := middleware.StartSpan(ctx, "listings.hot_cities", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	if limit <= 0 {
		limit = defaultHotCities
	}
	limit = min(limit, maxHotCities)

	cities, degraded, err := s.listings.HotCities(ctx, limit)
	if err != nil {
		span.RecordError(err)
		return nil, false, fmt.Errorf("hot cities: %w", err)
	}
	span.SetAttributes(attribute.Bool("listings.degraded", degraded))
	return cities, degraded, nil
}

// Statistics returns the administrative overview.
func (s *ListingService) Statistics(ctx context.Context) (*domain.Statistics, error) {
	ctx, span := middleware.StartSpan(ctx, "admin.statistics", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	stats, err := s.listings.Statistics(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("statistics: %w", err)
	}
	return stats, nil
}

// validateListing checks the fields required to store a listing.
func validateListing(l domain.Listing) error {
	var missing []string
	if strings.TrimSpace(l.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(l.City) == "" {
		missing = append(missing, "city")
	}
	if strings.TrimSpace(l.ContactPhone) == "" {
		missing = append(missing, "contactPhone")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidListing, strings.Join(missing, ", "))
	}
	if l.Price <= 0 {
		return fmt.Errorf("%w: price must be positive", ErrInvalidListing)
	}
	if l.Area < 0 {
		return fmt.Errorf("%w: area must be positive", ErrInvalidListing)
	}
	if !l.Status.Valid() || l.Status == domain.StatusDeleted {
		return fmt.Errorf("%w: status %q", ErrInvalidListing, l.Status)
	}
	return nil
}
