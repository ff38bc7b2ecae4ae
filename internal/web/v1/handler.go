package v1

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zhenhaojia/house/internal/core/domain"
	"github.com/zhenhaojia/house/internal/core/pool"
	"github.com/zhenhaojia/house/internal/core/query"
	logicv1 "github.com/zhenhaojia/house/internal/logic/v1"
	"github.com/zhenhaojia/house/internal/logger"
	"github.com/zhenhaojia/house/middleware"
)

// defaultActor is recorded when the admin routes run without a token.
const defaultActor = "admin"

// Handler groups HTTP handlers for the listing API v1.
// Dependencies are injected via the constructor, no global state.
type Handler struct {
	listings *logicv1.ListingService
}

// NewHandler creates a new Handler with the given ListingService.
func NewHandler(listings *logicv1.ListingService) *Handler {
	return &Handler{listings: listings}
}

// RegisterRoutes registers all listing API v1 routes on rg. Admin routes
// are placed behind guard.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, guard gin.HandlerFunc) {
	rg.GET("/listings", h.ListListings)
	rg.POST("/listings", h.CreateListing)
	rg.GET("/listings/cities/hot", h.HotCities)
	rg.GET("/listings/:id", h.GetListing)

	rg.GET("/search", h.Search)
	rg.GET("/search/suggestions", h.Suggestions)
	rg.GET("/search/filters", h.FilterOptions)

	admin := rg.Group("/admin", guard)
	admin.GET("/listings", h.AdminListListings)
	admin.POST("/listings", h.PublishListing)
	admin.GET("/listings/pending", h.PendingListings)
	admin.PUT("/listings/:id", h.UpdateListing)
	admin.DELETE("/listings/:id", h.DeleteListing)
	admin.POST("/listings/:id/review", h.ReviewListing)
	admin.GET("/statistics", h.Statistics)
}

// envelope is the body of every response.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

type pagination struct {
	CurrentPage  int `json:"currentPage"`
	TotalPages   int `json:"totalPages"`
	TotalItems   int `json:"totalItems"`
	ItemsPerPage int `json:"itemsPerPage"`
}

type listResponse struct {
	Listings        []domain.Listing `json:"listings"`
	Pagination      pagination       `json:"pagination"`
	Degraded        bool             `json:"degraded"`
	SnapshotVersion string           `json:"snapshotVersion,omitempty"`
	Filters         *filterParams    `json:"filters,omitempty"`
}

func newListResponse(res *domain.ListResult) listResponse {
	listings := res.Listings
	if listings == nil {
		listings = []domain.Listing{}
	}
	return listResponse{
		Listings: listings,
		Pagination: pagination{
			CurrentPage:  res.Page.Page,
			TotalPages:   res.TotalPages,
			TotalItems:   res.TotalItems,
			ItemsPerPage: res.Page.Limit,
		},
		Degraded:        res.Degraded,
		SnapshotVersion: res.SnapshotVersion,
	}
}

// filterParams are the query parameters shared by the list endpoints.
type filterParams struct {
	City      string `form:"city" json:"city,omitempty"`
	District  string `form:"district" json:"district,omitempty"`
	Keyword   string `form:"keyword" json:"keyword,omitempty"`
	PriceMin  string `form:"priceMin" json:"priceMin,omitempty"`
	PriceMax  string `form:"priceMax" json:"priceMax,omitempty"`
	HouseType string `form:"houseType" json:"houseType,omitempty"`
	AreaMin   string `form:"areaMin" json:"areaMin,omitempty"`
	AreaMax   string `form:"areaMax" json:"areaMax,omitempty"`
	Status    string `form:"status" json:"-"`
	SortBy    string `form:"sortBy" json:"-"`
	Order     string `form:"order" json:"-"`
	Page      string `form:"page" json:"-"`
	Limit     string `form:"limit" json:"-"`
}

func (p filterParams) spec() domain.FilterSpec {
	return domain.FilterSpec{
		City:      p.City,
		District:  p.District,
		Keyword:   p.Keyword,
		PriceMin:  p.PriceMin,
		PriceMax:  p.PriceMax,
		HouseType: p.HouseType,
		AreaMin:   p.AreaMin,
		AreaMax:   p.AreaMax,
		Status:    p.Status,
		SortBy:    p.SortBy,
		Order:     p.Order,
	}
}

// bindList reads filter and page parameters. It writes a 400 response and
// returns false on malformed input.
func (h *Handler) bindList(c *gin.Context, span trace.Span) (filterParams, domain.PageSpec, bool) {
	var p filterParams
	if err := c.ShouldBindQuery(&p); err != nil {
		badRequest(c, span, err)
		return p, domain.PageSpec{}, false
	}
	page, err := query.ParsePageSpec(p.Page, p.Limit)
	if err != nil {
		h.fail(c, span, err)
		return p, domain.PageSpec{}, false
	}
	return p, page, true
}

func (h *Handler) respondList(c *gin.Context, span trace.Span, res *domain.ListResult, filters *filterParams) {
	if res.Degraded {
		c.Set(middleware.DegradedKey, true)
	}
	span.SetAttributes(attribute.Bool("response.degraded", res.Degraded))

	body := newListResponse(res)
	body.Filters = filters
	c.JSON(http.StatusOK, envelope{Success: true, Data: body})
}

// startSpan opens the request span and makes its context the request's.
func startSpan(c *gin.Context) trace.Span {
	ctx, span := middleware.StartSpan(c.Request.Context(), "http.request", trace.WithAttributes(
		attribute.String("layer", "web"),
		attribute.String("method", c.Request.Method),
		attribute.String("path", c.FullPath()),
	))
	c.Request = c.Request.WithContext(ctx)
	return span
}

func pathID(c *gin.Context) (int64, error) {
	raw := c.Param("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &query.ValidationError{Field: "id", Value: raw, Reason: "must be a positive integer"}
	}
	return id, nil
}

func actor(c *gin.Context) string {
	if a := c.GetString(middleware.ActorKey); a != "" {
		return a
	}
	return defaultActor
}

// badRequest answers a request body or query that could not be bound.
func badRequest(c *gin.Context, span trace.Span, err error) {
	span.SetAttributes(attribute.Bool("request.valid", false))
	span.RecordError(err)
	logger.FromContext(c.Request.Context()).Warn().Err(err).Msg("Invalid request")
	c.JSON(http.StatusBadRequest, envelope{Success: false, Error: err.Error()})
}

// fail maps err onto a status code and writes the error envelope.
func (h *Handler) fail(c *gin.Context, span trace.Span, err error) {
	span.RecordError(err)
	log := logger.FromContext(c.Request.Context())

	status, msg := http.StatusInternalServerError, "Internal server error"
	switch {
	case errors.Is(err, query.ErrValidation),
		errors.Is(err, logicv1.ErrInvalidListing),
		errors.Is(err, logicv1.ErrNoFieldsToUpdate),
		errors.Is(err, logicv1.ErrInvalidReviewAction):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, logicv1.ErrListingNotFound):
		status, msg = http.StatusNotFound, "Listing not found"
	case errors.Is(err, logicv1.ErrNotPending):
		status, msg = http.StatusConflict, "Listing is not pending review"
	case errors.Is(err, pool.ErrPoolExhausted), errors.Is(err, pool.ErrPoolClosed):
		status, msg = http.StatusServiceUnavailable, "Service temporarily unavailable"
	}

	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Msg("Request failed")
	} else {
		log.Warn().Err(err).Msg("Request rejected")
	}
	c.JSON(status, envelope{Success: false, Error: msg})
}
