package v1

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zhenhaojia/house/internal/core/domain"
	"github.com/zhenhaojia/house/internal/logger"
	"github.com/zhenhaojia/house/middleware"
)

// listingRequest is the JSON body for creating a listing.
type listingRequest struct {
	Title         string  `json:"title" binding:"required"`
	City          string  `json:"city" binding:"required"`
	District      string  `json:"district"`
	Address       string  `json:"address"`
	Price         int     `json:"price" binding:"required,gt=0"`
	Area          float64 `json:"area" binding:"gte=0"`
	HouseType     string  `json:"houseType"`
	Description   string  `json:"description"`
	ContactName   string  `json:"contactName"`
	ContactPhone  string  `json:"contactPhone" binding:"required"`
	ContactWechat string  `json:"contactWechat"`
	Status        string  `json:"status"`
}

func (r listingRequest) listing() domain.Listing {
	return domain.Listing{
		Title:         r.Title,
		City:          r.City,
		District:      r.District,
		Address:       r.Address,
		Price:         r.Price,
		Area:          r.Area,
		HouseType:     r.HouseType,
		Description:   r.Description,
		ContactName:   r.ContactName,
		ContactPhone:  r.ContactPhone,
		ContactWechat: r.ContactWechat,
		Status:        domain.Status(r.Status),
	}
}

// ListListings handles GET /api/v1/listings.
// Answers 200 with degraded=true when the store is unreachable.
func (h *Handler) ListListings(c *gin.Context) {
	span := startSpan(c)
	defer span.End()

	p, page, ok := h.bindList(c, span)
	if !ok {
		return
	}

	res, err := h.listings.List(c.Request.Context(), p.spec(), page)
	if err != nil {
		h.fail(c, span, err)
		return
	}
	h.respondList(c, span, res, nil)
}

// Search handles GET /api/v1/search. Same filters as ListListings; the
// applied filters are echoed back.
func (h *Handler) Search(c *gin.Context) {
	span := startSpan(c)
	defer span.End()

	p, page, ok := h.bindList(c, span)
	if !ok {
		return
	}

	res, err := h.listings.List(c.Request.Context(), p.spec(), page)
	if err != nil {
		h.fail(c, span, err)
		return
	}
	h.respondList(c, span, res, &p)
}

// GetListing handles GET /api/v1/listings/:id.
func (h *Handler) GetListing(c *gin.Context) {
	span := startSpan(c)
	defer span.End()

	id, err := pathID(c)
	if err != nil {
		h.fail(c, span, err)
		return
	}
	span.SetAttributes(attribute.Int64("listing.id", id))

	l, err := h.listings.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, span, err)
		return
	}
	c.JSON(http.StatusOK, envelope{Success: true, Data: l})
}

// CreateListing handles POST /api/v1/listings.
func (h *Handler) CreateListing(c *gin.Context) {
	span := startSpan(c)
	defer span.End()

	var req listingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, span, err)
		return
	}
	span.SetAttributes(attribute.Bool("request.valid", true))

	l, err := h.listings.Create(c.Request.Context(), req.listing())
	if err != nil {
		h.fail(c, span, err)
		return
	}

	logger.FromContext(c.Request.Context()).Info().Int64("listing_id", l.ID).Msg("Listing created")
	c.JSON(http.StatusCreated, envelope{Success: true, Data: l, Message: "Listing created"})
}

// HotCities handles GET /api/v1/listings/cities/hot?limit=N.
func (h *Handler) HotCities(c *gin.Context) {
	span := startSpan(c)
	defer span.End()

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(c, span, err)
			return
		}
		limit = n
	}

	cities, degraded, err := h.listings.HotCities(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, span, err)
		return
	}
	if degraded {
		c.Set(middleware.DegradedKey, true)
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": cities, "degraded": degraded})
}

// Suggestions handles GET /api/v1/search/suggestions?q=.
func (h *Handler) Suggestions(c *gin.Context) {
	span := startSpan(c)
	defer span.End()

	out, err := h.listings.Suggestions(c.Request.Context(), c.Query("q"))
	if err != nil {
		h.fail(c, span, err)
		return
	}
	c.JSON(http.StatusOK, envelope{Success: true, Data: gin.H{"suggestions": out}})
}

// FilterOptions handles GET /api/v1/search/filters.
func (h *Handler) FilterOptions(c *gin.Context) {
	span := startSpan(c)
	defer span.End()

	opts, err := h.listings.FilterOptions(c.Request.Context())
	if err != nil {
		h.fail(c, span, err)
		return
	}
	c.JSON(http.StatusOK, envelope{Success: true, Data: opts})
}
