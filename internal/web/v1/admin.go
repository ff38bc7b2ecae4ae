package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zhenhaojia/house/internal/core/domain"
	"github.com/zhenhaojia/house/internal/core/query"
	"github.com/zhenhaojia/house/internal/logger"
)

// updateRequest is the JSON body of a partial update. Absent fields are
// left unchanged.
type updateRequest struct {
	Title         *string  `json:"title"`
	City          *string  `json:"city"`
	District      *string  `json:"district"`
	Address       *string  `json:"address"`
	Price         *int     `json:"price"`
	Area          *float64 `json:"area"`
	HouseType     *string  `json:"houseType"`
	Description   *string  `json:"description"`
	ContactName   *string  `json:"contactName"`
	ContactPhone  *string  `json:"contactPhone"`
	ContactWechat *string  `json:"contactWechat"`
	Status        *string  `json:"status"`
}

func (r updateRequest) update() domain.ListingUpdate {
	u := domain.ListingUpdate{
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
	}
	if r.Status != nil {
		s := domain.Status(*r.Status)
		u.Status = &s
	}
	return u
}

type reviewRequest struct {
	Action string `json:"action" binding:"required"`
	Reason string `json:"reason"`
}

// AdminListListings handles GET /api/v1/admin/listings. status=all lists
// every status.
func (h *Handler) AdminListListings(c *gin.Context) {
	span := startSpan(c)
	defer span.End()

	p, page, ok := h.bindList(c, span)
	if !ok {
		return
	}

	res, err := h.listings.AdminList(c.Request.Context(), p.spec(), page)
	if err != nil {
		h.fail(c, span, err)
		return
	}
	h.respondList(c, span, res, nil)
}

// PendingListings handles GET /api/v1/admin/listings/pending.
func (h *Handler) PendingListings(c *gin.Context) {
	span := startSpan(c)
	defer span.End()

	page, err := query.ParsePageSpec(c.Query("page"), c.Query("limit"))
	if err != nil {
		h.fail(c, span, err)
		return
	}

	res, err := h.listings.PendingQueue(c.Request.Context(), page)
	if err != nil {
		h.fail(c, span, err)
		return
	}
	h.respondList(c, span, res, nil)
}

// PublishListing handles POST /api/v1/admin/listings.
func (h *Handler) PublishListing(c *gin.Context) {
	span := startSpan(c)
	defer span.End()

	var req listingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, span, err)
		return
	}

	l, err := h.listings.Publish(c.Request.Context(), req.listing(), actor(c))
	if err != nil {
		h.fail(c, span, err)
		return
	}

	logger.FromContext(c.Request.Context()).Info().
		Int64("listing_id", l.ID).
		Str("actor", actor(c)).
		Msg("Listing published")
	c.JSON(http.StatusCreated, envelope{Success: true, Data: l, Message: "Listing published"})
}

// UpdateListing handles PUT /api/v1/admin/listings/:id.
func (h *Handler) UpdateListing(c *gin.Context) {
	span := startSpan(c)
	defer span.End()

	id, err := pathID(c)
	if err != nil {
		h.fail(c, span, err)
		return
	}
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, span, err)
		return
	}

	if err := h.listings.Update(c.Request.Context(), id, req.update()); err != nil {
		h.fail(c, span, err)
		return
	}
	c.JSON(http.StatusOK, envelope{Success: true, Message: "Listing updated"})
}

// DeleteListing handles DELETE /api/v1/admin/listings/:id.
func (h *Handler) DeleteListing(c *gin.Context) {
	span := startSpan(c)
	defer span.End()

	id, err := pathID(c)
	if err != nil {
		h.fail(c, span, err)
		return
	}

	if err := h.listings.Delete(c.Request.Context(), id); err != nil {
		h.fail(c, span, err)
		return
	}
	c.JSON(http.StatusOK, envelope{Success: true, Message: "Listing deleted"})
}

// ReviewListing handles POST /api/v1/admin/listings/:id/review.
func (h *Handler) ReviewListing(c *gin.Context) {
	span := startSpan(c)
	defer span.End()

	id, err := pathID(c)
	if err != nil {
		h.fail(c, span, err)
		return
	}
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, span, err)
		return
	}
	span.SetAttributes(attribute.String("review.action", req.Action))

	if err := h.listings.Review(c.Request.Context(), id, req.Action, req.Reason, actor(c)); err != nil {
		h.fail(c, span, err)
		return
	}
	c.JSON(http.StatusOK, envelope{Success: true, Message: "Review recorded"})
}

// Statistics handles GET /api/v1/admin/statistics.
func (h *Handler) Statistics(c *gin.Context) {
	span := startSpan(c)
	defer span.End()

	stats, err := h.listings.Statistics(c.Request.Context())
	if err != nil {
		h.fail(c, span, err)
		return
	}
	c.JSON(http.StatusOK, envelope{Success: true, Data: stats})
}
