package billing

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rentflow/backend/internal/models"
	"github.com/rentflow/backend/pkg/response"
)

// PlanLister lists sellable plans.
type PlanLister interface {
	ListPlans(ctx context.Context) ([]*models.Plan, error)
}

// Handler handles checkout HTTP endpoints.
type Handler struct {
	svc   *Service
	plans PlanLister
}

// NewHandler creates a checkout handler.
func NewHandler(svc *Service, plans PlanLister) *Handler {
	return &Handler{svc: svc, plans: plans}
}

// QuoteRequest is the body for POST /checkout/quote.
type QuoteRequest struct {
	PlanID     string `json:"plan_id" binding:"required"`
	CouponCode string `json:"coupon_code"`
}

// ValidateCouponRequest is the body for POST /checkout/coupons/validate.
type ValidateCouponRequest struct {
	PlanID string `json:"plan_id" binding:"required"`
	Code   string `json:"code" binding:"required"`
}

// ValidateCouponResponse is returned for an applicable coupon.
type ValidateCouponResponse struct {
	Code          string          `json:"code"`
	Type          string          `json:"type"`
	DiscountValue decimal.Decimal `json:"discount_value"`
	FinalPrice    decimal.Decimal `json:"final_price"`
}

// ListPlans handles GET /plans.
func (h *Handler) ListPlans(c *gin.Context) {
	list, err := h.plans.ListPlans(c.Request.Context())
	if err != nil {
		response.Internal(c, "failed to list plans")
		return
	}
	response.OK(c, list)
}

// Quote handles POST /checkout/quote.
func (h *Handler) Quote(c *gin.Context) {
	var req QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	planID, err := uuid.Parse(req.PlanID)
	if err != nil {
		response.BadRequest(c, "invalid plan_id")
		return
	}
	q, err := h.svc.Quote(c.Request.Context(), planID, req.CouponCode)
	if err != nil {
		if errors.Is(err, ErrPlanNotFound) {
			response.NotFound(c, "plan not found")
			return
		}
		response.Internal(c, "failed to price plan")
		return
	}
	response.OK(c, q)
}

// ValidateCoupon handles POST /checkout/coupons/validate. A rejected coupon is a 422 whose
// data carries the kind, so the cart can show the reason inline and stay unchanged.
func (h *Handler) ValidateCoupon(c *gin.Context) {
	var req ValidateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	planID, err := uuid.Parse(req.PlanID)
	if err != nil {
		response.BadRequest(c, "invalid plan_id")
		return
	}
	q, err := h.svc.Quote(c.Request.Context(), planID, req.Code)
	if err != nil {
		if errors.Is(err, ErrPlanNotFound) {
			response.NotFound(c, "plan not found")
			return
		}
		response.Internal(c, "failed to price plan")
		return
	}
	if q.CouponError != nil {
		response.Unprocessable(c, q.CouponError.Message, q.CouponError)
		return
	}
	if q.Coupon == nil {
		response.Unprocessable(c, ErrCouponNotFound.Message, ErrCouponNotFound)
		return
	}
	response.OK(c, ValidateCouponResponse{
		Code:          q.Coupon.Code,
		Type:          string(q.Coupon.Type),
		DiscountValue: q.Discount,
		FinalPrice:    q.FinalPrice,
	})
}
