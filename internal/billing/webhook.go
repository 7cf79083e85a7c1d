package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rentflow/backend/internal/models"
	"github.com/rentflow/backend/pkg/queue"
	"github.com/rentflow/backend/pkg/response"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw body.
const SignatureHeader = "X-Billing-Signature"

// Webhook event types sent by the payment provider bridge.
const (
	EventCheckoutCompleted   = "checkout.completed"
	EventSubscriptionUpdated = "subscription.updated"
	EventSubscriptionDeleted = "subscription.deleted"
)

// WebhookStore is the persistence the webhook needs.
type WebhookStore interface {
	GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error)
	CompleteCheckout(ctx context.Context, sub *models.Subscription, payment *models.Payment) error
}

// SubscriptionWriter upserts subscriptions outside a checkout.
type SubscriptionWriter interface {
	Upsert(ctx context.Context, s *models.Subscription) error
}

// RefreshEnqueuer schedules an access re-resolution for a user.
type RefreshEnqueuer interface {
	EnqueueAccessRefresh(ctx context.Context, payload queue.AccessRefreshPayload) error
}

// WebhookPayload is the body of POST /webhooks/billing.
type WebhookPayload struct {
	Type         string               `json:"type"`
	UserID       string               `json:"user_id"`
	Subscription WebhookSubscription  `json:"subscription"`
	Payment      *WebhookPaymentBlock `json:"payment,omitempty"`
}

// WebhookSubscription mirrors the provider's subscription object.
type WebhookSubscription struct {
	Status                 string     `json:"status"`
	CurrentPeriodEnd       *time.Time `json:"current_period_end"`
	PlanType               string     `json:"plan_type"`
	PlanName               string     `json:"plan_name"`
	ProviderCustomerID     string     `json:"provider_customer_id"`
	ProviderSubscriptionID string     `json:"provider_subscription_id"`
}

// WebhookPaymentBlock describes the paid checkout for checkout.completed.
type WebhookPaymentBlock struct {
	ProviderPaymentID string          `json:"provider_payment_id"`
	PlanID            string          `json:"plan_id"`
	CouponCode        string          `json:"coupon_code"`
	Amount            decimal.Decimal `json:"amount"`
	Discount          decimal.Decimal `json:"discount"`
	Currency          string          `json:"currency"`
}

// WebhookHandler applies provider events to subscriptions and coupons.
type WebhookHandler struct {
	store  WebhookStore
	subs   SubscriptionWriter
	queue  RefreshEnqueuer
	secret []byte
	logger *zap.Logger
}

// NewWebhookHandler creates a webhook handler. An empty secret disables signature checks.
func NewWebhookHandler(store WebhookStore, subs SubscriptionWriter, q RefreshEnqueuer, secret string, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{store: store, subs: subs, queue: q, secret: []byte(secret), logger: logger}
}

// Sign returns the signature the handler expects for body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Handle handles POST /webhooks/billing.
func (h *WebhookHandler) Handle(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		response.BadRequest(c, "unreadable body")
		return
	}
	if len(h.secret) > 0 {
		got := strings.ToLower(strings.TrimSpace(c.GetHeader(SignatureHeader)))
		if !hmac.Equal([]byte(got), []byte(Sign(h.secret, body))) {
			response.Unauthorized(c, "invalid signature")
			return
		}
	}

	var p WebhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	userID, err := uuid.Parse(p.UserID)
	if err != nil {
		response.BadRequest(c, "invalid user_id")
		return
	}
	sub := &models.Subscription{
		UserID:                 userID,
		Status:                 models.SubscriptionStatus(p.Subscription.Status),
		CurrentPeriodEnd:       p.Subscription.CurrentPeriodEnd,
		PlanType:               p.Subscription.PlanType,
		PlanName:               p.Subscription.PlanName,
		ProviderCustomerID:     p.Subscription.ProviderCustomerID,
		ProviderSubscriptionID: p.Subscription.ProviderSubscriptionID,
	}
	if p.Type == EventSubscriptionDeleted {
		sub.Status = models.SubscriptionCanceled
	}
	if err := sub.Validate(); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	switch p.Type {
	case EventCheckoutCompleted:
		if p.Payment == nil {
			response.BadRequest(c, "payment required for checkout.completed")
			return
		}
		// the provider id is the replay key; without it a redelivery would record a second payment
		p.Payment.ProviderPaymentID = strings.TrimSpace(p.Payment.ProviderPaymentID)
		if p.Payment.ProviderPaymentID == "" {
			response.BadRequest(c, "payment.provider_payment_id required for checkout.completed")
			return
		}
		if err := h.completeCheckout(ctx, sub, p.Payment); err != nil {
			h.logger.Error("checkout completion failed", zap.String("user_id", userID.String()), zap.Error(err))
			response.Internal(c, "failed to record checkout")
			return
		}
	case EventSubscriptionUpdated, EventSubscriptionDeleted:
		if err := h.subs.Upsert(ctx, sub); err != nil {
			h.logger.Error("subscription upsert failed", zap.String("user_id", userID.String()), zap.Error(err))
			response.Internal(c, "failed to update subscription")
			return
		}
	default:
		h.logger.Info("ignoring billing event", zap.String("type", p.Type))
		c.JSON(http.StatusOK, gin.H{"success": true, "ignored": true})
		return
	}

	if err := h.queue.EnqueueAccessRefresh(ctx, queue.AccessRefreshPayload{UserID: userID, Reason: p.Type}); err != nil {
		// the periodic sweep and the next login still pick the change up
		h.logger.Warn("enqueue access refresh failed", zap.String("user_id", userID.String()), zap.Error(err))
	}
	h.logger.Info("billing webhook processed", zap.String("type", p.Type), zap.String("user_id", userID.String()),
		zap.String("status", string(sub.Status)))
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *WebhookHandler) completeCheckout(ctx context.Context, sub *models.Subscription, pb *WebhookPaymentBlock) error {
	payment := &models.Payment{
		UserID:            sub.UserID,
		ProviderPaymentID: pb.ProviderPaymentID,
		Amount:            pb.Amount,
		Discount:          pb.Discount,
		Currency:          pb.Currency,
		Status:            models.PaymentStatusCompleted,
	}
	if pb.PlanID != "" {
		if id, err := uuid.Parse(pb.PlanID); err == nil {
			payment.PlanID = &id
		}
	}
	if NormalizeCode(pb.CouponCode) != "" {
		coupon, err := h.store.GetCouponByCode(ctx, pb.CouponCode)
		if err != nil {
			return err
		}
		if coupon != nil {
			payment.CouponID = &coupon.ID
		}
	}

	err := h.store.CompleteCheckout(ctx, sub, payment)
	if errors.Is(err, ErrCouponNotRedeemable) {
		// the provider already charged; record the payment without consuming the coupon
		h.logger.Warn("coupon exhausted at payment time", zap.String("code", NormalizeCode(pb.CouponCode)),
			zap.String("user_id", sub.UserID.String()))
		payment.CouponID = nil
		err = h.store.CompleteCheckout(ctx, sub, payment)
	}
	return err
}
