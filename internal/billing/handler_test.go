package billing

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentflow/backend/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func newCheckoutRouter(store *fakeStore) *gin.Engine {
	h := NewHandler(newTestService(store), store)
	r := gin.New()
	r.GET("/plans", h.ListPlans)
	r.POST("/checkout/quote", h.Quote)
	r.POST("/checkout/coupons/validate", h.ValidateCoupon)
	return r
}

func postJSON(r http.Handler, path string, body any) (*httptest.ResponseRecorder, envelope) {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func TestHandler_ValidateCoupon(t *testing.T) {
	store := newFakeStore()
	plan := store.addPlan("99.90")
	store.coupons["SAVE20"] = coupon(models.CouponPercentage, "20")
	r := newCheckoutRouter(store)

	w, env := postJSON(r, "/checkout/coupons/validate", ValidateCouponRequest{PlanID: plan.ID.String(), Code: "save20"})
	require.Equal(t, http.StatusOK, w.Code)
	var res ValidateCouponResponse
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, "SAVE20", res.Code)
	assert.Equal(t, "percentage", res.Type)
	assertDec(t, "19.98", res.DiscountValue)
	assertDec(t, "79.92", res.FinalPrice)
}

func TestHandler_ValidateCouponRejected(t *testing.T) {
	store := newFakeStore()
	plan := store.addPlan("99.90")
	r := newCheckoutRouter(store)

	w, env := postJSON(r, "/checkout/coupons/validate", ValidateCouponRequest{PlanID: plan.ID.String(), Code: "NOPE"})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.False(t, env.Success)
	var cerr CouponError
	require.NoError(t, json.Unmarshal(env.Data, &cerr))
	assert.Equal(t, CouponNotFound, cerr.Kind)
}

func TestHandler_ValidateCouponBadInput(t *testing.T) {
	r := newCheckoutRouter(newFakeStore())

	w, _ := postJSON(r, "/checkout/coupons/validate", map[string]string{"plan_id": "x", "code": "A"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = postJSON(r, "/checkout/coupons/validate", map[string]string{"plan_id": uuid.NewString()})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = postJSON(r, "/checkout/coupons/validate", ValidateCouponRequest{PlanID: uuid.NewString(), Code: "A"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_Quote(t *testing.T) {
	store := newFakeStore()
	plan := store.addPlan("99.90")
	store.coupons["SAVE20"] = coupon(models.CouponFixed, "150")
	r := newCheckoutRouter(store)

	w, env := postJSON(r, "/checkout/quote", QuoteRequest{PlanID: plan.ID.String(), CouponCode: "SAVE20"})
	require.Equal(t, http.StatusOK, w.Code)
	var q Quote
	require.NoError(t, json.Unmarshal(env.Data, &q))
	assertDec(t, "99.90", q.Discount)
	assertDec(t, "0", q.FinalPrice)
}

func TestHandler_ListPlans(t *testing.T) {
	store := newFakeStore()
	store.addPlan("10")
	r := newCheckoutRouter(store)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/plans", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	var plans []models.Plan
	require.NoError(t, json.Unmarshal(env.Data, &plans))
	assert.Len(t, plans, 1)
}
