package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/seruni-shop/internal/checkout"
	"github.com/ariefcatur/seruni-shop/internal/payment"
	"github.com/ariefcatur/seruni-shop/internal/redisx"
)

type CheckoutHandler struct {
	Svc       *checkout.Service
	Redis     *redis.Client
	ServerKey string
}

type CreateCheckoutReq struct {
	UserID          int64                  `json:"user_id"`
	Description     string                 `json:"description,omitempty"`
	GiftCard        bool                   `json:"gift_card"`
	GiftDescription string                 `json:"gift_description,omitempty"`
	Delivery        checkout.DeliveryInput `json:"delivery"`
	ProductCheckout []checkout.ItemInput   `json:"product_checkout"`
}

type CreateCheckoutResp struct {
	OrderID   string `json:"order_id"`
	SnapToken string `json:"snap_token"`
	Total     int    `json:"total_price"`
}

type UpdateStatusReq struct {
	OrderStatus string `json:"order_status"`
	Description string `json:"description,omitempty"`
}

type WebhookReq struct {
	OrderID           string `json:"order_id"`
	TransactionStatus string `json:"transaction_status"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
}

func (h *CheckoutHandler) Register(r *chi.Mux) {
	r.Post("/checkouts", h.create)
	r.Get("/checkouts", h.listAll)
	r.Get("/checkouts/me", h.history)
	r.Get("/checkouts/{orderId}", h.getOne)
	r.Get("/checkouts/{orderId}/status", h.getStatus)
	r.Post("/checkouts/{orderId}/status", h.updateStatus)
	r.Post("/midtrans/webhook", h.webhook)
}

func (h *CheckoutHandler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateCheckoutReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.UserID <= 0 || len(req.ProductCheckout) == 0 {
		writeError(w, http.StatusBadRequest, "missing fields")
		return
	}
	if req.Delivery.Type != "delivery" && req.Delivery.Type != "pickup" {
		writeError(w, http.StatusBadRequest, "delivery type must be delivery or pickup")
		return
	}
	if req.Delivery.Type == "delivery" && req.Delivery.AddressID <= 0 {
		writeError(w, http.StatusBadRequest, "address_id is required for delivery")
		return
	}
	for _, it := range req.ProductCheckout {
		if it.ProductID <= 0 || it.VariantID <= 0 || it.Quantity <= 0 {
			writeError(w, http.StatusBadRequest, "invalid product_checkout item")
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	res, err := h.Svc.Create(ctx, checkout.CheckoutInput{
		UserID:          req.UserID,
		Description:     req.Description,
		GiftCard:        req.GiftCard,
		GiftDescription: req.GiftDescription,
		Delivery:        req.Delivery,
		Items:           req.ProductCheckout,
	})
	if err != nil {
		writeError(w, statusFromErr(err), err.Error())
		return
	}

	h.cacheStatus(ctx, res.OrderID, checkout.PaymentPending, checkout.StatusPending)

	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"data": CreateCheckoutResp{
			OrderID:   res.OrderID,
			SnapToken: res.SnapToken,
			Total:     res.TotalPrice,
		},
	})
}

func (h *CheckoutHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	var req UpdateStatusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	next, err := checkout.ParseOrderStatus(req.OrderStatus)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Svc.UpdateStatus(ctx, orderID, next, req.Description); err != nil {
		writeError(w, statusFromErr(err), err.Error())
		return
	}

	h.invalidateStatus(ctx, orderID)

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *CheckoutHandler) webhook(w http.ResponseWriter, r *http.Request) {
	var req WebhookReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.OrderID == "" || req.TransactionStatus == "" || req.StatusCode == "" ||
		req.GrossAmount == "" || req.SignatureKey == "" {
		writeError(w, http.StatusBadRequest, "missing fields")
		return
	}
	if !payment.VerifySignature(req.OrderID, req.StatusCode, req.GrossAmount, h.ServerKey, req.SignatureKey) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid signature"})
		return
	}
	if _, _, err := checkout.MapTransactionStatus(req.TransactionStatus); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	err := h.Svc.HandleWebhook(ctx, checkout.WebhookInput{
		OrderID:           req.OrderID,
		TransactionStatus: req.TransactionStatus,
		StatusCode:        req.StatusCode,
		GrossAmount:       req.GrossAmount,
	})
	switch {
	case err == nil, errors.Is(err, checkout.ErrAlreadyProcessed):
		// at-least-once delivery: replays are acked like first delivery
		h.invalidateStatus(ctx, req.OrderID)
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
	case errors.Is(err, checkout.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, "order not found")
	default:
		writeError(w, statusFromErr(err), err.Error())
	}
}

func (h *CheckoutHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// 1) coba cache
	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	if h.Redis != nil {
		if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
			writeJSON(w, http.StatusOK, json.RawMessage(s))
			return
		}
	}

	// 2) fallback DB
	latest, err := h.Svc.Store.LatestStatus(ctx, orderID)
	if err != nil {
		writeError(w, statusFromErr(err), err.Error())
		return
	}
	body := map[string]any{
		"payment_status": latest.PaymentStatus,
		"order_status":   latest.OrderStatus,
	}
	b, _ := json.Marshal(body)
	if h.Redis != nil {
		_ = h.Redis.Set(ctx, key, b, redisx.TTLStatusCache).Err()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func (h *CheckoutHandler) getOne(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	ord, err := h.Svc.Detail(ctx, orderID)
	if err != nil {
		writeError(w, statusFromErr(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": detailJSON(ord)})
}

func (h *CheckoutHandler) listAll(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	sums, err := h.Svc.Summaries(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]map[string]any, 0, len(sums))
	for _, s := range sums {
		out = append(out, map[string]any{
			"order_id": s.OrderID,
			"name":     s.UserName,
			"status":   s.OrderStatus,
			"payment":  s.PaymentStatus,
			"delivery": s.DeliveryType,
			"amount":   s.Amount,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": out})
}

func (h *CheckoutHandler) history(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		writeError(w, http.StatusBadRequest, "missing user_id")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	hist, err := h.Svc.HistoryFor(ctx, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": hist})
}

func (h *CheckoutHandler) cacheStatus(ctx context.Context, orderID string, ps checkout.PaymentStatus, st checkout.OrderStatus) {
	if h.Redis == nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	b, _ := json.Marshal(map[string]any{"payment_status": ps, "order_status": st})
	_ = h.Redis.Set(ctx, key, b, redisx.TTLStatusCache).Err()
}

func (h *CheckoutHandler) invalidateStatus(ctx context.Context, orderID string) {
	if h.Redis == nil {
		return
	}
	_ = h.Redis.Del(ctx, fmt.Sprintf(redisx.KeyOrderStatus, orderID)).Err()
}

func detailJSON(ord *checkout.Checkout) map[string]any {
	lines := make([]map[string]any, 0, len(ord.Lines))
	for _, ln := range ord.Lines {
		lines = append(lines, map[string]any{
			"product_id": ln.ProductID,
			"variant_id": ln.VariantID,
			"quantity":   ln.Quantity,
			"price":      ln.Price,
		})
	}
	status := make([]map[string]any, 0, len(ord.Status))
	for _, ev := range ord.Status {
		status = append(status, map[string]any{
			"payment_status": ev.PaymentStatus,
			"order_status":   ev.OrderStatus,
			"description":    ev.Description,
			"created_at":     ev.CreatedAt,
		})
	}
	return map[string]any{
		"order_id":         ord.OrderID,
		"user_id":          ord.UserID,
		"description":      ord.Description,
		"gift_card":        ord.GiftCard,
		"gift_description": ord.GiftDescription,
		"estimation":       ord.Estimation,
		"total_price":      ord.TotalPrice,
		"snap_token":       ord.SnapToken,
		"delivery": map[string]any{
			"type":           ord.Delivery.Type,
			"pickup_date":    ord.Delivery.PickupDate,
			"pickup_hour":    ord.Delivery.PickupHour,
			"delivery_price": ord.Delivery.DeliveryPrice,
			"address_id":     ord.Delivery.AddressID,
		},
		"product_checkout": lines,
		"status":           status,
		"created_at":       ord.CreatedAt,
	}
}

func statusFromErr(err error) int {
	switch {
	case errors.Is(err, checkout.ErrOrderNotFound),
		errors.Is(err, checkout.ErrVariantNotFound),
		errors.Is(err, checkout.ErrProductNotFound),
		errors.Is(err, checkout.ErrAddressNotFound):
		return http.StatusNotFound
	case errors.Is(err, checkout.ErrInsufficientStock),
		errors.Is(err, checkout.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, checkout.ErrNotInCart),
		errors.Is(err, checkout.ErrVariantMismatch):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
