package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/seruni-shop/internal/cart"
	"github.com/ariefcatur/seruni-shop/internal/catalog"
)

type CartHandler struct {
	Repo    *cart.Repo
	Catalog *catalog.Repo
}

type AddCartReq struct {
	UserID    int64 `json:"user_id"`
	ProductID int64 `json:"product_id"`
	VariantID int64 `json:"variant_id"`
	Quantity  int   `json:"quantity"`
}

type UpdateCartReq struct {
	UserID   int64 `json:"user_id"`
	Quantity int   `json:"quantity"`
}

func (h *CartHandler) Register(r *chi.Mux) {
	r.Get("/carts", h.list)
	r.Post("/carts", h.add)
	r.Put("/carts/{id}", h.update)
	r.Delete("/carts/{id}", h.delete)
}

func (h *CartHandler) list(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		writeError(w, http.StatusBadRequest, "missing user_id")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	items, err := h.Repo.ListByUser(ctx, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": items})
}

func (h *CartHandler) add(w http.ResponseWriter, r *http.Request) {
	var req AddCartReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.UserID <= 0 || req.ProductID <= 0 || req.VariantID <= 0 || req.Quantity <= 0 {
		writeError(w, http.StatusBadRequest, "missing fields")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if _, err := h.Catalog.GetProduct(ctx, req.ProductID); err != nil {
		writeError(w, cartStatus(err), err.Error())
		return
	}
	v, err := h.Catalog.GetVariant(ctx, req.VariantID)
	if err != nil {
		writeError(w, cartStatus(err), err.Error())
		return
	}
	if v.ProductID != req.ProductID {
		writeError(w, http.StatusBadRequest, "variant does not belong to this product")
		return
	}

	qty := cart.ClampQuantity(v.Stock, req.Quantity)
	if err := h.Repo.Upsert(ctx, req.UserID, req.ProductID, req.VariantID, qty, v.Price*qty); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Success add product to cart"})
}

func (h *CartHandler) update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req UpdateCartReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.UserID <= 0 || req.Quantity <= 0 {
		writeError(w, http.StatusBadRequest, "missing fields")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	it, err := h.Repo.Get(ctx, id, req.UserID)
	if err != nil {
		writeError(w, cartStatus(err), err.Error())
		return
	}
	v, err := h.Catalog.GetVariant(ctx, it.VariantID)
	if err != nil {
		writeError(w, cartStatus(err), err.Error())
		return
	}

	qty := cart.ClampQuantity(v.Stock, req.Quantity)
	if err := h.Repo.UpdateQuantity(ctx, id, req.UserID, qty, v.Price*qty); err != nil {
		writeError(w, cartStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Success update cart"})
}

func (h *CartHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		writeError(w, http.StatusBadRequest, "missing user_id")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Repo.Delete(ctx, id, userID); err != nil {
		writeError(w, cartStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Success delete cart"})
}

func cartStatus(err error) int {
	switch {
	case errors.Is(err, cart.ErrCartNotFound),
		errors.Is(err, catalog.ErrProductNotFound),
		errors.Is(err, catalog.ErrVariantNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
