package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/kart-catalog/internal/domain/product"
)

// getCart also answers every cart mutation with the resulting cart.
func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	items, err := h.cart.Items(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCart(e, items) })
}

func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	id, err := decodeIntField(r, "productId")
	if err != nil {
		writeError(w, r, err)
		return
	}

	p, err := h.catalog.GetProduct(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if p == nil {
		writeError(w, r, errors.Wrapf(product.ErrNotFound, "product %d", id))
		return
	}

	if err := h.cart.AddProduct(r.Context(), *p); err != nil {
		writeError(w, r, err)
		return
	}
	h.getCart(w, r)
}

func (h *Handler) setCartQuantity(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	quantity, err := decodeIntField(r, "quantity")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.cart.SetQuantity(r.Context(), id, int(quantity)); err != nil {
		writeError(w, r, err)
		return
	}
	h.getCart(w, r)
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.cart.RemoveProduct(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	h.getCart(w, r)
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.cart.ClearCart(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	h.getCart(w, r)
}
