package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/kart-catalog/internal/domain/product"
)

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.ListProducts(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, encodeProducts(products))
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	p, err := h.catalog.GetProduct(r.Context(), id)
	switch {
	case err != nil:
		writeError(w, r, err)
	case p == nil:
		writeError(w, r, product.ErrNotFound)
	default:
		writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeProduct(e, *p) })
	}
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	p, err := decodeProduct(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	id, err := h.catalog.CreateProduct(r.Context(), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("id")
		e.Int64(id)
		e.ObjEnd()
	})
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := decodeProduct(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p.ID = id

	if err := h.catalog.UpdateProduct(r.Context(), p); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.catalog.DeleteProduct(r.Context(), product.Product{ID: id}); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) clearLocalCache(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.ClearLocalCache(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
