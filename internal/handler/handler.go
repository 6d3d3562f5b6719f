// Package handler exposes the catalog and cart repositories over HTTP for UI
// collaborators.
package handler

import (
	"context"
	"iter"
	"net/http"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-catalog/internal/catalog"
	"github.com/xenking/kart-catalog/internal/domain/cart"
	"github.com/xenking/kart-catalog/internal/domain/product"
)

// Catalog is the product side of the API.
type Catalog interface {
	ListProducts(ctx context.Context) ([]product.Product, error)
	GetProduct(ctx context.Context, id int64) (*product.Product, error)
	CreateProduct(ctx context.Context, p product.Product) (int64, error)
	UpdateProduct(ctx context.Context, p product.Product) error
	DeleteProduct(ctx context.Context, p product.Product) error
	ClearLocalCache(ctx context.Context) error
}

// Cart is the cart side of the API.
type Cart interface {
	AddProduct(ctx context.Context, p product.Product) error
	SetQuantity(ctx context.Context, productID int64, quantity int) error
	RemoveProduct(ctx context.Context, productID int64) error
	ClearCart(ctx context.Context) error
	Items(ctx context.Context) ([]cart.Item, error)
	ObserveCart(ctx context.Context) iter.Seq2[[]cart.Item, error]
}

var (
	_ Catalog = (*catalog.Repository)(nil)
	_ Cart    = (*cart.Service)(nil)
)

// Handler serves the /api routes.
type Handler struct {
	catalog Catalog
	cart    Cart
}

// New returns a Handler backed by the given repositories.
func New(catalog Catalog, cart Cart) *Handler {
	return &Handler{catalog: catalog, cart: cart}
}

// Register adds the API routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/products", h.listProducts)
	mux.HandleFunc("POST /api/products", h.createProduct)
	mux.HandleFunc("DELETE /api/products", h.clearLocalCache)
	mux.HandleFunc("GET /api/products/{id}", h.getProduct)
	mux.HandleFunc("PUT /api/products/{id}", h.updateProduct)
	mux.HandleFunc("DELETE /api/products/{id}", h.deleteProduct)

	mux.HandleFunc("GET /api/cart", h.getCart)
	mux.HandleFunc("DELETE /api/cart", h.clearCart)
	mux.HandleFunc("POST /api/cart/items", h.addCartItem)
	mux.HandleFunc("PUT /api/cart/items/{id}", h.setCartQuantity)
	mux.HandleFunc("DELETE /api/cart/items/{id}", h.removeCartItem)
	mux.HandleFunc("GET /api/cart/events", h.cartEvents)
}

var errBadID = errors.New("id must be a positive integer")

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errBadID
	}
	return id, nil
}

// writeError maps err to a status code. Remote catalog failures never reach
// this point; the repositories recover from them.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	lg := zctx.From(r.Context())
	if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
		// Nobody is left to read the response.
		lg.Debug("Request canceled by client", zap.Error(err))
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.Is(err, product.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, product.ErrInvalid), errors.Is(err, errBadID), errors.Is(err, errBadBody):
		status = http.StatusBadRequest
	case errors.Is(err, cart.ErrOutOfStock):
		status = http.StatusConflict
	case errors.Is(err, product.ErrNotFound):
		status = http.StatusNotFound
	}

	if status >= 500 {
		lg.Error("Request failed", zap.Error(err))
	} else {
		lg.Debug("Request rejected", zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, encodeError(err))
}
