package handler

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/kart-catalog/internal/domain/cart"
	"github.com/xenking/kart-catalog/internal/domain/product"
)

const maxRequestBody = 1 << 20

var errBadBody = errors.New("malformed request body")

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encode(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func encodeError(err error) func(e *jx.Encoder) {
	return func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("error")
		e.Str(err.Error())
		e.ObjEnd()
	}
}

func encodeProduct(e *jx.Encoder, p product.Product) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(p.ID)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("description")
	e.Str(p.Description)
	e.FieldStart("price")
	e.Str(p.Price.StringFixed(2))
	e.FieldStart("imageRef")
	e.Str(p.ImageRef)
	e.FieldStart("category")
	e.Str(p.Category)
	e.FieldStart("stock")
	e.Int(p.Stock)
	e.FieldStart("inStock")
	e.Bool(p.InStock())
	e.ObjEnd()
}

func encodeProducts(products []product.Product) func(e *jx.Encoder) {
	return func(e *jx.Encoder) {
		e.ArrStart()
		for _, p := range products {
			encodeProduct(e, p)
		}
		e.ArrEnd()
	}
}

func encodeCart(e *jx.Encoder, items []cart.Item) {
	e.ObjStart()
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range items {
		e.ObjStart()
		e.FieldStart("product")
		encodeProduct(e, it.Product)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.FieldStart("subtotal")
		e.Str(it.Subtotal().StringFixed(2))
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("total")
	e.Str(cart.Total(items).StringFixed(2))
	e.ObjEnd()
}

func readBody(r *http.Request) (*jx.Decoder, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		return nil, errors.Wrap(errBadBody, err.Error())
	}
	d := jx.DecodeBytes(data)
	if d.Next() != jx.Object {
		return nil, errors.Wrap(errBadBody, "expected object")
	}
	return d, nil
}

// decodeProduct reads a product from the request body. Price may be sent as
// a string or a number.
func decodeProduct(r *http.Request) (product.Product, error) {
	d, err := readBody(r)
	if err != nil {
		return product.Product{}, err
	}

	p, err := product.DecodeJSON(d)
	if err != nil {
		return product.Product{}, errors.Wrap(errBadBody, err.Error())
	}
	if p.Name == "" {
		return product.Product{}, errors.Wrap(errBadBody, "name is required")
	}
	return p, nil
}

// decodeIntField reads a single integer field such as {"quantity": 3}.
func decodeIntField(r *http.Request, name string) (int64, error) {
	d, err := readBody(r)
	if err != nil {
		return 0, err
	}

	var (
		v     int64
		found bool
	)
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != name {
			return d.Skip()
		}
		found = true
		var err error
		v, err = d.Int64()
		return err
	}); err != nil {
		return 0, errors.Wrap(errBadBody, err.Error())
	}
	if !found {
		return 0, errors.Wrap(errBadBody, strconv.Quote(name)+" is required")
	}
	return v, nil
}
