package catalog

import (
	"bytes"
	"io"
	"os"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/klauspost/pgzip"

	"github.com/xenking/kart-catalog/db"
	"github.com/xenking/kart-catalog/internal/domain/product"
)

// DefaultSeed returns the built-in starter catalog.
func DefaultSeed() ([]product.Product, error) {
	return LoadSeed(bytes.NewReader(db.DefaultProducts))
}

// LoadSeedFile reads a seed file. Files ending in .gz are gunzipped first.
func LoadSeedFile(path string) ([]product.Product, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open seed file")
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		zr, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrap(err, "create gzip reader")
		}
		defer func() { _ = zr.Close() }()
		r = zr
	}

	products, err := LoadSeed(r)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}
	return products, nil
}

// LoadSeed decodes a JSON array of products:
//
//	[{"id":1,"name":"Catan","description":"...","price":"29990","imageRef":"catan","category":"Juegos de Mesa","stock":15}]
func LoadSeed(r io.Reader) ([]product.Product, error) {
	d := jx.Decode(r, 64*1024)

	var products []product.Product
	if err := d.Arr(func(d *jx.Decoder) error {
		p, err := decodeSeedProduct(d)
		if err != nil {
			return errors.Wrapf(err, "product #%d", len(products)+1)
		}
		products = append(products, p)
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "decode seed")
	}
	return products, nil
}

func decodeSeedProduct(d *jx.Decoder) (product.Product, error) {
	p, err := product.DecodeJSON(d)
	if err != nil {
		return product.Product{}, err
	}
	if p.ID <= 0 {
		return product.Product{}, errors.New("missing id")
	}
	p = p.Normalize()
	return p, p.Validate()
}
