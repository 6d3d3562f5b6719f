package product

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// DecodeJSON reads a product object in the local JSON form used by seed files
// and the HTTP API:
//
//	{"id":1,"name":"Catan","description":"...","price":"29990","imageRef":"catan","category":"Juegos de Mesa","stock":15}
//
// Unknown fields are skipped. No defaults are applied and nothing is validated.
func DecodeJSON(d *jx.Decoder) (Product, error) {
	var p Product
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "id":
			p.ID, err = d.Int64()
		case "name":
			p.Name, err = d.Str()
		case "description":
			p.Description, err = d.Str()
		case "price":
			p.Price, err = DecodePrice(d)
		case "imageRef":
			p.ImageRef, err = d.Str()
		case "category":
			p.Category, err = d.Str()
		case "stock":
			p.Stock, err = d.Int()
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "field %q", key)
		}
		return nil
	}); err != nil {
		return Product{}, err
	}
	return p, nil
}

// DecodePrice reads a price sent either as decimal text or as a JSON number.
func DecodePrice(d *jx.Decoder) (decimal.Decimal, error) {
	switch tt := d.Next(); tt {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(n.String())
	default:
		return decimal.Zero, errors.Errorf("unexpected %s", tt)
	}
}
