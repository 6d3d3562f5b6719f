package catalogapi

import (
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-catalog/internal/domain/product"
)

// Record is a product as exchanged with the remote catalog service.
type Record struct {
	ID          int64
	Name        string
	Description string
	Price       decimal.Decimal
	Image       string
	Category    string
	Stock       int
}

// RecordFrom converts a domain product into its wire form.
func RecordFrom(p product.Product) Record {
	p = p.Normalize()
	return Record{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		Image:       p.ImageRef,
		Category:    p.Category,
		Stock:       p.Stock,
	}
}

// Product converts r into a domain product.
func (r Record) Product() product.Product {
	return product.Product{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Price:       r.Price,
		ImageRef:    r.Image,
		Category:    r.Category,
		Stock:       r.Stock,
	}.Normalize()
}

var errMissingID = errors.New("record has no integer id")

// Encode writes r as a JSON object. Price is sent as text.
func (r Record) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(r.ID)
	e.FieldStart("nombre")
	e.Str(r.Name)
	e.FieldStart("descripcion")
	e.Str(r.Description)
	e.FieldStart("precio")
	e.Str(r.Price.String())
	e.FieldStart("imagen")
	e.Str(r.Image)
	e.FieldStart("categoria")
	e.Str(r.Category)
	e.FieldStart("stock")
	e.Int(r.Stock)
	e.ObjEnd()
}

// Decode reads r from a JSON object. Bad scalar fields fall back to their
// defaults; only a missing or non-integer id is an error.
func (r *Record) Decode(d *jx.Decoder) error {
	*r = Record{Category: product.DefaultCategory}
	var hasID bool
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "id":
			r.ID, hasID, err = decodeID(d)
		case "nombre":
			r.Name, err = decodeString(d)
		case "descripcion":
			r.Description, err = decodeString(d)
		case "precio":
			r.Price, err = decodePrice(d)
		case "imagen":
			r.Image, err = decodeString(d)
		case "categoria", "categoria_nombre":
			var s string
			if s, err = decodeString(d); err == nil && s != "" {
				r.Category = s
			}
		case "stock":
			r.Stock, err = decodeStock(d)
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		return err
	}
	if !hasID {
		return errMissingID
	}
	return nil
}

func decodeID(d *jx.Decoder) (int64, bool, error) {
	switch d.Next() {
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return 0, false, err
		}
		id, err := n.Int64()
		if err != nil {
			return 0, false, nil
		}
		return id, true, nil
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return 0, false, err
		}
		id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return 0, false, nil
		}
		return id, true, nil
	default:
		return 0, false, d.Skip()
	}
}

func decodeString(d *jx.Decoder) (string, error) {
	if d.Next() != jx.String {
		return "", d.Skip()
	}
	return d.Str()
}

func decodePrice(d *jx.Decoder) (decimal.Decimal, error) {
	var text string
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		text = strings.TrimSpace(s)
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		text = n.String()
	default:
		return decimal.Zero, d.Skip()
	}

	price, err := decimal.NewFromString(text)
	if err != nil || price.IsNegative() {
		return decimal.Zero, nil
	}
	return price, nil
}

func decodeStock(d *jx.Decoder) (int, error) {
	var text string
	switch d.Next() {
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return 0, err
		}
		text = n.String()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return 0, err
		}
		text = strings.TrimSpace(s)
	default:
		return 0, d.Skip()
	}

	stock, err := strconv.Atoi(text)
	if err != nil || stock < 0 {
		return 0, nil
	}
	return stock, nil
}

// DecodeRecords reads a JSON array of records. An empty body or a JSON null
// yields a nil slice. Elements without a usable id are skipped.
func DecodeRecords(data []byte) ([]Record, error) {
	d := jx.DecodeBytes(data)
	switch d.Next() {
	case jx.Invalid:
		if len(strings.TrimSpace(string(data))) == 0 {
			return nil, nil
		}
		return nil, errors.New("invalid json")
	case jx.Null:
		return nil, d.Null()
	case jx.Array:
	default:
		return nil, errors.Errorf("expected array, got %s", d.Next())
	}

	var out []Record
	if err := d.Arr(func(d *jx.Decoder) error {
		if d.Next() != jx.Object {
			return d.Skip()
		}
		var r Record
		if err := r.Decode(d); err != nil {
			if errors.Is(err, errMissingID) {
				return nil
			}
			return err
		}
		out = append(out, r)
		return nil
	}); err != nil {
		return nil, err
	}
	return out, nil
}

// DecodeRecord reads a single JSON object record.
func DecodeRecord(data []byte) (*Record, error) {
	d := jx.DecodeBytes(data)
	if d.Next() != jx.Object {
		return nil, errors.Errorf("expected object, got %s", d.Next())
	}
	var r Record
	if err := r.Decode(d); err != nil {
		return nil, err
	}
	return &r, nil
}

// EncodeRecord returns the JSON form of r.
func EncodeRecord(r Record) []byte {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	r.Encode(e)
	return append([]byte(nil), e.Bytes()...)
}
