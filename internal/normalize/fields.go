package normalize

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/valyala/fastjson"

	"cointrade/models"
)

// Transform is applied to the raw value read from a Field path.
type Transform int

const (
	AsString Transform = iota
	AsNumber
	ToLower
	ToUpper
	// AsMillis reads a number and normalizes seconds to milliseconds.
	AsMillis
)

// Field locates one destination value in a raw object. Custom, when set,
// replaces path lookup entirely.
type Field struct {
	Path      []string
	Transform Transform
	Custom    func(v *fastjson.Value) string
}

// At returns a string field at path.
func At(path ...string) Field { return Field{Path: path} }

// NumAt returns a numeric field at path.
func NumAt(path ...string) Field { return Field{Path: path, Transform: AsNumber} }

// LowerAt returns a lowercased string field at path.
func LowerAt(path ...string) Field { return Field{Path: path, Transform: ToLower} }

// UpperAt returns an uppercased string field at path.
func UpperAt(path ...string) Field { return Field{Path: path, Transform: ToUpper} }

// MillisAt returns a timestamp field at path.
func MillisAt(path ...string) Field { return Field{Path: path, Transform: AsMillis} }

// Func wraps a custom extraction.
func Func(fn func(v *fastjson.Value) string) Field { return Field{Custom: fn} }

func (f Field) empty() bool { return len(f.Path) == 0 && f.Custom == nil }

// String evaluates the field as a string.
func (f Field) String(v *fastjson.Value) string {
	if f.Custom != nil {
		return f.Custom(v)
	}
	if len(f.Path) == 0 {
		return ""
	}
	s := Str(v, f.Path...)
	switch f.Transform {
	case ToLower:
		return strings.ToLower(s)
	case ToUpper:
		return strings.ToUpper(s)
	}
	return s
}

// Float evaluates the field as a number.
func (f Field) Float(v *fastjson.Value) float64 {
	if f.Custom != nil {
		d, err := decimal.NewFromString(f.Custom(v))
		if err != nil {
			return 0
		}
		return d.InexactFloat64()
	}
	if len(f.Path) == 0 {
		return 0
	}
	return Num(v, f.Path...)
}

// Int evaluates the field as an integer, normalizing timestamps for
// AsMillis fields.
func (f Field) Int(v *fastjson.Value) int64 {
	n := int64(f.Float(v))
	if f.Transform == AsMillis {
		return Millis(n)
	}
	return n
}

// StatusTable maps raw exchange status values to normalized ones.
type StatusTable map[string]models.OrderStatus

// Map returns the normalized status, passing unmapped values through.
func (t StatusTable) Map(raw string) models.OrderStatus {
	if s, ok := t[raw]; ok {
		return s
	}
	return models.OrderStatus(raw)
}

// Sides maps exchange side vocabulary onto buy/sell.
type Sides map[string]string

func (s Sides) Map(raw string) string {
	if v, ok := s[raw]; ok {
		return v
	}
	return strings.ToLower(raw)
}
