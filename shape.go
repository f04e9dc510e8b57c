package qualia

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/pianohacker/qualia/field"
)

// shapeField describes one bound struct field: which field it maps to in
// the property bag, and its position in the struct.
type shapeField struct {
	structIndex int
	name        string
}

// Shape binds a Go struct type T to Qualia's property bag. Build one with
// Bind and keep it; each call to Bind repeats the reflection over T.
type Shape[T any] struct {
	typ     reflect.Type
	fields  []shapeField
	idField *shapeField
}

// idFieldType is the only type an object_id field may declare: an optional
// signed 64-bit integer.
var idFieldType = reflect.TypeOf((*int64)(nil))

// Bind reflects over T's exported fields once and panics on any field of an
// unsupported shape: anything other than int64 or string, a non-*int64
// object_id field, or a field the store has no room to represent. Go has no
// macro system or build-time hook that could run this check before the
// binary exists, so Bind approximates the spec's "reject at build time" by
// rejecting before any record of shape T is ever stored — call it from an
// init or a package-level var so an unsupported shape fails at program
// startup rather than on the first query.
//
// A property name defaults to the Go field name; a `qualia:"name"` tag
// overrides it. The reserved name "object_id" may only be used by a field
// of type *int64.
func Bind[T any]() *Shape[T] {
	var zero T

	typ := reflect.TypeOf(zero)
	if typ == nil || typ.Kind() != reflect.Struct {
		panic(fmt.Sprintf("qualia.Bind: %T is not a struct", zero))
	}

	b := &Shape[T]{typ: typ}

	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		if !f.IsExported() {
			continue
		}

		name := f.Tag.Get("qualia")
		if name == "" {
			name = f.Name
		}

		if name == "object_id" {
			if f.Type != idFieldType {
				panic(fmt.Sprintf("qualia.Bind: %s.%s: object_id field must be *int64, got %s",
					typ.Name(), f.Name, f.Type))
			}

			idField := shapeField{structIndex: i, name: name}
			b.idField = &idField

			continue
		}

		switch f.Type.Kind() {
		case reflect.Int64, reflect.String:
		default:
			panic(fmt.Sprintf("qualia.Bind: %s.%s: unsupported field type %s (want int64, string, or *int64 for object_id)",
				typ.Name(), f.Name, f.Type))
		}

		b.fields = append(b.fields, shapeField{structIndex: i, name: name})
	}

	return b
}

// ToProperties builds a property bag from v, one Field Value per field.
func (b *Shape[T]) ToProperties(v T) (Properties, error) {
	rv := reflect.ValueOf(v)
	props := make(Properties, len(b.fields))

	for _, sf := range b.fields {
		fv := rv.Field(sf.structIndex)

		switch fv.Kind() {
		case reflect.Int64:
			props[sf.name] = []field.Value{field.NewInteger(fv.Int())}
		case reflect.String:
			props[sf.name] = []field.Value{field.NewPhrase(fv.String())}
		}
	}

	return props, nil
}

// FromProperties constructs a T from id and props. A stored property whose
// variant does not match the declared field type fails with
// ErrTypeMismatch. A field with no corresponding property is left at its
// zero value.
func (b *Shape[T]) FromProperties(id int64, props Properties) (T, error) {
	var out T

	rv := reflect.ValueOf(&out).Elem()

	if b.idField != nil {
		idCopy := id
		rv.Field(b.idField.structIndex).Set(reflect.ValueOf(&idCopy))
	}

	for _, sf := range b.fields {
		values := props[sf.name]
		if len(values) == 0 {
			continue
		}

		v := values[0]
		fv := rv.Field(sf.structIndex)

		switch fv.Kind() {
		case reflect.Int64:
			if v.Kind() != field.Integer {
				return out, fmt.Errorf("field %q: %w: stored variant %s, want integer", sf.name, ErrTypeMismatch, v.Kind())
			}
			fv.SetInt(v.Integer())

		case reflect.String:
			if v.Kind() != field.Phrase {
				return out, fmt.Errorf("field %q: %w: stored variant %s, want phrase", sf.name, ErrTypeMismatch, v.Kind())
			}
			fv.SetString(v.Phrase())
		}
	}

	return out, nil
}

// ID reports v's stored object id, and false if v has no id field or has
// never been stored.
func (b *Shape[T]) ID(v T) (int64, bool) {
	if b.idField == nil {
		return 0, false
	}

	fv := reflect.ValueOf(v).Field(b.idField.structIndex)
	if fv.IsNil() {
		return 0, false
	}

	return *fv.Interface().(*int64), true
}

// QueryBuilder composes typed clauses against a bound shape's fields into
// query grammar text. It is a thin convenience layer: query.Parse remains
// the single place predicate semantics are defined, so QueryBuilder only
// ever assembles text for Store.Query to parse, rather than building and
// executing its own typed AST. Field names are taken as given; they are not
// checked against the shape's fields.
type QueryBuilder struct {
	clauses []string
}

// NewQuery starts an empty QueryBuilder for b's fields.
func (b *Shape[T]) NewQuery() *QueryBuilder {
	return &QueryBuilder{}
}

// Contains adds a phrase-contains clause.
func (qb *QueryBuilder) Contains(name, phrase string) *QueryBuilder {
	qb.clauses = append(qb.clauses, fmt.Sprintf("%s: %s", name, quoteLiteral(phrase)))
	return qb
}

// Exactly adds a phrase-exact clause.
func (qb *QueryBuilder) Exactly(name, phrase string) *QueryBuilder {
	qb.clauses = append(qb.clauses, fmt.Sprintf("%s: exactly %s", name, quoteLiteral(phrase)))
	return qb
}

// IntegerEquals adds an integer-equals clause.
func (qb *QueryBuilder) IntegerEquals(name string, n int64) *QueryBuilder {
	qb.clauses = append(qb.clauses, fmt.Sprintf("%s: %d", name, n))
	return qb
}

// IntegerBetween adds an inclusive integer-range clause.
func (qb *QueryBuilder) IntegerBetween(name string, min, max int64) *QueryBuilder {
	qb.clauses = append(qb.clauses, fmt.Sprintf("%s: between %d and %d", name, min, max))
	return qb
}

// DateEquals adds a date-equals clause.
func (qb *QueryBuilder) DateEquals(name string, d field.Day) *QueryBuilder {
	qb.clauses = append(qb.clauses, fmt.Sprintf("%s: %s", name, d))
	return qb
}

// DateBetween adds an inclusive date-range clause.
func (qb *QueryBuilder) DateBetween(name string, min, max field.Day) *QueryBuilder {
	qb.clauses = append(qb.clauses, fmt.Sprintf("%s: between dates %s and %s", name, min, max))
	return qb
}

// String renders the accumulated clauses as query grammar text, ready for
// Store.Query.
func (qb *QueryBuilder) String() string {
	return strings.Join(qb.clauses, ", ")
}

// quoteLiteral wraps s as a quoted query-grammar literal. The grammar has
// no escape syntax, so this is only safe for phrases that do not themselves
// contain a double quote.
func quoteLiteral(s string) string {
	return `"` + s + `"`
}
