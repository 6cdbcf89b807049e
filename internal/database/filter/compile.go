// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package filter

import (
	"reflect"
	"sort"

	"github.com/qolzam/kinit-dal/internal/database/interfaces"
)

// Params maps a field name to either a bare value (equality, or membership for a slice) or
// a Cond.
type Params map[string]interface{}

// Clause is one compiled, backend-agnostic predicate. For OpIn and OpBetween Value is a
// []interface{}; for null checks it is nil.
type Clause struct {
	Field string
	Op    Operator
	Value interface{}
}

// Values returns the elements of an OpIn or OpBetween clause.
func (c Clause) Values() []interface{} {
	values, _ := c.Value.([]interface{})
	return values
}

// FieldKind distinguishes plain attributes from store identifiers.
type FieldKind int

const (
	KindValue FieldKind = iota
	KindIdentifier
)

// Schema lists the fields a caller may filter on.
type Schema struct {
	fields map[string]FieldKind
}

// NewSchema declares the known value fields of an entity.
func NewSchema(fields ...string) *Schema {
	s := &Schema{fields: make(map[string]FieldKind, len(fields))}
	for _, f := range fields {
		s.fields[f] = KindValue
	}
	return s
}

// WithIdentifiers declares identifier-typed fields, adding them when missing.
func (s *Schema) WithIdentifiers(fields ...string) *Schema {
	for _, f := range fields {
		s.fields[f] = KindIdentifier
	}
	return s
}

// Has reports whether field is known. A nil Schema knows every field.
func (s *Schema) Has(field string) bool {
	if s == nil {
		return true
	}
	_, ok := s.fields[field]
	return ok
}

// IsIdentifier reports whether field holds a store identifier.
func (s *Schema) IsIdentifier(field string) bool {
	if s == nil {
		return false
	}
	return s.fields[field] == KindIdentifier
}

// Fields returns the known field names in sorted order.
func (s *Schema) Fields() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.fields))
	for f := range s.fields {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Compile validates params against schema and returns clauses sorted by field name.
// Empty values drop their clause; null checks never do.
func Compile(schema *Schema, params Params) ([]Clause, error) {
	if len(params) == 0 {
		return nil, nil
	}

	fields := make([]string, 0, len(params))
	for field := range params {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	clauses := make([]Clause, 0, len(fields))
	for _, field := range fields {
		if !schema.Has(field) {
			return nil, interfaces.InvalidFilter("unknown filter field %q", field)
		}

		cond := toCond(params[field])
		if !cond.Op.Valid() {
			return nil, interfaces.InvalidFilter("field %q: unsupported operator %q", field, cond.Op)
		}
		if cond.Op.IsNullCheck() {
			clauses = append(clauses, Clause{Field: field, Op: cond.Op})
			continue
		}
		if isEmpty(cond.Value) {
			continue
		}

		clause := Clause{Field: field, Op: cond.Op, Value: cond.Value}
		switch cond.Op {
		case OpIn:
			values, ok := toSlice(cond.Value)
			if !ok {
				return nil, interfaces.InvalidFilter("field %q: in expects a list", field)
			}
			clause.Value = values
		case OpBetween:
			values, ok := toSlice(cond.Value)
			if !ok || len(values) != 2 {
				return nil, interfaces.InvalidFilter("field %q: between expects exactly two values", field)
			}
			clause.Value = values
		}
		clauses = append(clauses, clause)
	}
	return clauses, nil
}

func toCond(v interface{}) Cond {
	switch c := v.(type) {
	case Cond:
		return c
	case *Cond:
		if c == nil {
			return Cond{Op: OpEqual}
		}
		return *c
	}
	if _, ok := toSlice(v); ok {
		return Cond{Op: OpIn, Value: v}
	}
	return Cond{Op: OpEqual, Value: v}
}

// toSlice flattens any slice or array except []byte.
func toSlice(v interface{}) ([]interface{}, bool) {
	if values, ok := v.([]interface{}); ok {
		return values, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]interface{}, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func isEmpty(v interface{}) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return s == ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return true
		}
		return isEmpty(rv.Elem().Interface())
	case reflect.Slice, reflect.Map:
		return rv.Len() == 0
	case reflect.Array:
		return rv.Len() == 0
	}
	return false
}
