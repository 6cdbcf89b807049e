// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package filter

import (
	"fmt"
	"net/url"
	"reflect"
	"strings"

	"github.com/gorilla/schema"
)

var decoder = newDecoder()

func newDecoder() *schema.Decoder {
	d := schema.NewDecoder()
	d.SetAliasTag("query")
	d.IgnoreUnknownKeys(true)
	return d
}

// DecodeValues fills a params struct from query values using its `query` tags.
func DecodeValues(values url.Values, dst interface{}) error {
	if err := decoder.Decode(dst, values); err != nil {
		return fmt.Errorf("decode filter params: %w", err)
	}
	return nil
}

// FromStruct turns a params struct into Params. Each field tagged
//
//	filter:"<field>[,<operator>]"
//
// contributes one condition; the operator defaults to eq. The pseudo operator "null" on a
// *bool field selects None (true) or not None (false). Nil pointers contribute nothing.
func FromStruct(v interface{}) (Params, error) {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return Params{}, nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, fmt.Errorf("filter params must be a struct, got %s", rv.Kind())
	}

	params := Params{}
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		tag := sf.Tag.Get("filter")
		if tag == "" || tag == "-" || !sf.IsExported() {
			continue
		}
		name, op, _ := strings.Cut(tag, ",")
		fv := rv.Field(i)
		if fv.Kind() == reflect.Ptr {
			if fv.IsNil() {
				continue
			}
			fv = fv.Elem()
		}

		if op == "null" {
			if fv.Kind() != reflect.Bool {
				return nil, fmt.Errorf("field %s: null operator needs a bool", sf.Name)
			}
			if fv.Bool() {
				params[name] = Null()
			} else {
				params[name] = NotNull()
			}
			continue
		}

		operator := OpEqual
		if op != "" {
			operator = Operator(op)
		}
		if !operator.Valid() {
			return nil, fmt.Errorf("field %s: unsupported operator %q", sf.Name, op)
		}
		params[name] = Cond{Op: operator, Value: fv.Interface()}
	}
	return params, nil
}
