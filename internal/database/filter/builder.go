// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package filter

// Builder assembles Params fluently:
//
//	filter.New().Like("name", "Sales").IsNull("parent_id").Params()
//
// Setting the same field twice keeps the last condition.
type Builder struct {
	params Params
}

func New() *Builder {
	return &Builder{params: Params{}}
}

// Where sets an arbitrary condition for field.
func (b *Builder) Where(field string, cond Cond) *Builder {
	b.params[field] = cond
	return b
}

func (b *Builder) Eq(field string, v interface{}) *Builder {
	return b.Where(field, Cond{Op: OpEqual, Value: v})
}

func (b *Builder) Like(field string, v interface{}) *Builder {
	return b.Where(field, Like(v))
}

func (b *Builder) In(field string, values ...interface{}) *Builder {
	return b.Where(field, In(values...))
}

func (b *Builder) Between(field string, start, end interface{}) *Builder {
	return b.Where(field, Between(start, end))
}

func (b *Builder) OnDate(field, day string) *Builder {
	return b.Where(field, OnDate(day))
}

func (b *Builder) InMonth(field, month string) *Builder {
	return b.Where(field, InMonth(month))
}

func (b *Builder) NotEq(field string, v interface{}) *Builder {
	return b.Where(field, NotEq(v))
}

func (b *Builder) Gt(field string, v interface{}) *Builder {
	return b.Where(field, Gt(v))
}

func (b *Builder) Gte(field string, v interface{}) *Builder {
	return b.Where(field, Gte(v))
}

func (b *Builder) Lte(field string, v interface{}) *Builder {
	return b.Where(field, Lte(v))
}

func (b *Builder) IsNull(field string) *Builder {
	return b.Where(field, Null())
}

func (b *Builder) IsNotNull(field string) *Builder {
	return b.Where(field, NotNull())
}

// Merge copies other into the builder, overwriting shared fields.
func (b *Builder) Merge(other Params) *Builder {
	for field, v := range other {
		b.params[field] = v
	}
	return b
}

// Params returns a copy of the accumulated conditions.
func (b *Builder) Params() Params {
	out := make(Params, len(b.params))
	for field, v := range b.params {
		out[field] = v
	}
	return out
}
