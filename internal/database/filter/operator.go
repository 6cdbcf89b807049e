// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package filter

// Operator is the closed set of comparisons a caller may request. The string forms are the
// tuple heads list endpoints already send ("like", "between", "None", ...).
type Operator string

const (
	OpEqual          Operator = "eq"
	OpLike           Operator = "like"
	OpIn             Operator = "in"
	OpBetween        Operator = "between"
	OpDate           Operator = "date"
	OpMonth          Operator = "month"
	OpNotEqual       Operator = "!="
	OpGreater        Operator = ">"
	OpGreaterOrEqual Operator = ">="
	OpLessOrEqual    Operator = "<="
	OpIsNull         Operator = "None"
	OpNotNull        Operator = "not None"
)

var operators = map[Operator]struct{}{
	OpEqual: {}, OpLike: {}, OpIn: {}, OpBetween: {}, OpDate: {}, OpMonth: {},
	OpNotEqual: {}, OpGreater: {}, OpGreaterOrEqual: {}, OpLessOrEqual: {},
	OpIsNull: {}, OpNotNull: {},
}

// Valid reports whether o belongs to the closed operator set.
func (o Operator) Valid() bool {
	_, ok := operators[o]
	return ok
}

// IsNullCheck reports whether o carries no value.
func (o Operator) IsNullCheck() bool {
	return o == OpIsNull || o == OpNotNull
}

// Cond is an (operator, value) pair for one field.
type Cond struct {
	Op    Operator
	Value interface{}
}

// Like matches values containing v anywhere.
func Like(v interface{}) Cond { return Cond{Op: OpLike, Value: v} }

// In matches any of values.
func In(values ...interface{}) Cond { return Cond{Op: OpIn, Value: values} }

// Between matches the inclusive range [start, end].
func Between(start, end interface{}) Cond {
	return Cond{Op: OpBetween, Value: []interface{}{start, end}}
}

// OnDate matches a "YYYY-MM-DD" calendar day.
func OnDate(day string) Cond { return Cond{Op: OpDate, Value: day} }

// InMonth matches a "YYYY-MM" calendar month.
func InMonth(month string) Cond { return Cond{Op: OpMonth, Value: month} }

func NotEq(v interface{}) Cond { return Cond{Op: OpNotEqual, Value: v} }
func Gt(v interface{}) Cond    { return Cond{Op: OpGreater, Value: v} }
func Gte(v interface{}) Cond   { return Cond{Op: OpGreaterOrEqual, Value: v} }
func Lte(v interface{}) Cond   { return Cond{Op: OpLessOrEqual, Value: v} }
func Null() Cond               { return Cond{Op: OpIsNull} }
func NotNull() Cond            { return Cond{Op: OpNotNull} }
