// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package mongodb

import (
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/qolzam/kinit-dal/internal/database/filter"
	"github.com/qolzam/kinit-dal/internal/database/interfaces"
)

const (
	dayLayout       = "2006-01-02"
	monthLayout     = "2006-01"
	timestampLayout = "2006-01-02 15:04:05"
	lastSecond      = 23*time.Hour + 59*time.Minute + 59*time.Second
)

// translator turns compiled clauses into a query document.
type translator struct {
	objectID bool
	schema   *filter.Schema
	loc      *time.Location
}

func fieldName(field string) string {
	if field == "id" {
		return "_id"
	}
	return field
}

func (t translator) translate(clauses []filter.Clause) (bson.D, error) {
	doc := bson.D{}
	for _, c := range clauses {
		field := fieldName(c.Field)
		if t.isIdentifier(c.Field) {
			converted, err := toObjectIDs(c)
			if err != nil {
				return nil, err
			}
			c = converted
		}
		expr, err := t.expression(c)
		if err != nil {
			return nil, err
		}
		doc = append(doc, bson.E{Key: field, Value: expr})
	}
	return doc, nil
}

func (t translator) isIdentifier(field string) bool {
	if t.objectID && fieldName(field) == "_id" {
		return true
	}
	return t.schema.IsIdentifier(field)
}

func (t translator) expression(c filter.Clause) (interface{}, error) {
	switch c.Op {
	case filter.OpEqual:
		return c.Value, nil
	case filter.OpLike:
		return bson.D{{Key: "$regex", Value: regexp.QuoteMeta(fmt.Sprint(c.Value))}}, nil
	case filter.OpIn:
		return bson.D{{Key: "$in", Value: c.Values()}}, nil
	case filter.OpBetween:
		v := c.Values()
		start, err := t.bound(c.Field, v[0], 0)
		if err != nil {
			return nil, err
		}
		end, err := t.bound(c.Field, v[1], lastSecond)
		if err != nil {
			return nil, err
		}
		return bson.D{{Key: "$gte", Value: start}, {Key: "$lt", Value: end}}, nil
	case filter.OpDate:
		day, err := t.parse(c.Field, c.Value, dayLayout)
		if err != nil {
			return nil, err
		}
		return bson.D{{Key: "$gte", Value: day}, {Key: "$lt", Value: day.AddDate(0, 0, 1)}}, nil
	case filter.OpMonth:
		month, err := t.parse(c.Field, c.Value, monthLayout)
		if err != nil {
			return nil, err
		}
		return bson.D{{Key: "$gte", Value: month}, {Key: "$lt", Value: month.AddDate(0, 1, 0)}}, nil
	case filter.OpNotEqual:
		return bson.D{{Key: "$ne", Value: c.Value}}, nil
	case filter.OpGreater:
		return bson.D{{Key: "$gt", Value: c.Value}}, nil
	case filter.OpGreaterOrEqual:
		return bson.D{{Key: "$gte", Value: c.Value}}, nil
	case filter.OpLessOrEqual:
		return bson.D{{Key: "$lte", Value: c.Value}}, nil
	case filter.OpIsNull:
		return nil, nil
	case filter.OpNotNull:
		return bson.D{{Key: "$ne", Value: nil}}, nil
	}
	return nil, interfaces.InvalidFilter("field %q: unsupported operator %q", c.Field, c.Op)
}

// bound resolves one end of a between range. A bare date is shifted by offset from local
// midnight; full timestamps are used as given.
func (t translator) bound(field string, v interface{}, offset time.Duration) (time.Time, error) {
	switch b := v.(type) {
	case time.Time:
		return b, nil
	case string:
		if day, err := time.ParseInLocation(dayLayout, b, t.loc); err == nil {
			return day.Add(offset), nil
		}
		if ts, err := time.ParseInLocation(timestampLayout, b, t.loc); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, interfaces.InvalidFilter("field %q: %v is not a date", field, v)
}

func (t translator) parse(field string, v interface{}, layout string) (time.Time, error) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, interfaces.InvalidFilter("field %q: expected a %s string", field, layout)
	}
	parsed, err := time.ParseInLocation(layout, s, t.loc)
	if err != nil {
		return time.Time{}, interfaces.InvalidFilter("field %q: %q does not match %s", field, s, layout)
	}
	return parsed, nil
}

func toObjectIDs(c filter.Clause) (filter.Clause, error) {
	if c.Op.IsNullCheck() {
		return c, nil
	}
	if c.Op == filter.OpIn {
		values := c.Values()
		out := make([]interface{}, len(values))
		for i, v := range values {
			id, err := toObjectID(v)
			if err != nil {
				return c, err
			}
			out[i] = id
		}
		c.Value = out
		return c, nil
	}
	id, err := toObjectID(c.Value)
	if err != nil {
		return c, err
	}
	c.Value = id
	return c, nil
}

func toObjectID(v interface{}) (primitive.ObjectID, error) {
	switch id := v.(type) {
	case primitive.ObjectID:
		return id, nil
	case string:
		oid, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			return primitive.NilObjectID, interfaces.InvalidIdentifier(id, err)
		}
		return oid, nil
	}
	return primitive.NilObjectID, interfaces.InvalidIdentifier(fmt.Sprint(v), nil)
}
