// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"

	"github.com/qolzam/kinit-dal/internal/database/filter"
	"github.com/qolzam/kinit-dal/internal/database/interfaces"
	"github.com/qolzam/kinit-dal/internal/database/pagination"
	"github.com/qolzam/kinit-dal/internal/pkg/log"
)

// Document audit fields.
const (
	FieldCreateDatetime = "create_datetime"
	FieldUpdateDatetime = "update_datetime"
)

// Options configures a Repository.
type Options struct {
	// Schema restricts filterable fields; nil accepts any field.
	Schema *filter.Schema
	// ObjectID marks _id as an ObjectID. Collections keyed by opaque strings leave it false.
	ObjectID bool
	// Location anchors date-only filter values. Defaults to UTC.
	Location *time.Location
}

// Repository is the document-store analogue of the relational repository over one collection.
type Repository[T any] struct {
	coll  *mongo.Collection
	opts  Options
	where translator
	now   func() time.Time
}

func NewRepository[T any](coll *mongo.Collection, opts Options) *Repository[T] {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Repository[T]{
		coll:  coll,
		opts:  opts,
		where: translator{objectID: opts.ObjectID, schema: opts.Schema, loc: opts.Location},
		now:   time.Now,
	}
}

// WithClock replaces the audit timestamp source.
func (r *Repository[T]) WithClock(now func() time.Time) *Repository[T] {
	r.now = now
	return r
}

func (r *Repository[T]) Collection() *mongo.Collection {
	return r.coll
}

// Filter compiles params into a query document usable in find or a $match stage.
func (r *Repository[T]) Filter(params filter.Params) (bson.D, error) {
	clauses, err := filter.Compile(r.opts.Schema, params)
	if err != nil {
		return nil, err
	}
	return r.where.translate(clauses)
}

// ID converts id to the collection's identifier type.
func (r *Repository[T]) ID(id string) (interface{}, error) {
	if !r.opts.ObjectID {
		return id, nil
	}
	return toObjectID(id)
}

// Get returns the first document matching id (when non-empty) and params.
func (r *Repository[T]) Get(ctx context.Context, id string, params filter.Params, returnNone bool) (*T, error) {
	query, err := r.Filter(params)
	if err != nil {
		return nil, err
	}
	if id != "" {
		idValue, err := r.ID(id)
		if err != nil {
			return nil, err
		}
		query = append(query, bson.E{Key: "_id", Value: idValue})
	}

	item := new(T)
	if err := r.coll.FindOne(ctx, query).Decode(item); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			if returnNone {
				return nil, nil
			}
			if id == "" {
				return nil, interfaces.NotFound(r.coll.Name(), nil)
			}
			return nil, interfaces.NotFound(r.coll.Name(), id)
		}
		log.ErrorWithContext(ctx, "get %s failed: %v", r.coll.Name(), err)
		return nil, MapError("get "+r.coll.Name(), err)
	}
	return item, nil
}

// List returns one page. Without an order the newest documents come first.
func (r *Repository[T]) List(ctx context.Context, page, limit int, params filter.Params, order *interfaces.Order) ([]T, error) {
	query, err := r.Filter(params)
	if err != nil {
		return nil, err
	}
	sort, err := r.sort(order)
	if err != nil {
		return nil, err
	}

	findOptions := options.Find().SetSort(sort)
	p := pagination.New(page, limit)
	if !p.Unlimited() {
		findOptions.SetSkip(int64(p.Offset())).SetLimit(int64(p.Limit))
	}

	cursor, err := r.coll.Find(ctx, query, findOptions)
	if err != nil {
		log.ErrorWithContext(ctx, "list %s failed: %v", r.coll.Name(), err)
		return nil, MapError("list "+r.coll.Name(), err)
	}
	items := []T{}
	if err := cursor.All(ctx, &items); err != nil {
		return nil, MapError("decode "+r.coll.Name(), err)
	}
	return items, nil
}

// Count returns the number of documents matching params.
func (r *Repository[T]) Count(ctx context.Context, params filter.Params) (int64, error) {
	query, err := r.Filter(params)
	if err != nil {
		return 0, err
	}
	n, err := r.coll.CountDocuments(ctx, query)
	if err != nil {
		log.ErrorWithContext(ctx, "count %s failed: %v", r.coll.Name(), err)
		return 0, MapError("count "+r.coll.Name(), err)
	}
	return n, nil
}

// ListWithCount issues List and Count concurrently. They remain two independent reads, so a
// concurrent write may make them disagree.
func (r *Repository[T]) ListWithCount(ctx context.Context, page, limit int, params filter.Params, order *interfaces.Order) (*pagination.Page[T], error) {
	var (
		items []T
		total int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		items, err = r.List(gctx, page, limit, params, order)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = r.Count(gctx, params)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return pagination.NewPage(items, total), nil
}

// Create inserts payload with fresh audit timestamps and returns the new id as a string.
func (r *Repository[T]) Create(ctx context.Context, payload map[string]interface{}) (string, error) {
	result, err := r.coll.InsertOne(ctx, r.stamped(payload))
	if err != nil {
		log.ErrorWithContext(ctx, "create %s failed: %v", r.coll.Name(), err)
		return "", MapError("create "+r.coll.Name(), err)
	}
	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		return oid.Hex(), nil
	}
	return fmt.Sprint(result.InsertedID), nil
}

func (r *Repository[T]) stamped(payload map[string]interface{}) bson.M {
	doc := make(bson.M, len(payload)+2)
	for k, v := range payload {
		doc[k] = v
	}
	now := r.now()
	doc[FieldCreateDatetime] = now
	doc[FieldUpdateDatetime] = now
	return doc
}

// Update sets payload on document id and refreshes update_datetime. Keys whose value is nil
// are removed from the stored document.
func (r *Repository[T]) Update(ctx context.Context, id string, payload map[string]interface{}) error {
	if _, ok := payload["_id"]; ok {
		return interfaces.InvalidPayload("%s: _id cannot be updated", r.coll.Name())
	}
	idValue, err := r.ID(id)
	if err != nil {
		return err
	}

	set := make(bson.M, len(payload)+1)
	unset := bson.M{}
	for k, v := range payload {
		if v == nil {
			unset[k] = ""
			continue
		}
		set[k] = v
	}
	set[FieldUpdateDatetime] = r.now()

	update := bson.D{{Key: "$set", Value: set}}
	if len(unset) > 0 {
		update = append(update, bson.E{Key: "$unset", Value: unset})
	}
	result, err := r.coll.UpdateOne(ctx, bson.D{{Key: "_id", Value: idValue}}, update)
	if err != nil {
		log.ErrorWithContext(ctx, "update %s failed: %v", r.coll.Name(), err)
		return MapError("update "+r.coll.Name(), err)
	}
	if result.MatchedCount == 0 {
		return interfaces.NotFound(r.coll.Name(), id)
	}
	return nil
}

// Delete removes document id.
func (r *Repository[T]) Delete(ctx context.Context, id string) error {
	idValue, err := r.ID(id)
	if err != nil {
		return err
	}
	result, err := r.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: idValue}})
	if err != nil {
		log.ErrorWithContext(ctx, "delete %s failed: %v", r.coll.Name(), err)
		return MapError("delete "+r.coll.Name(), err)
	}
	if result.DeletedCount == 0 {
		return interfaces.NotFound(r.coll.Name(), id)
	}
	return nil
}

// Aggregate runs pipeline and decodes every result into T.
func (r *Repository[T]) Aggregate(ctx context.Context, pipeline mongo.Pipeline) ([]T, error) {
	var items []T
	if err := AggregateInto(ctx, r.coll, pipeline, &items); err != nil {
		return nil, err
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

// AggregateInto runs pipeline on coll and decodes all results into out.
func AggregateInto(ctx context.Context, coll *mongo.Collection, pipeline mongo.Pipeline, out interface{}) error {
	cursor, err := coll.Aggregate(ctx, pipeline)
	if err != nil {
		log.ErrorWithContext(ctx, "aggregate %s failed: %v", coll.Name(), err)
		return MapError("aggregate "+coll.Name(), err)
	}
	if err := cursor.All(ctx, out); err != nil {
		return MapError("decode "+coll.Name(), err)
	}
	return nil
}

// Sort returns the sort document for order; see List.
func (r *Repository[T]) Sort(order *interfaces.Order) (bson.D, error) {
	return r.sort(order)
}

func (r *Repository[T]) sort(order *interfaces.Order) (bson.D, error) {
	field, dir := FieldCreateDatetime, -1
	if order != nil {
		if order.Field != "" {
			if !r.opts.Schema.Has(order.Field) {
				return nil, interfaces.InvalidFilter("unknown order field %q", order.Field)
			}
			field = fieldName(order.Field)
		}
		dir = 1
		if order.Desc {
			dir = -1
		}
	}
	if field == "_id" {
		return bson.D{{Key: "_id", Value: dir}}, nil
	}
	return bson.D{{Key: field, Value: dir}, {Key: "_id", Value: dir}}, nil
}
