package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/qolzam/kinit-dal/internal/database/filter"
	"github.com/qolzam/kinit-dal/internal/database/interfaces"
	"github.com/qolzam/kinit-dal/internal/database/mongodb"
	"github.com/qolzam/kinit-dal/internal/database/pagination"
	"github.com/qolzam/kinit-dal/internal/platform/config"
	"github.com/qolzam/kinit-dal/tasks/models"
)

// Helper fields added and removed inside the task pipeline.
const (
	fieldIDString = "_id_str"
	fieldJobs     = "_jobs"
	fieldRecords  = "_records"
)

type mongoRepository struct {
	tasks   *mongodb.Repository[models.Task]
	groups  *mongodb.Repository[models.TaskGroup]
	jobs    *mongodb.Repository[models.SchedulerJob]
	records *mongodb.Repository[models.TaskRecord]
	cols    config.TaskCollections
}

// facetResult is the single document produced by the paged task pipeline.
type facetResult struct {
	Documents []models.Task `bson:"documents"`
	Count     []struct {
		Total int64 `bson:"total"`
	} `bson:"count"`
}

// NewMongoRepository builds the task repository over the collections named in cols.
func NewMongoRepository(client *mongodb.Client, cols config.TaskCollections, loc *time.Location) TaskRepository {
	return &mongoRepository{
		tasks: mongodb.NewRepository[models.Task](client.Collection(cols.Tasks), mongodb.Options{
			Schema:   TaskSchema,
			ObjectID: true,
			Location: loc,
		}),
		groups: mongodb.NewRepository[models.TaskGroup](client.Collection(cols.Groups), mongodb.Options{
			Schema:   filter.NewSchema("value"),
			ObjectID: true,
			Location: loc,
		}),
		// the scheduler keys its jobs by the task id string
		jobs: mongodb.NewRepository[models.SchedulerJob](client.Collection(cols.Jobs), mongodb.Options{
			Location: loc,
		}),
		records: mongodb.NewRepository[models.TaskRecord](client.Collection(cols.Records), mongodb.Options{
			Schema:   filter.NewSchema("job_id", "create_datetime"),
			Location: loc,
		}),
		cols: cols,
	}
}

// pipeline joins each task with its live job and its execution records, derives is_active
// and last_run_datetime, then applies match.
func (r *mongoRepository) pipeline(match bson.D) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$addFields", Value: bson.D{
			{Key: fieldIDString, Value: bson.D{{Key: "$toString", Value: "$_id"}}},
		}}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: r.cols.Jobs},
			{Key: "localField", Value: fieldIDString},
			{Key: "foreignField", Value: "_id"},
			{Key: "as", Value: fieldJobs},
		}}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: r.cols.Records},
			{Key: "localField", Value: fieldIDString},
			{Key: "foreignField", Value: "job_id"},
			{Key: "as", Value: fieldRecords},
		}}},
		{{Key: "$addFields", Value: bson.D{
			{Key: "is_active", Value: bson.D{{Key: "$ne", Value: bson.A{"$" + fieldJobs, bson.A{}}}}},
			{Key: "last_run_datetime", Value: bson.D{{Key: "$max", Value: "$" + fieldRecords + ".create_datetime"}}},
		}}},
		{{Key: "$project", Value: bson.D{
			{Key: fieldIDString, Value: 0},
			{Key: fieldJobs, Value: 0},
			{Key: fieldRecords, Value: 0},
		}}},
		{{Key: "$match", Value: match}},
	}
}

func (r *mongoRepository) Create(ctx context.Context, in *models.TaskInput) (string, error) {
	return r.tasks.Create(ctx, in.Document())
}

func (r *mongoRepository) Update(ctx context.Context, id string, in *models.TaskInput) error {
	return r.tasks.Update(ctx, id, in.Replacement())
}

func (r *mongoRepository) Delete(ctx context.Context, id string) error {
	return r.tasks.Delete(ctx, id)
}

func (r *mongoRepository) FindByID(ctx context.Context, id string) (*models.Task, error) {
	if id == "" {
		return nil, interfaces.InvalidIdentifier(id, nil)
	}
	match, err := r.tasks.Filter(filter.Params{"id": id})
	if err != nil {
		return nil, err
	}
	pipeline := append(r.pipeline(match), bson.D{{Key: "$limit", Value: 1}})

	items, err := r.tasks.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, interfaces.NotFound(r.cols.Tasks, id)
	}
	return &items[0], nil
}

func (r *mongoRepository) Find(ctx context.Context, params filter.Params, page, limit int, order *interfaces.Order) (*pagination.Page[models.Task], error) {
	match, err := r.tasks.Filter(params)
	if err != nil {
		return nil, err
	}
	sort, err := r.tasks.Sort(order)
	if err != nil {
		return nil, err
	}

	documents := bson.A{bson.D{{Key: "$sort", Value: sort}}}
	p := pagination.New(page, limit)
	if !p.Unlimited() {
		documents = append(documents,
			bson.D{{Key: "$skip", Value: p.Offset()}},
			bson.D{{Key: "$limit", Value: p.Limit}},
		)
	}
	pipeline := append(r.pipeline(match), bson.D{{Key: "$facet", Value: bson.D{
		{Key: "documents", Value: documents},
		{Key: "count", Value: bson.A{bson.D{{Key: "$count", Value: "total"}}}},
	}}})

	var results []facetResult
	if err := mongodb.AggregateInto(ctx, r.tasks.Collection(), pipeline, &results); err != nil {
		return nil, err
	}
	if len(results) == 0 || len(results[0].Count) == 0 {
		return pagination.NewPage[models.Task](nil, 0), nil
	}
	return pagination.NewPage(results[0].Documents, results[0].Count[0].Total), nil
}

func (r *mongoRepository) EnsureGroup(ctx context.Context, value string) (bool, error) {
	group, err := r.groups.Get(ctx, "", filter.Params{"value": value}, true)
	if err != nil {
		return false, err
	}
	if group != nil {
		return false, nil
	}
	if _, err := r.groups.Create(ctx, map[string]interface{}{"value": value}); err != nil {
		return false, err
	}
	return true, nil
}

func (r *mongoRepository) DeleteJob(ctx context.Context, id string) error {
	return r.jobs.Delete(ctx, id)
}

func (r *mongoRepository) FindRecords(ctx context.Context, id string, page, limit int) (*pagination.Page[models.TaskRecord], error) {
	return r.records.ListWithCount(ctx, page, limit, filter.Params{"job_id": id}, nil)
}
