package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/qolzam/kinit-dal/internal/database/filter"
	"github.com/qolzam/kinit-dal/internal/database/mongodb"
	"github.com/qolzam/kinit-dal/internal/platform/config"
	"github.com/qolzam/kinit-dal/internal/scheduler"
	"github.com/qolzam/kinit-dal/internal/testutil"
	"github.com/qolzam/kinit-dal/tasks/models"
	"github.com/qolzam/kinit-dal/tasks/repository"
	"github.com/qolzam/kinit-dal/tasks/services"
)

func TestTaskService_Integration(t *testing.T) {
	env := testutil.Setup(t)
	ctx := context.Background()
	mongo := env.MongoDatabase(t)
	channel := env.Channel(t)
	cols := env.Config.Tasks

	sub := env.Redis.Subscribe(ctx, channel)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	repo := repository.NewMongoRepository(mongo, cols, time.UTC)
	bridge := scheduler.NewBridge(env.Redis, config.SchedulerConfig{Channel: channel, PublishTimeout: 2 * time.Second})
	svc := services.NewTaskService(repo, bridge)

	in := &models.TaskInput{
		Name:         "nightly report",
		Group:        "reports",
		JobClass:     "scheduler.tasks.report",
		ExecStrategy: scheduler.StrategyCron,
		Expression:   "0 1 * * *",
		StartDate:    "2024-01-01 00:00:00",
		IsActive:     true,
	}
	result, err := svc.Create(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.SubscriberCount)

	select {
	case msg := <-sub.Channel():
		assert.JSONEq(t, `{"operation":"add_job","task":{"exec_strategy":"cron","job_params":{
			"name":"`+result.ID+`","job_class":"scheduler.tasks.report","expression":"0 1 * * *",
			"start_date":"2024-01-01 00:00:00"}}}`, msg.Payload)
	case <-time.After(5 * time.Second):
		t.Fatal("no job message received")
	}

	task, err := svc.Get(ctx, result.ID)
	require.NoError(t, err)
	assert.False(t, task.IsActive, "no scheduler job has been written yet")
	assert.Nil(t, task.LastRunDatetime)

	// act as the scheduler: register the job and two executions
	_, err = mongo.Collection(cols.Jobs).InsertOne(ctx, bson.M{"_id": result.ID})
	require.NoError(t, err)
	older := time.Date(2024, 5, 1, 1, 0, 0, 0, time.UTC)
	newer := older.AddDate(0, 0, 1)
	_, err = mongo.Collection(cols.Records).InsertMany(ctx, []interface{}{
		bson.M{"job_id": result.ID, "create_datetime": newer},
		bson.M{"job_id": result.ID, "create_datetime": older},
	})
	require.NoError(t, err)

	task, err = svc.Get(ctx, result.ID)
	require.NoError(t, err)
	assert.True(t, task.IsActive)
	require.NotNil(t, task.LastRunDatetime)
	assert.True(t, newer.Equal(*task.LastRunDatetime))

	page, err := svc.List(ctx, filter.Params{"is_active": true}, 1, 10, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)

	records, err := svc.Records(ctx, result.ID, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), records.Total)

	groups, err := mongo.Collection(cols.Groups).CountDocuments(ctx, bson.M{"value": "reports"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), groups)

	// switching to a date-less cron schedule drops the stored window
	in.StartDate = ""
	in.IsActive = false
	_, err = svc.Update(ctx, result.ID, in)
	require.NoError(t, err)
	var stored bson.M
	require.NoError(t, mongo.Collection(cols.Tasks).FindOne(ctx, bson.M{"name": "nightly report"}).Decode(&stored))
	assert.NotContains(t, stored, "start_date")
	assert.NotContains(t, stored, "end_date")
	assert.Equal(t, "0 1 * * *", stored["expression"])

	require.NoError(t, svc.Delete(ctx, result.ID))
	jobs, err := mongo.Collection(cols.Jobs).CountDocuments(ctx, bson.M{})
	require.NoError(t, err)
	assert.Zero(t, jobs)
}

type application struct {
	Name      string    `bson:"name"`
	ApplyDate time.Time `bson:"apply_date"`
}

func TestDocumentRepository_BetweenIntegration(t *testing.T) {
	env := testutil.Setup(t)
	ctx := context.Background()
	coll := env.MongoDatabase(t).Collection("applications")

	_, err := coll.InsertMany(ctx, []interface{}{
		bson.M{"name": "january", "apply_date": time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)},
		bson.M{"name": "february", "apply_date": time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)},
	})
	require.NoError(t, err)

	repo := mongodb.NewRepository[application](coll, mongodb.Options{})
	params := filter.Params{"apply_date": filter.Between("2024-01-01", "2024-01-31")}

	items, err := repo.List(ctx, 1, 0, params, nil)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "january", items[0].Name)

	n, err := repo.Count(ctx, params)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
