package repository

import (
	"context"

	"github.com/qolzam/kinit-dal/internal/database/filter"
	"github.com/qolzam/kinit-dal/internal/database/interfaces"
	"github.com/qolzam/kinit-dal/internal/database/pagination"
	"github.com/qolzam/kinit-dal/tasks/models"
)

// TaskSchema lists the fields tasks may be filtered and ordered on. is_active and
// last_run_datetime are computed and filterable because matching runs after they are added.
var TaskSchema = filter.NewSchema(
	"name",
	"group",
	"job_class",
	"exec_strategy",
	"expression",
	"remark",
	"is_active",
	"last_run_datetime",
	"create_datetime",
	"update_datetime",
).WithIdentifiers("id")

// TaskRepository stores tasks and reads the scheduler's job and record collections.
type TaskRepository interface {
	// Create stores in without is_active and returns the new id
	Create(ctx context.Context, in *models.TaskInput) (string, error)

	// Update replaces the stored fields of task id
	Update(ctx context.Context, id string, in *models.TaskInput) error

	// Delete removes task id
	Delete(ctx context.Context, id string) error

	// FindByID returns task id with its computed fields
	FindByID(ctx context.Context, id string) (*models.Task, error)

	// Find returns one page of tasks and the filtered total
	Find(ctx context.Context, params filter.Params, page, limit int, order *interfaces.Order) (*pagination.Page[models.Task], error)

	// EnsureGroup creates the task group when it does not exist and reports whether it did
	EnsureGroup(ctx context.Context, value string) (bool, error)

	// DeleteJob removes the scheduler's live job for task id
	DeleteJob(ctx context.Context, id string) error

	// FindRecords returns one page of execution records for task id, newest first
	FindRecords(ctx context.Context, id string, page, limit int) (*pagination.Page[models.TaskRecord], error)
}
