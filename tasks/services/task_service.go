package services

import (
	"context"
	"errors"
	"time"

	"github.com/qolzam/kinit-dal/internal/database/filter"
	"github.com/qolzam/kinit-dal/internal/database/interfaces"
	"github.com/qolzam/kinit-dal/internal/database/pagination"
	"github.com/qolzam/kinit-dal/internal/pkg/log"
	"github.com/qolzam/kinit-dal/internal/scheduler"
	taskErrors "github.com/qolzam/kinit-dal/tasks/errors"
	"github.com/qolzam/kinit-dal/tasks/models"
	"github.com/qolzam/kinit-dal/tasks/repository"
)

const scheduleLayout = "2006-01-02 15:04:05"

// TaskService manages task definitions and keeps the external scheduler informed.
type TaskService interface {
	Create(ctx context.Context, in *models.TaskInput) (*models.TaskResult, error)
	Update(ctx context.Context, id string, in *models.TaskInput) (*models.TaskResult, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*models.Task, error)
	List(ctx context.Context, params filter.Params, page, limit int, order *interfaces.Order) (*pagination.Page[models.Task], error)
	RunOnce(ctx context.Context, id string) (int64, error)
	Records(ctx context.Context, id string, page, limit int) (*pagination.Page[models.TaskRecord], error)
}

// Enqueuer is implemented by *scheduler.Bridge.
type Enqueuer interface {
	Enqueue(ctx context.Context, def scheduler.TaskDefinition) (int64, error)
	RunOnce(ctx context.Context, def scheduler.TaskDefinition) (int64, error)
}

type taskService struct {
	repo     repository.TaskRepository
	enqueuer Enqueuer
}

func NewTaskService(repo repository.TaskRepository, enqueuer Enqueuer) TaskService {
	return &taskService{repo: repo, enqueuer: enqueuer}
}

// Create stores the task, registers its group and, when in.IsActive, asks the scheduler
// to start it. Storing and publishing are not atomic: a failed publish leaves a stored
// task with no live schedule and returns ErrSchedulerOffline.
func (s *taskService) Create(ctx context.Context, in *models.TaskInput) (*models.TaskResult, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	id, err := s.repo.Create(ctx, in)
	if err != nil {
		return nil, taskErrors.Wrap(err)
	}
	log.InfoWithContext(ctx, "task %s created", id)
	return s.afterWrite(ctx, id, in)
}

// Update replaces the task, drops the scheduler's current job and re-enqueues when
// in.IsActive.
func (s *taskService) Update(ctx context.Context, id string, in *models.TaskInput) (*models.TaskResult, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, id, in); err != nil {
		return nil, taskErrors.Wrap(err)
	}
	if err := s.deleteJob(ctx, id); err != nil {
		return nil, err
	}
	return s.afterWrite(ctx, id, in)
}

func (s *taskService) afterWrite(ctx context.Context, id string, in *models.TaskInput) (*models.TaskResult, error) {
	task, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, taskErrors.Wrap(err)
	}
	created, err := s.repo.EnsureGroup(ctx, in.Group)
	if err != nil {
		return nil, taskErrors.Wrap(err)
	}
	if created {
		log.InfoWithContext(ctx, "task group %q created", in.Group)
	}

	result := &models.TaskResult{ID: id, IsActive: in.IsActive}
	if !in.IsActive {
		return result, nil
	}
	n, err := s.enqueuer.Enqueue(ctx, definition(task))
	if err != nil {
		return result, taskErrors.WrapPublishError(err)
	}
	result.SubscriberCount = n
	return result, nil
}

// Delete removes the task and then its live job, if any.
func (s *taskService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return taskErrors.Wrap(err)
	}
	return s.deleteJob(ctx, id)
}

func (s *taskService) deleteJob(ctx context.Context, id string) error {
	err := s.repo.DeleteJob(ctx, id)
	if err == nil || errors.Is(err, interfaces.ErrNotFound) {
		return nil
	}
	log.ErrorWithContext(ctx, "remove scheduler job %s: %v", id, err)
	return taskErrors.Wrap(err)
}

func (s *taskService) Get(ctx context.Context, id string) (*models.Task, error) {
	task, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, taskErrors.Wrap(err)
	}
	return task, nil
}

func (s *taskService) List(ctx context.Context, params filter.Params, page, limit int, order *interfaces.Order) (*pagination.Page[models.Task], error) {
	result, err := s.repo.Find(ctx, params, page, limit, order)
	if err != nil {
		return nil, taskErrors.Wrap(err)
	}
	return result, nil
}

// RunOnce asks the scheduler to run the task's job class a single time now. It does not
// require the task to be active.
func (s *taskService) RunOnce(ctx context.Context, id string) (int64, error) {
	task, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return 0, taskErrors.Wrap(err)
	}
	n, err := s.enqueuer.RunOnce(ctx, definition(task))
	if err != nil {
		return 0, taskErrors.WrapPublishError(err)
	}
	return n, nil
}

func (s *taskService) Records(ctx context.Context, id string, page, limit int) (*pagination.Page[models.TaskRecord], error) {
	records, err := s.repo.FindRecords(ctx, id, page, limit)
	if err != nil {
		return nil, taskErrors.Wrap(err)
	}
	return records, nil
}

func definition(task *models.Task) scheduler.TaskDefinition {
	return scheduler.TaskDefinition{
		ID:           task.ID.Hex(),
		JobClass:     task.JobClass,
		ExecStrategy: task.ExecStrategy,
		Expression:   task.Expression,
		StartDate:    task.StartDate,
		EndDate:      task.EndDate,
	}
}

func validateInput(in *models.TaskInput) error {
	invalid := func(msg string) error {
		return taskErrors.NewTaskError(taskErrors.CodeInvalidData, msg, nil)
	}
	if in == nil {
		return invalid("task is required")
	}
	if in.Name == "" || in.Group == "" || in.JobClass == "" {
		return invalid("name, group and job_class are required")
	}
	switch in.ExecStrategy {
	case scheduler.StrategyInterval, scheduler.StrategyCron, scheduler.StrategyDate:
	default:
		return invalid("exec_strategy must be interval, cron or date")
	}
	if in.Expression == "" {
		return invalid("expression is required")
	}
	for _, d := range []string{in.StartDate, in.EndDate} {
		if d == "" {
			continue
		}
		if _, err := time.Parse(scheduleLayout, d); err != nil {
			return taskErrors.NewTaskError(taskErrors.CodeInvalidData, "dates must look like "+scheduleLayout, err)
		}
	}
	return nil
}
