package services

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/qolzam/kinit-dal/internal/database/filter"
	"github.com/qolzam/kinit-dal/internal/database/interfaces"
	"github.com/qolzam/kinit-dal/internal/database/pagination"
	"github.com/qolzam/kinit-dal/tasks/models"
	"github.com/qolzam/kinit-dal/tasks/repository"
)

// MockTaskRepository is a testify mock of repository.TaskRepository.
type MockTaskRepository struct {
	mock.Mock
}

var _ repository.TaskRepository = (*MockTaskRepository)(nil)

func (m *MockTaskRepository) Create(ctx context.Context, in *models.TaskInput) (string, error) {
	args := m.Called(ctx, in)
	return args.String(0), args.Error(1)
}

func (m *MockTaskRepository) Update(ctx context.Context, id string, in *models.TaskInput) error {
	args := m.Called(ctx, id, in)
	return args.Error(0)
}

func (m *MockTaskRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockTaskRepository) FindByID(ctx context.Context, id string) (*models.Task, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Task), args.Error(1)
}

func (m *MockTaskRepository) Find(ctx context.Context, params filter.Params, page, limit int, order *interfaces.Order) (*pagination.Page[models.Task], error) {
	args := m.Called(ctx, params, page, limit, order)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pagination.Page[models.Task]), args.Error(1)
}

func (m *MockTaskRepository) EnsureGroup(ctx context.Context, value string) (bool, error) {
	args := m.Called(ctx, value)
	return args.Bool(0), args.Error(1)
}

func (m *MockTaskRepository) DeleteJob(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockTaskRepository) FindRecords(ctx context.Context, id string, page, limit int) (*pagination.Page[models.TaskRecord], error) {
	args := m.Called(ctx, id, page, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pagination.Page[models.TaskRecord]), args.Error(1)
}
