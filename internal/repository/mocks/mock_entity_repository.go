package mocks

import (
	"context"

	"retailapi/internal/model"

	"github.com/stretchr/testify/mock"
)

type MockEntityRepository struct {
	mock.Mock
}

func (m *MockEntityRepository) Get(ctx context.Context, partition, id string) (*model.Entity, error) {
	args := m.Called(ctx, partition, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Entity), args.Error(1)
}

func (m *MockEntityRepository) Put(ctx context.Context, e *model.Entity) (*model.Entity, error) {
	args := m.Called(ctx, e)
	if f, ok := args.Get(0).(func(context.Context, *model.Entity) *model.Entity); ok {
		return f(ctx, e), args.Error(1)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Entity), args.Error(1)
}

func (m *MockEntityRepository) Update(ctx context.Context, e *model.Entity, ifMatch string) (*model.Entity, error) {
	args := m.Called(ctx, e, ifMatch)
	if f, ok := args.Get(0).(func(context.Context, *model.Entity, string) *model.Entity); ok {
		return f(ctx, e, ifMatch), args.Error(1)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Entity), args.Error(1)
}

func (m *MockEntityRepository) Delete(ctx context.Context, partition, id string) error {
	args := m.Called(ctx, partition, id)
	return args.Error(0)
}

func (m *MockEntityRepository) QueryByPartition(ctx context.Context, partition string) ([]model.Entity, error) {
	args := m.Called(ctx, partition)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Entity), args.Error(1)
}
