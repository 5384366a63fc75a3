package mocks

import (
	"context"
	"io"

	"retailapi/internal/model"

	"github.com/stretchr/testify/mock"
)

type MockIngestionService struct {
	mock.Mock
}

func (m *MockIngestionService) CreateWithAttachment(ctx context.Context, kind model.Kind, contentType string, body io.Reader) (*model.Entity, error) {
	args := m.Called(ctx, kind, contentType, body)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Entity), args.Error(1)
}

func (m *MockIngestionService) CreateFromMessage(ctx context.Context, kind model.Kind, payload []byte) (*model.Entity, error) {
	args := m.Called(ctx, kind, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Entity), args.Error(1)
}

type MockEntityService struct {
	mock.Mock
}

func (m *MockEntityService) List(ctx context.Context, kind model.Kind) ([]model.Entity, error) {
	args := m.Called(ctx, kind)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Entity), args.Error(1)
}

func (m *MockEntityService) ListEnriched(ctx context.Context, kind model.Kind) ([]model.Entity, error) {
	args := m.Called(ctx, kind)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Entity), args.Error(1)
}

func (m *MockEntityService) Get(ctx context.Context, kind model.Kind, id string) (*model.Entity, error) {
	args := m.Called(ctx, kind, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Entity), args.Error(1)
}

func (m *MockEntityService) Update(ctx context.Context, kind model.Kind, id string, payload []byte, ifMatch string) (*model.Entity, error) {
	args := m.Called(ctx, kind, id, payload, ifMatch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Entity), args.Error(1)
}

func (m *MockEntityService) Delete(ctx context.Context, kind model.Kind, id string) error {
	args := m.Called(ctx, kind, id)
	return args.Error(0)
}
