package mocks

import (
	"context"
	"io"

	"retailapi/internal/model"
	"retailapi/internal/storage"

	"github.com/stretchr/testify/mock"
)

type MockShare struct {
	mock.Mock
}

func (m *MockShare) List(ctx context.Context, kind model.Kind) ([]string, error) {
	args := m.Called(ctx, kind)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockShare) Upload(ctx context.Context, kind model.Kind, fileName string, r io.Reader, size int64, contentType string) error {
	args := m.Called(ctx, kind, fileName, r, size, contentType)
	return args.Error(0)
}

func (m *MockShare) Download(ctx context.Context, kind model.Kind, fileName string) (io.ReadCloser, storage.ObjectInfo, error) {
	args := m.Called(ctx, kind, fileName)
	if args.Get(0) == nil {
		return nil, args.Get(1).(storage.ObjectInfo), args.Error(2)
	}
	return args.Get(0).(io.ReadCloser), args.Get(1).(storage.ObjectInfo), args.Error(2)
}
