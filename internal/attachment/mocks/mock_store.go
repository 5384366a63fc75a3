package mocks

import (
	"context"
	"io"
	"time"

	"github.com/stretchr/testify/mock"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Upload(ctx context.Context, r io.Reader, suggestedName, contentType string) (string, error) {
	args := m.Called(ctx, r, suggestedName, contentType)
	if f, ok := args.Get(0).(func(context.Context, io.Reader, string, string) string); ok {
		return f(ctx, r, suggestedName, contentType), args.Error(1)
	}
	return args.String(0), args.Error(1)
}

func (m *MockStore) Exists(ctx context.Context, ref string) (bool, error) {
	args := m.Called(ctx, ref)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) Delete(ctx context.Context, ref string) error {
	args := m.Called(ctx, ref)
	return args.Error(0)
}

func (m *MockStore) IssueReadURL(ctx context.Context, ref string, validity time.Duration) (string, error) {
	args := m.Called(ctx, ref, validity)
	return args.String(0), args.Error(1)
}
