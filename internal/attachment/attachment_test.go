package attachment

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"retailapi/internal/storage"
	storeMocks "retailapi/internal/storage/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestStore_Upload(t *testing.T) {
	ctx := context.Background()

	t.Run("streams content under a unique key", func(t *testing.T) {
		mStore := new(storeMocks.MockStorage)
		var uploaded []byte
		mStore.On("Put", ctx, mock.MatchedBy(func(key string) bool {
			return strings.HasPrefix(key, "images/") && strings.HasSuffix(key, "_w.png")
		}), mock.Anything, mock.MatchedBy(func(opt storage.PutObjectOptions) bool {
			return opt.Size == -1 && opt.PartSize > 0 && opt.ContentType == "image/png"
		})).Return(func(_ context.Context, key string, r io.Reader, _ storage.PutObjectOptions) storage.ObjectInfo {
			uploaded, _ = io.ReadAll(r)
			return storage.ObjectInfo{Key: key}
		}, nil)

		s := NewStore(mStore, "images/")
		ref, err := s.Upload(ctx, bytes.NewReader([]byte{0x01, 0x02}), "w.png", "image/png")

		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(ref, "images/"))
		assert.Equal(t, []byte{0x01, 0x02}, uploaded)
		mStore.AssertExpectations(t)
	})

	t.Run("two uploads of the same name get distinct keys", func(t *testing.T) {
		mStore := new(storeMocks.MockStorage)
		mStore.On("Put", ctx, mock.Anything, mock.Anything, mock.Anything).
			Return(func(_ context.Context, key string, _ io.Reader, _ storage.PutObjectOptions) storage.ObjectInfo {
				return storage.ObjectInfo{Key: key}
			}, nil)

		s := NewStore(mStore, "images")
		a, err := s.Upload(ctx, strings.NewReader("a"), "same.png", "")
		require.NoError(t, err)
		b, err := s.Upload(ctx, strings.NewReader("b"), "same.png", "")
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})

	t.Run("store failure", func(t *testing.T) {
		mStore := new(storeMocks.MockStorage)
		mStore.On("Put", ctx, mock.Anything, mock.Anything, mock.Anything).
			Return(storage.ObjectInfo{}, errors.New("connection refused"))

		s := NewStore(mStore, "images")
		_, err := s.Upload(ctx, strings.NewReader("x"), "x.png", "")

		assert.ErrorIs(t, err, ErrStoreFailure)
		assert.Contains(t, err.Error(), "connection refused")
	})

	t.Run("nil reader", func(t *testing.T) {
		s := NewStore(new(storeMocks.MockStorage), "images")
		_, err := s.Upload(ctx, nil, "x.png", "")
		assert.ErrorIs(t, err, ErrStoreFailure)
	})
}

func TestStore_IssueReadURL(t *testing.T) {
	ctx := context.Background()

	t.Run("repeatable and non-mutating", func(t *testing.T) {
		mStore := new(storeMocks.MockStorage)
		mStore.On("PresignGet", ctx, "images/a_w.png", 30*time.Minute).
			Return("https://store/images/a_w.png?sig=1", nil).Twice()

		s := NewStore(mStore, "images")
		first, err := s.IssueReadURL(ctx, "images/a_w.png", 30*time.Minute)
		require.NoError(t, err)
		second, err := s.IssueReadURL(ctx, "images/a_w.png", 30*time.Minute)
		require.NoError(t, err)

		assert.NotEmpty(t, first)
		assert.NotEmpty(t, second)
		mStore.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		mStore.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
		mStore.AssertExpectations(t)
	})

	t.Run("non-positive validity defaults to one hour", func(t *testing.T) {
		mStore := new(storeMocks.MockStorage)
		mStore.On("PresignGet", ctx, "images/a.png", time.Hour).Return("https://u", nil)

		s := NewStore(mStore, "images")
		u, err := s.IssueReadURL(ctx, "images/a.png", 0)

		require.NoError(t, err)
		assert.Equal(t, "https://u", u)
	})

	t.Run("store failure", func(t *testing.T) {
		mStore := new(storeMocks.MockStorage)
		mStore.On("PresignGet", ctx, "images/a.png", time.Hour).Return("", errors.New("boom"))

		s := NewStore(mStore, "images")
		_, err := s.IssueReadURL(ctx, "images/a.png", time.Hour)
		assert.ErrorIs(t, err, ErrStoreFailure)
	})

	t.Run("empty ref", func(t *testing.T) {
		s := NewStore(new(storeMocks.MockStorage), "images")
		_, err := s.IssueReadURL(ctx, " ", time.Hour)
		assert.ErrorIs(t, err, ErrEmptyRef)
	})
}

func TestStore_ExistsAndDelete(t *testing.T) {
	ctx := context.Background()
	mStore := new(storeMocks.MockStorage)
	mStore.On("Exists", ctx, "images/gone.png").Return(false, nil)
	mStore.On("Exists", ctx, "images/broken.png").Return(false, errors.New("timeout"))
	mStore.On("Delete", ctx, "images/a.png").Return(nil)

	s := NewStore(mStore, "images")

	ok, err := s.Exists(ctx, "images/gone.png")
	assert.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Exists(ctx, "images/broken.png")
	assert.ErrorIs(t, err, ErrStoreFailure)

	assert.NoError(t, s.Delete(ctx, "images/a.png"))
	mStore.AssertExpectations(t)
}

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "w.png", SanitizeName("w.png"))
	assert.Equal(t, "w.png", SanitizeName("../../etc/w.png"))
	assert.Equal(t, "w.png", SanitizeName(`C:\Users\me\w.png`))
	assert.Equal(t, "attachment", SanitizeName(""))
	assert.Equal(t, "attachment", SanitizeName("/"))
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "images/a.png", ObjectKey("images/a.png"))
	assert.Equal(t, "images/a.png", ObjectKey("/images/a.png"))
	assert.Equal(t, "images/a.png", ObjectKey("https://minio:9000/retail/images/a.png"))
	assert.Equal(t, "a.png", ObjectKey("https://account.blob.core.windows.net/products/a.png"))
}
