package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"strings"
	"testing"

	"retailapi/internal/attachment"
	attMocks "retailapi/internal/attachment/mocks"
	"retailapi/internal/metrics"
	"retailapi/internal/model"
	"retailapi/internal/repository"
	repoMocks "retailapi/internal/repository/mocks"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type formPart struct {
	name     string
	fileName string
	value    []byte
}

func multipartBody(t *testing.T, parts ...formPart) (string, io.Reader) {
	t.Helper()
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	for _, p := range parts {
		var (
			pw  io.Writer
			err error
		)
		if p.fileName != "" {
			pw, err = w.CreateFormFile(p.name, p.fileName)
		} else {
			pw, err = w.CreateFormField(p.name)
		}
		require.NoError(t, err)
		_, err = pw.Write(p.value)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return w.FormDataContentType(), buf
}

// recordingUpload captures uploaded bytes and hands out sequential refs.
func recordingUpload(contents *[][]byte) func(context.Context, io.Reader, string, string) string {
	return func(_ context.Context, r io.Reader, name, _ string) string {
		b, _ := io.ReadAll(r)
		*contents = append(*contents, b)
		return fmt.Sprintf("images/%d_%s", len(*contents), attachment.SanitizeName(name))
	}
}

func echoPut(_ context.Context, e *model.Entity) *model.Entity {
	out := *e
	out.Version = "v1"
	return &out
}

func TestIngestionService_CreateWithAttachment(t *testing.T) {
	ctx := context.Background()

	t.Run("widget product with image", func(t *testing.T) {
		mAtt := new(attMocks.MockStore)
		mRepo := new(repoMocks.MockEntityRepository)
		reg, err := metrics.NewRegistry(prometheus.NewRegistry())
		require.NoError(t, err)

		var uploaded [][]byte
		mAtt.On("Upload", mock.Anything, mock.Anything, "w.png", mock.Anything).
			Return(recordingUpload(&uploaded), nil)
		mRepo.On("Put", ctx, mock.MatchedBy(func(e *model.Entity) bool {
			return e.Partition == "Product" && e.ID != "" &&
				e.Fields["ProductName"] == "Widget" &&
				e.Fields["ProductDescription"] == "A widget" &&
				e.AttachmentRef != nil && *e.AttachmentRef == "images/1_w.png"
		})).Return(echoPut, nil)

		ct, body := multipartBody(t,
			formPart{name: "Name", value: []byte("Widget")},
			formPart{name: "Description", value: []byte("A widget")},
			formPart{name: "ProductImage", fileName: "w.png", value: []byte{0x01, 0x02}},
		)

		svc := NewIngestionService(mAtt, mRepo, IngestionOptions{CleanupOnFailure: true, Metrics: reg})
		e, err := svc.CreateWithAttachment(ctx, model.KindProduct, ct, body)

		require.NoError(t, err)
		assert.Equal(t, "Product", e.Partition)
		assert.NotEmpty(t, e.ID)
		require.Len(t, uploaded, 1)
		assert.Equal(t, []byte{0x01, 0x02}, uploaded[0])
		assert.Equal(t, float64(1), testutil.ToFloat64(reg.Created.WithLabelValues("Product", SourceHTTP)))
		mAtt.AssertExpectations(t)
		mRepo.AssertExpectations(t)
	})

	t.Run("names match case-insensitively and unknown parts are ignored", func(t *testing.T) {
		mAtt := new(attMocks.MockStore)
		mRepo := new(repoMocks.MockEntityRepository)
		var uploaded [][]byte
		mAtt.On("Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(recordingUpload(&uploaded), nil)
		mRepo.On("Put", ctx, mock.MatchedBy(func(e *model.Entity) bool {
			_, hasNick := e.Fields["Nickname"]
			return e.Fields["CustomerName"] == "John" && e.Fields["Surname"] == "Smith" && !hasNick
		})).Return(echoPut, nil)

		ct, body := multipartBody(t,
			formPart{name: "customerimage", fileName: "me.jpg", value: []byte("jpg")},
			formPart{name: "NAME", value: []byte("John")},
			formPart{name: "Nickname", value: []byte("Johnny")},
			formPart{name: "description", value: []byte("Smith")},
		)

		svc := NewIngestionService(mAtt, mRepo, IngestionOptions{})
		_, err := svc.CreateWithAttachment(ctx, model.KindCustomer, ct, body)

		require.NoError(t, err)
		mRepo.AssertExpectations(t)
	})

	t.Run("missing required field cleans up the image", func(t *testing.T) {
		mAtt := new(attMocks.MockStore)
		mRepo := new(repoMocks.MockEntityRepository)
		var uploaded [][]byte
		mAtt.On("Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(recordingUpload(&uploaded), nil)
		mAtt.On("Delete", mock.Anything, "images/1_o.png").Return(nil)

		ct, body := multipartBody(t,
			formPart{name: "Name", value: []byte("Box")},
			formPart{name: "OrderImage", fileName: "o.png", value: []byte("x")},
		)

		svc := NewIngestionService(mAtt, mRepo, IngestionOptions{CleanupOnFailure: true})
		_, err := svc.CreateWithAttachment(ctx, model.KindOrder, ct, body)

		assert.ErrorIs(t, err, ErrValidation)
		assert.Contains(t, err.Error(), "OrderDescription")
		mRepo.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
		mAtt.AssertExpectations(t)
	})

	t.Run("non-finite price cleans up the image", func(t *testing.T) {
		mAtt := new(attMocks.MockStore)
		mRepo := new(repoMocks.MockEntityRepository)
		var uploaded [][]byte
		mAtt.On("Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(recordingUpload(&uploaded), nil)
		mAtt.On("Delete", mock.Anything, "images/1_w.png").Return(nil)

		ct, body := multipartBody(t,
			formPart{name: "Name", value: []byte("Widget")},
			formPart{name: "Description", value: []byte("A widget")},
			formPart{name: "ProductImage", fileName: "w.png", value: []byte("x")},
			formPart{name: "Price", value: []byte("NaN")},
		)

		svc := NewIngestionService(mAtt, mRepo, IngestionOptions{CleanupOnFailure: true})
		_, err := svc.CreateWithAttachment(ctx, model.KindProduct, ct, body)

		assert.ErrorIs(t, err, ErrValidation)
		assert.ErrorIs(t, err, model.ErrInvalidFieldValue)
		mRepo.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
		mAtt.AssertExpectations(t)
	})

	t.Run("cleanup disabled leaves the image", func(t *testing.T) {
		mAtt := new(attMocks.MockStore)
		mRepo := new(repoMocks.MockEntityRepository)
		var uploaded [][]byte
		mAtt.On("Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(recordingUpload(&uploaded), nil)

		ct, body := multipartBody(t,
			formPart{name: "OrderImage", fileName: "o.png", value: []byte("x")},
		)

		svc := NewIngestionService(mAtt, mRepo, IngestionOptions{CleanupOnFailure: false})
		_, err := svc.CreateWithAttachment(ctx, model.KindOrder, ct, body)

		assert.ErrorIs(t, err, ErrValidation)
		mAtt.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
		mRepo.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
	})

	t.Run("missing image", func(t *testing.T) {
		mAtt := new(attMocks.MockStore)
		mRepo := new(repoMocks.MockEntityRepository)

		ct, body := multipartBody(t,
			formPart{name: "Name", value: []byte("Widget")},
			formPart{name: "Description", value: []byte("A widget")},
			// No filename: not treated as an image.
			formPart{name: "ProductImage", value: []byte("not a file")},
		)

		svc := NewIngestionService(mAtt, mRepo, IngestionOptions{CleanupOnFailure: true})
		_, err := svc.CreateWithAttachment(ctx, model.KindProduct, ct, body)

		assert.ErrorIs(t, err, ErrValidation)
		assert.Contains(t, err.Error(), "ProductImage")
		mAtt.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		mRepo.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
	})

	t.Run("second image replaces the first", func(t *testing.T) {
		mAtt := new(attMocks.MockStore)
		mRepo := new(repoMocks.MockEntityRepository)
		var uploaded [][]byte
		mAtt.On("Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(recordingUpload(&uploaded), nil)
		mAtt.On("Delete", mock.Anything, "images/1_a.png").Return(nil)
		mRepo.On("Put", ctx, mock.MatchedBy(func(e *model.Entity) bool {
			return *e.AttachmentRef == "images/2_b.png"
		})).Return(echoPut, nil)

		ct, body := multipartBody(t,
			formPart{name: "ProductImage", fileName: "a.png", value: []byte("a")},
			formPart{name: "ProductImage", fileName: "b.png", value: []byte("b")},
			formPart{name: "Name", value: []byte("Widget")},
			formPart{name: "Description", value: []byte("A widget")},
		)

		svc := NewIngestionService(mAtt, mRepo, IngestionOptions{})
		_, err := svc.CreateWithAttachment(ctx, model.KindProduct, ct, body)

		require.NoError(t, err)
		mAtt.AssertExpectations(t)
		mRepo.AssertExpectations(t)
	})

	t.Run("invalid number", func(t *testing.T) {
		mAtt := new(attMocks.MockStore)
		mRepo := new(repoMocks.MockEntityRepository)

		ct, body := multipartBody(t,
			formPart{name: "Price", value: []byte("cheap")},
		)

		svc := NewIngestionService(mAtt, mRepo, IngestionOptions{})
		_, err := svc.CreateWithAttachment(ctx, model.KindProduct, ct, body)

		assert.ErrorIs(t, err, ErrValidation)
		assert.ErrorIs(t, err, model.ErrInvalidFieldValue)
	})

	t.Run("attachment store failure", func(t *testing.T) {
		mAtt := new(attMocks.MockStore)
		mRepo := new(repoMocks.MockEntityRepository)
		mAtt.On("Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return("", fmt.Errorf("%w: bucket unreachable", attachment.ErrStoreFailure))

		ct, body := multipartBody(t,
			formPart{name: "Name", value: []byte("Widget")},
			formPart{name: "ProductImage", fileName: "w.png", value: []byte{0x01}},
		)

		svc := NewIngestionService(mAtt, mRepo, IngestionOptions{CleanupOnFailure: true})
		_, err := svc.CreateWithAttachment(ctx, model.KindProduct, ct, body)

		assert.ErrorIs(t, err, ErrAttachmentStore)
		mRepo.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
	})

	t.Run("entity store failure cleans up", func(t *testing.T) {
		mAtt := new(attMocks.MockStore)
		mRepo := new(repoMocks.MockEntityRepository)
		var uploaded [][]byte
		mAtt.On("Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(recordingUpload(&uploaded), nil)
		mAtt.On("Delete", mock.Anything, "images/1_w.png").Return(errors.New("delete fail"))
		mRepo.On("Put", ctx, mock.Anything).Return(nil, errors.New("db down"))

		ct, body := multipartBody(t,
			formPart{name: "Name", value: []byte("Widget")},
			formPart{name: "Description", value: []byte("A widget")},
			formPart{name: "ProductImage", fileName: "w.png", value: []byte{0x01}},
		)

		svc := NewIngestionService(mAtt, mRepo, IngestionOptions{CleanupOnFailure: true})
		_, err := svc.CreateWithAttachment(ctx, model.KindProduct, ct, body)

		assert.ErrorIs(t, err, ErrEntityStore)
		assert.Contains(t, err.Error(), "db down")
		mAtt.AssertExpectations(t)
	})

	t.Run("malformed request", func(t *testing.T) {
		svc := NewIngestionService(new(attMocks.MockStore), new(repoMocks.MockEntityRepository), IngestionOptions{})

		_, err := svc.CreateWithAttachment(ctx, model.KindOrder, "multipart/form-data", strings.NewReader("x"))
		assert.ErrorIs(t, err, ErrMalformedRequest)

		_, err = svc.CreateWithAttachment(ctx, model.KindOrder, "application/json", strings.NewReader("{}"))
		assert.ErrorIs(t, err, ErrMalformedRequest)
	})

	t.Run("unknown kind", func(t *testing.T) {
		svc := NewIngestionService(new(attMocks.MockStore), new(repoMocks.MockEntityRepository), IngestionOptions{})
		_, err := svc.CreateWithAttachment(ctx, model.Kind("Invoice"), "multipart/form-data; boundary=x", strings.NewReader(""))
		assert.ErrorIs(t, err, ErrUnknownKind)
	})
}

func TestIngestionService_CreateFromMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("customer message", func(t *testing.T) {
		mRepo := new(repoMocks.MockEntityRepository)
		mRepo.On("Put", ctx, mock.MatchedBy(func(e *model.Entity) bool {
			return e.Partition == "Customer" && e.ID != "" &&
				e.Fields["CustomerName"] == "John" && e.Fields["Surname"] == "Smith" &&
				len(e.Fields) == 2 && e.AttachmentRef == nil
		})).Return(echoPut, nil).Once()

		svc := NewIngestionService(nil, mRepo, IngestionOptions{})
		e, err := svc.CreateFromMessage(ctx, model.KindCustomer, []byte(`{"CustomerName":"John","Surname":"Smith"}`))

		require.NoError(t, err)
		assert.Nil(t, e.AttachmentRef)
		mRepo.AssertExpectations(t)
	})

	t.Run("server-assigned keys are ignored", func(t *testing.T) {
		mRepo := new(repoMocks.MockEntityRepository)
		mRepo.On("Put", ctx, mock.MatchedBy(func(e *model.Entity) bool {
			return e.ID != "attacker" && e.Partition == "Order" && e.AttachmentRef == nil
		})).Return(echoPut, nil)

		svc := NewIngestionService(nil, mRepo, IngestionOptions{})
		_, err := svc.CreateFromMessage(ctx, model.KindOrder,
			[]byte(`{"id":"attacker","partition":"Customer","OrderImage":"x","orderName":"Box","OrderDescription":"Cardboard","OrderType":"Retail"}`))

		require.NoError(t, err)
		mRepo.AssertExpectations(t)
	})

	t.Run("numbers accept numeric strings", func(t *testing.T) {
		mRepo := new(repoMocks.MockEntityRepository)
		mRepo.On("Put", ctx, mock.MatchedBy(func(e *model.Entity) bool {
			return e.Fields["ProductPrice"] == 12.5 && e.Fields["Quantity"] == float64(3)
		})).Return(echoPut, nil)

		svc := NewIngestionService(nil, mRepo, IngestionOptions{})
		_, err := svc.CreateFromMessage(ctx, model.KindProduct,
			[]byte(`{"ProductName":"Widget","ProductDescription":"A widget","ProductPrice":"12.5","Quantity":3}`))

		require.NoError(t, err)
	})

	bad := []struct {
		name    string
		payload string
		wantErr error
	}{
		{name: "unparseable json", payload: `{"CustomerName":`, wantErr: ErrDeserialization},
		{name: "empty payload", payload: ``, wantErr: ErrDeserialization},
		{name: "array", payload: `[1,2]`, wantErr: ErrDeserialization},
		{name: "null", payload: `null`, wantErr: ErrDeserialization},
		{name: "nested value", payload: `{"CustomerName":{"first":"John"},"Surname":"Smith"}`, wantErr: ErrDeserialization},
		{name: "missing surname", payload: `{"CustomerName":"John"}`, wantErr: ErrValidation},
		{name: "blank surname", payload: `{"CustomerName":"John","Surname":"  "}`, wantErr: ErrValidation},
	}
	for _, tt := range bad {
		t.Run(tt.name, func(t *testing.T) {
			mRepo := new(repoMocks.MockEntityRepository)
			svc := NewIngestionService(nil, mRepo, IngestionOptions{})

			_, err := svc.CreateFromMessage(ctx, model.KindCustomer, []byte(tt.payload))

			assert.ErrorIs(t, err, tt.wantErr)
			mRepo.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
		})
	}

	for _, price := range []string{`"NaN"`, `"Infinity"`, `"-Inf"`} {
		t.Run("non-finite price "+price, func(t *testing.T) {
			mRepo := new(repoMocks.MockEntityRepository)
			svc := NewIngestionService(nil, mRepo, IngestionOptions{})

			payload := `{"ProductName":"Widget","ProductDescription":"A widget","ProductPrice":` + price + `}`
			_, err := svc.CreateFromMessage(ctx, model.KindProduct, []byte(payload))

			assert.ErrorIs(t, err, ErrDeserialization)
			assert.ErrorIs(t, err, model.ErrInvalidFieldValue)
			mRepo.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
		})
	}

	t.Run("entity store failure", func(t *testing.T) {
		mRepo := new(repoMocks.MockEntityRepository)
		mRepo.On("Put", ctx, mock.Anything).Return(nil, errors.New("timeout"))

		svc := NewIngestionService(nil, mRepo, IngestionOptions{})
		_, err := svc.CreateFromMessage(ctx, model.KindCustomer, []byte(`{"CustomerName":"John","Surname":"Smith"}`))

		assert.ErrorIs(t, err, ErrEntityStore)
	})

	t.Run("deduplicated redelivery", func(t *testing.T) {
		payload := []byte(`{"CustomerName":"John","Surname":"Smith"}`)
		mRepo := new(repoMocks.MockEntityRepository)
		mRepo.On("Put", ctx, mock.Anything).Return(echoPut, nil).Once()
		mRepo.On("Put", ctx, mock.Anything).Return(nil, repository.ErrDuplicateKey).Once()
		mRepo.On("Get", ctx, "Customer", mock.Anything).Return(&model.Entity{Partition: "Customer", ID: "existing"}, nil)

		svc := NewIngestionService(nil, mRepo, IngestionOptions{Deduplicate: true})
		first, err := svc.CreateFromMessage(ctx, model.KindCustomer, payload)
		require.NoError(t, err)
		second, err := svc.CreateFromMessage(ctx, model.KindCustomer, payload)
		require.NoError(t, err)

		assert.Equal(t, messageID(model.KindCustomer, payload), first.ID)
		assert.Equal(t, "existing", second.ID)
		mRepo.AssertExpectations(t)
	})

	t.Run("duplicate without dedup is a store failure", func(t *testing.T) {
		mRepo := new(repoMocks.MockEntityRepository)
		mRepo.On("Put", ctx, mock.Anything).Return(nil, repository.ErrDuplicateKey)

		svc := NewIngestionService(nil, mRepo, IngestionOptions{})
		_, err := svc.CreateFromMessage(ctx, model.KindCustomer, []byte(`{"CustomerName":"John","Surname":"Smith"}`))

		assert.ErrorIs(t, err, ErrEntityStore)
		assert.ErrorIs(t, err, repository.ErrDuplicateKey)
	})
}

func TestMessageID(t *testing.T) {
	a := messageID(model.KindOrder, []byte(`{"OrderName":"Box"}`))
	assert.Equal(t, a, messageID(model.KindOrder, []byte(`{"OrderName":"Box"}`)))
	assert.NotEqual(t, a, messageID(model.KindProduct, []byte(`{"OrderName":"Box"}`)))
	assert.NotEqual(t, a, messageID(model.KindOrder, []byte(`{"OrderName":"Bag"}`)))
}

func TestReason(t *testing.T) {
	assert.Equal(t, "validation", Reason(ErrIDRequired))
	assert.Equal(t, "deserialization", Reason(fmt.Errorf("%w: x", ErrDeserialization)))
	assert.Equal(t, "attachment_store", Reason(fmt.Errorf("wrap: %w", attachment.ErrStoreFailure)))
	assert.Equal(t, "entity_store", Reason(storeErr("put", errors.New("x"))))
	assert.Equal(t, "not_found", Reason(storeErr("get", repository.ErrNotFound)))
	assert.Equal(t, "internal", Reason(errors.New("x")))
	assert.Equal(t, "", Reason(nil))
}
