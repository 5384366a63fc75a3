package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"retailapi/internal/attachment"
	"retailapi/internal/formdata"
	"retailapi/internal/logging"
	"retailapi/internal/metrics"
	"retailapi/internal/model"
	"retailapi/internal/repository"
)

const (
	SourceHTTP  = "http"
	SourceQueue = "queue"
)

// IngestionService creates entities from the two entry points.
type IngestionService interface {
	// CreateWithAttachment streams a multipart body: the kind's image part goes to the attachment store,
	// the remaining named parts become fields. The entity is written only once everything validated.
	CreateWithAttachment(ctx context.Context, kind model.Kind, contentType string, body io.Reader) (*model.Entity, error)

	// CreateFromMessage creates an entity without attachment from a JSON object payload.
	CreateFromMessage(ctx context.Context, kind model.Kind, payload []byte) (*model.Entity, error)
}

// IngestionOptions tunes IngestionService. Zero values are usable.
type IngestionOptions struct {
	// UploadTimeout bounds an attachment upload detached from the request context.
	UploadTimeout time.Duration
	// CleanupOnFailure deletes an already uploaded image when the create fails.
	CleanupOnFailure bool
	// Deduplicate derives queue entity ids from the payload so a redelivered message is a no-op.
	Deduplicate bool
	Logger      *slog.Logger
	Metrics     *metrics.Registry
}

type ingestionService struct {
	attachments attachment.Store
	repo        repository.EntityRepository
	opts        IngestionOptions
	log         *slog.Logger
}

// NewIngestionService constructs a new IngestionService.
func NewIngestionService(attachments attachment.Store, repo repository.EntityRepository, opts IngestionOptions) IngestionService {
	if opts.UploadTimeout <= 0 {
		opts.UploadTimeout = 5 * time.Minute
	}
	return &ingestionService{
		attachments: attachments,
		repo:        repo,
		opts:        opts,
		log:         logging.Component(opts.Logger, "ingestion"),
	}
}

func (s *ingestionService) CreateWithAttachment(ctx context.Context, kind model.Kind, contentType string, body io.Reader) (*model.Entity, error) {
	e, err := s.createWithAttachment(ctx, kind, contentType, body)
	s.record(kind, SourceHTTP, err)
	return e, err
}

func (s *ingestionService) createWithAttachment(ctx context.Context, kind model.Kind, contentType string, body io.Reader) (*model.Entity, error) {
	schema, ok := model.SchemaFor(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	rd, err := formdata.NewReader(contentType, body)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{}
	var ref string
	fail := func(err error) (*model.Entity, error) {
		if ref != "" {
			s.discard(ctx, kind, ref, err)
		}
		return nil, err
	}

	for {
		p, err := rd.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fail(err)
		}

		if schema.IsAttachmentField(p.Name) {
			// A part without a filename carries no file.
			if !p.IsFile() {
				continue
			}
			newRef, err := s.upload(ctx, p)
			if err != nil {
				return fail(fmt.Errorf("upload %s image: %w", kind, err))
			}
			// Last image wins; the earlier object is garbage.
			if ref != "" {
				s.discard(ctx, kind, ref, nil)
			}
			ref = newRef
			continue
		}

		f, known := schema.FormField(p.Name)
		if !known {
			continue
		}
		v, err := formdata.ReadValue(p)
		if err != nil {
			return fail(err)
		}
		if err := f.Assign(fields, v); err != nil {
			return fail(fmt.Errorf("%w: %w", ErrValidation, err))
		}
	}

	if missing := schema.Missing(fields); len(missing) > 0 {
		return fail(fmt.Errorf("%w: missing required fields: %s", ErrValidation, strings.Join(missing, ", ")))
	}
	if ref == "" {
		return nil, fmt.Errorf("%w: missing image field %s", ErrValidation, schema.AttachmentField)
	}

	e := &model.Entity{
		Partition:     kind.Partition(),
		ID:            uuid.NewString(),
		Fields:        fields,
		AttachmentRef: model.Ref(ref),
	}
	stored, err := s.repo.Put(ctx, e)
	if err != nil {
		return fail(storeErr("put", err))
	}
	return stored, nil
}

// upload runs detached from request cancellation so an abandoned request does not abort an in-flight upload.
func (s *ingestionService) upload(ctx context.Context, p *formdata.Part) (string, error) {
	uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.UploadTimeout)
	defer cancel()
	return s.attachments.Upload(uctx, p.Body, p.FileName, p.ContentType)
}

// discard deletes an uploaded object that will not be referenced. Failures are logged only.
func (s *ingestionService) discard(ctx context.Context, kind model.Kind, ref string, cause error) {
	if cause != nil && !s.opts.CleanupOnFailure {
		s.log.Warn("attachment left orphaned", "kind", kind, "attachment_ref", ref, "reason", Reason(cause))
		return
	}
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.UploadTimeout)
	defer cancel()
	if err := s.attachments.Delete(dctx, ref); err != nil {
		s.opts.Metrics.AttachmentCleanup(string(kind), false)
		s.log.Error("attachment cleanup failed", "kind", kind, "attachment_ref", ref, "error", err)
		return
	}
	s.opts.Metrics.AttachmentCleanup(string(kind), true)
	s.log.Debug("attachment cleaned up", "kind", kind, "attachment_ref", ref)
}

func (s *ingestionService) CreateFromMessage(ctx context.Context, kind model.Kind, payload []byte) (*model.Entity, error) {
	e, err := s.createFromMessage(ctx, kind, payload)
	s.record(kind, SourceQueue, err)
	return e, err
}

func (s *ingestionService) createFromMessage(ctx context.Context, kind model.Kind, payload []byte) (*model.Entity, error) {
	schema, ok := model.SchemaFor(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	fields, err := decodeFields(schema, payload)
	if err != nil {
		return nil, err
	}
	if missing := schema.Missing(fields); len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required fields: %s", ErrValidation, strings.Join(missing, ", "))
	}

	id := uuid.NewString()
	if s.opts.Deduplicate {
		id = messageID(kind, payload)
	}
	e := &model.Entity{Partition: kind.Partition(), ID: id, Fields: fields}

	stored, err := s.repo.Put(ctx, e)
	if err == nil {
		return stored, nil
	}
	if s.opts.Deduplicate && errors.Is(err, repository.ErrDuplicateKey) {
		s.log.Info("duplicate message skipped", "kind", kind, "id", id)
		existing, gerr := s.repo.Get(ctx, e.Partition, id)
		if gerr != nil {
			return nil, storeErr("get", gerr)
		}
		return existing, nil
	}
	return nil, storeErr("put", err)
}

func (s *ingestionService) record(kind model.Kind, source string, err error) {
	if err != nil {
		s.opts.Metrics.CreateFailed(string(kind), source, Reason(err))
		return
	}
	s.opts.Metrics.EntityCreated(string(kind), source)
}

// decodeFields maps a JSON object through the schema's message table. Unknown keys are ignored.
func decodeFields(schema model.Schema, payload []byte) (map[string]any, error) {
	var raw map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(payload), &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDeserialization, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: payload is not a JSON object", ErrDeserialization)
	}
	fields := make(map[string]any, len(raw))
	for k, v := range raw {
		f, ok := schema.MessageField(k)
		if !ok {
			continue
		}
		if err := f.Assign(fields, v); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDeserialization, err)
		}
	}
	return fields, nil
}

// messageID is a name-based UUID over the kind and the raw payload.
func messageID(kind model.Kind, payload []byte) string {
	ns := uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:retailapi:"+kind.Slug()))
	return uuid.NewSHA1(ns, payload).String()
}
