package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"retailapi/internal/attachment"
	"retailapi/internal/logging"
	"retailapi/internal/metrics"
	"retailapi/internal/model"
	"retailapi/internal/repository"
)

// enrichConcurrency caps in-flight attachment lookups per list call.
const enrichConcurrency = 8

// EntityService defines the read, update and delete use cases.
type EntityService interface {
	// List returns every entity of the kind as stored.
	List(ctx context.Context, kind model.Kind) ([]model.Entity, error)

	// ListEnriched returns every entity of the kind with AttachmentRef replaced by a short-lived read URL,
	// or nil when the referenced object no longer exists. Nothing is written back.
	ListEnriched(ctx context.Context, kind model.Kind) ([]model.Entity, error)

	// Get returns a single entity.
	Get(ctx context.Context, kind model.Kind, id string) (*model.Entity, error)

	// Update replaces the field set from a JSON object, keeping the attachment.
	// A non-empty ifMatch makes the write conditional on the current version.
	Update(ctx context.Context, kind model.Kind, id string, payload []byte, ifMatch string) (*model.Entity, error)

	// Delete removes the entity and, best-effort, its attachment.
	Delete(ctx context.Context, kind model.Kind, id string) error
}

// EntityOptions tunes EntityService. Zero values are usable.
type EntityOptions struct {
	// URLTTL is the validity of issued read URLs.
	URLTTL  time.Duration
	Logger  *slog.Logger
	Metrics *metrics.Registry
}

type entityService struct {
	attachments attachment.Store
	repo        repository.EntityRepository
	opts        EntityOptions
	log         *slog.Logger
}

// NewEntityService constructs a new EntityService.
func NewEntityService(attachments attachment.Store, repo repository.EntityRepository, opts EntityOptions) EntityService {
	if opts.URLTTL <= 0 {
		opts.URLTTL = attachment.DefaultValidity
	}
	return &entityService{
		attachments: attachments,
		repo:        repo,
		opts:        opts,
		log:         logging.Component(opts.Logger, "entities"),
	}
}

func (s *entityService) List(ctx context.Context, kind model.Kind) ([]model.Entity, error) {
	if _, ok := model.SchemaFor(kind); !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	items, err := s.repo.QueryByPartition(ctx, kind.Partition())
	if err != nil {
		return nil, storeErr("query", err)
	}
	return items, nil
}

func (s *entityService) ListEnriched(ctx context.Context, kind model.Kind) ([]model.Entity, error) {
	items, err := s.List(ctx, kind)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(enrichConcurrency)
	for i := range items {
		if !items[i].HasAttachment() {
			items[i].AttachmentRef = nil
			continue
		}
		i := i
		g.Go(func() error {
			return s.resolve(gctx, kind, &items[i])
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("enrich %s: %w", kind, err)
	}
	return items, nil
}

// resolve swaps e's reference for a read URL, or clears it if the object is gone.
func (s *entityService) resolve(ctx context.Context, kind model.Kind, e *model.Entity) error {
	ref := *e.AttachmentRef
	ok, err := s.attachments.Exists(ctx, ref)
	if errors.Is(err, attachment.ErrEmptyRef) {
		ok, err = false, nil
	}
	if err != nil {
		return err
	}
	if !ok {
		s.log.Debug("dangling attachment reference", "kind", kind, "id", e.ID, "attachment_ref", ref)
		s.opts.Metrics.RefNulled(string(kind))
		e.AttachmentRef = nil
		return nil
	}
	u, err := s.attachments.IssueReadURL(ctx, ref, s.opts.URLTTL)
	if err != nil {
		return err
	}
	s.opts.Metrics.URLIssued(string(kind))
	e.AttachmentRef = &u
	return nil
}

func (s *entityService) Get(ctx context.Context, kind model.Kind, id string) (*model.Entity, error) {
	if _, ok := model.SchemaFor(kind); !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if strings.TrimSpace(id) == "" {
		return nil, ErrIDRequired
	}
	e, err := s.repo.Get(ctx, kind.Partition(), id)
	if err != nil {
		return nil, storeErr("get", err)
	}
	return e, nil
}

func (s *entityService) Update(ctx context.Context, kind model.Kind, id string, payload []byte, ifMatch string) (*model.Entity, error) {
	schema, ok := model.SchemaFor(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if strings.TrimSpace(id) == "" {
		return nil, ErrIDRequired
	}
	fields, err := decodeFields(schema, payload)
	if err != nil {
		return nil, err
	}
	if missing := schema.Missing(fields); len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required fields: %s", ErrValidation, strings.Join(missing, ", "))
	}

	cur, err := s.repo.Get(ctx, kind.Partition(), id)
	if err != nil {
		return nil, storeErr("get", err)
	}
	next := &model.Entity{
		Partition:     cur.Partition,
		ID:            cur.ID,
		Fields:        fields,
		AttachmentRef: cur.AttachmentRef,
	}
	if ifMatch == "*" {
		ifMatch = ""
	}
	updated, err := s.repo.Update(ctx, next, ifMatch)
	if err != nil {
		return nil, storeErr("update", err)
	}
	return updated, nil
}

func (s *entityService) Delete(ctx context.Context, kind model.Kind, id string) error {
	if _, ok := model.SchemaFor(kind); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if strings.TrimSpace(id) == "" {
		return ErrIDRequired
	}
	cur, err := s.repo.Get(ctx, kind.Partition(), id)
	if err != nil {
		return storeErr("get", err)
	}
	if cur.HasAttachment() {
		if err := s.attachments.Delete(ctx, *cur.AttachmentRef); err != nil {
			s.log.Warn("attachment delete failed", "kind", kind, "id", id, "attachment_ref", *cur.AttachmentRef, "error", err)
		}
	}
	if err := s.repo.Delete(ctx, cur.Partition, cur.ID); err != nil {
		return storeErr("delete", err)
	}
	return nil
}
