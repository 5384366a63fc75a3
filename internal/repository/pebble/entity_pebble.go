// Package pebble is an embedded repository.EntityRepository backed by a Pebble LSM store.
package pebble

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"

	"retailapi/internal/model"
	"retailapi/internal/repository"
)

// keySep separates partition and id; neither may contain it.
const keySep = 0x00

// EntityPebble stores each entity as a JSON value under "partition\x00id".
// Writes are serialized by a store-wide mutex so put-if-absent and compare-and-swap are atomic per key.
type EntityPebble struct {
	db  *pebble.DB
	mu  sync.Mutex
	now func() time.Time
}

var _ repository.EntityRepository = (*EntityPebble)(nil)

// NewEntityPebble opens (or creates) the store in dir. A nil opts uses Pebble defaults.
func NewEntityPebble(dir string, opts *pebble.Options) (*EntityPebble, error) {
	if opts == nil {
		opts = &pebble.Options{}
	}
	d, err := pebble.Open(filepath.Clean(dir), opts)
	if err != nil {
		return nil, fmt.Errorf("pebble open: %w", err)
	}
	return &EntityPebble{db: d, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close flushes and closes the underlying store.
func (p *EntityPebble) Close() error { return p.db.Close() }

func entityKey(partition, id string) ([]byte, error) {
	if partition == "" || id == "" {
		return nil, errors.New("partition and id are required")
	}
	k := make([]byte, 0, len(partition)+len(id)+1)
	k = append(k, partition...)
	k = append(k, keySep)
	k = append(k, id...)
	return k, nil
}

func (p *EntityPebble) read(k []byte) (*model.Entity, error) {
	v, closer, err := p.db.Get(k)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	defer closer.Close()
	var e model.Entity
	if err := json.Unmarshal(v, &e); err != nil {
		return nil, fmt.Errorf("decode entity: %w", err)
	}
	return &e, nil
}

func (p *EntityPebble) write(k []byte, e *model.Entity) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode entity: %w", err)
	}
	return p.db.Set(k, b, pebble.Sync)
}

func (p *EntityPebble) Get(_ context.Context, partition, id string) (*model.Entity, error) {
	k, err := entityKey(partition, id)
	if err != nil {
		return nil, err
	}
	return p.read(k)
}

func (p *EntityPebble) Put(_ context.Context, e *model.Entity) (*model.Entity, error) {
	k, err := entityKey(e.Partition, e.ID)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := p.read(k); err == nil {
		return nil, repository.ErrDuplicateKey
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	out := p.stamp(e)
	if err := p.write(k, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *EntityPebble) Update(_ context.Context, e *model.Entity, ifMatch string) (*model.Entity, error) {
	k, err := entityKey(e.Partition, e.ID)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	cur, err := p.read(k)
	if err != nil {
		return nil, err
	}
	if ifMatch != "" && cur.Version != ifMatch {
		return nil, repository.ErrVersionMismatch
	}

	out := p.stamp(e)
	if err := p.write(k, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *EntityPebble) Delete(_ context.Context, partition, id string) error {
	k, err := entityKey(partition, id)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.db.Delete(k, pebble.Sync)
}

// QueryByPartition scans the partition's key range; results come back in id order.
func (p *EntityPebble) QueryByPartition(_ context.Context, partition string) ([]model.Entity, error) {
	lower := append([]byte(partition), keySep)
	upper := append([]byte(partition), keySep+1)

	it, err := p.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, err
	}
	defer it.Close()

	items := make([]model.Entity, 0)
	for it.First(); it.Valid(); it.Next() {
		var e model.Entity
		if err := json.Unmarshal(it.Value(), &e); err != nil {
			return nil, fmt.Errorf("decode entity %q: %w", it.Key(), err)
		}
		items = append(items, e)
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	return items, nil
}

// stamp copies e with a fresh version and modification time.
func (p *EntityPebble) stamp(e *model.Entity) *model.Entity {
	out := *e
	out.Fields = make(map[string]any, len(e.Fields))
	for k, v := range e.Fields {
		out.Fields[k] = v
	}
	if e.AttachmentRef != nil {
		out.AttachmentRef = model.Ref(*e.AttachmentRef)
	}
	out.Version = uuid.NewString()
	out.LastModified = p.now()
	return &out
}
