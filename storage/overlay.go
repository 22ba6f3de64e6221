package storage

import (
	"errors"
	"sort"
	"sync"
)

var errOverlayClosed = errors.New("storage: overlay already committed or discarded")

// Overlay buffers writes on top of a parent database so a speculative state
// transition can be committed in a single batch or thrown away. Reads fall
// through to the parent for keys the overlay has not touched.
//
// Overlays may be stacked: committing a child overlay writes into its parent
// overlay without reaching the base database.
type Overlay struct {
	mu      sync.RWMutex
	parent  Database
	writes  map[string][]byte
	deletes map[string]struct{}
	closed  bool
}

// NewOverlay creates an overlay over the parent database.
func NewOverlay(parent Database) *Overlay {
	return &Overlay{
		parent:  parent,
		writes:  make(map[string][]byte),
		deletes: make(map[string]struct{}),
	}
}

func (o *Overlay) Put(key []byte, value []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return errOverlayClosed
	}
	k := string(key)
	delete(o.deletes, k)
	o.writes[k] = append([]byte(nil), value...)
	return nil
}

func (o *Overlay) Get(key []byte) ([]byte, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	k := string(key)
	if value, ok := o.writes[k]; ok {
		return append([]byte(nil), value...), nil
	}
	if _, ok := o.deletes[k]; ok {
		return nil, ErrNotFound
	}
	return o.parent.Get(key)
}

func (o *Overlay) Has(key []byte) (bool, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	k := string(key)
	if _, ok := o.writes[k]; ok {
		return true, nil
	}
	if _, ok := o.deletes[k]; ok {
		return false, nil
	}
	return o.parent.Has(key)
}

func (o *Overlay) Delete(key []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return errOverlayClosed
	}
	k := string(key)
	delete(o.writes, k)
	o.deletes[k] = struct{}{}
	return nil
}

// NewBatch returns a batch that applies into the overlay itself.
func (o *Overlay) NewBatch() Batch {
	return &overlayBatch{overlay: o}
}

// Close discards pending writes.
func (o *Overlay) Close() { o.Discard() }

// Dirty reports the number of buffered writes and deletes.
func (o *Overlay) Dirty() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.writes) + len(o.deletes)
}

// Commit flushes every buffered mutation into the parent in one batch. The
// overlay cannot be used afterwards.
func (o *Overlay) Commit() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return errOverlayClosed
	}
	batch := o.parent.NewBatch()
	// Sorted so the batch contents are deterministic.
	keys := make([]string, 0, len(o.writes))
	for k := range o.writes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		batch.Put([]byte(k), o.writes[k])
	}
	deleted := make([]string, 0, len(o.deletes))
	for k := range o.deletes {
		deleted = append(deleted, k)
	}
	sort.Strings(deleted)
	for _, k := range deleted {
		batch.Delete([]byte(k))
	}
	if err := batch.Write(); err != nil {
		return err
	}
	o.closed = true
	o.writes = nil
	o.deletes = nil
	return nil
}

// Discard drops buffered mutations. Calling Discard after Commit is a no-op.
func (o *Overlay) Discard() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	o.writes = nil
	o.deletes = nil
}

type overlayBatch struct {
	overlay *Overlay
	ops     []memOp
}

func (b *overlayBatch) Put(key []byte, value []byte) {
	b.ops = append(b.ops, memOp{key: string(key), value: append([]byte(nil), value...)})
}

func (b *overlayBatch) Delete(key []byte) {
	b.ops = append(b.ops, memOp{key: string(key), delete: true})
}

func (b *overlayBatch) Len() int { return len(b.ops) }

func (b *overlayBatch) Write() error {
	for _, op := range b.ops {
		var err error
		if op.delete {
			err = b.overlay.Delete([]byte(op.key))
		} else {
			err = b.overlay.Put([]byte(op.key), op.value)
		}
		if err != nil {
			return err
		}
	}
	b.ops = nil
	return nil
}
