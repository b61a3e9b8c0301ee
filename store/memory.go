package store

import (
	"context"
	"strconv"
	"sync"

	"portfolio-analytics/model"
)

// Memory is an in-process DocumentStore used by tests and by the queue
// tests' failure simulations. It stores the same encoded field strings
// as the Redis backend so both share one codec, and applies each batch
// under a single lock, which makes the commit atomic.
type Memory struct {
	mu    sync.Mutex
	docs  map[string]map[string]string
	lists map[string][]string
	sets  map[string]map[string]struct{}

	forced error
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		docs:  make(map[string]map[string]string),
		lists: make(map[string][]string),
		sets:  make(map[string]map[string]struct{}),
	}
}

// Fail makes every subsequent operation return err until cleared with
// Fail(nil). Used to simulate downstream outages.
func (m *Memory) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forced = err
}

func (m *Memory) GetUser(ctx context.Context, userID string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.forced != nil {
		return nil, m.forced
	}
	fields, ok := m.docs[UserDoc(userID).Key()]
	if !ok {
		return nil, ErrNotFound
	}
	return decodeUser(userID, copyFields(fields))
}

func (m *Memory) GetAggregate(ctx context.Context, urlHash string) (*model.LinkAggregate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.forced != nil {
		return nil, m.forced
	}
	fields, ok := m.docs[LinkDoc(urlHash).Key()]
	if !ok {
		return nil, ErrNotFound
	}
	return decodeAggregate(urlHash, copyFields(fields)), nil
}

func (m *Memory) UnionAppend(ctx context.Context, doc DocKey, field string, member string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.forced != nil {
		return false, m.forced
	}
	key := doc.Key() + ":" + field
	set, ok := m.sets[key]
	if !ok {
		set = make(map[string]struct{})
		m.sets[key] = set
	}
	if _, present := set[member]; present {
		return false, nil
	}
	set[member] = struct{}{}
	return true, nil
}

// Members returns the current membership of a set field, sorted order
// not guaranteed. Test helper.
func (m *Memory) Members(doc DocKey, field string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []string
	for member := range m.sets[doc.Key()+":"+field] {
		out = append(out, member)
	}
	return out
}

// ListLen returns the length of a list field. Test helper.
func (m *Memory) ListLen(doc DocKey, field string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.lists[doc.Key()+":"+field])
}

// List returns the raw encoded entries of a list field. Test helper.
func (m *Memory) List(doc DocKey, field string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.lists[doc.Key()+":"+field]...)
}

func (m *Memory) NewBatch() WriteBatch {
	return &memoryBatch{store: m}
}

func (m *Memory) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.forced
}

type memoryBatch struct {
	store *Memory
	ops   []func(*Memory)
	err   error
}

func (b *memoryBatch) MergeSet(doc DocKey, fields map[string]interface{}) {
	for field, value := range fields {
		enc, err := encodeValue(value)
		if err != nil {
			b.stageErr(err)
			continue
		}
		field := field
		b.ops = append(b.ops, func(m *Memory) {
			m.doc(doc)[field] = enc
		})
	}
}

func (b *memoryBatch) SetIfAbsent(doc DocKey, fields map[string]interface{}) {
	for field, value := range fields {
		enc, err := encodeValue(value)
		if err != nil {
			b.stageErr(err)
			continue
		}
		field := field
		b.ops = append(b.ops, func(m *Memory) {
			d := m.doc(doc)
			if _, exists := d[field]; !exists {
				d[field] = enc
			}
		})
	}
}

func (b *memoryBatch) Increment(doc DocKey, field string, delta int64) {
	b.ops = append(b.ops, func(m *Memory) {
		d := m.doc(doc)
		current, _ := strconv.ParseInt(d[field], 10, 64)
		d[field] = strconv.FormatInt(current+delta, 10)
	})
}

func (b *memoryBatch) Append(doc DocKey, field string, value interface{}) {
	enc, err := encodeValue(value)
	if err != nil {
		b.stageErr(err)
		return
	}
	b.ops = append(b.ops, func(m *Memory) {
		key := doc.Key() + ":" + field
		m.lists[key] = append(m.lists[key], enc)
	})
}

func (b *memoryBatch) Commit(ctx context.Context) error {
	if b.err != nil {
		return b.err
	}

	b.store.mu.Lock()
	defer b.store.mu.Unlock()

	if b.store.forced != nil {
		return b.store.forced
	}
	for _, op := range b.ops {
		op(b.store)
	}
	return nil
}

func (b *memoryBatch) stageErr(err error) {
	if b.err == nil {
		b.err = err
	}
}

// doc returns the field map for a document, creating it if needed.
// Callers hold m.mu.
func (m *Memory) doc(d DocKey) map[string]string {
	fields, ok := m.docs[d.Key()]
	if !ok {
		fields = make(map[string]string)
		m.docs[d.Key()] = fields
	}
	return fields
}

func copyFields(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
