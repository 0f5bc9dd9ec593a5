package testutil

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/roach88/deferring/internal/relation"
)

// Owner is a minimal parent record.
type Owner struct {
	ID   relation.ID
	Name string
}

// Item is a minimal related record for exercising collections.
//
// It implements every optional entity interface of package relation. The
// inverse relation is named "owner".
type Item struct {
	ID    relation.ID
	Name  string
	Attrs relation.Attrs
	Owner *Owner

	marked bool
}

// Identity implements relation.Entity.
func (i *Item) Identity() (relation.ID, bool) {
	if i == nil || i.ID == relation.NoID {
		return relation.NoID, false
	}
	return i.ID, true
}

// AssignInverse sets Owner when name is "owner".
func (i *Item) AssignInverse(name string, o *Owner) bool {
	if name != "owner" {
		return false
	}
	i.Owner = o
	return true
}

// AssignAttributes sets Name from "name" and keeps everything else in Attrs.
func (i *Item) AssignAttributes(attrs relation.Attrs) error {
	for k, v := range attrs {
		if k == "name" {
			s, ok := v.(string)
			if !ok {
				return fmt.Errorf("item name must be a string, got %T", v)
			}
			i.Name = s
			continue
		}
		if i.Attrs == nil {
			i.Attrs = relation.Attrs{}
		}
		i.Attrs[k] = v
	}
	return nil
}

// MarkForDestruction implements relation.Destructible.
func (i *Item) MarkForDestruction() { i.marked = true }

// MarkedForDestruction implements relation.Destructible.
func (i *Item) MarkedForDestruction() bool { return i.marked }

// Validate requires a non-blank name.
func (i *Item) Validate() error {
	if strings.TrimSpace(i.Name) == "" {
		return &relation.ValidationError{Errors: []relation.FieldError{{Field: "name", Message: "can't be blank"}}}
	}
	return nil
}

func (i *Item) clone() *Item {
	c := *i
	c.Attrs = i.Attrs.Clone()
	c.marked = false
	return &c
}

// Call is one recorded storage call.
type Call struct {
	Op  string
	IDs []relation.ID
}

// String renders the call as "op 1,2,3".
func (c Call) String() string {
	ids := make([]string, len(c.IDs))
	for i, id := range c.IDs {
		ids[i] = id.String()
	}
	return c.Op + " " + strings.Join(ids, ",")
}

// MemoryStorage is an in-memory relation.Storage for *Owner and *Item.
//
// Stored items are copied in and out so collections never share pointers with
// the store, as with a real database. Links are unique per owner and bounded
// by Capacity when it is positive.
//
// Thread-safety: all methods are safe for concurrent use.
type MemoryStorage struct {
	// Capacity bounds the links per owner. Zero means unbounded.
	Capacity int

	// Fail* make the corresponding call return the error.
	FailLoad    error
	FailFind    error
	FailLinks   error
	FailUnlinks error
	FailCreate  error
	FailDestroy error

	mu    sync.Mutex
	seq   Sequence
	items map[relation.ID]*Item
	links map[relation.ID][]relation.ID
	calls []Call
	loads int
}

var (
	_ relation.Storage[*Owner, *Item]   = (*MemoryStorage)(nil)
	_ relation.Destroyer[*Owner, *Item] = (*MemoryStorage)(nil)
)

// NewMemoryStorage creates an empty store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		items: make(map[relation.ID]*Item),
		links: make(map[relation.ID][]relation.ID),
	}
}

// Seed persists unlinked items with the given names and returns copies.
func (m *MemoryStorage) Seed(names ...string) []*Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Item, len(names))
	for i, name := range names {
		it := &Item{ID: m.seq.Next(), Name: name}
		m.items[it.ID] = it
		out[i] = it.clone()
	}
	return out
}

// Link writes links directly, bypassing collections and the call log.
func (m *MemoryStorage) Link(o *Owner, items ...*Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range items {
		m.links[o.ID] = append(m.links[o.ID], it.ID)
	}
}

// Members returns the persisted link identities of o in stored order.
func (m *MemoryStorage) Members(o *Owner) []relation.ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.links[o.ID])
}

// Item returns a copy of the stored item, or nil.
func (m *MemoryStorage) Item(id relation.ID) *Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return nil
	}
	return it.clone()
}

// Calls returns the recorded calls in order.
func (m *MemoryStorage) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calls)
}

// CallOps returns the op names of the recorded calls in order.
func (m *MemoryStorage) CallOps() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ops := make([]string, len(m.calls))
	for i, c := range m.calls {
		ops[i] = c.Op
	}
	return ops
}

// Loads returns how many times Load was called.
func (m *MemoryStorage) Loads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loads
}

func (m *MemoryStorage) record(op string, items []*Item) {
	ids := make([]relation.ID, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	m.calls = append(m.calls, Call{Op: op, IDs: ids})
}

// Load implements relation.Storage.
func (m *MemoryStorage) Load(_ context.Context, o *Owner) ([]*Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	if m.FailLoad != nil {
		return nil, m.FailLoad
	}
	ids := m.links[o.ID]
	out := make([]*Item, 0, len(ids))
	for _, id := range ids {
		if it, ok := m.items[id]; ok {
			out = append(out, it.clone())
		}
	}
	m.record("load", out)
	return out, nil
}

// FindByIDs implements relation.Storage.
func (m *MemoryStorage) FindByIDs(_ context.Context, ids []relation.ID) ([]*Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailFind != nil {
		return nil, m.FailFind
	}
	var out []*Item
	for _, id := range ids {
		if it, ok := m.items[id]; ok {
			out = append(out, it.clone())
		}
	}
	m.record("find", out)
	return out, nil
}

// PersistLinks implements relation.Storage. Unpersisted items are assigned
// an identity in place.
func (m *MemoryStorage) PersistLinks(_ context.Context, o *Owner, items []*Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailLinks != nil {
		return m.FailLinks
	}
	if err := m.checkCapacity(o, len(items)); err != nil {
		return err
	}
	for _, it := range items {
		if slices.Contains(m.links[o.ID], it.ID) && it.ID != relation.NoID {
			return fmt.Errorf("duplicate link %d -> %d", o.ID, it.ID)
		}
	}
	for _, it := range items {
		if it.ID == relation.NoID {
			it.ID = m.seq.Next()
		}
		m.items[it.ID] = it.clone()
		m.links[o.ID] = append(m.links[o.ID], it.ID)
	}
	m.record("link", items)
	return nil
}

// PersistUnlinks implements relation.Storage.
func (m *MemoryStorage) PersistUnlinks(_ context.Context, o *Owner, items []*Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailUnlinks != nil {
		return m.FailUnlinks
	}
	for _, it := range items {
		m.links[o.ID] = slices.DeleteFunc(m.links[o.ID], func(id relation.ID) bool { return id == it.ID })
	}
	m.record("unlink", items)
	return nil
}

// New implements relation.Storage.
func (m *MemoryStorage) New(attrs relation.Attrs) (*Item, error) {
	it := &Item{}
	if err := it.AssignAttributes(attrs); err != nil {
		return nil, err
	}
	return it, nil
}

// Create implements relation.Storage.
func (m *MemoryStorage) Create(_ context.Context, o *Owner, it *Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailCreate != nil {
		return m.FailCreate
	}
	if err := m.checkCapacity(o, 1); err != nil {
		return err
	}
	it.ID = m.seq.Next()
	m.items[it.ID] = it.clone()
	m.links[o.ID] = append(m.links[o.ID], it.ID)
	m.record("create", []*Item{it})
	return nil
}

// DestroyEntities implements relation.Destroyer.
func (m *MemoryStorage) DestroyEntities(_ context.Context, _ *Owner, items []*Item, _ relation.DependentPolicy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailDestroy != nil {
		return m.FailDestroy
	}
	for _, it := range items {
		delete(m.items, it.ID)
		for owner, ids := range m.links {
			m.links[owner] = slices.DeleteFunc(ids, func(id relation.ID) bool { return id == it.ID })
		}
	}
	m.record("destroy", items)
	return nil
}

func (m *MemoryStorage) checkCapacity(o *Owner, extra int) error {
	if m.Capacity > 0 && len(m.links[o.ID])+extra > m.Capacity {
		return fmt.Errorf("capacity %d exceeded for owner %d", m.Capacity, o.ID)
	}
	return nil
}
