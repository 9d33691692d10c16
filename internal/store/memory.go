package store

import (
	"context"
	"hash/fnv"
	"slices"
	"sort"
	"sync"
)

const shardCount = 128

// Memory is an in-process Backend. Groups are guarded by one of 128 mutexes
// chosen by hash; a commit locks the shards it touches in ascending order.
type Memory struct {
	shards [shardCount]sync.Mutex
	groups sync.Map // group name → *memGroup, fields guarded by the group's shard
}

type memGroup struct {
	version int64
	records map[string]map[string][]byte // kind → id → data
}

var _ Backend = (*Memory)(nil)

// NewMemory returns an empty memory backend.
func NewMemory() *Memory {
	return &Memory{}
}

func shardFor(group string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(group))
	return int(h.Sum32() % shardCount)
}

func (m *Memory) lookup(group string) *memGroup {
	g, ok := m.groups.Load(group)
	if !ok {
		return nil
	}
	return g.(*memGroup)
}

func (m *Memory) lookupOrCreate(group string) *memGroup {
	g, _ := m.groups.LoadOrStore(group, &memGroup{records: make(map[string]map[string][]byte)})
	return g.(*memGroup)
}

// Version implements Backend.
func (m *Memory) Version(ctx context.Context, group string) (int64, error) {
	mu := &m.shards[shardFor(group)]
	mu.Lock()
	defer mu.Unlock()
	if g := m.lookup(group); g != nil {
		return g.version, nil
	}
	return 0, nil
}

// Get implements Backend.
func (m *Memory) Get(ctx context.Context, key Key) ([]byte, error) {
	mu := &m.shards[shardFor(key.Group)]
	mu.Lock()
	defer mu.Unlock()
	g := m.lookup(key.Group)
	if g == nil {
		return nil, ErrNotFound
	}
	data, ok := g.records[key.Kind][key.ID]
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(data), nil
}

// List implements Backend.
func (m *Memory) List(ctx context.Context, group, kind, afterID string, limit int) ([]Item, error) {
	mu := &m.shards[shardFor(group)]
	mu.Lock()
	defer mu.Unlock()
	g := m.lookup(group)
	if g == nil {
		return nil, nil
	}
	return collect(group, kind, g.records[kind], afterID, limit), nil
}

func collect(group, kind string, records map[string][]byte, afterID string, limit int) []Item {
	ids := make([]string, 0, len(records))
	for id := range records {
		if id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	items := make([]Item, 0, len(ids))
	for _, id := range ids {
		items = append(items, Item{Key: Key{Group: group, Kind: kind, ID: id}, Data: slices.Clone(records[id])})
	}
	return items
}

// Scan implements Backend.
func (m *Memory) Scan(ctx context.Context, kind string, after Key, limit int) ([]Item, error) {
	var names []string
	m.groups.Range(func(k, _ any) bool {
		if name := k.(string); name >= after.Group {
			names = append(names, name)
		}
		return true
	})
	sort.Strings(names)

	var out []Item
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		afterID := ""
		if name == after.Group {
			afterID = after.ID
		}
		remaining := 0
		if limit > 0 {
			remaining = limit - len(out)
		}
		mu := &m.shards[shardFor(name)]
		mu.Lock()
		if g := m.lookup(name); g != nil {
			out = append(out, collect(name, kind, g.records[kind], afterID, remaining)...)
		}
		mu.Unlock()
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Commit implements Backend.
func (m *Memory) Commit(ctx context.Context, reads map[string]int64, writes []Mutation) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	shardSet := make(map[int]struct{})
	for group := range reads {
		shardSet[shardFor(group)] = struct{}{}
	}
	for _, w := range writes {
		shardSet[shardFor(w.Key.Group)] = struct{}{}
	}
	order := make([]int, 0, len(shardSet))
	for s := range shardSet {
		order = append(order, s)
	}
	sort.Ints(order)
	for _, s := range order {
		m.shards[s].Lock()
	}
	defer func() {
		for i := len(order) - 1; i >= 0; i-- {
			m.shards[order[i]].Unlock()
		}
	}()

	for group, seen := range reads {
		var current int64
		if g := m.lookup(group); g != nil {
			current = g.version
		}
		if current != seen {
			return ErrConflict
		}
	}

	bumped := make(map[string]bool)
	for _, w := range writes {
		g := m.lookupOrCreate(w.Key.Group)
		if w.Delete {
			delete(g.records[w.Key.Kind], w.Key.ID)
		} else {
			byID := g.records[w.Key.Kind]
			if byID == nil {
				byID = make(map[string][]byte)
				g.records[w.Key.Kind] = byID
			}
			byID[w.Key.ID] = slices.Clone(w.Data)
		}
		if !bumped[w.Key.Group] {
			g.version++
			bumped[w.Key.Group] = true
		}
	}
	return nil
}

// Close implements Backend.
func (m *Memory) Close() error {
	return nil
}
