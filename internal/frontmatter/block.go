package frontmatter

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Block is an ordered key/value mapping parsed from a document's leading
// frontmatter. Keys are unique; re-setting an existing key keeps its position.
type Block struct {
	m *orderedmap.OrderedMap[string, Value]
}

// NewBlock returns an empty block.
func NewBlock() *Block {
	return &Block{m: orderedmap.New[string, Value]()}
}

// Get returns the value stored under key.
func (b *Block) Get(key string) (Value, bool) {
	return b.m.Get(key)
}

// Text returns the string stored under key, if key holds a string.
func (b *Block) Text(key string) (string, bool) {
	v, ok := b.m.Get(key)
	if !ok {
		return "", false
	}
	return v.Text()
}

// Set stores v under key.
func (b *Block) Set(key string, v Value) {
	b.m.Set(key, v)
}

// Delete removes key and reports whether it was present.
func (b *Block) Delete(key string) bool {
	_, ok := b.m.Delete(key)
	return ok
}

// Has reports whether key is present, regardless of its value.
func (b *Block) Has(key string) bool {
	_, ok := b.m.Get(key)
	return ok
}

// Populated reports whether key is present with a non-empty value.
func (b *Block) Populated(key string) bool {
	v, ok := b.m.Get(key)
	return ok && !v.IsEmpty()
}

func (b *Block) Len() int { return b.m.Len() }

// Keys returns the keys in declaration order.
func (b *Block) Keys() []string {
	keys := make([]string, 0, b.m.Len())
	for p := b.m.Oldest(); p != nil; p = p.Next() {
		keys = append(keys, p.Key)
	}
	return keys
}

// Each calls fn for every entry in order until fn returns false.
func (b *Block) Each(fn func(key string, v Value) bool) {
	for p := b.m.Oldest(); p != nil; p = p.Next() {
		if !fn(p.Key, p.Value) {
			return
		}
	}
}

// Clone returns an independent copy of b.
func (b *Block) Clone() *Block {
	out := NewBlock()
	b.Each(func(k string, v Value) bool {
		out.Set(k, v)
		return true
	})
	return out
}

// Equal reports whether b and o hold the same entries in the same order.
func (b *Block) Equal(o *Block) bool {
	if b == nil || o == nil {
		return b == o
	}
	if b.Len() != o.Len() {
		return false
	}
	p, q := b.m.Oldest(), o.m.Oldest()
	for p != nil && q != nil {
		if p.Key != q.Key || !p.Value.Equal(q.Value) {
			return false
		}
		p, q = p.Next(), q.Next()
	}
	return true
}

// Map converts b into a plain map for JSON encoding. Order is lost.
func (b *Block) Map() map[string]any {
	out := make(map[string]any, b.Len())
	b.Each(func(k string, v Value) bool {
		out[k] = v.Any()
		return true
	})
	return out
}

// String serializes b into frontmatter lines.
func (b *Block) String() string {
	return Serialize(b)
}
