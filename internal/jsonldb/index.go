// Secondary indexes kept in sync with a table through TableObserver.

package jsonldb

import (
	"iter"
	"slices"
	"sync"

	"github.com/maruel/ksid"
)

// postings maps a secondary key to the sorted IDs of the rows carrying it.
type postings[K comparable] struct {
	mu  sync.RWMutex
	ids map[K][]ksid.ID
}

func (p *postings[K]) add(key K, id ksid.ID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ids == nil {
		p.ids = make(map[K][]ksid.ID)
	}
	list := p.ids[key]
	if i, found := slices.BinarySearch(list, id); !found {
		p.ids[key] = slices.Insert(list, i, id)
	}
}

func (p *postings[K]) remove(key K, id ksid.ID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	list := p.ids[key]
	i, found := slices.BinarySearch(list, id)
	if !found {
		return
	}
	if len(list) == 1 {
		delete(p.ids, key)
		return
	}
	p.ids[key] = slices.Delete(list, i, i+1)
}

// get returns a copy of the IDs for key, oldest first.
func (p *postings[K]) get(key K) []ksid.ID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.ids[key])
}

// UniqueIndex looks rows up by a secondary key expected to be unique, such as
// an email address. Rows whose key is the zero value of K are not indexed.
//
// When several rows share a key, the one with the highest ID wins.
type UniqueIndex[K comparable, T Row[T]] struct {
	table *Table[T]
	key   func(T) K
	p     postings[K]
}

// NewUniqueIndex indexes table by key and keeps the index current.
func NewUniqueIndex[K comparable, T Row[T]](table *Table[T], key func(T) K) *UniqueIndex[K, T] {
	idx := &UniqueIndex[K, T]{table: table, key: key}
	table.AddObserver(idx)
	return idx
}

// Get returns the row for key, or the zero value of T.
func (idx *UniqueIndex[K, T]) Get(key K) T {
	ids := idx.p.get(key)
	if len(ids) == 0 {
		var zero T
		return zero
	}
	return idx.table.Get(ids[len(ids)-1])
}

func (idx *UniqueIndex[K, T]) OnAppend(row T) {
	var zero K
	if k := idx.key(row); k != zero {
		idx.p.add(k, row.GetID())
	}
}

func (idx *UniqueIndex[K, T]) OnUpdate(prev, curr T) {
	idx.OnDelete(prev)
	idx.OnAppend(curr)
}

func (idx *UniqueIndex[K, T]) OnDelete(row T) {
	idx.p.remove(idx.key(row), row.GetID())
}

// Index groups rows by a secondary key, such as the owner of a session.
type Index[K comparable, T Row[T]] struct {
	table *Table[T]
	key   func(T) K
	p     postings[K]
}

// NewIndex indexes table by key and keeps the index current.
func NewIndex[K comparable, T Row[T]](table *Table[T], key func(T) K) *Index[K, T] {
	idx := &Index[K, T]{table: table, key: key}
	table.AddObserver(idx)
	return idx
}

// Iter yields the rows carrying key in ID order. Rows deleted while
// iterating are skipped.
func (idx *Index[K, T]) Iter(key K) iter.Seq[T] {
	return func(yield func(T) bool) {
		var zero T
		for _, id := range idx.p.get(key) {
			row := idx.table.Get(id)
			if any(row) == any(zero) {
				continue
			}
			if !yield(row) {
				return
			}
		}
	}
}

func (idx *Index[K, T]) OnAppend(row T) {
	idx.p.add(idx.key(row), row.GetID())
}

func (idx *Index[K, T]) OnUpdate(prev, curr T) {
	idx.OnDelete(prev)
	idx.OnAppend(curr)
}

func (idx *Index[K, T]) OnDelete(row T) {
	idx.p.remove(idx.key(row), row.GetID())
}
