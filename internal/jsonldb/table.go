package jsonldb

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/maruel/ksid"
)

var (
	errRowIDRequired = errors.New("row id is required")
	errRowExists     = errors.New("row already exists")
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("row not found")
)

// Cloner is implemented by types that can clone themselves.
type Cloner[T any] interface {
	Clone() T
}

// Row is implemented by every type stored in a Table.
type Row[T any] interface {
	Cloner[T]
	GetID() ksid.ID
	Validate() error
}

// TableObserver is notified of every mutation of a Table.
//
// Callbacks run while the table write lock is held; they must not call back
// into the table.
type TableObserver[T any] interface {
	OnAppend(row T)
	OnUpdate(prev, curr T)
	OnDelete(row T)
}

// Table handles storage and in-memory caching for a single table in JSONL format.
type Table[T Row[T]] struct {
	path      string
	header    schemaHeader
	mu        sync.RWMutex
	rows      []T
	byID      map[ksid.ID]int
	observers []TableObserver[T]
}

// NewTable creates a new Table and loads all data from the file.
func NewTable[T Row[T]](path string) (*Table[T], error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	cols, err := schemaFromType[T]()
	if err != nil {
		return nil, err
	}
	t := &Table[T]{
		path:   path,
		header: schemaHeader{Version: currentVersion, Columns: cols},
		byID:   make(map[ksid.ID]int),
	}
	if err := t.load(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Table[T]) load() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, err := os.Open(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			t.rows = []T{}
			return nil
		}
		return fmt.Errorf("failed to open table file %s: %w", t.path, err)
	}
	defer func() { _ = f.Close() }()

	var rows []T
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	first := true
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if first {
			first = false
			var h schemaHeader
			if err := json.Unmarshal(line, &h); err != nil {
				return fmt.Errorf("failed to parse schema header in %s: %w", t.path, err)
			}
			if err := h.Validate(); err != nil {
				return fmt.Errorf("invalid schema header in %s: %w", t.path, err)
			}
			continue
		}
		var row T
		if err := json.Unmarshal(line, &row); err != nil {
			return fmt.Errorf("failed to unmarshal row in %s: %w", t.path, err)
		}
		if err := row.Validate(); err != nil {
			return fmt.Errorf("invalid row in %s: %w", t.path, err)
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read table file %s: %w", t.path, err)
	}

	// Clock drift or manual edits can leave rows out of order.
	slices.SortStableFunc(rows, func(a, b T) int {
		switch ai, bi := a.GetID(), b.GetID(); {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		}
		return 0
	})
	t.rows = rows
	t.reindex()
	return nil
}

func (t *Table[T]) reindex() {
	clear(t.byID)
	for i, row := range t.rows {
		t.byID[row.GetID()] = i
	}
}

// AddObserver registers o and replays existing rows to it as appends.
func (t *Table[T]) AddObserver(o TableObserver[T]) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observers = append(t.observers, o)
	for _, row := range t.rows {
		o.OnAppend(row)
	}
}

// Len returns the number of rows.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

// Get returns a clone of the row with the given ID, or the zero value.
func (t *Table[T]) Get(id ksid.ID) T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if i, ok := t.byID[id]; ok {
		return t.rows[i].Clone()
	}
	var zero T
	return zero
}

// Iter returns an iterator over clones of rows with an ID greater than startID.
func (t *Table[T]) Iter(startID ksid.ID) iter.Seq[T] {
	return func(yield func(T) bool) {
		t.mu.RLock()
		snapshot := slices.Clone(t.rows)
		t.mu.RUnlock()
		for _, row := range snapshot {
			if row.GetID() <= startID {
				continue
			}
			if !yield(row.Clone()) {
				return
			}
		}
	}
}

// Append adds a new row to the table and persists it.
func (t *Table[T]) Append(row T) error {
	if row.GetID().IsZero() {
		return errRowIDRequired
	}
	if err := row.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("failed to marshal row: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.byID[row.GetID()]; ok {
		return errRowExists
	}

	var buf bytes.Buffer
	if st, err := os.Stat(t.path); err != nil || st.Size() == 0 {
		h, err := json.Marshal(&t.header)
		if err != nil {
			return fmt.Errorf("failed to marshal schema header: %w", err)
		}
		buf.Write(h)
		buf.WriteByte('\n')
	}
	buf.Write(data)
	buf.WriteByte('\n')

	f, err := os.OpenFile(t.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec // G302: table files are not secret
	if err != nil {
		return fmt.Errorf("failed to open table file for append: %w", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write row: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close table file: %w", err)
	}

	stored := row.Clone()
	// IDs are time-ordered so appends normally land at the end.
	i, _ := slices.BinarySearchFunc(t.rows, stored.GetID(), func(r T, id ksid.ID) int {
		switch rid := r.GetID(); {
		case rid < id:
			return -1
		case rid > id:
			return 1
		}
		return 0
	})
	t.rows = slices.Insert(t.rows, i, stored)
	if i == len(t.rows)-1 {
		t.byID[stored.GetID()] = i
	} else {
		t.reindex()
	}
	for _, o := range t.observers {
		o.OnAppend(stored)
	}
	return nil
}

// Modify applies fn to a copy of the row and persists the result.
//
// The write lock is held for the whole read-modify-write so concurrent
// Modify calls on the same table serialize.
func (t *Table[T]) Modify(id ksid.ID, fn func(T) error) (T, error) {
	var zero T
	t.mu.Lock()
	defer t.mu.Unlock()

	i, ok := t.byID[id]
	if !ok {
		return zero, ErrNotFound
	}
	prev := t.rows[i]
	curr := prev.Clone()
	if err := fn(curr); err != nil {
		return zero, err
	}
	if curr.GetID() != id {
		return zero, fmt.Errorf("modify must not change the row id")
	}
	if err := curr.Validate(); err != nil {
		return zero, err
	}
	t.rows[i] = curr
	if err := t.save(); err != nil {
		t.rows[i] = prev
		return zero, err
	}
	for _, o := range t.observers {
		o.OnUpdate(prev, curr)
	}
	return curr.Clone(), nil
}

// Delete removes the row with the given ID. It returns the deleted row.
func (t *Table[T]) Delete(id ksid.ID) (T, error) {
	var zero T
	t.mu.Lock()
	defer t.mu.Unlock()

	i, ok := t.byID[id]
	if !ok {
		return zero, ErrNotFound
	}
	prev := t.rows
	row := t.rows[i]
	t.rows = slices.Delete(slices.Clone(t.rows), i, i+1)
	if err := t.save(); err != nil {
		t.rows = prev
		return zero, err
	}
	t.reindex()
	for _, o := range t.observers {
		o.OnDelete(row)
	}
	return row, nil
}

// save rewrites the whole file atomically. Must be called with mu held.
func (t *Table[T]) save() error {
	var buf bytes.Buffer
	h, err := json.Marshal(&t.header)
	if err != nil {
		return fmt.Errorf("failed to marshal schema header: %w", err)
	}
	buf.Write(h)
	buf.WriteByte('\n')
	for _, row := range t.rows {
		data, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("failed to marshal row: %w", err)
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}
	return writeFileAtomic(t.path, buf.Bytes())
}

// writeFileAtomic writes data to a temporary file and renames it over path.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Chmod(name, 0o644); err != nil { //nolint:gosec // G302: table files are not secret
		_ = os.Remove(name)
		return err
	}
	if err := os.Rename(name, path); err != nil {
		_ = os.Remove(name)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
