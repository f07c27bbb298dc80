// Implements key-addressed document collections with free-form fields.

package jsonldb

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
)

var errKeyRequired = errors.New("document key is required")

// Document is one record of a Collection.
//
// Fields hold raw JSON values; no type is imposed on them.
type Document struct {
	Key    string                     `json:"key"`
	Fields map[string]json.RawMessage `json:"fields"`
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() Document {
	c := Document{Key: d.Key, Fields: make(map[string]json.RawMessage, len(d.Fields))}
	for k, v := range d.Fields {
		c.Fields[k] = slices.Clone(v)
	}
	return c
}

// Collection stores documents keyed by an arbitrary string in a JSONL file.
//
// Keys are used verbatim: no case folding or trimming is applied.
type Collection struct {
	path string
	mu   sync.RWMutex
	docs map[string]*Document
}

// OpenCollection loads the collection stored at path. A missing file is an
// empty collection; the file is only created on the first write.
func OpenCollection(path string) (*Collection, error) {
	c := &Collection{path: path, docs: make(map[string]*Document)}
	if err := c.load(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Collection) load() error {
	f, err := os.Open(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open collection %s: %w", c.path, err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var d Document
		if err := json.Unmarshal(line, &d); err != nil {
			return fmt.Errorf("failed to unmarshal document %s:%d: %w", c.path, lineNo, err)
		}
		if d.Key == "" {
			return fmt.Errorf("%s:%d: %w", c.path, lineNo, errKeyRequired)
		}
		if d.Fields == nil {
			d.Fields = map[string]json.RawMessage{}
		}
		// Later lines win, so a file can be repaired by appending.
		c.docs[d.Key] = &d
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read collection %s: %w", c.path, err)
	}
	return nil
}

// Path returns the file backing the collection.
func (c *Collection) Path() string {
	return c.path
}

// Len returns the number of documents.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.docs)
}

// Get returns a copy of the document with the given key.
func (c *Collection) Get(key string) (Document, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.docs[key]
	if !ok {
		return Document{}, false
	}
	return d.Clone(), true
}

// All returns an iterator over copies of all documents, sorted by key.
func (c *Collection) All() iter.Seq[Document] {
	return func(yield func(Document) bool) {
		c.mu.RLock()
		docs := make([]Document, 0, len(c.docs))
		for _, key := range slices.Sorted(maps.Keys(c.docs)) {
			docs = append(docs, c.docs[key].Clone())
		}
		c.mu.RUnlock()
		for _, d := range docs {
			if !yield(d) {
				return
			}
		}
	}
}

// Put merges fields into the document with the given key, creating it if
// needed. Fields not named in fields are preserved.
func (c *Collection) Put(key string, fields map[string]json.RawMessage) error {
	if key == "" {
		return errKeyRequired
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	prev, existed := c.docs[key]
	next := &Document{Key: key, Fields: map[string]json.RawMessage{}}
	if existed {
		n := prev.Clone()
		next = &n
	}
	for k, v := range fields {
		next.Fields[k] = slices.Clone(v)
	}
	c.docs[key] = next
	if err := c.save(); err != nil {
		if existed {
			c.docs[key] = prev
		} else {
			delete(c.docs, key)
		}
		return err
	}
	return nil
}

// Delete removes the document with the given key. Deleting a missing key is
// not an error. It reports whether a document was removed.
func (c *Collection) Delete(key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev, ok := c.docs[key]
	if !ok {
		return false, nil
	}
	delete(c.docs, key)
	if err := c.save(); err != nil {
		c.docs[key] = prev
		return false, err
	}
	return true, nil
}

// save rewrites the collection file. Must be called with mu held.
func (c *Collection) save() error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return fmt.Errorf("failed to create directory for %s: %w", c.path, err)
	}
	var buf bytes.Buffer
	for _, key := range slices.Sorted(maps.Keys(c.docs)) {
		data, err := json.Marshal(c.docs[key])
		if err != nil {
			return fmt.Errorf("failed to marshal document %q: %w", key, err)
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}
	return writeFileAtomic(c.path, buf.Bytes())
}
