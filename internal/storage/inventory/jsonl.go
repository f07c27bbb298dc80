package inventory

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/maruel/pantry/internal/jsonldb"
	"github.com/maruel/pantry/internal/pantry"
)

// JSONL stores each scope as a jsonldb.Collection at <dir>/<collection>.jsonl.
type JSONL struct {
	dir string

	mu          sync.Mutex
	collections map[string]*jsonldb.Collection
}

// NewJSONL returns a gateway rooted at dir. Files are opened on first use.
func NewJSONL(dir string) *JSONL {
	return &JSONL{dir: dir, collections: map[string]*jsonldb.Collection{}}
}

// Path returns the file backing scope.
func (j *JSONL) Path(scope Scope) string {
	return filepath.Join(j.dir, filepath.FromSlash(scope.File()))
}

func (j *JSONL) collection(scope Scope) (*jsonldb.Collection, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	name := scope.Collection()
	if c, ok := j.collections[name]; ok {
		return c, nil
	}
	c, err := jsonldb.OpenCollection(j.Path(scope))
	if err != nil {
		return nil, err
	}
	j.collections[name] = c
	return c, nil
}

// List implements Gateway.
func (j *JSONL) List(ctx context.Context, scope Scope) ([]pantry.Item, error) {
	c, err := j.collection(scope)
	if err != nil {
		return nil, err
	}
	items := make([]pantry.Item, 0, c.Len())
	for d := range c.All() {
		items = append(items, pantry.Item{Name: d.Key, Quantity: pantry.ParseQuantity(d.Fields[quantityField])})
	}
	return items, nil
}

// Get implements Gateway.
func (j *JSONL) Get(ctx context.Context, scope Scope, name string) (pantry.Item, error) {
	c, err := j.collection(scope)
	if err != nil {
		return pantry.Item{}, err
	}
	d, ok := c.Get(name)
	if !ok {
		return pantry.Item{Name: name}, nil
	}
	return pantry.Item{Name: name, Quantity: pantry.ParseQuantity(d.Fields[quantityField])}, nil
}

// Put implements Gateway.
func (j *JSONL) Put(ctx context.Context, scope Scope, name string, quantity int64) error {
	c, err := j.collection(scope)
	if err != nil {
		return err
	}
	return c.Put(name, map[string]json.RawMessage{
		quantityField: json.RawMessage(strconv.FormatInt(quantity, 10)),
	})
}

// Delete implements Gateway.
func (j *JSONL) Delete(ctx context.Context, scope Scope, name string) error {
	c, err := j.collection(scope)
	if err != nil {
		return err
	}
	_, err = c.Delete(name)
	return err
}

// Close implements Gateway. Collections hold no open file.
func (j *JSONL) Close() error {
	return nil
}
