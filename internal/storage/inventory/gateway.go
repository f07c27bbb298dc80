// Package inventory persists pantry items and applies reconciler decisions.
//
// A Gateway is the raw document store; Service is the read, reconcile, write
// loop on top of it. No transaction spans the read and the write: two
// concurrent mutations of the same item race and the last write wins.
package inventory

import (
	"context"
	"strings"

	"github.com/maruel/ksid"
	"github.com/maruel/pantry/internal/pantry"
)

// Scope selects the collection an operation applies to.
type Scope struct {
	user ksid.ID
}

// Global is the single shared collection.
func Global() Scope {
	return Scope{}
}

// User is the collection private to one user.
func User(id ksid.ID) Scope {
	return Scope{user: id}
}

// IsGlobal reports whether the scope is the shared collection.
func (s Scope) IsGlobal() bool {
	return s.user.IsZero()
}

// Collection returns the slash separated collection name, e.g.
// "inventory" or "users/<id>/inventory".
func (s Scope) Collection() string {
	if s.IsGlobal() {
		return "inventory"
	}
	return strings.Join([]string{"users", s.user.String(), "inventory"}, "/")
}

// File returns the slash separated path of the JSONL file holding the scope,
// relative to the store directory.
func (s Scope) File() string {
	return s.Collection() + ".jsonl"
}

func (s Scope) String() string {
	return s.Collection()
}

// Gateway is the item store contract.
//
// Names are used verbatim as document keys.
type Gateway interface {
	// List returns every record of the scope, malformed ones included, in no
	// particular order.
	List(ctx context.Context, scope Scope) ([]pantry.Item, error)
	// Get returns the record for name. The quantity is Absent when there is
	// no record.
	Get(ctx context.Context, scope Scope, name string) (pantry.Item, error)
	// Put upserts the quantity field and keeps any other field.
	Put(ctx context.Context, scope Scope, name string, quantity int64) error
	// Delete removes the record. Deleting a missing record is not an error.
	Delete(ctx context.Context, scope Scope, name string) error
	Close() error
}

const quantityField = "quantity"
