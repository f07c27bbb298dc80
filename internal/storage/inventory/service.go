package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"unicode/utf8"

	"github.com/maruel/pantry/internal/pantry"
)

// Service applies add and remove requests to a Gateway.
type Service struct {
	gw            Gateway
	maxNameLength int
}

// NewService returns a service writing to gw. maxNameLength of 0 disables
// the name length check.
func NewService(gw Gateway, maxNameLength int) *Service {
	return &Service{gw: gw, maxNameLength: maxNameLength}
}

// ValidateName rejects names the store must never see.
func (s *Service) ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: item name is required", pantry.ErrInvalidArgument)
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("%w: item name is not valid UTF-8", pantry.ErrInvalidArgument)
	}
	if s.maxNameLength > 0 && len(name) > s.maxNameLength {
		return fmt.Errorf("%w: item name is longer than %d bytes", pantry.ErrInvalidArgument, s.maxNameLength)
	}
	return nil
}

// Add increments name by delta, creating the item when missing.
func (s *Service) Add(ctx context.Context, scope Scope, name string, delta int64) (pantry.Decision, error) {
	if err := s.ValidateName(name); err != nil {
		return pantry.Decision{}, err
	}
	if delta <= 0 {
		return pantry.Decision{}, fmt.Errorf("%w: quantity must be positive, got %d", pantry.ErrInvalidArgument, delta)
	}
	cur, err := s.gw.Get(ctx, scope, name)
	if err != nil {
		return pantry.Decision{}, err
	}
	q, err := pantry.ApplyIncrement(cur.Quantity, delta)
	if err != nil {
		return pantry.Decision{}, err
	}
	if cur.Quantity.IsMalformed() {
		slog.WarnContext(ctx, "Replacing malformed quantity", "scope", scope, "name", name, "raw", cur.Quantity.Raw())
	}
	if err := s.gw.Put(ctx, scope, name, q); err != nil {
		return pantry.Decision{}, err
	}
	return pantry.Decision{Action: pantry.Set, Quantity: q}, nil
}

// Remove decrements name by one. Items reaching zero are deleted.
func (s *Service) Remove(ctx context.Context, scope Scope, name string) (pantry.Decision, error) {
	if err := s.ValidateName(name); err != nil {
		return pantry.Decision{}, err
	}
	cur, err := s.gw.Get(ctx, scope, name)
	if err != nil {
		return pantry.Decision{}, err
	}
	d := pantry.ApplyDecrement(cur.Quantity, name)
	switch d.Action {
	case pantry.Set:
		err = s.gw.Put(ctx, scope, name, d.Quantity)
	case pantry.Delete:
		err = s.gw.Delete(ctx, scope, name)
	default:
		slog.InfoContext(ctx, "Decrement skipped", "scope", scope, "name", name, "reason", d.Reason)
	}
	if err != nil {
		return pantry.Decision{}, err
	}
	return d, nil
}

// List returns the view of the scope filtered by search.
func (s *Service) List(ctx context.Context, scope Scope, search string) (*pantry.View, error) {
	items, err := s.gw.List(ctx, scope)
	if err != nil {
		return nil, err
	}
	v := pantry.NewView(items, search)
	if v.Hidden > 0 {
		slog.DebugContext(ctx, "Hiding malformed items", "scope", scope, "count", v.Hidden)
	}
	return v, nil
}

// Names returns the names of well-formed items in view order.
func (s *Service) Names(ctx context.Context, scope Scope) ([]string, error) {
	v, err := s.List(ctx, scope, "")
	if err != nil {
		return nil, err
	}
	names := make([]string, len(v.Items))
	for i, it := range v.Items {
		names[i] = it.Name
	}
	return names, nil
}

// Seed creates the items that do not exist yet. Existing items, malformed
// ones included, are left untouched. It returns the number of items created.
func (s *Service) Seed(ctx context.Context, scope Scope, items map[string]int64) (int, error) {
	n := 0
	for _, name := range slices.Sorted(maps.Keys(items)) {
		q := items[name]
		if err := s.ValidateName(name); err != nil {
			return n, err
		}
		if q <= 0 {
			return n, fmt.Errorf("%w: seed quantity for %q must be positive", pantry.ErrInvalidArgument, name)
		}
		cur, err := s.gw.Get(ctx, scope, name)
		if err != nil {
			return n, err
		}
		if !cur.Quantity.IsAbsent() {
			continue
		}
		if err := s.gw.Put(ctx, scope, name, q); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
