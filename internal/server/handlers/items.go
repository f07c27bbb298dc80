// Handles the pantry list and its mutations.

package handlers

import (
	"context"
	"log/slog"
	"path"

	"github.com/maruel/pantry/internal/pantry"
	"github.com/maruel/pantry/internal/server/dto"
	"github.com/maruel/pantry/internal/storage/identity"
	"github.com/maruel/pantry/internal/storage/inventory"
)

// ItemHandler serves the signed-in user's pantry.
//
// Every mutation answers with a full reload of the list rather than a patch
// of the changed item.
type ItemHandler struct {
	svc *Services
	cfg *Config
}

// NewItemHandler creates a new item handler.
func NewItemHandler(svc *Services, cfg *Config) *ItemHandler {
	return &ItemHandler{svc: svc, cfg: cfg}
}

// ListItems returns the pantry filtered by the optional query.
func (h *ItemHandler) ListItems(ctx context.Context, user *identity.User, req *dto.ListItemsRequest) (*dto.ListItemsResponse, error) {
	v, err := h.svc.Inventory.List(ctx, h.cfg.ScopeFor(user), req.Query)
	if err != nil {
		return nil, inventoryError(err)
	}
	resp := viewToResponse(v)
	return &resp, nil
}

// AddItem adds quantity units of an item, creating it when missing.
func (h *ItemHandler) AddItem(ctx context.Context, user *identity.User, req *dto.AddItemRequest) (*dto.MutationResponse, error) {
	scope := h.cfg.ScopeFor(user)
	d, err := h.svc.Inventory.Add(ctx, scope, req.Name, req.Delta())
	if err != nil {
		return nil, inventoryError(err)
	}
	return h.mutationResponse(ctx, scope, d, req.Query)
}

// IncrementItem adds one unit of an item.
func (h *ItemHandler) IncrementItem(ctx context.Context, user *identity.User, req *dto.ItemRequest) (*dto.MutationResponse, error) {
	scope := h.cfg.ScopeFor(user)
	d, err := h.svc.Inventory.Add(ctx, scope, req.Name, 1)
	if err != nil {
		return nil, inventoryError(err)
	}
	return h.mutationResponse(ctx, scope, d, req.Query)
}

// DecrementItem removes one unit of an item. Unknown and protected items are
// left alone and reported in the decision.
func (h *ItemHandler) DecrementItem(ctx context.Context, user *identity.User, req *dto.ItemRequest) (*dto.MutationResponse, error) {
	scope := h.cfg.ScopeFor(user)
	d, err := h.svc.Inventory.Remove(ctx, scope, req.Name)
	if err != nil {
		return nil, inventoryError(err)
	}
	return h.mutationResponse(ctx, scope, d, req.Query)
}

func (h *ItemHandler) mutationResponse(ctx context.Context, scope inventory.Scope, d pantry.Decision, query string) (*dto.MutationResponse, error) {
	v, err := h.svc.Inventory.List(ctx, scope, query)
	if err != nil {
		// The mutation is persisted; only the reload failed.
		slog.ErrorContext(ctx, "Failed to reload pantry", "scope", scope, "err", err)
		return nil, inventoryError(err)
	}
	return &dto.MutationResponse{Decision: decisionToResponse(d), View: viewToResponse(v)}, nil
}

// History lists recent changes to the user's pantry file.
func (h *ItemHandler) History(ctx context.Context, user *identity.User, req *dto.HistoryRequest) (*dto.HistoryResponse, error) {
	if h.svc.History == nil {
		return nil, dto.NotFound("history")
	}
	file := path.Join(h.cfg.HistoryPrefix, h.cfg.ScopeFor(user).File())
	commits, err := h.svc.History.History(ctx, file, req.Limit)
	if err != nil {
		return nil, dto.InternalWithError("Failed to read history", err)
	}
	return &dto.HistoryResponse{Commits: commitsToResponse(commits)}, nil
}
