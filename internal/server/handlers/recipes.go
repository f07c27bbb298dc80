package handlers

import (
	"context"

	"github.com/maruel/pantry/internal/advisor"
	"github.com/maruel/pantry/internal/server/dto"
	"github.com/maruel/pantry/internal/storage/identity"
)

// RecipeHandler suggests recipes from the pantry content.
type RecipeHandler struct {
	svc *Services
	cfg *Config
}

// NewRecipeHandler creates a new recipe handler.
func NewRecipeHandler(svc *Services, cfg *Config) *RecipeHandler {
	return &RecipeHandler{svc: svc, cfg: cfg}
}

// Suggest asks the advisor for recipes using the first items of the pantry.
// Advisor failures yield an empty suggestion list, never an error.
func (h *RecipeHandler) Suggest(ctx context.Context, user *identity.User, _ *dto.RecipesRequest) (*dto.RecipesResponse, error) {
	names, err := h.svc.Inventory.Names(ctx, h.cfg.ScopeFor(user))
	if err != nil {
		return nil, inventoryError(err)
	}
	if len(names) > advisor.MaxItems {
		names = names[:advisor.MaxItems]
	}
	return &dto.RecipesResponse{Items: names, Suggestions: h.svc.Advisor.Suggest(ctx, names)}, nil
}
