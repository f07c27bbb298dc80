// Converts storage types to API responses.

package handlers

import (
	"time"

	"github.com/maruel/pantry/internal/pantry"
	"github.com/maruel/pantry/internal/server/dto"
	"github.com/maruel/pantry/internal/storage/git"
	"github.com/maruel/pantry/internal/storage/identity"
)

func userToResponse(u *identity.User) *dto.UserResponse {
	providers := make([]string, 0, len(u.OAuthIdentities))
	for _, oi := range u.OAuthIdentities {
		providers = append(providers, oi.Provider)
	}
	return &dto.UserResponse{
		ID:        u.ID.String(),
		Email:     u.Email,
		Name:      u.Name,
		Providers: providers,
		Created:   u.Created.AsTime().Format(time.RFC3339),
	}
}

func viewToResponse(v *pantry.View) dto.ListItemsResponse {
	items := make([]dto.ItemResponse, len(v.Items))
	for i, it := range v.Items {
		items[i] = dto.ItemResponse{Name: it.Name, DisplayName: it.DisplayName, Quantity: it.Quantity}
	}
	return dto.ListItemsResponse{Items: items, Search: v.Search, Hidden: v.Hidden}
}

func decisionToResponse(d pantry.Decision) dto.DecisionResponse {
	return dto.DecisionResponse{
		Action:   d.Action.String(),
		Quantity: d.Quantity,
		Reason:   string(d.Reason),
	}
}

func commitsToResponse(commits []*git.Commit) []dto.CommitResponse {
	out := make([]dto.CommitResponse, len(commits))
	for i, c := range commits {
		out[i] = dto.CommitResponse{
			Hash:        c.Hash,
			Message:     c.Message,
			Author:      c.Author,
			AuthorEmail: c.AuthorEmail,
			Date:        c.Date.UTC().Format(time.RFC3339),
		}
	}
	return out
}
