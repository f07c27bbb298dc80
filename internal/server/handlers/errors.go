// Maps failures to API errors for handlers that write their own responses.

package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/maruel/pantry/internal/pantry"
	"github.com/maruel/pantry/internal/server/dto"
)

// writeErrorResponse writes err as a JSON error response. It is for raw
// http.HandlerFunc handlers; wrapped handlers return their errors instead.
func writeErrorResponse(w http.ResponseWriter, err error) {
	ews := dto.AsError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(ews.StatusCode())
	if err := json.NewEncoder(w).Encode(dto.NewErrorResponse(ews)); err != nil {
		slog.Error("Failed to encode error response", "err", err)
	}
}

// inventoryError maps an inventory service error to an API error.
func inventoryError(err error) error {
	if errors.Is(err, pantry.ErrInvalidArgument) {
		return dto.BadRequest(err.Error())
	}
	return dto.StorageError(err)
}
