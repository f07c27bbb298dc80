package dto

// --- Health ---

// HealthRequest is a request to check server health.
type HealthRequest struct{}

// Validate is a no-op for HealthRequest.
func (r *HealthRequest) Validate() error {
	return nil
}

// --- Auth ---

// GetMeRequest is a request to get current user info.
type GetMeRequest struct{}

// Validate is a no-op for GetMeRequest.
func (r *GetMeRequest) Validate() error {
	return nil
}

// LogoutRequest is a request to revoke the current session.
type LogoutRequest struct{}

// Validate is a no-op for LogoutRequest.
func (r *LogoutRequest) Validate() error {
	return nil
}

// --- Items ---

// ListItemsRequest is a request to list the pantry.
type ListItemsRequest struct {
	// Query keeps items whose name contains it, ignoring case.
	Query string `json:"-" query:"q"`
}

// Validate is a no-op for ListItemsRequest.
func (r *ListItemsRequest) Validate() error {
	return nil
}

// AddItemRequest is a request to add units of an item, creating it if needed.
type AddItemRequest struct {
	Name string `json:"name"`
	// Quantity defaults to 1 when omitted.
	Quantity *int64 `json:"quantity,omitempty"`
	// Query filters the view returned with the result.
	Query string `json:"-" query:"q"`
}

// Validate validates the add item request fields.
func (r *AddItemRequest) Validate() error {
	if r.Name == "" {
		return MissingField("name")
	}
	if r.Quantity != nil && *r.Quantity <= 0 {
		return InvalidField("quantity", "quantity must be a positive integer")
	}
	return nil
}

// Delta returns the number of units to add.
func (r *AddItemRequest) Delta() int64 {
	if r.Quantity == nil {
		return 1
	}
	return *r.Quantity
}

// ItemRequest is a request acting on one item by name.
type ItemRequest struct {
	Name  string `json:"-" path:"name"`
	Query string `json:"-" query:"q"`
}

// Validate validates the item request fields.
func (r *ItemRequest) Validate() error {
	if r.Name == "" {
		return MissingField("name")
	}
	return nil
}

// HistoryRequest is a request for the recent changes of the pantry.
type HistoryRequest struct {
	Limit int `json:"-" query:"limit"`
}

// Validate validates the history request fields.
func (r *HistoryRequest) Validate() error {
	if r.Limit < 0 {
		return InvalidField("limit", "limit must not be negative")
	}
	return nil
}

// --- Recipes ---

// RecipesRequest is a request for recipe ideas based on the pantry.
type RecipesRequest struct{}

// Validate is a no-op for RecipesRequest.
func (r *RecipesRequest) Validate() error {
	return nil
}
