package dto

// --- Common Responses ---

// OkResponse is a simple success response.
type OkResponse struct {
	Ok bool `json:"ok"`
}

// HealthResponse reports the server status.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// --- Auth Responses ---

// UserResponse describes the signed-in user.
type UserResponse struct {
	ID        string   `json:"id"`
	Email     string   `json:"email"`
	Name      string   `json:"name"`
	Providers []string `json:"providers"`
	Created   string   `json:"created"`
}

// LogoutResponse is a response from signing out.
type LogoutResponse = OkResponse

// --- Item Responses ---

// ItemResponse is one displayed pantry item.
type ItemResponse struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Quantity    int64  `json:"quantity"`
}

// ListItemsResponse is the displayed pantry after a full reload.
type ListItemsResponse struct {
	Items  []ItemResponse `json:"items"`
	Search string         `json:"search,omitempty"`
	// Hidden counts stored items skipped because their quantity is malformed.
	Hidden int `json:"hidden,omitempty"`
}

// DecisionResponse describes what a mutation did to the stored item.
type DecisionResponse struct {
	Action   string `json:"action"`
	Quantity int64  `json:"quantity,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// MutationResponse is returned by every item mutation.
type MutationResponse struct {
	Decision DecisionResponse  `json:"decision"`
	View     ListItemsResponse `json:"view"`
}

// CommitResponse is one entry of the pantry history.
type CommitResponse struct {
	Hash        string `json:"hash"`
	Message     string `json:"message"`
	Author      string `json:"author"`
	AuthorEmail string `json:"author_email"`
	Date        string `json:"date"`
}

// HistoryResponse lists recent changes, newest first.
type HistoryResponse struct {
	Commits []CommitResponse `json:"commits"`
}

// --- Recipe Responses ---

// RecipesResponse carries recipe ideas and the items they were based on.
type RecipesResponse struct {
	Items       []string `json:"items"`
	Suggestions []string `json:"suggestions"`
}
