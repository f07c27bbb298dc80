// Builds the list view returned after every full reload.

package pantry

import (
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Item is one record of a pantry collection as read from the store.
type Item struct {
	Name     string
	Quantity StoredQuantity
}

// ViewItem is an item as shown to the user.
type ViewItem struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Quantity    int64  `json:"quantity"`
}

// View is the pantry list after filtering.
type View struct {
	Items  []ViewItem `json:"items"`
	Search string     `json:"search,omitempty"`
	// Hidden counts records skipped because their quantity is malformed.
	Hidden int `json:"hidden,omitempty"`
}

// NewView filters items down to well-formed records matching search and sorts
// them by name.
func NewView(items []Item, search string) *View {
	v := &View{Items: []ViewItem{}, Search: search}
	for _, it := range items {
		q, ok := it.Quantity.Value()
		if !ok {
			if it.Quantity.IsMalformed() {
				v.Hidden++
			}
			continue
		}
		if !Matches(it.Name, search) {
			continue
		}
		v.Items = append(v.Items, ViewItem{Name: it.Name, DisplayName: DisplayName(it.Name), Quantity: q})
	}
	slices.SortFunc(v.Items, func(a, b ViewItem) int { return strings.Compare(a.Name, b.Name) })
	return v
}

// Matches reports whether name contains search, ignoring case.
func Matches(name, search string) bool {
	return strings.Contains(strings.ToLower(name), strings.ToLower(search))
}

// DisplayName upper-cases the first letter of name.
func DisplayName(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError {
		return name
	}
	return string(unicode.ToUpper(r)) + name[size:]
}
