package domain

import "strings"

// RoleAdmin is the realm role required for catalog mutations.
const RoleAdmin = "admin"

// BookIDField is the store-assigned identifier column.
const BookIDField = "id"

// Book is one row of the books table: the store-assigned id plus whatever
// attribute columns the client supplied (title, author, price, ...).
type Book map[string]any

// ID returns the store-assigned identifier, or nil for an unsaved book.
func (b Book) ID() any {
	return b[BookIDField]
}

// Identity is the verified claim set of a single request.
type Identity struct {
	Subject string   `json:"sub"`
	Roles   []string `json:"roles"`
}

// HasRole reports whether role is present in the identity's role set.
// It is a plain membership test: no hierarchy and no wildcards.
func (i Identity) HasRole(role string) bool {
	role = strings.TrimSpace(role)
	if role == "" {
		return false
	}
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}
