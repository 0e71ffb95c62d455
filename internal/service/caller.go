package service

import "enrollment-service/internal/models"

// Caller is the authenticated principal behind a request
type Caller struct {
	UserID string
	Role   string
}

func (c Caller) IsAdmin() bool {
	return c.Role == models.RoleAdmin
}

// CanActFor reports whether the caller may act on userID's behalf
func (c Caller) CanActFor(userID string) bool {
	return c.IsAdmin() || (c.UserID != "" && c.UserID == userID)
}
