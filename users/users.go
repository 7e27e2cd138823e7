package users

import "time"

// RoleType represents a dashboard user role as reported by the backend
type RoleType string

const (
	RoleAdmin    RoleType = "admin"    // Full dashboard access, user management
	RoleOperator RoleType = "operador" // Booking operator, lands on the calendar view
	RoleSeller   RoleType = "vendedor" // Sales agent
)

// User is the current-user snapshot returned by GET /users/me.
// It is cached alongside the token pair so the dashboard can render the
// header and restore route guards across reloads without re-fetching.
type User struct {
	ID          int64     `json:"id,omitempty"`
	Email       string    `json:"email,omitempty"`
	FullName    string    `json:"full_name,omitempty"`
	Role        RoleType  `json:"role,omitempty"`
	SalesCount  int       `json:"sales_count"`
	IsActive    bool      `json:"is_active"`
	IsSuperuser bool      `json:"is_superuser"`
	Avatar      string    `json:"avatar,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

// IsAdmin reports whether the user can manage other users and settings
func (u *User) IsAdmin() bool {
	if u == nil {
		return false
	}
	return u.IsSuperuser || u.Role == RoleAdmin
}

// IsOperator reports whether the user is a booking operator
func (u *User) IsOperator() bool {
	return u != nil && u.Role == RoleOperator
}
