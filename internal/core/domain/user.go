package domain

import "time"

type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleCustomer Role = "CUSTOMER"
	RoleCourier  Role = "COURIER"
)

// User models an actor known to the service. Accounts are normally created
// by the identity service; shell accounts are created here for recipients
// that have never signed up.
type User struct {
	ID                   string    `json:"id"`
	Email                string    `json:"email"`
	Name                 string    `json:"name"`
	Phone                string    `json:"phone,omitempty"`
	Role                 Role      `json:"role"`
	PasswordHash         string    `json:"-"`
	NotificationsEnabled bool      `json:"notifications_enabled"`
	IsShell              bool      `json:"is_shell"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}
