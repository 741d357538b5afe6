package auth

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Identity represents the authenticated caller resolved for a single request
type Identity struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// IsAdmin reports whether the identity carries the only privileged role
func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == RoleAdmin
}

// RoleOrDefault maps a missing role record to the default role
func RoleOrDefault(role string) string {
	if role == "" {
		return RoleUser
	}
	return role
}
