package models

// AdminUser is the subset of an administrator account the login guard needs.
// Credential storage lives outside this service.
type AdminUser struct {
	ID               string `json:"id"`
	Email            string `json:"email"`
	Name             string `json:"name"`
	Role             string `json:"role"`
	TwoFactorEnabled bool   `json:"twoFactorEnabled"`
}
