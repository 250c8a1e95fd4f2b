package dto

import "github.com/spec-kit/crm-access/internal/domain"

// RegisterRequest payload for new accounts.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest payload for login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserResponse is the public part of a user profile.
type UserResponse struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// LoginResponse is returned by a successful login. The token travels only in the cookie.
type LoginResponse struct {
	User        UserResponse `json:"user"`
	Roles       []string     `json:"roles"`
	Permissions []string     `json:"permissions"`
}

// RegisterResponse is returned by a successful registration.
type RegisterResponse struct {
	User UserResponse `json:"user"`
}

// NewUserResponse strips a view down to its public profile fields.
func NewUserResponse(view domain.UserView) UserResponse {
	return UserResponse{ID: view.ID, Name: view.Name, Email: view.Email}
}
