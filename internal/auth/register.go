package auth

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"jnanayoni/internal/models"
	"jnanayoni/internal/utils"
)

const minPasswordLen = 8

// Registration describes a new account.
type Registration struct {
	Email     string
	Name      string
	Password  string
	Role      models.Role
	LibraryID string
}

// Register validates reg, hashes its password and stores the user.
func (a *Authenticator) Register(ctx context.Context, reg Registration) (*models.User, error) {
	email := strings.TrimSpace(reg.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, utils.New(utils.ErrInvalid, "invalid email address")
	}
	name := strings.TrimSpace(reg.Name)
	if name == "" {
		return nil, utils.New(utils.ErrInvalid, "name is required")
	}
	if len(reg.Password) < minPasswordLen {
		return nil, utils.New(utils.ErrInvalid, fmt.Sprintf("password must be at least %d characters", minPasswordLen))
	}
	switch reg.Role {
	case models.RoleStudent:
		if reg.LibraryID != "" {
			return nil, utils.New(utils.ErrInvalid, "students are enrolled, not bound to a library")
		}
	case models.RoleLibraryAdmin:
		if reg.LibraryID == "" {
			return nil, utils.New(utils.ErrInvalid, "library admins need a library")
		}
	default:
		return nil, utils.New(utils.ErrInvalid, "unknown role")
	}

	hash, err := HashPassword(reg.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}
	user := &models.User{
		Email:        email,
		PasswordHash: hash,
		Role:         reg.Role,
		Name:         name,
		LibraryID:    reg.LibraryID,
	}
	if err := a.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}
