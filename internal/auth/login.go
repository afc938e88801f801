package auth

import (
	"context"
	"errors"
	"fmt"

	"jnanayoni/internal/models"
	"jnanayoni/internal/utils"
)

// ErrInvalidCredentials is returned for an unknown email, a wrong password or a role mismatch.
var ErrInvalidCredentials = errors.New("invalid credentials")

// UserStore is the subset of the repository the authenticator needs.
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, u *models.User) error
}

// Authenticator checks credentials against stored users.
type Authenticator struct {
	users     UserStore
	dummyHash string
}

// NewAuthenticator returns an Authenticator backed by users.
func NewAuthenticator(users UserStore) (*Authenticator, error) {
	dummy, err := HashPassword("jnanayoni-placeholder")
	if err != nil {
		return nil, fmt.Errorf("hashing placeholder: %w", err)
	}
	return &Authenticator{users: users, dummyHash: dummy}, nil
}

// Login verifies email and password for a user holding role.
func (a *Authenticator) Login(ctx context.Context, email, password string, role models.Role) (*models.User, error) {
	user, err := a.users.GetUserByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, utils.ErrNotFound) {
			return nil, err
		}
		// Compare anyway so unknown emails take as long as known ones.
		CheckPasswordHash(password, a.dummyHash)
		return nil, ErrInvalidCredentials
	}
	if !CheckPasswordHash(password, user.PasswordHash) || user.Role != role {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}
