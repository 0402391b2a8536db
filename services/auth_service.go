package services

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// AuthService checks operator credentials. User identity provisioning is
// external to this service; the console runs with a single operator
// account configured through the environment.
type AuthService interface {
	Login(ctx context.Context, email, password string) error
}

type authService struct {
	adminEmail        string
	adminPasswordHash string
}

func NewAuthService(adminEmail, adminPasswordHash string) AuthService {
	return &authService{
		adminEmail:        adminEmail,
		adminPasswordHash: adminPasswordHash,
	}
}

func (s *authService) Login(_ context.Context, email, password string) error {
	if email != s.adminEmail {
		// Burn a comparison anyway so a wrong email costs the same as a
		// wrong password.
		_ = bcrypt.CompareHashAndPassword([]byte(s.adminPasswordHash), []byte(password))
		return ErrAuthInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.adminPasswordHash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrAuthInvalidCredentials
		}
		return fmt.Errorf("failed to compare password hash: %w", err)
	}
	return nil
}
