// Package auth checks login credentials against stored password hashes.
package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned for a wrong password. Callers report unknown
// users with the same error so the two cannot be told apart.
var ErrInvalidCredentials = errors.New("usuario ou senha inválidos")

// Verifier checks a plain password against a stored hash.
type Verifier interface {
	Verify(hash, password string) error
}

// Bcrypt verifies bcrypt hashes.
type Bcrypt struct{}

var _ Verifier = Bcrypt{}

func (Bcrypt) Verify(hash, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return ErrInvalidCredentials
	default:
		return fmt.Errorf("failed to verify password: %w", err)
	}
}

// HashPassword returns the bcrypt hash stored for a new account.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}
