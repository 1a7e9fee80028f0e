package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// HashPassword will generate a password hash for an admin secret
func HashPassword(password string) (string, error) {
	return HashPasswordWithCost(password, passwordHashCost())
}

// HashPasswordWithCost is HashPassword with an explicit bcrypt cost
func HashPasswordWithCost(password string, cost int) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	return string(h), err
}

// ComparePasswordAndHash will validate the given cleartext
// password matches the hashed password
func ComparePasswordAndHash(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrInvalidCredentials
		}
		// malformed stored hashes never verify
		return withDetails(ErrInvalidCredentials, "", map[string]any{
			"reason": err.Error(),
		})
	}
	return nil
}

// RandomPasswordHash is a hash nobody knows the secret for, used to
// disable an admin row without deleting it.
func RandomPasswordHash() string {
	pwd := uuid.New()

	h, err := HashPassword(pwd.String())
	if err != nil {
		return RandomPasswordHash()
	}

	return h
}

// BcryptComparer verifies secrets stored as bcrypt hashes.
type BcryptComparer struct{}

func (BcryptComparer) Compare(secret, stored string) error {
	if secret == "" || stored == "" {
		return ErrInvalidCredentials
	}
	return ComparePasswordAndHash(secret, stored)
}

// PlaintextComparer verifies secrets stored in clear text. It exists for
// legacy admins rows and must be opted into with CredentialVerifier.WithComparer.
type PlaintextComparer struct{}

func (PlaintextComparer) Compare(secret, stored string) error {
	if secret == "" || stored == "" {
		return ErrInvalidCredentials
	}
	if subtle.ConstantTimeCompare([]byte(secret), []byte(stored)) != 1 {
		return ErrInvalidCredentials
	}
	return nil
}

func (BcryptComparer) String() string { return "bcrypt" }

func (PlaintextComparer) String() string { return "plaintext" }

// SecretComparerName names comparer for startup logs.
func SecretComparerName(comparer SecretComparer) string {
	switch c := comparer.(type) {
	case nil:
		return "none"
	case fmt.Stringer:
		return c.String()
	default:
		return fmt.Sprintf("%T", comparer)
	}
}

var (
	_ SecretComparer = BcryptComparer{}
	_ SecretComparer = PlaintextComparer{}
)
