package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// Hasher is the one-way hash/verify capability required for stored secrets.
// The default is bcrypt; tests substitute cheaper implementations.
type Hasher interface {
	Hash(secret string) (string, error)
	Verify(secret, digest string) bool
}

// BcryptHasher implements Hasher using bcrypt at the default cost.
type BcryptHasher struct{}

func (BcryptHasher) Hash(secret string) (string, error) {
	return HashPassword(secret)
}

func (BcryptHasher) Verify(secret, digest string) bool {
	return VerifyPassword(digest, secret) == nil
}

// HashPassword hashes a plaintext password using bcrypt.
func HashPassword(password string) (string, error) {
	if len(password) == 0 {
		return "", errors.New("password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword compares a plaintext password with the stored hash.
func VerifyPassword(hash, password string) error {
	if hash == "" {
		return errors.New("password hash is empty")
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}
