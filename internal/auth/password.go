package auth

import (
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/crypto/bcrypt"
)

// bcrypt ignores input past this length, and newer x/crypto releases reject it.
const bcryptMaxInput = 72

// PasswordHasher produces and checks one-way password digests.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, digest string) bool
}

type BcryptHasher struct {
	Cost int
}

func NewBcryptHasher() *BcryptHasher {
	return &BcryptHasher{Cost: bcrypt.DefaultCost}
}

func (h *BcryptHasher) Hash(password string) (string, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword(normalize(password), h.Cost)
	if err != nil {
		return "", err
	}

	return string(hashedPassword), nil
}

// Verify compares in constant time; a malformed digest simply fails.
func (h *BcryptHasher) Verify(password, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), normalize(password)) == nil
}

func normalize(password string) []byte {
	if len(password) <= bcryptMaxInput {
		return []byte(password)
	}
	sum := sha256.Sum256([]byte(password))
	return []byte(hex.EncodeToString(sum[:]))
}
