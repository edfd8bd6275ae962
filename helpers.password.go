package main

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Supported password hashing schemes.
const (
	SHA256Hasher = "sha256"
	BcryptHasher = "bcrypt"
)

var (
	_ PasswordHasher = (*sha256Hasher)(nil)
	_ PasswordHasher = (*bcryptHasher)(nil)
	_ TokenGenerator = (*RandomTokenGenerator)(nil)
)

// PasswordHasher hashes and verifies user passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(hash, password string) bool
}

// NewPasswordHasher returns the hasher matching the auth configuration.
func NewPasswordHasher(config AuthConfig) (PasswordHasher, error) {
	switch config.PasswordHasher {
	case "", SHA256Hasher:
		return &sha256Hasher{}, nil
	case BcryptHasher:
		cost := config.BcryptCost
		if cost == 0 {
			cost = bcrypt.DefaultCost
		}
		if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
			return nil, fmt.Errorf("bcrypt cost %d out of range [%d-%d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
		}
		return &bcryptHasher{cost: cost}, nil
	}
	return nil, fmt.Errorf("unsupported password hasher %q", config.PasswordHasher)
}

// sha256Hasher produces a single unsalted hex encoded sha256 digest.
type sha256Hasher struct{}

func (h *sha256Hasher) Hash(password string) (string, error) {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:]), nil
}

func (h *sha256Hasher) Verify(hash, password string) bool {
	expected, _ := h.Hash(password)
	return subtle.ConstantTimeCompare([]byte(hash), []byte(expected)) == 1
}

// bcryptHasher runs bcrypt over the hex sha256 digest of the password.
// bcrypt rejects inputs over 72 bytes and the digest is always 64.
type bcryptHasher struct {
	cost int
}

func prehash(password string) []byte {
	sum := sha256.Sum256([]byte(password))
	digest := make([]byte, hex.EncodedLen(len(sum)))
	hex.Encode(digest, sum[:])
	return digest
}

func (h *bcryptHasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword(prehash(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func (h *bcryptHasher) Verify(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), prehash(password)) == nil
}

// TokenGenerator provides opaque access tokens.
type TokenGenerator interface {
	Generate() (string, error)
}

// RandomTokenGenerator returns url-safe base64 encoded random bytes.
type RandomTokenGenerator struct {
	size int
}

func NewRandomTokenGenerator(size int) *RandomTokenGenerator {
	return &RandomTokenGenerator{size: size}
}

func (g *RandomTokenGenerator) Generate() (string, error) {
	b := make([]byte, g.size)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
