// Package credentials hashes and verifies passwords with bcrypt.
package credentials

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

type Store struct {
	cost      int
	dummyHash []byte
}

// New returns a Store hashing at cost. A dummy hash of the same cost is
// prepared so VerifyAbsent spends the same work as a real comparison.
func New(cost int) (*Store, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}

	dummy, err := bcrypt.GenerateFromPassword([]byte("carecrypt-dummy-password"), cost)
	if err != nil {
		return nil, fmt.Errorf("generate dummy hash: %w", err)
	}

	return &Store{cost: cost, dummyHash: dummy}, nil
}

func (s *Store) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func (s *Store) Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// VerifyAbsent burns one comparison against the dummy hash and always
// reports false. Login calls it when no user matched the identifier.
func (s *Store) VerifyAbsent(password string) bool {
	_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
	return false
}
