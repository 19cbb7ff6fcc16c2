package crypto

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// MinCost is the lowest bcrypt cost accepted for stored admin hashes.
const MinCost = bcrypt.DefaultCost

// HashPassword hashes plain with bcrypt. Costs below MinCost are raised to it.
func HashPassword(plain string, cost int) ([]byte, error) {
	if cost < MinCost {
		cost = MinCost
	}
	return bcrypt.GenerateFromPassword([]byte(plain), cost)
}

// ComparePassword compares plain to a bcrypt hash.
func ComparePassword(hash []byte, plain string) error {
	return bcrypt.CompareHashAndPassword(hash, []byte(plain))
}

// CheckHash reports the cost of a bcrypt hash, or an error when hash is not
// one.
func CheckHash(hash string) (int, error) {
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return 0, fmt.Errorf("not a bcrypt hash: %w", err)
	}
	return cost, nil
}
