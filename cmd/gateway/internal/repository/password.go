package repository

import (
	"golang.org/x/crypto/bcrypt"

	"github.com/shubham-shewale/stock-ticker/pkg/models"
)

// MaxSecretBytes is the longest secret bcrypt reads in full; anything past
// it would be silently ignored.
const MaxSecretBytes = 72

// Hasher turns secrets into bcrypt verifiers.
type Hasher struct {
	Cost int
}

func (h Hasher) Hash(secret string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (h Hasher) Verify(identity *models.Identity, secret string) bool {
	if identity == nil || identity.Verifier == "" || len(secret) > MaxSecretBytes {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(identity.Verifier), []byte(secret)) == nil
}
