package security

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"medius/internal/domain"
)

// PasscodeHasher guards the bridge login. Only the bcrypt hash of the
// passcode is ever configured.
type PasscodeHasher struct {
	cost int
}

func NewPasscodeHasher(cost int) *PasscodeHasher {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &PasscodeHasher{cost: cost}
}

// Hash produces the value to put in BRIDGE_PASSCODE_HASH.
func (h *PasscodeHasher) Hash(passcode string) (string, error) {
	if passcode == "" {
		return "", fmt.Errorf("%w: empty passcode", domain.ErrInvalidInput)
	}
	b, err := bcrypt.GenerateFromPassword([]byte(passcode), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash passcode: %w", err)
	}
	return string(b), nil
}

// Verify returns domain.ErrUnauthorized on a mismatch or when no hash is set.
func (h *PasscodeHasher) Verify(passcode, hashed string) error {
	if hashed == "" {
		return domain.ErrUnauthorized
	}
	err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(passcode))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return domain.ErrUnauthorized
	default:
		return fmt.Errorf("verify passcode: %w", err)
	}
}
