package orders

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const verificationCodeSpace = 10000

// NewVerificationCode returns a zero-padded 4 digit code.
func NewVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(verificationCodeSpace))
	if err != nil {
		return "", fmt.Errorf("verification code: %w", err)
	}
	return fmt.Sprintf("%04d", n.Int64()), nil
}
