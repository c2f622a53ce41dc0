package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	CodeDigits = 6
	codeSpace  = 1_000_000
)

// Generator produces one-time codes. GenerateCode is the production one.
type Generator func() (string, error)

// GenerateCode returns a uniformly distributed, zero-padded 6 digit code.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeSpace))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", CodeDigits, n.Int64()), nil
}
