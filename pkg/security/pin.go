package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
)

// PinLength is the number of digits in confirmation and reset PINs.
const PinLength = 6

var pinMax = big.NewInt(1000000)

// GeneratePin returns a zero-padded numeric PIN sourced from crypto/rand.
func GeneratePin() (string, error) {
	n, err := rand.Int(rand.Reader, pinMax)
	if err != nil {
		return "", fmt.Errorf("generate pin: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// HashPin returns the digest we persist instead of the raw PIN.
func HashPin(pin string) string {
	sum := sha256.Sum256([]byte(pin))
	return hex.EncodeToString(sum[:])
}

// VerifyPin compares the candidate PIN against a stored digest.
func VerifyPin(pin, digest string) bool {
	computed := HashPin(pin)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(digest)) == 1
}
