package enforcement

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// DefaultPasswordLength is the length of generated panel passwords.
const DefaultPasswordLength = 10

// GeneratePassword returns n random lowercase hex characters.
func GeneratePassword(n int) (string, error) {
	if n <= 0 {
		n = DefaultPasswordLength
	}
	buf := make([]byte, (n+1)/2)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate password: %w", err)
	}
	return hex.EncodeToString(buf)[:n], nil
}
