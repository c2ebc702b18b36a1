package patternstore

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// deleteTokenBytes is the entropy of a delete token before hex encoding.
const deleteTokenBytes = 24

func newToken() (string, error) {
	b := make([]byte, deleteTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate delete token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// hashToken wraps bcrypt.GenerateFromPassword for delete token storage.
func hashToken(token string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), cost)
	if err != nil {
		return "", fmt.Errorf("hash delete token: %w", err)
	}
	return string(hash), nil
}

// verifyToken wraps bcrypt.CompareHashAndPassword for delete checks.
func verifyToken(hash, token string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) == nil
}
