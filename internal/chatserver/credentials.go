package chatserver

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// CredentialVerifier checks a presented credential against a stored
// account and produces replacement credentials when a legacy account
// passes verification.
type CredentialVerifier interface {
	// Verify reports whether presented matches the account's stored
	// credential.
	Verify(acct Account, presented string) bool
	// Migrate derives a fresh salt and credential hash from the password
	// a legacy account just authenticated with.
	Migrate(password string) (salt, hash string, err error)
}

// StandardVerifier implements the production credential scheme. Salted
// accounts store the client-derived hash verbatim and are compared in
// constant time. Legacy accounts (empty salt) store a bcrypt hash of
// the plaintext password; the client sends the password itself for
// those, and the account is migrated to the salted scheme on success.
type StandardVerifier struct{}

func (StandardVerifier) Verify(acct Account, presented string) bool {
	if acct.Salt == "" {
		return bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(presented)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(acct.PasswordHash), []byte(presented)) == 1
}

func (StandardVerifier) Migrate(password string) (string, string, error) {
	salt, err := newSalt()
	if err != nil {
		return "", "", err
	}
	return salt, HashCredentials(salt, password), nil
}

// HashCredentials derives the stored credential hash from a salt and
// password. Clients compute the same value, so for salted accounts the
// password never crosses the wire.
func HashCredentials(salt, password string) string {
	sum := sha256.Sum256([]byte(salt + password))
	return hex.EncodeToString(sum[:])
}

func newSalt() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}
	return hex.EncodeToString(b[:]), nil
}
