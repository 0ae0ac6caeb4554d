package connector

import (
	"crypto/subtle"

	"golang.org/x/crypto/bcrypt"
)

// Credentials is the single client account the connector accepts.
// PasswordHash (bcrypt) takes precedence over Password when set.
type Credentials struct {
	Username     string
	Password     string
	PasswordHash string
}

// Verify checks username and password without short-circuiting on the username.
func (c Credentials) Verify(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(c.Username)) == 1

	var passOK bool
	if c.PasswordHash != "" {
		passOK = bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(password)) == nil
	} else {
		passOK = subtle.ConstantTimeCompare([]byte(password), []byte(c.Password)) == 1
	}

	return userOK && passOK && c.Username != ""
}
