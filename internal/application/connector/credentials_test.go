package connector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestCredentials_Verify(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hashed-secret"), bcrypt.MinCost)
	require.NoError(t, err)

	plain := Credentials{Username: "admin", Password: "password"}
	hashed := Credentials{Username: "admin", Password: "ignored", PasswordHash: string(hash)}

	tests := []struct {
		name     string
		creds    Credentials
		username string
		password string
		want     bool
	}{
		{"plaintext match", plain, "admin", "password", true},
		{"plaintext wrong password", plain, "admin", "nope", false},
		{"plaintext wrong user", plain, "root", "password", false},
		{"case sensitive user", plain, "Admin", "password", false},
		{"hash match", hashed, "admin", "hashed-secret", true},
		{"hash ignores plaintext", hashed, "admin", "ignored", false},
		{"empty configured user", Credentials{Password: "x"}, "", "x", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.creds.Verify(tt.username, tt.password))
		})
	}
}
