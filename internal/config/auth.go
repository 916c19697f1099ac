package config

import (
	"crypto/subtle"

	"golang.org/x/crypto/bcrypt"
)

func VerifyAuth(username, password string) bool {
	if username == "" {
		return false
	}
	auth := Get().GetAuth()
	if auth == nil {
		return false
	}
	if username != auth.Username {
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(auth.Password), []byte(password))
	return err == nil
}

// VerifyToken compares a presented API token against the configured one.
func VerifyToken(token string) bool {
	auth := Get().GetAuth()
	if auth == nil || auth.APIToken == "" || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(auth.APIToken)) == 1
}

// HashPassword returns the bcrypt hash to store for a plaintext password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
