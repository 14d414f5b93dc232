package auth

import (
	"crypto/subtle"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"trafficwatch/internal/support"
)

const RoleOperator = "operator"

var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// Operator is the single account allowed to obtain tokens.
type Operator struct {
	Username     string
	PasswordHash []byte
}

func OperatorFromEnv() Operator {
	return Operator{
		Username:     support.GetEnv("AUTH_USERNAME", "admin"),
		PasswordHash: []byte(support.GetEnv("AUTH_PASSWORD_HASH", "")),
	}
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Verify checks the credentials. An operator without a hash rejects everyone.
func (o Operator) Verify(username, password string) error {
	if len(o.PasswordHash) == 0 {
		return ErrInvalidCredentials
	}

	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(o.Username)) == 1
	passErr := bcrypt.CompareHashAndPassword(o.PasswordHash, []byte(password))
	if !userOK || passErr != nil {
		return ErrInvalidCredentials
	}
	return nil
}
