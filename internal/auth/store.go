// Package auth stores the SALT API access token in the operating system
// keyring, so CLI invocations stay logged in between runs.
package auth

import (
	"errors"

	"github.com/zalando/go-keyring"
)

// service is the keyring service name under which the token is stored.
const service = "goastrosalt"

const tokenKey = "api-token"

// ErrTokenNotFound is returned when no token is stored.
var ErrTokenNotFound = errors.New("no stored API token; run `salt login` first")

// Store reads and writes the API access token.
type Store struct {
	service string
}

// NewStore returns a Store backed by the OS keyring.
func NewStore() *Store {
	return &Store{service: service}
}

// SetToken stores the access token.
func (s *Store) SetToken(token string) error {
	return keyring.Set(s.service, tokenKey, token)
}

// Token returns the stored access token, or ErrTokenNotFound.
func (s *Store) Token() (string, error) {
	token, err := keyring.Get(s.service, tokenKey)
	if err == nil {
		return token, nil
	}
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrTokenNotFound
	}
	return "", err
}

// DeleteToken removes the stored access token. Deleting a token that is not
// stored is not an error.
func (s *Store) DeleteToken() error {
	err := keyring.Delete(s.service, tokenKey)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}
