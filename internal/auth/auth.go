// Package auth loads the bearer credentials used against the dashboard backend.
package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

var (
	// ErrNoCredentials is returned when neither a token nor a token file is configured.
	ErrNoCredentials = errors.New("no credentials configured")

	// ErrEmptyToken is returned when the token file holds only whitespace.
	ErrEmptyToken = errors.New("token file is empty")
)

// Credentials holds the bearer token for API requests and channel authorization.
type Credentials struct {
	token  string
	Source string // "config" or the token file path
}

// LoadCredentials loads credentials from an inline token or a token file path.
// The inline token takes precedence.
func LoadCredentials(token, tokenPath string) (*Credentials, error) {
	if token = strings.TrimSpace(token); token != "" {
		return &Credentials{token: token, Source: "config"}, nil
	}
	if tokenPath == "" {
		return nil, ErrNoCredentials
	}

	token, err := LoadToken(tokenPath)
	if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}

	return &Credentials{token: token, Source: tokenPath}, nil
}

// LoadToken reads a bearer token from a file. Surrounding whitespace and an
// optional "Bearer " prefix are stripped.
func LoadToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}

	token := strings.TrimSpace(string(data))
	if rest, ok := strings.CutPrefix(token, "Bearer "); ok {
		token = strings.TrimSpace(rest)
	}
	if token == "" {
		return "", ErrEmptyToken
	}

	return token, nil
}

// Token returns the bearer token.
func (c *Credentials) Token() string {
	if c == nil {
		return ""
	}
	return c.token
}

// Header generates the Authorization header for a request.
func (c *Credentials) Header() map[string]string {
	if c.Token() == "" {
		return map[string]string{}
	}
	return map[string]string{"Authorization": "Bearer " + c.token}
}

// String masks the token so credentials can be logged.
func (c *Credentials) String() string {
	t := c.Token()
	if len(t) <= 8 {
		return "****"
	}
	return t[:4] + "****" + t[len(t)-4:]
}
