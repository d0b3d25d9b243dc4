// Package auth validates the credential presented on a connection's first
// frame. Real token verification (JWT, revocation) lives in an external
// identity service; the relay only consumes an accept/reject decision.
package auth

import (
	"context"
	"errors"
	"strconv"
	"strings"
)

// ErrInvalidToken rejects a credential. The connection is closed without
// retry.
var ErrInvalidToken = errors.New("auth: invalid token")

// Validator resolves a bearer token to a user id.
type Validator interface {
	Validate(ctx context.Context, token string) (int64, error)
}

// StaticValidator accepts tokens of the form "user:<id>". It stands in for
// the external credential validator in development and tests.
type StaticValidator struct{}

// Validate parses the user id out of the token.
func (StaticValidator) Validate(_ context.Context, token string) (int64, error) {
	const prefix = "user:"
	if !strings.HasPrefix(token, prefix) {
		return 0, ErrInvalidToken
	}
	id, err := strconv.ParseInt(token[len(prefix):], 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidToken
	}
	return id, nil
}
