package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
)

// StaticAuthenticator accepts a fixed list of tokens. With no tokens
// configured every request is accepted as AnonymousHost.
type StaticAuthenticator struct {
	tokens []string
}

func NewStaticAuthenticator(tokens []string) *StaticAuthenticator {
	var kept []string
	for _, t := range tokens {
		if t != "" {
			kept = append(kept, t)
		}
	}
	return &StaticAuthenticator{tokens: kept}
}

// Open reports whether authentication is disabled.
func (a *StaticAuthenticator) Open() bool {
	return len(a.tokens) == 0
}

func (a *StaticAuthenticator) Authenticate(_ context.Context, token string) (*Host, error) {
	if a.Open() {
		return AnonymousHost, nil
	}
	if token == "" {
		return nil, ErrUnauthenticated
	}
	for i, t := range a.tokens {
		if subtle.ConstantTimeCompare([]byte(t), []byte(token)) == 1 {
			return &Host{ID: fmt.Sprintf("static-%d", i), Name: "static"}, nil
		}
	}
	return nil, ErrUnauthenticated
}
