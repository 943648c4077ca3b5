package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"google.golang.org/grpc/metadata"
)

// KeyPrefix marks API keys issued by GenerateAPIKey.
const KeyPrefix = "gqm_"

// Authenticator validates a bearer token and returns the calling host.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*Host, error)
}

// Host is the authenticated assistant host.
type Host struct {
	ID   string
	Name string
}

// AnonymousHost is returned when authentication is disabled.
var AnonymousHost = &Host{ID: "anonymous", Name: "anonymous"}

// ErrUnauthenticated is returned when no valid credentials are found.
var ErrUnauthenticated = errors.New("unauthenticated")

type hostKey struct{}

// WithHost attaches h to ctx.
func WithHost(ctx context.Context, h *Host) context.Context {
	return context.WithValue(ctx, hostKey{}, h)
}

// HostFrom returns the host stored by WithHost, or AnonymousHost.
func HostFrom(ctx context.Context) *Host {
	if h, ok := ctx.Value(hostKey{}).(*Host); ok && h != nil {
		return h
	}
	return AnonymousHost
}

// ExtractBearerToken extracts the bearer token from gRPC metadata.
// An absent header yields an empty token.
func ExtractBearerToken(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get("authorization")
	if len(values) == 0 {
		return ""
	}
	return trimBearer(values[0])
}

// BearerFromRequest extracts the bearer token from the Authorization header.
func BearerFromRequest(r *http.Request) string {
	return trimBearer(r.Header.Get("Authorization"))
}

func trimBearer(v string) string {
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(v, "Bearer ")
	v = strings.TrimPrefix(v, "bearer ")
	return strings.TrimSpace(v)
}
