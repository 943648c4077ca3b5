package auth

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
	"google.golang.org/grpc/metadata"
)

func TestExtractBearerToken(t *testing.T) {
	cases := map[string]string{
		"Bearer gqm_abc":   "gqm_abc",
		"bearer gqm_abc":   "gqm_abc",
		"  gqm_abc  ":      "gqm_abc",
		"Bearer  gqm_abc ": "gqm_abc",
	}
	for header, want := range cases {
		ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", header))
		if got := ExtractBearerToken(ctx); got != want {
			t.Errorf("ExtractBearerToken(%q) = %q, want %q", header, got, want)
		}
	}

	if got := ExtractBearerToken(context.Background()); got != "" {
		t.Errorf("expected empty token without metadata, got %q", got)
	}
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-other", "1"))
	if got := ExtractBearerToken(ctx); got != "" {
		t.Errorf("expected empty token without authorization, got %q", got)
	}
}

func TestBearerFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/v1/tools", nil)
	if got := BearerFromRequest(r); got != "" {
		t.Fatalf("expected empty token, got %q", got)
	}
	r.Header.Set("Authorization", "Bearer secret-1")
	if got := BearerFromRequest(r); got != "secret-1" {
		t.Fatalf("expected secret-1, got %q", got)
	}
}

func TestStaticAuthenticator_Open(t *testing.T) {
	a := NewStaticAuthenticator([]string{"", ""})
	if !a.Open() {
		t.Fatal("empty token list should be open")
	}
	host, err := a.Authenticate(context.Background(), "")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if host != AnonymousHost {
		t.Fatalf("expected anonymous host, got %+v", host)
	}
}

func TestStaticAuthenticator_Tokens(t *testing.T) {
	a := NewStaticAuthenticator([]string{"alpha", "beta"})

	host, err := a.Authenticate(context.Background(), "beta")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if host.ID != "static-1" {
		t.Errorf("expected static-1, got %s", host.ID)
	}

	for _, bad := range []string{"", "gamma", "alph"} {
		if _, err := a.Authenticate(context.Background(), bad); !errors.Is(err, ErrUnauthenticated) {
			t.Errorf("token %q: expected ErrUnauthenticated, got %v", bad, err)
		}
	}
}

func TestHostContext(t *testing.T) {
	if HostFrom(context.Background()) != AnonymousHost {
		t.Fatal("expected anonymous host by default")
	}
	h := &Host{ID: "h1"}
	if HostFrom(WithHost(context.Background(), h)) != h {
		t.Fatal("expected stored host")
	}
}

func TestGenerateAPIKey(t *testing.T) {
	k, err := GenerateAPIKey()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(k.Key, KeyPrefix) {
		t.Fatalf("expected %s prefix, got %s", KeyPrefix, k.Key)
	}
	if k.Prefix != k.Key[:prefixLength] {
		t.Fatalf("prefix %q does not match key %q", k.Prefix, k.Key)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(k.Hash), []byte(k.Key)); err != nil {
		t.Fatalf("hash does not verify: %v", err)
	}

	other, err := GenerateAPIKey()
	if err != nil {
		t.Fatal(err)
	}
	if other.Key == k.Key {
		t.Fatal("expected distinct keys")
	}
}
