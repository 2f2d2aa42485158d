package trust

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jackc/pgx/v5"

	"nextstocks/portfolio/internal/model"
)

type fakeDirectory struct {
	users  map[string]model.User
	known  map[string]bool
	banned map[string]bool
}

func (f *fakeDirectory) GetUserByEmail(_ context.Context, email string) (model.User, error) {
	user, ok := f.users[email]
	if !ok {
		return model.User{}, pgx.ErrNoRows
	}
	return user, nil
}

func (f *fakeDirectory) KnownIPExists(_ context.Context, userUID, ip string) (bool, error) {
	return f.known[userUID+"/"+ip], nil
}

func (f *fakeDirectory) BannedIPExists(_ context.Context, userUID, ip string) (bool, error) {
	return f.banned[userUID+"/"+ip], nil
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		users:  map[string]model.User{},
		known:  map[string]bool{},
		banned: map[string]bool{},
	}
}

func TestResolveHappyPath(t *testing.T) {
	dir := newFakeDirectory()
	dir.users["u1@example.local"] = model.User{UID: "u1", Email: "u1@example.local"}
	dir.known["u1/10.0.0.1"] = true

	resolver := NewResolver(dir, nil)
	user, err := resolver.Resolve(context.Background(), "u1@example.local", "10.0.0.1")
	if err != nil {
		t.Fatalf("resolve error: %v", err)
	}
	if user.UID != "u1" {
		t.Fatalf("unexpected user %q", user.UID)
	}
}

func TestResolveUserNotFound(t *testing.T) {
	resolver := NewResolver(newFakeDirectory(), nil)
	if _, err := resolver.Resolve(context.Background(), "missing@example.local", "10.0.0.1"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected user_not_found, got %v", err)
	}
}

func TestResolveBanOverridesKnown(t *testing.T) {
	dir := newFakeDirectory()
	dir.users["u1@example.local"] = model.User{UID: "u1", Email: "u1@example.local"}
	dir.known["u1/10.0.0.1"] = true
	dir.banned["u1/10.0.0.1"] = true

	resolver := NewResolver(dir, nil)
	if _, err := resolver.Resolve(context.Background(), "u1@example.local", "10.0.0.1"); !errors.Is(err, ErrBannedIP) {
		t.Fatalf("expected banned_ip, got %v", err)
	}
}

func TestResolveUnknownIPBeforeBanAndBlock(t *testing.T) {
	dir := newFakeDirectory()
	dir.users["u1@example.local"] = model.User{UID: "u1", Email: "u1@example.local", IsBlocked: true}
	dir.banned["u1/10.0.0.2"] = true

	// IP 10.0.0.2 was never allowed, so the new-device conflict wins over
	// both the ban and the account block.
	resolver := NewResolver(dir, nil)
	if _, err := resolver.Resolve(context.Background(), "u1@example.local", "10.0.0.2"); !errors.Is(err, ErrUnknownIP) {
		t.Fatalf("expected unknown_ip, got %v", err)
	}
}

func TestResolveBlockedUser(t *testing.T) {
	dir := newFakeDirectory()
	dir.users["u1@example.local"] = model.User{UID: "u1", Email: "u1@example.local", IsBlocked: true}
	dir.known["u1/10.0.0.1"] = true

	resolver := NewResolver(dir, nil)
	if _, err := resolver.Resolve(context.Background(), "u1@example.local", "10.0.0.1"); !errors.Is(err, ErrUserBlocked) {
		t.Fatalf("expected user_blocked, got %v", err)
	}
}

func TestResolveNewIPThenAllowed(t *testing.T) {
	dir := newFakeDirectory()
	dir.users["u1@example.local"] = model.User{UID: "u1", Email: "u1@example.local"}
	dir.known["u1/10.0.0.1"] = true

	resolver := NewResolver(dir, nil)
	if _, err := resolver.Resolve(context.Background(), "u1@example.local", "10.0.0.2"); !errors.Is(err, ErrUnknownIP) {
		t.Fatalf("expected unknown_ip for new address, got %v", err)
	}

	dir.known["u1/10.0.0.2"] = true
	if _, err := resolver.Resolve(context.Background(), "u1@example.local", "10.0.0.2"); err != nil {
		t.Fatalf("expected resolve to succeed after allow, got %v", err)
	}
}

func TestClientIPPrecedence(t *testing.T) {
	resolver := NewResolver(newFakeDirectory(), []string{"localhost", "api.example.com"})

	req := httptest.NewRequest(http.MethodGet, "http://api.example.com/v1/users/me", nil)
	req.RemoteAddr = "192.0.2.9:4242"

	// next-ip always wins.
	req.Header.Set("next-ip", "203.0.113.7")
	req.Header.Set("X-Forwarded-For", "198.51.100.1, 10.0.0.1")
	if ip := resolver.ClientIP(req); ip != "203.0.113.7" {
		t.Fatalf("expected next-ip to win, got %s", ip)
	}

	// First X-Forwarded-For hop on a recognized host.
	req.Header.Del("next-ip")
	if ip := resolver.ClientIP(req); ip != "198.51.100.1" {
		t.Fatalf("expected first forwarded hop, got %s", ip)
	}

	// X-Real-IP when no forwarded chain.
	req.Header.Del("X-Forwarded-For")
	req.Header.Set("X-Real-IP", "198.51.100.2")
	if ip := resolver.ClientIP(req); ip != "198.51.100.2" {
		t.Fatalf("expected X-Real-IP, got %s", ip)
	}

	// Peer address as last resort.
	req.Header.Del("X-Real-IP")
	if ip := resolver.ClientIP(req); ip != "192.0.2.9" {
		t.Fatalf("expected peer address, got %s", ip)
	}
}

func TestClientIPUnrecognizedHost(t *testing.T) {
	resolver := NewResolver(newFakeDirectory(), []string{"api.example.com"})

	req := httptest.NewRequest(http.MethodGet, "http://evil.example.net/v1/users/me", nil)
	req.RemoteAddr = "192.0.2.9:4242"
	req.Header.Set("X-Forwarded-For", "198.51.100.1")

	// Forwarding headers from an unrecognized host are not trusted.
	if ip := resolver.ClientIP(req); ip != "127.0.0.1" {
		t.Fatalf("expected loopback fallback, got %s", ip)
	}

	// The internal header still applies.
	req.Header.Set("next-ip", "203.0.113.7")
	if ip := resolver.ClientIP(req); ip != "203.0.113.7" {
		t.Fatalf("expected next-ip override, got %s", ip)
	}
}

func TestTrustedHostIgnoresPort(t *testing.T) {
	resolver := NewResolver(newFakeDirectory(), []string{"localhost"})
	req := httptest.NewRequest(http.MethodGet, "http://localhost:8080/health", nil)
	req.RemoteAddr = "127.0.0.1:5000"
	req.Header.Set("X-Real-IP", "198.51.100.2")
	if ip := resolver.ClientIP(req); ip != "198.51.100.2" {
		t.Fatalf("expected host match despite port, got %s", ip)
	}
}
