package trust

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5"

	"nextstocks/portfolio/internal/model"
)

var (
	ErrUserNotFound = errors.New("user_not_found")
	ErrUnknownIP    = errors.New("unknown_ip")
	ErrBannedIP     = errors.New("banned_ip")
	ErrUserBlocked  = errors.New("user_blocked")
)

// Directory is the read surface the resolver needs from the user store.
type Directory interface {
	GetUserByEmail(ctx context.Context, email string) (model.User, error)
	KnownIPExists(ctx context.Context, userUID, ip string) (bool, error)
	BannedIPExists(ctx context.Context, userUID, ip string) (bool, error)
}

// Resolver enforces the per-user IP trust policy on every authenticated
// request. It performs no writes; new addresses are only trusted through the
// explicit allow-ips management call.
type Resolver struct {
	directory    Directory
	trustedHosts []string
}

func NewResolver(directory Directory, trustedHosts []string) *Resolver {
	return &Resolver{directory: directory, trustedHosts: trustedHosts}
}

// ClientIP determines the caller's address. The internal next-ip header set
// by the frontend proxy always wins. Forwarding headers are only honoured
// when the request reached us through a recognized hostname, because
// X-Forwarded-For and X-Real-IP are trivially spoofable on direct
// connections.
func (r *Resolver) ClientIP(req *http.Request) string {
	if ip := req.Header.Get("next-ip"); ip != "" {
		return ip
	}

	if !r.trustedHost(req.Host) {
		return "127.0.0.1"
	}

	if forwarded := req.Header.Get("X-Forwarded-For"); forwarded != "" {
		// First hop in the chain is the client.
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	if realIP := req.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	if host, _, err := net.SplitHostPort(req.RemoteAddr); err == nil && host != "" {
		return host
	}
	if req.RemoteAddr != "" {
		return req.RemoteAddr
	}
	return "127.0.0.1"
}

func (r *Resolver) trustedHost(host string) bool {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	for _, trusted := range r.trustedHosts {
		if strings.EqualFold(host, trusted) {
			return true
		}
	}
	return false
}

// Resolve looks up the user behind an identity claim and applies the trust
// checks in order: known-IP membership, banned-IP veto, account block. An
// unknown IP is not an authentication failure; it signals a new device that
// must go through the explicit allow flow.
func (r *Resolver) Resolve(ctx context.Context, email, clientIP string) (model.User, error) {
	user, err := r.directory.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, ErrUserNotFound
		}
		return model.User{}, err
	}

	known, err := r.directory.KnownIPExists(ctx, user.UID, clientIP)
	if err != nil {
		return model.User{}, err
	}
	if !known {
		return model.User{}, ErrUnknownIP
	}

	banned, err := r.directory.BannedIPExists(ctx, user.UID, clientIP)
	if err != nil {
		return model.User{}, err
	}
	if banned {
		// Ban overrides known-IP membership.
		return model.User{}, ErrBannedIP
	}

	if user.IsBlocked {
		return model.User{}, ErrUserBlocked
	}

	return user, nil
}
