package auth

import (
	"context"
	"strings"
)

// Blocklist answers whether a jti has been revoked. A lookup error means the
// store is unreachable; the verifier fails closed in that case.
type Blocklist interface {
	Contains(ctx context.Context, jti string) (bool, error)
}

// Verifier validates inbound bearer tokens. The same pipeline serves both
// token kinds; Expect selects which kind a route demands.
type Verifier struct {
	secret    string
	blocklist Blocklist
}

func NewVerifier(secret string, blocklist Blocklist) *Verifier {
	return &Verifier{secret: secret, blocklist: blocklist}
}

// Verify runs the full check pipeline against an Authorization header value:
// extract bearer, decode, kind check, revocation check. Revoked tokens are
// reported as invalid so callers cannot distinguish revocation from a
// malformed token.
func (v *Verifier) Verify(ctx context.Context, authorization string, expect TokenKind) (*Claims, error) {
	token := bearerToken(authorization)
	if token == "" {
		return nil, ErrMissingToken
	}

	claims := DecodeToken(v.secret, token)
	if claims == nil {
		return nil, ErrInvalidToken
	}

	if claims.Kind() != expect {
		if expect == AccessToken {
			return nil, ErrAccessTokenRequired
		}
		return nil, ErrRefreshTokenRequired
	}

	revoked, err := v.blocklist.Contains(ctx, claims.JTI())
	if err != nil {
		return nil, ErrRevocationUnavailable
	}
	if revoked {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
