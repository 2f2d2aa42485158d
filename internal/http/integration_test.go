package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"nextstocks/portfolio/internal/blocklist"
	"nextstocks/portfolio/internal/codes"
	"nextstocks/portfolio/internal/config"
	"nextstocks/portfolio/internal/db"
	"nextstocks/portfolio/internal/geo"
	"nextstocks/portfolio/internal/repository"
)

func openTestDB(t *testing.T) *pgxpool.Pool {
	url := os.Getenv("PORTFOLIO_TEST_DB")
	if url == "" {
		url = os.Getenv("DATABASE_URL")
	}
	if url == "" {
		t.Skip("PORTFOLIO_TEST_DB or DATABASE_URL not set")
		return nil
	}
	pool, err := db.NewPool(context.Background(), url)
	if err != nil {
		t.Skipf("db unavailable: %v", err)
		return nil
	}
	return pool
}

func openTestRedis(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR or REDIS_ADDR not set")
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
		return nil
	}
	return client
}

func newTestServer(t *testing.T) (*httptest.Server, func()) {
	pool := openTestDB(t)
	if pool == nil {
		return nil, nil
	}
	redisClient := openTestRedis(t)
	if redisClient == nil {
		pool.Close()
		return nil, nil
	}

	geoStub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"country_name":"Testland","country_code":"TL","currency":"TLD","in_eu":false}`))
	}))

	cfg := config.Config{
		HTTPAddr:        ":0",
		JWTSecret:       "test-secret",
		JWTIssuer:       "test-issuer",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: time.Hour,
		CodeTTL:         time.Minute,
		TrustedHosts:    []string{"localhost"},
		GeoLookupURL:    geoStub.URL,
	}
	store := repository.NewStore(pool)
	server := NewServer(cfg, store, blocklist.New(redisClient), codes.New(redisClient, cfg.CodeTTL), geo.NewClient(geoStub.URL))
	app := httptest.NewServer(server.Router())

	cleanup := func() {
		app.Close()
		geoStub.Close()
		_ = redisClient.Close()
		pool.Close()
	}
	return app, cleanup
}

func doReq(t *testing.T, method, url, token, clientIP string, body interface{}) (*http.Response, map[string]interface{}) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode error: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if clientIP != "" {
		req.Header.Set("next-ip", clientIP)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("http error: %v", err)
	}
	defer resp.Body.Close()

	var decoded map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func TestSignupLoginIPTrustFlow(t *testing.T) {
	app, cleanup := newTestServer(t)
	if app == nil {
		return
	}
	defer cleanup()

	email := "flow." + time.Now().Format("150405.000") + "@example.local"
	homeIP := "10.0.0.1"
	newIP := "10.0.0.2"

	// Signup from the home address; that address becomes a known IP.
	resp, body := doReq(t, http.MethodPost, app.URL+"/v1/auth/signup", "", homeIP, map[string]string{
		"email":    email,
		"password": "dev-password",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("signup: expected 201, got %d (%v)", resp.StatusCode, body)
	}
	code, _ := body["code"].(string)
	if code == "" {
		t.Fatalf("signup: expected verification code")
	}

	// Consume the verification code.
	resp, body = doReq(t, http.MethodPost, app.URL+"/v1/auth/verify-email", "", homeIP, map[string]string{
		"email": email,
		"code":  code,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify: expected 200, got %d (%v)", resp.StatusCode, body)
	}

	// Login from the home address succeeds.
	resp, body = doReq(t, http.MethodPost, app.URL+"/v1/auth/login", "", homeIP, map[string]string{
		"email":    email,
		"password": "dev-password",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: expected 200, got %d (%v)", resp.StatusCode, body)
	}
	accessToken, _ := body["accessToken"].(string)
	refreshToken, _ := body["refreshToken"].(string)
	if accessToken == "" || refreshToken == "" {
		t.Fatalf("login: expected tokens, got %v", body)
	}

	// Login from a new address conflicts before any password check.
	resp, body = doReq(t, http.MethodPost, app.URL+"/v1/auth/login", "", newIP, map[string]string{
		"email":    email,
		"password": "dev-password",
	})
	if resp.StatusCode != http.StatusProxyAuthRequired {
		t.Fatalf("login new ip: expected 407, got %d (%v)", resp.StatusCode, body)
	}
	if body["ip"] != newIP {
		t.Fatalf("login new ip: expected conflicting ip in body, got %v", body)
	}

	// The account owner allows the new address from a trusted session.
	resp, meBody := doReq(t, http.MethodGet, app.URL+"/v1/users/me", accessToken, homeIP, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me: expected 200, got %d", resp.StatusCode)
	}
	uid, _ := meBody["uid"].(string)
	if uid == "" {
		t.Fatalf("me: expected uid")
	}

	resp, body = doReq(t, http.MethodPost, app.URL+"/v1/users/"+uid+"/allow-ips", accessToken, homeIP, map[string]string{"ip": newIP})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("allow-ip: expected 201, got %d (%v)", resp.StatusCode, body)
	}

	// The same login now succeeds.
	resp, body = doReq(t, http.MethodPost, app.URL+"/v1/auth/login", "", newIP, map[string]string{
		"email":    email,
		"password": "dev-password",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login after allow: expected 200, got %d (%v)", resp.StatusCode, body)
	}

	// Ban the new address; ban wins over known-IP membership.
	resp, body = doReq(t, http.MethodPost, app.URL+"/v1/users/"+uid+"/ban-ips", accessToken, homeIP, map[string]string{"ip": newIP})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("ban-ip: expected 201, got %d (%v)", resp.StatusCode, body)
	}
	resp, body = doReq(t, http.MethodPost, app.URL+"/v1/auth/login", "", newIP, map[string]string{
		"email":    email,
		"password": "dev-password",
	})
	if resp.StatusCode != http.StatusUnauthorized || body["error"] != "banned_ip" {
		t.Fatalf("login banned ip: expected 401 banned_ip, got %d (%v)", resp.StatusCode, body)
	}

	// Unban restores access.
	resp, _ = doReq(t, http.MethodDelete, app.URL+"/v1/users/"+uid+"/ban-ips/"+newIP, accessToken, homeIP, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unban-ip: expected 200, got %d", resp.StatusCode)
	}
	resp, _ = doReq(t, http.MethodPost, app.URL+"/v1/auth/login", "", newIP, map[string]string{
		"email":    email,
		"password": "dev-password",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login after unban: expected 200, got %d", resp.StatusCode)
	}
}

func TestTokenKindAndRevocation(t *testing.T) {
	app, cleanup := newTestServer(t)
	if app == nil {
		return
	}
	defer cleanup()

	email := "revoke." + time.Now().Format("150405.000") + "@example.local"
	homeIP := "10.1.0.1"

	resp, body := doReq(t, http.MethodPost, app.URL+"/v1/auth/signup", "", homeIP, map[string]string{
		"email":    email,
		"password": "dev-password",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("signup: expected 201, got %d (%v)", resp.StatusCode, body)
	}
	code, _ := body["code"].(string)

	resp, _ = doReq(t, http.MethodPost, app.URL+"/v1/auth/verify-email", "", homeIP, map[string]string{
		"email": email,
		"code":  code,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify: expected 200, got %d", resp.StatusCode)
	}

	resp, body = doReq(t, http.MethodPost, app.URL+"/v1/auth/login", "", homeIP, map[string]string{
		"email":    email,
		"password": "dev-password",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: expected 200, got %d (%v)", resp.StatusCode, body)
	}
	accessToken, _ := body["accessToken"].(string)
	refreshToken, _ := body["refreshToken"].(string)

	// An access token cannot drive the refresh endpoint and vice versa.
	resp, body = doReq(t, http.MethodGet, app.URL+"/v1/auth/refresh_token", accessToken, homeIP, nil)
	if resp.StatusCode != http.StatusUnauthorized || body["error"] != "refresh_token_required" {
		t.Fatalf("refresh with access token: expected 401 refresh_token_required, got %d (%v)", resp.StatusCode, body)
	}
	resp, body = doReq(t, http.MethodGet, app.URL+"/v1/users/me", refreshToken, homeIP, nil)
	if resp.StatusCode != http.StatusUnauthorized || body["error"] != "access_token_required" {
		t.Fatalf("me with refresh token: expected 401 access_token_required, got %d (%v)", resp.StatusCode, body)
	}

	// The refresh token mints a new access token.
	resp, body = doReq(t, http.MethodGet, app.URL+"/v1/auth/refresh_token", refreshToken, homeIP, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh: expected 200, got %d (%v)", resp.StatusCode, body)
	}
	if newAccess, _ := body["accessToken"].(string); newAccess == "" {
		t.Fatalf("refresh: expected new access token")
	}

	// Logout revokes the access token before its natural expiry.
	resp, _ = doReq(t, http.MethodGet, app.URL+"/v1/auth/logout", accessToken, homeIP, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d", resp.StatusCode)
	}
	resp, body = doReq(t, http.MethodGet, app.URL+"/v1/users/me", accessToken, homeIP, nil)
	if resp.StatusCode != http.StatusUnauthorized || body["error"] != "invalid_token" {
		t.Fatalf("me after logout: expected 401 invalid_token, got %d (%v)", resp.StatusCode, body)
	}
}

func TestPublicContentEndpoints(t *testing.T) {
	app, cleanup := newTestServer(t)
	if app == nil {
		return
	}
	defer cleanup()

	// Public reads need no token.
	resp, _ := doReq(t, http.MethodGet, app.URL+"/v1/faqs", "", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("faqs: expected 200, got %d", resp.StatusCode)
	}
	resp, _ = doReq(t, http.MethodGet, app.URL+"/v1/testimonials", "", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("testimonials: expected 200, got %d", resp.StatusCode)
	}
	resp, _ = doReq(t, http.MethodGet, app.URL+"/v1/projects", "", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("projects: expected 200, got %d", resp.StatusCode)
	}

	// Mutations are gated.
	resp, body := doReq(t, http.MethodPost, app.URL+"/v1/faqs", "", "", map[string]string{
		"question": "q", "answer": "a",
	})
	if resp.StatusCode != http.StatusUnauthorized || body["error"] != "missing_token" {
		t.Fatalf("faq create without token: expected 401 missing_token, got %d (%v)", resp.StatusCode, body)
	}

	// Page views record without authentication.
	resp, _ = doReq(t, http.MethodPost, app.URL+"/v1/analytics/page-view", "", "10.9.0.1", map[string]interface{}{
		"pathname":           "/projects",
		"timeSpentInSeconds": 12,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("page-view: expected 201, got %d", resp.StatusCode)
	}
}
