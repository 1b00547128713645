package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dgrijalva/jwt-go"
)

// TokenProvider supplies the bearer token attached to every upstream
// request. Injecting it keeps the client testable without a real auth
// backend.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticTokenProvider returns a fixed token, typically from the
// environment.
type StaticTokenProvider string

func (s StaticTokenProvider) Token(ctx context.Context) (string, error) {
	if s == "" {
		return "", errors.New("upstream token is empty")
	}
	return string(s), nil
}

// PasswordTokenProvider logs in against the backend's auth endpoint and
// caches the issued JWT, re-authenticating shortly before the token's exp
// claim passes. The claim is read without signature verification; the
// backend verifies, this side only schedules refresh.
type PasswordTokenProvider struct {
	baseURL  string
	email    string
	password string
	http     *http.Client

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func NewPasswordTokenProvider(baseURL, email, password string) *PasswordTokenProvider {
	return &PasswordTokenProvider{
		baseURL:  strings.TrimRight(baseURL, "/"),
		email:    email,
		password: password,
		http:     &http.Client{Timeout: 15 * time.Second},
	}
}

func (p *PasswordTokenProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != "" && (p.expiresAt.IsZero() || time.Until(p.expiresAt) > 30*time.Second) {
		return p.token, nil
	}

	payload, _ := json.Marshal(map[string]string{
		"email":    p.email,
		"password": p.password,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/auth/login", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("login failed %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", err
	}
	if parsed.Token == "" {
		return "", errors.New("login response carried no token")
	}

	p.token = parsed.Token
	p.expiresAt = tokenExpiry(parsed.Token)
	return p.token, nil
}

func tokenExpiry(token string) time.Time {
	claims := &jwt.StandardClaims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == 0 {
		return time.Time{}
	}
	return time.Unix(claims.ExpiresAt, 0)
}
