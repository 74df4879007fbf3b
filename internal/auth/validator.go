package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/AtDexters-Lab/sim-protocol/internal/config"
	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrNoToken is returned by TokenFromRequest when no credential is present.
	ErrNoToken = errors.New("auth: no token presented")

	errRejected = errors.New("auth: verifier rejected token")
)

// Validator validates frontend tokens and returns parsed claims.
type Validator interface {
	Validate(ctx context.Context, token string) (*Claims, error)
}

// NewValidator returns a Validator that uses a remote verifier when configured
// and falls back to local HMAC validation with frontendsJWTSecret.
func NewValidator(cfg *config.Config) (Validator, error) {
	var local Validator
	if cfg.FrontendsJWTSecret != "" {
		local = &hmacValidator{secret: []byte(cfg.FrontendsJWTSecret)}
	}

	if cfg.RemoteVerifierURL == "" {
		if local == nil {
			return nil, errors.New("frontendsJWTSecret must be set when remoteVerifierURL is not configured")
		}
		return local, nil
	}

	return &verifierClient{
		url:      cfg.RemoteVerifierURL,
		client:   &http.Client{Timeout: cfg.VerifierTimeout()},
		fallback: local,
	}, nil
}

// TokenFromRequest extracts a bearer token from the Authorization header or,
// for browser WebSocket clients that cannot set headers, the token query
// parameter.
func TokenFromRequest(r *http.Request) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			return "", fmt.Errorf("%w: malformed authorization header", ErrNoToken)
		}
		return strings.TrimSpace(token), nil
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token, nil
	}
	return "", ErrNoToken
}

type hmacValidator struct {
	secret []byte
}

func (v *hmacValidator) Validate(_ context.Context, token string) (*Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, v.key,
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithAudience(Audience),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("frontend token: %w", err)
	}
	return claims.Copy(), nil
}

func (v *hmacValidator) key(*jwt.Token) (any, error) {
	return v.secret, nil
}

type verifierClient struct {
	url      string
	client   *http.Client
	fallback Validator
}

type verifyRequest struct {
	Token    string `json:"token"`
	Audience string `json:"audience"`
}

type verifyResponse struct {
	Valid  bool    `json:"valid"`
	Claims *Claims `json:"claims"`
	Error  string  `json:"error"`
}

// Validate asks the remote verifier first. Transport failures and 5xx
// responses fall through to the local validator when one is configured; a
// definitive rejection does not.
func (v *verifierClient) Validate(ctx context.Context, token string) (*Claims, error) {
	payload, err := json.Marshal(verifyRequest{Token: token, Audience: Audience})
	if err != nil {
		return nil, fmt.Errorf("marshal verify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return v.fallBack(ctx, token, fmt.Errorf("remote verifier request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return v.fallBack(ctx, token, fmt.Errorf("remote verifier returned status %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", errRejected, resp.StatusCode)
	}

	var verdict verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&verdict); err != nil {
		return nil, fmt.Errorf("decode verify response: %w", err)
	}
	return verdict.claims()
}

func (r verifyResponse) claims() (*Claims, error) {
	switch {
	case !r.Valid && r.Error != "":
		return nil, fmt.Errorf("%w: %s", errRejected, r.Error)
	case !r.Valid:
		return nil, errRejected
	case r.Claims == nil:
		return nil, errors.New("verifier accepted token without claims")
	}
	return r.Claims.Copy(), nil
}

func (v *verifierClient) fallBack(ctx context.Context, token string, cause error) (*Claims, error) {
	if v.fallback == nil {
		return nil, cause
	}
	return v.fallback.Validate(ctx, token)
}
