package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/AtDexters-Lab/sim-protocol/internal/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "frontend-secret"

func signToken(t *testing.T, secret string, mutate func(*Claims)) string {
	t.Helper()
	claims := &Claims{
		Frontend:   "field-view",
		Extensions: []string{"screen-diff"},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "frontend-1",
			Issuer:    Issuer,
			Audience:  jwt.ClaimStrings{Audience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	if mutate != nil {
		mutate(claims)
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestLocalValidatorAcceptsValidToken(t *testing.T) {
	v, err := NewValidator(&config.Config{FrontendsJWTSecret: testSecret})
	require.NoError(t, err)

	claims, err := v.Validate(context.Background(), signToken(t, testSecret, nil))
	require.NoError(t, err)
	assert.Equal(t, "field-view", claims.Name())
	assert.Equal(t, []string{"screen-diff"}, claims.Extensions)
}

func TestLocalValidatorRejects(t *testing.T) {
	v, err := NewValidator(&config.Config{FrontendsJWTSecret: testSecret})
	require.NoError(t, err)

	tests := map[string]string{
		"wrong secret": signToken(t, "other", nil),
		"wrong audience": signToken(t, testSecret, func(c *Claims) {
			c.Audience = jwt.ClaimStrings{"nexus"}
		}),
		"wrong issuer": signToken(t, testSecret, func(c *Claims) { c.Issuer = "someone" }),
		"expired": signToken(t, testSecret, func(c *Claims) {
			c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
		}),
		"no expiry": signToken(t, testSecret, func(c *Claims) { c.ExpiresAt = nil }),
		"garbage":   "not-a-jwt",
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := v.Validate(context.Background(), token)
			assert.Error(t, err)
		})
	}
}

func TestNewValidatorNeedsCredentials(t *testing.T) {
	_, err := NewValidator(&config.Config{})
	assert.Error(t, err)
}

func verifierServer(t *testing.T, handler func(verifyRequest) (int, verifyResponse)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req verifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		status, body := handler(req)
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRemoteValidatorAcceptsClaims(t *testing.T) {
	srv := verifierServer(t, func(req verifyRequest) (int, verifyResponse) {
		assert.Equal(t, Audience, req.Audience)
		assert.Equal(t, "opaque", req.Token)
		return http.StatusOK, verifyResponse{Valid: true, Claims: &Claims{Frontend: "remote"}}
	})
	v, err := NewValidator(&config.Config{RemoteVerifierURL: srv.URL, VerifierTimeoutSeconds: 1})
	require.NoError(t, err)

	claims, err := v.Validate(context.Background(), "opaque")
	require.NoError(t, err)
	assert.Equal(t, "remote", claims.Frontend)
}

func TestRemoteValidatorRejection(t *testing.T) {
	srv := verifierServer(t, func(verifyRequest) (int, verifyResponse) {
		return http.StatusOK, verifyResponse{Valid: false, Error: "revoked"}
	})
	// A definitive rejection does not consult the local secret.
	v, err := NewValidator(&config.Config{RemoteVerifierURL: srv.URL, FrontendsJWTSecret: testSecret, VerifierTimeoutSeconds: 1})
	require.NoError(t, err)

	_, err = v.Validate(context.Background(), signToken(t, testSecret, nil))
	assert.ErrorContains(t, err, "revoked")
}

func TestRemoteValidatorFallsBackOnServerError(t *testing.T) {
	srv := verifierServer(t, func(verifyRequest) (int, verifyResponse) {
		return http.StatusBadGateway, verifyResponse{}
	})
	v, err := NewValidator(&config.Config{RemoteVerifierURL: srv.URL, FrontendsJWTSecret: testSecret, VerifierTimeoutSeconds: 1})
	require.NoError(t, err)

	claims, err := v.Validate(context.Background(), signToken(t, testSecret, nil))
	require.NoError(t, err)
	assert.Equal(t, "field-view", claims.Frontend)
}

func TestRemoteValidatorWithoutFallbackReportsOutage(t *testing.T) {
	srv := verifierServer(t, func(verifyRequest) (int, verifyResponse) {
		return http.StatusServiceUnavailable, verifyResponse{}
	})
	v, err := NewValidator(&config.Config{RemoteVerifierURL: srv.URL, VerifierTimeoutSeconds: 1})
	require.NoError(t, err)

	_, err = v.Validate(context.Background(), "opaque")
	assert.ErrorContains(t, err, "status 503")
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/connect", nil)
	_, err := TokenFromRequest(r)
	assert.ErrorIs(t, err, ErrNoToken)

	r.Header.Set("Authorization", "Bearer abc")
	token, err := TokenFromRequest(r)
	require.NoError(t, err)
	assert.Equal(t, "abc", token)

	r.Header.Set("Authorization", "Basic abc")
	_, err = TokenFromRequest(r)
	assert.ErrorIs(t, err, ErrNoToken)

	r = httptest.NewRequest(http.MethodGet, "/connect?token=xyz", nil)
	token, err = TokenFromRequest(r)
	require.NoError(t, err)
	assert.Equal(t, "xyz", token)
}

func TestAllowedExtensions(t *testing.T) {
	var open *Claims
	assert.Equal(t, []string{"a", "b"}, open.AllowedExtensions([]string{"a", "b"}))

	c := &Claims{Extensions: []string{"b", "c"}}
	assert.Equal(t, []string{"b"}, c.AllowedExtensions([]string{"a", "b"}))
	assert.Empty(t, c.AllowedExtensions([]string{"a"}))
}

func TestCopyIsDeep(t *testing.T) {
	c := &Claims{Extensions: []string{"a"}}
	cp := c.Copy()
	cp.Extensions[0] = "z"
	assert.Equal(t, "a", c.Extensions[0])
}
