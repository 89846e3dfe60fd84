package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kaaval/Main/evidence-ledger/internal/config"
	"github.com/Kaaval/Main/evidence-ledger/internal/models"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return priv
}

func pemPublic(t *testing.T, pub *rsa.PublicKey) []byte {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
}

func newVerifier(keys []interface{}, allowDev bool) *Verifier {
	v := New(Options{Keys: keys, Issuer: "evidence-ledger-test", AllowDevPrincipals: allowDev})
	v.NowFunc = func() time.Time { return testNow }
	return v
}

var officer = models.Principal{ID: "u-7", Name: "Insp. Rao", Role: models.RolePolice, Designation: "SHO", Org: "CITY-PD"}

func bearer(token string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/v1/cases", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestVerifyTokenRoundTrip(t *testing.T) {
	priv := newKey(t)
	v := newVerifier([]interface{}{&priv.PublicKey}, false)

	token, err := SignToken(priv, officer, "evidence-ledger-test", time.Hour, testNow)
	require.NoError(t, err)

	p, err := v.Authenticate(bearer(token))
	require.NoError(t, err)
	assert.Equal(t, officer, p)
}

func TestVerifyTokenRejections(t *testing.T) {
	priv := newKey(t)
	other := newKey(t)
	v := newVerifier([]interface{}{&priv.PublicKey}, false)

	expired, err := SignToken(priv, officer, "evidence-ledger-test", time.Minute, testNow.Add(-time.Hour))
	require.NoError(t, err)
	wrongIssuer, err := SignToken(priv, officer, "someone-else", time.Hour, testNow)
	require.NoError(t, err)
	wrongKey, err := SignToken(other, officer, "evidence-ledger-test", time.Hour, testNow)
	require.NoError(t, err)
	badRole, err := SignToken(priv, models.Principal{ID: "u-1", Role: "JANITOR"}, "evidence-ledger-test", time.Hour, testNow)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"expired":      expired,
		"wrong issuer": wrongIssuer,
		"wrong key":    wrongKey,
		"unknown role": badRole,
		"garbage":      "not.a.token",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := v.Authenticate(bearer(token))
			assert.True(t, errors.Is(err, ErrInvalidToken), "got %v", err)
		})
	}
}

func TestSecondKeyInBundleVerifies(t *testing.T) {
	first := newKey(t)
	second := newKey(t)
	bundle := append(pemPublic(t, &first.PublicKey), pemPublic(t, &second.PublicKey)...)
	keys, err := ParsePublicKeys(bundle)
	require.NoError(t, err)
	require.Len(t, keys, 2)

	v := newVerifier(keys, false)
	token, err := SignToken(second, officer, "evidence-ledger-test", time.Hour, testNow)
	require.NoError(t, err)
	_, err = v.Authenticate(bearer(token))
	assert.NoError(t, err)
}

func TestParsePublicKeysEmpty(t *testing.T) {
	_, err := ParsePublicKeys([]byte("nothing here"))
	assert.Error(t, err)
}

func TestNewFromConfigReadsKeyFile(t *testing.T) {
	priv := newKey(t)
	path := filepath.Join(t.TempDir(), "keys.pem")
	require.NoError(t, os.WriteFile(path, pemPublic(t, &priv.PublicKey), 0o600))

	v, err := NewFromConfig(config.Config{JWTPublicKeysFile: path})
	require.NoError(t, err)
	token, err := SignToken(priv, officer, "", time.Hour, time.Now())
	require.NoError(t, err)
	_, err = v.VerifyToken(token)
	assert.NoError(t, err)

	_, err = NewFromConfig(config.Config{JWTPublicKeysFile: filepath.Join(t.TempDir(), "missing.pem")})
	assert.Error(t, err)
}

func TestDevPrincipal(t *testing.T) {
	p, err := ParseDevPrincipal("lab-2:forensics:Analyst")
	require.NoError(t, err)
	assert.Equal(t, "lab-2", p.ID)
	assert.Equal(t, models.RoleForensics, p.Role)
	assert.Equal(t, "Analyst", p.Designation)

	for _, bad := range []string{"lab-2", ":POLICE", "lab-2:SYSTEM", "lab-2:CLERK"} {
		_, err := ParseDevPrincipal(bad)
		assert.Error(t, err, bad)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(DevPrincipalHeader, "lab-2:FORENSICS")
	_, err = newVerifier(nil, false).Authenticate(req)
	assert.ErrorIs(t, err, ErrNoCredentials, "dev header ignored unless enabled")
	_, err = newVerifier(nil, true).Authenticate(req)
	assert.NoError(t, err)
}

func TestMiddlewareAndRequireRole(t *testing.T) {
	v := newVerifier(nil, true)
	var seen models.Principal
	h := v.Middleware(RequireRole(models.RoleLegal)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})))

	do := func(header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/evidence/EV-1/approve", nil)
		if header != "" {
			req.Header.Set(DevPrincipalHeader, header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := do("")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "EVIDENCE_LEDGER_UNAUTHENTICATED")

	rec = do("p-1:POLICE")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "EVIDENCE_LEDGER_FORBIDDEN")

	rec = do("l-1:LEGAL")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "l-1", seen.ID)

	rec = do("a-1:ADMIN")
	assert.Equal(t, http.StatusNoContent, rec.Code, "admins pass every role gate")
}
