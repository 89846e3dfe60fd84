package auth

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Kaaval/Main/evidence-ledger/internal/config"
	"github.com/Kaaval/Main/evidence-ledger/internal/models"
)

// DevPrincipalHeader carries "id:ROLE[:designation]" when dev principals are
// enabled.
const DevPrincipalHeader = "X-Dev-Principal"

var (
	ErrNoCredentials = errors.New("authentication required")
	ErrInvalidToken  = errors.New("invalid token")
)

// Claims is the token payload issued to ledger users.
type Claims struct {
	Name        string `json:"name,omitempty"`
	Role        string `json:"role"`
	Designation string `json:"designation,omitempty"`
	Org         string `json:"org,omitempty"`
	jwt.RegisteredClaims
}

type Options struct {
	Keys               []interface{}
	Issuer             string
	AllowDevPrincipals bool
}

// Verifier turns request credentials into a principal.
type Verifier struct {
	keys     []interface{}
	issuer   string
	allowDev bool
	NowFunc  func() time.Time
}

func New(opts Options) *Verifier {
	return &Verifier{
		keys:     opts.Keys,
		issuer:   opts.Issuer,
		allowDev: opts.AllowDevPrincipals,
		NowFunc:  time.Now,
	}
}

// NewFromConfig loads the public keys named by the configuration.
func NewFromConfig(cfg config.Config) (*Verifier, error) {
	opts := Options{Issuer: cfg.JWTIssuer, AllowDevPrincipals: cfg.AllowDevPrincipals}
	if cfg.JWTPublicKeysFile != "" {
		data, err := os.ReadFile(cfg.JWTPublicKeysFile)
		if err != nil {
			return nil, fmt.Errorf("read jwt keys: %w", err)
		}
		keys, err := ParsePublicKeys(data)
		if err != nil {
			return nil, fmt.Errorf("load jwt keys from %s: %w", cfg.JWTPublicKeysFile, err)
		}
		opts.Keys = keys
	}
	return New(opts), nil
}

// ParsePublicKeys reads every RSA public key or certificate in a PEM bundle.
// Blocks of other types are skipped.
func ParsePublicKeys(data []byte) ([]interface{}, error) {
	var keys []interface{}
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		key, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			cert, cerr := x509.ParseCertificate(block.Bytes)
			if cerr != nil {
				continue
			}
			key = cert.PublicKey
		}
		if _, ok := key.(*rsa.PublicKey); !ok {
			continue
		}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return nil, errors.New("no RSA public keys found")
	}
	return keys, nil
}

// Authenticate resolves the caller of r. A bearer token wins over the dev
// header.
func (v *Verifier) Authenticate(r *http.Request) (models.Principal, error) {
	if authz := r.Header.Get("Authorization"); authz != "" {
		if len(authz) < 7 || !strings.EqualFold(authz[:7], "bearer ") {
			return models.Principal{}, ErrInvalidToken
		}
		return v.VerifyToken(strings.TrimSpace(authz[7:]))
	}
	if v.allowDev {
		if h := r.Header.Get(DevPrincipalHeader); h != "" {
			return ParseDevPrincipal(h)
		}
	}
	return models.Principal{}, ErrNoCredentials
}

// VerifyToken checks an RS256 token against every configured key.
func (v *Verifier) VerifyToken(raw string) (models.Principal, error) {
	if len(v.keys) == 0 {
		return models.Principal{}, fmt.Errorf("%w: no signing keys configured", ErrInvalidToken)
	}
	parseOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.NowFunc),
	}
	if v.issuer != "" {
		parseOpts = append(parseOpts, jwt.WithIssuer(v.issuer))
	}

	var lastErr error
	for _, key := range v.keys {
		claims := &Claims{}
		token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
			return key, nil
		}, parseOpts...)
		if err != nil {
			lastErr = err
			continue
		}
		if !token.Valid {
			lastErr = ErrInvalidToken
			continue
		}
		return claims.principal()
	}
	return models.Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, lastErr)
}

func (c *Claims) principal() (models.Principal, error) {
	role := models.Role(strings.ToUpper(strings.TrimSpace(c.Role)))
	if c.Subject == "" || !role.Valid() {
		return models.Principal{}, fmt.Errorf("%w: subject and a known role are required", ErrInvalidToken)
	}
	return models.Principal{
		ID:          c.Subject,
		Name:        c.Name,
		Role:        role,
		Designation: c.Designation,
		Org:         c.Org,
	}, nil
}

// ParseDevPrincipal reads "id:ROLE[:designation]".
func ParseDevPrincipal(h string) (models.Principal, error) {
	parts := strings.SplitN(h, ":", 3)
	if len(parts) < 2 {
		return models.Principal{}, fmt.Errorf("%w: dev principal must be id:ROLE[:designation]", ErrInvalidToken)
	}
	p := models.Principal{
		ID:   strings.TrimSpace(parts[0]),
		Role: models.Role(strings.ToUpper(strings.TrimSpace(parts[1]))),
		Org:  "DEV",
	}
	if len(parts) == 3 {
		p.Designation = strings.TrimSpace(parts[2])
	}
	if p.ID == "" || !p.Role.Valid() {
		return models.Principal{}, fmt.Errorf("%w: dev principal needs an id and a known role", ErrInvalidToken)
	}
	p.Name = p.ID
	return p, nil
}

// SignToken mints a token for p. Used by devtoken and tests.
func SignToken(key *rsa.PrivateKey, p models.Principal, issuer string, ttl time.Duration, now time.Time) (string, error) {
	claims := Claims{
		Name:        p.Name,
		Role:        string(p.Role),
		Designation: p.Designation,
		Org:         p.Org,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
}
