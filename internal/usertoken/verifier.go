package usertoken

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"bookstore/internal/ratelimit"
	"bookstore/pkg/domain"
)

const (
	signingAlg                   = "RS256"
	defaultAudience              = "react-client"
	defaultLeeway                = 30 * time.Second
	defaultJWKSCacheTTL          = 10 * time.Minute
	defaultJWKSRequestsPerMinute = 5
)

// ErrInvalidToken wraps every verification failure.
var ErrInvalidToken = errors.New("invalid token")

// Config configures user access-token verification.
type Config struct {
	JWKSURL  string
	Issuer   string
	Audience string
	Leeway   time.Duration
	// CacheTTL bounds how long fetched keys are trusted without a refetch.
	CacheTTL time.Duration
	// RequestsPerMinute caps JWKS refetches when RefreshLimiter is nil.
	RequestsPerMinute int
	RefreshLimiter    ratelimit.Limiter
	HTTPClient        *http.Client
}

// Claims is the subset of a Keycloak access token the service reads.
type Claims struct {
	jwt.RegisteredClaims
	RealmAccess realmAccess `json:"realm_access"`
}

type realmAccess struct {
	Roles []string `json:"roles"`
}

// Verifier validates user access tokens (RS256 + JWKS) and extracts roles.
type Verifier struct {
	issuer   string
	audience string
	leeway   time.Duration
	keys     *keySet
}

// NewVerifier creates a token verifier. Keys are fetched lazily on first use
// or by Prefetch.
func NewVerifier(cfg Config) (*Verifier, error) {
	jwksURL := strings.TrimSpace(cfg.JWKSURL)
	if jwksURL == "" {
		return nil, errors.New("token verifier requires jwksURL")
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		return nil, errors.New("token verifier requires issuer")
	}
	audience := strings.TrimSpace(cfg.Audience)
	if audience == "" {
		audience = defaultAudience
	}
	leeway := cfg.Leeway
	if leeway <= 0 {
		leeway = defaultLeeway
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultJWKSCacheTTL
	}
	limiter := cfg.RefreshLimiter
	if limiter == nil {
		perMinute := cfg.RequestsPerMinute
		if perMinute <= 0 {
			perMinute = defaultJWKSRequestsPerMinute
		}
		local, err := ratelimit.NewFixedWindowLimiter(perMinute, time.Minute)
		if err != nil {
			return nil, err
		}
		limiter = local
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}

	return &Verifier{
		issuer:   issuer,
		audience: audience,
		leeway:   leeway,
		keys:     newKeySet(jwksURL, httpClient, ttl, limiter),
	}, nil
}

// Prefetch loads the key set so the first request does not pay for it.
func (v *Verifier) Prefetch(ctx context.Context) error {
	return v.keys.refresh(ctx)
}

// Verify validates the raw bearer token and returns the caller's identity.
func (v *Verifier) Verify(ctx context.Context, token string) (domain.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Identity{}, fmt.Errorf("%w: token missing", ErrInvalidToken)
	}
	claims, err := v.parse(ctx, token)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	roles := make([]string, 0, len(claims.RealmAccess.Roles))
	for _, role := range claims.RealmAccess.Roles {
		if role = strings.TrimSpace(role); role != "" {
			roles = append(roles, role)
		}
	}
	return domain.Identity{
		Subject: strings.TrimSpace(claims.Subject),
		Roles:   roles,
	}, nil
}

func (v *Verifier) parse(ctx context.Context, token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		kid = strings.TrimSpace(kid)
		if kid == "" {
			return nil, errUnknownKey
		}
		return v.keys.key(ctx, kid)
	},
		jwt.WithValidMethods([]string{signingAlg}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(v.leeway),
	)
	if err != nil || !parsed.Valid {
		if err == nil {
			err = errors.New("invalid token")
		}
		return nil, err
	}
	return claims, nil
}
