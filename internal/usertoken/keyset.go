package usertoken

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"bookstore/internal/ratelimit"
)

const (
	refreshLimiterKey = "jwks"
	jwksFetchTimeout  = 10 * time.Second
)

var (
	errUnknownKey = errors.New("unknown token key")

	// ErrKeyRefreshThrottled is returned when a key set refetch is needed but
	// the refetch rate limit is exhausted. Verification fails closed.
	ErrKeyRefreshThrottled = errors.New("jwks refresh rate limit exceeded")
)

// keySet caches the issuer's RSA signing keys by kid. Keys are served from
// memory until the set expires or an unknown kid is requested; refetches are
// collapsed across goroutines and bounded by limiter.
type keySet struct {
	url     string
	client  *http.Client
	ttl     time.Duration
	limiter ratelimit.Limiter
	now     func() time.Time

	group singleflight.Group

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	expiresAt time.Time
}

func newKeySet(url string, client *http.Client, ttl time.Duration, limiter ratelimit.Limiter) *keySet {
	return &keySet{
		url:     url,
		client:  client,
		ttl:     ttl,
		limiter: limiter,
		now:     time.Now,
	}
}

// key resolves kid, refetching the set at most once for this lookup.
func (ks *keySet) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if key, ok, fresh := ks.cached(kid); ok && fresh {
		return key, nil
	}
	if err := ks.refresh(ctx); err != nil {
		return nil, err
	}
	if key, ok, _ := ks.cached(kid); ok {
		return key, nil
	}
	return nil, errUnknownKey
}

func (ks *keySet) cached(kid string) (*rsa.PublicKey, bool, bool) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	key, ok := ks.keys[kid]
	return key, ok, ks.now().Before(ks.expiresAt)
}

// refresh refetches the set once for all concurrent callers. The shared fetch
// is detached from any single caller's cancellation; each caller stops
// waiting when its own ctx ends.
func (ks *keySet) refresh(ctx context.Context) error {
	ch := ks.group.DoChan(refreshLimiterKey, func() (any, error) {
		if !ks.limiter.Allow(refreshLimiterKey) {
			return nil, ErrKeyRefreshThrottled
		}
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), jwksFetchTimeout)
		defer cancel()
		return nil, ks.fetch(fetchCtx)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (ks *keySet) fetch(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ks.url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := ks.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch jwks: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch jwks: status %d", resp.StatusCode)
	}

	var payload struct {
		Keys []struct {
			Kty string `json:"kty"`
			Kid string `json:"kid"`
			Use string `json:"use"`
			Alg string `json:"alg"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&payload); err != nil {
		return fmt.Errorf("decode jwks: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(payload.Keys))
	for _, k := range payload.Keys {
		if strings.ToUpper(strings.TrimSpace(k.Kty)) != "RSA" {
			continue
		}
		// Keycloak publishes encryption keys in the same set.
		if use := strings.TrimSpace(k.Use); use != "" && use != "sig" {
			continue
		}
		if alg := strings.TrimSpace(k.Alg); alg != "" && alg != signingAlg {
			continue
		}
		kid := strings.TrimSpace(k.Kid)
		if kid == "" {
			continue
		}
		pub, err := parseRSAPublicKey(k.N, k.E)
		if err != nil {
			continue
		}
		keys[kid] = pub
	}
	if len(keys) == 0 {
		return errors.New("jwks contains no usable rsa keys")
	}

	ks.mu.Lock()
	ks.keys = keys
	ks.expiresAt = ks.now().Add(ks.ttl)
	ks.mu.Unlock()
	return nil
}

func parseRSAPublicKey(nRaw, eRaw string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(nRaw))
	if err != nil {
		return nil, err
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(eRaw))
	if err != nil {
		return nil, err
	}
	n := new(big.Int).SetBytes(nBytes)
	eBig := new(big.Int).SetBytes(eBytes)
	if n.Sign() <= 0 || !eBig.IsInt64() {
		return nil, errors.New("invalid rsa key")
	}
	e := int(eBig.Int64())
	if e <= 0 {
		return nil, errors.New("invalid rsa exponent")
	}
	return &rsa.PublicKey{N: n, E: e}, nil
}
