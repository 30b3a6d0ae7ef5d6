package identity

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// Default signing parameters, matching the development settings of the
// wallet service.
const (
	DefaultSubject  = "walletprobe"
	DefaultAudience = "agentic-commerce"
	DefaultTTL      = time.Hour
)

// TokenConfig controls how tokens are minted.
type TokenConfig struct {
	// Secret is the HMAC-SHA256 signing key.
	Secret []byte

	// Subject is the "sub" claim.
	Subject string

	// Audience is the "aud" claim.
	Audience string

	// TTL is added to the issue time to form the "exp" claim.
	TTL time.Duration

	// RefreshBefore treats a cached token as expired this long before its
	// real expiry so it is not sent moments before it lapses.
	RefreshBefore time.Duration
}

// Token is a minted bearer credential.
type Token struct {
	Scope     string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Raw       string
}

// Valid reports whether the token may still be handed out at now.
func (t *Token) Valid(now time.Time) bool {
	return t != nil && now.Before(t.ExpiresAt)
}

// TokenCache mints HS256 tokens and caches them per scope set.
//
// TokenCache is safe for concurrent use. Lookups take a read lock; a miss
// upgrades to the write lock and re-checks before minting, so concurrent
// misses for the same scope set produce a single token.
type TokenCache struct {
	cfg TokenConfig
	now func() time.Time

	mu     sync.RWMutex
	tokens map[string]*Token
	minted int64
}

// TokenOption configures a TokenCache.
type TokenOption func(*TokenCache)

// WithClock overrides the time source. Tests use it to step past expiry.
func WithClock(now func() time.Time) TokenOption {
	return func(c *TokenCache) {
		c.now = now
	}
}

// NewTokenCache creates an empty cache.
func NewTokenCache(cfg TokenConfig, opts ...TokenOption) (*TokenCache, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("token secret is required")
	}
	if cfg.Subject == "" {
		cfg.Subject = DefaultSubject
	}
	if cfg.Audience == "" {
		cfg.Audience = DefaultAudience
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.RefreshBefore < 0 || cfg.RefreshBefore >= cfg.TTL {
		return nil, fmt.Errorf("refreshBefore %v must be in [0, ttl %v)", cfg.RefreshBefore, cfg.TTL)
	}

	c := &TokenCache{
		cfg:    cfg,
		now:    time.Now,
		tokens: make(map[string]*Token),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ScopeKey normalises a scope set: split on whitespace, dedupe, sort, and
// join with single spaces. "b a a" and "a b" share a cache entry.
func ScopeKey(scopes ...string) string {
	seen := make(map[string]struct{})
	var parts []string
	for _, s := range scopes {
		for _, f := range strings.Fields(s) {
			if _, ok := seen[f]; ok {
				continue
			}
			seen[f] = struct{}{}
			parts = append(parts, f)
		}
	}
	sort.Strings(parts)
	return strings.Join(parts, " ")
}

// Token returns a valid token for the scope set, minting one on a miss or
// when the cached token has expired.
func (c *TokenCache) Token(scopes ...string) (*Token, error) {
	key := ScopeKey(scopes...)

	c.mu.RLock()
	tok := c.tokens[key]
	c.mu.RUnlock()
	if c.usable(tok) {
		return tok, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if tok := c.tokens[key]; c.usable(tok) {
		return tok, nil
	}

	tok, err := c.mint(key)
	if err != nil {
		return nil, err
	}
	c.tokens[key] = tok
	c.minted++
	return tok, nil
}

// usable reports whether tok can be returned from the cache right now.
func (c *TokenCache) usable(tok *Token) bool {
	return tok.Valid(c.now().Add(c.cfg.RefreshBefore))
}

// mint signs a fresh token. iat and exp are whole seconds.
func (c *TokenCache) mint(scope string) (*Token, error) {
	issued := c.now().Truncate(time.Second)
	expires := issued.Add(c.cfg.TTL)

	claims := jwt.MapClaims{
		"sub":   c.cfg.Subject,
		"aud":   c.cfg.Audience,
		"scope": scope,
		"iat":   issued.Unix(),
		"exp":   expires.Unix(),
	}

	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.cfg.Secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token for scope %q: %w", scope, err)
	}

	return &Token{
		Scope:     scope,
		IssuedAt:  issued,
		ExpiresAt: expires,
		Raw:       raw,
	}, nil
}

// Minted returns how many tokens have been signed since creation or the
// last Reset.
func (c *TokenCache) Minted() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.minted
}

// Len returns the number of cached scope sets.
func (c *TokenCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tokens)
}

// Reset drops every cached token.
func (c *TokenCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens = make(map[string]*Token)
	c.minted = 0
}
