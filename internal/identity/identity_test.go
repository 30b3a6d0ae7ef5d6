package identity

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWalletID_Format(t *testing.T) {
	id, err := WalletID(42)
	require.NoError(t, err)
	assert.Equal(t, "00000000-0000-0000-0000-000000000042", id.String())

	id, err = WalletID(MaxWalletIndex - 1)
	require.NoError(t, err)
	assert.Equal(t, "00000000-0000-0000-0000-999999999999", id.String())
}

func TestWalletID_OutOfRange(t *testing.T) {
	for _, i := range []int64{-1, MaxWalletIndex, MaxWalletIndex + 7} {
		_, err := WalletID(i)
		assert.Error(t, err, "index %d", i)
	}
	assert.Panics(t, func() { MustWalletID(-1) })
}

func TestWalletID_Injective(t *testing.T) {
	seen := make(map[string]int64)
	check := func(i int64) {
		id := MustWalletID(i).String()
		if prev, ok := seen[id]; ok {
			t.Fatalf("indices %d and %d both map to %s", prev, i, id)
		}
		seen[id] = i
	}

	for i := int64(0); i < 5000; i++ {
		check(i)
	}
	// Boundaries of each decimal width.
	for p := int64(10); p < MaxWalletIndex; p *= 10 {
		check(p - 1 + 5000)
		check(p + 5000)
	}
}

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestCache(t *testing.T, clock *fakeClock) *TokenCache {
	t.Helper()
	cache, err := NewTokenCache(TokenConfig{
		Secret:   []byte("dev-secret-change-me"),
		Audience: "agentic-commerce",
		TTL:      time.Hour,
	}, WithClock(clock.Now))
	require.NoError(t, err)
	return cache
}

func decodeSegment(t *testing.T, seg string) map[string]interface{} {
	t.Helper()
	raw, err := base64.RawURLEncoding.DecodeString(seg)
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestTokenCache_TokenShape(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	cache := newTestCache(t, clock)

	tok, err := cache.Token("wallet:write wallet:read")
	require.NoError(t, err)

	parts := strings.Split(tok.Raw, ".")
	require.Len(t, parts, 3)

	header := decodeSegment(t, parts[0])
	assert.Equal(t, "HS256", header["alg"])
	assert.Equal(t, "JWT", header["typ"])

	payload := decodeSegment(t, parts[1])
	assert.Equal(t, DefaultSubject, payload["sub"])
	assert.Equal(t, "agentic-commerce", payload["aud"])
	assert.Equal(t, "wallet:read wallet:write", payload["scope"])
	iat := payload["iat"].(float64)
	exp := payload["exp"].(float64)
	assert.Equal(t, float64(1_700_000_000), iat)
	assert.Equal(t, iat+time.Hour.Seconds(), exp)

	parsed, err := jwt.NewParser(jwt.WithoutClaimsValidation()).Parse(tok.Raw, func(*jwt.Token) (interface{}, error) {
		return []byte("dev-secret-change-me"), nil
	})
	require.NoError(t, err)
	assert.True(t, parsed.Valid)
}

func TestTokenCache_HitBeforeExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	cache := newTestCache(t, clock)

	first, err := cache.Token("wallet:read")
	require.NoError(t, err)

	clock.Advance(59 * time.Minute)
	second, err := cache.Token("wallet:read")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, first.Raw, second.Raw)
	assert.EqualValues(t, 1, cache.Minted())
}

func TestTokenCache_RemintAfterExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	cache := newTestCache(t, clock)

	first, err := cache.Token("wallet:read")
	require.NoError(t, err)

	clock.Advance(time.Hour)
	second, err := cache.Token("wallet:read")
	require.NoError(t, err)

	assert.NotEqual(t, first.Raw, second.Raw)
	assert.True(t, second.ExpiresAt.After(first.ExpiresAt))
	assert.True(t, second.Valid(clock.Now()))
	assert.EqualValues(t, 2, cache.Minted())
}

func TestTokenCache_RefreshBefore(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	cache, err := NewTokenCache(TokenConfig{
		Secret:        []byte("s"),
		TTL:           time.Hour,
		RefreshBefore: time.Minute,
	}, WithClock(clock.Now))
	require.NoError(t, err)

	first, err := cache.Token("wallet:read")
	require.NoError(t, err)

	clock.Advance(59*time.Minute + 30*time.Second)
	second, err := cache.Token("wallet:read")
	require.NoError(t, err)
	assert.NotSame(t, first, second)
}

func TestTokenCache_ScopeSetNormalised(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	cache := newTestCache(t, clock)

	a, err := cache.Token("wallet:write wallet:read")
	require.NoError(t, err)
	b, err := cache.Token("wallet:read", "wallet:write", "wallet:read")
	require.NoError(t, err)
	c, err := cache.Token("wallet:admin")
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, 2, cache.Len())
}

func TestTokenCache_Concurrent(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	cache := newTestCache(t, clock)

	scopes := []string{"wallet:read", "wallet:write", "wallet:read wallet:write"}
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tok, err := cache.Token(scopes[(i+j)%len(scopes)])
				if err != nil || tok == nil || tok.Raw == "" {
					t.Errorf("unexpected token result: %v %v", tok, err)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, len(scopes), cache.Minted())
}

func TestTokenCache_Reset(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	cache := newTestCache(t, clock)

	_, err := cache.Token("wallet:read")
	require.NoError(t, err)
	cache.Reset()
	assert.Equal(t, 0, cache.Len())
	assert.EqualValues(t, 0, cache.Minted())
}

func TestNewTokenCache_Validation(t *testing.T) {
	_, err := NewTokenCache(TokenConfig{})
	assert.Error(t, err)

	_, err = NewTokenCache(TokenConfig{Secret: []byte("s"), TTL: time.Minute, RefreshBefore: time.Minute})
	assert.Error(t, err)
}

func TestScopeKey(t *testing.T) {
	assert.Equal(t, "a b c", ScopeKey("c b", "a", " b "))
	assert.Equal(t, "", ScopeKey())
}
