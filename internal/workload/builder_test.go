package workload

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baselineConfig() Config {
	return Config{
		Tag:           "base",
		Asset:         "USD",
		Amount:        "0.50",
		Source:        WalletRange{Start: 1, Size: 500},
		Destination:   WalletRange{Start: 1000, Size: 500},
		TransferRatio: 1,
		Scopes: Scopes{
			Transfer:    "wallet:write wallet:read",
			ReadBalance: "wallet:read",
		},
	}
}

func TestIdempotencyKey_UniqueAndStable(t *testing.T) {
	seen := make(map[string]struct{})
	for vu := 1; vu <= 200; vu++ {
		for iter := int64(0); iter < 200; iter++ {
			key := IdempotencyKey("base", "", vu, iter)
			_, dup := seen[key]
			require.False(t, dup, "duplicate key %s", key)
			seen[key] = struct{}{}

			assert.Equal(t, key, IdempotencyKey("base", "", vu, iter))
		}
	}

	assert.Equal(t, "base-3-7", IdempotencyKey("base", "", 3, 7))
	assert.Equal(t, "soak-run1-3-7", IdempotencyKey("soak", "run1", 3, 7))
}

func TestIdempotencyKey_NoPrefixAmbiguity(t *testing.T) {
	// vu=1,iter=11 and vu=11,iter=1 must differ.
	assert.NotEqual(t, IdempotencyKey("t", "", 1, 11), IdempotencyKey("t", "", 11, 1))
}

func TestBuilder_TransferProfile(t *testing.T) {
	b, err := NewBuilder(baselineConfig())
	require.NoError(t, err)

	it := b.Build(4, 501)
	require.Len(t, it.Operations, 1)

	tr, ok := it.Operations[0].(Transfer)
	require.True(t, ok)
	assert.Equal(t, "00000000-0000-0000-0000-000000000002", tr.From.String())
	assert.Equal(t, "00000000-0000-0000-0000-000000001001", tr.To.String())
	assert.Equal(t, "base-4-501", tr.IdempotencyKey())
	assert.Equal(t, "/v1/transfers", tr.Path())
	assert.Equal(t, "POST", tr.Method())
	assert.Equal(t, "wallet:write wallet:read", tr.Scopes())

	body, err := tr.Body()
	require.NoError(t, err)
	var payload map[string]string
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, map[string]string{
		"from_wallet_id": "00000000-0000-0000-0000-000000000002",
		"to_wallet_id":   "00000000-0000-0000-0000-000000001001",
		"amount":         "0.50",
		"asset":          "USD",
	}, payload)
}

func TestBuilder_Deterministic(t *testing.T) {
	cfg := baselineConfig()
	cfg.TransferRatio = 0.2
	b, err := NewBuilder(cfg)
	require.NoError(t, err)

	for vu := 1; vu < 20; vu++ {
		for iter := int64(0); iter < 50; iter++ {
			assert.Equal(t, b.Build(vu, iter), b.Build(vu, iter))
		}
	}
}

func TestBuilder_MixRatio(t *testing.T) {
	cfg := baselineConfig()
	cfg.TransferRatio = 0.2
	b, err := NewBuilder(cfg)
	require.NoError(t, err)

	transfers := 0
	const total = 20000
	for i := 0; i < total; i++ {
		it := b.Build(1+i%100, int64(i/100))
		require.Len(t, it.Operations, 1)
		switch op := it.Operations[0].(type) {
		case Transfer:
			transfers++
		case ReadBalance:
			assert.Equal(t, "GET", op.Method())
			assert.Contains(t, op.Path(), "/balance")
		default:
			t.Fatalf("unexpected operation %T", op)
		}
	}

	ratio := float64(transfers) / total
	assert.InDelta(t, 0.2, ratio, 0.02)
}

func TestBuilder_SelectByVU(t *testing.T) {
	cfg := baselineConfig()
	cfg.Source = WalletRange{Start: 1, Size: 300, Selector: SelectByVU}
	cfg.Destination = WalletRange{Start: 2000, Size: 300, Selector: SelectByVU}
	b, err := NewBuilder(cfg)
	require.NoError(t, err)

	first := b.Build(7, 0).Operations[0].(Transfer)
	later := b.Build(7, 99).Operations[0].(Transfer)
	assert.Equal(t, first.From, later.From)
	assert.Equal(t, "00000000-0000-0000-0000-000000000008", first.From.String())
	assert.NotEqual(t, first.Key, later.Key)
}

func TestBuilder_CreateWallets(t *testing.T) {
	cfg := baselineConfig()
	cfg.CreateWallets = true
	cfg.Scopes.CreateWallet = "wallet:write wallet:read wallet:admin"
	b, err := NewBuilder(cfg)
	require.NoError(t, err)

	it := b.Build(1, 0)
	require.Len(t, it.Operations, 3)
	assert.Equal(t, KindCreateWallet, it.Operations[0].Kind())
	assert.Equal(t, KindCreateWallet, it.Operations[1].Kind())
	assert.Equal(t, KindTransfer, it.Operations[2].Kind())
	assert.Empty(t, it.Operations[0].IdempotencyKey())

	body, err := it.Operations[0].Body()
	require.NoError(t, err)
	assert.JSONEq(t, `{"wallet_id":"00000000-0000-0000-0000-000000000001","asset":"USD"}`, string(body))
}

func TestWalletRange_LastIndexAccepted(t *testing.T) {
	cfg := baselineConfig()
	cfg.Source = WalletRange{Start: 999_999_999_000, Size: 1000}
	b, err := NewBuilder(cfg)
	require.NoError(t, err)

	tr := b.Build(1, 999).Operations[0].(Transfer)
	assert.Equal(t, "00000000-0000-0000-0000-999999999999", tr.From.String())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing tag", func(c *Config) { c.Tag = "" }},
		{"short asset", func(c *Config) { c.Asset = "US" }},
		{"ratio above one", func(c *Config) { c.TransferRatio = 1.5 }},
		{"bad amount", func(c *Config) { c.Amount = "abc" }},
		{"zero amount", func(c *Config) { c.Amount = "0" }},
		{"empty source", func(c *Config) { c.Source.Size = 0 }},
		{"negative start", func(c *Config) { c.Destination.Start = -1 }},
		{"range overflow", func(c *Config) { c.Source.Start = 999_999_999_999 }},
		{"start at the bound", func(c *Config) { c.Destination = WalletRange{Start: 1_000_000_000_000, Size: 1} }},
		{"int64 wraparound", func(c *Config) { c.Source = WalletRange{Start: 1 << 62, Size: 1 << 62} }},
		{"huge size", func(c *Config) { c.Destination = WalletRange{Start: 5, Size: math.MaxInt64} }},
		{"bad selector", func(c *Config) { c.Source.Selector = "random" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baselineConfig()
			tt.mutate(&cfg)
			_, err := NewBuilder(cfg)
			assert.Error(t, err)
		})
	}
}
