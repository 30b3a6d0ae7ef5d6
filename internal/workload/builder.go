package workload

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/wesleyorama2/walletprobe/internal/identity"
)

// Selector chooses which counter drives wallet selection.
type Selector string

const (
	// SelectByIteration cycles wallets with the VU's iteration index.
	SelectByIteration Selector = "iteration"
	// SelectByVU pins each VU to one wallet.
	SelectByVU Selector = "vu"
)

// WalletRange is a fixed pool of wallet indices [Start, Start+Size).
// Selection is modular so the working set stays bounded however long the
// run lasts.
type WalletRange struct {
	Start    int64    `json:"start" yaml:"start"`
	Size     int64    `json:"size" yaml:"size"`
	Selector Selector `json:"selector,omitempty" yaml:"selector,omitempty"`
}

// Index returns the wallet index picked for (vu, iter).
func (r WalletRange) Index(vu int, iter int64) int64 {
	n := iter
	if r.Selector == SelectByVU {
		n = int64(vu)
	}
	return r.Start + n%r.Size
}

// Pick returns the wallet id picked for (vu, iter).
func (r WalletRange) Pick(vu int, iter int64) uuid.UUID {
	return identity.MustWalletID(r.Index(vu, iter))
}

func (r WalletRange) validate(field string) error {
	if r.Size <= 0 {
		return fmt.Errorf("%s.size must be > 0", field)
	}
	if r.Start < 0 {
		return fmt.Errorf("%s.start cannot be negative", field)
	}
	// Compared by difference: Start+Size can overflow int64.
	if r.Start >= identity.MaxWalletIndex || r.Size > identity.MaxWalletIndex-r.Start {
		return fmt.Errorf("%s exceeds the wallet id space (max index %d)", field, identity.MaxWalletIndex-1)
	}
	switch r.Selector {
	case "", SelectByIteration, SelectByVU:
	default:
		return fmt.Errorf("%s.selector: unknown selector %q", field, r.Selector)
	}
	return nil
}

// Scopes lists the token scope set used per operation kind.
type Scopes struct {
	CreateWallet string `json:"createWallet,omitempty" yaml:"createWallet,omitempty"`
	Transfer     string `json:"transfer,omitempty" yaml:"transfer,omitempty"`
	ReadBalance  string `json:"readBalance,omitempty" yaml:"readBalance,omitempty"`
}

// Config describes what each iteration does.
type Config struct {
	// Tag prefixes idempotency keys and seeds the operation mix.
	Tag string

	// RunID, when set, is folded into idempotency keys so repeated runs
	// against the same service never replay each other's keys.
	RunID string

	Asset  string
	Amount string

	Source      WalletRange
	Destination WalletRange

	// TransferRatio is the fraction of iterations that transfer; the rest
	// read the source wallet's balance.
	TransferRatio float64

	// CreateWallets prefixes each iteration with wallet creation for the
	// source and destination.
	CreateWallets bool

	Scopes Scopes
}

// Validate checks the configuration. Builder relies on it: wallet
// selection panics on ranges Validate would reject.
func (c *Config) Validate() error {
	if c.Tag == "" {
		return fmt.Errorf("tag is required")
	}
	if n := len(c.Asset); n < 3 || n > 12 {
		return fmt.Errorf("asset %q must be 3-12 characters", c.Asset)
	}
	if c.TransferRatio < 0 || c.TransferRatio > 1 {
		return fmt.Errorf("transferRatio %v must be within [0, 1]", c.TransferRatio)
	}
	if c.TransferRatio > 0 {
		amount, err := strconv.ParseFloat(c.Amount, 64)
		if err != nil || amount <= 0 {
			return fmt.Errorf("amount %q must be a positive decimal", c.Amount)
		}
	}
	if err := c.Source.validate("source"); err != nil {
		return err
	}
	return c.Destination.validate("destination")
}

// Iteration is the ordered operation list for one VU iteration.
type Iteration struct {
	VU         int
	Index      int64
	Operations []Operation
}

// Builder turns (vu, iteration) pairs into operations. It holds no mutable
// state and is shared by all VUs.
type Builder struct {
	cfg Config
}

// NewBuilder validates cfg and returns a Builder.
func NewBuilder(cfg Config) (*Builder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid workload: %w", err)
	}
	return &Builder{cfg: cfg}, nil
}

// Config returns the builder's configuration.
func (b *Builder) Config() Config {
	return b.cfg
}

// Build returns the operations for iteration iter of VU vu. The result
// depends only on (vu, iter) and the configuration.
func (b *Builder) Build(vu int, iter int64) Iteration {
	from := b.cfg.Source.Pick(vu, iter)
	to := b.cfg.Destination.Pick(vu, iter)

	it := Iteration{VU: vu, Index: iter}

	if b.cfg.CreateWallets {
		it.Operations = append(it.Operations,
			CreateWallet{WalletID: from, Asset: b.cfg.Asset, Scope: b.cfg.Scopes.CreateWallet},
			CreateWallet{WalletID: to, Asset: b.cfg.Asset, Scope: b.cfg.Scopes.CreateWallet},
		)
	}

	if b.transfers(vu, iter) {
		it.Operations = append(it.Operations, Transfer{
			From:   from,
			To:     to,
			Amount: b.cfg.Amount,
			Asset:  b.cfg.Asset,
			Key:    IdempotencyKey(b.cfg.Tag, b.cfg.RunID, vu, iter),
			Scope:  b.cfg.Scopes.Transfer,
		})
	} else {
		it.Operations = append(it.Operations, ReadBalance{WalletID: from, Scope: b.cfg.Scopes.ReadBalance})
	}

	return it
}

// transfers decides the operation mix from a hash of (tag, vu, iter).
func (b *Builder) transfers(vu int, iter int64) bool {
	switch {
	case b.cfg.TransferRatio >= 1:
		return true
	case b.cfg.TransferRatio <= 0:
		return false
	}
	return unitHash(b.cfg.Tag, vu, iter) < b.cfg.TransferRatio
}

// unitHash maps (tag, vu, iter) to [0, 1).
func unitHash(tag string, vu int, iter int64) float64 {
	h := xxhash.Sum64String(tag + "/" + strconv.Itoa(vu) + "/" + strconv.FormatInt(iter, 10))
	return float64(h>>11) / (1 << 53)
}

// IdempotencyKey derives the key for a transfer. Distinct (vu, iter) pairs
// never share a key within a tag and run, and rebuilding the same pair
// yields the same key, so a client-side retry deduplicates server-side.
func IdempotencyKey(tag, runID string, vu int, iter int64) string {
	var sb strings.Builder
	sb.WriteString(tag)
	sb.WriteByte('-')
	if runID != "" {
		sb.WriteString(runID)
		sb.WriteByte('-')
	}
	sb.WriteString(strconv.Itoa(vu))
	sb.WriteByte('-')
	sb.WriteString(strconv.FormatInt(iter, 10))
	return sb.String()
}
