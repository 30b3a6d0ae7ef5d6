// Package workload synthesizes the wallet-service operations a virtual user
// performs on each iteration.
package workload

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

// Kind identifies an operation variant.
type Kind string

const (
	KindCreateWallet Kind = "create_wallet"
	KindTransfer     Kind = "transfer"
	KindReadBalance  Kind = "read_balance"
)

// Operation is one logical request against the wallet service.
//
// Implementations are immutable values: CreateWallet, Transfer and
// ReadBalance. The set is closed; the unexported method keeps other
// packages from adding variants.
type Operation interface {
	Kind() Kind
	Method() string
	Path() string
	Body() ([]byte, error)
	// Scopes is the scope set the bearer token must carry.
	Scopes() string
	// IdempotencyKey is empty for operations that do not send one.
	IdempotencyKey() string

	operation()
}

// CreateWallet registers a wallet.
type CreateWallet struct {
	WalletID uuid.UUID
	Asset    string
	Scope    string
}

func (CreateWallet) Kind() Kind             { return KindCreateWallet }
func (CreateWallet) Method() string         { return http.MethodPost }
func (CreateWallet) Path() string           { return "/v1/wallets" }
func (o CreateWallet) Scopes() string       { return o.Scope }
func (CreateWallet) IdempotencyKey() string { return "" }
func (CreateWallet) operation()             {}

func (o CreateWallet) Body() ([]byte, error) {
	return json.Marshal(struct {
		WalletID string `json:"wallet_id"`
		Asset    string `json:"asset"`
	}{o.WalletID.String(), o.Asset})
}

// Transfer moves Amount of Asset between two wallets. Amount is a decimal
// string so it reaches the service without float rounding.
type Transfer struct {
	From   uuid.UUID
	To     uuid.UUID
	Amount string
	Asset  string
	Key    string
	Scope  string
}

func (Transfer) Kind() Kind               { return KindTransfer }
func (Transfer) Method() string           { return http.MethodPost }
func (Transfer) Path() string             { return "/v1/transfers" }
func (o Transfer) Scopes() string         { return o.Scope }
func (o Transfer) IdempotencyKey() string { return o.Key }
func (Transfer) operation()               {}

func (o Transfer) Body() ([]byte, error) {
	return json.Marshal(struct {
		From   string `json:"from_wallet_id"`
		To     string `json:"to_wallet_id"`
		Amount string `json:"amount"`
		Asset  string `json:"asset"`
	}{o.From.String(), o.To.String(), o.Amount, o.Asset})
}

// ReadBalance fetches a wallet's projected balance.
type ReadBalance struct {
	WalletID uuid.UUID
	Scope    string
}

func (ReadBalance) Kind() Kind             { return KindReadBalance }
func (ReadBalance) Method() string         { return http.MethodGet }
func (o ReadBalance) Path() string         { return fmt.Sprintf("/v1/wallets/%s/balance", o.WalletID) }
func (ReadBalance) Body() ([]byte, error)  { return nil, nil }
func (o ReadBalance) Scopes() string       { return o.Scope }
func (ReadBalance) IdempotencyKey() string { return "" }
func (ReadBalance) operation()             {}

var (
	_ Operation = CreateWallet{}
	_ Operation = Transfer{}
	_ Operation = ReadBalance{}
)
