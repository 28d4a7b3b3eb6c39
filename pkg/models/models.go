package models

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// Category is a sword color as indexed by the SwordCollection contract.
type Category uint8

// Sword categories, in contract index order.
const (
	CategoryRed Category = iota
	CategoryBlue
	CategoryGreen
)

// Categories lists every category in the order they are rendered.
var Categories = []Category{CategoryRed, CategoryBlue, CategoryGreen}

func (c Category) String() string {
	switch c {
	case CategoryRed:
		return "Red"
	case CategoryBlue:
		return "Blue"
	case CategoryGreen:
		return "Green"
	default:
		return fmt.Sprintf("Category(%d)", uint8(c))
	}
}

// Index returns the contract argument for the category.
func (c Category) Index() *big.Int {
	return big.NewInt(int64(c))
}

// ParseCategory accepts a color name (case-insensitive) or a contract index.
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "red", "0":
		return CategoryRed, nil
	case "blue", "1":
		return CategoryBlue, nil
	case "green", "2":
		return CategoryGreen, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return 0, fmt.Errorf("category index %d out of range", n)
	}
	return 0, fmt.Errorf("unknown category %q", s)
}

// ConnectionState is the lifecycle state of a connection controller.
type ConnectionState string

// Connection states.
const (
	StateUninitialized       ConnectionState = "uninitialized"
	StateAwaitingProvider    ConnectionState = "awaiting_provider"
	StateProviderUnavailable ConnectionState = "provider_unavailable"
	StateNetworkMismatch     ConnectionState = "network_mismatch"
	StateProviderReady       ConnectionState = "provider_ready"
	StateContractBound       ConnectionState = "contract_bound"
	StateDisconnected        ConnectionState = "disconnected"
	StateConnected           ConnectionState = "connected"
)

// TxStage is the lifecycle stage of a pending write.
type TxStage string

// Transaction stages.
const (
	TxSubmitted    TxStage = "submitted"
	TxHashReceived TxStage = "hash_received"
	TxConfirmed    TxStage = "confirmed"
	TxReverted     TxStage = "reverted"
)

// Terminal reports whether no further stage follows.
func (s TxStage) Terminal() bool {
	return s == TxConfirmed || s == TxReverted
}

// PendingTransaction tracks one in-flight contract write
type PendingTransaction struct {
	ID       string    `json:"id"`
	Method   string    `json:"method"`
	Category *Category `json:"category,omitempty"`
	From     string    `json:"from"`
	Stage    TxStage   `json:"stage"`
	TxHash   string    `json:"tx_hash,omitempty"`
}

// SwordCounts holds one counter value per category.
type SwordCounts struct {
	Red   *big.Int `json:"red"`
	Blue  *big.Int `json:"blue"`
	Green *big.Int `json:"green"`
}

// Set stores the value for a category.
func (s *SwordCounts) Set(c Category, v *big.Int) {
	switch c {
	case CategoryRed:
		s.Red = v
	case CategoryBlue:
		s.Blue = v
	case CategoryGreen:
		s.Green = v
	}
}

// Get returns the value for a category, or nil.
func (s SwordCounts) Get(c Category) *big.Int {
	switch c {
	case CategoryRed:
		return s.Red
	case CategoryBlue:
		return s.Blue
	case CategoryGreen:
		return s.Green
	}
	return nil
}

// Summary renders the counters in Red, Blue, Green order.
func (s SwordCounts) Summary() string {
	return fmt.Sprintf("Red Swords: %s, Blue Swords: %s, Green Swords: %s",
		formatCount(s.Red), formatCount(s.Blue), formatCount(s.Green))
}

func formatCount(v *big.Int) string {
	if v == nil {
		return "?"
	}
	return v.String()
}

// ProviderEventKind identifies which provider change fired.
type ProviderEventKind string

// Provider change events.
const (
	AccountsChanged ProviderEventKind = "accountsChanged"
	ChainChanged    ProviderEventKind = "chainChanged"
)

// ProviderEvent represents a change detected on the wallet provider
type ProviderEvent struct {
	Kind     ProviderEventKind `json:"kind"`
	Accounts []string          `json:"accounts,omitempty"`
	ChainID  *big.Int          `json:"chain_id,omitempty"`
}
