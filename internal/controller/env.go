package controller

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"

	"github.com/olehkaliuzhnyi/sword-dapp/internal/tx"
	"github.com/olehkaliuzhnyi/sword-dapp/pkg/models"
)

// Provider is the wallet capability the controller consumes.
type Provider interface {
	// RequestAccounts asks the user to authorize accounts; may prompt.
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	// RevokeAccounts drops every authorization.
	RevokeAccounts(ctx context.Context) error
	// Accounts returns the already authorized accounts, active first.
	Accounts(ctx context.Context) ([]common.Address, error)
	// ChainID returns the currently selected network identifier.
	ChainID(ctx context.Context) (*big.Int, error)
	// SubscribeAccountsChanged sends once per account change.
	SubscribeAccountsChanged(ch chan<- []common.Address) event.Subscription
	// SubscribeChainChanged sends once per network change.
	SubscribeChainChanged(ch chan<- *big.Int) event.Subscription
	// Transactor returns signing options for from.
	Transactor(ctx context.Context, from common.Address) (*bind.TransactOpts, error)
}

// Counter is the bound SwordCollection contract.
type Counter interface {
	SwordCount(ctx context.Context, c models.Category) (*big.Int, error)
	IncrementSword(opts *bind.TransactOpts, c models.Category) (*types.Transaction, error)
}

// Binder builds the contract handle against the session's provider.
type Binder func(address common.Address, abiJSON string) (Counter, error)

// Tracker drives a write through its lifecycle.
type Tracker interface {
	Track(ctx context.Context, pending *models.PendingTransaction, send tx.SendFunc, hooks tx.Hooks) (*types.Receipt, error)
}

// Reloader discards the current page load and starts a fresh one.
// Reload is called from the session's event goroutine and must not block
// on that session's Close.
type Reloader interface {
	Reload(reason string)
}

// ReloadFunc adapts a function to Reloader.
type ReloadFunc func(reason string)

func (f ReloadFunc) Reload(reason string) { f(reason) }

// ErrorHandler receives write-path failures.
type ErrorHandler func(err error)

// Environment is what the controller finds when the page loads.
type Environment interface {
	// Loaded is closed once the page has finished loading.
	Loaded() <-chan struct{}
	// Provider returns the injected provider, if any.
	Provider() (Provider, bool)
}

// Env is an Environment whose load completes when Complete is called.
type Env struct {
	once     sync.Once
	loaded   chan struct{}
	mu       sync.RWMutex
	provider Provider
}

func NewEnv() *Env {
	return &Env{loaded: make(chan struct{})}
}

// Complete marks the load finished. p may be nil when no provider exists.
// Only the first call has any effect.
func (e *Env) Complete(p Provider) {
	e.once.Do(func() {
		e.mu.Lock()
		e.provider = p
		e.mu.Unlock()
		close(e.loaded)
	})
}

func (e *Env) Loaded() <-chan struct{} {
	return e.loaded
}

func (e *Env) Provider() (Provider, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.provider, e.provider != nil
}
