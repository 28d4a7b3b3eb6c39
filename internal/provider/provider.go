// Package provider implements the wallet provider capability: account
// authorization, network identity, change notifications and signing, backed
// by an Ethereum JSON-RPC node and a local keyring.
package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/olehkaliuzhnyi/sword-dapp/internal/listener"
	"github.com/olehkaliuzhnyi/sword-dapp/internal/storage"
	"github.com/olehkaliuzhnyi/sword-dapp/internal/wallet"
	"github.com/olehkaliuzhnyi/sword-dapp/pkg/models"
)

var (
	// ErrAuthorizationDenied is returned when the user rejects an account request.
	ErrAuthorizationDenied = errors.New("account authorization denied")
	// ErrNotFound is returned by Detect when no provider can be reached.
	ErrNotFound = errors.New("wallet provider not found")
)

// Approver decides whether the accounts may be exposed to the client.
// Returning an error denies the request.
type Approver func(ctx context.Context, accounts []common.Address) error

// AutoApprove grants every request.
func AutoApprove(context.Context, []common.Address) error { return nil }

// RPC is a wallet provider backed by a JSON-RPC node. The node supplies
// chain state; the signer holds the keys.
type RPC struct {
	rpc      *rpc.Client
	client   *ethclient.Client
	signer   wallet.Signer
	accounts storage.AccountStore
	approver Approver
	logger   *slog.Logger

	accountsFeed event.Feed
	chainFeed    event.Feed

	mu       sync.Mutex
	listener *listener.PollingListener
	fwdDone  chan struct{}
}

// Option configures an RPC provider.
type Option func(*RPC)

// WithApprover installs the authorization prompt.
func WithApprover(a Approver) Option {
	return func(p *RPC) { p.approver = a }
}

// WithAccountStore replaces the in-memory authorization store.
func WithAccountStore(s storage.AccountStore) Option {
	return func(p *RPC) { p.accounts = s }
}

// New wraps an already dialed client.
func New(client *rpc.Client, signer wallet.Signer, opts ...Option) *RPC {
	p := &RPC{
		rpc:      client,
		client:   ethclient.NewClient(client),
		signer:   signer,
		accounts: storage.NewMemoryAccountStore(),
		approver: AutoApprove,
		logger:   slog.Default().With("component", "provider"),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Detect dials url. An empty url or an unreachable node yields ErrNotFound.
func Detect(ctx context.Context, url string, signer wallet.Signer, opts ...Option) (*RPC, error) {
	if strings.TrimSpace(url) == "" {
		return nil, ErrNotFound
	}
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrNotFound, url, err)
	}
	p := New(client, signer, opts...)
	if _, err := p.ChainID(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return p, nil
}

// RequestAccounts asks the user to authorize the signer's accounts.
// Emits an accounts-changed event when the authorized set changes.
func (p *RPC) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	candidates := p.signer.Accounts()
	if err := p.approver(ctx, candidates); err != nil {
		p.logger.Warn("account request rejected", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrAuthorizationDenied, err)
	}

	addrs := make([]string, len(candidates))
	for i, a := range candidates {
		addrs[i] = a.Hex()
	}
	changed, err := p.accounts.Authorize(addrs...)
	if err != nil {
		return nil, fmt.Errorf("authorize: %w", err)
	}

	accounts, err := p.Accounts(ctx)
	if err != nil {
		return nil, err
	}
	if changed {
		p.logger.Info("accounts authorized", "count", len(accounts))
		p.accountsFeed.Send(accounts)
	}
	return accounts, nil
}

// RevokeAccounts drops every authorization, as a wallet's "disconnect site".
func (p *RPC) RevokeAccounts(ctx context.Context) error {
	current, err := p.accounts.List()
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}
	for _, a := range current {
		if _, err := p.accounts.Revoke(a); err != nil {
			return fmt.Errorf("revoke %s: %w", a, err)
		}
	}
	if len(current) > 0 {
		p.accountsFeed.Send([]common.Address{})
	}
	return nil
}

// Accounts returns the authorized accounts; the first is active.
func (p *RPC) Accounts(ctx context.Context) ([]common.Address, error) {
	list, err := p.accounts.List()
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	out := make([]common.Address, len(list))
	for i, a := range list {
		out[i] = common.HexToAddress(a)
	}
	return out, nil
}

// ChainID returns the network identifier reported by the node.
func (p *RPC) ChainID(ctx context.Context) (*big.Int, error) {
	id, err := p.client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain id: %w", err)
	}
	return id, nil
}

// NodeAccounts returns the accounts the node itself manages (eth_accounts).
func (p *RPC) NodeAccounts(ctx context.Context) ([]string, error) {
	var accounts []common.Address
	if err := p.rpc.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, fmt.Errorf("eth_accounts: %w", err)
	}
	out := make([]string, len(accounts))
	for i, a := range accounts {
		out[i] = a.Hex()
	}
	return out, nil
}

// SubscribeAccountsChanged delivers the new account list once per change.
func (p *RPC) SubscribeAccountsChanged(ch chan<- []common.Address) event.Subscription {
	return p.accountsFeed.Subscribe(ch)
}

// SubscribeChainChanged delivers the new chain id once per change.
func (p *RPC) SubscribeChainChanged(ch chan<- *big.Int) event.Subscription {
	return p.chainFeed.Subscribe(ch)
}

// Backend returns the node client for contract binding.
func (p *RPC) Backend() *ethclient.Client {
	return p.client
}

// Transactor returns signing options for from on the node's current chain.
func (p *RPC) Transactor(ctx context.Context, from common.Address) (*bind.TransactOpts, error) {
	chainID, err := p.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	return p.signer.Transactor(ctx, from, chainID)
}

// Watch starts polling the node for chain and account drift and republishes
// changes on the subscription feeds. It returns immediately.
func (p *RPC) Watch(ctx context.Context, interval time.Duration, watchNodeAccounts bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.listener != nil {
		return errors.New("already watching")
	}

	l := listener.NewPollingListener(interval, p, listener.PollingConfig{WatchAccounts: watchNodeAccounts})
	if err := l.Start(ctx); err != nil {
		return fmt.Errorf("start listener: %w", err)
	}
	p.listener = l
	p.fwdDone = make(chan struct{})

	go p.forward(l.Events(), p.fwdDone)
	return nil
}

func (p *RPC) forward(events <-chan models.ProviderEvent, done chan struct{}) {
	defer close(done)
	for ev := range events {
		switch ev.Kind {
		case models.ChainChanged:
			p.chainFeed.Send(ev.ChainID)
		case models.AccountsChanged:
			accounts := make([]common.Address, len(ev.Accounts))
			for i, a := range ev.Accounts {
				accounts[i] = common.HexToAddress(a)
			}
			p.accountsFeed.Send(accounts)
		}
	}
}

// Close stops watching and releases the connection.
func (p *RPC) Close() {
	p.mu.Lock()
	l, done := p.listener, p.fwdDone
	p.listener = nil
	p.mu.Unlock()

	if l != nil {
		if err := l.Stop(); err != nil {
			p.logger.Error("stop listener failed", "error", err)
		}
		<-done
	}
	p.rpc.Close()
}
