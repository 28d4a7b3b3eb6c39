package listener

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"slices"
	"strings"
	"time"

	"github.com/olehkaliuzhnyi/sword-dapp/pkg/models"
)

// StateFetcher abstracts the node RPC calls the listener polls.
// In production: wraps eth_chainId + eth_accounts.
type StateFetcher interface {
	// ChainID returns the network identifier the node currently serves.
	ChainID(ctx context.Context) (*big.Int, error)
	// NodeAccounts returns the accounts the node itself manages.
	NodeAccounts(ctx context.Context) ([]string, error)
}

// PollingConfig holds configuration for the polling listener.
type PollingConfig struct {
	WatchAccounts bool // also poll eth_accounts for drift
}

// PollingListener detects provider-side changes by periodic polling.
// The first successful poll sets the baseline; every later difference is
// emitted once as a ProviderEvent.
type PollingListener struct {
	pollInterval time.Duration
	events       chan models.ProviderEvent
	fetcher      StateFetcher
	cfg          PollingConfig

	chainID  *big.Int
	accounts []string
	primed   bool

	logger *slog.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

func NewPollingListener(pollInterval time.Duration, fetcher StateFetcher, cfg PollingConfig) *PollingListener {
	return &PollingListener{
		pollInterval: pollInterval,
		events:       make(chan models.ProviderEvent, 16),
		fetcher:      fetcher,
		cfg:          cfg,
		done:         make(chan struct{}),
		logger:       slog.Default().With("component", "listener"),
	}
}

func (l *PollingListener) Start(ctx context.Context) error {
	ctx, l.cancel = context.WithCancel(ctx)

	l.logger.Info("starting provider listener",
		"poll_interval", l.pollInterval,
		"watch_accounts", l.cfg.WatchAccounts,
	)

	go l.pollLoop(ctx)
	return nil
}

func (l *PollingListener) Stop() error {
	if l.cancel != nil {
		l.cancel()
		<-l.done // wait for pollLoop to exit
	}
	close(l.events)
	l.logger.Info("listener stopped")
	return nil
}

// Events returns the channel of detected provider changes.
func (l *PollingListener) Events() <-chan models.ProviderEvent {
	return l.events
}

func (l *PollingListener) pollLoop(ctx context.Context) {
	defer close(l.done)

	// establish the baseline right away rather than one interval late
	if err := l.poll(ctx); err != nil {
		l.logger.Error("poll failed", "error", err)
	}

	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.poll(ctx); err != nil {
				l.logger.Error("poll failed", "error", err)
			}
		}
	}
}

func (l *PollingListener) poll(ctx context.Context) error {
	chainID, err := l.fetcher.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("chain id: %w", err)
	}

	var accounts []string
	if l.cfg.WatchAccounts {
		accounts, err = l.fetcher.NodeAccounts(ctx)
		if err != nil {
			return fmt.Errorf("accounts: %w", err)
		}
	}

	if !l.primed {
		l.chainID = chainID
		l.accounts = accounts
		l.primed = true
		return nil
	}

	if l.chainID.Cmp(chainID) != 0 {
		l.logger.Warn("network changed", "old_chain_id", l.chainID, "new_chain_id", chainID)
		l.chainID = chainID
		if err := l.emit(ctx, models.ProviderEvent{Kind: models.ChainChanged, ChainID: new(big.Int).Set(chainID)}); err != nil {
			return err
		}
	}

	if l.cfg.WatchAccounts && !sameAccounts(l.accounts, accounts) {
		l.logger.Warn("accounts changed", "old", l.accounts, "new", accounts)
		l.accounts = accounts
		if err := l.emit(ctx, models.ProviderEvent{Kind: models.AccountsChanged, Accounts: slices.Clone(accounts)}); err != nil {
			return err
		}
	}

	return nil
}

func (l *PollingListener) emit(ctx context.Context, ev models.ProviderEvent) error {
	select {
	case l.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func sameAccounts(a, b []string) bool {
	return slices.EqualFunc(a, b, strings.EqualFold)
}
