// Package controller sequences the wallet connection: provider detection,
// network check, contract binding, account discovery, and the two contract
// operations with their transaction lifecycle reflected into the page.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/olehkaliuzhnyi/sword-dapp/internal/contract"
	"github.com/olehkaliuzhnyi/sword-dapp/internal/provider"
	"github.com/olehkaliuzhnyi/sword-dapp/internal/tx"
	"github.com/olehkaliuzhnyi/sword-dapp/internal/ui"
	"github.com/olehkaliuzhnyi/sword-dapp/pkg/models"
)

var (
	ErrProviderUnavailable = errors.New("wallet provider unavailable")
	ErrNetworkMismatch     = errors.New("network mismatch")
	ErrAuthorizationDenied = provider.ErrAuthorizationDenied
	ErrTransactionReverted = tx.ErrTransactionReverted
	ErrNotBound            = errors.New("contract not bound")
	ErrAlreadyBound        = errors.New("contract already bound")
	ErrNoActiveAccount     = errors.New("no active account")
	ErrAlreadyInitialized  = errors.New("controller already initialized")
	ErrClosed              = errors.New("controller closed")
)

// Status texts written to the status slot.
const (
	MsgConnectPrompt  = "Please connect to your wallet"
	MsgInstallWallet  = "Error: Please install a wallet"
	MsgConnected      = "Connected to wallet"
	MsgAccountChanged = "Account changed, refreshing..."
	MsgNetworkChanged = "Network changed, refreshing..."
	MsgExecuting      = "Executing..."
	MsgSuccess        = "Success."
)

// Options configures a Controller.
type Options struct {
	ExpectedChainID *big.Int
	ContractAddress common.Address
	ABI             string
	// GasLimit is sent with incrementSword unchanged, including zero.
	GasLimit uint64

	Binder   Binder
	Tracker  Tracker
	Sink     ui.Sink
	Reloader Reloader
	OnError  ErrorHandler
}

// Controller owns one page load. It is initialized once and discarded on
// reload; a fresh Controller serves the next load.
type Controller struct {
	env    Environment
	opts   Options
	logger *slog.Logger
	tracer trace.Tracer

	// sink and onError drop writes once the page load is gone.
	sink    ui.Sink
	onError ErrorHandler

	// life ends when Close is called; every operation runs under it.
	life   context.Context
	cancel context.CancelFunc

	// gate orders page writes against Close: after Close returns, no
	// write from this controller reaches the sink.
	gate sync.RWMutex
	gone bool

	mu          sync.Mutex
	state       models.ConnectionState
	session     *Session
	summary     string
	initialized bool
	closed      bool
}

// New creates a controller in the uninitialized state.
func New(env Environment, opts Options) *Controller {
	if opts.Reloader == nil {
		opts.Reloader = ReloadFunc(func(string) {})
	}
	if opts.Sink == nil {
		opts.Sink = discardSink{}
	}
	c := &Controller{
		env:    env,
		opts:   opts,
		state:  models.StateUninitialized,
		logger: slog.Default().With("component", "controller"),
		tracer: otel.Tracer("github.com/olehkaliuzhnyi/sword-dapp/internal/controller"),
	}
	c.sink = gatedSink{c: c, next: opts.Sink}
	c.onError = func(err error) {
		if opts.OnError == nil {
			return
		}
		c.gate.RLock()
		defer c.gate.RUnlock()
		if !c.gone {
			opts.OnError(err)
		}
	}
	c.life, c.cancel = context.WithCancel(context.Background())
	return c
}

// scope ties ctx to the controller's lifetime.
func (c *Controller) scope(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(c.life, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (c *Controller) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Initialize runs the connection sequence once. Provider and network
// problems are shown on the page and also returned.
func (c *Controller) Initialize(ctx context.Context) (err error) {
	ctx, done := c.scope(ctx)
	defer done()
	ctx, span := c.tracer.Start(ctx, "controller.Initialize")
	defer func() { endSpan(span, err) }()

	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case c.initialized:
		c.mu.Unlock()
		return ErrAlreadyInitialized
	}
	c.initialized = true
	c.state = models.StateAwaitingProvider
	c.mu.Unlock()

	c.sink.SetText(ui.SlotStatus, MsgConnectPrompt)

	select {
	case <-c.env.Loaded():
	case <-ctx.Done():
		return ctx.Err()
	}

	p, ok := c.env.Provider()
	if !ok {
		c.setState(models.StateProviderUnavailable)
		c.sink.SetText(ui.SlotStatus, MsgInstallWallet)
		c.logger.Error("no wallet provider found")
		return ErrProviderUnavailable
	}

	s := newSession(p)
	s.listen(c.onProviderChange)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		s.close()
		return ErrClosed
	}
	c.session = s
	c.mu.Unlock()

	chainID, err := p.ChainID(ctx)
	if err != nil {
		c.readFailed("chain id", err)
		return fmt.Errorf("chain id: %w", err)
	}

	if err := c.CheckNetwork(chainID); err != nil {
		return err
	}
	if err := c.BindContract(c.opts.ContractAddress, c.opts.ABI); err != nil {
		return err
	}
	c.sink.SetText(ui.SlotStatus, MsgConnected)

	if _, err := c.QueryCounters(ctx); err != nil {
		c.logger.Warn("initial counter query failed", "error", err)
	}
	return c.RefreshAccounts(ctx)
}

// CheckNetwork compares id with the expected network. A mismatch halts the
// session: no contract is bound and the page asks for a network switch.
func (c *Controller) CheckNetwork(id *big.Int) error {
	s, err := c.currentSession()
	if err != nil {
		return err
	}

	if id == nil || c.opts.ExpectedChainID == nil || id.Cmp(c.opts.ExpectedChainID) != 0 {
		c.setState(models.StateNetworkMismatch)
		c.sink.SetText(ui.SlotStatus, fmt.Sprintf("Please switch to network %s", c.opts.ExpectedChainID))
		c.logger.Warn("wrong network", "chain_id", id, "expected", c.opts.ExpectedChainID)
		return fmt.Errorf("%w: provider reports %s, expected %s", ErrNetworkMismatch, id, c.opts.ExpectedChainID)
	}

	c.mu.Lock()
	s.chainID = new(big.Int).Set(id)
	c.state = models.StateProviderReady
	c.mu.Unlock()
	return nil
}

// BindContract builds the contract handle. Only valid once, after the
// network has been confirmed. Binder errors propagate unchanged.
func (c *Controller) BindContract(address common.Address, abiJSON string) error {
	c.mu.Lock()
	s := c.session
	state := c.state
	bound := s != nil && s.contract != nil
	c.mu.Unlock()

	switch {
	case s == nil:
		return ErrProviderUnavailable
	case bound:
		return ErrAlreadyBound
	case state == models.StateNetworkMismatch:
		return ErrNetworkMismatch
	case state != models.StateProviderReady:
		return fmt.Errorf("bind contract in state %s", state)
	}

	counter, err := c.opts.Binder(address, abiJSON)
	if err != nil {
		return err
	}

	c.mu.Lock()
	s.contract = counter
	c.state = models.StateContractBound
	c.mu.Unlock()

	c.logger.Info("contract bound", "address", address.Hex())
	return nil
}

// RefreshAccounts reads the authorized accounts and reveals either the
// active account or the connect button.
func (c *Controller) RefreshAccounts(ctx context.Context) (err error) {
	ctx, done := c.scope(ctx)
	defer done()
	ctx, span := c.tracer.Start(ctx, "controller.RefreshAccounts")
	defer func() { endSpan(span, err) }()

	s, _, err := c.bound()
	if err != nil {
		return err
	}

	accounts, err := s.provider.Accounts(ctx)
	if err != nil {
		c.readFailed("accounts", err)
		return fmt.Errorf("accounts: %w", err)
	}

	c.mu.Lock()
	s.accounts = append([]common.Address(nil), accounts...)
	if len(accounts) == 0 {
		c.state = models.StateDisconnected
	} else {
		c.state = models.StateConnected
	}
	c.mu.Unlock()

	if len(accounts) == 0 {
		c.sink.SetVisible(ui.SlotAccountAddress, false)
		c.sink.SetVisible(ui.SlotConnectButton, true)
		return nil
	}

	c.sink.SetText(ui.SlotAccountAddress, accounts[0].Hex())
	c.sink.SetVisible(ui.SlotAccountAddress, true)
	c.sink.SetVisible(ui.SlotConnectButton, false)
	c.logger.Info("wallet connected", "active_account", accounts[0].Hex(), "accounts", len(accounts))
	return nil
}

// ConnectWallet asks the provider for account authorization and then
// refreshes accounts. A rejection is returned to the caller untouched.
func (c *Controller) ConnectWallet(ctx context.Context) (err error) {
	ctx, done := c.scope(ctx)
	defer done()
	ctx, span := c.tracer.Start(ctx, "controller.ConnectWallet")
	defer func() { endSpan(span, err) }()

	s, _, err := c.bound()
	if err != nil {
		return err
	}

	if _, err := s.provider.RequestAccounts(ctx); err != nil {
		return fmt.Errorf("request accounts: %w", err)
	}
	return c.RefreshAccounts(ctx)
}

// DisconnectWallet drops every account authorization and refreshes
// accounts, bringing back the connect button.
func (c *Controller) DisconnectWallet(ctx context.Context) (err error) {
	ctx, done := c.scope(ctx)
	defer done()
	ctx, span := c.tracer.Start(ctx, "controller.DisconnectWallet")
	defer func() { endSpan(span, err) }()

	s, _, err := c.bound()
	if err != nil {
		return err
	}
	if err := s.provider.RevokeAccounts(ctx); err != nil {
		return fmt.Errorf("revoke accounts: %w", err)
	}
	return c.RefreshAccounts(ctx)
}

// QueryCounters reads the three counters concurrently and renders them.
func (c *Controller) QueryCounters(ctx context.Context) (counts models.SwordCounts, err error) {
	ctx, done := c.scope(ctx)
	defer done()
	ctx, span := c.tracer.Start(ctx, "controller.QueryCounters")
	defer func() { endSpan(span, err) }()

	_, counter, err := c.bound()
	if err != nil {
		return models.SwordCounts{}, err
	}

	values := make([]*big.Int, len(models.Categories))
	g, gctx := errgroup.WithContext(ctx)
	for i, cat := range models.Categories {
		i, cat := i, cat
		g.Go(func() error {
			v, err := counter.SwordCount(gctx, cat)
			if err != nil {
				return fmt.Errorf("%s count: %w", cat, err)
			}
			values[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		c.readFailed("counters", err)
		return models.SwordCounts{}, err
	}

	for i, cat := range models.Categories {
		counts.Set(cat, values[i])
	}
	summary := counts.Summary()

	c.mu.Lock()
	c.summary = summary
	c.mu.Unlock()

	c.sink.SetText(ui.SlotContractState, summary)
	return counts, nil
}

// SubmitIncrement sends incrementSword(category) from the active account
// with zero value. On confirmation the status reads "Success." and the
// counters are queried once more. Failures are logged, passed to the error
// handler and returned; the status slot is left as it was.
func (c *Controller) SubmitIncrement(ctx context.Context, category models.Category) (receipt *types.Receipt, err error) {
	ctx, done := c.scope(ctx)
	defer done()
	ctx, span := c.tracer.Start(ctx, "controller.SubmitIncrement",
		trace.WithAttributes(attribute.String("category", category.String())))
	defer func() { endSpan(span, err) }()

	s, counter, err := c.bound()
	if err != nil {
		return nil, err
	}
	from, ok := c.activeAccount(s)
	if !ok {
		return nil, ErrNoActiveAccount
	}

	opts, err := s.provider.Transactor(ctx, from)
	if err != nil {
		err = fmt.Errorf("transactor: %w", err)
		c.writeFailed(err)
		return nil, err
	}
	opts.Value = big.NewInt(0)
	opts.GasLimit = c.opts.GasLimit

	pending := tx.NewSwordPending(contract.MethodIncrementSword, category, from)
	receipt, err = c.opts.Tracker.Track(ctx, pending,
		func(ctx context.Context) (*types.Transaction, error) {
			opts.Context = ctx
			return counter.IncrementSword(opts, category)
		},
		tx.Hooks{
			OnHash:    func(common.Hash) { c.sink.SetText(ui.SlotStatus, MsgExecuting) },
			OnReceipt: func(*types.Receipt) { c.sink.SetText(ui.SlotStatus, MsgSuccess) },
		},
	)
	if err != nil {
		if c.isClosed() {
			return receipt, fmt.Errorf("%w: tracking of %s abandoned: %w", ErrClosed, pending.TxHash, err)
		}
		c.writeFailed(err)
		return receipt, err
	}
	if c.isClosed() {
		// confirmed, but the page it belonged to is gone
		return receipt, nil
	}

	if _, err := c.QueryCounters(ctx); err != nil {
		return receipt, fmt.Errorf("refresh counters: %w", err)
	}
	return receipt, nil
}

// Close ends the session and its subscriptions, cancels every operation
// still running and silences the controller's page writes. The controller
// cannot be used afterwards.
func (c *Controller) Close() {
	c.gate.Lock()
	c.gone = true
	c.gate.Unlock()
	c.cancel()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	s := c.session
	c.mu.Unlock()

	if s != nil {
		s.close()
	}
}

// State returns the current connection state.
func (c *Controller) State() models.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot is a read-only view of the controller for status endpoints.
type Snapshot struct {
	State           models.ConnectionState `json:"state"`
	ChainID         string                 `json:"chain_id,omitempty"`
	ContractAddress string                 `json:"contract_address,omitempty"`
	ActiveAccount   string                 `json:"active_account,omitempty"`
	Accounts        []string               `json:"accounts"`
	Summary         string                 `json:"summary,omitempty"`
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{State: c.state, Summary: c.summary, Accounts: []string{}}
	s := c.session
	if s == nil {
		return snap
	}
	if s.chainID != nil {
		snap.ChainID = s.chainID.String()
	}
	if s.contract != nil {
		snap.ContractAddress = c.opts.ContractAddress.Hex()
	}
	for _, a := range s.accounts {
		snap.Accounts = append(snap.Accounts, a.Hex())
	}
	if len(s.accounts) > 0 {
		snap.ActiveAccount = s.accounts[0].Hex()
	}
	return snap
}

// onProviderChange reacts to a provider event with a full reload; no state
// is repaired in place.
func (c *Controller) onProviderChange(kind models.ProviderEventKind) {
	msg := MsgAccountChanged
	if kind == models.ChainChanged {
		msg = MsgNetworkChanged
	}
	c.logger.Info("provider changed, reloading", "event", kind)
	c.sink.SetText(ui.SlotStatus, msg)
	c.opts.Reloader.Reload(msg)
}

func (c *Controller) setState(st models.ConnectionState) {
	c.mu.Lock()
	c.state = st
	c.mu.Unlock()
}

func (c *Controller) currentSession() (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if c.session == nil {
		return nil, ErrProviderUnavailable
	}
	return c.session, nil
}

func (c *Controller) bound() (*Session, Counter, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.closed:
		return nil, nil, ErrClosed
	case c.session == nil:
		return nil, nil, ErrProviderUnavailable
	case c.session.contract == nil:
		return nil, nil, ErrNotBound
	}
	return c.session, c.session.contract, nil
}

func (c *Controller) activeAccount(s *Session) (common.Address, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(s.accounts) == 0 {
		return common.Address{}, false
	}
	return s.accounts[0], true
}

// readFailed surfaces a read-path error on the page.
func (c *Controller) readFailed(what string, err error) {
	c.logger.Error("read failed", "what", what, "error", err)
	c.sink.SetText(ui.SlotStatus, fmt.Sprintf("Error: %v", err))
}

// writeFailed logs a write-path error and hands it to the error handler.
func (c *Controller) writeFailed(err error) {
	var rev *tx.RevertError
	if errors.As(err, &rev) {
		c.logger.Error("transaction reverted", "tx_hash", rev.TxHash.Hex(), "reason", rev.Reason)
	} else {
		c.logger.Error("transaction failed", "error", err)
	}
	c.onError(err)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// gatedSink forwards writes until the controller is closed.
type gatedSink struct {
	c    *Controller
	next ui.Sink
}

func (g gatedSink) SetText(slot ui.Slot, text string) {
	g.c.gate.RLock()
	defer g.c.gate.RUnlock()
	if !g.c.gone {
		g.next.SetText(slot, text)
	}
}

func (g gatedSink) SetVisible(slot ui.Slot, visible bool) {
	g.c.gate.RLock()
	defer g.c.gate.RUnlock()
	if !g.c.gone {
		g.next.SetVisible(slot, visible)
	}
}

type discardSink struct{}

func (discardSink) SetText(ui.Slot, string)  {}
func (discardSink) SetVisible(ui.Slot, bool) {}
