package swordctl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/olehkaliuzhnyi/sword-dapp/internal/config"
	"github.com/olehkaliuzhnyi/sword-dapp/internal/contract"
	"github.com/olehkaliuzhnyi/sword-dapp/internal/controller"
	"github.com/olehkaliuzhnyi/sword-dapp/internal/provider"
	"github.com/olehkaliuzhnyi/sword-dapp/internal/storage"
	"github.com/olehkaliuzhnyi/sword-dapp/internal/telemetry"
	"github.com/olehkaliuzhnyi/sword-dapp/internal/tx"
	"github.com/olehkaliuzhnyi/sword-dapp/internal/wallet"
)

var errNoKey = errors.New("no wallet key configured: set SWORD_MNEMONIC or SWORD_PRIVATE_KEY")

// app is the process-wide wiring shared by every page load: the provider
// outlives controllers, so a reload reuses the same keyring and connection.
type app struct {
	cfg      config.Config
	env      *controller.Env
	provider *provider.RPC
	tracker  *tx.Tracker
	shutdown telemetry.ShutdownFunc
	logger   *slog.Logger
}

// openApp detects the provider. A missing key or an unreachable node is not
// an error here: the environment completes without a provider and the
// controller reports it.
func openApp(ctx context.Context, cfg config.Config) (*app, error) {
	shutdown, err := telemetry.Setup(ctx, "swordctl", cfg.OTelEndpoint)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	a := &app{
		cfg:      cfg,
		env:      controller.NewEnv(),
		shutdown: shutdown,
		logger:   slog.Default().With("component", "app"),
	}

	signer, err := newSigner(cfg)
	if err != nil {
		if !errors.Is(err, errNoKey) {
			_ = shutdown(ctx)
			return nil, err
		}
		a.logger.Warn("wallet unavailable", "error", err)
		a.env.Complete(nil)
		return a, nil
	}

	var popts []provider.Option
	if cfg.AccountsFile != "" {
		store, err := storage.OpenFileAccountStore(cfg.AccountsFile)
		if err != nil {
			_ = shutdown(ctx)
			return nil, err
		}
		popts = append(popts, provider.WithAccountStore(store))
	}

	rp, err := provider.Detect(ctx, cfg.RPCURL, signer, popts...)
	if err != nil {
		if !errors.Is(err, provider.ErrNotFound) {
			_ = shutdown(ctx)
			return nil, err
		}
		a.logger.Warn("wallet provider not detected", "rpc_url", cfg.RPCURL, "error", err)
		a.env.Complete(nil)
		return a, nil
	}

	a.provider = rp
	a.tracker = tx.NewTracker(tx.TrackerConfig{PollInterval: cfg.ReceiptPollInterval}, rp.Backend(), storage.NewMemoryTxStore())
	a.env.Complete(rp)
	return a, nil
}

func newSigner(cfg config.Config) (wallet.Signer, error) {
	switch {
	case cfg.Mnemonic != "":
		return wallet.NewKeyringFromMnemonic(cfg.Mnemonic, cfg.AccountCount)
	case cfg.PrivateKey != "":
		return wallet.NewKeyringFromPrivateKey(cfg.PrivateKey)
	default:
		return nil, errNoKey
	}
}

// watch starts change detection on the provider, if there is one.
func (a *app) watch(ctx context.Context) error {
	if a.provider == nil {
		return nil
	}
	return a.provider.Watch(ctx, a.cfg.ChainPollInterval, a.cfg.WatchNodeAccounts)
}

func (a *app) contractAddress() common.Address {
	if !common.IsHexAddress(a.cfg.ContractAddress) {
		a.logger.Warn("contract address is not a hex address", "address", a.cfg.ContractAddress)
	}
	return common.HexToAddress(a.cfg.ContractAddress)
}

func (a *app) options() controller.Options {
	opts := controller.Options{
		ExpectedChainID: big.NewInt(a.cfg.ExpectedChainID),
		ContractAddress: a.contractAddress(),
		ABI:             contract.SwordCollectionABI,
		GasLimit:        a.cfg.IncrementGasLimit,
		Binder:          a.bind,
	}
	if a.tracker != nil {
		opts.Tracker = a.tracker
	}
	return opts
}

func (a *app) bind(address common.Address, abiJSON string) (controller.Counter, error) {
	if a.provider == nil {
		return nil, controller.ErrProviderUnavailable
	}
	h, err := contract.Bind(address, abiJSON, a.provider.Backend())
	if err != nil {
		return nil, err
	}
	return h, nil
}

// checkedHandle binds the contract directly after confirming the network,
// for calls the controller does not model.
func (a *app) checkedHandle(ctx context.Context) (*contract.Handle, error) {
	if a.provider == nil {
		return nil, controller.ErrProviderUnavailable
	}
	id, err := a.provider.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain id: %w", err)
	}
	if id.Cmp(big.NewInt(a.cfg.ExpectedChainID)) != 0 {
		return nil, fmt.Errorf("%w: provider reports %s, expected %d", controller.ErrNetworkMismatch, id, a.cfg.ExpectedChainID)
	}
	return contract.Bind(a.contractAddress(), contract.SwordCollectionABI, a.provider.Backend())
}

// incrementNumber sends increment() from the first authorized account
// through the tracker and reads number() once the receipt lands.
func (a *app) incrementNumber(ctx context.Context, onHash func(common.Hash)) (*types.Receipt, *big.Int, error) {
	h, err := a.checkedHandle(ctx)
	if err != nil {
		return nil, nil, err
	}
	accounts, err := a.provider.RequestAccounts(ctx)
	if err != nil {
		return nil, nil, err
	}
	if len(accounts) == 0 {
		return nil, nil, controller.ErrNoActiveAccount
	}
	from := accounts[0]

	send := func(ctx context.Context) (*types.Transaction, error) {
		opts, err := a.provider.Transactor(ctx, from)
		if err != nil {
			return nil, fmt.Errorf("transactor: %w", err)
		}
		opts.Value = big.NewInt(0)
		opts.GasLimit = a.cfg.IncrementGasLimit
		return h.Increment(opts)
	}
	receipt, err := a.tracker.Track(ctx, tx.NewPending(contract.MethodIncrement, from), send, tx.Hooks{OnHash: onHash})
	if err != nil {
		return nil, nil, err
	}
	n, err := h.Number(ctx)
	if err != nil {
		return receipt, nil, err
	}
	return receipt, n, nil
}

func (a *app) Close(ctx context.Context) {
	if a.provider != nil {
		a.provider.Close()
	}
	if err := a.shutdown(ctx); err != nil {
		a.logger.Warn("telemetry shutdown", "error", err)
	}
}
