package tx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/google/uuid"

	"github.com/olehkaliuzhnyi/sword-dapp/internal/storage"
	"github.com/olehkaliuzhnyi/sword-dapp/pkg/models"
)

// ErrTransactionReverted is returned when a write fails before or during
// execution.
var ErrTransactionReverted = errors.New("transaction reverted")

// ErrAlreadyTracked is returned when a record id is already in the store.
var ErrAlreadyTracked = errors.New("transaction already tracked")

// RevertError describes a failed write. TxHash is zero when the transaction
// was rejected before it was broadcast.
type RevertError struct {
	TxHash common.Hash
	Reason string
	Err    error
}

func (e *RevertError) Error() string {
	if e.TxHash == (common.Hash{}) {
		return fmt.Sprintf("transaction rejected: %s", e.Reason)
	}
	return fmt.Sprintf("transaction %s reverted: %s", e.TxHash.Hex(), e.Reason)
}

func (e *RevertError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTransactionReverted}
	}
	return []error{ErrTransactionReverted, e.Err}
}

// ReceiptBackend is the node surface the tracker needs.
type ReceiptBackend interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// SendFunc broadcasts the transaction and returns it.
type SendFunc func(ctx context.Context) (*types.Transaction, error)

// Hooks are lifecycle callbacks. Each fires at most once per Track call.
type Hooks struct {
	OnHash    func(hash common.Hash)
	OnReceipt func(receipt *types.Receipt)
}

// TrackerConfig holds configurable parameters for the tracker.
type TrackerConfig struct {
	PollInterval time.Duration
}

// Tracker drives one write through submitted → hash_received →
// confirmed | reverted. There is no retry: a failed send is terminal.
type Tracker struct {
	backend ReceiptBackend
	txStore storage.TxStore
	logger  *slog.Logger
	cfg     TrackerConfig
}

// NewTracker creates a tracker that polls backend for receipts.
func NewTracker(cfg TrackerConfig, backend ReceiptBackend, txs storage.TxStore) *Tracker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &Tracker{
		backend: backend,
		txStore: txs,
		logger:  slog.Default().With("component", "tx_tracker"),
		cfg:     cfg,
	}
}

// NewPending returns a fresh record in the submitted stage.
func NewPending(method string, from common.Address) *models.PendingTransaction {
	return &models.PendingTransaction{
		ID:     uuid.NewString(),
		Method: method,
		From:   from.Hex(),
		Stage:  models.TxSubmitted,
	}
}

// NewSwordPending returns a submitted incrementSword-style record for c.
func NewSwordPending(method string, c models.Category, from common.Address) *models.PendingTransaction {
	p := NewPending(method, from)
	p.Category = &c
	return p
}

// InFlight lists transactions that have not reached a terminal stage,
// including ones whose tracking was abandoned when ctx ended.
func (t *Tracker) InFlight() ([]*models.PendingTransaction, error) {
	return t.txStore.List()
}

// Track sends the transaction and blocks until its receipt is known or ctx
// ends. pending is updated in place as stages advance. Terminal records are
// removed from the store; a record abandoned mid-flight stays listed.
func (t *Tracker) Track(ctx context.Context, pending *models.PendingTransaction, send SendFunc, hooks Hooks) (*types.Receipt, error) {
	existing, err := t.txStore.Get(pending.ID)
	if err != nil {
		return nil, fmt.Errorf("tx store get: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyTracked, pending.ID)
	}
	if err := t.txStore.Put(pending); err != nil {
		return nil, fmt.Errorf("tx store put: %w", err)
	}
	defer t.settle(pending)

	attrs := []any{"id", pending.ID, "method", pending.Method, "from", pending.From}
	if pending.Category != nil {
		attrs = append(attrs, "category", pending.Category.String())
	}
	t.logger.Info("submitting transaction", attrs...)

	signed, err := send(ctx)
	if err != nil {
		pending.Stage = models.TxReverted
		return nil, &RevertError{Reason: revertReason(err), Err: err}
	}

	pending.Stage = models.TxHashReceived
	pending.TxHash = signed.Hash().Hex()
	if err := t.txStore.Put(pending); err != nil {
		t.logger.Warn("tx store update failed", "id", pending.ID, "error", err)
	}
	t.logger.Info("transaction hash known", "id", pending.ID, "tx_hash", pending.TxHash)
	if hooks.OnHash != nil {
		hooks.OnHash(signed.Hash())
	}

	receipt, err := t.waitReceipt(ctx, signed.Hash())
	if err != nil {
		return nil, fmt.Errorf("wait receipt %s: %w", pending.TxHash, err)
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		pending.Stage = models.TxReverted
		return receipt, &RevertError{
			TxHash: receipt.TxHash,
			Reason: t.replayReason(ctx, pending, signed, receipt),
		}
	}

	pending.Stage = models.TxConfirmed
	t.logger.Info("transaction confirmed",
		"id", pending.ID,
		"tx_hash", pending.TxHash,
		"block", receipt.BlockNumber,
		"gas_used", receipt.GasUsed,
	)
	if hooks.OnReceipt != nil {
		hooks.OnReceipt(receipt)
	}
	return receipt, nil
}

// settle drops terminal records and keeps the rest visible in InFlight.
func (t *Tracker) settle(pending *models.PendingTransaction) {
	if !pending.Stage.Terminal() {
		t.logger.Warn("transaction tracking abandoned", "id", pending.ID, "stage", pending.Stage, "tx_hash", pending.TxHash)
		return
	}
	if err := t.txStore.Delete(pending.ID); err != nil {
		t.logger.Error("tx store delete failed", "id", pending.ID, "error", err)
	}
}

func (t *Tracker) waitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := t.backend.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			t.logger.Warn("receipt query failed", "tx_hash", hash.Hex(), "error", err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// replayReason re-executes the failed call at its block to recover the
// revert message.
func (t *Tracker) replayReason(ctx context.Context, pending *models.PendingTransaction, signed *types.Transaction, receipt *types.Receipt) string {
	msg := ethereum.CallMsg{
		From:  common.HexToAddress(pending.From),
		To:    signed.To(),
		Gas:   signed.Gas(),
		Value: signed.Value(),
		Data:  signed.Data(),
	}
	if _, err := t.backend.CallContract(ctx, msg, receipt.BlockNumber); err != nil {
		return revertReason(err)
	}
	return "execution reverted"
}

// revertReason extracts a human-readable reason from a node error, decoding
// Error(string) revert data when the node returns it.
func revertReason(err error) string {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if s, ok := dataErr.ErrorData().(string); ok {
			if data, derr := hexutil.Decode(s); derr == nil {
				if reason, uerr := abi.UnpackRevert(data); uerr == nil {
					return reason
				}
			}
		}
	}
	return err.Error()
}
