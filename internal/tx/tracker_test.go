package tx

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olehkaliuzhnyi/sword-dapp/internal/storage"
	"github.com/olehkaliuzhnyi/sword-dapp/pkg/models"
)

var (
	fromAddr     = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	contractAddr = common.HexToAddress("0x00000000000000000000000000000000000000c0")
)

// dataError mimics the JSON-RPC error a node returns for a reverted call.
type dataError struct {
	msg  string
	data any
}

func (e *dataError) Error() string  { return e.msg }
func (e *dataError) ErrorData() any { return e.data }

func revertData(t *testing.T, reason string) string {
	t.Helper()
	strType, err := abi.NewType("string", "", nil)
	require.NoError(t, err)
	packed, err := abi.Arguments{{Type: strType}}.Pack(reason)
	require.NoError(t, err)
	return hexutil.Encode(append([]byte{0x08, 0xc3, 0x79, 0xa0}, packed...))
}

// mockBackend returns the receipt after a fixed number of NotFound polls.
type mockBackend struct {
	mu         sync.Mutex
	receipt    *types.Receipt
	pendingFor int
	polls      int
	callErr    error
	callBlocks []*big.Int
}

func (b *mockBackend) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.polls++
	if b.polls <= b.pendingFor || b.receipt == nil {
		return nil, ethereum.NotFound
	}
	r := *b.receipt
	r.TxHash = hash
	return &r, nil
}

func (b *mockBackend) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.callBlocks = append(b.callBlocks, blockNumber)
	return nil, b.callErr
}

func testTx() *types.Transaction {
	return types.NewTx(&types.LegacyTx{
		Nonce:    1,
		To:       &contractAddr,
		Gas:      0,
		GasPrice: big.NewInt(1),
		Value:    big.NewInt(0),
		Data:     []byte{0xde, 0xad},
	})
}

func sendOK(tx *types.Transaction) SendFunc {
	return func(ctx context.Context) (*types.Transaction, error) { return tx, nil }
}

func newTestTracker(b *mockBackend) (*Tracker, *storage.MemoryTxStore) {
	store := storage.NewMemoryTxStore()
	return NewTracker(TrackerConfig{PollInterval: 5 * time.Millisecond}, b, store), store
}

func TestTracker_Confirmed(t *testing.T) {
	b := &mockBackend{
		receipt:    &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(9)},
		pendingFor: 2,
	}
	tr, store := newTestTracker(b)
	signed := testTx()
	pending := NewSwordPending("incrementSword", models.CategoryGreen, fromAddr)

	var hashes []common.Hash
	var receipts int
	hooks := Hooks{
		OnHash: func(h common.Hash) {
			hashes = append(hashes, h)
			// while waiting for the receipt the record is in flight
			inflight, err := tr.InFlight()
			require.NoError(t, err)
			require.Len(t, inflight, 1)
			assert.Equal(t, models.TxHashReceived, inflight[0].Stage)
		},
		OnReceipt: func(*types.Receipt) { receipts++ },
	}

	receipt, err := tr.Track(context.Background(), pending, sendOK(signed), hooks)
	require.NoError(t, err)
	assert.Equal(t, signed.Hash(), receipt.TxHash)

	assert.Equal(t, []common.Hash{signed.Hash()}, hashes)
	assert.Equal(t, 1, receipts)
	assert.Equal(t, models.TxConfirmed, pending.Stage)
	assert.Equal(t, signed.Hash().Hex(), pending.TxHash)
	assert.Equal(t, 3, b.polls)

	left, _ := store.List()
	assert.Empty(t, left, "terminal transactions are removed")
}

func TestTracker_SendRejected(t *testing.T) {
	b := &mockBackend{}
	tr, store := newTestTracker(b)
	pending := NewSwordPending("incrementSword", models.CategoryRed, fromAddr)

	cause := &dataError{msg: "execution reverted", data: revertData(t, "gas limit too low")}
	var hooked bool
	_, err := tr.Track(context.Background(), pending,
		func(ctx context.Context) (*types.Transaction, error) { return nil, cause },
		Hooks{OnHash: func(common.Hash) { hooked = true }, OnReceipt: func(*types.Receipt) { hooked = true }},
	)

	require.ErrorIs(t, err, ErrTransactionReverted)
	require.ErrorIs(t, err, cause)
	var rev *RevertError
	require.ErrorAs(t, err, &rev)
	assert.Equal(t, "gas limit too low", rev.Reason)
	assert.Equal(t, common.Hash{}, rev.TxHash)

	assert.False(t, hooked)
	assert.Equal(t, models.TxReverted, pending.Stage)
	assert.Zero(t, b.polls)
	left, _ := store.List()
	assert.Empty(t, left)
}

func TestTracker_RevertedOnChain(t *testing.T) {
	b := &mockBackend{
		receipt: &types.Receipt{Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(12)},
		callErr: &dataError{msg: "execution reverted", data: revertData(t, "sold out")},
	}
	tr, _ := newTestTracker(b)
	signed := testTx()
	pending := NewSwordPending("incrementSword", models.CategoryBlue, fromAddr)

	var confirmed bool
	receipt, err := tr.Track(context.Background(), pending, sendOK(signed), Hooks{
		OnReceipt: func(*types.Receipt) { confirmed = true },
	})

	require.ErrorIs(t, err, ErrTransactionReverted)
	var rev *RevertError
	require.ErrorAs(t, err, &rev)
	assert.Equal(t, signed.Hash(), rev.TxHash)
	assert.Equal(t, "sold out", rev.Reason)
	assert.NotNil(t, receipt)
	assert.False(t, confirmed)
	assert.Equal(t, models.TxReverted, pending.Stage)

	require.Len(t, b.callBlocks, 1)
	assert.Equal(t, int64(12), b.callBlocks[0].Int64(), "reason is replayed at the receipt block")
}

func TestTracker_RevertWithoutData(t *testing.T) {
	b := &mockBackend{
		receipt: &types.Receipt{Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(1)},
		callErr: errors.New("out of gas"),
	}
	tr, _ := newTestTracker(b)

	_, err := tr.Track(context.Background(), NewSwordPending("incrementSword", models.CategoryRed, fromAddr), sendOK(testTx()), Hooks{})

	var rev *RevertError
	require.ErrorAs(t, err, &rev)
	assert.Equal(t, "out of gas", rev.Reason)
}

func TestTracker_ContextCancelledWhileWaiting(t *testing.T) {
	b := &mockBackend{} // receipt never arrives
	tr, store := newTestTracker(b)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	pending := NewSwordPending("incrementSword", models.CategoryRed, fromAddr)
	_, err := tr.Track(ctx, pending, sendOK(testTx()), Hooks{})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrTransactionReverted)

	// not terminal, so it stays listed with its hash
	left, _ := store.List()
	require.Len(t, left, 1)
	assert.Equal(t, models.TxHashReceived, left[0].Stage)
	assert.Equal(t, testTx().Hash().Hex(), left[0].TxHash)
}

func TestTracker_DuplicateID(t *testing.T) {
	tr, store := newTestTracker(&mockBackend{})
	pending := NewPending("increment", fromAddr)
	require.NoError(t, store.Put(pending))

	sent := false
	_, err := tr.Track(context.Background(), pending, func(context.Context) (*types.Transaction, error) {
		sent = true
		return testTx(), nil
	}, Hooks{})
	require.ErrorIs(t, err, ErrAlreadyTracked)
	assert.False(t, sent)
}

func TestNewPending(t *testing.T) {
	a := NewSwordPending("incrementSword", models.CategoryGreen, fromAddr)
	b := NewSwordPending("incrementSword", models.CategoryGreen, fromAddr)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, models.TxSubmitted, a.Stage)
	assert.Equal(t, fromAddr.Hex(), a.From)
	require.NotNil(t, a.Category)
	assert.Equal(t, models.CategoryGreen, *a.Category)

	n := NewPending("increment", fromAddr)
	assert.Nil(t, n.Category)
}
