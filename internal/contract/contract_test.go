package contract

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olehkaliuzhnyi/sword-dapp/pkg/models"
)

var contractAddr = common.HexToAddress("0x00000000000000000000000000000000000000c0")

// mockBackend answers getSwordCount/number calls from a table and records
// sent transactions.
type mockBackend struct {
	abi    abi.ABI
	counts map[int64]int64
	number int64

	mu    sync.Mutex
	calls int
	sent  []*types.Transaction
}

func newMockBackend(t *testing.T) *mockBackend {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(SwordCollectionABI))
	require.NoError(t, err)
	return &mockBackend{abi: parsed, counts: map[int64]int64{0: 3, 1: 5, 2: 8}, number: 42}
}

func (b *mockBackend) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}

func (b *mockBackend) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()

	method, err := b.abi.MethodById(call.Data[:4])
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case MethodGetSwordCount:
		args, err := method.Inputs.Unpack(call.Data[4:])
		if err != nil {
			return nil, err
		}
		color := args[0].(*big.Int).Int64()
		return method.Outputs.Pack(big.NewInt(b.counts[color]))
	case MethodNumber:
		return method.Outputs.Pack(big.NewInt(b.number))
	}
	return nil, errors.New("unexpected call")
}

func (b *mockBackend) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(1)}, nil
}

func (b *mockBackend) PendingCodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	return []byte{0x60}, nil
}

func (b *mockBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return 7, nil
}

func (b *mockBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (b *mockBackend) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}

func (b *mockBackend) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	return 50_000, nil
}

func (b *mockBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, tx)
	return nil
}

func (b *mockBackend) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	return nil, nil
}

func (b *mockBackend) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	return nil, errors.New("not supported")
}

func testTransactor(t *testing.T) *bind.TransactOpts {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	opts, err := bind.NewKeyedTransactorWithChainID(key, big.NewInt(412346))
	require.NoError(t, err)
	return opts
}

func TestBind_InvalidABI(t *testing.T) {
	_, err := Bind(contractAddr, `[{"type": "function", "name": `, newMockBackend(t))
	require.Error(t, err)
}

func TestBind_Address(t *testing.T) {
	h, err := Bind(contractAddr, SwordCollectionABI, newMockBackend(t))
	require.NoError(t, err)
	assert.Equal(t, contractAddr, h.Address())
}

func TestHandle_SwordCount(t *testing.T) {
	b := newMockBackend(t)
	h, err := Bind(contractAddr, SwordCollectionABI, b)
	require.NoError(t, err)

	want := map[models.Category]int64{models.CategoryRed: 3, models.CategoryBlue: 5, models.CategoryGreen: 8}
	for c, n := range want {
		got, err := h.SwordCount(context.Background(), c)
		require.NoError(t, err)
		assert.Equal(t, n, got.Int64(), c.String())
	}
	assert.Equal(t, 3, b.calls)
}

func TestHandle_Number(t *testing.T) {
	h, err := Bind(contractAddr, SwordCollectionABI, newMockBackend(t))
	require.NoError(t, err)

	n, err := h.Number(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), n.Int64())
}

func TestHandle_IncrementSword(t *testing.T) {
	b := newMockBackend(t)
	h, err := Bind(contractAddr, SwordCollectionABI, b)
	require.NoError(t, err)

	opts := testTransactor(t)
	opts.Value = big.NewInt(0)
	opts.GasLimit = 0 // zero: bind estimates

	tx, err := h.IncrementSword(opts, models.CategoryBlue)
	require.NoError(t, err)

	require.Len(t, b.sent, 1)
	assert.Equal(t, tx.Hash(), b.sent[0].Hash())
	assert.Equal(t, contractAddr, *tx.To())
	assert.Equal(t, uint64(50_000), tx.Gas())
	assert.Equal(t, uint64(7), tx.Nonce())
	assert.Zero(t, tx.Value().Sign())

	parsed, err := abi.JSON(strings.NewReader(SwordCollectionABI))
	require.NoError(t, err)
	wantData, err := parsed.Pack(MethodIncrementSword, big.NewInt(1))
	require.NoError(t, err)
	assert.True(t, bytes.Equal(wantData, tx.Data()))
}

func TestHandle_IncrementExplicitGas(t *testing.T) {
	b := newMockBackend(t)
	h, err := Bind(contractAddr, SwordCollectionABI, b)
	require.NoError(t, err)

	opts := testTransactor(t)
	opts.GasLimit = 90_000

	tx, err := h.Increment(opts)
	require.NoError(t, err)
	assert.Equal(t, uint64(90_000), tx.Gas())
}
