package wallet

import (
	"context"
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tyler-smith/go-bip39"
)

const (
	abandonMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	devMnemonic     = "test test test test test test test test test test test junk"
	devPrivateKey   = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
)

var devAccount0 = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

func testSeed(t *testing.T) []byte {
	t.Helper()
	return bip39.NewSeed(abandonMnemonic, "")
}

func TestETHGenerator_KnownVector(t *testing.T) {
	acct, err := NewETHGenerator().GenerateFromSeed(testSeed(t), 0)
	require.NoError(t, err)

	assert.Equal(t, common.HexToAddress("0x9858EfFD232B4033E47d90003D41EC34EcaEda94"), acct.Address)
	assert.Equal(t, "m/44'/60'/0'/0/0", acct.DerivationPath)
}

func TestETHGenerator_Deterministic(t *testing.T) {
	gen := NewETHGenerator()
	seed := testSeed(t)

	a1, err := gen.GenerateFromSeed(seed, 0)
	require.NoError(t, err)
	a2, err := gen.GenerateFromSeed(seed, 0)
	require.NoError(t, err)
	a3, err := gen.GenerateFromSeed(seed, 1)
	require.NoError(t, err)

	assert.Equal(t, a1.Address, a2.Address)
	assert.NotEqual(t, a1.Address, a3.Address, "different indices produced same address")
}

func TestETHGenerator_AddressMatchesKey(t *testing.T) {
	acct, err := NewETHGenerator().GenerateFromSeed(testSeed(t), 2)
	require.NoError(t, err)

	// keccak-derived address must agree with go-ethereum's own derivation
	assert.Equal(t, crypto.PubkeyToAddress(acct.key.PublicKey), acct.Address)

	pubBytes, err := hex.DecodeString(acct.PublicKey)
	require.NoError(t, err)
	require.Len(t, pubBytes, 65)
	assert.Equal(t, byte(0x04), pubBytes[0])
}

func TestKeyringFromMnemonic(t *testing.T) {
	k, err := NewKeyringFromMnemonic(devMnemonic, 3)
	require.NoError(t, err)

	accts := k.Accounts()
	require.Len(t, accts, 3)
	assert.Equal(t, devAccount0, accts[0])
}

func TestKeyringFromMnemonic_Invalid(t *testing.T) {
	_, err := NewKeyringFromMnemonic("zoo zoo zoo", 1)
	require.Error(t, err)
}

func TestKeyringFromPrivateKey(t *testing.T) {
	k, err := NewKeyringFromPrivateKey(devPrivateKey)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{devAccount0}, k.Accounts())

	_, err = NewKeyringFromPrivateKey("0x1234")
	require.Error(t, err)
	_, err = NewKeyringFromPrivateKey("not-hex")
	require.Error(t, err)
}

func TestKeyring_TransactorSigns(t *testing.T) {
	k, err := NewKeyringFromPrivateKey(devPrivateKey)
	require.NoError(t, err)

	chainID := big.NewInt(412346)
	opts, err := k.Transactor(context.Background(), devAccount0, chainID)
	require.NoError(t, err)
	assert.Equal(t, devAccount0, opts.From)

	tx := types.NewTx(&types.LegacyTx{Nonce: 1, Gas: 21000, GasPrice: big.NewInt(1)})
	signed, err := opts.Signer(devAccount0, tx)
	require.NoError(t, err)

	sender, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
	require.NoError(t, err)
	assert.Equal(t, devAccount0, sender)
}

func TestKeyring_TransactorUnknownAccount(t *testing.T) {
	k, err := NewKeyringFromPrivateKey(devPrivateKey)
	require.NoError(t, err)

	_, err = k.Transactor(context.Background(), common.HexToAddress("0x01"), big.NewInt(1))
	require.Error(t, err)
}
