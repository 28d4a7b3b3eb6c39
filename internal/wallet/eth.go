package wallet

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/sha3"
)

// ethCoinType is the SLIP-44 coin type for Ethereum.
const ethCoinType = 60

// Account is a derived Ethereum account.
type Account struct {
	Address        common.Address `json:"address"`
	DerivationPath string         `json:"derivation_path,omitempty"`
	PublicKey      string         `json:"public_key"`

	key *ecdsa.PrivateKey
}

var (
	_ Generator = (*ETHGenerator)(nil)
	_ Signer    = (*Keyring)(nil)
)

// ETHGenerator derives Ethereum accounts using BIP-44.
// Derivation path: m/44'/60'/0'/0/{index}
type ETHGenerator struct{}

// NewETHGenerator returns a new Ethereum account generator.
func NewETHGenerator() *ETHGenerator {
	return &ETHGenerator{}
}

// GenerateFromSeed derives an Ethereum account from a BIP-39 seed.
func (g *ETHGenerator) GenerateFromSeed(seed []byte, index uint32) (*Account, error) {
	key, err := deriveKey(seed, ethCoinType, index)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	acct, err := accountFromKey(key)
	if err != nil {
		return nil, err
	}
	acct.DerivationPath = fmt.Sprintf("m/44'/60'/0'/0/%d", index)
	return acct, nil
}

// Keyring holds the private keys of the wallet and signs for them.
// It is the local stand-in for a browser wallet extension.
type Keyring struct {
	mu       sync.RWMutex
	accounts []*Account
	byAddr   map[common.Address]*Account
}

// NewKeyringFromMnemonic derives count accounts from a BIP-39 mnemonic.
func NewKeyringFromMnemonic(mnemonic string, count uint32) (*Keyring, error) {
	seed, err := bip39.NewSeedWithErrorChecking(strings.TrimSpace(mnemonic), "")
	if err != nil {
		return nil, fmt.Errorf("mnemonic: %w", err)
	}
	gen := NewETHGenerator()
	accounts := make([]*Account, 0, count)
	for i := uint32(0); i < count; i++ {
		acct, err := gen.GenerateFromSeed(seed, i)
		if err != nil {
			return nil, fmt.Errorf("account %d: %w", i, err)
		}
		accounts = append(accounts, acct)
	}
	return newKeyring(accounts), nil
}

// NewKeyringFromPrivateKey wraps a single hex-encoded private key.
func NewKeyringFromPrivateKey(hexKey string) (*Keyring, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("private key: %w", err)
	}
	acct, err := accountFromKey(raw)
	if err != nil {
		return nil, err
	}
	return newKeyring([]*Account{acct}), nil
}

func newKeyring(accounts []*Account) *Keyring {
	k := &Keyring{
		accounts: accounts,
		byAddr:   make(map[common.Address]*Account, len(accounts)),
	}
	for _, a := range accounts {
		k.byAddr[a.Address] = a
	}
	return k
}

// Accounts returns the keyring addresses in derivation order.
func (k *Keyring) Accounts() []common.Address {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]common.Address, len(k.accounts))
	for i, a := range k.accounts {
		out[i] = a.Address
	}
	return out
}

// Transactor returns EIP-155 signing options for from.
func (k *Keyring) Transactor(ctx context.Context, from common.Address, chainID *big.Int) (*bind.TransactOpts, error) {
	k.mu.RLock()
	acct, ok := k.byAddr[from]
	k.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no key for account %s", from.Hex())
	}
	opts, err := bind.NewKeyedTransactorWithChainID(acct.key, chainID)
	if err != nil {
		return nil, fmt.Errorf("transactor: %w", err)
	}
	opts.Context = ctx
	return opts, nil
}

// --- helpers ---

// deriveKey walks m/44'/{coinType}'/0'/0/{index} from a BIP-39 seed.
func deriveKey(seed []byte, coinType uint32, index uint32) ([]byte, error) {
	key, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("master key: %w", err)
	}
	path := []uint32{
		bip32.FirstHardenedChild + 44,
		bip32.FirstHardenedChild + coinType,
		bip32.FirstHardenedChild + 0,
		0,
		index,
	}
	for depth, child := range path {
		key, err = key.NewChildKey(child)
		if err != nil {
			return nil, fmt.Errorf("derive level %d: %w", depth+1, err)
		}
	}
	return key.Key, nil
}

func accountFromKey(raw []byte) (*Account, error) {
	if len(raw) != 32 {
		return nil, fmt.Errorf("private key must be 32 bytes, got %d", len(raw))
	}
	key, err := crypto.ToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("private key: %w", err)
	}

	_, pubKey := btcec.PrivKeyFromBytes(raw)
	pubBytes := pubKey.SerializeUncompressed()

	// Ethereum address = last 20 bytes of Keccak256(publicKey)
	hash := keccak256(pubBytes[1:]) // skip 0x04 prefix

	return &Account{
		Address:   common.BytesToAddress(hash[12:]),
		PublicKey: hex.EncodeToString(pubBytes),
		key:       key,
	}, nil
}

func keccak256(data []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return h.Sum(nil)
}
