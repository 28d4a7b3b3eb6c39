package wallet

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// Generator defines the interface for address generation from a seed.
type Generator interface {
	// GenerateFromSeed derives an account from HD seed bytes at the given index
	GenerateFromSeed(seed []byte, index uint32) (*Account, error)
}

// Signer produces transaction options able to sign on behalf of an account.
// The private key never leaves the implementation.
type Signer interface {
	// Accounts returns the addresses the signer holds keys for, in derivation order
	Accounts() []common.Address

	// Transactor returns signing options for from on the given chain
	Transactor(ctx context.Context, from common.Address, chainID *big.Int) (*bind.TransactOpts, error)
}
