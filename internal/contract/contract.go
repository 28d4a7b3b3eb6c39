package contract

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/olehkaliuzhnyi/sword-dapp/pkg/models"
)

// Handle is a SwordCollection contract bound to a backend. It is built once
// per session and never mutated.
type Handle struct {
	address common.Address
	bound   *bind.BoundContract
}

// Bind parses abiJSON and binds it at address. The address is not checked
// for code; a wrong address surfaces on the first call.
func Bind(address common.Address, abiJSON string, backend bind.ContractBackend) (*Handle, error) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}
	return &Handle{
		address: address,
		bound:   bind.NewBoundContract(address, parsed, backend, backend, backend),
	}, nil
}

// Address returns the bound contract address.
func (h *Handle) Address() common.Address {
	return h.address
}

// Call invokes a read-only method and returns its decoded outputs.
func (h *Handle) Call(ctx context.Context, method string, args ...any) ([]any, error) {
	var out []any
	if err := h.bound.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	return out, nil
}

// Transact submits a state-changing method call signed by opts.
func (h *Handle) Transact(opts *bind.TransactOpts, method string, args ...any) (*types.Transaction, error) {
	tx, err := h.bound.Transact(opts, method, args...)
	if err != nil {
		return nil, fmt.Errorf("transact %s: %w", method, err)
	}
	return tx, nil
}

// SwordCount reads getSwordCount(category).
func (h *Handle) SwordCount(ctx context.Context, c models.Category) (*big.Int, error) {
	out, err := h.Call(ctx, MethodGetSwordCount, c.Index())
	if err != nil {
		return nil, err
	}
	return firstUint(out, MethodGetSwordCount)
}

// IncrementSword submits incrementSword(category).
func (h *Handle) IncrementSword(opts *bind.TransactOpts, c models.Category) (*types.Transaction, error) {
	return h.Transact(opts, MethodIncrementSword, c.Index())
}

// Number reads number().
func (h *Handle) Number(ctx context.Context) (*big.Int, error) {
	out, err := h.Call(ctx, MethodNumber)
	if err != nil {
		return nil, err
	}
	return firstUint(out, MethodNumber)
}

// Increment submits increment().
func (h *Handle) Increment(opts *bind.TransactOpts) (*types.Transaction, error) {
	return h.Transact(opts, MethodIncrement)
}

func firstUint(out []any, method string) (*big.Int, error) {
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: empty result", method)
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected result type %T", method, out[0])
	}
	return v, nil
}
