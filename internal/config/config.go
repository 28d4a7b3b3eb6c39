package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all configurable parameters for the sword dApp client.
type Config struct {
	// Network the contract is deployed on; any other chain id halts initialization.
	ExpectedChainID int64 `env:"EXPECTED_CHAIN_ID"`

	// SwordCollection deployment. Not validated.
	ContractAddress string `env:"CONTRACT_ADDRESS"`

	// Wallet provider
	RPCURL            string `env:"RPC_URL"`
	Mnemonic          string `env:"MNEMONIC"`
	PrivateKey        string `env:"PRIVATE_KEY"`
	AccountCount      uint32 `env:"ACCOUNT_COUNT"`
	WatchNodeAccounts bool   `env:"WATCH_NODE_ACCOUNTS"`
	// Authorized accounts are kept here between runs; empty keeps them in memory.
	AccountsFile string `env:"ACCOUNTS_FILE"`

	// Poll intervals
	ChainPollInterval   time.Duration `env:"CHAIN_POLL_INTERVAL"`
	ReceiptPollInterval time.Duration `env:"RECEIPT_POLL_INTERVAL"`

	// Gas limit sent with incrementSword. Zero is passed through as-is.
	IncrementGasLimit uint64 `env:"INCREMENT_GAS_LIMIT"`

	// Page server
	ListenAddr string `env:"LISTEN_ADDR"`

	// Tracing export; empty disables it.
	OTelEndpoint string `env:"OTEL_ENDPOINT"`
}

// Default returns a Config populated with default values.
func Default() Config {
	return Config{
		ExpectedChainID: 412346, // Arbitrum Nitro dev node
		ContractAddress: "0xYOUR_CONTRACT_HERE",

		RPCURL:       "http://localhost:8547",
		AccountCount: 1,

		ChainPollInterval:   1 * time.Second,
		ReceiptPollInterval: 1 * time.Second,

		IncrementGasLimit: 0,

		ListenAddr: ":8080",
	}
}

// FromEnv returns a Config populated from SWORD_* environment variables,
// falling back to defaults for unset values.
func FromEnv() (Config, error) {
	cfg := Default()
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "SWORD_"}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate checks the fields the client cannot run without.
func (c Config) Validate() error {
	if c.AccountCount == 0 {
		return fmt.Errorf("account count must be at least 1")
	}
	if c.ChainPollInterval <= 0 {
		return fmt.Errorf("chain poll interval must be positive")
	}
	if c.ReceiptPollInterval <= 0 {
		return fmt.Errorf("receipt poll interval must be positive")
	}
	return nil
}
