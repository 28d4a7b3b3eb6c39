// Package swordctl holds the swordctl command tree.
package swordctl

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/olehkaliuzhnyi/sword-dapp/internal/config"
)

type rootOptions struct {
	cfg       config.Config
	logLevel  string
	logFormat string
}

// NewRootCmd builds the command tree. Flag defaults come from SWORD_*
// environment variables, so flags override the environment.
func NewRootCmd() (*cobra.Command, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	o := &rootOptions{cfg: cfg, logLevel: "info", logFormat: "text"}

	cmd := &cobra.Command{
		Use:           "swordctl",
		Short:         "Sword Collection client",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(cmd.ErrOrStderr(), o.logLevel, o.logFormat)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			return o.cfg.Validate()
		},
	}

	f := cmd.PersistentFlags()
	f.StringVar(&o.cfg.RPCURL, "rpc-url", cfg.RPCURL, "wallet provider JSON-RPC endpoint")
	f.StringVar(&o.cfg.ContractAddress, "contract", cfg.ContractAddress, "SwordCollection contract address")
	f.Int64Var(&o.cfg.ExpectedChainID, "chain-id", cfg.ExpectedChainID, "expected network chain id")
	f.Uint32Var(&o.cfg.AccountCount, "accounts", cfg.AccountCount, "number of accounts to derive from the mnemonic")
	f.Uint64Var(&o.cfg.IncrementGasLimit, "gas-limit", cfg.IncrementGasLimit, "gas limit for incrementSword and increment; 0 asks the node to estimate, which is not the same as the page sending gas: 0 literally")
	f.DurationVar(&o.cfg.ChainPollInterval, "chain-poll", cfg.ChainPollInterval, "network and account change poll interval")
	f.DurationVar(&o.cfg.ReceiptPollInterval, "receipt-poll", cfg.ReceiptPollInterval, "transaction receipt poll interval")
	f.BoolVar(&o.cfg.WatchNodeAccounts, "watch-node-accounts", cfg.WatchNodeAccounts, "also treat eth_accounts drift as an account change")
	f.StringVar(&o.cfg.AccountsFile, "accounts-file", cfg.AccountsFile, "persist authorized accounts to this JSON file")
	f.StringVar(&o.cfg.OTelEndpoint, "otel-endpoint", cfg.OTelEndpoint, "OTLP/HTTP trace endpoint; empty disables tracing")
	f.StringVar(&o.logLevel, "log-level", o.logLevel, "debug, info, warn or error")
	f.StringVar(&o.logFormat, "log-format", o.logFormat, "text or json")

	cmd.AddCommand(
		newServeCmd(o),
		newCountsCmd(o),
		newIncrementCmd(o),
		newAccountsCmd(o),
		newConnectCmd(o),
		newNumberCmd(o),
		newIncrementNumberCmd(o),
		newDisconnectCmd(o),
	)
	return cmd, nil
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}
