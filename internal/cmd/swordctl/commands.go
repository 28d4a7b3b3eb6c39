package swordctl

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/olehkaliuzhnyi/sword-dapp/internal/controller"
	"github.com/olehkaliuzhnyi/sword-dapp/internal/server"
	"github.com/olehkaliuzhnyi/sword-dapp/internal/ui"
	"github.com/olehkaliuzhnyi/sword-dapp/pkg/models"
)

func newServeCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the page and its live status stream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, o.cfg)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			if err := a.watch(ctx); err != nil {
				return err
			}
			return server.New(a.env, a.options()).ListenAndServe(ctx, o.cfg.ListenAddr)
		},
	}
	cmd.Flags().StringVar(&o.cfg.ListenAddr, "listen", o.cfg.ListenAddr, "HTTP listen address")
	return cmd
}

func newCountsCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "counts",
		Short: "Print the three sword counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOnce(cmd, o, func(ctx context.Context, ctrl *controller.Controller, out io.Writer) error {
				counts, err := ctrl.QueryCounters(ctx)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(out, counts.Summary())
				return err
			})
		},
	}
}

func newIncrementCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "increment <red|blue|green|0|1|2>",
		Short:     "Send incrementSword from the active account and wait for the receipt",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"red", "blue", "green"},
		RunE: func(cmd *cobra.Command, args []string) error {
			category, err := models.ParseCategory(args[0])
			if err != nil {
				return err
			}
			return runOnce(cmd, o, func(ctx context.Context, ctrl *controller.Controller, out io.Writer) error {
				if err := ctrl.ConnectWallet(ctx); err != nil {
					return err
				}
				receipt, err := ctrl.SubmitIncrement(ctx, category)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(out, "%s\nblock %s\n%s\n", receipt.TxHash.Hex(), receipt.BlockNumber, ctrl.Snapshot().Summary)
				return err
			})
		},
	}
}

func newAccountsCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "accounts",
		Short: "List the accounts already authorized for this client",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOnce(cmd, o, func(_ context.Context, ctrl *controller.Controller, out io.Writer) error {
				return printAccounts(out, ctrl.Snapshot())
			})
		},
	}
}

func newConnectCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Authorize the keyring accounts and print them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOnce(cmd, o, func(ctx context.Context, ctrl *controller.Controller, out io.Writer) error {
				if err := ctrl.ConnectWallet(ctx); err != nil {
					return err
				}
				return printAccounts(out, ctrl.Snapshot())
			})
		},
	}
}

func newNumberCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "number",
		Short: "Print the contract's number()",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, o.cfg)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			h, err := a.checkedHandle(ctx)
			if err != nil {
				return err
			}
			n, err := h.Number(ctx)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), n)
			return err
		},
	}
}

func newDisconnectCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect",
		Short: "Forget every authorized account and print what remains",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOnce(cmd, o, func(ctx context.Context, ctrl *controller.Controller, out io.Writer) error {
				if err := ctrl.DisconnectWallet(ctx); err != nil {
					return err
				}
				return printAccounts(out, ctrl.Snapshot())
			})
		},
	}
}

func newIncrementNumberCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "increment-number",
		Short: "Send increment() from the active account and print the new number()",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, o.cfg)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			receipt, n, err := a.incrementNumber(ctx, func(hash common.Hash) {
				fmt.Fprintf(cmd.ErrOrStderr(), "sent %s\n", hash.Hex())
			})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\nblock %s\nnumber %s\n", receipt.TxHash.Hex(), receipt.BlockNumber, n)
			return err
		},
	}
}

// runOnce performs a single page load with status lines on stderr, runs fn,
// and tears everything down. Provider change events only get logged.
func runOnce(cmd *cobra.Command, o *rootOptions, fn func(context.Context, *controller.Controller, io.Writer) error) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, o.cfg)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	opts := a.options()
	opts.Sink = ui.NewWriter(cmd.ErrOrStderr())
	opts.Reloader = controller.ReloadFunc(func(reason string) {
		slog.Debug("provider changed during command", "reason", reason)
	})

	ctrl := controller.New(a.env, opts)
	defer ctrl.Close()

	if err := ctrl.Initialize(ctx); err != nil {
		return err
	}
	return fn(ctx, ctrl, cmd.OutOrStdout())
}

func printAccounts(out io.Writer, snap controller.Snapshot) error {
	if len(snap.Accounts) == 0 {
		_, err := fmt.Fprintln(out, "no authorized accounts")
		return err
	}
	for i, acc := range snap.Accounts {
		marker := " "
		if i == 0 {
			marker = "*"
		}
		if _, err := fmt.Fprintf(out, "%s %s\n", marker, acc); err != nil {
			return err
		}
	}
	return nil
}
