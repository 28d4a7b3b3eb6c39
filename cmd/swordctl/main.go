// Command swordctl runs the Sword Collection client: a web page that mirrors
// the connection status, plus one-shot commands for scripting.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/olehkaliuzhnyi/sword-dapp/internal/cmd/swordctl"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, err := swordctl.NewRootCmd()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
