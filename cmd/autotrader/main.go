// Command autotrader is the thin operator CLI wired around the engine:
// scan, backtest, and rule validation over a loaded configuration
// document. The HTTP API surface and dashboard live elsewhere.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"github.com/sawpanic/autotrader/internal/telemetry"
)

func main() {
	telemetry.ConfigureLogging(term.IsTerminal(int(os.Stderr.Fd())))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	code := Execute(ctx)
	if ctx.Err() != nil && code == ExitOK {
		code = ExitInterrupted
	}
	if code != ExitOK {
		fmt.Fprintf(os.Stderr, "autotrader: exit %d\n", code)
	}
	os.Exit(code)
}
