package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"DeadManSwitch/internal/cli"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "dms",
		Short: "Dead man's switch operator CLI",
		Long: `dms runs and inspects the check-in cycle outside the HTTP server.
Configuration is read from .env and the environment, same as the server.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(cli.RunCmd())
	rootCmd.AddCommand(cli.ShowCmd())
	rootCmd.AddCommand(cli.ResetCmd())
	rootCmd.AddCommand(cli.ChatIDCmd())
	rootCmd.AddCommand(cli.HistoryCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
