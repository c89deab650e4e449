package main

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Execute builds and runs the root command, returning a process exit
// code rather than calling os.Exit itself.
func Execute(ctx context.Context) int {
	var configPath string

	root := &cobra.Command{Use: "autotrader", Short: "AutoTrader GemScore engine CLI"}
	root.SetGlobalNormalizationFunc(normalizeFlag)
	root.PersistentFlags().StringVar(&configPath, "config", "autotrader.yaml", "path to the engine configuration document")

	root.AddCommand(scanCmd(ctx, &configPath))
	root.AddCommand(backtestCmd(ctx, &configPath))
	root.AddCommand(rulesCmd(&configPath))

	log.Info().Msg("autotrader starting")
	if err := root.ExecuteContext(ctx); err != nil {
		return classifyExit(err)
	}
	return ExitOK
}

// normalizeFlag accepts underscore-separated flag spellings (matching the
// config document's key style) by folding them to dashes.
func normalizeFlag(f *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

// classifyExit maps a returned error to an exit code. Errors that don't
// implement exitCoder default to ExitRuntime.
func classifyExit(err error) int {
	type exitCoder interface{ ExitCode() int }
	if ec, ok := err.(exitCoder); ok {
		return ec.ExitCode()
	}
	return ExitRuntime
}
