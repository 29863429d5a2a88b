// Command salesctl runs imports and maintenance tasks from the shell.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/salesimport/internal/config"
	"github.com/JonMunkholm/salesimport/internal/core"
	"github.com/JonMunkholm/salesimport/internal/logging"
)

// Exit codes.
const (
	exitOK         = 0
	exitFailure    = 1
	exitUsage      = 2
	exitValidation = 3
	exitDB         = 4
)

// exitError carries the process exit code for an error.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

// exitCode picks a code from the error itself when none was attached.
func exitCode(err error) int {
	var (
		ee      *exitError
		cfgErr  *core.ConfigurationError
		rowErr  *core.ParsingError
		storErr *core.PersistenceError
	)
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &ee):
		return ee.code
	case errors.As(err, &cfgErr):
		return exitUsage
	case errors.As(err, &rowErr):
		return exitValidation
	case errors.As(err, &storErr):
		return exitDB
	default:
		return exitFailure
	}
}

// cli holds state shared by subcommands.
type cli struct {
	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "salesctl",
		Short:         "Import sales CSV exports and manage the import database",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Overload(); err == nil {
				slog.Debug("loaded .env file")
			}
			cfg, err := config.Load()
			if err != nil {
				return withCode(exitUsage, err)
			}
			logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
			c.cfg = cfg
			return nil
		},
	}

	root.AddCommand(
		newImportCmd(c),
		newEnqueueCmd(c),
		newStatusCmd(c),
		newLoadConfigsCmd(c),
		newMigrateCmd(c),
		newResetCmd(c),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	if err != nil {
		if msg := core.FormatUserError(err); core.IsUserFacing(err) {
			fmt.Fprintln(os.Stderr, msg)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	os.Exit(exitCode(err))
}
