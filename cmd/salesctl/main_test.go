package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/JonMunkholm/salesimport/internal/core"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, exitOK},
		{"plain", errors.New("boom"), exitFailure},
		{"explicit", withCode(exitDB, errors.New("down")), exitDB},
		{"configuration", &core.ConfigurationError{Platform: "x", Err: errors.New("bad")}, exitUsage},
		{"row", fmt.Errorf("run: %w", &core.ParsingError{LineNumber: 2, Field: "order_date", Err: errors.New("bad date")}), exitValidation},
		{"persistence", &core.PersistenceError{Batch: 1, Stage: "orders", Err: errors.New("conn reset")}, exitDB},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestWithCode_Nil(t *testing.T) {
	if err := withCode(exitDB, nil); err != nil {
		t.Errorf("withCode(nil) = %v, want nil", err)
	}
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"import", "enqueue", "status", "load-configs", "migrate", "reset"} {
		if cmd, _, err := root.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestReset_RequiresConfirmation(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:1/none")

	root := newRootCmd()
	root.SetArgs([]string{"reset"})
	err := root.Execute()
	if got := exitCode(err); got != exitUsage {
		t.Fatalf("exitCode = %d (err %v), want %d", got, err, exitUsage)
	}
}

func TestImport_MissingFlags(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:1/none")

	root := newRootCmd()
	root.SetArgs([]string{"import", "--platform", "shop"})
	if err := root.Execute(); err == nil {
		t.Fatal("expected error for missing --file")
	}
}
