// Package admin provides administrative operations for database management.
package admin

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/salesimport/internal/database"
)

// ResetTimeout is the maximum duration for database reset operations.
const ResetTimeout = 30 * time.Second

// Reset groups. Children come before the tables they reference.
var (
	salesTables   = []string{"deliveries", "order_items", "orders", "products", "customers"}
	historyTables = []string{"import_runs"}
)

// ResetOptions selects what Reset clears. Platform configurations are never
// touched; reload them with load-configs instead.
type ResetOptions struct {
	// History also clears the import run history.
	History bool
}

// Reset empties the imported sales tables in one transaction.
// This is a destructive operation - use with caution.
func Reset(ctx context.Context, db database.TxBeginner, opts ResetOptions) error {
	ctx, cancel := context.WithTimeout(ctx, ResetTimeout)
	defer cancel()

	tables := append([]string(nil), salesTables...)
	if opts.History {
		tables = append(tables, historyTables...)
	}

	tx, err := db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := runResets(ctx, tx, tables); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	slog.Info("database reset", "tables", tables)
	return nil
}

func runResets(ctx context.Context, db database.DBTX, tables []string) error {
	for _, table := range tables {
		if _, err := db.Exec(ctx, "DELETE FROM "+pgx.Identifier{table}.Sanitize()); err != nil {
			return fmt.Errorf("reset %s: %w", table, err)
		}
	}
	return nil
}
