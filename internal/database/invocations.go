// Package database defines the insertions and transactions to the database
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Invocation is one journaled bridge call.
type Invocation struct {
	Bridge       string
	Path         string
	Outcome      string
	Status       int
	Bytes        int64
	ResolutionMs int64
	DurationMs   int64
	Error        string
	CreatedAt    time.Time
}

type DailyStats struct {
	Date         string
	Bridge       string
	Outcome      string
	Count        uint64
	Bytes        int64
	ResolutionMs int64
	DurationMs   int64
	ErrorCount   uint64
}

// SaveInvocations inserts the invocation rows and folds them into daily_bridge_stats.
func SaveInvocations(ctx context.Context, tx *sql.Tx, rows []Invocation) error {
	if len(rows) == 0 {
		return nil
	}

	invocationSQLStr := `INSERT INTO invocation (
            bridge, path, outcome, status, bytes,
            resolution_ms, duration_ms, error, created_at
        ) VALUES`

	statsSQLStr := `INSERT INTO daily_bridge_stats (
		date, bridge, outcome, invocation_count, bytes, resolution_ms, duration_ms, error_count
	) VALUES`

	aggregated := make(map[string]*DailyStats)
	invocationVals := make([]any, 0, len(rows)*9)
	statsVals := []any{}

	for _, row := range rows {
		date := row.CreatedAt.UTC().Format("2006-01-02")
		key := date + "|" + row.Bridge + "|" + row.Outcome
		existing, ok := aggregated[key]
		if !ok {
			existing = &DailyStats{Date: date, Bridge: row.Bridge, Outcome: row.Outcome}
			aggregated[key] = existing
		}
		existing.Count++
		existing.Bytes += row.Bytes
		existing.ResolutionMs += row.ResolutionMs
		existing.DurationMs += row.DurationMs
		if row.Error != "" {
			existing.ErrorCount++
		}

		invocationSQLStr += "(?, ?, ?, ?, ?, ?, ?, ?, ?),"
		invocationVals = append(invocationVals,
			row.Bridge, row.Path, row.Outcome, row.Status, row.Bytes,
			row.ResolutionMs, row.DurationMs, nullString(row.Error), row.CreatedAt,
		)
	}

	for _, val := range aggregated {
		statsSQLStr += "(?, ?, ?, ?, ?, ?, ?, ?),"
		statsVals = append(statsVals, val.Date, val.Bridge, val.Outcome, val.Count, val.Bytes, val.ResolutionMs, val.DurationMs, val.ErrorCount)
	}

	invocationSQLStr = strings.TrimSuffix(invocationSQLStr, ",")
	statsSQLStr = strings.TrimSuffix(statsSQLStr, ",")
	statsSQLStr += ` ON DUPLICATE KEY UPDATE
		invocation_count = invocation_count + VALUES(invocation_count),
		bytes = bytes + VALUES(bytes),
		resolution_ms = resolution_ms + VALUES(resolution_ms),
		duration_ms = duration_ms + VALUES(duration_ms),
		error_count = error_count + VALUES(error_count)`

	if _, err := tx.ExecContext(ctx, invocationSQLStr, invocationVals...); err != nil {
		return fmt.Errorf("failed to save invocations: %w", err)
	}
	if _, err := tx.ExecContext(ctx, statsSQLStr, statsVals...); err != nil {
		return fmt.Errorf("failed to save daily stats: %w", err)
	}
	return nil
}

// ExecuteTransaction executes one transaction with one or multiple database executions.
func ExecuteTransaction(ctx context.Context, writeDB *sql.DB, fns []func(*sql.Tx) error) error {
	tx, err := writeDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Execute all functions in the transaction
	for _, fn := range fns {
		if err := fn(tx); err != nil {
			return fmt.Errorf("failed to execute transaction function: %w", err)
		}
	}

	// Commit the transaction if all functions succeeded
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// InvocationWriter saves batches in one transaction on writeDB.
func InvocationWriter(writeDB *sql.DB) func(ctx context.Context, rows []Invocation) error {
	return func(ctx context.Context, rows []Invocation) error {
		return ExecuteTransaction(ctx, writeDB, []func(*sql.Tx) error{
			func(tx *sql.Tx) error {
				return SaveInvocations(ctx, tx, rows)
			},
		})
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
