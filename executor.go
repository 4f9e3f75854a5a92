package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/elitan/dbterra/database"
	"github.com/elitan/dbterra/database/postgres"
	"github.com/lib/pq"
	"golang.org/x/term"
)

// DefaultLockName is the advisory-lock name used when none is configured
const DefaultLockName = "dbterra_migrate_execute"

// DefaultLockTimeout bounds how long an executor waits for the advisory lock
const DefaultLockTimeout = 10 * time.Second

// ExecuteOptions controls a single apply run
type ExecuteOptions struct {
	AutoApprove bool
	DryRun      bool
	Format      string // "text" or "json", dry-run output only
	LockName    string
	LockTimeout time.Duration
}

// Execute applies a migration plan. The transactional batch runs inside
// one transaction under an advisory lock; the concurrent tail runs
// afterwards, statement by statement, outside any transaction. On a
// transactional failure everything rolls back; on a concurrent failure
// the error reports how far the tail progressed.
func Execute(ctx context.Context, db *sql.DB, drv database.Driver, plan *database.MigrationPlan, opts ExecuteOptions) error {
	if !plan.HasChanges() {
		fmt.Fprintf(os.Stderr, "No changes. Database matches the desired state.\n")
		return nil
	}

	if opts.DryRun {
		return printPlan(os.Stdout, plan, opts.Format)
	}

	if HasDestructiveStatements(plan) && !opts.AutoApprove {
		approved, err := confirmDestructive(plan)
		if err != nil {
			return err
		}
		if !approved {
			fmt.Fprintf(os.Stderr, "Apply cancelled.\n")
			return nil
		}
	}

	if drv.Capabilities().AdvisoryLocks {
		lockName := opts.LockName
		if lockName == "" {
			lockName = DefaultLockName
		}
		timeout := opts.LockTimeout
		if timeout <= 0 {
			timeout = DefaultLockTimeout
		}

		key := postgres.LockKey(lockName)
		if err := acquireLock(ctx, db, key, lockName, timeout); err != nil {
			return err
		}
		defer func() {
			// Release must run on success and failure alike; a stuck
			// lock blocks every future migration
			if err := postgres.ReleaseAdvisoryLock(context.Background(), db, key); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to release advisory lock %q: %v\n", lockName, err)
			}
		}()
	}

	if err := runTransactional(ctx, db, plan.Transactional); err != nil {
		return err
	}

	return runConcurrent(ctx, db, plan.Concurrent)
}

// acquireLock retries pg_try_advisory_lock with exponential backoff:
// 100 ms initial, doubling, capped at 5 s, until the timeout elapses.
func acquireLock(ctx context.Context, db *sql.DB, key int64, lockName string, timeout time.Duration) error {
	errLockHeld := errors.New("advisory lock held elsewhere")

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.Multiplier = 2
	policy.MaxInterval = 5 * time.Second
	policy.MaxElapsedTime = timeout
	policy.RandomizationFactor = 0

	err := backoff.Retry(func() error {
		acquired, err := postgres.TryAdvisoryLock(ctx, db, key)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !acquired {
			return errLockHeld
		}
		return nil
	}, backoff.WithContext(policy, ctx))

	if err == nil {
		return nil
	}
	if errors.Is(err, errLockHeld) {
		return &MigrationError{
			Message: fmt.Sprintf("timed out after %s waiting for advisory lock %q; another migration is likely running", timeout, lockName),
		}
	}
	return &MigrationError{
		Message: fmt.Sprintf("failed to acquire advisory lock %q", lockName),
		Err:     err,
	}
}

func runTransactional(ctx context.Context, db *sql.DB, statements []string) error {
	if len(statements) == 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return &MigrationError{Message: "failed to open transaction", Err: err}
	}

	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return migrationErrorFor(stmt, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return &MigrationError{Message: "failed to commit transaction", Err: err}
	}

	fmt.Fprintf(os.Stderr, "Applied %d statement(s).\n", len(statements))
	return nil
}

func runConcurrent(ctx context.Context, db *sql.DB, statements []string) error {
	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			merr := migrationErrorFor(stmt, err)
			merr.Message = fmt.Sprintf("concurrent statement %d of %d failed (transactional changes are committed; %d concurrent statement(s) already applied): %s",
				i+1, len(statements), i, merr.Message)
			return merr
		}
	}
	if len(statements) > 0 {
		fmt.Fprintf(os.Stderr, "Applied %d concurrent statement(s).\n", len(statements))
	}
	return nil
}

// migrationErrorFor wraps a driver error with the failing statement and
// whatever structured diagnostics the driver exposes
func migrationErrorFor(stmt string, err error) *MigrationError {
	merr := &MigrationError{
		Statement: stmt,
		Message:   err.Error(),
		Err:       err,
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		merr.Code = string(pqErr.Code)
		merr.Detail = pqErr.Detail
		merr.Hint = pqErr.Hint
		merr.Message = pqErr.Message
		if pos, convErr := strconv.Atoi(pqErr.Position); convErr == nil {
			merr.Position = pos
		}
	}
	return merr
}

// confirmDestructive asks for an explicit y/yes before destructive
// statements run. Outside an interactive terminal the answer cannot be
// given, so the run cancels with guidance instead of hanging.
func confirmDestructive(plan *database.MigrationPlan) (bool, error) {
	fmt.Fprintf(os.Stderr, "\nThe plan contains destructive statements:\n\n")
	for _, stmt := range plan.Statements() {
		if IsDestructiveStatement(stmt) {
			fmt.Fprintf(os.Stderr, "  %s\n", stmt)
		}
	}
	fmt.Fprintf(os.Stderr, "\n")

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false, &MigrationError{
			Message: "destructive statements require confirmation, but stdin is not a terminal; re-run with --auto-approve to proceed",
		}
	}

	fmt.Fprintf(os.Stderr, "Do you want to apply these changes? Only 'y' or 'yes' will be accepted: ")
	var response string
	if _, err := fmt.Scanln(&response); err != nil {
		return false, nil
	}
	response = strings.ToLower(strings.TrimSpace(response))
	return response == "y" || response == "yes", nil
}

// printPlan renders the plan for a dry run
func printPlan(w *os.File, plan *database.MigrationPlan, format string) error {
	if format == "json" {
		doc := NewPlanDocument(plan)
		data, err := doc.MarshalIndent()
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(data))
		return nil
	}

	fmt.Fprintf(w, "Plan: %d transactional, %d concurrent statement(s)\n\n", len(plan.Transactional), len(plan.Concurrent))
	for _, stmt := range plan.Transactional {
		marker := " "
		if IsDestructiveStatement(stmt) {
			marker = "!"
		}
		fmt.Fprintf(w, " %s %s;\n", marker, stmt)
	}
	for _, stmt := range plan.Concurrent {
		fmt.Fprintf(w, " ~ %s;\n", stmt)
	}
	return nil
}
