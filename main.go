package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/elitan/dbterra/database"
	"github.com/elitan/dbterra/database/postgres"
	"github.com/elitan/dbterra/database/sqlite"
	_ "github.com/lib/pq"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

// Version information (set by goreleaser during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// getVersionInfo returns version information, preferring goreleaser
// values but falling back to VCS info from debug.BuildInfo (for go
// install builds)
func getVersionInfo() (v, c, d string) {
	v, c, d = version, commit, date

	if version != "dev" {
		return
	}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	var revision string
	var modified bool
	var buildTime string

	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			modified = setting.Value == "true"
		case "vcs.time":
			buildTime = setting.Value
		}
	}

	if len(revision) > 7 {
		revision = revision[:7]
	}
	if revision != "" {
		c = revision
		if modified {
			c += " (modified)"
		}
	}
	if buildTime != "" {
		d = buildTime
	}

	return
}

// detectDriver detects the database dialect from a connection string
func detectDriver(connString string) string {
	lower := strings.ToLower(connString)

	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return "postgres"
	}

	if strings.HasPrefix(lower, "libsql://") {
		return "libsql"
	}

	if strings.HasPrefix(lower, "sqlite://") ||
		strings.HasPrefix(lower, "file:") ||
		strings.HasSuffix(lower, ".db") ||
		strings.HasSuffix(lower, ".sqlite") ||
		strings.HasSuffix(lower, ".sqlite3") ||
		lower == ":memory:" {
		return "sqlite"
	}

	return "postgres"
}

// newDriver creates a dialect provider for the detected driver type
func newDriver(driverName string) (database.Driver, error) {
	switch driverName {
	case "postgres", "postgresql":
		return postgres.NewDriver(), nil
	case "sqlite", "sqlite3":
		return sqlite.NewDriver(), nil
	case "libsql":
		// Turso/libSQL speaks the SQLite dialect; reuse its provider
		return sqlite.NewDriver(), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driverName)
	}
}

// getSQLDriverName returns the sql.Open driver name for a dialect
func getSQLDriverName(driverType string) string {
	switch driverType {
	case "postgres", "postgresql":
		return "postgres"
	case "sqlite", "sqlite3":
		return "sqlite"
	case "libsql":
		return "libsql"
	default:
		return driverType
	}
}

// normalizeConnString strips the sqlite:// prefix modernc.org/sqlite
// does not expect
func normalizeConnString(driverType, connString string) string {
	if driverType == "sqlite" {
		return strings.TrimPrefix(connString, "sqlite://")
	}
	return connString
}

func main() {
	if len(os.Args) < 2 {
		printHelp()
		os.Exit(exitUsage)
	}

	command := os.Args[1]

	switch command {
	case "version", "-v", "--version":
		v, c, d := getVersionInfo()
		fmt.Printf("dbterra %s\n", v)
		fmt.Printf("  commit: %s\n", c)
		fmt.Printf("  built:  %s\n", d)
	case "help", "-h", "--help":
		printHelp()
	case "apply":
		os.Exit(runApply(os.Args[2:]))
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown subcommand '%s'\n", command)

		validCommands := []string{"apply", "version", "help"}
		if suggestion := findClosestCommand(command, validCommands, 2); suggestion != "" {
			fmt.Fprintf(os.Stderr, "\nDid you mean '%s'?\n", suggestion)
		}
		fmt.Fprintf(os.Stderr, "\nRun 'dbterra help' to see available commands.\n")
		os.Exit(exitUsage)
	}
}

func printHelp() {
	fmt.Fprintf(os.Stderr, "dbterra - declarative schema management for PostgreSQL and SQLite\n\n")
	fmt.Fprintf(os.Stderr, "Usage: dbterra <command> [options]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  apply      Reconcile the database with a desired-state SQL file\n")
	fmt.Fprintf(os.Stderr, "  version    Show version information\n")
	fmt.Fprintf(os.Stderr, "  help       Show this help\n\n")
	fmt.Fprintf(os.Stderr, "Examples:\n")
	fmt.Fprintf(os.Stderr, "  dbterra apply --file schema.sql --url postgres://localhost:5432/app\n")
	fmt.Fprintf(os.Stderr, "  dbterra apply -f schema.sql --dry-run\n")
	fmt.Fprintf(os.Stderr, "  dbterra apply -f schema.sql -s public -s billing --auto-approve\n")
}

// runApply is the whole reconciliation pipeline: parse the desired
// state, introspect the current state, diff, plan, execute. Returns the
// process exit code.
func runApply(args []string) int {
	opts := parseApplyOptions(args)

	LoadDotenv()
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load dbterra.toml: %v\n", err)
		return 1
	}

	schemaFile := GetSchemaFile(opts.File, cfg)
	if schemaFile == "" {
		fmt.Fprintf(os.Stderr, "Error: --file is required (or set schema_file in dbterra.toml)\n")
		return exitUsage
	}

	connStr := GetDatabaseURL(opts.URL, cfg)
	if connStr == "" {
		fmt.Fprintf(os.Stderr, "Error: no database connection configured; pass --url or set DATABASE_URL\n")
		return exitUsage
	}

	lockName := opts.LockName
	if lockName == "" {
		lockName = cfg.LockName
	}
	lockTimeout := time.Duration(opts.LockTimeout) * time.Second
	if opts.LockTimeout == 0 && cfg.LockTimeoutSeconds > 0 {
		lockTimeout = time.Duration(cfg.LockTimeoutSeconds) * time.Second
	}

	desired, err := ParseSchemaFile(schemaFile)
	if err != nil {
		FormatError(os.Stderr, err)
		return 1
	}

	driverType := detectDriver(connStr)
	drv, err := newDriver(driverType)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	db, err := sql.Open(getSQLDriverName(driverType), normalizeConnString(driverType, connStr))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open database connection: %v\n", err)
		return 1
	}
	defer func() { _ = db.Close() }()

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to connect to database: %v\n", err)
		return 1
	}

	managedSchemas := GetManagedSchemas(opts.Schemas, cfg)
	current, err := drv.IntrospectSnapshot(ctx, db, managedSchemas)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to introspect database: %v\n", err)
		return 1
	}

	diff, err := DiffSnapshots(desired, current)
	if err != nil {
		FormatError(os.Stderr, err)
		return 1
	}

	plan, err := GeneratePlan(diff, desired, current, drv.Capabilities())
	if err != nil {
		FormatError(os.Stderr, err)
		return 1
	}

	execOpts := ExecuteOptions{
		AutoApprove: opts.AutoApprove,
		DryRun:      opts.DryRun,
		Format:      opts.Format,
		LockName:    lockName,
		LockTimeout: lockTimeout,
	}
	if err := Execute(ctx, db, drv, plan, execOpts); err != nil {
		FormatError(os.Stderr, err)
		return 1
	}

	return 0
}
