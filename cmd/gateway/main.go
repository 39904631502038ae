// Package main is the entrypoint for the marketplace gateway (binary name "gateway" in Docker).
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/morezero/marketplace-gateway/internal/config"
	"github.com/morezero/marketplace-gateway/internal/server"
	"github.com/morezero/marketplace-gateway/pkg/adapter"
	"github.com/morezero/marketplace-gateway/pkg/db"
)

const usage = `Usage: gateway [command]
       gateway serve               Start the gateway (NATS, HTTP, command dispatch).
       gateway invoke [payload]    Run one invocation and print its envelope. Reads stdin when payload is omitted or "-".
       gateway migrate up          Run database migrations.
       gateway migrate status      Show migration status.
       gateway ensure-db           Create the DATABASE_URL database and extensions if missing.

Commands:
  serve           (default) Start the marketplace gateway.
  invoke          One-shot dispatch, e.g. gateway invoke '{"function_name":"login","input":{}}'.
  migrate up      Run database migrations only.
  migrate status  Show applied and pending migrations.
  ensure-db       Create database on the DATABASE_URL host; then run migrate up.

Environment: DATABASE_URL, MIGRATION_PATH, HTTP_ADDR, HTTP_PORT (default 3000), COMMS_URL, COMMS_ENABLED,
ADMIN_SERVICE_TOKEN, STRIPE_WEBHOOK_SECRET. See README.
`

// errEnvelopeFailure marks an invocation whose envelope carries an error.
var errEnvelopeFailure = errors.New("invocation failed")

func main() {
	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 && args[0] != "" {
		cmd = args[0]
	}

	switch cmd {
	case "invoke":
		if err := runInvoke(context.Background(), args[1:], os.Stdin, os.Stdout); err != nil {
			if errors.Is(err, errEnvelopeFailure) {
				os.Exit(1)
			}
			log.Fatalf("gateway invoke: %v", err)
		}
		return
	case "migrate":
		if len(args) < 2 {
			log.Fatalf("gateway migrate: require subcommand (up, status)")
		}
		sub := args[1]
		switch sub {
		case "up":
			if err := runMigrateUp(os.Stdout); err != nil {
				log.Fatalf("gateway migrate up: %v", err)
			}
		case "status":
			if err := runMigrateStatus(os.Stdout); err != nil {
				log.Fatalf("gateway migrate status: %v", err)
			}
		default:
			log.Fatalf("gateway migrate: unknown subcommand %q (use up, status)", sub)
		}
		return
	case "ensure-db":
		if err := runEnsureDB(os.Stdout); err != nil {
			log.Fatalf("gateway ensure-db: %v", err)
		}
		return
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	case "serve", "":
		// serve (explicit or default)
		break
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q.\n%s", cmd, usage)
		os.Exit(1)
	}

	if err := server.Run(); err != nil {
		log.Fatalf("gateway: %v", err)
	}
}

// runInvoke dispatches a single payload through the CLI transport. Logs go to stderr
// so stdout carries only the envelope. A missing COMMS server is not fatal here.
func runInvoke(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	server.ConfigureLoggingTo(os.Stderr, cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		return err
	}

	payload, err := readPayload(args, stdin, cfg.HTTPMaxBodyBytes)
	if err != nil {
		return err
	}

	s, err := server.New(ctx, cfg, server.WithOptionalComms())
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
	defer cancel()

	env, handleErr := adapter.New(s.Dispatcher(), s.Metrics(), adapter.TransportCLI).Handle(ctx, payload)
	enc := json.NewEncoder(stdout)
	if err := enc.Encode(env); err != nil {
		return fmt.Errorf("write envelope: %w", err)
	}
	if handleErr != nil || env.Error != nil {
		return errEnvelopeFailure
	}
	return nil
}

func readPayload(args []string, stdin io.Reader, limit int64) ([]byte, error) {
	if len(args) > 0 && args[0] != "-" {
		return []byte(strings.Join(args, " ")), nil
	}
	if limit <= 0 {
		limit = server.DefaultMaxBodyBytes
	}
	data, err := io.ReadAll(io.LimitReader(stdin, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("payload exceeds %d bytes", limit)
	}
	return data, nil
}

func runMigrateUp(stdout io.Writer) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	migrations, err := db.LoadMigrations(cfg.MigrationPath)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	applied, err := db.RunMigrations(ctx, pool, migrations)
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	if len(applied) == 0 {
		fmt.Fprintln(stdout, "No pending migrations.")
		return nil
	}
	for _, name := range applied {
		fmt.Fprintf(stdout, "Applied %s\n", name)
	}
	return nil
}

func runMigrateStatus(stdout io.Writer) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	report, err := db.MigrationStatus(ctx, pool, cfg.MigrationPath)
	if err != nil {
		return err
	}
	printReport(stdout, report)
	return nil
}

func printReport(w io.Writer, report *db.MigrationReport) {
	fmt.Fprintf(w, "Applied (%d):\n", len(report.Applied))
	for _, name := range report.Applied {
		fmt.Fprintf(w, "  %s\n", name)
	}
	fmt.Fprintf(w, "Pending (%d):\n", len(report.Pending))
	for _, name := range report.Pending {
		fmt.Fprintf(w, "  %s\n", name)
	}
}

func runEnsureDB(stdout io.Writer) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	if err := db.EnsureDatabase(context.Background(), cfg.DatabaseURL, db.DefaultExtensions...); err != nil {
		return err
	}
	fmt.Fprintln(stdout, "Database is ready.")
	return nil
}
