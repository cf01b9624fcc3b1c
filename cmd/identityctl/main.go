package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/getkayan/kidentity/config"
	"github.com/getkayan/kidentity/logger"
	"github.com/getkayan/kidentity/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Version is set at build time
var Version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "version":
		fmt.Printf("identityctl %s\n", Version)
		return
	case "help", "-h", "--help":
		printUsage()
		return
	case "migrate", "health", "role", "roles", "user", "users":
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err := run(context.Background(), cmd, args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd string, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger.InitLogger(cfg.LogLevel)
	defer func() { _ = logger.Log.Sync() }()

	shutdown, err := telemetry.Setup(ctx, cfg.Telemetry(Version))
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Log.Warn("telemetry shutdown", zap.Error(err))
		}
	}()

	logger.Log.Debug("starting",
		zap.String("command", cmd),
		zap.String("db", cfg.DBType),
		zap.String("key_type", cfg.KeyType),
	)

	if cfg.UUIDKeys() {
		return runWith[uuid.UUID](ctx, os.Stdout, cfg, cmd, args)
	}
	return runWith[string](ctx, os.Stdout, cfg, cmd, args)
}

func parseArgs(args []string) (map[string]string, []string) {
	opts := make(map[string]string)
	var rest []string
	for _, arg := range args {
		if strings.HasPrefix(arg, "--") {
			parts := strings.SplitN(strings.TrimPrefix(arg, "--"), "=", 2)
			if len(parts) == 2 {
				opts[parts[0]] = parts[1]
			} else {
				opts[parts[0]] = "true"
			}
			continue
		}
		rest = append(rest, arg)
	}
	return opts, rest
}

func printUsage() {
	fmt.Print(`identityctl - manage identity data in a relational database

Usage:
  identityctl <command> [subcommand] [args] [options]

Environment Variables:
  DB_TYPE            sqlite, postgres or mysql (default: sqlite)
  DSN                Data source name (default: kidentity.db)
  KEY_TYPE           string or uuid (default: string)
  KEY_STRATEGY       guidcomb, hexcomb, ksuid or snowflake
  SNOWFLAKE_NODE     Node id for snowflake keys (0-1023)
  SKIP_AUTO_MIGRATE  Do not migrate tables on start
  LOG_LEVEL          debug, info, warn or error (default: info)
  OTEL_ENDPOINT      OTLP/HTTP endpoint for traces

Commands:
  migrate           Create or update the identity tables
  health            Check database connectivity and tables

  role      Manage roles
    list
    get     <name>
    create  <name>
    rename  <name> <new-name>
    delete  <name>

  user      Manage users
    list
    get     <name>
    create  <name> [--email=EMAIL] [--phone=PHONE]
    delete  <name>
    add-role      <name> <role>
    remove-role   <name> <role>
    add-claim     <name> <type> <value>
    remove-claim  <name> <type> <value>
    add-login     <name> <provider> <key>
    remove-login  <name> <provider> <key>
    find-login    <provider> <key>
    lock    <name> [--until=RFC3339]
    unlock  <name>

  version   Show version
  help      Show this help
`)
}
