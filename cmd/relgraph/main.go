// Command relgraph runs one eager-loaded query against a MySQL-compatible
// database whose entity schema is declared in the config file, and prints
// the resulting records as JSON.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"relgraph/internal/config"
	"relgraph/internal/dbexec"
	"relgraph/internal/logging"
	"relgraph/internal/observability"
	"relgraph/internal/query"

	"github.com/XSAM/otelsql"
	_ "github.com/go-sql-driver/mysql"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel/attribute"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "relgraph:", err)
		os.Exit(1)
	}
}

func defineFlags() (entityName *string, eagerArgs, eagerGraphArgs *[]string) {
	entityName = pflag.String("entity", "", "entity type to query")
	eagerArgs = pflag.StringSlice("eager", nil, "association path to batch-load (dotted for nesting, repeatable)")
	eagerGraphArgs = pflag.StringSlice("eager-graph", nil, "association path to load via a joined query (dotted for nesting, repeatable)")
	return
}

func run() error {
	entityName, eagerArgs, eagerGraphArgs := defineFlags()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	slog.SetDefault(logger.Logger)

	registry, err := cfg.BuildRegistry(logger.Logger)
	if err != nil {
		return err
	}
	if *entityName == "" {
		return fmt.Errorf("--entity is required")
	}
	entity, err := registry.Entity(*entityName)
	if err != nil {
		return err
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	metrics, err := observability.InitEagerMetrics()
	if err != nil {
		return err
	}

	ctx := logging.WithLogger(context.Background(), logger)
	q := query.New(registry, entity, dbexec.NewStandardExecutor(db)).WithMetrics(metrics)
	for _, path := range *eagerArgs {
		if q, err = q.WithEager(eagerArg(path)); err != nil {
			return err
		}
	}
	for _, path := range *eagerGraphArgs {
		if q, err = q.WithEagerGraph(eagerArg(path)); err != nil {
			return err
		}
	}

	records, err := q.All(ctx)
	if err != nil {
		return err
	}

	out := make([]map[string]any, len(records))
	for i, rec := range records {
		out[i] = rec.Export()
	}
	encoded, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}

func openDatabase(cfg *config.Config) (*sql.DB, error) {
	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("database DSN is required (--dsn, RELGRAPH_DATABASE_DSN, or config file)")
	}
	db, err := otelsql.Open("mysql", cfg.Database.DSN,
		otelsql.WithAttributes(attribute.String("db.system", "mysql")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpen)
	db.SetMaxIdleConns(cfg.Database.MaxIdle)
	db.SetConnMaxLifetime(cfg.Database.MaxLifetime)
	return db, nil
}

// eagerArg converts a dotted association path into the nested mapping the
// eager spec parser expects: "albums.tracks" -> {"albums": {"tracks": nil}}.
func eagerArg(path string) any {
	segments := strings.Split(path, ".")
	var arg any = segments[len(segments)-1]
	for i := len(segments) - 2; i >= 0; i-- {
		arg = map[string]any{segments[i]: arg}
	}
	return arg
}
