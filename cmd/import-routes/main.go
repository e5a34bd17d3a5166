// Command import-routes loads short-link routes from a YAML seed file into
// the configured route store.
//
// Usage:
//
//	import-routes [--replace] [--dry-run] routes.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/robostem/matchjump/backend/db"
	"github.com/robostem/matchjump/backend/shortlink"
)

func main() {
	replace := flag.Bool("replace", false, "Delete routes that are not in the file")
	dryRun := flag.Bool("dry-run", false, "Validate the file and print the routes without saving")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))
	_ = godotenv.Load()

	if err := run(context.Background(), flag.Args(), os.Getenv("DB_DSN"), *replace, *dryRun, os.Stdout); err != nil {
		slog.Error("import failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, dsn string, replace, dryRun bool, out io.Writer) error {
	if len(args) != 1 {
		return errors.New("expected exactly one routes file argument")
	}
	path := args[0]
	if dryRun {
		rs, err := shortlink.LoadFile(path)
		if err != nil {
			return err
		}
		for _, r := range rs {
			fmt.Fprintf(out, "%s\t%s\t%d streams\n", r.Path, r.SKU, len(r.Streams))
		}
		return nil
	}
	if dsn == "" {
		return errors.New("DB_DSN environment variable is required")
	}
	database, err := db.Connect(dsn)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer database.Close()
	if err := db.RunMigrations(database); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return importInto(ctx, &shortlink.Postgres{DB: database}, path, replace, out)
}

func importInto(ctx context.Context, s shortlink.Store, path string, replace bool, out io.Writer) error {
	n, err := shortlink.Import(ctx, s, path, replace)
	if err != nil {
		return err
	}
	slog.Info("routes imported", slog.Int("count", n), slog.Bool("replace", replace), slog.String("file", path))
	fmt.Fprintf(out, "imported %d routes\n", n)
	return nil
}
