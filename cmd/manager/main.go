// Package main is the entrypoint for the modules-manager (binary name "manager" in Docker).
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"text/tabwriter"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morezero/modules-manager/internal/config"
	"github.com/morezero/modules-manager/internal/server"
	"github.com/morezero/modules-manager/pkg/bootstrap"
	"github.com/morezero/modules-manager/pkg/catalog"
	"github.com/morezero/modules-manager/pkg/db"
)

const usage = `Usage: manager [command]
       manager serve              Start the manager (NATS request/reply, HTTP health).
       manager modules [file]     Print the module catalog and how the manifest resolves.
       manager migrate up         Run store migrations.
       manager migrate status     Show migration status.
       manager ensure-db [name]   Create database if missing (default name: modules_test). Uses DATABASE_URL host/user.
       manager clear [prefix]     Delete stored module state (all of it, or keys under prefix); schema is preserved.

Commands:
  serve            (default) Start the modules manager.
  modules [file]   Resolve the manifest (file, MODULES_MANIFEST_FILE or the default) against the builtin catalog.
  migrate up       Run database migrations only.
  migrate status   Show current migration status.
  ensure-db [name] Create database (e.g. modules_test) on same host as DATABASE_URL.
  clear [prefix]   Clear the module store.

Environment: COMMS_URL, STORE_BACKEND (memory|postgres), DATABASE_URL (postgres), MIGRATION_PATH,
MODULES_MANIFEST_FILE, MODULES_SUBJECT_PREFIX, HTTP_PORT (default 8080). See README.
`

func main() {
	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 && args[0] != "" {
		cmd = args[0]
	}

	switch cmd {
	case "migrate":
		if len(args) < 2 {
			log.Fatalf("manager migrate: require subcommand (up, status)")
		}
		sub := args[1]
		switch sub {
		case "up":
			if err := runMigrateUp(); err != nil {
				log.Fatalf("manager migrate up: %v", err)
			}
		case "status":
			if err := runMigrateStatus(os.Stdout); err != nil {
				log.Fatalf("manager migrate status: %v", err)
			}
		default:
			log.Fatalf("manager migrate: unknown subcommand %q (use up, status)", sub)
		}
		return
	case "modules":
		file := ""
		if len(args) > 1 {
			file = args[1]
		}
		if err := runModules(os.Stdout, file); err != nil {
			log.Fatalf("manager modules: %v", err)
		}
		return
	case "clear":
		prefix := ""
		if len(args) > 1 {
			prefix = args[1]
		}
		if err := runClear(prefix); err != nil {
			log.Fatalf("manager clear: %v", err)
		}
		return
	case "ensure-db":
		dbName := "modules_test"
		if len(args) > 1 && args[1] != "" {
			dbName = args[1]
		}
		if err := runEnsureDB(dbName); err != nil {
			log.Fatalf("manager ensure-db: %v", err)
		}
		return
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	case "serve", "":
		// serve (explicit or default)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q.\n%s", cmd, usage)
		os.Exit(1)
	}

	if err := server.Run(); err != nil {
		log.Fatalf("manager: %v", err)
	}
}

func runModules(w io.Writer, file string) error {
	var paths []string
	if file != "" {
		paths = append(paths, file)
	}
	m, err := bootstrap.LoadManifest(paths...)
	if err != nil {
		return fmt.Errorf("load manifest: %w", err)
	}
	return printModules(w, m, catalog.Builtin())
}

// printModules writes the catalog followed by the manifest resolution.
func printModules(w io.Writer, m *bootstrap.Manifest, cat *catalog.Catalog) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tVERSION\tDEPRECATED\tDESCRIPTION")
	for _, e := range cat.List() {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", e.Kind, e.Version, e.Deprecated, e.Description)
	}
	fmt.Fprintln(tw)
	fmt.Fprintf(tw, "MANIFEST %s\n", m.Name)
	fmt.Fprintln(tw, "NAME\tREFERENCE\tRESOLVED\tINSTANTIATE")
	for _, mod := range m.Modules {
		var resolved string
		entry, err := cat.Resolve(mod.Module)
		if err != nil {
			resolved = "error: " + err.Error()
		} else {
			resolved = entry.Kind + "@" + entry.Version
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", mod.Name, mod.Module, resolved, mod.Instantiate != nil)
	}
	return tw.Flush()
}

// withPool loads config, opens the pool and runs fn against it.
func withPool(fn func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error) error {
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
	return fn(ctx, cfg, pool)
}

func runMigrateUp() error {
	return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
		migrations, err := db.ResolveMigrations(cfg.MigrationPath)
		if err != nil {
			return fmt.Errorf("load migrations: %w", err)
		}
		return db.RunMigrations(ctx, pool, migrations)
	})
}

func runMigrateStatus(w io.Writer) error {
	return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
		migrations, err := db.ResolveMigrations(cfg.MigrationPath)
		if err != nil {
			return fmt.Errorf("load migrations: %w", err)
		}
		states, err := db.MigrationStatus(ctx, pool, migrations)
		if err != nil {
			return err
		}
		printMigrationStatus(w, states)
		return nil
	})
}

func printMigrationStatus(w io.Writer, states []db.MigrationState) {
	for _, s := range states {
		mark := "pending"
		if s.Applied {
			mark = "applied"
		}
		fmt.Fprintf(w, "%-8s %s\n", mark, s.Name)
	}
}

func runClear(prefix string) error {
	return withPool(func(ctx context.Context, _ *config.Config, pool *pgxpool.Pool) error {
		n, err := db.ClearStore(ctx, pool, prefix)
		if err != nil {
			return err
		}
		if n < 0 {
			fmt.Println("Module store truncated.")
		} else {
			fmt.Printf("Deleted %d keys under %q.\n", n, prefix)
		}
		return nil
	})
}

func runEnsureDB(dbName string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	targetURL, err := targetDatabaseURL(cfg.DatabaseURL, dbName)
	if err != nil {
		return err
	}
	if err := db.EnsureDatabase(context.Background(), targetURL); err != nil {
		return err
	}
	fmt.Printf("Database %q is ready.\n", dbName)
	return nil
}

// targetDatabaseURL swaps the database name in databaseURL; the query
// (e.g. sslmode) is kept.
func targetDatabaseURL(databaseURL, dbName string) (string, error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	u.Path = "/" + dbName
	return u.String(), nil
}
