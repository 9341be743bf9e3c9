// Command taxonomyctl runs one-off maintenance against the taxonomy
// database: migrations, tree verification, tag recounts and snapshot
// exports.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"cmstaxonomy/internal/config"
	"cmstaxonomy/internal/database"
	"cmstaxonomy/internal/scheduler"
	"cmstaxonomy/internal/storage"
	"cmstaxonomy/internal/store"
)

// errUnhealthy marks a check that completed but found violations.
var errUnhealthy = errors.New("taxonomy is unhealthy")

// opener returns a migrated database handle and the loaded configuration.
type opener func() (*sql.DB, *config.Config, error)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, openDB)
	stop()
	os.Exit(code)
}

func openDB() (*sql.DB, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	db, err := database.Connect(cfg.DSN())
	if err != nil {
		return nil, nil, err
	}
	if err := database.Migrate(db); err != nil {
		db.Close()
		return nil, nil, err
	}
	return db, cfg, nil
}

// run dispatches args to a subcommand and returns the process exit code.
// Exit code 2 means a check ran but found problems.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, open opener) int {
	cmds := commands(open)

	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printUsage(stdout, cmds)
		return 0
	}

	for _, c := range cmds {
		if c.Name() == args[0] {
			return c.Run(ctx, stdout, stderr, args[1:])
		}
	}

	fmt.Fprintf(stderr, "error: unknown command %q\n\n", args[0])
	printUsage(stderr, cmds)
	return 1
}

func printUsage(w io.Writer, cmds []*command) {
	fmt.Fprintln(w, "Usage: taxonomyctl <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, c := range cmds {
		fmt.Fprintln(w, c.HelpLine())
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Environment:")
	fmt.Fprint(w, config.Usage())
}

func commands(open opener) []*command {
	return []*command{migrateCmd(open), checkCmd(open), recountCmd(open), exportCmd(open)}
}

func migrateCmd(open opener) *command {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	return &command{
		Flags: fs,
		Usage: "migrate",
		Short: "Apply pending schema migrations",
		Exec: func(ctx context.Context, stdout io.Writer) error {
			db, _, err := open()
			if err != nil {
				return err
			}
			defer db.Close()

			version, err := database.Version(db)
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "schema version %d\n", version)
			return nil
		},
	}
}

func checkCmd(open opener) *command {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	asJSON := fs.Bool("json", false, "Print violations as JSON")
	timeout := fs.Duration("timeout", time.Minute, "Abort the check after this long")

	return &command{
		Flags: fs,
		Usage: "check [flags]",
		Short: "Verify category tree invariants without repairing",
		Exec: func(ctx context.Context, stdout io.Writer) error {
			db, _, err := open()
			if err != nil {
				return err
			}
			defer db.Close()

			ctx, cancel := context.WithTimeout(ctx, *timeout)
			defer cancel()

			violations, err := store.NewCategoryStore(db).Verify(ctx)
			if err != nil {
				return err
			}
			if err := printViolations(stdout, violations, *asJSON); err != nil {
				return err
			}
			if len(violations) > 0 {
				return errUnhealthy
			}
			return nil
		},
	}
}

func recountCmd(open opener) *command {
	fs := flag.NewFlagSet("recount", flag.ContinueOnError)
	asJSON := fs.Bool("json", false, "Print the report as JSON")
	timeout := fs.Duration("timeout", scheduler.DefaultRunTimeout, "Abort the run after this long")

	return &command{
		Flags: fs,
		Usage: "recount [flags]",
		Short: "Recompute drifted tag counts and verify the tree",
		Exec: func(ctx context.Context, stdout io.Writer) error {
			db, _, err := open()
			if err != nil {
				return err
			}
			defer db.Close()

			ctx, cancel := context.WithTimeout(ctx, *timeout)
			defer cancel()

			// Cached listings expire on their TTL; the invalidation log
			// records the recount for running servers.
			opts := store.WithCacheLog(store.NewCacheLogStore(db))
			reconciler := scheduler.NewReconciler(
				store.NewTagStore(db, opts),
				store.NewCategoryStore(db, opts),
				nil,
			)

			report, err := reconciler.Run(ctx)
			if err != nil {
				return err
			}
			if *asJSON {
				return json.NewEncoder(stdout).Encode(report)
			}

			fmt.Fprintf(stdout, "recounted %d tag(s) in %s\n", len(report.RecountedTags), report.Duration.Round(time.Millisecond))
			for _, id := range report.RecountedTags {
				fmt.Fprintf(stdout, "  %s\n", id)
			}
			if err := printViolations(stdout, report.Violations, false); err != nil {
				return err
			}
			if len(report.Violations) > 0 {
				return errUnhealthy
			}
			return nil
		},
	}
}

func exportCmd(open opener) *command {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	upload := fs.Bool("upload", false, "Upload to S3 instead of printing")
	presign := fs.Duration("presign", 0, "Also print a pre-signed download URL valid this long")

	return &command{
		Flags: fs,
		Usage: "export [flags]",
		Short: "Write a JSON snapshot of active categories and tags",
		Exec: func(ctx context.Context, stdout io.Writer) error {
			db, cfg, err := open()
			if err != nil {
				return err
			}
			defer db.Close()

			snap, err := storage.BuildSnapshot(ctx, store.NewCategoryStore(db), store.NewTagStore(db), time.Now())
			if err != nil {
				return err
			}
			if !*upload {
				return snap.Encode(stdout)
			}

			client, err := storage.New(cfg.S3Endpoint, cfg.S3Region, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Bucket, cfg.S3Prefix)
			if err != nil {
				return err
			}
			if client == nil {
				return errors.New("object storage is not configured (set S3_ENDPOINT, S3_ACCESS_KEY and S3_SECRET_KEY)")
			}

			key := client.Key(storage.SnapshotName(snap.GeneratedAt))
			if err := storage.Publish(ctx, client, key, snap); err != nil {
				return err
			}
			fmt.Fprintf(stdout, "uploaded s3://%s/%s (%d categories, %d tags)\n",
				client.Bucket(), key, len(snap.Categories), len(snap.Tags))

			if *presign > 0 {
				url, err := client.PresignedURL(ctx, key, *presign)
				if err != nil {
					return err
				}
				fmt.Fprintln(stdout, url)
			}
			return nil
		},
	}
}

func printViolations(w io.Writer, violations []store.Violation, asJSON bool) error {
	if asJSON {
		if violations == nil {
			violations = []store.Violation{}
		}
		return json.NewEncoder(w).Encode(violations)
	}
	if len(violations) == 0 {
		fmt.Fprintln(w, "category tree ok")
		return nil
	}
	fmt.Fprintf(w, "%d violation(s):\n", len(violations))
	for _, v := range violations {
		fmt.Fprintf(w, "  %-16s %s  %s\n", v.Kind, v.ID, v.Detail)
	}
	return nil
}
