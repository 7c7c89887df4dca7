// Command ardetect detects and tracks atmospheric rivers in gridded IVT
// series.
//
// Usage:
//
//	ardetect run -input series.json [-config tuning.json] [-out tracks.csv] [-db results.db]
//	ardetect detect -input series.json [-config tuning.json] [-out candidates.json]
//	ardetect migrate -db results.db -migrations ./migrations {up|down|status|force N}
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Wang-bp/AR-Detection/internal/config"
	"github.com/Wang-bp/AR-Detection/internal/detect"
	"github.com/Wang-bp/AR-Detection/internal/export"
	"github.com/Wang-bp/AR-Detection/internal/grid"
	"github.com/Wang-bp/AR-Detection/internal/ivt"
	"github.com/Wang-bp/AR-Detection/internal/runner"
	"github.com/Wang-bp/AR-Detection/internal/storage/sqlite"
	"github.com/Wang-bp/AR-Detection/internal/version"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	var err error
	switch os.Args[1] {
	case "run", "track":
		err = cmdRun(os.Args[2:])
	case "detect":
		err = cmdDetect(os.Args[2:])
	case "migrate":
		err = cmdMigrate(os.Args[2:])
	case "version":
		fmt.Printf("ardetect %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	case "-h", "--help", "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		usage()
		os.Exit(2)
	}
	if err != nil {
		slog.Error("command failed", "error", err)
		var dataErr *grid.DataError
		var cfgErr *config.ConfigError
		switch {
		case errors.As(err, &dataErr):
			os.Exit(3)
		case errors.As(err, &cfgErr):
			os.Exit(4)
		default:
			os.Exit(1)
		}
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: ardetect {run|detect|migrate|version} [flags]")
	fmt.Fprintln(os.Stderr, "  run     detect and track over an input series, write CSV and/or SQLite")
	fmt.Fprintln(os.Stderr, "          (track is accepted as an alias)")
	fmt.Fprintln(os.Stderr, "  detect  detect candidates per timestep, write JSON")
	fmt.Fprintln(os.Stderr, "  migrate manage the results database schema")
	fmt.Fprintln(os.Stderr, "  version print build information")
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func cmdRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	var (
		input      = fs.String("input", "", "Input IVT series (JSON)")
		configPath = fs.String("config", "", "Tuning config (JSON); defaults used when empty")
		out        = fs.String("out", "", "Track records CSV output; '-' for stdout")
		dbPath     = fs.String("db", "", "SQLite results database; persistence skipped when empty")
	)
	fs.Parse(args)
	if *input == "" {
		return &config.ConfigError{Field: "input", Reason: "required"}
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	fields, err := ivt.LoadFields(*input, cfg.GetZonalCyclic())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r, err := runner.New(cfg, slog.Default())
	if err != nil {
		return err
	}
	result, err := r.Run(ctx, fields)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	if *out != "" {
		w := os.Stdout
		if *out != "-" {
			f, err := os.Create(*out)
			if err != nil {
				return fmt.Errorf("create output file: %w", err)
			}
			defer f.Close()
			w = f
		}
		if err := export.WriteCSV(w, result.Records); err != nil {
			return err
		}
	}

	if *dbPath != "" {
		store, err := sqlite.Open(*dbPath)
		if err != nil {
			return err
		}
		defer store.Close()

		runID, err := store.InsertRun(cfg)
		if err != nil {
			return err
		}
		for _, tr := range result.Tracks {
			if err := store.InsertTrack(runID, tr); err != nil {
				return err
			}
		}
		if err := store.InsertRecords(runID, result.Records); err != nil {
			return err
		}
		slog.Info("run persisted", "run_id", runID, "tracks", len(result.Tracks))
	}
	return nil
}

func cmdDetect(args []string) error {
	fs := flag.NewFlagSet("detect", flag.ExitOnError)
	var (
		input      = fs.String("input", "", "Input IVT series (JSON)")
		configPath = fs.String("config", "", "Tuning config (JSON); defaults used when empty")
		out        = fs.String("out", "-", "Candidate JSON output; '-' for stdout")
	)
	fs.Parse(args)
	if *input == "" {
		return &config.ConfigError{Field: "input", Reason: "required"}
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	fields, err := ivt.LoadFields(*input, cfg.GetZonalCyclic())
	if err != nil {
		return err
	}

	type timestepOut struct {
		Timestamp  string              `json:"timestamp"`
		Candidates []*detect.Candidate `json:"candidates"`
	}
	results := make([]timestepOut, 0, len(fields))
	for _, f := range fields {
		cands, err := detect.Detect(f, cfg)
		if err != nil {
			return fmt.Errorf("detect at %s: %w", f.Timestamp(), err)
		}
		results = append(results, timestepOut{
			Timestamp:  f.Timestamp().UTC().Format("2006-01-02T15:04:05Z07:00"),
			Candidates: cands,
		})
		slog.Info("timestep detected", "timestamp", f.Timestamp(), "candidates", len(cands))
	}

	w := os.Stdout
	if *out != "-" {
		f, err := os.Create(*out)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

func cmdMigrate(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	var (
		dbPath        = fs.String("db", "results.db", "SQLite results database")
		migrationsDir = fs.String("migrations", "./migrations", "Migrations directory")
	)
	fs.Parse(args)
	if fs.NArg() < 1 {
		return &config.ConfigError{Field: "migrate", Reason: "missing action (up|down|status|force N)"}
	}

	store, err := sqlite.Open(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	switch fs.Arg(0) {
	case "up":
		return store.MigrateUp(*migrationsDir)
	case "down":
		return store.MigrateDown(*migrationsDir)
	case "status":
		version, dirty, err := store.MigrateVersion(*migrationsDir)
		if err != nil {
			return err
		}
		fmt.Printf("version: %d dirty: %v\n", version, dirty)
		return nil
	case "force":
		if fs.NArg() < 2 {
			return &config.ConfigError{Field: "migrate", Reason: "force requires a version"}
		}
		var version int
		if _, err := fmt.Sscanf(fs.Arg(1), "%d", &version); err != nil {
			return &config.ConfigError{Field: "migrate", Reason: "force version must be an integer"}
		}
		return store.MigrateForce(*migrationsDir, version)
	default:
		return &config.ConfigError{Field: "migrate", Reason: fmt.Sprintf("unknown action %q", fs.Arg(0))}
	}
}
