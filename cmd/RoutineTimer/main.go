package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/BTreeMap/RoutineTimer/internal/api"
	"github.com/BTreeMap/RoutineTimer/internal/clock"
	"github.com/BTreeMap/RoutineTimer/internal/lockfile"
	"github.com/BTreeMap/RoutineTimer/internal/scheduler"
	"github.com/BTreeMap/RoutineTimer/internal/seed"
	"github.com/BTreeMap/RoutineTimer/internal/session"
	"github.com/BTreeMap/RoutineTimer/internal/store"
	"github.com/BTreeMap/RoutineTimer/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for RoutineTimer state data
	DefaultStateDir = "/var/lib/routinetimer"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "routinetimer.db"
	// MemoryDSN selects the non-persistent in-memory store
	MemoryDSN = "memory"
	// DefaultSeedUser owns seeded routines when no user is configured
	DefaultSeedUser = "default"
	// DefaultSessionSweep is how often idle sessions are evicted
	DefaultSessionSweep = "@every 10m"
	// DefaultSessionIdleTTL is how long an unused session without a running timer is kept
	DefaultSessionIdleTTL = 12 * time.Hour
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()

	flags, err := parseCommandLineFlags(config, os.Args[1:])
	if err != nil {
		slog.Error("Failed to parse flags", "error", err)
		os.Exit(2)
	}

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping RoutineTimer")
	slog.Debug("Final configuration", "state_dir", flags.StateDir, "dsn_set", flags.DBDSN != "", "api_addr", flags.APIAddr,
		"seed_file", flags.SeedFile, "cache_routines", flags.CacheRoutines)
	if err := run(ctx, flags); err != nil {
		slog.Error("RoutineTimer failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("RoutineTimer exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL     string
	StateDir        string
	APIAddr         string
	SeedFile        string
	SeedUser        string
	CacheRoutines   bool
	ShutdownTimeout time.Duration
	SessionSweep    string
	SessionIdleTTL  time.Duration
}

// Flags holds command line flag values
type Flags struct {
	StateDir        string
	DBDSN           string
	APIAddr         string
	SeedFile        string
	SeedUser        string
	CacheRoutines   bool
	ShutdownTimeout time.Duration
	SessionSweep    string
	SessionIdleTTL  time.Duration
}

// initializeLogger sets up structured logging; ROUTINETIMER_LOG_LEVEL defaults to debug.
func initializeLogger() {
	level := util.ParseLogLevelEnv("ROUTINETIMER_LOG_LEVEL", slog.LevelDebug)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		StateDir:        util.GetEnvDefault("ROUTINETIMER_STATE_DIR", DefaultStateDir),
		APIAddr:         util.GetEnvDefault("API_ADDR", api.DefaultAddr),
		SeedFile:        os.Getenv("ROUTINETIMER_SEED_FILE"),
		SeedUser:        util.GetEnvDefault("ROUTINETIMER_SEED_USER", DefaultSeedUser),
		CacheRoutines:   util.ParseBoolEnv("ROUTINETIMER_CACHE_ROUTINES", false),
		ShutdownTimeout: util.ParseDurationEnv("ROUTINETIMER_SHUTDOWN_TIMEOUT", api.DefaultShutdownTimeout),
		SessionSweep:    util.GetEnvDefault("ROUTINETIMER_SESSION_SWEEP", DefaultSessionSweep),
		SessionIdleTTL:  util.ParseDurationEnv("ROUTINETIMER_SESSION_IDLE_TTL", DefaultSessionIdleTTL),
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"ROUTINETIMER_STATE_DIR", config.StateDir,
		"API_ADDR", config.APIAddr,
		"ROUTINETIMER_SEED_FILE", config.SeedFile,
		"ROUTINETIMER_SEED_USER", config.SeedUser,
		"ROUTINETIMER_CACHE_ROUTINES", config.CacheRoutines,
		"ROUTINETIMER_SHUTDOWN_TIMEOUT", config.ShutdownTimeout,
		"ROUTINETIMER_SESSION_SWEEP", config.SessionSweep,
		"ROUTINETIMER_SESSION_IDLE_TTL", config.SessionIdleTTL)

	return config
}

// parseCommandLineFlags parses args with environment defaults. Without an explicit DSN
// the SQLite database lives in the (possibly overridden) state directory.
func parseCommandLineFlags(config Config, args []string) (Flags, error) {
	var flags Flags
	fs := flag.NewFlagSet("routinetimer", flag.ContinueOnError)
	fs.StringVar(&flags.StateDir, "state-dir", config.StateDir, "state directory for RoutineTimer data (overrides $ROUTINETIMER_STATE_DIR)")
	fs.StringVar(&flags.DBDSN, "db-dsn", config.DatabaseURL, "database DSN, SQLite path, or \"memory\" for a non-persistent store (overrides $DATABASE_URL)")
	fs.StringVar(&flags.APIAddr, "api-addr", config.APIAddr, "API server address (overrides $API_ADDR)")
	fs.StringVar(&flags.SeedFile, "seed-file", config.SeedFile, "YAML file of routines to install on startup (overrides $ROUTINETIMER_SEED_FILE)")
	fs.StringVar(&flags.SeedUser, "seed-user", config.SeedUser, "user that receives seeded routines (overrides $ROUTINETIMER_SEED_USER)")
	fs.BoolVar(&flags.CacheRoutines, "cache-routines", config.CacheRoutines, "cache routine lists in memory (overrides $ROUTINETIMER_CACHE_ROUTINES)")
	fs.DurationVar(&flags.ShutdownTimeout, "shutdown-timeout", config.ShutdownTimeout, "graceful shutdown timeout (overrides $ROUTINETIMER_SHUTDOWN_TIMEOUT)")
	fs.StringVar(&flags.SessionSweep, "session-sweep", config.SessionSweep, "cron schedule for evicting idle sessions, empty to disable (overrides $ROUTINETIMER_SESSION_SWEEP)")
	fs.DurationVar(&flags.SessionIdleTTL, "session-idle-ttl", config.SessionIdleTTL, "idle time after which a session is evicted (overrides $ROUTINETIMER_SESSION_IDLE_TTL)")

	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}
	if flags.SessionSweep != "" {
		if err := scheduler.Validate(flags.SessionSweep); err != nil {
			return Flags{}, err
		}
		if flags.SessionIdleTTL <= 0 {
			return Flags{}, fmt.Errorf("session idle TTL must be positive when the session sweep is enabled, got %v", flags.SessionIdleTTL)
		}
	}

	if flags.DBDSN == "" {
		flags.DBDSN = filepath.Join(flags.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", flags.DBDSN)
	}

	slog.Debug("flags parsed",
		"stateDir", flags.StateDir,
		"dbDSN_set", flags.DBDSN != "",
		"apiAddr", flags.APIAddr,
		"seedFile", flags.SeedFile,
		"seedUser", flags.SeedUser,
		"cacheRoutines", flags.CacheRoutines,
		"shutdownTimeout", flags.ShutdownTimeout,
		"sessionSweep", flags.SessionSweep,
		"sessionIdleTTL", flags.SessionIdleTTL)
	return flags, nil
}

// ensureDirectoriesExist creates the state directory and, for file-based DSNs, the database directory.
func ensureDirectoriesExist(flags Flags) error {
	dirs := []string{flags.StateDir}
	if flags.DBDSN != MemoryDSN && store.DetectDSNType(flags.DBDSN) == "sqlite" && flags.DBDSN != ":memory:" {
		dirs = append(dirs, filepath.Dir(flags.DBDSN))
	}
	for _, dir := range dirs {
		slog.Debug("Creating directory", "dir", dir)
		if err := os.MkdirAll(dir, 0755); err != nil {
			slog.Error("Failed to create directory", "error", err, "dir", dir)
			return err
		}
	}
	return nil
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if flags.DBDSN == MemoryDSN {
		slog.Warn("Using in-memory store, routines will not survive a restart")
		return storeOpts
	}
	if store.DetectDSNType(flags.DBDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgresql", "dsn_set", true)
		storeOpts = append(storeOpts, store.WithPostgresDSN(flags.DBDSN))
	} else {
		slog.Debug("Detected SQLite DSN, configuring SQLite store", "dsn_type", "sqlite", "db_path", flags.DBDSN)
		storeOpts = append(storeOpts, store.WithSQLiteDSN(flags.DBDSN))
	}
	return storeOpts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if flags.APIAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(flags.APIAddr))
	}
	if flags.ShutdownTimeout > 0 {
		apiOpts = append(apiOpts, api.WithShutdownTimeout(flags.ShutdownTimeout))
	}
	return apiOpts
}

// openStore opens the configured backend and optionally wraps it with the routine-list cache.
func openStore(flags Flags) (store.RoutineStore, error) {
	st, err := store.NewStore(buildStoreOptions(flags)...)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if flags.CacheRoutines {
		slog.Debug("Routine list cache enabled")
		return store.NewCachedStore(st), nil
	}
	return st, nil
}

// applySeed installs the seed file's routines for the seed user, if a seed file is configured.
func applySeed(ctx context.Context, st store.RoutineStore, flags Flags) error {
	if flags.SeedFile == "" {
		return nil
	}
	f, err := seed.Load(flags.SeedFile)
	if err != nil {
		return err
	}
	added, err := seed.Apply(ctx, st, flags.SeedUser, f)
	if err != nil {
		return fmt.Errorf("apply seed %s: %w", flags.SeedFile, err)
	}
	slog.Info("Seed applied", "file", flags.SeedFile, "user", flags.SeedUser, "added", added, "total", len(f.Routines))
	return nil
}

// run wires the modules together and serves until ctx is cancelled.
func run(ctx context.Context, flags Flags) (err error) {
	lock, err := lockfile.AcquireLock(flags.StateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	st, err := openStore(flags)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("Failed to close store", "error", closeErr)
			err = errors.Join(err, closeErr)
		}
	}()

	if err := applySeed(ctx, st, flags); err != nil {
		return err
	}

	clk := clock.NewReal()
	defer clk.StopAll()

	sessions := session.NewManager(st, clk)
	defer sessions.Close()

	if flags.SessionSweep != "" {
		sched := scheduler.NewScheduler()
		defer sched.Stop()
		ttl := flags.SessionIdleTTL
		if err := sched.AddJob("session-sweep", flags.SessionSweep, func() { sessions.EvictIdle(ttl) }); err != nil {
			return err
		}
	}

	return api.NewServer(st, sessions, buildAPIOptions(flags)...).Run(ctx)
}
