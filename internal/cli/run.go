package cli

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"github.com/turrero/turradb/internal/db"
)

const helpFlag = "--help"

// Run is the main entry point. Returns the process exit code: 0 when the
// archive is healthy or carries only warnings, 1 on error-level findings,
// a failed fix attempt, or any operational failure.
func Run(out, errOut io.Writer, args []string) int {
	ioCtx := NewIO(out, errOut)

	if len(args) < 2 {
		printUsage(ioCtx)

		return 0
	}

	flags, err := parseGlobalFlags(args[1:])
	if err != nil {
		ioCtx.Errorln("error:", err)

		return 1
	}

	logger := newLogger(errOut, flags.verbose)

	workDir, err := os.Getwd()
	if err != nil {
		ioCtx.Errorln("error: cannot get working directory:", err)

		return 1
	}

	overrides := Config{DBDir: flags.dbDir, AssetDir: flags.assetDir}

	cfg, sources, err := LoadConfig(workDir, flags.configPath, overrides)
	if err != nil {
		ioCtx.Errorln("error:", err)

		return 1
	}

	if len(flags.remaining) == 0 {
		printUsage(ioCtx)

		return 0
	}

	cmd := flags.remaining[0]
	rest := flags.remaining[1:]

	if cmd == "-h" || cmd == helpFlag {
		printUsage(ioCtx)

		return 0
	}

	env := &cmdEnv{
		io:      ioCtx,
		cfg:     resolveDirs(cfg, workDir),
		sources: sources,
		log:     logger,
	}

	switch cmd {
	case "check":
		return cmdCheck(env, rest)
	case "repair":
		return cmdRepair(env, rest)
	case "backup":
		return cmdBackup(env, rest)
	case "backfill-author":
		return cmdBackfillAuthor(env, rest)
	case "print-config":
		return cmdPrintConfig(env)
	default:
		ioCtx.Errorln("error: unknown command:", cmd)
		printUsage(ioCtx)

		return 1
	}
}

// cmdEnv bundles what every command needs; no package-level state.
type cmdEnv struct {
	io      *IO
	cfg     Config
	sources ConfigSources
	log     *slog.Logger
}

// openStore builds the db.Store from the resolved config.
func (e *cmdEnv) openStore() (*db.Store, error) {
	return db.Open(db.Config{
		DBDir:    e.cfg.DBDir,
		AssetDir: e.cfg.AssetDir,
		Logger:   e.log,
	})
}

func resolveDirs(cfg Config, workDir string) Config {
	if !filepath.IsAbs(cfg.DBDir) {
		cfg.DBDir = filepath.Join(workDir, cfg.DBDir)
	}

	if cfg.AssetDir != "" && !filepath.IsAbs(cfg.AssetDir) {
		cfg.AssetDir = filepath.Join(workDir, cfg.AssetDir)
	}

	return cfg
}

// newLogger builds the tint-backed slog logger. Color is gated on the
// actual terminal, not the writer type alone.
func newLogger(errOut io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}

	w := errOut
	noColor := true

	if f, ok := errOut.(*os.File); ok {
		noColor = !isatty.IsTerminal(f.Fd())
		w = colorable.NewColorable(f)
	}

	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:   level,
		NoColor: noColor,
	}))
}

type globalFlags struct {
	configPath string
	dbDir      string
	assetDir   string
	verbose    bool
	remaining  []string
}

func parseGlobalFlags(args []string) (globalFlags, error) {
	var flags globalFlags

	idx := 0

	for idx < len(args) {
		arg := args[idx]

		switch arg {
		case "--config", "-c":
			val, err := flagValue(args, idx, arg)
			if err != nil {
				return globalFlags{}, err
			}

			flags.configPath = val
			idx += 2
		case "--db-dir":
			val, err := flagValue(args, idx, arg)
			if err != nil {
				return globalFlags{}, err
			}

			flags.dbDir = val
			idx += 2
		case "--asset-dir":
			val, err := flagValue(args, idx, arg)
			if err != nil {
				return globalFlags{}, err
			}

			flags.assetDir = val
			idx += 2
		case "--verbose", "-v":
			flags.verbose = true
			idx++
		default:
			flags.remaining = args[idx:]

			return flags, nil
		}
	}

	return flags, nil
}

func flagValue(args []string, idx int, name string) (string, error) {
	if idx+1 >= len(args) {
		return "", &flagError{name}
	}

	return args[idx+1], nil
}

type flagError struct {
	name string
}

func (e *flagError) Error() string {
	return "flag requires an argument: " + e.name
}

func printUsage(ioCtx *IO) {
	ioCtx.Println("Usage: turradb [global flags] <command> [flags]")
	ioCtx.Println("")
	ioCtx.Println("Commands:")
	ioCtx.Println("  check             Validate cross-table consistency")
	ioCtx.Println("  repair            Fix auto-fixable inconsistencies")
	ioCtx.Println("  backup            Snapshot or list snapshots of a table")
	ioCtx.Println("  backfill-author   Fill missing author fields on tweets")
	ioCtx.Println("  print-config      Show the effective configuration")
	ioCtx.Println("")
	ioCtx.Println("Global flags:")
	ioCtx.Println("  -c, --config <file>   Explicit config file")
	ioCtx.Println("      --db-dir <dir>    Table directory (default: db)")
	ioCtx.Println("      --asset-dir <dir> Media asset directory (default: metadata)")
	ioCtx.Println("  -v, --verbose         Debug logging")
}
