package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/caffeineduck/mnemobridge/host"
	"github.com/caffeineduck/mnemobridge/internal/logging"
	"github.com/caffeineduck/mnemobridge/language/javascript"
	"github.com/caffeineduck/mnemobridge/language/python"
	"github.com/caffeineduck/mnemobridge/worker"
)

const (
	defaultPackage = "org.mnemosyne"
	defaultDataDir = "/sdcard/Mnemosyne/"
	defaultDB      = "default.db"
)

var rootCmd = &cobra.Command{
	Use:   "mnemosyne",
	Short: "Mnemosyne review screen on an embedded interpreter",
	Long: `mnemosyne - Run the Mnemosyne review application in an embedded runtime.

The application is loaded from the install directory (--basedir, by default
/data/data/<package>) and opens its database under --data-dir. Review cards
with space to show the answer and 0-5 to grade.`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         runReview, // Default to review command behavior
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	addRuntimeFlags(rootCmd.PersistentFlags())
}

// addRuntimeFlags registers the flags every command that starts the runtime
// understands.
func addRuntimeFlags(fs *pflag.FlagSet) {
	fs.String("basedir", "", "Install directory (default: /data/data/<package>)")
	fs.String("package", defaultPackage, "Application package name")
	fs.String("data-dir", defaultDataDir, "Directory holding the review database")
	fs.String("db", defaultDB, "Database file name inside --data-dir")
	fs.StringP("lang", "l", host.DefaultLanguage, "Interpreter: "+strings.Join(host.Languages(), ", "))
	fs.String("entry", "", "Entry script (default: <basedir>/files/"+host.DefaultEntryScript+")")
	fs.Bool("no-cache", false, "Disable compilation cache")
	fs.String("memory", "256mb", "Memory limit: 1mb, 16mb, 64mb, 256mb, 1gb")
	fs.String("log-file", "", "Write logs to this file")
	fs.String("log-level", "info", "Log level: debug, info, warn, error")
}

// basedir resolves --basedir, falling back to the package directory.
func basedir(fs *pflag.FlagSet) string {
	dir, _ := fs.GetString("basedir")
	if dir != "" {
		return dir
	}
	pkg, _ := fs.GetString("package")
	return filepath.Join("/data/data", pkg)
}

func pathsFromFlags(fs *pflag.FlagSet) host.PathConfig {
	paths := host.DefaultPaths(basedir(fs))
	if entry, _ := fs.GetString("entry"); entry != "" {
		paths.EntryScript = entry
	}
	return paths
}

// openLog returns the logger selected by --log-file and --log-level. Without
// a log file, logs go to fallback, which may be nil to discard them.
func openLog(fs *pflag.FlagSet, fallback io.Writer) (zerolog.Logger, func(), error) {
	level, _ := fs.GetString("log-level")
	path, _ := fs.GetString("log-file")
	if path == "" {
		if fallback == nil {
			return zerolog.Nop(), func() {}, nil
		}
		return logging.Console(fallback, level), func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("open log file: %w", err)
	}
	return logging.New(f, level), func() { f.Close() }, nil
}

// workerConfig builds the worker configuration from the runtime flags.
func workerConfig(fs *pflag.FlagSet, log zerolog.Logger) (worker.Config, error) {
	flagLang, _ := fs.GetString("lang")
	lang := languageName(flagLang)
	dataDir, _ := fs.GetString("data-dir")
	db, _ := fs.GetString("db")
	noCache, _ := fs.GetBool("no-cache")
	memory, _ := fs.GetString("memory")

	if _, err := host.LookupLanguage(lang); err != nil {
		return worker.Config{}, err
	}
	pages, err := parseMemoryLimit(memory)
	if err != nil {
		return worker.Config{}, err
	}

	var open []host.OpenOption
	if !noCache {
		open = append(open, host.WithCacheDir(defaultCacheDir()))
	}
	if pages > 0 {
		open = append(open, host.WithMemoryLimit(pages))
	}

	return worker.Config{
		Start: host.StartConfig{
			Paths:      pathsFromFlags(fs),
			DataDir:    dataDir,
			DBFilename: db,
			Language:   lang,
			Open:       open,
		},
		Logger: log,
	}, nil
}

// languageName resolves the short aliases accepted by --lang.
func languageName(s string) string {
	switch strings.ToLower(s) {
	case "js":
		return javascript.Name
	case "py":
		return python.Name
	default:
		return s
	}
}

func parseMemoryLimit(s string) (uint32, error) {
	switch strings.ToLower(s) {
	case "":
		return 0, nil
	case "1mb":
		return host.MemoryLimit1MB, nil
	case "16mb":
		return host.MemoryLimit16MB, nil
	case "64mb":
		return host.MemoryLimit64MB, nil
	case "256mb":
		return host.MemoryLimit256MB, nil
	case "1gb":
		return host.MemoryLimit1GB, nil
	default:
		return 0, fmt.Errorf("invalid memory limit %q (expected 1mb, 16mb, 64mb, 256mb or 1gb)", s)
	}
}

func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "mnemosyne")
	}
	return filepath.Join(os.TempDir(), "mnemosyne-cache")
}
