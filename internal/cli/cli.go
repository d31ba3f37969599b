package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/vk/texturesets/internal/app"
	"github.com/vk/texturesets/internal/cache/remote"
	"github.com/vk/texturesets/internal/settings"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func usageError(format string, args ...any) *ExitError {
	return &ExitError{Code: 2, Message: fmt.Sprintf(format, args...)}
}

// Parse processes command-line arguments. It returns a populated app.Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
// Values from the settings file apply to every flag not given explicitly.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("texturesets", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
texturesets - compiles texture set definitions into packed, GPU-ready textures.

Usage:
  texturesets [options] PATH...
  texturesets [options] -serve-cache ADDR

Arguments:
  PATH
    A .hcl file or a directory searched recursively for .hcl files.

Options:
`)
		flagSet.PrintDefaults()
	}

	configFlag := flagSet.String("config", settings.FileName, "Path to the YAML settings file. A missing file is ignored.")
	printSettingsFlag := flagSet.Bool("print-settings", false, "Print a commented settings file with the defaults and exit.")
	setsFlag := flagSet.String("set", "", "Comma separated texture set names to compile. Empty compiles all.")
	outFlag := flagSet.String("out", "", "Directory receiving compiled textures and manifests.")
	dryRunFlag := flagSet.Bool("dry-run", false, "Report which texture sets need compiling without compiling them.")
	cacheDirFlag := flagSet.String("cache-dir", "", "Directory of the persistent cache. Empty disables it.")
	memoryFlag := flagSet.Int("memory-entries", 0, "Entries kept in the in-process cache. 0 is unbounded.")
	remoteFlag := flagSet.String("remote-cache", "", "URL of a shared cache server, e.g. ws://cache.local:7420.")
	namespaceFlag := flagSet.String("remote-namespace", "", "socket.io namespace of the shared cache server.")
	insecureFlag := flagSet.Bool("remote-insecure", false, "Skip TLS certificate verification for the shared cache.")
	serveFlag := flagSet.String("serve-cache", "", "Serve the local cache tiers on ADDR instead of compiling.")
	healthPortFlag := flagSet.Int("healthcheck-port", 0, "Port for the HTTP health check server. 0 is disabled.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	workersFlag := flagSet.Int("workers", 0, "Concurrent module executions per compile. 0 uses every CPU.")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, usageError("%s", err.Error())
	}
	slog.Debug("Arguments parsed successfully.")

	if *printSettingsFlag {
		fmt.Fprint(output, settings.Template())
		return nil, true, nil
	}

	paths := flagSet.Args()
	if len(paths) == 0 && *serveFlag == "" {
		slog.Debug("No definition path provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	s, err := settings.Load(*configFlag)
	if err != nil {
		return nil, false, usageError("%s", err.Error())
	}

	explicit := make(map[string]bool)
	flagSet.Visit(func(f *flag.Flag) { explicit[f.Name] = true })
	pick := func(name string, flagValue, settingValue string) string {
		if explicit[name] {
			return flagValue
		}
		return settingValue
	}
	pickInt := func(name string, flagValue, settingValue int) int {
		if explicit[name] {
			return flagValue
		}
		return settingValue
	}

	logFormat := strings.ToLower(pick("log-format", *logFormatFlag, s.Log.Format))
	if logFormat != "text" && logFormat != "json" {
		return nil, false, usageError("invalid log-format: must be 'text' or 'json'")
	}

	logLevel := strings.ToLower(pick("log-level", *logLevelFlag, s.Log.Level))
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, usageError("invalid log-level: must be 'debug', 'info', 'warn', or 'error'")
	}

	var sets []string
	for _, name := range strings.Split(*setsFlag, ",") {
		if name = strings.TrimSpace(name); name != "" {
			sets = append(sets, name)
		}
	}

	config, err := app.NewConfig(app.Config{
		Paths:         paths,
		Sets:          sets,
		OutputDir:     pick("out", *outFlag, s.Output),
		DryRun:        *dryRunFlag,
		CacheDir:      pick("cache-dir", *cacheDirFlag, s.Cache.Dir),
		MemoryEntries: pickInt("memory-entries", *memoryFlag, s.Cache.MemoryEntries),
		Remote: remote.DialOptions{
			URL:                pick("remote-cache", *remoteFlag, s.Cache.Remote.URL),
			Namespace:          pick("remote-namespace", *namespaceFlag, s.Cache.Remote.Namespace),
			InsecureSkipVerify: *insecureFlag || s.Cache.Remote.InsecureSkipVerify,
			ConnectTimeout:     s.Cache.Remote.ConnectTimeout,
		},
		RemoteTimeout:   s.Cache.Remote.RequestTimeout,
		ServeCache:      *serveFlag,
		LogFormat:       logFormat,
		LogLevel:        logLevel,
		HealthcheckPort: pickInt("healthcheck-port", *healthPortFlag, s.HealthcheckPort),
		WorkerCount:     pickInt("workers", *workersFlag, s.Workers),
	})
	if err != nil {
		return nil, false, usageError("%s", err.Error())
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}
