// Package main provides the command-line interface for prefrank. It imports
// consensus scores, runs pairwise rating sessions in the terminal, and lists,
// exports, migrates and verifies the rated library.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/jessevdk/go-flags"

	"github.com/pashagolub/prefrank/pkg/data"
	"github.com/pashagolub/prefrank/pkg/logging"
)

// Version information - set by build process
var (
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// Streams used by the commands, replaced in tests
var (
	stdin  io.Reader = os.Stdin
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

// GlobalOptions defines global CLI flags
type GlobalOptions struct {
	Config    string `long:"config" short:"c" description:"Configuration file path" default:"prefrank.yaml"`
	Library   string `long:"library" short:"l" description:"Library location, overrides storage.path"`
	Backend   string `long:"backend" description:"Library backend (file/badger), overrides storage.backend"`
	Model     string `long:"model" description:"Rating model (bradley_terry/elo), overrides engine.model"`
	Verbose   bool   `long:"verbose" short:"v" description:"Enable debug logging"`
	LogFormat string `long:"log-format" description:"Log format (console/json)"`
	Version   bool   `long:"version" description:"Show version information"`
}

// ErrorCode represents CLI exit codes
type ErrorCode int

const (
	ExitSuccess ErrorCode = iota
	ExitFileError
	ExitConfigError
	ExitSessionError
	ExitExportError
	ExitValidationError
	ExitStorageError
)

// CLIError represents a CLI error with exit code
type CLIError struct {
	Code        ErrorCode
	Message     string
	Details     map[string]any
	Suggestions []string
}

func (e *CLIError) Error() string {
	return e.Message
}

// formatErrorJSON formats error as JSON for structured output
func formatErrorJSON(err *CLIError) string {
	body := map[string]any{
		"code":    err.Code,
		"message": err.Message,
	}
	if err.Details != nil {
		body["details"] = err.Details
	}
	if err.Suggestions != nil {
		body["suggestions"] = err.Suggestions
	}

	jsonBytes, _ := json.MarshalIndent(map[string]any{"error": body}, "", "  ")
	return string(jsonBytes)
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		var cliErr *CLIError
		if errors.As(err, &cliErr) {
			fmt.Fprintln(stderr, formatErrorJSON(cliErr))
			os.Exit(int(cliErr.Code))
		}
		logging.Error().Err(err).Msg("prefrank failed")
		os.Exit(1)
	}
}

func newParser() (*flags.Parser, *GlobalOptions) {
	global := &GlobalOptions{}
	parser := flags.NewParser(global, flags.HelpFlag|flags.PassDoubleDash)
	parser.Usage = "[OPTIONS] COMMAND [COMMAND-OPTIONS]"
	parser.CommandHandler = func(command flags.Commander, args []string) error {
		if global.Version {
			return showVersion()
		}
		return command.Execute(args)
	}

	parser.AddCommand("import", "Import consensus scores from CSV", "", &ImportCommand{global: global})
	parser.AddCommand("rate", "Rate a title by comparing it with rated titles", "", &RateCommand{global: global})
	parser.AddCommand("list", "List the ranked library", "", &ListCommand{global: global})
	parser.AddCommand("export", "Export the ranking", "", &ExportCommand{global: global})
	parser.AddCommand("migrate", "Convert legacy Elo-only entries to Bradley-Terry state", "", &MigrateCommand{global: global})
	parser.AddCommand("verify", "Verify the outcome journal", "", &VerifyCommand{global: global})
	parser.AddCommand("version", "Show version information", "", &VersionCommand{})
	return parser, global
}

func run(args []string) error {
	parser, global := newParser()

	_, err := parser.ParseArgs(args)
	if err == nil {
		return nil
	}

	var flagsErr *flags.Error
	if !errors.As(err, &flagsErr) {
		return err
	}
	switch flagsErr.Type {
	case flags.ErrHelp:
		fmt.Fprintln(stdout, flagsErr.Message)
		return nil
	case flags.ErrCommandRequired:
		if global.Version {
			return showVersion()
		}
		parser.WriteHelp(stderr)
		return &CLIError{
			Code:    ExitConfigError,
			Message: "No command specified",
			Suggestions: []string{
				"Use 'prefrank import --input scores.csv' to build a library",
				"Use 'prefrank --help' to see all available commands",
			},
		}
	default:
		return &CLIError{
			Code:    ExitConfigError,
			Message: fmt.Sprintf("Invalid arguments: %v", err),
		}
	}
}

// VersionCommand handles 'prefrank version'
type VersionCommand struct{}

// Execute prints build information
func (c *VersionCommand) Execute(_ []string) error {
	return showVersion()
}

func showVersion() error {
	fmt.Fprintf(stdout, "prefrank %s (commit %s, built %s)\n", Version, GitCommit, BuildDate)
	return nil
}

// loadConfiguration reads the config file and environment, applies the
// global flags on top and initialises logging.
func loadConfiguration(global *GlobalOptions) (*data.Config, error) {
	config, err := data.LoadWithEnvironment(global.Config)
	if err != nil {
		return nil, &CLIError{
			Code:    ExitConfigError,
			Message: fmt.Sprintf("Failed to load configuration: %v", err),
			Details: map[string]any{"config": global.Config},
			Suggestions: []string{
				"Check configuration file syntax",
				"Use --config flag to specify a different config file",
			},
		}
	}

	if global.Library != "" {
		config.Storage.Path = global.Library
	}
	if global.Backend != "" {
		config.Storage.Backend = global.Backend
	}
	if global.Model != "" {
		config.Engine.Model = global.Model
	}
	if global.Verbose {
		config.Logging.Level = "debug"
	}
	if global.LogFormat != "" {
		config.Logging.Format = global.LogFormat
	}

	if err := config.Validate(); err != nil {
		return nil, &CLIError{
			Code:    ExitConfigError,
			Message: fmt.Sprintf("Invalid configuration: %v", err),
		}
	}

	logging.Init(logging.Config{
		Level:  config.Logging.Level,
		Format: config.Logging.Format,
		Output: stderr,
	})
	return config, nil
}

func openStorage(config *data.Config) (data.Storage, error) {
	storage, err := data.NewStorage(config.Storage)
	if err != nil {
		return nil, &CLIError{
			Code:    ExitStorageError,
			Message: fmt.Sprintf("Failed to open library: %v", err),
			Details: map[string]any{
				"backend": config.Storage.Backend,
				"path":    config.Storage.Path,
			},
		}
	}
	return storage, nil
}

// storageError classifies library failures for the exit code
func storageError(action string, err error) error {
	cliErr := &CLIError{
		Code:    ExitStorageError,
		Message: fmt.Sprintf("Failed to %s: %v", action, err),
	}
	if errors.Is(err, data.ErrVersionConflict) {
		cliErr.Suggestions = []string{"Another process changed the library, run the command again"}
	}
	return cliErr
}
