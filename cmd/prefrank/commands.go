package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/pashagolub/prefrank/pkg/data"
	"github.com/pashagolub/prefrank/pkg/journal"
	"github.com/pashagolub/prefrank/pkg/logging"
	"github.com/pashagolub/prefrank/pkg/metrics"
	"github.com/pashagolub/prefrank/pkg/rating"
	"github.com/pashagolub/prefrank/pkg/tui"
)

// ImportCommand handles 'prefrank import'
type ImportCommand struct {
	Input string `long:"input" short:"i" description:"Path to CSV file with consensus scores" required:"true"`
	Rated bool   `long:"rated" description:"Mark imported titles as already rated so they can serve as opponents"`

	global *GlobalOptions
}

// Execute parses the CSV file and adds the titles the library does not have yet
func (c *ImportCommand) Execute(_ []string) error {
	config, err := loadConfiguration(c.global)
	if err != nil {
		return err
	}

	if _, err := os.Stat(c.Input); errors.Is(err, os.ErrNotExist) {
		return &CLIError{
			Code:    ExitFileError,
			Message: fmt.Sprintf("Input file not found: %s", c.Input),
			Details: map[string]any{"file": c.Input},
			Suggestions: []string{
				"Check file path and name",
				"Use absolute path if needed",
			},
		}
	}

	parsed, err := data.LoadEntriesFromCSV(c.Input, config.CSV, config.Engine.Rating())
	if err != nil {
		return &CLIError{
			Code:    ExitFileError,
			Message: fmt.Sprintf("Failed to load CSV file: %v", err),
			Details: map[string]any{"file": c.Input},
			Suggestions: []string{
				"Check for missing id or title columns",
				"Adjust the csv section of the configuration file",
			},
		}
	}
	for _, parseErr := range parsed.ParseErrors {
		logging.Warn().Int("row", parseErr.RowNumber).Str("field", parseErr.Field).Msg(parseErr.Message)
	}

	storage, err := openStorage(config)
	if err != nil {
		return err
	}
	defer storage.Close()

	summary, err := data.ImportEntries(context.Background(), storage, parsed.Entries, c.Rated)
	if err != nil {
		return storageError("import entries", err)
	}

	fmt.Fprintf(stdout, "Imported %d titles, %d already present, %d rows rejected\n",
		len(summary.Added), len(summary.Unchanged), len(parsed.ParseErrors))
	return nil
}

// RateCommand handles 'prefrank rate'
type RateCommand struct {
	ID        string `long:"id" description:"Title to rate" required:"true"`
	Sentiment string `long:"sentiment" short:"s" description:"First impression (loved/liked/average/disliked)" required:"true"`
	Batch     bool   `long:"batch" description:"Read answers line by line from stdin instead of the TUI"`

	global *GlobalOptions
}

// Execute runs one comparison session for the title
func (c *RateCommand) Execute(_ []string) error {
	config, err := loadConfiguration(c.global)
	if err != nil {
		return err
	}

	sentiment, err := rating.ParseBucket(c.Sentiment)
	if err != nil {
		return &CLIError{
			Code:    ExitValidationError,
			Message: err.Error(),
			Suggestions: []string{
				"Use one of: loved, liked, average, disliked",
			},
		}
	}

	storage, err := openStorage(config)
	if err != nil {
		return err
	}
	defer storage.Close()

	meter := metrics.NewManager()
	observers := []data.Observer{meter}
	if config.Journal.Enabled {
		j, err := journal.Open(config.Journal.Directory)
		if err != nil {
			return &CLIError{
				Code:    ExitFileError,
				Message: fmt.Sprintf("Failed to open journal: %v", err),
				Suggestions: []string{
					"Run 'prefrank verify' to inspect the journal",
				},
			}
		}
		defer j.Close()
		observers = append(observers, j)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var prompter data.Prompter
	finish := func() {}
	if c.Batch {
		prompter = tui.NewLinePrompter(stdin, stdout)
	} else {
		app, stopTUI := startTUI(config)
		defer stopTUI()
		prompter, finish = app, stopTUI
	}

	runner, err := data.NewRunner(storage, config.Engine.Rating(), prompter, data.WithObservers(observers...))
	if err != nil {
		return &CLIError{Code: ExitConfigError, Message: err.Error()}
	}

	result, err := runner.Rate(ctx, c.ID, sentiment)
	finish()
	if textErr := meter.WriteTextfile(config.Metrics.TextfilePath); textErr != nil {
		logging.Warn().Err(textErr).Msg("metrics not written")
	}
	if err != nil {
		return rateError(c.ID, err)
	}

	model, _ := config.Engine.Rating().NewModel(config.Engine.Rating().Model)
	fmt.Fprintf(stdout, "%s: %.2f after %d comparisons (%s)\n",
		result.Target.Title,
		rating.DisplayRating(result.Target.Item, model),
		len(result.Session.History),
		result.Session.Reason)
	return nil
}

// newTerminalApp builds the interactive prompter, replaced in tests
var newTerminalApp = tui.NewApp

// startTUI runs the terminal UI in the background. Log lines are held back
// while it owns the screen; the returned func stops the UI, waits for the
// terminal to be restored and then writes them to stderr.
func startTUI(config *data.Config) (*tui.App, func()) {
	var held bytes.Buffer
	logging.Init(logging.Config{
		Level:  config.Logging.Level,
		Format: config.Logging.Format,
		Output: zerolog.SyncWriter(&held),
	})

	app := newTerminalApp()
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := app.Run(); err != nil {
			logging.Error().Err(err).Msg("terminal UI failed")
		}
		// Anything still waiting for an answer is aborted
		app.Stop()
	}()

	var once sync.Once
	return app, func() {
		once.Do(func() {
			// Stop is retried until Run has actually returned
			for running := true; running; {
				app.Stop()
				select {
				case <-done:
					running = false
				case <-time.After(50 * time.Millisecond):
				}
			}
			logging.Init(logging.Config{
				Level:  config.Logging.Level,
				Format: config.Logging.Format,
				Output: stderr,
			})
			_, _ = io.Copy(stderr, &held)
		})
	}
}

func rateError(id string, err error) error {
	switch {
	case errors.Is(err, data.ErrEntryNotFound):
		return &CLIError{
			Code:        ExitSessionError,
			Message:     fmt.Sprintf("Title %s is not in the library", id),
			Suggestions: []string{"Import it first with 'prefrank import'"},
		}
	case errors.Is(err, data.ErrAlreadyRated):
		return &CLIError{
			Code:    ExitSessionError,
			Message: fmt.Sprintf("Title %s is already rated", id),
		}
	case errors.Is(err, context.Canceled):
		return &CLIError{
			Code:    ExitSessionError,
			Message: "Session interrupted, outcomes so far are kept",
		}
	case errors.Is(err, data.ErrVersionConflict):
		return storageError("record outcome", err)
	}
	return &CLIError{Code: ExitSessionError, Message: fmt.Sprintf("Session failed: %v", err)}
}

// ListCommand handles 'prefrank list'
type ListCommand struct {
	Media  string `long:"media" description:"Only list one media type (movie/tv)"`
	All    bool   `long:"all" description:"Include titles that are not rated yet"`
	Format string `long:"format" description:"Output format (table/json)" default:"table"`
	Limit  int    `long:"limit" description:"Show at most this many titles"`

	global *GlobalOptions
}

// Execute prints the ranking
func (c *ListCommand) Execute(_ []string) error {
	config, err := loadConfiguration(c.global)
	if err != nil {
		return err
	}

	ranking, err := loadRanking(config, c.Media, c.All)
	if err != nil {
		return err
	}
	if c.Limit > 0 && len(ranking) > c.Limit {
		ranking = ranking[:c.Limit]
	}

	switch c.Format {
	case "json":
		return outputRankingJSON(ranking)
	case "table":
		return outputRankingTable(ranking)
	default:
		return &CLIError{
			Code:    ExitValidationError,
			Message: fmt.Sprintf("Unknown list format: %s", c.Format),
		}
	}
}

func loadRanking(config *data.Config, media string, includeUnrated bool) ([]data.RankedEntry, error) {
	var mediaType data.MediaType
	if media != "" {
		var err error
		if mediaType, err = data.ParseMediaType(media); err != nil {
			return nil, &CLIError{Code: ExitValidationError, Message: err.Error()}
		}
	}

	engine := config.Engine.Rating()
	model, err := engine.NewModel(engine.Model)
	if err != nil {
		return nil, &CLIError{Code: ExitConfigError, Message: err.Error()}
	}

	storage, err := openStorage(config)
	if err != nil {
		return nil, err
	}
	defer storage.Close()

	lib, err := storage.Load(context.Background())
	if err != nil {
		return nil, storageError("load library", err)
	}
	return lib.Ranking(model, mediaType, includeUnrated), nil
}

func outputRankingTable(ranking []data.RankedEntry) error {
	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tRATING\tTITLE\tTYPE\tCOMPARISONS\tRATED")
	fmt.Fprintln(w, strings.Repeat("-", 4)+"\t"+strings.Repeat("-", 6)+"\t"+strings.Repeat("-", 5)+"\t"+
		strings.Repeat("-", 4)+"\t"+strings.Repeat("-", 11)+"\t"+strings.Repeat("-", 5))
	for _, r := range ranking {
		rated := "no"
		if r.Rated() {
			rated = r.RatedAt.Format("2006-01-02")
		}
		fmt.Fprintf(w, "%d\t%.2f\t%s\t%s\t%d\t%s\n",
			r.Rank, r.DisplayRating, r.Title, r.MediaType,
			r.Item.ComparisonCount+r.Item.TieCount, rated)
	}
	return w.Flush()
}

func outputRankingJSON(ranking []data.RankedEntry) error {
	type row struct {
		Rank      int     `json:"rank"`
		ID        string  `json:"id"`
		Title     string  `json:"title"`
		MediaType string  `json:"media_type"`
		Rating    float64 `json:"rating"`
		Rated     bool    `json:"rated"`
	}
	rows := make([]row, 0, len(ranking))
	for _, r := range ranking {
		rows = append(rows, row{r.Rank, r.ID(), r.Title, string(r.MediaType), r.DisplayRating, r.Rated()})
	}

	encoder := json.NewEncoder(stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(rows)
}

// ExportCommand handles 'prefrank export'
type ExportCommand struct {
	Output    string `long:"output" short:"o" description:"Output file path, stdout when empty"`
	Format    string `long:"format" description:"Export format (csv/json/yaml), overrides export.format"`
	SortOrder string `long:"sort-order" description:"Sort direction (asc/desc), overrides export.sort_order"`
	Media     string `long:"media" description:"Only export one media type (movie/tv)"`
	All       bool   `long:"all" description:"Include titles that are not rated yet"`

	global *GlobalOptions
}

// Execute writes the ranking with the journal exporter
func (c *ExportCommand) Execute(_ []string) error {
	config, err := loadConfiguration(c.global)
	if err != nil {
		return err
	}
	if c.Format != "" {
		config.Export.Format = c.Format
	}
	if c.SortOrder != "" {
		config.Export.SortOrder = c.SortOrder
	}
	if err := config.Export.Validate(); err != nil {
		return &CLIError{Code: ExitValidationError, Message: err.Error()}
	}

	ranking, err := loadRanking(config, c.Media, c.All)
	if err != nil {
		return err
	}

	exporter := journal.NewExporter()
	options := journal.OptionsFromConfig(config.Export, rating.ModelKind(config.Engine.Model))
	if c.Output == "" {
		err = exporter.Export(stdout, ranking, options)
	} else {
		err = exporter.ExportToFile(c.Output, ranking, options)
	}
	if err != nil {
		return &CLIError{
			Code:    ExitExportError,
			Message: fmt.Sprintf("Failed to export ranking: %v", err),
			Details: map[string]any{"output": c.Output},
		}
	}

	if c.Output != "" {
		fmt.Fprintf(stdout, "Exported %d titles to %s\n", len(ranking), c.Output)
	}
	return nil
}

// MigrateCommand handles 'prefrank migrate'
type MigrateCommand struct {
	global *GlobalOptions
}

// Execute converts Elo-only entries in place
func (c *MigrateCommand) Execute(_ []string) error {
	config, err := loadConfiguration(c.global)
	if err != nil {
		return err
	}

	storage, err := openStorage(config)
	if err != nil {
		return err
	}
	defer storage.Close()

	migrated, err := data.MigrateLibrary(context.Background(), storage, config.Engine.Rating())
	if err != nil {
		return storageError("migrate library", err)
	}

	fmt.Fprintf(stdout, "Migrated %d titles\n", len(migrated))
	for _, id := range migrated {
		fmt.Fprintf(stdout, "  - %s\n", id)
	}
	return nil
}

// VerifyCommand handles 'prefrank verify'
type VerifyCommand struct {
	Stats bool `long:"stats" description:"Print journal statistics as JSON"`

	global *GlobalOptions
}

// Execute checks the journal hash chain
func (c *VerifyCommand) Execute(_ []string) error {
	config, err := loadConfiguration(c.global)
	if err != nil {
		return err
	}

	j, err := journal.Open(config.Journal.Directory)
	if err != nil {
		return &CLIError{
			Code:    ExitValidationError,
			Message: fmt.Sprintf("Journal verification failed: %v", err),
			Details: map[string]any{"directory": config.Journal.Directory},
		}
	}
	defer j.Close()

	fmt.Fprintf(stdout, "Journal OK: %d entries in %s\n", j.Sequence(), j.Path())
	if !c.Stats {
		return nil
	}

	stats, err := j.Statistics()
	if err != nil {
		return &CLIError{Code: ExitValidationError, Message: err.Error()}
	}
	encoder := json.NewEncoder(stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(stats)
}
