package journal

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/pashagolub/prefrank/pkg/data"
	"github.com/pashagolub/prefrank/pkg/rating"
)

// ErrUnsupportedFormat is returned for unknown export formats
var ErrUnsupportedFormat = errors.New("unsupported export format")

// ExportFormat represents the format for exporting rankings
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatJSON ExportFormat = "json"
	FormatYAML ExportFormat = "yaml"
)

// ExportOptions configures export behavior
type ExportOptions struct {
	Format        ExportFormat     `json:"format" yaml:"format"`
	SortOrder     string           `json:"sort_order" yaml:"sort_order"` // asc or desc
	RoundDecimals int              `json:"round_decimals" yaml:"round_decimals"`
	Model         rating.ModelKind `json:"model" yaml:"model"`
}

// OptionsFromConfig maps the export section of the application config
func OptionsFromConfig(cfg data.ExportConfig, model rating.ModelKind) ExportOptions {
	return ExportOptions{
		Format:        ExportFormat(cfg.Format),
		SortOrder:     cfg.SortOrder,
		RoundDecimals: cfg.RoundDecimals,
		Model:         model,
	}
}

// RankedRow is one exported line
type RankedRow struct {
	Rank           int        `json:"rank" yaml:"rank"`
	ID             string     `json:"id" yaml:"id"`
	Title          string     `json:"title" yaml:"title"`
	MediaType      string     `json:"media_type" yaml:"media_type"`
	Rating         float64    `json:"rating" yaml:"rating"`
	ConsensusScore float64    `json:"consensus_score" yaml:"consensus_score"`
	Comparisons    int        `json:"comparisons" yaml:"comparisons"`
	Ties           int        `json:"ties" yaml:"ties"`
	RatedAt        *time.Time `json:"rated_at,omitempty" yaml:"rated_at,omitempty"`
}

// ExportStatistics summarises the exported ratings
type ExportStatistics struct {
	TotalEntries      int     `json:"total_entries" yaml:"total_entries"`
	TotalComparisons  int     `json:"total_comparisons" yaml:"total_comparisons"`
	AverageRating     float64 `json:"average_rating" yaml:"average_rating"`
	RatingRange       float64 `json:"rating_range" yaml:"rating_range"`
	StandardDeviation float64 `json:"standard_deviation" yaml:"standard_deviation"`
}

// RankingExport is the document written for JSON and YAML
type RankingExport struct {
	ExportedAt time.Time         `json:"exported_at" yaml:"exported_at"`
	Model      string            `json:"model,omitempty" yaml:"model,omitempty"`
	Rankings   []RankedRow       `json:"rankings" yaml:"rankings"`
	Statistics *ExportStatistics `json:"statistics,omitempty" yaml:"statistics,omitempty"`
}

var csvHeader = []string{"rank", "id", "title", "media_type", "rating", "consensus_score", "comparisons", "ties"}

// Exporter writes rankings produced by data.Library.Ranking
type Exporter struct {
	now func() time.Time
}

// NewExporter creates a new exporter instance
func NewExporter() *Exporter {
	return &Exporter{now: time.Now}
}

// Export writes ranking to writer in the requested format
func (e *Exporter) Export(writer io.Writer, ranking []data.RankedEntry, options ExportOptions) error {
	switch options.Format {
	case FormatCSV:
		return e.ExportCSV(writer, ranking, options)
	case FormatJSON:
		return e.ExportJSON(writer, ranking, options)
	case FormatYAML:
		return e.ExportYAML(writer, ranking, options)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, options.Format)
	}
}

// ExportToFile writes through a temporary file and renames it into place
func (e *Exporter) ExportToFile(filePath string, ranking []data.RankedEntry, options ExportOptions) (err error) {
	if dir := filepath.Dir(filePath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	tempFile := filePath + ".tmp"
	file, err := os.Create(tempFile)
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer func() {
		if err != nil {
			file.Close()
			os.Remove(tempFile)
		}
	}()

	if err = e.Export(file, ranking, options); err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	if err = file.Close(); err != nil {
		return fmt.Errorf("failed to close temporary file: %w", err)
	}
	if err = os.Rename(tempFile, filePath); err != nil {
		return fmt.Errorf("failed to replace target file: %w", err)
	}
	return nil
}

// ExportCSV writes one row per entry under a fixed header
func (e *Exporter) ExportCSV(writer io.Writer, ranking []data.RankedEntry, options ExportOptions) error {
	csvWriter := csv.NewWriter(writer)

	if err := csvWriter.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, row := range e.buildRows(ranking, options) {
		record := []string{
			strconv.Itoa(row.Rank),
			row.ID,
			row.Title,
			row.MediaType,
			formatFloat(row.Rating, options.RoundDecimals),
			formatFloat(row.ConsensusScore, options.RoundDecimals),
			strconv.Itoa(row.Comparisons),
			strconv.Itoa(row.Ties),
		}
		if err := csvWriter.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record for %s: %w", row.ID, err)
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

// ExportJSON writes an indented RankingExport document
func (e *Exporter) ExportJSON(writer io.Writer, ranking []data.RankedEntry, options ExportOptions) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(e.buildExport(ranking, options)); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// ExportYAML writes the same document as ExportJSON in YAML
func (e *Exporter) ExportYAML(writer io.Writer, ranking []data.RankedEntry, options ExportOptions) error {
	encoder := yaml.NewEncoder(writer)
	encoder.SetIndent(2)
	if err := encoder.Encode(e.buildExport(ranking, options)); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	return encoder.Close()
}

func (e *Exporter) buildExport(ranking []data.RankedEntry, options ExportOptions) *RankingExport {
	rows := e.buildRows(ranking, options)
	return &RankingExport{
		ExportedAt: e.now().UTC(),
		Model:      string(options.Model),
		Rankings:   rows,
		Statistics: calculateStatistics(rows, options.RoundDecimals),
	}
}

// buildRows keeps the ranks as given and only flips the order for asc
func (e *Exporter) buildRows(ranking []data.RankedEntry, options ExportOptions) []RankedRow {
	rows := make([]RankedRow, 0, len(ranking))
	for _, r := range ranking {
		rows = append(rows, RankedRow{
			Rank:           r.Rank,
			ID:             r.ID(),
			Title:          r.Title,
			MediaType:      string(r.MediaType),
			Rating:         round(r.DisplayRating, options.RoundDecimals),
			ConsensusScore: r.Item.ConsensusScore,
			Comparisons:    r.Item.ComparisonCount,
			Ties:           r.Item.TieCount,
			RatedAt:        r.RatedAt,
		})
	}
	if options.SortOrder == "asc" {
		slices.Reverse(rows)
	}
	return rows
}

func calculateStatistics(rows []RankedRow, decimals int) *ExportStatistics {
	if len(rows) == 0 {
		return nil
	}

	var sum, lo, hi float64
	comparisons := 0
	for i, row := range rows {
		sum += row.Rating
		comparisons += row.Comparisons + row.Ties
		if i == 0 || row.Rating < lo {
			lo = row.Rating
		}
		if i == 0 || row.Rating > hi {
			hi = row.Rating
		}
	}
	average := sum / float64(len(rows))

	var variance float64
	for _, row := range rows {
		diff := row.Rating - average
		variance += diff * diff
	}
	variance /= float64(len(rows))

	return &ExportStatistics{
		TotalEntries: len(rows),
		// Each comparison touches two entries
		TotalComparisons:  comparisons / 2,
		AverageRating:     round(average, decimals),
		RatingRange:       round(hi-lo, decimals),
		StandardDeviation: round(math.Sqrt(variance), decimals),
	}
}

func round(f float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	return math.Round(f*scale) / scale
}

func formatFloat(f float64, decimals int) string {
	return strconv.FormatFloat(round(f, decimals), 'f', decimals, 64)
}
