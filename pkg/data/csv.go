package data

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pashagolub/prefrank/pkg/rating"
)

// ErrCSVFormat is returned when the input cannot be read as CSV at all
var ErrCSVFormat = errors.New("CSV format error")

// CSVParseResult contains the result of parsing consensus score CSV data
type CSVParseResult struct {
	Entries        []Entry          `json:"entries"`
	ParseErrors    []CSVParseError  `json:"parse_errors,omitempty"`
	SkippedRows    []int            `json:"skipped_rows,omitempty"`
	ClampedRows    []int            `json:"clamped_rows,omitempty"`   // Scores moved onto [0,10]
	DefaultedRows  []int            `json:"defaulted_rows,omitempty"` // No score, consensus default used
	TotalRows      int              `json:"total_rows"`
	SuccessfulRows int              `json:"successful_rows"`
	Metadata       CSVParseMetadata `json:"metadata"`
}

// CSVParseError represents an error encountered while parsing a CSV row
type CSVParseError struct {
	RowNumber int    `json:"row_number"`
	Field     string `json:"field"`
	Value     string `json:"value"`
	Message   string `json:"error"`
}

// Error implements the error interface
func (e CSVParseError) Error() string {
	return fmt.Sprintf("row %d, field '%s' (value: '%s'): %s", e.RowNumber, e.Field, e.Value, e.Message)
}

// CSVParseMetadata contains information about the CSV parsing process
type CSVParseMetadata struct {
	Headers         []string       `json:"headers"`
	DetectedColumns map[string]int `json:"detected_columns"`
	UnmappedColumns []string       `json:"unmapped_columns"`
	ParsedAt        time.Time      `json:"parsed_at"`
}

// LoadEntriesFromCSV parses a consensus score file into freshly seeded entries
func LoadEntriesFromCSV(filename string, config CSVConfig, engine rating.Config) (*CSVParseResult, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot open CSV file %s: %v", ErrCSVFormat, filename, err)
	}
	defer func() { _ = file.Close() }()

	return ParseEntriesCSV(file, config, engine)
}

// ParseEntriesCSV parses consensus scores from reader. Rows with a missing id
// or title, an unparseable score or a duplicate id are reported and skipped.
func ParseEntriesCSV(reader io.Reader, config CSVConfig, engine rating.Config) (*CSVParseResult, error) {
	csvReader := csv.NewReader(reader)
	if config.Delimiter != "" {
		csvReader.Comma = rune(config.Delimiter[0])
	}
	csvReader.LazyQuotes = true
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse CSV: %v", ErrCSVFormat, err)
	}

	result := &CSVParseResult{
		Entries:     []Entry{},
		ParseErrors: []CSVParseError{},
		TotalRows:   len(records),
		Metadata: CSVParseMetadata{
			Headers:         []string{},
			DetectedColumns: map[string]int{},
			UnmappedColumns: []string{},
			ParsedAt:        time.Now().UTC(),
		},
	}
	if len(records) == 0 {
		return result, nil
	}

	var headers []string
	startRow := 0
	if config.HasHeader {
		headers = records[0]
		startRow = 1
	} else {
		// Without a header the columns are id, title, score, media_type
		headers = []string{config.IDColumn, config.TitleColumn, config.ScoreColumn, config.MediaTypeColumn}
	}

	columnMap := make(map[string]int)
	for i, header := range headers {
		if header == "" {
			continue
		}
		columnMap[strings.TrimSpace(strings.ToLower(header))] = i
	}
	result.Metadata.Headers = headers
	result.Metadata.DetectedColumns = columnMap

	idCol := findColumn(config.IDColumn, columnMap)
	titleCol := findColumn(config.TitleColumn, columnMap)
	scoreCol := findColumn(config.ScoreColumn, columnMap)
	mediaCol := findColumn(config.MediaTypeColumn, columnMap)

	if idCol == -1 {
		return nil, fmt.Errorf("%w: required ID column '%s' not found", ErrCSVFormat, config.IDColumn)
	}
	if titleCol == -1 {
		return nil, fmt.Errorf("%w: required title column '%s' not found", ErrCSVFormat, config.TitleColumn)
	}

	used := map[int]bool{idCol: true, titleCol: true, scoreCol: true, mediaCol: true}
	for i, header := range headers {
		if !used[i] && header != "" {
			result.Metadata.UnmappedColumns = append(result.Metadata.UnmappedColumns, header)
		}
	}

	seen := make(map[string]int)
	for rowIdx := startRow; rowIdx < len(records); rowIdx++ {
		row := records[rowIdx]
		rowNum := rowIdx + 1

		if isEmptyRow(row) {
			result.SkippedRows = append(result.SkippedRows, rowNum)
			continue
		}

		get := func(col int) string {
			if col >= 0 && col < len(row) {
				return strings.TrimSpace(row[col])
			}
			return ""
		}

		id, title := get(idCol), get(titleCol)
		if id == "" {
			result.ParseErrors = append(result.ParseErrors, CSVParseError{RowNumber: rowNum, Field: "id", Message: "ID cannot be empty"})
			continue
		}
		if title == "" {
			result.ParseErrors = append(result.ParseErrors, CSVParseError{RowNumber: rowNum, Field: "title", Value: id, Message: "title cannot be empty"})
			continue
		}
		if first, dup := seen[id]; dup {
			result.ParseErrors = append(result.ParseErrors, CSVParseError{
				RowNumber: rowNum, Field: "id", Value: id,
				Message: fmt.Sprintf("duplicate of row %d", first),
			})
			continue
		}

		media, err := ParseMediaType(get(mediaCol))
		if err != nil {
			result.ParseErrors = append(result.ParseErrors, CSVParseError{RowNumber: rowNum, Field: "media_type", Value: get(mediaCol), Message: err.Error()})
			continue
		}

		score := rating.DefaultConsensusScore
		raw := get(scoreCol)
		if raw == "" {
			result.DefaultedRows = append(result.DefaultedRows, rowNum)
		} else {
			parsed, err := strconv.ParseFloat(raw, 64)
			if err != nil || rating.ValidateScore(parsed) != nil {
				result.ParseErrors = append(result.ParseErrors, CSVParseError{RowNumber: rowNum, Field: "score", Value: raw, Message: "score must be a finite number"})
				continue
			}
			if parsed != rating.SanitizeScore(parsed) {
				result.ClampedRows = append(result.ClampedRows, rowNum)
			}
			score = parsed
		}

		entry, err := NewEntry(id, title, media, score, engine)
		if err != nil {
			result.ParseErrors = append(result.ParseErrors, CSVParseError{RowNumber: rowNum, Field: "id", Value: id, Message: err.Error()})
			continue
		}

		seen[id] = rowNum
		result.Entries = append(result.Entries, entry)
		result.SuccessfulRows++
	}

	return result, nil
}

// findColumn locates a column by name in the column mapping, case-insensitive
func findColumn(columnName string, columnMap map[string]int) int {
	if columnName == "" {
		return -1
	}

	normalizedName := strings.TrimSpace(strings.ToLower(columnName))
	if idx, exists := columnMap[normalizedName]; exists {
		return idx
	}

	return -1
}

// isEmptyRow checks if a CSV row is empty or contains only whitespace
func isEmptyRow(row []string) bool {
	for _, field := range row {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}
