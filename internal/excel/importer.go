package excel

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"github.com/example/studylog/internal/review"
	"github.com/example/studylog/pkg/models"
)

// ErrUnsupportedFormat is returned for files that are neither Excel nor CSV
var ErrUnsupportedFormat = errors.New("excel: unsupported file format")

// Date layouts accepted in the studied-at column
var dateLayouts = []string{"2006-01-02", "2006/01/02", "02.01.2006", "2006-01-02 15:04", "01-02-06"}

// Creator stores imported study records
type Creator interface {
	Create(ctx context.Context, userID int64, in review.Input) (*models.StudyRecord, error)
}

// ImportConfig defines the import configuration
type ImportConfig struct {
	TitleColumn     string // Column with the title
	CategoryColumn  string // Column with the category
	StudiedAtColumn string // Column with the study date
	ContentColumn   string // Column with the content
	SheetName       string // Sheet to import, the first sheet when empty
	StartRow        int    // The row to start importing from (1-based index)
	Location        *time.Location
}

// DefaultImportConfig returns the default import configuration
func DefaultImportConfig() ImportConfig {
	return ImportConfig{
		TitleColumn:     "A",
		CategoryColumn:  "B",
		StudiedAtColumn: "C",
		ContentColumn:   "D",
		StartRow:        2, // skip header
		Location:        time.UTC,
	}
}

// ImportResult holds the result of an import operation
type ImportResult struct {
	TotalProcessed int
	Created        int
	Skipped        int
	Errors         []string
}

// Importer reads study records from Excel and CSV files
type Importer struct {
	creator Creator
	config  ImportConfig
	log     zerolog.Logger
}

// NewImporter creates an importer that stores rows through creator
func NewImporter(creator Creator, config ImportConfig, log zerolog.Logger) *Importer {
	if config.StartRow < 1 {
		config.StartRow = 1
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	return &Importer{
		creator: creator,
		config:  config,
		log:     log.With().Str("component", "importer").Logger(),
	}
}

// ImportFile imports the records of a file on disk for the given user
func (im *Importer) ImportFile(ctx context.Context, userID int64, path string) (*ImportResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return im.ImportReader(ctx, userID, filepath.Base(path), file)
}

// ImportReader imports records from r. The name decides the format.
func (im *Importer) ImportReader(ctx context.Context, userID int64, name string, r io.Reader) (*ImportResult, error) {
	var (
		rows [][]string
		err  error
	)
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".csv":
		rows, err = readCSV(r)
	case ".xlsx", ".xlsm":
		rows, err = im.readExcel(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, err
	}

	result := &ImportResult{Errors: make([]string, 0)}
	for i, row := range rows {
		if i < im.config.StartRow-1 {
			continue
		}
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		rowNum := i + 1

		if isBlank(row) {
			result.Skipped++
			continue
		}
		result.TotalProcessed++

		if err := im.processRow(ctx, userID, row); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: %v", rowNum, err))
			continue
		}
		result.Created++
	}

	im.log.Info().
		Int64("user_id", userID).
		Str("file", name).
		Int("processed", result.TotalProcessed).
		Int("created", result.Created).
		Int("errors", len(result.Errors)).
		Msg("import finished")
	return result, nil
}

func (im *Importer) readExcel(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheet := im.config.SheetName
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("workbook has no sheets")
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to get rows: %w", err)
	}
	return rows, nil
}

func readCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // Allow variable number of fields
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("error reading CSV: %w", err)
	}
	return rows, nil
}

func (im *Importer) processRow(ctx context.Context, userID int64, row []string) error {
	studiedAt, err := parseStudiedAt(cell(row, im.config.StudiedAtColumn), im.config.Location)
	if err != nil {
		return err
	}

	_, err = im.creator.Create(ctx, userID, review.Input{
		Title:     cell(row, im.config.TitleColumn),
		Category:  cell(row, im.config.CategoryColumn),
		Content:   cell(row, im.config.ContentColumn),
		StudiedAt: studiedAt,
	})
	return err
}

// parseStudiedAt accepts the common date layouts and Excel serial dates
func parseStudiedAt(value string, loc *time.Location) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("studied at cannot be empty")
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	if serial, err := strconv.ParseFloat(value, 64); err == nil {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid studied at date %q", value)
}

func cell(row []string, column string) string {
	if column == "" {
		return ""
	}
	if idx := columnToIndex(column); idx < len(row) {
		return strings.TrimSpace(row[idx])
	}
	return ""
}

func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// Helper function to convert Excel column letter to index
func columnToIndex(column string) int {
	column = strings.ToUpper(column)
	index := 0
	for i := 0; i < len(column); i++ {
		index = index*26 + int(column[i]-'A'+1)
	}
	return index - 1
}
