// Package export writes fetched records to CSV files. It is a pure
// output consumer: records arrive as opaque maps and leave as flattened
// rows, the way an analyst expects to open them in a spreadsheet.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/natserract/sfmc/pkg/sfmc"
	"go.uber.org/zap"
)

// CSVWriter writes one object's records to a CSV file under Dir.
type CSVWriter struct {
	dir    string
	logger *zap.Logger
}

func NewCSVWriter(dir string, logger *zap.Logger) *CSVWriter {
	return &CSVWriter{dir: dir, logger: logger}
}

// Write flattens records and writes them to <dir>/<name>.csv, returning
// the output path. Columns that are empty in every record are dropped.
func (w *CSVWriter) Write(name string, records []sfmc.Record) (string, error) {
	if len(records) == 0 {
		return "", fmt.Errorf("no records to export for %s", name)
	}

	rows := make([]map[string]string, 0, len(records))
	for _, r := range records {
		flat := map[string]string{}
		flatten("", r, flat)
		rows = append(rows, flat)
	}

	columns := columnSet(rows)

	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create export dir: %w", err)
	}
	path := filepath.Join(w.dir, name+".csv")

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(columns); err != nil {
		return "", fmt.Errorf("failed to write header: %w", err)
	}
	for _, row := range rows {
		record := make([]string, len(columns))
		for i, col := range columns {
			record[i] = row[col]
		}
		if err := cw.Write(record); err != nil {
			return "", fmt.Errorf("failed to write row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return "", fmt.Errorf("failed to flush csv: %w", err)
	}

	w.logger.Info("Export written",
		zap.String("path", path),
		zap.Int("rows", len(rows)),
		zap.Int("columns", len(columns)))

	return path, nil
}

// flatten turns nested maps into underscore-joined column names, the
// usual convention for normalized exports (ParentFolder.Name becomes
// ParentFolder_Name). Lists are rendered inline.
func flatten(prefix string, value any, out map[string]string) {
	join := func(key string) string {
		if prefix == "" {
			return key
		}
		return prefix + "_" + key
	}

	switch v := value.(type) {
	case sfmc.Record:
		for k, item := range v {
			flatten(join(k), item, out)
		}
	case map[string]any:
		for k, item := range v {
			flatten(join(k), item, out)
		}
	case []any:
		out[prefix] = fmt.Sprint(v)
	case nil:
		out[prefix] = ""
	default:
		out[prefix] = fmt.Sprint(v)
	}
}

// columnSet returns the sorted union of non-empty columns across rows.
func columnSet(rows []map[string]string) []string {
	nonEmpty := map[string]bool{}
	for _, row := range rows {
		for col, val := range row {
			if val != "" {
				nonEmpty[col] = true
			}
		}
	}

	columns := make([]string, 0, len(nonEmpty))
	for col := range nonEmpty {
		columns = append(columns, col)
	}
	sort.Strings(columns)
	return columns
}
