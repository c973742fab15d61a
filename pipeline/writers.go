package pipeline

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/aluiziolira/go-scrape-startups/models"
)

// CSVSink rewrites a CSV file with a header row and one row per record.
type CSVSink struct {
	path    string
	columns []string
	mu      sync.Mutex
}

// NewCSVSink prepares path for writing. Nothing is written until the
// first Flush.
func NewCSVSink(path string, columns []string) (*CSVSink, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("csv sink needs at least one column")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	return &CSVSink{path: path, columns: columns}, nil
}

// Flush replaces the file with records.
func (cs *CSVSink) Flush(records []models.Record) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(cs.columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for i := range records {
		if err := writer.Write(records[i].Row(cs.columns)); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	if err := writeAtomic(cs.path, buf.Bytes()); err != nil {
		return fmt.Errorf("replace csv file: %w", err)
	}
	return nil
}

func (cs *CSVSink) Close() error {
	return nil
}

// Validate ensures the file exists and holds at least the header.
func (cs *CSVSink) Validate() error {
	return validateFile(cs.path, "csv")
}

// JSONSink rewrites a newline-delimited JSON file, one object per record
// with keys in column order.
type JSONSink struct {
	path    string
	columns []string
	mu      sync.Mutex
}

// NewJSONSink prepares path for writing.
func NewJSONSink(path string, columns []string) (*JSONSink, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	return &JSONSink{path: path, columns: columns}, nil
}

// Flush replaces the file with records.
func (js *JSONSink) Flush(records []models.Record) error {
	js.mu.Lock()
	defer js.mu.Unlock()

	var buf bytes.Buffer
	for i := range records {
		line, err := encodeRecord(&records[i], js.columns)
		if err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	if err := writeAtomic(js.path, buf.Bytes()); err != nil {
		return fmt.Errorf("replace json file: %w", err)
	}
	return nil
}

func (js *JSONSink) Close() error {
	return nil
}

// Validate ensures the file exists.
func (js *JSONSink) Validate() error {
	if _, err := os.Stat(js.path); err != nil {
		return fmt.Errorf("stat json file: %w", err)
	}
	return nil
}

// encodeRecord emits {"url":..., <columns>...} without the key sorting
// encoding/json applies to maps.
func encodeRecord(r *models.Record, columns []string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"url":`)
	url, err := json.Marshal(r.URL)
	if err != nil {
		return nil, err
	}
	buf.Write(url)
	for _, col := range columns {
		key, err := json.Marshal(col)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(r.Get(col))
		if err != nil {
			return nil, err
		}
		buf.WriteByte(',')
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// XLSXSink rewrites a single-sheet workbook.
type XLSXSink struct {
	path    string
	sheet   string
	columns []string
	mu      sync.Mutex
}

// NewXLSXSink prepares path for writing.
func NewXLSXSink(path, sheet string, columns []string) (*XLSXSink, error) {
	if sheet == "" {
		sheet = "Records"
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	return &XLSXSink{path: path, sheet: sheet, columns: columns}, nil
}

// Flush replaces the workbook with records.
func (xs *XLSXSink) Flush(records []models.Record) error {
	xs.mu.Lock()
	defer xs.mu.Unlock()

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", xs.sheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}
	if err := xs.setRow(f, 1, xs.columns); err != nil {
		return err
	}
	for i := range records {
		if err := xs.setRow(f, i+2, records[i].Row(xs.columns)); err != nil {
			return err
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return fmt.Errorf("encode workbook: %w", err)
	}
	if err := writeAtomic(xs.path, buf.Bytes()); err != nil {
		return fmt.Errorf("replace xlsx file: %w", err)
	}
	return nil
}

func (xs *XLSXSink) setRow(f *excelize.File, row int, values []string) error {
	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}
		if err := f.SetCellValue(xs.sheet, cell, v); err != nil {
			return fmt.Errorf("set cell %s: %w", cell, err)
		}
	}
	return nil
}

func (xs *XLSXSink) Close() error {
	return nil
}

// Validate ensures the workbook exists and is not empty.
func (xs *XLSXSink) Validate() error {
	return validateFile(xs.path, "xlsx")
}

// writeAtomic replaces dest with data through a temporary file in the
// same directory, so readers see either the old or the new content.
func writeAtomic(dest string, data []byte) error {
	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

func validateFile(path, kind string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s file: %w", kind, err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("%s file is empty", kind)
	}
	return nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
