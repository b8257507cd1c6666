package dataset

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	apperrors "hfpanel/internal/errors"
)

// WriteCSV persists the table as a CSV artifact. Missing cells are
// written as empty strings.
func WriteCSV(t *Table, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return apperrors.NewStorageError("create output directory", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return apperrors.NewStorageError("create CSV file", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write(t.ColumnNames()); err != nil {
		return apperrors.NewStorageError("write CSV header", err)
	}

	record := make([]string, len(t.cols))
	for i := 0; i < t.rows; i++ {
		for j, c := range t.cols {
			record[j] = cellString(c, i)
		}
		if err := writer.Write(record); err != nil {
			return apperrors.NewStorageError("write CSV record", err)
		}
	}

	return nil
}

// cellString formats one cell for CSV output.
func cellString(c *Column, i int) string {
	if c.Kind == KindString {
		return c.Strings[i]
	}
	v := c.Floats[i]
	if IsMissing(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// ReadCSV loads a table from a CSV file with a header row. Column types
// are inferred: a column whose non-empty cells all parse as floats is
// numeric, anything else is a string column. Empty cells are missing
// under either type.
func ReadCSV(path string) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, apperrors.NewDataError("open CSV file", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, apperrors.NewDataError("read CSV records", err)
	}

	return fromRecords(records, path)
}

// ReadXLSX loads a table from the first sheet of an Excel workbook, with
// the same header and type-inference rules as ReadCSV.
func ReadXLSX(path string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, apperrors.NewDataError("open workbook", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, apperrors.NewDataError("workbook has no sheets", nil).WithContext("path", path)
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, apperrors.NewDataError("read worksheet rows", err)
	}

	return fromRecords(rows, path)
}

// fromRecords builds a table from header-plus-rows string records.
func fromRecords(records [][]string, source string) (*Table, error) {
	if len(records) == 0 {
		return nil, apperrors.NewDataError("empty input table", nil).WithContext("source", source)
	}

	header := records[0]
	if len(header) == 0 {
		return nil, apperrors.NewDataError("input table has no columns", nil).WithContext("source", source)
	}

	nRows := len(records) - 1
	raw := make([][]string, len(header))
	for j := range header {
		raw[j] = make([]string, nRows)
	}

	// Excel rows may be ragged; short rows pad with missing.
	for i := 1; i < len(records); i++ {
		for j := range header {
			if j < len(records[i]) {
				raw[j][i-1] = strings.TrimSpace(records[i][j])
			}
		}
	}

	cols := make([]*Column, len(header))
	for j, name := range header {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, apperrors.NewDataError(
				fmt.Sprintf("column %d has an empty header", j+1), nil).WithContext("source", source)
		}
		cols[j] = inferColumn(name, raw[j])
	}

	return New(cols...)
}

// inferColumn decides between a float and a string column for one value
// vector.
func inferColumn(name string, values []string) *Column {
	numeric := true
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			numeric = false
			break
		}
	}

	if !numeric {
		return NewStringColumn(name, values)
	}

	floats := make([]float64, len(values))
	for i, v := range values {
		if v == "" {
			floats[i] = Missing()
			continue
		}
		f, _ := strconv.ParseFloat(v, 64)
		floats[i] = f
	}
	return NewFloatColumn(name, floats)
}
