package dataset

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/xuri/excelize/v2"
)

// Format is a table file format, chosen by file extension.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatJSON  Format = "json"
	FormatExcel   Format = "xlsx"
	FormatParquet Format = "parquet"
)

// nullSpellings are read as missing cells.
var nullSpellings = []string{"", "NA", "NaN", "N/A", "nan", "null", "NULL", "<nil>"}

// FormatFor maps a file name onto its [Format]. Unknown extensions fail with
// [ErrUnsupportedFormat].
func FormatFor(name string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".csv":
		return FormatCSV, nil
	case ".json":
		return FormatJSON, nil
	case ".xlsx", ".xls":
		return FormatExcel, nil
	case ".parquet":
		return FormatParquet, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// ReadFile loads the table at path.
func ReadFile(path string) (dataframe.DataFrame, error) {
	format, err := FormatFor(path)
	if err != nil {
		return dataframe.DataFrame{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	defer f.Close()

	return Read(f, format)
}

// Read decodes a table in format from r.
func Read(r io.Reader, format Format) (dataframe.DataFrame, error) {
	var df dataframe.DataFrame

	switch format {
	case FormatCSV:
		df = dataframe.ReadCSV(r, loadOptions()...)
	case FormatJSON:
		df = dataframe.ReadJSON(r, loadOptions()...)
	case FormatExcel:
		records, err := readSheet(r)
		if err != nil {
			return dataframe.DataFrame{}, err
		}
		df = dataframe.LoadRecords(records, loadOptions()...)
	case FormatParquet:
		records, types, err := readParquet(r)
		if err != nil {
			return dataframe.DataFrame{}, err
		}
		df = dataframe.LoadRecords(records, append(loadOptions(), dataframe.WithTypes(types))...)
	default:
		return dataframe.DataFrame{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	if df.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("decode %s: %w", format, df.Err)
	}
	return df, nil
}

// WriteFile stores df at path, creating parent directories.
func WriteFile(df dataframe.DataFrame, path string) error {
	format, err := FormatFor(path)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := Write(&buf, df, format); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// Write encodes df in format to w.
func Write(w io.Writer, df dataframe.DataFrame, format Format) error {
	if df.Err != nil {
		return df.Err
	}

	switch format {
	case FormatCSV:
		return df.WriteCSV(w)
	case FormatJSON:
		return df.WriteJSON(w)
	case FormatExcel:
		return writeSheet(w, df)
	case FormatParquet:
		return writeParquet(w, df)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

func loadOptions() []dataframe.LoadOption {
	return []dataframe.LoadOption{
		dataframe.HasHeader(true),
		dataframe.DetectTypes(true),
		dataframe.NaNValues(nullSpellings),
	}
}

// readSheet returns the rows of the first worksheet, padded to the header
// width.
func readSheet(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptySheet
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, ErrEmptySheet
	}

	width := len(rows[0])
	records := make([][]string, 0, len(rows))
	for _, row := range rows {
		rec := make([]string, width)
		copy(rec, row)
		records = append(records, rec)
	}
	return records, nil
}

func writeSheet(w io.Writer, df dataframe.DataFrame) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Sheet1"

	for col, name := range df.Names() {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, name); err != nil {
			return err
		}

		s := df.Col(name)
		for row := 0; row < s.Len(); row++ {
			elem := s.Elem(row)
			if elem.IsNA() {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(col+1, row+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, cellValue(s.Type(), elem)); err != nil {
				return err
			}
		}
	}

	return f.Write(w)
}

func cellValue(t series.Type, elem series.Element) any {
	switch t {
	case series.Float:
		return elem.Float()
	case series.Int:
		if v, err := elem.Int(); err == nil {
			return v
		}
	case series.Bool:
		if v, err := elem.Bool(); err == nil {
			return v
		}
	}
	return elem.String()
}
