package dataset

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/parquet-go/parquet-go"
)

// columnOrderKey holds the frame's column order in the file metadata. Parquet
// groups sort their fields by name.
const columnOrderKey = "labkit.columns"

func parquetNode(t series.Type) parquet.Node {
	switch t {
	case series.Float:
		return parquet.Leaf(parquet.DoubleType)
	case series.Int:
		return parquet.Int(64)
	case series.Bool:
		return parquet.Leaf(parquet.BooleanType)
	default:
		return parquet.String()
	}
}

func gotaType(k parquet.Kind) series.Type {
	switch k {
	case parquet.Double, parquet.Float:
		return series.Float
	case parquet.Int32, parquet.Int64:
		return series.Int
	case parquet.Boolean:
		return series.Bool
	default:
		return series.String
	}
}

// writeParquet stores every column as an optional leaf so missing cells
// survive as nulls.
func writeParquet(w io.Writer, df dataframe.DataFrame) error {
	names := df.Names()
	if len(names) == 0 {
		return ErrNoColumns
	}

	group := make(parquet.Group, len(names))
	for _, name := range names {
		group[name] = parquet.Optional(parquetNode(df.Col(name).Type()))
	}
	schema := parquet.NewSchema("dataset", group)

	leaf := make(map[string]int, len(names))
	for i, field := range schema.Fields() {
		leaf[field.Name()] = i
	}

	order, err := json.Marshal(names)
	if err != nil {
		return err
	}

	cols := make([]series.Series, len(names))
	for i, name := range names {
		cols[i] = df.Col(name)
	}

	rows := make([]parquet.Row, df.Nrow())
	for r := range rows {
		row := make(parquet.Row, len(names))
		for i, name := range names {
			row[leaf[name]] = parquetValue(cols[i], r).Level(0, definitionLevel(cols[i], r), leaf[name])
		}
		rows[r] = row
	}

	pw := parquet.NewWriter(w, schema, parquet.KeyValueMetadata(columnOrderKey, string(order)))
	if _, err := pw.WriteRows(rows); err != nil {
		_ = pw.Close()
		return fmt.Errorf("write parquet rows: %w", err)
	}
	return pw.Close()
}

func definitionLevel(s series.Series, row int) int {
	if s.Elem(row).IsNA() {
		return 0
	}
	return 1
}

func parquetValue(s series.Series, row int) parquet.Value {
	elem := s.Elem(row)
	if elem.IsNA() {
		return parquet.NullValue()
	}
	switch s.Type() {
	case series.Float:
		return parquet.DoubleValue(elem.Float())
	case series.Int:
		if v, err := elem.Int(); err == nil {
			return parquet.Int64Value(int64(v))
		}
		return parquet.NullValue()
	case series.Bool:
		if v, err := elem.Bool(); err == nil {
			return parquet.BooleanValue(v)
		}
		return parquet.NullValue()
	default:
		return parquet.ByteArrayValue([]byte(elem.String()))
	}
}

// readParquet flattens the file into string records and the column types
// recorded in its schema.
func readParquet(r io.Reader) ([][]string, map[string]series.Type, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, err
	}
	f, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open parquet file: %w", err)
	}

	fields := f.Schema().Fields()
	if len(fields) == 0 {
		return nil, nil, ErrNoColumns
	}
	leaf := make(map[string]int, len(fields))
	types := make(map[string]series.Type, len(fields))
	names := make([]string, len(fields))
	for i, field := range fields {
		names[i] = field.Name()
		leaf[field.Name()] = i
		types[field.Name()] = gotaType(field.Type().Kind())
	}
	if raw, ok := f.Lookup(columnOrderKey); ok {
		var order []string
		if json.Unmarshal([]byte(raw), &order) == nil && sameColumns(order, leaf) {
			names = order
		}
	}

	records := make([][]string, 0, f.NumRows()+1)
	records = append(records, names)

	buf := make([]parquet.Row, 128)
	for _, rg := range f.RowGroups() {
		rows := rg.Rows()
		for {
			n, err := rows.ReadRows(buf)
			for _, row := range buf[:n] {
				cells := make([]string, len(fields))
				for _, v := range row {
					cells[v.Column()] = cellText(v)
				}
				rec := make([]string, len(names))
				for i, name := range names {
					rec[i] = cells[leaf[name]]
				}
				records = append(records, rec)
			}
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				_ = rows.Close()
				return nil, nil, fmt.Errorf("read parquet rows: %w", err)
			}
		}
		if err := rows.Close(); err != nil {
			return nil, nil, err
		}
	}
	return records, types, nil
}

func sameColumns(order []string, leaf map[string]int) bool {
	if len(order) != len(leaf) {
		return false
	}
	for _, name := range order {
		if _, ok := leaf[name]; !ok {
			return false
		}
	}
	return true
}

// cellText renders v the way the CSV reader would see it; nulls become the
// empty cell.
func cellText(v parquet.Value) string {
	if v.IsNull() {
		return ""
	}
	switch v.Kind() {
	case parquet.Double:
		return strconv.FormatFloat(v.Double(), 'f', -1, 64)
	case parquet.Float:
		return strconv.FormatFloat(float64(v.Float()), 'f', -1, 32)
	case parquet.Int64:
		return strconv.FormatInt(v.Int64(), 10)
	case parquet.Int32:
		return strconv.FormatInt(int64(v.Int32()), 10)
	case parquet.Boolean:
		return strconv.FormatBool(v.Boolean())
	default:
		return string(v.ByteArray())
	}
}
