package dataset

import (
	"math"
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// ColumnSummary describes one column. Mean, Std, Min and Max are set for
// numeric columns and stay nil when undefined (no values, or a single value
// for Std). MostCommon and MostCommonFreq describe non-numeric columns.
type ColumnSummary struct {
	Column           string  `json:"column"`
	DType            string  `json:"dtype"`
	NullCount        int     `json:"null_count"`
	NullPercentage   float64 `json:"null_percentage"`
	UniqueCount      int     `json:"unique_count"`
	UniquePercentage float64 `json:"unique_percentage"`

	Numeric bool     `json:"-"`
	Mean    *float64 `json:"mean"`
	Std     *float64 `json:"std"`
	Min     *float64 `json:"min"`
	Max     *float64 `json:"max"`

	MostCommon     string `json:"most_common,omitempty"`
	MostCommonFreq int    `json:"most_common_freq,omitempty"`
}

// Summarize builds a [ColumnSummary] for every column of df. Percentages are
// of the row count and rounded to 2 places; mean and sample standard
// deviation are rounded to 4.
func Summarize(df dataframe.DataFrame) []ColumnSummary {
	rows := df.Nrow()
	out := make([]ColumnSummary, 0, df.Ncol())

	for _, name := range df.Names() {
		s := df.Col(name)
		counts, order := valueCounts(s)

		cs := ColumnSummary{
			Column:      name,
			DType:       DType(s),
			NullCount:   s.Len() - sum(counts),
			UniqueCount: len(order),
		}
		cs.NullPercentage = percentOf(cs.NullCount, rows)
		cs.UniquePercentage = percentOf(cs.UniqueCount, rows)

		if IsNumeric(s) {
			xs := values(s)
			cs.Numeric = true
			lo, hi := minMax(xs)
			cs.Mean = defined(round(mean(xs), 4))
			cs.Std = defined(round(sampleStdDev(xs), 4))
			cs.Min, cs.Max = defined(lo), defined(hi)
		} else {
			for _, v := range order {
				if counts[v] > cs.MostCommonFreq {
					cs.MostCommon, cs.MostCommonFreq = v, counts[v]
				}
			}
		}

		out = append(out, cs)
	}
	return out
}

// SummaryFrame renders Summarize as a data frame, one row per column.
func SummaryFrame(df dataframe.DataFrame) (dataframe.DataFrame, error) {
	summaries := Summarize(df)
	records := [][]string{{
		"column", "dtype", "null_count", "null_percentage", "unique_count",
		"unique_percentage", "mean", "std", "min", "max", "most_common", "most_common_freq",
	}}

	for _, cs := range summaries {
		row := []string{
			cs.Column, cs.DType, strconv.Itoa(cs.NullCount), formatFloat(cs.NullPercentage),
			strconv.Itoa(cs.UniqueCount), formatFloat(cs.UniquePercentage),
		}
		if cs.Numeric {
			row = append(row, floatRecord(cs.Mean), floatRecord(cs.Std), floatRecord(cs.Min), floatRecord(cs.Max), naRecord, naRecord)
		} else {
			mc := cs.MostCommon
			if cs.MostCommonFreq == 0 {
				mc = naRecord
			}
			row = append(row, naRecord, naRecord, naRecord, naRecord, mc, strconv.Itoa(cs.MostCommonFreq))
		}
		records = append(records, row)
	}

	out := dataframe.LoadRecords(records,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.WithTypes(map[string]series.Type{
			"null_count":        series.Int,
			"null_percentage":   series.Float,
			"unique_count":      series.Int,
			"unique_percentage": series.Float,
			"mean":              series.Float,
			"std":               series.Float,
			"min":               series.Float,
			"max":               series.Float,
		}),
	)
	if out.Err != nil {
		return dataframe.DataFrame{}, out.Err
	}
	return out, nil
}

// Info is a whole-frame overview.
type Info struct {
	Rows          int            `json:"rows"`
	Columns       int            `json:"columns"`
	NullCount     int            `json:"null_count"`
	DuplicateRows int            `json:"duplicate_rows"`
	DTypes        map[string]int `json:"dtypes"`
	// MemoryBytes approximates the in-memory size of the table.
	MemoryBytes int64   `json:"memory_bytes"`
	MemoryMB    float64 `json:"total_memory_mb"`
}

// Per-cell size estimates.
const (
	numericCellBytes = 8
	boolCellBytes    = 1
	stringCellBytes  = 49
	indexBytes       = 132
)

// Describe returns shape, missing-cell, duplicate-row, dtype and memory
// figures for df.
func Describe(df dataframe.DataFrame) Info {
	info := Info{
		Rows:        df.Nrow(),
		Columns:     df.Ncol(),
		DTypes:      make(map[string]int),
		MemoryBytes: indexBytes,
	}

	for _, name := range df.Names() {
		s := df.Col(name)
		info.DTypes[DType(s)]++

		na := s.IsNaN()
		for i, rec := range s.Records() {
			if na[i] {
				info.NullCount++
			}
			switch s.Type() {
			case series.Int, series.Float:
				info.MemoryBytes += numericCellBytes
			case series.Bool:
				info.MemoryBytes += boolCellBytes
			default:
				info.MemoryBytes += int64(stringCellBytes + len(rec))
			}
		}
	}

	info.DuplicateRows = duplicateRows(df)
	info.MemoryMB = round(float64(info.MemoryBytes)/(1024*1024), 2)
	return info
}

func duplicateRows(df dataframe.DataFrame) int {
	records := df.Records()
	if len(records) <= 1 {
		return 0
	}

	seen := make(map[string]struct{}, len(records)-1)
	dups := 0
	for _, row := range records[1:] {
		key := strings.Join(row, "\x00")
		if _, ok := seen[key]; ok {
			dups++
			continue
		}
		seen[key] = struct{}{}
	}
	return dups
}

func percentOf(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return round(float64(n)/float64(total)*100, 2)
}

func sum(counts map[string]int) int {
	total := 0
	for _, c := range counts {
		total += c
	}
	return total
}

// defined returns nil for NaN and infinities, which JSON cannot carry.
func defined(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func floatRecord(v *float64) string {
	if v == nil {
		return naRecord
	}
	return formatFloat(*v)
}
