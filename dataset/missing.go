package dataset

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// Strategy selects how [HandleMissing] treats missing cells.
type Strategy string

const (
	StrategyDrop        Strategy = "drop"
	StrategyMean        Strategy = "mean"
	StrategyMedian      Strategy = "median"
	StrategyMode        Strategy = "mode"
	StrategyForwardFill Strategy = "forward_fill"
	StrategyBackFill    Strategy = "back_fill"
	StrategyCustom      Strategy = "custom"
)

// MissingOptions configures [HandleMissing]. Empty Columns means every column.
type MissingOptions struct {
	Strategy Strategy
	Columns  []string
	// FillValue is used by StrategyCustom.
	FillValue any
}

const naRecord = "NaN"

// HandleMissing removes or fills missing cells in the selected columns.
//
// Drop removes rows with a missing cell in any selected column. Mean and
// median fill numeric columns only and leave the others untouched. Mode
// fills with the most frequent value, the smallest on ties. Forward and
// back fill propagate the nearest present value; leading (or trailing)
// gaps stay missing.
func HandleMissing(df dataframe.DataFrame, opts MissingOptions) (dataframe.DataFrame, error) {
	if df.Err != nil {
		return dataframe.DataFrame{}, df.Err
	}

	columns, err := resolveColumns(df, opts.Columns)
	if err != nil {
		return dataframe.DataFrame{}, err
	}

	strategy := opts.Strategy
	if strategy == "" {
		strategy = StrategyDrop
	}

	switch strategy {
	case StrategyDrop:
		return dropMissing(df, columns)
	case StrategyMean, StrategyMedian:
		return mapColumns(df, columns, func(s series.Series) (series.Series, bool) {
			if !IsNumeric(s) {
				return s, false
			}
			xs := values(s)
			if len(xs) == 0 {
				return s, false
			}
			fill := mean(xs)
			if strategy == StrategyMedian {
				fill = median(xs)
			}
			return fillConstant(s, formatFloat(fill), series.Float), true
		})
	case StrategyMode:
		return mapColumns(df, columns, func(s series.Series) (series.Series, bool) {
			mode, ok := modeOf(s)
			if !ok {
				return s, false
			}
			return fillConstant(s, mode, s.Type()), true
		})
	case StrategyForwardFill:
		return mapColumns(df, columns, func(s series.Series) (series.Series, bool) {
			return propagate(s, false), true
		})
	case StrategyBackFill:
		return mapColumns(df, columns, func(s series.Series) (series.Series, bool) {
			return propagate(s, true), true
		})
	case StrategyCustom:
		if opts.FillValue == nil {
			return dataframe.DataFrame{}, ErrFillValueRequired
		}
		fill := fmt.Sprint(opts.FillValue)
		return mapColumns(df, columns, func(s series.Series) (series.Series, bool) {
			t := s.Type()
			if IsNumeric(s) {
				if _, err := strconv.ParseFloat(fill, 64); err != nil {
					t = series.String
				} else if t == series.Int {
					if _, err := strconv.Atoi(fill); err != nil {
						t = series.Float
					}
				}
			}
			return fillConstant(s, fill, t), true
		})
	default:
		return dataframe.DataFrame{}, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}
}

func dropMissing(df dataframe.DataFrame, columns []string) (dataframe.DataFrame, error) {
	keep := make([]bool, df.Nrow())
	for i := range keep {
		keep[i] = true
	}
	for _, name := range columns {
		for i, na := range df.Col(name).IsNaN() {
			if na {
				keep[i] = false
			}
		}
	}

	var idx []int
	for i, k := range keep {
		if k {
			idx = append(idx, i)
		}
	}

	if len(idx) == df.Nrow() {
		return df.Copy(), nil
	}
	if len(idx) == 0 {
		return emptyLike(df)
	}

	out := df.Subset(idx)
	if out.Err != nil {
		return dataframe.DataFrame{}, out.Err
	}
	return out, nil
}

// emptyLike returns a zero-row frame with the columns and types of df.
func emptyLike(df dataframe.DataFrame) (dataframe.DataFrame, error) {
	cols := make([]series.Series, 0, df.Ncol())
	for _, name := range df.Names() {
		cols = append(cols, series.New([]string{}, df.Col(name).Type(), name))
	}
	return newFrame(cols)
}

func mapColumns(df dataframe.DataFrame, columns []string, fn func(series.Series) (series.Series, bool)) (dataframe.DataFrame, error) {
	out := df.Copy()
	for _, name := range columns {
		s := out.Col(name)
		if !hasMissing(s) {
			continue
		}
		replaced, changed := fn(s)
		if !changed {
			continue
		}
		out = out.Mutate(replaced)
		if out.Err != nil {
			return dataframe.DataFrame{}, out.Err
		}
	}
	return out, nil
}

func hasMissing(s series.Series) bool {
	for _, na := range s.IsNaN() {
		if na {
			return true
		}
	}
	return false
}

func fillConstant(s series.Series, fill string, t series.Type) series.Series {
	na := s.IsNaN()
	records := s.Records()
	for i := range records {
		if na[i] {
			records[i] = fill
		}
	}
	return rebuild(s, records, t)
}

func propagate(s series.Series, backward bool) series.Series {
	na := s.IsNaN()
	records := s.Records()
	n := len(records)

	last := ""
	have := false
	for k := 0; k < n; k++ {
		i := k
		if backward {
			i = n - 1 - k
		}
		if !na[i] {
			last, have = records[i], true
			continue
		}
		if have {
			records[i] = last
		} else {
			records[i] = naRecord
		}
	}
	return rebuild(s, records, s.Type())
}

// modeOf returns the most frequent present value of s. Ties resolve to the
// smallest value, numerically for numeric columns.
func modeOf(s series.Series) (string, bool) {
	counts, order := valueCounts(s)
	if len(order) == 0 {
		return "", false
	}

	best := 0
	for _, v := range order {
		if counts[v] > best {
			best = counts[v]
		}
	}

	var tied []string
	for _, v := range order {
		if counts[v] == best {
			tied = append(tied, v)
		}
	}

	numeric := IsNumeric(s)
	sort.Slice(tied, func(i, j int) bool {
		if numeric {
			a, errA := strconv.ParseFloat(tied[i], 64)
			b, errB := strconv.ParseFloat(tied[j], 64)
			if errA == nil && errB == nil {
				return a < b
			}
		}
		return tied[i] < tied[j]
	})
	return tied[0], true
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
