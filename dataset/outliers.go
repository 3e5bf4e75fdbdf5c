package dataset

import (
	"fmt"
	"math"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// OutlierMethod selects the rule used by [DetectOutliers].
type OutlierMethod string

const (
	// OutlierIQR flags values outside [Q1 - 1.5*IQR, Q3 + 1.5*IQR].
	OutlierIQR OutlierMethod = "iqr"
	// OutlierZScore flags values more than three population standard
	// deviations from the mean.
	OutlierZScore OutlierMethod = "zscore"
)

const (
	iqrFence      = 1.5
	zScoreCutoff  = 3.0
	outlierSuffix = "_outlier"
)

// OutlierOptions configures [DetectOutliers]. Empty Columns means every
// numeric column.
type OutlierOptions struct {
	Method  OutlierMethod
	Columns []string
}

// DetectOutliers returns one boolean column named "<col>_outlier" per
// checked column, aligned with the rows of df. Missing cells are never
// outliers.
func DetectOutliers(df dataframe.DataFrame, opts OutlierOptions) (dataframe.DataFrame, error) {
	if df.Err != nil {
		return dataframe.DataFrame{}, df.Err
	}

	method := opts.Method
	if method == "" {
		method = OutlierIQR
	}
	if method != OutlierIQR && method != OutlierZScore {
		return dataframe.DataFrame{}, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}

	columns := opts.Columns
	if len(columns) == 0 {
		columns = NumericColumns(df)
	} else if _, err := resolveColumns(df, columns); err != nil {
		return dataframe.DataFrame{}, err
	}

	out := make([]series.Series, 0, len(columns))
	for _, name := range columns {
		s := df.Col(name)
		if !IsNumeric(s) {
			return dataframe.DataFrame{}, fmt.Errorf("%w: %q", ErrNotNumeric, name)
		}

		var flags []bool
		if method == OutlierIQR {
			flags = iqrFlags(s)
		} else {
			flags = zScoreFlags(s)
		}
		out = append(out, series.New(flags, series.Bool, name+outlierSuffix))
	}

	return newFrame(out)
}

func iqrFlags(s series.Series) []bool {
	xs := values(s)
	q1 := quantile(xs, 0.25)
	q3 := quantile(xs, 0.75)
	iqr := q3 - q1
	lower := q1 - iqrFence*iqr
	upper := q3 + iqrFence*iqr

	na := s.IsNaN()
	flags := make([]bool, s.Len())
	for i, v := range s.Float() {
		if na[i] || math.IsNaN(v) {
			continue
		}
		flags[i] = v < lower || v > upper
	}
	return flags
}

func zScoreFlags(s series.Series) []bool {
	xs := values(s)
	m := mean(xs)
	sd := popStdDev(xs)

	na := s.IsNaN()
	flags := make([]bool, s.Len())
	if sd == 0 || math.IsNaN(sd) {
		return flags
	}
	for i, v := range s.Float() {
		if na[i] || math.IsNaN(v) {
			continue
		}
		flags[i] = math.Abs((v-m)/sd) > zScoreCutoff
	}
	return flags
}
