package dataset

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

var (
	nonWordChars = regexp.MustCompile(`[^\p{L}\p{N}_\s]`)
	whitespace   = regexp.MustCompile(`\s+`)
)

// CleanColumnName trims name, lowercases it, drops characters that are not
// letters, digits, underscores or whitespace, and joins whitespace runs with
// a single underscore.
func CleanColumnName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = nonWordChars.ReplaceAllString(name, "")
	return whitespace.ReplaceAllString(name, "_")
}

// CleanColumnNames renames every column with [CleanColumnName]. Two columns
// that clean to the same name fail with [ErrDuplicateColumn].
func CleanColumnNames(df dataframe.DataFrame) (dataframe.DataFrame, error) {
	names := df.Names()
	cols := make([]series.Series, 0, len(names))
	seen := make(map[string]string, len(names))

	for _, old := range names {
		cleaned := CleanColumnName(old)
		if prev, dup := seen[cleaned]; dup {
			return dataframe.DataFrame{}, fmt.Errorf("%w: %q and %q both become %q", ErrDuplicateColumn, prev, old, cleaned)
		}
		seen[cleaned] = old

		s := df.Col(old).Copy()
		s.Name = cleaned
		cols = append(cols, s)
	}

	return newFrame(cols)
}

// IsNumeric reports whether s holds integers or floats.
func IsNumeric(s series.Series) bool {
	t := s.Type()
	return t == series.Int || t == series.Float
}

// NumericColumns returns the names of the numeric columns of df in order.
func NumericColumns(df dataframe.DataFrame) []string {
	var out []string
	for _, name := range df.Names() {
		if IsNumeric(df.Col(name)) {
			out = append(out, name)
		}
	}
	return out
}

// DType is the pandas-style dtype label for s.
func DType(s series.Series) string {
	switch s.Type() {
	case series.Int:
		return "int64"
	case series.Float:
		return "float64"
	case series.Bool:
		return "bool"
	default:
		return "object"
	}
}

func resolveColumns(df dataframe.DataFrame, requested []string) ([]string, error) {
	if len(requested) == 0 {
		return df.Names(), nil
	}
	have := make(map[string]struct{}, df.Ncol())
	for _, n := range df.Names() {
		have[n] = struct{}{}
	}
	for _, n := range requested {
		if _, ok := have[n]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, n)
		}
	}
	return requested, nil
}

func newFrame(cols []series.Series) (dataframe.DataFrame, error) {
	if len(cols) == 0 {
		return dataframe.DataFrame{}, ErrNoColumns
	}
	df := dataframe.New(cols...)
	if df.Err != nil {
		return dataframe.DataFrame{}, df.Err
	}
	return df, nil
}

// rebuild returns a series of type t named like s. "NaN" records become
// missing cells.
func rebuild(s series.Series, records []string, t series.Type) series.Series {
	return series.New(records, t, s.Name)
}
