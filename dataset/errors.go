package dataset

import "errors"

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrDuplicateColumn   = errors.New("duplicate column name")
	ErrUnknownColumn     = errors.New("unknown column")
	ErrUnknownStrategy   = errors.New("unknown missing-value strategy")
	ErrUnknownMethod     = errors.New("unknown outlier method")
	ErrNotNumeric        = errors.New("column is not numeric")
	ErrFillValueRequired = errors.New("custom strategy requires a fill value")
	ErrNoColumns         = errors.New("no columns to process")
	ErrEmptySheet        = errors.New("spreadsheet has no header row")
)
