package dataprocessing

import "errors"

// Structural errors returned by the parser and cleaners
var (
	ErrMissingColumn     = errors.New("required column missing")
	ErrInvalidPeriod     = errors.New("malformed period label")
	ErrNoNumericValues   = errors.New("column has no numeric values")
	ErrUnsupportedFormat = errors.New("unsupported payload format")
	ErrNoData            = errors.New("no data found in payload")
	ErrWrongPayloadKind  = errors.New("payload kind does not match domain")
)
