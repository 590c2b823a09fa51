package replay

import "errors"

// Sentinel errors that a Table can produce when sampling
var (
	errEmptyTable          = errors.New("table contains no data")
	errInsufficientSamples = errors.New("table has insufficient data to " +
		"fill a batch")
)

// TableError denotes an error that occurred on a Table operation
type TableError struct {
	Op  string
	Err error
}

// Error implements the error interface
func (e *TableError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

// Unwrap returns the underlying error of the TableError
func (e *TableError) Unwrap() error {
	return e.Err
}

// IsEmptyTable returns whether err indicates that a sample was drawn
// from a Table that holds no data.
func IsEmptyTable(err error) bool {
	return errors.Is(err, errEmptyTable)
}

// IsInsufficientSamples returns whether err indicates that a sample
// was drawn from a Table that has not yet reached its minimum size.
func IsInsufficientSamples(err error) bool {
	return errors.Is(err, errInsufficientSamples)
}
