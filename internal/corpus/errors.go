package corpus

import (
	"errors"
	"fmt"
)

// DataReason classifies a DataError.
type DataReason string

const (
	ReasonMissing      DataReason = "missing"
	ReasonBadMagic     DataReason = "bad_magic"
	ReasonSizeMismatch DataReason = "size_mismatch"
	ReasonTruncated    DataReason = "truncated"
	ReasonEmpty        DataReason = "empty"
	ReasonIO           DataReason = "io"
	ReasonUnavailable  DataReason = "unavailable"
)

var ErrNoDatasets = errors.New("no corpus datasets available")

// DataError reports a corpus file that cannot be used for one size.
type DataError struct {
	Size   int
	Path   string
	Reason DataReason
	Err    error
}

func (e *DataError) Error() string {
	msg := fmt.Sprintf("corpus data error for N=%d (%s)", e.Size, e.Reason)
	if e.Path != "" {
		msg += " at " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// AllocationError reports a dataset whose declared payload cannot be
// materialised within the configured memory budget.
type AllocationError struct {
	Size   int
	Trials int
	Bytes  uint64
	Limit  uint64
	Path   string
}

func (e *AllocationError) Error() string {
	if e.Limit == 0 {
		return fmt.Sprintf("corpus allocation for N=%d trials=%d overflows addressable memory (%s)", e.Size, e.Trials, e.Path)
	}
	return fmt.Sprintf("corpus allocation for N=%d trials=%d needs %d bytes, limit %d (%s)", e.Size, e.Trials, e.Bytes, e.Limit, e.Path)
}
