package extract

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure kinds of an extraction run. Fatal kinds are
// ErrMalformedIndex and ErrNoRecords; the others are reported per file.
var (
	ErrMalformedIndex      = errors.New("malformed archive index")
	ErrMissingResultFile   = errors.New("result file not available")
	ErrMalformedResultFile = errors.New("malformed result file")
	ErrNoRecords           = errors.New("no valid data records found")
)

// MalformedIndexError reports an index document that is missing, unreadable,
// not well-formed or lacking its results section.
type MalformedIndexError struct {
	Path   string
	Reason string
	Err    error
}

func (e *MalformedIndexError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed archive index %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed archive index %s: %s", e.Path, e.Reason)
}

func (e *MalformedIndexError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrMalformedIndex) hold for any MalformedIndexError.
func (e *MalformedIndexError) Is(target error) bool { return target == ErrMalformedIndex }

// MissingResultFileError reports a referenced result file that is not part of
// the available set.
type MissingResultFileError struct {
	File string
}

func (e *MissingResultFileError) Error() string {
	return fmt.Sprintf("result file %s not available", e.File)
}

func (e *MissingResultFileError) Is(target error) bool { return target == ErrMissingResultFile }

// MalformedResultFileError reports a result file that exists but could not be
// parsed.
type MalformedResultFileError struct {
	File string
	Err  error
}

func (e *MalformedResultFileError) Error() string {
	return fmt.Sprintf("malformed result file %s: %v", e.File, e.Err)
}

func (e *MalformedResultFileError) Unwrap() error { return e.Err }

func (e *MalformedResultFileError) Is(target error) bool { return target == ErrMalformedResultFile }

// IsFatal reports whether err must abort the whole request rather than a
// single file.
func IsFatal(err error) bool {
	return errors.Is(err, ErrMalformedIndex) || errors.Is(err, ErrNoRecords)
}
