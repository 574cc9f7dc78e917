package datafiles

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrorKind classifies why a data file could not be read.
type ErrorKind int

const (
	KindJSON              ErrorKind = iota + 1 // Malformed or mistyped JSON
	KindCSV                                    // Malformed tab-separated table
	KindIO                                     // File could not be read
	KindDuplicateCreditID                      // Same credit id listed twice
)

func (k ErrorKind) String() string {
	switch k {
	case KindJSON:
		return "json"
	case KindCSV:
		return "csv"
	case KindIO:
		return "io"
	case KindDuplicateCreditID:
		return "duplicate_credit_id"
	default:
		return "unknown"
	}
}

// DataReadError is returned by every decoder in this package. Decoders
// classify their failures themselves, so callers never inspect the
// underlying library error types.
type DataReadError struct {
	Kind     ErrorKind
	Err      error
	Line     int    // 1-based line of the failure, 0 if unknown
	CreditID string // Set for KindDuplicateCreditID
}

func (e *DataReadError) Error() string {
	switch e.Kind {
	case KindJSON:
		return fmt.Sprintf("JSON deserialization error: %v", e.Err)
	case KindCSV:
		return fmt.Sprintf("CSV deserialization error: %v", e.Err)
	case KindIO:
		return fmt.Sprintf("I/O error: %v", e.Err)
	case KindDuplicateCreditID:
		return fmt.Sprintf("Duplicate credit id while trying to read credit names: %s", e.CreditID)
	default:
		return fmt.Sprintf("data read error: %v", e.Err)
	}
}

func (e *DataReadError) Unwrap() error {
	return e.Err
}

func ioError(err error) *DataReadError {
	return &DataReadError{Kind: KindIO, Err: err}
}

// jsonError converts a decoding error of data into a DataReadError, deriving
// the line number from the decoder's byte offset when one is available.
func jsonError(data []byte, err error) *DataReadError {
	var offset int64 = -1
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr):
		offset = syntaxErr.Offset
	case errors.As(err, &typeErr):
		offset = typeErr.Offset
	}
	return &DataReadError{Kind: KindJSON, Err: err, Line: lineAtOffset(data, offset)}
}

func csvError(err error) *DataReadError {
	line := 0
	var parseErr *csv.ParseError
	if errors.As(err, &parseErr) {
		line = parseErr.Line
	}
	return &DataReadError{Kind: KindCSV, Err: err, Line: line}
}

func lineAtOffset(data []byte, offset int64) int {
	if offset < 0 {
		return 0
	}
	if offset > int64(len(data)) {
		offset = int64(len(data))
	}
	return bytes.Count(data[:offset], []byte{'\n'}) + 1
}
