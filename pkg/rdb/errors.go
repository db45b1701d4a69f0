package rdb

import (
	"errors"
	"fmt"
)

// Errors returned by the codec. All of them are fatal to the current call.
var (
	ErrBadMagic               = errors.New("rdb: bad magic")
	ErrVersionMismatch        = errors.New("rdb: version mismatch")
	ErrTruncatedFile          = errors.New("rdb: truncated file")
	ErrInvalidUTF8            = errors.New("rdb: invalid utf-8 string")
	ErrUnsupportedEncoding    = errors.New("rdb: unsupported encoding")
	ErrUnsupportedCompression = errors.New("rdb: unsupported compressed string")
	ErrUnsupportedFeature     = errors.New("rdb: unsupported feature")
	ErrUnsupportedValueType   = errors.New("rdb: unsupported value type")
	ErrValueTooLarge          = errors.New("rdb: value too large")
)

// FormatError describes where in the buffer a decode failed.
// It unwraps to one of the sentinel errors above.
type FormatError struct {
	Err    error
	Offset int
	Detail string
}

func (e *FormatError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%v at offset %d", e.Err, e.Offset)
	}
	return fmt.Sprintf("%v at offset %d: %s", e.Err, e.Offset, e.Detail)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// atOffset rebases err onto an absolute buffer offset. Errors that already
// carry an offset are shifted, bare sentinels are wrapped.
func atOffset(err error, offset int) error {
	var fe *FormatError
	if errors.As(err, &fe) {
		return &FormatError{Err: fe.Err, Offset: fe.Offset + offset, Detail: fe.Detail}
	}
	return &FormatError{Err: err, Offset: offset}
}

func formatErr(err error, offset int, format string, args ...any) error {
	return &FormatError{Err: err, Offset: offset, Detail: fmt.Sprintf(format, args...)}
}
