package rdb

import (
	"math"
	"strconv"
	"unicode/utf8"
)

// ScalarKind tags the variant held by a Scalar.
type ScalarKind uint8

const (
	Invalid ScalarKind = iota
	Text
	Int8
	Int16
	Int32
)

func (k ScalarKind) String() string {
	switch k {
	case Text:
		return "text"
	case Int8:
		return "int8"
	case Int16:
		return "int16"
	case Int32:
		return "int32"
	default:
		return "invalid"
	}
}

// Scalar is a decoded string-encoded value: either text or a compact integer.
type Scalar struct {
	Kind ScalarKind
	Text string
	Int  int64
}

// TextScalar returns a Text scalar.
func TextScalar(s string) Scalar {
	return Scalar{Kind: Text, Text: s}
}

// IsInt reports whether the scalar is one of the integer variants.
func (s Scalar) IsInt() bool {
	return s.Kind == Int8 || s.Kind == Int16 || s.Kind == Int32
}

// String renders the scalar the way the store sees it: text as-is, integers
// in decimal. Invalid scalars render as the empty string.
func (s Scalar) String() string {
	switch {
	case s.Kind == Text:
		return s.Text
	case s.IsInt():
		return strconv.FormatInt(s.Int, 10)
	default:
		return ""
	}
}

// DecodeScalar decodes one string-encoded value at buf[0]. It returns the
// scalar and the total number of bytes consumed, control byte included.
func DecodeScalar(buf []byte) (Scalar, int, error) {
	c, err := DecodeControl(buf)
	if err != nil {
		return Scalar{}, 0, err
	}

	if c.Class != Special {
		end := uint64(c.Consumed) + uint64(c.Length)
		if end > uint64(len(buf)) {
			return Scalar{}, 0, formatErr(ErrTruncatedFile, 0,
				"string of %d bytes, only %d available", c.Length, len(buf)-c.Consumed)
		}
		payload := buf[c.Consumed:end]
		if !utf8.Valid(payload) {
			return Scalar{}, 0, formatErr(ErrInvalidUTF8, c.Consumed, "%d byte string", c.Length)
		}
		// string() copies, so the scalar does not alias buf.
		return TextScalar(string(payload)), int(end), nil
	}

	width := c.Mode().Width()
	if len(buf) < c.Consumed+width {
		return Scalar{}, 0, formatErr(ErrTruncatedFile, 0,
			"%d byte integer, only %d available", width, len(buf)-c.Consumed)
	}
	p := buf[c.Consumed : c.Consumed+width]

	var s Scalar
	switch c.Mode() {
	case ModeInt8:
		s = Scalar{Kind: Int8, Int: int64(int8(p[0]))}
	case ModeInt16:
		s = Scalar{Kind: Int16, Int: int64(int16(leUint16(p)))}
	case ModeInt32:
		s = Scalar{Kind: Int32, Int: int64(int32(leUint32(p)))}
	}
	return s, c.Consumed + width, nil
}

// leUint16 and leUint32 accumulate little-endian bytes into fixed-width
// unsigned integers. Callers reinterpret the result as signed, so overflow of
// the top byte into the sign bit is intended.
func leUint16(p []byte) uint16 {
	var v uint16
	v = uint16(p[1])
	v = v<<8 + uint16(p[0])
	return v
}

func leUint32(p []byte) uint32 {
	var v uint32
	v = uint32(p[3])
	v = v<<8 + uint32(p[2])
	v = v<<8 + uint32(p[1])
	v = v<<8 + uint32(p[0])
	return v
}

// AppendString appends s as a string-encoded value. With compact set, strings
// that are the canonical decimal form of an int32 use the integer modes.
func AppendString(dst []byte, s string, compact bool) ([]byte, error) {
	if compact {
		if v, ok := compactInt(s); ok {
			return appendInt(dst, v), nil
		}
	}
	if uint64(len(s)) > math.MaxUint32 {
		return dst, ErrValueTooLarge
	}
	dst = AppendLength(dst, uint32(len(s)))
	return append(dst, s...), nil
}

// stringSize is the number of bytes AppendString writes for s.
func stringSize(s string, compact bool) int {
	if compact {
		if v, ok := compactInt(s); ok {
			return intSize(v)
		}
	}
	return lengthSize(uint32(len(s))) + len(s)
}

// compactInt reports whether s round-trips through an int32. Leading zeros,
// "+" signs and "-0" do not, so they stay text.
func compactInt(s string) (int64, bool) {
	if len(s) == 0 || len(s) > 11 {
		return 0, false
	}
	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil || strconv.FormatInt(v, 10) != s {
		return 0, false
	}
	return v, true
}

func intSize(v int64) int {
	switch {
	case v >= math.MinInt8 && v <= math.MaxInt8:
		return 2
	case v >= math.MinInt16 && v <= math.MaxInt16:
		return 3
	default:
		return 5
	}
}

func appendInt(dst []byte, v int64) []byte {
	switch {
	case v >= math.MinInt8 && v <= math.MaxInt8:
		return append(dst, byte(Special)<<6|byte(ModeInt8), byte(int8(v)))
	case v >= math.MinInt16 && v <= math.MaxInt16:
		u := uint16(int16(v))
		return append(dst, byte(Special)<<6|byte(ModeInt16), byte(u), byte(u>>8))
	default:
		u := uint32(int32(v))
		return append(dst, byte(Special)<<6|byte(ModeInt32), byte(u), byte(u>>8), byte(u>>16), byte(u>>24))
	}
}
