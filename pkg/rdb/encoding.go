package rdb

import (
	"encoding/binary"
	"fmt"
)

// EncodingClass is selected by the top two bits of a control byte.
type EncodingClass uint8

const (
	Len6    EncodingClass = 0 // 00xxxxxx
	Len14   EncodingClass = 1 // 01xxxxxx + 1 byte
	Len32   EncodingClass = 2 // 10xxxxxx + 4 bytes big-endian
	Special EncodingClass = 3 // 11xxxxxx, low bits carry a SpecialMode
)

func (c EncodingClass) String() string {
	switch c {
	case Len6:
		return "len6"
	case Len14:
		return "len14"
	case Len32:
		return "len32"
	case Special:
		return "special"
	default:
		return fmt.Sprintf("class(%d)", uint8(c))
	}
}

// SpecialMode is the low six bits of a Special control byte.
type SpecialMode uint8

const (
	ModeInt8  SpecialMode = 0
	ModeInt16 SpecialMode = 1
	ModeInt32 SpecialMode = 2
	ModeLZF   SpecialMode = 3
)

// Width returns the payload size of an integer mode, or 0 for other modes.
func (m SpecialMode) Width() int {
	switch m {
	case ModeInt8:
		return 1
	case ModeInt16:
		return 2
	case ModeInt32:
		return 4
	default:
		return 0
	}
}

const (
	maxLen6  = 1<<6 - 1
	maxLen14 = 1<<14 - 1
)

// Control is a decoded control byte plus its trailing length bytes.
type Control struct {
	Class    EncodingClass
	Consumed int    // header bytes: 1, 2 or 5
	Length   uint32 // payload length, or the SpecialMode when Class == Special
}

// Mode returns the special mode carried by a Special control.
func (c Control) Mode() SpecialMode {
	return SpecialMode(c.Length)
}

// DecodeControl decodes the control byte at buf[0] and any length bytes that
// follow it. Special controls with the LZF mode or an unknown mode fail closed.
func DecodeControl(buf []byte) (Control, error) {
	if len(buf) < 1 {
		return Control{}, formatErr(ErrTruncatedFile, 0, "missing control byte")
	}

	b := buf[0]
	switch class := EncodingClass(b >> 6); class {
	case Len6:
		return Control{Class: Len6, Consumed: 1, Length: uint32(b & 0x3F)}, nil
	case Len14:
		if len(buf) < 2 {
			return Control{}, formatErr(ErrTruncatedFile, 0, "14-bit length needs 2 bytes, have %d", len(buf))
		}
		return Control{Class: Len14, Consumed: 2, Length: uint32(b&0x3F)<<8 | uint32(buf[1])}, nil
	case Len32:
		// The low six bits of the first byte are padding.
		if len(buf) < 5 {
			return Control{}, formatErr(ErrTruncatedFile, 0, "32-bit length needs 5 bytes, have %d", len(buf))
		}
		return Control{Class: Len32, Consumed: 5, Length: binary.BigEndian.Uint32(buf[1:5])}, nil
	default:
		mode := SpecialMode(b & 0x3F)
		switch mode {
		case ModeInt8, ModeInt16, ModeInt32:
			return Control{Class: Special, Consumed: 1, Length: uint32(mode)}, nil
		case ModeLZF:
			return Control{}, formatErr(ErrUnsupportedCompression, 0, "control byte 0x%02X", b)
		default:
			return Control{}, formatErr(ErrUnsupportedEncoding, 0, "special mode %d", mode)
		}
	}
}

// DecodeLength decodes a plain length. Special controls are not lengths and
// are rejected as unsupported encodings.
func DecodeLength(buf []byte) (uint32, int, error) {
	c, err := DecodeControl(buf)
	if err != nil {
		return 0, 0, err
	}
	if c.Class == Special {
		return 0, 0, formatErr(ErrUnsupportedEncoding, 0, "expected a length, got special mode %d", c.Mode())
	}
	return c.Length, c.Consumed, nil
}

// AppendLength appends n using the shortest length class that holds it.
func AppendLength(dst []byte, n uint32) []byte {
	switch {
	case n <= maxLen6:
		return append(dst, byte(n))
	case n <= maxLen14:
		return append(dst, byte(Len14)<<6|byte(n>>8), byte(n))
	default:
		dst = append(dst, byte(Len32)<<6)
		return binary.BigEndian.AppendUint32(dst, n)
	}
}

// lengthSize returns how many bytes AppendLength writes for n.
func lengthSize(n uint32) int {
	switch {
	case n <= maxLen6:
		return 1
	case n <= maxLen14:
		return 2
	default:
		return 5
	}
}
