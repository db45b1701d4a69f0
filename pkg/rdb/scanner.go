package rdb

import (
	"encoding/binary"
	"fmt"
)

// Opcode is a reserved byte that introduces a structural record.
type Opcode = byte

const (
	OpAux          Opcode = 0xFA
	OpResizeDB     Opcode = 0xFB
	OpExpireTimeMs Opcode = 0xFC
	OpExpireTime   Opcode = 0xFD
	OpSelectDB     Opcode = 0xFE
	OpEOF          Opcode = 0xFF
)

// TypeString is the only supported value-type tag.
const TypeString byte = 0x00

// RecordKind identifies the variant held by a Record.
type RecordKind uint8

const (
	KindEntry RecordKind = iota
	KindEndOfFile
	KindSelectDB
	KindResizeHint
	KindAux
)

func (k RecordKind) String() string {
	switch k {
	case KindEntry:
		return "entry"
	case KindEndOfFile:
		return "eof"
	case KindSelectDB:
		return "selectdb"
	case KindResizeHint:
		return "resizedb"
	case KindAux:
		return "aux"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Record is one parsed unit of the snapshot body. Which fields are set
// depends on Kind.
type Record struct {
	Kind RecordKind

	DB uint32 // KindSelectDB

	HashSize   uint32 // KindResizeHint
	ExpireSize uint32

	Key   Scalar // KindAux, KindEntry
	Value Scalar

	ExpireAtMs uint64 // KindEntry, valid when HasExpiry
	HasExpiry  bool
}

// Entry converts an entry record into the form handed to sinks.
func (r Record) Entry() Entry {
	return Entry{
		Key:        r.Key.String(),
		Value:      r.Value.String(),
		ExpireAtMs: r.ExpireAtMs,
		HasExpiry:  r.HasExpiry,
	}
}

// ScanRecord parses the record that starts at buf[cursor] and returns it with
// the number of bytes it occupies. The opcode set is matched before any byte
// is treated as a value-type tag. Error offsets are absolute within buf.
func ScanRecord(buf []byte, cursor int) (Record, int, error) {
	if cursor < 0 || cursor >= len(buf) {
		return Record{}, 0, formatErr(ErrTruncatedFile, cursor, "no record before end of buffer")
	}

	rec, n, err := scan(buf[cursor:])
	if err != nil {
		return Record{}, 0, atOffset(err, cursor)
	}
	return rec, n, nil
}

func scan(b []byte) (Record, int, error) {
	switch op := b[0]; op {
	case OpEOF:
		return Record{Kind: KindEndOfFile}, 1, nil

	case OpSelectDB:
		if len(b) < 2 {
			return Record{}, 0, formatErr(ErrTruncatedFile, 1, "missing database index")
		}
		if b[1] != 0 {
			return Record{}, 0, formatErr(ErrUnsupportedFeature, 1, "multi-db: database %d", b[1])
		}
		return Record{Kind: KindSelectDB}, 2, nil

	case OpExpireTime:
		if len(b) < 5 {
			return Record{}, 0, formatErr(ErrTruncatedFile, 1, "expiry needs 4 bytes, have %d", len(b)-1)
		}
		seconds := binary.LittleEndian.Uint32(b[1:5])
		return scanExpiring(b, 5, uint64(seconds)*1000)

	case OpExpireTimeMs:
		if len(b) < 9 {
			return Record{}, 0, formatErr(ErrTruncatedFile, 1, "expiry needs 8 bytes, have %d", len(b)-1)
		}
		return scanExpiring(b, 9, binary.LittleEndian.Uint64(b[1:9]))

	case OpResizeDB:
		hash, n1, err := DecodeLength(b[1:])
		if err != nil {
			return Record{}, 0, atOffset(err, 1)
		}
		expire, n2, err := DecodeLength(b[1+n1:])
		if err != nil {
			return Record{}, 0, atOffset(err, 1+n1)
		}
		return Record{Kind: KindResizeHint, HashSize: hash, ExpireSize: expire}, 1 + n1 + n2, nil

	case OpAux:
		key, value, n, err := scanPair(b[1:])
		if err != nil {
			return Record{}, 0, atOffset(err, 1)
		}
		return Record{Kind: KindAux, Key: key, Value: value}, 1 + n, nil

	default:
		return scanEntry(b)
	}
}

// scanEntry parses a value-type tag followed by a key and a value.
func scanEntry(b []byte) (Record, int, error) {
	if len(b) < 1 {
		return Record{}, 0, formatErr(ErrTruncatedFile, 0, "missing value type")
	}
	if b[0] != TypeString {
		return Record{}, 0, formatErr(ErrUnsupportedValueType, 0, "value type %d", b[0])
	}

	key, value, n, err := scanPair(b[1:])
	if err != nil {
		return Record{}, 0, atOffset(err, 1)
	}
	return Record{Kind: KindEntry, Key: key, Value: value}, 1 + n, nil
}

// scanExpiring parses the key and value that directly follow an expiry prefix
// of the given width. No value-type tag sits between them.
func scanExpiring(b []byte, prefix int, expireAtMs uint64) (Record, int, error) {
	key, value, n, err := scanPair(b[prefix:])
	if err != nil {
		return Record{}, 0, atOffset(err, prefix)
	}
	return Record{
		Kind:       KindEntry,
		Key:        key,
		Value:      value,
		ExpireAtMs: expireAtMs,
		HasExpiry:  true,
	}, prefix + n, nil
}

func scanPair(b []byte) (Scalar, Scalar, int, error) {
	key, n1, err := DecodeScalar(b)
	if err != nil {
		return Scalar{}, Scalar{}, 0, err
	}
	value, n2, err := DecodeScalar(b[n1:])
	if err != nil {
		return Scalar{}, Scalar{}, 0, atOffset(err, n1)
	}
	return key, value, n1 + n2, nil
}
