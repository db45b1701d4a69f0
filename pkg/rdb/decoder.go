package rdb

import (
	"bytes"
	"fmt"
	"time"
)

const (
	// Magic identifies an RDB file.
	Magic = "REDIS"
	// Version is the only format version accepted and written.
	Version = "0009"

	headerSize  = len(Magic) + len(Version)
	trailerSize = 8
)

// Entry is one live key/value pair with an optional expiry in Unix milliseconds.
type Entry struct {
	Key        string
	Value      string
	ExpireAtMs uint64
	HasExpiry  bool
}

// ExpireTime returns the expiry as a time.Time, and false if the entry
// does not expire.
func (e Entry) ExpireTime() (time.Time, bool) {
	if !e.HasExpiry {
		return time.Time{}, false
	}
	return time.UnixMilli(int64(e.ExpireAtMs)), true
}

// EntrySink receives decoded entries in file order.
type EntrySink interface {
	Put(e Entry) error
}

// SinkFunc adapts a function to an EntrySink.
type SinkFunc func(e Entry) error

// Put calls f(e).
func (f SinkFunc) Put(e Entry) error {
	return f(e)
}

// AuxField is an auxiliary metadata pair such as redis-ver or ctime.
type AuxField struct {
	Key   string
	Value string
}

// ResizeHint is the advisory table size pair of a resizedb record.
type ResizeHint struct {
	HashSize   uint32
	ExpireSize uint32
}

// DecodeResult describes a completed decode.
type DecodeResult struct {
	Entries     int          // entries forwarded to the sink
	WithExpiry  int          // of which carried an expiry
	Aux         []AuxField   // in file order
	ResizeHints []ResizeHint // in file order
	Databases   []uint32     // selectdb records seen
	BodySize    int          // bytes up to and including the EOF opcode

	// Trailer holds whatever follows the EOF opcode, normally an 8 byte
	// checksum. It is reported but never verified.
	Trailer []byte
}

// AuxValue returns the value of the first aux field named key.
func (r *DecodeResult) AuxValue(key string) (string, bool) {
	for _, f := range r.Aux {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}

// Decode validates the header of buf and forwards every entry to sink.
// It never retains buf, and a sink error aborts the decode.
func Decode(buf []byte, sink EntrySink) (*DecodeResult, error) {
	if err := checkHeader(buf); err != nil {
		return nil, err
	}

	res := &DecodeResult{}
	cursor := headerSize
	for {
		rec, n, err := ScanRecord(buf, cursor)
		if err != nil {
			return nil, err
		}

		switch rec.Kind {
		case KindEndOfFile:
			res.BodySize = cursor + n
			if rest := buf[cursor+n:]; len(rest) > 0 {
				res.Trailer = bytes.Clone(rest)
			}
			return res, nil
		case KindSelectDB:
			res.Databases = append(res.Databases, rec.DB)
		case KindResizeHint:
			res.ResizeHints = append(res.ResizeHints, ResizeHint{HashSize: rec.HashSize, ExpireSize: rec.ExpireSize})
		case KindAux:
			res.Aux = append(res.Aux, AuxField{Key: rec.Key.String(), Value: rec.Value.String()})
		case KindEntry:
			if err := sink.Put(rec.Entry()); err != nil {
				return nil, fmt.Errorf("rdb: sink rejected entry at offset %d: %w", cursor, err)
			}
			res.Entries++
			if rec.HasExpiry {
				res.WithExpiry++
			}
		}

		cursor += n
	}
}

// Scan walks every record of buf, including structural ones, and calls fn
// with each record and its offset. It stops after the EOF record.
func Scan(buf []byte, fn func(offset int, rec Record) error) error {
	if err := checkHeader(buf); err != nil {
		return err
	}

	for cursor := headerSize; ; {
		rec, n, err := ScanRecord(buf, cursor)
		if err != nil {
			return err
		}
		if err := fn(cursor, rec); err != nil {
			return err
		}
		if rec.Kind == KindEndOfFile {
			return nil
		}
		cursor += n
	}
}

func checkHeader(buf []byte) error {
	if len(buf) < len(Magic) || string(buf[:len(Magic)]) != Magic {
		n := min(len(buf), len(Magic))
		return formatErr(ErrBadMagic, 0, "got %q", buf[:n])
	}
	if len(buf) < headerSize || string(buf[len(Magic):headerSize]) != Version {
		return formatErr(ErrVersionMismatch, len(Magic), "got %q, want %q", buf[len(Magic):min(len(buf), headerSize)], Version)
	}
	return nil
}
