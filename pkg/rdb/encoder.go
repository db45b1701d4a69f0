package rdb

import (
	"encoding/binary"
	"fmt"
	"io"
	"iter"
)

// EncoderOptions control how snapshots are written. The zero value writes
// integer-compacted strings and a CRC-64 trailer.
type EncoderOptions struct {
	// Aux fields are written after the header, in order.
	Aux []AuxField

	// DisableIntegerEncoding writes every string length-prefixed, even
	// when it is a decimal integer.
	DisableIntegerEncoding bool

	// DisableChecksum writes an all-zero trailer, which readers treat as
	// "checksum not computed".
	DisableChecksum bool
}

func (o *EncoderOptions) norm() *EncoderOptions {
	var oo EncoderOptions
	if o != nil {
		oo = *o
	}
	return &oo
}

// Encode serialises entries into a complete snapshot. Entries are written in
// the order the sequence yields them.
func Encode(entries iter.Seq[Entry], opts *EncoderOptions) ([]byte, error) {
	o := opts.norm()
	compact := !o.DisableIntegerEncoding

	var list []Entry
	var withExpiry uint32
	size := headerSize + 16
	for e := range entries {
		if uint64(len(e.Key)) > 1<<32-1 || uint64(len(e.Value)) > 1<<32-1 {
			return nil, fmt.Errorf("%w: entry %.32q", ErrValueTooLarge, e.Key)
		}
		if e.HasExpiry {
			withExpiry++
			size += 9
		} else {
			size++
		}
		size += stringSize(e.Key, compact) + stringSize(e.Value, compact)
		list = append(list, e)
	}
	if uint64(len(list)) > 1<<32-1 {
		return nil, fmt.Errorf("%w: %d entries", ErrValueTooLarge, len(list))
	}

	buf := make([]byte, 0, size+trailerSize)
	buf = append(buf, Magic...)
	buf = append(buf, Version...)

	var err error
	for _, f := range o.Aux {
		buf = append(buf, OpAux)
		if buf, err = AppendString(buf, f.Key, false); err != nil {
			return nil, err
		}
		if buf, err = AppendString(buf, f.Value, compact); err != nil {
			return nil, err
		}
	}

	buf = append(buf, OpSelectDB, 0)
	buf = append(buf, OpResizeDB)
	buf = AppendLength(buf, uint32(len(list)))
	buf = AppendLength(buf, withExpiry)

	for _, e := range list {
		if e.HasExpiry {
			buf = append(buf, OpExpireTimeMs)
			buf = binary.LittleEndian.AppendUint64(buf, e.ExpireAtMs)
		} else {
			buf = append(buf, TypeString)
		}
		if buf, err = AppendString(buf, e.Key, compact); err != nil {
			return nil, err
		}
		if buf, err = AppendString(buf, e.Value, compact); err != nil {
			return nil, err
		}
	}

	buf = append(buf, OpEOF)
	var sum uint64
	if !o.DisableChecksum {
		sum = Checksum(buf)
	}
	return binary.LittleEndian.AppendUint64(buf, sum), nil
}

// EncodeTo writes the snapshot of entries to w.
func EncodeTo(w io.Writer, entries iter.Seq[Entry], opts *EncoderOptions) (int, error) {
	buf, err := Encode(entries, opts)
	if err != nil {
		return 0, err
	}
	return w.Write(buf)
}

// Slice adapts a slice of entries to the sequence Encode expects.
func Slice(entries []Entry) iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		for _, e := range entries {
			if !yield(e) {
				return
			}
		}
	}
}
