//go:build fuzz
// +build fuzz

package rdb

import (
	"errors"
	"testing"
	"unicode/utf8"
)

// FuzzDecode feeds arbitrary bytes to the decoder. It must never panic and
// every failure must unwrap to one of the package sentinels.
func FuzzDecode(f *testing.F) {
	f.Add([]byte("REDIS0009\xFF"))
	f.Add([]byte("REDIS0009\xFE\x00\xFB\x01\x01\x00\x03foo\x03bar\xFF"))
	f.Add([]byte("REDIS0009\xFD\xE8\x03\x00\x00\x01k\x01v\xFF"))
	f.Add([]byte("REDIS0009\x00\xC0\x64\xC2\x15\xCD\x5B\x07\xFF"))
	f.Add([]byte("REDIS0009\x00\x01k\xC3"))

	sentinels := []error{
		ErrBadMagic, ErrVersionMismatch, ErrTruncatedFile, ErrInvalidUTF8,
		ErrUnsupportedEncoding, ErrUnsupportedCompression, ErrUnsupportedFeature,
		ErrUnsupportedValueType,
	}

	f.Fuzz(func(t *testing.T, data []byte) {
		res, err := Decode(data, SinkFunc(func(e Entry) error {
			if !utf8.ValidString(e.Key) || !utf8.ValidString(e.Value) {
				t.Fatalf("decoded invalid utf-8: %q=%q", e.Key, e.Value)
			}
			return nil
		}))
		if err == nil {
			if res.BodySize > len(data) {
				t.Fatalf("body size %d beyond input %d", res.BodySize, len(data))
			}
			return
		}
		for _, s := range sentinels {
			if errors.Is(err, s) {
				return
			}
		}
		t.Fatalf("unexpected error: %v", err)
	})
}

// FuzzRoundTrip checks that anything Encode writes, Decode reads back.
func FuzzRoundTrip(f *testing.F) {
	f.Add("key", "value", uint64(0), false)
	f.Add("100", "-1", uint64(1700000000000), true)
	f.Add("", "", uint64(1<<63), true)
	f.Add("0100", "2147483648", uint64(0), false)

	f.Fuzz(func(t *testing.T, key, value string, expireAt uint64, hasExpiry bool) {
		if !utf8.ValidString(key) || !utf8.ValidString(value) {
			t.Skip("encoder input must be utf-8")
		}
		if !hasExpiry {
			expireAt = 0
		}
		in := Entry{Key: key, Value: value, ExpireAtMs: expireAt, HasExpiry: hasExpiry}

		buf, err := Encode(Slice([]Entry{in}), nil)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}

		var got []Entry
		res, err := Decode(buf, SinkFunc(func(e Entry) error {
			got = append(got, e)
			return nil
		}))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(got) != 1 || got[0] != in {
			t.Fatalf("round trip mismatch: in %+v out %+v", in, got)
		}
		if InspectTrailer(buf, res) != TrailerMatch {
			t.Fatalf("trailer mismatch")
		}
	})
}
