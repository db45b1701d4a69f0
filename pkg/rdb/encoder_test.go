package rdb

import (
	"bytes"
	"encoding/binary"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_Layout(t *testing.T) {
	buf, err := Encode(Slice([]Entry{{Key: "foo", Value: "bar"}}), &EncoderOptions{DisableChecksum: true})
	require.NoError(t, err)

	want := snapshot(
		OpSelectDB, 0x00,
		OpResizeDB, 0x01, 0x00,
		0x00, 0x03, 'f', 'o', 'o', 0x03, 'b', 'a', 'r',
		OpEOF,
		0, 0, 0, 0, 0, 0, 0, 0,
	)
	assert.Equal(t, want, buf)
}

func TestEncode_ExpiryPrefix(t *testing.T) {
	buf, err := Encode(Slice([]Entry{
		{Key: "k", Value: "v", ExpireAtMs: 1000000, HasExpiry: true},
	}), &EncoderOptions{DisableChecksum: true})
	require.NoError(t, err)

	body := buf[headerSize+5:]
	assert.Equal(t, []byte{
		OpExpireTimeMs, 0x40, 0x42, 0x0F, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x01, 'k', 0x01, 'v',
		OpEOF,
	}, body[:14])
}

func TestEncode_RoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		entries []Entry
	}{
		{name: "empty", entries: nil},
		{name: "single", entries: []Entry{{Key: "foo", Value: "bar"}}},
		{name: "empty strings", entries: []Entry{{Key: "", Value: ""}}},
		{name: "unicode", entries: []Entry{{Key: "ключ", Value: "値 ✓"}}},
		{name: "numbers", entries: []Entry{
			{Key: "0", Value: "-1"},
			{Key: "127", Value: "-128"},
			{Key: "32767", Value: "-32768"},
			{Key: "2147483647", Value: "-2147483648"},
			{Key: "2147483648", Value: "007"},
			{Key: "-0", Value: "+1"},
		}},
		{name: "expiry", entries: []Entry{
			{Key: "a", Value: "1", ExpireAtMs: 1, HasExpiry: true},
			{Key: "b", Value: "2"},
			{Key: "c", Value: "3", ExpireAtMs: 1<<64 - 1, HasExpiry: true},
		}},
		{name: "large", entries: []Entry{
			{Key: strings.Repeat("k", 64), Value: strings.Repeat("v", 16384)},
			{Key: "big", Value: strings.Repeat("x", 100000)},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, opts := range []*EncoderOptions{nil, {DisableIntegerEncoding: true}, {DisableChecksum: true}} {
				buf, err := Encode(Slice(tt.entries), opts)
				require.NoError(t, err)

				var c collector
				res, err := Decode(buf, &c)
				require.NoError(t, err)

				if len(tt.entries) == 0 {
					assert.Empty(t, c.entries)
				} else {
					assert.Equal(t, tt.entries, c.entries)
				}
				assert.Equal(t, len(tt.entries), res.Entries)
				assert.Len(t, res.Trailer, trailerSize)
			}
		})
	}
}

func TestEncode_LengthClasses(t *testing.T) {
	// header(9) + selectdb(2) + resizedb(3) + type(1) + key "k"(2)
	const valueAt = 17

	for _, tc := range []struct {
		size   int
		header []byte
	}{
		{size: 10, header: []byte{0x0A}},
		{size: 1000, header: []byte{0x43, 0xE8}},
		{size: 100000, header: []byte{0x80, 0x00, 0x01, 0x86, 0xA0}},
	} {
		value := strings.Repeat("x", tc.size)
		buf, err := Encode(Slice([]Entry{{Key: "k", Value: value}}), nil)
		require.NoError(t, err)

		assert.Equal(t, tc.header, buf[valueAt:valueAt+len(tc.header)], "size %d", tc.size)

		var c collector
		_, err = Decode(buf, &c)
		require.NoError(t, err)
		assert.Equal(t, value, c.entries[0].Value)
	}
}

func TestEncode_IntegerCompaction(t *testing.T) {
	const valueAt = 17

	buf, err := Encode(Slice([]Entry{{Key: "k", Value: "100"}}), nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xC0, 0x64, OpEOF}, buf[valueAt:valueAt+3])

	buf, err = Encode(Slice([]Entry{{Key: "k", Value: "100"}}), &EncoderOptions{DisableIntegerEncoding: true})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x03, '1', '0', '0', OpEOF}, buf[valueAt:valueAt+5])

	var c collector
	_, err = Decode(buf, &c)
	require.NoError(t, err)
	assert.Equal(t, "100", c.entries[0].Value)
}

func TestEncode_ResizeHintCounts(t *testing.T) {
	buf, err := Encode(Slice([]Entry{
		{Key: "a", Value: "1", ExpireAtMs: 10, HasExpiry: true},
		{Key: "b", Value: "2"},
		{Key: "c", Value: "3", ExpireAtMs: 20, HasExpiry: true},
	}), nil)
	require.NoError(t, err)

	res, err := Decode(buf, &collector{})
	require.NoError(t, err)
	assert.Equal(t, []ResizeHint{{HashSize: 3, ExpireSize: 2}}, res.ResizeHints)
	assert.Equal(t, []uint32{0}, res.Databases)
	assert.Equal(t, 2, res.WithExpiry)
}

func TestEncode_Aux(t *testing.T) {
	buf, err := Encode(Slice(nil), &EncoderOptions{Aux: []AuxField{
		{Key: "redis-ver", Value: "7.2.0"},
		{Key: "redis-bits", Value: "64"},
	}})
	require.NoError(t, err)

	res, err := Decode(buf, &collector{})
	require.NoError(t, err)
	assert.Equal(t, []AuxField{
		{Key: "redis-ver", Value: "7.2.0"},
		{Key: "redis-bits", Value: "64"},
	}, res.Aux)
}

func TestEncode_Trailer(t *testing.T) {
	entries := []Entry{{Key: "foo", Value: "bar"}}

	buf, err := Encode(Slice(entries), nil)
	require.NoError(t, err)
	res, err := Decode(buf, &collector{})
	require.NoError(t, err)
	assert.Equal(t, TrailerMatch, InspectTrailer(buf, res))
	assert.Equal(t, Checksum(buf[:res.BodySize]), binary.LittleEndian.Uint64(res.Trailer))

	// a corrupted body still decodes, the trailer is only reported
	corrupt := bytes.Clone(buf)
	corrupt[bytes.Index(corrupt, []byte("bar"))] = 'c'
	var c collector
	res, err = Decode(corrupt, &c)
	require.NoError(t, err)
	assert.Equal(t, "car", c.entries[0].Value)
	assert.Equal(t, TrailerMismatch, InspectTrailer(corrupt, res))

	buf, err = Encode(Slice(entries), &EncoderOptions{DisableChecksum: true})
	require.NoError(t, err)
	res, err = Decode(buf, &collector{})
	require.NoError(t, err)
	assert.Equal(t, TrailerDisabled, InspectTrailer(buf, res))

	res, err = Decode(buf[:res.BodySize], &collector{})
	require.NoError(t, err)
	assert.Equal(t, TrailerMissing, InspectTrailer(buf, res))
}

func TestEncode_FromSequence(t *testing.T) {
	seq := func(yield func(Entry) bool) {
		for _, k := range []string{"a", "b", "c"} {
			if !yield(Entry{Key: k, Value: k}) {
				return
			}
		}
	}

	buf, err := Encode(seq, nil)
	require.NoError(t, err)

	var c collector
	_, err = Decode(buf, &c)
	require.NoError(t, err)
	assert.Len(t, c.entries, 3)
}

func TestEncodeTo(t *testing.T) {
	entries := []Entry{{Key: "foo", Value: "bar"}, {Key: "n", Value: "42"}}

	want, err := Encode(Slice(entries), nil)
	require.NoError(t, err)

	var out bytes.Buffer
	n, err := EncodeTo(&out, Slice(entries), nil)
	require.NoError(t, err)
	assert.Equal(t, len(want), n)
	assert.Equal(t, want, out.Bytes())
}

func TestChecksum(t *testing.T) {
	assert.Equal(t, uint64(0xe9c6d914c4b8d9ca), Checksum([]byte("123456789")))
	assert.Zero(t, Checksum(nil))
}

func TestTrailerStatus_String(t *testing.T) {
	assert.Equal(t, "missing", TrailerMissing.String())
	assert.Equal(t, "disabled", TrailerDisabled.String())
	assert.Equal(t, "ok", TrailerMatch.String())
	assert.Equal(t, "mismatch", TrailerMismatch.String())
}

func TestEncode_CapacityMatchesCompactedSize(t *testing.T) {
	var entries []Entry
	for i := 0; i < 1000; i++ {
		entries = append(entries, Entry{Key: strconv.Itoa(100000 + i), Value: strconv.Itoa(i)})
	}
	entries[0].ExpireAtMs, entries[0].HasExpiry = 1000, true

	buf, err := Encode(Slice(entries), nil)
	require.NoError(t, err)
	assert.Less(t, cap(buf)-len(buf), 16)
}
