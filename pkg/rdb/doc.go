// Package rdb reads and writes snapshots in the Redis RDB file layout.
//
// The codec is a pure transform over byte slices. Decode walks a buffer and
// hands every key/value entry to an EntrySink; Encode turns a sequence of
// entries back into the same layout. Neither function logs, locks or retains
// its input.
//
// # File Format
//
// A snapshot is a 9 byte header followed by records and an optional trailer:
//
//	"REDIS" "0009" [record...] 0xFF [checksum(8)]
//
// Records are introduced by an opcode byte:
//
//	0xFA  aux field        <string key> <string value>
//	0xFB  resize hint      <length hash size> <length expire size>
//	0xFC  expiry (ms)      <uint64 LE> <string key> <string value>
//	0xFD  expiry (s)       <uint32 LE> <string key> <string value>
//	0xFE  select database  <index byte>
//	0xFF  end of file
//
// Any other byte starts an entry without expiry and is its value type. Only
// type 0 (string) is supported. Such an entry is the type byte, a string key
// and a string value. Entries behind an expiry prefix have no type byte.
//
// # Length Encoding
//
// The top two bits of a control byte select the encoding class:
//
//	00xxxxxx                 6 bit length
//	01xxxxxx yyyyyyyy        14 bit length
//	10______ [4 bytes BE]    32 bit length
//	11xxxxxx                 special: 0 int8, 1 int16, 2 int32, 3 LZF
//
// Integer payloads are little-endian two's complement. LZF compressed strings
// are recognised and rejected with ErrUnsupportedCompression.
//
// # Limitations
//
// Only database 0 is supported; selecting any other database fails with
// ErrUnsupportedFeature. The checksum trailer is written by Encode but never
// verified by Decode. InspectTrailer can report on it.
//
// # Errors
//
// Decode failures are *FormatError values carrying the byte offset. They
// unwrap to the sentinel errors, so callers test with errors.Is:
//
//	if _, err := rdb.Decode(buf, sink); errors.Is(err, rdb.ErrTruncatedFile) {
//	    // partial file
//	}
package rdb
