package rdb

import (
	"encoding/binary"
	"hash/crc64"
)

// jonesPoly is the bit-reversed form of the CRC-64/Jones polynomial
// 0xad93d23594c935a9 used for RDB trailers.
const jonesPoly = 0x95ac9329ac4bc9b5

var jonesTable = crc64.MakeTable(jonesPoly)

// Checksum returns the CRC-64/Jones of p with a zero initial value and no
// final inversion. hash/crc64 inverts on the way in and out, so both
// inversions are undone here.
func Checksum(p []byte) uint64 {
	return ^crc64.Update(^uint64(0), jonesTable, p)
}

// TrailerStatus classifies the bytes following the EOF opcode.
type TrailerStatus uint8

const (
	TrailerMissing  TrailerStatus = iota // nothing after EOF
	TrailerDisabled                      // eight zero bytes
	TrailerMatch                         // checksum of the body
	TrailerMismatch                      // anything else
)

func (s TrailerStatus) String() string {
	switch s {
	case TrailerMissing:
		return "missing"
	case TrailerDisabled:
		return "disabled"
	case TrailerMatch:
		return "ok"
	default:
		return "mismatch"
	}
}

// InspectTrailer compares the trailer of a decoded buffer against its body.
// Decode never calls this, it exists for tooling that wants to report on it.
func InspectTrailer(buf []byte, res *DecodeResult) TrailerStatus {
	if res == nil || len(res.Trailer) == 0 {
		return TrailerMissing
	}
	if len(res.Trailer) != trailerSize {
		return TrailerMismatch
	}
	got := binary.LittleEndian.Uint64(res.Trailer)
	switch {
	case got == 0:
		return TrailerDisabled
	case got == Checksum(buf[:res.BodySize]):
		return TrailerMatch
	default:
		return TrailerMismatch
	}
}
