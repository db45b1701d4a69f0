package rdb_test

import (
	"errors"
	"fmt"
	"log"

	"github.com/ssargent/kvsnap/pkg/rdb"
)

// ExampleEncode writes a snapshot and reads it back.
func ExampleEncode() {
	entries := []rdb.Entry{
		{Key: "greeting", Value: "hello"},
		{Key: "counter", Value: "42"},
	}

	buf, err := rdb.Encode(rdb.Slice(entries), nil)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("header: %s\n", buf[:9])

	res, err := rdb.Decode(buf, rdb.SinkFunc(func(e rdb.Entry) error {
		fmt.Printf("%s=%s\n", e.Key, e.Value)
		return nil
	}))
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("entries: %d, trailer: %s\n", res.Entries, rdb.InspectTrailer(buf, res))

	// Output:
	// header: REDIS0009
	// greeting=hello
	// counter=42
	// entries: 2, trailer: ok
}

// ExampleDecode_errors shows how decode failures carry their offset.
func ExampleDecode_errors() {
	// the value of the only entry is LZF compressed
	buf := []byte("REDIS0009\x00\x01k\xC3")

	_, err := rdb.Decode(buf, rdb.SinkFunc(func(rdb.Entry) error { return nil }))
	fmt.Println(err)
	fmt.Println(errors.Is(err, rdb.ErrUnsupportedCompression))

	var fe *rdb.FormatError
	if errors.As(err, &fe) {
		fmt.Println("offset:", fe.Offset)
	}

	// Output:
	// rdb: unsupported compressed string at offset 12: control byte 0xC3
	// true
	// offset: 12
}
