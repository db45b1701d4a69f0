package store

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/ssargent/kvsnap/pkg/rdb"
)

// Item is the value stored under a key
type Item struct {
	Value      string
	ExpireAtMs uint64 // Unix milliseconds, valid when HasExpiry
	HasExpiry  bool
}

// expired reports whether the item is past its expiry at nowMs
func (it Item) expired(nowMs uint64) bool {
	return it.HasExpiry && it.ExpireAtMs <= nowMs
}

// TTL returns the time left before the item expires, and false if it never does
func (it Item) TTL(now time.Time) (time.Duration, bool) {
	if !it.HasExpiry {
		return 0, false
	}
	left := time.Duration(int64(it.ExpireAtMs)-now.UnixMilli()) * time.Millisecond
	if left < 0 {
		left = 0
	}
	return left, true
}

// Options holds configuration for the store
type Options struct {
	Logger logrus.FieldLogger // nil discards
	Clock  func() time.Time   // nil uses time.Now
}

// SaveOptions controls how a snapshot is written
type SaveOptions struct {
	DisableChecksum        bool
	DisableIntegerEncoding bool
	Aux                    []rdb.AuxField // written after the default aux fields
}

// LoadResult describes a completed snapshot load
type LoadResult struct {
	Path     string
	Missing  bool // no file, the store was reset to empty
	Bytes    int
	Entries  int // entries now live in the store
	Expired  int // entries skipped because they had already expired
	Aux      []rdb.AuxField
	Trailer  rdb.TrailerStatus
	Duration time.Duration
}

// SaveResult describes a completed snapshot save
type SaveResult struct {
	Path     string
	Bytes    int
	Entries  int
	Checksum uint64
	Duration time.Duration
}

// Stats holds statistics about the store
type Stats struct {
	Keys          int       `json:"keys"`
	KeysWithTTL   int       `json:"keys_with_ttl"`
	ExpiredOnLoad int64     `json:"expired_on_load"`
	ExpiredSwept  int64     `json:"expired_swept"`
	LastLoad      time.Time `json:"last_load,omitempty"`
	LastSave      time.Time `json:"last_save,omitempty"`
}

// Errors
var (
	ErrKeyNotFound = &KVError{"key not found"}
	ErrInvalidKey  = &KVError{"invalid key"}
	ErrNotInteger  = &KVError{"value is not an integer or out of range"}
	ErrOverflow    = &KVError{"increment or decrement would overflow"}
)

// KVError represents a key-value store error
type KVError struct {
	Message string
}

func (e *KVError) Error() string {
	return e.Message
}
