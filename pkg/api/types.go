package api

import (
	"context"
	"time"

	"github.com/segmentio/ksuid"
	"github.com/ssargent/kvsnap/pkg/archive"
	"github.com/ssargent/kvsnap/pkg/store"
)

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ValueResponse is returned for a single key
type ValueResponse struct {
	Key   string `json:"key"`
	Value string `json:"value"`
	TTLMs *int64 `json:"ttl_ms,omitempty"`
}

// SnapshotResponse describes a snapshot written by the server
type SnapshotResponse struct {
	Path       string `json:"path"`
	Bytes      int    `json:"bytes"`
	Entries    int    `json:"entries"`
	Checksum   string `json:"checksum,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	ArchiveID  string `json:"archive_id,omitempty"`
}

// RestoreResponse describes a snapshot uploaded to the server
type RestoreResponse struct {
	Entries int    `json:"entries"`
	Expired int    `json:"expired"`
	Bytes   int    `json:"bytes"`
	Trailer string `json:"trailer"`
}

// ServerConfig holds configuration for the API server
type ServerConfig struct {
	Port           int
	Bind           string
	APIKey         string // empty disables authentication
	SnapshotPath   string
	Save           store.SaveOptions
	ArchiveOnSave  bool
	MaxUploadBytes int64         // PUT /snapshot and PUT /kv body limit, 0 uses the default
	StatsInterval  time.Duration // how often the key gauges are refreshed, 0 uses the default
}

// IKVStore defines the store operations the API needs
type IKVStore interface {
	Lookup(key string) (store.Item, error)
	Set(key, value string) error
	SetTTL(key, value string, ttl time.Duration) error
	Delete(key string) error
	IncrBy(key string, delta int64) (int64, error)
	Keys(prefix string) []string
	Stats() *store.Stats

	Save(ctx context.Context, path string, opts store.SaveOptions) (*store.SaveResult, error)
	Dump(opts store.SaveOptions) ([]byte, int, error)
	LoadBytes(ctx context.Context, buf []byte) (*store.LoadResult, error)
}

// Archiver keeps copies of saved snapshots
type Archiver interface {
	Put(data []byte) (ksuid.KSUID, error)
	List() ([]archive.Info, error)
}
