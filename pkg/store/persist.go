package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sirupsen/logrus"
	"github.com/ssargent/kvsnap/pkg/rdb"
)

// stagingSink collects decoded entries into a map that is not yet visible
type stagingSink struct {
	m       *xsync.MapOf[string, Item]
	nowMs   uint64
	expired atomic.Int64
}

func (st *stagingSink) Put(e rdb.Entry) error {
	return putEntry(st.m, e, st.nowMs, &st.expired)
}

// Load replaces the contents of the store with the snapshot at path.
// A missing file leaves the store empty. On any other error the store is
// unchanged.
func (s *Store) Load(ctx context.Context, path string) (*LoadResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	data, release, err := readSnapshot(path)
	if errors.Is(err, fs.ErrNotExist) {
		s.data.Store(xsync.NewMapOf[string, Item]())
		s.lastLoad.Store(s.clock().UnixNano())
		s.log.WithField("path", path).Info("no snapshot found, starting empty")
		return &LoadResult{Path: path, Missing: true, Duration: time.Since(start)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", path, err)
	}
	defer func() {
		if err := release(); err != nil {
			s.log.WithError(err).WithField("path", path).Warn("failed to release snapshot mapping")
		}
	}()

	res, err := s.load(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot %s: %w", path, err)
	}
	res.Path = path
	res.Duration = time.Since(start)

	s.log.WithFields(logrus.Fields{
		"path":     path,
		"entries":  res.Entries,
		"expired":  res.Expired,
		"bytes":    res.Bytes,
		"trailer":  res.Trailer.String(),
		"duration": res.Duration,
	}).Info("snapshot loaded")
	return res, nil
}

// LoadBytes replaces the contents of the store with the snapshot in buf.
// On error the store is unchanged.
func (s *Store) LoadBytes(ctx context.Context, buf []byte) (*LoadResult, error) {
	start := time.Now()
	res, err := s.load(ctx, buf)
	if err != nil {
		return nil, err
	}
	res.Duration = time.Since(start)
	return res, nil
}

func (s *Store) load(ctx context.Context, buf []byte) (*LoadResult, error) {
	sink := &stagingSink{m: xsync.NewMapOf[string, Item](), nowMs: s.nowMs()}

	dec, err := rdb.Decode(buf, sink)
	if err != nil {
		return nil, err
	}
	// The decode cannot be interrupted, so a cancelled load is discarded whole
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.data.Store(sink.m)
	expired := sink.expired.Load()
	s.expiredOnLoad.Add(expired)
	s.lastLoad.Store(s.clock().UnixNano())

	return &LoadResult{
		Bytes:   len(buf),
		Entries: sink.m.Size(),
		Expired: int(expired),
		Aux:     dec.Aux,
		Trailer: rdb.InspectTrailer(buf, dec),
	}, nil
}

// Dump encodes the live entries as a snapshot
func (s *Store) Dump(opts SaveOptions) ([]byte, int, error) {
	aux := append(s.defaultAux(), opts.Aux...)

	count := 0
	entries := s.Entries()
	counted := func(yield func(rdb.Entry) bool) {
		for e := range entries {
			count++
			if !yield(e) {
				return
			}
		}
	}

	buf, err := rdb.Encode(counted, &rdb.EncoderOptions{
		Aux:                    aux,
		DisableChecksum:        opts.DisableChecksum,
		DisableIntegerEncoding: opts.DisableIntegerEncoding,
	})
	if err != nil {
		return nil, 0, err
	}
	return buf, count, nil
}

func (s *Store) defaultAux() []rdb.AuxField {
	return []rdb.AuxField{
		{Key: "redis-bits", Value: strconv.Itoa(strconv.IntSize)},
		{Key: "ctime", Value: strconv.FormatInt(s.clock().Unix(), 10)},
	}
}

// Save writes a snapshot of the store to path. The file is replaced atomically:
// the snapshot is written to a temporary file in the same directory, synced,
// then renamed over path.
func (s *Store) Save(ctx context.Context, path string, opts SaveOptions) (*SaveResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	buf, count, err := s.Dump(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := writeFileAtomic(path, buf); err != nil {
		return nil, err
	}

	s.lastSave.Store(s.clock().UnixNano())
	res := &SaveResult{
		Path:     path,
		Bytes:    len(buf),
		Entries:  count,
		Checksum: rdb.Checksum(buf[:len(buf)-8]),
		Duration: time.Since(start),
	}
	if opts.DisableChecksum {
		res.Checksum = 0
	}

	s.log.WithFields(logrus.Fields{
		"path":     path,
		"entries":  res.Entries,
		"bytes":    res.Bytes,
		"duration": res.Duration,
	}).Info("snapshot saved")
	return res, nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary snapshot: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("failed to sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to set snapshot permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}
