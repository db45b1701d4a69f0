package archive

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/segmentio/ksuid"
)

// ErrNotFound is returned when no archived snapshot has the requested id
var ErrNotFound = errors.New("archive: snapshot not found")

// Info describes one archived snapshot
type Info struct {
	ID      ksuid.KSUID `json:"id"`
	Created time.Time   `json:"created"`
	Size    int         `json:"size"`
}

// Archive keeps past snapshots in a pebble database keyed by KSUID, so
// iteration order is creation order.
type Archive struct {
	db *pebble.DB
}

// Open opens or creates the archive at path
func Open(path string) (*Archive, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open archive %s: %w", path, err)
	}
	return &Archive{db: db}, nil
}

// Put stores a snapshot and returns its id
func (a *Archive) Put(data []byte) (ksuid.KSUID, error) {
	return a.PutAt(time.Now(), data)
}

// PutAt stores a snapshot under an id minted for the given time
func (a *Archive) PutAt(at time.Time, data []byte) (ksuid.KSUID, error) {
	id, err := ksuid.NewRandomWithTime(at)
	if err != nil {
		return ksuid.Nil, fmt.Errorf("failed to mint archive id: %w", err)
	}
	if err := a.db.Set(id.Bytes(), data, pebble.Sync); err != nil {
		return ksuid.Nil, fmt.Errorf("failed to archive snapshot: %w", err)
	}
	return id, nil
}

// Get returns a copy of the archived snapshot
func (a *Archive) Get(id ksuid.KSUID) ([]byte, error) {
	data, closer, err := a.db.Get(id.Bytes())
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	// data is only valid until closer is closed
	return bytes.Clone(data), nil
}

// Delete removes an archived snapshot
func (a *Archive) Delete(id ksuid.KSUID) error {
	if _, err := a.Get(id); err != nil {
		return err
	}
	return a.db.Delete(id.Bytes(), pebble.Sync)
}

// List returns every archived snapshot, oldest first
func (a *Archive) List() ([]Info, error) {
	it, err := a.db.NewIter(nil)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var infos []Info
	for it.First(); it.Valid(); it.Next() {
		info, err := infoFor(it.Key(), it.Value())
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, it.Error()
}

// Latest returns the newest archived snapshot
func (a *Archive) Latest() (Info, []byte, error) {
	it, err := a.db.NewIter(nil)
	if err != nil {
		return Info{}, nil, err
	}
	defer it.Close()

	if !it.Last() {
		if err := it.Error(); err != nil {
			return Info{}, nil, err
		}
		return Info{}, nil, ErrNotFound
	}
	info, err := infoFor(it.Key(), it.Value())
	if err != nil {
		return Info{}, nil, err
	}
	return info, bytes.Clone(it.Value()), nil
}

// Prune deletes all but the newest keep snapshots and returns how many were removed
func (a *Archive) Prune(keep int) (int, error) {
	infos, err := a.List()
	if err != nil {
		return 0, err
	}
	if keep < 0 {
		keep = 0
	}
	if len(infos) <= keep {
		return 0, nil
	}

	b := a.db.NewBatch()
	defer b.Close()
	stale := infos[:len(infos)-keep]
	for _, info := range stale {
		if err := b.Delete(info.ID.Bytes(), nil); err != nil {
			return 0, err
		}
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return 0, err
	}
	return len(stale), nil
}

func (a *Archive) Close() error {
	return a.db.Close()
}

func infoFor(key, value []byte) (Info, error) {
	id, err := ksuid.FromBytes(key)
	if err != nil {
		return Info{}, fmt.Errorf("corrupt archive key %x: %w", key, err)
	}
	return Info{ID: id, Created: id.Time(), Size: len(value)}, nil
}
