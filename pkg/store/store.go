package store

import (
	"iter"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sirupsen/logrus"
	"github.com/ssargent/kvsnap/pkg/logging"
	"github.com/ssargent/kvsnap/pkg/rdb"
)

// Store is the live key/value map. All methods are safe for concurrent use.
//
// Expired keys are never returned. They are removed lazily on access, by
// the expiry sweeper, and when the store is snapshotted.
type Store struct {
	data atomic.Pointer[xsync.MapOf[string, Item]]

	log   logrus.FieldLogger
	clock func() time.Time

	expiredOnLoad atomic.Int64
	expiredSwept  atomic.Int64
	lastLoad      atomic.Int64 // unix nanos
	lastSave      atomic.Int64
}

// New creates an empty store
func New(opts Options) *Store {
	s := &Store{
		log:   opts.Logger,
		clock: opts.Clock,
	}
	if s.log == nil {
		s.log = logging.Discard()
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	s.data.Store(xsync.NewMapOf[string, Item]())
	return s
}

func (s *Store) m() *xsync.MapOf[string, Item] {
	return s.data.Load()
}

func (s *Store) nowMs() uint64 {
	return uint64(s.clock().UnixMilli())
}

// Set stores value under key with no expiry, replacing any previous value and TTL
func (s *Store) Set(key, value string) error {
	if key == "" {
		return ErrInvalidKey
	}
	s.m().Store(key, Item{Value: value})
	return nil
}

// SetWithExpiry stores value under key until the given time
func (s *Store) SetWithExpiry(key, value string, expireAt time.Time) error {
	if key == "" {
		return ErrInvalidKey
	}
	ms := expireAt.UnixMilli()
	if ms < 0 {
		ms = 0
	}
	s.m().Store(key, Item{Value: value, ExpireAtMs: uint64(ms), HasExpiry: true})
	return nil
}

// SetTTL stores value under key for ttl from now
func (s *Store) SetTTL(key, value string, ttl time.Duration) error {
	return s.SetWithExpiry(key, value, s.clock().Add(ttl))
}

// Get returns the value stored under key
func (s *Store) Get(key string) (string, error) {
	it, err := s.Lookup(key)
	if err != nil {
		return "", err
	}
	return it.Value, nil
}

// Lookup returns the item stored under key, including its expiry
func (s *Store) Lookup(key string) (Item, error) {
	m := s.m()
	it, ok := m.Load(key)
	if !ok {
		return Item{}, ErrKeyNotFound
	}

	now := s.nowMs()
	if it.expired(now) {
		// Only remove it if nobody replaced it in the meantime
		m.Compute(key, func(old Item, loaded bool) (Item, bool) {
			return old, !loaded || old.expired(now)
		})
		return Item{}, ErrKeyNotFound
	}
	return it, nil
}

// Delete removes key. It returns ErrKeyNotFound if key was absent or expired.
func (s *Store) Delete(key string) error {
	it, ok := s.m().LoadAndDelete(key)
	if !ok || it.expired(s.nowMs()) {
		return ErrKeyNotFound
	}
	return nil
}

// Incr adds one to the integer stored under key
func (s *Store) Incr(key string) (int64, error) {
	return s.IncrBy(key, 1)
}

// IncrBy adds delta to the integer stored under key. A missing key counts as
// zero. The key keeps its expiry.
func (s *Store) IncrBy(key string, delta int64) (int64, error) {
	if key == "" {
		return 0, ErrInvalidKey
	}

	now := s.nowMs()
	var (
		result int64
		opErr  error
	)
	s.m().Compute(key, func(old Item, loaded bool) (Item, bool) {
		if !loaded || old.expired(now) {
			old, loaded = Item{Value: "0"}, false
		}

		cur, err := strconv.ParseInt(old.Value, 10, 64)
		if err != nil {
			opErr = ErrNotInteger
			return old, false
		}
		if (delta > 0 && cur > math.MaxInt64-delta) || (delta < 0 && cur < math.MinInt64-delta) {
			opErr = ErrOverflow
			return old, !loaded
		}

		result = cur + delta
		old.Value = strconv.FormatInt(result, 10)
		return old, false
	})
	return result, opErr
}

// Keys returns the live keys starting with prefix, sorted
func (s *Store) Keys(prefix string) []string {
	now := s.nowMs()
	var keys []string
	s.m().Range(func(k string, it Item) bool {
		if strings.HasPrefix(k, prefix) && !it.expired(now) {
			keys = append(keys, k)
		}
		return true
	})
	sort.Strings(keys)
	return keys
}

// Len returns the number of stored keys, including expired keys not yet removed
func (s *Store) Len() int {
	return s.m().Size()
}

// Flush removes every key
func (s *Store) Flush() {
	s.m().Clear()
}

// Stats returns store statistics
func (s *Store) Stats() *Stats {
	now := s.nowMs()
	st := &Stats{
		ExpiredOnLoad: s.expiredOnLoad.Load(),
		ExpiredSwept:  s.expiredSwept.Load(),
	}
	s.m().Range(func(_ string, it Item) bool {
		if it.expired(now) {
			return true
		}
		st.Keys++
		if it.HasExpiry {
			st.KeysWithTTL++
		}
		return true
	})
	if ns := s.lastLoad.Load(); ns != 0 {
		st.LastLoad = time.Unix(0, ns)
	}
	if ns := s.lastSave.Load(); ns != 0 {
		st.LastSave = time.Unix(0, ns)
	}
	return st
}

// Put stores a decoded snapshot entry, so a Store can be handed to rdb.Decode
// directly. Entries that have already expired are dropped and counted.
// Later entries for the same key replace earlier ones.
func (s *Store) Put(e rdb.Entry) error {
	return putEntry(s.m(), e, s.nowMs(), &s.expiredOnLoad)
}

func putEntry(m *xsync.MapOf[string, Item], e rdb.Entry, nowMs uint64, expired *atomic.Int64) error {
	it := Item{Value: e.Value, ExpireAtMs: e.ExpireAtMs, HasExpiry: e.HasExpiry}
	if it.expired(nowMs) {
		expired.Add(1)
		// a stale duplicate must not resurrect an older value either
		m.Delete(e.Key)
		return nil
	}
	m.Store(e.Key, it)
	return nil
}

// Entries yields the live entries in key order, for rdb.Encode
func (s *Store) Entries() iter.Seq[rdb.Entry] {
	return func(yield func(rdb.Entry) bool) {
		m := s.m()
		now := s.nowMs()
		items := make(map[string]Item, m.Size())
		keys := make([]string, 0, m.Size())
		m.Range(func(k string, it Item) bool {
			if !it.expired(now) {
				items[k] = it
				keys = append(keys, k)
			}
			return true
		})
		sort.Strings(keys)

		for _, k := range keys {
			it := items[k]
			e := rdb.Entry{Key: k, Value: it.Value, ExpireAtMs: it.ExpireAtMs, HasExpiry: it.HasExpiry}
			if !yield(e) {
				return
			}
		}
	}
}
