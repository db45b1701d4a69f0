package store

import (
	"context"
	"time"
)

const defaultSweepInterval = time.Second

// SweepExpired removes every key whose expiry has passed and returns how many
// were removed
func (s *Store) SweepExpired() int {
	m := s.m()
	now := s.nowMs()

	var stale []string
	m.Range(func(k string, it Item) bool {
		if it.expired(now) {
			stale = append(stale, k)
		}
		return true
	})

	removed := 0
	for _, k := range stale {
		deleted := false
		m.Compute(k, func(old Item, loaded bool) (Item, bool) {
			deleted = loaded && old.expired(now)
			return old, !loaded || deleted
		})
		if deleted {
			removed++
		}
	}
	s.expiredSwept.Add(int64(removed))
	return removed
}

// StartExpirySweeper runs SweepExpired every interval until ctx is done.
// The returned channel is closed once the sweeper has stopped.
func (s *Store) StartExpirySweeper(ctx context.Context, interval time.Duration) <-chan struct{} {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.SweepExpired(); n > 0 {
					s.log.WithField("removed", n).Debug("expired keys swept")
				}
			}
		}
	}()
	return done
}
