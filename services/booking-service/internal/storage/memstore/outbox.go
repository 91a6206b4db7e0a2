package memstore

import (
	"context"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/outbox"
)

var _ outbox.Store = (*Store)(nil)

// Claim serves the committed events in commit order. Claims run one at a time.
func (s *Store) Claim(_ context.Context, limit int, fn func([]outbox.Record) error) error {
	s.claimMu.Lock()
	defer s.claimMu.Unlock()

	s.mu.RLock()
	from := s.published
	to := min(len(s.events), from+limit)
	batch := make([]outbox.Record, 0, to-from)
	for i := from; i < to; i++ {
		batch = append(batch, outbox.Record{Seq: int64(i + 1), Event: s.events[i]})
	}
	s.mu.RUnlock()

	if len(batch) == 0 {
		return nil
	}
	if err := fn(batch); err != nil {
		return err
	}
	s.mu.Lock()
	s.published = to
	s.mu.Unlock()
	return nil
}

// Unpublished reports how many committed events have not been claimed successfully.
func (s *Store) Unpublished() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events) - s.published
}
