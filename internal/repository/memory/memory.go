// Package memory is a process-local quota store for development and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/jgivc/imgfetch/internal/entity"
)

// record pairs a quota record with its own lock, so updates for one
// identity key never serialize against other identities. Only the
// fetch-or-create of the record itself goes through the map lock.
type record struct {
	mu  sync.Mutex
	rec entity.QuotaRecord
}

type quotaRepository struct {
	mu   sync.Mutex
	recs map[string]*record
}

func NewQuotaRepository() *quotaRepository {
	return &quotaRepository{
		recs: make(map[string]*record),
	}
}

func (r *quotaRepository) Current(_ context.Context, key string, window time.Time) (uint64, error) {
	rec := r.record(key)

	rec.mu.Lock()
	defer rec.mu.Unlock()

	rec.rollover(window)

	return rec.rec.DailyCount, nil
}

func (r *quotaRepository) Add(_ context.Context, key string, window time.Time, n uint64) (uint64, error) {
	rec := r.record(key)

	rec.mu.Lock()
	defer rec.mu.Unlock()

	rec.rollover(window)
	rec.rec.DailyCount += n

	return rec.rec.DailyCount, nil
}

func (r *quotaRepository) record(key string) *record {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, exists := r.recs[key]
	if !exists {
		rec = &record{}
		r.recs[key] = rec
	}

	return rec
}

// rollover resets the counter if the record's window is on a prior day.
// Callers must hold the record lock.
func (rec *record) rollover(window time.Time) {
	window = entity.WindowStart(window)

	if !rec.rec.WindowStart.Equal(window) {
		rec.rec.DailyCount = 0
		rec.rec.WindowStart = window
	}
}
