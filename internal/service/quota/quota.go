package quota

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jgivc/imgfetch/internal/config"
	"github.com/jgivc/imgfetch/internal/entity"
)

const serviceName = "quota"

// QuotaRepository stores one daily counter per identity key. Both methods
// must apply the day rollover before touching the counter, and Add must be
// atomic per key: concurrent batches for one identity may not lose updates.
type QuotaRepository interface {
	Current(ctx context.Context, key string, window time.Time) (uint64, error)
	Add(ctx context.Context, key string, window time.Time, n uint64) (uint64, error)
}

type ledgerService struct {
	repo   QuotaRepository
	limits map[string]int64
	now    func() time.Time
	log    *slog.Logger
}

func NewLedgerService(repo QuotaRepository, cfg *config.QuotaConfig, log *slog.Logger) *ledgerService {
	return &ledgerService{
		repo:   repo,
		limits: cfg.DailyLimits,
		now:    time.Now,
		log:    log.With(slog.String("service", serviceName)),
	}
}

// Check evaluates whether requested more downloads fit into the identity's
// current day window. It never adds requested to the ledger; requested = 0
// is a pure status probe.
func (s *ledgerService) Check(ctx context.Context, identity entity.Identity, requested int) (entity.QuotaStatus, error) {
	limit := s.limit(identity)
	window := entity.WindowStart(s.now())

	count, err := s.repo.Current(ctx, identity.Key(), window)
	if err != nil {
		s.log.Error("Cannot read ledger", slog.String("key", identity.Key()), slog.Any("error", err))

		return entity.QuotaStatus{}, fmt.Errorf("cannot read quota ledger: %w", err)
	}

	current := int64(count)

	if limit == entity.LimitUnbounded {
		return entity.QuotaStatus{
			Allowed:   true,
			Current:   current,
			Remaining: entity.LimitUnbounded,
			Limit:     entity.LimitUnbounded,
		}, nil
	}

	remaining := limit - current
	if remaining < 0 {
		remaining = 0
	}

	// A zero-count probe is always allowed, even when unreserved commits
	// from concurrent batches have pushed the counter past the limit.
	return entity.QuotaStatus{
		Allowed:   requested <= 0 || current+int64(requested) <= limit,
		Current:   current,
		Remaining: remaining,
		Limit:     limit,
	}, nil
}

// Commit charges the ledger with the count of actually successful fetches.
// It must be called after the batch completes; failed fetches never consume
// quota, so successful can be less than the checked batch size.
func (s *ledgerService) Commit(ctx context.Context, identity entity.Identity, successful int) error {
	if successful < 1 {
		return nil
	}

	window := entity.WindowStart(s.now())

	count, err := s.repo.Add(ctx, identity.Key(), window, uint64(successful))
	if err != nil {
		s.log.Error("Cannot commit to ledger", slog.String("key", identity.Key()), slog.Any("error", err))

		return fmt.Errorf("cannot commit quota: %w", err)
	}

	s.log.Info("Quota committed",
		slog.String("key", identity.Key()),
		slog.Int("added", successful),
		slog.Uint64("daily_count", count))

	return nil
}

func (s *ledgerService) limit(identity entity.Identity) int64 {
	if limit, exists := s.limits[identity.Tier.String()]; exists {
		return limit
	}

	// Unknown tiers get the most restrictive schedule.
	return s.limits[entity.TierAnonymous.String()]
}
