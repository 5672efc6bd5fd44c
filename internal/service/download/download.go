package download

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jgivc/imgfetch/internal/common"
	"github.com/jgivc/imgfetch/internal/config"
	"github.com/jgivc/imgfetch/internal/entity"
	"github.com/jgivc/imgfetch/internal/imagetype"
)

const serviceName = "download"

type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*entity.RawResponse, error)
}

type QuotaLedger interface {
	Check(ctx context.Context, identity entity.Identity, requested int) (entity.QuotaStatus, error)
	Commit(ctx context.Context, identity entity.Identity, successful int) error
}

type Rasterizer interface {
	Rasterize(markup []byte) ([]byte, error)
}

// PayloadStore receives successful payloads for the packaging collaborator.
// Optional; store errors degrade to log entries, never to batch failures.
type PayloadStore interface {
	Store(ctx context.Context, batchID, filename string, payload []byte) error
}

type batchService struct {
	fetcher    Fetcher
	ledger     QuotaLedger
	rasterizer Rasterizer
	store      PayloadStore
	caps       map[string]int
	workers    int
	log        *slog.Logger
}

func NewBatchService(
	fetcher Fetcher,
	ledger QuotaLedger,
	rasterizer Rasterizer,
	store PayloadStore,
	cfg *config.Config,
	log *slog.Logger,
) *batchService {
	return &batchService{
		fetcher:    fetcher,
		ledger:     ledger,
		rasterizer: rasterizer,
		store:      store,
		caps:       cfg.Quota.RequestCaps,
		workers:    cfg.Workers,
		log:        log.With(slog.String("service", serviceName)),
	}
}

// Run processes one batch: request cap, quota check, bounded per-url
// pipeline, quota commit with the actual success count. Per-url failures are
// recovered into Failed outcomes; only the cap and quota rejections abort
// the whole batch.
func (s *batchService) Run(ctx context.Context, req *entity.DownloadRequest) (*entity.BatchResult, error) {
	if len(req.URLs) == 0 {
		return nil, common.ErrEmptyBatchError
	}

	batchID := uuid.NewString()
	log := s.log.With(slog.String("batch_id", batchID), slog.String("identity", req.Identity.Key()))

	if reqCap := s.requestCap(req.Identity); len(req.URLs) > reqCap {
		log.Info("Batch over request cap", slog.Int("urls", len(req.URLs)), slog.Int("cap", reqCap))

		return nil, &common.RequestTooLargeError{Cap: reqCap, Received: len(req.URLs)}
	}

	status, err := s.ledger.Check(ctx, req.Identity, len(req.URLs))
	if err != nil {
		return nil, fmt.Errorf("cannot check quota: %w", err)
	}

	if !status.Allowed {
		log.Info("Batch over quota",
			slog.Int("requested", len(req.URLs)),
			slog.Int64("remaining", status.Remaining))

		return nil, &common.QuotaExceededError{
			Current:   status.Current,
			Remaining: status.Remaining,
			Limit:     status.Limit,
			Requested: len(req.URLs),
		}
	}

	started := time.Now()
	results := make([]entity.FetchOutcome, len(req.URLs))

	g := &errgroup.Group{}
	g.SetLimit(s.workers)
	for i, rawURL := range req.URLs {
		i, rawURL := i, rawURL
		g.Go(func() error {
			results[i] = s.processURL(ctx, i, rawURL)

			return nil
		})
	}
	// Workers recover their own failures into outcomes, so Wait cannot fail.
	_ = g.Wait()

	successful := 0
	for _, res := range results {
		if res.Status == entity.StatusSuccess {
			successful++
		}
	}

	if err := s.ledger.Commit(ctx, req.Identity, successful); err != nil {
		return nil, fmt.Errorf("cannot commit quota: %w", err)
	}

	s.spool(ctx, batchID, results)

	log.Info("Batch done",
		slog.Int("total", len(results)),
		slog.Int("successful", successful),
		slog.Int("failed", len(results)-successful),
		slog.Duration("elapsed", time.Since(started)))

	return &entity.BatchResult{
		BatchID: batchID,
		Results: results,
		Summary: entity.Summary{
			Total:      len(results),
			Successful: successful,
			Failed:     len(results) - successful,
		},
	}, nil
}

func (s *batchService) processURL(ctx context.Context, idx int, rawURL string) entity.FetchOutcome {
	log := s.log.With(slog.String("url", rawURL))

	resp, err := s.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		log.Info("Fetch failed", slog.Any("error", err))

		return failedOutcome(rawURL, entity.ErrKindFetchFailed)
	}

	if len(resp.Body) == 0 {
		log.Info("Empty body")

		return failedOutcome(rawURL, entity.ErrKindEmptyContent)
	}

	mimeType, err := imagetype.Classify(resp.Body, resp.ContentType)
	if err != nil {
		log.Info("Not an image", slog.String("declared", resp.ContentType), slog.Any("error", err))

		return failedOutcome(rawURL, entity.ErrKindInvalidContent)
	}

	payload := resp.Body
	rasterized := false

	if mimeType == imagetype.MIMESVG {
		// Conversion failures fall back to the original markup so the url
		// still delivers something usable.
		if out, rerr := s.rasterizer.Rasterize(payload); rerr == nil {
			payload = out
			mimeType = imagetype.MIMEPNG
			rasterized = true
		} else {
			log.Warn("Rasterization failed, delivering original svg", slog.Any("error", rerr))
		}
	}

	return entity.FetchOutcome{
		URL:           rawURL,
		Status:        entity.StatusSuccess,
		Filename:      buildFilename(rawURL, idx, mimeType, rasterized),
		ByteSize:      len(payload),
		MIMEType:      mimeType,
		Payload:       payload,
		WasRasterized: rasterized,
	}
}

func (s *batchService) spool(ctx context.Context, batchID string, results []entity.FetchOutcome) {
	if s.store == nil {
		return
	}

	for _, res := range results {
		if res.Status != entity.StatusSuccess {
			continue
		}

		if err := s.store.Store(ctx, batchID, res.Filename, res.Payload); err != nil {
			s.log.Error("Cannot spool payload",
				slog.String("batch_id", batchID),
				slog.String("filename", res.Filename),
				slog.Any("error", err))
		}
	}
}

func (s *batchService) requestCap(identity entity.Identity) int {
	if reqCap, exists := s.caps[identity.Tier.String()]; exists {
		return reqCap
	}

	return s.caps[entity.TierAnonymous.String()]
}

func failedOutcome(rawURL, kind string) entity.FetchOutcome {
	return entity.FetchOutcome{
		URL:       rawURL,
		Status:    entity.StatusFailed,
		ErrorKind: kind,
	}
}
