// Package httpfetch resolves a url through an ordered chain of fetch
// strategies: a direct GET first, then each configured relay wrapping the
// original url. Many image hosts reject direct bot-like requests that a
// relay recovers, so the chain trades extra attempts for availability.
package httpfetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/jgivc/imgfetch/internal/common"
	"github.com/jgivc/imgfetch/internal/config"
	"github.com/jgivc/imgfetch/internal/entity"
)

const mimeTypeUnknown = "application/octet-stream"

type FetchChain struct {
	client    *http.Client
	relays    []string
	timeout   time.Duration
	maxBody   int64
	userAgent string
	log       *slog.Logger
}

func NewFetchChain(cfg *config.FetchConfig, log *slog.Logger) *FetchChain {
	maxRedirects := cfg.MaxRedirects

	return &FetchChain{
		client: &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}

				return nil
			},
		},
		relays:    cfg.Relays,
		timeout:   time.Duration(cfg.TimeoutSeconds) * time.Second,
		maxBody:   cfg.MaxBodyBytes,
		userAgent: cfg.UserAgent,
		log:       log.With(slog.String("item", "FetchChain")),
	}
}

// Fetch tries the direct strategy and then every relay in order, returning
// the first acceptable response. The chain keeps no per-url memory: the next
// url starts from the direct strategy again.
func (f *FetchChain) Fetch(ctx context.Context, rawURL string) (*entity.RawResponse, error) {
	log := f.log.With(slog.String("url", rawURL))

	resp, err := f.attempt(ctx, rawURL)
	if err == nil {
		return resp, nil
	}

	log.Debug("Direct strategy failed", slog.Any("error", err))
	lastErr := err

	for i, relay := range f.relays {
		resp, err := f.attempt(ctx, relay+url.QueryEscape(rawURL))
		if err == nil {
			log.Debug("Relay strategy succeeded", slog.Int("relay", i))

			resp.FinalURL = rawURL

			return resp, nil
		}

		log.Debug("Relay strategy failed", slog.Int("relay", i), slog.Any("error", err))
		lastErr = err
	}

	return nil, fmt.Errorf("%w: %w", common.ErrAllStrategiesFailed, lastErr)
}

func (f *FetchChain) attempt(ctx context.Context, fetchURL string) (*entity.RawResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("cannot create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("unacceptable status %d", resp.StatusCode)
	}

	// Read one byte past the cap so overflow is detected, never truncated.
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("cannot read body: %w", err)
	}

	if int64(len(body)) > f.maxBody {
		return nil, fmt.Errorf("%w: more than %d bytes", common.ErrBodyTooLargeError, f.maxBody)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = mimeTypeUnknown
	}

	return &entity.RawResponse{
		Body:        body,
		ContentType: contentType,
		FinalURL:    resp.Request.URL.String(),
	}, nil
}
