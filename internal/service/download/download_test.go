package download

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jgivc/imgfetch/internal/common"
	"github.com/jgivc/imgfetch/internal/config"
	"github.com/jgivc/imgfetch/internal/entity"
	"github.com/jgivc/imgfetch/internal/raster"
	"github.com/jgivc/imgfetch/internal/repository/memory"
	squota "github.com/jgivc/imgfetch/internal/service/quota"
)

type fakeFetcher struct {
	responses map[string]*entity.RawResponse
	calls     atomic.Int64
}

func (f *fakeFetcher) Fetch(_ context.Context, rawURL string) (*entity.RawResponse, error) {
	f.calls.Add(1)

	resp, exists := f.responses[rawURL]
	if !exists {
		return nil, fmt.Errorf("%w: no strategy left", common.ErrAllStrategiesFailed)
	}

	return resp, nil
}

func pngResponse() *entity.RawResponse {
	return &entity.RawResponse{
		Body:        append([]byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}, []byte("data")...),
		ContentType: "application/octet-stream",
	}
}

func svgResponse() *entity.RawResponse {
	return &entity.RawResponse{
		Body: []byte(`<svg xmlns="http://www.w3.org/2000/svg" width="4" height="4">` +
			`<rect width="4" height="4" fill="#00ff00"/></svg>`),
		ContentType: "text/plain",
	}
}

type testEnv struct {
	srv     *batchService
	fetcher *fakeFetcher
	ledger  QuotaLedger
}

func newTestEnv(t *testing.T, fetcher *fakeFetcher) *testEnv {
	t.Helper()

	cfg := &config.Config{}
	cfg.SetDefaults()
	cfg.Workers = 2

	log := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
	ledger := squota.NewLedgerService(memory.NewQuotaRepository(), &cfg.Quota, log)
	rasterizer := raster.NewRasterizer(800, 600, log)

	return &testEnv{
		srv:     NewBatchService(fetcher, ledger, rasterizer, nil, cfg, log),
		fetcher: fetcher,
		ledger:  ledger,
	}
}

func TestRunPreservesOrderAndSummary(t *testing.T) {
	urls := []string{
		"http://img.example/a.png",
		"http://img.example/missing.png",
		"http://img.example/c.png",
	}

	env := newTestEnv(t, &fakeFetcher{responses: map[string]*entity.RawResponse{
		urls[0]: pngResponse(),
		urls[2]: pngResponse(),
	}})

	res, err := env.srv.Run(context.Background(), &entity.DownloadRequest{
		URLs:     urls,
		Identity: entity.NewAnonymous("s1"),
	})
	require.NoError(t, err)

	require.Len(t, res.Results, len(urls))
	require.Equal(t, len(urls), res.Summary.Total)
	require.Equal(t, 2, res.Summary.Successful)
	require.Equal(t, 1, res.Summary.Failed)

	for i, out := range res.Results {
		require.Equal(t, urls[i], out.URL)
	}

	require.Equal(t, entity.StatusFailed, res.Results[1].Status)
	require.Equal(t, entity.ErrKindFetchFailed, res.Results[1].ErrorKind)
	require.Equal(t, "a.png", res.Results[0].Filename)
	require.Equal(t, "image/png", res.Results[0].MIMEType)
	require.False(t, res.Results[0].WasRasterized)
}

func TestRunCommitsOnlySuccessfulCount(t *testing.T) {
	urls := []string{"http://img.example/a.png", "http://img.example/gone.png"}

	env := newTestEnv(t, &fakeFetcher{responses: map[string]*entity.RawResponse{
		urls[0]: pngResponse(),
	}})

	identity := entity.NewAnonymous("s2")

	_, err := env.srv.Run(context.Background(), &entity.DownloadRequest{URLs: urls, Identity: identity})
	require.NoError(t, err)

	st, err := env.ledger.Check(context.Background(), identity, 0)
	require.NoError(t, err)
	require.EqualValues(t, 1, st.Current)
}

func TestRunQuotaExceededBeforeAnyFetch(t *testing.T) {
	env := newTestEnv(t, &fakeFetcher{})
	identity := entity.NewAnonymous("s3")

	require.NoError(t, env.ledger.Commit(context.Background(), identity, 4))

	_, err := env.srv.Run(context.Background(), &entity.DownloadRequest{
		URLs:     []string{"http://img.example/a.png", "http://img.example/b.png"},
		Identity: identity,
	})

	var qerr *common.QuotaExceededError
	require.ErrorAs(t, err, &qerr)
	require.EqualValues(t, 4, qerr.Current)
	require.EqualValues(t, 1, qerr.Remaining)
	require.EqualValues(t, 5, qerr.Limit)
	require.Equal(t, 2, qerr.Requested)

	require.EqualValues(t, 0, env.fetcher.calls.Load())
}

func TestRunRequestCapPerTier(t *testing.T) {
	env := newTestEnv(t, &fakeFetcher{})

	urls := make([]string, 6)
	for i := range urls {
		urls[i] = fmt.Sprintf("http://img.example/%d.png", i)
	}

	_, err := env.srv.Run(context.Background(), &entity.DownloadRequest{
		URLs:     urls,
		Identity: entity.NewAnonymous("s4"),
	})

	var terr *common.RequestTooLargeError
	require.ErrorAs(t, err, &terr)
	require.Equal(t, 5, terr.Cap)
	require.Equal(t, 6, terr.Received)
	require.EqualValues(t, 0, env.fetcher.calls.Load())

	// The same count fits under the registered tier cap.
	res, err := env.srv.Run(context.Background(), &entity.DownloadRequest{
		URLs:     urls,
		Identity: entity.NewRegistered("u1"),
	})
	require.NoError(t, err)
	require.Equal(t, 6, res.Summary.Total)
}

func TestRunEmptyBatch(t *testing.T) {
	env := newTestEnv(t, &fakeFetcher{})

	_, err := env.srv.Run(context.Background(), &entity.DownloadRequest{
		Identity: entity.NewAnonymous("s5"),
	})
	require.ErrorIs(t, err, common.ErrEmptyBatchError)
}

func TestRunEmptyBodyIsEmptyContent(t *testing.T) {
	u := "http://img.example/empty.png"

	env := newTestEnv(t, &fakeFetcher{responses: map[string]*entity.RawResponse{
		u: {Body: nil, ContentType: "image/png"},
	}})

	identity := entity.NewAnonymous("s6")

	res, err := env.srv.Run(context.Background(), &entity.DownloadRequest{
		URLs:     []string{u},
		Identity: identity,
	})
	require.NoError(t, err)
	require.Equal(t, entity.StatusFailed, res.Results[0].Status)
	require.Equal(t, entity.ErrKindEmptyContent, res.Results[0].ErrorKind)

	// Failed urls never consume quota.
	st, err := env.ledger.Check(context.Background(), identity, 0)
	require.NoError(t, err)
	require.EqualValues(t, 0, st.Current)
}

func TestRunNonImageIsInvalidContent(t *testing.T) {
	u := "http://img.example/page"

	env := newTestEnv(t, &fakeFetcher{responses: map[string]*entity.RawResponse{
		u: {Body: []byte("<html>not found</html>"), ContentType: "text/html"},
	}})

	res, err := env.srv.Run(context.Background(), &entity.DownloadRequest{
		URLs:     []string{u},
		Identity: entity.NewAnonymous("s7"),
	})
	require.NoError(t, err)
	require.Equal(t, entity.StatusFailed, res.Results[0].Status)
	require.Equal(t, entity.ErrKindInvalidContent, res.Results[0].ErrorKind)
}

func TestRunRasterizesSVG(t *testing.T) {
	u := "http://img.example/logo.svg"

	env := newTestEnv(t, &fakeFetcher{responses: map[string]*entity.RawResponse{
		u: svgResponse(),
	}})

	res, err := env.srv.Run(context.Background(), &entity.DownloadRequest{
		URLs:     []string{u},
		Identity: entity.NewAnonymous("s8"),
	})
	require.NoError(t, err)

	out := res.Results[0]
	require.Equal(t, entity.StatusSuccess, out.Status)
	require.True(t, out.WasRasterized)
	require.Equal(t, "image/png", out.MIMEType)
	require.Equal(t, "logo.png", out.Filename)
	require.True(t, strings.HasSuffix(out.Filename, ".png"))
}

func TestRunMalformedSVGFallsBackToOriginal(t *testing.T) {
	u := "http://img.example/broken.svg"
	markup := []byte(`<svg xmlns="http://www.w3.org/2000/svg"><rect`)

	env := newTestEnv(t, &fakeFetcher{responses: map[string]*entity.RawResponse{
		u: {Body: markup, ContentType: "image/svg+xml"},
	}})

	res, err := env.srv.Run(context.Background(), &entity.DownloadRequest{
		URLs:     []string{u},
		Identity: entity.NewAnonymous("s9"),
	})
	require.NoError(t, err)

	out := res.Results[0]
	require.Equal(t, entity.StatusSuccess, out.Status)
	require.False(t, out.WasRasterized)
	require.Equal(t, "image/svg+xml", out.MIMEType)
	require.Equal(t, markup, out.Payload)
	require.Equal(t, "broken.svg", out.Filename)
}
