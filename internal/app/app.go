package app

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jgivc/imgfetch/internal/adapter/httpfetch"
	"github.com/jgivc/imgfetch/internal/adapter/spool"
	"github.com/jgivc/imgfetch/internal/config"
	httphandler "github.com/jgivc/imgfetch/internal/handler/http"
	"github.com/jgivc/imgfetch/internal/raster"
	repoquota "github.com/jgivc/imgfetch/internal/repository/quota"
	srvdownload "github.com/jgivc/imgfetch/internal/service/download"
	srvquota "github.com/jgivc/imgfetch/internal/service/quota"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	cfgPath string
	cfg     *config.Config
	srv     *http.Server
	log     *slog.Logger
}

func New(cfgPath string) *App {
	return &App{
		cfgPath: cfgPath,
	}
}

func (a *App) Start() {
	a.cfg = config.MustLoad(a.cfgPath)

	opt, err := redis.ParseURL(a.cfg.RedisURL)
	if err != nil {
		panic(err)
	}

	rdb := redis.NewClient(opt)
	ctx := context.Background()
	if _, err = rdb.Ping(ctx).Result(); err != nil {
		panic(err)
	}

	lo := &slog.HandlerOptions{}
	switch a.cfg.LogLevel {
	case config.LogLevelInfo:
		lo.Level = slog.LevelInfo
	case config.LogLevelWarn:
		lo.Level = slog.LevelWarn
	case config.LogLevelError:
		lo.Level = slog.LevelError
	case config.LogLevelDebug:
		lo.Level = slog.LevelDebug
	default:
		panic("unknown log level")
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, lo))
	a.log = log

	qrepo := repoquota.NewQuotaRepository(rdb, log)
	ledger := srvquota.NewLedgerService(qrepo, &a.cfg.Quota, log)

	fetcher := httpfetch.NewFetchChain(&a.cfg.Fetch, log)
	rasterizer := raster.NewRasterizer(a.cfg.Raster.Width, a.cfg.Raster.Height, log)

	var store srvdownload.PayloadStore
	if a.cfg.SpoolDir != "" {
		store = spool.NewSpoolAdapter(a.cfg.SpoolDir, log)
	}

	batchSrv := srvdownload.NewBatchService(fetcher, ledger, rasterizer, store, a.cfg, log)

	resolver := httphandler.HeaderIdentityResolver{}

	http.Handle("POST /batch/{$}", httphandler.NewBatchHandler(batchSrv, resolver, log))
	http.Handle("GET /quota/{$}", httphandler.NewQuotaHandler(ledger, resolver, log))

	a.srv = &http.Server{
		Addr: a.cfg.Listen,
	}

	go func() {
		log.Info("Start listen", slog.String("addr", a.cfg.Listen))

		if err := a.srv.ListenAndServe(); err != nil {
			log.Error("Could not serve", slog.String("listen_addr", a.cfg.Listen), slog.Any("error", err))
			os.Exit(2)
		}
	}()
}

func (a *App) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	a.srv.Shutdown(ctx)
}
