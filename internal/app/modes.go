package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mpaquette/depthmetrics/internal/aggregate"
	"github.com/mpaquette/depthmetrics/internal/collector"
	"github.com/mpaquette/depthmetrics/internal/composer"
	"github.com/mpaquette/depthmetrics/internal/server"
	"github.com/mpaquette/depthmetrics/internal/server/handler"
)

// CollectMode runs only the polling loop.
func (a *App) CollectMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting collect mode")
	return a.newCollector(deps).Run(ctx)
}

// ServeMode runs only the HTTP file API.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startServer(ctx, g, deps)
	return g.Wait()
}

// ComposeMode runs only the daily composition job.
func (a *App) ComposeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting compose mode")
	return a.newComposer(deps).Run(ctx)
}

// FullMode runs the collector, the HTTP server, and the composer together.
// Any component failing cancels the rest.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	col := a.newCollector(deps)
	g.Go(func() error {
		return col.Run(ctx)
	})

	if a.cfg.Server.Enabled {
		a.startServer(ctx, g, deps)
	}

	if a.cfg.Composer.Enabled {
		comp := a.newComposer(deps)
		g.Go(func() error {
			return comp.Run(ctx)
		})
	}

	return g.Wait()
}

func (a *App) newCollector(deps *Dependencies) *collector.Collector {
	return collector.New(collector.Config{
		Pairs:          deps.Pairs,
		DataDir:        a.cfg.Collector.DataDir,
		RowInterval:    a.cfg.Collector.RowInterval.Duration,
		UploadInterval: a.cfg.Collector.UploadInterval.Duration,
		FetchTimeout:   a.cfg.Collector.FetchTimeout.Duration,
	}, aggregate.New(), deps.BlobReader, deps.BlobWriter, deps.TickCache, a.logger)
}

func (a *App) newComposer(deps *Dependencies) *composer.Composer {
	return composer.New(composer.Config{
		Exchanges:     sortedExchanges(a.cfg),
		Assets:        a.cfg.Collector.Assets,
		ComposeAfter:  a.cfg.Composer.ComposeAfter,
		CheckInterval: a.cfg.Composer.CheckInterval.Duration,
		Day:           a.cfg.Composer.Day,
	}, deps.BlobReader, deps.BlobWriter, a.logger)
}

// startServer registers the server goroutine plus a shutdown watcher on g.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
	}, server.Handlers{
		Health: handler.NewHealthHandler(a.logger),
		Files:  handler.NewFileHandler(deps.BlobReader, a.logger),
		Latest: handler.NewLatestHandler(deps.TickCache, a.logger),
	}, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("server shutdown error", slog.Any("error", err))
		}
		return ctx.Err()
	})
}
