package infrastructure

import (
	"context"
	"errors"
	"net/http"

	"golang.org/x/sync/errgroup"
)

// Server is one long-running component of the process: an HTTP listener, a
// NATS consumer, a background worker. Start blocks until failure or ctx
// cancellation; Stop performs graceful shutdown.
type Server interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type App struct {
	servers []Server
}

func NewApp(servers []Server) *App {
	return &App{servers: servers}
}

func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, srv := range a.servers {
		s := srv
		g.Go(func() error {
			err := s.Start(ctx)
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		})
	}

	<-ctx.Done()

	for _, srv := range a.servers {
		_ = srv.Stop(context.Background())
	}

	return g.Wait()
}
