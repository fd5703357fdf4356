package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"forumwatch-go/internal/config"
	"forumwatch-go/internal/repositories"
	"forumwatch-go/internal/scheduler"
	"forumwatch-go/internal/services/scraping"
)

type App struct {
	Config        *config.Config
	Logger        zerolog.Logger
	Repo          repositories.SeenRepository
	Notifier      scraping.Notifier
	Scrapers      []scraping.SiteScraper
	ScrapeService *scraping.Service
	Scheduler     *scheduler.Scheduler
	// Server is nil when no HTTP port is configured.
	Server *http.Server

	ownsRepo bool
}

// Run blocks until ctx is cancelled, then stops the status server and
// closes the seen-set store if the builder opened it.
func (a *App) Run(ctx context.Context) error {
	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return a.Scheduler.Run(gctx)
	})

	if a.Server != nil {
		group.Go(func() error {
			a.Logger.Info().Str("addr", a.Server.Addr).Msg("status server listening")
			if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		group.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return a.Server.Shutdown(shutdownCtx)
		})
	}

	err := group.Wait()
	return errors.Join(err, a.Shutdown())
}

// Shutdown closes the seen-set store opened by Build. A store passed in with
// WithRepository is left to its owner.
func (a *App) Shutdown() error {
	if a.Repo == nil || !a.ownsRepo {
		return nil
	}
	return a.Repo.Close()
}
