package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"forumwatch-go/internal/config"
	"forumwatch-go/internal/db"
	"forumwatch-go/internal/httpapi"
	"forumwatch-go/internal/model"
	"forumwatch-go/internal/providers/discourse"
	"forumwatch-go/internal/providers/discoursejson"
	"forumwatch-go/internal/providers/feed"
	"forumwatch-go/internal/repositories"
	filerepo "forumwatch-go/internal/repositories/file"
	pgrepo "forumwatch-go/internal/repositories/postgres"
	sqliterepo "forumwatch-go/internal/repositories/sqlite"
	"forumwatch-go/internal/scheduler"
	"forumwatch-go/internal/services/scraping"
	"forumwatch-go/internal/telegram"
)

type Builder struct {
	cfg          *config.Config
	basePath     string
	ensureSchema bool
	logger       zerolog.Logger

	pool     *pgxpool.Pool
	repo     repositories.SeenRepository
	notifier scraping.Notifier
	scrapers []scraping.SiteScraper
	client   *http.Client

}

type BuilderOption func(*Builder)

func NewBuilder(cfg *config.Config, options ...BuilderOption) *Builder {
	builder := &Builder{
		cfg:          cfg,
		ensureSchema: true,
		logger:       zerolog.Nop(),
	}
	for _, option := range options {
		option(builder)
	}
	return builder
}

func WithLogger(logger zerolog.Logger) BuilderOption {
	return func(b *Builder) {
		b.logger = logger
	}
}

func WithBasePath(basePath string) BuilderOption {
	return func(b *Builder) {
		b.basePath = basePath
	}
}

func WithEnsureSchema(enabled bool) BuilderOption {
	return func(b *Builder) {
		b.ensureSchema = enabled
	}
}

func WithDBPool(pool *pgxpool.Pool) BuilderOption {
	return func(b *Builder) {
		b.pool = pool
	}
}

func WithRepository(repo repositories.SeenRepository) BuilderOption {
	return func(b *Builder) {
		b.repo = repo
	}
}

func WithNotifier(notifier scraping.Notifier) BuilderOption {
	return func(b *Builder) {
		b.notifier = notifier
	}
}

func WithScrapers(scrapers []scraping.SiteScraper) BuilderOption {
	return func(b *Builder) {
		b.scrapers = scrapers
	}
}

func WithHTTPClient(client *http.Client) BuilderOption {
	return func(b *Builder) {
		b.client = client
	}
}

// Build wires the application. Resources handed in through options stay
// owned by the caller; only what Build opens itself is closed on failure or
// by App.Shutdown.
func (b *Builder) Build(ctx context.Context) (*App, error) {
	if b.cfg == nil {
		return nil, errors.New("config is required")
	}

	app := &App{Config: b.cfg, Logger: b.logger, Repo: b.repo}
	if app.Repo == nil {
		repo, err := b.buildRepository(ctx)
		if err != nil {
			return nil, err
		}
		app.Repo, app.ownsRepo = repo, true
	}
	fail := func(err error) (*App, error) {
		return nil, errors.Join(err, app.Shutdown())
	}

	client := b.client
	if client == nil {
		client = &http.Client{Timeout: b.cfg.FetchTimeout}
	}

	app.Notifier = b.notifier
	if app.Notifier == nil {
		sender, err := telegram.NewSender(telegram.Options{
			APIURL:     b.cfg.TelegramAPIURL,
			Token:      b.cfg.TelegramToken,
			Chat:       b.cfg.TelegramChat,
			ThreadID:   b.cfg.TelegramThreadID,
			Attempts:   b.cfg.RetryAttempts,
			RetryDelay: b.cfg.RetryDelay,
			SendDelay:  b.cfg.SendDelay,
		}, b.logger)
		if err != nil {
			return fail(err)
		}
		app.Notifier = sender
	}

	app.Scrapers = b.scrapers
	if app.Scrapers == nil {
		scrapers, err := b.buildScrapers(client)
		if err != nil {
			return fail(err)
		}
		app.Scrapers = scrapers
	}

	app.ScrapeService = scraping.NewService(app.Repo, app.Notifier, app.Scrapers, b.logger)

	schedule, err := scheduler.ParseSchedule(b.cfg.PollCron, b.cfg.PollInterval)
	if err != nil {
		return fail(err)
	}
	app.Scheduler = scheduler.New(schedule, app.ScrapeService, b.cfg.ErrorCooldown, b.logger)

	if b.cfg.HTTPPort != "" {
		handler := httpapi.NewHandler(app.ScrapeService)
		app.Server = &http.Server{
			Addr:              ":" + b.cfg.HTTPPort,
			Handler:           handler.Router(),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	return app, nil
}

func (b *Builder) buildRepository(ctx context.Context) (repositories.SeenRepository, error) {
	switch b.cfg.StateBackend {
	case config.BackendSQLite:
		return sqliterepo.Open(ctx, b.cfg.SQLitePath)
	case config.BackendPostgres:
		return b.buildPostgresRepository(ctx)
	case config.BackendFile, "":
		return filerepo.Open(b.cfg.StateFile, b.logger)
	default:
		return nil, fmt.Errorf("unknown state backend %q", b.cfg.StateBackend)
	}
}

func (b *Builder) buildPostgresRepository(ctx context.Context) (repositories.SeenRepository, error) {
	var schemaBase string
	if b.ensureSchema {
		basePath := b.basePath
		if basePath == "" {
			wd, err := os.Getwd()
			if err != nil {
				return nil, err
			}
			basePath = wd
		}
		path, err := filepath.Abs(basePath)
		if err != nil {
			return nil, err
		}
		schemaBase = path
	}

	pool := b.pool
	owned := false
	if pool == nil {
		p, err := db.NewPool(ctx, b.cfg.PostgresDSN())
		if err != nil {
			return nil, err
		}
		pool, owned = p, true
	}

	if b.ensureSchema {
		if err := db.EnsureSchema(ctx, pool, schemaBase); err != nil {
			if owned {
				pool.Close()
			}
			return nil, err
		}
	}

	repo := pgrepo.NewSeenRepository(pool)
	if owned {
		repo.WithOwnedPool(pool)
	}
	return repo, nil
}

func (b *Builder) buildScrapers(client *http.Client) ([]scraping.SiteScraper, error) {
	scrapers := make([]scraping.SiteScraper, 0, len(b.cfg.Sites))
	for _, site := range b.cfg.Sites {
		var (
			sc  scraping.SiteScraper
			err error
		)
		switch site.WithDefaults().Format {
		case model.FormatRSS:
			sc, err = feed.NewScraper(client, site, b.cfg.FetchTimeout, b.logger)
		case model.FormatJSON:
			sc, err = discoursejson.NewScraper(client, site, b.cfg.FetchTimeout, b.logger)
		default:
			sc, err = discourse.NewScraper(client, site, b.cfg.FetchTimeout, b.logger)
		}
		if err != nil {
			return nil, err
		}
		scrapers = append(scrapers, sc)
	}
	return scrapers, nil
}
