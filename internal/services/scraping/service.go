package scraping

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"forumwatch-go/internal/model"
	"forumwatch-go/internal/repositories"
)

// Service runs one fetch, diff and notify pass over every configured site.
type Service struct {
	repo     repositories.SeenRepository
	notifier Notifier
	scrapers []SiteScraper
	logger   zerolog.Logger
	now      func() time.Time

	mu   sync.RWMutex
	last *model.CycleReport
}

func NewService(repo repositories.SeenRepository, notifier Notifier, scrapers []SiteScraper, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		notifier: notifier,
		scrapers: scrapers,
		logger:   logger,
		now:      time.Now,
	}
}

// RunCycle processes the sites in configured order. Failures are confined to
// the site or topic they happen on; the report records them.
func (s *Service) RunCycle(ctx context.Context) model.CycleReport {
	report := model.CycleReport{StartedAt: s.now()}
	s.logger.Info().Int("sites", len(s.scrapers)).Msg("checking for new topics")

	for _, sc := range s.scrapers {
		if ctx.Err() != nil {
			break
		}
		report.Sites = append(report.Sites, s.processSite(ctx, sc))
	}

	report.FinishedAt = s.now()
	s.mu.Lock()
	s.last = &report
	s.mu.Unlock()

	for _, st := range report.Sites {
		s.logger.Info().
			Str("site", st.Site).
			Int("fetched", st.Fetched).
			Int("new", st.New).
			Int("sent", st.Sent).
			Int("failed", st.Failed).
			Msg("summary")
	}
	return report
}

func (s *Service) processSite(ctx context.Context, sc SiteScraper) model.SiteReport {
	site := sc.Site()
	log := s.logger.With().Str("site", site.URL).Logger()
	st := model.SiteReport{Site: site.URL}

	topics, err := sc.Scrape(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("fetch failed; skipping site this cycle")
		st.FetchError = err.Error()
		return st
	}
	st.Fetched = len(topics)
	if len(topics) == 0 {
		log.Warn().Msg("no topics found")
		return st
	}

	for _, topic := range topics {
		if ctx.Err() != nil {
			return st
		}

		seen, err := s.repo.IsSeen(ctx, site.URL, topic.Link)
		if err != nil {
			log.Error().Err(err).Str("link", topic.Link).Msg("seen lookup failed; topic left for next cycle")
			st.Failed++
			continue
		}
		if seen {
			continue
		}
		st.New++

		if err := s.notifier.Send(ctx, site, topic); err != nil {
			log.Error().Err(err).Str("link", topic.Link).Msg("notification failed; topic left unseen")
			st.Failed++
			continue
		}
		st.Sent++

		// the message is out; record it even if shutdown has begun
		if err := s.repo.MarkSeen(context.WithoutCancel(ctx), site.URL, topic.Link); err != nil {
			if errors.Is(err, repositories.ErrPersist) {
				log.Error().Err(err).Str("link", topic.Link).Msg("sent but could not persist seen-set; a restart may notify again")
			} else {
				log.Error().Err(err).Str("link", topic.Link).Msg("mark seen failed")
			}
			continue
		}
		log.Info().Str("title", topic.Title).Str("link", topic.Link).Msg("sent and saved new topic")
	}

	if st.New == 0 {
		log.Info().Msg("no new topics to send")
	}
	return st
}

// LastReport returns the report of the most recent finished cycle.
func (s *Service) LastReport() (model.CycleReport, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return model.CycleReport{}, false
	}
	return *s.last, true
}

func (s *Service) SeenCounts(ctx context.Context) (map[string]int, error) {
	return s.repo.Counts(ctx)
}

func (s *Service) Sites() []model.Site {
	sites := make([]model.Site, 0, len(s.scrapers))
	for _, sc := range s.scrapers {
		sites = append(sites, sc.Site())
	}
	return sites
}
