package feed

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"

	"forumwatch-go/internal/model"
	"forumwatch-go/internal/providers/common"
)

// Scraper reads topics from an RSS or Atom listing (e.g. Discourse's /latest.rss).
type Scraper struct {
	client  *http.Client
	site    model.Site
	base    *url.URL
	timeout time.Duration
	parser  *gofeed.Parser
	logger  zerolog.Logger
}

func NewScraper(client *http.Client, site model.Site, timeout time.Duration, logger zerolog.Logger) (*Scraper, error) {
	site = site.WithDefaults()
	base, err := url.Parse(site.URL)
	if err != nil {
		return nil, fmt.Errorf("parse site url %q: %w", site.URL, err)
	}
	return &Scraper{
		client:  client,
		site:    site,
		base:    base,
		timeout: timeout,
		parser:  gofeed.NewParser(),
		logger:  logger.With().Str("site", site.URL).Logger(),
	}, nil
}

func (s *Scraper) Site() model.Site {
	return s.site
}

func (s *Scraper) Scrape(ctx context.Context) ([]model.Topic, error) {
	body, err := common.FetchBody(ctx, s.client, s.site.URL, s.timeout)
	if err != nil {
		return nil, err
	}

	parsed, err := s.parser.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	return ItemsToTopics(parsed, s.base, s.logger), nil
}

func ItemsToTopics(parsed *gofeed.Feed, base *url.URL, logger zerolog.Logger) []model.Topic {
	if parsed == nil {
		return nil
	}

	topics := make([]model.Topic, 0, len(parsed.Items))
	for i, item := range parsed.Items {
		if item == nil {
			continue
		}
		link := strings.TrimSpace(item.Link)
		if link == "" {
			logger.Debug().Int("item", i+1).Str("title", item.Title).Msg("feed item has no link; skipped")
			continue
		}
		topics = append(topics, model.Topic{
			Title: strings.TrimSpace(item.Title),
			Link:  common.ResolveLink(base, link),
		})
	}
	return common.Dedupe(topics)
}
