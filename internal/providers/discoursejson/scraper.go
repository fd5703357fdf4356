package discoursejson

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"forumwatch-go/internal/model"
	"forumwatch-go/internal/providers/common"
)

// Scraper reads a Discourse JSON listing such as /latest.json.
type Scraper struct {
	client  *http.Client
	site    model.Site
	base    *url.URL
	timeout time.Duration
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
		logger:  logger.With().Str("site", site.URL).Logger(),
	}, nil
}

func (s *Scraper) Site() model.Site {
	return s.site
}

type listResponse struct {
	TopicList *struct {
		Topics []listTopic `json:"topics"`
	} `json:"topic_list"`
}

type listTopic struct {
	ID    json.Number `json:"id"`
	Title string      `json:"title"`
	Slug  string      `json:"slug"`
}

func (s *Scraper) Scrape(ctx context.Context) ([]model.Topic, error) {
	body, err := common.FetchBody(ctx, s.client, s.site.URL, s.timeout)
	if err != nil {
		return nil, err
	}

	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	var payload listResponse
	if err := decoder.Decode(&payload); err != nil {
		return nil, fmt.Errorf("json parse error: %w", err)
	}
	if payload.TopicList == nil {
		return nil, nil
	}

	topics := make([]model.Topic, 0, len(payload.TopicList.Topics))
	for i, t := range payload.TopicList.Topics {
		id := t.ID.String()
		if id == "" {
			s.logger.Debug().Int("item", i+1).Str("title", t.Title).Msg("topic has no id; skipped")
			continue
		}
		topics = append(topics, model.Topic{
			Title: strings.TrimSpace(t.Title),
			Link:  common.ResolveLink(s.base, topicPath(t.Slug, id)),
		})
	}
	return common.Dedupe(topics), nil
}

func topicPath(slug, id string) string {
	if slug == "" {
		return "/t/" + id
	}
	return "/t/" + url.PathEscape(slug) + "/" + id
}
