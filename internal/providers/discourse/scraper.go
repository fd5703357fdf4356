package discourse

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"forumwatch-go/internal/model"
	"forumwatch-go/internal/providers/common"
)

// Scraper reads the topic list of a Discourse-style listing page.
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

func (s *Scraper) Scrape(ctx context.Context) ([]model.Topic, error) {
	body, err := common.FetchBody(ctx, s.client, s.site.URL, s.timeout)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	return ExtractTopics(doc, s.base, s.site.RowSelector, s.site.TitleSelector, s.logger), nil
}

// ExtractTopics walks the rows matched by rowSelector and returns one topic
// per row that has a title element with a hyperlink, first occurrence wins.
func ExtractTopics(doc *goquery.Document, base *url.URL, rowSelector, titleSelector string, logger zerolog.Logger) []model.Topic {
	rows := doc.Find(rowSelector)
	logger.Debug().Int("rows", rows.Length()).Msg("topic rows found")

	topics := make([]model.Topic, 0, rows.Length())
	rows.Each(func(i int, row *goquery.Selection) {
		titleEl := row.Find(titleSelector).First()
		if titleEl.Length() == 0 {
			logger.Debug().Int("row", i+1).Msg("row has no title element; skipped")
			return
		}

		title := strings.TrimSpace(titleEl.Text())
		href, ok := titleEl.Find("a").First().Attr("href")
		href = strings.TrimSpace(href)
		if !ok || href == "" {
			logger.Debug().Int("row", i+1).Str("title", title).Msg("row has no link; skipped")
			return
		}

		topics = append(topics, model.Topic{
			Title: title,
			Link:  common.ResolveLink(base, href),
		})
	})

	return common.Dedupe(topics)
}
