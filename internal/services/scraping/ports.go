package scraping

import (
	"context"

	"forumwatch-go/internal/model"
)

type SiteScraper interface {
	Site() model.Site
	Scrape(ctx context.Context) ([]model.Topic, error)
}

type Notifier interface {
	Send(ctx context.Context, site model.Site, topic model.Topic) error
}
