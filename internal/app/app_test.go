package app

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forumwatch-go/internal/config"
	"forumwatch-go/internal/db"
	"forumwatch-go/internal/model"
	"forumwatch-go/internal/providers/discourse"
	"forumwatch-go/internal/providers/feed"
	"forumwatch-go/internal/repositories"
	filerepo "forumwatch-go/internal/repositories/file"
	pgrepo "forumwatch-go/internal/repositories/postgres"
	"forumwatch-go/internal/repositories/sqlite"
	"forumwatch-go/internal/services/scraping"
)

const forumPage = `
<table>
  <tr class="topic-list-item"><td><span class="link-top-line"><a href="/t/42">A</a></span></td></tr>
  <tr class="topic-list-item"><td><span class="link-top-line"><a href="https://other.example/x">B</a></span></td></tr>
</table>`

type botAPI struct {
	mu    sync.Mutex
	texts []string
}

func (b *botAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	b.mu.Lock()
	b.texts = append(b.texts, body["text"].(string))
	b.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":1700000000,"chat":{"id":-1,"type":"group"}}}`))
}

func (b *botAPI) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.texts)
}

func testConfig(t *testing.T, siteURL, apiURL string) *config.Config {
	t.Helper()
	return &config.Config{
		TelegramToken:  "123:abc",
		TelegramChat:   "-1",
		TelegramAPIURL: apiURL,
		StateBackend:   config.BackendFile,
		StateFile:      filepath.Join(t.TempDir(), "sent_proposals.json"),
		Sites:          []model.Site{{URL: siteURL}},
		PollInterval:   time.Hour,
		RetryAttempts:  3,
		RetryDelay:     time.Millisecond,
		ErrorCooldown:  time.Millisecond,
		FetchTimeout:   time.Second,
	}
}

func TestRunRelaysNewTopicsOnce(t *testing.T) {
	forum := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(forumPage))
	}))
	defer forum.Close()
	api := &botAPI{}
	bot := httptest.NewServer(api)
	defer bot.Close()

	cfg := testConfig(t, forum.URL+"/latest", bot.URL)
	application, err := NewBuilder(cfg, WithLogger(zerolog.Nop())).Build(context.Background())
	require.NoError(t, err)
	assert.Nil(t, application.Server)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- application.Run(ctx) }()

	require.Eventually(t, func() bool { return api.count() == 2 }, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		report, ok := application.ScrapeService.LastReport()
		return ok && report.TotalSent() == 2
	}, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
	}

	data, err := os.ReadFile(cfg.StateFile)
	require.NoError(t, err)
	var state map[string][]string
	require.NoError(t, json.Unmarshal(data, &state))
	assert.Equal(t, []string{forum.URL + "/t/42", "https://other.example/x"}, state[forum.URL+"/latest"])
}

func TestBuildSelectsScraperPerFormat(t *testing.T) {
	cfg := testConfig(t, "https://forum.example/latest", "https://api.telegram.org")
	cfg.Sites = []model.Site{
		{URL: "https://forum.example/latest"},
		{URL: "https://forum.example/latest.rss", Format: model.FormatRSS},
	}
	cfg.HTTPPort = "0"

	application, err := NewBuilder(cfg).Build(context.Background())
	require.NoError(t, err)
	defer application.Shutdown()

	require.Len(t, application.Scrapers, 2)
	assert.IsType(t, &discourse.Scraper{}, application.Scrapers[0])
	assert.IsType(t, &feed.Scraper{}, application.Scrapers[1])
	require.NotNil(t, application.Server)
	assert.Equal(t, ":0", application.Server.Addr)
}

func TestBuildSQLiteBackend(t *testing.T) {
	cfg := testConfig(t, "https://forum.example/latest", "https://api.telegram.org")
	cfg.StateBackend = config.BackendSQLite
	cfg.SQLitePath = filepath.Join(t.TempDir(), "seen.db")

	application, err := NewBuilder(cfg).Build(context.Background())
	require.NoError(t, err)
	defer application.Shutdown()

	assert.IsType(t, &sqlite.SeenRepository{}, application.Repo)
}

func TestBuildRejectsBadCron(t *testing.T) {
	cfg := testConfig(t, "https://forum.example/latest", "https://api.telegram.org")
	cfg.PollCron = "every now and then"

	_, err := NewBuilder(cfg).Build(context.Background())
	require.Error(t, err)
}

type staticScraper struct {
	site   model.Site
	topics []model.Topic
}

func (s staticScraper) Site() model.Site { return s.site }

func (s staticScraper) Scrape(context.Context) ([]model.Topic, error) { return s.topics, nil }

type recordingNotifier struct {
	mu    sync.Mutex
	links []string
}

func (n *recordingNotifier) Send(_ context.Context, _ model.Site, topic model.Topic) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.links = append(n.links, topic.Link)
	return nil
}

func (n *recordingNotifier) sent() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.links...)
}

// closeTracker records Close without closing the wrapped store.
type closeTracker struct {
	repositories.SeenRepository
	closed atomic.Bool
}

func (c *closeTracker) Close() error {
	c.closed.Store(true)
	return nil
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestRunWithInjectedCollaborators(t *testing.T) {
	site := model.Site{URL: "https://forum.example/latest"}
	store, err := filerepo.Open(filepath.Join(t.TempDir(), "seen.json"), zerolog.Nop())
	require.NoError(t, err)
	repo := &closeTracker{SeenRepository: store}
	notifier := &recordingNotifier{}
	scraper := staticScraper{site: site, topics: []model.Topic{
		{Title: "A", Link: "https://forum.example/t/1"},
		{Title: "B", Link: "https://forum.example/t/2"},
	}}

	cfg := testConfig(t, site.URL, "https://api.telegram.org")
	application, err := NewBuilder(cfg,
		WithRepository(repo),
		WithNotifier(notifier),
		WithScrapers([]scraping.SiteScraper{scraper}),
	).Build(context.Background())
	require.NoError(t, err)
	assert.Same(t, notifier, application.Notifier)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- application.Run(ctx) }()

	require.Eventually(t, func() bool {
		report, ok := application.ScrapeService.LastReport()
		return ok && report.TotalSent() == 2
	}, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
	}

	assert.Equal(t, []string{"https://forum.example/t/1", "https://forum.example/t/2"}, notifier.sent())
	assert.Equal(t, []string{"https://forum.example/t/1", "https://forum.example/t/2"}, store.Links(site.URL))
	assert.False(t, repo.closed.Load(), "injected repository must stay open")
}

func TestBuildScrapersUseInjectedHTTPClient(t *testing.T) {
	var calls atomic.Int32
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		calls.Add(1)
		assert.Equal(t, "forum.example", r.URL.Host)
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": []string{"text/html"}},
			Body:       io.NopCloser(strings.NewReader(forumPage)),
			Request:    r,
		}, nil
	})}
	notifier := &recordingNotifier{}

	cfg := testConfig(t, "https://forum.example/latest", "https://api.telegram.org")
	application, err := NewBuilder(cfg, WithHTTPClient(client), WithNotifier(notifier)).Build(context.Background())
	require.NoError(t, err)
	defer application.Shutdown()

	report := application.ScrapeService.RunCycle(context.Background())
	assert.Equal(t, 2, report.TotalSent())
	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, []string{"https://forum.example/t/42", "https://other.example/x"}, notifier.sent())
}

func TestBuildLeavesInjectedRepositoryOpenOnError(t *testing.T) {
	store, err := filerepo.Open(filepath.Join(t.TempDir(), "seen.json"), zerolog.Nop())
	require.NoError(t, err)
	repo := &closeTracker{SeenRepository: store}

	cfg := testConfig(t, "https://forum.example/latest", "https://api.telegram.org")
	cfg.PollCron = "every now and then"

	_, err = NewBuilder(cfg, WithRepository(repo)).Build(context.Background())
	require.Error(t, err)
	assert.False(t, repo.closed.Load())
}

func TestBuildPostgresWithInjectedPool(t *testing.T) {
	// pgxpool connects lazily, so neither case below reaches a server.
	pool, err := pgxpool.New(context.Background(), "postgres://forumwatch@127.0.0.1:1/forumwatch?connect_timeout=1")
	require.NoError(t, err)
	defer pool.Close()

	cfg := testConfig(t, "https://forum.example/latest", "https://api.telegram.org")
	cfg.StateBackend = config.BackendPostgres

	application, err := NewBuilder(cfg, WithDBPool(pool), WithEnsureSchema(false)).Build(context.Background())
	require.NoError(t, err)
	assert.IsType(t, &pgrepo.SeenRepository{}, application.Repo)
	require.NoError(t, application.Shutdown())

	_, err = NewBuilder(cfg, WithDBPool(pool), WithBasePath(t.TempDir())).Build(context.Background())
	require.ErrorContains(t, err, "read schema")
}

// Runs against a real database only when TEST_DATABASE_URL is set.
func TestBuildPostgresAppliesSchemaIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	cfg := testConfig(t, "https://forum.example/latest", "https://api.telegram.org")
	cfg.StateBackend = config.BackendPostgres

	application, err := NewBuilder(cfg, WithDBPool(pool), WithBasePath("../..")).Build(ctx)
	require.NoError(t, err)

	site := "https://forum.example/latest?run=" + time.Now().Format(time.RFC3339Nano)
	require.NoError(t, application.Repo.MarkSeen(ctx, site, "https://forum.example/t/42"))
	seen, err := application.Repo.IsSeen(ctx, site, "https://forum.example/t/42")
	require.NoError(t, err)
	assert.True(t, seen)

	require.NoError(t, application.Shutdown())
	require.NoError(t, pool.Ping(ctx), "injected pool must survive Shutdown")
}
