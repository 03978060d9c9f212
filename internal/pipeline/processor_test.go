package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/news-fetcher/internal/db"
	"github.com/jonathan/news-fetcher/internal/feed"
	"github.com/jonathan/news-fetcher/internal/ingestion"
	"github.com/jonathan/news-fetcher/internal/runlog"
	"github.com/jonathan/news-fetcher/internal/seo"
)

type fakeRepo struct {
	mu          sync.Mutex
	articles    map[uuid.UUID]*db.Article
	byHash      map[string]uuid.UUID
	suggestions map[uuid.UUID]seo.Suggestion
	applied     map[uuid.UUID]db.SEOFields
	tags        map[uuid.UUID][]string
	insertErr   error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		articles:    make(map[uuid.UUID]*db.Article),
		byHash:      make(map[string]uuid.UUID),
		suggestions: make(map[uuid.UUID]seo.Suggestion),
		applied:     make(map[uuid.UUID]db.SEOFields),
		tags:        make(map[uuid.UUID][]string),
	}
}

func (f *fakeRepo) FindByContentHash(_ context.Context, hash string) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byHash[hash], nil
}

func (f *fakeRepo) CountMissingHashes(_ context.Context, hashes []string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	missing := 0
	for _, h := range hashes {
		if f.byHash[h] == uuid.Nil {
			missing++
		}
	}
	return missing, nil
}

func (f *fakeRepo) InsertArticle(_ context.Context, input db.NewArticle) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return uuid.Nil, f.insertErr
	}
	if f.byHash[input.ContentHash] != uuid.Nil {
		return uuid.Nil, errors.New("duplicate content hash")
	}
	id := uuid.New()
	f.articles[id] = &db.Article{
		ID:          id,
		Title:       input.Title,
		Body:        input.Body,
		SourceURL:   input.SourceURL,
		SourceGUID:  input.SourceGUID,
		ContentHash: input.ContentHash,
		Status:      input.Status,
	}
	f.byHash[input.ContentHash] = id
	return id, nil
}

func (f *fakeRepo) GetArticle(_ context.Context, id uuid.UUID) (*db.Article, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	article, ok := f.articles[id]
	if !ok {
		return nil, errors.New("not found")
	}
	copied := *article
	return &copied, nil
}

func (f *fakeRepo) UpdateBody(_ context.Context, id uuid.UUID, body string, expanded bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	article, ok := f.articles[id]
	if !ok {
		return errors.New("not found")
	}
	article.Body = body
	if expanded {
		article.LLMExpanded = true
	}
	return nil
}

func (f *fakeRepo) ApplySEO(_ context.Context, id uuid.UUID, fields db.SEOFields) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied[id] = fields
	return nil
}

func (f *fakeRepo) SaveSuggestion(_ context.Context, id uuid.UUID, focus, title, desc, slug string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.suggestions[id] = seo.Suggestion{Focus: focus, Title: title, Description: desc, Slug: slug}
	return nil
}

func (f *fakeRepo) SetTags(_ context.Context, id uuid.UUID, tags []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tags[id] = tags
	return nil
}

func (f *fakeRepo) ListRecent(_ context.Context, limit int) ([]db.ArticleSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []db.ArticleSummary
	for _, a := range f.articles {
		out = append(out, db.ArticleSummary{
			ID:        a.ID,
			Title:     a.Title,
			Status:    a.Status,
			SourceURL: a.SourceURL,
			WordCount: len(strings.Fields(a.Body)),
		})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeRepo) ListWithoutImage(_ context.Context, limit int) ([]db.ArticleSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []db.ArticleSummary
	for _, a := range f.articles {
		if a.FeaturedImageURL == "" {
			out = append(out, db.ArticleSummary{ID: a.ID, Title: a.Title, SourceURL: a.SourceURL})
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type fakeFetcher struct {
	feeds map[string]*feed.Feed
	calls []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (*feed.Feed, error) {
	f.calls = append(f.calls, url)
	if parsed, ok := f.feeds[url]; ok {
		return parsed, nil
	}
	return nil, fmt.Errorf("fetch failed for %s", url)
}

type fakeExpander struct {
	output string
	calls  int
}

func (f *fakeExpander) Expand(context.Context, string, string, string) string {
	f.calls++
	return f.output
}

type fakeDeriver struct {
	panics bool
	calls  int
}

func (f *fakeDeriver) Derive(_ context.Context, title, _, _ string) seo.Suggestion {
	f.calls++
	if f.panics {
		panic("deriver exploded")
	}
	return seo.Suggestion{
		Focus:       "galaxy update",
		Title:       "Galaxy Update: " + title,
		Description: "Galaxy update coverage.",
		Slug:        "galaxy-update",
	}
}

type fakeResolver struct {
	fail  bool
	calls int
}

func (f *fakeResolver) Resolve(_ context.Context, _ uuid.UUID, _ []feed.Enclosure, _, _ string) (string, uuid.UUID, error) {
	f.calls++
	if f.fail {
		return "", uuid.Nil, errors.New("no candidates")
	}
	return "https://example.com/hero.jpg", uuid.New(), nil
}

func testRun(t *testing.T) (*Run, *runlog.Store, string) {
	t.Helper()
	store := runlog.NewStore(time.Minute)
	runID := uuid.NewString()
	store.Create(runID)
	require.True(t, store.TryAcquire(runID))
	run := &Run{
		Log:  runlog.NewLogger(store, runID),
		Stop: func() bool { return store.ShouldStop(runID) },
	}
	return run, store, runID
}

func longBody(words int) string {
	return strings.TrimSpace(strings.Repeat("word ", words))
}

func sampleFeed(items ...feed.Item) *feed.Feed {
	return &feed.Feed{Title: "Sample Feed", Items: items}
}

func item(n int) feed.Item {
	return feed.Item{
		Title:   fmt.Sprintf("Story %d", n),
		Link:    fmt.Sprintf("https://example.com/story-%d", n),
		GUID:    fmt.Sprintf("guid-%d", n),
		Content: "<p>" + longBody(900) + "</p>",
	}
}

func TestProcessFeedPublishesNewItemsAndSkipsDuplicates(t *testing.T) {
	repo := newFakeRepo()
	fetcher := &fakeFetcher{feeds: map[string]*feed.Feed{
		"https://example.com/feed": sampleFeed(item(1), item(2), item(3)),
	}}
	proc := NewProcessor(repo, fetcher, nil, nil, nil, nil, DefaultProcessorConfig())
	run, _, _ := testRun(t)

	count, err := proc.ProcessFeed(context.Background(), "https://example.com/feed", run)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Len(t, repo.articles, 3)

	// A second pass over the same feed publishes nothing.
	count, err = proc.ProcessFeed(context.Background(), "https://example.com/feed", run)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Len(t, repo.articles, 3)
}

func TestProcessFeedSkipsItemsWithoutIdentity(t *testing.T) {
	repo := newFakeRepo()
	anonymous := feed.Item{Title: "No identity", Content: "<p>text</p>"}
	fetcher := &fakeFetcher{feeds: map[string]*feed.Feed{
		"https://example.com/feed": sampleFeed(anonymous, item(1)),
	}}
	proc := NewProcessor(repo, fetcher, nil, nil, nil, nil, DefaultProcessorConfig())
	run, _, _ := testRun(t)

	count, err := proc.ProcessFeed(context.Background(), "https://example.com/feed", run)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestProcessFeedRespectsItemQuota(t *testing.T) {
	repo := newFakeRepo()
	fetcher := &fakeFetcher{feeds: map[string]*feed.Feed{
		"https://example.com/feed": sampleFeed(item(1), item(2), item(3), item(4)),
	}}
	cfg := DefaultProcessorConfig()
	cfg.ItemsPerFeed = 2
	proc := NewProcessor(repo, fetcher, nil, nil, nil, nil, cfg)
	run, _, _ := testRun(t)

	count, err := proc.ProcessFeed(context.Background(), "https://example.com/feed", run)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestProcessFeedFallsBackToHostVariant(t *testing.T) {
	repo := newFakeRepo()
	// Only the www variant of the howtogeek feed answers.
	fetcher := &fakeFetcher{feeds: map[string]*feed.Feed{
		"https://www.howtogeek.com/feed/": sampleFeed(item(1)),
	}}
	proc := NewProcessor(repo, fetcher, nil, nil, nil, nil, DefaultProcessorConfig())
	run, _, _ := testRun(t)

	count, err := proc.ProcessFeed(context.Background(), "https://howtogeek.com/feed/", run)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Greater(t, len(fetcher.calls), 1)
}

func TestProcessFeedErrorsWhenAllVariantsFail(t *testing.T) {
	proc := NewProcessor(newFakeRepo(), &fakeFetcher{feeds: map[string]*feed.Feed{}}, nil, nil, nil, nil, DefaultProcessorConfig())
	run, _, _ := testRun(t)

	_, err := proc.ProcessFeed(context.Background(), "https://example.com/feed", run)
	assert.Error(t, err)
}

func TestProcessFeedExpandsShortItems(t *testing.T) {
	repo := newFakeRepo()
	short := item(1)
	short.Content = "<p>Just a stub excerpt.</p>"
	long := item(2)
	fetcher := &fakeFetcher{feeds: map[string]*feed.Feed{
		"https://example.com/feed": sampleFeed(short, long),
	}}
	expander := &fakeExpander{output: "<p>" + longBody(1200) + "</p>"}
	proc := NewProcessor(repo, fetcher, expander, nil, nil, nil, DefaultProcessorConfig())
	run, _, _ := testRun(t)

	count, err := proc.ProcessFeed(context.Background(), "https://example.com/feed", run)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, 1, expander.calls)

	for _, a := range repo.articles {
		if a.SourceGUID == "guid-1" {
			assert.True(t, a.LLMExpanded)
			assert.Contains(t, a.Body, longBody(10))
		} else {
			assert.False(t, a.LLMExpanded)
		}
	}
}

type stepRecorder struct {
	mu    sync.Mutex
	steps []string
}

func (s *stepRecorder) add(step string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, step)
}

type tracingRepo struct {
	*fakeRepo
	rec *stepRecorder
}

func (t *tracingRepo) InsertArticle(ctx context.Context, input db.NewArticle) (uuid.UUID, error) {
	t.rec.add("insert")
	return t.fakeRepo.InsertArticle(ctx, input)
}

func (t *tracingRepo) UpdateBody(ctx context.Context, id uuid.UUID, body string, expanded bool) error {
	t.rec.add("update_body")
	return t.fakeRepo.UpdateBody(ctx, id, body, expanded)
}

type tracingExpander struct {
	inner *fakeExpander
	rec   *stepRecorder
}

func (t *tracingExpander) Expand(ctx context.Context, title, link, text string) string {
	t.rec.add("expand")
	return t.inner.Expand(ctx, title, link, text)
}

func TestProcessFeedInsertsRawItemBeforeExpanding(t *testing.T) {
	rec := &stepRecorder{}
	repo := &tracingRepo{fakeRepo: newFakeRepo(), rec: rec}
	short := item(1)
	short.Content = "<p>Just a stub excerpt.</p>"
	fetcher := &fakeFetcher{feeds: map[string]*feed.Feed{
		"https://example.com/feed": sampleFeed(short),
	}}
	expander := &tracingExpander{
		inner: &fakeExpander{output: "<p>" + longBody(1200) + "</p>"},
		rec:   rec,
	}
	proc := NewProcessor(repo, fetcher, expander, nil, nil, nil, DefaultProcessorConfig())
	run, _, _ := testRun(t)

	count, err := proc.ProcessFeed(context.Background(), "https://example.com/feed", run)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, []string{"insert", "expand", "update_body"}, rec.steps)
}

func TestProcessFeedKeepsOriginalWhenExpansionFailsSoft(t *testing.T) {
	repo := newFakeRepo()
	short := item(1)
	short.Content = "<p>Just a stub excerpt.</p>"
	fetcher := &fakeFetcher{feeds: map[string]*feed.Feed{
		"https://example.com/feed": sampleFeed(short),
	}}
	proc := NewProcessor(repo, fetcher, &fakeExpander{output: ""}, nil, nil, nil, DefaultProcessorConfig())
	run, _, _ := testRun(t)

	count, err := proc.ProcessFeed(context.Background(), "https://example.com/feed", run)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	for _, a := range repo.articles {
		assert.Equal(t, short.Content, a.Body)
		assert.False(t, a.LLMExpanded)
	}
}

func TestProcessFeedAutoSEOAppliesMetadata(t *testing.T) {
	repo := newFakeRepo()
	fetcher := &fakeFetcher{feeds: map[string]*feed.Feed{
		"https://example.com/feed": sampleFeed(item(1)),
	}}
	deriver := &fakeDeriver{}
	proc := NewProcessor(repo, fetcher, nil, deriver, seo.NewOptimizer(nil), nil, DefaultProcessorConfig())
	run, _, _ := testRun(t)

	_, err := proc.ProcessFeed(context.Background(), "https://example.com/feed", run)
	require.NoError(t, err)
	require.Len(t, repo.applied, 1)
	for _, fields := range repo.applied {
		assert.Equal(t, "galaxy update", fields.FocusKeyword)
		assert.Equal(t, "galaxy-update", fields.Slug)
	}
	assert.Empty(t, repo.suggestions)
}

func TestProcessFeedManualSEOSavesSuggestion(t *testing.T) {
	repo := newFakeRepo()
	fetcher := &fakeFetcher{feeds: map[string]*feed.Feed{
		"https://example.com/feed": sampleFeed(item(1)),
	}}
	cfg := DefaultProcessorConfig()
	cfg.AutoSEO = false
	proc := NewProcessor(repo, fetcher, nil, &fakeDeriver{}, nil, nil, cfg)
	run, _, _ := testRun(t)

	_, err := proc.ProcessFeed(context.Background(), "https://example.com/feed", run)
	require.NoError(t, err)
	assert.Empty(t, repo.applied)
	require.Len(t, repo.suggestions, 1)
	for _, sugg := range repo.suggestions {
		assert.Equal(t, "galaxy update", sugg.Focus)
	}
}

func TestProcessFeedContainsPanicToItem(t *testing.T) {
	repo := newFakeRepo()
	fetcher := &fakeFetcher{feeds: map[string]*feed.Feed{
		"https://example.com/feed": sampleFeed(item(1), item(2)),
	}}
	deriver := &fakeDeriver{panics: true}
	proc := NewProcessor(repo, fetcher, nil, deriver, nil, nil, DefaultProcessorConfig())
	run, store, runID := testRun(t)

	count, err := proc.ProcessFeed(context.Background(), "https://example.com/feed", run)
	require.NoError(t, err)
	// Both items panic after insert, so nothing counts as published but
	// the feed still completes.
	assert.Equal(t, 0, count)
	assert.Equal(t, 2, deriver.calls)

	lines, _, _ := store.Slice(runID, 0)
	var aborted int
	for _, line := range lines {
		if strings.Contains(line.Text, "aborted") {
			aborted++
		}
	}
	assert.Equal(t, 2, aborted)
}

func TestProcessFeedStopsBetweenItems(t *testing.T) {
	repo := newFakeRepo()
	fetcher := &fakeFetcher{feeds: map[string]*feed.Feed{
		"https://example.com/feed": sampleFeed(item(1), item(2), item(3)),
	}}
	proc := NewProcessor(repo, fetcher, nil, nil, nil, nil, DefaultProcessorConfig())
	run, store, runID := testRun(t)

	// Stop immediately after the first published item.
	processed := 0
	innerStop := run.Stop
	run.Stop = func() bool {
		if processed > 0 {
			store.RequestStop(runID)
		}
		processed++
		return innerStop()
	}

	count, err := proc.ProcessFeed(context.Background(), "https://example.com/feed", run)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestProcessFeedResolvesImages(t *testing.T) {
	repo := newFakeRepo()
	fetcher := &fakeFetcher{feeds: map[string]*feed.Feed{
		"https://example.com/feed": sampleFeed(item(1)),
	}}
	resolver := &fakeResolver{}
	proc := NewProcessor(repo, fetcher, nil, nil, nil, resolver, DefaultProcessorConfig())
	run, _, _ := testRun(t)

	_, err := proc.ProcessFeed(context.Background(), "https://example.com/feed", run)
	require.NoError(t, err)
	assert.Equal(t, 1, resolver.calls)
}

func TestEndToEndRunWithDuplicate(t *testing.T) {
	repo := newFakeRepo()

	// One of the three feed items is already stored.
	dup := item(2)
	_, err := repo.InsertArticle(context.Background(), db.NewArticle{
		Title:       dup.Title,
		Body:        dup.Content,
		SourceURL:   dup.Link,
		SourceGUID:  dup.GUID,
		ContentHash: ingestion.ItemHash(dup.GUID, dup.Link),
		Status:      db.StatusPublish,
	})
	require.NoError(t, err)

	fetcher := &fakeFetcher{feeds: map[string]*feed.Feed{
		"https://example.com/feed": sampleFeed(item(1), dup, item(3)),
	}}
	proc := NewProcessor(repo, fetcher, nil, nil, nil, nil, DefaultProcessorConfig())

	store := runlog.NewStore(time.Minute)
	sched := NewScheduler(store, proc)

	runID, err := sched.StartRun(context.Background(), []string{"https://example.com/feed"})
	require.NoError(t, err)

	var lines []runlog.Line
	require.Eventually(t, func() bool {
		var done bool
		lines, _, done = sched.PollLog(runID, 0)
		return done
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, runlog.StatusDone, sched.Status(runID))
	assert.Len(t, repo.articles, 3) // 1 pre-existing + 2 new

	var skips, publishes int
	for _, line := range lines {
		if strings.HasPrefix(line.Text, "Duplicate, skipping:") {
			skips++
		}
		if strings.HasPrefix(line.Text, "Published:") {
			publishes++
		}
	}
	assert.Equal(t, 1, skips)
	assert.Equal(t, 2, publishes)
}

func TestCheckFeedReportsNewItems(t *testing.T) {
	repo := newFakeRepo()
	fetcher := &fakeFetcher{feeds: map[string]*feed.Feed{
		"https://example.com/feed": sampleFeed(item(1), item(2), item(3)),
	}}
	proc := NewProcessor(repo, fetcher, nil, nil, nil, nil, DefaultProcessorConfig())

	// Publish one of the three first.
	run, _, _ := testRun(t)
	cfg := DefaultProcessorConfig()
	cfg.ItemsPerFeed = 1
	one := NewProcessor(repo, fetcher, nil, nil, nil, nil, cfg)
	_, err := one.ProcessFeed(context.Background(), "https://example.com/feed", run)
	require.NoError(t, err)

	result, err := proc.CheckFeed(context.Background(), "https://example.com/feed")
	require.NoError(t, err)
	assert.Equal(t, 3, result.Items)
	assert.Equal(t, 2, result.New)
	assert.Equal(t, "Sample Feed", result.Title)
	assert.Equal(t, "https://example.com/feed", result.ResolvedURL)
}

func TestBulkRewriteOnlyTouchesShortArticles(t *testing.T) {
	repo := newFakeRepo()
	shortID, err := repo.InsertArticle(context.Background(), db.NewArticle{
		Title: "Short", Body: "<p>stub</p>", SourceURL: "https://example.com/a",
		SourceGUID: "a", ContentHash: "hash-a", Status: db.StatusPublish,
	})
	require.NoError(t, err)
	longID, err := repo.InsertArticle(context.Background(), db.NewArticle{
		Title: "Long", Body: "<p>" + longBody(900) + "</p>", SourceURL: "https://example.com/b",
		SourceGUID: "b", ContentHash: "hash-b", Status: db.StatusPublish,
	})
	require.NoError(t, err)

	expander := &fakeExpander{output: "<p>" + longBody(1200) + "</p>"}
	proc := NewProcessor(repo, &fakeFetcher{}, expander, nil, nil, nil, DefaultProcessorConfig())
	run, _, _ := testRun(t)

	count, err := proc.BulkRewrite(context.Background(), 50, run)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, 1, expander.calls)
	assert.True(t, repo.articles[shortID].LLMExpanded)
	assert.False(t, repo.articles[longID].LLMExpanded)
}

func TestBackfillImagesSkipsFailures(t *testing.T) {
	repo := newFakeRepo()
	_, err := repo.InsertArticle(context.Background(), db.NewArticle{
		Title: "Bare", Body: "<p>text</p>", SourceURL: "https://example.com/a",
		SourceGUID: "a", ContentHash: "hash-a", Status: db.StatusPublish,
	})
	require.NoError(t, err)

	resolver := &fakeResolver{fail: true}
	proc := NewProcessor(repo, &fakeFetcher{}, nil, nil, nil, resolver, DefaultProcessorConfig())
	run, _, _ := testRun(t)

	count, err := proc.BackfillImages(context.Background(), 50, run)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Equal(t, 1, resolver.calls)
}
