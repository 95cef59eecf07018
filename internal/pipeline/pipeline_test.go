package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/analytica/internal/classifier"
	"github.com/JakeFAU/analytica/internal/collector"
	"github.com/JakeFAU/analytica/internal/hash/sha256"
	"github.com/JakeFAU/analytica/internal/preprocess"
	publishermemory "github.com/JakeFAU/analytica/internal/publisher/memory"
	"github.com/JakeFAU/analytica/internal/session"
	"github.com/JakeFAU/analytica/internal/social"
	"github.com/JakeFAU/analytica/internal/social/socialtest"
	"github.com/JakeFAU/analytica/internal/storage/memory"
	"github.com/JakeFAU/analytica/internal/store"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (s *seqIDs) NewID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("run-%d", s.n), nil
}

type fakeClassifier struct {
	mu          sync.Mutex
	labels      map[classifier.Dimension]string
	unavailable map[classifier.Dimension]bool
	texts       []string
}

func (f *fakeClassifier) Classify(_ context.Context, d classifier.Dimension, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	if f.unavailable[d] {
		return "", fmt.Errorf("%w: %s", classifier.ErrModelUnavailable, d)
	}
	return f.labels[d], nil
}

type fixedDetector string

func (d fixedDetector) Detect(string) string { return string(d) }

type upperTranslator struct{}

func (upperTranslator) Translate(_ context.Context, text, _ string) (string, error) {
	return strings.ToUpper(text), nil
}

type failingPosts struct{}

func (failingPosts) Upsert(context.Context, social.LabeledPost) error { return errors.New("disk full") }

type stubCollector struct {
	posts []social.Post
	err   error
}

func (s stubCollector) Collect(context.Context, social.Browser, social.Request) ([]social.Post, error) {
	return s.posts, s.err
}

// newSessions returns a manager whose browser serves a login form on the
// first tab and feed on every later one.
func newSessions(t *testing.T, feed func() *socialtest.Page) (*session.Manager, *socialtest.Launcher) {
	t.Helper()
	cfg := session.DefaultConfig("")
	cfg.SettleDelay = 0
	launcher := &socialtest.Launcher{Factory: func(int) *socialtest.Browser {
		tabs := 0
		return &socialtest.Browser{PageFactory: func() *socialtest.Page {
			tabs++
			if tabs == 1 {
				return loginPage(cfg)
			}
			return feed()
		}}
	}}
	m, err := session.NewManager(launcher, session.Credentials{Username: "bot", Password: "pw"}, cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m, launcher
}

func loginPage(cfg session.Config) *socialtest.Page {
	p := socialtest.NewPage()
	p.Show(cfg.UsernameSelector, true)
	p.AfterFill = func(p *socialtest.Page, f socialtest.Fill) {
		p.Show(f.Selector, false)
		if f.Selector == cfg.UsernameSelector {
			p.Show(cfg.PasswordSelector, true)
		}
	}
	return p
}

func hashtagFeed() *socialtest.Page {
	p := socialtest.NewPage()
	p.Feed = []social.Card{
		socialtest.PostCard("1", "@a", "first #test", "2024-05-01T12:00:01Z"),
		socialtest.PostCard("2", "@b", "second #test", "2024-05-01T12:00:02Z"),
		socialtest.PostCard("3", "@c", "third #test", "2024-05-01T12:00:03Z"),
	}
	return p
}

type fixture struct {
	pipeline  *Pipeline
	launcher  *socialtest.Launcher
	posts     *memory.PostStore
	runs      *memory.RunStore
	blobs     *memory.BlobStore
	publisher *publishermemory.Publisher
	classify  *fakeClassifier
}

func newFixture(t *testing.T, mutate func(*Deps)) *fixture {
	t.Helper()
	sessions, launcher := newSessions(t, hashtagFeed)
	coll, err := collector.New(collector.Config{MaxStagnant: 1}, sha256.New(), nil, zap.NewNop())
	require.NoError(t, err)

	f := &fixture{
		launcher:  launcher,
		posts:     memory.NewPostStore(),
		runs:      memory.NewRunStore(),
		blobs:     memory.NewBlobStore(),
		publisher: publishermemory.New(),
		classify: &fakeClassifier{
			labels: map[classifier.Dimension]string{
				classifier.Sentiment: "Positive",
				classifier.Toxicity:  "not-offensive",
				classifier.Emotion:   "joy",
			},
			unavailable: map[classifier.Dimension]bool{},
		},
	}
	deps := Deps{
		Sessions:   sessions,
		Collector:  coll,
		Preprocess: preprocess.NewStage(fixedDetector("en"), nil, preprocess.Config{}, zap.NewNop()),
		Classifier: f.classify,
		Posts:      f.posts,
		Runs:       f.runs,
		Blobs:      f.blobs,
		Publisher:  f.publisher,
		IDs:        &seqIDs{},
		Clock:      &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
	}
	if mutate != nil {
		mutate(&deps)
	}
	f.pipeline, err = New(deps, Config{Topic: "runs"}, zap.NewNop())
	require.NoError(t, err)
	return f
}

var hashtagTest = social.Request{Kind: social.TargetHashtag, Target: "test", Limit: 3}

func TestRunHashtagEndToEnd(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	res, err := f.pipeline.Run(context.Background(), hashtagTest, nil)
	require.NoError(t, err)

	require.Equal(t, "run-1", res.RunID)
	require.False(t, res.Partial)
	require.Len(t, res.Posts, 3)
	for i, p := range res.Posts {
		require.Equal(t, fmt.Sprintf("%d", i+1), p.PlatformID)
		require.Equal(t, "en", p.Language)
		require.Empty(t, p.TranslatedText)
		require.Equal(t, "Positive", p.Labels["sentiment"])
		require.Equal(t, "joy", p.Labels["emotion"])
		require.Equal(t, "run-1", p.RunID)
	}
	require.Equal(t, 3, f.posts.Len())

	run, err := f.runs.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	require.Equal(t, store.RunSuccess, run.Status)
	require.Equal(t, 3, run.Collected)
	require.Equal(t, []string{"sentiment", "toxicity", "emotion"}, run.Dimensions)

	require.Equal(t, "memory://runs/2024/05/01/run-1.json", res.ArchiveURI)
	_, contentType, ok := f.blobs.Object("runs/2024/05/01/run-1.json")
	require.True(t, ok)
	require.Equal(t, "application/json", contentType)

	msgs := f.publisher.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "runs", msgs[0].Topic)
	require.Equal(t, "run-1", msgs[0].Attributes["run_id"])
	summary, ok := msgs[0].Payload.(Summary)
	require.True(t, ok)
	require.Equal(t, 3, summary.Labels["toxicity"]["not-offensive"])
}

func TestRunTwiceDoesNotDuplicatePosts(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	_, err := f.pipeline.Run(context.Background(), hashtagTest, nil)
	require.NoError(t, err)
	res, err := f.pipeline.Run(context.Background(), hashtagTest, []classifier.Dimension{classifier.Sentiment})
	require.NoError(t, err)

	require.Equal(t, 3, f.posts.Len())
	stored, ok := f.posts.Get(res.Posts[0].Key())
	require.True(t, ok)
	require.Equal(t, "run-2", stored.RunID)
	require.Equal(t, "joy", stored.Labels["emotion"])
	require.Len(t, f.launcher.Launched(), 1)
}

func TestRunModelUnavailableDegradesPerDimension(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.classify.unavailable[classifier.Toxicity] = true

	res, err := f.pipeline.Run(context.Background(), hashtagTest, nil)
	require.NoError(t, err)
	for _, p := range res.Posts {
		require.Equal(t, []string{"toxicity"}, p.Unavailable)
		_, has := p.Label("toxicity")
		require.False(t, has)
		require.Equal(t, "Positive", p.Labels["sentiment"])
	}
}

func TestRunRejectsInvalidRequestBeforeSessionWork(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	_, err := f.pipeline.Run(context.Background(), social.Request{Kind: social.TargetHashtag, Target: "", Limit: 3}, nil)
	require.ErrorIs(t, err, social.ErrInvalidInput)
	_, err = f.pipeline.Run(context.Background(), social.Request{Kind: social.TargetProfile, Target: "x", Limit: -1}, nil)
	require.ErrorIs(t, err, social.ErrInvalidInput)
	require.Empty(t, f.launcher.Launched())
}

func TestRunCollectFailureIsSingleError(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(d *Deps) {
		d.Collector = stubCollector{err: errors.New("navigate: net::ERR_CONNECTION_RESET")}
	})
	_, err := f.pipeline.Run(context.Background(), hashtagTest, nil)
	require.ErrorContains(t, err, "ERR_CONNECTION_RESET")
	require.Zero(t, f.posts.Len())
	require.Empty(t, f.publisher.Messages())

	run, getErr := f.runs.GetRun(context.Background(), "run-1")
	require.NoError(t, getErr)
	require.Equal(t, store.RunError, run.Status)
	require.NotNil(t, run.ErrorMessage)
}

func TestRunPartialOnCollectDeadline(t *testing.T) {
	t.Parallel()

	partial := []social.Post{{PlatformID: "9", Handle: "@a", Text: "late", Timestamp: "2024-05-01T12:00:09Z"}}
	f := newFixture(t, func(d *Deps) {
		d.Collector = stubCollector{posts: partial, err: fmt.Errorf("scroll: %w", context.DeadlineExceeded)}
	})
	res, err := f.pipeline.Run(context.Background(), hashtagTest, nil)
	require.NoError(t, err)
	require.True(t, res.Partial)
	require.Len(t, res.Posts, 1)

	run, err := f.runs.GetRun(context.Background(), res.RunID)
	require.NoError(t, err)
	require.Equal(t, store.RunPartial, run.Status)
}

func TestRunDeadlineWithNothingCollectedFails(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(d *Deps) {
		d.Collector = stubCollector{err: context.DeadlineExceeded}
	})
	_, err := f.pipeline.Run(context.Background(), hashtagTest, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunEmptyCollectionIsSuccess(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(d *Deps) { d.Collector = stubCollector{} })
	res, err := f.pipeline.Run(context.Background(), hashtagTest, nil)
	require.NoError(t, err)
	require.Empty(t, res.Posts)
	require.Equal(t, store.RunSuccess, res.Status())
}

func TestRunStoreFailureFailsRun(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(d *Deps) { d.Posts = failingPosts{} })
	_, err := f.pipeline.Run(context.Background(), hashtagTest, nil)
	require.ErrorContains(t, err, "disk full")
	run, getErr := f.runs.GetRun(context.Background(), "run-1")
	require.NoError(t, getErr)
	require.Equal(t, store.RunError, run.Status)
}

func TestRunTranslatesBeforeClassifying(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(d *Deps) {
		d.Preprocess = preprocess.NewStage(fixedDetector("es"), upperTranslator{}, preprocess.Config{}, zap.NewNop())
	})
	res, err := f.pipeline.Run(context.Background(), hashtagTest, []classifier.Dimension{classifier.Sentiment})
	require.NoError(t, err)
	require.Equal(t, "FIRST #TEST", res.Posts[0].TranslatedText)
	require.Equal(t, "es", res.Posts[0].Language)

	f.classify.mu.Lock()
	defer f.classify.mu.Unlock()
	require.Contains(t, f.classify.texts, "FIRST #TEST")
}

func TestRunPublishFailureIsBestEffort(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.publisher.FailWith(errors.New("topic not found"))
	res, err := f.pipeline.Run(context.Background(), hashtagTest, nil)
	require.NoError(t, err)
	require.Len(t, res.Posts, 3)
}

func TestNewValidatesDeps(t *testing.T) {
	t.Parallel()

	_, err := New(Deps{}, Config{}, nil)
	require.Error(t, err)
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	res := Result{
		RunID:      "r",
		Request:    social.Request{Kind: social.TargetProfile, Target: "nasa"},
		Dimensions: []string{"sentiment", "emotion"},
		Posts: []social.LabeledPost{
			{Language: "en", Labels: map[string]string{"sentiment": "Positive"}},
			{Language: "en", Labels: map[string]string{"sentiment": "Negative"}},
			{Language: "fr", Labels: map[string]string{"sentiment": "Positive"}},
		},
		Partial: true,
	}
	s := Summarize(res)
	require.Equal(t, "partial", s.Status)
	require.Equal(t, 3, s.Collected)
	require.Equal(t, map[string]int{"Positive": 2, "Negative": 1}, s.Labels["sentiment"])
	require.Empty(t, s.Labels["emotion"])
	require.Equal(t, map[string]int{"en": 2, "fr": 1}, s.Languages)
	require.Equal(t, "profile", s.Attributes()["kind"])
}

func TestRunJobKeepsQueuedID(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	res, err := f.pipeline.RunJob(context.Background(), Job{ID: "job-42", Name: "golang", Request: hashtagTest})
	require.NoError(t, err)
	require.Equal(t, "job-42", res.RunID)

	run, err := f.runs.GetRun(context.Background(), "job-42")
	require.NoError(t, err)
	require.Equal(t, "golang", run.JobName)
}
