package poller

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bsnapp/bsn/config"
	"github.com/bsnapp/bsn/lib/models"
	"github.com/bsnapp/bsn/lib/store"
	"github.com/bsnapp/bsn/lib/youtube"
	"github.com/bsnapp/bsn/senders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type fakeSource struct {
	mu     sync.Mutex
	videos map[string]models.Videos // channel ID -> canned uploads
	errFor map[string]error
}

func (f *fakeSource) RecentUploads(ctx context.Context, ch *models.Channel, max int) (models.Videos, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errFor[ch.ID]; err != nil {
		return nil, err
	}
	return f.videos[ch.ID], nil
}

func (f *fakeSource) Keys() int { return 1 }

type fakeSender struct {
	mu    sync.Mutex
	sent  []string // "<recipient>:<video ID>"
	fails int      // fail this many sends before succeeding
}

func (f *fakeSender) SendUpload(ctx context.Context, recipient string, ch *models.Channel, video *models.Video) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails > 0 {
		f.fails--
		return "", errors.New("delivery refused")
	}
	f.sent = append(f.sent, fmt.Sprintf("%s:%s", recipient, video.ID))
	return "msg-id", nil
}

func (f *fakeSender) sentIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func testPoller(t *testing.T, src *fakeSource, snd *fakeSender) (*Poller, *store.Store) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "bsn_test.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Channel{}, &models.Video{}, &models.QuotaUsage{}))

	log := zap.NewNop()
	st := store.NewStore(nil, db, log)

	cfg := &config.Config{NotifyEmails: []string{"alerts@example.com"}, PollIntervalSecs: 3600}
	p := &Poller{
		cfg:             cfg,
		log:             log,
		store:           st,
		yt:              src,
		senders:         senders.Registry{"email": snd},
		mu:              &sync.Mutex{},
		concurrency:     2,
		fetchWindow:     10,
		usageTTL:        30 * 24 * time.Hour,
		retryInitial:    time.Millisecond,
		retryMaxElapsed: 10 * time.Millisecond,
	}
	return p, st
}

func seedChannel(t *testing.T, st *store.Store, ch *models.Channel) {
	t.Helper()
	require.NoError(t, st.UpsertChannel(context.Background(), ch))
}

func upload(id string, publishedAt time.Time) models.Video {
	return models.Video{
		ID:          id,
		ChannelID:   "UCabc",
		Title:       "video " + id,
		URL:         models.VideoURL(id),
		PublishedAt: publishedAt,
	}
}

func TestPollChannel_BaselinesFirstSight(t *testing.T) {
	base := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{videos: map[string]models.Videos{
		"UCabc": {upload("vid-1", base), upload("vid-2", base.Add(time.Hour))},
	}}
	snd := &fakeSender{}
	p, st := testPoller(t, src, snd)
	seedChannel(t, st, &models.Channel{ID: "UCabc", Name: "Some Channel"})

	ch, err := st.GetChannel(context.Background(), "UCabc")
	require.NoError(t, err)

	m, err := p.pollChannel(context.Background(), ch)
	require.NoError(t, err)
	assert.Equal(t, 1, m.baselined)
	assert.Empty(t, snd.sentIDs(), "backlog is not notified on first sight")

	id, _, ok, err := st.GetLastSeen(context.Background(), "UCabc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "vid-2", id, "marker baselines at the newest upload")
}

func TestPollChannel_NotifiesNewUploadsOldestFirst(t *testing.T) {
	base := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{videos: map[string]models.Videos{
		"UCabc": {
			upload("vid-1", base.Add(-time.Hour)), // at the marker
			upload("vid-2", base.Add(time.Hour)),
			upload("vid-3", base.Add(2 * time.Hour)),
		},
	}}
	snd := &fakeSender{}
	p, st := testPoller(t, src, snd)
	seedChannel(t, st, &models.Channel{ID: "UCabc", Name: "Some Channel"})
	require.NoError(t, st.SetLastSeen(context.Background(), "UCabc", &models.Video{ID: "vid-1", PublishedAt: base.Add(-time.Hour)}))

	ch, err := st.GetChannel(context.Background(), "UCabc")
	require.NoError(t, err)

	m, err := p.pollChannel(context.Background(), ch)
	require.NoError(t, err)
	assert.Equal(t, 2, m.notified)
	assert.Equal(t, []string{"alerts@example.com:vid-2", "alerts@example.com:vid-3"}, snd.sentIDs())

	id, _, ok, err := st.GetLastSeen(context.Background(), "UCabc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "vid-3", id)
}

func TestPollChannel_NoDuplicateAcrossCycles(t *testing.T) {
	base := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{videos: map[string]models.Videos{
		"UCabc": {upload("vid-1", base), upload("vid-2", base.Add(time.Hour))},
	}}
	snd := &fakeSender{}
	p, st := testPoller(t, src, snd)
	seedChannel(t, st, &models.Channel{ID: "UCabc"})
	require.NoError(t, st.SetLastSeen(context.Background(), "UCabc", &models.Video{ID: "vid-0", PublishedAt: base.Add(-time.Hour)}))

	for cycle := 0; cycle < 3; cycle++ {
		ch, err := st.GetChannel(context.Background(), "UCabc")
		require.NoError(t, err)
		_, err = p.pollChannel(context.Background(), ch)
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"alerts@example.com:vid-1", "alerts@example.com:vid-2"}, snd.sentIDs(),
		"repeated cycles never re-notify")
}

func TestPollChannel_NoDuplicateOnTiedPublishTime(t *testing.T) {
	base := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{videos: map[string]models.Videos{
		"UCabc": {upload("vid-a", base), upload("vid-b", base)},
	}}
	snd := &fakeSender{}
	p, st := testPoller(t, src, snd)
	seedChannel(t, st, &models.Channel{ID: "UCabc"})
	require.NoError(t, st.SetLastSeen(context.Background(), "UCabc", &models.Video{ID: "vid-0", PublishedAt: base.Add(-time.Hour)}))

	for cycle := 0; cycle < 3; cycle++ {
		ch, err := st.GetChannel(context.Background(), "UCabc")
		require.NoError(t, err)
		_, err = p.pollChannel(context.Background(), ch)
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"alerts@example.com:vid-a", "alerts@example.com:vid-b"}, snd.sentIDs(),
		"uploads sharing a publish timestamp are notified exactly once")
}

func TestPollChannel_DeliveryFailureKeepsItem(t *testing.T) {
	base := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{videos: map[string]models.Videos{
		"UCabc": {upload("vid-1", base)},
	}}
	snd := &fakeSender{fails: 1000} // exhaust every retry for now
	p, st := testPoller(t, src, snd)
	seedChannel(t, st, &models.Channel{ID: "UCabc"})
	require.NoError(t, st.SetLastSeen(context.Background(), "UCabc", &models.Video{ID: "vid-0", PublishedAt: base.Add(-time.Hour)}))

	ch, err := st.GetChannel(context.Background(), "UCabc")
	require.NoError(t, err)
	m, err := p.pollChannel(context.Background(), ch)
	require.Error(t, err)
	assert.Equal(t, 1, m.errored)

	id, _, _, err := st.GetLastSeen(context.Background(), "UCabc")
	require.NoError(t, err)
	assert.Equal(t, "vid-0", id, "undelivered item must not advance the marker")

	// Delivery recovers; the next cycle re-notifies the same item.
	snd.mu.Lock()
	snd.fails = 0
	snd.mu.Unlock()

	ch, err = st.GetChannel(context.Background(), "UCabc")
	require.NoError(t, err)
	m, err = p.pollChannel(context.Background(), ch)
	require.NoError(t, err)
	assert.Equal(t, 1, m.notified)
	assert.Equal(t, []string{"alerts@example.com:vid-1"}, snd.sentIDs())
}

func TestPollChannel_EmptyResultIsSilent(t *testing.T) {
	src := &fakeSource{videos: map[string]models.Videos{}}
	snd := &fakeSender{}
	p, st := testPoller(t, src, snd)
	seedChannel(t, st, &models.Channel{ID: "UCabc"})

	ch, err := st.GetChannel(context.Background(), "UCabc")
	require.NoError(t, err)
	m, err := p.pollChannel(context.Background(), ch)
	require.NoError(t, err)
	assert.Equal(t, 1, m.unchanged)
	assert.Empty(t, snd.sentIDs())
}

func TestQuotaStatus(t *testing.T) {
	src := &fakeSource{}
	p, st := testPoller(t, src, &fakeSender{})

	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	start, end := youtube.QuotaWindow(now)
	require.NoError(t, st.RecordUsage(context.Background(), start, end, 7))

	used, budget := p.quotaStatus(context.Background(), now)
	assert.Equal(t, 7, used)
	assert.Equal(t, youtube.DailyBudget(src.Keys()), budget)

	// A fresh window reads as zero spent.
	used, _ = p.quotaStatus(context.Background(), now.AddDate(0, 0, 2))
	assert.Equal(t, 0, used)
}

func TestPollChannels_SourceErrorSkipsChannelNotCycle(t *testing.T) {
	base := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{
		videos: map[string]models.Videos{
			"UCgood": {{ID: "vid-1", ChannelID: "UCgood", PublishedAt: base}},
		},
		errFor: map[string]error{"UCbad": errors.New("all keys are out of quota")},
	}
	snd := &fakeSender{}
	p, st := testPoller(t, src, snd)
	seedChannel(t, st, &models.Channel{ID: "UCbad"})
	seedChannel(t, st, &models.Channel{ID: "UCgood"})

	// The bad channel errors the whole cycle through, the good one still
	// gets baselined.
	p.pollChannels(context.Background(), time.Now().UTC())

	_, _, ok, err := st.GetLastSeen(context.Background(), "UCgood")
	require.NoError(t, err)
	assert.True(t, ok)

	_, _, ok, err = st.GetLastSeen(context.Background(), "UCbad")
	require.NoError(t, err)
	assert.False(t, ok)
}
