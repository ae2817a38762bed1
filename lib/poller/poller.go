package poller

import (
	"context"
	"sync"
	"time"

	"github.com/bsnapp/bsn/config"
	"github.com/bsnapp/bsn/lib/models"
	"github.com/bsnapp/bsn/lib/store"
	"github.com/bsnapp/bsn/senders"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var mu sync.Mutex

// UploadSource is the slice of the platform client the poller needs.
type UploadSource interface {
	RecentUploads(ctx context.Context, ch *models.Channel, max int) (models.Videos, error)
	Keys() int
}

func NewPoller(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, st *store.Store, yt UploadSource, senders senders.Registry) *Poller {
	fetchWindow := 10               // recent uploads fetched per channel per cycle
	usageTTL := 30 * 24 * time.Hour // quota usage rows are kept for a month
	concurrency := 5

	interval := time.Duration(cfg.PollIntervalSecs) * time.Second
	if interval <= 0 {
		// Until the first cycle counts the tracked channels, poll hourly.
		interval = 1 * time.Hour
	}

	poller := Poller{
		cfg, log, st, yt, senders,
		&mu, concurrency, NewAlarmClock(interval),
		fetchWindow, usageTTL,
		1 * time.Second, 30 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			poller.Start(context.Background())
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Sugar().Info("Trying to stop poller")
			poller.Stop()
			return nil
		},
	})

	return &poller
}

type Poller struct {
	cfg     *config.Config
	log     *zap.Logger
	store   *store.Store
	yt      UploadSource
	senders senders.Registry

	mu          *sync.Mutex
	concurrency int
	alarmClock  *alarmClock

	fetchWindow int           // uploads fetched per channel each cycle
	usageTTL    time.Duration // purge quota usage rows older than this

	retryInitial    time.Duration
	retryMaxElapsed time.Duration
}

func (p *Poller) Start(ctx context.Context) {
	c := p.alarmClock.Start(ctx)

	go func() {
		for evt := range c {
			p.handleEvent(evt)
		}
	}()
}

func (p *Poller) Stop() {
	mu.Lock()
	defer mu.Unlock()
	p.alarmClock.Stop()
	p.log.Sugar().Info("Poller stopped")
}

// Kick asks the poller to poll a single channel as soon as possible, without
// waiting for the next cycle.
func (p *Poller) Kick(channelID string) {
	p.alarmClock.Kick(channelID)
}

func (p *Poller) handleEvent(evt Event) {
	mu.Lock()
	defer mu.Unlock()

	ctx := context.Background()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	switch evt := evt.(type) {
	case pollWakeupEvent:
		p.pollChannels(ctx, evt.Timestamp().UTC())
	case kickEvent:
		p.pollOne(ctx, evt.ChannelID)
	}
}
