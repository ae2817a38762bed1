package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsnapp/bsn/lib/models"
	"github.com/bsnapp/bsn/lib/youtube"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

func (p *Poller) pollChannels(ctx context.Context, cycleStartTime time.Time) {
	cycleID := uuid.NewString()
	metrics := &cycleMetrics{}

	err := p.store.ChannelsInBatches(ctx, p.concurrency, func(batch models.Channels) error {
		batchMetrics, errs := p.pollBatch(ctx, batch)
		if len(errs) > 0 {
			p.log.Sugar().Warnf("poll: batch errors: %+v", errs)
		}
		metrics.Add(batchMetrics)
		return nil
	})
	if err != nil {
		p.log.Sugar().Errorw("Failed to scan channels for poll", "cycle_id", cycleID, "err", err)
		return
	}

	if metrics.totalSelected > 0 {
		args := []any{"cycle_id", cycleID}
		if metrics.errored != 0 {
			args = append(args, "errored", metrics.errored)
		}
		if metrics.notified != 0 {
			args = append(args, "notified", metrics.notified)
		}
		if metrics.unchanged != 0 {
			args = append(args, "unchanged", metrics.unchanged)
		}
		if metrics.baselined != 0 {
			args = append(args, "baselined", metrics.baselined)
		}

		p.log.Sugar().Infow(
			fmt.Sprintf("Processed %d channels", metrics.totalSelected),
			args...,
		)
	}

	p.purgeOldUsage(ctx, cycleStartTime)
	p.retuneInterval(ctx)

	used, budget := p.quotaStatus(ctx, cycleStartTime)
	elapsed := time.Now().UTC().Sub(cycleStartTime)
	p.log.Sugar().Infow("Poll cycle completed",
		"cycle_id", cycleID, "elapsed_msecs", int(elapsed.Milliseconds()),
		"quota_used", used, "quota_budget", budget)
}

// quotaStatus reads the units spent in the window containing now, against the
// daily budget of the surviving key set.
func (p *Poller) quotaStatus(ctx context.Context, now time.Time) (used, budget int) {
	start, end := youtube.QuotaWindow(now)
	used, err := p.store.WindowUsage(ctx, start, end)
	if err != nil {
		p.log.Sugar().Warnw("Failed to read quota usage", "err", err)
	}
	return used, youtube.DailyBudget(p.yt.Keys())
}

func (p *Poller) pollBatch(ctx context.Context, batch models.Channels) (*cycleMetrics, []error) {
	var wg sync.WaitGroup
	var errsMu sync.Mutex
	metrics := &cycleMetrics{totalSelected: len(batch)}

	errs := make([]error, 0)
	for i := range batch {
		ch := batch[i]
		wg.Add(1)

		go func() {
			defer wg.Done()
			m, err := p.pollChannel(ctx, &ch)

			errsMu.Lock()
			defer errsMu.Unlock()
			if err != nil {
				errs = append(errs, err)
			}
			metrics.Add(m)
		}()
	}

	wg.Wait()
	return metrics, errs
}

func (p *Poller) pollOne(ctx context.Context, channelID string) {
	ch, err := p.store.GetChannel(ctx, channelID)
	if err != nil {
		p.log.Sugar().Warnw("Cannot poll unknown channel", "channel_id", channelID, "err", err)
		return
	}
	if _, err := p.pollChannel(ctx, ch); err != nil {
		p.log.Sugar().Warnw("On-demand poll failed", "channel_id", channelID, "err", err)
	}
}

// pollChannel fetches a channel's recent uploads, filters out everything at
// or before the last-seen marker, and notifies the rest oldest first. The
// marker only advances after an item's notification is delivered, so a failed
// delivery is re-attempted on the next cycle instead of being lost.
func (p *Poller) pollChannel(ctx context.Context, ch *models.Channel) (*cycleMetrics, error) {
	var m = &cycleMetrics{}
	var errMetric = &cycleMetrics{errored: 1}

	videos, err := p.yt.RecentUploads(ctx, ch, p.fetchWindow)
	if err != nil {
		p.log.Sugar().Errorw("error polling channel", "channel_id", ch.ID, "err", err)
		return errMetric, err
	}
	if len(videos) == 0 {
		// Nothing published yet; a normal, silent case.
		m.unchanged += 1
		return m, nil
	}

	if !ch.LastPublishedAt.Valid {
		// First sight of this channel (or the state was reset). Baseline the
		// marker at the newest upload rather than re-notifying the backlog.
		newest := videos[len(videos)-1]
		if err := p.recordNotified(ctx, ch, &newest); err != nil {
			return errMetric, err
		}
		p.log.Sugar().Infof("Baselined channel %s at video %s", ch.ID, newest.ID)
		m.baselined += 1
		return m, nil
	}

	fresh := make(models.Videos, 0, len(videos))
	for _, v := range videos {
		if !ch.Seen(&v) {
			fresh = append(fresh, v)
		}
	}
	if len(fresh) == 0 {
		m.unchanged += 1
		return m, nil
	}

	// Oldest first, so a mid-stream failure leaves the marker on the last
	// item actually delivered.
	for i := range fresh {
		video := fresh[i]
		if err := p.notify(ctx, ch, &video); err != nil {
			p.log.Sugar().Errorw("Failed to send upload notification",
				"channel_id", ch.ID, "video_id", video.ID, "err", err)
			m.errored += 1
			return m, err
		}
		if err := p.recordNotified(ctx, ch, &video); err != nil {
			return errMetric, err
		}
		m.notified += 1
	}
	return m, nil
}

// notify delivers one upload alert to every configured recipient, retrying
// transient delivery failures with backoff. Any recipient still failing makes
// the whole item count as undelivered.
func (p *Poller) notify(ctx context.Context, ch *models.Channel, video *models.Video) error {
	sender, ok := p.senders["email"]
	if !ok {
		return errors.New("no email sender registered")
	}
	if len(p.cfg.NotifyEmails) == 0 {
		p.log.Sugar().Warnw("NOTIFY_EMAILS is empty, upload not delivered anywhere", "video_id", video.ID)
		return nil
	}

	var errs []error
	for _, recipient := range p.cfg.NotifyEmails {
		policy := backoff.WithContext(backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(p.retryInitial),
			backoff.WithMaxElapsedTime(p.retryMaxElapsed),
		), ctx)

		err := backoff.Retry(func() error {
			id, err := sender.SendUpload(ctx, recipient, ch, video)
			if err != nil {
				return err
			}
			p.log.Sugar().Infow("Sent upload notification",
				"channel_id", ch.ID, "video_id", video.ID, "recipient", recipient, "message_id", id)
			return nil
		}, policy)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Poller) recordNotified(ctx context.Context, ch *models.Channel, video *models.Video) error {
	if err := p.store.ReplaceLatestVideo(ctx, video); err != nil {
		return err
	}
	if err := p.store.SetLastSeen(ctx, ch.ID, video); err != nil {
		return err
	}
	ch.LastVideoID = video.ID
	ch.LastPublishedAt.Time = video.PublishedAt
	ch.LastPublishedAt.Valid = true
	return nil
}

func (p *Poller) purgeOldUsage(ctx context.Context, cycleStartTime time.Time) {
	cutoff := cycleStartTime.Add(-p.usageTTL)

	purged, err := p.store.PurgeOldUsage(ctx, cutoff)
	if err != nil {
		p.log.Sugar().Errorf("purgeOldUsage error: %+v", err)
	}
	if purged > 0 {
		p.log.Sugar().Infof("Purged %d old quota usage rows", purged)
	}
}

// retuneInterval re-derives the poll cadence from the tracked channel count
// and the surviving key count, unless a fixed interval was configured.
func (p *Poller) retuneInterval(ctx context.Context) {
	if p.cfg.PollIntervalSecs > 0 {
		return
	}

	numChannels, err := p.store.CountChannels(ctx)
	if err != nil {
		p.log.Sugar().Warnw("Failed to count channels for interval tuning", "err", err)
		return
	}

	interval := youtube.CycleInterval(numChannels, p.yt.Keys())
	p.alarmClock.Reset(interval)
	p.log.Sugar().Debugw("Tuned poll interval", "interval_secs", int(interval.Seconds()))
}
