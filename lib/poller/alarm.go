package poller

import (
	"context"
	"time"
)

type Event interface {
	Timestamp() time.Time
}

type event struct{ timestamp time.Time }

func (e event) Timestamp() time.Time { return e.timestamp }

type pollWakeupEvent struct {
	event
}

type kickEvent struct {
	event
	ChannelID string
}

// alarmClock drives the poll loop: a ticker with an immediate first tick,
// plus an out-of-band kick channel for polling a single channel on demand.
type alarmClock struct {
	cancel      func()
	wakeupTimer *time.Ticker
	kickC       chan kickEvent
	C           chan Event
}

func NewAlarmClock(wakeupInterval time.Duration) *alarmClock {
	return &alarmClock{
		wakeupTimer: time.NewTicker(wakeupInterval),
		kickC:       make(chan kickEvent, 1),
		C:           make(chan Event),
	}
}

func (a *alarmClock) Start(ctx context.Context) <-chan Event {
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	go func() {
		defer close(a.C)

		a.C <- pollWakeupEvent{event{time.Now()}}

		for {
			select {
			case t := <-a.wakeupTimer.C:
				a.C <- pollWakeupEvent{event{t}}

			case kick := <-a.kickC:
				a.C <- kick

			case <-ctx.Done():
				return
			}
		}
	}()

	return a.C
}

// Kick schedules an immediate poll of one channel. Dropped silently when a
// kick is already pending.
func (a *alarmClock) Kick(channelID string) {
	select {
	case a.kickC <- kickEvent{event{time.Now()}, channelID}:
	default:
	}
}

// Reset changes the wakeup cadence without restarting the clock.
func (a *alarmClock) Reset(interval time.Duration) {
	a.wakeupTimer.Reset(interval)
}

func (a *alarmClock) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	a.wakeupTimer.Stop()
}
