package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bsnapp/bsn/config"
	"github.com/bsnapp/bsn/lib/models"
	"github.com/bsnapp/bsn/lib/store"
	"github.com/carlmjohnson/requests"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	playlistItemsURL = "https://www.googleapis.com/youtube/v3/playlistItems"
	channelsURL      = "https://www.googleapis.com/youtube/v3/channels"

	// healthcheckChannelID is a well-known channel used to probe API reachability.
	healthcheckChannelID = "UC_x5XG1OV2P6uZZ5FSM9Ttw"
)

var (
	ErrQuotaExhausted = errors.New("API key quota exhausted")
	ErrKeyInvalid     = errors.New("API key rejected as invalid")
)

type Client struct {
	log       *zap.Logger
	transport http.RoundTripper
	store     *store.Store
	ring      *Keyring

	retryInitial    time.Duration
	retryMaxElapsed time.Duration

	windowMu    sync.Mutex
	windowStart time.Time // start of the quota window the ring was last reset in
}

func NewClient(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, transport http.RoundTripper, st *store.Store) *Client {
	keys := cfg.GetAPIKeys()
	log.Sugar().Infof("Credential set holds %d API key(s)", len(keys))

	start, _ := QuotaWindow(time.Now())
	return &Client{
		log:             log,
		transport:       transport,
		store:           st,
		ring:            NewKeyring(keys),
		retryInitial:    1 * time.Second,
		retryMaxElapsed: 30 * time.Second,
		windowStart:     start,
	}
}

func (c *Client) Keys() int {
	return c.ring.Len()
}

type ChannelInfo struct {
	ID         string
	Title      string
	VideoCount int
}

// RecentUploads returns the channel's most recent public uploads, oldest
// first. Non-public items are dropped here so they never reach notification.
func (c *Client) RecentUploads(ctx context.Context, ch *models.Channel, max int) (models.Videos, error) {
	var resp playlistItemsResponse
	err := c.get(ctx, func(rb *requests.Builder) {
		rb.BaseURL(playlistItemsURL).
			Param("part", "snippet,status,contentDetails").
			Param("playlistId", ch.UploadsPlaylistID()).
			Param("maxResults", strconv.Itoa(max)).
			ToJSON(&resp)
	})
	if err != nil {
		return nil, err
	}

	videos := make(models.Videos, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Status.PrivacyStatus != "public" {
			c.log.Sugar().Infof(
				"Skipping video %q from channel %s because it is not public",
				item.Snippet.Title, ch.ID,
			)
			continue
		}

		publishedAt, err := time.Parse(time.RFC3339, item.ContentDetails.VideoPublishedAt)
		if err != nil {
			c.log.Sugar().Warnw("Unparseable publish timestamp",
				"video_id", item.ContentDetails.VideoID, "raw", item.ContentDetails.VideoPublishedAt)
			continue
		}

		videos = append(videos, models.Video{
			ID:           item.ContentDetails.VideoID,
			ChannelID:    ch.ID,
			Title:        item.Snippet.Title,
			URL:          models.VideoURL(item.ContentDetails.VideoID),
			ThumbnailURL: item.Snippet.Thumbnails.High.URL,
			IsShort:      false,
			IsLivestream: false,
			PublishedAt:  publishedAt.UTC(),
		})
	}

	sort.Slice(videos, func(i, j int) bool {
		if videos[i].PublishedAt.Equal(videos[j].PublishedAt) {
			return videos[i].ID < videos[j].ID
		}
		return videos[i].PublishedAt.Before(videos[j].PublishedAt)
	})
	return videos, nil
}

// ResolveChannels looks up title and upload count for the given channel IDs,
// batching up to the list page size per request.
func (c *Client) ResolveChannels(ctx context.Context, channelIDs []string) ([]ChannelInfo, error) {
	infos := make([]ChannelInfo, 0, len(channelIDs))

	for _, chunk := range chunkIDs(channelIDs, listPageSize) {
		var resp channelsResponse
		err := c.get(ctx, func(rb *requests.Builder) {
			rb.BaseURL(channelsURL).
				Param("part", "snippet,statistics").
				Param("id", chunk).
				Param("maxResults", strconv.Itoa(listPageSize)).
				ToJSON(&resp)
		})
		if err != nil {
			return nil, err
		}

		for _, item := range resp.Items {
			count, _ := strconv.Atoi(item.Statistics.VideoCount)
			infos = append(infos, ChannelInfo{
				ID:         item.ID,
				Title:      item.Snippet.Title,
				VideoCount: count,
			})
		}
	}
	return infos, nil
}

// Probe checks that the API is reachable and at least one key works, by
// listing a channel that is known to exist.
func (c *Client) Probe(ctx context.Context) error {
	infos, err := c.ResolveChannels(ctx, []string{healthcheckChannelID})
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		return errors.New("healthcheck channel not found")
	}
	return nil
}

// get runs one API request, rotating through the credential set on quota
// exhaustion and dropping keys the platform rejects outright. Transient
// failures retry with exponential backoff before the key is given up on.
func (c *Client) get(ctx context.Context, configure func(*requests.Builder)) error {
	c.maybeResetRing()

	for attempts := c.ring.Len(); attempts > 0; attempts-- {
		key, err := c.ring.Current()
		if err != nil {
			return err
		}

		err = c.fetchWithRetry(ctx, key, configure)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, ErrQuotaExhausted):
			c.log.Sugar().Warnw("API key quota exhausted, rotating credential set", "key_suffix", keySuffix(key))
			c.ring.Advance(key)
		case errors.Is(err, ErrKeyInvalid):
			c.log.Sugar().Errorw("Dropping invalid API key", "key_suffix", keySuffix(key))
			c.ring.Drop(key)
		default:
			return err
		}
	}

	if c.ring.Len() == 0 {
		return ErrNoUsableKeys
	}
	return fmt.Errorf("%w: all %d key(s) are out of quota", ErrQuotaExhausted, c.ring.Len())
}

func (c *Client) fetchWithRetry(ctx context.Context, key string, configure func(*requests.Builder)) error {
	policy := backoff.WithContext(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(c.retryInitial),
		backoff.WithMaxElapsedTime(c.retryMaxElapsed),
	), ctx)

	return backoff.Retry(func() error {
		var apiErr apiErrorResponse

		rb := requests.New().
			Transport(c.transport).
			Param("key", key).
			ErrorJSON(&apiErr)
		configure(rb)

		c.recordUsage(ctx, 1)

		err := rb.Fetch(ctx)
		if err == nil {
			return nil
		}

		switch apiErr.reason() {
		case "quotaExceeded", "dailyLimitExceeded", "rateLimitExceeded":
			return backoff.Permanent(ErrQuotaExhausted)
		case "keyInvalid", "badRequest":
			return backoff.Permanent(ErrKeyInvalid)
		}
		if requests.HasStatusErr(err, http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound) {
			return backoff.Permanent(err)
		}
		return err // transient; retry
	}, policy)
}

// maybeResetRing returns previously exhausted keys to rotation once the daily
// quota window rolls over.
func (c *Client) maybeResetRing() {
	c.windowMu.Lock()
	defer c.windowMu.Unlock()

	start, _ := QuotaWindow(time.Now())
	if start.After(c.windowStart) {
		c.windowStart = start
		c.ring.Reset()
		c.log.Info("Quota window rolled over, credential set cursor reset")
	}
}

func (c *Client) recordUsage(ctx context.Context, units int) {
	start, end := QuotaWindow(time.Now())
	if err := c.store.RecordUsage(ctx, start, end, units); err != nil {
		c.log.Sugar().Warnw("Failed to record quota usage", "err", err)
	}
}

func chunkIDs(ids []string, size int) []string {
	chunks := make([]string, 0, (len(ids)+size-1)/size)
	for i := 0; i < len(ids); i += size {
		end := i + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, strings.Join(ids[i:end], ","))
	}
	return chunks
}

func keySuffix(key string) string {
	if len(key) <= 4 {
		return key
	}
	return "…" + key[len(key)-4:]
}
