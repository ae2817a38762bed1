package store

import (
	"context"
	"errors"
	"time"

	"github.com/bsnapp/bsn/lib/models"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is the durable record of what has already been notified. It owns the
// per-channel last-seen marker; everything else in the process treats the
// marker as read-only and advances it only through SetLastSeen.
type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewStore(lc fx.Lifecycle, db *gorm.DB, log *zap.Logger) *Store {
	return &Store{db, log}
}

func (s *Store) GetChannel(ctx context.Context, channelID string) (*models.Channel, error) {
	ch := &models.Channel{}
	tx := s.db.WithContext(ctx).Where("id = ?", channelID).First(ch)
	if err := tx.Error; err != nil {
		return nil, err
	}
	return ch, nil
}

func (s *Store) ListChannels(ctx context.Context) (models.Channels, error) {
	var channels models.Channels
	tx := s.db.WithContext(ctx).Order("id").Find(&channels)
	return channels, tx.Error
}

// ChannelsInBatches streams tracked channels to the callback in fixed-size
// batches, so a large subscription list is never held in memory at once.
func (s *Store) ChannelsInBatches(ctx context.Context, size int, fn func(batch models.Channels) error) error {
	var batch models.Channels
	tx := s.db.WithContext(ctx).FindInBatches(&batch, size, func(tx *gorm.DB, n int) error {
		return fn(batch)
	})
	return tx.Error
}

func (s *Store) CountChannels(ctx context.Context) (int, error) {
	var count int64
	tx := s.db.WithContext(ctx).Model(&models.Channel{}).Count(&count)
	return int(count), tx.Error
}

// UpsertChannel registers a channel, preserving the last-seen marker and
// refreshing name/count on conflict.
func (s *Store) UpsertChannel(ctx context.Context, ch *models.Channel) error {
	tx := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "video_count", "updated_at"}),
		}).
		Create(ch)
	return tx.Error
}

// GetLastSeen returns the channel's last-notified marker. A channel that has
// never notified returns ok=false.
func (s *Store) GetLastSeen(ctx context.Context, channelID string) (videoID string, publishedAt time.Time, ok bool, err error) {
	ch, err := s.GetChannel(ctx, channelID)
	if err != nil {
		return "", time.Time{}, false, err
	}
	if !ch.LastPublishedAt.Valid {
		return "", time.Time{}, false, nil
	}
	return ch.LastVideoID, ch.LastPublishedAt.Time, true, nil
}

// SetLastSeen advances the channel's marker to the given video. The update is
// conditional in SQL so the marker never regresses in (publish time, video ID)
// order, no matter how cycles interleave or replay.
func (s *Store) SetLastSeen(ctx context.Context, channelID string, video *models.Video) error {
	tx := s.db.WithContext(ctx).
		Model(&models.Channel{}).
		Where("id = ?", channelID).
		Where(
			"last_published_at IS NULL OR last_published_at < ? OR (last_published_at = ? AND last_video_id <= ?)",
			video.PublishedAt, video.PublishedAt, video.ID,
		).
		Updates(map[string]any{
			"last_video_id":     video.ID,
			"last_published_at": video.PublishedAt,
		})
	if err := tx.Error; err != nil {
		return err
	}
	if tx.RowsAffected == 0 {
		// Stale write; the stored marker is already newer. Not an error.
		s.log.Sugar().Debugw("Skipped stale last-seen update", "channel_id", channelID, "video_id", video.ID)
	}
	return nil
}

// ReplaceLatestVideo keeps a single latest-upload row per channel.
func (s *Store) ReplaceLatestVideo(ctx context.Context, video *models.Video) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.Video{}, "channel_id = ?", video.ChannelID).Error; err != nil {
			return err
		}
		return tx.Create(video).Error
	})
}

func (s *Store) LatestVideo(ctx context.Context, channelID string) (*models.Video, error) {
	video := &models.Video{}
	tx := s.db.WithContext(ctx).
		Where("channel_id = ?", channelID).
		Order("published_at desc").
		First(video)
	if err := tx.Error; err != nil {
		return nil, err
	}
	return video, nil
}

func (s *Store) IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
