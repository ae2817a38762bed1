package models

import (
	"database/sql"
	"time"
)

type Channel struct {
	ID   string `gorm:"primaryKey"` // platform channel ID, UC-prefixed
	Name string

	VideoCount      int
	LastVideoID     string
	LastPublishedAt sql.NullTime

	CreatedAt time.Time
	UpdatedAt time.Time
}

type Channels []Channel

// UploadsPlaylistID maps a channel ID onto its uploads playlist. The platform
// derives the playlist by swapping the UC prefix for UU.
func (c *Channel) UploadsPlaylistID() string {
	if len(c.ID) < 2 {
		return c.ID
	}
	return "UU" + c.ID[2:]
}

// Seen reports whether a video is at or before the channel's last-notified
// marker. Novelty is monotonic over (publish time, video ID), matching the
// order uploads are notified in, so items tied on publish time never re-admit
// each other once the later one is the marker.
func (c *Channel) Seen(v *Video) bool {
	if !c.LastPublishedAt.Valid {
		return false
	}
	if v.PublishedAt.Before(c.LastPublishedAt.Time) {
		return true
	}
	if v.PublishedAt.Equal(c.LastPublishedAt.Time) {
		return v.ID <= c.LastVideoID
	}
	return false
}
