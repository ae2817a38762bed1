package app

import (
	"database/sql"
	"time"

	"github.com/bsnapp/bsn/lib/models"
)

type ChannelView struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	VideoCount      int     `json:"video_count"`
	LastVideoID     string  `json:"last_video_id,omitempty"`
	LastPublishedAt *string `json:"last_published_at"`
}

type VideoView struct {
	ID           string `json:"id"`
	ChannelID    string `json:"channel_id"`
	Title        string `json:"title"`
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnail_url"`
	IsShort      bool   `json:"is_short"`
	IsLivestream bool   `json:"is_livestream"`
	PublishedAt  string `json:"published_at"`
}

func (view ChannelView) From(entity *models.Channel) ChannelView {
	return ChannelView{
		ID:              entity.ID,
		Name:            entity.Name,
		VideoCount:      entity.VideoCount,
		LastVideoID:     entity.LastVideoID,
		LastPublishedAt: isoformat(entity.LastPublishedAt),
	}
}

func (view VideoView) From(entity *models.Video) VideoView {
	return VideoView{
		ID:           entity.ID,
		ChannelID:    entity.ChannelID,
		Title:        entity.Title,
		URL:          entity.URL,
		ThumbnailURL: entity.ThumbnailURL,
		IsShort:      entity.IsShort,
		IsLivestream: entity.IsLivestream,
		PublishedAt:  entity.PublishedAt.UTC().Format(time.RFC3339),
	}
}

type Fromable[Entity any, Repr any] interface {
	From(Entity) Repr
}

func FromMany[T any, U Fromable[*T, U]](elems []T) []U {
	out := make([]U, len(elems))
	for i := range elems {
		var u U
		out[i] = u.From(&elems[i])
	}
	return out
}

func isoformat(t sql.NullTime) *string {
	if t.Valid {
		s := t.Time.UTC().Format(time.RFC3339)
		return &s
	}
	return nil
}
