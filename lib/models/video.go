package models

import "time"

type Video struct {
	ID           string `gorm:"primaryKey"`
	ChannelID    string `gorm:"index"`
	Title        string
	URL          string
	ThumbnailURL string
	IsShort      bool
	IsLivestream bool
	PublishedAt  time.Time

	Channel Channel
}

type Videos []Video

func VideoURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}
