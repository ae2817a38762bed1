package senders

import (
	"testing"
	"time"

	"github.com/bsnapp/bsn/lib/models"
	"github.com/stretchr/testify/assert"
)

func TestUploadAlertFormat(t *testing.T) {
	ch := &models.Channel{ID: "UCabc", Name: "Some Channel"}
	video := &models.Video{
		ID:           "vid-1",
		Title:        "A New Video",
		URL:          models.VideoURL("vid-1"),
		ThumbnailURL: "http://img/high.jpg",
		PublishedAt:  time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC),
	}

	format := &uploadAlertFormat{ch, video}

	assert.Equal(t, "Some Channel has uploaded a new video to YouTube!", format.Subject())

	body := format.Body()
	assert.Contains(t, body, "A New Video")
	assert.Contains(t, body, "https://www.youtube.com/watch?v=vid-1")
	assert.Contains(t, body, "http://img/high.jpg")
	assert.Contains(t, body, "2024-06-15 12:00:00 UTC")
}
