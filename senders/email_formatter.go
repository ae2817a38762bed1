package senders

import (
	"fmt"

	"github.com/bsnapp/bsn/lib/models"
)

type uploadAlertFormat struct {
	*models.Channel
	*models.Video
}

func (ef *uploadAlertFormat) Subject() string {
	return fmt.Sprintf("%s has uploaded a new video to YouTube!", ef.Channel.Name)
}

func (ef *uploadAlertFormat) Body() string {
	return fmt.Sprintf(
		`
			<h3><a href="%s">%s</a></h3>
			<p><img src="%s" alt="thumbnail"></p>
			<p>%s<br>Uploaded at: %s</p>
		`,
		ef.Video.URL, ef.Video.Title,
		ef.Video.ThumbnailURL,
		ef.Video.URL, ef.Video.PublishedAt.UTC().Format("2006-01-02 15:04:05 MST"),
	)
}
