package lib

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"github.com/bsnapp/bsn/lib/models"
)

// ImportSubscriptions merges a subscriptions CSV export into the tracked
// channels. The expected layout is the Takeout format: a header row followed
// by "channel id,channel url,channel title" rows. Already-tracked channels
// keep their last-seen marker.
func (svc *Service) ImportSubscriptions(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // tolerate trailing columns

	records, err := r.ReadAll()
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	imported := 0
	for i, record := range records {
		if len(record) == 0 {
			continue
		}
		channelID := strings.TrimSpace(record[0])
		if channelID == "" {
			continue
		}
		if i == 0 && strings.EqualFold(channelID, "Channel Id") {
			continue // header row
		}

		name := ""
		if len(record) >= 3 {
			name = strings.TrimSpace(record[2])
		}

		if err := svc.store.UpsertChannel(ctx, &models.Channel{ID: channelID, Name: name}); err != nil {
			svc.log.Sugar().Errorw("Failed to import channel", "channel_id", channelID, "err", err)
			continue
		}
		imported++
	}

	return imported, nil
}
