package lib

import (
	"context"
	"fmt"

	"github.com/bsnapp/bsn/config"
	"github.com/bsnapp/bsn/lib/models"
	"github.com/bsnapp/bsn/lib/poller"
	"github.com/bsnapp/bsn/lib/store"
	"github.com/bsnapp/bsn/lib/youtube"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Service struct {
	cfg    *config.Config
	log    *zap.Logger
	store  *store.Store
	yt     *youtube.Client
	poller *poller.Poller
}

func NewService(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, st *store.Store, yt *youtube.Client, p *poller.Poller) *Service {
	svc := &Service{cfg, log, st, yt, p}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go svc.seedChannels(context.Background())
			return nil
		},
	})

	return svc
}

// seedChannels registers the channels named in configuration, then merges the
// subscriptions CSV if one is configured. Failures here are logged, not
// fatal; polling proceeds with whatever got registered.
func (svc *Service) seedChannels(ctx context.Context) {
	if len(svc.cfg.ChannelIDs) > 0 {
		infos, err := svc.yt.ResolveChannels(ctx, svc.cfg.ChannelIDs)
		if err != nil {
			svc.log.Sugar().Errorw("Failed to resolve configured channels", "err", err)
		}
		for _, info := range infos {
			if err := svc.store.UpsertChannel(ctx, &models.Channel{
				ID:         info.ID,
				Name:       info.Title,
				VideoCount: info.VideoCount,
			}); err != nil {
				svc.log.Sugar().Errorw("Failed to register channel", "channel_id", info.ID, "err", err)
			}
		}
		svc.log.Sugar().Infof("Registered %d configured channels", len(infos))
	}

	if svc.cfg.SubscriptionsFile != "" {
		count, err := svc.ImportSubscriptions(ctx, svc.cfg.SubscriptionsFile)
		if err != nil {
			svc.log.Sugar().Errorw("Failed to import subscriptions file",
				"path", svc.cfg.SubscriptionsFile, "err", err)
		} else {
			svc.log.Sugar().Infof("Imported %d channels from %s", count, svc.cfg.SubscriptionsFile)
		}
	}
}

// TrackChannel starts watching a channel, resolving its name and upload count
// before registering it. The poller is kicked so the channel gets baselined
// right away instead of on the next cycle.
func (svc *Service) TrackChannel(ctx context.Context, channelID string) (*models.Channel, error) {
	infos, err := svc.yt.ResolveChannels(ctx, []string{channelID})
	if err != nil {
		return nil, err
	}
	if len(infos) == 0 {
		return nil, fmt.Errorf("channel not found: %s", channelID)
	}

	ch := &models.Channel{
		ID:         infos[0].ID,
		Name:       infos[0].Title,
		VideoCount: infos[0].VideoCount,
	}
	if err := svc.store.UpsertChannel(ctx, ch); err != nil {
		return nil, err
	}
	svc.log.Sugar().Infof("Tracking channel %s (%s)", ch.Name, ch.ID)

	svc.poller.Kick(ch.ID)
	return ch, nil
}

func (svc *Service) ListChannels(ctx context.Context) (models.Channels, error) {
	return svc.store.ListChannels(ctx)
}

func (svc *Service) LatestVideo(ctx context.Context, channelID string) (*models.Video, error) {
	return svc.store.LatestVideo(ctx, channelID)
}

func (svc *Service) IsNotFound(err error) bool {
	return svc.store.IsNotFound(err)
}

// Healthcheck probes the platform API with a known channel.
func (svc *Service) Healthcheck(ctx context.Context) error {
	return svc.yt.Probe(ctx)
}
