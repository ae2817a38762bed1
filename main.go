package main

import (
	"net/http"
	"os"
	"time"

	"github.com/bsnapp/bsn/app"
	"github.com/bsnapp/bsn/config"
	"github.com/bsnapp/bsn/lib"
	"github.com/bsnapp/bsn/lib/poller"
	"github.com/bsnapp/bsn/lib/store"
	"github.com/bsnapp/bsn/lib/youtube"
	"github.com/bsnapp/bsn/senders"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func NewLogger() (*zap.Logger, error) {
	switch os.Getenv("ENVIRONMENT") {
	default:
		return zap.NewDevelopment()

	case "production":
		logCfg := zap.NewProductionConfig()
		logCfg.EncoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
			t = t.UTC()
			zapcore.ISO8601TimeEncoder(t, enc)
		}
		return logCfg.Build()
	}
}

func main() {
	fx.New(
		fx.Provide(config.NewConfig),
		fx.Provide(NewLogger),

		fx.Provide(senders.NewSenderRegistry),

		fx.Provide(app.NewDatabase),
		fx.Provide(app.NewTransport),
		fx.Provide(store.NewStore),
		fx.Provide(youtube.NewClient),
		fx.Provide(func(c *youtube.Client) poller.UploadSource { return c }),
		fx.Provide(poller.NewPoller),
		fx.Provide(lib.NewService),
		fx.Provide(app.NewAPI),

		fx.Invoke(func(*http.Server, *poller.Poller) {}),
	).Run()
}
