package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bsnapp/bsn/config"
	"github.com/bsnapp/bsn/lib"
	"github.com/bsnapp/bsn/lib/models"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func NewAPI(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, svc *lib.Service) *http.Server {
	addr := fmt.Sprintf(":%d", cfg.ServerPort)
	srv := &http.Server{Addr: addr, Handler: router(cfg, log, svc)}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go srv.ListenAndServe()
			return nil
		},
		OnStop: srv.Shutdown,
	})

	return srv
}

func router(cfg *config.Config, log *zap.Logger, svc *lib.Service) http.Handler {
	ctrl := &controller{log, svc}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", ctrl.healthcheck)

	r.Route("/api", func(r chi.Router) {
		if creds := cfg.GetCreds(); len(creds) > 0 {
			r.Use(middleware.BasicAuth("bsn", creds))
		} else {
			log.Sugar().Info("Auth is disabled since no credentials are defined")
		}

		r.Route("/channels", func(r chi.Router) {
			r.Get("/", ctrl.listChannels)
			r.Post("/", ctrl.trackChannel)
			r.Get("/{channel_id}/latest", ctrl.latestVideo)
		})
	})

	return r
}

type controller struct {
	log *zap.Logger
	svc *lib.Service
}

func (ctrl *controller) reject(w http.ResponseWriter, status int, err error) {
	if err != nil {
		http.Error(w, err.Error(), status)
	} else {
		w.WriteHeader(status)
	}
}

func (ctrl *controller) resolve(w http.ResponseWriter, status int, body any) {
	if b, err := json.Marshal(body); err != nil {
		ctrl.reject(w, http.StatusInternalServerError, err)
		ctrl.log.Sugar().Error("Request failed", "error", err)
		return
	} else {
		w.WriteHeader(status)
		if b != nil {
			w.Write(b)
		}
	}
}

func (ctrl *controller) healthcheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := ctrl.svc.Healthcheck(ctx); err != nil {
		ctrl.log.Sugar().Errorw("Healthcheck failed", "err", err)
		ctrl.reject(w, http.StatusServiceUnavailable, err)
		return
	}
	w.Write([]byte("ok"))
}

func (ctrl *controller) listChannels(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	channels, err := ctrl.svc.ListChannels(ctx)
	if err != nil {
		ctrl.reject(w, 500, err)
		return
	}
	ctrl.resolve(w, 200, FromMany[models.Channel, ChannelView](channels))
}

func (ctrl *controller) trackChannel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	channelID := r.FormValue("channel_id")

	if channelID == "" {
		ctrl.reject(w, 400, errors.New("channel_id is required"))
		return
	}

	ch, err := ctrl.svc.TrackChannel(ctx, channelID)
	if err != nil {
		ctrl.reject(w, 500, err)
		return
	}
	ctrl.resolve(w, http.StatusAccepted, ChannelView{}.From(ch))
}

func (ctrl *controller) latestVideo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	channelID := chi.URLParam(r, "channel_id")

	video, err := ctrl.svc.LatestVideo(ctx, channelID)
	if err != nil {
		if ctrl.svc.IsNotFound(err) {
			ctrl.reject(w, 404, err)
		} else {
			ctrl.reject(w, 500, err)
		}
		return
	}
	ctrl.resolve(w, 200, VideoView{}.From(video))
}
