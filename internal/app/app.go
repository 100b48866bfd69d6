package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jaennil/guide_helper/backend/vtiles/internal/decoder"
	"github.com/jaennil/guide_helper/backend/vtiles/internal/fetcher"
	v1 "github.com/jaennil/guide_helper/backend/vtiles/internal/infrastructure/http/v1"
	"github.com/jaennil/guide_helper/backend/vtiles/internal/infrastructure/http/v1/handler"
	"github.com/jaennil/guide_helper/backend/vtiles/internal/layer"
	"github.com/jaennil/guide_helper/backend/vtiles/internal/provider"
	"github.com/jaennil/guide_helper/backend/vtiles/internal/repository/cache"
	"github.com/jaennil/guide_helper/backend/vtiles/internal/tiling"
	"github.com/jaennil/guide_helper/backend/vtiles/internal/usecase"
	"github.com/jaennil/guide_helper/backend/vtiles/pkg/config"
	"github.com/jaennil/guide_helper/backend/vtiles/pkg/http_server"
	"github.com/jaennil/guide_helper/backend/vtiles/pkg/logger"
	"github.com/jaennil/guide_helper/backend/vtiles/pkg/telemetry"
	"github.com/paulmach/orb"
)

func Run(cfg *config.Config) {
	l := logger.NewZapLogger(cfg.Logger.Level)

	l.Info("app config", "cfg", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctx = logger.WithLogger(ctx, l)

	if cfg.Telemetry.Enabled {
		shutdownTelemetry, err := telemetry.InitTracer(telemetry.Config{
			ServiceName:    cfg.Telemetry.ServiceName,
			ServiceVersion: cfg.Telemetry.ServiceVersion,
			Environment:    cfg.Telemetry.Environment,
			OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		}, l)
		if err != nil {
			l.Fatal("failed to initialize telemetry", "error", err)
		}
		defer func() {
			if err := shutdownTelemetry(context.Background()); err != nil {
				l.Error("failed to shutdown telemetry", "error", err)
			}
		}()
		l.Info("telemetry initialized", "service", cfg.Telemetry.ServiceName)
	}

	pyramid, err := newPyramid(cfg.Pyramid)
	if err != nil {
		l.Fatal("failed to build tile pyramid", "error", err)
	}

	tileCache, err := cache.New(cfg, l)
	if err != nil {
		l.Fatal("failed to initialize tile cache", "error", err)
	}
	defer func() {
		if err := cache.Close(tileCache); err != nil {
			l.Error("failed to close tile cache", "error", err)
		}
	}()

	tileFetcher := fetcher.NewHTTPFetcher(
		fetcher.TemplateResolver(cfg.Source.URLTemplate, pyramid),
		fetcher.HTTPConfig{
			Timeout:      cfg.Source.Timeout,
			UserAgent:    cfg.Source.UserAgent,
			MaxIdleConns: cfg.Source.MaxIdleConns,
		},
		l,
	)

	tileDecoder, err := decoder.NewMVTDecoder()
	if err != nil {
		l.Fatal("failed to initialize decoder", "error", err)
	}
	defer tileDecoder.Close()

	tileProvider := provider.New(provider.Config{
		Workers:          cfg.Provider.Workers,
		CompletionBuffer: cfg.Provider.CompletionBuffer,
		FetchTimeout:     cfg.Provider.FetchTimeout,
	}, pyramid, tileCache, tileFetcher, tileDecoder, l)
	defer tileProvider.Close()

	tileLayer, err := layer.New(layer.Config{
		RetainTiles:    cfg.Layer.RetainTiles,
		HitTolerancePx: cfg.Layer.HitTolerancePx,
	}, pyramid, tileProvider, layer.DefaultStyle(), l)
	if err != nil {
		l.Fatal("failed to initialize layer", "error", err)
	}
	defer tileLayer.Close()

	mapUseCase, err := usecase.NewMapUseCase(usecase.MapConfig{
		FrameInterval: cfg.Layer.FrameInterval,
		QueueSize:     cfg.Provider.QueueSize,
	}, pyramid, tileProvider, tileLayer, l)
	if err != nil {
		l.Fatal("failed to initialize map usecase", "error", err)
	}

	initial := tiling.View{
		Center:     orb.Point{cfg.View.CenterX, cfg.View.CenterY},
		Resolution: cfg.View.Resolution,
		Width:      cfg.View.Width,
		Height:     cfg.View.Height,
	}
	if err := mapUseCase.SetView(initial); err != nil {
		l.Fatal("failed to set initial view", "error", err)
	}

	loopCtx, stopLoop := context.WithCancel(ctx)
	var loop sync.WaitGroup
	loop.Add(1)
	go func() {
		defer loop.Done()
		mapUseCase.Run(loopCtx)
	}()

	h := handler.NewHandler(validator.New(), mapUseCase)
	router := v1.NewRouter(h, l, cfg.Telemetry.Enabled)

	httpServer := http_server.NewServer(ctx, cfg.HTTP.Server, router)

	go func() {
		l.Info("starting http server...", "address", httpServer.Addr)
		serverErr := httpServer.ListenAndServe()
		if serverErr != nil && !errors.Is(serverErr, http.ErrServerClosed) {
			l.Error("http server failed", "error", serverErr)
			stop()
		}
	}()

	<-ctx.Done()
	l.Info("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	l.Info("shutting down http server...", "address", httpServer.Addr)
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		l.Error("http server shutdown failed", "error", err)
	} else {
		l.Info("http_server shutdown completed")
	}

	stopLoop()
	loop.Wait()

	l.Info("application shutdown completed")
}

func newPyramid(cfg config.Pyramid) (*tiling.Pyramid, error) {
	switch cfg.Preset {
	case "galileo":
		return tiling.GalileoWebMercator()
	case "web-mercator":
		return tiling.WebMercator(cfg.Levels, cfg.TileSize)
	default:
		return nil, fmt.Errorf("unknown pyramid preset %q", cfg.Preset)
	}
}
