// Package babyforge assembles the photo-to-3D generation engine: two
// parent photos in, a textured 3D baby model out, via three remote
// inference stages with per-stage model fallback.
//
// Usage:
//
//	cfg, err := config.Load("config.yaml")
//	eng, err := babyforge.New(cfg)
//	defer eng.Close()
//
//	run, err := eng.GenerateFiles(ctx, "mom.jpg", "dad.jpg")
//
// The heavy lifting lives in the pipeline, fallback, and providers
// packages; this package only wires them together from configuration.
package babyforge

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/babyforge/babyforge/artifact"
	"github.com/babyforge/babyforge/config"
	"github.com/babyforge/babyforge/fallback"
	"github.com/babyforge/babyforge/internal/metrics"
	"github.com/babyforge/babyforge/pipeline"
	"github.com/babyforge/babyforge/providers/meshy"
	"github.com/babyforge/babyforge/providers/replicate"
	"github.com/babyforge/babyforge/runstore"
	"github.com/babyforge/babyforge/types"
	"github.com/babyforge/babyforge/upload"
)

// Engine is a fully wired pipeline ready to run generations. It is safe
// for concurrent Generate calls.
type Engine struct {
	cfg      *config.Config
	logger   *zap.Logger
	ownsLog  bool
	coord    *pipeline.Coordinator
	runs     *runstore.Store
	rdb      *redis.Client
	registry *prometheus.Registry
}

// Option customizes engine construction.
type Option func(*engineOptions)

type engineOptions struct {
	logger *zap.Logger
}

// WithLogger injects a pre-built logger instead of constructing one
// from the Log config section. The engine will not Sync it on Close.
func WithLogger(l *zap.Logger) Option {
	return func(o *engineOptions) { o.logger = l }
}

// New wires an Engine from configuration.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o engineOptions
	for _, opt := range opts {
		opt(&o)
	}

	eng := &Engine{cfg: cfg, registry: prometheus.NewRegistry()}

	if o.logger != nil {
		eng.logger = o.logger
	} else {
		logger, err := buildLogger(cfg.Log)
		if err != nil {
			return nil, fmt.Errorf("build logger: %w", err)
		}
		eng.logger = logger
		eng.ownsLog = true
	}
	collector := metrics.NewCollectorWith("babyforge", eng.registry)

	replicateClient := replicate.NewClient(cfg.Providers.Replicate, eng.logger)
	meshyClient := meshy.NewClient(cfg.Providers.Meshy, eng.logger)

	var uploader upload.Uploader = upload.NewChain(eng.logger,
		upload.NewReplicateFiles(cfg.Providers.Replicate, eng.logger),
		upload.DataURL{},
	)
	if cfg.Redis.Addr != "" {
		eng.rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		uploader = upload.NewCachedUploader(uploader,
			upload.NewRedisCache(eng.rdb), cfg.Redis.UploadCacheTTL, eng.logger, collector)
	}

	store, err := artifact.NewFSStore(cfg.Pipeline.ArtifactDir)
	if err != nil {
		return nil, err
	}

	coordOpts := []pipeline.Option{
		pipeline.WithArtifactStore(store),
		pipeline.WithMetrics(collector),
		pipeline.WithLogger(eng.logger),
	}
	if cfg.Pipeline.RunStorePath != "" {
		runs, err := runstore.Open(cfg.Pipeline.RunStorePath)
		if err != nil {
			return nil, err
		}
		eng.runs = runs
		coordOpts = append(coordOpts, pipeline.WithRunStore(runs))
	}

	replicateSel := fallback.NewSelector(replicateClient, eng.logger, collector)
	meshySel := fallback.NewSelector(meshyClient, eng.logger, collector)

	eng.coord = pipeline.NewCoordinator(
		pipeline.NewFaceStage(replicateSel, uploader, cfg.Pipeline.Face, eng.logger),
		pipeline.NewBodyStage(replicateSel, uploader, cfg.Pipeline.Body, cfg.Pipeline.BodyTemplateURL, eng.logger),
		pipeline.NewMeshStage(meshySel, uploader, cfg.Pipeline.Mesh, eng.logger),
		coordOpts...,
	)
	return eng, nil
}

// Generate runs the full pipeline over two in-memory parent photos.
func (e *Engine) Generate(ctx context.Context, img1, img2 []byte) (*pipeline.Run, error) {
	return e.coord.RunPipeline(ctx, img1, img2)
}

// GenerateFiles runs the full pipeline over two parent photo files.
func (e *Engine) GenerateFiles(ctx context.Context, path1, path2 string) (*pipeline.Run, error) {
	img1, err := os.ReadFile(path1)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidInput, "read parent photo "+path1).WithCause(err)
	}
	img2, err := os.ReadFile(path2)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidInput, "read parent photo "+path2).WithCause(err)
	}
	return e.Generate(ctx, img1, img2)
}

// Runs exposes the persisted run history, or nil when no run store is
// configured.
func (e *Engine) Runs() *runstore.Store { return e.runs }

// MetricsHandler serves this engine's Prometheus metrics.
func (e *Engine) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Close releases held connections.
func (e *Engine) Close() error {
	var err error
	if e.rdb != nil {
		err = e.rdb.Close()
	}
	if e.ownsLog {
		_ = e.logger.Sync()
	}
	return err
}

func buildLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		lvl, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		zcfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	return zcfg.Build()
}
