package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/babyforge/babyforge/artifact"
	"github.com/babyforge/babyforge/internal/metrics"
	"github.com/babyforge/babyforge/runstore"
	"github.com/babyforge/babyforge/types"
)

// Coordinator sequences the three stage executors for one run at a time
// per call. Transitions are strictly forward; a failed stage is never
// re-entered, and whatever earlier stages produced stays on the Run.
// Coordinators are safe for concurrent RunPipeline calls: each call owns
// its Run, and the only shared state is the rate-limited provider
// clients behind the stages.
type Coordinator struct {
	face *FaceStage
	body *BodyStage
	mesh *MeshStage

	artifacts artifact.Store
	runs      *runstore.Store
	fetcher   *Fetcher
	logger    *zap.Logger
	metrics   *metrics.Collector
	tracer    trace.Tracer
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithArtifactStore persists each completed stage's bytes.
func WithArtifactStore(s artifact.Store) Option {
	return func(c *Coordinator) { c.artifacts = s }
}

// WithRunStore checkpoints run state at every transition.
func WithRunStore(s *runstore.Store) Option {
	return func(c *Coordinator) { c.runs = s }
}

// WithMetrics attaches a metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithLogger sets the coordinator logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// NewCoordinator wires the three stage executors into a pipeline.
func NewCoordinator(face *FaceStage, body *BodyStage, mesh *MeshStage, opts ...Option) *Coordinator {
	c := &Coordinator{
		face:    face,
		body:    body,
		mesh:    mesh,
		fetcher: NewFetcher(),
		logger:  zap.NewNop(),
		tracer:  otel.Tracer("babyforge/pipeline"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunPipeline executes the full photo-to-3D workflow. The call blocks
// for the duration of the run, typically minutes, and honors ctx
// cancellation at every poll. The returned Run is always non-nil: on
// error it carries the failing stage, the structured reason, and the
// outputs of every stage that completed before the failure.
func (c *Coordinator) RunPipeline(ctx context.Context, img1, img2 []byte) (*Run, error) {
	run := &Run{
		ID:        uuid.NewString(),
		Status:    StatusIdle,
		StartedAt: time.Now(),
	}
	run.History = append(run.History, StatusIdle)
	rec := &runstore.Record{ID: run.ID, Status: string(StatusIdle)}
	log := c.logger.With(zap.String("run_id", run.ID))

	if len(img1) == 0 || len(img2) == 0 {
		err := types.NewError(types.ErrInvalidInput, "two source images are required")
		c.fail(ctx, run, rec, log, 1, err)
		return run, run.Err
	}

	// Stage 1: two parent photos -> candidate face image.
	c.transition(ctx, run, rec, log, StatusStage1Running)
	out1, err := c.runStage(ctx, run, rec, log, 1, "face", func(ctx context.Context) (*StageOutput, error) {
		return c.face.Execute(ctx, img1, img2)
	})
	if err != nil {
		return run, run.Err
	}

	// Stage 2: face image -> composite full-body image.
	c.transition(ctx, run, rec, log, StatusStage2Running)
	out2, err := c.runStage(ctx, run, rec, log, 2, "body", func(ctx context.Context) (*StageOutput, error) {
		return c.body.Execute(ctx, out1)
	})
	if err != nil {
		return run, run.Err
	}

	// Stage 3: composite image -> 3D model asset.
	c.transition(ctx, run, rec, log, StatusStage3Running)
	_, err = c.runStage(ctx, run, rec, log, 3, "mesh", func(ctx context.Context) (*StageOutput, error) {
		return c.mesh.Execute(ctx, out2)
	})
	if err != nil {
		return run, run.Err
	}

	run.FinishedAt = time.Now()
	c.transition(ctx, run, rec, log, StatusCompleted)
	c.metrics.RecordPipelineRun(string(StatusCompleted))
	log.Info("pipeline completed",
		zap.Duration("elapsed", run.FinishedAt.Sub(run.StartedAt)),
		zap.String("model_url", run.Output(3).URL),
	)
	return run, nil
}

type stageFunc func(ctx context.Context) (*StageOutput, error)

func (c *Coordinator) runStage(ctx context.Context, run *Run, rec *runstore.Record, log *zap.Logger, stage int, name string, fn stageFunc) (*StageOutput, error) {
	ctx, span := c.tracer.Start(ctx, "pipeline.stage."+name,
		trace.WithAttributes(
			attribute.String("run.id", run.ID),
			attribute.Int("stage", stage),
		))
	defer span.End()

	start := time.Now()
	out, err := fn(ctx)
	c.metrics.RecordStageDuration(name, time.Since(start))
	if err != nil {
		span.RecordError(err)
		c.fail(ctx, run, rec, log, stage, err)
		return nil, err
	}

	if err := c.persistStage(ctx, rec, out); err != nil {
		span.RecordError(err)
		c.fail(ctx, run, rec, log, stage, err)
		return nil, err
	}

	run.Stages[stage-1] = out
	span.SetAttributes(attribute.String("model", out.Model))
	log.Info("stage completed",
		zap.Int("stage", stage),
		zap.String("model", out.Model),
		zap.Duration("elapsed", time.Since(start)),
	)
	return out, nil
}

// persistStage materializes the output bytes (when only a URL came back)
// and writes them through the artifact store.
func (c *Coordinator) persistStage(ctx context.Context, rec *runstore.Record, out *StageOutput) error {
	if len(out.Data) == 0 && out.URL != "" && (c.artifacts != nil || out.Kind == KindImage) {
		data, contentType, err := c.fetcher.Fetch(ctx, out.URL)
		if err != nil {
			return fmt.Errorf("materialize stage %d output: %w", out.Stage, err)
		}
		out.Data = data
		if out.ContentType == "" {
			out.ContentType = contentType
		}
	}

	if c.artifacts == nil {
		return nil
	}
	path, err := c.artifacts.Save(ctx, artifact.StageName(out.Stage, extFor(out)), out.Data)
	if err != nil {
		return fmt.Errorf("persist stage %d output: %w", out.Stage, err)
	}
	out.SavedPath = path

	switch out.Stage {
	case 1:
		rec.Stage1Path, rec.Stage1Model = path, out.Model
	case 2:
		rec.Stage2Path, rec.Stage2Model = path, out.Model
	case 3:
		rec.Stage3Path, rec.Stage3Model = path, out.Model
	}
	return nil
}

func (c *Coordinator) transition(ctx context.Context, run *Run, rec *runstore.Record, log *zap.Logger, status Status) {
	run.Status = status
	run.History = append(run.History, status)
	rec.Status = string(status)
	c.checkpoint(ctx, rec, log)
	log.Debug("pipeline transition", zap.String("status", string(status)))
}

func (c *Coordinator) fail(ctx context.Context, run *Run, rec *runstore.Record, log *zap.Logger, stage int, cause error) {
	run.Status = StatusFailed
	run.History = append(run.History, StatusFailed)
	run.FailedStage = stage
	run.FinishedAt = time.Now()
	run.Err = types.NewError(types.ErrPipelineFailed,
		fmt.Sprintf("pipeline failed at stage %d", stage)).
		WithStage(stage).WithCause(cause)

	rec.Status = string(StatusFailed)
	rec.FailedStage = stage
	rec.FailureReason = cause.Error()
	c.checkpoint(ctx, rec, log)
	c.metrics.RecordPipelineRun(string(StatusFailed))

	log.Error("pipeline failed",
		zap.Int("stage", stage),
		zap.Error(cause),
	)
}

// checkpoint persists the run record. Bookkeeping failures are logged,
// never promoted to pipeline failures.
func (c *Coordinator) checkpoint(ctx context.Context, rec *runstore.Record, log *zap.Logger) {
	if c.runs == nil {
		return
	}
	if err := c.runs.Save(ctx, rec); err != nil {
		log.Warn("run store checkpoint failed", zap.Error(err))
	}
}

func extFor(out *StageOutput) string {
	if out.Kind == KindModel {
		return ".glb"
	}
	if out.ContentType == "image/png" {
		return ".png"
	}
	return ".jpg"
}
