package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/babyforge/babyforge/fallback"
	"github.com/babyforge/babyforge/job"
	"github.com/babyforge/babyforge/types"
	"github.com/babyforge/babyforge/upload"
)

// Prompts are fixed stage parameters, not user input. They describe the
// target rendition each stage should produce.
const (
	facePrompt = "Generate a realistic 4-month-old baby face blending the two parent photos. " +
		"Natural infant proportions, soft lighting, neutral background."

	bodyPrompt = "Create a full-body 4-month-old baby with a smooth, simplified, neutral body. " +
		"Attach the previously generated blended baby face. " +
		"Maintain natural infant body proportions, soft silhouette, photorealistic lighting on the face."
)

// FaceStage blends two parent photos into one candidate baby face via a
// Replicate face-fusion model.
type FaceStage struct {
	selector *fallback.Selector
	uploader upload.Uploader
	cfg      StageConfig
	logger   *zap.Logger
}

// NewFaceStage builds the first stage executor.
func NewFaceStage(selector *fallback.Selector, uploader upload.Uploader, cfg StageConfig, logger *zap.Logger) *FaceStage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FaceStage{selector: selector, uploader: uploader, cfg: cfg, logger: logger}
}

// Execute publishes both source photos and runs the face-fusion
// candidates. The two uploads are independent inputs, so they run
// concurrently; fallback across candidates stays strictly sequential.
func (s *FaceStage) Execute(ctx context.Context, img1, img2 []byte) (*StageOutput, error) {
	if len(img1) == 0 || len(img2) == 0 {
		return nil, types.NewError(types.ErrInvalidInput, "two source images are required").WithStage(1)
	}

	var url1, url2 string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		url1, err = s.uploader.Upload(gctx, "parent1.jpg", img1, http.DetectContentType(img1))
		return err
	})
	g.Go(func() error {
		var err error
		url2, err = s.uploader.Upload(gctx, "parent2.jpg", img2, http.DetectContentType(img2))
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("publish source images: %w", err)
	}

	selection, err := s.selector.TryCandidates(ctx, s.cfg.Candidates, func(model string) (*job.Request, error) {
		return &job.Request{
			Provider: "replicate",
			Model:    model,
			Payload: map[string]any{
				"source_image": url1,
				"target_image": url2,
				"prompt":       facePrompt,
				"width":        1024,
				"height":       1024,
			},
			PollInterval: s.cfg.PollInterval,
			Timeout:      s.cfg.Timeout,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return decodeImageOutput(selection, 1)
}

// BodyStage composites the stage-1 face onto a full neutral baby body.
// With a reference body template configured it runs face-swap payloads;
// without one it runs full-body generation payloads guided by the face.
type BodyStage struct {
	selector    *fallback.Selector
	uploader    upload.Uploader
	cfg         StageConfig
	templateURL string
	logger      *zap.Logger
}

// NewBodyStage builds the second stage executor. templateURL may be
// empty.
func NewBodyStage(selector *fallback.Selector, uploader upload.Uploader, cfg StageConfig, templateURL string, logger *zap.Logger) *BodyStage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BodyStage{selector: selector, uploader: uploader, cfg: cfg, templateURL: templateURL, logger: logger}
}

// Execute runs the body-compositing candidates against the stage-1 face.
func (s *BodyStage) Execute(ctx context.Context, face *StageOutput) (*StageOutput, error) {
	faceRef, err := imageRef(ctx, s.uploader, "baby_face.jpg", face)
	if err != nil {
		return nil, err
	}

	selection, err := s.selector.TryCandidates(ctx, s.cfg.Candidates, func(model string) (*job.Request, error) {
		return &job.Request{
			Provider:     "replicate",
			Model:        model,
			Payload:      s.payloadFor(model, faceRef),
			PollInterval: s.cfg.PollInterval,
			Timeout:      s.cfg.Timeout,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return decodeImageOutput(selection, 2)
}

// payloadFor picks the request shape each model family expects.
func (s *BodyStage) payloadFor(model, faceRef string) map[string]any {
	if s.templateURL != "" {
		return map[string]any{
			"source_image": faceRef,
			"target_image": s.templateURL,
		}
	}
	if strings.Contains(model, "face-to-many") {
		return map[string]any{
			"image":  faceRef,
			"prompt": bodyPrompt,
		}
	}
	return map[string]any{
		"prompt":      bodyPrompt,
		"image":       faceRef,
		"num_outputs": 1,
		"width":       1024,
		"height":      1024,
	}
}

// MeshStage converts the composite image into a downloadable 3D asset.
type MeshStage struct {
	selector *fallback.Selector
	uploader upload.Uploader
	cfg      StageConfig
	logger   *zap.Logger
}

// NewMeshStage builds the third stage executor.
func NewMeshStage(selector *fallback.Selector, uploader upload.Uploader, cfg StageConfig, logger *zap.Logger) *MeshStage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MeshStage{selector: selector, uploader: uploader, cfg: cfg, logger: logger}
}

// Execute runs the image-to-3D candidates against the stage-2 composite.
func (s *MeshStage) Execute(ctx context.Context, composite *StageOutput) (*StageOutput, error) {
	imageURL, err := imageRef(ctx, s.uploader, "full_baby.jpg", composite)
	if err != nil {
		return nil, err
	}

	selection, err := s.selector.TryCandidates(ctx, s.cfg.Candidates, func(model string) (*job.Request, error) {
		return &job.Request{
			Provider: "meshy",
			Model:    model,
			Payload: map[string]any{
				"image_url":      imageURL,
				"enable_pbr":     true,
				"should_texture": true,
			},
			PollInterval: s.cfg.PollInterval,
			Timeout:      s.cfg.Timeout,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	glb, _ := selection.Result.Output["glb_url"].(string)
	if glb == "" {
		return nil, types.NewError(types.ErrDecode, "job output missing glb_url").
			WithModel(selection.Model).WithStage(3)
	}
	return &StageOutput{
		Kind:        KindModel,
		Stage:       3,
		Model:       selection.Model,
		URL:         glb,
		ContentType: "model/gltf-binary",
	}, nil
}

// imageRef returns a provider-fetchable reference for a prior stage
// output: its URL when it has one, otherwise the inline bytes are
// published through the uploader.
func imageRef(ctx context.Context, uploader upload.Uploader, name string, out *StageOutput) (string, error) {
	if out == nil {
		return "", types.NewError(types.ErrInvalidInput, "missing prior stage output")
	}
	if out.URL != "" {
		return out.URL, nil
	}
	if len(out.Data) == 0 {
		return "", types.NewError(types.ErrInvalidInput, "prior stage output holds neither URL nor data")
	}
	ct := out.ContentType
	if ct == "" {
		ct = http.DetectContentType(out.Data)
	}
	return uploader.Upload(ctx, name, out.Data, ct)
}

// decodeImageOutput normalizes a succeeded image job's payload. The
// "output" field may be a URL string, a list of URLs (first wins), or
// raw image bytes.
func decodeImageOutput(selection *fallback.Selection, stage int) (*StageOutput, error) {
	raw, ok := selection.Result.Output["output"]
	if !ok || raw == nil {
		return nil, types.NewError(types.ErrDecode, "job output missing output field").
			WithModel(selection.Model).WithStage(stage)
	}

	out := &StageOutput{Kind: KindImage, Stage: stage, Model: selection.Model}
	switch v := raw.(type) {
	case string:
		if v == "" {
			return nil, types.NewError(types.ErrDecode, "job output holds empty image reference").
				WithModel(selection.Model).WithStage(stage)
		}
		out.URL = v
	case []byte:
		if len(v) == 0 {
			return nil, types.NewError(types.ErrDecode, "job output holds empty image bytes").
				WithModel(selection.Model).WithStage(stage)
		}
		out.Data = v
		out.ContentType = http.DetectContentType(v)
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out.URL = s
				break
			}
		}
		if out.URL == "" {
			return nil, types.NewError(types.ErrDecode, "job output list holds no image reference").
				WithModel(selection.Model).WithStage(stage)
		}
	default:
		return nil, types.NewError(types.ErrDecode,
			fmt.Sprintf("unexpected job output type %T", raw)).
			WithModel(selection.Model).WithStage(stage)
	}
	return out, nil
}
