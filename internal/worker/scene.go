package worker

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/storyreel/api/internal/client"
	"github.com/storyreel/api/internal/media"
	"github.com/storyreel/api/internal/model"
)

// Store is the persistence surface the workers need; *store.Store satisfies it.
type Store interface {
	GetJob(ctx context.Context, jobID string) (*model.Job, error)
	UpdateJobProgress(ctx context.Context, jobID string, p model.Progress) error
	MarkJobProcessing(ctx context.Context, jobID string) error
	MarkJobCompleted(ctx context.Context, jobID string) error
	MarkJobFailed(ctx context.Context, jobID, errMsg string) error
	GetVideo(ctx context.Context, videoID string) (*model.Video, error)
	SaveVideo(ctx context.Context, video *model.Video) error
	GetScene(ctx context.Context, sceneID string) (*model.Scene, error)
	SaveScene(ctx context.Context, scene *model.Scene) error
	ScenesByVideo(ctx context.Context, videoID string) ([]model.Scene, error)
}

// Broadcaster pushes snapshots to WebSocket subscribers; polling remains the
// source of truth, the hub only mirrors it.
type Broadcaster interface {
	BroadcastProgress(jobID string, status model.JobStatus, p model.Progress)
	BroadcastComplete(jobID string, result interface{})
	BroadcastError(jobID, code, message string)
}

// SceneProcessor drives one scene through image synthesis, speech synthesis,
// duration probing, segment rendering and persistence. It is shared by the
// full-run and regeneration workers.
type SceneProcessor struct {
	store     Store
	images    client.ImageGenerator
	speech    client.SpeechSynthesizer
	prober    media.Prober
	renderer  media.SegmentRenderer
	hub       Broadcaster
	mediaRoot string
}

func NewSceneProcessor(
	store Store,
	images client.ImageGenerator,
	speech client.SpeechSynthesizer,
	prober media.Prober,
	renderer media.SegmentRenderer,
	hub Broadcaster,
	mediaRoot string,
) *SceneProcessor {
	return &SceneProcessor{
		store:     store,
		images:    images,
		speech:    speech,
		prober:    prober,
		renderer:  renderer,
		hub:       hub,
		mediaRoot: mediaRoot,
	}
}

// scratchDir returns the run-scoped scratch directory, creating it if needed.
// Keying by run id keeps concurrent jobs from colliding on disk.
func (p *SceneProcessor) scratchDir(runID string) (string, error) {
	dir := filepath.Join(p.mediaRoot, runID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create scratch dir: %w", err)
	}
	return dir, nil
}

// assetBase names per-scene assets by run id plus zero-padded scene index.
func assetBase(dir, runID string, index int) string {
	return filepath.Join(dir, fmt.Sprintf("%s_scene_%03d", runID, index))
}

// processScene runs the full sub-step sequence for one scene. The scene
// record is only written after every sub-step has succeeded, so a failure
// never leaves a row referencing half-written assets. On success the scene's
// asset paths and probed duration are persisted (created on first pass,
// replaced in place on regeneration).
func (p *SceneProcessor) processScene(ctx context.Context, jobID, runID, step string, scene *model.Scene, quality model.Quality, voiceID string, total int) error {
	dir, err := p.scratchDir(runID)
	if err != nil {
		return err
	}
	base := assetBase(dir, runID, scene.Index)

	p.publishProgress(ctx, jobID, step, scenePercent(scene.Index, total, 0.0),
		fmt.Sprintf("Scene %d/%d: starting", scene.Index+1, total),
		scene.Index, total, model.SubStepStarting)

	// Image synthesis
	p.publishProgress(ctx, jobID, step, scenePercent(scene.Index, total, 0.05),
		fmt.Sprintf("Scene %d/%d: generating image", scene.Index+1, total),
		scene.Index, total, model.SubStepGeneratingImage)

	imgBytes, err := p.images.GenerateImage(ctx, &client.GenerateImageRequest{
		Prompt: scene.Description,
		Steps:  quality.Steps(),
		Width:  media.FrameWidth,
		Height: media.FrameHeight,
	})
	if err != nil {
		return fmt.Errorf("image generation: %w", err)
	}
	imagePath := base + ".png"
	if err := os.WriteFile(imagePath, imgBytes, 0644); err != nil {
		return fmt.Errorf("write image: %w", err)
	}

	// Speech synthesis
	p.publishProgress(ctx, jobID, step, scenePercent(scene.Index, total, 0.35),
		fmt.Sprintf("Scene %d/%d: generating audio", scene.Index+1, total),
		scene.Index, total, model.SubStepGeneratingAudio)

	speechResult, err := p.speech.Synthesize(ctx, scene.Narration, voiceID)
	if err != nil {
		return fmt.Errorf("speech synthesis: %w", err)
	}
	audioPath := base + ".mp3"
	if err := os.WriteFile(audioPath, speechResult.Audio, 0644); err != nil {
		return fmt.Errorf("write audio: %w", err)
	}

	// Duration correction: the probed length of the saved file is the
	// duration of record. The backend's estimate is never used for timing;
	// trusting it desyncs audio and video.
	measured, err := p.prober.Duration(ctx, audioPath)
	if err != nil {
		return fmt.Errorf("probe audio duration: %w", err)
	}
	if speechResult.EstimatedDuration > 0 {
		log.Printf("[scene] scene %d: backend estimated %.2fs, measured %.3fs",
			scene.Index, speechResult.EstimatedDuration, measured)
	}

	// Segment render
	p.publishProgress(ctx, jobID, step, scenePercent(scene.Index, total, 0.60),
		fmt.Sprintf("Scene %d/%d: creating video", scene.Index+1, total),
		scene.Index, total, model.SubStepCreatingVideo)

	clipPath := base + ".mp4"
	if err := p.renderer.Render(ctx, imagePath, audioPath, measured, clipPath); err != nil {
		return fmt.Errorf("segment render: %w", err)
	}

	// Persistence
	scene.JobID = jobID
	scene.ImagePath = imagePath
	scene.AudioPath = audioPath
	scene.ClipPath = clipPath
	scene.Duration = measured
	if err := p.store.SaveScene(ctx, scene); err != nil {
		return fmt.Errorf("save scene: %w", err)
	}

	p.publishProgress(ctx, jobID, step, scenePercent(scene.Index, total, 1.0),
		fmt.Sprintf("Scene %d/%d: completed", scene.Index+1, total),
		scene.Index, total, model.SubStepCompleted)

	return nil
}

// publishProgress overwrites the job's snapshot and mirrors it to the hub.
// A write failure never interrupts the pipeline itself.
func (p *SceneProcessor) publishProgress(ctx context.Context, jobID, step string, percent int, message string, currentScene, totalScenes int, sub model.SubStep) {
	snapshot := model.Progress{
		Step:         step,
		Percent:      percent,
		Message:      message,
		CurrentScene: currentScene,
		TotalScenes:  totalScenes,
		SubStep:      sub,
	}
	if err := p.store.UpdateJobProgress(ctx, jobID, snapshot); err != nil {
		log.Printf("[pipeline] Failed to update progress for job %s: %v", jobID, err)
	}
	if p.hub != nil {
		p.hub.BroadcastProgress(jobID, model.JobStatusProcessing, snapshot)
	}
}

// failJob flips the job to failed and mirrors the error to subscribers
func (p *SceneProcessor) failJob(ctx context.Context, jobID, errMsg string) {
	if err := p.store.MarkJobFailed(ctx, jobID, errMsg); err != nil {
		log.Printf("[pipeline] Failed to mark job %s as failed: %v", jobID, err)
	}
	if p.hub != nil {
		p.hub.BroadcastError(jobID, "PIPELINE_FAILED", errMsg)
	}
}

// scenePercent maps a sub-step position inside scene index to the aggregate
// percentage. The scriptwriting step owns 0-5%, the scene loop 5-95%; the
// remainder is claimed by the scenes-ready transition.
func scenePercent(index, total int, frac float64) int {
	if total <= 0 {
		return 0
	}
	span := 90.0 / float64(total)
	return int(5 + span*(float64(index)+frac))
}
