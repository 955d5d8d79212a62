package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/storyreel/api/internal/model"
)

// RegenerateWorker re-runs the scene pipeline for exactly one existing scene.
// The scene keeps its id and playback index; only its generated assets and
// probed duration are replaced. Other scenes are never touched.
type RegenerateWorker struct {
	*SceneProcessor
}

// NewRegenerateWorker creates a new single-scene worker
func NewRegenerateWorker(proc *SceneProcessor) *RegenerateWorker {
	return &RegenerateWorker{SceneProcessor: proc}
}

// ProcessTask handles a scene:regenerate task
func (w *RegenerateWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var taskPayload struct {
		JobID   string          `json:"jobId"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(t.Payload(), &taskPayload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}

	jobID := taskPayload.JobID
	log.Printf("[pipeline] Starting regeneration job: %s", jobID)

	var payload model.RegenerateJobPayload
	if err := json.Unmarshal(taskPayload.Payload, &payload); err != nil {
		w.failJob(ctx, jobID, "Invalid payload")
		return fmt.Errorf("failed to unmarshal regenerate payload: %w", err)
	}

	if err := w.store.MarkJobProcessing(ctx, jobID); err != nil {
		return fmt.Errorf("failed to mark job processing: %w", err)
	}

	scene, err := w.store.GetScene(ctx, payload.SceneID)
	if err != nil {
		w.failJob(ctx, jobID, fmt.Sprintf("failed to load scene: %v", err))
		return err
	}

	scenes, err := w.store.ScenesByVideo(ctx, payload.VideoID)
	if err != nil {
		w.failJob(ctx, jobID, fmt.Sprintf("failed to load scenes: %v", err))
		return err
	}
	total := len(scenes)

	oldImage, oldAudio, oldClip := scene.ImagePath, scene.AudioPath, scene.ClipPath

	// Fresh run id: the replacement assets never collide with the originals,
	// which stay valid until the new set is fully rendered.
	runID := uuid.New().String()

	if err := w.processScene(ctx, jobID, runID, model.StepRegenerating, scene, payload.Quality, payload.VoiceID, total); err != nil {
		msg := fmt.Sprintf("scene %d failed: %v", scene.Index, err)
		w.failJob(ctx, jobID, msg)
		return fmt.Errorf("job %s: %s", jobID, msg)
	}

	// Replaced assets are no longer referenced; cleanup is best-effort.
	for _, p := range []string{oldImage, oldAudio, oldClip} {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			log.Printf("[pipeline] Warning: failed to remove replaced asset %s: %v", p, err)
		}
	}

	w.publishProgress(ctx, jobID, model.StepRegenerating, 100,
		fmt.Sprintf("Scene %d regenerated", scene.Index), scene.Index, total, model.SubStepCompleted)

	if err := w.store.MarkJobCompleted(ctx, jobID); err != nil {
		return fmt.Errorf("failed to mark job completed: %w", err)
	}
	if w.hub != nil {
		w.hub.BroadcastComplete(jobID, scene)
	}

	log.Printf("[pipeline] Regeneration job %s completed (scene %d)", jobID, scene.Index)
	return nil
}
