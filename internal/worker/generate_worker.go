package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/storyreel/api/internal/client"
	"github.com/storyreel/api/internal/model"
)

// GenerateWorker processes full video generation jobs: scriptwriting followed
// by the sequential scene loop. Scenes are processed one at a time; the
// synthesis backends are the bottleneck and a single in-flight step keeps
// progress reporting simple.
type GenerateWorker struct {
	*SceneProcessor
	script client.ScriptWriter
}

// NewGenerateWorker creates a new full-run worker
func NewGenerateWorker(proc *SceneProcessor, script client.ScriptWriter) *GenerateWorker {
	return &GenerateWorker{
		SceneProcessor: proc,
		script:         script,
	}
}

// ProcessTask handles a video:generate task
func (w *GenerateWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var taskPayload struct {
		JobID   string          `json:"jobId"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(t.Payload(), &taskPayload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}

	jobID := taskPayload.JobID
	log.Printf("[pipeline] Starting generation job: %s", jobID)

	var payload model.GenerateJobPayload
	if err := json.Unmarshal(taskPayload.Payload, &payload); err != nil {
		w.failJob(ctx, jobID, "Invalid payload")
		return fmt.Errorf("failed to unmarshal generate payload: %w", err)
	}

	if err := w.store.MarkJobProcessing(ctx, jobID); err != nil {
		return fmt.Errorf("failed to mark job processing: %w", err)
	}

	// Scriptwriting: the external collaborator turns the raw story into an
	// ordered list of (description, narration) pairs.
	w.publishProgress(ctx, jobID, model.StepWritingScript, 2, "Writing script...", 0, 0, "")

	script, err := w.script.WriteScript(ctx, payload.Story, payload.Style)
	if err != nil {
		msg := fmt.Sprintf("script generation failed: %v", err)
		w.failJob(ctx, jobID, msg)
		return fmt.Errorf("job %s: %s", jobID, msg)
	}
	if len(script) == 0 {
		w.failJob(ctx, jobID, "no scenes produced")
		return fmt.Errorf("job %s: no scenes produced", jobID)
	}

	total := len(script)
	runID := uuid.New().String()
	log.Printf("[pipeline] Job %s: %d scenes, run %s", jobID, total, runID)

	for i, sc := range script {
		scene := &model.Scene{
			ID:          uuid.New().String(),
			VideoID:     payload.VideoID,
			Index:       i,
			Description: sc.Description,
			Narration:   sc.Narration,
			CreatedAt:   time.Now(),
		}

		if err := w.processScene(ctx, jobID, runID, model.StepGeneratingScenes, scene, payload.Quality, payload.VoiceID, total); err != nil {
			// One failed sub-step aborts the whole job; scenes completed
			// before this one keep their rows and remain queryable.
			msg := fmt.Sprintf("scene %d failed: %v", i, err)
			w.failJob(ctx, jobID, msg)
			return fmt.Errorf("job %s: %s", jobID, msg)
		}
	}

	// All scenes have rendered clips: completed, awaiting assembly.
	video, err := w.store.GetVideo(ctx, payload.VideoID)
	if err != nil {
		w.failJob(ctx, jobID, fmt.Sprintf("failed to load video: %v", err))
		return err
	}
	video.Status = model.VideoStatusScenesReady
	if err := w.store.SaveVideo(ctx, video); err != nil {
		w.failJob(ctx, jobID, fmt.Sprintf("failed to update video: %v", err))
		return err
	}

	w.publishProgress(ctx, jobID, model.StepScenesReady, 100,
		"All scenes generated, ready to assemble", total, total, model.SubStepCompleted)

	if err := w.store.MarkJobCompleted(ctx, jobID); err != nil {
		return fmt.Errorf("failed to mark job completed: %w", err)
	}
	if w.hub != nil {
		w.hub.BroadcastComplete(jobID, video)
	}

	log.Printf("[pipeline] Generation job %s completed (%d scenes)", jobID, total)
	return nil
}
