package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/hibiken/asynq"

	"github.com/storyreel/api/internal/client"
	"github.com/storyreel/api/internal/media"
	"github.com/storyreel/api/internal/model"
)

// AssembleWorker concatenates a video's scene clips into the final output,
// records the final asset and cleans up the intermediates.
type AssembleWorker struct {
	store     Store
	concat    media.Concatenator
	storage   client.StorageClient
	hub       Broadcaster
	mediaRoot string
}

// NewAssembleWorker creates a new assembly worker. storage may be nil, in
// which case the final asset stays on local disk only.
func NewAssembleWorker(store Store, concat media.Concatenator, storage client.StorageClient, hub Broadcaster, mediaRoot string) *AssembleWorker {
	return &AssembleWorker{
		store:     store,
		concat:    concat,
		storage:   storage,
		hub:       hub,
		mediaRoot: mediaRoot,
	}
}

// ProcessTask handles a video:assemble task
func (w *AssembleWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var taskPayload struct {
		JobID   string          `json:"jobId"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(t.Payload(), &taskPayload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}

	jobID := taskPayload.JobID
	log.Printf("[pipeline] Starting assembly job: %s", jobID)

	var payload model.AssembleJobPayload
	if err := json.Unmarshal(taskPayload.Payload, &payload); err != nil {
		w.failJob(ctx, jobID, "Invalid payload")
		return fmt.Errorf("failed to unmarshal assemble payload: %w", err)
	}

	if err := w.store.MarkJobProcessing(ctx, jobID); err != nil {
		return fmt.Errorf("failed to mark job processing: %w", err)
	}

	video, err := w.store.GetVideo(ctx, payload.VideoID)
	if err != nil {
		w.failJob(ctx, jobID, fmt.Sprintf("failed to load video: %v", err))
		return err
	}

	scenes, err := w.store.ScenesByVideo(ctx, payload.VideoID)
	if err != nil {
		w.failJob(ctx, jobID, fmt.Sprintf("failed to load scenes: %v", err))
		return err
	}
	if len(scenes) == 0 {
		w.failJob(ctx, jobID, "video has no scenes")
		return fmt.Errorf("job %s: video %s has no scenes", jobID, payload.VideoID)
	}

	// Re-verify every clip right before concatenation; the service-level
	// check and this one can be separated by a regeneration.
	clipPaths := make([]string, 0, len(scenes))
	for _, sc := range scenes {
		if sc.ClipPath == "" {
			msg := fmt.Sprintf("missing clip for scene %d", sc.Index)
			w.failJob(ctx, jobID, msg)
			return fmt.Errorf("job %s: %s", jobID, msg)
		}
		if _, err := os.Stat(sc.ClipPath); err != nil {
			msg := fmt.Sprintf("missing clip for scene %d: %s", sc.Index, sc.ClipPath)
			w.failJob(ctx, jobID, msg)
			return fmt.Errorf("job %s: %s", jobID, msg)
		}
		clipPaths = append(clipPaths, sc.ClipPath)
	}

	w.publishProgress(ctx, jobID, model.StepAssembling, 20,
		fmt.Sprintf("Concatenating %d scenes", len(scenes)), 0, len(scenes))

	// The final asset is named by the video's own id.
	outDir := filepath.Join(w.mediaRoot, "videos")
	if err := os.MkdirAll(outDir, 0755); err != nil {
		w.failJob(ctx, jobID, fmt.Sprintf("create output dir: %v", err))
		return err
	}
	outPath := filepath.Join(outDir, video.ID+".mp4")

	if err := w.concat.Concat(ctx, clipPaths, outPath); err != nil {
		msg := fmt.Sprintf("assembly failed: %v", err)
		w.failJob(ctx, jobID, msg)
		return fmt.Errorf("job %s: %s", jobID, msg)
	}

	video.FinalPath = outPath

	// Upload is opportunistic: an unconfigured or failing store leaves the
	// local file as the final asset.
	if w.storage != nil {
		w.publishProgress(ctx, jobID, model.StepAssembling, 80, "Uploading final video", 0, len(scenes))
		if url, err := w.uploadFinal(ctx, video.ID, outPath); err != nil {
			log.Printf("[pipeline] Warning: final video upload failed for %s: %v", video.ID, err)
		} else {
			video.FinalURL = url
		}
	}

	video.Status = model.VideoStatusCompleted
	if err := w.store.SaveVideo(ctx, video); err != nil {
		w.failJob(ctx, jobID, fmt.Sprintf("failed to update video: %v", err))
		return err
	}

	// Intermediate clips are no longer needed; cleanup failure is logged,
	// never escalated.
	w.cleanupIntermediates(scenes)

	w.publishProgress(ctx, jobID, model.StepVideoReady, 100, "Final video ready", len(scenes), len(scenes))
	if err := w.store.MarkJobCompleted(ctx, jobID); err != nil {
		return fmt.Errorf("failed to mark job completed: %w", err)
	}
	if w.hub != nil {
		w.hub.BroadcastComplete(jobID, video)
	}

	log.Printf("[pipeline] Assembly job %s completed: %s", jobID, outPath)
	return nil
}

func (w *AssembleWorker) uploadFinal(ctx context.Context, videoID, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return w.storage.Upload(ctx, "videos/"+videoID+".mp4", f, "video/mp4")
}

func (w *AssembleWorker) cleanupIntermediates(scenes []model.Scene) {
	for _, sc := range scenes {
		if sc.ClipPath == "" {
			continue
		}
		if err := os.Remove(sc.ClipPath); err != nil && !os.IsNotExist(err) {
			log.Printf("[pipeline] Warning: failed to remove intermediate clip %s: %v", sc.ClipPath, err)
		}
	}
}

func (w *AssembleWorker) publishProgress(ctx context.Context, jobID, step string, percent int, message string, currentScene, totalScenes int) {
	snapshot := model.Progress{
		Step:         step,
		Percent:      percent,
		Message:      message,
		CurrentScene: currentScene,
		TotalScenes:  totalScenes,
	}
	if err := w.store.UpdateJobProgress(ctx, jobID, snapshot); err != nil {
		log.Printf("[pipeline] Failed to update progress for job %s: %v", jobID, err)
	}
	if w.hub != nil {
		w.hub.BroadcastProgress(jobID, model.JobStatusProcessing, snapshot)
	}
}

func (w *AssembleWorker) failJob(ctx context.Context, jobID, errMsg string) {
	if err := w.store.MarkJobFailed(ctx, jobID, errMsg); err != nil {
		log.Printf("[pipeline] Failed to mark job %s as failed: %v", jobID, err)
	}
	if w.hub != nil {
		w.hub.BroadcastError(jobID, "ASSEMBLY_FAILED", errMsg)
	}
}
