package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/storyreel/api/internal/model"
)

// Task types
const (
	TaskTypeGenerate   = "video:generate"
	TaskTypeRegenerate = "scene:regenerate"
	TaskTypeAssemble   = "video:assemble"
)

// RecordStore is the persistence surface the service needs
type RecordStore interface {
	SaveJob(ctx context.Context, job *model.Job) error
	GetJob(ctx context.Context, jobID string) (*model.Job, error)
	SaveVideo(ctx context.Context, video *model.Video) error
	GetVideo(ctx context.Context, videoID string) (*model.Video, error)
	ListVideos(ctx context.Context) ([]model.Video, error)
	GetScene(ctx context.Context, sceneID string) (*model.Scene, error)
	ScenesByVideo(ctx context.Context, videoID string) ([]model.Scene, error)
}

// TaskEnqueuer is the queueing surface the service needs; *asynq.Client
// satisfies it.
type TaskEnqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// PipelineService manages generation jobs: it owns job/video creation and
// queueing; the actual pipeline work happens in the workers.
type PipelineService struct {
	store RecordStore
	tasks TaskEnqueuer
}

func NewPipelineService(store RecordStore, tasks TaskEnqueuer) *PipelineService {
	return &PipelineService{store: store, tasks: tasks}
}

// StartGeneration creates the job and video shells and queues the full
// pipeline run. The caller polls for progress; nothing blocks here.
func (s *PipelineService) StartGeneration(ctx context.Context, userID string, req *model.GenerateVideoRequest) (*model.GenerateVideoResponse, error) {
	now := time.Now()
	videoID := uuid.New().String()
	jobID := uuid.New().String()

	title := req.Title
	if title == "" {
		title = deriveTitle(req.Story)
	}

	video := &model.Video{
		ID:        videoID,
		UserID:    userID,
		Title:     title,
		Story:     req.Story,
		Style:     req.Style,
		Quality:   req.Quality,
		Status:    model.VideoStatusPending,
		CreatedAt: now,
	}
	if err := s.store.SaveVideo(ctx, video); err != nil {
		return nil, fmt.Errorf("failed to save video: %w", err)
	}

	payload := &model.GenerateJobPayload{
		VideoID: videoID,
		Story:   req.Story,
		Style:   req.Style,
		Quality: req.Quality,
		VoiceID: req.VoiceID,
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	job := &model.Job{
		ID:      jobID,
		Type:    model.JobTypeGenerate,
		Status:  model.JobStatusQueued,
		VideoID: videoID,
		UserID:  userID,
		Payload: payloadBytes,
		Progress: model.Progress{
			Step:      model.StepWritingScript,
			Message:   "Queued",
			UpdatedAt: now,
		},
		CreatedAt: now,
	}
	if err := s.store.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	if err := s.enqueue(TaskTypeGenerate, jobID, payloadBytes); err != nil {
		return nil, err
	}

	return &model.GenerateVideoResponse{
		JobID:     jobID,
		VideoID:   videoID,
		Status:    model.JobStatusQueued,
		CreatedAt: now,
	}, nil
}

// GetProgress returns the latest snapshot plus the scenes persisted so far
func (s *PipelineService) GetProgress(ctx context.Context, jobID string) (*model.ProgressResponse, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	scenes, err := s.store.ScenesByVideo(ctx, job.VideoID)
	if err != nil {
		return nil, fmt.Errorf("failed to load scenes: %w", err)
	}

	return &model.ProgressResponse{
		JobID:       job.ID,
		VideoID:     job.VideoID,
		Status:      job.Status,
		Error:       job.Error,
		Progress:    job.Progress,
		Scenes:      scenes,
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
	}, nil
}

// RegenerateScene queues a regeneration of exactly one existing scene. The
// scene keeps its id and playback index; only its generated assets and
// duration are replaced.
func (s *PipelineService) RegenerateScene(ctx context.Context, videoID, sceneID string, req *model.RegenerateSceneRequest) (*model.RegenerateSceneResponse, error) {
	scene, err := s.store.GetScene(ctx, sceneID)
	if err != nil {
		return nil, err
	}
	if scene.VideoID != videoID {
		return nil, fmt.Errorf("scene %s does not belong to video %s", sceneID, videoID)
	}

	now := time.Now()
	jobID := uuid.New().String()

	payload := &model.RegenerateJobPayload{
		VideoID: videoID,
		SceneID: sceneID,
		Quality: req.Quality,
		VoiceID: req.VoiceID,
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	job := &model.Job{
		ID:      jobID,
		Type:    model.JobTypeRegenerate,
		Status:  model.JobStatusQueued,
		VideoID: videoID,
		Payload: payloadBytes,
		Progress: model.Progress{
			Step:         model.StepRegenerating,
			Message:      fmt.Sprintf("Queued regeneration of scene %d", scene.Index),
			CurrentScene: scene.Index,
			UpdatedAt:    now,
		},
		CreatedAt: now,
	}
	if err := s.store.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	if err := s.enqueue(TaskTypeRegenerate, jobID, payloadBytes); err != nil {
		return nil, err
	}

	return &model.RegenerateSceneResponse{
		JobID:   jobID,
		SceneID: sceneID,
		Status:  model.JobStatusQueued,
	}, nil
}

// AssembleFinalVideo queues the final concatenation. Valid only once every
// scene has a rendered clip on disk; a missing clip rejects the request
// naming the scene, and nothing is queued.
func (s *PipelineService) AssembleFinalVideo(ctx context.Context, videoID string) (*model.AssembleVideoResponse, error) {
	video, err := s.store.GetVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}

	scenes, err := s.store.ScenesByVideo(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("failed to load scenes: %w", err)
	}
	if len(scenes) == 0 {
		return nil, fmt.Errorf("video %s has no scenes", videoID)
	}

	for _, sc := range scenes {
		if sc.ClipPath == "" {
			return nil, fmt.Errorf("missing clip for scene %d", sc.Index)
		}
		if _, err := os.Stat(sc.ClipPath); err != nil {
			return nil, fmt.Errorf("missing clip for scene %d: %s", sc.Index, sc.ClipPath)
		}
	}

	now := time.Now()
	jobID := uuid.New().String()

	payload := &model.AssembleJobPayload{VideoID: videoID}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	job := &model.Job{
		ID:      jobID,
		Type:    model.JobTypeAssemble,
		Status:  model.JobStatusQueued,
		VideoID: videoID,
		Payload: payloadBytes,
		Progress: model.Progress{
			Step:        model.StepAssembling,
			Message:     "Queued assembly",
			TotalScenes: len(scenes),
			UpdatedAt:   now,
		},
		CreatedAt: now,
	}
	if err := s.store.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	if err := s.enqueue(TaskTypeAssemble, jobID, payloadBytes); err != nil {
		return nil, err
	}

	return &model.AssembleVideoResponse{
		JobID:   jobID,
		VideoID: video.ID,
		Status:  model.JobStatusQueued,
	}, nil
}

// GetVideo returns a single video record
func (s *PipelineService) GetVideo(ctx context.Context, videoID string) (*model.Video, error) {
	return s.store.GetVideo(ctx, videoID)
}

// ListVideos returns all video records
func (s *PipelineService) ListVideos(ctx context.Context) ([]model.Video, error) {
	return s.store.ListVideos(ctx)
}

// GetVideoScenes returns a video's scenes in playback order
func (s *PipelineService) GetVideoScenes(ctx context.Context, videoID string) ([]model.Scene, error) {
	if _, err := s.store.GetVideo(ctx, videoID); err != nil {
		return nil, err
	}
	return s.store.ScenesByVideo(ctx, videoID)
}

// enqueue wraps the payload into an asynq task. MaxRetry is zero everywhere:
// every failure is terminal for the operation and retried only by explicit
// client action.
func (s *PipelineService) enqueue(taskType, jobID string, payload []byte) error {
	taskPayload := map[string]interface{}{
		"jobId":   jobID,
		"payload": json.RawMessage(payload),
	}
	data, err := json.Marshal(taskPayload)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	_, err = s.tasks.Enqueue(asynq.NewTask(taskType, data),
		asynq.Queue("pipeline"),
		asynq.MaxRetry(0),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

// deriveTitle takes the first clause of the story as a fallback title
func deriveTitle(story string) string {
	story = strings.TrimSpace(story)
	for _, sep := range []string{". ", "\n", "! ", "? "} {
		if i := strings.Index(story, sep); i > 0 {
			story = story[:i]
			break
		}
	}
	if len(story) > 80 {
		story = story[:80]
	}
	return story
}
