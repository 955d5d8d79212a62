// Package store persists jobs, videos and scenes as JSON records in Redis.
// Every write is independent and idempotent by id; scenes carry a parent
// index set so they can be listed per video.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/storyreel/api/internal/model"
)

var (
	ErrJobNotFound   = errors.New("job not found")
	ErrVideoNotFound = errors.New("video not found")
	ErrSceneNotFound = errors.New("scene not found")
)

// Jobs are transient; videos and scenes are kept until deleted.
const jobTTL = 7 * 24 * time.Hour

// Store is the Redis-backed record store
type Store struct {
	redis *redis.Client
}

func NewStore(redisClient *redis.Client) *Store {
	return &Store{redis: redisClient}
}

func jobKey(id string) string   { return "job:" + id }
func videoKey(id string) string { return "video:" + id }
func sceneKey(id string) string { return "scene:" + id }

func sceneIndexKey(videoID string) string { return "video:" + videoID + ":scenes" }

// --- Jobs ---

// SaveJob writes the full job record
func (s *Store) SaveJob(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, jobKey(job.ID), data, jobTTL).Err()
}

// GetJob reads a job by id
func (s *Store) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	data, err := s.redis.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrJobNotFound
		}
		return nil, err
	}

	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// UpdateJobProgress overwrites the job's progress snapshot. Each write is
// stamped with a monotonically increasing version from Redis, so when a full
// run and a regeneration interleave on the same job the highest version wins
// deterministically and a stale writer never clobbers a newer snapshot.
func (s *Store) UpdateJobProgress(ctx context.Context, jobID string, p model.Progress) error {
	ver, err := s.redis.Incr(ctx, jobKey(jobID)+":progress_ver").Result()
	if err != nil {
		return err
	}
	p.Version = ver
	p.UpdatedAt = time.Now()

	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Progress.Version > ver {
		return nil // a newer snapshot is already in place
	}
	job.Progress = p
	return s.SaveJob(ctx, job)
}

// MarkJobProcessing transitions a job from queued to processing
func (s *Store) MarkJobProcessing(ctx context.Context, jobID string) error {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	now := time.Now()
	job.Status = model.JobStatusProcessing
	job.StartedAt = &now
	return s.SaveJob(ctx, job)
}

// MarkJobCompleted flips a job to its terminal completed state
func (s *Store) MarkJobCompleted(ctx context.Context, jobID string) error {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	now := time.Now()
	job.Status = model.JobStatusCompleted
	job.Error = nil
	job.CompletedAt = &now
	return s.SaveJob(ctx, job)
}

// MarkJobFailed flips a job to its terminal failed state with a message
func (s *Store) MarkJobFailed(ctx context.Context, jobID, errMsg string) error {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	now := time.Now()
	job.Status = model.JobStatusFailed
	job.Error = &errMsg
	job.CompletedAt = &now
	job.Progress.Step = model.StepFailed
	job.Progress.Message = errMsg
	job.Progress.UpdatedAt = now
	return s.SaveJob(ctx, job)
}

// --- Videos ---

// SaveVideo writes the full video record and indexes it for listing
func (s *Store) SaveVideo(ctx context.Context, video *model.Video) error {
	video.UpdatedAt = time.Now()
	data, err := json.Marshal(video)
	if err != nil {
		return err
	}
	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, videoKey(video.ID), data, 0)
	pipe.SAdd(ctx, "videos", video.ID)
	_, err = pipe.Exec(ctx)
	return err
}

// GetVideo reads a video by id
func (s *Store) GetVideo(ctx context.Context, videoID string) (*model.Video, error) {
	data, err := s.redis.Get(ctx, videoKey(videoID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrVideoNotFound
		}
		return nil, err
	}

	var video model.Video
	if err := json.Unmarshal(data, &video); err != nil {
		return nil, err
	}
	return &video, nil
}

// ListVideos returns all video records, newest first
func (s *Store) ListVideos(ctx context.Context) ([]model.Video, error) {
	ids, err := s.redis.SMembers(ctx, "videos").Result()
	if err != nil {
		return nil, err
	}

	videos := make([]model.Video, 0, len(ids))
	for _, id := range ids {
		v, err := s.GetVideo(ctx, id)
		if err != nil {
			if errors.Is(err, ErrVideoNotFound) {
				continue // index entry outlived the record
			}
			return nil, err
		}
		videos = append(videos, *v)
	}
	sort.Slice(videos, func(i, j int) bool {
		return videos[i].CreatedAt.After(videos[j].CreatedAt)
	})
	return videos, nil
}

// --- Scenes ---

// SaveScene writes the full scene record and indexes it under its video
func (s *Store) SaveScene(ctx context.Context, scene *model.Scene) error {
	scene.UpdatedAt = time.Now()
	data, err := json.Marshal(scene)
	if err != nil {
		return err
	}
	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, sceneKey(scene.ID), data, 0)
	pipe.SAdd(ctx, sceneIndexKey(scene.VideoID), scene.ID)
	_, err = pipe.Exec(ctx)
	return err
}

// GetScene reads a scene by id
func (s *Store) GetScene(ctx context.Context, sceneID string) (*model.Scene, error) {
	data, err := s.redis.Get(ctx, sceneKey(sceneID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrSceneNotFound
		}
		return nil, err
	}

	var scene model.Scene
	if err := json.Unmarshal(data, &scene); err != nil {
		return nil, err
	}
	return &scene, nil
}

// ScenesByVideo returns a video's scenes sorted by playback index
func (s *Store) ScenesByVideo(ctx context.Context, videoID string) ([]model.Scene, error) {
	ids, err := s.redis.SMembers(ctx, sceneIndexKey(videoID)).Result()
	if err != nil {
		return nil, err
	}

	scenes := make([]model.Scene, 0, len(ids))
	for _, id := range ids {
		sc, err := s.GetScene(ctx, id)
		if err != nil {
			if errors.Is(err, ErrSceneNotFound) {
				continue
			}
			return nil, fmt.Errorf("scene %s: %w", id, err)
		}
		scenes = append(scenes, *sc)
	}
	sort.Slice(scenes, func(i, j int) bool {
		return scenes[i].Index < scenes[j].Index
	})
	return scenes, nil
}
