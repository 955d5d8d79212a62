package model

import "time"

// GenerateVideoRequest represents the request to start a video generation job
type GenerateVideoRequest struct {
	Title   string  `json:"title" validate:"omitempty,max=200"`
	Story   string  `json:"story" validate:"required,min=10"`
	Style   Style   `json:"style" validate:"required,oneof=cinematic anime watercolor photoreal comic minimalist"`
	Quality Quality `json:"quality" validate:"required,oneof=low high max"`
	VoiceID string  `json:"voiceId" validate:"required"`
}

// GenerateVideoResponse is returned when a generation job is accepted
type GenerateVideoResponse struct {
	JobID     string    `json:"jobId"`
	VideoID   string    `json:"videoId"`
	Status    JobStatus `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// RegenerateSceneRequest represents the request to regenerate a single scene
type RegenerateSceneRequest struct {
	Quality Quality `json:"quality" validate:"required,oneof=low high max"`
	VoiceID string  `json:"voiceId" validate:"required"`
}

// RegenerateSceneResponse is returned when a regeneration job is accepted
type RegenerateSceneResponse struct {
	JobID   string    `json:"jobId"`
	SceneID string    `json:"sceneId"`
	Status  JobStatus `json:"status"`
}

// AssembleVideoResponse is returned when an assembly job is accepted
type AssembleVideoResponse struct {
	JobID   string    `json:"jobId"`
	VideoID string    `json:"videoId"`
	Status  JobStatus `json:"status"`
}

// ProgressResponse is the polling payload: the latest snapshot plus the
// scenes persisted so far, in playback order.
type ProgressResponse struct {
	JobID       string     `json:"jobId"`
	VideoID     string     `json:"videoId"`
	Status      JobStatus  `json:"status"`
	Error       *string    `json:"error,omitempty"`
	Progress    Progress   `json:"progress"`
	Scenes      []Scene    `json:"scenes"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}
