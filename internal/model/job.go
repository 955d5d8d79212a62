package model

import "time"

// Job represents a background generation job in the system
type Job struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"` // "generate", "regenerate" or "assemble"
	Status      JobStatus  `json:"status"`
	VideoID     string     `json:"videoId"`
	UserID      string     `json:"userId,omitempty"`
	Error       *string    `json:"error,omitempty"`
	Progress    Progress   `json:"progress"`
	Payload     []byte     `json:"-"` // Stored as JSON
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Job types
const (
	JobTypeGenerate   = "generate"
	JobTypeRegenerate = "regenerate"
	JobTypeAssemble   = "assemble"
)

// GenerateJobPayload contains the data for a full video generation job
type GenerateJobPayload struct {
	VideoID string  `json:"videoId"`
	Story   string  `json:"story"`
	Style   Style   `json:"style"`
	Quality Quality `json:"quality"`
	VoiceID string  `json:"voiceId"`
}

// RegenerateJobPayload contains the data for a single-scene regeneration job
type RegenerateJobPayload struct {
	VideoID string  `json:"videoId"`
	SceneID string  `json:"sceneId"`
	Quality Quality `json:"quality"`
	VoiceID string  `json:"voiceId"`
}

// AssembleJobPayload contains the data for a final assembly job
type AssembleJobPayload struct {
	VideoID string `json:"videoId"`
}

// Progress is the point-in-time projection of pipeline progress attached to a
// job. It is overwritten wholesale on every update; Version increases
// monotonically so interleaved writers resolve deterministically to the
// highest version.
type Progress struct {
	Version      int64     `json:"version"`
	Step         string    `json:"step"`
	Percent      int       `json:"percent"`
	Message      string    `json:"message"`
	CurrentScene int       `json:"currentScene"`
	TotalScenes  int       `json:"totalScenes"`
	SubStep      SubStep   `json:"subStep,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
