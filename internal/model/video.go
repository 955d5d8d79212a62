package model

import "time"

// Video represents a generated slideshow video
type Video struct {
	ID        string      `json:"id"`
	UserID    string      `json:"userId,omitempty"`
	Title     string      `json:"title"`
	Story     string      `json:"story"`
	Style     Style       `json:"style"`
	Quality   Quality     `json:"quality"`
	Status    VideoStatus `json:"status"`
	FinalPath string      `json:"finalPath,omitempty"`
	FinalURL  string      `json:"finalUrl,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// Scene is one (image, narration) unit of a video with a fixed playback order.
// Index is 0-based, contiguous per video and never changes; regeneration
// replaces the generated assets and duration in place under the same ID.
type Scene struct {
	ID          string    `json:"id"`
	VideoID     string    `json:"videoId"`
	JobID       string    `json:"jobId"`
	Index       int       `json:"index"`
	Description string    `json:"description"`
	Narration   string    `json:"narration"`
	ImagePath   string    `json:"imagePath,omitempty"`
	AudioPath   string    `json:"audioPath,omitempty"`
	ClipPath    string    `json:"clipPath,omitempty"`
	Duration    float64   `json:"duration"` // seconds, always the probed audio length
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
