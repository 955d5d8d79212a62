package model

// Job status
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether the status admits no further transitions.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Video status
type VideoStatus string

const (
	VideoStatusPending     VideoStatus = "pending"
	VideoStatusScenesReady VideoStatus = "scenes_ready"
	VideoStatusCompleted   VideoStatus = "completed"
	VideoStatusFailed      VideoStatus = "failed"
)

// Quality tiers
type Quality string

const (
	QualityLow  Quality = "low"
	QualityHigh Quality = "high"
	QualityMax  Quality = "max"
)

var ValidQualities = []Quality{QualityLow, QualityHigh, QualityMax}

// Steps returns the diffusion step count the image backend is called with
// for this quality tier.
func (q Quality) Steps() int {
	switch q {
	case QualityHigh:
		return 30
	case QualityMax:
		return 35
	default:
		return 20
	}
}

// Pipeline steps reported in the progress snapshot
const (
	StepWritingScript    = "writing_script"
	StepGeneratingScenes = "generating_scenes"
	StepScenesReady      = "scenes_ready"
	StepRegenerating     = "regenerating_scene"
	StepAssembling       = "assembling"
	StepVideoReady       = "video_ready"
	StepFailed           = "failed"
)

// Sub-steps within a single scene
type SubStep string

const (
	SubStepStarting        SubStep = "starting"
	SubStepGeneratingImage SubStep = "generating_image"
	SubStepGeneratingAudio SubStep = "generating_audio"
	SubStepCreatingVideo   SubStep = "creating_video"
	SubStepCompleted       SubStep = "completed"
)

// Visual styles
type Style string

const (
	StyleCinematic  Style = "cinematic"
	StyleAnime      Style = "anime"
	StyleWatercolor Style = "watercolor"
	StylePhotoreal  Style = "photoreal"
	StyleComic      Style = "comic"
	StyleMinimalist Style = "minimalist"
)

var ValidStyles = []Style{
	StyleCinematic, StyleAnime, StyleWatercolor,
	StylePhotoreal, StyleComic, StyleMinimalist,
}
