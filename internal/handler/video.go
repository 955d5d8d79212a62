package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/storyreel/api/internal/model"
	"github.com/storyreel/api/internal/service"
	"github.com/storyreel/api/internal/store"
	"github.com/storyreel/api/pkg/response"
)

type VideoHandler struct {
	service   *service.PipelineService
	validator *validator.Validate
}

func NewVideoHandler(svc *service.PipelineService, v *validator.Validate) *VideoHandler {
	return &VideoHandler{
		service:   svc,
		validator: v,
	}
}

// Generate handles POST /api/videos/generate.
// Accepts a story and queues the full generation pipeline; the response
// carries the job id the client polls.
func (h *VideoHandler) Generate(c *fiber.Ctx) error {
	var req model.GenerateVideoRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	userID, _ := c.Locals("userID").(string)

	result, err := h.service.StartGeneration(c.Context(), userID, &req)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, result)
}

// Progress handles GET /api/videos/progress/:jobId.
// Pure read: the latest snapshot plus the scenes persisted so far.
func (h *VideoHandler) Progress(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.GetProgress(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// Regenerate handles POST /api/videos/:videoId/scenes/:sceneId/regenerate
func (h *VideoHandler) Regenerate(c *fiber.Ctx) error {
	videoID := c.Params("videoId")
	sceneID := c.Params("sceneId")
	if videoID == "" || sceneID == "" {
		return response.ValidationError(c, "Video ID and scene ID are required", nil)
	}

	var req model.RegenerateSceneRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.RegenerateScene(c.Context(), videoID, sceneID, &req)
	if err != nil {
		if errors.Is(err, store.ErrSceneNotFound) {
			return response.NotFound(c, "Scene not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, result)
}

// Assemble handles POST /api/videos/:videoId/assemble.
// Rejects with a named missing-scene error unless every scene has a rendered
// clip on disk.
func (h *VideoHandler) Assemble(c *fiber.Ctx) error {
	videoID := c.Params("videoId")
	if videoID == "" {
		return response.ValidationError(c, "Video ID is required", nil)
	}

	result, err := h.service.AssembleFinalVideo(c.Context(), videoID)
	if err != nil {
		if errors.Is(err, store.ErrVideoNotFound) {
			return response.NotFound(c, "Video not found")
		}
		return response.ValidationError(c, err.Error(), nil)
	}

	return response.Accepted(c, result)
}

// Get handles GET /api/videos/:videoId
func (h *VideoHandler) Get(c *fiber.Ctx) error {
	videoID := c.Params("videoId")
	if videoID == "" {
		return response.ValidationError(c, "Video ID is required", nil)
	}

	video, err := h.service.GetVideo(c.Context(), videoID)
	if err != nil {
		if errors.Is(err, store.ErrVideoNotFound) {
			return response.NotFound(c, "Video not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, video)
}

// List handles GET /api/videos
func (h *VideoHandler) List(c *fiber.Ctx) error {
	videos, err := h.service.ListVideos(c.Context())
	if err != nil {
		return response.ServiceError(c, err.Error())
	}
	return response.OK(c, videos)
}

// Scenes handles GET /api/videos/:videoId/scenes
func (h *VideoHandler) Scenes(c *fiber.Ctx) error {
	videoID := c.Params("videoId")
	if videoID == "" {
		return response.ValidationError(c, "Video ID is required", nil)
	}

	scenes, err := h.service.GetVideoScenes(c.Context(), videoID)
	if err != nil {
		if errors.Is(err, store.ErrVideoNotFound) {
			return response.NotFound(c, "Video not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, scenes)
}

// formatValidationErrors converts validator errors into field/message pairs
func formatValidationErrors(err error) []fiber.Map {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return nil
	}

	out := make([]fiber.Map, 0, len(ve))
	for _, fe := range ve {
		out = append(out, fiber.Map{
			"field": fe.Field(),
			"rule":  fe.Tag(),
		})
	}
	return out
}
