package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storyreel/api/internal/client"
	"github.com/storyreel/api/internal/model"
)

// fakeStore is an in-memory Store for worker tests.
type fakeStore struct {
	mu     sync.Mutex
	jobs   map[string]*model.Job
	videos map[string]*model.Video
	scenes map[string]*model.Scene
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		jobs:   make(map[string]*model.Job),
		videos: make(map[string]*model.Video),
		scenes: make(map[string]*model.Scene),
	}
}

func (s *fakeStore) GetJob(_ context.Context, jobID string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("job %s not found", jobID)
	}
	cp := *j
	return &cp, nil
}

func (s *fakeStore) UpdateJobProgress(_ context.Context, jobID string, p model.Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[jobID]; ok {
		p.Version = j.Progress.Version + 1
		j.Progress = p
	}
	return nil
}

func (s *fakeStore) MarkJobProcessing(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[jobID].Status = model.JobStatusProcessing
	return nil
}

func (s *fakeStore) MarkJobCompleted(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[jobID].Status = model.JobStatusCompleted
	return nil
}

func (s *fakeStore) MarkJobFailed(_ context.Context, jobID, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := s.jobs[jobID]
	j.Status = model.JobStatusFailed
	j.Error = &errMsg
	return nil
}

func (s *fakeStore) GetVideo(_ context.Context, videoID string) (*model.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[videoID]
	if !ok {
		return nil, fmt.Errorf("video %s not found", videoID)
	}
	cp := *v
	return &cp, nil
}

func (s *fakeStore) SaveVideo(_ context.Context, video *model.Video) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *video
	s.videos[video.ID] = &cp
	return nil
}

func (s *fakeStore) GetScene(_ context.Context, sceneID string) (*model.Scene, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.scenes[sceneID]
	if !ok {
		return nil, fmt.Errorf("scene %s not found", sceneID)
	}
	cp := *sc
	return &cp, nil
}

func (s *fakeStore) SaveScene(_ context.Context, scene *model.Scene) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *scene
	s.scenes[scene.ID] = &cp
	return nil
}

func (s *fakeStore) ScenesByVideo(_ context.Context, videoID string) ([]model.Scene, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Scene
	for _, sc := range s.scenes {
		if sc.VideoID == videoID {
			out = append(out, *sc)
		}
	}
	// Sorted by playback index, matching the real store.
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].Index < out[i].Index {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

type fakeScript struct {
	scenes []client.ScriptScene
	err    error
}

func (f *fakeScript) WriteScript(_ context.Context, _ string, _ model.Style) ([]client.ScriptScene, error) {
	return f.scenes, f.err
}

type fakeImages struct {
	mu    sync.Mutex
	calls []client.GenerateImageRequest
	errAt int // 1-based call number that fails; 0 never fails
}

func (f *fakeImages) GenerateImage(_ context.Context, req *client.GenerateImageRequest) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, *req)
	if f.errAt > 0 && len(f.calls) == f.errAt {
		return nil, fmt.Errorf("backend unavailable")
	}
	return []byte("png-bytes"), nil
}

type fakeSpeech struct {
	estimates []float64
	calls     int
}

func (f *fakeSpeech) Synthesize(_ context.Context, _, _ string) (*client.SpeechResult, error) {
	est := 0.0
	if f.calls < len(f.estimates) {
		est = f.estimates[f.calls]
	}
	f.calls++
	return &client.SpeechResult{Audio: []byte("mp3-bytes"), EstimatedDuration: est}, nil
}

type fakeProber struct {
	durations []float64
	calls     int
}

func (f *fakeProber) Duration(_ context.Context, _ string) (float64, error) {
	d := f.durations[f.calls%len(f.durations)]
	f.calls++
	return d, nil
}

type renderCall struct {
	spokenDuration float64
	outPath        string
}

type fakeRenderer struct {
	mu    sync.Mutex
	calls []renderCall
}

func (f *fakeRenderer) Render(_ context.Context, _, _ string, spokenDuration float64, outPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, renderCall{spokenDuration, outPath})
	return os.WriteFile(outPath, []byte("mp4-bytes"), 0644)
}

type fakeConcat struct {
	clips []string
	err   error
}

func (f *fakeConcat) Concat(_ context.Context, clipPaths []string, outPath string) error {
	f.clips = append([]string(nil), clipPaths...)
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(outPath, []byte("final-bytes"), 0644)
}

type fakeHub struct {
	mu        sync.Mutex
	progress  []model.Progress
	completes int
	errors    []string
}

func (f *fakeHub) BroadcastProgress(_ string, _ model.JobStatus, p model.Progress) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progress = append(f.progress, p)
}

func (f *fakeHub) BroadcastComplete(_ string, _ interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completes++
}

func (f *fakeHub) BroadcastError(_, _, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, message)
}

func newTask(t *testing.T, taskType, jobID string, payload interface{}) *asynq.Task {
	t.Helper()
	inner, err := json.Marshal(payload)
	require.NoError(t, err)
	outer, err := json.Marshal(map[string]interface{}{
		"jobId":   jobID,
		"payload": json.RawMessage(inner),
	})
	require.NoError(t, err)
	return asynq.NewTask(taskType, outer)
}

func TestGenerateWorkerUsesProbedDurations(t *testing.T) {
	store := newFakeStore()
	store.jobs["job-1"] = &model.Job{ID: "job-1", Type: model.JobTypeGenerate, Status: model.JobStatusQueued, VideoID: "vid-1"}
	store.videos["vid-1"] = &model.Video{ID: "vid-1", Status: model.VideoStatusPending}

	images := &fakeImages{}
	// Backend estimates deliberately disagree with the probe.
	speech := &fakeSpeech{estimates: []float64{2.0, 9.9}}
	prober := &fakeProber{durations: []float64{3.0, 5.2}}
	renderer := &fakeRenderer{}
	hub := &fakeHub{}

	proc := NewSceneProcessor(store, images, speech, prober, renderer, hub, t.TempDir())
	w := NewGenerateWorker(proc, &fakeScript{scenes: []client.ScriptScene{
		{Description: "a foggy harbor at dawn", Narration: "The harbor slept."},
		{Description: "a lighthouse beam", Narration: "Then the light swept the water."},
	}})

	task := newTask(t, "video:generate", "job-1", model.GenerateJobPayload{
		VideoID: "vid-1", Story: "story", Style: model.StyleCinematic, Quality: model.QualityHigh, VoiceID: "nova",
	})
	require.NoError(t, w.ProcessTask(context.Background(), task))

	// The probed length is the duration of record, never the estimate.
	scenes, err := store.ScenesByVideo(context.Background(), "vid-1")
	require.NoError(t, err)
	require.Len(t, scenes, 2)
	assert.Equal(t, 3.0, scenes[0].Duration)
	assert.Equal(t, 5.2, scenes[1].Duration)

	require.Len(t, renderer.calls, 2)
	assert.Equal(t, 3.0, renderer.calls[0].spokenDuration)
	assert.Equal(t, 5.2, renderer.calls[1].spokenDuration)

	// Quality tier maps onto backend steps.
	require.Len(t, images.calls, 2)
	assert.Equal(t, 30, images.calls[0].Steps)

	// Scene rows reference assets that exist on disk.
	for _, sc := range scenes {
		for _, p := range []string{sc.ImagePath, sc.AudioPath, sc.ClipPath} {
			_, statErr := os.Stat(p)
			assert.NoError(t, statErr, "asset %s", p)
		}
	}

	job, err := store.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, job.Status)
	assert.Equal(t, model.StepScenesReady, job.Progress.Step)
	assert.Equal(t, 100, job.Progress.Percent)

	video, err := store.GetVideo(context.Background(), "vid-1")
	require.NoError(t, err)
	assert.Equal(t, model.VideoStatusScenesReady, video.Status)
	assert.Equal(t, 1, hub.completes)
}

func TestGenerateWorkerFailsOnEmptyScript(t *testing.T) {
	store := newFakeStore()
	store.jobs["job-1"] = &model.Job{ID: "job-1", Status: model.JobStatusQueued, VideoID: "vid-1"}
	store.videos["vid-1"] = &model.Video{ID: "vid-1"}

	images := &fakeImages{}
	hub := &fakeHub{}
	proc := NewSceneProcessor(store, images, &fakeSpeech{}, &fakeProber{durations: []float64{1}}, &fakeRenderer{}, hub, t.TempDir())
	w := NewGenerateWorker(proc, &fakeScript{scenes: nil})

	task := newTask(t, "video:generate", "job-1", model.GenerateJobPayload{VideoID: "vid-1", Story: "story"})
	err := w.ProcessTask(context.Background(), task)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no scenes produced")

	// No synthesis call is made once the script comes back empty.
	assert.Empty(t, images.calls)

	job, _ := store.GetJob(context.Background(), "job-1")
	assert.Equal(t, model.JobStatusFailed, job.Status)
	require.NotNil(t, job.Error)
	assert.Equal(t, "no scenes produced", *job.Error)
	assert.Equal(t, []string{"no scenes produced"}, hub.errors)
}

func TestGenerateWorkerAbortsOnSceneFailure(t *testing.T) {
	store := newFakeStore()
	store.jobs["job-1"] = &model.Job{ID: "job-1", Status: model.JobStatusQueued, VideoID: "vid-1"}
	store.videos["vid-1"] = &model.Video{ID: "vid-1", Status: model.VideoStatusPending}

	// Second image call fails, so scene index 1 aborts the job.
	images := &fakeImages{errAt: 2}
	proc := NewSceneProcessor(store, images, &fakeSpeech{}, &fakeProber{durations: []float64{2.5}}, &fakeRenderer{}, &fakeHub{}, t.TempDir())
	w := NewGenerateWorker(proc, &fakeScript{scenes: []client.ScriptScene{
		{Description: "one", Narration: "one"},
		{Description: "two", Narration: "two"},
		{Description: "three", Narration: "three"},
	}})

	task := newTask(t, "video:generate", "job-1", model.GenerateJobPayload{VideoID: "vid-1", Story: "story"})
	err := w.ProcessTask(context.Background(), task)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scene 1 failed")

	// The completed scene keeps its row; the failed and unreached ones have none.
	scenes, _ := store.ScenesByVideo(context.Background(), "vid-1")
	require.Len(t, scenes, 1)
	assert.Equal(t, 0, scenes[0].Index)

	job, _ := store.GetJob(context.Background(), "job-1")
	assert.Equal(t, model.JobStatusFailed, job.Status)

	// No third scene was attempted after the abort.
	assert.Len(t, images.calls, 2)

	video, _ := store.GetVideo(context.Background(), "vid-1")
	assert.Equal(t, model.VideoStatusPending, video.Status)
}

func TestRegenerateWorkerReplacesAssetsInPlace(t *testing.T) {
	dir := t.TempDir()
	oldImage := dir + "/old.png"
	oldAudio := dir + "/old.mp3"
	oldClip := dir + "/old.mp4"
	for _, p := range []string{oldImage, oldAudio, oldClip} {
		require.NoError(t, os.WriteFile(p, []byte("old"), 0644))
	}

	store := newFakeStore()
	store.jobs["job-2"] = &model.Job{ID: "job-2", Type: model.JobTypeRegenerate, Status: model.JobStatusQueued, VideoID: "vid-1"}
	store.videos["vid-1"] = &model.Video{ID: "vid-1", Status: model.VideoStatusScenesReady}
	store.scenes["sc-0"] = &model.Scene{ID: "sc-0", VideoID: "vid-1", Index: 0, Narration: "first", ClipPath: dir + "/keep0.mp4", Duration: 2.0}
	store.scenes["sc-1"] = &model.Scene{ID: "sc-1", VideoID: "vid-1", Index: 1, Narration: "second", ImagePath: oldImage, AudioPath: oldAudio, ClipPath: oldClip, Duration: 4.0}
	store.scenes["sc-2"] = &model.Scene{ID: "sc-2", VideoID: "vid-1", Index: 2, Narration: "third", ClipPath: dir + "/keep2.mp4", Duration: 3.0}

	proc := NewSceneProcessor(store, &fakeImages{}, &fakeSpeech{}, &fakeProber{durations: []float64{6.5}}, &fakeRenderer{}, &fakeHub{}, t.TempDir())
	w := NewRegenerateWorker(proc)

	task := newTask(t, "scene:regenerate", "job-2", model.RegenerateJobPayload{
		VideoID: "vid-1", SceneID: "sc-1", Quality: model.QualityLow, VoiceID: "nova",
	})
	require.NoError(t, w.ProcessTask(context.Background(), task))

	// Identity and position survive; assets and duration are replaced.
	sc, err := store.GetScene(context.Background(), "sc-1")
	require.NoError(t, err)
	assert.Equal(t, 1, sc.Index)
	assert.Equal(t, 6.5, sc.Duration)
	assert.NotEqual(t, oldClip, sc.ClipPath)

	// Replaced assets are gone.
	for _, p := range []string{oldImage, oldAudio, oldClip} {
		_, statErr := os.Stat(p)
		assert.True(t, os.IsNotExist(statErr), "expected %s removed", p)
	}

	// Neighbors are untouched.
	other, _ := store.GetScene(context.Background(), "sc-0")
	assert.Equal(t, 2.0, other.Duration)
	assert.Equal(t, dir+"/keep0.mp4", other.ClipPath)

	job, _ := store.GetJob(context.Background(), "job-2")
	assert.Equal(t, model.JobStatusCompleted, job.Status)
}

func TestAssembleWorkerConcatenatesInOrder(t *testing.T) {
	dir := t.TempDir()
	clip0 := dir + "/c0.mp4"
	clip1 := dir + "/c1.mp4"
	require.NoError(t, os.WriteFile(clip0, []byte("c0"), 0644))
	require.NoError(t, os.WriteFile(clip1, []byte("c1"), 0644))

	store := newFakeStore()
	store.jobs["job-3"] = &model.Job{ID: "job-3", Type: model.JobTypeAssemble, Status: model.JobStatusQueued, VideoID: "vid-1"}
	store.videos["vid-1"] = &model.Video{ID: "vid-1", Status: model.VideoStatusScenesReady}
	// Inserted out of order; assembly must follow playback index.
	store.scenes["sc-1"] = &model.Scene{ID: "sc-1", VideoID: "vid-1", Index: 1, ClipPath: clip1}
	store.scenes["sc-0"] = &model.Scene{ID: "sc-0", VideoID: "vid-1", Index: 0, ClipPath: clip0}

	concat := &fakeConcat{}
	hub := &fakeHub{}
	mediaRoot := t.TempDir()
	w := NewAssembleWorker(store, concat, nil, hub, mediaRoot)

	task := newTask(t, "video:assemble", "job-3", model.AssembleJobPayload{VideoID: "vid-1"})
	require.NoError(t, w.ProcessTask(context.Background(), task))

	assert.Equal(t, []string{clip0, clip1}, concat.clips)

	video, _ := store.GetVideo(context.Background(), "vid-1")
	assert.Equal(t, model.VideoStatusCompleted, video.Status)
	assert.Equal(t, mediaRoot+"/videos/vid-1.mp4", video.FinalPath)
	assert.Empty(t, video.FinalURL)

	_, err := os.Stat(video.FinalPath)
	assert.NoError(t, err)

	// Intermediate clips are cleaned up after the final asset exists.
	_, err = os.Stat(clip0)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(clip1)
	assert.True(t, os.IsNotExist(err))

	job, _ := store.GetJob(context.Background(), "job-3")
	assert.Equal(t, model.JobStatusCompleted, job.Status)
	assert.Equal(t, model.StepVideoReady, job.Progress.Step)
	assert.Equal(t, 1, hub.completes)
}

func TestAssembleWorkerFailsOnMissingClip(t *testing.T) {
	dir := t.TempDir()
	clip0 := dir + "/c0.mp4"
	require.NoError(t, os.WriteFile(clip0, []byte("c0"), 0644))

	store := newFakeStore()
	store.jobs["job-3"] = &model.Job{ID: "job-3", Status: model.JobStatusQueued, VideoID: "vid-1"}
	store.videos["vid-1"] = &model.Video{ID: "vid-1", Status: model.VideoStatusScenesReady}
	store.scenes["sc-0"] = &model.Scene{ID: "sc-0", VideoID: "vid-1", Index: 0, ClipPath: clip0}
	store.scenes["sc-1"] = &model.Scene{ID: "sc-1", VideoID: "vid-1", Index: 1, ClipPath: dir + "/gone.mp4"}

	concat := &fakeConcat{}
	hub := &fakeHub{}
	w := NewAssembleWorker(store, concat, nil, hub, t.TempDir())

	task := newTask(t, "video:assemble", "job-3", model.AssembleJobPayload{VideoID: "vid-1"})
	err := w.ProcessTask(context.Background(), task)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing clip for scene 1")

	// Nothing was concatenated and the surviving clip was not removed.
	assert.Nil(t, concat.clips)
	_, statErr := os.Stat(clip0)
	assert.NoError(t, statErr)

	job, _ := store.GetJob(context.Background(), "job-3")
	assert.Equal(t, model.JobStatusFailed, job.Status)
	require.Len(t, hub.errors, 1)
	assert.Contains(t, hub.errors[0], "missing clip")
}

func TestScenePercentBounds(t *testing.T) {
	assert.Equal(t, 5, scenePercent(0, 3, 0.0))
	assert.Equal(t, 95, scenePercent(2, 3, 1.0))
	assert.Equal(t, 0, scenePercent(0, 0, 0.5))

	// Percentages never run backwards within a run.
	prev := -1
	for i := 0; i < 4; i++ {
		for _, frac := range []float64{0.0, 0.05, 0.35, 0.60, 1.0} {
			p := scenePercent(i, 4, frac)
			assert.GreaterOrEqual(t, p, prev)
			prev = p
		}
	}
}
