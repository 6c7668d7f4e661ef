package motionservice

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bigjimnolan/protectmotion/detectorservice"
	"github.com/bigjimnolan/protectmotion/protectservice"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// MotionService polls for motion and turns it into at most one notification
// per camera per event (per repeat window). Cameras are walked one at a time
// inside a tick, and ticks never overlap.
type MotionService struct {
	config MotionConfig
	deps   Dependencies

	// states is only touched inside a tick.
	states map[string]*MotionState

	running atomic.Bool
	ticks   sync.WaitGroup
	uploads sync.WaitGroup
	now     func() time.Time
}

func NewMotionService(config MotionConfig, deps Dependencies) (*MotionService, error) {
	if config.PollInterval <= 0 {
		return nil, errors.New("poll interval must be positive")
	}
	if deps.Events == nil || deps.Snapshots == nil || deps.Sink == nil || deps.Store == nil {
		return nil, errors.New("events, snapshots, sink and store are required")
	}
	if config.Enhanced && deps.Detector == nil {
		return nil, errors.New("enhanced motion needs a detector")
	}
	if config.Enhanced && len(config.EnhancedClasses) == 0 {
		return nil, errors.New("enhanced motion needs at least one class")
	}

	ms := &MotionService{
		config: config,
		deps:   deps,
		states: make(map[string]*MotionState, len(deps.Cameras)),
		now:    time.Now,
	}
	for _, camera := range deps.Cameras {
		state, found, err := deps.Store.LoadMotionState(camera.ID)
		if err != nil {
			log.Warn().Msgf("Could not load motion state for %s: %v", camera.Name, err)
			continue
		}
		if found {
			ms.states[camera.ID] = &state
		}
	}
	return ms, nil
}

// Start checks motion every poll interval until ctx is cancelled, then waits
// for the running tick and any uploads.
func (ms *MotionService) Start(ctx context.Context) error {
	ticker := time.NewTicker(ms.config.PollInterval)
	defer ticker.Stop()

	mode := "simple"
	if ms.config.Enhanced {
		mode = "enhanced"
	}
	log.Info().Msgf("Checking %s motion every %v for %d camera(s)", mode, ms.config.PollInterval, len(ms.deps.Cameras))

	// in-flight work finishes on shutdown
	tickCtx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Motion checking stopped, waiting for in-flight work")
			ms.Wait()
			return nil
		case <-ticker.C:
			ms.ticks.Add(1)
			go func() {
				defer ms.ticks.Done()
				ms.RunOnce(tickCtx)
			}()
		}
	}
}

// Wait blocks until the current tick and all detached uploads are done.
func (ms *MotionService) Wait() {
	ms.ticks.Wait()
	ms.uploads.Wait()
}

// RunOnce performs one tick. It returns false without doing anything when
// another tick is still running.
func (ms *MotionService) RunOnce(ctx context.Context) bool {
	if !ms.running.CompareAndSwap(false, true) {
		log.Debug().Msg("Previous motion check still running, skipping tick")
		return false
	}
	defer ms.running.Store(false)
	defer func() {
		if r := recover(); r != nil {
			log.Error().Msgf("Error during motion interval loop: %v", r)
		}
	}()

	ms.checkMotion(ctx)
	return true
}

func (ms *MotionService) checkMotion(ctx context.Context) {
	events, err := ms.deps.Events.LatestMotionEventPerCamera(ctx, ms.deps.Cameras)
	if err != nil {
		log.Warn().Msgf("Cannot get latest motion info: %v", err)
		events = nil
	}
	byCamera := make(map[string]protectservice.MotionEvent, len(events))
	for _, ev := range events {
		byCamera[ev.CameraID] = ev
	}

	for _, camera := range ms.deps.Cameras {
		ms.setMotion(camera, false)

		enabled, err := ms.deps.Store.MotionEnabled(camera.ID)
		if err != nil {
			log.Warn().Msgf("Cannot read monitoring switch for %s: %v", camera.Name, err)
			continue
		}
		if !enabled {
			continue
		}

		event, ok := byCamera[camera.ID]
		if !ok {
			continue
		}
		if ms.isSkippableLongRunning(camera, event) {
			continue
		}

		if ms.config.Enhanced {
			ms.checkEnhanced(ctx, camera, event)
		} else {
			ms.checkSimple(ctx, camera, event)
		}
	}
}

func (ms *MotionService) checkSimple(ctx context.Context, camera protectservice.Camera, event protectservice.MotionEvent) {
	log.Info().Msgf("!!!! Motion detected (%d%%) by camera %s !!!!", event.Score, camera.Name)
	ms.setMotion(camera, true)

	var path string
	snapshot, err := ms.deps.Snapshots.Fetch(ctx, camera)
	if err != nil {
		log.Warn().Msgf("Cannot save snapshot: %v", err)
	} else {
		description := fmt.Sprintf("Motion detected (%d%%) by camera %s", event.Score, camera.Name)
		path = ms.persistSnapshot(snapshot, description, nil)
	}
	ms.notify(camera, event, "motion", event.Score, path)
}

func (ms *MotionService) checkEnhanced(ctx context.Context, camera protectservice.Camera, event protectservice.MotionEvent) {
	snapshot, err := ms.deps.Snapshots.Fetch(ctx, camera)
	if err != nil {
		log.Warn().Msgf("Cannot get snapshot for %s, skipping: %v", camera.Name, err)
		return
	}
	detections, err := ms.deps.Detector.Detect(ctx, snapshot)
	if err != nil {
		log.Warn().Msgf("Object detection failed for %s, skipping: %v", camera.Name, err)
		return
	}

	// class order is priority order
	for _, class := range ms.config.EnhancedClasses {
		detection, ok := detectionForClass(class, detections)
		if !ok {
			continue
		}

		score := detection.Score()
		if score < ms.config.EnhancedScore {
			log.Info().Msgf("!!!! Detected class: %s rejected due to score: %d%% (must be %d%% or higher) !!!!", detection.Label, score, ms.config.EnhancedScore)
			continue
		}

		log.Info().Msgf("!!!! %s detected (%d%%) by camera %s !!!!", class, score, camera.Name)
		ms.setMotion(camera, true)
		description := fmt.Sprintf("%s detected (%d%%) by camera %s", class, score, camera.Name)
		path := ms.persistSnapshot(snapshot, description, []detectorservice.Detection{detection})
		ms.notify(camera, event, class, score, path)
		return
	}
	log.Debug().Msgf("None of the required classes found on %s, discarding", camera.Name)
}

// detectionForClass returns the most confident detection whose label matches
// class, ignoring case.
func detectionForClass(class string, detections []detectorservice.Detection) (detectorservice.Detection, bool) {
	var best detectorservice.Detection
	found := false
	for _, d := range detections {
		if !strings.EqualFold(d.Label, class) {
			continue
		}
		if !found || d.Confidence > best.Confidence {
			best = d
			found = true
		}
	}
	return best, found
}

// isSkippableLongRunning suppresses repeat notifications for an event that
// outlasts the poll interval. The same event may notify again once every
// RepeatInterval.
func (ms *MotionService) isSkippableLongRunning(camera protectservice.Camera, event protectservice.MotionEvent) bool {
	if ms.config.RepeatInterval <= 0 {
		return false
	}

	state := ms.state(camera.ID)
	defer func() { ms.saveState(camera, *state) }()

	if state.LastMotionEventID != event.ID {
		state.LastMotionEventID = event.ID
		state.RepeatCount = 0
		return false
	}

	state.RepeatCount++
	if state.RepeatCount >= ms.repeatThreshold() {
		state.RepeatCount = 0
		return false
	}
	log.Info().Msgf("Motion on %s inside of skippable timeframe, ignoring", camera.Name)
	return true
}

// repeatThreshold rounds up so a window that is not a multiple of the poll
// interval still never sees two notifications for one event.
func (ms *MotionService) repeatThreshold() int {
	poll := ms.config.PollInterval
	return max(1, int((ms.config.RepeatInterval+poll-1)/poll))
}

func (ms *MotionService) state(cameraID string) *MotionState {
	state, ok := ms.states[cameraID]
	if !ok {
		state = &MotionState{}
		ms.states[cameraID] = state
	}
	return state
}

// State returns a copy of the camera's repeat counters.
func (ms *MotionService) State(cameraID string) (MotionState, bool) {
	state, ok := ms.states[cameraID]
	if !ok {
		return MotionState{}, false
	}
	return *state, true
}

func (ms *MotionService) saveState(camera protectservice.Camera, state MotionState) {
	if err := ms.deps.Store.SaveMotionState(camera.ID, state); err != nil {
		log.Warn().Msgf("Could not persist motion state for %s: %v", camera.Name, err)
	}
}

func (ms *MotionService) setMotion(camera protectservice.Camera, detected bool) {
	if err := ms.deps.Sink.SetMotionDetected(camera, detected); err != nil {
		log.Warn().Msgf("Could not set motion=%v on %s: %v", detected, camera.Name, err)
	}
}

// persistSnapshot stores the snapshot locally when configured and hands it to
// the uploader without waiting. It returns the local path, if one was kept.
func (ms *MotionService) persistSnapshot(snapshot []byte, description string, detections []detectorservice.Detection) string {
	var localPath string
	if ms.config.SaveSnapshot {
		path, err := ms.deps.Snapshots.SaveAnnotated(snapshot, detections)
		if err != nil {
			log.Warn().Msgf("Cannot save snapshot: %v", err)
		} else {
			localPath = path
		}
	}
	if ms.deps.Uploader == nil {
		return localPath
	}

	uploadPath, temporary := localPath, false
	if uploadPath == "" {
		path, err := ms.deps.Snapshots.SaveAnnotated(snapshot, detections)
		if err != nil {
			log.Warn().Msgf("Cannot stage snapshot for upload: %v", err)
			return ""
		}
		uploadPath, temporary = path, true
	}

	// the upload goroutine owns uploadPath from here on
	ms.uploads.Add(1)
	go ms.upload(uploadPath, description, temporary)
	return localPath
}

func (ms *MotionService) upload(path, description string, temporary bool) {
	defer ms.uploads.Done()

	url, err := ms.deps.Uploader.Upload(context.Background(), path, filepath.Base(path), description)
	if err != nil {
		log.Warn().Msgf("Photo upload failed: %v", err)
	} else {
		log.Info().Msgf("Photo uploaded: %s", url)
	}

	if temporary {
		if err := ms.deps.Snapshots.Remove(path); err != nil {
			log.Warn().Msgf("Could not remove %s: %v", path, err)
		}
	}
}

func (ms *MotionService) notify(camera protectservice.Camera, event protectservice.MotionEvent, label string, score int, path string) {
	n := Notification{
		ID:           uuid.NewString(),
		CameraID:     camera.ID,
		CameraName:   camera.Name,
		EventID:      event.ID,
		Label:        label,
		Score:        score,
		SnapshotPath: path,
		CreatedAt:    ms.now(),
	}
	if err := ms.deps.Store.RecordNotification(n); err != nil {
		log.Warn().Msgf("Could not record notification for %s: %v", camera.Name, err)
	}
	for _, notifier := range ms.deps.Notifiers {
		notifier.Notify(n)
	}
}
