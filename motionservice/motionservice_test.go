package motionservice

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bigjimnolan/protectmotion/detectorservice"
	"github.com/bigjimnolan/protectmotion/protectservice"
)

type fakeEvents struct {
	events []protectservice.MotionEvent
	err    error
	calls  int
}

func (f *fakeEvents) LatestMotionEventPerCamera(_ context.Context, _ []protectservice.Camera) ([]protectservice.MotionEvent, error) {
	f.calls++
	return f.events, f.err
}

type fakeSnapshots struct {
	mu      sync.Mutex
	failFor map[string]bool
	saved   []string
	removed []string
	counter int
}

func (f *fakeSnapshots) Fetch(_ context.Context, camera protectservice.Camera) ([]byte, error) {
	if f.failFor[camera.ID] {
		return nil, errors.New("camera offline")
	}
	return []byte("jpeg-" + camera.ID), nil
}

func (f *fakeSnapshots) SaveAnnotated(_ []byte, _ []detectorservice.Detection) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counter++
	path := fmt.Sprintf("/tmp/snap-%d.jpg", f.counter)
	f.saved = append(f.saved, path)
	return path, nil
}

func (f *fakeSnapshots) Remove(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, path)
	return nil
}

func (f *fakeSnapshots) removedPaths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.removed...)
}

type fakeDetector struct {
	detections []detectorservice.Detection
	err        error
	entered    chan struct{}
	release    chan struct{}
}

func (f *fakeDetector) Detect(_ context.Context, _ []byte) ([]detectorservice.Detection, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
		<-f.release
	}
	return f.detections, f.err
}

type fakeSink struct {
	history map[string][]bool
}

func (f *fakeSink) SetMotionDetected(camera protectservice.Camera, detected bool) error {
	if f.history == nil {
		f.history = map[string][]bool{}
	}
	f.history[camera.ID] = append(f.history[camera.ID], detected)
	return nil
}

func (f *fakeSink) raised(cameraID string) int {
	n := 0
	for _, v := range f.history[cameraID] {
		if v {
			n++
		}
	}
	return n
}

type fakeStore struct {
	disabled      map[string]bool
	states        map[string]MotionState
	notifications []Notification
}

func newFakeStore() *fakeStore {
	return &fakeStore{disabled: map[string]bool{}, states: map[string]MotionState{}}
}

func (f *fakeStore) MotionEnabled(cameraID string) (bool, error) {
	return !f.disabled[cameraID], nil
}

func (f *fakeStore) LoadMotionState(cameraID string) (MotionState, bool, error) {
	s, ok := f.states[cameraID]
	return s, ok, nil
}

func (f *fakeStore) SaveMotionState(cameraID string, state MotionState) error {
	f.states[cameraID] = state
	return nil
}

func (f *fakeStore) RecordNotification(n Notification) error {
	f.notifications = append(f.notifications, n)
	return nil
}

type fakeUploader struct {
	mu      sync.Mutex
	release chan struct{}
	paths   []string
}

func (f *fakeUploader) Upload(_ context.Context, path, _, _ string) (string, error) {
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, path)
	return "https://photos.example/" + path, nil
}

type fakeNotifier struct {
	got []Notification
}

func (f *fakeNotifier) Notify(n Notification) {
	f.got = append(f.got, n)
}

var (
	porch  = protectservice.Camera{ID: "cam1", Name: "Porch"}
	garage = protectservice.Camera{ID: "cam2", Name: "Garage"}
)

func event(cameraID, id string) protectservice.MotionEvent {
	return protectservice.MotionEvent{ID: id, CameraID: cameraID, Score: 70}
}

type harness struct {
	events    *fakeEvents
	snapshots *fakeSnapshots
	detector  *fakeDetector
	sink      *fakeSink
	store     *fakeStore
	notifier  *fakeNotifier
}

func newHarness() *harness {
	return &harness{
		events:    &fakeEvents{},
		snapshots: &fakeSnapshots{failFor: map[string]bool{}},
		detector:  &fakeDetector{},
		sink:      &fakeSink{},
		store:     newFakeStore(),
		notifier:  &fakeNotifier{},
	}
}

func (h *harness) deps(cameras ...protectservice.Camera) Dependencies {
	return Dependencies{
		Cameras:   cameras,
		Events:    h.events,
		Snapshots: h.snapshots,
		Detector:  h.detector,
		Sink:      h.sink,
		Store:     h.store,
		Notifiers: []Notifier{h.notifier},
	}
}

func newService(t *testing.T, config MotionConfig, deps Dependencies) *MotionService {
	t.Helper()
	ms, err := NewMotionService(config, deps)
	if err != nil {
		t.Fatalf("NewMotionService: %v", err)
	}
	return ms
}

func TestRepeatSuppression(t *testing.T) {
	tests := []struct {
		name   string
		repeat time.Duration
		ticks  int
		want   []int
	}{
		{"window of three polls", 3 * time.Second, 7, []int{1, 4, 7}},
		{"window equals poll", time.Second, 4, []int{1, 2, 3, 4}},
		{"window between polls rounds up", 1500 * time.Millisecond, 5, []int{1, 3, 5}},
		{"no window", 0, 3, []int{1, 2, 3}},
		{"window shorter than poll", 500 * time.Millisecond, 3, []int{1, 2, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			h.events.events = []protectservice.MotionEvent{event("cam1", "e1")}
			ms := newService(t, MotionConfig{PollInterval: time.Second, RepeatInterval: tt.repeat}, h.deps(porch))

			var fired []int
			for tick := 1; tick <= tt.ticks; tick++ {
				before := len(h.notifier.got)
				ms.RunOnce(context.Background())
				if len(h.notifier.got) > before {
					fired = append(fired, tick)
				}
			}
			if fmt.Sprint(fired) != fmt.Sprint(tt.want) {
				t.Errorf("Expected notifications on ticks %v, got %v", tt.want, fired)
			}
		})
	}
}

func TestNewEventResetsCounter(t *testing.T) {
	h := newHarness()
	h.events.events = []protectservice.MotionEvent{event("cam1", "e1")}
	ms := newService(t, MotionConfig{PollInterval: time.Second, RepeatInterval: 5 * time.Second}, h.deps(porch))

	ms.RunOnce(context.Background())
	ms.RunOnce(context.Background())
	if len(h.notifier.got) != 1 {
		t.Fatalf("Expected 1 notification for e1, got %d", len(h.notifier.got))
	}

	h.events.events = []protectservice.MotionEvent{event("cam1", "e2")}
	ms.RunOnce(context.Background())
	if len(h.notifier.got) != 2 {
		t.Fatalf("Expected new event to notify at once, got %d", len(h.notifier.got))
	}
	state, _ := ms.State("cam1")
	if state.LastMotionEventID != "e2" || state.RepeatCount != 0 {
		t.Errorf("Unexpected state %+v", state)
	}
	if h.notifier.got[1].EventID != "e2" {
		t.Errorf("Expected e2 notification, got %+v", h.notifier.got[1])
	}
}

func TestMotionFlagClearedEveryTick(t *testing.T) {
	h := newHarness()
	h.events.events = []protectservice.MotionEvent{event("cam1", "e1")}
	ms := newService(t, MotionConfig{PollInterval: time.Second}, h.deps(porch, garage))

	ms.RunOnce(context.Background())

	if got := fmt.Sprint(h.sink.history["cam1"]); got != "[false true]" {
		t.Errorf("Expected porch flag cleared then raised, got %s", got)
	}
	if got := fmt.Sprint(h.sink.history["cam2"]); got != "[false]" {
		t.Errorf("Expected garage flag only cleared, got %s", got)
	}
}

func TestDisabledCameraIgnored(t *testing.T) {
	h := newHarness()
	h.events.events = []protectservice.MotionEvent{event("cam1", "e1"), event("cam2", "e9")}
	h.store.disabled["cam1"] = true
	ms := newService(t, MotionConfig{PollInterval: time.Second, RepeatInterval: 3 * time.Second}, h.deps(porch, garage))

	ms.RunOnce(context.Background())

	if h.sink.raised("cam1") != 0 {
		t.Error("Disabled camera should not raise motion")
	}
	if _, ok := ms.State("cam1"); ok {
		t.Error("Disabled camera state should not be touched")
	}
	if len(h.notifier.got) != 1 || h.notifier.got[0].CameraID != "cam2" {
		t.Errorf("Expected only garage notification, got %+v", h.notifier.got)
	}
}

func TestEventFailureDegrades(t *testing.T) {
	h := newHarness()
	h.events.err = protectservice.ErrAPI
	ms := newService(t, MotionConfig{PollInterval: time.Second}, h.deps(porch))

	if !ms.RunOnce(context.Background()) {
		t.Fatal("Expected tick to run")
	}
	if len(h.notifier.got) != 0 {
		t.Errorf("Expected no notifications, got %d", len(h.notifier.got))
	}
	if got := fmt.Sprint(h.sink.history["cam1"]); got != "[false]" {
		t.Errorf("Expected flag cleared even on failure, got %s", got)
	}
}

func TestSimpleModeSnapshotFailureStillNotifies(t *testing.T) {
	h := newHarness()
	h.events.events = []protectservice.MotionEvent{event("cam1", "e1")}
	h.snapshots.failFor["cam1"] = true
	ms := newService(t, MotionConfig{PollInterval: time.Second, SaveSnapshot: true}, h.deps(porch))

	ms.RunOnce(context.Background())

	if len(h.notifier.got) != 1 {
		t.Fatalf("Expected notification, got %d", len(h.notifier.got))
	}
	if h.notifier.got[0].SnapshotPath != "" {
		t.Errorf("Expected no snapshot path, got %q", h.notifier.got[0].SnapshotPath)
	}
	if len(h.store.notifications) != 1 {
		t.Errorf("Expected notification recorded, got %d", len(h.store.notifications))
	}
}

func TestEnhancedClassPriority(t *testing.T) {
	tests := []struct {
		name       string
		detections []detectorservice.Detection
		classes    []string
		wantLabel  string
	}{
		{
			name: "low person falls through to dog",
			detections: []detectorservice.Detection{
				{Label: "dog", Confidence: 0.92},
				{Label: "person", Confidence: 0.40},
			},
			classes:   []string{"person", "dog"},
			wantLabel: "dog",
		},
		{
			name: "first qualifying class wins",
			detections: []detectorservice.Detection{
				{Label: "dog", Confidence: 0.92},
				{Label: "person", Confidence: 0.80},
			},
			classes:   []string{"person", "dog"},
			wantLabel: "person",
		},
		{
			name:       "label match ignores case",
			detections: []detectorservice.Detection{{Label: "Person", Confidence: 0.75}},
			classes:    []string{"person"},
			wantLabel:  "person",
		},
		{
			name:       "threshold is inclusive",
			detections: []detectorservice.Detection{{Label: "person", Confidence: 0.50}},
			classes:    []string{"person"},
			wantLabel:  "person",
		},
		{
			name: "nothing qualifies",
			detections: []detectorservice.Detection{
				{Label: "person", Confidence: 0.49},
				{Label: "car", Confidence: 0.99},
			},
			classes: []string{"person", "dog"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			h.events.events = []protectservice.MotionEvent{event("cam1", "e1")}
			h.detector.detections = tt.detections
			config := MotionConfig{
				PollInterval:    time.Second,
				Enhanced:        true,
				EnhancedClasses: tt.classes,
				EnhancedScore:   50,
			}
			ms := newService(t, config, h.deps(porch))

			ms.RunOnce(context.Background())

			if tt.wantLabel == "" {
				if len(h.notifier.got) != 0 || h.sink.raised("cam1") != 0 {
					t.Errorf("Expected nothing raised, got %+v", h.notifier.got)
				}
				return
			}
			if len(h.notifier.got) != 1 {
				t.Fatalf("Expected 1 notification, got %d", len(h.notifier.got))
			}
			if h.notifier.got[0].Label != tt.wantLabel {
				t.Errorf("Expected label %s, got %s", tt.wantLabel, h.notifier.got[0].Label)
			}
			if h.sink.raised("cam1") != 1 {
				t.Errorf("Expected motion raised once, got %d", h.sink.raised("cam1"))
			}
		})
	}
}

func TestEnhancedSnapshotFailureIsolatedToCamera(t *testing.T) {
	h := newHarness()
	h.events.events = []protectservice.MotionEvent{event("cam1", "e1"), event("cam2", "e2")}
	h.snapshots.failFor["cam1"] = true
	h.detector.detections = []detectorservice.Detection{{Label: "person", Confidence: 0.9}}
	config := MotionConfig{PollInterval: time.Second, Enhanced: true, EnhancedClasses: []string{"person"}, EnhancedScore: 50}
	ms := newService(t, config, h.deps(porch, garage))

	ms.RunOnce(context.Background())

	if len(h.notifier.got) != 1 || h.notifier.got[0].CameraID != "cam2" {
		t.Errorf("Expected only garage to notify, got %+v", h.notifier.got)
	}
}

func TestEnhancedDetectorFailureSkipsCamera(t *testing.T) {
	h := newHarness()
	h.events.events = []protectservice.MotionEvent{event("cam1", "e1")}
	h.detector.err = errors.New("model down")
	config := MotionConfig{PollInterval: time.Second, Enhanced: true, EnhancedClasses: []string{"person"}, EnhancedScore: 50}
	ms := newService(t, config, h.deps(porch))

	ms.RunOnce(context.Background())

	if len(h.notifier.got) != 0 {
		t.Errorf("Expected no notifications, got %d", len(h.notifier.got))
	}
}

func TestEnhancedRequiresDetector(t *testing.T) {
	h := newHarness()
	deps := h.deps(porch)
	deps.Detector = nil
	_, err := NewMotionService(MotionConfig{PollInterval: time.Second, Enhanced: true, EnhancedClasses: []string{"person"}}, deps)
	if err == nil {
		t.Fatal("Expected error without detector")
	}
}

func TestRunOnceIsSingleFlight(t *testing.T) {
	h := newHarness()
	h.events.events = []protectservice.MotionEvent{event("cam1", "e1")}
	h.detector.entered = make(chan struct{})
	h.detector.release = make(chan struct{})
	config := MotionConfig{PollInterval: time.Second, Enhanced: true, EnhancedClasses: []string{"person"}, EnhancedScore: 50}
	ms := newService(t, config, h.deps(porch))

	done := make(chan bool)
	go func() { done <- ms.RunOnce(context.Background()) }()
	<-h.detector.entered

	if ms.RunOnce(context.Background()) {
		t.Error("Expected overlapping tick to be skipped")
	}
	close(h.detector.release)
	if !<-done {
		t.Error("Expected first tick to run")
	}
	if !ms.RunOnce(context.Background()) {
		t.Error("Expected next tick to run after the first finished")
	}
}

func TestUploadIsDetachedAndCleansUp(t *testing.T) {
	h := newHarness()
	h.events.events = []protectservice.MotionEvent{event("cam1", "e1")}
	uploader := &fakeUploader{release: make(chan struct{})}
	deps := h.deps(porch)
	deps.Uploader = uploader
	ms := newService(t, MotionConfig{PollInterval: time.Second}, deps)

	// returns while the upload is still blocked
	ms.RunOnce(context.Background())
	if len(h.snapshots.removedPaths()) != 0 {
		t.Fatal("Temp file removed before upload finished")
	}

	close(uploader.release)
	ms.Wait()

	removed := h.snapshots.removedPaths()
	if len(removed) != 1 || removed[0] != "/tmp/snap-1.jpg" {
		t.Errorf("Expected staged file removed, got %v", removed)
	}
	if len(uploader.paths) != 1 || uploader.paths[0] != "/tmp/snap-1.jpg" {
		t.Errorf("Unexpected uploads %v", uploader.paths)
	}
	if h.notifier.got[0].SnapshotPath != "" {
		t.Errorf("Temporary upload file should not be reported, got %q", h.notifier.got[0].SnapshotPath)
	}
}

func TestUploadKeepsSavedSnapshot(t *testing.T) {
	h := newHarness()
	h.events.events = []protectservice.MotionEvent{event("cam1", "e1")}
	uploader := &fakeUploader{}
	deps := h.deps(porch)
	deps.Uploader = uploader
	ms := newService(t, MotionConfig{PollInterval: time.Second, SaveSnapshot: true}, deps)

	ms.RunOnce(context.Background())
	ms.Wait()

	if len(h.snapshots.removedPaths()) != 0 {
		t.Errorf("Saved snapshot should be kept, removed %v", h.snapshots.removedPaths())
	}
	if h.notifier.got[0].SnapshotPath != "/tmp/snap-1.jpg" {
		t.Errorf("Expected saved path, got %q", h.notifier.got[0].SnapshotPath)
	}
}

func TestStateRestoredFromStore(t *testing.T) {
	h := newHarness()
	h.events.events = []protectservice.MotionEvent{event("cam1", "e1")}
	h.store.states["cam1"] = MotionState{LastMotionEventID: "e1", RepeatCount: 1}
	ms := newService(t, MotionConfig{PollInterval: time.Second, RepeatInterval: 3 * time.Second}, h.deps(porch))

	ms.RunOnce(context.Background())
	if len(h.notifier.got) != 0 {
		t.Fatalf("Expected restored event to stay suppressed, got %d", len(h.notifier.got))
	}
	if h.store.states["cam1"].RepeatCount != 2 {
		t.Errorf("Expected persisted count 2, got %+v", h.store.states["cam1"])
	}

	ms.RunOnce(context.Background())
	if len(h.notifier.got) != 1 {
		t.Errorf("Expected re-arm on third observation, got %d", len(h.notifier.got))
	}
}

func TestStartStopsOnCancel(t *testing.T) {
	h := newHarness()
	ms := newService(t, MotionConfig{PollInterval: 10 * time.Millisecond}, h.deps(porch))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- ms.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
