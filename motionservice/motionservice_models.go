package motionservice

import (
	"context"
	"time"

	"github.com/bigjimnolan/protectmotion/detectorservice"
	"github.com/bigjimnolan/protectmotion/protectservice"
)

type MotionConfig struct {
	PollInterval    time.Duration
	RepeatInterval  time.Duration
	Enhanced        bool
	EnhancedClasses []string
	EnhancedScore   int
	SaveSnapshot    bool
}

func ConfigFromProtect(c protectservice.ProtectConfig) MotionConfig {
	return MotionConfig{
		PollInterval:    c.PollInterval(),
		RepeatInterval:  c.RepeatInterval(),
		Enhanced:        c.EnhancedMotion,
		EnhancedClasses: c.EnhancedClasses,
		EnhancedScore:   c.EnhancedMotionScore,
		SaveSnapshot:    c.SaveSnapshot,
	}
}

// MotionState is what survives between ticks for one camera.
type MotionState struct {
	LastMotionEventID string
	RepeatCount       int
}

// Notification is emitted once per qualifying motion.
type Notification struct {
	ID           string    `json:"id"`
	CameraID     string    `json:"cameraId"`
	CameraName   string    `json:"cameraName"`
	EventID      string    `json:"eventId"`
	Label        string    `json:"label"`
	Score        int       `json:"score"`
	SnapshotPath string    `json:"snapshotPath,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

type EventSource interface {
	LatestMotionEventPerCamera(ctx context.Context, cameras []protectservice.Camera) ([]protectservice.MotionEvent, error)
}

type SnapshotSource interface {
	Fetch(ctx context.Context, camera protectservice.Camera) ([]byte, error)
	SaveAnnotated(jpeg []byte, detections []detectorservice.Detection) (string, error)
	Remove(path string) error
}

type Detector interface {
	Detect(ctx context.Context, jpeg []byte) ([]detectorservice.Detection, error)
}

// Sink exposes the per-camera motion flag to the home automation side.
type Sink interface {
	SetMotionDetected(camera protectservice.Camera, detected bool) error
}

// StateStore is accessory scoped storage: the monitoring switch and the
// repeat counters for each camera.
type StateStore interface {
	MotionEnabled(cameraID string) (bool, error)
	LoadMotionState(cameraID string) (MotionState, bool, error)
	SaveMotionState(cameraID string, state MotionState) error
	RecordNotification(n Notification) error
}

type Uploader interface {
	Upload(ctx context.Context, path, name, description string) (string, error)
}

// Notifier receives every notification after it is recorded. Implementations
// must not block.
type Notifier interface {
	Notify(n Notification)
}

// Dependencies groups the collaborators of a MotionService. Detector is only
// needed in enhanced mode; Uploader and Notifiers are optional.
type Dependencies struct {
	Cameras   []protectservice.Camera
	Events    EventSource
	Snapshots SnapshotSource
	Detector  Detector
	Sink      Sink
	Store     StateStore
	Uploader  Uploader
	Notifiers []Notifier
}
