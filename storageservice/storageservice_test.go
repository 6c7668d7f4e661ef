package storageservice

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/bigjimnolan/protectmotion/motionservice"
)

func newTestStorage(t *testing.T) *StorageService {
	t.Helper()
	ss, err := New(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { ss.Close() })
	return ss
}

func TestMotionEnabled(t *testing.T) {
	ss := newTestStorage(t)

	enabled, err := ss.MotionEnabled("cam1")
	if err != nil {
		t.Fatalf("MotionEnabled: %v", err)
	}
	if !enabled {
		t.Error("Unknown camera should default to enabled")
	}

	if err := ss.SetMotionEnabled("cam1", false); err != nil {
		t.Fatalf("SetMotionEnabled: %v", err)
	}
	if enabled, _ := ss.MotionEnabled("cam1"); enabled {
		t.Error("Expected cam1 disabled")
	}

	if err := ss.SetMotionEnabled("cam1", true); err != nil {
		t.Fatalf("SetMotionEnabled: %v", err)
	}
	if enabled, _ := ss.MotionEnabled("cam1"); !enabled {
		t.Error("Expected cam1 enabled again")
	}
}

func TestMotionStateRoundTrip(t *testing.T) {
	ss := newTestStorage(t)

	if _, found, err := ss.LoadMotionState("cam1"); err != nil || found {
		t.Fatalf("Expected no state, got found=%v err=%v", found, err)
	}

	want := motionservice.MotionState{LastMotionEventID: "e1", RepeatCount: 2}
	if err := ss.SaveMotionState("cam1", want); err != nil {
		t.Fatalf("SaveMotionState: %v", err)
	}
	got, found, err := ss.LoadMotionState("cam1")
	if err != nil || !found {
		t.Fatalf("LoadMotionState: found=%v err=%v", found, err)
	}
	if got != want {
		t.Errorf("Expected %+v, got %+v", want, got)
	}
}

func TestSwitchAndStateShareRow(t *testing.T) {
	ss := newTestStorage(t)

	if err := ss.SetMotionEnabled("cam1", false); err != nil {
		t.Fatalf("SetMotionEnabled: %v", err)
	}
	// a switch-only row has no state yet
	if _, found, _ := ss.LoadMotionState("cam1"); found {
		t.Error("Expected no motion state for switch-only row")
	}

	if err := ss.SaveMotionState("cam1", motionservice.MotionState{LastMotionEventID: "e1"}); err != nil {
		t.Fatalf("SaveMotionState: %v", err)
	}
	if enabled, _ := ss.MotionEnabled("cam1"); enabled {
		t.Error("Saving state must not flip the switch")
	}
}

func TestNotifications(t *testing.T) {
	ss := newTestStorage(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for i, label := range []string{"person", "dog", "motion"} {
		n := motionservice.Notification{
			ID:         label + "-id",
			CameraID:   "cam1",
			CameraName: "Porch",
			EventID:    "e1",
			Label:      label,
			Score:      60 + i,
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}
		if i == 1 {
			n.SnapshotPath = "/snaps/dog.jpg"
		}
		if err := ss.RecordNotification(n); err != nil {
			t.Fatalf("RecordNotification: %v", err)
		}
	}

	got, err := ss.ListNotifications(2)
	if err != nil {
		t.Fatalf("ListNotifications: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 notifications, got %d", len(got))
	}
	if got[0].Label != "motion" || got[1].Label != "dog" {
		t.Errorf("Expected newest first, got %s, %s", got[0].Label, got[1].Label)
	}
	if got[1].SnapshotPath != "/snaps/dog.jpg" || got[1].Score != 61 {
		t.Errorf("Unexpected row %+v", got[1])
	}
	if !got[0].CreatedAt.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("Unexpected created_at %v", got[0].CreatedAt)
	}
}

func TestStateSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	ss, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := ss.SaveMotionState("cam1", motionservice.MotionState{LastMotionEventID: "e7", RepeatCount: 1}); err != nil {
		t.Fatalf("SaveMotionState: %v", err)
	}
	ss.Close()

	reopened, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer reopened.Close()
	state, found, err := reopened.LoadMotionState("cam1")
	if err != nil || !found || state.LastMotionEventID != "e7" {
		t.Errorf("Expected persisted state, got %+v found=%v err=%v", state, found, err)
	}
}
