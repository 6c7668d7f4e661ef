package storageservice

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bigjimnolan/protectmotion/motionservice"
	"github.com/rs/zerolog/log"

	_ "modernc.org/sqlite"
)

type StorageConfig struct {
	Path string `mapstructure:"path"`
}

// StorageService keeps accessory scoped state in SQLite: the per camera
// monitoring switch, the repeat counters and the notification history.
type StorageService struct {
	db *sql.DB
}

// New opens (or creates) the database at path and runs the migrations.
func New(path string) (*StorageService, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer, and it keeps :memory: databases on a single connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	ss := &StorageService{db: db}
	if err := ss.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return ss, nil
}

func (ss *StorageService) Close() error {
	return ss.db.Close()
}

func (ss *StorageService) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS camera_state (
			camera_id TEXT PRIMARY KEY,
			motion_enabled INTEGER NOT NULL DEFAULT 1,
			last_motion_event_id TEXT,
			repeat_count INTEGER NOT NULL DEFAULT 0,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id TEXT PRIMARY KEY,
			camera_id TEXT NOT NULL,
			camera_name TEXT NOT NULL,
			event_id TEXT NOT NULL,
			label TEXT NOT NULL,
			score INTEGER NOT NULL,
			snapshot_path TEXT,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_time ON notifications(created_at DESC)`,
	}

	for _, migration := range migrations {
		if _, err := ss.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	log.Debug().Msg("Database migrations completed")
	return nil
}

// MotionEnabled reports the monitoring switch. Cameras never seen before are
// enabled.
func (ss *StorageService) MotionEnabled(cameraID string) (bool, error) {
	var enabled bool
	err := ss.db.QueryRow(`SELECT motion_enabled FROM camera_state WHERE camera_id = ?`, cameraID).Scan(&enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read motion switch: %w", err)
	}
	return enabled, nil
}

func (ss *StorageService) SetMotionEnabled(cameraID string, enabled bool) error {
	query := `INSERT INTO camera_state (camera_id, motion_enabled, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(camera_id) DO UPDATE SET
			motion_enabled = excluded.motion_enabled,
			updated_at = excluded.updated_at`

	if _, err := ss.db.Exec(query, cameraID, enabled, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to save motion switch: %w", err)
	}
	return nil
}

func (ss *StorageService) LoadMotionState(cameraID string) (motionservice.MotionState, bool, error) {
	var (
		state   motionservice.MotionState
		eventID sql.NullString
	)
	err := ss.db.QueryRow(`SELECT last_motion_event_id, repeat_count FROM camera_state WHERE camera_id = ?`, cameraID).
		Scan(&eventID, &state.RepeatCount)
	if errors.Is(err, sql.ErrNoRows) {
		return motionservice.MotionState{}, false, nil
	}
	if err != nil {
		return motionservice.MotionState{}, false, fmt.Errorf("failed to load motion state: %w", err)
	}
	if !eventID.Valid {
		return motionservice.MotionState{}, false, nil
	}
	state.LastMotionEventID = eventID.String
	return state, true, nil
}

func (ss *StorageService) SaveMotionState(cameraID string, state motionservice.MotionState) error {
	query := `INSERT INTO camera_state (camera_id, last_motion_event_id, repeat_count, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(camera_id) DO UPDATE SET
			last_motion_event_id = excluded.last_motion_event_id,
			repeat_count = excluded.repeat_count,
			updated_at = excluded.updated_at`

	if _, err := ss.db.Exec(query, cameraID, state.LastMotionEventID, state.RepeatCount, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to save motion state: %w", err)
	}
	return nil
}

func (ss *StorageService) RecordNotification(n motionservice.Notification) error {
	query := `INSERT INTO notifications (id, camera_id, camera_name, event_id, label, score, snapshot_path, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := ss.db.Exec(query, n.ID, n.CameraID, n.CameraName, n.EventID, n.Label, n.Score, n.SnapshotPath, n.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to record notification: %w", err)
	}
	return nil
}

// ListNotifications returns the newest notifications first.
func (ss *StorageService) ListNotifications(limit int) ([]motionservice.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := ss.db.Query(`SELECT id, camera_id, camera_name, event_id, label, score, snapshot_path, created_at
		FROM notifications ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []motionservice.Notification
	for rows.Next() {
		var (
			n    motionservice.Notification
			path sql.NullString
		)
		if err := rows.Scan(&n.ID, &n.CameraID, &n.CameraName, &n.EventID, &n.Label, &n.Score, &path, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.SnapshotPath = path.String
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}
