package snapshotservice

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bigjimnolan/protectmotion/detectorservice"
	"github.com/bigjimnolan/protectmotion/protectservice"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type SnapshotConfig struct {
	Directory      string `mapstructure:"directory"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	Quality        int    `mapstructure:"quality"`
}

// SnapshotService grabs live frames from cameras and keeps annotated copies
// on disk.
type SnapshotService struct {
	http    *resty.Client
	dir     string
	quality int
	now     func() time.Time
}

func NewSnapshotService(config SnapshotConfig) (*SnapshotService, error) {
	dir := config.Directory
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "protectmotion")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory %s: %w", dir, err)
	}

	timeout := time.Duration(config.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	quality := config.Quality
	if quality <= 0 || quality > 100 {
		quality = 85
	}

	return &SnapshotService{
		http:    resty.New().SetTimeout(timeout),
		dir:     dir,
		quality: quality,
		now:     time.Now,
	}, nil
}

func SnapshotURL(camera protectservice.Camera) string {
	return "http://" + camera.IPAddress + "/snap.jpeg"
}

// Fetch returns the camera's current frame as JPEG bytes.
func (ss *SnapshotService) Fetch(ctx context.Context, camera protectservice.Camera) ([]byte, error) {
	resp, err := ss.http.R().SetContext(ctx).Get(SnapshotURL(camera))
	if err != nil {
		return nil, fmt.Errorf("snapshot from %s failed: %w", camera.Name, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("snapshot from %s returned status %d", camera.Name, resp.StatusCode())
	}
	if len(resp.Body()) == 0 {
		return nil, fmt.Errorf("snapshot from %s was empty", camera.Name)
	}
	return resp.Body(), nil
}

// SaveAnnotated writes the snapshot with detections drawn on it and returns
// the file path. Without detections the frame is stored as received.
func (ss *SnapshotService) SaveAnnotated(jpegData []byte, detections []detectorservice.Detection) (string, error) {
	data := jpegData
	if len(detections) > 0 {
		annotated, err := Annotate(jpegData, detections, ss.quality)
		if err != nil {
			return "", err
		}
		data = annotated
	}

	name := fmt.Sprintf("snapshot-%s-%s.jpg", ss.now().UTC().Format("20060102T150405.000Z"), uuid.NewString())
	path := filepath.Join(ss.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}
	log.Debug().Msgf("The snapshot has been saved to %s", path)
	return path, nil
}

func (ss *SnapshotService) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
