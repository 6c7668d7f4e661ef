package detectorservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HTTPDetector sends snapshots to an object detection service and returns
// what it found. The model lives behind the endpoint.
type HTTPDetector struct {
	http   *resty.Client
	config DetectorConfig
}

func NewHTTPDetector(config DetectorConfig) *HTTPDetector {
	timeout := time.Duration(config.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		// inference can be slow on CPU
		timeout = 15 * time.Second
	}
	return &HTTPDetector{
		http:   resty.New().SetBaseURL(strings.TrimRight(config.Endpoint, "/")).SetTimeout(timeout),
		config: config,
	}
}

// Detect posts a JPEG and decodes the detections.
func (hd *HTTPDetector) Detect(ctx context.Context, jpeg []byte) ([]Detection, error) {
	start := time.Now()
	resp, err := hd.http.R().
		SetContext(ctx).
		SetFileReader("image", "snapshot.jpg", bytes.NewReader(jpeg)).
		Post("/detect")
	if err != nil {
		return nil, fmt.Errorf("detect request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("detect returned status %d: %s", resp.StatusCode(), resp.String())
	}

	var result detectResponse
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, fmt.Errorf("failed to decode detections: %w", err)
	}

	detections := make([]Detection, 0, len(result.Detections))
	for _, wd := range result.Detections {
		detections = append(detections, wd.toDetection())
	}

	if hd.config.Debug {
		log.Debug().Msgf("Detection took %v (service reported %.0fms)", time.Since(start), result.InferenceTimeMs)
		for _, d := range detections {
			log.Debug().Msgf("==> Detected: %s [%d%%]", d.Label, d.Score())
		}
	}
	return detections, nil
}

func (wd wireDetection) toDetection() Detection {
	d := Detection{Label: wd.Class, Confidence: wd.Score}
	if len(wd.BBox) == 4 {
		d.Box = Box{
			X:      int(wd.BBox[0]),
			Y:      int(wd.BBox[1]),
			Width:  int(wd.BBox[2]),
			Height: int(wd.BBox[3]),
		}
	}
	return d
}

// WaitReady blocks until the detector's gRPC health endpoint reports SERVING
// or ctx ends. It returns nil at once when no health endpoint is configured.
func (hd *HTTPDetector) WaitReady(ctx context.Context, interval time.Duration) error {
	if hd.config.HealthEndpoint == "" {
		return nil
	}

	conn, err := grpc.NewClient(hd.config.HealthEndpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("failed to create health client: %w", err)
	}
	defer conn.Close()

	client := healthpb.NewHealthClient(conn)
	for {
		checkCtx, cancel := context.WithTimeout(ctx, time.Second)
		resp, err := client.Check(checkCtx, &healthpb.HealthCheckRequest{Service: hd.config.HealthService})
		cancel()
		if err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_SERVING {
			log.Info().Msgf("Detector at %s is serving", hd.config.HealthEndpoint)
			return nil
		}
		if err != nil {
			log.Warn().Msgf("Detector health check failed: %v", err)
		} else {
			log.Warn().Msgf("Detector not ready: %v", resp.GetStatus())
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}
