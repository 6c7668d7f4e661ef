package uploadservice

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// UploaderConfig is the "upload" section of the configuration file. Token
// normally comes from PROTECTMOTION_UPLOAD_TOKEN.
type UploaderConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Endpoint       string `mapstructure:"endpoint"`
	Album          string `mapstructure:"album"`
	Token          string `mapstructure:"token"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// PhotoUploader pushes snapshots to a photo backup endpoint.
type PhotoUploader struct {
	http   *resty.Client
	config UploaderConfig
}

type uploadResponse struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

func NewPhotoUploader(config UploaderConfig) *PhotoUploader {
	timeout := time.Duration(config.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client := resty.New().SetTimeout(timeout)
	if config.Token != "" {
		client.SetAuthToken(config.Token)
	}
	return &PhotoUploader{http: client, config: config}
}

// Upload sends the file at path and returns the URL the service assigned.
func (pu *PhotoUploader) Upload(ctx context.Context, path, name, description string) (string, error) {
	resp, err := pu.http.R().
		SetContext(ctx).
		SetFile("photo", path).
		SetFormData(map[string]string{
			"name":        name,
			"description": description,
			"album":       pu.config.Album,
		}).
		Post(pu.config.Endpoint)
	if err != nil {
		return "", fmt.Errorf("upload of %s failed: %w", name, err)
	}

	var result uploadResponse
	if err := json.Unmarshal(resp.Body(), &result); err != nil && resp.IsSuccess() {
		return "", fmt.Errorf("failed to decode upload response: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("upload of %s returned status %d: %s", name, resp.StatusCode(), result.Error)
	}
	if result.URL == "" {
		return "", fmt.Errorf("upload of %s returned no url", name)
	}

	log.Debug().Msgf("Uploaded %s to %s", name, result.URL)
	return result.URL, nil
}
