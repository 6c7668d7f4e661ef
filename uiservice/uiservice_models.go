package uiservice

import (
	"github.com/bigjimnolan/protectmotion/motionservice"
	"github.com/bigjimnolan/protectmotion/protectservice"
)

// UIConfig is the "ui" section. PasswordHash is a bcrypt hash and comes from
// PROTECTMOTION_UI_PASSWORD_HASH.
type UIConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ListenAddress  string `mapstructure:"listen_address"`
	ServerCertPath string `mapstructure:"server_cert_path"`
	ServerKeyPath  string `mapstructure:"server_key_path"`
	PasswordHash   string `mapstructure:"password_hash"`
}

type CameraSwitch interface {
	SetMotionEnabled(cameraID string, enabled bool) error
}

type Store interface {
	MotionEnabled(cameraID string) (bool, error)
	ListNotifications(limit int) ([]motionservice.Notification, error)
}

type cameraView struct {
	protectservice.Camera
	MotionEnabled bool `json:"motionEnabled"`
}

type switchRequest struct {
	Enabled *bool `json:"enabled"`
}
