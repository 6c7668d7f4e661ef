package hubitatservice

import "time"

type HubitatServiceConfig struct {
	HubitatDevices       map[int]HubitatDeviceInfo `mapstructure:"devices"`
	TimeoutSeconds       int                       `mapstructure:"timeout_seconds"`
	DeviceBackoffEnabled bool                      `mapstructure:"device_backoff_enabled"`
	ActionsListLocation  string                    `mapstructure:"actions_list_location"`
}

// HubitatDeviceInfo is one Maker API endpoint. DeviceURL may hold the
// <action>, <action2> and <access_token> placeholders.
type HubitatDeviceInfo struct {
	DeviceID      int    `mapstructure:"device_id" json:"deviceId"`
	APIID         int    `mapstructure:"api_id" json:"apiId"`
	DeviceURL     string `mapstructure:"device_url" json:"deviceUrl"`
	PostBody      string `mapstructure:"post_body" json:"postBody,omitempty"`
	DeviceBackoff int    `mapstructure:"device_backoff" json:"deviceBackoff"`
}

type ActionType struct {
	DeviceId        int
	PrimaryAction   string
	SecondaryAction string
	StartDelay      time.Duration
	BackoffDelay    time.Duration
	CurrentDelay    time.Time
}

// ActionInput is one entry of the actions file. CameraSource is a camera
// name, "<camera name>:<label>" or "default".
type ActionInput struct {
	DeviceID        int    `json:"deviceId"`
	Delay           int    `json:"delay"`
	PrimaryAction   string `json:"primaryAction"`
	SecondaryAction string `json:"secondaryAction"`
	CameraSource    string `json:"cameraSource"`
	Backoff         int    `json:"backoff"`
}
