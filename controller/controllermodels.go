package controller

import (
	"github.com/bigjimnolan/protectmotion/accessoryservice"
	"github.com/bigjimnolan/protectmotion/detectorservice"
	"github.com/bigjimnolan/protectmotion/hubitatservice"
	"github.com/bigjimnolan/protectmotion/mqttservice"
	"github.com/bigjimnolan/protectmotion/protectservice"
	"github.com/bigjimnolan/protectmotion/snapshotservice"
	"github.com/bigjimnolan/protectmotion/storageservice"
	"github.com/bigjimnolan/protectmotion/uiservice"
	"github.com/bigjimnolan/protectmotion/uploadservice"
)

// ProtectMotionConfig is the configuration structure for the application.
// Each service reads its own section.
type ProtectMotionConfig struct {
	LogLevel  string                              `mapstructure:"log_level"`
	Unifi     protectservice.ProtectConfig        `mapstructure:"unifi"`
	Detector  detectorservice.DetectorConfig      `mapstructure:"detector"`
	Snapshots snapshotservice.SnapshotConfig      `mapstructure:"snapshots"`
	Upload    uploadservice.UploaderConfig        `mapstructure:"upload"`
	MQTT      mqttservice.MQTTConfig              `mapstructure:"mqtt"`
	Accessory accessoryservice.AccessoryConfig    `mapstructure:"accessory"`
	Storage   storageservice.StorageConfig        `mapstructure:"storage"`
	Hubitat   hubitatservice.HubitatServiceConfig `mapstructure:"hubitat"`
	UI        uiservice.UIConfig                  `mapstructure:"ui"`
}
