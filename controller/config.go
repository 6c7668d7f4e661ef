package controller

import (
	"fmt"
	"os"

	"github.com/bigjimnolan/protectmotion/hubitatservice"
	"github.com/bigjimnolan/protectmotion/protectservice"
	"github.com/spf13/viper"
)

const ConfigFileEnv = "PROTECTMOTION_CONFIG_FILE"

// secrets never need to live in the config file
var secretEnv = map[string]string{
	"unifi.username":   "PROTECTMOTION_UNIFI_USERNAME",
	"unifi.password":   "PROTECTMOTION_UNIFI_PASSWORD",
	"upload.token":     "PROTECTMOTION_UPLOAD_TOKEN",
	"ui.password_hash": "PROTECTMOTION_UI_PASSWORD_HASH",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "warn")
	v.SetDefault("unifi.motion_interval", 5000)
	v.SetDefault("unifi.motion_repeat_interval", 0)
	v.SetDefault("unifi.enhanced_motion", false)
	v.SetDefault("unifi.enhanced_motion_score", 50)
	v.SetDefault("unifi.enhanced_classes", []string{"person"})
	v.SetDefault("unifi.initial_backoff_delay", 1000)
	v.SetDefault("unifi.max_retries", 3)
	v.SetDefault("unifi.request_timeout", 1000)
	v.SetDefault("mqtt.id", "protectmotion")
	v.SetDefault("accessory.topic_prefix", "protectmotion")
	v.SetDefault("storage.path", "protectmotion.db")
	v.SetDefault("hubitat.timeout_seconds", 5)
	v.SetDefault("ui.listen_address", ":8443")
}

// LoadConfig reads the configuration file at path, or at
// $PROTECTMOTION_CONFIG_FILE when path is empty. JSON and YAML both work.
func LoadConfig(path string) (*ProtectMotionConfig, error) {
	if path == "" {
		path = os.Getenv(ConfigFileEnv)
	}
	if path == "" {
		return nil, fmt.Errorf("%w: no config file, pass --config or set %s", protectservice.ErrConfig, ConfigFileEnv)
	}

	v := viper.New()
	setDefaults(v)
	for key, env := range secretEnv {
		if err := v.BindEnv(key, env); err != nil {
			return nil, err
		}
	}

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", protectservice.ErrConfig, path, err)
	}

	var config ProtectMotionConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %w", protectservice.ErrConfig, path, err)
	}
	if config.Unifi.Controller == "" {
		return nil, fmt.Errorf("%w: unifi.controller is required", protectservice.ErrConfig)
	}
	if config.Unifi.MaxRetries < 0 {
		return nil, fmt.Errorf("%w: unifi.max_retries must not be negative, got %d", protectservice.ErrConfig, config.Unifi.MaxRetries)
	}

	hubitatservice.ApplySecrets(config.Hubitat.HubitatDevices)
	return &config, nil
}
