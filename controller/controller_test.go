package controller

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bigjimnolan/protectmotion/protectservice"
	"github.com/rs/zerolog"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
unifi:
  controller: https://192.168.1.1
`)
	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	u := config.Unifi
	if u.MotionInterval != 5000 || u.MotionRepeatInterval != 0 || u.EnhancedMotionScore != 50 {
		t.Errorf("Unexpected motion defaults %+v", u)
	}
	if u.InitialBackoffDelay != 1000 || u.MaxRetries != 3 || u.RequestTimeout != 1000 {
		t.Errorf("Unexpected retry defaults %+v", u)
	}
	if len(u.EnhancedClasses) != 1 || u.EnhancedClasses[0] != "person" {
		t.Errorf("Unexpected classes %v", u.EnhancedClasses)
	}
	if config.LogLevel != "warn" || config.Accessory.TopicPrefix != "protectmotion" {
		t.Errorf("Unexpected ambient defaults %+v", config)
	}
}

func TestLoadConfigJSONAndSecrets(t *testing.T) {
	t.Setenv("PROTECTMOTION_UNIFI_USERNAME", "admin")
	t.Setenv("PROTECTMOTION_UNIFI_PASSWORD", "hunter2")
	t.Setenv("PROTECTMOTION_UPLOAD_TOKEN", "tok")
	t.Setenv("HUBITAT_ACCESS_TOKEN_12", "abc")

	path := writeConfig(t, "config.json", `{
  "log_level": "debug",
  "unifi": {
    "controller": "https://nvr.local",
    "motion_interval": 2000,
    "motion_repeat_interval": 10000,
    "enhanced_motion": true,
    "enhanced_classes": ["dog", "person"]
  },
  "upload": {"enabled": true, "endpoint": "https://photos.local/upload"},
  "hubitat": {
    "devices": {
      "3": {"device_id": 3, "api_id": 12, "device_url": "https://hub/apps/api/12/devices/3/<action>?access_token=<access_token>"}
    }
  }
}`)
	t.Setenv(ConfigFileEnv, path)

	config, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if config.Unifi.Username != "admin" || config.Unifi.Password != "hunter2" {
		t.Errorf("Expected credentials from env, got %q/%q", config.Unifi.Username, config.Unifi.Password)
	}
	if config.Upload.Token != "tok" {
		t.Errorf("Expected upload token from env, got %q", config.Upload.Token)
	}
	if config.Unifi.PollInterval() != 2*time.Second || config.Unifi.RepeatInterval() != 10*time.Second {
		t.Errorf("Unexpected intervals %v %v", config.Unifi.PollInterval(), config.Unifi.RepeatInterval())
	}
	if len(config.Unifi.EnhancedClasses) != 2 || config.Unifi.EnhancedClasses[0] != "dog" {
		t.Errorf("Unexpected classes %v", config.Unifi.EnhancedClasses)
	}
	device, ok := config.Hubitat.HubitatDevices[3]
	if !ok || !strings.HasSuffix(device.DeviceURL, "access_token=abc") {
		t.Errorf("Expected hubitat token applied, got %+v", config.Hubitat.HubitatDevices)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	t.Setenv(ConfigFileEnv, "")

	tests := []struct {
		name string
		path string
	}{
		{"no path", ""},
		{"missing file", filepath.Join(t.TempDir(), "nope.yaml")},
		{"no controller", writeConfig(t, "config.yaml", "log_level: info\n")},
		{"negative retries", writeConfig(t, "retries.yaml", "unifi:\n  controller: https://nvr.local\n  max_retries: -1\n")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadConfig(tt.path); !errors.Is(err, protectservice.ErrConfig) {
				t.Errorf("Expected ErrConfig, got %v", err)
			}
		})
	}
}

func TestLatencyWarning(t *testing.T) {
	tests := []struct {
		name   string
		config protectservice.ProtectConfig
		want   bool
	}{
		// 1000*(2^3-1) + 1000*4 = 11s
		{"defaults at 5s poll", protectservice.ProtectConfig{MotionInterval: 5000, InitialBackoffDelay: 1000, MaxRetries: 3, RequestTimeout: 1000}, true},
		{"long poll", protectservice.ProtectConfig{MotionInterval: 15000, InitialBackoffDelay: 1000, MaxRetries: 3, RequestTimeout: 1000}, false},
		{"no retries", protectservice.ProtectConfig{MotionInterval: 5000, InitialBackoffDelay: 1000, MaxRetries: 0, RequestTimeout: 1000}, false},
		{"exactly equal", protectservice.ProtectConfig{MotionInterval: 2000, InitialBackoffDelay: 1000, MaxRetries: 0, RequestTimeout: 2000}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, warn := latencyWarning(tt.config)
			if warn != tt.want {
				t.Errorf("Expected warn=%v, got %v (%s)", tt.want, warn, msg)
			}
		})
	}
}

func TestSetLogLevel(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.GlobalLevel())

	tests := map[string]zerolog.Level{
		"info":    zerolog.InfoLevel,
		"debug":   zerolog.DebugLevel,
		"trace":   zerolog.TraceLevel,
		"":        zerolog.WarnLevel,
		"verbose": zerolog.WarnLevel,
	}
	for level, want := range tests {
		SetLogLevel(level)
		if zerolog.GlobalLevel() != want {
			t.Errorf("SetLogLevel(%q) = %v, want %v", level, zerolog.GlobalLevel(), want)
		}
	}
}

func TestConnectRequiresCredentials(t *testing.T) {
	config := &ProtectMotionConfig{Unifi: protectservice.ProtectConfig{Controller: "https://127.0.0.1:1"}}
	if _, _, err := Connect(context.Background(), config); !errors.Is(err, protectservice.ErrConfig) {
		t.Errorf("Expected ErrConfig, got %v", err)
	}
}
