package accessoryservice

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/bigjimnolan/protectmotion/protectservice"
	"github.com/rs/zerolog/log"
)

// Publisher is the broker side: the embedded mochi server or a remote client.
type Publisher interface {
	Publish(topic string, payload []byte, retain bool) error
	Subscribe(filter string, handler func(topic string, payload []byte)) error
}

// SwitchStore persists the monitoring switch.
type SwitchStore interface {
	SetMotionEnabled(cameraID string, enabled bool) error
}

type AccessoryConfig struct {
	TopicPrefix string `mapstructure:"topic_prefix"`
}

// AccessoryService exposes each camera as a motion sensor with a monitoring
// switch over MQTT.
type AccessoryService struct {
	publisher Publisher
	store     SwitchStore
	prefix    string

	mu      sync.Mutex
	cameras map[string]protectservice.Camera
	motion  map[string]bool
}

func NewAccessoryService(config AccessoryConfig, publisher Publisher, store SwitchStore) *AccessoryService {
	prefix := strings.Trim(config.TopicPrefix, "/")
	if prefix == "" {
		prefix = "protectmotion"
	}
	return &AccessoryService{
		publisher: publisher,
		store:     store,
		prefix:    prefix,
		cameras:   make(map[string]protectservice.Camera),
		motion:    make(map[string]bool),
	}
}

func (as *AccessoryService) topic(cameraID, leaf string) string {
	return as.prefix + "/" + cameraID + "/" + leaf
}

// Register announces every camera, resets its motion sensor and starts
// listening for monitoring switch changes.
func (as *AccessoryService) Register(cameras []protectservice.Camera) error {
	for _, camera := range cameras {
		as.mu.Lock()
		as.cameras[camera.ID] = camera
		as.mu.Unlock()

		payload, err := json.Marshal(camera)
		if err != nil {
			return fmt.Errorf("encode camera %s: %w", camera.ID, err)
		}
		if err := as.publisher.Publish(as.topic(camera.ID, "config"), payload, true); err != nil {
			return err
		}
		if err := as.publish(camera, false); err != nil {
			return err
		}
		log.Info().Msgf("Registered accessory for camera %s (%s)", camera.Name, camera.ID)
	}

	return as.publisher.Subscribe(as.prefix+"/+/motion_enabled/set", as.handleSwitch)
}

// SetMotionDetected publishes the motion sensor state when it changes.
func (as *AccessoryService) SetMotionDetected(camera protectservice.Camera, detected bool) error {
	as.mu.Lock()
	current, known := as.motion[camera.ID]
	as.mu.Unlock()
	if known && current == detected {
		return nil
	}
	return as.publish(camera, detected)
}

func (as *AccessoryService) publish(camera protectservice.Camera, detected bool) error {
	if err := as.publisher.Publish(as.topic(camera.ID, "motion"), []byte(strconv.FormatBool(detected)), true); err != nil {
		return err
	}
	as.mu.Lock()
	as.motion[camera.ID] = detected
	as.mu.Unlock()
	return nil
}

// SetMotionEnabled stores the monitoring switch and reports the new value.
func (as *AccessoryService) SetMotionEnabled(cameraID string, enabled bool) error {
	as.mu.Lock()
	camera, ok := as.cameras[cameraID]
	as.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown camera %s", cameraID)
	}

	if err := as.store.SetMotionEnabled(cameraID, enabled); err != nil {
		return err
	}
	log.Info().Msgf("Motion monitoring for %s set to %v", camera.Name, enabled)
	return as.publisher.Publish(as.topic(cameraID, "motion_enabled"), []byte(strconv.FormatBool(enabled)), true)
}

func (as *AccessoryService) handleSwitch(topic string, payload []byte) {
	parts := strings.Split(strings.TrimPrefix(topic, as.prefix+"/"), "/")
	if len(parts) != 3 {
		log.Warn().Msgf("Ignoring switch on unexpected topic %s", topic)
		return
	}

	enabled, err := parseSwitch(string(payload))
	if err != nil {
		log.Warn().Msgf("Ignoring switch payload %q on %s", payload, topic)
		return
	}
	if err := as.SetMotionEnabled(parts[0], enabled); err != nil {
		log.Warn().Msgf("Could not set motion switch from %s: %v", topic, err)
	}
}

func parseSwitch(payload string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(payload)) {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	return strconv.ParseBool(strings.TrimSpace(payload))
}
