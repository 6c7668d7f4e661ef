package hubitatservice

import (
	"context"
	"crypto/sha1"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bigjimnolan/protectmotion/motionservice"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// HubitatService runs Maker API actions when motion is reported. Actions are
// queued with their start delay and sent from Start's loop.
type HubitatService struct {
	http    *resty.Client
	devices map[int]HubitatDeviceInfo

	actionsMutex sync.Mutex
	actionsList  map[string][]ActionType

	queue                chan []ActionType
	automaticAction      map[string]ActionType
	deviceBackoff        map[int]time.Time
	deviceBackoffEnabled bool
	pollWait             time.Duration
	now                  func() time.Time
}

func NewHubitatService(config HubitatServiceConfig) (*HubitatService, error) {
	timeout := time.Duration(config.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	hs := &HubitatService{
		http: resty.New().
			SetTimeout(timeout).
			SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true}),
		devices:              config.HubitatDevices,
		actionsList:          make(map[string][]ActionType),
		queue:                make(chan []ActionType, 16),
		automaticAction:      make(map[string]ActionType),
		deviceBackoff:        make(map[int]time.Time),
		deviceBackoffEnabled: config.DeviceBackoffEnabled,
		pollWait:             time.Second,
		now:                  time.Now,
	}
	if hs.devices == nil {
		hs.devices = make(map[int]HubitatDeviceInfo)
	}

	if config.ActionsListLocation != "" {
		if err := hs.LoadActions(config.ActionsListLocation); err != nil {
			return nil, err
		}
	}
	return hs, nil
}

// LoadActions replaces the action list with the contents of a JSON file.
func (hs *HubitatService) LoadActions(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	actionsToParse := []ActionInput{}
	if err := json.NewDecoder(file).Decode(&actionsToParse); err != nil {
		return fmt.Errorf("failed to decode actions %s: %w", path, err)
	}
	hs.SetActions(actionsToParse)
	return nil
}

func (hs *HubitatService) SetActions(inputs []ActionInput) {
	actions := make(map[string][]ActionType)
	for _, action := range inputs {
		actions[action.CameraSource] = append(actions[action.CameraSource], ActionType{
			PrimaryAction:   action.PrimaryAction,
			SecondaryAction: action.SecondaryAction,
			DeviceId:        action.DeviceID,
			StartDelay:      time.Duration(action.Delay) * time.Second,
			BackoffDelay:    time.Duration(action.Backoff) * time.Second,
		})
	}

	hs.actionsMutex.Lock()
	hs.actionsList = actions
	hs.actionsMutex.Unlock()
	log.Trace().Msgf("Actions Loaded: %v", actions)
}

// Actions finds the actions for a notification: camera and label first, then
// the camera alone, then the default list.
func (hs *HubitatService) Actions(cameraName, label string) []ActionType {
	hs.actionsMutex.Lock()
	defer hs.actionsMutex.Unlock()

	for _, key := range []string{cameraName + ":" + label, cameraName} {
		if actions, ok := hs.actionsList[key]; ok {
			return actions
		}
	}
	log.Debug().Msgf("input device not found: %v:%v, calling default actions", cameraName, label)
	return hs.actionsList["default"]
}

// Notify queues the matching actions without blocking the caller.
func (hs *HubitatService) Notify(n motionservice.Notification) {
	actions := hs.Actions(n.CameraName, n.Label)
	if len(actions) == 0 {
		return
	}
	select {
	case hs.queue <- actions:
	default:
		log.Warn().Msgf("Hubitat queue full, dropping actions for %s", n.CameraName)
	}
}

// Start sends due actions until ctx is cancelled.
func (hs *HubitatService) Start(ctx context.Context) {
	for {
		hs.checkListAndSend(ctx)

		select {
		case <-ctx.Done():
			return
		case actionList := <-hs.queue:
			hs.enqueue(actionList)
		case <-time.After(hs.pollWait):
		}
	}
}

func (hs *HubitatService) enqueue(actionList []ActionType) {
	now := hs.now()
	log.Trace().Msgf("Got Actions: %v", actionList)

	for _, action := range actionList {
		inBackoff := hs.deviceBackoffEnabled && hs.deviceBackoff[action.DeviceId].After(now) && action.PrimaryAction != "off"
		if inBackoff {
			log.Debug().Msgf("Backoff: %v; until: %v", action.DeviceId, hs.deviceBackoff[action.DeviceId])
			continue
		}
		action.CurrentDelay = now.Add(action.StartDelay)
		log.Info().Msgf("Adding: %v", action)
		hs.automaticAction[actionKey(action)] = action
	}

	if !hs.deviceBackoffEnabled {
		return
	}
	for _, action := range actionList {
		if hs.deviceBackoff[action.DeviceId].Before(now) {
			hs.deviceBackoff[action.DeviceId] = now.Add(action.BackoffDelay)
		} else {
			hs.deviceBackoff[action.DeviceId] = hs.deviceBackoff[action.DeviceId].Add(action.BackoffDelay)
		}
	}
}

func actionKey(action ActionType) string {
	combinedKey := strconv.Itoa(action.DeviceId) + action.PrimaryAction + action.SecondaryAction
	hash := sha1.Sum([]byte(combinedKey))
	return hex.EncodeToString(hash[:])
}

// checkListAndSend runs every queued action whose delay has passed.
func (hs *HubitatService) checkListAndSend(ctx context.Context) {
	now := hs.now()
	for key, actionInfo := range hs.automaticAction {
		if actionInfo.CurrentDelay.After(now) {
			continue
		}
		delete(hs.automaticAction, key)

		device, ok := hs.devices[actionInfo.DeviceId]
		if !ok {
			log.Warn().Msgf("No hubitat device %d configured", actionInfo.DeviceId)
			continue
		}

		var err error
		if actionInfo.DeviceId == 0 {
			err = hs.callPostAction(ctx, device, actionInfo.PrimaryAction, actionInfo.SecondaryAction)
		} else {
			log.Debug().Msgf("Running Action: %v -> %v:%v", actionInfo.DeviceId, actionInfo.PrimaryAction, actionInfo.SecondaryAction)
			err = hs.callAction(ctx, device, actionInfo.PrimaryAction, actionInfo.SecondaryAction)
		}
		if err != nil {
			log.Warn().Msgf("Hubitat action %v failed: %v", actionInfo, err)
		}
	}
}

// callAction hits the Maker API with a GET, the action is part of the URL.
func (hs *HubitatService) callAction(ctx context.Context, device HubitatDeviceInfo, action, secondaryAction string) error {
	url := strings.Replace(device.DeviceURL, "<action>", action, 1)
	url = strings.Replace(url, "<action2>", secondaryAction, 1)

	resp, err := hs.http.R().SetContext(ctx).Get(url)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("hubitat returned status %d", resp.StatusCode())
	}
	if log.Logger.GetLevel() == zerolog.TraceLevel {
		log.Trace().Msgf("client: response body: %s", resp.Body())
	}
	return nil
}

// callPostAction posts the device body with the secondary action filled in.
func (hs *HubitatService) callPostAction(ctx context.Context, device HubitatDeviceInfo, action, secondaryAction string) error {
	url := strings.Replace(device.DeviceURL, "<action>", action, 1)
	postBody := strings.Replace(device.PostBody, "<action2>", secondaryAction, 1)
	log.Debug().Msgf("Post URL: %v", url)
	log.Debug().Msgf("Post Body: %v", postBody)

	resp, err := hs.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(postBody).
		Post(url)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("hubitat returned status %d", resp.StatusCode())
	}
	log.Debug().Msgf("client: response body: %s", resp.Body())
	return nil
}

// ApplySecrets fills <access_token> in every device URL from
// HUBITAT_ACCESS_TOKEN_<APIID>.
func ApplySecrets(devices map[int]HubitatDeviceInfo) {
	for id, device := range devices {
		tokenString := "HUBITAT_ACCESS_TOKEN_" + strconv.Itoa(device.APIID)
		token := os.Getenv(tokenString)
		if token == "" {
			log.Warn().Msgf("Could not find token at: %v", tokenString)
			continue
		}
		device.DeviceURL = strings.Replace(device.DeviceURL, "<access_token>", token, 1)
		devices[id] = device
	}
}
