package controller

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/bigjimnolan/protectmotion/accessoryservice"
	"github.com/bigjimnolan/protectmotion/detectorservice"
	"github.com/bigjimnolan/protectmotion/hubitatservice"
	"github.com/bigjimnolan/protectmotion/motionservice"
	"github.com/bigjimnolan/protectmotion/mqttservice"
	"github.com/bigjimnolan/protectmotion/protectservice"
	"github.com/bigjimnolan/protectmotion/snapshotservice"
	"github.com/bigjimnolan/protectmotion/storageservice"
	"github.com/bigjimnolan/protectmotion/uiservice"
	"github.com/bigjimnolan/protectmotion/uploadservice"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SetLogLevel sets the global level; anything unknown means warn. A
// terminal gets the console writer.
func SetLogLevel(logLevel string) {
	switch logLevel {
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "trace":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	}

	if isatty.IsTerminal(os.Stderr.Fd()) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log.Debug().Msgf("logLevel: %v", zerolog.GlobalLevel())
}

// latencyWarning reports when one fully retried request could outlast the
// poll interval.
func latencyWarning(config protectservice.ProtectConfig) (string, bool) {
	worst := config.WorstCaseLatency()
	if worst < config.PollInterval() {
		return "", false
	}
	return fmt.Sprintf("Worst case request latency %v (backoff %v, %d retries, timeout %v) is not below motion interval %v; ticks will be skipped while requests retry",
		worst, config.Backoff(), config.MaxRetries, config.Timeout(), config.PollInterval()), true
}

// Probe resolves the controller dialect.
func Probe(ctx context.Context, config *ProtectMotionConfig) (protectservice.EndpointStyle, error) {
	return protectservice.ResolveEndpointStyle(ctx, config.Unifi.Controller, config.Unifi.Timeout())
}

// Connect probes the controller, logs in and lists the cameras.
func Connect(ctx context.Context, config *ProtectMotionConfig) (*protectservice.Flows, []protectservice.Camera, error) {
	if config.Unifi.Username == "" || config.Unifi.Password == "" {
		return nil, nil, fmt.Errorf("%w: unifi username and password are required (%s, %s)",
			protectservice.ErrConfig, secretEnv["unifi.username"], secretEnv["unifi.password"])
	}

	style, err := Probe(ctx, config)
	if err != nil {
		return nil, nil, err
	}
	log.Info().Msgf("Controller dialect: %v", style)

	flows := protectservice.NewFlows(protectservice.NewProtectService(config.Unifi), style, config.Unifi.Username, config.Unifi.Password)
	cameras, err := flows.Cameras(ctx)
	if err != nil {
		return nil, nil, err
	}
	for _, camera := range cameras {
		log.Info().Msgf("Found camera %s (%s) at %s", camera.Name, camera.ID, camera.IPAddress)
	}
	return flows, cameras, nil
}

// StartHere runs every service until SIGINT or SIGTERM.
func StartHere(ctx context.Context, config *ProtectMotionConfig) error {
	SetLogLevel(config.LogLevel)
	if config.Unifi.Debug {
		zerolog.SetGlobalLevel(min(zerolog.GlobalLevel(), zerolog.DebugLevel))
		config.Detector.Debug = true
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if msg, warn := latencyWarning(config.Unifi); warn {
		log.Warn().Msg(msg)
	}

	flows, cameras, err := Connect(ctx, config)
	if err != nil {
		return err
	}

	storage, err := storageservice.New(config.Storage.Path)
	if err != nil {
		return err
	}
	defer storage.Close()

	publisher, closePublisher, err := startPublisher(config.MQTT)
	if err != nil {
		return err
	}
	defer closePublisher()

	accessory := accessoryservice.NewAccessoryService(config.Accessory, publisher, storage)
	if err := accessory.Register(cameras); err != nil {
		return err
	}

	snapshots, err := snapshotservice.NewSnapshotService(config.Snapshots)
	if err != nil {
		return err
	}

	deps := motionservice.Dependencies{
		Cameras:   cameras,
		Events:    flows,
		Snapshots: snapshots,
		Sink:      accessory,
		Store:     storage,
	}

	if config.Unifi.EnhancedMotion {
		detector := detectorservice.NewHTTPDetector(config.Detector)
		log.Info().Msg("Waiting for object detector")
		if err := detector.WaitReady(ctx, 2*time.Second); err != nil {
			return err
		}
		deps.Detector = detector
	}
	if config.Upload.Enabled {
		deps.Uploader = uploadservice.NewPhotoUploader(config.Upload)
	}

	wg := &sync.WaitGroup{}

	if len(config.Hubitat.HubitatDevices) > 0 {
		log.Info().Msg("Starting hubitat service")
		hubitatService, err := hubitatservice.NewHubitatService(config.Hubitat)
		if err != nil {
			return err
		}
		deps.Notifiers = append(deps.Notifiers, hubitatService)
		wg.Add(1)
		go func() {
			defer wg.Done()
			hubitatService.Start(ctx)
		}()
	}

	if config.UI.Enabled {
		log.Info().Msg("Starting UI service")
		ui := uiservice.NewUIService(config.UI, cameras, accessory, storage)
		deps.Notifiers = append(deps.Notifiers, ui.Hub())
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ui.Start(ctx); err != nil {
				log.Error().Msgf("UI Service stopped: %v", err)
			}
		}()
	}

	motion, err := motionservice.NewMotionService(motionservice.ConfigFromProtect(config.Unifi), deps)
	if err != nil {
		return err
	}

	log.Info().Msg("Starting motion service")
	wg.Add(1)
	go func() {
		defer wg.Done()
		motion.Start(ctx)
	}()

	wg.Wait()
	log.Info().Msg("All services stopped")
	return nil
}

// startPublisher picks the remote broker when one is configured, otherwise
// runs the embedded one.
func startPublisher(config mqttservice.MQTTConfig) (accessoryservice.Publisher, func(), error) {
	if config.RemoteAddress != "" {
		log.Info().Msgf("Using remote MQTT broker at %s", config.RemoteAddress)
		remote := mqttservice.NewRemoteClient(config.RemoteAddress, config.RemoteClientID)
		remote.Start()
		return remote, func() {}, nil
	}

	log.Info().Msg("Starting MQTT service")
	broker := mqttservice.NewMQTTService(config)
	if err := broker.Start(); err != nil {
		return nil, nil, fmt.Errorf("MQTT Service Failed to Start: %w", err)
	}
	return broker, func() {
		if err := broker.Close(); err != nil {
			log.Warn().Msgf("Error stopping MQTT server: %v", err)
		}
	}, nil
}
