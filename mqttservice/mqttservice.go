package mqttservice

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"
)

// MQTTService runs the embedded broker that home automation clients connect
// to. The service itself publishes and subscribes through the inline client.
type MQTTService struct {
	config MQTTConfig
	server *mqtt.Server

	mu     sync.Mutex
	nextID int
}

func NewMQTTService(config MQTTConfig) *MQTTService {
	return &MQTTService{
		config: config,
		server: mqtt.New(&mqtt.Options{
			InlineClient: true, // you must enable inline client to use direct publishing and subscribing.
		}),
	}
}

// Start wires the hooks and listener and serves in the background. With an
// empty Address only the inline client is available.
func (mqt *MQTTService) Start() error {
	if err := mqt.server.AddHook(new(auth.AllowHook), nil); err != nil {
		return err
	}
	if err := mqt.server.AddHook(new(LogHook), nil); err != nil {
		return err
	}

	if mqt.config.Address != "" {
		log.Info().Msgf("Starting MQTT server on %s %s", mqt.config.ID, mqt.config.Address)
		tcp := listeners.NewTCP(listeners.Config{
			ID:      mqt.config.ID,
			Address: mqt.config.Address,
		})
		if err := mqt.server.AddListener(tcp); err != nil {
			return err
		}
	}

	go func() {
		if err := mqt.server.Serve(); err != nil {
			log.Error().Msgf("Error serving mqtt: %v", err)
		}
	}()
	return nil
}

func (mqt *MQTTService) Close() error {
	log.Info().Msg("Stopping MQTT server")
	return mqt.server.Close()
}

func (mqt *MQTTService) Publish(topic string, payload []byte, retain bool) error {
	if err := mqt.server.Publish(topic, payload, retain, 0); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	log.Trace().Msgf("Published %s: %s", topic, payload)
	return nil
}

// Subscribe registers an inline handler. Filters may use + and # wildcards.
func (mqt *MQTTService) Subscribe(filter string, handler func(topic string, payload []byte)) error {
	mqt.mu.Lock()
	mqt.nextID++
	id := mqt.nextID
	mqt.mu.Unlock()

	callback := func(cl *mqtt.Client, sub packets.Subscription, pk packets.Packet) {
		handler(pk.TopicName, pk.Payload)
	}
	if err := mqt.server.Subscribe(filter, id, callback); err != nil {
		return fmt.Errorf("subscribe %s: %w", filter, err)
	}
	log.Debug().Msgf("Subscribed to topic: %s", filter)
	return nil
}
