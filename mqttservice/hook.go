package mqttservice

import (
	"bytes"

	"github.com/rs/zerolog/log"

	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/packets"
)

// LogHook reports broker client activity through zerolog.
type LogHook struct {
	mqtt.HookBase
}

func (h *LogHook) ID() string {
	return "protectmotion-log"
}

func (h *LogHook) Provides(b byte) bool {
	return bytes.Contains([]byte{
		mqtt.OnConnect,
		mqtt.OnDisconnect,
		mqtt.OnSubscribed,
		mqtt.OnPublished,
	}, []byte{b})
}

func (h *LogHook) Init(config any) error {
	log.Debug().Msg("MQTT log hook initialised")
	return nil
}

func (h *LogHook) OnConnect(cl *mqtt.Client, pk packets.Packet) error {
	log.Info().Msgf("MQTT client connected: %s", cl.ID)
	return nil
}

func (h *LogHook) OnDisconnect(cl *mqtt.Client, err error, expire bool) {
	if err != nil {
		log.Info().Msgf("MQTT client disconnected: %s (%v)", cl.ID, err)
		return
	}
	log.Info().Msgf("MQTT client disconnected: %s", cl.ID)
}

func (h *LogHook) OnSubscribed(cl *mqtt.Client, pk packets.Packet, reasonCodes []byte) {
	for _, f := range pk.Filters {
		log.Debug().Msgf("MQTT client %s subscribed to %s", cl.ID, f.Filter)
	}
}

func (h *LogHook) OnPublished(cl *mqtt.Client, pk packets.Packet) {
	log.Trace().Msgf("MQTT client %s published %s: %s", cl.ID, pk.TopicName, pk.Payload)
}
