package mqttservice

import (
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	gomqtt "gosrc.io/mqtt"
)

type subscription struct {
	filter  string
	handler func(topic string, payload []byte)
}

// RemoteClient publishes to and subscribes on an external broker. The client
// manager reconnects on its own; subscriptions are replayed on every connect.
type RemoteClient struct {
	client   *gomqtt.Client
	messages chan gomqtt.Message

	mu        sync.Mutex
	connected *gomqtt.Client
	subs      []subscription
}

func NewRemoteClient(address, clientID string) *RemoteClient {
	if clientID == "" {
		clientID = "protectmotion"
	}
	client := gomqtt.NewClient(address)
	client.ClientID = clientID

	messages := make(chan gomqtt.Message)
	client.Messages = messages

	return &RemoteClient{client: client, messages: messages}
}

// Start connects in the background and dispatches incoming messages.
func (rc *RemoteClient) Start() {
	cm := gomqtt.NewClientManager(rc.client, rc.onConnect)
	go cm.Start()
	go rc.dispatch()
}

func (rc *RemoteClient) onConnect(c *gomqtt.Client) {
	log.Info().Msg("mqtt Connected")

	rc.mu.Lock()
	rc.connected = c
	subs := append([]subscription(nil), rc.subs...)
	rc.mu.Unlock()

	for _, s := range subs {
		c.Subscribe(gomqtt.Topic{Name: s.filter, QOS: 0})
		log.Info().Msgf("Subscribed to topic: %s", s.filter)
	}
}

func (rc *RemoteClient) dispatch() {
	for m := range rc.messages {
		rc.mu.Lock()
		subs := append([]subscription(nil), rc.subs...)
		rc.mu.Unlock()

		for _, s := range subs {
			if topicMatches(s.filter, m.Topic) {
				s.handler(m.Topic, m.Payload)
			}
		}
	}
}

// Publish sends the payload when connected and drops it otherwise. This
// client has no retain flag, so retain is ignored.
func (rc *RemoteClient) Publish(topic string, payload []byte, retain bool) error {
	rc.mu.Lock()
	c := rc.connected
	rc.mu.Unlock()

	if c == nil {
		log.Warn().Msgf("Not connected to remote broker, dropping %s", topic)
		return nil
	}
	c.Publish(topic, payload)
	log.Trace().Msgf("Published %s: %s", topic, payload)
	return nil
}

func (rc *RemoteClient) Subscribe(filter string, handler func(topic string, payload []byte)) error {
	rc.mu.Lock()
	rc.subs = append(rc.subs, subscription{filter: filter, handler: handler})
	c := rc.connected
	rc.mu.Unlock()

	if c != nil {
		c.Subscribe(gomqtt.Topic{Name: filter, QOS: 0})
		log.Info().Msgf("Subscribed to topic: %s", filter)
	}
	return nil
}

// topicMatches applies MQTT wildcard rules: + matches one level, a trailing #
// matches the rest.
func topicMatches(filter, topic string) bool {
	fp := strings.Split(filter, "/")
	tp := strings.Split(topic, "/")
	for i, f := range fp {
		if f == "#" {
			return i == len(fp)-1
		}
		if i >= len(tp) {
			return false
		}
		if f != "+" && f != tp[i] {
			return false
		}
	}
	return len(fp) == len(tp)
}
