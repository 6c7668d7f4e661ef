package mqttservice

// MQTTConfig is the "mqtt" section of the configuration. When RemoteAddress
// is set state goes to that broker instead of the embedded one.
type MQTTConfig struct {
	ID             string `mapstructure:"id"`
	Address        string `mapstructure:"address"`
	RemoteAddress  string `mapstructure:"remote_address"`
	RemoteClientID string `mapstructure:"remote_client_id"`
}
