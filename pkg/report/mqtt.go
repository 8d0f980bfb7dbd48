package report

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/tinkererway/govmon/pkg/config"
)

// Publisher delivers readings to an MQTT broker as a Home Assistant voltage
// sensor: a retained discovery config announced on connect, then one state
// message per reading.
type Publisher struct {
	cfg      config.MQTTConfig
	sensorID string
	client   mqtt.Client
}

// statePayload is the per-reading state message the discovery config's
// value_template extracts the voltage from.
type statePayload struct {
	Voltage   float64   `json:"voltage"`
	Timestamp time.Time `json:"timestamp"`
}

// NewPublisher creates a publisher for the given broker settings.
// Credentials may be empty for anonymous brokers.
func NewPublisher(cfg config.MQTTConfig, sensorID, username, password string) *Publisher {
	p := &Publisher{
		cfg:      cfg,
		sensorID: sensorID,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Broker, cfg.Port))
	opts.SetClientID("govmon-" + p.deviceID())
	opts.SetUsername(username)
	opts.SetPassword(password)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(5 * time.Second)

	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Printf("MQTT connection lost: %v", err)
	})

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Printf("Connected to MQTT broker at %s", cfg.Broker)
		if err := p.announce(client); err != nil {
			log.Printf("Failed to announce sensor entity: %v", err)
		}
	})

	p.client = mqtt.NewClient(opts)

	return p
}

// Connect connects to the broker; the discovery config is (re)published on
// every successful connection.
func (p *Publisher) Connect() error {
	if token := p.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return nil
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	if p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}

// Publish sends one reading to the state topic.
func (p *Publisher) Publish(r Reading) error {
	body, err := json.Marshal(statePayload{
		Voltage:   r.Voltage,
		Timestamp: r.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	token := p.client.Publish(p.stateTopic(), 0, false, body)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish state: %w", err)
	}

	return nil
}

// announce publishes the retained Home Assistant discovery config.
func (p *Publisher) announce(client mqtt.Client) error {
	body, err := json.Marshal(p.discoveryConfig())
	if err != nil {
		return fmt.Errorf("failed to marshal discovery config: %w", err)
	}

	token := client.Publish(p.configTopic(), 2, true, body)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish discovery config: %w", err)
	}

	return nil
}

// discoveryConfig builds the Home Assistant MQTT discovery payload for the
// voltage entity.
func (p *Publisher) discoveryConfig() any {
	type Config struct {
		Name             string `json:"name,omitempty"`
		DeviceClass      string `json:"device_class"`
		StateTopic       string `json:"state_topic"`
		UnitOfMeasure    string `json:"unit_of_measurement,omitempty"`
		ValueTemplate    string `json:"value_template"`
		UniqueId         string `json:"unique_id"`
		ExpireAfter      uint   `json:"expire_after,omitempty"`
		StateClass       string `json:"state_class,omitempty"`
		DisplayPrecision int    `json:"suggested_display_precision,omitempty"`
		Device           struct {
			Identifiers  []string `json:"identifiers"`
			Name         string   `json:"name"`
			Manufacturer string   `json:"manufacturer,omitempty"`
			Model        string   `json:"model,omitempty"`
		} `json:"device"`
	}

	deviceID := p.deviceID()

	cfg := Config{}
	cfg.Name = "Mains Voltage"
	cfg.DeviceClass = "voltage"
	cfg.StateTopic = p.stateTopic()
	cfg.UnitOfMeasure = "V"
	cfg.ValueTemplate = "{{ value_json.voltage }}"
	cfg.UniqueId = deviceID + "_voltage"
	cfg.ExpireAfter = 60 * 30 // 30 minutes
	cfg.StateClass = "measurement"
	cfg.DisplayPrecision = 1
	cfg.Device.Identifiers = []string{deviceID}
	cfg.Device.Name = p.sensorID
	cfg.Device.Manufacturer = "Tinkerer's Way"
	cfg.Device.Model = "ZMPT101B"

	return cfg
}

func (p *Publisher) deviceID() string {
	return strings.ReplaceAll(strings.ToLower(p.sensorID), " ", "_")
}

func (p *Publisher) stateTopic() string {
	return p.cfg.TopicPrefix + "/" + p.deviceID() + "/state"
}

func (p *Publisher) configTopic() string {
	return p.cfg.TopicPrefix + "/" + p.deviceID() + "_voltage/config"
}
