package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Serial      SerialConfig      `yaml:"serial"`
	Sensor      SensorConfig      `yaml:"sensor"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Measurement MeasurementConfig `yaml:"measurement"`
	Report      ReportConfig      `yaml:"report"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	Mock        MockConfig        `yaml:"mock"`
}

// SerialConfig contains the serial link to the sampling MCU.
type SerialConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

// SensorConfig describes the ZMPT101B front end and the digitizer behind it.
type SensorConfig struct {
	Channel     int     `yaml:"channel"`      // MCU pin the transducer is wired to
	FrequencyHz int     `yaml:"frequency_hz"` // Nominal mains frequency (50 or 60)
	VRef        float64 `yaml:"vref"`         // Full-scale digitizer voltage
	MaxCode     uint16  `yaml:"max_code"`     // Maximum raw sample value (65535 for read_u16-style codes)
}

// CalibrationConfig contains the transducer gain correction.
type CalibrationConfig struct {
	Sensitivity float64 `yaml:"sensitivity"`
}

// MeasurementConfig contains measurement parameters.
type MeasurementConfig struct {
	Cycles   int           `yaml:"cycles"`   // AC cycles averaged per reading
	Interval time.Duration `yaml:"interval"` // Delay between readings
}

// ReportConfig contains the HTTP collector endpoint.
type ReportConfig struct {
	URL      string        `yaml:"url"`
	Timeout  time.Duration `yaml:"timeout"`
	SensorID string        `yaml:"sensor_id"` // Generated when empty
}

// MQTTConfig contains the optional MQTT publisher settings.
// Credentials come from the environment, not the config file.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	Port        int    `yaml:"port"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// MockConfig contains the simulated sample source configuration.
type MockConfig struct {
	Amplitude  float64 `yaml:"amplitude"`   // Sine peak in raw codes
	Offset     float64 `yaml:"offset"`      // Waveform center in raw codes
	NoiseLevel float64 `yaml:"noise_level"` // Uniform noise in raw codes
	StepMicros uint32  `yaml:"step_micros"` // Virtual clock advance per sample
	StartTicks uint32  `yaml:"start_ticks"` // Initial virtual clock value
	Seed       int64   `yaml:"seed"`        // Noise seed (deterministic per seed)
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Port: "/dev/ttyACM0",
			Baud: 115200,
		},
		Sensor: SensorConfig{
			Channel:     26, // GPIO26 / ADC0 on the Pico
			FrequencyHz: 50,
			VRef:        3.3,
			MaxCode:     65535,
		},
		Calibration: CalibrationConfig{
			Sensitivity: 500.0,
		},
		Measurement: MeasurementConfig{
			Cycles:   50,
			Interval: 5 * time.Second,
		},
		Report: ReportConfig{
			URL:     "https://tinkererway.dev/php/voltage_handler.php",
			Timeout: 10 * time.Second,
		},
		MQTT: MQTTConfig{
			Enabled:     false,
			Broker:      "homeassistant.lan",
			Port:        1883,
			TopicPrefix: "homeassistant/sensor",
		},
		Mock: MockConfig{
			Amplitude:  12000,
			Offset:     32768,
			NoiseLevel: 40,
			StepMicros: 50, // 400 samples per 50 Hz cycle
			Seed:       1,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			// File doesn't exist, return defaults
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Ensure minimum required fields are set (use defaults if missing)
	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.Baud == 0 {
		c.Serial.Baud = def.Serial.Baud
	}

	if c.Sensor.Channel == 0 {
		c.Sensor.Channel = def.Sensor.Channel
	}
	if c.Sensor.FrequencyHz == 0 {
		c.Sensor.FrequencyHz = def.Sensor.FrequencyHz
	}
	if c.Sensor.VRef == 0 {
		c.Sensor.VRef = def.Sensor.VRef
	}
	if c.Sensor.MaxCode == 0 {
		c.Sensor.MaxCode = def.Sensor.MaxCode
	}

	if c.Calibration.Sensitivity == 0 {
		c.Calibration.Sensitivity = def.Calibration.Sensitivity
	}

	if c.Measurement.Cycles == 0 {
		c.Measurement.Cycles = def.Measurement.Cycles
	}
	if c.Measurement.Interval == 0 {
		c.Measurement.Interval = def.Measurement.Interval
	}

	if c.Report.URL == "" {
		c.Report.URL = def.Report.URL
	}
	if c.Report.Timeout == 0 {
		c.Report.Timeout = def.Report.Timeout
	}

	if c.MQTT.Broker == "" {
		c.MQTT.Broker = def.MQTT.Broker
	}
	if c.MQTT.Port == 0 {
		c.MQTT.Port = def.MQTT.Port
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = def.MQTT.TopicPrefix
	}

	if c.Mock.Amplitude == 0 {
		c.Mock.Amplitude = def.Mock.Amplitude
	}
	if c.Mock.Offset == 0 {
		c.Mock.Offset = def.Mock.Offset
	}
	if c.Mock.StepMicros == 0 {
		c.Mock.StepMicros = def.Mock.StepMicros
	}
}
