package report

import (
	"strconv"
	"time"
)

// Reading is one computed RMS voltage, the single externally observable fact
// per reporting cycle.
type Reading struct {
	SensorID  string
	Timestamp time.Time
	Voltage   float64
}

// payload is the collector wire shape. The collector keys on "voltage" and
// expects it as a decimal string; the rest is context it may ignore.
type payload struct {
	SensorID  string    `json:"sensorId"`
	Timestamp time.Time `json:"timestamp"`
	Voltage   string    `json:"voltage"`
}

func (r Reading) toPayload() payload {
	return payload{
		SensorID:  r.SensorID,
		Timestamp: r.Timestamp,
		Voltage:   strconv.FormatFloat(r.Voltage, 'f', -1, 64),
	}
}
