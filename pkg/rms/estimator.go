// Package rms computes calibrated RMS mains voltage from raw digitizer
// samples. It implements the ZMPT101B measurement scheme: the sensor output
// rides on a DC bias, so each AC cycle first gets its own zero-point
// estimate, then one cycle of squared deviations from that zero point is
// integrated in a busy-poll window timed by the source's wrapping
// microsecond clock, and the per-cycle voltages are averaged.
package rms

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/tinkererway/govmon/pkg/adc"
)

// ErrNoSamples is returned when a cycle window closed before a single sample
// was collected (clock granularity coarser than the period, or a scheduling
// anomaly). The accompanying voltage is 0.0; the sentinel keeps a degraded
// window distinguishable from a legitimate 0 V reading.
var ErrNoSamples = errors.New("no samples collected in cycle window")

// Config describes the digitizer and the waveform being measured.
// Immutable once handed to New.
type Config struct {
	FrequencyHz int     // Nominal mains frequency, e.g. 50 or 60
	VRef        float64 // Voltage at the digitizer's maximum code
	MaxCode     uint16  // Maximum representable raw sample value
}

// Calibration holds the transducer gain correction. It is owned by the
// caller and shared with the estimator by reference, so an external
// calibration step can adjust the sensitivity between readings.
//
// Single-writer discipline: updates must not race a measurement in flight.
// A change takes effect on the next measurement call; it never alters one
// already running.
type Calibration struct {
	sensitivity float64
}

// NewCalibration returns a calibration with the neutral sensitivity 1.0.
func NewCalibration() *Calibration {
	return &Calibration{sensitivity: 1.0}
}

// SetSensitivity replaces the sensitivity multiplier. Any finite
// non-negative value is legal; 0 legitimately zeroes all output.
func (c *Calibration) SetSensitivity(value float64) {
	c.sensitivity = value
}

// Sensitivity returns the current sensitivity multiplier.
func (c *Calibration) Sensitivity() float64 {
	return c.sensitivity
}

// Estimator computes zero points and RMS voltages from a sample source.
// It assumes a single logical reader per source.
type Estimator struct {
	src    adc.Source
	cfg    Config
	calib  *Calibration
	period uint32 // Microseconds per AC cycle
}

// New creates an estimator for the given source. A nil calibration gets the
// neutral default.
func New(src adc.Source, cfg Config, calib *Calibration) (*Estimator, error) {
	if src == nil {
		return nil, fmt.Errorf("sample source is required")
	}
	if cfg.FrequencyHz <= 0 {
		return nil, fmt.Errorf("frequency must be positive, got %d", cfg.FrequencyHz)
	}
	if cfg.MaxCode == 0 {
		return nil, fmt.Errorf("max code must be positive")
	}
	if calib == nil {
		calib = NewCalibration()
	}

	return &Estimator{
		src:    src,
		cfg:    cfg,
		calib:  calib,
		period: uint32(1_000_000 / cfg.FrequencyHz),
	}, nil
}

// Period returns the configured AC cycle period in microseconds.
func (e *Estimator) Period() uint32 {
	return e.period
}

// ZeroPoint estimates the DC offset of the waveform: the truncating mean of
// all samples collected during one cycle period. A window that collected
// zero samples yields 0 — degraded but non-fatal, the caller proceeds with
// a zero point of 0.
func (e *Estimator) ZeroPoint() uint16 {
	var sum, count uint64

	t0 := e.src.NowMicros()
	for e.src.NowMicros()-t0 < e.period {
		sum += uint64(e.src.ReadRaw())
		count++
	}

	if count == 0 {
		return 0
	}

	return uint16(sum / count)
}

// MeasureRMS computes the calibrated RMS voltage averaged over cycles
// independent AC-cycle measurements. Each cycle gets its own fresh zero
// point, because the DC offset drifts cycle to cycle.
//
// The loop busy-polls the source for timing fidelity; ctx is only consulted
// between samples, never mid-sample. A cancelled measurement and a cycle
// that collected zero samples both return 0.0 with a non-nil error and no
// partial average.
func (e *Estimator) MeasureRMS(ctx context.Context, cycles int) (float64, error) {
	if cycles <= 0 {
		return 0, fmt.Errorf("cycle count must be positive, got %d", cycles)
	}

	// Snapshot so a calibration update mid-measurement cannot skew the
	// average across cycles.
	sensitivity := e.calib.Sensitivity()

	var total float64
	for i := 0; i < cycles; i++ {
		zero := int32(e.ZeroPoint())

		var sumSquares uint64
		var count uint64

		t0 := e.src.NowMicros()
		for e.src.NowMicros()-t0 < e.period {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
			// Deviation can be as large as the full code range in either
			// direction; squaring needs 32 bits and accumulating needs 64.
			dev := int64(int32(e.src.ReadRaw()) - zero)
			sumSquares += uint64(dev * dev)
			count++
		}

		if count == 0 {
			return 0, ErrNoSamples
		}

		rmsCode := math.Sqrt(float64(sumSquares) / float64(count))
		voltage := rmsCode / float64(e.cfg.MaxCode) * e.cfg.VRef * sensitivity
		total += voltage
	}

	return total / float64(cycles), nil
}
