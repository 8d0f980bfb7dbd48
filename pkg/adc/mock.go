package adc

import (
	"math/rand"

	"github.com/chewxy/math32"

	"github.com/tinkererway/govmon/pkg/config"
)

// Mock simulates a ZMPT101B channel for testing and development. It
// synthesizes a sine waveform riding on a DC offset, with optional uniform
// noise, about a virtual microsecond clock that advances a fixed step per
// sample. Everything is derived from the configured seed, so a fresh Mock
// with the same configuration replays the exact same sample/clock script.
//
// The virtual clock only advances when ReadRaw is called, which matches the
// busy-poll measurement model: the estimator's timed window always contains
// period/step samples, regardless of host scheduling.
type Mock struct {
	amplitude float64
	offset    float64
	noise     float64
	step      uint32
	period    uint32 // Waveform period in virtual microseconds

	ticks uint32
	rng   *rand.Rand
}

// NewMock creates a simulated source for the given mains frequency.
func NewMock(cfg *config.MockConfig, frequencyHz int) *Mock {
	if cfg == nil {
		def := config.Default()
		cfg = &def.Mock
	}
	if frequencyHz <= 0 {
		frequencyHz = 50
	}

	step := cfg.StepMicros
	if step == 0 {
		step = 50
	}

	return &Mock{
		amplitude: cfg.Amplitude,
		offset:    cfg.Offset,
		noise:     cfg.NoiseLevel,
		step:      step,
		period:    uint32(1_000_000 / frequencyHz),
		ticks:     cfg.StartTicks,
		rng:       rand.New(rand.NewSource(cfg.Seed)),
	}
}

// ReadRaw synthesizes the sample for the current virtual instant, then
// advances the clock by the configured step.
func (m *Mock) ReadRaw() uint16 {
	code := m.sampleAt(m.ticks)
	m.ticks += m.step
	return code
}

// NowMicros returns the virtual clock without advancing it.
func (m *Mock) NowMicros() uint32 {
	return m.ticks
}

// sampleAt computes the digitized waveform value at the given virtual tick.
// The phase is taken from the tick modulo the waveform period, so float32
// precision holds no matter how large the counter has grown.
func (m *Mock) sampleAt(ticks uint32) uint16 {
	phase := 2 * math32.Pi * float32(ticks%m.period) / float32(m.period)
	v := m.offset + m.amplitude*float64(math32.Sin(phase))

	if m.noise > 0 {
		v += (m.rng.Float64()*2 - 1) * m.noise
	}

	if v < 0 {
		return 0
	}
	if v > 65535 {
		return 65535
	}
	return uint16(v + 0.5) // Round to nearest
}
