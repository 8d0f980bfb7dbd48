package adc

// Source is the capability interface over a single analog input channel.
// It yields instantaneous digitized samples on demand and exposes the
// monotonic microsecond clock used for cycle timing.
//
// The clock is a free-running counter that wraps at its native width and is
// deliberately decoupled from wall-clock time. Elapsed time between two
// readings a and b must be computed as a-b in uint32 arithmetic, which stays
// correct across the wrap boundary.
//
// A Source supports a single logical reader; implementations do not need to
// tolerate concurrent measurement calls.
type Source interface {
	// ReadRaw returns the current raw sample in [0, max code]. It must be
	// callable thousands of times per AC cycle and never block.
	ReadRaw() uint16

	// NowMicros returns the monotonic wrapping microsecond counter.
	NowMicros() uint32
}

// Ensure Serial implements Source.
var _ Source = (*Serial)(nil)

// Ensure Mock implements Source.
var _ Source = (*Mock)(nil)
