//go:build tinygo

package main

import "machine"

const (
	// Sampling configuration
	// 250 us between samples = 4 kHz, ~80 samples per 50 Hz AC cycle.
	// Line format "micros,code\n" is at most 17 bytes, ~68 KB/s at 4 kHz;
	// the stream goes over USB CDC, so UART baud limits don't apply.
	SAMPLE_INTERVAL_US = 250

	// ADC configuration
	ADC_REFERENCE_MV = 3300 // Reference voltage in millivolts (3.3V)
	ADC_RESOLUTION   = 12   // RP2040 ADC resolution; Get() scales codes to 16 bits

	// ZMPT101B analog output pin (ADC0 on the Pico)
	PIN_MAINS_ADC = machine.GPIO26
)
