//go:build tinygo

//go:generate tinygo flash -target=pico

package main

import (
	"machine"
	"time"
)

var adcMains machine.ADC

// Streams the ZMPT101B channel over serial as "micros,code" lines.
// The timestamp is the MCU's own microsecond counter truncated to 32 bits,
// so it wraps; the host computes elapsed time with wraparound-safe
// subtraction. All cycle timing happens on the host, in this clock domain.
func main() {
	machine.InitADC()

	// Configure the ADC pin for analog input
	PIN_MAINS_ADC.Configure(machine.PinConfig{Mode: machine.PinInput})

	adcMains = machine.ADC{Pin: PIN_MAINS_ADC}
	adcMains.Configure(machine.ADCConfig{
		Reference:  ADC_REFERENCE_MV,
		Resolution: ADC_RESOLUTION,
	})

	for {
		code := adcMains.Get() // 16-bit scaled reading
		micros := uint32(time.Now().UnixNano() / 1000)

		print(micros)
		print(",")
		print(code)
		print("\n")

		time.Sleep(SAMPLE_INTERVAL_US * time.Microsecond)
	}
}
