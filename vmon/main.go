package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/tinkererway/govmon/pkg/adc"
	"github.com/tinkererway/govmon/pkg/config"
	"github.com/tinkererway/govmon/pkg/report"
	"github.com/tinkererway/govmon/pkg/rms"
)

// SafeGo launches a goroutine with panic recovery.
// If the goroutine panics, the context is cancelled and the panic is logged.
func SafeGo(
	ctx context.Context,
	cancel context.CancelFunc,
	name string,
	fn func(ctx context.Context),
) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("Panic in %s: %v", name, r)
				cancel()
			}
		}()
		fn(ctx)
	}()
}

// measureWorker runs the read loop: one multi-cycle RMS measurement per
// interval, forwarded to the reporters. A degraded measurement is logged and
// dropped; it is never reported as a real 0 V reading.
func measureWorker(
	ctx context.Context,
	est *rms.Estimator,
	cycles int,
	interval time.Duration,
	sensorID string,
	readings chan<- report.Reading,
) {
	for {
		voltage, err := est.MeasureRMS(ctx, cycles)
		switch {
		case errors.Is(err, context.Canceled):
			return
		case errors.Is(err, rms.ErrNoSamples):
			log.Printf("Degraded measurement, skipping report: %v", err)
		case err != nil:
			log.Printf("Measurement failed: %v", err)
		default:
			log.Printf("RMS Voltage: %.2f V", voltage)
			select {
			case readings <- report.Reading{
				SensorID:  sensorID,
				Timestamp: time.Now(),
				Voltage:   voltage,
			}:
			case <-ctx.Done():
				return
			}
		}

		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return
		}
	}
}

// reportWorker forwards readings to the collector and the optional MQTT
// publisher. Transport failures are logged and the reading is dropped; the
// measurement is never retried.
func reportWorker(
	ctx context.Context,
	readings <-chan report.Reading,
	collector *report.Collector,
	publisher *report.Publisher,
) {
	for {
		select {
		case r := <-readings:
			if err := collector.Send(ctx, r); err != nil {
				log.Printf("Failed to send reading to collector: %v", err)
			}
			if publisher != nil {
				if err := publisher.Publish(r); err != nil {
					log.Printf("Failed to publish reading: %v", err)
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

func main() {
	var (
		portFlag   = flag.String("p", "", "Serial port override (e.g., COM3 or /dev/ttyACM0)")
		configFlag = flag.String("config", "config.yaml", "Configuration file path")
		mockFlag   = flag.Bool("mock", false, "Use a simulated sample source instead of the serial port")
		cyclesFlag = flag.Int("cycles", 0, "AC cycles to average per reading (overrides config)")
	)
	flag.Parse()

	log.Println("Starting govmon...")

	// Load .env for broker credentials, if present
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	// Load configuration
	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Override serial port if provided via command line
	if *portFlag != "" {
		cfg.Serial.Port = *portFlag
	}

	// Override cycle count if provided via command line
	if *cyclesFlag > 0 {
		cfg.Measurement.Cycles = *cyclesFlag
	}

	sensorID := cfg.Report.SensorID
	if sensorID == "" {
		sensorID = "zmpt101b-" + uuid.NewString()
		log.Printf("No sensor_id configured, using %s", sensorID)
	}

	// Build the sample source
	var src adc.Source
	if *mockFlag {
		log.Println("Using simulated sample source")
		src = adc.NewMock(&cfg.Mock, cfg.Sensor.FrequencyHz)
	} else {
		serial := adc.NewSerial(cfg.Serial.Port, cfg.Serial.Baud, cfg.Sensor.MaxCode)
		if err := serial.Connect(); err != nil {
			log.Fatalf("Failed to open sample source: %v", err)
		}
		defer serial.Close()
		log.Printf("Sampling channel %d via %s", cfg.Sensor.Channel, cfg.Serial.Port)
		src = serial
	}

	// Build the estimator
	calib := rms.NewCalibration()
	calib.SetSensitivity(cfg.Calibration.Sensitivity)

	est, err := rms.New(src, rms.Config{
		FrequencyHz: cfg.Sensor.FrequencyHz,
		VRef:        cfg.Sensor.VRef,
		MaxCode:     cfg.Sensor.MaxCode,
	}, calib)
	if err != nil {
		log.Fatalf("Failed to create estimator: %v", err)
	}

	// Build the reporters
	collector := report.NewCollector(cfg.Report)

	var publisher *report.Publisher
	if cfg.MQTT.Enabled {
		publisher = report.NewPublisher(
			cfg.MQTT,
			sensorID,
			os.Getenv("MQTT_USERNAME"),
			os.Getenv("MQTT_PASSWORD"),
		)
		if err := publisher.Connect(); err != nil {
			log.Fatalf("Failed to connect MQTT publisher: %v", err)
		}
		defer publisher.Close()
	}

	// Create context for lifecycle management
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	readings := make(chan report.Reading, 10)

	SafeGo(ctx, cancel, "report-worker", func(ctx context.Context) {
		reportWorker(ctx, readings, collector, publisher)
	})

	SafeGo(ctx, cancel, "measure-worker", func(ctx context.Context) {
		measureWorker(ctx, est, cfg.Measurement.Cycles, cfg.Measurement.Interval, sensorID, readings)
	})
	log.Printf("Measuring %d cycles every %s", cfg.Measurement.Cycles, cfg.Measurement.Interval)

	// Wait for interrupt signal or context cancellation (from panic)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Println("Shutting down...")
	case <-ctx.Done():
		log.Println("Shutting down due to error...")
	}
}
