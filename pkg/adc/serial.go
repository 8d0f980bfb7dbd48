package adc

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"go.bug.st/serial"
)

const (
	// DefaultBaudRate is the baud rate the sampling firmware uses.
	DefaultBaudRate = 115200
)

// Serial reads the `micros,code` stream produced by the sampling MCU and
// retains the most recent pair. ReadRaw and NowMicros serve the retained
// pair without blocking, so the estimator can poll them in a tight loop
// while the reader goroutine keeps the pair fresh.
//
// The clock observed through NowMicros is the MCU's own microsecond counter,
// so cycle timing happens in the same time domain the samples were taken in.
// If the stream stalls the clock freezes with it; a measurement that never
// completes is the fatal-source condition the caller is responsible for.
type Serial struct {
	port    string
	baud    int
	maxCode uint16

	conn      serial.Port
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	connected bool

	// Packed micros<<16 | code, written only by the reader goroutine.
	latest atomic.Uint64
}

// NewSerial creates a serial-backed source for the given port.
func NewSerial(port string, baud int, maxCode uint16) *Serial {
	if baud == 0 {
		baud = DefaultBaudRate
	}
	if maxCode == 0 {
		maxCode = 65535
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Serial{
		port:    port,
		baud:    baud,
		maxCode: maxCode,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Ports returns the names of the available serial ports.
func Ports() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}

// Connect opens the serial port and starts consuming the sample stream.
func (s *Serial) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return fmt.Errorf("already connected")
	}

	mode := &serial.Mode{
		BaudRate: s.baud,
	}

	port, err := serial.Open(s.port, mode)
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", s.port, err)
	}

	s.conn = port
	s.connected = true

	go s.readStream()

	return nil
}

// Close stops the reader goroutine and closes the port.
func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return nil
	}

	s.cancel()

	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			log.Printf("Error closing serial port: %v", err)
		}
		s.conn = nil
	}

	s.connected = false

	return nil
}

// IsConnected returns whether the port is currently open.
func (s *Serial) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// ReadRaw returns the most recently streamed sample code.
func (s *Serial) ReadRaw() uint16 {
	return uint16(s.latest.Load() & 0xffff)
}

// NowMicros returns the MCU microsecond counter of the most recent sample.
func (s *Serial) NowMicros() uint32 {
	return uint32(s.latest.Load() >> 16)
}

// readStream reads lines from the serial port and updates the retained pair.
func (s *Serial) readStream() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Panic in readStream: %v", r)
		}
	}()

	scanner := bufio.NewScanner(s.conn)
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
			if !scanner.Scan() {
				// Scanner stopped (EOF or error)
				if err := scanner.Err(); err != nil {
					if err != io.EOF {
						log.Printf("Error reading from serial port: %v", err)
					}
				}
				return
			}

			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}

			micros, code, err := parseLine(line, s.maxCode)
			if err != nil {
				log.Printf("Failed to parse line '%s': %v", line, err)
				continue
			}

			s.latest.Store(uint64(micros)<<16 | uint64(code))
		}
	}
}

// parseLine parses a sample line from the MCU.
// Format: micros,code
// Example: 1234567,32791
func parseLine(line string, maxCode uint16) (uint32, uint16, error) {
	parts := strings.Split(line, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid line format: expected 2 comma-separated values, got %d", len(parts))
	}

	// Parse the wrapping microsecond counter
	micros, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid micros: %w", err)
	}

	// Parse the raw sample code
	code, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid code: %w", err)
	}
	if uint16(code) > maxCode {
		return 0, 0, fmt.Errorf("code out of range: %d (max %d)", code, maxCode)
	}

	return uint32(micros), uint16(code), nil
}
