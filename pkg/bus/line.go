package bus

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
	"go.bug.st/serial"
)

// sharedLine lets both protocol families drive the same physical line.
// Each feetech.Bus closes its transport, so Close runs once.
type sharedLine struct {
	feetech.Transport

	once sync.Once
	err  error
}

func share(t feetech.Transport) *sharedLine {
	return &sharedLine{Transport: t}
}

func (l *sharedLine) Close() error {
	l.once.Do(func() {
		l.err = l.Transport.Close()
	})
	return l.err
}

// serialLine is a feetech.Transport over a go.bug.st/serial port.
type serialLine struct {
	port serial.Port
}

func openSerial(name string, baud int, timeout time.Duration) (*serialLine, error) {
	if name == "" {
		return nil, errors.New("serial port path is required")
	}
	port, err := serial.Open(name, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", name, err)
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	return &serialLine{port: port}, nil
}

func (s *serialLine) Read(p []byte) (int, error)  { return s.port.Read(p) }
func (s *serialLine) Write(p []byte) (int, error) { return s.port.Write(p) }
func (s *serialLine) Close() error                { return s.port.Close() }

func (s *serialLine) SetReadTimeout(timeout time.Duration) error {
	return s.port.SetReadTimeout(timeout)
}

// Flush drops stale input left over from a timed-out reply.
func (s *serialLine) Flush() error {
	return s.port.ResetInputBuffer()
}
