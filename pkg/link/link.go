// Package link carries single-byte motion commands between the host and the
// robot over a serial port.
package link

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.bug.st/serial"

	"github.com/AhmedElnaggar-275/Robot/pkg/locomotion"
)

var log = logrus.WithFields(logrus.Fields{
	"pkg": "link",
})

const (
	DefaultBaud = 115200

	// Bytes buffered between the reader goroutine and Poll. The host sends
	// a byte every few frames, so this only fills if the loop stalls.
	bufferSize = 64

	readTimeout = 50 * time.Millisecond
)

// Link turns a byte stream into a non-blocking command source. A goroutine
// reads the stream; Poll only ever drains what has already arrived.
type Link struct {
	r     io.Reader
	bytes chan byte
	done  chan struct{}

	closeOnce sync.Once
	closer    io.Closer

	mu      sync.Mutex
	err     error
	dropped int
}

// New starts reading r. If r is an io.Closer it is closed by Close.
func New(r io.Reader) *Link {
	l := &Link{
		r:     r,
		bytes: make(chan byte, bufferSize),
		done:  make(chan struct{}),
	}
	if c, ok := r.(io.Closer); ok {
		l.closer = c
	}
	go l.read()
	return l
}

// Open opens a serial port and reads commands from it.
func Open(port string, baud int) (*Link, error) {
	p, err := Dial(port, baud)
	if err != nil {
		return nil, err
	}
	// Return from Read periodically so Close is noticed.
	if err := p.SetReadTimeout(readTimeout); err != nil {
		p.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	return New(p), nil
}

// Dial opens a serial port for writing commands.
func Dial(port string, baud int) (serial.Port, error) {
	if baud <= 0 {
		baud = DefaultBaud
	}
	p, err := serial.Open(port, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", port, err)
	}
	return p, nil
}

// Ports lists serial ports, skipping Bluetooth ones.
func Ports() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list ports: %w", err)
	}

	var out []string
	for _, port := range ports {
		// Skip Bluetooth ports on macOS
		if strings.Contains(port, "Bluetooth") {
			continue
		}
		out = append(out, port)
	}
	return out, nil
}

func (l *Link) read() {
	buf := make([]byte, bufferSize)
	for {
		n, err := l.r.Read(buf)
		for _, b := range buf[:n] {
			select {
			case l.bytes <- b:
			default:
				l.mu.Lock()
				l.dropped++
				l.mu.Unlock()
			}
		}

		if err != nil {
			select {
			case <-l.done:
			default:
				if !errors.Is(err, io.EOF) {
					log.WithError(err).Warn("read failed")
				}
				l.mu.Lock()
				l.err = err
				l.mu.Unlock()
			}
			return
		}

		select {
		case <-l.done:
			return
		default:
		}
	}
}

// Poll returns the next received byte, if any, without blocking.
func (l *Link) Poll() (byte, bool) {
	select {
	case b := <-l.bytes:
		return b, true
	default:
		return 0, false
	}
}

// Err returns the error that stopped the reader, if any.
func (l *Link) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Dropped returns the number of bytes discarded because the buffer was full.
func (l *Link) Dropped() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

// Close stops the reader and closes the underlying stream.
func (l *Link) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)
		if l.closer != nil {
			err = l.closer.Close()
		}
	})
	return err
}

// Send writes a single command byte to w.
func Send(w io.Writer, cmd locomotion.Command) error {
	b := cmd.Byte()
	if b == 0 {
		return fmt.Errorf("cannot send %v", cmd)
	}
	_, err := w.Write([]byte{b})
	return err
}
