package bootshell

import (
	"time"

	"github.com/pkg/errors"
	"github.com/tarm/serial"
)

type serialLink struct {
	portConfig serial.Config
	port       *serial.Port
}

// NewSerialLink creates a HostLink over a serial port. The read timeout
// bounds how long Recv waits before reporting ErrRecvTimeout, so a stalled
// host never blocks the shell forever.
func NewSerialLink(port string, baud int, readTimeout time.Duration) (HostLink, error) {
	l := new(serialLink)

	l.portConfig.Name = port
	l.portConfig.Baud = baud
	l.portConfig.ReadTimeout = readTimeout

	var err error
	l.port, err = serial.OpenPort(&l.portConfig)
	if err != nil {
		return nil, errors.Wrapf(err, "opening port %v", port)
	}
	// On Linux with USB serial ports, in order for flush to work properly
	// we need to delay a little before flushing to make sure that any
	// received data has made its way up the driver stack.
	// See https://stackoverflow.com/questions/13013387/clearing-the-serial-ports-buffer
	time.Sleep(time.Millisecond * 100)
	l.port.Flush()
	return l, nil
}

func (l *serialLink) Send(data []byte) error {
	n, err := l.port.Write(data)
	if err != nil {
		return err
	}
	if n != len(data) {
		return errors.Errorf("short write: %v of %v bytes", n, len(data))
	}
	return nil
}

func (l *serialLink) Recv(buf []byte) error {
	filled := 0
	for filled < len(buf) {
		n, err := l.port.Read(buf[filled:])
		if err != nil {
			return err
		}
		if n == 0 {
			// tarm/serial reports an expired ReadTimeout as a
			// zero-byte read.
			return ErrRecvTimeout
		}
		filled += n
	}
	return nil
}

func (l *serialLink) Close() error {
	return l.port.Close()
}
