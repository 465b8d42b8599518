// Package bootshell implements the command protocol engine of a serial
// bootloader: a line-oriented shell that receives commands from a host over
// a byte link, dispatches them to handlers performing privileged operations
// (flash erase/program, option-byte protection, address-validated jumps,
// staged firmware updates) and finally hands control to the resident
// application.
//
// The package contains the protocol core and a set of collaborator
// interfaces (HostLink, FlashHAL, OptionBytesHAL, RecordStore,
// SystemControl) that isolate it from the hardware it runs on. A serial
// HostLink and a complete in-memory device emulation are included; the
// cmd/bootshell directory holds a development harness that runs the shell
// against the emulated device over a serial port or stdio.
package bootshell

import "github.com/pkg/errors"

// Protocol text constants.
const (
	// CRLF terminates every line of the wire protocol.
	CRLF = "\r\n"
	// TxtSuccess is the shared success marker emitted once per completed
	// command.
	TxtSuccess = "\r\nOK\r\n"

	txtPrompt = "\r\n> "
	txtReady  = "\r\nready\r\n"
	errPrefix = "\r\nERROR: "
)

// DefaultVersion is reported by the version command unless overridden.
const DefaultVersion = "v1.2.0"

// Hardware bundles the device collaborators the shell drives.
type Hardware struct {
	Flash       FlashHAL
	OptionBytes OptionBytesHAL
	Records     RecordStore
	System      SystemControl
}

// Options tailors a shell.
type Options struct {
	// Version is the text the version command reports.
	Version string
	// Groups selects the command groups compiled into the registry.
	// Empty enables every group.
	Groups []Group
}

// shellState is the top-level control state.
type shellState int

const (
	stateOperational shellState = iota
	stateErrorRecovery
	stateExit
)

// Shell is the bootloader's top-level control loop. One command is handled
// at a time, synchronously; there is no concurrent session handling.
type Shell struct {
	link     HostLink
	hw       Hardware
	profile  *Profile
	flash    *flashAccess
	updater  *updater
	registry *registry
	version  string
	exitReq  bool
	line     [maxLineLen]byte
}

// New assembles a shell over the given link and hardware.
func New(link HostLink, hw Hardware, profile *Profile, opts Options) (*Shell, error) {
	if link == nil {
		return nil, errors.New("bootshell: nil host link")
	}
	if hw.Flash == nil || hw.OptionBytes == nil || hw.Records == nil || hw.System == nil {
		return nil, errors.New("bootshell: incomplete hardware")
	}
	if profile == nil {
		profile = DefaultProfile()
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}

	version := opts.Version
	if version == "" {
		version = DefaultVersion
	}
	groups := opts.Groups
	if len(groups) == 0 {
		groups = AllGroups
	}

	s := &Shell{
		link:    link,
		hw:      hw,
		profile: profile,
		version: version,
	}
	s.flash = &flashAccess{hal: hw.Flash, ob: hw.OptionBytes, profile: profile}
	s.updater = &updater{
		flash:   s.flash,
		records: hw.Records,
		link:    link,
		system:  hw.System,
		profile: profile,
	}
	s.registry = newRegistry(groups)
	return s, nil
}

// Run drives the shell until an exit is requested or a fatal error occurs.
// It returns nil on a clean exit; the caller then proceeds to Launch the
// resident application.
func (s *Shell) Run() error {
	pkgLog.Infof("bootloader shell started")
	s.send(CRLF + "Bootloader shell " + s.version + CRLF +
		`If confused type "help"` + CRLF)

	var err error
	state := stateOperational

	// Activate a pending staged update before accepting any command. A
	// failure here is reported through the normal error path and the
	// shell keeps running on the previously active application.
	if s.registry.has("update-act") {
		if _, err = s.updater.activate(false); err != nil {
			state = stateErrorRecovery
		}
	}

	for {
		switch state {
		case stateOperational:
			err = s.stateOperation()
			if err != nil {
				state = stateErrorRecovery
			} else if s.exitReq {
				state = stateExit
			}

		case stateErrorRecovery:
			err = s.recoverError(err)
			if err != nil {
				state = stateExit
			} else {
				state = stateOperational
			}

		case stateExit:
			s.send("Exiting" + CRLF + CRLF)
			pkgLog.Infof("bootloader shell exiting")
			return err

		default:
			err = ErrUnknownState
			state = stateErrorRecovery
		}
	}
}

// Launch hands control to the resident application in the execution region.
// On real hardware this does not return.
func (s *Shell) Launch() {
	s.send("Jumping to user application" + CRLF)
	pkgLog.Infof("jumping to user application at %#x", s.profile.ActiveApp.Start)
	s.hw.System.EnterApplication(s.profile.ActiveApp.Start + 1)
}

// ProcessCommand parses and dispatches a single command line (without
// terminator) outside the shell loop.
func (s *Shell) ProcessCommand(line string) error {
	cmd, err := ParseCommand(line)
	if err != nil {
		return err
	}
	return s.registry.dispatch(s, cmd)
}

// stateOperation waits for one command line and processes it.
func (s *Shell) stateOperation() error {
	line, err := s.readLine()
	if err != nil {
		return err
	}
	return s.ProcessCommand(line)
}

// readLine prompts the host and reads bytes one at a time until CRLF. A full
// buffer with no terminator is an overflow; the partial line is dropped and
// the next read starts fresh.
func (s *Shell) readLine() (string, error) {
	if err := s.send(txtPrompt); err != nil {
		return "", err
	}
	buf := s.line[:]
	lastCR := false
	for i := 0; i < len(buf); i++ {
		if err := s.recv(buf[i : i+1]); err != nil {
			return "", err
		}
		if lastCR && buf[i] == '\n' {
			return string(buf[:i-1]), nil
		}
		lastCR = buf[i] == '\r'
	}
	return "", ErrReadOverflow
}

// recoverError is the single place that reports failures. Almost every code
// maps back to the operational state after its message is sent; only the
// fatal subset terminates the shell.
func (s *Shell) recoverError(err error) error {
	if err == nil {
		return nil
	}
	code := CodeOf(err)
	pkgLog.Warningf("recovering from error: %v", err)
	if msg := code.HostMessage(); msg != "" {
		// Reporting is best effort; a send failure here must not mask
		// the original error.
		s.send(errPrefix + msg + CRLF)
	}
	if code.Fatal() {
		return err
	}
	return nil
}

func (s *Shell) send(text string) error {
	if err := s.link.Send([]byte(text)); err != nil {
		pkgLog.Warningf("send failed: %v", err)
		return ErrHalTx
	}
	return nil
}

func (s *Shell) recv(buf []byte) error {
	if err := s.link.Recv(buf); err != nil {
		if code := CodeOf(err); code != ErrUnknown {
			return code
		}
		pkgLog.Warningf("receive failed: %v", err)
		return ErrHalRx
	}
	return nil
}
