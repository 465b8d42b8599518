package bootshell

// The interfaces in this file are the boundary between the protocol engine
// and the device it runs on. The shell calls them and interprets only their
// success or failure; peripheral bring-up, interrupt wiring and register
// access stay on the other side.

// HostLink moves raw bytes between the bootloader and the host.
type HostLink interface {
	// Send transmits buf in full.
	Send(buf []byte) error
	// Recv fills buf in full. Implementations should bound the wait and
	// return ErrRecvTimeout (possibly wrapped) when the host goes silent
	// mid-transfer.
	Recv(buf []byte) error
}

// FlashHAL exposes the raw flash peripheral. All range and sector validation
// happens above this interface; implementations only touch hardware.
type FlashHAL interface {
	// Unlock opens the flash control registers for mutation.
	Unlock() error
	// Lock closes them again. Every Unlock is paired with a Lock on all
	// paths.
	Lock()
	// EraseSectors erases count sectors starting at first.
	EraseSectors(first, count int) error
	// MassErase erases the whole flash.
	MassErase() error
	// Program writes data starting at addr.
	Program(addr uint32, data []byte) error
	// Read fills buf from flash or RAM starting at addr.
	Read(addr uint32, buf []byte) error
}

// OptionBytesHAL accesses the option-byte configuration fuses.
type OptionBytesHAL interface {
	Unlock() error
	Lock()
	// WriteProtection returns the raw nWRP bits. The bits are active low:
	// a cleared bit means the corresponding sector is protected.
	WriteProtection() (uint32, error)
	// ProgramWriteProtection persists new raw nWRP bits.
	ProgramWriteProtection(bits uint32) error
	// ReadProtectionLevel returns the raw RDP option byte.
	ReadProtectionLevel() (uint8, error)
}

// RecordStore persists the boot record in non-volatile storage. Store must
// replace the whole record or leave the previous one intact; Load returns an
// empty slice when no record was ever written.
type RecordStore interface {
	Load() ([]byte, error)
	Store(data []byte) error
}

// SystemControl covers the operations that end the bootloader's life.
type SystemControl interface {
	// Restart resets the device. On real hardware it does not return.
	Restart()
	// EnterApplication transfers control to the code at addr. On real
	// hardware it does not return.
	EnterApplication(addr uint32)
	// DeviceID returns the chip identification number.
	DeviceID() uint32
}
