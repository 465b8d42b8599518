package bootshell

import "github.com/pkg/errors"

// MemDevice emulates a complete device in memory: uniform-sector flash,
// option bytes, a boot record slot and system control. It implements
// FlashHAL, OptionBytesHAL, RecordStore and SystemControl, and is the device
// behind the development harness and the package tests.
type MemDevice struct {
	// ID is reported as the chip identification number.
	ID uint32
	// Restarts counts Restart calls.
	Restarts int
	// Jumped records every EnterApplication target.
	Jumped []uint32

	base        uint32
	sectorSize  uint32
	sectorCount int
	flash       []byte
	ram         []byte
	ramBase     uint32

	flashLocked bool
	obLocked    bool
	nwrp        uint32
	rdp         uint8

	record []byte
}

// NewMemDevice creates a device with count uniform sectors of size bytes of
// flash starting at base. Flash comes up erased, unprotected and locked.
func NewMemDevice(base uint32, size uint32, count int) *MemDevice {
	d := &MemDevice{
		ID:          0x413,
		base:        base,
		sectorSize:  size,
		sectorCount: count,
		flash:       make([]byte, size*uint32(count)),
		ram:         make([]byte, 0x1000),
		ramBase:     0x20000000,
		flashLocked: true,
		obLocked:    true,
		nwrp:        (1 << uint(count)) - 1,
		rdp:         0xAA,
	}
	for i := range d.flash {
		d.flash[i] = 0xFF
	}
	return d
}

// Profile returns a profile matching the device's geometry: the first sector
// is reserved for the bootloader, the remainder is split evenly between the
// execution and staging regions.
func (d *MemDevice) Profile() *Profile {
	end := d.base + d.sectorSize*uint32(d.sectorCount) - 1
	appSectors := (d.sectorCount - 1) / 2
	activeFirst := 1
	newFirst := activeFirst + appSectors
	return &Profile{
		FlashStart:  d.base,
		FlashEnd:    end,
		SectorTotal: d.sectorCount,
		WriteChunk:  defaultWriteChunk,
		Jumpable: []Region{
			{Name: "FLASH", Start: d.base, End: end},
			{Name: "RAM", Start: d.ramBase, End: d.ramBase + uint32(len(d.ram)) - 1},
		},
		ActiveApp: AppRegion{
			Start:       d.base + d.sectorSize*uint32(activeFirst),
			MaxLen:      d.sectorSize * uint32(appSectors),
			FirstSector: activeFirst,
			SectorCount: appSectors,
		},
		NewApp: AppRegion{
			Start:       d.base + d.sectorSize*uint32(newFirst),
			MaxLen:      d.sectorSize * uint32(appSectors),
			FirstSector: newFirst,
			SectorCount: appSectors,
		},
	}
}

// FlashHAL

func (d *MemDevice) Unlock() error {
	d.flashLocked = false
	return nil
}

func (d *MemDevice) Lock() {
	d.flashLocked = true
}

func (d *MemDevice) EraseSectors(first, count int) error {
	if d.flashLocked {
		return errors.New("flash locked")
	}
	if first < 0 || count < 1 || first+count > d.sectorCount {
		return errors.Errorf("erase out of range: first %v count %v", first, count)
	}
	for s := first; s < first+count; s++ {
		if d.protected(s) {
			return errors.Errorf("sector %v write protected", s)
		}
	}
	start := uint32(first) * d.sectorSize
	end := start + uint32(count)*d.sectorSize
	for i := start; i < end; i++ {
		d.flash[i] = 0xFF
	}
	return nil
}

func (d *MemDevice) MassErase() error {
	return d.EraseSectors(0, d.sectorCount)
}

// Program emulates NOR flash: writes can only clear bits, so programming
// over unerased data corrupts it instead of replacing it.
func (d *MemDevice) Program(addr uint32, data []byte) error {
	if d.flashLocked {
		return errors.New("flash locked")
	}
	off := int64(addr) - int64(d.base)
	if off < 0 || off+int64(len(data)) > int64(len(d.flash)) {
		return errors.Errorf("program out of range: addr %#x len %v", addr, len(data))
	}
	for i, b := range data {
		pos := off + int64(i)
		if d.protected(int(uint32(pos) / d.sectorSize)) {
			return errors.Errorf("address %#x write protected", addr+uint32(i))
		}
		d.flash[pos] &= b
	}
	return nil
}

func (d *MemDevice) Read(addr uint32, buf []byte) error {
	if off := int64(addr) - int64(d.base); off >= 0 && off+int64(len(buf)) <= int64(len(d.flash)) {
		copy(buf, d.flash[off:])
		return nil
	}
	if off := int64(addr) - int64(d.ramBase); off >= 0 && off+int64(len(buf)) <= int64(len(d.ram)) {
		copy(buf, d.ram[off:])
		return nil
	}
	return errors.Errorf("read out of range: addr %#x len %v", addr, len(buf))
}

func (d *MemDevice) protected(sector int) bool {
	return d.nwrp&(1<<uint(sector)) == 0
}

// OptionBytesHAL. The FlashHAL Unlock/Lock pair above doubles as the
// option-byte lock; the emulation keeps a single flag per lock.

type memOptionBytes struct{ d *MemDevice }

// OptionBytes returns the device's option-byte view.
func (d *MemDevice) OptionBytes() OptionBytesHAL {
	return memOptionBytes{d}
}

func (o memOptionBytes) Unlock() error {
	o.d.obLocked = false
	return nil
}

func (o memOptionBytes) Lock() {
	o.d.obLocked = true
}

func (o memOptionBytes) WriteProtection() (uint32, error) {
	return o.d.nwrp, nil
}

func (o memOptionBytes) ProgramWriteProtection(bits uint32) error {
	if o.d.obLocked {
		return errors.New("option bytes locked")
	}
	o.d.nwrp = bits
	return nil
}

func (o memOptionBytes) ReadProtectionLevel() (uint8, error) {
	return o.d.rdp, nil
}

// SetReadProtection sets the raw RDP option byte (0xAA level 0, 0xCC level
// 2, anything else level 1).
func (d *MemDevice) SetReadProtection(rdp uint8) {
	d.rdp = rdp
}

// RecordStore

func (d *MemDevice) Load() ([]byte, error) {
	if d.record == nil {
		return nil, nil
	}
	out := make([]byte, len(d.record))
	copy(out, d.record)
	return out, nil
}

func (d *MemDevice) Store(data []byte) error {
	d.record = make([]byte, len(data))
	copy(d.record, data)
	return nil
}

// SystemControl

func (d *MemDevice) Restart() {
	d.Restarts++
}

func (d *MemDevice) EnterApplication(addr uint32) {
	d.Jumped = append(d.Jumped, addr)
}

func (d *MemDevice) DeviceID() uint32 {
	return d.ID
}

// Hardware bundles the device into the shell's hardware set.
func (d *MemDevice) Hardware() Hardware {
	return Hardware{
		Flash:       d,
		OptionBytes: d.OptionBytes(),
		Records:     d,
		System:      d,
	}
}
