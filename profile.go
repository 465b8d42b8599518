package bootshell

import "github.com/pkg/errors"

// Region is a named span of addressable memory, bounds inclusive.
type Region struct {
	Name  string `yaml:"name"`
	Start uint32 `yaml:"start"`
	End   uint32 `yaml:"end"`
}

func (r Region) contains(addr uint32) bool {
	return addr >= r.Start && addr <= r.End
}

// AppRegion describes one flash area holding an application image: where it
// starts, which sectors back it and the largest image it accepts.
type AppRegion struct {
	Start       uint32 `yaml:"start"`
	MaxLen      uint32 `yaml:"max_len"`
	FirstSector int    `yaml:"first_sector"`
	SectorCount int    `yaml:"sector_count"`
}

func (a AppRegion) overlaps(b AppRegion) bool {
	return a.Start < b.Start+b.MaxLen && b.Start < a.Start+a.MaxLen
}

// defaultWriteChunk bounds a single chunk transfer. It matches the largest
// buffer the line reader and update receiver keep on hand.
const defaultWriteChunk = 1024

// Profile describes the memory layout of the device the shell runs on.
// Jumpable regions are expressed as data so that porting to another
// microcontroller family is a profile change, not a code change.
type Profile struct {
	FlashStart  uint32 `yaml:"flash_start"`
	FlashEnd    uint32 `yaml:"flash_end"`
	SectorTotal int    `yaml:"sector_total"`
	// WriteChunk is the largest byte count a single flash write accepts.
	// Larger transfers are split into successive chunks by the host.
	WriteChunk int      `yaml:"write_chunk"`
	Jumpable   []Region `yaml:"jumpable"`
	// NewApp is the staging region; ActiveApp is the execution region.
	NewApp    AppRegion `yaml:"new_app"`
	ActiveApp AppRegion `yaml:"active_app"`
}

// DefaultProfile returns the STM32F407 memory map: 1 MiB flash in 12 sectors,
// bootloader on sectors 0-2, active application on sectors 3-6 and the
// staging area on sectors 7-10.
func DefaultProfile() *Profile {
	return &Profile{
		FlashStart:  0x08000000,
		FlashEnd:    0x080FFFFF,
		SectorTotal: 12,
		WriteChunk:  defaultWriteChunk,
		Jumpable: []Region{
			{Name: "FLASH", Start: 0x08000000, End: 0x080FFFFF},
			{Name: "SYSMEM", Start: 0x1FFF0000, End: 0x1FFF77FF},
			{Name: "CCMRAM", Start: 0x10000000, End: 0x1000FFFF},
			{Name: "SRAM1", Start: 0x20000000, End: 0x2001BFFF},
			{Name: "SRAM2", Start: 0x2001C000, End: 0x2001FFFF},
			{Name: "BKPSRAM", Start: 0x40024000, End: 0x40024FFF},
		},
		ActiveApp: AppRegion{
			Start:       0x0800C000,
			MaxLen:      0x54000,
			FirstSector: 3,
			SectorCount: 4,
		},
		NewApp: AppRegion{
			Start:       0x08060000,
			MaxLen:      0x54000,
			FirstSector: 7,
			SectorCount: 4,
		},
	}
}

// Validate checks the structural invariants the update protocol relies on.
func (p *Profile) Validate() error {
	if p.SectorTotal <= 0 {
		return errors.New("profile: sector total must be positive")
	}
	if p.WriteChunk <= 0 {
		return errors.New("profile: write chunk must be positive")
	}
	if p.FlashEnd <= p.FlashStart {
		return errors.New("profile: flash end before flash start")
	}
	if p.NewApp.overlaps(p.ActiveApp) {
		return errors.New("profile: staging and execution regions overlap")
	}
	if p.NewApp.MaxLen < p.ActiveApp.MaxLen {
		return errors.New("profile: staging region smaller than largest supported image")
	}
	return nil
}

// ValidateJumpAddress reports whether addr lies inside one of the device's
// jumpable regions. Peripheral register space is never listed, so it is
// always rejected.
func (p *Profile) ValidateJumpAddress(addr uint32) error {
	for _, r := range p.Jumpable {
		if r.contains(addr) {
			return nil
		}
	}
	return ErrJumpInvalidAddr
}

// readable reports whether the [addr, addr+n) range may be read over the
// shell. The readable set is the jumpable region table.
func (p *Profile) readable(addr uint32, n uint32) bool {
	if n == 0 {
		return false
	}
	end := uint64(addr) + uint64(n) - 1
	for _, r := range p.Jumpable {
		if r.contains(addr) && end <= uint64(r.End) {
			return true
		}
	}
	return false
}

// inFlash reports whether the [addr, addr+n) range lies inside flash.
func (p *Profile) inFlash(addr uint32, n uint32) bool {
	return addr >= p.FlashStart && uint64(addr)+uint64(n) <= uint64(p.FlashEnd)+1
}

// sectorMask is the bitmask with one bit per sector, LSB = sector 0.
func (p *Profile) sectorMask() uint32 {
	return 1<<uint(p.SectorTotal) - 1
}
