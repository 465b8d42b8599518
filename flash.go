package bootshell

// flashAccess validates addresses, sectors and sizes before letting any
// operation near the flash or option-byte hardware. Each mutating call is
// bracketed by an unlock that is undone on every path.
type flashAccess struct {
	hal     FlashHAL
	ob      OptionBytesHAL
	profile *Profile
}

// eraseRange erases count sectors starting at first. Both bounds are checked
// against the profile before hardware is touched; an underlying failure is
// reported, never retried.
func (f *flashAccess) eraseRange(first, count int) error {
	if first < 0 || first >= f.profile.SectorTotal {
		return ErrInvalidSector
	}
	if count < 1 || first+count-1 >= f.profile.SectorTotal {
		return ErrInvalidSectorCount
	}
	if err := f.hal.Unlock(); err != nil {
		pkgLog.Warningf("flash unlock failed: %v", err)
		return ErrHalUnlock
	}
	defer f.hal.Lock()

	if err := f.hal.EraseSectors(first, count); err != nil {
		pkgLog.Warningf("erase of sectors %d..%d failed: %v", first, first+count-1, err)
		return ErrHalErase
	}
	return nil
}

// massErase erases every sector.
func (f *flashAccess) massErase() error {
	if err := f.hal.Unlock(); err != nil {
		pkgLog.Warningf("flash unlock failed: %v", err)
		return ErrHalUnlock
	}
	defer f.hal.Lock()

	if err := f.hal.MassErase(); err != nil {
		pkgLog.Warningf("mass erase failed: %v", err)
		return ErrHalErase
	}
	return nil
}

// write programs data at start. The whole range must fall inside flash and
// the length must not exceed the write chunk limit; bigger images are sent
// chunk by chunk.
func (f *flashAccess) write(start uint32, data []byte) error {
	if len(data) > f.profile.WriteChunk {
		return ErrWriteTooBig
	}
	if !f.profile.inFlash(start, uint32(len(data))) {
		return ErrWriteInvalidAddr
	}
	if err := f.hal.Unlock(); err != nil {
		pkgLog.Warningf("flash unlock failed: %v", err)
		return ErrHalUnlock
	}
	defer f.hal.Lock()

	if err := f.hal.Program(start, data); err != nil {
		pkgLog.Warningf("program of %d bytes at %#x failed: %v", len(data), start, err)
		return ErrHalWrite
	}
	return nil
}

// read fills buf from addr. Only addresses inside the profile's region table
// may be read.
func (f *flashAccess) read(addr uint32, buf []byte) error {
	if !f.profile.readable(addr, uint32(len(buf))) {
		return ErrSegmentation
	}
	if err := f.hal.Read(addr, buf); err != nil {
		pkgLog.Warningf("read of %d bytes at %#x failed: %v", len(buf), addr, err)
		return ErrHalRead
	}
	return nil
}

// setWriteProtection enables or disables write protection for the sectors
// selected by mask (LSB = sector 0, 1 = affect). The nWRP bits are active
// low, so enabling protection clears bits and disabling sets them.
func (f *flashAccess) setWriteProtection(mask uint32, enable bool) error {
	mask &= f.profile.sectorMask()

	if err := f.ob.Unlock(); err != nil {
		pkgLog.Warningf("option byte unlock failed: %v", err)
		return ErrHalUnlock
	}
	defer f.ob.Lock()

	bits, err := f.ob.WriteProtection()
	if err != nil {
		pkgLog.Warningf("option byte read failed: %v", err)
		return ErrHalRead
	}
	if enable {
		bits &^= mask
	} else {
		bits |= mask
	}
	if err := f.ob.ProgramWriteProtection(bits); err != nil {
		pkgLog.Warningf("option byte program failed: %v", err)
		return ErrHalWrite
	}
	return nil
}

// protectionStatus returns the protection state per sector with 1 meaning
// protected, inverting the active-low hardware bits.
func (f *flashAccess) protectionStatus() (uint32, error) {
	if err := f.ob.Unlock(); err != nil {
		pkgLog.Warningf("option byte unlock failed: %v", err)
		return 0, ErrHalUnlock
	}
	defer f.ob.Lock()

	bits, err := f.ob.WriteProtection()
	if err != nil {
		pkgLog.Warningf("option byte read failed: %v", err)
		return 0, ErrHalRead
	}
	return ^bits & f.profile.sectorMask(), nil
}

// readProtectionLevel maps the raw RDP byte to its level: 0xAA is level 0,
// 0xCC is level 2 and any other value is level 1.
func (f *flashAccess) readProtectionLevel() (int, error) {
	rdp, err := f.ob.ReadProtectionLevel()
	if err != nil {
		pkgLog.Warningf("rdp read failed: %v", err)
		return 0, ErrHalRead
	}
	switch rdp {
	case 0xAA:
		return 0, nil
	case 0xCC:
		return 2, nil
	default:
		return 1, nil
	}
}
