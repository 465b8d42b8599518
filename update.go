package bootshell

// updater drives the two-phase application update protocol: update-new
// stages a validated image next to the running one, update-act copies a
// staged image into the execution region. A failed or interrupted attempt in
// either phase leaves the previously active application bootable.
type updater struct {
	flash   *flashAccess
	records RecordStore
	link    HostLink
	system  SystemControl
	profile *Profile
}

// stageNew erases the staging region, receives length bytes in checksummed
// chunks, verifies the written region by reading it back, then marks the
// staged image ready in the boot record and restarts. The boot record is not
// touched until everything else has succeeded.
func (u *updater) stageNew(length uint32, kind ChecksumKind, typ AppType) error {
	if length == 0 {
		return ErrInvalidSize
	}
	if length > u.profile.NewApp.MaxLen {
		return ErrNewAppTooLong
	}
	if err := kind.ValidateLength(int(length)); err != nil {
		return err
	}

	pkgLog.Infof("staging %d byte %s image, checksum %s", length, typ, kind)

	region := u.profile.NewApp
	if err := u.flash.eraseRange(region.FirstSector, region.SectorCount); err != nil {
		return err
	}
	digest, err := u.receiveChunked(region.Start, length, kind)
	if err != nil {
		return err
	}

	// Read the region back and confirm flash holds what was received,
	// guarding against silent programming failures.
	written := make([]byte, length)
	if err := u.flash.read(region.Start, written); err != nil {
		return err
	}
	if err := Verify(kind, written, digest); err != nil {
		return err
	}

	rec, err := loadBootRecord(u.records)
	if err != nil {
		return err
	}
	rec.New = AppMeta{Checksum: kind, Type: typ, Length: length, Digest: digest}
	rec.NewAppReady = true
	if err := storeBootRecord(u.records, rec); err != nil {
		return err
	}

	u.send(TxtSuccess)
	u.send("Restarting..." + CRLF)
	pkgLog.Infof("new application staged, restarting")
	u.system.Restart()
	return nil
}

// receiveChunked reads length bytes from the host in write-chunk sized
// pieces, programming each into flash at addr onwards. Every chunk is
// followed by its own digest of the selected kind; the chunk is programmed
// before the digest check, so corrupted data reaches flash but is always
// reported. The returned digest covers all received bytes.
func (u *updater) receiveChunked(addr uint32, length uint32, kind ChecksumKind) ([]byte, error) {
	total := kind.newDigest()
	chunkDigest := make([]byte, kind.DigestSize())
	buf := make([]byte, u.profile.WriteChunk)

	for remaining := length; remaining > 0; {
		n := uint32(u.profile.WriteChunk)
		if remaining < n {
			n = remaining
		}
		chunk := buf[:n]

		if err := u.send(txtReady); err != nil {
			return nil, err
		}
		if err := u.recv(chunk); err != nil {
			return nil, err
		}
		if err := u.recv(chunkDigest); err != nil {
			return nil, err
		}
		if err := u.flash.write(addr, chunk); err != nil {
			return nil, err
		}
		if err := Verify(kind, chunk, chunkDigest); err != nil {
			return nil, err
		}
		if total != nil {
			total.Write(chunk)
		}
		addr += n
		remaining -= n
	}
	if total == nil {
		return nil, nil
	}
	return total.Sum(nil), nil
}

// activate runs the second update phase. Without a ready flag (and without
// force) it is a no-op. Otherwise the staged image is re-verified in place,
// decoded per its type and programmed into the execution region; only then
// is the record advanced and the device restarted. It returns whether a
// restart was requested.
func (u *updater) activate(force bool) (bool, error) {
	rec, err := loadBootRecord(u.records)
	if err != nil {
		return false, err
	}
	if !rec.NewAppReady && !force {
		pkgLog.Infof("no staged application, nothing to activate")
		return false, nil
	}
	if rec.New.Length == 0 {
		// Forced activation with nothing ever staged.
		pkgLog.Infof("staging region empty, nothing to activate")
		return false, nil
	}

	staged := make([]byte, rec.New.Length)
	if err := u.flash.read(u.profile.NewApp.Start, staged); err != nil {
		return false, err
	}
	// Re-verify in place: flash may have decayed between staging and
	// activation, and a corrupted image must never replace a working one.
	if err := Verify(rec.New.Checksum, staged, rec.New.Digest); err != nil {
		return false, err
	}

	segs, err := decodeImage(rec.New.Type, staged, u.profile.ActiveApp.Start)
	if err != nil {
		return false, err
	}
	for _, seg := range segs {
		if !u.inActiveRegion(seg) {
			return false, ErrWriteInvalidAddr
		}
	}

	region := u.profile.ActiveApp
	if err := u.flash.eraseRange(region.FirstSector, region.SectorCount); err != nil {
		return false, err
	}
	for _, seg := range segs {
		if err := u.programSegment(seg); err != nil {
			return false, err
		}
	}

	rec.Active = rec.New
	rec.NewAppReady = false
	if err := storeBootRecord(u.records, rec); err != nil {
		return false, err
	}

	u.send(TxtSuccess)
	u.send("Application updated. Restarting..." + CRLF)
	pkgLog.Infof("active application updated, restarting")
	u.system.Restart()
	return true, nil
}

func (u *updater) inActiveRegion(seg Segment) bool {
	region := u.profile.ActiveApp
	end := uint64(seg.Addr) + uint64(len(seg.Data))
	return seg.Addr >= region.Start && end <= uint64(region.Start)+uint64(region.MaxLen)
}

// programSegment writes one decoded segment chunk by chunk.
func (u *updater) programSegment(seg Segment) error {
	addr, data := seg.Addr, seg.Data
	for len(data) > 0 {
		n := u.profile.WriteChunk
		if len(data) < n {
			n = len(data)
		}
		if err := u.flash.write(addr, data[:n]); err != nil {
			return err
		}
		addr += uint32(n)
		data = data[n:]
	}
	return nil
}

func (u *updater) send(text string) error {
	if err := u.link.Send([]byte(text)); err != nil {
		pkgLog.Warningf("send failed: %v", err)
		return ErrHalTx
	}
	return nil
}

func (u *updater) recv(buf []byte) error {
	if err := u.link.Recv(buf); err != nil {
		if code := CodeOf(err); code != ErrUnknown {
			return code
		}
		pkgLog.Warningf("receive failed: %v", err)
		return ErrHalRx
	}
	return nil
}

// verifyStaged is used by tests and diagnostics to re-check the staged image
// without activating it.
func (u *updater) verifyStaged() error {
	rec, err := loadBootRecord(u.records)
	if err != nil {
		return err
	}
	if rec.New.Length == 0 {
		return ErrInvalidSize
	}
	staged := make([]byte, rec.New.Length)
	if err := u.flash.read(u.profile.NewApp.Start, staged); err != nil {
		return err
	}
	return Verify(rec.New.Checksum, staged, rec.New.Digest)
}
