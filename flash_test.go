package bootshell

import "testing"

// testFlash builds a flashAccess over a fresh emulated device with 12
// uniform 4 KiB sectors.
func testFlash(t *testing.T) (*flashAccess, *MemDevice) {
	t.Helper()
	dev := NewMemDevice(0x08000000, 0x1000, 12)
	prof := dev.Profile()
	if err := prof.Validate(); err != nil {
		t.Fatalf("generated profile invalid: %v", err)
	}
	return &flashAccess{hal: dev, ob: dev.OptionBytes(), profile: prof}, dev
}

func TestValidateJumpAddress(t *testing.T) {
	p := DefaultProfile()
	tests := []struct {
		name    string
		addr    uint32
		wantErr bool
	}{
		{name: "flash start", addr: 0x08000000},
		{name: "flash end", addr: 0x080FFFFF},
		{name: "application base", addr: 0x0800C000},
		{name: "system memory", addr: 0x1FFF0000},
		{name: "ccm ram", addr: 0x10000000},
		{name: "sram1", addr: 0x20000000},
		{name: "sram2", addr: 0x2001C000},
		{name: "backup sram", addr: 0x40024000},
		{name: "below flash", addr: 0x07FFFFFF, wantErr: true},
		{name: "above flash", addr: 0x08100000, wantErr: true},
		{name: "peripheral register", addr: 0x40020000, wantErr: true},
		{name: "null", addr: 0x00000000, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p.ValidateJumpAddress(tt.addr)
			if tt.wantErr {
				if CodeOf(err) != ErrJumpInvalidAddr {
					t.Fatalf("error = %v, want %v", err, ErrJumpInvalidAddr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestEraseRange(t *testing.T) {
	tests := []struct {
		name    string
		first   int
		count   int
		wantErr ErrCode
	}{
		{name: "middle sectors", first: 2, count: 3},
		{name: "first sector", first: 0, count: 1},
		{name: "all sectors", first: 0, count: 12},
		{name: "last sector", first: 11, count: 1},
		{name: "negative sector", first: -1, count: 1, wantErr: ErrInvalidSector},
		{name: "sector out of range", first: 12, count: 1, wantErr: ErrInvalidSector},
		{name: "zero count", first: 0, count: 0, wantErr: ErrInvalidSectorCount},
		{name: "count past end", first: 10, count: 5, wantErr: ErrInvalidSectorCount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, dev := testFlash(t)
			// Dirty the flash so erases are observable.
			dev.Unlock()
			if err := dev.Program(0x08002000, []byte{0x00, 0x00}); err != nil {
				t.Fatalf("seed program: %v", err)
			}
			dev.Lock()

			err := f.eraseRange(tt.first, tt.count)
			if tt.wantErr != ErrUnknown {
				if CodeOf(err) != tt.wantErr {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !dev.flashLocked {
				t.Error("flash left unlocked after erase")
			}
		})
	}
}

func TestWrite(t *testing.T) {
	f, dev := testFlash(t)

	data := []byte{0x01, 0x02, 0x03, 0x04}
	if err := f.write(0x08001000, data); err != nil {
		t.Fatalf("write: %v", err)
	}
	got := make([]byte, 4)
	if err := dev.Read(0x08001000, got); err != nil {
		t.Fatalf("read back: %v", err)
	}
	for i := range data {
		if got[i] != data[i] {
			t.Fatalf("flash[%d] = %#x, want %#x", i, got[i], data[i])
		}
	}
	if !dev.flashLocked {
		t.Error("flash left unlocked after write")
	}

	if err := f.write(0x08001000, make([]byte, f.profile.WriteChunk+1)); CodeOf(err) != ErrWriteTooBig {
		t.Errorf("oversized write error = %v, want %v", err, ErrWriteTooBig)
	}
	if err := f.write(0x20000000, data); CodeOf(err) != ErrWriteInvalidAddr {
		t.Errorf("ram write error = %v, want %v", err, ErrWriteInvalidAddr)
	}
	end := f.profile.FlashEnd
	if err := f.write(end-1, data); CodeOf(err) != ErrWriteInvalidAddr {
		t.Errorf("overrun write error = %v, want %v", err, ErrWriteInvalidAddr)
	}
}

func TestRead(t *testing.T) {
	f, dev := testFlash(t)
	dev.ram[0] = 0x42

	buf := make([]byte, 1)
	if err := f.read(0x20000000, buf); err != nil {
		t.Fatalf("ram read: %v", err)
	}
	if buf[0] != 0x42 {
		t.Errorf("ram read = %#x, want 0x42", buf[0])
	}

	if err := f.read(0x40020000, buf); CodeOf(err) != ErrSegmentation {
		t.Errorf("peripheral read error = %v, want %v", err, ErrSegmentation)
	}
	if err := f.read(0x08000000, nil); CodeOf(err) != ErrSegmentation {
		t.Errorf("empty read error = %v, want %v", err, ErrSegmentation)
	}
}

func TestWriteProtection(t *testing.T) {
	f, dev := testFlash(t)

	status, err := f.protectionStatus()
	if err != nil {
		t.Fatalf("protectionStatus: %v", err)
	}
	if status != 0 {
		t.Fatalf("initial status = %#b, want 0", status)
	}

	if err := f.setWriteProtection(0b0110, true); err != nil {
		t.Fatalf("enable: %v", err)
	}
	if status, _ = f.protectionStatus(); status != 0b0110 {
		t.Fatalf("status after enable = %#b, want 0b110", status)
	}

	// Protected sectors reject erases and writes at the device level.
	if err := f.eraseRange(1, 1); CodeOf(err) != ErrHalErase {
		t.Errorf("protected erase error = %v, want %v", err, ErrHalErase)
	}
	if err := f.write(0x08001000, []byte{0}); CodeOf(err) != ErrHalWrite {
		t.Errorf("protected write error = %v, want %v", err, ErrHalWrite)
	}

	if err := f.setWriteProtection(0b0010, false); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if status, _ = f.protectionStatus(); status != 0b0100 {
		t.Fatalf("status after disable = %#b, want 0b100", status)
	}

	// Mask bits above the sector count are ignored.
	if err := f.setWriteProtection(0xFFFFF000, true); err != nil {
		t.Fatalf("out-of-range enable: %v", err)
	}
	if status, _ = f.protectionStatus(); status != 0b0100 {
		t.Fatalf("status after masked enable = %#b, want 0b100", status)
	}
	if dev.obLocked != true {
		t.Error("option bytes left unlocked")
	}
}

func TestReadProtectionLevel(t *testing.T) {
	tests := []struct {
		rdp  uint8
		want int
	}{
		{rdp: 0xAA, want: 0},
		{rdp: 0xCC, want: 2},
		{rdp: 0x00, want: 1},
		{rdp: 0x55, want: 1},
	}
	for _, tt := range tests {
		f, dev := testFlash(t)
		dev.SetReadProtection(tt.rdp)
		got, err := f.readProtectionLevel()
		if err != nil {
			t.Fatalf("readProtectionLevel: %v", err)
		}
		if got != tt.want {
			t.Errorf("rdp %#x: level = %d, want %d", tt.rdp, got, tt.want)
		}
	}
}

func TestProfileValidate(t *testing.T) {
	if err := DefaultProfile().Validate(); err != nil {
		t.Fatalf("default profile invalid: %v", err)
	}

	p := DefaultProfile()
	p.NewApp.Start = p.ActiveApp.Start + 0x1000
	if err := p.Validate(); err == nil {
		t.Error("overlapping regions accepted")
	}

	p = DefaultProfile()
	p.WriteChunk = 0
	if err := p.Validate(); err == nil {
		t.Error("zero write chunk accepted")
	}
}
