package bootshell

import (
	"bytes"
	"strings"
	"testing"
)

// testShell builds a shell over an emulated device and a scripted link. The
// script must end with an exit command or the drained link kills the run.
func testShell(t *testing.T, script []byte, opts Options) (*Shell, *MemDevice, *testLink) {
	t.Helper()
	dev := NewMemDevice(0x08000000, 0x1000, 12)
	link := newTestLink(script)
	s, err := New(link, dev.Hardware(), dev.Profile(), opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, dev, link
}

func script(lines ...string) []byte {
	return []byte(strings.Join(lines, CRLF) + CRLF)
}

func TestNewValidation(t *testing.T) {
	dev := NewMemDevice(0x08000000, 0x1000, 12)

	if _, err := New(nil, dev.Hardware(), nil, Options{}); err == nil {
		t.Error("nil link accepted")
	}

	hw := dev.Hardware()
	hw.Flash = nil
	if _, err := New(newTestLink(nil), hw, nil, Options{}); err == nil {
		t.Error("incomplete hardware accepted")
	}

	bad := dev.Profile()
	bad.WriteChunk = 0
	if _, err := New(newTestLink(nil), dev.Hardware(), bad, Options{}); err == nil {
		t.Error("invalid profile accepted")
	}
}

func TestShellSession(t *testing.T) {
	s, dev, link := testShell(t, script("version", "cid", "exit"), Options{Version: "v9.9.9"})

	if err := s.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	out := link.sent()
	if !strings.Contains(out, "Bootloader shell v9.9.9") {
		t.Error("welcome banner missing")
	}
	if !strings.Contains(out, "v9.9.9"+CRLF) {
		t.Error("version response missing")
	}
	if !strings.Contains(out, "0x413") {
		t.Error("cid response missing")
	}
	// version, cid and exit each complete with one success token.
	if got := strings.Count(out, TxtSuccess); got != 3 {
		t.Errorf("success tokens = %d, want 3", got)
	}
	if !strings.Contains(out, "Exiting"+CRLF) {
		t.Error("farewell missing")
	}
	if dev.Restarts != 0 {
		t.Errorf("Restarts = %d, want 0", dev.Restarts)
	}
}

func TestShellUnknownCommandRecovers(t *testing.T) {
	s, _, link := testShell(t, script("frobnicate", "version", "exit"), Options{})

	if err := s.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	out := link.sent()
	if !strings.Contains(out, errPrefix+"Invalid command"+CRLF) {
		t.Error("error report missing")
	}
	if !strings.Contains(out, DefaultVersion+CRLF) {
		t.Error("shell did not keep serving after the error")
	}
}

func TestShellLineOverflowRecovers(t *testing.T) {
	long := bytes.Repeat([]byte{'a'}, maxLineLen)
	input := append(long, script("version", "exit")...)
	s, _, link := testShell(t, input, Options{})

	if err := s.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	out := link.sent()
	if !strings.Contains(out, errPrefix+"Command too long"+CRLF) {
		t.Error("overflow report missing")
	}
	if !strings.Contains(out, DefaultVersion+CRLF) {
		t.Error("shell did not keep serving after the overflow")
	}
}

func TestShellDeadLinkIsFatal(t *testing.T) {
	s, _, _ := testShell(t, script("version"), Options{})
	err := s.Run()
	if err == nil {
		t.Fatal("drained link did not terminate the shell")
	}
	if code := CodeOf(err); !code.Fatal() {
		t.Errorf("terminating code %v is not fatal", code)
	}
}

func TestShellJumpTo(t *testing.T) {
	s, dev, link := testShell(t, script(
		"jump-to addr=0x40020000",
		"jump-to",
		"jump-to addr=0x08001000",
		"exit"), Options{})

	if err := s.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	out := link.sent()
	if !strings.Contains(out, errPrefix+"Invalid address") {
		t.Error("invalid address report missing")
	}
	if !strings.Contains(out, errPrefix+"Missing parameter(s)"+CRLF) {
		t.Error("missing parameter report missing")
	}
	// The thumb bit is set after validation, never before.
	if len(dev.Jumped) != 1 || dev.Jumped[0] != 0x08001001 {
		t.Errorf("Jumped = %#v, want [0x08001001]", dev.Jumped)
	}
}

func TestShellFlashEraseAndWrite(t *testing.T) {
	payload := []byte{0xCA, 0xFE, 0xBA, 0xBE}
	digest, err := Compute(ChecksumCRC32, payload)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	var input bytes.Buffer
	input.Write(script("flash-erase type=sector sector=1 count=1"))
	input.Write(script("flash-write start=0x08001000 count=4 cksum=crc32"))
	input.Write(payload)
	input.Write(digest)
	input.Write(script("mem-read start=0x08001000 count=4"))
	input.Write(script("exit"))

	s, dev, link := testShell(t, input.Bytes(), Options{})
	if err := s.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := make([]byte, 4)
	if err := dev.Read(0x08001000, got); err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("flash = %x, want %x", got, payload)
	}
	out := link.sent()
	if !strings.Contains(out, txtReady) {
		t.Error("ready prompt missing before data phase")
	}
	if !strings.Contains(out, "ca fe ba be") {
		t.Error("mem-read dump missing")
	}
}

func TestShellFlashWriteValidation(t *testing.T) {
	s, _, link := testShell(t, script(
		"flash-write start=0x20000000 count=4",
		"flash-write start=0x08001000 count=9999",
		"flash-write start=0x08001000 count=6 cksum=crc32",
		"flash-write start=0x08001000 count=abc",
		"exit"), Options{})

	if err := s.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	out := link.sent()
	for _, want := range []string{
		"Invalid address range entered",
		"Inputed too big value",
		"Length for CRC32 must be divisible by 4",
		"Number parameter contains letters",
	} {
		if !strings.Contains(out, errPrefix+want+CRLF) {
			t.Errorf("report %q missing", want)
		}
	}
	// None of the rejected commands may reach the data phase.
	if strings.Contains(out, txtReady) {
		t.Error("ready prompt sent for a rejected write")
	}
}

func TestShellEraseValidation(t *testing.T) {
	s, _, link := testShell(t, script(
		"flash-erase type=banana",
		"flash-erase type=sector sector=10 count=5",
		"flash-erase type=sector sector=99 count=1",
		"exit"), Options{})

	if err := s.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	out := link.sent()
	for _, want := range []string{
		"Invalid erase type",
		"Wrong sector count given",
		"Wrong sector given",
	} {
		if !strings.Contains(out, errPrefix+want+CRLF) {
			t.Errorf("report %q missing", want)
		}
	}
}

func TestShellOptionBytes(t *testing.T) {
	s, _, link := testShell(t, script(
		"get-rdp-level",
		"en-write-prot mask=0x3",
		"read-sect-prot-stat",
		"dis-write-prot mask=0x1",
		"read-sect-prot-stat",
		"exit"), Options{})

	if err := s.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	out := link.sent()
	if !strings.Contains(out, "level 0"+CRLF) {
		t.Error("rdp level missing")
	}
	if !strings.Contains(out, "0b000000000011"+CRLF) {
		t.Error("protection status after enable missing")
	}
	if !strings.Contains(out, "0b000000000010"+CRLF) {
		t.Error("protection status after disable missing")
	}
}

func TestShellReset(t *testing.T) {
	s, dev, _ := testShell(t, script("reset", "exit"), Options{})
	if err := s.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if dev.Restarts != 1 {
		t.Errorf("Restarts = %d, want 1", dev.Restarts)
	}
}

func TestShellHelp(t *testing.T) {
	s, _, link := testShell(t, script("help", "exit"), Options{})
	if err := s.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	out := link.sent()
	for _, e := range commandTable {
		if !strings.Contains(out, "- "+e.name+" | ") {
			t.Errorf("help entry for %q missing", e.name)
		}
	}
}

func TestShellGroups(t *testing.T) {
	s, _, link := testShell(t, script("version", "cid", "exit"),
		Options{Groups: []Group{GroupBase, GroupEtc}})
	if err := s.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(link.sent(), "0x413") {
		t.Error("etc group command rejected")
	}

	s, _, link = testShell(t, script("cid", "exit"),
		Options{Groups: []Group{GroupBase}})
	if err := s.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(link.sent(), errPrefix+"Invalid command"+CRLF) {
		t.Error("disabled group command still dispatched")
	}
}

// TestShellUpdateCycle drives the full two-phase update over the wire: one
// session stages the image and restarts, the next boot activates it.
func TestShellUpdateCycle(t *testing.T) {
	image := testImage(2048)
	digestInput := chunked(t, image, ChecksumCRC32, defaultWriteChunk)

	var input bytes.Buffer
	input.Write(script("update-new count=2048 type=bin cksum=crc32"))
	input.Write(digestInput)
	input.Write(script("exit"))

	s, dev, link := testShell(t, input.Bytes(), Options{})
	if err := s.Run(); err != nil {
		t.Fatalf("staging run: %v", err)
	}
	if dev.Restarts != 1 {
		t.Fatalf("Restarts = %d, want 1", dev.Restarts)
	}
	if !strings.Contains(link.sent(), "Restarting..."+CRLF) {
		t.Error("restart notice missing")
	}

	// Simulated reboot: a fresh shell over the same device activates the
	// staged image before serving commands.
	link2 := newTestLink(script("exit"))
	s2, err := New(link2, dev.Hardware(), dev.Profile(), Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s2.Run(); err != nil {
		t.Fatalf("activation run: %v", err)
	}
	if dev.Restarts != 2 {
		t.Fatalf("Restarts = %d, want 2", dev.Restarts)
	}
	if !strings.Contains(link2.sent(), "Application updated. Restarting..."+CRLF) {
		t.Error("activation notice missing")
	}

	active := make([]byte, len(image))
	if err := dev.Read(dev.Profile().ActiveApp.Start, active); err != nil {
		t.Fatalf("read execution region: %v", err)
	}
	if !bytes.Equal(active, image) {
		t.Error("execution region does not hold the staged image")
	}

	// Third boot: nothing staged, the shell serves normally.
	link3 := newTestLink(script("version", "exit"))
	s3, err := New(link3, dev.Hardware(), dev.Profile(), Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s3.Run(); err != nil {
		t.Fatalf("idle run: %v", err)
	}
	if dev.Restarts != 2 {
		t.Errorf("Restarts = %d, want 2 (no spurious activation)", dev.Restarts)
	}
}

func TestShellUpdateActForceParam(t *testing.T) {
	s, _, link := testShell(t, script(
		"update-act force=maybe",
		"update-act",
		"exit"), Options{})
	if err := s.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	out := link.sent()
	if !strings.Contains(out, errPrefix+"Invalid force parameter"+CRLF) {
		t.Error("force parameter report missing")
	}
	// Nothing staged: the plain update-act reports success and keeps going.
	if !strings.Contains(out, TxtSuccess) {
		t.Error("no-op activation success missing")
	}
}

func TestShellLaunch(t *testing.T) {
	s, dev, link := testShell(t, script("exit"), Options{})
	if err := s.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	s.Launch()
	if !strings.Contains(link.sent(), "Jumping to user application"+CRLF) {
		t.Error("launch notice missing")
	}
	want := dev.Profile().ActiveApp.Start + 1
	if len(dev.Jumped) != 1 || dev.Jumped[0] != want {
		t.Errorf("Jumped = %#v, want [%#x]", dev.Jumped, want)
	}
}
