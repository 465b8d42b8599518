package bootshell

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Argument names of the wire protocol.
const (
	argAddr   = "addr"
	argType   = "type"
	argSector = "sector"
	argCount  = "count"
	argStart  = "start"
	argCksum  = "cksum"
	argMask   = "mask"
	argForce  = "force"
)

const (
	eraseTypeMass   = "mass"
	eraseTypeSector = "sector"
)

// commandTable is the full command set. Groups without a handler here do not
// exist; an unknown name maps to ErrCmdUndefined in the dispatcher.
var commandTable = []entry{
	{name: "version", group: GroupBase,
		help: "prints the running bootloader version",
		run:  cmdVersion},
	{name: "help", group: GroupBase,
		help: "prints this catalogue",
		run:  cmdHelp},
	{name: "reset", group: GroupBase, quiet: true,
		help: "restarts the microcontroller",
		run:  cmdReset},
	{name: "cid", group: GroupEtc,
		help: "prints the chip identification number",
		run:  cmdCid},
	{name: "exit", group: GroupEtc,
		help: "exits the shell and starts the user application",
		run:  cmdExit},
	{name: "get-rdp-level", group: GroupOptBytes,
		help: "prints the flash read protection level",
		run:  cmdGetRDPLevel},
	{name: "en-write-prot", group: GroupOptBytes,
		help: "enables sector write protection; mask=<hex>, LSB is sector 0",
		run:  cmdEnableWriteProt},
	{name: "dis-write-prot", group: GroupOptBytes,
		help: "disables sector write protection; mask=<hex>, LSB is sector 0",
		run:  cmdDisableWriteProt},
	{name: "read-sect-prot-stat", group: GroupOptBytes,
		help: "prints the write protection bit per sector, LSB is sector 0",
		run:  cmdReadSectProtStat},
	{name: "jump-to", group: GroupMemory, quiet: true,
		help: "jumps to a requested address; addr=<hex>, 0x optional",
		run:  cmdJumpTo},
	{name: "flash-erase", group: GroupMemory,
		help: "erases flash; type=mass|sector [sector=<dec> count=<dec>]",
		run:  cmdFlashErase},
	{name: "flash-write", group: GroupMemory,
		help: "writes one chunk to flash; start=<hex> count=<dec> [cksum=no|crc32|sha256]",
		run:  cmdFlashWrite},
	{name: "mem-read", group: GroupMemory,
		help: "reads bytes from memory; start=<hex> count=<dec>",
		run:  cmdMemRead},
	{name: "update-new", group: GroupUpdateNew, quiet: true,
		help: "stages a new application; count=<dec> type=bin|hex|srec [cksum=no|crc32|sha256]",
		run:  cmdUpdateNew},
	{name: "update-act", group: GroupUpdateAct, quiet: true,
		help: "activates the staged application; [force=true|false]",
		run:  cmdUpdateAct},
}

func cmdVersion(s *Shell, _ Command) error {
	return s.send(s.version + CRLF)
}

func cmdHelp(s *Shell, _ Command) error {
	return s.send(s.registry.helpText(s.version))
}

func cmdReset(s *Shell, _ Command) error {
	if err := s.send(TxtSuccess); err != nil {
		return err
	}
	pkgLog.Infof("restart requested")
	s.hw.System.Restart()
	return nil
}

func cmdCid(s *Shell, _ Command) error {
	return s.send(fmt.Sprintf("%#x%s", s.hw.System.DeviceID(), CRLF))
}

func cmdExit(s *Shell, _ Command) error {
	s.exitReq = true
	return nil
}

func cmdGetRDPLevel(s *Shell, _ Command) error {
	level, err := s.flash.readProtectionLevel()
	if err != nil {
		return err
	}
	return s.send(fmt.Sprintf("level %d%s", level, CRLF))
}

func cmdEnableWriteProt(s *Shell, cmd Command) error {
	return changeWriteProt(s, cmd, true)
}

func cmdDisableWriteProt(s *Shell, cmd Command) error {
	return changeWriteProt(s, cmd, false)
}

func changeWriteProt(s *Shell, cmd Command, enable bool) error {
	val, err := cmd.requiredArg(argMask)
	if err != nil {
		return err
	}
	mask, err := parseHex(val)
	if err != nil {
		return err
	}
	return s.flash.setWriteProtection(mask, enable)
}

func cmdReadSectProtStat(s *Shell, _ Command) error {
	status, err := s.flash.protectionStatus()
	if err != nil {
		return err
	}
	var b strings.Builder
	b.WriteString("0b")
	for i := s.profile.SectorTotal - 1; i >= 0; i-- {
		b.WriteByte('0' + byte(status>>uint(i)&1))
	}
	b.WriteString(CRLF)
	return s.send(b.String())
}

// cmdJumpTo validates the requested address against the jumpable region
// table and transfers control. The low bit is set only after validation: it
// selects the Thumb instruction set and is never part of the address check.
func cmdJumpTo(s *Shell, cmd Command) error {
	val, err := cmd.requiredArg(argAddr)
	if err != nil {
		return err
	}
	addr, err := parseHex(val)
	if err != nil {
		return err
	}
	if err := s.profile.ValidateJumpAddress(addr); err != nil {
		return err
	}
	if err := s.send(TxtSuccess); err != nil {
		return err
	}
	pkgLog.Infof("jumping to %#x", addr)
	s.hw.System.EnterApplication(addr + 1)
	return nil
}

func cmdFlashErase(s *Shell, cmd Command) error {
	typ, err := cmd.requiredArg(argType)
	if err != nil {
		return err
	}
	switch typ {
	case eraseTypeMass:
		return s.flash.massErase()

	case eraseTypeSector:
		val, err := cmd.requiredArg(argSector)
		if err != nil {
			return err
		}
		sector, err := parseDec(val)
		if err != nil {
			return err
		}
		if val, err = cmd.requiredArg(argCount); err != nil {
			return err
		}
		count, err := parseDec(val)
		if err != nil {
			return err
		}
		return s.flash.eraseRange(int(sector), int(count))

	default:
		return ErrEraseInvalidType
	}
}

// cmdFlashWrite receives one chunk of at most WriteChunk bytes plus an
// optional digest and programs it. The data is programmed before the digest
// check, so a mismatch means flash already holds the corrupted bytes; the
// host is told to retry.
func cmdFlashWrite(s *Shell, cmd Command) error {
	val, err := cmd.requiredArg(argStart)
	if err != nil {
		return err
	}
	start, err := parseHex(val)
	if err != nil {
		return err
	}
	if val, err = cmd.requiredArg(argCount); err != nil {
		return err
	}
	count, err := parseDec(val)
	if err != nil {
		return err
	}
	kindName, _ := cmd.Arg(argCksum)
	kind, err := ParseChecksumKind(kindName)
	if err != nil {
		return err
	}

	if count == 0 || count > uint32(s.profile.WriteChunk) {
		return ErrWriteTooBig
	}
	if !s.profile.inFlash(start, count) {
		return ErrWriteInvalidAddr
	}
	if err := kind.ValidateLength(int(count)); err != nil {
		return err
	}

	if err := s.send(txtReady); err != nil {
		return err
	}
	buf := make([]byte, count)
	if err := s.recv(buf); err != nil {
		return err
	}
	digest := make([]byte, kind.DigestSize())
	if err := s.recv(digest); err != nil {
		return err
	}

	if err := s.flash.write(start, buf); err != nil {
		return err
	}
	return Verify(kind, buf, digest)
}

func cmdMemRead(s *Shell, cmd Command) error {
	val, err := cmd.requiredArg(argStart)
	if err != nil {
		return err
	}
	start, err := parseHex(val)
	if err != nil {
		return err
	}
	if val, err = cmd.requiredArg(argCount); err != nil {
		return err
	}
	count, err := parseDec(val)
	if err != nil {
		return err
	}
	if count == 0 || count > uint32(s.profile.WriteChunk) {
		return ErrInvalidSize
	}

	buf := make([]byte, count)
	if err := s.flash.read(start, buf); err != nil {
		return err
	}
	return s.send(hex.Dump(buf))
}

func cmdUpdateNew(s *Shell, cmd Command) error {
	val, err := cmd.requiredArg(argCount)
	if err != nil {
		return err
	}
	count, err := parseDec(val)
	if err != nil {
		return err
	}
	kindName, _ := cmd.Arg(argCksum)
	kind, err := ParseChecksumKind(kindName)
	if err != nil {
		return err
	}
	typName, err := cmd.requiredArg(argType)
	if err != nil {
		return err
	}
	typ, err := ParseAppType(typName)
	if err != nil {
		return err
	}
	return s.updater.stageNew(count, kind, typ)
}

func cmdUpdateAct(s *Shell, cmd Command) error {
	force := false
	if val, ok := cmd.Arg(argForce); ok {
		switch val {
		case "true":
			force = true
		case "false":
		default:
			return ErrForceParam
		}
	}
	restarted, err := s.updater.activate(force)
	if err != nil {
		return err
	}
	if !restarted {
		// Nothing staged: report success and keep running.
		return s.send(TxtSuccess)
	}
	return nil
}
