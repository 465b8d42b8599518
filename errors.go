package bootshell

import "errors"

// ErrCode is the closed set of failures the bootloader can produce. Every
// fallible step returns one of these (possibly wrapped with context); the
// shell's error-recovery state is the single place that turns a code into a
// host-visible message and decides whether the shell survives it.
type ErrCode uint8

const (
	// ErrUnknown is the zero code, reported for errors that carry no code.
	ErrUnknown ErrCode = iota

	// Transport.
	ErrHalTx
	ErrHalRx
	ErrRxAbort
	ErrRecvTimeout
	ErrReadOverflow

	// Parsing.
	ErrCmdShort
	ErrCmdUndefined
	ErrCmdCode
	ErrNeedParam
	ErrInvalidParam
	ErrNotDigit
	ErrForceParam

	// Addressing.
	ErrJumpInvalidAddr
	ErrWriteInvalidAddr
	ErrWriteTooBig
	ErrInvalidSize
	ErrInvalidSector
	ErrInvalidSectorCount
	ErrEraseInvalidType
	ErrSegmentation

	// Hardware.
	ErrHalErase
	ErrHalWrite
	ErrHalRead
	ErrHalUnlock
	ErrSectorFailure

	// Update and checksums.
	ErrChecksumMismatch
	ErrUnsupportedChecksum
	ErrCrcLength
	ErrSha256Length
	ErrNewAppTooLong
	ErrAppTypeInvalid
	ErrRecordLoad
	ErrRecordStore

	// Image decoding.
	ErrInvalidSRecord
	ErrSRecordFunction
	ErrInvalidIntelHex
	ErrIntelHexFunction

	// Shell.
	ErrUnknownState
	ErrNotImplemented
)

// errInfo carries the internal name of a code and the description the host
// sees after the "ERROR: " prefix. An empty host text means the code is
// logged but produces no response line, matching the original protocol.
type errInfo struct {
	name string
	host string
}

var errTable = map[ErrCode]errInfo{
	ErrUnknown:      {name: "unknown error"},
	ErrHalTx:        {name: "transmit failed"},
	ErrHalRx:        {name: "receive failed"},
	ErrRxAbort:      {name: "receive abort failed"},
	ErrRecvTimeout:  {name: "receive timed out", host: "Timed out waiting for input"},
	ErrReadOverflow: {name: "command line overflow", host: "Command too long"},

	ErrCmdShort:     {name: "empty command"},
	ErrCmdUndefined: {name: "undefined command", host: "Invalid command"},
	ErrCmdCode:      {name: "unbound command code", host: "Invalid command"},
	ErrNeedParam:    {name: "missing parameter", host: "Missing parameter(s)"},
	ErrInvalidParam: {name: "invalid parameter"},
	ErrNotDigit:     {name: "malformed number", host: "Number parameter contains letters"},
	ErrForceParam:   {name: "invalid force parameter", host: "Invalid force parameter"},

	ErrJumpInvalidAddr: {name: "address not jumpable",
		host: "Invalid address" + CRLF +
			"Jumpable regions: FLASH, SRAM1, SRAM2, CCMRAM, BKPSRAM and SYSMEM"},
	ErrWriteInvalidAddr:   {name: "address not writable", host: "Invalid address range entered"},
	ErrWriteTooBig:        {name: "write above chunk limit", host: "Inputed too big value"},
	ErrInvalidSize:        {name: "invalid length", host: "Invalid length"},
	ErrInvalidSector:      {name: "invalid sector", host: "Wrong sector given"},
	ErrInvalidSectorCount: {name: "invalid sector count", host: "Wrong sector count given"},
	ErrEraseInvalidType:   {name: "invalid erase type", host: "Invalid erase type"},
	ErrSegmentation:       {name: "forbidden address", host: "Segmentation"},

	ErrHalErase:      {name: "erase failed", host: "HAL error while erasing sectors"},
	ErrHalWrite:      {name: "flash write failed", host: "Error while writing to flash. Retry last message."},
	ErrHalRead:       {name: "hardware read failed", host: "Error while reading"},
	ErrHalUnlock:     {name: "flash unlock failed", host: "Unlocking flash failed"},
	ErrSectorFailure: {name: "sector erase incomplete", host: "Internal error while erasing sectors"},

	ErrChecksumMismatch: {name: "checksum mismatch",
		host: "Data corrupted during transport (Invalid checksum). Retry last message."},
	ErrUnsupportedChecksum: {name: "unsupported checksum", host: "Requested checksum not supported"},
	ErrCrcLength:           {name: "invalid crc32 length", host: "Length for CRC32 must be divisible by 4"},
	ErrSha256Length:        {name: "invalid sha256 length", host: "Invalid length for sha256"},
	ErrNewAppTooLong:       {name: "new application too long", host: "New app is too long. Aborting"},
	ErrAppTypeInvalid:      {name: "invalid application type", host: "Invalid user application type"},
	ErrRecordLoad:          {name: "boot record load failed", host: "Boot record unreadable"},
	ErrRecordStore:         {name: "boot record store failed", host: "Boot record write failed"},

	ErrInvalidSRecord:   {name: "invalid s-record", host: "Invalid S-record file"},
	ErrSRecordFunction:  {name: "unsupported s-record type", host: "Invalid S-record function"},
	ErrInvalidIntelHex:  {name: "invalid intel hex", host: "Invalid contents of intel hex"},
	ErrIntelHexFunction: {name: "unsupported intel hex function", host: "Unsupported Intel hex function"},

	ErrUnknownState:   {name: "unknown shell state"},
	ErrNotImplemented: {name: "not implemented", host: "Requested action is not implemented"},
}

func (e ErrCode) Error() string {
	if info, ok := errTable[e]; ok {
		return info.name
	}
	return "unknown error"
}

// HostMessage returns the description sent to the host for this code, or ""
// when the code is only logged.
func (e ErrCode) HostMessage() string {
	return errTable[e].host
}

// Fatal reports whether the code terminates the shell instead of returning
// it to the operational state. Almost everything is recoverable; a dead link
// is not, since no further command could be received or reported, and
// unrecognized errors are treated as unrecoverable by default.
func (e ErrCode) Fatal() bool {
	return e == ErrHalTx || e == ErrHalRx || e == ErrUnknown
}

// CodeOf extracts the ErrCode from err, unwrapping as needed. Errors that
// carry no code map to ErrUnknown.
func CodeOf(err error) ErrCode {
	var code ErrCode
	if errors.As(err, &code) {
		return code
	}
	return ErrUnknown
}
