package bootshell

import (
	"bytes"

	"github.com/marcinbor85/gohex"
)

// AppType identifies the encoding of a staged application image.
type AppType uint8

const (
	AppTypeBin AppType = iota
	AppTypeHex
	AppTypeSrec
)

// ParseAppType maps the wire name of an application encoding to its type.
func ParseAppType(s string) (AppType, error) {
	switch s {
	case "bin":
		return AppTypeBin, nil
	case "hex":
		return AppTypeHex, nil
	case "srec":
		return AppTypeSrec, nil
	}
	return 0, ErrAppTypeInvalid
}

func (t AppType) String() string {
	switch t {
	case AppTypeBin:
		return "bin"
	case AppTypeHex:
		return "hex"
	case AppTypeSrec:
		return "srec"
	}
	return "invalid"
}

// Segment is a contiguous run of image bytes at an absolute address.
type Segment struct {
	Addr uint32
	Data []byte
}

// decodeImage expands a staged image into programmable segments. Binary
// images are a single segment at base; hex and S-record images carry their
// own addresses.
func decodeImage(t AppType, raw []byte, base uint32) ([]Segment, error) {
	switch t {
	case AppTypeBin:
		return []Segment{{Addr: base, Data: raw}}, nil

	case AppTypeHex:
		mem := gohex.NewMemory()
		if err := mem.ParseIntelHex(bytes.NewReader(raw)); err != nil {
			pkgLog.Warningf("intel hex parse failed: %v", err)
			return nil, ErrInvalidIntelHex
		}
		var segs []Segment
		for _, s := range mem.GetDataSegments() {
			segs = append(segs, Segment{Addr: s.Address, Data: s.Data})
		}
		if len(segs) == 0 {
			return nil, ErrInvalidIntelHex
		}
		return segs, nil

	case AppTypeSrec:
		return parseSRecords(raw)
	}
	return nil, ErrAppTypeInvalid
}
