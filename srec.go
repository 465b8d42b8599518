package bootshell

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"strings"
)

// parseSRecords decodes a Motorola S-record image into segments. S1/S2/S3
// data records are collected (contiguous runs are merged), S0 headers and
// S5/S6 counts are ignored, S7/S8/S9 terminate the image. Every record's
// checksum is verified.
func parseSRecords(raw []byte) ([]Segment, error) {
	var segs []Segment
	sc := bufio.NewScanner(bytes.NewReader(raw))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		addr, data, typ, err := parseSRecordLine(line)
		if err != nil {
			return nil, err
		}
		switch typ {
		case '0', '5', '6':
			// Header and count records carry no image bytes.
		case '1', '2', '3':
			segs = appendSegment(segs, addr, data)
		case '7', '8', '9':
			if len(segs) == 0 {
				return nil, ErrInvalidSRecord
			}
			return segs, nil
		}
	}
	// Image ended without a termination record.
	return nil, ErrInvalidSRecord
}

// parseSRecordLine decodes one record, returning its load address, payload
// and record type digit.
func parseSRecordLine(line string) (uint32, []byte, byte, error) {
	if len(line) < 10 || line[0] != 'S' {
		return 0, nil, 0, ErrInvalidSRecord
	}
	typ := line[1]
	var addrLen int
	switch typ {
	case '0', '1', '5', '9':
		addrLen = 2
	case '2', '6', '8':
		addrLen = 3
	case '3', '7':
		addrLen = 4
	default:
		return 0, nil, 0, ErrSRecordFunction
	}

	body, err := hex.DecodeString(line[2:])
	if err != nil {
		return 0, nil, 0, ErrInvalidSRecord
	}
	// body = count, address, data, checksum; count covers everything after
	// itself including the checksum.
	count := int(body[0])
	if count != len(body)-1 || count < addrLen+1 {
		return 0, nil, 0, ErrInvalidSRecord
	}

	var sum byte
	for _, b := range body[:len(body)-1] {
		sum += b
	}
	if ^sum != body[len(body)-1] {
		return 0, nil, 0, ErrInvalidSRecord
	}

	addrBytes := make([]byte, 4)
	copy(addrBytes[4-addrLen:], body[1:1+addrLen])
	addr := binary.BigEndian.Uint32(addrBytes)
	data := body[1+addrLen : len(body)-1]
	return addr, data, typ, nil
}

// appendSegment grows the last segment when data continues it, otherwise
// starts a new one.
func appendSegment(segs []Segment, addr uint32, data []byte) []Segment {
	if len(data) == 0 {
		return segs
	}
	if n := len(segs); n > 0 {
		last := &segs[n-1]
		if last.Addr+uint32(len(last.Data)) == addr {
			last.Data = append(last.Data, data...)
			return segs
		}
	}
	return append(segs, Segment{Addr: addr, Data: append([]byte(nil), data...)})
}
